package schedule

import "time"

// Hours describes which local hours of day are bookable. An hour h is
// bookable when h < ClosedFrom || h >= ClosedUntil, i.e. the half-open
// local range [ClosedFrom, ClosedUntil) is blocked out each day.
//
// The production policy closes 02:00-08:59 and deliberately leaves 00:00
// and 01:00 bookable.
type Hours struct {
	ClosedFrom  int
	ClosedUntil int
}

func (h Hours) Allows(hour int) bool {
	return hour < h.ClosedFrom || hour >= h.ClosedUntil
}

// Horizon generates the bookable window: Days of 1-hour slots starting
// from "now", restricted to the allowed local hours in Location.
type Horizon struct {
	Days     int
	Hours    Hours
	Location *time.Location
}

// Slots returns the ordered slot ids from now (truncated to the current
// hour) until now + Days. Deterministic for a fixed now; no side effects.
func (h Horizon) Slots(now time.Time) []SlotID {
	if h.Days <= 0 {
		return nil
	}

	local := now.In(h.loc())
	end := local.Add(time.Duration(h.Days) * 24 * time.Hour)

	var out []SlotID
	for cur := truncateToHour(local); cur.Before(end); cur = cur.Add(time.Hour) {
		if h.Hours.Allows(cur.Hour()) {
			out = append(out, At(cur))
		}
	}
	return out
}

// Contains reports whether id falls inside the horizon anchored at now.
// Used to validate reservation requests before any write.
func (h Horizon) Contains(now time.Time, id SlotID) bool {
	if h.Days <= 0 {
		return false
	}
	local := now.In(h.loc())
	start := truncateToHour(local)
	end := local.Add(time.Duration(h.Days) * 24 * time.Hour)

	t := id.Time()
	if t.Before(start) || !t.Before(end) {
		return false
	}
	return h.Hours.Allows(t.In(h.loc()).Hour())
}

func (h Horizon) loc() *time.Location {
	if h.Location != nil {
		return h.Location
	}
	return time.UTC
}

// truncateToHour zeroes minutes, seconds and sub-seconds in t's own
// location, so the local hour-of-day is preserved across DST offsets.
func truncateToHour(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
}

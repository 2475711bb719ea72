package schedule

import (
	"errors"
	"time"
)

// slotIDLayout is the canonical wire/storage form of a slot identifier:
// the slot's start instant in UTC with millisecond precision, e.g.
// "2024-01-01T10:00:00.000Z". It matches the primary key format used by
// the reservation store.
const slotIDLayout = "2006-01-02T15:04:05.000Z07:00"

var ErrNotHourAligned = errors.New("slot id must be aligned to the hour")

// SlotID identifies a bookable 1-hour slot by its hour-aligned start
// instant. The zero value is not a valid id; construct via At or
// ParseSlotID so the alignment invariant holds.
type SlotID struct {
	t time.Time
}

// At returns the SlotID covering t, truncating down to the hour.
func At(t time.Time) SlotID {
	return SlotID{t: t.UTC().Truncate(time.Hour)}
}

// ParseSlotID parses an RFC 3339 timestamp and rejects anything that is
// not exactly on an hour boundary.
func ParseSlotID(raw string) (SlotID, error) {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return SlotID{}, err
	}
	t = t.UTC()
	if t.Minute() != 0 || t.Second() != 0 || t.Nanosecond() != 0 {
		return SlotID{}, ErrNotHourAligned
	}
	return SlotID{t: t}, nil
}

// Time returns the slot's start instant in UTC.
func (id SlotID) Time() time.Time {
	return id.t
}

func (id SlotID) String() string {
	return id.t.Format(slotIDLayout)
}

func (id SlotID) IsZero() bool {
	return id.t.IsZero()
}

func (id SlotID) Before(other SlotID) bool {
	return id.t.Before(other.t)
}

func (id SlotID) Equal(other SlotID) bool {
	return id.t.Equal(other.t)
}

// DayKey returns the slot's calendar date (YYYY-MM-DD) in loc, used to
// group slots into day buckets.
func (id SlotID) DayKey(loc *time.Location) string {
	return id.t.In(loc).Format("2006-01-02")
}

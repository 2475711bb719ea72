package schedule

import (
	"time"

	"github.com/md-rashed-zaman/courtline/internal/model"
)

// Slot is the ephemeral view of a single horizon slot: free, or reserved
// with the reserving user's public projection attached.
type Slot struct {
	ID         SlotID
	ReservedBy *model.UserRef
}

func (s Slot) Reserved() bool {
	return s.ReservedBy != nil
}

// DayGroup is one calendar day's worth of slots, in ascending time order.
type DayGroup struct {
	Date  string
	Slots []Slot
}

// BuildView merges a horizon with the reservation records, grouped by
// local calendar date in loc. Every horizon slot appears exactly once;
// groups come out in ascending date order because the horizon itself is
// ordered. Inputs are not mutated.
func BuildView(horizon []SlotID, reserved map[string]model.ReservedSlot, loc *time.Location) []DayGroup {
	if loc == nil {
		loc = time.UTC
	}

	var groups []DayGroup
	for _, id := range horizon {
		slot := Slot{ID: id}
		if rec, ok := reserved[id.String()]; ok {
			slot.ReservedBy = rec.ReservedBy
		}

		key := id.DayKey(loc)
		if n := len(groups); n > 0 && groups[n-1].Date == key {
			groups[n-1].Slots = append(groups[n-1].Slots, slot)
			continue
		}
		groups = append(groups, DayGroup{Date: key, Slots: []Slot{slot}})
	}
	return groups
}

// IndexByID keys reservation records by slot id for BuildView lookups.
func IndexByID(slots []model.ReservedSlot) map[string]model.ReservedSlot {
	out := make(map[string]model.ReservedSlot, len(slots))
	for _, s := range slots {
		out[s.ID] = s
	}
	return out
}

package outbox

import (
	"encoding/json"
	"time"

	"github.com/md-rashed-zaman/courtline/internal/model"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType (event per topic).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

func SlotReserved(slot model.ReservedSlot) Event {
	return slotEvent("slot.reserved.v1", slot)
}

func SlotCancelled(slot model.ReservedSlot) Event {
	return slotEvent("slot.cancelled.v1", slot)
}

func slotEvent(eventType string, slot model.ReservedSlot) Event {
	payload, _ := json.Marshal(map[string]any{
		"slot_id":        slot.ID,
		"reserved_at":    slot.ReservedAt.UTC().Format(time.RFC3339),
		"reserved_by_id": slot.ReservedByID,
	})
	return Event{
		AggregateType: "slot",
		AggregateID:   slot.ID,
		EventType:     eventType,
		Payload:       payload,
	}
}

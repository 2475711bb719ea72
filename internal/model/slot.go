package model

import "time"

// ReservedSlot is the persisted claim on a slot. ID is the canonical
// string form of the slot's hour-aligned start instant and is unique:
// the primary key on it is what serializes concurrent reservations.
type ReservedSlot struct {
	ID           string
	ReservedAt   time.Time
	ReservedByID string

	// ReservedBy is the public projection of the reserving user, joined
	// for display. Nil when the record was loaded without the join.
	ReservedBy *UserRef
}

// UserRef is the read-only user projection exposed alongside a reserved
// slot. It never carries credentials.
type UserRef struct {
	ID          string
	FirstName   string
	LastName    string
	PhoneNumber string
}

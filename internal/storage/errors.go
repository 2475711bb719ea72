package storage

import "errors"

var (
	// ErrConflict is returned when a write lost to an existing record
	// (unique key already taken).
	ErrConflict = errors.New("conflict")
	ErrNotFound = errors.New("not found")
	// ErrNotOwned is returned when a conditional delete matched a record
	// held by a different user.
	ErrNotOwned = errors.New("not owned by caller")
)

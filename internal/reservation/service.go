// Package reservation enforces the slot state machine: a slot is free
// until exactly one user reserves it, and only that user can free it
// again. All writes go through conditional repository operations so the
// guarantees hold under concurrency.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/courtline/internal/model"
	"github.com/md-rashed-zaman/courtline/internal/schedule"
	"github.com/md-rashed-zaman/courtline/internal/storage"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrAlreadyReserved = errors.New("slot already reserved")
	ErrNotFound        = errors.New("reservation not found")
	ErrNotOwner        = errors.New("reservation held by another user")
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// Identity is the caller's resolved authenticated identity. It is
// resolved once per request at the transport layer and passed in
// explicitly; the service never consults ambient auth state.
type Identity struct {
	UserID      string
	PhoneNumber string
}

func (id Identity) Resolved() bool {
	return id.UserID != ""
}

// Store is the persisted reservation state. Write methods must be
// atomic conditional operations (see storage.SlotRepository).
type Store interface {
	CreateIfAbsent(ctx context.Context, slot model.ReservedSlot) (model.ReservedSlot, error)
	DeleteOwned(ctx context.Context, id, userID string) (model.ReservedSlot, error)
	GetByID(ctx context.Context, id string) (model.ReservedSlot, error)
	ListSince(ctx context.Context, since time.Time) ([]model.ReservedSlot, error)
}

type Service struct {
	store    Store
	horizon  schedule.Horizon
	lookback time.Duration
	now      func() time.Time
}

// NewService wires the reservation core. lookback widens the ListUpcoming
// query window to tolerate clock skew at the boundary (a slot currently
// in progress still lists). now is a clock override for tests; nil means
// time.Now.
func NewService(store Store, horizon schedule.Horizon, lookback time.Duration, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	if lookback < 0 {
		lookback = 0
	}
	return &Service{
		store:    store,
		horizon:  horizon,
		lookback: lookback,
		now:      now,
	}
}

// ListUpcoming returns reservations from now minus the lookback window
// onwards, with the reserving users' public fields joined. No
// authorization required; it is the public read surface.
func (s *Service) ListUpcoming(ctx context.Context) ([]model.ReservedSlot, error) {
	return s.ListUpcomingSince(ctx, s.lookback)
}

// ListUpcomingSince is ListUpcoming with an explicit lookback window.
func (s *Service) ListUpcomingSince(ctx context.Context, lookback time.Duration) ([]model.ReservedSlot, error) {
	if lookback < 0 {
		lookback = s.lookback
	}
	return s.store.ListSince(ctx, s.now().Add(-lookback))
}

// Get returns a single reservation with the reserving user's public
// fields joined. No authorization required.
func (s *Service) Get(ctx context.Context, id schedule.SlotID) (model.ReservedSlot, error) {
	if id.IsZero() {
		return model.ReservedSlot{}, validationError("slot id is required")
	}
	slot, err := s.store.GetByID(ctx, id.String())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.ReservedSlot{}, ErrNotFound
		}
		return model.ReservedSlot{}, err
	}
	return slot, nil
}

// Schedule builds the day-grouped bookable view: the generated horizon
// merged with current reservation state.
func (s *Service) Schedule(ctx context.Context) ([]schedule.DayGroup, error) {
	now := s.now()
	reserved, err := s.store.ListSince(ctx, now.Add(-s.lookback))
	if err != nil {
		return nil, err
	}
	return schedule.BuildView(s.horizon.Slots(now), schedule.IndexByID(reserved), s.horizon.Location), nil
}

// Reserve claims the slot for the caller. Validation and authorization
// run before any write; the conflict outcome is the same whether it was
// detected by pre-check or lost at the storage layer.
func (s *Service) Reserve(ctx context.Context, caller Identity, id schedule.SlotID) (model.ReservedSlot, error) {
	if !caller.Resolved() {
		return model.ReservedSlot{}, ErrUnauthenticated
	}
	if id.IsZero() {
		return model.ReservedSlot{}, validationError("slot id is required")
	}
	if !s.horizon.Contains(s.now(), id) {
		return model.ReservedSlot{}, validationError("slot %s is outside the bookable horizon", id)
	}

	slot, err := s.store.CreateIfAbsent(ctx, model.ReservedSlot{
		ID:           id.String(),
		ReservedAt:   id.Time(),
		ReservedByID: caller.UserID,
	})
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return model.ReservedSlot{}, ErrAlreadyReserved
		}
		return model.ReservedSlot{}, err
	}
	return slot, nil
}

// Cancel frees the slot if and only if the caller holds it, returning
// the deleted record. The ownership check and delete are one conditional
// operation in the store.
func (s *Service) Cancel(ctx context.Context, caller Identity, id schedule.SlotID) (model.ReservedSlot, error) {
	if !caller.Resolved() {
		return model.ReservedSlot{}, ErrUnauthenticated
	}
	if id.IsZero() {
		return model.ReservedSlot{}, validationError("slot id is required")
	}

	slot, err := s.store.DeleteOwned(ctx, id.String(), caller.UserID)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return model.ReservedSlot{}, ErrNotFound
		case errors.Is(err, storage.ErrNotOwned):
			return model.ReservedSlot{}, ErrNotOwner
		}
		return model.ReservedSlot{}, err
	}
	return slot, nil
}

package reservation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/courtline/internal/model"
	"github.com/md-rashed-zaman/courtline/internal/schedule"
	"github.com/md-rashed-zaman/courtline/internal/storage"
)

// memStore is an in-memory Store with the same conditional-write
// semantics as the postgres repository.
type memStore struct {
	mu    sync.Mutex
	slots map[string]model.ReservedSlot
}

func newMemStore() *memStore {
	return &memStore{slots: make(map[string]model.ReservedSlot)}
}

func (m *memStore) CreateIfAbsent(_ context.Context, slot model.ReservedSlot) (model.ReservedSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.slots[slot.ID]; ok {
		return model.ReservedSlot{}, storage.ErrConflict
	}
	m.slots[slot.ID] = slot
	return slot, nil
}

func (m *memStore) DeleteOwned(_ context.Context, id, userID string) (model.ReservedSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.slots[id]
	if !ok {
		return model.ReservedSlot{}, storage.ErrNotFound
	}
	if slot.ReservedByID != userID {
		return model.ReservedSlot{}, storage.ErrNotOwned
	}
	delete(m.slots, id)
	return slot, nil
}

func (m *memStore) GetByID(_ context.Context, id string) (model.ReservedSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.slots[id]
	if !ok {
		return model.ReservedSlot{}, storage.ErrNotFound
	}
	return slot, nil
}

func (m *memStore) ListSince(_ context.Context, since time.Time) ([]model.ReservedSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ReservedSlot
	for _, s := range m.slots {
		if !s.ReservedAt.Before(since) {
			out = append(out, s)
		}
	}
	return out, nil
}

var testNow = time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC)

func newTestService(store Store) *Service {
	horizon := schedule.Horizon{
		Days:  7,
		Hours: schedule.Hours{ClosedFrom: 2, ClosedUntil: 9},
	}
	return NewService(store, horizon, time.Hour, func() time.Time { return testNow })
}

func mustSlotID(t *testing.T, raw string) schedule.SlotID {
	t.Helper()
	id, err := schedule.ParseSlotID(raw)
	if err != nil {
		t.Fatalf("parse slot id %q: %v", raw, err)
	}
	return id
}

func TestReserve(t *testing.T) {
	svc := newTestService(newMemStore())
	caller := Identity{UserID: "u1", PhoneNumber: "+385911111111"}
	id := mustSlotID(t, "2024-01-02T12:00:00Z")

	slot, err := svc.Reserve(context.Background(), caller, id)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if slot.ID != id.String() {
		t.Errorf("slot id = %q, want %q", slot.ID, id.String())
	}
	if slot.ReservedByID != "u1" {
		t.Errorf("reservedById = %q", slot.ReservedByID)
	}
	if !slot.ReservedAt.Equal(id.Time()) {
		t.Errorf("reservedAt = %v, want %v", slot.ReservedAt, id.Time())
	}
}

func TestReserveConflict(t *testing.T) {
	svc := newTestService(newMemStore())
	id := mustSlotID(t, "2024-01-02T12:00:00Z")

	if _, err := svc.Reserve(context.Background(), Identity{UserID: "u1"}, id); err != nil {
		t.Fatalf("first Reserve failed: %v", err)
	}
	if _, err := svc.Reserve(context.Background(), Identity{UserID: "u2"}, id); !errors.Is(err, ErrAlreadyReserved) {
		t.Fatalf("second Reserve err = %v, want ErrAlreadyReserved", err)
	}
	// The holder re-reserving their own slot conflicts too.
	if _, err := svc.Reserve(context.Background(), Identity{UserID: "u1"}, id); !errors.Is(err, ErrAlreadyReserved) {
		t.Fatalf("repeat Reserve err = %v, want ErrAlreadyReserved", err)
	}
}

func TestReserveUnauthenticated(t *testing.T) {
	svc := newTestService(newMemStore())
	id := mustSlotID(t, "2024-01-02T12:00:00Z")
	if _, err := svc.Reserve(context.Background(), Identity{}, id); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("err = %v, want ErrUnauthenticated", err)
	}
}

func TestReserveValidation(t *testing.T) {
	svc := newTestService(newMemStore())
	caller := Identity{UserID: "u1"}

	cases := []struct {
		name string
		id   schedule.SlotID
	}{
		{"zero id", schedule.SlotID{}},
		{"past slot", mustSlotID(t, "2024-01-01T09:00:00Z")},
		{"beyond horizon", mustSlotID(t, "2024-02-01T12:00:00Z")},
		{"closed hour", mustSlotID(t, "2024-01-02T03:00:00Z")},
	}
	for _, tc := range cases {
		var verr *ValidationError
		if _, err := svc.Reserve(context.Background(), caller, tc.id); !errors.As(err, &verr) {
			t.Errorf("%s: err = %v, want ValidationError", tc.name, err)
		}
	}
}

func TestCancel(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	caller := Identity{UserID: "u1"}
	id := mustSlotID(t, "2024-01-02T12:00:00Z")

	if _, err := svc.Reserve(context.Background(), caller, id); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	deleted, err := svc.Cancel(context.Background(), caller, id)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if deleted.ID != id.String() {
		t.Errorf("deleted id = %q", deleted.ID)
	}

	// Slot is free again.
	if _, err := svc.Reserve(context.Background(), Identity{UserID: "u2"}, id); err != nil {
		t.Fatalf("re-Reserve after cancel failed: %v", err)
	}
}

func TestCancelNotOwner(t *testing.T) {
	svc := newTestService(newMemStore())
	id := mustSlotID(t, "2024-01-02T12:00:00Z")

	if _, err := svc.Reserve(context.Background(), Identity{UserID: "u1"}, id); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if _, err := svc.Cancel(context.Background(), Identity{UserID: "u2"}, id); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("err = %v, want ErrNotOwner", err)
	}
	// The reservation survives the failed cancel.
	slots, err := svc.ListUpcoming(context.Background())
	if err != nil {
		t.Fatalf("ListUpcoming failed: %v", err)
	}
	if len(slots) != 1 {
		t.Fatalf("expected 1 reservation, got %d", len(slots))
	}
}

func TestCancelNotFound(t *testing.T) {
	svc := newTestService(newMemStore())
	id := mustSlotID(t, "2024-01-02T12:00:00Z")
	if _, err := svc.Cancel(context.Background(), Identity{UserID: "u1"}, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCancelUnauthenticated(t *testing.T) {
	svc := newTestService(newMemStore())
	id := mustSlotID(t, "2024-01-02T12:00:00Z")
	if _, err := svc.Cancel(context.Background(), Identity{}, id); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("err = %v, want ErrUnauthenticated", err)
	}
}

func TestGet(t *testing.T) {
	svc := newTestService(newMemStore())
	id := mustSlotID(t, "2024-01-02T12:00:00Z")

	if _, err := svc.Get(context.Background(), id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get before reserve err = %v, want ErrNotFound", err)
	}

	if _, err := svc.Reserve(context.Background(), Identity{UserID: "u1"}, id); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	slot, err := svc.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if slot.ID != id.String() || slot.ReservedByID != "u1" {
		t.Fatalf("got %+v", slot)
	}

	var verr *ValidationError
	if _, err := svc.Get(context.Background(), schedule.SlotID{}); !errors.As(err, &verr) {
		t.Fatalf("zero id err = %v, want ValidationError", err)
	}
}

func TestListUpcomingLookback(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	// Seed directly: one slot inside the lookback window, one outside.
	inWindow := model.ReservedSlot{
		ID:           "2024-01-01T10:00:00.000Z",
		ReservedAt:   time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		ReservedByID: "u1",
	}
	stale := model.ReservedSlot{
		ID:           "2024-01-01T01:00:00.000Z",
		ReservedAt:   time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC),
		ReservedByID: "u1",
	}
	for _, s := range []model.ReservedSlot{inWindow, stale} {
		if _, err := store.CreateIfAbsent(context.Background(), s); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	slots, err := svc.ListUpcoming(context.Background())
	if err != nil {
		t.Fatalf("ListUpcoming failed: %v", err)
	}
	if len(slots) != 1 || slots[0].ID != inWindow.ID {
		t.Fatalf("got %+v, want only the in-window slot", slots)
	}

	// A wider explicit window brings the stale slot back.
	slots, err = svc.ListUpcomingSince(context.Background(), 12*time.Hour)
	if err != nil {
		t.Fatalf("ListUpcomingSince failed: %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("expected 2 reservations, got %d", len(slots))
	}
}

func TestScheduleMergesReservations(t *testing.T) {
	svc := newTestService(newMemStore())
	caller := Identity{UserID: "u1"}
	id := mustSlotID(t, "2024-01-02T12:00:00Z")

	if _, err := svc.Reserve(context.Background(), caller, id); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}

	groups, err := svc.Schedule(context.Background())
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if len(groups) == 0 {
		t.Fatal("empty schedule")
	}

	var reserved int
	for _, g := range groups {
		for _, s := range g.Slots {
			if s.Reserved() {
				reserved++
				if !s.ID.Equal(id) {
					t.Errorf("unexpected reserved slot %v", s.ID)
				}
			}
		}
	}
	if reserved != 1 {
		t.Fatalf("reserved slots in view = %d, want 1", reserved)
	}
}

func TestReserveConcurrentSingleWinner(t *testing.T) {
	svc := newTestService(newMemStore())
	id := mustSlotID(t, "2024-01-02T12:00:00Z")

	const n = 32
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Reserve(context.Background(), Identity{UserID: string(rune('a' + i))}, id)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	var wins, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrAlreadyReserved):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || conflicts != n-1 {
		t.Fatalf("wins = %d, conflicts = %d, want 1 and %d", wins, conflicts, n-1)
	}
}

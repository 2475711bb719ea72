package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/courtline/internal/db"
	"github.com/md-rashed-zaman/courtline/internal/model"
	"github.com/md-rashed-zaman/courtline/internal/outbox"
)

type SlotRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewSlotRepository(pool *db.Pool, outboxRepo *outbox.Repository) *SlotRepository {
	return &SlotRepository{pool: pool, outbox: outboxRepo}
}

// CreateIfAbsent inserts the reservation unless the slot is already
// taken. The conditional insert is what guarantees a single winner under
// concurrent attempts: losers see ErrConflict, never an overwrite. The
// slot.reserved event is written in the same transaction.
func (r *SlotRepository) CreateIfAbsent(ctx context.Context, slot model.ReservedSlot) (model.ReservedSlot, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.ReservedSlot{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var out model.ReservedSlot
	err = tx.QueryRow(ctx, `
		INSERT INTO reserved_slots (id, reserved_at, reserved_by_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
		RETURNING id, reserved_at, reserved_by_id
	`, slot.ID, slot.ReservedAt, slot.ReservedByID).Scan(&out.ID, &out.ReservedAt, &out.ReservedByID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
			return model.ReservedSlot{}, ErrConflict
		}
		return model.ReservedSlot{}, err
	}

	if err := r.outbox.Insert(ctx, tx, outbox.SlotReserved(out)); err != nil {
		return model.ReservedSlot{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.ReservedSlot{}, err
	}
	return out, nil
}

// DeleteOwned removes the reservation only if it is held by userID: the
// ownership check and the delete are a single conditional statement, so
// a concurrent cancel-and-rebook cannot slip between them. When nothing
// was deleted, a follow-up read only classifies the failure.
func (r *SlotRepository) DeleteOwned(ctx context.Context, id, userID string) (model.ReservedSlot, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.ReservedSlot{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var out model.ReservedSlot
	err = tx.QueryRow(ctx, `
		DELETE FROM reserved_slots
		WHERE id = $1 AND reserved_by_id = $2
		RETURNING id, reserved_at, reserved_by_id
	`, id, userID).Scan(&out.ID, &out.ReservedAt, &out.ReservedByID)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return model.ReservedSlot{}, err
		}
		var exists bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM reserved_slots WHERE id = $1)
		`, id).Scan(&exists); err != nil {
			return model.ReservedSlot{}, err
		}
		if exists {
			return model.ReservedSlot{}, ErrNotOwned
		}
		return model.ReservedSlot{}, ErrNotFound
	}

	if err := r.outbox.Insert(ctx, tx, outbox.SlotCancelled(out)); err != nil {
		return model.ReservedSlot{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.ReservedSlot{}, err
	}
	return out, nil
}

// ListSince returns reservations whose slot instant is at or after
// "since", oldest first, with the reserving user's public fields joined.
func (r *SlotRepository) ListSince(ctx context.Context, since time.Time) ([]model.ReservedSlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id, s.reserved_at, s.reserved_by_id,
			u.id, u.first_name, u.last_name, u.phone_number
		FROM reserved_slots s
		JOIN users u ON u.id = s.reserved_by_id
		WHERE s.reserved_at >= $1
		ORDER BY s.reserved_at ASC
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []model.ReservedSlot
	for rows.Next() {
		var slot model.ReservedSlot
		var ref model.UserRef
		if err := rows.Scan(
			&slot.ID,
			&slot.ReservedAt,
			&slot.ReservedByID,
			&ref.ID,
			&ref.FirstName,
			&ref.LastName,
			&ref.PhoneNumber,
		); err != nil {
			return nil, err
		}
		slot.ReservedBy = &ref
		slots = append(slots, slot)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return slots, nil
}

// GetByID loads one reservation with the reserving user joined.
func (r *SlotRepository) GetByID(ctx context.Context, id string) (model.ReservedSlot, error) {
	var slot model.ReservedSlot
	var user model.User
	err := r.pool.QueryRow(ctx, `
		SELECT s.id, s.reserved_at, s.reserved_by_id,
			u.id, u.first_name, u.last_name, u.phone_number
		FROM reserved_slots s
		JOIN users u ON u.id = s.reserved_by_id
		WHERE s.id = $1
	`, id).Scan(
		&slot.ID,
		&slot.ReservedAt,
		&slot.ReservedByID,
		&user.ID,
		&user.FirstName,
		&user.LastName,
		&user.PhoneNumber,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ReservedSlot{}, ErrNotFound
		}
		return model.ReservedSlot{}, err
	}
	slot.ReservedBy = user.Ref()
	return slot, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

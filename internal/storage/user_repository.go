package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/courtline/internal/db"
	"github.com/md-rashed-zaman/courtline/internal/model"
)

type UserRepository struct {
	pool *db.Pool
}

func NewUserRepository(pool *db.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) Create(ctx context.Context, user model.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, phone_number, password_hash, first_name, last_name)
		VALUES ($1, $2, $3, $4, $5)
	`, user.ID, user.PhoneNumber, user.PasswordHash, user.FirstName, user.LastName)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (r *UserRepository) GetByPhone(ctx context.Context, phoneNumber string) (model.User, error) {
	return r.getOne(ctx, `
		SELECT id, phone_number, password_hash, first_name, last_name, created_at
		FROM users
		WHERE phone_number = $1
	`, phoneNumber)
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (model.User, error) {
	return r.getOne(ctx, `
		SELECT id, phone_number, password_hash, first_name, last_name, created_at
		FROM users
		WHERE id = $1
	`, id)
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (model.User, error) {
	var user model.User
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.PhoneNumber,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, err
	}
	return user, nil
}

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/job-tracker/internal/domain"
	"github.com/Dhoini/job-tracker/internal/repository"
	"github.com/jackc/pgx/v5"
)

const userColumns = `id, email, name, picture, billing, created_at, updated_at, last_login_at`

const (
	queryUserByID = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	queryUserByCustomer = `SELECT ` + userColumns + ` FROM users WHERE billing ->> 'customerId' = $1 LIMIT 1`

	// Пустой email заполняется, непустой не перетирается
	ensureUser = `
INSERT INTO users (id, email, billing)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE
SET email = CASE WHEN users.email = '' THEN EXCLUDED.email ELSE users.email END
RETURNING ` + userColumns

	upsertIdentity = `
INSERT INTO users (id, email, name, picture, billing, last_login_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE
SET email = EXCLUDED.email,
    name = CASE WHEN EXCLUDED.name = '' THEN users.name ELSE EXCLUDED.name END,
    picture = CASE WHEN EXCLUDED.picture = '' THEN users.picture ELSE EXCLUDED.picture END,
    last_login_at = EXCLUDED.last_login_at,
    updated_at = now()`

	mergeBilling = `
INSERT INTO users (id, billing)
VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE
SET billing = users.billing || EXCLUDED.billing,
    updated_at = now()`

	setCustomer = `
UPDATE users
SET billing = billing || jsonb_build_object('customerId', $2::text, 'pendingPlan', $3::text),
    updated_at = now()
WHERE id = $1`
)

// UserRepository хранит пользователей в таблице users, Billing - в колонке JSONB.
type UserRepository struct {
	db DB
}

// NewUserRepository создает репозиторий пользователей.
func NewUserRepository(db DB) (*UserRepository, error) {
	if db == nil {
		return nil, errors.New("postgres user repository requires db")
	}
	return &UserRepository{db: db}, nil
}

var _ repository.UserRepository = (*UserRepository)(nil)

func (r *UserRepository) Get(ctx context.Context, id string) (*domain.User, error) {
	return scanUser(r.db.QueryRow(ctx, queryUserByID, id))
}

func (r *UserRepository) FindByCustomerID(ctx context.Context, customerID string) (*domain.User, error) {
	if customerID == "" {
		return nil, domain.ErrNotFound
	}
	return scanUser(r.db.QueryRow(ctx, queryUserByCustomer, customerID))
}

func (r *UserRepository) Ensure(ctx context.Context, id, email string, defaults domain.Billing) (*domain.User, error) {
	billing, err := json.Marshal(defaults)
	if err != nil {
		return nil, fmt.Errorf("encode billing: %w", err)
	}
	return scanUser(r.db.QueryRow(ctx, ensureUser, id, email, string(billing)))
}

func (r *UserRepository) UpsertIdentity(ctx context.Context, identity domain.UserIdentity, defaults domain.Billing, loginAt time.Time) error {
	billing, err := json.Marshal(defaults)
	if err != nil {
		return fmt.Errorf("encode billing: %w", err)
	}
	if _, err := r.db.Exec(ctx, upsertIdentity, identity.ID, identity.Email, identity.Name, identity.Picture, string(billing), loginAt); err != nil {
		return fmt.Errorf("upsert user %s: %w", identity.ID, err)
	}
	return nil
}

func (r *UserRepository) MergeBilling(ctx context.Context, userID string, billing domain.Billing) error {
	data, err := json.Marshal(billing)
	if err != nil {
		return fmt.Errorf("encode billing: %w", err)
	}
	if _, err := r.db.Exec(ctx, mergeBilling, userID, string(data)); err != nil {
		return fmt.Errorf("merge billing for %s: %w", userID, err)
	}
	return nil
}

func (r *UserRepository) SetCustomer(ctx context.Context, userID, customerID string, pending domain.Plan) error {
	tag, err := r.db.Exec(ctx, setCustomer, userID, customerID, string(pending))
	if err != nil {
		return fmt.Errorf("set customer for %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound.With("users.SetCustomer")
	}
	return nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		u       domain.User
		billing []byte
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Picture, &billing, &u.CreatedAt, &u.UpdatedAt, &u.LastLoginAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if len(billing) > 0 {
		if err := json.Unmarshal(billing, &u.Billing); err != nil {
			return nil, fmt.Errorf("decode billing for %s: %w", u.ID, err)
		}
	}
	return &u, nil
}

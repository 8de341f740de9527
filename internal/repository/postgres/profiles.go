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

const (
	queryProfile = `SELECT data FROM profiles WHERE user_id = $1`

	mergeProfile = `
INSERT INTO profiles (user_id, data, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (user_id) DO UPDATE
SET data = profiles.data || EXCLUDED.data,
    updated_at = EXCLUDED.updated_at`
)

// ProfileRepository хранит профили в таблице profiles.
type ProfileRepository struct {
	db DB
}

// NewProfileRepository создает репозиторий профилей.
func NewProfileRepository(db DB) (*ProfileRepository, error) {
	if db == nil {
		return nil, errors.New("postgres profile repository requires db")
	}
	return &ProfileRepository{db: db}, nil
}

var _ repository.ProfileRepository = (*ProfileRepository)(nil)

func (r *ProfileRepository) Get(ctx context.Context, userID string) (domain.Profile, error) {
	var data []byte
	if err := r.db.QueryRow(ctx, queryProfile, userID).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query profile %s: %w", userID, err)
	}
	profile := domain.Profile{}
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", userID, err)
	}
	return profile, nil
}

func (r *ProfileRepository) Merge(ctx context.Context, userID string, profile domain.Profile, updatedAt time.Time) error {
	doc := make(domain.Profile, len(profile)+1)
	for k, v := range profile {
		doc[k] = v
	}
	doc[domain.FieldUpdatedAt] = updatedAt.UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if _, err := r.db.Exec(ctx, mergeProfile, userID, string(data), updatedAt); err != nil {
		return fmt.Errorf("merge profile %s: %w", userID, err)
	}
	return nil
}

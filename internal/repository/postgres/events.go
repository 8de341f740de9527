package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/job-tracker/internal/domain"
	"github.com/Dhoini/job-tracker/internal/repository"
)

const (
	// Повторная доставка не меняет запись, но возвращает ее текущий статус
	recordEvent = `
INSERT INTO billing_events (id, type, status, customer_id, payload, created_at, received_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE
SET received_at = EXCLUDED.received_at
RETURNING status`

	finishEvent = `
UPDATE billing_events
SET status = $2, user_id = $3, error_message = $4, processed_at = $5
WHERE id = $1`
)

// BillingEventRepository - журнал вебхуков в таблице billing_events.
type BillingEventRepository struct {
	db DB
}

// NewBillingEventRepository создает журнал событий.
func NewBillingEventRepository(db DB) (*BillingEventRepository, error) {
	if db == nil {
		return nil, errors.New("postgres billing event repository requires db")
	}
	return &BillingEventRepository{db: db}, nil
}

var _ repository.BillingEventRepository = (*BillingEventRepository)(nil)

func (r *BillingEventRepository) Record(ctx context.Context, event *domain.BillingEvent) (bool, error) {
	var status string
	err := r.db.QueryRow(ctx, recordEvent,
		event.ID,
		event.Type,
		string(domain.BillingEventPending),
		event.CustomerID,
		string(event.Payload),
		event.CreatedAt,
		event.ReceivedAt,
	).Scan(&status)
	if err != nil {
		return false, fmt.Errorf("record billing event %s: %w", event.ID, err)
	}
	s := domain.BillingEventStatus(status)
	return s == domain.BillingEventProcessed || s == domain.BillingEventIgnored, nil
}

func (r *BillingEventRepository) Finish(ctx context.Context, eventID string, status domain.BillingEventStatus, userID, errMsg string, at time.Time) error {
	if _, err := r.db.Exec(ctx, finishEvent, eventID, string(status), userID, errMsg, at); err != nil {
		return fmt.Errorf("finish billing event %s: %w", eventID, err)
	}
	return nil
}

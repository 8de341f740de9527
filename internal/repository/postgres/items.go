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
	queryItemIDs = `SELECT id FROM items WHERE collection = $1 AND user_id = $2`

	queryItems = `
SELECT id, data, created_at, updated_at
FROM items
WHERE collection = $1 AND user_id = $2`

	// Слияние верхнего уровня: поля, которых нет в новой версии, сохраняются
	upsertItem = `
INSERT INTO items (collection, user_id, id, data, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (collection, user_id, id) DO UPDATE
SET data = items.data || EXCLUDED.data,
    created_at = EXCLUDED.created_at,
    updated_at = EXCLUDED.updated_at`

	deleteItem = `DELETE FROM items WHERE collection = $1 AND user_id = $2 AND id = $3`
)

// ItemRepository хранит записи коллекций в таблице items (JSONB).
type ItemRepository struct {
	db DB
}

// NewItemRepository создает репозиторий записей.
func NewItemRepository(db DB) (*ItemRepository, error) {
	if db == nil {
		return nil, errors.New("postgres item repository requires db")
	}
	return &ItemRepository{db: db}, nil
}

var _ repository.ItemRepository = (*ItemRepository)(nil)

func (r *ItemRepository) ListIDs(ctx context.Context, collection domain.Collection, userID string) ([]string, error) {
	rows, err := r.db.Query(ctx, queryItemIDs, string(collection), userID)
	if err != nil {
		return nil, fmt.Errorf("query %s ids: %w", collection, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan %s ids: %w", collection, err)
	}
	return ids, nil
}

func (r *ItemRepository) List(ctx context.Context, collection domain.Collection, userID string) ([]domain.Item, error) {
	rows, err := r.db.Query(ctx, queryItems, string(collection), userID)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		var (
			id                   string
			data                 []byte
			createdAt, updatedAt time.Time
		)
		if err := rows.Scan(&id, &data, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		item := domain.Item{}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &item); err != nil {
				return nil, fmt.Errorf("decode %s %s: %w", collection, id, err)
			}
		}
		item[domain.FieldID] = id
		item[domain.FieldUserID] = userID
		item[domain.FieldCreatedAt] = createdAt.UTC().Format(time.RFC3339Nano)
		item[domain.FieldUpdatedAt] = updatedAt.UTC().Format(time.RFC3339Nano)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", collection, err)
	}
	return items, nil
}

func (r *ItemRepository) ApplyBatch(ctx context.Context, collection domain.Collection, userID string, ops []repository.Op) error {
	if len(ops) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // no-op после Commit

	for _, op := range ops {
		switch op.Kind {
		case repository.OpUpsert:
			data, err := json.Marshal(op.Data)
			if err != nil {
				return fmt.Errorf("encode %s %s: %w", collection, op.ID, err)
			}
			if _, err := tx.Exec(ctx, upsertItem, string(collection), userID, op.ID, string(data), op.CreatedAt, op.UpdatedAt); err != nil {
				return fmt.Errorf("upsert %s %s: %w", collection, op.ID, err)
			}
		case repository.OpDelete:
			if _, err := tx.Exec(ctx, deleteItem, string(collection), userID, op.ID); err != nil {
				return fmt.Errorf("delete %s %s: %w", collection, op.ID, err)
			}
		default:
			return fmt.Errorf("unknown op kind %d", op.Kind)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit %s batch: %w", collection, err)
	}
	return nil
}

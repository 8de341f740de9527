package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Dhoini/job-tracker/internal/domain"
	"github.com/Dhoini/job-tracker/internal/metrics"
	"github.com/Dhoini/job-tracker/internal/repository"
	"github.com/Dhoini/job-tracker/pkg/logger"
)

// DefaultBatchSize - максимум операций в одном атомарном пакете.
const DefaultBatchSize = 400

// SyncResult итог синхронизации коллекции.
type SyncResult struct {
	Count    int // записи с непустым id во входном наборе
	Upserted int
	Deleted  int
	Batches  int // успешно примененные пакеты
}

// Reconciler приводит сохраненную коллекцию пользователя к присланному снимку.
type Reconciler struct {
	items     repository.ItemRepository
	batchSize int
	now       func() time.Time
	metrics   metrics.SyncMetrics
	log       *logger.Logger
}

// NewReconciler создает реконсилер. batchSize <= 0 означает DefaultBatchSize.
func NewReconciler(items repository.ItemRepository, batchSize int, now func() time.Time, m metrics.SyncMetrics, log *logger.Logger) *Reconciler {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if now == nil {
		now = time.Now
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &Reconciler{items: items, batchSize: batchSize, now: now, metrics: m, log: log.Named("reconciler")}
}

// Sync делает набор записей (collection, userID) равным desired.
// Записи без id пропускаются. Пакеты применяются по очереди; при ошибке уже
// примененные пакеты остаются, следующие не выполняются.
func (r *Reconciler) Sync(ctx context.Context, collection domain.Collection, userID string, desired []domain.Item) (SyncResult, error) {
	const op = "reconciler.Sync"
	start := time.Now()
	defer func() { r.metrics.ObserveSync(string(collection), time.Since(start)) }()

	storedIDs, err := r.items.ListIDs(ctx, collection, userID)
	if err != nil {
		return SyncResult{}, domain.Internal(op, fmt.Errorf("list stored ids: %w", err))
	}

	now := r.now().UTC()
	result := SyncResult{}

	// Повторяющийся id: побеждает последнее вхождение, порядок - по первому
	byID := make(map[string]repository.Op, len(desired))
	order := make([]string, 0, len(desired))
	for _, item := range desired {
		id := item.ID()
		if id == "" {
			continue
		}
		result.Count++
		if _, seen := byID[id]; !seen {
			order = append(order, id)
		}
		byID[id] = repository.Op{
			Kind:      repository.OpUpsert,
			ID:        id,
			Data:      preparePayload(item, id),
			CreatedAt: createdAtFrom(item, collection.DateField(), now),
			UpdatedAt: now,
		}
	}

	ops := make([]repository.Op, 0, len(order)+len(storedIDs))
	for _, id := range order {
		ops = append(ops, byID[id])
	}
	result.Upserted = len(order)
	for _, id := range storedIDs {
		if _, keep := byID[id]; !keep {
			ops = append(ops, repository.Op{Kind: repository.OpDelete, ID: id})
			result.Deleted++
		}
	}
	r.metrics.ObserveOps(string(collection), repository.OpUpsert.String(), result.Upserted)
	r.metrics.ObserveOps(string(collection), repository.OpDelete.String(), result.Deleted)

	for startIdx := 0; startIdx < len(ops); startIdx += r.batchSize {
		end := startIdx + r.batchSize
		if end > len(ops) {
			end = len(ops)
		}
		if err := r.items.ApplyBatch(ctx, collection, userID, ops[startIdx:end]); err != nil {
			r.metrics.IncBatch(string(collection), "failed")
			r.log.Errorw("Sync batch failed",
				"collection", collection,
				"userID", userID,
				"batch", result.Batches+1,
				"committedBatches", result.Batches,
				"error", err,
			)
			return result, domain.Internal(op, fmt.Errorf("apply batch %d: %w", result.Batches+1, err))
		}
		r.metrics.IncBatch(string(collection), "committed")
		result.Batches++
	}

	r.log.Infow("Collection synced",
		"collection", collection,
		"userID", userID,
		"count", result.Count,
		"upserted", result.Upserted,
		"deleted", result.Deleted,
		"batches", result.Batches,
	)
	return result, nil
}

// preparePayload копирует запись без служебных полей: ими владеет хранилище.
// Значения null сохраняются, чтобы клиент мог очистить поле.
func preparePayload(item domain.Item, id string) domain.Item {
	out := make(domain.Item, len(item)+1)
	for k, v := range item {
		out[k] = v
	}
	delete(out, domain.FieldUserID)
	delete(out, domain.FieldCreatedAt)
	delete(out, domain.FieldUpdatedAt)
	out[domain.FieldID] = id
	return out
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// createdAtFrom берет дату создания из собственного поля записи, иначе - now.
// Значение пересчитывается при каждой синхронизации.
func createdAtFrom(item domain.Item, field string, now time.Time) time.Time {
	switch v := item[field].(type) {
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range dateLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC()
			}
		}
	case float64:
		// миллисекунды с эпохи, как у Date.now()
		if v > 0 {
			return time.UnixMilli(int64(v)).UTC()
		}
	}
	return now
}

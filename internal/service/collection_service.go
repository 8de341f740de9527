package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/Dhoini/job-tracker/internal/domain"
	"github.com/Dhoini/job-tracker/internal/kafka"
	"github.com/Dhoini/job-tracker/internal/repository"
	"github.com/Dhoini/job-tracker/pkg/logger"
)

// CollectionService интерфейс сервиса для работы с заявками и документами
type CollectionService interface {
	// Sync приводит коллекцию пользователя к присланному снимку и возвращает число записей с id.
	Sync(ctx context.Context, collection domain.Collection, userID string, items []domain.Item) (int, error)
	// List возвращает записи пользователя с учетом фильтра.
	List(ctx context.Context, collection domain.Collection, userID string, filter domain.ListFilter) ([]domain.Item, error)
}

type collectionService struct {
	reconciler *Reconciler
	items      repository.ItemRepository
	cache      repository.WorkspaceCache
	publisher  kafka.Publisher
	now        func() time.Time
	log        *logger.Logger
}

// NewCollectionService создает новый сервис коллекций. cache и publisher могут быть nil.
func NewCollectionService(
	reconciler *Reconciler,
	items repository.ItemRepository,
	cache repository.WorkspaceCache,
	publisher kafka.Publisher,
	log *logger.Logger,
) CollectionService {
	if publisher == nil {
		publisher = kafka.NopPublisher{}
	}
	return &collectionService{
		reconciler: reconciler,
		items:      items,
		cache:      cache,
		publisher:  publisher,
		now:        time.Now,
		log:        log.Named("collections"),
	}
}

// Sync синхронизирует коллекцию, затем сбрасывает кэш и публикует событие.
// Ошибки кэша и Kafka только логируются: данные уже записаны.
func (s *collectionService) Sync(ctx context.Context, collection domain.Collection, userID string, items []domain.Item) (int, error) {
	const op = "collections.Sync"
	if !collection.Valid() {
		return 0, domain.Validation(op, "unknown collection")
	}
	if userID == "" {
		return 0, domain.Validation(op, "userId is required")
	}

	result, err := s.reconciler.Sync(ctx, collection, userID, items)
	if result.Batches > 0 || err == nil {
		s.invalidate(ctx, userID)
	}
	if err != nil {
		return 0, err
	}

	if err := s.publisher.PublishCollectionSynced(ctx, kafka.CollectionSynced{
		UserID:     userID,
		Collection: collection,
		Count:      result.Count,
		Upserted:   result.Upserted,
		Deleted:    result.Deleted,
		At:         s.now().UTC(),
	}); err != nil {
		s.log.Warnw("Failed to publish collection.synced", "userID", userID, "collection", collection, "error", err)
	}

	return result.Count, nil
}

func (s *collectionService) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.log.Warnw("Failed to invalidate workspace cache", "userID", userID, "error", err)
	}
}

// List возвращает записи без служебных полей, новые первыми.
func (s *collectionService) List(ctx context.Context, collection domain.Collection, userID string, filter domain.ListFilter) ([]domain.Item, error) {
	const op = "collections.List"
	if !collection.Valid() {
		return nil, domain.Validation(op, "unknown collection")
	}
	if userID == "" {
		return nil, domain.Validation(op, "userId is required")
	}

	stored, err := s.items.List(ctx, collection, userID)
	if err != nil {
		return nil, domain.Internal(op, err)
	}

	out := make([]domain.Item, 0, len(stored))
	for _, item := range stored {
		if matches(item, collection, filter) {
			out = append(out, item.Public())
		}
	}
	sortByDateDesc(out, collection.DateField())

	s.log.Debugw("Listed collection", "collection", collection, "userID", userID, "total", len(stored), "matched", len(out))
	return out, nil
}

// matches проверяет точный фильтр и регистронезависимый поиск подстроки.
func matches(item domain.Item, collection domain.Collection, filter domain.ListFilter) bool {
	if filter.Equals != "" && item.String(collection.FilterField()) != filter.Equals {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(filter.Query))
	if q == "" {
		return true
	}
	for _, field := range collection.SearchFields() {
		if strings.Contains(strings.ToLower(item.String(field)), q) {
			return true
		}
	}
	return false
}

// sortByDateDesc сортирует по строковому значению поля даты, по убыванию.
func sortByDateDesc(items []domain.Item, field string) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].String(field) > items[j].String(field)
	})
}

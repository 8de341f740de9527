// Package memory - хранилище в памяти для локального запуска и тестов.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Dhoini/job-tracker/internal/domain"
	"github.com/Dhoini/job-tracker/internal/repository"
)

type itemKey struct {
	collection domain.Collection
	userID     string
}

type storedItem struct {
	data      domain.Item
	createdAt time.Time
	updatedAt time.Time
}

// Store реализует все репозитории в памяти под одним RWMutex.
type Store struct {
	mutex    sync.RWMutex
	users    map[string]domain.User
	billing  map[string]map[string]any // userID -> сырой JSON Billing для слияния ключей
	profiles map[string]domain.Profile
	items    map[itemKey]map[string]storedItem
	events   map[string]domain.BillingEvent
}

// NewStore создает пустое хранилище.
func NewStore() *Store {
	return &Store{
		users:    make(map[string]domain.User),
		billing:  make(map[string]map[string]any),
		profiles: make(map[string]domain.Profile),
		items:    make(map[itemKey]map[string]storedItem),
		events:   make(map[string]domain.BillingEvent),
	}
}

// Repositories возвращает набор репозиториев поверх хранилища.
func (s *Store) Repositories() *repository.Store {
	return &repository.Store{
		Users:    (*userRepo)(s),
		Profiles: (*profileRepo)(s),
		Items:    (*itemRepo)(s),
		Events:   (*eventRepo)(s),
	}
}

type userRepo Store

var _ repository.UserRepository = (*userRepo)(nil)

func (r *userRepo) Get(ctx context.Context, id string) (*domain.User, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return (*Store)(r).userLocked(id)
}

func (r *userRepo) Ensure(ctx context.Context, id, email string, defaults domain.Billing) (*domain.User, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	s := (*Store)(r)
	u, ok := s.users[id]
	if !ok {
		now := time.Now().UTC()
		u = domain.User{ID: id, Email: email, CreatedAt: now, UpdatedAt: now}
		s.users[id] = u
		if err := s.mergeBillingLocked(id, defaults); err != nil {
			return nil, err
		}
	} else if u.Email == "" && email != "" {
		u.Email = email
		s.users[id] = u
	}
	return s.userLocked(id)
}

func (r *userRepo) UpsertIdentity(ctx context.Context, identity domain.UserIdentity, defaults domain.Billing, loginAt time.Time) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	s := (*Store)(r)
	u, ok := s.users[identity.ID]
	if !ok {
		u = domain.User{ID: identity.ID, CreatedAt: loginAt}
		if err := s.mergeBillingLocked(identity.ID, defaults); err != nil {
			return err
		}
	}
	u.Email = identity.Email
	if identity.Name != "" {
		u.Name = identity.Name
	}
	if identity.Picture != "" {
		u.Picture = identity.Picture
	}
	login := loginAt
	u.LastLoginAt = &login
	u.UpdatedAt = loginAt
	s.users[identity.ID] = u
	return nil
}

func (r *userRepo) MergeBilling(ctx context.Context, userID string, billing domain.Billing) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	s := (*Store)(r)
	if _, ok := s.users[userID]; !ok {
		now := time.Now().UTC()
		s.users[userID] = domain.User{ID: userID, CreatedAt: now, UpdatedAt: now}
	}
	return s.mergeBillingLocked(userID, billing)
}

func (r *userRepo) SetCustomer(ctx context.Context, userID, customerID string, pending domain.Plan) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	s := (*Store)(r)
	if _, ok := s.users[userID]; !ok {
		return domain.ErrNotFound.With("users.SetCustomer")
	}
	doc := s.billing[userID]
	if doc == nil {
		doc = map[string]any{}
		s.billing[userID] = doc
	}
	doc["customerId"] = customerID
	doc["pendingPlan"] = string(pending)
	return nil
}

func (r *userRepo) FindByCustomerID(ctx context.Context, customerID string) (*domain.User, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if customerID == "" {
		return nil, domain.ErrNotFound
	}
	s := (*Store)(r)
	ids := make([]string, 0, len(s.billing))
	for id := range s.billing {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if s.billing[id]["customerId"] == customerID {
			return s.userLocked(id)
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) userLocked(id string) (*domain.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if doc := s.billing[id]; doc != nil {
		raw, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("encode billing: %w", err)
		}
		if err := json.Unmarshal(raw, &u.Billing); err != nil {
			return nil, fmt.Errorf("decode billing: %w", err)
		}
	}
	return &u, nil
}

// mergeBillingLocked повторяет JSONB-слияние: ключи записи перезаписывают сохраненные.
func (s *Store) mergeBillingLocked(userID string, billing domain.Billing) error {
	raw, err := json.Marshal(billing)
	if err != nil {
		return fmt.Errorf("encode billing: %w", err)
	}
	var patch map[string]any
	if err := json.Unmarshal(raw, &patch); err != nil {
		return fmt.Errorf("decode billing: %w", err)
	}
	doc := s.billing[userID]
	if doc == nil {
		doc = map[string]any{}
		s.billing[userID] = doc
	}
	for k, v := range patch {
		doc[k] = v
	}
	return nil
}

type profileRepo Store

var _ repository.ProfileRepository = (*profileRepo)(nil)

func (r *profileRepo) Get(ctx context.Context, userID string) (domain.Profile, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	p, ok := r.profiles[userID]
	if !ok {
		return nil, nil
	}
	return cloneMap(p), nil
}

func (r *profileRepo) Merge(ctx context.Context, userID string, profile domain.Profile, updatedAt time.Time) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	p := r.profiles[userID]
	if p == nil {
		p = domain.Profile{}
	}
	for k, v := range profile {
		p[k] = v
	}
	p[domain.FieldUpdatedAt] = updatedAt.UTC().Format(time.RFC3339Nano)
	r.profiles[userID] = p
	return nil
}

type itemRepo Store

var _ repository.ItemRepository = (*itemRepo)(nil)

func (r *itemRepo) ListIDs(ctx context.Context, collection domain.Collection, userID string) ([]string, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	stored := r.items[itemKey{collection, userID}]
	ids := make([]string, 0, len(stored))
	for id := range stored {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *itemRepo) List(ctx context.Context, collection domain.Collection, userID string) ([]domain.Item, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	stored := r.items[itemKey{collection, userID}]
	ids := make([]string, 0, len(stored))
	for id := range stored {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	items := make([]domain.Item, 0, len(ids))
	for _, id := range ids {
		si := stored[id]
		item := domain.Item(cloneMap(si.data))
		item[domain.FieldID] = id
		item[domain.FieldUserID] = userID
		item[domain.FieldCreatedAt] = si.createdAt.UTC().Format(time.RFC3339Nano)
		item[domain.FieldUpdatedAt] = si.updatedAt.UTC().Format(time.RFC3339Nano)
		items = append(items, item)
	}
	return items, nil
}

func (r *itemRepo) ApplyBatch(ctx context.Context, collection domain.Collection, userID string, ops []repository.Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()

	key := itemKey{collection, userID}
	stored := r.items[key]
	// Работаем с копией, чтобы пакет применился целиком или не применился вовсе
	next := make(map[string]storedItem, len(stored)+len(ops))
	for id, si := range stored {
		next[id] = si
	}
	for _, op := range ops {
		switch op.Kind {
		case repository.OpUpsert:
			si := next[op.ID]
			merged := cloneMap(si.data)
			if merged == nil {
				merged = map[string]any{}
			}
			for k, v := range op.Data {
				merged[k] = v
			}
			next[op.ID] = storedItem{data: merged, createdAt: op.CreatedAt, updatedAt: op.UpdatedAt}
		case repository.OpDelete:
			delete(next, op.ID)
		default:
			return fmt.Errorf("unknown op kind %d", op.Kind)
		}
	}
	r.items[key] = next
	return nil
}

type eventRepo Store

var _ repository.BillingEventRepository = (*eventRepo)(nil)

func (r *eventRepo) Record(ctx context.Context, event *domain.BillingEvent) (bool, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if existing, ok := r.events[event.ID]; ok {
		existing.ReceivedAt = event.ReceivedAt
		r.events[event.ID] = existing
		return existing.Status == domain.BillingEventProcessed || existing.Status == domain.BillingEventIgnored, nil
	}
	ev := *event
	ev.Status = domain.BillingEventPending
	r.events[event.ID] = ev
	return false, nil
}

func (r *eventRepo) Finish(ctx context.Context, eventID string, status domain.BillingEventStatus, userID, errMsg string, at time.Time) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	ev, ok := r.events[eventID]
	if !ok {
		return domain.ErrNotFound.With("events.Finish")
	}
	ev.Status = status
	ev.UserID = userID
	ev.ErrorMessage = errMsg
	processed := at
	ev.ProcessedAt = &processed
	r.events[eventID] = ev
	return nil
}

// Event возвращает сохраненное событие (для тестов и отладки).
func (s *Store) Event(id string) (domain.BillingEvent, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	ev, ok := s.events[id]
	return ev, ok
}

func cloneMap[M ~map[string]any](m M) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

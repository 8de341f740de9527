package repository

import (
	"context"
	"time"

	"github.com/Dhoini/job-tracker/internal/domain"
)

// UserRepository хранит пользователей и их запись Billing.
type UserRepository interface {
	// Get возвращает пользователя или domain.ErrNotFound.
	Get(ctx context.Context, id string) (*domain.User, error)
	// Ensure возвращает пользователя, создавая его с Billing по умолчанию при первом обращении.
	Ensure(ctx context.Context, id, email string, defaults domain.Billing) (*domain.User, error)
	// UpsertIdentity создает или обновляет email, имя и аватар, отмечая время входа.
	UpsertIdentity(ctx context.Context, identity domain.UserIdentity, defaults domain.Billing, loginAt time.Time) error
	// MergeBilling сливает ключи записи в сохраненный Billing (остальные ключи сохраняются).
	MergeBilling(ctx context.Context, userID string, billing domain.Billing) error
	// SetCustomer сохраняет ID клиента Stripe и выбранный тариф.
	SetCustomer(ctx context.Context, userID, customerID string, pending domain.Plan) error
	// FindByCustomerID ищет пользователя по billing.customerId или возвращает domain.ErrNotFound.
	FindByCustomerID(ctx context.Context, customerID string) (*domain.User, error)
}

// ProfileRepository хранит профиль пользователя.
type ProfileRepository interface {
	// Get возвращает профиль или nil, если его нет.
	Get(ctx context.Context, userID string) (domain.Profile, error)
	// Merge сливает ключи верхнего уровня и проставляет updatedAt.
	Merge(ctx context.Context, userID string, profile domain.Profile, updatedAt time.Time) error
}

// OpKind тип операции пакета синхронизации.
type OpKind int

const (
	OpUpsert OpKind = iota
	OpDelete
)

func (k OpKind) String() string {
	if k == OpDelete {
		return "delete"
	}
	return "upsert"
}

// Op - одна операция записи в коллекцию.
type Op struct {
	Kind      OpKind
	ID        string
	Data      domain.Item // для upsert - содержимое без служебных полей
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ItemRepository хранит записи коллекций.
type ItemRepository interface {
	// ListIDs возвращает идентификаторы сохраненных записей пользователя.
	ListIDs(ctx context.Context, collection domain.Collection, userID string) ([]string, error)
	// List возвращает записи пользователя вместе со служебными полями.
	List(ctx context.Context, collection domain.Collection, userID string) ([]domain.Item, error)
	// ApplyBatch применяет операции атомарно: либо все, либо ни одной.
	// Upsert сливает поля с существующей записью.
	ApplyBatch(ctx context.Context, collection domain.Collection, userID string, ops []Op) error
}

// BillingEventRepository - журнал входящих вебхуков.
type BillingEventRepository interface {
	// Record сохраняет событие. processed=true, если событие с таким ID уже обработано.
	Record(ctx context.Context, event *domain.BillingEvent) (processed bool, err error)
	// Finish отмечает результат обработки.
	Finish(ctx context.Context, eventID string, status domain.BillingEventStatus, userID, errMsg string, at time.Time) error
}

// WorkspaceCache кэширует агрегированное представление пользователя.
type WorkspaceCache interface {
	Get(ctx context.Context, userID string) ([]byte, error) // nil, nil при промахе
	Set(ctx context.Context, userID string, data []byte) error
	Invalidate(ctx context.Context, userID string) error
}

// Store объединяет репозитории одного хранилища.
type Store struct {
	Users    UserRepository
	Profiles ProfileRepository
	Items    ItemRepository
	Events   BillingEventRepository
}

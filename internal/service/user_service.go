package service

import (
	"context"
	"time"

	"github.com/Dhoini/job-tracker/internal/domain"
	"github.com/Dhoini/job-tracker/internal/repository"
	"github.com/Dhoini/job-tracker/pkg/logger"
)

// UserService интерфейс сервиса пользователей и профилей
type UserService interface {
	// UpsertUser создает или обновляет пользователя при входе.
	UpsertUser(ctx context.Context, identity domain.UserIdentity) error
	// GetProfile возвращает профиль или nil.
	GetProfile(ctx context.Context, userID string) (domain.Profile, error)
	// PutProfile сливает профиль с сохраненным.
	PutProfile(ctx context.Context, userID string, profile domain.Profile) error
}

type userService struct {
	users    repository.UserRepository
	profiles repository.ProfileRepository
	cache    repository.WorkspaceCache
	now      func() time.Time
	log      *logger.Logger
}

// NewUserService создает новый сервис пользователей
func NewUserService(users repository.UserRepository, profiles repository.ProfileRepository, cache repository.WorkspaceCache, log *logger.Logger) UserService {
	return &userService{users: users, profiles: profiles, cache: cache, now: time.Now, log: log.Named("users")}
}

func (s *userService) UpsertUser(ctx context.Context, identity domain.UserIdentity) error {
	const op = "users.Upsert"
	if identity.ID == "" || identity.Email == "" {
		return domain.Validation(op, "user.id and user.email are required")
	}

	now := s.now().UTC()
	defaults := domain.DefaultBilling(now.Format(time.RFC3339))
	if err := s.users.UpsertIdentity(ctx, identity, defaults, now); err != nil {
		return domain.Internal(op, err)
	}

	s.log.Infow("User upserted", "userID", identity.ID)
	return nil
}

func (s *userService) GetProfile(ctx context.Context, userID string) (domain.Profile, error) {
	const op = "profile.Get"
	if userID == "" {
		return nil, domain.Validation(op, "userId is required")
	}
	p, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return nil, domain.Internal(op, err)
	}
	return p, nil
}

func (s *userService) PutProfile(ctx context.Context, userID string, profile domain.Profile) error {
	const op = "profile.Put"
	if userID == "" {
		return domain.Validation(op, "userId is required")
	}
	if profile == nil {
		return domain.Validation(op, "profile is required")
	}

	if err := s.profiles.Merge(ctx, userID, profile, s.now().UTC()); err != nil {
		return domain.Internal(op, err)
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, userID); err != nil {
			s.log.Warnw("Failed to invalidate workspace cache", "userID", userID, "error", err)
		}
	}

	s.log.Debugw("Profile saved", "userID", userID, "keys", len(profile))
	return nil
}

package service

import (
	"context"
	"encoding/json"

	"golang.org/x/sync/errgroup"

	"github.com/Dhoini/job-tracker/internal/domain"
	"github.com/Dhoini/job-tracker/internal/repository"
	"github.com/Dhoini/job-tracker/pkg/logger"
)

// Workspace - агрегированное состояние дашборда пользователя.
type Workspace struct {
	Profile      domain.Profile `json:"profile"`
	Applications []domain.Item  `json:"applications"`
	Documents    []domain.Item  `json:"documents"`
}

// WorkspaceService отдает профиль и обе коллекции одним запросом.
type WorkspaceService interface {
	Get(ctx context.Context, userID string) (*Workspace, error)
}

type workspaceService struct {
	profiles repository.ProfileRepository
	items    repository.ItemRepository
	cache    repository.WorkspaceCache
	log      *logger.Logger
}

// NewWorkspaceService создает сервис. cache может быть nil.
func NewWorkspaceService(profiles repository.ProfileRepository, items repository.ItemRepository, cache repository.WorkspaceCache, log *logger.Logger) WorkspaceService {
	return &workspaceService{profiles: profiles, items: items, cache: cache, log: log.Named("workspace")}
}

func (s *workspaceService) Get(ctx context.Context, userID string) (*Workspace, error) {
	const op = "workspace.Get"
	if userID == "" {
		return nil, domain.Validation(op, "userId is required")
	}

	if ws := s.cached(ctx, userID); ws != nil {
		return ws, nil
	}

	ws := &Workspace{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.profiles.Get(gctx, userID)
		ws.Profile = p
		return err
	})
	g.Go(func() error {
		items, err := s.publicItems(gctx, domain.CollectionApplications, userID)
		ws.Applications = items
		return err
	})
	g.Go(func() error {
		items, err := s.publicItems(gctx, domain.CollectionDocuments, userID)
		ws.Documents = items
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, domain.Internal(op, err)
	}

	s.store(ctx, userID, ws)
	return ws, nil
}

func (s *workspaceService) publicItems(ctx context.Context, collection domain.Collection, userID string) ([]domain.Item, error) {
	stored, err := s.items.List(ctx, collection, userID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Item, 0, len(stored))
	for _, item := range stored {
		out = append(out, item.Public())
	}
	sortByDateDesc(out, collection.DateField())
	return out, nil
}

// cached возвращает nil при промахе или любой ошибке кэша.
func (s *workspaceService) cached(ctx context.Context, userID string) *Workspace {
	if s.cache == nil {
		return nil
	}
	data, err := s.cache.Get(ctx, userID)
	if err != nil {
		s.log.Warnw("Workspace cache read failed", "userID", userID, "error", err)
		return nil
	}
	if data == nil {
		return nil
	}
	var ws Workspace
	if err := json.Unmarshal(data, &ws); err != nil {
		s.log.Warnw("Dropping malformed workspace cache entry", "userID", userID, "error", err)
		return nil
	}
	s.log.Debugw("Workspace served from cache", "userID", userID)
	return &ws
}

func (s *workspaceService) store(ctx context.Context, userID string, ws *Workspace) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(ws)
	if err != nil {
		s.log.Warnw("Failed to encode workspace for cache", "userID", userID, "error", err)
		return
	}
	if err := s.cache.Set(ctx, userID, data); err != nil {
		s.log.Warnw("Workspace cache write failed", "userID", userID, "error", err)
	}
}

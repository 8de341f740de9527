package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dhoini/job-tracker/internal/domain"
	"github.com/Dhoini/job-tracker/internal/repository"
	"github.com/Dhoini/job-tracker/internal/repository/memory"
	"github.com/Dhoini/job-tracker/pkg/logger"
)

type collectionFixture struct {
	store     *repository.Store
	cache     *mapCache
	publisher *recordingPublisher
	svc       CollectionService
	workspace WorkspaceService
	users     UserService
}

func newCollectionFixture() *collectionFixture {
	store := memory.NewStore().Repositories()
	cache := newMapCache()
	pub := &recordingPublisher{}
	rec := NewReconciler(store.Items, 0, fixedClock, nil, logger.Nop())
	return &collectionFixture{
		store:     store,
		cache:     cache,
		publisher: pub,
		svc:       NewCollectionService(rec, store.Items, cache, pub, logger.Nop()),
		workspace: NewWorkspaceService(store.Profiles, store.Items, cache, logger.Nop()),
		users:     NewUserService(store.Users, store.Profiles, cache, logger.Nop()),
	}
}

func TestCollectionSyncInvalidatesAndPublishes(t *testing.T) {
	f := newCollectionFixture()

	n, err := f.svc.Sync(context.Background(), domain.CollectionDocuments, "u1", []domain.Item{
		{"id": "d1", "name": "Resume.pdf"},
		{"name": "no id"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"u1"}, f.cache.invalidated)

	require.Len(t, f.publisher.synced, 1)
	ev := f.publisher.synced[0]
	assert.Equal(t, domain.CollectionDocuments, ev.Collection)
	assert.Equal(t, 1, ev.Count)
}

func TestCollectionSyncRejectsBadInput(t *testing.T) {
	f := newCollectionFixture()

	_, err := f.svc.Sync(context.Background(), domain.Collection("notes"), "u1", nil)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	_, err = f.svc.Sync(context.Background(), domain.CollectionApplications, "", nil)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestCollectionListFilters(t *testing.T) {
	f := newCollectionFixture()
	ctx := context.Background()

	_, err := f.svc.Sync(ctx, domain.CollectionApplications, "u1", []domain.Item{
		{"id": "a1", "title": "Backend Engineer", "company": "Acme", "status": "Applied", "dateCreated": "2024-01-01"},
		{"id": "a2", "title": "Go Developer", "company": "ACME Labs", "status": "Applied", "dateCreated": "2024-03-01"},
		{"id": "a3", "title": "SRE", "company": "Globex", "status": "Rejected", "dateCreated": "2024-02-01"},
	})
	require.NoError(t, err)

	all, err := f.svc.List(ctx, domain.CollectionApplications, "u1", domain.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a2", all[0].ID())
	assert.NotContains(t, all[0], domain.FieldUserID)
	assert.NotContains(t, all[0], domain.FieldUpdatedAt)

	applied, err := f.svc.List(ctx, domain.CollectionApplications, "u1", domain.ListFilter{Equals: "Applied", Query: "acme"})
	require.NoError(t, err)
	assert.Len(t, applied, 2)

	byTitle, err := f.svc.List(ctx, domain.CollectionApplications, "u1", domain.ListFilter{Query: "sre"})
	require.NoError(t, err)
	require.Len(t, byTitle, 1)
	assert.Equal(t, "a3", byTitle[0].ID())
}

func TestWorkspaceAggregatesAndCaches(t *testing.T) {
	f := newCollectionFixture()
	ctx := context.Background()

	require.NoError(t, f.users.PutProfile(ctx, "u1", domain.Profile{"headline": "Go developer"}))
	_, err := f.svc.Sync(ctx, domain.CollectionApplications, "u1", []domain.Item{
		{"id": "a1", "dateCreated": "2024-01-01"},
		{"id": "a2", "dateCreated": "2024-05-01"},
	})
	require.NoError(t, err)

	ws, err := f.workspace.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Go developer", ws.Profile["headline"])
	require.Len(t, ws.Applications, 2)
	assert.Equal(t, "a2", ws.Applications[0].ID())
	assert.NotContains(t, ws.Applications[0], domain.FieldCreatedAt)
	assert.NotNil(t, ws.Documents)
	assert.Empty(t, ws.Documents)

	// второй запрос - из кэша
	_, err = f.workspace.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, f.cache.hits)

	// синхронизация сбрасывает кэш
	_, err = f.svc.Sync(ctx, domain.CollectionApplications, "u1", nil)
	require.NoError(t, err)
	ws, err = f.workspace.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, ws.Applications)
}

func TestWorkspaceWithoutProfile(t *testing.T) {
	f := newCollectionFixture()

	ws, err := f.workspace.Get(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, ws.Profile)
}

func TestUpsertUserRequiresIdentity(t *testing.T) {
	f := newCollectionFixture()
	ctx := context.Background()

	err := f.users.UpsertUser(ctx, domain.UserIdentity{ID: "u1"})
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	require.NoError(t, f.users.UpsertUser(ctx, domain.UserIdentity{ID: "u1", Email: "u1@example.com", Name: "Ann"}))
	u, err := f.store.Users.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1@example.com", u.Email)
	assert.Equal(t, domain.PlanFree, u.Billing.Plan)
	assert.NotNil(t, u.LastLoginAt)
}

func TestPutProfileMerges(t *testing.T) {
	f := newCollectionFixture()
	ctx := context.Background()

	require.NoError(t, f.users.PutProfile(ctx, "u1", domain.Profile{"headline": "a", "city": "Riga"}))
	require.NoError(t, f.users.PutProfile(ctx, "u1", domain.Profile{"headline": "b"}))

	p, err := f.users.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "b", p["headline"])
	assert.Equal(t, "Riga", p["city"])
	assert.Contains(t, p, domain.FieldUpdatedAt)

	err = f.users.PutProfile(ctx, "u1", nil)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dhoini/job-tracker/internal/domain"
)

func TestGetUserNotFound(t *testing.T) {
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()

	repo, err := NewUserRepository(pool)
	require.NoError(t, err)

	pool.ExpectQuery("FROM users WHERE id").WithArgs("missing").WillReturnError(pgx.ErrNoRows)

	_, err = repo.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestFindByCustomerIDEmptyShortCircuits(t *testing.T) {
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()

	repo, err := NewUserRepository(pool)
	require.NoError(t, err)

	_, err = repo.FindByCustomerID(context.Background(), "")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestMergeBillingWritesFullRecord(t *testing.T) {
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()

	repo, err := NewUserRepository(pool)
	require.NoError(t, err)

	billing := domain.Billing{
		Plan:           domain.PlanPro,
		Status:         domain.StatusCanceled,
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
		UpdatedAt:      "2024-03-01T12:00:00Z",
	}
	want := `{"plan":"pro","status":"canceled","customerId":"cus_1","subscriptionId":"sub_1",` +
		`"cancelAtPeriodEnd":false,"renewsAt":null,"canceledAt":null,"updatedAt":"2024-03-01T12:00:00Z"}`

	pool.ExpectExec("INSERT INTO users").WithArgs("u1", want).WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.MergeBilling(context.Background(), "u1", billing))
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestSetCustomerMissingUser(t *testing.T) {
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()

	repo, err := NewUserRepository(pool)
	require.NoError(t, err)

	pool.ExpectExec("UPDATE users").WithArgs("u1", "cus_1", "team").WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = repo.SetCustomer(context.Background(), "u1", "cus_1", domain.PlanTeam)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestUpsertIdentity(t *testing.T) {
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()

	repo, err := NewUserRepository(pool)
	require.NoError(t, err)

	login := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	identity := domain.UserIdentity{ID: "u1", Email: "a@b.c", Name: "Ann"}
	defaults := domain.DefaultBilling("2024-03-01T12:00:00Z")

	pool.ExpectExec("INSERT INTO users").
		WithArgs("u1", "a@b.c", "Ann", "", pgxmock.AnyArg(), login).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.UpsertIdentity(context.Background(), identity, defaults, login))
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestRecordEventReportsProcessedDuplicates(t *testing.T) {
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()

	repo, err := NewBillingEventRepository(pool)
	require.NoError(t, err)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	event := &domain.BillingEvent{ID: "evt_1", Type: "invoice.paid", CustomerID: "cus_1", Payload: []byte(`{}`), CreatedAt: now, ReceivedAt: now}

	pool.ExpectQuery("INSERT INTO billing_events").
		WithArgs("evt_1", "invoice.paid", "pending", "cus_1", "{}", now, now).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("pending"))
	pool.ExpectQuery("INSERT INTO billing_events").
		WithArgs("evt_1", "invoice.paid", "pending", "cus_1", "{}", now, now).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("processed"))

	processed, err := repo.Record(context.Background(), event)
	require.NoError(t, err)
	assert.False(t, processed)

	processed, err = repo.Record(context.Background(), event)
	require.NoError(t, err)
	assert.True(t, processed)
	require.NoError(t, pool.ExpectationsWereMet())
}

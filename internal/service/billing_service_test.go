package service

import (
	"context"
	"errors"
	"net/url"
	"testing"

	stripego "github.com/stripe/stripe-go/v78"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dhoini/job-tracker/internal/domain"
	"github.com/Dhoini/job-tracker/internal/repository"
	"github.com/Dhoini/job-tracker/internal/repository/memory"
	"github.com/Dhoini/job-tracker/pkg/logger"
)

type billingFixture struct {
	mem       *memory.Store
	store     *repository.Store
	stripe    *fakeStripe
	publisher *recordingPublisher
	svc       BillingService
}

func newBillingFixture(cfg BillingConfig) *billingFixture {
	mem := memory.NewStore()
	store := mem.Repositories()
	fs := newFakeStripe()
	pub := &recordingPublisher{}
	svc := NewBillingService(store.Users, store.Events, fs, testMapper(), pub, nil, cfg, logger.Nop())
	svc.(*billingService).now = fixedClock
	return &billingFixture{mem: mem, store: store, stripe: fs, publisher: pub, svc: svc}
}

// withCustomer заводит пользователя с клиентом Stripe и платным Billing.
func (f *billingFixture) withCustomer(t *testing.T, userID, customerID string, billing domain.Billing) {
	t.Helper()
	ctx := context.Background()
	_, err := f.store.Users.Ensure(ctx, userID, userID+"@example.com", domain.DefaultBilling("2024-01-01T00:00:00Z"))
	require.NoError(t, err)
	billing.CustomerID = customerID
	require.NoError(t, f.store.Users.MergeBilling(ctx, userID, billing))
}

func (f *billingFixture) billing(t *testing.T, userID string) domain.Billing {
	t.Helper()
	u, err := f.store.Users.Get(context.Background(), userID)
	require.NoError(t, err)
	return u.Billing
}

func TestStatusCreatesUserWithDefaults(t *testing.T) {
	f := newBillingFixture(BillingConfig{})

	b, err := f.svc.Status(context.Background(), "u1", "u1@example.com", false)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanFree, b.Plan)
	assert.Equal(t, domain.StatusActive, b.Status)

	u, err := f.store.Users.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1@example.com", u.Email)
}

func TestStatusRefreshResyncs(t *testing.T) {
	f := newBillingFixture(BillingConfig{})
	f.withCustomer(t, "u1", "cus_1", domain.Billing{Plan: domain.PlanFree, Status: domain.StatusActive})
	f.stripe.addSubscription(subscription("sub_1", "cus_1", stripego.SubscriptionStatusActive, "price_team_1", 100))

	b, err := f.svc.Status(context.Background(), "u1", "", true)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanTeam, b.Plan)
	assert.Equal(t, domain.PlanTeam, f.billing(t, "u1").Plan)
}

func TestCheckoutWithConfiguredPrice(t *testing.T) {
	f := newBillingFixture(BillingConfig{SuccessURL: "https://app/ok", CancelURL: "https://app/no"})

	got, err := f.svc.Checkout(context.Background(), CheckoutRequest{UserID: "u1", Email: "u1@example.com", Plan: domain.PlanTeam})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.test/cus_u1/1", got)

	require.Len(t, f.stripe.checkouts, 1)
	in := f.stripe.checkouts[0]
	assert.Equal(t, "price_team_1", in.PriceID)
	assert.Equal(t, "u1", in.UserID)
	assert.Equal(t, "https://app/ok", in.SuccessURL)

	b := f.billing(t, "u1")
	assert.Equal(t, "cus_u1", b.CustomerID)
	assert.Equal(t, domain.PlanTeam, b.PendingPlan)
	assert.Equal(t, domain.PlanFree, b.Plan)
}

func TestCheckoutReusesStoredCustomer(t *testing.T) {
	f := newBillingFixture(BillingConfig{})
	f.withCustomer(t, "u1", "cus_existing", domain.Billing{Plan: domain.PlanFree, Status: domain.StatusActive})

	got, err := f.svc.Checkout(context.Background(), CheckoutRequest{UserID: "u1"})
	require.NoError(t, err)
	assert.Contains(t, got, "cus_existing")
	assert.Empty(t, f.stripe.customers)
	assert.Equal(t, domain.PlanPro, f.billing(t, "u1").PendingPlan)
}

func TestCheckoutFallsBackToPaymentLink(t *testing.T) {
	f := newBillingFixture(BillingConfig{PaymentLink: "https://buy.stripe.com/test_123"})
	f.svc.(*billingService).mapper = stripeMapperWithoutPrices()

	got, err := f.svc.Checkout(context.Background(), CheckoutRequest{UserID: "u1", Email: "a+b@example.com"})
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "buy.stripe.com", u.Host)
	assert.Equal(t, "u1", u.Query().Get("client_reference_id"))
	assert.Equal(t, "a+b@example.com", u.Query().Get("prefilled_email"))
	assert.Empty(t, f.stripe.checkouts)
}

func TestCheckoutValidation(t *testing.T) {
	f := newBillingFixture(BillingConfig{})
	ctx := context.Background()

	_, err := f.svc.Checkout(ctx, CheckoutRequest{})
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	_, err = f.svc.Checkout(ctx, CheckoutRequest{UserID: "u1", Plan: domain.PlanFree})
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	f.svc.(*billingService).mapper = stripeMapperWithoutPrices()
	_, err = f.svc.Checkout(ctx, CheckoutRequest{UserID: "u1"})
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
	assert.Empty(t, f.stripe.customers)
}

func TestCancelWithoutCustomer(t *testing.T) {
	f := newBillingFixture(BillingConfig{})
	ctx := context.Background()

	_, err := f.svc.Cancel(ctx, "ghost", true)
	assert.True(t, errors.Is(err, domain.ErrNoBillingAccount))

	_, err = f.store.Users.Ensure(ctx, "u1", "", domain.DefaultBilling(""))
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, "u1", false)
	assert.True(t, errors.Is(err, domain.ErrNoBillingAccount))
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestCancelWithoutSubscriptionSelfHeals(t *testing.T) {
	f := newBillingFixture(BillingConfig{})
	f.withCustomer(t, "u1", "cus_1", domain.Billing{Plan: domain.PlanPro, Status: domain.StatusActive, SubscriptionID: "sub_gone"})

	b, err := f.svc.Cancel(context.Background(), "u1", false)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanFree, b.Plan)
	assert.Equal(t, domain.StatusCanceled, b.Status)

	stored := f.billing(t, "u1")
	assert.Equal(t, domain.StatusCanceled, stored.Status)
	assert.Equal(t, "cus_1", stored.CustomerID)
}

func TestCancelImmediate(t *testing.T) {
	f := newBillingFixture(BillingConfig{})
	f.withCustomer(t, "u1", "cus_1", domain.Billing{Plan: domain.PlanPro, Status: domain.StatusActive})
	f.stripe.addSubscription(subscription("sub_1", "cus_1", stripego.SubscriptionStatusActive, "price_pro_1", 100))

	b, err := f.svc.Cancel(context.Background(), "u1", true)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCanceled, b.Status)
	assert.False(t, b.Entitled())
	require.NotNil(t, b.CanceledAt)
	assert.Equal(t, domain.StatusCanceled, f.billing(t, "u1").Status)

	require.Len(t, f.publisher.billing, 1)
	assert.Equal(t, sourceCancel, f.publisher.billing[0].Source)
}

func TestCancelAtPeriodEnd(t *testing.T) {
	f := newBillingFixture(BillingConfig{})
	f.withCustomer(t, "u1", "cus_1", domain.Billing{Plan: domain.PlanPro, Status: domain.StatusActive})
	f.stripe.addSubscription(subscription("sub_1", "cus_1", stripego.SubscriptionStatusActive, "price_pro_1", 100))

	b, err := f.svc.Cancel(context.Background(), "u1", false)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, b.Status)
	assert.True(t, b.CancelAtPeriodEnd)
	assert.True(t, f.billing(t, "u1").CancelAtPeriodEnd)
}

func TestReactivateCanceledSubscriptionMakesNoWrite(t *testing.T) {
	f := newBillingFixture(BillingConfig{})
	before := domain.Billing{Plan: domain.PlanPro, Status: domain.StatusActive, UpdatedAt: "2024-01-01T00:00:00Z"}
	f.withCustomer(t, "u1", "cus_1", before)
	f.stripe.addSubscription(subscription("sub_1", "cus_1", stripego.SubscriptionStatusCanceled, "price_pro_1", 100))

	_, err := f.svc.Reactivate(context.Background(), "u1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSubscriptionCanceled))
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))

	assert.Zero(t, f.stripe.mutations)
	assert.Empty(t, f.publisher.billing)
	after := f.billing(t, "u1")
	assert.Equal(t, domain.StatusActive, after.Status)
	assert.Equal(t, "2024-01-01T00:00:00Z", after.UpdatedAt)
}

func TestReactivateWithoutSubscription(t *testing.T) {
	f := newBillingFixture(BillingConfig{})
	f.withCustomer(t, "u1", "cus_1", domain.Billing{Plan: domain.PlanPro, Status: domain.StatusActive})

	_, err := f.svc.Reactivate(context.Background(), "u1")
	assert.True(t, errors.Is(err, domain.ErrNoSubscription))
}

func TestReactivateClearsScheduledCancellation(t *testing.T) {
	f := newBillingFixture(BillingConfig{})
	f.withCustomer(t, "u1", "cus_1", domain.Billing{Plan: domain.PlanTeam, Status: domain.StatusActive, CancelAtPeriodEnd: true})
	sub := subscription("sub_1", "cus_1", stripego.SubscriptionStatusActive, "price_team_1", 100)
	sub.CancelAtPeriodEnd = true
	f.stripe.addSubscription(sub)

	b, err := f.svc.Reactivate(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, b.CancelAtPeriodEnd)
	assert.Equal(t, domain.PlanTeam, b.Plan)
	assert.False(t, f.billing(t, "u1").CancelAtPeriodEnd)
}

func TestFallbackPlanPrefersPendingPaidTier(t *testing.T) {
	assert.Equal(t, domain.PlanTeam, fallbackPlan(domain.Billing{Plan: domain.PlanFree, PendingPlan: domain.PlanTeam}))
	assert.Equal(t, domain.PlanPro, fallbackPlan(domain.Billing{Plan: domain.PlanPro}))
}

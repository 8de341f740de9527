package service

import (
	"context"
	"errors"
	"net/url"
	"time"

	stripego "github.com/stripe/stripe-go/v78"

	"github.com/Dhoini/job-tracker/internal/domain"
	"github.com/Dhoini/job-tracker/internal/integration/stripe"
	"github.com/Dhoini/job-tracker/internal/kafka"
	"github.com/Dhoini/job-tracker/internal/metrics"
	"github.com/Dhoini/job-tracker/internal/repository"
	"github.com/Dhoini/job-tracker/pkg/logger"
)

// Источники изменения Billing для событий и метрик.
const (
	sourceCheckout   = "checkout"
	sourceRefresh    = "refresh"
	sourceCancel     = "cancel"
	sourceReactivate = "reactivate"
	sourceWebhook    = "webhook"
)

// CheckoutRequest - запрос на оформление подписки.
type CheckoutRequest struct {
	UserID string
	Email  string
	Name   string
	Plan   domain.Plan // пусто - pro
}

// BillingConfig - адреса, используемые при оформлении.
type BillingConfig struct {
	PaymentLink string
	SuccessURL  string
	CancelURL   string
}

// BillingService интерфейс сервиса подписок пользователя
type BillingService interface {
	Checkout(ctx context.Context, req CheckoutRequest) (string, error)
	Status(ctx context.Context, userID, email string, refresh bool) (domain.Billing, error)
	Cancel(ctx context.Context, userID string, immediate bool) (domain.Billing, error)
	Reactivate(ctx context.Context, userID string) (domain.Billing, error)
	// HandleEvent обрабатывает проверенное событие Stripe; payload - исходное тело запроса.
	HandleEvent(ctx context.Context, event stripego.Event, payload []byte) error
}

type billingService struct {
	users     repository.UserRepository
	events    repository.BillingEventRepository
	stripe    stripe.Client
	mapper    *stripe.Mapper
	publisher kafka.Publisher
	metrics   metrics.BillingMetrics
	cfg       BillingConfig
	now       func() time.Time
	log       *logger.Logger
}

// NewBillingService создает новый сервис биллинга
func NewBillingService(
	users repository.UserRepository,
	events repository.BillingEventRepository,
	client stripe.Client,
	mapper *stripe.Mapper,
	publisher kafka.Publisher,
	m metrics.BillingMetrics,
	cfg BillingConfig,
	log *logger.Logger,
) BillingService {
	if publisher == nil {
		publisher = kafka.NopPublisher{}
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &billingService{
		users:     users,
		events:    events,
		stripe:    client,
		mapper:    mapper,
		publisher: publisher,
		metrics:   m,
		cfg:       cfg,
		now:       time.Now,
		log:       log.Named("billing"),
	}
}

// Checkout возвращает URL страницы оплаты выбранного тарифа.
func (s *billingService) Checkout(ctx context.Context, req CheckoutRequest) (string, error) {
	const op = "billing.Checkout"
	if req.UserID == "" {
		return "", domain.Validation(op, "userId is required")
	}
	plan := req.Plan
	if plan == "" {
		plan = domain.PlanPro
	}
	if !plan.Paid() {
		return "", domain.Validation(op, "plan must be pro or team")
	}
	price := s.mapper.PriceFor(plan)
	if price == "" && s.cfg.PaymentLink == "" {
		return "", domain.Validation(op, "no price configured for plan "+string(plan))
	}

	user, err := s.users.Ensure(ctx, req.UserID, req.Email, domain.DefaultBilling(s.mapper.Now()))
	if err != nil {
		return "", domain.Internal(op, err)
	}
	email := req.Email
	if email == "" {
		email = user.Email
	}

	customerID := user.Billing.CustomerID
	if customerID == "" {
		customerID, err = s.stripe.FindOrCreateCustomer(ctx, stripe.CustomerInput{UserID: req.UserID, Email: email, Name: req.Name})
		if err != nil {
			return "", domain.Internal(op, err)
		}
	}
	if err := s.users.SetCustomer(ctx, req.UserID, customerID, plan); err != nil {
		return "", domain.Internal(op, err)
	}

	if price == "" {
		s.log.Infow("No price for plan, using payment link", "userID", req.UserID, "plan", plan)
		return paymentLinkURL(s.cfg.PaymentLink, req.UserID, email)
	}

	checkoutURL, err := s.stripe.CreateCheckoutSession(ctx, stripe.CheckoutInput{
		CustomerID: customerID,
		UserID:     req.UserID,
		PriceID:    price,
		Plan:       string(plan),
		SuccessURL: s.cfg.SuccessURL,
		CancelURL:  s.cfg.CancelURL,
	})
	if err != nil {
		return "", domain.Internal(op, err)
	}

	s.metrics.IncBillingUpdate(sourceCheckout, "pending")
	s.log.Infow("Checkout session created", "userID", req.UserID, "customerID", customerID, "plan", plan)
	return checkoutURL, nil
}

func paymentLinkURL(link, userID, email string) (string, error) {
	u, err := url.Parse(link)
	if err != nil {
		return "", domain.Internal("billing.Checkout", err)
	}
	q := u.Query()
	q.Set("client_reference_id", userID)
	if email != "" {
		q.Set("prefilled_email", email)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Status возвращает текущий Billing, при refresh - после сверки со Stripe.
func (s *billingService) Status(ctx context.Context, userID, email string, refresh bool) (domain.Billing, error) {
	const op = "billing.Status"
	if userID == "" {
		return domain.Billing{}, domain.Validation(op, "userId is required")
	}

	user, err := s.users.Ensure(ctx, userID, email, domain.DefaultBilling(s.mapper.Now()))
	if err != nil {
		return domain.Billing{}, domain.Internal(op, err)
	}
	if !refresh || user.Billing.CustomerID == "" {
		return user.Billing, nil
	}

	record, err := s.syncFromProvider(ctx, userID, user.Billing.CustomerID, fallbackPlan(user.Billing), sourceRefresh, nil)
	if err != nil {
		return domain.Billing{}, domain.Internal(op, err)
	}
	record.PendingPlan = user.Billing.PendingPlan
	return record, nil
}

// Cancel отменяет подписку сразу или в конце оплаченного периода.
// Если подписки нет, локальная запись переводится в free/canceled.
func (s *billingService) Cancel(ctx context.Context, userID string, immediate bool) (domain.Billing, error) {
	const op = "billing.Cancel"
	user, err := s.billingAccount(ctx, op, userID)
	if err != nil {
		return domain.Billing{}, err
	}
	customerID := user.Billing.CustomerID

	latest, err := stripe.LatestSubscriptionFor(ctx, s.stripe, customerID)
	if err != nil {
		return domain.Billing{}, domain.Internal(op, err)
	}

	var record domain.Billing
	switch {
	case latest == nil:
		s.log.Warnw("No subscription on file, marking billing canceled", "userID", userID, "customerID", customerID)
		record = s.mapper.CanceledRecord(customerID)
	case stripe.MapStatus(latest.Status) == domain.StatusCanceled:
		// уже отменена в Stripe, повторный запрос вернул бы ошибку
		record = s.mapper.ToBillingRecord(latest, fallbackPlan(user.Billing))
	default:
		var updated *stripego.Subscription
		if immediate {
			updated, err = s.stripe.CancelSubscription(ctx, latest.ID)
		} else {
			updated, err = s.stripe.SetCancelAtPeriodEnd(ctx, latest.ID, true)
		}
		if err != nil {
			return domain.Billing{}, domain.Internal(op, err)
		}
		record = s.mapper.ToBillingRecord(updated, fallbackPlan(user.Billing))
	}

	if err := s.save(ctx, userID, record, sourceCancel); err != nil {
		return domain.Billing{}, domain.Internal(op, err)
	}
	s.log.Infow("Subscription cancel processed", "userID", userID, "immediate", immediate, "status", record.Status)
	return record, nil
}

// Reactivate снимает запланированную отмену. Полностью отмененную подписку
// вернуть нельзя: нужна новая.
func (s *billingService) Reactivate(ctx context.Context, userID string) (domain.Billing, error) {
	const op = "billing.Reactivate"
	user, err := s.billingAccount(ctx, op, userID)
	if err != nil {
		return domain.Billing{}, err
	}

	latest, err := stripe.LatestSubscriptionFor(ctx, s.stripe, user.Billing.CustomerID)
	if err != nil {
		return domain.Billing{}, domain.Internal(op, err)
	}
	if latest == nil {
		return domain.Billing{}, domain.ErrNoSubscription.With(op)
	}
	if stripe.MapStatus(latest.Status) == domain.StatusCanceled {
		s.log.Infow("Refusing to reactivate canceled subscription", "userID", userID, "subscriptionID", latest.ID)
		return domain.Billing{}, domain.ErrSubscriptionCanceled.With(op)
	}

	updated, err := s.stripe.SetCancelAtPeriodEnd(ctx, latest.ID, false)
	if err != nil {
		return domain.Billing{}, domain.Internal(op, err)
	}
	record := s.mapper.ToBillingRecord(updated, fallbackPlan(user.Billing))
	if err := s.save(ctx, userID, record, sourceReactivate); err != nil {
		return domain.Billing{}, domain.Internal(op, err)
	}
	s.log.Infow("Subscription reactivated", "userID", userID, "subscriptionID", updated.ID)
	return record, nil
}

// billingAccount возвращает пользователя с клиентом Stripe или ErrNoBillingAccount.
func (s *billingService) billingAccount(ctx context.Context, op, userID string) (*domain.User, error) {
	if userID == "" {
		return nil, domain.Validation(op, "userId is required")
	}
	user, err := s.users.Get(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNoBillingAccount.With(op)
	}
	if err != nil {
		return nil, domain.Internal(op, err)
	}
	if user.Billing.CustomerID == "" {
		return nil, domain.ErrNoBillingAccount.With(op)
	}
	return user, nil
}

// syncFromProvider пересчитывает Billing по актуальному списку подписок клиента.
// snapshot - подписка из события; используется, если список недоступен или пуст.
func (s *billingService) syncFromProvider(ctx context.Context, userID, customerID string, fallback domain.Plan, source string, snapshot *stripego.Subscription) (domain.Billing, error) {
	latest, err := stripe.LatestSubscriptionFor(ctx, s.stripe, customerID)
	if err != nil {
		if snapshot == nil {
			return domain.Billing{}, err
		}
		s.log.Warnw("Listing subscriptions failed, using event snapshot", "customerID", customerID, "error", err)
		latest = snapshot
	}
	if latest == nil {
		latest = snapshot
	}

	var record domain.Billing
	if latest == nil {
		record = s.mapper.CanceledRecord(customerID)
	} else {
		record = s.mapper.ToBillingRecord(latest, fallback)
	}
	if record.CustomerID == "" {
		record.CustomerID = customerID
	}

	if err := s.save(ctx, userID, record, source); err != nil {
		return domain.Billing{}, err
	}
	return record, nil
}

// save сливает запись в пользователя и публикует billing.updated.
func (s *billingService) save(ctx context.Context, userID string, record domain.Billing, source string) error {
	if err := s.users.MergeBilling(ctx, userID, record); err != nil {
		return err
	}
	s.metrics.IncBillingUpdate(source, string(record.Status))

	if err := s.publisher.PublishBillingUpdated(ctx, kafka.BillingUpdated{
		UserID:  userID,
		Source:  source,
		Billing: record,
		At:      s.now().UTC(),
	}); err != nil {
		s.log.Warnw("Failed to publish billing.updated", "userID", userID, "source", source, "error", err)
	}
	return nil
}

// fallbackPlan - тариф на случай, если цену подписки не удалось сопоставить.
func fallbackPlan(b domain.Billing) domain.Plan {
	if b.PendingPlan.Paid() {
		return b.PendingPlan
	}
	return b.Plan
}

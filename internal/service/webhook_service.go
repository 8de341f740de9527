package service

import (
	"context"
	"errors"
	"time"

	stripego "github.com/stripe/stripe-go/v78"

	"github.com/Dhoini/job-tracker/internal/domain"
	"github.com/Dhoini/job-tracker/internal/integration/stripe"
)

// HandleEvent применяет событие Stripe к Billing пользователя.
// Ошибка возвращается только если повтор доставки может помочь (хранилище, Stripe API):
// тогда Stripe пришлет событие снова. Неразбираемые и неатрибутируемые события подтверждаются.
func (s *billingService) HandleEvent(ctx context.Context, event stripego.Event, payload []byte) error {
	const op = "billing.HandleEvent"
	eventType := string(event.Type)
	log := s.log.With("eventID", event.ID, "eventType", eventType)

	audit := &domain.BillingEvent{
		ID:         event.ID,
		Type:       eventType,
		Status:     domain.BillingEventPending,
		Payload:    payload,
		CreatedAt:  time.Unix(event.Created, 0).UTC(),
		ReceivedAt: s.now().UTC(),
	}
	processed, err := s.events.Record(ctx, audit)
	if err != nil {
		return domain.Internal(op, err)
	}
	if processed {
		log.Infow("Duplicate webhook delivery, skipping")
		s.metrics.IncWebhook(eventType, "duplicate")
		return nil
	}

	if !stripe.Handles(eventType) {
		log.Debugw("Ignoring unhandled event type")
		return s.finish(ctx, event, domain.BillingEventIgnored, "", "unhandled event type")
	}

	ref, err := stripe.ParseEventRef(event)
	if err != nil {
		log.Warnw("Failed to parse event object", "error", err)
		return s.finish(ctx, event, domain.BillingEventFailed, "", err.Error())
	}

	user, err := s.attribute(ctx, ref)
	if err != nil {
		return domain.Internal(op, err)
	}
	if user == nil {
		log.Warnw("Webhook event could not be attributed to a user", "customerID", ref.CustomerID)
		return s.finish(ctx, event, domain.BillingEventIgnored, "", "unattributed event")
	}

	customerID := ref.CustomerID
	if customerID == "" {
		customerID = user.Billing.CustomerID
	}
	if customerID == "" {
		log.Warnw("Webhook event has no customer", "userID", user.ID)
		return s.finish(ctx, event, domain.BillingEventIgnored, user.ID, "no customer")
	}

	fallback := fallbackPlan(user.Billing)
	if ref.Plan.Paid() {
		fallback = ref.Plan
	}

	record, err := s.syncFromProvider(ctx, user.ID, customerID, fallback, sourceWebhook, ref.Subscription)
	if err != nil {
		log.Errorw("Failed to apply webhook event", "userID", user.ID, "error", err)
		if ferr := s.finish(ctx, event, domain.BillingEventFailed, user.ID, err.Error()); ferr != nil {
			log.Errorw("Failed to mark webhook event failed", "error", ferr)
		}
		return domain.Internal(op, err)
	}

	log.Infow("Webhook applied", "userID", user.ID, "plan", record.Plan, "status", record.Status)
	return s.finish(ctx, event, domain.BillingEventProcessed, user.ID, "")
}

// attribute находит пользователя события: userID из метаданных или client_reference_id,
// иначе - по сохраненному customerId. nil, nil - пользователь не найден.
func (s *billingService) attribute(ctx context.Context, ref stripe.EventRef) (*domain.User, error) {
	if ref.UserID != "" {
		return s.users.Ensure(ctx, ref.UserID, "", domain.DefaultBilling(s.mapper.Now()))
	}
	if ref.CustomerID == "" {
		return nil, nil
	}
	user, err := s.users.FindByCustomerID(ctx, ref.CustomerID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return user, err
}

func (s *billingService) finish(ctx context.Context, event stripego.Event, status domain.BillingEventStatus, userID, message string) error {
	s.metrics.IncWebhook(string(event.Type), string(status))
	if err := s.events.Finish(ctx, event.ID, status, userID, message, s.now().UTC()); err != nil {
		return domain.Internal("billing.HandleEvent", err)
	}
	return nil
}

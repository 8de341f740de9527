package stripe

import (
	"encoding/json"
	"fmt"

	"github.com/Dhoini/job-tracker/internal/domain"
	stripego "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

// Типы событий, которые влияют на запись Billing.
const (
	EventCheckoutCompleted    = "checkout.session.completed"
	EventSubscriptionCreated  = "customer.subscription.created"
	EventSubscriptionUpdated  = "customer.subscription.updated"
	EventSubscriptionDeleted  = "customer.subscription.deleted"
	EventInvoicePaid          = "invoice.paid"
	EventInvoicePaymentFailed = "invoice.payment_failed"
)

const (
	// SignatureHeader заголовок с подписью Stripe
	SignatureHeader = "Stripe-Signature"
	// MaxWebhookBodyBytes ограничение размера тела вебхука
	MaxWebhookBodyBytes = int64(65536)
)

// Verifier проверяет подпись вебхуков общим секретом.
type Verifier struct {
	secret string
}

// NewVerifier создает проверку подписи. С пустым секретом любая доставка отклоняется.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

// Verify проверяет подпись и разбирает событие. Несовпадение версии API не считается ошибкой.
func (v *Verifier) Verify(payload []byte, signature string) (stripego.Event, error) {
	if v.secret == "" {
		return stripego.Event{}, domain.ErrWebhookValidationFailed.With("stripe.Verify")
	}
	if signature == "" {
		return stripego.Event{}, &domain.Error{Kind: domain.KindUnverified, Op: "stripe.Verify", Message: "missing Stripe-Signature header"}
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripego.Event{}, &domain.Error{
			Kind:    domain.KindUnverified,
			Op:      "stripe.Verify",
			Message: domain.ErrWebhookValidationFailed.Message,
			Err:     err,
		}
	}
	return event, nil
}

// EventRef - то, что событие говорит о владельце подписки.
type EventRef struct {
	CustomerID   string
	UserID       string // из метаданных или client_reference_id
	Plan         domain.Plan
	Subscription *stripego.Subscription // снимок из события, если он есть
}

// Handles сообщает, влияет ли тип события на Billing.
func Handles(eventType string) bool {
	switch eventType {
	case EventCheckoutCompleted,
		EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted,
		EventInvoicePaid, EventInvoicePaymentFailed:
		return true
	}
	return false
}

// ParseEventRef извлекает клиента и пользователя из объекта события.
func ParseEventRef(event stripego.Event) (EventRef, error) {
	if event.Data == nil {
		return EventRef{}, fmt.Errorf("event %s has no data", event.ID)
	}
	raw := event.Data.Raw

	switch string(event.Type) {
	case EventCheckoutCompleted:
		var session stripego.CheckoutSession
		if err := json.Unmarshal(raw, &session); err != nil {
			return EventRef{}, fmt.Errorf("decode checkout session: %w", err)
		}
		ref := EventRef{
			CustomerID: CustomerID(session.Customer),
			UserID:     session.ClientReferenceID,
			Plan:       domain.Plan(session.Metadata[MetadataPlanKey]),
		}
		if ref.UserID == "" {
			ref.UserID = session.Metadata[MetadataUserIDKey]
		}
		return ref, nil

	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripego.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return EventRef{}, fmt.Errorf("decode subscription: %w", err)
		}
		return EventRef{
			CustomerID:   CustomerID(sub.Customer),
			UserID:       sub.Metadata[MetadataUserIDKey],
			Plan:         domain.Plan(sub.Metadata[MetadataPlanKey]),
			Subscription: &sub,
		}, nil

	case EventInvoicePaid, EventInvoicePaymentFailed:
		var inv stripego.Invoice
		if err := json.Unmarshal(raw, &inv); err != nil {
			return EventRef{}, fmt.Errorf("decode invoice: %w", err)
		}
		ref := EventRef{CustomerID: CustomerID(inv.Customer)}
		if inv.SubscriptionDetails != nil {
			ref.UserID = inv.SubscriptionDetails.Metadata[MetadataUserIDKey]
			ref.Plan = domain.Plan(inv.SubscriptionDetails.Metadata[MetadataPlanKey])
		}
		return ref, nil
	}

	return EventRef{}, fmt.Errorf("unsupported event type %q", event.Type)
}

package domain

import "time"

// BillingEventStatus статус обработки события платежной системы
type BillingEventStatus string

const (
	BillingEventPending   BillingEventStatus = "pending"
	BillingEventProcessed BillingEventStatus = "processed"
	BillingEventFailed    BillingEventStatus = "failed"
	BillingEventIgnored   BillingEventStatus = "ignored"
)

// BillingEvent - аудиторская копия входящего вебхука.
type BillingEvent struct {
	ID           string             `json:"id"` // ID события в Stripe
	Type         string             `json:"type"`
	Status       BillingEventStatus `json:"status"`
	CustomerID   string             `json:"customerId,omitempty"`
	UserID       string             `json:"userId,omitempty"`
	Payload      []byte             `json:"payload"`
	ErrorMessage string             `json:"errorMessage,omitempty"`
	CreatedAt    time.Time          `json:"createdAt"` // время события в Stripe
	ReceivedAt   time.Time          `json:"receivedAt"`
	ProcessedAt  *time.Time         `json:"processedAt,omitempty"`
}

package stripe

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dhoini/job-tracker/pkg/logger"
	stripego "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

const (
	// Ключ метаданных для связи Stripe Customer и подписки с нашим userID
	MetadataUserIDKey = "user_id"
	// Ключ метаданных подписки с выбранным тарифом
	MetadataPlanKey = "plan"
)

// CustomerInput данные для поиска или создания клиента.
type CustomerInput struct {
	UserID string
	Email  string
	Name   string
}

// CheckoutInput данные для Checkout Session подписки.
type CheckoutInput struct {
	CustomerID string
	UserID     string
	PriceID    string
	Plan       string
	SuccessURL string
	CancelURL  string
}

// Client определяет методы для взаимодействия со Stripe API.
type Client interface {
	// FindOrCreateCustomer ищет клиента по userID в метаданных, если не находит - создает нового.
	FindOrCreateCustomer(ctx context.Context, in CustomerInput) (string, error)

	// CreateCheckoutSession создает Checkout Session в режиме подписки и возвращает ее URL.
	CreateCheckoutSession(ctx context.Context, in CheckoutInput) (string, error)

	// ListSubscriptions возвращает все подписки клиента в любом статусе (все страницы).
	ListSubscriptions(ctx context.Context, customerID string) ([]*stripego.Subscription, error)

	// CancelSubscription отменяет подписку немедленно.
	CancelSubscription(ctx context.Context, subscriptionID string) (*stripego.Subscription, error)

	// SetCancelAtPeriodEnd включает или снимает отмену в конце периода.
	SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*stripego.Subscription, error)
}

// apiClient реализует Client поверх stripe-go.
type apiClient struct {
	api   *client.API
	retry RetryPolicy
	log   *logger.Logger
}

// NewClient создает клиента Stripe. backends может быть nil - тогда используются стандартные.
func NewClient(secretKey string, backends *stripego.Backends, retry RetryPolicy, log *logger.Logger) Client {
	sc := &client.API{}
	sc.Init(secretKey, backends)
	return &apiClient{
		api:   sc,
		retry: retry,
		log:   log.Named("stripe"),
	}
}

func (c *apiClient) FindOrCreateCustomer(ctx context.Context, in CustomerInput) (string, error) {
	c.log.Debugw("Searching for Stripe customer", "userID", in.UserID)

	id, err := withRetry(ctx, c.retry, c.log, "SearchCustomers", func() (string, error) {
		params := &stripego.CustomerSearchParams{
			SearchParams: stripego.SearchParams{
				Query:   fmt.Sprintf("metadata['%s']:'%s'", MetadataUserIDKey, in.UserID),
				Limit:   stripego.Int64(1),
				Context: ctx,
			},
		}
		iter := c.api.Customers.Search(params)
		if iter.Next() {
			return iter.Customer().ID, nil
		}
		return "", iter.Err()
	})
	if err != nil {
		// Поиск недоступен (например, в некоторых регионах) - создаем клиента
		var stripeErr *stripego.Error
		if !errors.As(err, &stripeErr) || stripeErr.Type != stripego.ErrorTypeInvalidRequest {
			logStripeError(c.log, "SearchCustomers", err)
			return "", fmt.Errorf("stripe: failed to search customer: %w", err)
		}
		c.log.Warnw("Customer search rejected, creating new customer", "userID", in.UserID, "error", err)
	}
	if id != "" {
		c.log.Infow("Found existing Stripe customer", "customerID", id, "userID", in.UserID)
		return id, nil
	}

	cus, err := withRetry(ctx, c.retry, c.log, "CreateCustomer", func() (*stripego.Customer, error) {
		params := &stripego.CustomerParams{
			Email:    stripego.String(in.Email),
			Metadata: map[string]string{MetadataUserIDKey: in.UserID},
		}
		if in.Name != "" {
			params.Name = stripego.String(in.Name)
		}
		params.Context = ctx
		return c.api.Customers.New(params)
	})
	if err != nil {
		logStripeError(c.log, "CreateCustomer", err)
		return "", fmt.Errorf("stripe: failed to create customer: %w", err)
	}

	c.log.Infow("Stripe customer created", "customerID", cus.ID, "userID", in.UserID)
	return cus.ID, nil
}

func (c *apiClient) CreateCheckoutSession(ctx context.Context, in CheckoutInput) (string, error) {
	session, err := withRetry(ctx, c.retry, c.log, "CreateCheckoutSession", func() (*stripego.CheckoutSession, error) {
		params := &stripego.CheckoutSessionParams{
			Mode:              stripego.String(string(stripego.CheckoutSessionModeSubscription)),
			Customer:          stripego.String(in.CustomerID),
			ClientReferenceID: stripego.String(in.UserID),
			SuccessURL:        stripego.String(in.SuccessURL),
			CancelURL:         stripego.String(in.CancelURL),
			LineItems: []*stripego.CheckoutSessionLineItemParams{
				{Price: stripego.String(in.PriceID), Quantity: stripego.Int64(1)},
			},
			SubscriptionData: &stripego.CheckoutSessionSubscriptionDataParams{
				Metadata: map[string]string{
					MetadataUserIDKey: in.UserID,
					MetadataPlanKey:   in.Plan,
				},
			},
			AllowPromotionCodes: stripego.Bool(true),
		}
		params.Context = ctx
		return c.api.CheckoutSessions.New(params)
	})
	if err != nil {
		logStripeError(c.log, "CreateCheckoutSession", err)
		return "", fmt.Errorf("stripe: failed to create checkout session: %w", err)
	}

	c.log.Infow("Checkout session created", "sessionID", session.ID, "userID", in.UserID, "plan", in.Plan)
	return session.URL, nil
}

func (c *apiClient) ListSubscriptions(ctx context.Context, customerID string) ([]*stripego.Subscription, error) {
	subs, err := withRetry(ctx, c.retry, c.log, "ListSubscriptions", func() ([]*stripego.Subscription, error) {
		params := &stripego.SubscriptionListParams{
			Customer: stripego.String(customerID),
			Status:   stripego.String("all"),
		}
		params.Context = ctx
		params.Limit = stripego.Int64(100)

		var out []*stripego.Subscription
		iter := c.api.Subscriptions.List(params)
		for iter.Next() {
			out = append(out, iter.Subscription())
		}
		return out, iter.Err()
	})
	if err != nil {
		logStripeError(c.log, "ListSubscriptions", err)
		return nil, fmt.Errorf("stripe: failed to list subscriptions: %w", err)
	}

	c.log.Debugw("Listed Stripe subscriptions", "customerID", customerID, "count", len(subs))
	return subs, nil
}

func (c *apiClient) CancelSubscription(ctx context.Context, subscriptionID string) (*stripego.Subscription, error) {
	sub, err := withRetry(ctx, c.retry, c.log, "CancelSubscription", func() (*stripego.Subscription, error) {
		params := &stripego.SubscriptionCancelParams{}
		params.Context = ctx
		return c.api.Subscriptions.Cancel(subscriptionID, params)
	})
	if err != nil {
		logStripeError(c.log, "CancelSubscription", err)
		return nil, fmt.Errorf("stripe: failed to cancel subscription: %w", err)
	}

	c.log.Infow("Stripe subscription canceled", "subscriptionID", subscriptionID, "status", string(sub.Status))
	return sub, nil
}

func (c *apiClient) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*stripego.Subscription, error) {
	sub, err := withRetry(ctx, c.retry, c.log, "UpdateSubscription", func() (*stripego.Subscription, error) {
		params := &stripego.SubscriptionParams{
			CancelAtPeriodEnd: stripego.Bool(cancel),
		}
		params.Context = ctx
		return c.api.Subscriptions.Update(subscriptionID, params)
	})
	if err != nil {
		logStripeError(c.log, "UpdateSubscription", err)
		return nil, fmt.Errorf("stripe: failed to update subscription: %w", err)
	}

	c.log.Infow("Stripe subscription updated", "subscriptionID", subscriptionID, "cancelAtPeriodEnd", sub.CancelAtPeriodEnd)
	return sub, nil
}

// SubscriptionLister - часть Client, нужная для выбора актуальной подписки.
type SubscriptionLister interface {
	ListSubscriptions(ctx context.Context, customerID string) ([]*stripego.Subscription, error)
}

// LatestSubscriptionFor загружает все подписки клиента и выбирает ту, что определяет доступ.
// Возвращает nil без ошибки, если подписок нет.
func LatestSubscriptionFor(ctx context.Context, lister SubscriptionLister, customerID string) (*stripego.Subscription, error) {
	subs, err := lister.ListSubscriptions(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return SelectLatest(subs), nil
}

// logStripeError - вспомогательная функция для логирования деталей ошибки Stripe.
func logStripeError(log *logger.Logger, operation string, err error) {
	var stripeErr *stripego.Error
	if errors.As(err, &stripeErr) {
		log.Errorw("Stripe API error",
			"operation", operation,
			"type", string(stripeErr.Type),
			"code", string(stripeErr.Code),
			"message", stripeErr.Msg,
			"request_id", stripeErr.RequestID,
			"status_code", stripeErr.HTTPStatusCode,
		)
		return
	}
	log.Errorw("Non-Stripe error during Stripe operation", "operation", operation, "error", err)
}

package stripe

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Dhoini/job-tracker/pkg/logger"
	"github.com/cenkalti/backoff/v4"
	stripego "github.com/stripe/stripe-go/v78"
)

// errorTypeAPIConnection - тип ошибки сетевого сбоя, в stripe-go v78 константы для него нет
const errorTypeAPIConnection stripego.ErrorType = "api_connection_error"

// RetryPolicy параметры экспоненциальных повторов для вызовов Stripe.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	MaxRetries      uint64
}

// DefaultRetryPolicy - повторы с 500ms до 15s, не дольше минуты.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     15 * time.Second,
		MaxElapsedTime:  time.Minute,
		MaxRetries:      4,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		bo.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		bo.MaxInterval = p.MaxInterval
	}
	bo.MaxElapsedTime = p.MaxElapsedTime
	bo.Reset()

	var b backoff.BackOff = bo
	if p.MaxRetries > 0 {
		b = backoff.WithMaxRetries(b, p.MaxRetries)
	}
	return backoff.WithContext(b, ctx)
}

// withRetry повторяет op, пока ошибка временная (429, сбой соединения, 5xx).
func withRetry[T any](ctx context.Context, policy RetryPolicy, log *logger.Logger, operation string, op func() (T, error)) (T, error) {
	var result T
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		var err error
		result, err = op()
		if err == nil {
			return nil
		}
		if isRetryableStripeError(err) {
			log.Warnw("Retryable Stripe error, retrying", "operation", operation, "attempt", attempt, "error", err)
			return err
		}
		return backoff.Permanent(err)
	}, policy.backOff(ctx))
	return result, err
}

// isRetryableStripeError проверяет, является ли ошибка Stripe подходящей для повторной попытки
func isRetryableStripeError(err error) bool {
	var stripeErr *stripego.Error
	if !errors.As(err, &stripeErr) {
		return false
	}
	// Rate Limit
	if stripeErr.HTTPStatusCode == http.StatusTooManyRequests {
		return true
	}
	// Ошибки соединения API
	if stripeErr.Type == errorTypeAPIConnection {
		return true
	}
	// 5xx, кроме 501, обычно временные
	return stripeErr.HTTPStatusCode >= 500 && stripeErr.HTTPStatusCode != http.StatusNotImplemented
}

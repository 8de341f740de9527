package domain

import (
	"errors"
	"fmt"
)

// Kind - категория ошибки. Транспортный слой переводит ее в код ответа.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindUnverified
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnverified:
		return "unverified"
	default:
		return "internal"
	}
}

// Application errors
var (
	// ErrNotFound запись не найдена
	ErrNotFound = &Error{Kind: KindNotFound, Message: "record not found"}

	// ErrNoBillingAccount у пользователя нет клиента в платежной системе
	ErrNoBillingAccount = &Error{Kind: KindNotFound, Message: "no billing account"}

	// ErrNoSubscription у клиента нет ни одной подписки
	ErrNoSubscription = &Error{Kind: KindNotFound, Message: "no subscription"}

	// ErrSubscriptionCanceled подписка уже полностью отменена, нужна новая
	ErrSubscriptionCanceled = &Error{Kind: KindConflict, Message: "subscription is canceled; start a new subscription"}

	// ErrWebhookValidationFailed не удалось проверить подпись вебхука
	ErrWebhookValidationFailed = &Error{Kind: KindUnverified, Message: "webhook validation failed"}
)

// Error - типизированная ошибка ядра.
type Error struct {
	Kind    Kind
	Op      string // операция, например "billing.Cancel"
	Message string // сообщение, безопасное для клиента
	Err     error  // исходная причина
}

// Error реализует интерфейс error
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap возвращает исходную ошибку
func (e *Error) Unwrap() error {
	return e.Err
}

// Is сравнивает ошибки по категории и сообщению, поэтому обернутые
// копии сентинелов (с Op) проходят errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

// With возвращает копию сентинела с указанной операцией.
func (e *Error) With(op string) *Error {
	cp := *e
	cp.Op = op
	return &cp
}

// Validation создает ошибку валидации.
func Validation(op, message string) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: message}
}

// Internal оборачивает инфраструктурную ошибку (хранилище, платежная система).
func Internal(op string, err error) *Error {
	return &Error{Kind: KindInternal, Op: op, Message: "internal error", Err: err}
}

// KindOf возвращает категорию ошибки. Любая нетипизированная ошибка - internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// PublicMessage возвращает текст для клиента. Для внутренних ошибок детали скрываются.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal && e.Message != "" {
		return e.Message
	}
	return "internal server error"
}

package stripe

import (
	"sort"
	"time"

	"github.com/Dhoini/job-tracker/internal/domain"
	stripego "github.com/stripe/stripe-go/v78"
)

// Prices - идентификаторы цен Stripe для платных тарифов.
type Prices struct {
	Pro  string
	Team string
}

// Mapper переводит подписки Stripe в локальную запись Billing.
type Mapper struct {
	prices Prices
	now    func() time.Time
}

// NewMapper создает маппер. now может быть nil - тогда используется time.Now.
func NewMapper(prices Prices, now func() time.Time) *Mapper {
	if now == nil {
		now = time.Now
	}
	return &Mapper{prices: prices, now: now}
}

// PriceFor возвращает цену для тарифа или "" если цена не настроена.
func (m *Mapper) PriceFor(plan domain.Plan) string {
	switch plan {
	case domain.PlanTeam:
		return m.prices.Team
	case domain.PlanPro:
		return m.prices.Pro
	}
	return ""
}

// Now возвращает текущее время маппера в формате RFC 3339 (UTC).
func (m *Mapper) Now() string {
	return m.now().UTC().Format(time.RFC3339)
}

// MapStatus сворачивает статусы Stripe в четыре видимых статуса.
// unpaid, incomplete, incomplete_expired и все неизвестные значения становятся canceled.
func MapStatus(raw stripego.SubscriptionStatus) domain.Status {
	switch raw {
	case stripego.SubscriptionStatusActive:
		return domain.StatusActive
	case stripego.SubscriptionStatusTrialing:
		return domain.StatusTrialing
	case stripego.SubscriptionStatusPastDue:
		return domain.StatusPastDue
	default:
		return domain.StatusCanceled
	}
}

// InferPlan определяет тариф по цене. Для ненастроенной цены активная или
// пробная подписка считается pro, остальные - free.
func (m *Mapper) InferPlan(priceID string, status stripego.SubscriptionStatus) domain.Plan {
	switch {
	case priceID != "" && priceID == m.prices.Team:
		return domain.PlanTeam
	case priceID != "" && priceID == m.prices.Pro:
		return domain.PlanPro
	case status == stripego.SubscriptionStatusActive || status == stripego.SubscriptionStatusTrialing:
		return domain.PlanPro
	default:
		return domain.PlanFree
	}
}

// ToBillingRecord собирает запись Billing из подписки.
// fallbackPlan используется, только если план определить не удалось.
func (m *Mapper) ToBillingRecord(sub *stripego.Subscription, fallbackPlan domain.Plan) domain.Billing {
	priceID := PriceID(sub)
	plan := m.InferPlan(priceID, sub.Status)
	if plan == "" {
		plan = fallbackPlan
	}

	return domain.Billing{
		Plan:              plan,
		Status:            MapStatus(sub.Status),
		CustomerID:        CustomerID(sub.Customer),
		SubscriptionID:    sub.ID,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		RenewsAt:          unixToISO(sub.CurrentPeriodEnd),
		CanceledAt:        unixToISO(sub.CanceledAt),
		UpdatedAt:         m.Now(),
	}
}

// CanceledRecord - запись для клиента без подписок.
func (m *Mapper) CanceledRecord(customerID string) domain.Billing {
	return domain.Billing{
		Plan:       domain.PlanFree,
		Status:     domain.StatusCanceled,
		CustomerID: customerID,
		UpdatedAt:  m.Now(),
	}
}

// statusPriority - чем меньше, тем важнее подписка при выборе.
var statusPriority = map[stripego.SubscriptionStatus]int{
	stripego.SubscriptionStatusActive:            0,
	stripego.SubscriptionStatusTrialing:          1,
	stripego.SubscriptionStatusPastDue:           2,
	stripego.SubscriptionStatusUnpaid:            3,
	stripego.SubscriptionStatusCanceled:          4,
	stripego.SubscriptionStatusIncomplete:        5,
	stripego.SubscriptionStatusIncompleteExpired: 6,
}

func priority(status stripego.SubscriptionStatus) int {
	if p, ok := statusPriority[status]; ok {
		return p
	}
	return len(statusPriority)
}

// SelectLatest выбирает подписку, которая определяет доступ пользователя:
// по приоритету статуса, при равенстве - самую новую. Для пустого списка - nil.
func SelectLatest(subs []*stripego.Subscription) *stripego.Subscription {
	candidates := make([]*stripego.Subscription, 0, len(subs))
	for _, s := range subs {
		if s != nil {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		pi, pj := priority(candidates[i].Status), priority(candidates[j].Status)
		if pi != pj {
			return pi < pj
		}
		return candidates[i].Created > candidates[j].Created
	})
	return candidates[0]
}

// PriceID возвращает цену первой позиции подписки.
func PriceID(sub *stripego.Subscription) string {
	if sub == nil || sub.Items == nil {
		return ""
	}
	for _, item := range sub.Items.Data {
		if item != nil && item.Price != nil && item.Price.ID != "" {
			return item.Price.ID
		}
	}
	return ""
}

// CustomerID безопасно достает ID клиента из раскрытого или нераскрытого объекта.
func CustomerID(c *stripego.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

func unixToISO(ts int64) *string {
	if ts <= 0 {
		return nil
	}
	s := time.Unix(ts, 0).UTC().Format(time.RFC3339)
	return &s
}

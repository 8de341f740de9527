package domain

// Plan тарифный план пользователя
type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
	PlanTeam Plan = "team"
)

// Valid сообщает, является ли значение одним из известных тарифов.
func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanPro, PlanTeam:
		return true
	}
	return false
}

// Paid - платный ли тариф.
func (p Plan) Paid() bool {
	return p == PlanPro || p == PlanTeam
}

// Status статус подписки, видимый клиенту
type Status string

const (
	StatusActive   Status = "active"
	StatusTrialing Status = "trialing"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
)

// Billing - локальная каноническая запись о подписке пользователя.
// Поля без omitempty: клиент всегда видит полный набор ключей.
type Billing struct {
	Plan              Plan    `json:"plan"`
	Status            Status  `json:"status"`
	CustomerID        string  `json:"customerId"`
	SubscriptionID    string  `json:"subscriptionId"`
	CancelAtPeriodEnd bool    `json:"cancelAtPeriodEnd"`
	RenewsAt          *string `json:"renewsAt"`
	CanceledAt        *string `json:"canceledAt"`
	UpdatedAt         string  `json:"updatedAt"`
	// PendingPlan - тариф, выбранный при checkout и еще не подтвержденный платежной системой
	PendingPlan Plan `json:"pendingPlan,omitempty"`
}

// DefaultBilling - запись для нового пользователя.
func DefaultBilling(now string) Billing {
	return Billing{Plan: PlanFree, Status: StatusActive, UpdatedAt: now}
}

// Entitled - есть ли у пользователя доступ к платным возможностям.
// Отмененная подписка не дает доступа независимо от сохраненного плана.
func (b Billing) Entitled() bool {
	if b.Status == StatusCanceled {
		return false
	}
	return b.Plan.Paid()
}

// EffectivePlan - план, по которому нужно выдавать доступ.
func (b Billing) EffectivePlan() Plan {
	if b.Status == StatusCanceled || b.Plan == "" {
		return PlanFree
	}
	return b.Plan
}

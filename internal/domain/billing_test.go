package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBillingEntitlement(t *testing.T) {
	tests := []struct {
		name     string
		billing  Billing
		entitled bool
		plan     Plan
	}{
		{"active pro", Billing{Plan: PlanPro, Status: StatusActive}, true, PlanPro},
		{"past due team keeps access", Billing{Plan: PlanTeam, Status: StatusPastDue}, true, PlanTeam},
		{"canceled pro", Billing{Plan: PlanPro, Status: StatusCanceled}, false, PlanFree},
		{"active free", Billing{Plan: PlanFree, Status: StatusActive}, false, PlanFree},
		{"empty plan", Billing{Status: StatusActive}, false, PlanFree},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.entitled, tt.billing.Entitled())
			assert.Equal(t, tt.plan, tt.billing.EffectivePlan())
		})
	}
}

func TestErrorKinds(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", ErrNoSubscription.With("billing.Reactivate"))

	assert.True(t, errors.Is(err, ErrNoSubscription))
	assert.False(t, errors.Is(err, ErrNoBillingAccount))
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, "no subscription", PublicMessage(err))

	internal := Internal("store.Upsert", errors.New("connection refused"))
	assert.Equal(t, KindInternal, KindOf(internal))
	assert.Equal(t, "internal server error", PublicMessage(internal))
	assert.Contains(t, internal.Error(), "connection refused")

	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.Equal(t, KindConflict, KindOf(ErrSubscriptionCanceled))
}

func TestItemHelpers(t *testing.T) {
	it := Item{"id": "a1", "userId": "u1", "createdAt": "x", "updatedAt": "y", "title": "Go dev"}
	assert.Equal(t, "a1", it.ID())
	assert.Equal(t, Item{"id": "a1", "title": "Go dev"}, it.Public())

	assert.Equal(t, "42", Item{"id": float64(42)}.ID())
	assert.Equal(t, "", Item{"id": ""}.ID())
	assert.Equal(t, "", Item{"title": "no id"}.ID())

	assert.Equal(t, "dateCreated", CollectionApplications.DateField())
	assert.Equal(t, "uploadDate", CollectionDocuments.DateField())
}

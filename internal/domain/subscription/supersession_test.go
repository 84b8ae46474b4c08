package subscription

import (
	"testing"
	"time"

	"medlink-service/internal/domain/plan"

	"github.com/stretchr/testify/assert"
)

func ptr(s string) *string { return &s }

func TestClassifySupersession(t *testing.T) {
	newSub := &Subscription{ID: "new", PlanID: "premium-doc", PricingID: ptr("monthly")}

	cases := []struct {
		name    string
		newTier plan.Tier
		old     *Subscription
		oldTier plan.Tier
		reason  string
		cancel  bool
	}{
		{"upgrade", plan.TierPremium, &Subscription{ID: "a", PlanID: "basic-doc", PricingID: ptr("monthly")}, plan.TierBasic, ReasonUpgraded, true},
		{"same plan other cycle", plan.TierPremium, &Subscription{ID: "b", PlanID: "premium-doc", PricingID: ptr("yearly")}, plan.TierPremium, ReasonPlanChanged, true},
		{"same plan same cycle", plan.TierPremium, &Subscription{ID: "c", PlanID: "premium-doc", PricingID: ptr("monthly")}, plan.TierPremium, "", false},
		{"downgrade", plan.TierPremium, &Subscription{ID: "d", PlanID: "enterprise-doc", PricingID: ptr("monthly")}, plan.TierEnterprise, "", false},
		{"unrelated same tier", plan.TierPremium, &Subscription{ID: "e", PlanID: "premium-hosp", PricingID: ptr("monthly")}, plan.TierPremium, "", false},
		{"self", plan.TierPremium, &Subscription{ID: "new", PlanID: "basic-doc"}, plan.TierBasic, "", false},
		{"fallback pricing vs priced", plan.TierPremium, &Subscription{ID: "f", PlanID: "premium-doc"}, plan.TierPremium, ReasonPlanChanged, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reason, cancel := ClassifySupersession(newSub, tc.newTier, tc.old, tc.oldTier)
			assert.Equal(t, tc.cancel, cancel)
			assert.Equal(t, tc.reason, reason)
		})
	}
}

func TestTransitions(t *testing.T) {
	assert.True(t, CanTransition(StatusActive, StatusCancelled))
	assert.True(t, CanTransition(StatusActive, StatusExpired))
	assert.True(t, CanTransition(StatusSuspended, StatusActive))
	assert.False(t, CanTransition(StatusCancelled, StatusActive))
	assert.False(t, CanTransition(StatusExpired, StatusActive))
	assert.True(t, StatusExpired.Terminal())
}

func TestCalculateEndDate(t *testing.T) {
	start := time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), CalculateEndDate(start, 3))
	assert.Equal(t, start.AddDate(0, 1, 0), CalculateEndDate(start, 0))
}

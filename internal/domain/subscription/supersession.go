package subscription

import "medlink-service/internal/domain/plan"

// ClassifySupersession decides whether newSub replaces old. It returns
// the cancellation reason and true when old must be cancelled. A
// downgrade or an unrelated plan at the same tier leaves old running.
func ClassifySupersession(newSub *Subscription, newTier plan.Tier, old *Subscription, oldTier plan.Tier) (string, bool) {
	if newSub == nil || old == nil || newSub.ID == old.ID {
		return "", false
	}
	if newTier.Above(oldTier) {
		return ReasonUpgraded, true
	}
	if newSub.PlanID == old.PlanID && !samePricing(newSub.PricingID, old.PricingID) {
		return ReasonPlanChanged, true
	}
	return "", false
}

func samePricing(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

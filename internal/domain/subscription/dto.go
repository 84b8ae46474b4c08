// internal/domain/subscription/dto.go
package subscription

import "time"

// ActivateRequest is a paid (or scheduled) entitlement to turn into a
// subscription.
type ActivateRequest struct {
	UserID                 string
	PlanID                 string
	PricingID              *string
	OrderID                *string
	PaymentTransactionID   *string
	PreviousSubscriptionID *string
	StartDate              *time.Time
}

// Superseded records one subscription cancelled by an activation.
type Superseded struct {
	SubscriptionID string `json:"subscription_id"`
	Reason         string `json:"reason"`
}

type ActivationResult struct {
	Subscription *Subscription `json:"subscription"`
	Superseded   []Superseded  `json:"superseded,omitempty"`
	// Existing is true when the order already had a subscription.
	Existing bool `json:"existing"`
}

type CancelRequest struct {
	Reason string `json:"reason" binding:"omitempty,max=500"`
}

type PlanChangeRequest struct {
	PlanID    string  `json:"plan_id" binding:"required,uuid"`
	PricingID *string `json:"pricing_id" binding:"omitempty,uuid"`
}

// SweepResult summarises one expiry pass.
type SweepResult struct {
	Expired       int `json:"expired"`
	PlanChanges   int `json:"plan_changes"`
	FailedChanges int `json:"failed_changes"`
}

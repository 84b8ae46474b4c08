// internal/domain/subscription/entity.go
package subscription

import (
	"time"

	"medlink-service/internal/domain/plan"

	"github.com/shopspring/decimal"
)

type SubscriptionStatus string

const (
	StatusActive    SubscriptionStatus = "active"
	StatusExpired   SubscriptionStatus = "expired"
	StatusCancelled SubscriptionStatus = "cancelled"
	StatusSuspended SubscriptionStatus = "suspended"
)

// Terminal reports whether no transition leaves s.
func (s SubscriptionStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusExpired
}

var transitions = map[SubscriptionStatus][]SubscriptionStatus{
	StatusActive:    {StatusCancelled, StatusExpired, StatusSuspended},
	StatusSuspended: {StatusActive, StatusCancelled},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to SubscriptionStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Reasons recorded when a subscription is cancelled by supersession.
const (
	ReasonUpgraded    = "upgraded"
	ReasonPlanChanged = "plan_changed"
)

type CancelledBy string

const (
	CancelledByUser   CancelledBy = "user"
	CancelledByAdmin  CancelledBy = "admin"
	CancelledBySystem CancelledBy = "system"
)

type PlanChangeStatus string

const (
	PlanChangePending   PlanChangeStatus = "pending"
	PlanChangeCancelled PlanChangeStatus = "cancelled"
	PlanChangeFailed    PlanChangeStatus = "failed"
	PlanChangeApplied   PlanChangeStatus = "applied"
)

// PlanSnapshot freezes the plan and price a subscriber bought.
type PlanSnapshot struct {
	PlanID              string            `json:"plan_id"`
	Name                string            `json:"name"`
	Tier                plan.Tier         `json:"tier"`
	UserRole            plan.Role         `json:"user_role"`
	Description         string            `json:"description,omitempty"`
	PricingID           string            `json:"pricing_id,omitempty"`
	BillingCycle        plan.BillingCycle `json:"billing_cycle"`
	BillingPeriodMonths int               `json:"billing_period_months"`
	Price               decimal.Decimal   `json:"price"`
	Currency            string            `json:"currency"`
}

type Subscription struct {
	ID                       string             `json:"id" db:"id"`
	UserID                   string             `json:"user_id" db:"user_id"`
	PlanID                   string             `json:"plan_id" db:"plan_id"`
	PricingID                *string            `json:"pricing_id,omitempty" db:"pricing_id"`
	Status                   SubscriptionStatus `json:"status" db:"status"`
	StartDate                time.Time          `json:"start_date" db:"start_date"`
	EndDate                  time.Time          `json:"end_date" db:"end_date"`
	BillingCycle             plan.BillingCycle  `json:"billing_cycle" db:"billing_cycle"`
	BillingPeriodMonths      int                `json:"billing_period_months" db:"billing_period_months"`
	PriceAtPurchase          decimal.Decimal    `json:"price_at_purchase" db:"price_at_purchase"`
	CurrencyAtPurchase       string             `json:"currency_at_purchase" db:"currency_at_purchase"`
	PlanSnapshot             PlanSnapshot       `json:"plan_snapshot" db:"plan_snapshot"`
	FeaturesAtPurchase       *plan.Features     `json:"features_at_purchase,omitempty" db:"features_at_purchase"`
	PreviousSubscriptionID   *string            `json:"previous_subscription_id,omitempty" db:"previous_subscription_id"`
	CancelledAt              *time.Time         `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancellationReason       *string            `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	CancelledBy              *CancelledBy       `json:"cancelled_by,omitempty" db:"cancelled_by"`
	ReplacedBySubscriptionID *string            `json:"replaced_by_subscription_id,omitempty" db:"replaced_by_subscription_id"`
	OrderID                  *string            `json:"order_id,omitempty" db:"order_id"`
	PaymentTransactionID     *string            `json:"payment_transaction_id,omitempty" db:"payment_transaction_id"`
	AutoRenew                bool               `json:"auto_renew" db:"auto_renew"`
	NextPlanID               *string            `json:"next_plan_id,omitempty" db:"next_plan_id"`
	NextPricingID            *string            `json:"next_pricing_id,omitempty" db:"next_pricing_id"`
	PlanChangeStatus         *PlanChangeStatus  `json:"plan_change_status,omitempty" db:"plan_change_status"`
	CreatedAt                time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt                time.Time          `json:"updated_at" db:"updated_at"`

	// PlanTier is the live tier of PlanID, loaded alongside active rows.
	PlanTier plan.Tier `json:"-" db:"-"`
}

// Cancellation describes how a subscription left the active state.
// When From is set the row must still be in that status.
type Cancellation struct {
	Reason     string
	By         CancelledBy
	ReplacedBy *string
	From       SubscriptionStatus
	At         time.Time
}

// CalculateEndDate adds the billing period to start.
func CalculateEndDate(start time.Time, billingPeriodMonths int) time.Time {
	if billingPeriodMonths <= 0 {
		billingPeriodMonths = 1
	}
	return start.AddDate(0, billingPeriodMonths, 0)
}

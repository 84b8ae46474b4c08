package plan

import (
	"fmt"
	"time"

	xerrors "medlink-service/internal/pkg/errors"

	"github.com/shopspring/decimal"
)

var (
	ErrPlanNotFound    = fmt.Errorf("plan not found: %w", xerrors.ErrNotFound)
	ErrPricingNotFound = fmt.Errorf("pricing not found for plan: %w", xerrors.ErrNotFound)
	ErrPlanInactive    = fmt.Errorf("plan is not available for purchase: %w", xerrors.ErrInvalidInput)
	ErrPricingInactive = fmt.Errorf("pricing is not available for purchase: %w", xerrors.ErrInvalidInput)
)

// Unlimited is the sentinel stored in feature limits meaning "no cap".
const Unlimited = -1

// Tier is the ordinal subscription level. The order is defined once here.
type Tier string

const (
	TierFree       Tier = "free"
	TierBasic      Tier = "basic"
	TierPremium    Tier = "premium"
	TierEnterprise Tier = "enterprise"
)

var tierRanks = map[Tier]int{
	TierFree:       0,
	TierBasic:      1,
	TierPremium:    2,
	TierEnterprise: 3,
}

// Rank returns the tier's position in free<basic<premium<enterprise,
// or -1 for an unknown tier.
func (t Tier) Rank() int {
	r, ok := tierRanks[t]
	if !ok {
		return -1
	}
	return r
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	_, ok := tierRanks[t]
	return ok
}

// Above reports whether t ranks strictly higher than other.
func (t Tier) Above(other Tier) bool {
	return t.Rank() > other.Rank()
}

// ParseTier converts a stored tier value.
func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown tier %q", s)
	}
	return t, nil
}

// Role is the kind of account a plan is sold to.
type Role string

const (
	RoleDoctor   Role = "doctor"
	RoleHospital Role = "hospital"
)

type BillingCycle string

const (
	CycleMonthly   BillingCycle = "monthly"
	CycleQuarterly BillingCycle = "quarterly"
	CycleYearly    BillingCycle = "yearly"
	CycleCustom    BillingCycle = "custom"
)

// Plan is a sellable subscription plan.
type Plan struct {
	ID                  string       `json:"id" db:"id"`
	Name                string       `json:"name" db:"name"`
	Tier                Tier         `json:"tier" db:"tier"`
	UserRole            Role         `json:"user_role" db:"user_role"`
	Description         string       `json:"description,omitempty" db:"description"`
	IsActive            bool         `json:"is_active" db:"is_active"`
	DefaultBillingCycle BillingCycle `json:"default_billing_cycle" db:"default_billing_cycle"`
	CreatedAt           time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at" db:"updated_at"`
}

// Pricing is one billing-cycle price point of a plan.
type Pricing struct {
	ID                  string          `json:"id" db:"id"`
	PlanID              string          `json:"plan_id" db:"plan_id"`
	BillingCycle        BillingCycle    `json:"billing_cycle" db:"billing_cycle"`
	BillingPeriodMonths int             `json:"billing_period_months" db:"billing_period_months"`
	Price               decimal.Decimal `json:"price" db:"price"`
	Currency            string          `json:"currency" db:"currency"`
	SetupFee            decimal.Decimal `json:"setup_fee" db:"setup_fee"`
	DiscountPercentage  decimal.Decimal `json:"discount_percentage" db:"discount_percentage"`
	IsActive            bool            `json:"is_active" db:"is_active"`
	ValidFrom           *time.Time      `json:"valid_from,omitempty" db:"valid_from"`
	ValidUntil          *time.Time      `json:"valid_until,omitempty" db:"valid_until"`
}

// AvailableAt reports whether the pricing can be purchased at t.
func (p *Pricing) AvailableAt(t time.Time) bool {
	if !p.IsActive {
		return false
	}
	if p.ValidFrom != nil && t.Before(*p.ValidFrom) {
		return false
	}
	if p.ValidUntil != nil && t.After(*p.ValidUntil) {
		return false
	}
	return true
}

// Features holds the numeric limits of a plan. Role-specific fields are
// nil on the other role's variant.
type Features struct {
	PlanID                 string `json:"plan_id"`
	Role                   Role   `json:"role"`
	MaxAssignmentsPerMonth int    `json:"max_assignments_per_month"`
	MaxPatientsPerMonth    *int   `json:"max_patients_per_month,omitempty"`
	MaxAffiliations        *int   `json:"max_affiliations,omitempty"`
	VisibilityWeight       *int   `json:"visibility_weight,omitempty"`
	IncludesPremiumDoctors *bool  `json:"includes_premium_doctors,omitempty"`
	Notes                  string `json:"notes,omitempty"`
}

// Detail bundles a plan with its price points and limits.
type Detail struct {
	Plan     Plan      `json:"plan"`
	Pricing  []Pricing `json:"pricing"`
	Features *Features `json:"features,omitempty"`
}

// Selection is the resolved plan, price point and limits for a purchase.
type Selection struct {
	Plan     Plan
	Pricing  Pricing
	Features *Features
}

type ListFilters struct {
	Role       Role `form:"role"`
	ActiveOnly bool `form:"active_only"`
}

// Clone returns a deep copy so callers can keep it independent of f.
func (f *Features) Clone() *Features {
	if f == nil {
		return nil
	}
	out := *f
	out.MaxPatientsPerMonth = cloneInt(f.MaxPatientsPerMonth)
	out.MaxAffiliations = cloneInt(f.MaxAffiliations)
	out.VisibilityWeight = cloneInt(f.VisibilityWeight)
	if f.IncludesPremiumDoctors != nil {
		v := *f.IncludesPremiumDoctors
		out.IncludesPremiumDoctors = &v
	}
	return &out
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

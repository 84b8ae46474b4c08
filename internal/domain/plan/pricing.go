package plan

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is used for the free fallback pricing.
const DefaultCurrency = "USD"

// SelectDefaultPricing returns the available pricing with the shortest
// billing period, or nil when none can be purchased at now.
func SelectDefaultPricing(pricings []Pricing, now time.Time) *Pricing {
	var best *Pricing
	for i := range pricings {
		p := &pricings[i]
		if !p.AvailableAt(now) {
			continue
		}
		if best == nil || p.BillingPeriodMonths < best.BillingPeriodMonths {
			best = p
		}
	}
	return best
}

// FreeFallback is the zero-price single month pricing used when a plan
// has no purchasable price point.
func FreeFallback(planID string) *Pricing {
	return &Pricing{
		PlanID:              planID,
		BillingCycle:        CycleMonthly,
		BillingPeriodMonths: 1,
		Price:               decimal.Zero,
		Currency:            DefaultCurrency,
		SetupFee:            decimal.Zero,
		DiscountPercentage:  decimal.Zero,
		IsActive:            true,
	}
}

// Total is the amount charged for one purchase of p.
func (p *Pricing) Total() decimal.Decimal {
	price := p.Price
	if p.DiscountPercentage.IsPositive() {
		off := price.Mul(p.DiscountPercentage).Div(decimal.NewFromInt(100))
		price = price.Sub(off)
	}
	return price.Add(p.SetupFee).Round(2)
}

package plan

import "context"

// Repository is the read-only plan catalogue.
type Repository interface {
	FindPlan(ctx context.Context, id string) (*Plan, error)
	ListPlans(ctx context.Context, filters *ListFilters) ([]Plan, error)
	FindPricing(ctx context.Context, id string) (*Pricing, error)
	ListPricing(ctx context.Context, planID string) ([]Pricing, error)
	FindFeatures(ctx context.Context, planID string, role Role) (*Features, error)
}

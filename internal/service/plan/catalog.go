package plan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medlink-service/internal/domain/plan"
	xerrors "medlink-service/internal/pkg/errors"

	"go.uber.org/zap"
)

// Catalog is the read side of subscription plans.
type Catalog struct {
	repo   plan.Repository
	logger *zap.Logger
	now    func() time.Time
}

func NewCatalog(repo plan.Repository, logger *zap.Logger) *Catalog {
	return &Catalog{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// ListPlans returns plans with their price points and limits.
func (c *Catalog) ListPlans(ctx context.Context, filters *plan.ListFilters) ([]plan.Detail, error) {
	if filters != nil && filters.Role != "" && filters.Role != plan.RoleDoctor && filters.Role != plan.RoleHospital {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "role must be doctor or hospital")
	}

	plans, err := c.repo.ListPlans(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}

	details := make([]plan.Detail, 0, len(plans))
	for i := range plans {
		d, err := c.detail(ctx, &plans[i])
		if err != nil {
			return nil, err
		}
		details = append(details, *d)
	}
	return details, nil
}

func (c *Catalog) GetPlan(ctx context.Context, id string) (*plan.Detail, error) {
	p, err := c.findPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.detail(ctx, p)
}

// Resolve picks the price point for a purchase: the explicit pricing,
// else the shortest purchasable period, else a free single month.
func (c *Catalog) Resolve(ctx context.Context, planID string, pricingID *string) (*plan.Selection, error) {
	p, err := c.findPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, plan.ErrPlanInactive
	}

	now := c.now()
	var pricing *plan.Pricing
	if pricingID != nil && *pricingID != "" {
		pricing, err = c.repo.FindPricing(ctx, *pricingID)
		if errors.Is(err, xerrors.ErrNotFound) || (err == nil && pricing.PlanID != p.ID) {
			return nil, plan.ErrPricingNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load pricing: %w", err)
		}
		if !pricing.AvailableAt(now) {
			return nil, plan.ErrPricingInactive
		}
	} else {
		pricings, err := c.repo.ListPricing(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load pricing: %w", err)
		}
		pricing = plan.SelectDefaultPricing(pricings, now)
		if pricing == nil {
			c.logger.Warn("plan has no purchasable pricing, using free fallback", zap.String("plan_id", p.ID))
			pricing = plan.FreeFallback(p.ID)
		}
	}

	features, err := c.features(ctx, p)
	if err != nil {
		return nil, err
	}

	return &plan.Selection{
		Plan:     *p,
		Pricing:  *pricing,
		Features: features,
	}, nil
}

func (c *Catalog) findPlan(ctx context.Context, id string) (*plan.Plan, error) {
	p, err := c.repo.FindPlan(ctx, id)
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil, plan.ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}
	return p, nil
}

func (c *Catalog) features(ctx context.Context, p *plan.Plan) (*plan.Features, error) {
	f, err := c.repo.FindFeatures(ctx, p.ID, p.UserRole)
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load plan features: %w", err)
	}
	return f, nil
}

func (c *Catalog) detail(ctx context.Context, p *plan.Plan) (*plan.Detail, error) {
	pricings, err := c.repo.ListPricing(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pricing: %w", err)
	}
	features, err := c.features(ctx, p)
	if err != nil {
		return nil, err
	}
	if pricings == nil {
		pricings = []plan.Pricing{}
	}
	return &plan.Detail{Plan: *p, Pricing: pricings, Features: features}, nil
}

// internal/service/subscription/lifecycle.go
package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medlink-service/internal/domain/plan"
	"medlink-service/internal/domain/subscription"
	"medlink-service/internal/metrics"
	xerrors "medlink-service/internal/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PlanCatalog resolves the plan and price point of a purchase.
type PlanCatalog interface {
	Resolve(ctx context.Context, planID string, pricingID *string) (*plan.Selection, error)
}

// Lifecycle creates, replaces and retires subscriptions.
type Lifecycle struct {
	repo    subscription.Repository
	catalog PlanCatalog
	logger  *zap.Logger
	now     func() time.Time
}

func NewLifecycle(repo subscription.Repository, catalog PlanCatalog, logger *zap.Logger) *Lifecycle {
	return &Lifecycle{
		repo:    repo,
		catalog: catalog,
		logger:  logger,
		now:     time.Now,
	}
}

// CreateFromPayment stores a new active subscription with the plan and
// price frozen at purchase. It does not touch other subscriptions.
func (l *Lifecycle) CreateFromPayment(ctx context.Context, req *subscription.ActivateRequest) (*subscription.Subscription, error) {
	sub, _, err := l.build(ctx, req)
	if err != nil {
		return nil, err
	}

	err = l.repo.InTx(ctx, func(ctx context.Context, repo subscription.Repository) error {
		if err := repo.LockUser(ctx, req.UserID); err != nil {
			return err
		}
		return repo.Create(ctx, sub)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}

	metrics.SubscriptionsActivated.WithLabelValues(string(sub.PlanSnapshot.Tier)).Inc()
	return sub, nil
}

// ResolveSupersession cancels the user's other active subscriptions that
// the new one replaces.
func (l *Lifecycle) ResolveSupersession(ctx context.Context, newSubscriptionID, userID string) ([]subscription.Superseded, error) {
	var superseded []subscription.Superseded

	err := l.repo.InTx(ctx, func(ctx context.Context, repo subscription.Repository) error {
		if err := repo.LockUser(ctx, userID); err != nil {
			return err
		}

		sub, err := repo.FindByID(ctx, newSubscriptionID)
		if err != nil {
			return err
		}
		if sub.UserID != userID {
			return xerrors.ErrNotFound
		}
		if sub.Status != subscription.StatusActive {
			return xerrors.Wrap(xerrors.ErrInvalidTransition, "only an active subscription can supersede others")
		}

		superseded, err = l.supersede(ctx, repo, sub, "")
		return err
	})
	if err != nil {
		return nil, err
	}
	return superseded, nil
}

// ActivateFromPayment creates the subscription owed for a paid order and
// resolves supersession in one transaction. Replaying an order returns
// the subscription created the first time.
func (l *Lifecycle) ActivateFromPayment(ctx context.Context, req *subscription.ActivateRequest) (*subscription.ActivationResult, error) {
	sub, tier, err := l.build(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &subscription.ActivationResult{}
	err = l.repo.InTx(ctx, func(ctx context.Context, repo subscription.Repository) error {
		if err := repo.LockUser(ctx, req.UserID); err != nil {
			return err
		}

		// Idempotency: one subscription per order
		if req.OrderID != nil {
			existing, err := repo.FindByOrderID(ctx, *req.OrderID)
			if err == nil {
				result.Subscription = existing
				result.Existing = true
				return nil
			}
			if !errors.Is(err, xerrors.ErrNotFound) {
				return fmt.Errorf("failed to check order subscription: %w", err)
			}
		}

		if err := repo.Create(ctx, sub); err != nil {
			return fmt.Errorf("failed to create subscription: %w", err)
		}
		result.Subscription = sub

		superseded, err := l.supersede(ctx, repo, sub, tier)
		if err != nil {
			return err
		}
		result.Superseded = superseded
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.Existing {
		metrics.SubscriptionsActivated.WithLabelValues(string(tier)).Inc()
		l.logger.Info("subscription activated",
			zap.String("subscription_id", sub.ID),
			zap.String("user_id", sub.UserID),
			zap.String("plan_id", sub.PlanID),
			zap.String("tier", string(tier)),
			zap.Int("superseded", len(result.Superseded)),
		)
	}
	return result, nil
}

func (l *Lifecycle) supersede(ctx context.Context, repo subscription.Repository, sub *subscription.Subscription, tier plan.Tier) ([]subscription.Superseded, error) {
	active, err := repo.ListActiveByUser(ctx, sub.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active subscriptions: %w", err)
	}

	// An empty tier means the live tier of sub as loaded with the active set
	if tier == "" {
		tier = sub.PlanSnapshot.Tier
		for i := range active {
			if active[i].ID == sub.ID && active[i].PlanTier != "" {
				tier = active[i].PlanTier
			}
		}
	}

	var out []subscription.Superseded
	now := l.now()
	for i := range active {
		old := &active[i]
		oldTier := old.PlanTier
		if oldTier == "" {
			oldTier = old.PlanSnapshot.Tier
		}

		reason, cancel := subscription.ClassifySupersession(sub, tier, old, oldTier)
		if !cancel {
			continue
		}

		err := repo.Cancel(ctx, old.ID, subscription.Cancellation{
			Reason:     reason,
			By:         subscription.CancelledBySystem,
			ReplacedBy: &sub.ID,
			From:       subscription.StatusActive,
			At:         now,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to cancel superseded subscription %s: %w", old.ID, err)
		}

		metrics.SubscriptionsSuperseded.WithLabelValues(reason).Inc()
		l.logger.Info("subscription superseded",
			zap.String("subscription_id", old.ID),
			zap.String("replaced_by", sub.ID),
			zap.String("reason", reason),
		)
		out = append(out, subscription.Superseded{SubscriptionID: old.ID, Reason: reason})
	}
	return out, nil
}

// build resolves pricing and snapshots the plan into a new subscription.
func (l *Lifecycle) build(ctx context.Context, req *subscription.ActivateRequest) (*subscription.Subscription, plan.Tier, error) {
	if req.UserID == "" || req.PlanID == "" {
		return nil, "", xerrors.Wrap(xerrors.ErrInvalidInput, "user and plan are required")
	}

	sel, err := l.catalog.Resolve(ctx, req.PlanID, req.PricingID)
	if err != nil {
		return nil, "", err
	}

	start := l.now()
	if req.StartDate != nil {
		start = *req.StartDate
	}
	pr := sel.Pricing

	var pricingID *string
	if pr.ID != "" {
		id := pr.ID
		pricingID = &id
	}

	sub := &subscription.Subscription{
		ID:                  uuid.NewString(),
		UserID:              req.UserID,
		PlanID:              sel.Plan.ID,
		PricingID:           pricingID,
		Status:              subscription.StatusActive,
		StartDate:           start,
		EndDate:             subscription.CalculateEndDate(start, pr.BillingPeriodMonths),
		BillingCycle:        pr.BillingCycle,
		BillingPeriodMonths: pr.BillingPeriodMonths,
		PriceAtPurchase:     pr.Price,
		CurrencyAtPurchase:  pr.Currency,
		PlanSnapshot: subscription.PlanSnapshot{
			PlanID:              sel.Plan.ID,
			Name:                sel.Plan.Name,
			Tier:                sel.Plan.Tier,
			UserRole:            sel.Plan.UserRole,
			Description:         sel.Plan.Description,
			PricingID:           pr.ID,
			BillingCycle:        pr.BillingCycle,
			BillingPeriodMonths: pr.BillingPeriodMonths,
			Price:               pr.Price,
			Currency:            pr.Currency,
		},
		FeaturesAtPurchase:     sel.Features.Clone(),
		PreviousSubscriptionID: req.PreviousSubscriptionID,
		OrderID:                req.OrderID,
		PaymentTransactionID:   req.PaymentTransactionID,
		PlanTier:               sel.Plan.Tier,
	}
	if sub.BillingPeriodMonths <= 0 {
		sub.BillingPeriodMonths = 1
	}
	return sub, sel.Plan.Tier, nil
}

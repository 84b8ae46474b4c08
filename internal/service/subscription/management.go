package subscription

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"medlink-service/internal/domain/plan"
	"medlink-service/internal/domain/subscription"
	xerrors "medlink-service/internal/pkg/errors"

	"go.uber.org/zap"
)

var ErrNoActiveSubscription = fmt.Errorf("no active subscription: %w", xerrors.ErrNotFound)

// GetActive returns the user's highest tier active subscription.
func (l *Lifecycle) GetActive(ctx context.Context, userID string) (*subscription.Subscription, error) {
	active, err := l.repo.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active subscriptions: %w", err)
	}
	if len(active) == 0 {
		return nil, ErrNoActiveSubscription
	}

	sort.SliceStable(active, func(i, j int) bool {
		return tierOf(&active[i]).Above(tierOf(&active[j]))
	})
	return &active[0], nil
}

// List returns the user's subscription history, newest first.
func (l *Lifecycle) List(ctx context.Context, userID string) ([]subscription.Subscription, error) {
	subs, err := l.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	if subs == nil {
		subs = []subscription.Subscription{}
	}
	return subs, nil
}

// Cancel ends a subscription on behalf of its owner or an admin. Owners
// can only cancel active subscriptions; admins may also cancel suspended
// ones.
func (l *Lifecycle) Cancel(ctx context.Context, subscriptionID, actorID string, by subscription.CancelledBy, reason string) (*subscription.Subscription, error) {
	var cancelled *subscription.Subscription

	err := l.repo.InTx(ctx, func(ctx context.Context, repo subscription.Repository) error {
		sub, err := l.lockAndLoad(ctx, repo, subscriptionID)
		if err != nil {
			return err
		}
		if by == subscription.CancelledByUser && sub.UserID != actorID {
			return xerrors.ErrNotFound
		}

		allowed := sub.Status == subscription.StatusActive ||
			(by == subscription.CancelledByAdmin && subscription.CanTransition(sub.Status, subscription.StatusCancelled))
		if !allowed {
			return xerrors.Wrap(xerrors.ErrInvalidTransition, fmt.Sprintf("cannot cancel a %s subscription", sub.Status))
		}

		if reason == "" {
			reason = "cancelled by " + string(by)
		}
		now := l.now()
		c := subscription.Cancellation{Reason: reason, By: by, From: sub.Status, At: now}
		if err := repo.Cancel(ctx, sub.ID, c); err != nil {
			if errors.Is(err, xerrors.ErrConflict) {
				return xerrors.Wrap(xerrors.ErrInvalidTransition, "subscription changed while cancelling")
			}
			return fmt.Errorf("failed to cancel subscription: %w", err)
		}

		sub.Status = subscription.StatusCancelled
		sub.CancelledAt = &now
		sub.CancellationReason = &reason
		sub.CancelledBy = &by
		cancelled = sub
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("subscription cancelled",
		zap.String("subscription_id", subscriptionID),
		zap.String("cancelled_by", string(by)),
		zap.String("actor_id", actorID),
	)
	return cancelled, nil
}

// Suspend pauses an active subscription.
func (l *Lifecycle) Suspend(ctx context.Context, subscriptionID string) (*subscription.Subscription, error) {
	return l.transition(ctx, subscriptionID, subscription.StatusActive, subscription.StatusSuspended)
}

// Reactivate resumes a suspended subscription that has not run out. It is
// refused while the owner holds another active subscription.
func (l *Lifecycle) Reactivate(ctx context.Context, subscriptionID string) (*subscription.Subscription, error) {
	return l.transition(ctx, subscriptionID, subscription.StatusSuspended, subscription.StatusActive)
}

func (l *Lifecycle) transition(ctx context.Context, id string, from, to subscription.SubscriptionStatus) (*subscription.Subscription, error) {
	var sub *subscription.Subscription

	err := l.repo.InTx(ctx, func(ctx context.Context, repo subscription.Repository) error {
		s, err := l.lockAndLoad(ctx, repo, id)
		if err != nil {
			return err
		}
		if s.Status != from || !subscription.CanTransition(from, to) {
			return xerrors.Wrap(xerrors.ErrInvalidTransition, fmt.Sprintf("cannot move a %s subscription to %s", s.Status, to))
		}

		if to == subscription.StatusActive {
			if !s.EndDate.After(l.now()) {
				return xerrors.Wrap(xerrors.ErrInvalidTransition, "subscription period has ended")
			}
			active, err := repo.ListActiveByUser(ctx, s.UserID)
			if err != nil {
				return fmt.Errorf("failed to load active subscriptions: %w", err)
			}
			if len(active) > 0 {
				return xerrors.Wrap(xerrors.ErrInvalidTransition,
					fmt.Sprintf("subscription %s is already active for this account", active[0].ID))
			}
		}

		if err := repo.UpdateStatus(ctx, id, from, to); err != nil {
			return err
		}
		s.Status = to
		sub = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("subscription status changed",
		zap.String("subscription_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return sub, nil
}

// lockAndLoad takes the owner's lifecycle lock and reads the subscription
// under it, so the status checked is the status written against.
func (l *Lifecycle) lockAndLoad(ctx context.Context, repo subscription.Repository, id string) (*subscription.Subscription, error) {
	sub, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := repo.LockUser(ctx, sub.UserID); err != nil {
		return nil, err
	}
	return repo.FindByID(ctx, id)
}

// ScheduleDowngrade records a plan that replaces the active subscription
// when it ends. Upgrades are bought and take effect immediately instead.
func (l *Lifecycle) ScheduleDowngrade(ctx context.Context, userID string, req *subscription.PlanChangeRequest) (*subscription.Subscription, error) {
	active, err := l.GetActive(ctx, userID)
	if err != nil {
		return nil, err
	}

	sel, err := l.catalog.Resolve(ctx, req.PlanID, req.PricingID)
	if err != nil {
		return nil, err
	}
	if sel.Plan.UserRole != active.PlanSnapshot.UserRole {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "plan is for a different account type")
	}
	if sel.Plan.Tier.Above(tierOf(active)) {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "upgrades are purchased and apply immediately")
	}
	if sel.Plan.ID == active.PlanID && req.PricingID == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "already subscribed to this plan")
	}

	planID := sel.Plan.ID
	var pricingID *string
	if sel.Pricing.ID != "" {
		id := sel.Pricing.ID
		pricingID = &id
	}
	status := subscription.PlanChangePending
	if err := l.repo.SetPlanChange(ctx, active.ID, &planID, pricingID, &status); err != nil {
		return nil, fmt.Errorf("failed to schedule plan change: %w", err)
	}

	active.NextPlanID = &planID
	active.NextPricingID = pricingID
	active.PlanChangeStatus = &status

	l.logger.Info("plan change scheduled",
		zap.String("subscription_id", active.ID),
		zap.String("next_plan_id", planID),
		zap.Time("effective", active.EndDate),
	)
	return active, nil
}

// CancelScheduledChange drops a pending plan change.
func (l *Lifecycle) CancelScheduledChange(ctx context.Context, userID string) (*subscription.Subscription, error) {
	active, err := l.GetActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	if active.PlanChangeStatus == nil || *active.PlanChangeStatus != subscription.PlanChangePending {
		return nil, xerrors.Wrap(xerrors.ErrInvalidTransition, "no plan change is scheduled")
	}

	status := subscription.PlanChangeCancelled
	if err := l.repo.SetPlanChange(ctx, active.ID, nil, nil, &status); err != nil {
		return nil, fmt.Errorf("failed to cancel plan change: %w", err)
	}
	active.NextPlanID = nil
	active.NextPricingID = nil
	active.PlanChangeStatus = &status
	return active, nil
}

// Sweep expires subscriptions past their end date and applies pending
// plan changes by starting the successor where the old one ended.
func (l *Lifecycle) Sweep(ctx context.Context, batch int) (*subscription.SweepResult, error) {
	due, err := l.repo.ListDue(ctx, l.now(), batch)
	if err != nil {
		return nil, fmt.Errorf("failed to load due subscriptions: %w", err)
	}

	result := &subscription.SweepResult{}
	var plain []string
	for i := range due {
		sub := &due[i]
		if sub.PlanChangeStatus == nil || *sub.PlanChangeStatus != subscription.PlanChangePending || sub.NextPlanID == nil {
			plain = append(plain, sub.ID)
			continue
		}

		if err := l.applyPlanChange(ctx, sub); err != nil {
			l.logger.Warn("scheduled plan change failed",
				zap.String("subscription_id", sub.ID),
				zap.Error(err),
			)
			failed := subscription.PlanChangeFailed
			err := l.repo.Expire(ctx, sub.ID, nil, &failed)
			if errors.Is(err, xerrors.ErrNotFound) {
				continue
			}
			if err != nil {
				return result, fmt.Errorf("failed to expire subscription %s: %w", sub.ID, err)
			}
			result.Expired++
			result.FailedChanges++
			continue
		}
		result.Expired++
		result.PlanChanges++
	}

	if len(plain) > 0 {
		n, err := l.repo.ExpireBatch(ctx, plain)
		if err != nil {
			return result, fmt.Errorf("failed to expire subscriptions: %w", err)
		}
		result.Expired += int(n)
	}

	if result.Expired > 0 {
		l.logger.Info("subscription sweep finished",
			zap.Int("expired", result.Expired),
			zap.Int("plan_changes", result.PlanChanges),
			zap.Int("failed_changes", result.FailedChanges),
		)
	}
	return result, nil
}

func (l *Lifecycle) applyPlanChange(ctx context.Context, old *subscription.Subscription) error {
	start := old.EndDate
	next, _, err := l.build(ctx, &subscription.ActivateRequest{
		UserID:                 old.UserID,
		PlanID:                 *old.NextPlanID,
		PricingID:              old.NextPricingID,
		PreviousSubscriptionID: &old.ID,
		StartDate:              &start,
	})
	if err != nil {
		return err
	}

	return l.repo.InTx(ctx, func(ctx context.Context, repo subscription.Repository) error {
		if err := repo.LockUser(ctx, old.UserID); err != nil {
			return err
		}
		if err := repo.Create(ctx, next); err != nil {
			return fmt.Errorf("failed to create successor: %w", err)
		}
		applied := subscription.PlanChangeApplied
		if err := repo.Expire(ctx, old.ID, &next.ID, &applied); err != nil {
			if errors.Is(err, xerrors.ErrNotFound) {
				return xerrors.Wrap(xerrors.ErrConflict, "subscription changed during sweep")
			}
			return err
		}
		return nil
	})
}

func tierOf(s *subscription.Subscription) plan.Tier {
	if s.PlanTier != "" {
		return s.PlanTier
	}
	return s.PlanSnapshot.Tier
}

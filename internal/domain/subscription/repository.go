package subscription

import (
	"context"
	"time"
)

type Repository interface {
	// InTx runs fn inside one transaction; repo is bound to it.
	InTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
	// LockUser serialises lifecycle changes for one user until the
	// transaction ends.
	LockUser(ctx context.Context, userID string) error

	Create(ctx context.Context, sub *Subscription) error
	FindByID(ctx context.Context, id string) (*Subscription, error)
	FindByOrderID(ctx context.Context, orderID string) (*Subscription, error)
	// ListActiveByUser returns active rows with PlanTier populated.
	ListActiveByUser(ctx context.Context, userID string) ([]Subscription, error)
	ListByUser(ctx context.Context, userID string) ([]Subscription, error)

	// Cancel moves an active or suspended subscription to cancelled.
	Cancel(ctx context.Context, id string, c Cancellation) error
	UpdateStatus(ctx context.Context, id string, from, to SubscriptionStatus) error
	SetPlanChange(ctx context.Context, id string, nextPlanID, nextPricingID *string, status *PlanChangeStatus) error

	// ListDue returns active subscriptions whose end date has passed.
	ListDue(ctx context.Context, now time.Time, limit int) ([]Subscription, error)
	Expire(ctx context.Context, id string, replacedBy *string, planChange *PlanChangeStatus) error
	ExpireBatch(ctx context.Context, ids []string) (int64, error)
}

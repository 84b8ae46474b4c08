// internal/repository/postgres/subscription_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"medlink-service/internal/domain/plan"
	"medlink-service/internal/domain/subscription"
	xerrors "medlink-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

const subscriptionColumns = `s.id, s.user_id, s.plan_id, s.pricing_id, s.status, s.start_date, s.end_date,
	s.billing_cycle, s.billing_period_months, s.price_at_purchase, s.currency_at_purchase,
	s.plan_snapshot, s.features_at_purchase, s.previous_subscription_id,
	s.cancelled_at, s.cancellation_reason, s.cancelled_by, s.replaced_by_subscription_id,
	s.order_id, s.payment_transaction_id, s.auto_renew,
	s.next_plan_id, s.next_pricing_id, s.plan_change_status, s.created_at, s.updated_at`

type SubscriptionRepository struct {
	db Querier
}

func NewSubscriptionRepository(db *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) InTx(ctx context.Context, fn func(ctx context.Context, repo subscription.Repository) error) error {
	return inTx(ctx, r.db, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &SubscriptionRepository{db: tx})
	})
}

// LockUser takes a transaction-scoped advisory lock on the user id.
func (r *SubscriptionRepository) LockUser(ctx context.Context, userID string) error {
	if _, err := r.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID); err != nil {
		return fmt.Errorf("failed to lock user subscriptions: %w", err)
	}
	return nil
}

func scanSubscription(row pgx.Row, extra ...any) (*subscription.Subscription, error) {
	var (
		s                      subscription.Subscription
		snapshotJSON, features []byte
	)
	dest := []any{
		&s.ID, &s.UserID, &s.PlanID, &s.PricingID, &s.Status, &s.StartDate, &s.EndDate,
		&s.BillingCycle, &s.BillingPeriodMonths, &s.PriceAtPurchase, &s.CurrencyAtPurchase,
		&snapshotJSON, &features, &s.PreviousSubscriptionID,
		&s.CancelledAt, &s.CancellationReason, &s.CancelledBy, &s.ReplacedBySubscriptionID,
		&s.OrderID, &s.PaymentTransactionID, &s.AutoRenew,
		&s.NextPlanID, &s.NextPricingID, &s.PlanChangeStatus, &s.CreatedAt, &s.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	if len(snapshotJSON) > 0 {
		if err := json.Unmarshal(snapshotJSON, &s.PlanSnapshot); err != nil {
			return nil, fmt.Errorf("failed to unmarshal plan snapshot: %w", err)
		}
	}
	if len(features) > 0 && string(features) != "null" {
		s.FeaturesAtPurchase = &plan.Features{}
		if err := json.Unmarshal(features, s.FeaturesAtPurchase); err != nil {
			return nil, fmt.Errorf("failed to unmarshal features: %w", err)
		}
	}
	return &s, nil
}

func (r *SubscriptionRepository) list(ctx context.Context, query string, args ...any) ([]subscription.Subscription, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []subscription.Subscription{}
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, *s)
	}
	return subs, rows.Err()
}

func (r *SubscriptionRepository) Create(ctx context.Context, s *subscription.Subscription) error {
	snapshotJSON, err := json.Marshal(s.PlanSnapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal plan snapshot: %w", err)
	}
	var featuresJSON []byte
	if s.FeaturesAtPurchase != nil {
		if featuresJSON, err = json.Marshal(s.FeaturesAtPurchase); err != nil {
			return fmt.Errorf("failed to marshal features: %w", err)
		}
	}

	query := `
		INSERT INTO user_subscriptions (
			id, user_id, plan_id, pricing_id, status, start_date, end_date,
			billing_cycle, billing_period_months, price_at_purchase, currency_at_purchase,
			plan_snapshot, features_at_purchase, previous_subscription_id,
			order_id, payment_transaction_id, auto_renew
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING created_at, updated_at
	`
	err = r.db.QueryRow(ctx, query,
		s.ID, s.UserID, s.PlanID, s.PricingID, s.Status, s.StartDate, s.EndDate,
		s.BillingCycle, s.BillingPeriodMonths, s.PriceAtPurchase, s.CurrencyAtPurchase,
		snapshotJSON, featuresJSON, s.PreviousSubscriptionID,
		s.OrderID, s.PaymentTransactionID, s.AutoRenew,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return mapError(err, "subscription")
	}
	return nil
}

func (r *SubscriptionRepository) FindByID(ctx context.Context, id string) (*subscription.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM user_subscriptions s WHERE s.id = $1`

	s, err := scanSubscription(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapError(err, "subscription")
	}
	return s, nil
}

func (r *SubscriptionRepository) FindByOrderID(ctx context.Context, orderID string) (*subscription.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM user_subscriptions s WHERE s.order_id = $1`

	s, err := scanSubscription(r.db.QueryRow(ctx, query, orderID))
	if err != nil {
		return nil, mapError(err, "subscription")
	}
	return s, nil
}

// ListActiveByUser loads the live plan tier with each row; supersession
// compares against it rather than the purchase snapshot.
func (r *SubscriptionRepository) ListActiveByUser(ctx context.Context, userID string) ([]subscription.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `, p.tier
		FROM user_subscriptions s
		JOIN subscription_plans p ON p.id = s.plan_id
		WHERE s.user_id = $1 AND s.status = 'active'
		ORDER BY s.created_at`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []subscription.Subscription{}
	for rows.Next() {
		var tier plan.Tier
		s, err := scanSubscription(rows, &tier)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		s.PlanTier = tier
		subs = append(subs, *s)
	}
	return subs, rows.Err()
}

func (r *SubscriptionRepository) ListByUser(ctx context.Context, userID string) ([]subscription.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `
		FROM user_subscriptions s
		WHERE s.user_id = $1
		ORDER BY s.created_at DESC`
	return r.list(ctx, query, userID)
}

func (r *SubscriptionRepository) Cancel(ctx context.Context, id string, c subscription.Cancellation) error {
	query := `
		UPDATE user_subscriptions
		SET status = 'cancelled', cancelled_at = $2, cancellation_reason = $3, cancelled_by = $4,
			replaced_by_subscription_id = $5, auto_renew = FALSE, updated_at = NOW()
		WHERE id = $1 AND status IN ('active', 'suspended') AND ($6::text = '' OR status = $6)
	`
	tag, err := r.db.Exec(ctx, query, id, c.At, c.Reason, c.By, c.ReplacedBy, string(c.From))
	if err != nil {
		return mapError(err, "subscription")
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrInvalid(ctx, id)
	}
	return nil
}

func (r *SubscriptionRepository) UpdateStatus(ctx context.Context, id string, from, to subscription.SubscriptionStatus) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE user_subscriptions SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return mapError(err, "subscription")
	}
	if tag.RowsAffected() == 0 {
		return xerrors.Wrap(xerrors.ErrConflict, fmt.Sprintf("subscription is no longer %s", from))
	}
	return nil
}

func (r *SubscriptionRepository) SetPlanChange(ctx context.Context, id string, nextPlanID, nextPricingID *string, status *subscription.PlanChangeStatus) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE user_subscriptions
		SET next_plan_id = $2, next_pricing_id = $3, plan_change_status = $4, updated_at = NOW()
		WHERE id = $1
	`, id, nextPlanID, nextPricingID, status)
	if err != nil {
		return mapError(err, "subscription")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("subscription not found: %w", xerrors.ErrNotFound)
	}
	return nil
}

func (r *SubscriptionRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]subscription.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `
		FROM user_subscriptions s
		WHERE s.status = 'active' AND s.end_date <= $1
		ORDER BY s.end_date
		LIMIT $2`
	return r.list(ctx, query, now, limit)
}

// Expire only touches active rows; a row another sweep already expired
// reports not found.
func (r *SubscriptionRepository) Expire(ctx context.Context, id string, replacedBy *string, planChange *subscription.PlanChangeStatus) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE user_subscriptions
		SET status = 'expired',
			replaced_by_subscription_id = COALESCE($2, replaced_by_subscription_id),
			plan_change_status = COALESCE($3, plan_change_status),
			updated_at = NOW()
		WHERE id = $1 AND status = 'active'
	`, id, replacedBy, planChange)
	if err != nil {
		return mapError(err, "subscription")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("active subscription %s not found: %w", id, xerrors.ErrNotFound)
	}
	return nil
}

func (r *SubscriptionRepository) ExpireBatch(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE user_subscriptions
		SET status = 'expired', updated_at = NOW()
		WHERE id = ANY($1::uuid[]) AND status = 'active'
	`, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("failed to expire subscriptions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *SubscriptionRepository) missingOrInvalid(ctx context.Context, id string) error {
	var status subscription.SubscriptionStatus
	err := r.db.QueryRow(ctx, `SELECT status FROM user_subscriptions WHERE id = $1`, id).Scan(&status)
	if err != nil {
		return mapError(err, "subscription")
	}
	return xerrors.Wrap(xerrors.ErrInvalidTransition, fmt.Sprintf("subscription is %s", status))
}

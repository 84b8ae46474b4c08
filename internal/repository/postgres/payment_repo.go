// internal/repository/postgres/payment_repo.go
package postgres

import (
	"context"
	"fmt"
	"time"

	"medlink-service/internal/domain/payment"
	xerrors "medlink-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	orderColumns = `id, user_id, order_type, plan_id, pricing_id, amount, currency, status,
		receipt, gateway_order_id, paid_at, created_at, updated_at`
	transactionColumns = `id, order_id, user_id, gateway, gateway_payment_id, reference, amount,
		currency, status, COALESCE(method, ''), created_at`
	jobColumns = `id, order_id, user_id, plan_id, pricing_id, payment_transaction_id, status,
		attempts, last_error, next_attempt_at, locked_until, subscription_id, created_at, updated_at`
)

type PaymentRepository struct {
	db Querier
}

func NewPaymentRepository(db *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) InTx(ctx context.Context, fn func(ctx context.Context, repo payment.Repository) error) error {
	return inTx(ctx, r.db, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &PaymentRepository{db: tx})
	})
}

func scanOrder(row pgx.Row) (*payment.Order, error) {
	var o payment.Order
	err := row.Scan(
		&o.ID, &o.UserID, &o.OrderType, &o.PlanID, &o.PricingID, &o.Amount, &o.Currency, &o.Status,
		&o.Receipt, &o.GatewayOrderID, &o.PaidAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func scanJob(row pgx.Row) (*payment.SubscriptionJob, error) {
	var j payment.SubscriptionJob
	err := row.Scan(
		&j.ID, &j.OrderID, &j.UserID, &j.PlanID, &j.PricingID, &j.PaymentTransactionID, &j.Status,
		&j.Attempts, &j.LastError, &j.NextAttemptAt, &j.LockedUntil, &j.SubscriptionID, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *PaymentRepository) CreateOrder(ctx context.Context, o *payment.Order) error {
	query := `
		INSERT INTO payment_orders (
			id, user_id, order_type, plan_id, pricing_id, amount, currency, status, receipt, gateway_order_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		o.ID, o.UserID, o.OrderType, o.PlanID, o.PricingID, o.Amount, o.Currency, o.Status, o.Receipt, o.GatewayOrderID,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return mapError(err, "order")
	}
	return nil
}

func (r *PaymentRepository) FindOrder(ctx context.Context, id string) (*payment.Order, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM payment_orders WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err, "order")
	}
	return o, nil
}

func (r *PaymentRepository) LockOrderByGatewayID(ctx context.Context, gatewayOrderID string) (*payment.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM payment_orders WHERE gateway_order_id = $1 FOR UPDATE`

	o, err := scanOrder(r.db.QueryRow(ctx, query, gatewayOrderID))
	if err != nil {
		return nil, mapError(err, "order")
	}
	return o, nil
}

func (r *PaymentRepository) MarkOrderPaid(ctx context.Context, id string, paidAt time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE payment_orders SET status = 'paid', paid_at = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'created'
	`, id, paidAt)
	if err != nil {
		return mapError(err, "order")
	}
	if tag.RowsAffected() == 0 {
		return xerrors.Wrap(xerrors.ErrInvalidTransition, "order is not awaiting payment")
	}
	return nil
}

func (r *PaymentRepository) CreateTransaction(ctx context.Context, t *payment.Transaction) error {
	query := `
		INSERT INTO payment_transactions (
			id, order_id, user_id, gateway, gateway_payment_id, reference, amount, currency, status, method, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11)
	`
	_, err := r.db.Exec(ctx, query,
		t.ID, t.OrderID, t.UserID, t.Gateway, t.GatewayPaymentID, t.Reference,
		t.Amount, t.Currency, t.Status, t.Method, t.CreatedAt,
	)
	if err != nil {
		return mapError(err, "payment transaction")
	}
	return nil
}

func (r *PaymentRepository) FindTransactionByOrder(ctx context.Context, orderID string) (*payment.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM payment_transactions
		WHERE order_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	var t payment.Transaction
	err := r.db.QueryRow(ctx, query, orderID).Scan(
		&t.ID, &t.OrderID, &t.UserID, &t.Gateway, &t.GatewayPaymentID, &t.Reference, &t.Amount,
		&t.Currency, &t.Status, &t.Method, &t.CreatedAt,
	)
	if err != nil {
		return nil, mapError(err, "payment transaction")
	}
	return &t, nil
}

func (r *PaymentRepository) EnqueueJob(ctx context.Context, j *payment.SubscriptionJob) error {
	query := `
		INSERT INTO subscription_jobs (
			id, order_id, user_id, plan_id, pricing_id, payment_transaction_id, status,
			attempts, next_attempt_at, locked_until
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		j.ID, j.OrderID, j.UserID, j.PlanID, j.PricingID, j.PaymentTransactionID, j.Status,
		j.Attempts, j.NextAttemptAt, j.LockedUntil,
	).Scan(&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return mapError(err, "subscription job")
	}
	return nil
}

func (r *PaymentRepository) FindJobByOrder(ctx context.Context, orderID string) (*payment.SubscriptionJob, error) {
	j, err := scanJob(r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM subscription_jobs WHERE order_id = $1`, orderID))
	if err != nil {
		return nil, mapError(err, "subscription job")
	}
	return j, nil
}

// ClaimDueJobs leases due jobs in one statement. SKIP LOCKED lets several
// workers claim disjoint batches.
func (r *PaymentRepository) ClaimDueJobs(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]payment.SubscriptionJob, error) {
	query := `
		UPDATE subscription_jobs
		SET locked_until = $2, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM subscription_jobs
			WHERE status = 'pending'
				AND next_attempt_at <= $1
				AND (locked_until IS NULL OR locked_until < $1)
			ORDER BY next_attempt_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns

	rows, err := r.db.Query(ctx, query, now, now.Add(lease), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim subscription jobs: %w", err)
	}
	defer rows.Close()

	jobs := []payment.SubscriptionJob{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func (r *PaymentRepository) CompleteJob(ctx context.Context, id, subscriptionID string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE subscription_jobs
		SET status = 'done', subscription_id = $2, locked_until = NULL, updated_at = NOW()
		WHERE id = $1
	`, id, subscriptionID)
	if err != nil {
		return mapError(err, "subscription job")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("subscription job not found: %w", xerrors.ErrNotFound)
	}
	return nil
}

// FailJob records an attempt on a pending job. A job completed by a
// concurrent attempt is left untouched.
func (r *PaymentRepository) FailJob(ctx context.Context, id, lastError string, nextAttemptAt time.Time, dead bool) error {
	status := payment.JobPending
	if dead {
		status = payment.JobFailed
	}
	_, err := r.db.Exec(ctx, `
		UPDATE subscription_jobs
		SET attempts = attempts + 1, last_error = $2, next_attempt_at = $3, status = $4,
			locked_until = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id, lastError, nextAttemptAt, status)
	if err != nil {
		return mapError(err, "subscription job")
	}
	return nil
}

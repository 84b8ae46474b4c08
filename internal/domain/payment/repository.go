package payment

import (
	"context"
	"time"
)

type Repository interface {
	InTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error

	CreateOrder(ctx context.Context, order *Order) error
	FindOrder(ctx context.Context, id string) (*Order, error)
	// LockOrderByGatewayID loads the order and row-locks it for the
	// remainder of the transaction.
	LockOrderByGatewayID(ctx context.Context, gatewayOrderID string) (*Order, error)
	MarkOrderPaid(ctx context.Context, id string, paidAt time.Time) error

	CreateTransaction(ctx context.Context, tx *Transaction) error
	FindTransactionByOrder(ctx context.Context, orderID string) (*Transaction, error)

	EnqueueJob(ctx context.Context, job *SubscriptionJob) error
	FindJobByOrder(ctx context.Context, orderID string) (*SubscriptionJob, error)
	// ClaimDueJobs leases up to limit pending jobs whose next attempt is due.
	ClaimDueJobs(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]SubscriptionJob, error)
	CompleteJob(ctx context.Context, id, subscriptionID string) error
	FailJob(ctx context.Context, id, lastError string, nextAttemptAt time.Time, dead bool) error
}

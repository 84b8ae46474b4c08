package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderCreated OrderStatus = "created"
	OrderPaid    OrderStatus = "paid"
	OrderFailed  OrderStatus = "failed"
)

type OrderType string

const OrderTypeSubscription OrderType = "subscription"

// Order is a purchase intent for one plan price point.
type Order struct {
	ID             string          `json:"id" db:"id"`
	UserID         string          `json:"user_id" db:"user_id"`
	OrderType      OrderType       `json:"order_type" db:"order_type"`
	PlanID         string          `json:"plan_id" db:"plan_id"`
	PricingID      *string         `json:"pricing_id,omitempty" db:"pricing_id"`
	Amount         decimal.Decimal `json:"amount" db:"amount"`
	Currency       string          `json:"currency" db:"currency"`
	Status         OrderStatus     `json:"status" db:"status"`
	Receipt        string          `json:"receipt" db:"receipt"`
	GatewayOrderID string          `json:"gateway_order_id" db:"gateway_order_id"`
	PaidAt         *time.Time      `json:"paid_at,omitempty" db:"paid_at"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

type TransactionStatus string

const (
	TransactionSuccess TransactionStatus = "success"
	TransactionPending TransactionStatus = "pending"
	TransactionFailed  TransactionStatus = "failed"
)

// Transaction records a gateway payment against an order.
type Transaction struct {
	ID               string            `json:"id" db:"id"`
	OrderID          string            `json:"order_id" db:"order_id"`
	UserID           string            `json:"user_id" db:"user_id"`
	Gateway          string            `json:"gateway" db:"gateway"`
	GatewayPaymentID string            `json:"gateway_payment_id" db:"gateway_payment_id"`
	Reference        string            `json:"reference" db:"reference"`
	Amount           decimal.Decimal   `json:"amount" db:"amount"`
	Currency         string            `json:"currency" db:"currency"`
	Status           TransactionStatus `json:"status" db:"status"`
	Method           string            `json:"method,omitempty" db:"method"`
	CreatedAt        time.Time         `json:"created_at" db:"created_at"`
}

// Outcome is what a gateway verifier reports for a payment.
type Outcome struct {
	Gateway          string
	GatewayOrderID   string
	GatewayPaymentID string
	Status           TransactionStatus
	Amount           decimal.Decimal
	Currency         string
	Method           string
}

type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// SubscriptionJob is a durable "subscription owed" work item written in
// the same transaction that marks its order paid.
type SubscriptionJob struct {
	ID                   string     `json:"id" db:"id"`
	OrderID              string     `json:"order_id" db:"order_id"`
	UserID               string     `json:"user_id" db:"user_id"`
	PlanID               string     `json:"plan_id" db:"plan_id"`
	PricingID            *string    `json:"pricing_id,omitempty" db:"pricing_id"`
	PaymentTransactionID string     `json:"payment_transaction_id" db:"payment_transaction_id"`
	Status               JobStatus  `json:"status" db:"status"`
	Attempts             int        `json:"attempts" db:"attempts"`
	LastError            *string    `json:"last_error,omitempty" db:"last_error"`
	NextAttemptAt        time.Time  `json:"next_attempt_at" db:"next_attempt_at"`
	LockedUntil          *time.Time `json:"locked_until,omitempty" db:"locked_until"`
	SubscriptionID       *string    `json:"subscription_id,omitempty" db:"subscription_id"`
	CreatedAt            time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at" db:"updated_at"`
}

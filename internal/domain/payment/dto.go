package payment

import "medlink-service/internal/domain/subscription"

type CreateOrderRequest struct {
	PlanID    string  `json:"plan_id" binding:"required,uuid"`
	PricingID *string `json:"pricing_id" binding:"omitempty,uuid"`
}

type VerifyPaymentRequest struct {
	GatewayOrderID   string `json:"gateway_order_id" binding:"required"`
	GatewayPaymentID string `json:"gateway_payment_id" binding:"required"`
	Signature        string `json:"signature" binding:"required"`
}

// VerifyResult is returned once a payment has been recorded. When
// activation could not finish inline, SubscriptionPending is true and the
// outbox worker completes it.
type VerifyResult struct {
	Order               *Order                     `json:"order"`
	Transaction         *Transaction               `json:"transaction"`
	Subscription        *subscription.Subscription `json:"subscription,omitempty"`
	SubscriptionPending bool                       `json:"subscription_pending"`
}

// BatchResult summarises one outbox pass.
type BatchResult struct {
	Claimed   int `json:"claimed"`
	Completed int `json:"completed"`
	Retried   int `json:"retried"`
	Failed    int `json:"failed"`
}

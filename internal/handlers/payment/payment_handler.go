// internal/handlers/payment/payment_handler.go
package payment

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"medlink-service/internal/domain/payment"
	"medlink-service/internal/domain/plan"
	"medlink-service/internal/middleware"
	xerrors "medlink-service/internal/pkg/errors"
	"medlink-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxWebhookBody = 64 << 10

type PaymentService interface {
	CreateOrder(ctx context.Context, userID string, role plan.Role, req *payment.CreateOrderRequest) (*payment.Order, error)
	Verify(ctx context.Context, userID string, req *payment.VerifyPaymentRequest) (*payment.VerifyResult, error)
	HandleStripeWebhook(ctx context.Context, payload []byte, signatureHeader string) (*payment.VerifyResult, error)
	ProcessDue(ctx context.Context, batch int) (*payment.BatchResult, error)
}

type PaymentHandler struct {
	payments PaymentService
	logger   *zap.Logger
}

func NewPaymentHandler(payments PaymentService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		payments: payments,
		logger:   logger,
	}
}

// CreateOrder opens a gateway order for a plan of the caller's audience
func (h *PaymentHandler) CreateOrder(c *gin.Context) {
	var req payment.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	role := plan.Role(middleware.GetRole(c))
	if role != plan.RoleDoctor && role != plan.RoleHospital {
		response.Forbidden(c, "only doctors and hospitals can buy plans")
		return
	}

	order, err := h.payments.CreateOrder(c.Request.Context(), middleware.MustGetUserID(c), role, &req)
	if err != nil {
		response.FromError(c, "failed to create order", err)
		return
	}

	response.Success(c, http.StatusCreated, "order created", order)
}

// VerifyPayment checks the checkout signature, records the payment and
// activates the purchased subscription
func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	var req payment.VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.payments.Verify(c.Request.Context(), middleware.MustGetUserID(c), &req)
	if err != nil {
		response.FromError(c, "payment verification failed", err)
		return
	}

	message := "payment verified and subscription activated"
	if result.SubscriptionPending {
		message = "payment verified, subscription activation pending"
	}
	response.Success(c, http.StatusOK, message, result)
}

// StripeWebhook receives Stripe events. Only the signature decides
// whether the request is trusted.
func (h *PaymentHandler) StripeWebhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	payload, err := c.GetRawData()
	if err != nil {
		response.ValidationError(c, "unreadable payload", err)
		return
	}

	result, err := h.payments.HandleStripeWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	switch {
	case errors.Is(err, xerrors.ErrPaymentNotSuccessful):
		// acknowledged so Stripe stops retrying
		response.Success(c, http.StatusOK, "event ignored", nil)
		return
	case err != nil:
		h.logger.Warn("stripe webhook rejected", zap.Error(err))
		response.FromError(c, "webhook rejected", err)
		return
	}

	if result == nil {
		response.Success(c, http.StatusOK, "event ignored", nil)
		return
	}
	response.Success(c, http.StatusOK, "event processed", gin.H{
		"order_id":             result.Order.ID,
		"subscription_pending": result.SubscriptionPending,
	})
}

// ========== Admin Endpoints ==========

// RunSubscriptionJobs processes one batch of due activation jobs now
func (h *PaymentHandler) RunSubscriptionJobs(c *gin.Context) {
	batch, err := strconv.Atoi(c.DefaultQuery("batch", "50"))
	if err != nil || batch < 1 || batch > 500 {
		batch = 50
	}

	result, err := h.payments.ProcessDue(c.Request.Context(), batch)
	if err != nil {
		response.FromError(c, "failed to process subscription jobs", err)
		return
	}

	response.Success(c, http.StatusOK, "subscription jobs processed", result)
}

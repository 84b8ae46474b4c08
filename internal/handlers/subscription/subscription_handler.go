// internal/handlers/subscription/subscription_handler.go
package subscription

import (
	"context"
	"errors"
	"net/http"

	"medlink-service/internal/domain/subscription"
	"medlink-service/internal/middleware"
	xerrors "medlink-service/internal/pkg/errors"
	"medlink-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

type SubscriptionService interface {
	GetActive(ctx context.Context, userID string) (*subscription.Subscription, error)
	List(ctx context.Context, userID string) ([]subscription.Subscription, error)
	Cancel(ctx context.Context, subscriptionID, actorID string, by subscription.CancelledBy, reason string) (*subscription.Subscription, error)
	Suspend(ctx context.Context, subscriptionID string) (*subscription.Subscription, error)
	Reactivate(ctx context.Context, subscriptionID string) (*subscription.Subscription, error)
	ScheduleDowngrade(ctx context.Context, userID string, req *subscription.PlanChangeRequest) (*subscription.Subscription, error)
	CancelScheduledChange(ctx context.Context, userID string) (*subscription.Subscription, error)
}

type SubscriptionHandler struct {
	subscriptions SubscriptionService
}

func NewSubscriptionHandler(subscriptions SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptions: subscriptions}
}

// ========== User Endpoints ==========

// GetMySubscription returns the caller's effective subscription, or null
// when they have none
func (h *SubscriptionHandler) GetMySubscription(c *gin.Context) {
	sub, err := h.subscriptions.GetActive(c.Request.Context(), middleware.MustGetUserID(c))
	if errors.Is(err, xerrors.ErrNotFound) {
		response.Success(c, http.StatusOK, "no active subscription", nil)
		return
	}
	if err != nil {
		response.FromError(c, "failed to get subscription", err)
		return
	}

	response.Success(c, http.StatusOK, "subscription retrieved", sub)
}

func (h *SubscriptionHandler) GetMyHistory(c *gin.Context) {
	subs, err := h.subscriptions.List(c.Request.Context(), middleware.MustGetUserID(c))
	if err != nil {
		response.FromError(c, "failed to list subscriptions", err)
		return
	}

	response.Success(c, http.StatusOK, "subscriptions retrieved", gin.H{
		"subscriptions": subs,
		"count":         len(subs),
	})
}

// CancelSubscription cancels one of the caller's own subscriptions
func (h *SubscriptionHandler) CancelSubscription(c *gin.Context) {
	h.cancel(c, middleware.MustGetUserID(c), subscription.CancelledByUser)
}

func (h *SubscriptionHandler) SchedulePlanChange(c *gin.Context) {
	var req subscription.PlanChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	sub, err := h.subscriptions.ScheduleDowngrade(c.Request.Context(), middleware.MustGetUserID(c), &req)
	if err != nil {
		response.FromError(c, "failed to schedule plan change", err)
		return
	}

	response.Success(c, http.StatusOK, "plan change scheduled", sub)
}

func (h *SubscriptionHandler) CancelPlanChange(c *gin.Context) {
	sub, err := h.subscriptions.CancelScheduledChange(c.Request.Context(), middleware.MustGetUserID(c))
	if err != nil {
		response.FromError(c, "failed to cancel plan change", err)
		return
	}

	response.Success(c, http.StatusOK, "plan change cancelled", sub)
}

// ========== Admin Endpoints ==========

func (h *SubscriptionHandler) SuspendSubscription(c *gin.Context) {
	sub, err := h.subscriptions.Suspend(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, "failed to suspend subscription", err)
		return
	}

	response.Success(c, http.StatusOK, "subscription suspended", sub)
}

func (h *SubscriptionHandler) ReactivateSubscription(c *gin.Context) {
	sub, err := h.subscriptions.Reactivate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, "failed to reactivate subscription", err)
		return
	}

	response.Success(c, http.StatusOK, "subscription reactivated", sub)
}

// AdminCancelSubscription cancels any user's active or suspended subscription
func (h *SubscriptionHandler) AdminCancelSubscription(c *gin.Context) {
	h.cancel(c, middleware.MustGetUserID(c), subscription.CancelledByAdmin)
}

func (h *SubscriptionHandler) cancel(c *gin.Context, actorID string, by subscription.CancelledBy) {
	var req subscription.CancelRequest
	// the body is optional
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ValidationError(c, "invalid request", err)
			return
		}
	}

	sub, err := h.subscriptions.Cancel(c.Request.Context(), c.Param("id"), actorID, by, req.Reason)
	if err != nil {
		response.FromError(c, "failed to cancel subscription", err)
		return
	}

	response.Success(c, http.StatusOK, "subscription cancelled", sub)
}

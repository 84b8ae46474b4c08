// internal/handlers/notification/notification_handler.go
package notification

import (
	"context"
	"net/http"

	"medlink-service/internal/domain/notification"
	"medlink-service/internal/middleware"
	"medlink-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

// Inbox is the notification read side used by the handler.
type Inbox interface {
	List(ctx context.Context, userID string, filters *notification.ListFilters) (*notification.ListResponse, error)
	MarkRead(ctx context.Context, userID string, ids []string) (int64, error)
}

type NotificationHandler struct {
	inbox Inbox
}

func NewNotificationHandler(inbox Inbox) *NotificationHandler {
	return &NotificationHandler{inbox: inbox}
}

// GetNotifications retrieves paginated notifications for the current user
func (h *NotificationHandler) GetNotifications(c *gin.Context) {
	userID := middleware.MustGetUserID(c)

	var filters notification.ListFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		response.ValidationError(c, "invalid query parameters", err)
		return
	}

	result, err := h.inbox.List(c.Request.Context(), userID, &filters)
	if err != nil {
		response.FromError(c, "failed to get notifications", err)
		return
	}

	response.Success(c, http.StatusOK, "notifications retrieved", result)
}

// MarkAsRead marks a single notification as read
func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	userID := middleware.MustGetUserID(c)

	updated, err := h.inbox.MarkRead(c.Request.Context(), userID, []string{c.Param("id")})
	if err != nil {
		response.FromError(c, "failed to mark as read", err)
		return
	}
	if updated == 0 {
		response.NotFound(c, "notification not found or already read")
		return
	}

	response.Success(c, http.StatusOK, "notification marked as read", gin.H{"updated": updated})
}

// MarkManyAsRead marks a batch of notifications as read
func (h *NotificationHandler) MarkManyAsRead(c *gin.Context) {
	userID := middleware.MustGetUserID(c)

	var req struct {
		IDs []string `json:"ids" binding:"required,min=1,max=100,dive,uuid"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	updated, err := h.inbox.MarkRead(c.Request.Context(), userID, req.IDs)
	if err != nil {
		response.FromError(c, "failed to mark as read", err)
		return
	}

	response.Success(c, http.StatusOK, "notifications marked as read", gin.H{"updated": updated})
}

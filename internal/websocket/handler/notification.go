// internal/websocket/handler/notification.go
package handlers

import (
	"context"
	"fmt"

	"medlink-service/internal/domain/notification"
	wstypes "medlink-service/internal/domain/websocket"
	ws "medlink-service/internal/websocket"
)

// NotificationInbox is the part of the notification service the socket
// exposes.
type NotificationInbox interface {
	List(ctx context.Context, userID string, filters *notification.ListFilters) (*notification.ListResponse, error)
	MarkRead(ctx context.Context, userID string, ids []string) (int64, error)
}

type NotificationHandler struct {
	inbox NotificationInbox
}

func NewNotificationHandler(inbox NotificationInbox) *NotificationHandler {
	return &NotificationHandler{inbox: inbox}
}

func (h *NotificationHandler) SupportedEvents() []wstypes.EventType {
	return []wstypes.EventType{
		wstypes.EventTypeNotificationRead,
		wstypes.EventTypeNotificationList,
		wstypes.EventTypeNotificationCount,
	}
}

func (h *NotificationHandler) HandleMessage(ctx context.Context, client *ws.Client, msg *wstypes.WSMessage) error {
	switch msg.Type {
	case wstypes.EventTypeNotificationRead:
		return h.handleMarkRead(ctx, client, msg)
	case wstypes.EventTypeNotificationList:
		return h.handleList(ctx, client, msg)
	case wstypes.EventTypeNotificationCount:
		return h.handleCount(ctx, client)
	default:
		return fmt.Errorf("unsupported event type: %s", msg.Type)
	}
}

func (h *NotificationHandler) handleMarkRead(ctx context.Context, client *ws.Client, msg *wstypes.WSMessage) error {
	var req wstypes.NotificationReadRequest
	if err := msg.DecodeData(&req); err != nil {
		return fmt.Errorf("invalid mark read request: %w", err)
	}

	// MarkRead pushes the refreshed unread count itself
	updated, err := h.inbox.MarkRead(ctx, client.UserID(), req.IDs)
	if err != nil {
		return err
	}

	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeNotificationRead, map[string]interface{}{
		"ids":     req.IDs,
		"updated": updated,
	}))
	return nil
}

func (h *NotificationHandler) handleList(ctx context.Context, client *ws.Client, msg *wstypes.WSMessage) error {
	var req wstypes.NotificationListRequest
	if msg.Data != nil {
		if err := msg.DecodeData(&req); err != nil {
			return fmt.Errorf("invalid list request: %w", err)
		}
	}
	if req.PageSize <= 0 || req.PageSize > 50 {
		req.PageSize = 10
	}

	res, err := h.inbox.List(ctx, client.UserID(), &notification.ListFilters{
		IsRead:   req.IsRead,
		Page:     req.Page,
		PageSize: req.PageSize,
	})
	if err != nil {
		return err
	}

	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeNotificationList, res))
	return nil
}

func (h *NotificationHandler) handleCount(ctx context.Context, client *ws.Client) error {
	res, err := h.inbox.List(ctx, client.UserID(), &notification.ListFilters{Page: 1, PageSize: 1})
	if err != nil {
		return err
	}

	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeNotificationCount, map[string]interface{}{
		"unread_count": res.Unread,
	}))
	return nil
}

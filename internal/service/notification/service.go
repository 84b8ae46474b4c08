// internal/service/notification/service.go
package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"medlink-service/internal/domain/notification"
	wstypes "medlink-service/internal/domain/websocket"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Pusher delivers realtime events to a connected user.
type Pusher interface {
	PushNotification(userID string, data *wstypes.NotificationData)
	PushUnreadCount(userID string, count int64)
}

// Service persists notifications and pushes them over websocket.
type Service struct {
	repo    notification.Repository
	pusher  Pusher
	logger  *zap.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewService(repo notification.Repository, pusher Pusher, logger *zap.Logger) *Service {
	return &Service{
		repo:    repo,
		pusher:  pusher,
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

// Notify sends msg in the background. Failures are logged and never
// reach the caller.
func (s *Service) Notify(ctx context.Context, msg notification.Message) {
	if msg.UserID == "" {
		return
	}
	bg := context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(bg, s.timeout)
		defer cancel()

		if _, err := s.Deliver(ctx, msg); err != nil {
			s.logger.Warn("notification delivery failed",
				zap.String("user_id", msg.UserID),
				zap.String("title", msg.Title),
				zap.Error(err),
			)
		}
	}()
}

// Deliver stores the notification and pushes it to live connections.
func (s *Service) Deliver(ctx context.Context, msg notification.Message) (*notification.Notification, error) {
	n := &notification.Notification{
		ID:        uuid.NewString(),
		UserID:    msg.UserID,
		Title:     msg.Title,
		Message:   msg.Body,
		Type:      msg.Type,
		Metadata:  msg.Data,
		CreatedAt: time.Now(),
	}
	if n.Type == "" {
		n.Type = notification.TypeSystem
	}

	if err := s.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	if s.pusher != nil {
		s.pusher.PushNotification(n.UserID, &wstypes.NotificationData{
			ID:        n.ID,
			Title:     n.Title,
			Message:   n.Message,
			Type:      string(n.Type),
			IsRead:    n.IsRead,
			Metadata:  n.Metadata,
			CreatedAt: n.CreatedAt,
		})
	}
	return n, nil
}

// List returns a page of the user's notifications with the unread count.
func (s *Service) List(ctx context.Context, userID string, filters *notification.ListFilters) (*notification.ListResponse, error) {
	if filters == nil {
		filters = &notification.ListFilters{}
	}
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 {
		filters.PageSize = 20
	}
	if filters.PageSize > 100 {
		filters.PageSize = 100
	}

	items, total, err := s.repo.ListByUser(ctx, userID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to get notifications: %w", err)
	}
	unread, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	if items == nil {
		items = []notification.Notification{}
	}

	totalPages := int(total) / filters.PageSize
	if int(total)%filters.PageSize > 0 {
		totalPages++
	}

	return &notification.ListResponse{
		Notifications: items,
		Unread:        unread,
		Total:         total,
		Page:          filters.Page,
		PageSize:      filters.PageSize,
		TotalPages:    totalPages,
	}, nil
}

// MarkRead flags the given notifications as read and pushes the new
// unread count.
func (s *Service) MarkRead(ctx context.Context, userID string, ids []string) (int64, error) {
	n, err := s.repo.MarkRead(ctx, userID, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to mark as read: %w", err)
	}

	if s.pusher != nil {
		count, err := s.repo.CountUnread(ctx, userID)
		if err != nil {
			s.logger.Warn("failed to get unread count", zap.String("user_id", userID), zap.Error(err))
		} else {
			s.pusher.PushUnreadCount(userID, count)
		}
	}
	return n, nil
}

// Wait blocks until background deliveries finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

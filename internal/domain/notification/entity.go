package notification

import (
	"context"
	"time"
)

type NotificationType string

const (
	TypeSystem       NotificationType = "system"
	TypeAssignment   NotificationType = "assignment"
	TypeSubscription NotificationType = "subscription"
	TypeUsage        NotificationType = "usage"
)

type Notification struct {
	ID        string                 `json:"id" db:"id"`
	UserID    string                 `json:"user_id" db:"user_id"`
	Title     string                 `json:"title" db:"title"`
	Message   string                 `json:"message" db:"message"`
	Type      NotificationType       `json:"type" db:"type"`
	Metadata  map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	IsRead    bool                   `json:"is_read" db:"is_read"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
	ReadAt    *time.Time             `json:"read_at,omitempty" db:"read_at"`
}

// DTOs

// Message is what callers hand to the sink.
type Message struct {
	UserID string
	Title  string
	Body   string
	Type   NotificationType
	Data   map[string]interface{}
}

type ListFilters struct {
	IsRead   *bool `form:"is_read"`
	Page     int   `form:"page"`
	PageSize int   `form:"page_size"`
}

type ListResponse struct {
	Notifications []Notification `json:"notifications"`
	Unread        int64          `json:"unread"`
	Total         int64          `json:"total"`
	Page          int            `json:"page"`
	PageSize      int            `json:"page_size"`
	TotalPages    int            `json:"total_pages"`
}

type Repository interface {
	Create(ctx context.Context, n *Notification) error
	ListByUser(ctx context.Context, userID string, filters *ListFilters) ([]Notification, int64, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, userID string, ids []string) (int64, error)
}

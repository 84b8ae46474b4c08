// internal/repository/postgres/notification_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"medlink-service/internal/domain/audit"
	"medlink-service/internal/domain/notification"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

type NotificationRepository struct {
	db *pgxpool.Pool
}

func NewNotificationRepository(db *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create creates a new notification
func (r *NotificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	query := `
		INSERT INTO notifications (id, user_id, title, message, type, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	var metadataJSON []byte
	var err error
	if n.Metadata != nil {
		metadataJSON, err = json.Marshal(n.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	_, err = r.db.Exec(ctx, query, n.ID, n.UserID, n.Title, n.Message, n.Type, metadataJSON, n.CreatedAt)
	if err != nil {
		return mapError(err, "notification")
	}
	return nil
}

// ListByUser returns a page of the user's notifications, newest first
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, filters *notification.ListFilters) ([]notification.Notification, int64, error) {
	conditions := []string{"user_id = $1"}
	args := []interface{}{userID}
	argPos := 2

	if filters.IsRead != nil {
		conditions = append(conditions, fmt.Sprintf("is_read = $%d", argPos))
		args = append(args, *filters.IsRead)
		argPos++
	}

	whereClause := strings.Join(conditions, " AND ")

	var total int64
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM notifications WHERE "+whereClause, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	limit, offset := pageBounds(filters.Page, filters.PageSize)
	query := fmt.Sprintf(`
		SELECT id, user_id, title, message, type, metadata, is_read, created_at, read_at
		FROM notifications
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	notifications := []notification.Notification{}
	for rows.Next() {
		var n notification.Notification
		var metadataJSON []byte

		err := rows.Scan(
			&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type,
			&metadataJSON, &n.IsRead, &n.CreatedAt, &n.ReadAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan notification: %w", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &n.Metadata); err != nil {
				return nil, 0, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		notifications = append(notifications, n)
	}

	return notifications, total, rows.Err()
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead marks the given notifications of userID read and reports how
// many changed
func (r *NotificationRepository) MarkRead(ctx context.Context, userID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE notifications
		SET is_read = TRUE, read_at = NOW()
		WHERE user_id = $1 AND id = ANY($2::uuid[]) AND is_read = FALSE
	`, userID, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return tag.RowsAffected(), nil
}

type AuditRepository struct {
	db *pgxpool.Pool
}

func NewAuditRepository(db *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Create(ctx context.Context, e *audit.Entry) error {
	changes, err := marshalOptional(e.Changes)
	if err != nil {
		return fmt.Errorf("failed to marshal audit changes: %w", err)
	}
	metadata, err := marshalOptional(e.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal audit metadata: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO audit_logs (id, action, entity_type, entity_id, changes, actor_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, e.Action, e.EntityType, e.EntityID, changes, e.ActorID, metadata, e.CreatedAt)
	if err != nil {
		return mapError(err, "audit log")
	}
	return nil
}

func marshalOptional(m map[string]interface{}) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}

package notification

import (
	"context"
	"errors"
	"sync"
	"testing"

	"medlink-service/internal/domain/notification"
	wstypes "medlink-service/internal/domain/websocket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memRepo struct {
	mu      sync.Mutex
	items   []notification.Notification
	failing bool
}

func (m *memRepo) Create(_ context.Context, n *notification.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errors.New("db down")
	}
	m.items = append(m.items, *n)
	return nil
}

func (m *memRepo) ListByUser(_ context.Context, userID string, filters *notification.ListFilters) ([]notification.Notification, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []notification.Notification
	for _, n := range m.items {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	total := int64(len(out))
	start := (filters.Page - 1) * filters.PageSize
	if start > len(out) {
		start = len(out)
	}
	end := start + filters.PageSize
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], total, nil
}

func (m *memRepo) CountUnread(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, item := range m.items {
		if item.UserID == userID && !item.IsRead {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) MarkRead(_ context.Context, userID string, ids []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i := range m.items {
		for _, id := range ids {
			if m.items[i].ID == id && m.items[i].UserID == userID && !m.items[i].IsRead {
				m.items[i].IsRead = true
				n++
			}
		}
	}
	return n, nil
}

type recordingPusher struct {
	mu     sync.Mutex
	pushed []string
	counts []int64
}

func (p *recordingPusher) PushNotification(userID string, _ *wstypes.NotificationData) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushed = append(p.pushed, userID)
}

func (p *recordingPusher) PushUnreadCount(_ string, count int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts = append(p.counts, count)
}

func TestNotifyPersistsAndPushes(t *testing.T) {
	repo := &memRepo{}
	pusher := &recordingPusher{}
	svc := NewService(repo, pusher, zap.NewNop())

	svc.Notify(context.Background(), notification.Message{UserID: "u1", Title: "New assignment", Type: notification.TypeAssignment})
	svc.Notify(context.Background(), notification.Message{UserID: "u1", Title: "Plan upgraded"})
	svc.Wait()

	require.Len(t, repo.items, 2)
	assert.Equal(t, []string{"u1", "u1"}, pusher.pushed)

	var types []notification.NotificationType
	for _, n := range repo.items {
		types = append(types, n.Type)
	}
	assert.ElementsMatch(t, []notification.NotificationType{notification.TypeAssignment, notification.TypeSystem}, types)
}

func TestNotifySwallowsFailures(t *testing.T) {
	repo := &memRepo{failing: true}
	pusher := &recordingPusher{}
	svc := NewService(repo, pusher, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	svc.Notify(ctx, notification.Message{UserID: "u1", Title: "hello"})
	cancel()
	svc.Wait()

	assert.Empty(t, repo.items)
	assert.Empty(t, pusher.pushed)
}

func TestListAndMarkRead(t *testing.T) {
	repo := &memRepo{}
	pusher := &recordingPusher{}
	svc := NewService(repo, pusher, zap.NewNop())
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		n, err := svc.Deliver(ctx, notification.Message{UserID: "u1", Title: "n"})
		require.NoError(t, err)
		ids = append(ids, n.ID)
	}

	page, err := svc.List(ctx, "u1", &notification.ListFilters{PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, page.Notifications, 2)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, int64(3), page.Unread)
	assert.Equal(t, 2, page.TotalPages)

	marked, err := svc.MarkRead(ctx, "u1", ids[:2])
	require.NoError(t, err)
	assert.Equal(t, int64(2), marked)
	assert.Equal(t, []int64{1}, pusher.counts)

	marked, err = svc.MarkRead(ctx, "someone-else", ids)
	require.NoError(t, err)
	assert.Zero(t, marked)
}

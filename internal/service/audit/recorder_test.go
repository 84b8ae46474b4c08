package audit

import (
	"context"
	"errors"
	"sync"
	"testing"

	"medlink-service/internal/domain/audit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memRepo struct {
	mu      sync.Mutex
	entries []audit.Entry
	err     error
}

func (m *memRepo) Create(_ context.Context, e *audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, *e)
	return nil
}

func TestRecordWritesInBackground(t *testing.T) {
	repo := &memRepo{}
	r := NewRecorder(repo, zap.NewNop())

	actor := "admin-1"
	r.Record(context.Background(), audit.Entry{
		Action:     audit.ActionSubscriptionSuspended,
		EntityType: "subscription",
		EntityID:   "sub-1",
		ActorID:    &actor,
	})
	r.Wait()

	require.Len(t, repo.entries, 1)
	e := repo.entries[0]
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.CreatedAt.IsZero())
	assert.Equal(t, audit.ActionSubscriptionSuspended, e.Action)
}

func TestRecordIgnoresWriteErrors(t *testing.T) {
	repo := &memRepo{err: errors.New("insert failed")}
	r := NewRecorder(repo, zap.NewNop())

	assert.NotPanics(t, func() {
		r.Record(context.Background(), audit.Entry{Action: audit.ActionPatientCreated})
		r.Wait()
	})
	assert.Empty(t, repo.entries)
}

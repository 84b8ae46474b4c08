package audit

import (
	"context"
	"sync"
	"time"

	"medlink-service/internal/domain/audit"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Recorder writes audit entries off the request path.
type Recorder struct {
	repo    audit.Repository
	logger  *zap.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewRecorder(repo audit.Repository, logger *zap.Logger) *Recorder {
	return &Recorder{
		repo:    repo,
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

// Record queues e for insertion. Errors are logged only.
func (r *Recorder) Record(ctx context.Context, e audit.Entry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	bg := context.WithoutCancel(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(bg, r.timeout)
		defer cancel()

		if err := r.repo.Create(ctx, &e); err != nil {
			r.logger.Warn("audit write failed",
				zap.String("action", e.Action),
				zap.String("entity_type", e.EntityType),
				zap.String("entity_id", e.EntityID),
				zap.Error(err),
			)
		}
	}()
}

// Wait blocks until queued entries are written.
func (r *Recorder) Wait() {
	r.wg.Wait()
}

// internal/app/workers.go
package app

import (
	"context"
	"time"

	"medlink-service/internal/domain/availability"
	"medlink-service/internal/domain/payment"
	"medlink-service/internal/domain/subscription"
	"medlink-service/internal/metrics"

	"go.uber.org/zap"
)

type outboxProcessor interface {
	ProcessDue(ctx context.Context, batch int) (*payment.BatchResult, error)
}

type subscriptionSweeper interface {
	Sweep(ctx context.Context, batch int) (*subscription.SweepResult, error)
}

type assignmentExpirer interface {
	ExpirePending(ctx context.Context) (int, error)
}

type availabilityGenerator interface {
	GenerateFromTemplates(ctx context.Context, start time.Time, days int) (*availability.GenerationSummary, error)
}

func (s *Server) goWorker(fn func()) {
	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		fn()
	}()
}

// startWorkers runs the periodic jobs: the activation outbox, the
// subscription expiry sweep, assignment response deadlines and slot
// generation from recurring templates.
func (s *Server) startWorkers(
	ctx context.Context,
	outbox outboxProcessor,
	sweeper subscriptionSweeper,
	expirer assignmentExpirer,
	generator availabilityGenerator,
) {
	s.goWorker(func() {
		runEvery(ctx, s.logger, "subscription_outbox", s.cfg.OutboxInterval, func(ctx context.Context) error {
			res, err := outbox.ProcessDue(ctx, s.cfg.OutboxBatch)
			if err != nil {
				return err
			}
			if res.Claimed > 0 {
				s.logger.Info("subscription outbox pass",
					zap.Int("claimed", res.Claimed),
					zap.Int("completed", res.Completed),
					zap.Int("retried", res.Retried),
					zap.Int("failed", res.Failed),
				)
			}
			return nil
		})
	})

	s.goWorker(func() {
		runEvery(ctx, s.logger, "subscription_sweep", s.cfg.SweepInterval, func(ctx context.Context) error {
			res, err := sweeper.Sweep(ctx, s.cfg.SweepBatch)
			if err != nil {
				return err
			}
			if res.Expired > 0 || res.PlanChanges > 0 || res.FailedChanges > 0 {
				s.logger.Info("subscription sweep pass",
					zap.Int("expired", res.Expired),
					zap.Int("plan_changes", res.PlanChanges),
					zap.Int("failed_changes", res.FailedChanges),
				)
			}
			return nil
		})
	})

	s.goWorker(func() {
		runEvery(ctx, s.logger, "assignment_expiry", s.cfg.AssignmentInterval, func(ctx context.Context) error {
			n, err := expirer.ExpirePending(ctx)
			if err != nil {
				return err
			}
			if n > 0 {
				s.logger.Info("assignments expired", zap.Int("count", n))
			}
			return nil
		})
	})

	s.goWorker(func() {
		runEvery(ctx, s.logger, "availability_generation", s.cfg.AvailabilityInterval, func(ctx context.Context) error {
			_, err := generator.GenerateFromTemplates(ctx, time.Now().UTC(), s.cfg.AvailabilityDays)
			return err
		})
	})
}

// runEvery calls fn every interval until ctx is cancelled. A run that
// fails is logged and retried on the next tick.
func runEvery(ctx context.Context, logger *zap.Logger, name string, interval time.Duration, fn func(ctx context.Context) error) {
	if interval <= 0 {
		logger.Warn("worker disabled", zap.String("worker", name))
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, interval)
			start := time.Now()
			err := fn(runCtx)
			cancel()

			metrics.WorkerRuns.WithLabelValues(name, outcome(err)).Inc()
			if err != nil && ctx.Err() == nil {
				logger.Error("worker run failed",
					zap.String("worker", name),
					zap.Duration("elapsed", time.Since(start)),
					zap.Error(err),
				)
			}
		}
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

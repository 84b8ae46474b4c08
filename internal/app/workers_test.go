package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"medlink-service/internal/config"
	"medlink-service/internal/domain/availability"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestRunEveryRepeatsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32

	done := make(chan struct{})
	go func() {
		defer close(done)
		runEvery(ctx, zap.NewNop(), "test", 5*time.Millisecond, func(context.Context) error {
			if calls.Add(1) == 2 {
				return errors.New("transient")
			}
			return nil
		})
	}()

	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runEvery did not stop after cancel")
	}
}

func TestRunEveryDisabled(t *testing.T) {
	called := false
	runEvery(context.Background(), zap.NewNop(), "off", 0, func(context.Context) error {
		called = true
		return nil
	})
	assert.False(t, called)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", outcome(nil))
	assert.Equal(t, "error", outcome(errors.New("x")))
}

type countingGenerator struct {
	calls atomic.Int32
	days  atomic.Int32
}

func (g *countingGenerator) GenerateFromTemplates(_ context.Context, _ time.Time, days int) (*availability.GenerationSummary, error) {
	g.days.Store(int32(days))
	g.calls.Add(1)
	return &availability.GenerationSummary{}, nil
}

func TestAvailabilityWorkerGeneratesAhead(t *testing.T) {
	s := &Server{
		cfg: config.AppConfig{
			AvailabilityInterval: 5 * time.Millisecond,
			AvailabilityDays:     21,
		},
		logger: zap.NewNop(),
	}
	gen := &countingGenerator{}

	ctx, cancel := context.WithCancel(context.Background())
	s.startWorkers(ctx, nil, nil, nil, gen)

	assert.Eventually(t, func() bool { return gen.calls.Load() >= 2 }, time.Second, time.Millisecond)
	assert.EqualValues(t, 21, gen.days.Load())

	cancel()
	s.workers.Wait()
}

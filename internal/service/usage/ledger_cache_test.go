package usage

import (
	"context"
	"testing"
	"time"

	"medlink-service/internal/domain/usage"
	"medlink-service/internal/pkg/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type cachedLedger struct {
	ledger *Ledger
	ents   *fakeEntitlements
	mr     *miniredis.Miniredis
	logs   *observer.ObservedLogs
}

func newCachedLedger(t *testing.T, ents map[string]*usage.Entitlement) *cachedLedger {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	core, logs := observer.New(zapcore.WarnLevel)
	clk := &clock{t: time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)}
	fe := &fakeEntitlements{ent: ents}
	l := NewLedger(newMemRepo(), fe, zap.New(core),
		WithClock(clk.now),
		WithCache(cache.New(client, "medlink:usage:"), time.Minute),
	)
	return &cachedLedger{ledger: l, ents: fe, mr: mr, logs: logs}
}

func (c *cachedLedger) used(t *testing.T, res usage.Resource) int {
	t.Helper()
	snap, err := c.ledger.GetUsage(context.Background(), "h1", usage.EntityHospital)
	require.NoError(t, err)
	return snap.Resources[res].Used
}

func TestCachedUsageSeesReserveAndRelease(t *testing.T) {
	c := newCachedLedger(t, map[string]*usage.Entitlement{"h1": hospitalEntitlement(7, 20)})
	ctx := context.Background()

	assert.Zero(t, c.used(t, usage.ResourceAssignments))
	assert.Len(t, c.mr.Keys(), 1, "snapshot is cached after the first read")

	rec, err := c.ledger.Reserve(ctx, "h1", usage.EntityHospital, usage.ResourceAssignments)
	require.NoError(t, err)
	assert.Empty(t, c.mr.Keys())
	assert.Equal(t, 1, c.used(t, usage.ResourceAssignments))

	require.NoError(t, c.ledger.Release(ctx, rec.Key()))
	assert.Zero(t, c.used(t, usage.ResourceAssignments))

	require.NoError(t, c.ledger.Increment(ctx, "h1", usage.EntityHospital, usage.ResourcePatients))
	assert.Equal(t, 1, c.used(t, usage.ResourcePatients))
	assert.Empty(t, c.logs.All())
}

func TestCachedUsageSeesRefreshedLimit(t *testing.T) {
	c := newCachedLedger(t, map[string]*usage.Entitlement{"h1": hospitalEntitlement(7, 20)})
	ctx := context.Background()

	snap, err := c.ledger.GetUsage(ctx, "h1", usage.EntityHospital)
	require.NoError(t, err)
	assert.Equal(t, 7, snap.Resources[usage.ResourcePatients].Limit)

	c.ents.mu.Lock()
	c.ents.ent["h1"] = hospitalEntitlement(3, 20)
	c.ents.mu.Unlock()

	require.NoError(t, c.ledger.CheckAndCreateIfMissing(ctx, "h1", usage.EntityHospital, usage.ResourcePatients))
	snap, err = c.ledger.GetUsage(ctx, "h1", usage.EntityHospital)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Resources[usage.ResourcePatients].Limit)
}

func TestCacheOutageFallsBackToStore(t *testing.T) {
	c := newCachedLedger(t, map[string]*usage.Entitlement{"h1": hospitalEntitlement(7, 20)})
	ctx := context.Background()
	c.mr.Close()

	_, err := c.ledger.Reserve(ctx, "h1", usage.EntityHospital, usage.ResourceAssignments)
	require.NoError(t, err)
	assert.Equal(t, 1, c.used(t, usage.ResourceAssignments))

	assert.NotZero(t, c.logs.FilterMessage("usage cache invalidation failed").Len())
	assert.NotZero(t, c.logs.FilterMessage("usage cache read failed").Len())
	assert.NotZero(t, c.logs.FilterMessage("usage cache write failed").Len())
}

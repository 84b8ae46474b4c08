package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T) (*miniredis.Miniredis, *Cache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, New(client, "test:")
}

type entry struct {
	Limit int    `json:"limit"`
	Name  string `json:"name"`
}

func TestJSONRoundTripAndMiss(t *testing.T) {
	mr, c := newCache(t)
	ctx := context.Background()

	var got entry
	found, err := c.GetJSON(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.SetJSON(ctx, "k", entry{Limit: 5, Name: "patients"}, time.Minute))
	assert.True(t, mr.Exists("test:k"))

	found, err = c.GetJSON(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, entry{Limit: 5, Name: "patients"}, got)

	require.NoError(t, c.Delete(ctx, "k", "missing"))
	found, err = c.GetJSON(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCorruptEntryIsAnError(t *testing.T) {
	mr, c := newCache(t)
	require.NoError(t, mr.Set("test:k", "{not json"))

	var got entry
	_, err := c.GetJSON(context.Background(), "k", &got)
	assert.Error(t, err)
}

func TestLocks(t *testing.T) {
	mr, c := newCache(t)
	ctx := context.Background()

	ok, err := c.Acquire(ctx, "order-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Acquire(ctx, "order-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Release(ctx, "order-1"))
	ok, err = c.Acquire(ctx, "order-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(2 * time.Minute)
	ok, err = c.Acquire(ctx, "order-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

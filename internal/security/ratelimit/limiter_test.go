package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nephi-asha/kishkumen/internal/infrastructure/redis"
	"github.com/nephi-asha/kishkumen/internal/reliability/circuitbreaker"
)

func TestMemoryLimiterPerKey(t *testing.T) {
	l := NewMemoryLimiter(2)
	defer l.Stop()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	assert.True(t, l.Allow(ctx, "tenant:7"))
	assert.True(t, l.Allow(ctx, "tenant:7"))
	assert.False(t, l.Allow(ctx, "tenant:7"))
	assert.True(t, l.Allow(ctx, "tenant:8"), "buckets are independent")
	assert.True(t, l.Allow(ctx, ""), "empty key is never limited")

	now = now.Add(30 * time.Second)
	assert.True(t, l.Allow(ctx, "tenant:7"), "one token refills every 30s")
}

func TestMemoryLimiterDropsStaleBuckets(t *testing.T) {
	l := NewMemoryLimiter(10)
	defer l.Stop()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Allow(context.Background(), "tenant:7")
	now = now.Add(time.Hour)
	l.dropStale()

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Empty(t, l.buckets)
}

func TestRedisLimiterSharedWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := redis.NewClient(context.Background(), "redis://"+mr.Addr(), nil)
	require.NoError(t, err)
	defer client.Close()

	fallback := NewMemoryLimiter(100)
	defer fallback.Stop()

	a := NewRedisLimiter(client, 3, fallback, nil)
	b := NewRedisLimiter(client, 3, fallback, nil)
	ctx := context.Background()

	assert.True(t, a.Allow(ctx, "tenant:7"))
	assert.True(t, b.Allow(ctx, "tenant:7"))
	assert.True(t, a.Allow(ctx, "tenant:7"))
	assert.False(t, b.Allow(ctx, "tenant:7"), "replicas share the counter")

	mr.FastForward(time.Minute)
	assert.True(t, a.Allow(ctx, "tenant:7"))
}

type failingCounter struct{ calls int }

func (f *failingCounter) IncrWindow(context.Context, string, time.Duration) (int64, error) {
	f.calls++
	return 0, errors.New("dial tcp: connection refused")
}

func TestRedisLimiterFallsBackWhenRedisFails(t *testing.T) {
	counter := &failingCounter{}
	fallback := NewMemoryLimiter(1)
	defer fallback.Stop()

	l := NewRedisLimiter(counter, 100, fallback, nil)
	ctx := context.Background()

	assert.True(t, l.Allow(ctx, "tenant:7"))
	assert.False(t, l.Allow(ctx, "tenant:7"), "fallback limit applies")
	l.Allow(ctx, "tenant:7")
	assert.Equal(t, circuitbreaker.StateOpen, l.breaker.State())

	l.Allow(ctx, "tenant:7")
	assert.Equal(t, 3, counter.calls, "open breaker skips redis")
}

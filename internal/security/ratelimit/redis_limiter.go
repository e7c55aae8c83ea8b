package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/nephi-asha/kishkumen/internal/reliability/circuitbreaker"
)

// Counter increments a fixed-window counter. It is implemented by the
// Redis client.
type Counter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisLimiter shares fixed-window counters between replicas through
// Redis. While Redis is failing the breaker opens and requests are judged
// by the in-process fallback instead.
type RedisLimiter struct {
	counter  Counter
	limit    int64
	window   time.Duration
	breaker  *circuitbreaker.CircuitBreaker
	fallback Limiter
	logger   *slog.Logger
}

func NewRedisLimiter(counter Counter, perMinute int, fallback Limiter, logger *slog.Logger) *RedisLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	breaker := circuitbreaker.New("redis-ratelimit", 3, 1, 30*time.Second)
	breaker.OnStateChange(func(name string, from, to circuitbreaker.State) {
		logger.Warn("circuit breaker state changed",
			slog.String("breaker", name),
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	})
	return &RedisLimiter{
		counter:  counter,
		limit:    int64(perMinute),
		window:   time.Minute,
		breaker:  breaker,
		fallback: fallback,
		logger:   logger,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) bool {
	if key == "" {
		return true
	}
	var count int64
	err := l.breaker.Execute(func() error {
		callCtx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
		defer cancel()
		n, err := l.counter.IncrWindow(callCtx, "kishkumen:ratelimit:"+key, l.window)
		count = n
		return err
	})
	if err != nil {
		l.logger.Debug("rate limit falling back to memory",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return l.fallback.Allow(ctx, key)
	}
	return count <= l.limit
}

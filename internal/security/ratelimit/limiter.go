package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// MemoryLimiter keeps a token bucket per key in process memory. Buckets
// unused for staleAfter are dropped by a background sweep.
type MemoryLimiter struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	limit      rate.Limit
	burst      int
	staleAfter time.Duration
	now        func() time.Time
	cleanup    *time.Ticker
	done       chan struct{}
	stopOnce   sync.Once
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewMemoryLimiter allows perMinute requests per key per minute, with bursts
// up to the same size.
func NewMemoryLimiter(perMinute int) *MemoryLimiter {
	if perMinute < 1 {
		perMinute = 1
	}
	l := &MemoryLimiter{
		buckets:    make(map[string]*bucket),
		limit:      rate.Limit(float64(perMinute) / 60),
		burst:      perMinute,
		staleAfter: 15 * time.Minute,
		now:        time.Now,
		cleanup:    time.NewTicker(5 * time.Minute),
		done:       make(chan struct{}),
	}
	go l.sweep()
	return l
}

// Allow consumes one token from key's bucket. An empty key is not limited.
func (l *MemoryLimiter) Allow(_ context.Context, key string) bool {
	if key == "" {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

func (l *MemoryLimiter) sweep() {
	for {
		select {
		case <-l.done:
			return
		case <-l.cleanup.C:
			l.dropStale()
		}
	}
}

func (l *MemoryLimiter) dropStale() {
	l.mu.Lock()
	defer l.mu.Unlock()
	threshold := l.now().Add(-l.staleAfter)
	for key, b := range l.buckets {
		if b.lastSeen.Before(threshold) {
			delete(l.buckets, key)
		}
	}
}

// Stop ends the background sweep.
func (l *MemoryLimiter) Stop() {
	l.stopOnce.Do(func() {
		l.cleanup.Stop()
		close(l.done)
	})
}

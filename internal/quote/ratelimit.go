package quote

import (
	"context"
	"sync"
	"time"
)

type TokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	refillRate float64
	lastRefill time.Time
}

func NewTokenBucket(capacity, refillPerSecond int) *TokenBucket {
	return &TokenBucket{
		tokens:     float64(capacity),
		capacity:   float64(capacity),
		refillRate: float64(refillPerSecond),
		lastRefill: time.Now(),
	}
}

func (tb *TokenBucket) refill() {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.tokens += elapsed * tb.refillRate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now
}

func (tb *TokenBucket) TryAcquire() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// Acquire blocks until a token is available or ctx is done. A nil bucket
// never blocks.
func (tb *TokenBucket) Acquire(ctx context.Context) error {
	if tb == nil {
		return nil
	}
	for {
		if tb.TryAcquire() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// NewLimiter returns nil when limiting is disabled.
func NewLimiter(capacity, refillPerSecond int) *TokenBucket {
	if capacity <= 0 || refillPerSecond <= 0 {
		return nil
	}
	return NewTokenBucket(capacity, refillPerSecond)
}

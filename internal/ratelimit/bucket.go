// Package ratelimit throttles message sends per identity. Local keeps token
// buckets in process memory; SlidingWindow shares the budget through Redis.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// Local is a set of token buckets, one per key. A bucket holds up to burst
// tokens and refills burst tokens per interval.
type Local struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	capacity float64
	rate     float64 // tokens per second
	now      func() time.Time
}

func NewLocal(burst int, interval time.Duration) *Local {
	if burst <= 0 {
		burst = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Local{
		buckets:  make(map[string]*bucket),
		capacity: float64(burst),
		rate:     float64(burst) / interval.Seconds(),
		now:      time.Now,
	}
}

func (l *Local) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.capacity, lastCheck: now}
		l.buckets[key] = b
	}

	if elapsed := now.Sub(b.lastCheck).Seconds(); elapsed > 0 {
		b.tokens += elapsed * l.rate
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
	}
	b.lastCheck = now

	if b.tokens < 1 {
		return false, nil
	}
	b.tokens--
	return true, nil
}

// Prune drops buckets that have been full for at least idle.
func (l *Local) Prune(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	n := 0
	for k, b := range l.buckets {
		refilled := b.tokens + now.Sub(b.lastCheck).Seconds()*l.rate
		if refilled >= l.capacity && now.Sub(b.lastCheck) >= idle {
			delete(l.buckets, k)
			n++
		}
	}
	return n
}

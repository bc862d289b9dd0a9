// Package ratelimit implements the per-credential token bucket rate
// limiter (C9). Bucket state is process-local by design — there is no
// coordination across replicas, so a credential's effective limit scales
// with the number of running gateway instances.
package ratelimit

import (
	"sync"
	"time"

	"github.com/nulpointcorp/llm-gateway/internal/config"
)

// bucket holds one credential's live token count and the instant it was
// last refilled. Guarded by the owning Limiter's per-bucket mutex, not a
// package-wide lock, so unrelated credentials never contend.
type bucket struct {
	mu       sync.Mutex
	capacity float64
	rate     float64 // tokens per second
	tokens   float64
	last     time.Time
}

func (b *bucket) tryAcquire(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.rate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.last = now
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Limiter is the process-local per-credential token bucket (C9). A
// credential with no RateLimit configured bypasses the limiter entirely;
// one with RateLimit.RequestsPerSecond == 0 always fails (explicit deny).
type Limiter struct {
	mu      sync.Mutex
	buckets map[int64]*bucket
}

func New() *Limiter {
	return &Limiter{buckets: make(map[int64]*bucket)}
}

// Allow reports whether cred may proceed right now, atomically refilling
// and consuming one token if so. Returns true with no side effect for a
// credential that declares no rate limit.
func (l *Limiter) Allow(cred *config.Credential) bool {
	if cred.RateLimit == nil {
		return true
	}
	if cred.RateLimit.RequestsPerSecond == 0 {
		return false
	}
	b := l.bucketFor(cred)
	return b.tryAcquire(time.Now())
}

func (l *Limiter) bucketFor(cred *config.Credential) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[cred.ID]
	if ok {
		return b
	}

	capacity := float64(cred.RateLimit.Burst)
	if capacity <= 0 {
		capacity = float64(cred.RateLimit.RequestsPerSecond)
		if capacity < 1 {
			capacity = 1
		}
	}
	b = &bucket{
		capacity: capacity,
		rate:     float64(cred.RateLimit.RequestsPerSecond),
		tokens:   capacity,
		last:     time.Now(),
	}
	l.buckets[cred.ID] = b
	return b
}

// Reset drops all bucket state. Only tests call it. A bucket's capacity
// and rate are fixed when it is first created, so a changed RateLimit on
// a credential takes effect only after Reset.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets = make(map[int64]*bucket)
}

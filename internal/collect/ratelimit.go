package collect

import (
	"sync"
	"time"

	"pulse/internal/logger"
)

// RateLimiter enforces a sliding-window call budget against the platform API.
// A timestamped queue retains only calls within the window; once the queue is
// full, Wait blocks until the oldest timestamp ages out, then records its own
// call. Scoped to one Collector instance; the queue is the only shared mutable
// state and is guarded by a single mutex.
type RateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	limit  int
	calls  []time.Time
}

// NewRateLimiter creates a limiter admitting at most limit calls per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit < 1 {
		limit = 1
	}
	return &RateLimiter{
		window: window,
		limit:  limit,
		calls:  make([]time.Time, 0, limit),
	}
}

// Wait blocks until the window admits another call, then records it. The hard
// platform limit is never exceeded regardless of burst concurrency.
func (r *RateLimiter) Wait() {
	for {
		r.mu.Lock()
		now := time.Now()
		r.evictAged(now)

		if len(r.calls) < r.limit {
			r.calls = append(r.calls, now)
			r.mu.Unlock()
			return
		}

		wait := r.calls[0].Add(r.window).Sub(now)
		r.mu.Unlock()

		if wait > 0 {
			logger.Debug("rate limit reached, waiting", "wait", wait.String())
			time.Sleep(wait)
		}
	}
}

// Pending returns the number of calls currently inside the window.
func (r *RateLimiter) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictAged(time.Now())
	return len(r.calls)
}

// evictAged drops timestamps older than the window. Caller holds the lock.
func (r *RateLimiter) evictAged(now time.Time) {
	cut := 0
	for cut < len(r.calls) && now.Sub(r.calls[cut]) > r.window {
		cut++
	}
	if cut > 0 {
		r.calls = append(r.calls[:0], r.calls[cut:]...)
	}
}

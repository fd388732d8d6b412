package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// Limiter enforces max downloads per time window using a sliding window
// algorithm. A permit issued at time t occupies the window until t+60s;
// when the window is saturated the next permit becomes available only
// when the oldest issuance expires.
type Limiter struct {
	maxPerMinute int
	window       time.Duration
	mu           sync.Mutex
	callTimes    []time.Time
	timeNow      func() time.Time // Injectable for testing
}

// NewLimiter creates a rate limiter with real time. A limit <= 0
// disables limiting.
func NewLimiter(maxPerMinute int) *Limiter {
	return NewLimiterWithClock(maxPerMinute, time.Now)
}

// NewLimiterWithClock creates a rate limiter with injectable clock (for testing)
func NewLimiterWithClock(maxPerMinute int, timeNow func() time.Time) *Limiter {
	return &Limiter{
		maxPerMinute: maxPerMinute,
		window:       60 * time.Second,
		callTimes:    make([]time.Time, 0, max(maxPerMinute, 0)),
		timeNow:      timeNow,
	}
}

// Allow checks if a download is allowed under the rate limit, recording
// an issuance when it is. Returns an error when the window is saturated.
func (r *Limiter) Allow() error {
	if r.maxPerMinute <= 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.timeNow()
	r.removeExpiredCalls(now)

	if len(r.callTimes) >= r.maxPerMinute {
		return errors.Newf("rate limit exceeded: %d downloads in window (limit: %d)",
			len(r.callTimes), r.maxPerMinute)
	}

	r.callTimes = append(r.callTimes, now)
	return nil
}

// Wait blocks until a permit is available or the context is cancelled.
func (r *Limiter) Wait(ctx context.Context) error {
	for {
		if err := r.Allow(); err == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
			// Retry after short delay
		}
	}
}

// removeExpiredCalls removes issuances outside the sliding window.
// Must be called with lock held.
func (r *Limiter) removeExpiredCalls(now time.Time) {
	cutoff := now.Add(-r.window)

	// Timestamps are ordered, so expired entries sit at the front.
	expired := 0
	for _, callTime := range r.callTimes {
		if !callTime.After(cutoff) {
			expired++
		} else {
			break
		}
	}

	r.callTimes = r.callTimes[expired:]
}

// Reset clears the rate limiter state.
func (r *Limiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.callTimes = r.callTimes[:0]
}

// Stats returns how many permits are held in the current window and how
// many remain.
func (r *Limiter) Stats() (callsInWindow int, remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxPerMinute <= 0 {
		return 0, 0
	}

	r.removeExpiredCalls(r.timeNow())

	callsInWindow = len(r.callTimes)
	remaining = r.maxPerMinute - callsInWindow
	if remaining < 0 {
		remaining = 0
	}
	return callsInWindow, remaining
}

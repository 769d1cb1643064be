// Package budget caps how many commands the dispatcher may fire per minute
// across all commands, independent of their individual cooldowns.
package budget

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/teranos/autoboat/errors"
)

// ErrBudgetExhausted is returned by Allow when the window is full
var ErrBudgetExhausted = errors.New("fire budget exhausted")

// Limiter enforces max calls per time window using sliding window algorithm
type Limiter struct {
	maxCallsPerMinute int
	window            time.Duration
	mu                sync.Mutex
	callTimes         []time.Time
	clock             clockwork.Clock
}

// NewLimiter creates a limiter on the real clock. maxCallsPerMinute <= 0 disables it.
func NewLimiter(maxCallsPerMinute int) *Limiter {
	return NewLimiterWithClock(maxCallsPerMinute, clockwork.NewRealClock())
}

// NewLimiterWithClock creates a limiter with an injectable clock (for testing)
func NewLimiterWithClock(maxCallsPerMinute int, clock clockwork.Clock) *Limiter {
	capacity := maxCallsPerMinute
	if capacity < 0 {
		capacity = 0
	}
	return &Limiter{
		maxCallsPerMinute: maxCallsPerMinute,
		window:            60 * time.Second,
		callTimes:         make([]time.Time, 0, capacity),
		clock:             clock,
	}
}

// Unlimited reports whether the limiter lets every call through
func (r *Limiter) Unlimited() bool {
	return r.maxCallsPerMinute <= 0
}

// Allow checks if a call is allowed under rate limits and records it.
// Returns an error marked ErrBudgetExhausted if the limit is reached.
func (r *Limiter) Allow() error {
	_, err := r.reserve()
	return err
}

// reserve records a call if allowed, otherwise reports how long until a slot frees up
func (r *Limiter) reserve() (time.Duration, error) {
	if r.Unlimited() {
		return 0, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	r.removeExpiredCalls(now)

	if len(r.callTimes) >= r.maxCallsPerMinute {
		wait := r.callTimes[0].Add(r.window).Sub(now)
		err := errors.Mark(errors.Newf("fire budget exceeded: %d fires per minute (limit: %d)",
			len(r.callTimes), r.maxCallsPerMinute), ErrBudgetExhausted)
		err = errors.WithDetail(err, fmt.Sprintf("Next slot in: %s", wait))
		return wait, err
	}

	r.callTimes = append(r.callTimes, now)
	return 0, nil
}

// Wait blocks until a call is allowed, then records it.
// Returns ctx.Err() if the context is cancelled first.
func (r *Limiter) Wait(ctx context.Context) error {
	for {
		wait, err := r.reserve()
		if err == nil {
			return nil
		}
		if wait <= 0 {
			wait = time.Millisecond
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.clock.After(wait):
		}
	}
}

// removeExpiredCalls removes call timestamps that are outside the sliding window
// Must be called with lock held
func (r *Limiter) removeExpiredCalls(now time.Time) {
	cutoff := now.Add(-r.window)

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

// Reset clears the rate limiter state
func (r *Limiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.callTimes = r.callTimes[:0]
}

// Stats returns current rate limiter statistics. Remaining is -1 when unlimited.
func (r *Limiter) Stats() (callsInWindow int, remaining int) {
	if r.Unlimited() {
		return 0, -1
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeExpiredCalls(r.clock.Now())

	callsInWindow = len(r.callTimes)
	remaining = r.maxCallsPerMinute - callsInWindow
	if remaining < 0 {
		remaining = 0
	}

	return callsInWindow, remaining
}

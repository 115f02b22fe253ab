package quota

import (
	"sync"
	"time"
)

// Limiter counts live API calls in a sliding window. It estimates remaining
// quota for responses that carry no rate_limit block.
type Limiter struct {
	maxCalls  int
	window    time.Duration
	mu        sync.Mutex
	callTimes []time.Time
	timeNow   func() time.Time
}

// NewLimiter creates a limiter with real time. maxCalls <= 0 yields nil,
// which callers treat as "no local estimate".
func NewLimiter(maxCalls int, window time.Duration) *Limiter {
	return NewLimiterWithClock(maxCalls, window, time.Now)
}

// NewLimiterWithClock creates a limiter with an injectable clock (for testing)
func NewLimiterWithClock(maxCalls int, window time.Duration, timeNow func() time.Time) *Limiter {
	if maxCalls <= 0 {
		return nil
	}
	if window <= 0 {
		window = DefaultCooldown
	}
	return &Limiter{
		maxCalls:  maxCalls,
		window:    window,
		callTimes: make([]time.Time, 0, maxCalls),
		timeNow:   timeNow,
	}
}

// Record notes one call made now.
func (l *Limiter) Record() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.timeNow()
	l.removeExpiredCalls(now)
	l.callTimes = append(l.callTimes, now)
}

// Remaining returns the calls left in the current window.
func (l *Limiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.removeExpiredCalls(l.timeNow())
	return max(l.maxCalls-len(l.callTimes), 0)
}

// ResetIn returns how long until the oldest call leaves the window.
func (l *Limiter) ResetIn() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.timeNow()
	l.removeExpiredCalls(now)
	if len(l.callTimes) == 0 {
		return 0
	}
	return l.callTimes[0].Add(l.window).Sub(now)
}

// removeExpiredCalls drops timestamps outside the window.
// Must be called with lock held
func (l *Limiter) removeExpiredCalls(now time.Time) {
	cutoff := now.Add(-l.window)

	// Timestamps are ordered, count from the front
	expired := 0
	for _, callTime := range l.callTimes {
		if callTime.After(cutoff) {
			break
		}
		expired++
	}
	l.callTimes = l.callTimes[expired:]
}

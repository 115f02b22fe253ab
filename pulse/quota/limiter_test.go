package quota

import (
	"testing"
	"time"
)

func TestLimiterDisabled(t *testing.T) {
	if l := NewLimiter(0, time.Minute); l != nil {
		t.Error("maxCalls 0 should disable the limiter")
	}
}

// Given: 10 calls per 15 minutes
// When: 4 calls are recorded
// Then: 6 remain until the window slides past them
func TestLimiterRemaining(t *testing.T) {
	clock := newMockClock(time.Now())
	limiter := NewLimiterWithClock(10, 15*time.Minute, clock.Now)

	for i := 0; i < 4; i++ {
		limiter.Record()
		clock.Advance(time.Minute)
	}
	if got := limiter.Remaining(); got != 6 {
		t.Errorf("Remaining = %d, want 6", got)
	}

	// First call leaves the window 15m after it was made
	clock.Advance(11 * time.Minute)
	if got := limiter.Remaining(); got != 7 {
		t.Errorf("Remaining after slide = %d, want 7", got)
	}
}

func TestLimiterNeverNegative(t *testing.T) {
	clock := newMockClock(time.Now())
	limiter := NewLimiterWithClock(2, time.Minute, clock.Now)

	for i := 0; i < 5; i++ {
		limiter.Record()
	}
	if got := limiter.Remaining(); got != 0 {
		t.Errorf("Remaining = %d, want 0", got)
	}
}

func TestLimiterResetIn(t *testing.T) {
	clock := newMockClock(time.Now())
	limiter := NewLimiterWithClock(5, 10*time.Minute, clock.Now)

	if got := limiter.ResetIn(); got != 0 {
		t.Errorf("ResetIn on empty limiter = %v, want 0", got)
	}

	limiter.Record()
	clock.Advance(4 * time.Minute)
	if got := limiter.ResetIn(); got != 6*time.Minute {
		t.Errorf("ResetIn = %v, want 6m", got)
	}
}

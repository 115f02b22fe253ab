// Package quota decides when a batch must stop calling the enrichment API
// and how long every job has to wait before calling it again.
package quota

import (
	"sync"
	"time"
)

// Unknown marks a State whose remaining quota was never reported.
const Unknown = -1

// ResetUnit is the unit of the API's reset hint.
type ResetUnit string

const (
	Seconds ResetUnit = "seconds"
	// Minutes is what the production API actually sends in rate_limit.toReset.
	Minutes ResetUnit = "minutes"
)

// Defaults used when configuration leaves a field unset.
const (
	DefaultThreshold = 10
	DefaultCooldown  = 15 * time.Minute
)

// State is the process-wide view of the upstream quota.
type State struct {
	Remaining     int
	ResetIn       int // raw reset hint as reported; 0 when absent
	CooldownUntil *time.Time
}

// Config configures a Policy.
type Config struct {
	Threshold       int
	DefaultCooldown time.Duration
	ResetUnit       ResetUnit
}

// Policy suspends preemptively once remaining calls reach the threshold,
// before the API starts rejecting them.
type Policy struct {
	mu  sync.RWMutex
	cfg Config
	now func() time.Time
}

// NewPolicy creates a policy using the wall clock.
func NewPolicy(cfg Config) *Policy {
	return NewPolicyWithClock(cfg, time.Now)
}

// NewPolicyWithClock creates a policy with an injectable clock (for testing).
func NewPolicyWithClock(cfg Config, now func() time.Time) *Policy {
	p := &Policy{now: now}
	p.Update(cfg)
	return p
}

// Update swaps the configuration in place. Used for config hot reload.
func (p *Policy) Update(cfg Config) {
	if cfg.Threshold < 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.DefaultCooldown <= 0 {
		cfg.DefaultCooldown = DefaultCooldown
	}
	if cfg.ResetUnit != Seconds {
		cfg.ResetUnit = Minutes
	}
	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
}

// Config returns the active configuration.
func (p *Policy) Config() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// ShouldSuspend reports whether remaining quota is at or below the threshold.
// An unknown remaining never suspends.
func (p *Policy) ShouldSuspend(s State) bool {
	if s.Remaining == Unknown {
		return false
	}
	return s.Remaining <= p.Config().Threshold
}

// CooldownFor returns the deadline before which no job may call the API.
func (p *Policy) CooldownFor(s State) time.Time {
	cfg := p.Config()
	now := p.now()
	if s.ResetIn <= 0 {
		return now.Add(cfg.DefaultCooldown)
	}
	unit := time.Minute
	if cfg.ResetUnit == Seconds {
		unit = time.Second
	}
	return now.Add(time.Duration(s.ResetIn) * unit)
}

// Active reports whether a cooldown deadline is still in the future.
func (p *Policy) Active(until *time.Time) bool {
	return until != nil && p.now().Before(*until)
}

// Package schedule runs pipeline passes on a fixed interval, with early
// passes when new uploads arrive.
package schedule

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/pegabatch/db"
	"github.com/teranos/pegabatch/logger"
	"github.com/teranos/pegabatch/pipeline"
)

// Runner executes one pass.
type Runner interface {
	Run(ctx context.Context) (pipeline.Summary, error)
}

// Ticker drives periodic passes. At most one pass runs at a time.
type Ticker struct {
	runner   Runner
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	trigger  chan struct{}
	reset    chan time.Duration
	running  atomic.Bool
	memory   func() (MemoryStats, error)
	pulseLog *zap.SugaredLogger

	mu              sync.Mutex
	lastTickAt      time.Time
	ticksSinceStart int64
	lastSummary     pipeline.Summary
}

// TickerConfig contains configuration for the Pulse ticker
type TickerConfig struct {
	Interval time.Duration
}

// DefaultTickerConfig returns sensible defaults
func DefaultTickerConfig() TickerConfig {
	return TickerConfig{Interval: time.Minute}
}

// NewTicker creates a new Pulse ticker
func NewTicker(runner Runner, cfg TickerConfig, log *zap.SugaredLogger) *Ticker {
	return NewTickerWithContext(context.Background(), runner, cfg, log)
}

// NewTickerWithContext creates a ticker with a parent context
func NewTickerWithContext(ctx context.Context, runner Runner, cfg TickerConfig, log *zap.SugaredLogger) *Ticker {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultTickerConfig().Interval
	}
	if log == nil {
		log = logger.ComponentLogger("pulse.ticker")
	}
	tickerCtx, cancel := context.WithCancel(ctx)
	return &Ticker{
		runner:   runner,
		interval: cfg.Interval,
		ctx:      tickerCtx,
		cancel:   cancel,
		trigger:  make(chan struct{}, 1),
		reset:    make(chan time.Duration, 1),
		memory:   ReadMemoryStats,
		pulseLog: logger.AddPulseSymbol(log),
	}
}

// Start runs a pass immediately, then one per interval.
func (t *Ticker) Start() {
	logger.AddPulseOpenSymbol(t.pulseLog).Infow("Pulse ticker started", "interval", t.interval)
	t.wg.Add(1)
	go t.run()
}

// Stop cancels the running pass and waits for the loop to exit. The
// interrupted job keeps its checkpoint.
func (t *Ticker) Stop() {
	t.cancel()
	t.wg.Wait()
	logger.AddPulseCloseSymbol(t.pulseLog).Infow("Pulse ticker stopped")
}

// Trigger requests an early pass. Requests made while one is pending
// collapse into one.
func (t *Ticker) Trigger() {
	select {
	case t.trigger <- struct{}{}:
	default:
	}
}

// SetInterval changes the tick interval of a running ticker.
func (t *Ticker) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-t.reset:
	default:
	}
	t.reset <- d
}

// LastSummary returns the result of the most recent pass.
func (t *Ticker) LastSummary() (pipeline.Summary, time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastSummary, t.lastTickAt
}

func (t *Ticker) run() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.RunOnce(t.ctx)
	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			t.RunOnce(t.ctx)
		case <-t.trigger:
			t.RunOnce(t.ctx)
		case d := <-t.reset:
			t.interval = d
			ticker.Reset(d)
			t.pulseLog.Infow("Pulse interval changed", "interval", d)
		}
	}
}

// RunOnce executes a pass unless one is already running, and reports
// whether it ran.
func (t *Ticker) RunOnce(ctx context.Context) bool {
	if !t.running.CompareAndSwap(false, true) {
		t.pulseLog.Debugw("Pass already running, tick skipped")
		return false
	}
	defer t.running.Store(false)

	start := time.Now()
	sum, err := t.runner.Run(ctx)

	t.mu.Lock()
	t.lastTickAt = start
	t.ticksSinceStart++
	t.lastSummary = sum
	tick := t.ticksSinceStart
	t.mu.Unlock()

	if err != nil && ctx.Err() == nil {
		if db.IsDatabaseClosed(err) {
			t.pulseLog.Debugw("Pulse tick after database close", "tick", tick)
			return true
		}
		t.pulseLog.Warnw("Pulse tick error", logger.FieldError, err, "tick", tick)
		return true
	}
	t.logTick(tick, sum, time.Since(start))
	return true
}

// logTick writes one metrics line per pass that did something.
func (t *Ticker) logTick(tick int64, sum pipeline.Summary, took time.Duration) {
	if sum == (pipeline.Summary{}) {
		t.pulseLog.Debugw("Pulse - nothing to do", "tick", tick)
		return
	}
	fields := []interface{}{
		"tick", tick,
		"accepted", sum.Accepted,
		"rejected", sum.Rejected,
		"completed", sum.Completed,
		"failed", sum.Failed,
		"suspended", sum.Suspended,
		"held", sum.Held,
		logger.FieldDurationMS, took.Milliseconds(),
	}
	if m, err := t.memory(); err == nil {
		fields = append(fields,
			"mem_used_gb", m.UsedGB(),
			"mem_total_gb", m.TotalGB(),
			"mem_percent", m.Percent())
	}
	t.pulseLog.Infow("Pulse tick", fields...)
}

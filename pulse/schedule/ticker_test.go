package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/pegabatch/errors"
	"github.com/teranos/pegabatch/pipeline"
)

type countingRunner struct {
	mu    sync.Mutex
	calls int
	ran   chan struct{}
	block chan struct{}
	err   error
}

func newCountingRunner() *countingRunner {
	return &countingRunner{ran: make(chan struct{}, 100)}
}

func (r *countingRunner) Run(ctx context.Context) (pipeline.Summary, error) {
	r.mu.Lock()
	r.calls++
	block := r.block
	r.mu.Unlock()
	r.ran <- struct{}{}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return pipeline.Summary{}, ctx.Err()
		}
	}
	return pipeline.Summary{Completed: 1}, r.err
}

func (r *countingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func waitRun(t *testing.T, r *countingRunner) {
	t.Helper()
	select {
	case <-r.ran:
	case <-time.After(5 * time.Second):
		t.Fatal("pass did not run")
	}
}

func TestTickerRunsImmediatelyAndOnInterval(t *testing.T) {
	r := newCountingRunner()
	tk := NewTicker(r, TickerConfig{Interval: 20 * time.Millisecond}, zap.NewNop().Sugar())
	tk.memory = func() (MemoryStats, error) { return MemoryStats{Total: 8 * gib, Available: 2 * gib}, nil }

	tk.Start()
	waitRun(t, r)
	waitRun(t, r)
	tk.Stop()

	sum, at := tk.LastSummary()
	assert.Equal(t, 1, sum.Completed)
	assert.False(t, at.IsZero())
}

func TestTickerTrigger(t *testing.T) {
	r := newCountingRunner()
	tk := NewTicker(r, TickerConfig{Interval: time.Hour}, zap.NewNop().Sugar())
	tk.Start()
	defer tk.Stop()

	waitRun(t, r)
	tk.Trigger()
	waitRun(t, r)
	assert.Equal(t, 2, r.count())
}

func TestTickerSetInterval(t *testing.T) {
	r := newCountingRunner()
	tk := NewTicker(r, TickerConfig{Interval: time.Hour}, zap.NewNop().Sugar())
	tk.Start()
	defer tk.Stop()

	waitRun(t, r)
	tk.SetInterval(10 * time.Millisecond)
	waitRun(t, r)
}

func TestRunOnceDoesNotOverlap(t *testing.T) {
	r := newCountingRunner()
	r.block = make(chan struct{})
	tk := NewTicker(r, TickerConfig{}, zap.NewNop().Sugar())

	done := make(chan bool)
	go func() { done <- tk.RunOnce(context.Background()) }()
	waitRun(t, r)

	assert.False(t, tk.RunOnce(context.Background()), "second pass must be skipped while one runs")

	close(r.block)
	assert.True(t, <-done)
	assert.Equal(t, 1, r.count())
	assert.True(t, tk.RunOnce(context.Background()))
}

func TestStopCancelsRunningPass(t *testing.T) {
	r := newCountingRunner()
	r.block = make(chan struct{})
	tk := NewTicker(r, TickerConfig{Interval: time.Hour}, zap.NewNop().Sugar())
	tk.Start()
	waitRun(t, r)

	stopped := make(chan struct{})
	go func() { tk.Stop(); close(stopped) }()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not cancel the running pass")
	}
}

func TestRunOnceError(t *testing.T) {
	r := newCountingRunner()
	r.err = errors.New("tracker unavailable")
	tk := NewTicker(r, TickerConfig{}, nil)
	require.True(t, tk.RunOnce(context.Background()))
}

func TestMemoryStats(t *testing.T) {
	m := MemoryStats{Total: 4 * gib, Available: 1 * gib}
	assert.InDelta(t, 4.0, m.TotalGB(), 0.001)
	assert.InDelta(t, 3.0, m.UsedGB(), 0.001)
	assert.InDelta(t, 75.0, m.Percent(), 0.001)
	assert.Zero(t, MemoryStats{}.Percent())
}

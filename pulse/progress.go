// Package pulse holds the infrastructure shared by the batch engine: the
// orchestrator, its checkpoint and cache stores, quota policy and ticker.
package pulse

import (
	"context"
	"math"
)

// ProgressReporter receives coarse progress for a running job. It lives in
// the infrastructure layer so the orchestrator does not depend on the tracker.
type ProgressReporter interface {
	// ReportProgress announces percent complete (0..99) for a job.
	ReportProgress(ctx context.Context, jobID string, percent int) error
}

// ProgressFunc adapts a function to ProgressReporter.
type ProgressFunc func(ctx context.Context, jobID string, percent int) error

func (f ProgressFunc) ReportProgress(ctx context.Context, jobID string, percent int) error {
	return f(ctx, jobID, percent)
}

// Percent is the progress shown after finishing row i of total rows. It never
// reaches 100; completion is reported separately.
func Percent(i, total int) int {
	if total <= 0 {
		return 0
	}
	// round(100 - (total-(i+1))*100/total - 1), half up
	remaining := float64(total-(i+1)) * 100 / float64(total)
	p := int(math.Floor(100 - remaining - 1 + 0.5))
	return min(max(p, 0), 99)
}

// ProgressInterval returns how many rows pass between reports.
func ProgressInterval(total int) int {
	return max(total/100, 10)
}

package batch

import "fmt"

// OutcomeKind tells the caller what to do with a job after Run.
type OutcomeKind int

const (
	// Skipped: cooldown active or job already in flight. Nothing was touched.
	Skipped OutcomeKind = iota
	// Suspended: quota nearly exhausted. Checkpoint and cooldown persisted.
	Suspended
	// Completed: rows exhausted with at least one success.
	Completed
	// Failed: structural error or zero successes.
	Failed
	// Interrupted: storage failure or cancellation. Checkpoint kept, retry later.
	Interrupted
)

func (k OutcomeKind) String() string {
	switch k {
	case Skipped:
		return "skipped"
	case Suspended:
		return "suspended"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Interrupted:
		return "interrupted"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// SkipReason explains a Skipped outcome.
type SkipReason string

const (
	SkipCooldown SkipReason = "cooldown"
	SkipInFlight SkipReason = "in_flight"
)

// Outcome is the result of one Run.
type Outcome struct {
	Kind       OutcomeKind
	SkipReason SkipReason
	Results    PartialResult
	Errors     []LineError
	Reason     string // Failed only
	Err        error  // Interrupted only
}

// Status maps the outcome onto the job lifecycle.
func (o Outcome) Status() Status {
	switch o.Kind {
	case Suspended:
		return StatusSuspended
	case Completed:
		return StatusComplete
	case Failed:
		return StatusFailed
	case Interrupted:
		return StatusProcessing
	default:
		return StatusPending
	}
}

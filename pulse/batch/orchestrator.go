package batch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/pegabatch/errors"
	"github.com/teranos/pegabatch/handle"
	"github.com/teranos/pegabatch/logger"
	"github.com/teranos/pegabatch/pegabot"
	"github.com/teranos/pegabatch/pulse"
	"github.com/teranos/pegabatch/pulse/quota"
)

// Enricher scores one identifier.
type Enricher interface {
	Analyze(ctx context.Context, identifier string) (*pegabot.Payload, error)
}

// Cache is the cross-job response cache.
type Cache interface {
	Get(ctx context.Context, identifier string) (*pegabot.Payload, bool, error)
	Set(ctx context.Context, identifier string, payload *pegabot.Payload) error
}

// Store is the checkpoint store.
type Store interface {
	Load(ctx context.Context, jobID string) (Checkpoint, error)
	Save(ctx context.Context, jobID string, cp Checkpoint) error
	Cooldown(ctx context.Context) (*time.Time, error)
	SetCooldown(ctx context.Context, until time.Time) error
}

// Config wires an Orchestrator. Store, Cache, Client and Policy are required.
type Config struct {
	Store    Store
	Cache    Cache
	Client   Enricher
	Policy   *quota.Policy
	Limiter  *quota.Limiter         // optional local estimate of remaining calls
	Guard    *Guard                 // nil = private guard
	Progress pulse.ProgressReporter // optional
	Logger   *zap.SugaredLogger     // nil = nop logger
}

// Orchestrator drives jobs one row at a time, checkpointing after every row.
type Orchestrator struct {
	store    Store
	cache    Cache
	client   Enricher
	policy   *quota.Policy
	limiter  *quota.Limiter
	guard    *Guard
	progress pulse.ProgressReporter
	log      *zap.SugaredLogger

	mu    sync.Mutex
	state quota.State
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(cfg Config) *Orchestrator {
	guard := cfg.Guard
	if guard == nil {
		guard = NewGuard()
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Orchestrator{
		store:    cfg.Store,
		cache:    cfg.Cache,
		client:   cfg.Client,
		policy:   cfg.Policy,
		limiter:  cfg.Limiter,
		guard:    guard,
		progress: cfg.Progress,
		log:      log,
		state:    quota.State{Remaining: quota.Unknown},
	}
}

// QuotaState returns the latest quota view.
func (o *Orchestrator) QuotaState() quota.State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// SetRemaining seeds the quota view, e.g. from a previous process.
func (o *Orchestrator) SetRemaining(remaining int) {
	o.mu.Lock()
	o.state.Remaining = remaining
	o.mu.Unlock()
}

// Run advances job from its checkpoint. It never panics on bad input and
// never returns an error: every failure mode is an Outcome.
func (o *Orchestrator) Run(ctx context.Context, job *Job) Outcome {
	until, err := o.store.Cooldown(ctx)
	if err != nil {
		return o.interrupted(job, Checkpoint{}, errors.Wrap(err, "read cooldown"))
	}
	o.mu.Lock()
	o.state.CooldownUntil = until
	o.mu.Unlock()
	if o.policy.Active(until) {
		o.log.Debugw("Cooldown active, skipping job", logger.FieldJobID, job.ID, logger.FieldUntil, until)
		return Outcome{Kind: Skipped, SkipReason: SkipCooldown}
	}

	release, ok := o.guard.TryAcquire(job.ID)
	if !ok {
		o.log.Debugw("Job already running, skipping", logger.FieldJobID, job.ID)
		return Outcome{Kind: Skipped, SkipReason: SkipInFlight}
	}
	defer release()

	runID := uuid.NewString()
	ctx = logger.WithRunID(logger.WithJobID(ctx, job.ID), runID)
	r := &run{
		o:     o,
		ctx:   ctx,
		job:   job,
		log:   logger.AddPulseSymbol(logger.FromContext(ctx, o.log)),
		start: time.Now(),
	}
	return r.execute()
}

type run struct {
	o     *Orchestrator
	ctx   context.Context
	job   *Job
	cp    Checkpoint
	log   *zap.SugaredLogger
	start time.Time
	calls int
}

func (r *run) execute() Outcome {
	cp, err := r.o.store.Load(r.ctx, r.job.ID)
	if err != nil {
		return r.o.interrupted(r.job, Checkpoint{}, errors.Wrap(err, "load checkpoint"))
	}
	if cp.Results == nil {
		cp.Results = PartialResult{}
	}
	r.cp = cp
	r.job.Status = StatusProcessing
	r.job.Cursor = 0

	total := len(r.job.Rows)
	r.log.Infow("Job started",
		logger.FieldRows, total,
		"resumed_results", len(cp.Results),
		"resumed_errors", len(cp.Errors))

	interval := pulse.ProgressInterval(total)
	for i, row := range r.job.Rows {
		if err := r.ctx.Err(); err != nil {
			return r.o.interrupted(r.job, r.cp, err)
		}
		r.job.Cursor = i

		if out, stop := r.step(i, row); stop {
			return out
		}

		if i > 0 && i%interval == 0 {
			r.reportProgress(pulse.Percent(i, total))
		}
	}
	r.job.Cursor = total

	if len(r.cp.Results) == 0 {
		r.job.Status = StatusFailed
		r.log.Infow("Job failed, no identifier resolved", logger.FieldCount, len(r.cp.Errors))
		return Outcome{Kind: Failed, Reason: "no identifier resolved", Results: r.cp.Results, Errors: r.cp.Errors}
	}

	r.job.Status = StatusComplete
	r.log.Infow("Job completed",
		logger.FieldCount, len(r.cp.Results),
		"line_errors", len(r.cp.Errors),
		"api_calls", r.calls,
		logger.FieldDurationMS, time.Since(r.start).Milliseconds())
	return Outcome{Kind: Completed, Results: r.cp.Results, Errors: r.cp.Errors}
}

// step processes one row. stop is true when Run must return out.
func (r *run) step(i int, row Row) (out Outcome, stop bool) {
	key, ok := handle.Column(row)
	if !ok {
		r.cp.Errors = append(r.cp.Errors, LineError{RowIndex: i, Message: MsgMissingColumn})
		r.job.Status = StatusFailed
		r.log.Warnw("No identifier column", logger.FieldRow, i)
		return Outcome{Kind: Failed, Reason: MsgMissingColumn, Results: r.cp.Results, Errors: r.cp.Errors}, true
	}

	id, ok := handle.Normalize(row[key])
	if !ok {
		r.cp.Errors = append(r.cp.Errors, LineError{RowIndex: i, Message: MsgInvalidIdentifier})
		return r.save()
	}

	if _, done := r.cp.Results[id]; done {
		return Outcome{}, false
	}

	cached, hit, err := r.o.cache.Get(r.ctx, id)
	if err != nil {
		return r.o.interrupted(r.job, r.cp, errors.Wrapf(err, "cache lookup for %q", id)), true
	}
	if hit {
		r.log.Debugw("Cache hit", logger.FieldIdentifier, id)
		r.cp.Results[id] = cached
		return r.save()
	}

	r.calls++
	payload, err := r.o.client.Analyze(r.ctx, id)
	if err != nil {
		return r.enrichmentFailed(i, id, err)
	}

	r.cp.Results[id] = payload
	if err := r.o.cache.Set(r.ctx, id, payload); err != nil {
		// Payload is still checkpointed; only cross-job reuse is lost
		r.log.Warnw("Failed to cache response", logger.FieldIdentifier, id, logger.FieldError, err)
	}
	state := r.o.observe(payload)

	if out, stop := r.save(); stop {
		return out, true
	}

	if r.o.policy.ShouldSuspend(state) {
		return r.suspend(state), true
	}
	return Outcome{}, false
}

func (r *run) enrichmentFailed(i int, id string, err error) (Outcome, bool) {
	if r.ctx.Err() != nil {
		return r.o.interrupted(r.job, r.cp, r.ctx.Err()), true
	}

	var apiErr *pegabot.Error
	if !errors.As(err, &apiErr) {
		apiErr = &pegabot.Error{Reason: pegabot.Transport, Message: err.Error()}
	}

	// A hard rejection means the preemptive threshold was missed; back off
	// like a suspension and retry this row later instead of blaming the handle.
	if apiErr.Reason == pegabot.QuotaExceeded {
		r.log.Warnw("API rejected call for quota", logger.FieldIdentifier, id)
		state := r.o.QuotaState()
		state.Remaining = 0
		state.ResetIn = 0
		return r.suspend(state), true
	}

	r.log.Infow("Identifier did not resolve",
		logger.FieldRow, i,
		logger.FieldIdentifier, id,
		logger.FieldErrorCode, string(apiErr.Reason),
		logger.FieldError, apiErr.Detail())
	r.cp.Errors = append(r.cp.Errors, LineError{RowIndex: i, Message: enrichmentMessage(id, apiErr.Detail())})
	return r.save()
}

func (r *run) save() (Outcome, bool) {
	if err := r.o.store.Save(r.ctx, r.job.ID, r.cp); err != nil {
		return r.o.interrupted(r.job, r.cp, errors.Wrap(err, "save checkpoint")), true
	}
	return Outcome{}, false
}

func (r *run) suspend(state quota.State) Outcome {
	until := r.o.policy.CooldownFor(state)
	if err := r.o.store.SetCooldown(r.ctx, until); err != nil {
		return r.o.interrupted(r.job, r.cp, errors.Wrap(err, "persist cooldown"))
	}

	r.o.mu.Lock()
	r.o.state.CooldownUntil = &until
	r.o.mu.Unlock()

	r.job.Status = StatusSuspended
	r.log.Infow("Job suspended, quota nearly exhausted",
		logger.FieldRemaining, state.Remaining,
		logger.FieldUntil, until.Format(time.RFC3339),
		logger.FieldCount, len(r.cp.Results))
	return Outcome{Kind: Suspended, Results: r.cp.Results, Errors: r.cp.Errors}
}

func (r *run) reportProgress(percent int) {
	if r.o.progress == nil {
		return
	}
	if err := r.o.progress.ReportProgress(r.ctx, r.job.ID, percent); err != nil {
		r.log.Warnw("Failed to report progress", logger.FieldProgress, percent, logger.FieldError, err)
	}
}

// observe updates the quota view from a live response and returns it.
func (o *Orchestrator) observe(p *pegabot.Payload) quota.State {
	if o.limiter != nil {
		o.limiter.Record()
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	remaining, known := p.RateLimit.Known()
	switch {
	case known:
		o.state.Remaining = remaining
		o.state.ResetIn = int(p.RateLimit.ToReset)
	case o.limiter != nil:
		o.state.Remaining = o.limiter.Remaining()
		o.state.ResetIn = 0
	default:
		// No signal in this response; an older count would be stale
		o.state.Remaining = quota.Unknown
		o.state.ResetIn = 0
	}
	return o.state
}

func (o *Orchestrator) interrupted(job *Job, cp Checkpoint, err error) Outcome {
	o.log.Warnw("Job interrupted, checkpoint kept", logger.FieldJobID, job.ID, logger.FieldError, err)
	return Outcome{Kind: Interrupted, Err: err, Results: cp.Results, Errors: cp.Errors}
}

// Package pipeline runs one scheduling pass: take new uploads, then advance
// pending requests through the orchestrator until the quota says stop.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/pegabatch/errors"
	"github.com/teranos/pegabatch/logger"
	"github.com/teranos/pegabatch/pulse/batch"
	"github.com/teranos/pegabatch/pulse/quota"
	"github.com/teranos/pegabatch/report"
	"github.com/teranos/pegabatch/source"
	"github.com/teranos/pegabatch/tracker"
)

// MsgUnreadableFile is stored on requests whose upload cannot be parsed.
const MsgUnreadableFile = "Não foi possível ler o arquivo enviado. Verifique se é uma planilha .csv ou .xlsx válida."

// Requests is the tracker surface a pass drives.
type Requests interface {
	ListPending(ctx context.Context) ([]*tracker.Request, error)
	SetStatus(ctx context.Context, id string, status tracker.Status) error
	SetProgress(ctx context.Context, id string, percent int) error
	SetResult(ctx context.Context, id, outputFile, lineErrors string) error
	SetError(ctx context.Context, id, text string) error
}

// Runner advances one job.
type Runner interface {
	Run(ctx context.Context, job *batch.Job) batch.Outcome
}

// Checkpoints reads the global cooldown and drops finished checkpoints.
type Checkpoints interface {
	Cooldown(ctx context.Context) (*time.Time, error)
	Clear(ctx context.Context, jobID string) error
}

// Notifier tells owners about finished requests.
type Notifier interface {
	Results(ctx context.Context, req *tracker.Request, file string) error
	Failure(ctx context.Context, req *tracker.Request, errText string) error
}

// Intake collects new uploads.
type Intake interface {
	Collect(ctx context.Context) ([]source.Intake, error)
}

// Pass wires the collaborators of one pass. Inbox and Notifier are optional.
type Pass struct {
	Inbox        Intake
	Requests     Requests
	Orchestrator Runner
	Checkpoints  Checkpoints
	Policy       *quota.Policy
	Notifier     Notifier
	OutDir       string
	// Archive zips result spreadsheets; the zip becomes the artifact.
	Archive bool
	// Extract reads an upload; nil uses source.ExtractRows.
	Extract func(path string) ([]map[string]any, error)
	Logger  *zap.SugaredLogger
}

// Summary counts what a pass did.
type Summary struct {
	Accepted    int
	Rejected    int
	Completed   int
	Failed      int
	Suspended   int
	Skipped     int
	Interrupted int
	// Held is set when the pass stopped for the quota cooldown.
	Held bool
}

// Run executes one pass. It returns an error only when the pass could not
// make progress at all: inbox or tracker unavailable, storage failure,
// or cancellation.
func (p *Pass) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	log := p.Logger
	if log == nil {
		log = logger.AddPulseSymbol(logger.ComponentLogger("pipeline"))
	}

	if p.Inbox != nil {
		intakes, err := p.Inbox.Collect(ctx)
		if err != nil {
			return sum, errors.Wrap(err, "collect inbox")
		}
		for _, in := range intakes {
			if in.Accepted() {
				sum.Accepted++
			} else {
				sum.Rejected++
			}
		}
	}

	until, err := p.Checkpoints.Cooldown(ctx)
	if err != nil {
		return sum, errors.Wrap(err, "read cooldown")
	}
	if p.Policy.Active(until) {
		log.Infow("Quota cooldown active, pass held", logger.FieldUntil, until)
		sum.Held = true
		return sum, nil
	}

	pending, err := p.Requests.ListPending(ctx)
	if err != nil {
		return sum, errors.Wrap(err, "list pending requests")
	}

	for _, req := range pending {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if req.InputFile == "" {
			log.Debugw("Request has no upload yet", logger.FieldJobID, req.ID)
			continue
		}

		stop, err := p.process(ctx, log, req, &sum)
		if err != nil {
			return sum, err
		}
		if stop {
			break
		}
	}

	log.Infow("Pass finished",
		"completed", sum.Completed,
		"failed", sum.Failed,
		"suspended", sum.Suspended,
		"accepted", sum.Accepted)
	return sum, nil
}

// process runs one request and reports whether the pass must stop.
func (p *Pass) process(ctx context.Context, log *zap.SugaredLogger, req *tracker.Request, sum *Summary) (bool, error) {
	log = log.With(logger.FieldJobID, req.ID)

	if err := p.Requests.SetStatus(ctx, req.ID, tracker.StatusAnalysing); err != nil {
		return false, err
	}
	if err := p.Requests.SetProgress(ctx, req.ID, 0); err != nil {
		return false, err
	}

	extract := p.Extract
	if extract == nil {
		extract = source.ExtractRows
	}
	rows, err := extract(req.InputFile)
	if err != nil {
		log.Warnw("Upload unreadable", logger.FieldFile, req.InputFile, logger.FieldError, err)
		sum.Failed++
		return false, p.fail(ctx, log, req, MsgUnreadableFile)
	}

	job := &batch.Job{ID: req.ID, Rows: rows, Status: batch.StatusProcessing}
	out := p.Orchestrator.Run(ctx, job)
	log.Debugw("Job run finished", logger.FieldOutcome, out.Kind.String(), logger.FieldRows, len(rows))

	switch out.Kind {
	case batch.Completed:
		sum.Completed++
		return false, p.complete(ctx, log, req, rows, out)

	case batch.Failed:
		sum.Failed++
		text := batch.FormatErrors(out.Errors)
		if text == "" {
			text = out.Reason
		}
		return false, p.fail(ctx, log, req, text)

	case batch.Suspended:
		sum.Suspended++
		log.Infow("Job suspended for quota, pass stopped")
		return true, nil

	case batch.Skipped:
		sum.Skipped++
		return out.SkipReason == batch.SkipCooldown, nil

	default:
		sum.Interrupted++
		if ctx.Err() != nil {
			return true, ctx.Err()
		}
		return true, errors.Wrapf(out.Err, "job %s interrupted", req.ID)
	}
}

func (p *Pass) complete(ctx context.Context, log *zap.SugaredLogger, req *tracker.Request, input []batch.Row, out batch.Outcome) error {
	artifact := filepath.Join(p.OutDir, report.OutputName(req.InputFile))
	if err := report.WriteXLSX(artifact, report.Rows(input, out.Results, out.Errors)); err != nil {
		return errors.Wrapf(err, "write results for %s", req.ID)
	}
	if p.Archive {
		zipped, err := report.Archive(artifact)
		if err != nil {
			return errors.Wrapf(err, "archive results for %s", req.ID)
		}
		os.Remove(artifact)
		artifact = zipped
	}

	if err := p.Requests.SetResult(ctx, req.ID, artifact, report.FormatErrors(out.Errors)); err != nil {
		return err
	}
	log.Infow("Request complete", logger.FieldFile, artifact, logger.FieldCount, len(out.Results))

	p.notify(ctx, log, func() error { return p.Notifier.Results(ctx, req, artifact) })
	p.finish(ctx, log, req)
	return nil
}

func (p *Pass) fail(ctx context.Context, log *zap.SugaredLogger, req *tracker.Request, text string) error {
	if err := p.Requests.SetError(ctx, req.ID, text); err != nil {
		return err
	}
	log.Warnw("Request failed", logger.FieldError, text)

	p.notify(ctx, log, func() error { return p.Notifier.Failure(ctx, req, text) })
	p.finish(ctx, log, req)
	return nil
}

func (p *Pass) notify(ctx context.Context, log *zap.SugaredLogger, send func() error) {
	if p.Notifier == nil {
		return
	}
	if err := send(); err != nil {
		log.Warnw("Notification not delivered", logger.FieldError, err)
	}
}

// finish drops the checkpoint and the work copy of a request in a terminal state.
func (p *Pass) finish(ctx context.Context, log *zap.SugaredLogger, req *tracker.Request) {
	if err := p.Checkpoints.Clear(ctx, req.ID); err != nil {
		log.Warnw("Checkpoint not cleared", logger.FieldError, err)
	}
	if err := os.Remove(req.InputFile); err != nil && !os.IsNotExist(err) {
		log.Warnw("Upload not removed", logger.FieldFile, req.InputFile, logger.FieldError, err)
	}
}

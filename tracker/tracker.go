// Package tracker persists user analysis requests (user_requests) and the
// notifications sent about them (email_log).
package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/teranos/pegabatch/errors"
)

// Status is the user-visible state of a request.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusAnalysing Status = "analysing"
	StatusComplete  Status = "complete"
	StatusError     Status = "error"
)

// Statuses lists every valid status in lifecycle order.
var Statuses = []Status{StatusWaiting, StatusAnalysing, StatusComplete, StatusError}

// ParseStatus validates a status name.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if string(st) == strings.ToLower(strings.TrimSpace(s)) {
			return st, nil
		}
	}
	names := make([]string, len(Statuses))
	for i, st := range Statuses {
		names[i] = string(st)
	}
	return "", errors.WithHintf(
		errors.Wrapf(errors.ErrInvalidRequest, "invalid status %q", s),
		"valid statuses: %s", strings.Join(names, "|"))
}

// Request is one uploaded file awaiting or finished analysis.
type Request struct {
	ID           string
	Status       Status
	Progress     int
	Email        string
	InputFile    string
	OutputFile   string
	Error        string
	AnalysisDate *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// timeLayout is fixed width so timestamps order correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Tracker is the SQLite-backed request store.
type Tracker struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a tracker on a migrated database.
func New(db *sql.DB) *Tracker {
	return &Tracker{db: db, now: time.Now}
}

func (t *Tracker) stamp() string {
	return t.now().UTC().Format(timeLayout)
}

// Create inserts a request. Status defaults to waiting.
func (t *Tracker) Create(ctx context.Context, r *Request) error {
	if r.ID == "" {
		return errors.Wrap(errors.ErrInvalidRequest, "request id is required")
	}
	if r.Status == "" {
		r.Status = StatusWaiting
	}
	if _, err := ParseStatus(string(r.Status)); err != nil {
		return err
	}

	now := t.stamp()
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO user_requests (id, status, progress, email, input_file, output_file, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.Status), r.Progress, r.Email, r.InputFile, r.OutputFile, r.Error, now, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return errors.Wrapf(errors.ErrConflict, "request %s already exists", r.ID)
		}
		return errors.Wrapf(err, "failed to create request %s", r.ID)
	}
	r.CreatedAt, _ = time.Parse(timeLayout, now)
	r.UpdatedAt = r.CreatedAt
	return nil
}

const selectColumns = `id, status, progress, email, input_file, output_file, error, analysis_date, created_at, updated_at`

// Get loads one request.
func (t *Tracker) Get(ctx context.Context, id string) (*Request, error) {
	row := t.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM user_requests WHERE id = ?`, id)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(errors.ErrNotFound, "request %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get request %s", id)
	}
	return r, nil
}

// List returns requests in arrival order, optionally filtered by status.
func (t *Tracker) List(ctx context.Context, statuses ...Status) ([]*Request, error) {
	query := `SELECT ` + selectColumns + ` FROM user_requests`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (?` + strings.Repeat(", ?", len(statuses)-1) + `)`
		for _, s := range statuses {
			args = append(args, string(s))
		}
	}
	query += ` ORDER BY created_at ASC, rowid ASC`

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list requests")
	}
	defer rows.Close()

	var out []*Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan request")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListPending returns requests still to be processed: new ones and those
// suspended mid-analysis, oldest first.
func (t *Tracker) ListPending(ctx context.Context) ([]*Request, error) {
	return t.List(ctx, StatusWaiting, StatusAnalysing)
}

// SetStatus changes a request's status. Terminal statuses stamp analysis_date.
func (t *Tracker) SetStatus(ctx context.Context, id string, status Status) error {
	if _, err := ParseStatus(string(status)); err != nil {
		return err
	}
	var analysisDate any
	if status == StatusComplete || status == StatusError {
		analysisDate = t.stamp()
	}
	return t.update(ctx, id,
		`status = ?, analysis_date = COALESCE(?, analysis_date)`,
		string(status), analysisDate)
}

// AttachFile records the work-dir path of a request's upload.
func (t *Tracker) AttachFile(ctx context.Context, id, inputFile string) error {
	return t.update(ctx, id, `input_file = ?`, inputFile)
}

// SetProgress records percent complete.
func (t *Tracker) SetProgress(ctx context.Context, id string, percent int) error {
	return t.update(ctx, id, `progress = ?`, min(max(percent, 0), 100))
}

// ReportProgress lets the orchestrator update progress directly.
func (t *Tracker) ReportProgress(ctx context.Context, jobID string, percent int) error {
	return t.SetProgress(ctx, jobID, percent)
}

// SetResult marks a request complete with its artifact. lineErrors is the
// formatted text of rows that did not resolve, empty when all did.
func (t *Tracker) SetResult(ctx context.Context, id, outputFile, lineErrors string) error {
	return t.update(ctx, id,
		`status = ?, progress = 100, output_file = ?, error = ?, analysis_date = ?`,
		string(StatusComplete), outputFile, lineErrors, t.stamp())
}

// SetError marks a request failed with user-visible text.
func (t *Tracker) SetError(ctx context.Context, id, text string) error {
	return t.update(ctx, id,
		`status = ?, error = ?, analysis_date = ?`,
		string(StatusError), text, t.stamp())
}

// CountByStatus returns how many requests are in each status.
func (t *Tracker) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := t.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM user_requests GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count requests")
	}
	defer rows.Close()

	counts := make(map[Status]int, len(Statuses))
	for _, s := range Statuses {
		counts[s] = 0
	}
	for rows.Next() {
		var s string
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, errors.Wrap(err, "failed to scan count")
		}
		counts[Status(s)] = n
	}
	return counts, rows.Err()
}

func (t *Tracker) update(ctx context.Context, id, set string, args ...any) error {
	query := fmt.Sprintf(`UPDATE user_requests SET %s, updated_at = ? WHERE id = ?`, set)
	args = append(args, t.stamp(), id)

	result, err := t.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrapf(err, "failed to update request %s", id)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if n == 0 {
		return errors.Wrapf(errors.ErrNotFound, "request %s", id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(s scanner) (*Request, error) {
	var r Request
	var status, createdAt, updatedAt string
	var analysisDate sql.NullString

	if err := s.Scan(&r.ID, &status, &r.Progress, &r.Email, &r.InputFile, &r.OutputFile,
		&r.Error, &analysisDate, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	r.Status = Status(status)

	var err error
	// Parse timestamps (return error if parsing fails - indicates data corruption)
	if r.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, errors.Wrapf(err, "failed to parse created_at for request %s", r.ID)
	}
	if r.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, errors.Wrapf(err, "failed to parse updated_at for request %s", r.ID)
	}
	if analysisDate.Valid {
		ts, err := time.Parse(timeLayout, analysisDate.String)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse analysis_date for request %s", r.ID)
		}
		r.AnalysisDate = &ts
	}
	return &r, nil
}

// Package checkpoint persists per-job partial results and line errors, and
// the process-wide cooldown deadline, in the checkpoint_kv table.
package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/teranos/pegabatch/errors"
	"github.com/teranos/pegabatch/pulse/batch"
)

// CooldownKey holds the global deadline before which no job may call the API.
const CooldownKey = "next_execution"

// ResultsKey returns the key holding a job's partial results.
func ResultsKey(jobID string) string { return jobID + "_results" }

// ErrorsKey returns the key holding a job's line errors.
func ErrorsKey(jobID string) string { return jobID + "_error" }

// Store is a SQLite-backed checkpoint store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a checkpoint store on a migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Load returns the job's checkpoint, empty when none exists.
func (s *Store) Load(ctx context.Context, jobID string) (batch.Checkpoint, error) {
	cp := batch.Checkpoint{Results: batch.PartialResult{}}

	raw, err := s.get(ctx, ResultsKey(jobID))
	if err != nil {
		return cp, errors.Wrapf(err, "load results for job %s", jobID)
	}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &cp.Results); err != nil {
			return cp, errors.WithDetail(
				errors.Wrapf(err, "decode results for job %s", jobID),
				fmt.Sprintf("Key: %s", ResultsKey(jobID)))
		}
		if cp.Results == nil {
			cp.Results = batch.PartialResult{}
		}
	}

	raw, err = s.get(ctx, ErrorsKey(jobID))
	if err != nil {
		return cp, errors.Wrapf(err, "load errors for job %s", jobID)
	}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &cp.Errors); err != nil {
			return cp, errors.WithDetail(
				errors.Wrapf(err, "decode errors for job %s", jobID),
				fmt.Sprintf("Key: %s", ErrorsKey(jobID)))
		}
	}

	return cp, nil
}

// Save writes results and errors for the job in one transaction.
func (s *Store) Save(ctx context.Context, jobID string, cp batch.Checkpoint) error {
	results := cp.Results
	if results == nil {
		results = batch.PartialResult{}
	}
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return errors.Wrapf(err, "encode results for job %s", jobID)
	}
	lineErrors := cp.Errors
	if lineErrors == nil {
		lineErrors = []batch.LineError{}
	}
	errorsJSON, err := json.Marshal(lineErrors)
	if err != nil {
		return errors.Wrapf(err, "encode errors for job %s", jobID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrapf(err, "begin checkpoint tx for job %s", jobID)
	}
	defer tx.Rollback()

	now := s.now().UTC().Format(time.RFC3339Nano)
	for _, kv := range [][2]string{
		{ResultsKey(jobID), string(resultsJSON)},
		{ErrorsKey(jobID), string(errorsJSON)},
	} {
		if _, err := tx.ExecContext(ctx, upsertSQL, kv[0], kv[1], now); err != nil {
			return errors.Wrapf(err, "write %s", kv[0])
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, "commit checkpoint for job %s", jobID)
	}
	return nil
}

// Clear removes the job's checkpoint. The cooldown is untouched.
func (s *Store) Clear(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM checkpoint_kv WHERE key IN (?, ?)`,
		ResultsKey(jobID), ErrorsKey(jobID))
	if err != nil {
		return errors.Wrapf(err, "clear checkpoint for job %s", jobID)
	}
	return nil
}

// Cooldown returns the stored deadline, or nil when none is set.
// An unparseable value reads as no cooldown.
func (s *Store) Cooldown(ctx context.Context) (*time.Time, error) {
	raw, err := s.get(ctx, CooldownKey)
	if err != nil {
		return nil, errors.Wrap(err, "load cooldown")
	}
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, nil
	}
	return &t, nil
}

// SetCooldown stores a new deadline, replacing any previous one.
func (s *Store) SetCooldown(ctx context.Context, until time.Time) error {
	now := s.now().UTC().Format(time.RFC3339Nano)
	if _, err := s.db.ExecContext(ctx, upsertSQL, CooldownKey, until.UTC().Format(time.RFC3339Nano), now); err != nil {
		return errors.Wrap(err, "set cooldown")
	}
	return nil
}

// ClearCooldown removes the deadline so the next tick may proceed.
func (s *Store) ClearCooldown(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoint_kv WHERE key = ?`, CooldownKey); err != nil {
		return errors.Wrap(err, "clear cooldown")
	}
	return nil
}

// Jobs lists job ids that currently hold a checkpoint.
func (s *Store) Jobs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT substr(key, 1, length(key) - 8) FROM checkpoint_kv WHERE key LIKE '%\_results' ESCAPE '\' ORDER BY key`)
	if err != nil {
		return nil, errors.Wrap(err, "list checkpointed jobs")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan job id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const upsertSQL = `INSERT INTO checkpoint_kv (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

func (s *Store) get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM checkpoint_kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

package tracker

import (
	"context"
	"time"

	"github.com/teranos/pegabatch/errors"
)

// EmailStatus is the delivery result of one notification.
type EmailStatus string

const (
	EmailSent  EmailStatus = "sent"
	EmailError EmailStatus = "error"
)

// EmailLog records one notification attempt.
type EmailLog struct {
	RequestID string
	FileID    string
	SentTo    string
	SentAt    time.Time
	Status    EmailStatus
	Error     string
}

// LogEmail appends a notification attempt for a request.
func (t *Tracker) LogEmail(ctx context.Context, e EmailLog) error {
	if e.SentAt.IsZero() {
		e.SentAt = t.now()
	}
	if e.Status == "" {
		e.Status = EmailSent
	}
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO email_log (request_id, file_id, sent_to, sent_at, status, error)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.RequestID, e.FileID, e.SentTo, e.SentAt.UTC().Format(timeLayout), string(e.Status), e.Error)
	if err != nil {
		return errors.Wrapf(err, "failed to log email for request %s", e.RequestID)
	}
	return nil
}

// EmailLogs returns notification attempts for a request, oldest first.
func (t *Tracker) EmailLogs(ctx context.Context, requestID string) ([]EmailLog, error) {
	rows, err := t.db.QueryContext(ctx, `
		SELECT request_id, file_id, sent_to, sent_at, status, error
		FROM email_log WHERE request_id = ? ORDER BY id ASC`, requestID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list email log for request %s", requestID)
	}
	defer rows.Close()

	var out []EmailLog
	for rows.Next() {
		var e EmailLog
		var sentAt, status string
		if err := rows.Scan(&e.RequestID, &e.FileID, &e.SentTo, &sentAt, &status, &e.Error); err != nil {
			return nil, errors.Wrap(err, "failed to scan email log")
		}
		e.Status = EmailStatus(status)
		if e.SentAt, err = time.Parse(timeLayout, sentAt); err != nil {
			return nil, errors.Wrapf(err, "failed to parse sent_at for request %s", requestID)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Package cache remembers the last successful enrichment payload for each
// identifier across jobs and restarts.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/teranos/pegabatch/errors"
	"github.com/teranos/pegabatch/pegabot"
)

// storedAtLayout is fixed width so stored_at sorts and compares as text.
const storedAtLayout = "2006-01-02T15:04:05.000000000Z"

// Cache is the response_cache table. A zero TTL means entries never expire.
type Cache struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// Stats summarizes the cache for operators.
type Stats struct {
	Entries int
	Expired int
	Oldest  *time.Time
	Newest  *time.Time
}

// New creates a cache on a migrated database.
func New(db *sql.DB, ttl time.Duration) *Cache {
	return NewWithClock(db, ttl, time.Now)
}

// NewWithClock creates a cache with an injectable clock (for testing)
func NewWithClock(db *sql.DB, ttl time.Duration, now func() time.Time) *Cache {
	return &Cache{db: db, ttl: ttl, now: now}
}

// Get returns the cached payload. Expired entries read as absent.
func (c *Cache) Get(ctx context.Context, identifier string) (*pegabot.Payload, bool, error) {
	var raw, storedAt string
	err := c.db.QueryRowContext(ctx,
		`SELECT payload, stored_at FROM response_cache WHERE identifier = ?`, identifier,
	).Scan(&raw, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "read cache entry %q", identifier)
	}

	if c.expired(storedAt) {
		return nil, false, nil
	}

	var payload pegabot.Payload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		// A corrupt entry is as good as a miss; the next Set replaces it
		return nil, false, nil
	}
	return &payload, true, nil
}

// Set stores the payload, replacing any previous entry (last write wins).
func (c *Cache) Set(ctx context.Context, identifier string, payload *pegabot.Payload) error {
	if payload == nil {
		return errors.Newf("refusing to cache empty payload for %q", identifier)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "encode cache entry %q", identifier)
	}
	_, err = c.db.ExecContext(ctx, `INSERT INTO response_cache (identifier, payload, stored_at) VALUES (?, ?, ?)
		ON CONFLICT(identifier) DO UPDATE SET payload = excluded.payload, stored_at = excluded.stored_at`,
		identifier, string(raw), c.now().UTC().Format(storedAtLayout))
	if err != nil {
		return errors.Wrapf(err, "write cache entry %q", identifier)
	}
	return nil
}

// Stats counts entries, and how many are past the TTL.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	rows, err := c.db.QueryContext(ctx, `SELECT stored_at FROM response_cache ORDER BY stored_at`)
	if err != nil {
		return st, errors.Wrap(err, "query cache stats")
	}
	defer rows.Close()

	for rows.Next() {
		var storedAt string
		if err := rows.Scan(&storedAt); err != nil {
			return st, errors.Wrap(err, "scan cache entry")
		}
		st.Entries++
		if c.expired(storedAt) {
			st.Expired++
		}
		if t, err := time.Parse(storedAtLayout, storedAt); err == nil {
			if st.Oldest == nil {
				st.Oldest = &t
			}
			st.Newest = &t
		}
	}
	return st, rows.Err()
}

// Purge deletes entries stored more than olderThan ago. Zero purges everything.
func (c *Cache) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if olderThan <= 0 {
		res, err = c.db.ExecContext(ctx, `DELETE FROM response_cache`)
	} else {
		cutoff := c.now().Add(-olderThan).UTC().Format(storedAtLayout)
		res, err = c.db.ExecContext(ctx, `DELETE FROM response_cache WHERE stored_at < ?`, cutoff)
	}
	if err != nil {
		return 0, errors.Wrap(err, "purge cache")
	}
	return res.RowsAffected()
}

func (c *Cache) expired(storedAt string) bool {
	if c.ttl <= 0 {
		return false
	}
	t, err := time.Parse(storedAtLayout, storedAt)
	if err != nil {
		return true
	}
	return c.now().Sub(t) >= c.ttl
}

package db

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/teranos/pegabatch/errors"
	"github.com/teranos/pegabatch/sym"
)

// Open opens a SQLite database at the specified path with WAL, foreign keys
// and a busy timeout applied to every pooled connection.
// If logger is provided, logs database operations; otherwise operates silently.
func Open(path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	if logger != nil {
		logger.Debugw("Opening database", "path", path, "symbol", sym.DB)
	}

	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	// The orchestrator writes after every row from a single goroutine; one
	// connection keeps those writes serialized and makes :memory: databases
	// behave like one database instead of one per connection.
	db.SetMaxOpenConns(1)

	// Verify the pragmas actually took (a bad path only fails on first use)
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to query journal mode for %s", path)
	}

	if logger != nil {
		logger.Infow("Database opened",
			"path", path,
			"symbol", sym.DB,
			"journal_mode", journalMode,
			"foreign_keys", true,
		)
	}

	return db, nil
}

// OpenWithMigrations opens the database and applies all pending migrations.
func OpenWithMigrations(path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	db, err := Open(path, logger)
	if err != nil {
		return nil, err
	}

	if err := Migrate(db, logger); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to run migrations on %s", path)
	}

	return db, nil
}

// dsn appends the connection pragmas understood by go-sqlite3.
func dsn(path string) string {
	params := "_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000"
	if path == ":memory:" {
		return "file::memory:?" + params
	}
	if strings.Contains(path, "?") {
		return fmt.Sprintf("%s&%s", path, params)
	}
	return fmt.Sprintf("file:%s?%s", path, params)
}

// Package store persists canonical transactions and upload audit records in
// a single sqlite database.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // pure Go SQLite driver
)

// Store wraps the sqlite connection and exposes the repositories.
type Store struct {
	db  *sql.DB
	log zerolog.Logger

	Transactions *Transactions
	Uploads      *Uploads
}

// Open opens (creating if needed) the sqlite database at path and applies
// the schema. "file:" URIs pass through untouched so tests can use in-memory
// databases.
func Open(path string, log zerolog.Logger) (*Store, error) {
	if !strings.HasPrefix(path, "file:") {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolving database path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		path = abs
	}

	db, err := sql.Open("sqlite", connString(path))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	s := &Store{db: db, log: log.With().Str("component", "store").Logger()}
	s.Transactions = &Transactions{db: db, log: s.log}
	s.Uploads = &Uploads{db: db, log: s.log}
	return s, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// connString enables WAL mode and balanced durability. The unique index on
// (transaction_id, source_account) is the backstop for concurrent uploads.
func connString(path string) string {
	return path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(5000)"
}

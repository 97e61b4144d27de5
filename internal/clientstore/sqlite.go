package clientstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS client_state (
    scope      TEXT NOT NULL,
    key        TEXT NOT NULL,
    value      TEXT NOT NULL,
    updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
    PRIMARY KEY (scope, key)
);
`

// SQLiteStore is the durable client-state store. One row per (scope, key);
// the schema is applied idempotently on open.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite creates or opens the SQLite database at the given path, applies
// pragmas suited to a single-writer workload, and ensures the schema exists.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("clientstore: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clientstore: connect: %w", err)
	}

	// SQLite supports one writer at a time; a single pooled connection
	// avoids SQLITE_BUSY under concurrent request handlers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("clientstore: %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clientstore: apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the stored value and whether the key is present.
func (s *SQLiteStore) Get(ctx context.Context, scope Scope, key string) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, ErrUnavailable
	}
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM client_state WHERE scope = ? AND key = ?`,
		string(scope), key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return value, true, nil
}

// Set upserts the value under the scope and key.
func (s *SQLiteStore) Set(ctx context.Context, scope Scope, key, value string) error {
	if s == nil || s.db == nil {
		return ErrUnavailable
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO client_state (scope, key, value, updated_at)
		 VALUES (?, ?, ?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		 ON CONFLICT (scope, key) DO UPDATE SET
		   value = excluded.value,
		   updated_at = excluded.updated_at`,
		string(scope), key, value,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Delete removes the given keys; absent keys are not an error.
func (s *SQLiteStore) Delete(ctx context.Context, scope Scope, keys ...string) error {
	if s == nil || s.db == nil {
		return ErrUnavailable
	}
	if len(keys) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, 0, len(keys)+1)
	args = append(args, string(scope))
	for _, key := range keys {
		args = append(args, key)
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM client_state WHERE scope = ? AND key IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

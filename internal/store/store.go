// Package store provides the local SQLite persistence layer for the sync
// engine.
//
// The database runs embedded (ncruces/go-sqlite3) with WAL mode so the UI
// can read concurrently while a sync pass writes. Schema changes are
// additive-only migrations keyed off PRAGMA user_version; column names are
// a compatibility contract with the mobile app and are never renamed.
//
// Writes to an account row and its transactions are serialized per account
// via AccountLock, so conflict resolution and a concurrent manual edit
// cannot lose updates.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store wraps the SQLite connection with sync-engine specific queries.
type Store struct {
	conn *sql.DB
	path string

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// Open creates a database connection at the specified path.
//
// The database is created if missing, opened in WAL mode, and migrated to
// the current schema version. The caller MUST call Close when done.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{
		conn:  conn,
		path:  path,
		locks: make(map[string]*sync.Mutex),
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := s.conn.Exec(pragma); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := s.Migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// RawDB returns the underlying sql.DB connection.
func (s *Store) RawDB() *sql.DB {
	return s.conn
}

// Close closes the database connection after checkpointing the WAL.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// migrations holds one SQL script per schema version, applied in order.
// APPEND ONLY: editing a shipped migration breaks devices already at that
// version.
var migrations = []string{
	// v1: initial schema
	`
	CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		institution_id TEXT NOT NULL,
		institution_name TEXT,
		access_token TEXT NOT NULL,
		linked_at TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		institution_id TEXT NOT NULL,
		institution_name TEXT,
		external_id TEXT NOT NULL,
		type TEXT NOT NULL,
		balance INTEGER NOT NULL DEFAULT 0,
		available_balance INTEGER,
		currency TEXT NOT NULL,
		last_updated TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		FOREIGN KEY (item_id) REFERENCES items(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		external_id TEXT,
		amount INTEGER NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category TEXT,
		subcategory TEXT,
		date TEXT NOT NULL,
		recurring INTEGER NOT NULL DEFAULT 0,
		merchant_name TEXT,
		verified INTEGER NOT NULL DEFAULT 0,
		notes TEXT,
		FOREIGN KEY (account_id) REFERENCES accounts(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS conflicts (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		account_id TEXT NOT NULL,
		local_transaction_id TEXT,
		remote_external_id TEXT,
		local_snapshot TEXT,
		remote_snapshot TEXT,
		outcome TEXT NOT NULL DEFAULT '',
		requires_manual_review INTEGER NOT NULL DEFAULT 0,
		resolved INTEGER NOT NULL DEFAULT 0,
		detected_at TEXT NOT NULL,
		resolved_at TEXT,
		FOREIGN KEY (account_id) REFERENCES accounts(id) ON DELETE CASCADE
	);

	-- One active account per (user, institution, external id)
	CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_identity
	    ON accounts(user_id, institution_id, external_id) WHERE active = 1;

	-- One transaction per provider id, when known
	CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_external
	    ON transactions(account_id, external_id)
	    WHERE external_id IS NOT NULL AND external_id != '';

	CREATE INDEX IF NOT EXISTS idx_items_user ON items(user_id);
	CREATE INDEX IF NOT EXISTS idx_accounts_user ON accounts(user_id);
	CREATE INDEX IF NOT EXISTS idx_accounts_item ON accounts(item_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(account_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions(account_id, date);
	CREATE INDEX IF NOT EXISTS idx_conflicts_account ON conflicts(account_id);
	CREATE INDEX IF NOT EXISTS idx_conflicts_pending
	    ON conflicts(account_id, resolved) WHERE resolved = 0;
	`,
}

// Migrate applies any pending schema migrations. Idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	var version int
	if err := s.conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for v := version; v < len(migrations); v++ {
		if _, err := s.conn.ExecContext(ctx, migrations[v]); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", v+1, err)
		}
		if _, err := s.conn.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version=%d", v+1)); err != nil {
			return fmt.Errorf("failed to bump schema version to %d: %w", v+1, err)
		}
	}

	return nil
}

// SchemaVersion returns the current PRAGMA user_version.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

// AccountLock returns the mutex serializing writes for one account.
// Sync passes and manual-edit paths both hold this while writing.
func (s *Store) AccountLock(accountID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	mu, ok := s.locks[accountID]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[accountID] = mu
	}
	return mu
}

// timeToNullString converts an optional time to its stored form.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// parseTime converts a stored RFC3339 string back to a time.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse stored time %q: %w", s, err)
	}
	return t, nil
}

// parseNullTime converts an optional stored time.
func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Package store persists the account ledger: profiles, audit events,
// replied tweets, and cached login sessions, backed by SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("store: not found")

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store owns the SQLite database.
type Store struct {
	db *sql.DB
	queries
}

// Tx exposes the same entity operations scoped to one transaction.
type Tx struct {
	tx *sql.Tx
	queries
}

type queries struct{ q Querier }

var builder = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// Open opens (or creates) the database at path and runs migrations.
// Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL keeps readers unblocked while a ledger commit is in flight.
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA busy_timeout=5000; PRAGMA foreign_keys=ON;`); err != nil {
		return nil, err
	}
	s := &Store{db: d, queries: queries{q: d}}
	if err := s.migrate(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS account_profiles (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  username TEXT NOT NULL UNIQUE,
	  points INTEGER NOT NULL DEFAULT 0,
	  first_mentioned_by TEXT,
	  first_mentioned_at INTEGER,
	  created_at INTEGER NOT NULL,
	  updated_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS audit_events (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  row_key TEXT NOT NULL UNIQUE,
	  level TEXT NOT NULL,
	  name TEXT NOT NULL,
	  content TEXT,
	  target TEXT NOT NULL,
	  username TEXT NOT NULL,
	  created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_username ON audit_events(username);
	CREATE TABLE IF NOT EXISTS replied_tweets (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  tweet_id TEXT NOT NULL UNIQUE,
	  reply_text TEXT NOT NULL,
	  original_tweet_json TEXT NOT NULL,
	  score INTEGER,
	  reason TEXT,
	  username TEXT NOT NULL,
	  created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_replied_created ON replied_tweets(created_at);
	CREATE TABLE IF NOT EXISTS login_sessions (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  username TEXT NOT NULL UNIQUE,
	  bundle TEXT NOT NULL,
	  created_at INTEGER NOT NULL,
	  updated_at INTEGER NOT NULL
	);
	`)
	return err
}

// WithTx runs fn inside a transaction; fn's error rolls everything back.
func (s *Store) WithTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(&Tx{tx: tx, queries: queries{q: tx}}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Package cache remembers input fingerprints of incremental tasks between
// runs, in a small SQLite database.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

// Open creates the database and its directory when missing.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cache dir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", path, err)
	}
	// Concurrent tasks share one connection; sqlite serializes writers anyway.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS fingerprints (
			task TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		_ = db.Close() // ignore error
		return nil, fmt.Errorf("create cache tables: %w", err)
	}
	return &Store{db: db}, nil
}

// Get returns the digest last stored for task.
func (s *Store) Get(ctx context.Context, task string) (string, bool, error) {
	var digest string
	err := s.db.QueryRowContext(ctx, `SELECT digest FROM fingerprints WHERE task = ?`, task).Scan(&digest)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return digest, true, nil
}

func (s *Store) Put(ctx context.Context, task, digest string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fingerprints (task, digest, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(task) DO UPDATE SET digest = excluded.digest, updated_at = excluded.updated_at`,
		task, digest, at.Unix())
	return err
}

func (s *Store) Close() error { return s.db.Close() }

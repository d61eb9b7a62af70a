// Package store is the durable persistence layer for users and
// finished games, backed by SQLite and accessed through sqlx.
package store

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Store wraps a sqlx handle open on the configured SQLite database file.
type Store struct {
	db *sqlx.DB
}

// Connect opens the SQLite database at path and verifies connectivity.
func Connect(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on", path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite has a single writer; keep the pool small to avoid
	// "database is locked" errors under the server's mostly-serial access
	// pattern.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying sqlx handle for callers that need raw
// access.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Copyright 2025 CruxStack
// SPDX-License-Identifier: MIT

package sessionstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"github.com/cruxstack/workerbridge/internal/framework"
	"github.com/cruxstack/workerbridge/internal/shared"
)

var _ framework.SessionStore = (*SQLiteStore)(nil)

// SQLiteStore persists sessions in SQLite via modernc.org/sqlite. Values are
// stored as JSON, so numbers read back as float64.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// SQLiteOption configures a SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithTTL sets the idle lifetime of stored sessions.
func WithTTL(ttl time.Duration) SQLiteOption {
	return func(s *SQLiteStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) SQLiteOption {
	return func(s *SQLiteStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSQLiteStore opens the database at dsn and creates the sessions table.
// Use ":memory:" for a private in-memory database.
func NewSQLiteStore(ctx context.Context, dsn string, opts ...SQLiteOption) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: open database: %w", err)
	}
	// an in-memory database exists once per connection
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sessionstore: ping database: %w", err)
	}

	createTableSQL := `
		CREATE TABLE IF NOT EXISTS sessions (
			id          TEXT PRIMARY KEY,
			data        TEXT NOT NULL,
			expires_at  INTEGER NOT NULL,
			updated_at  INTEGER NOT NULL
		);
	`
	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("sessionstore: create table: %w", err)
	}

	createIndexSQL := `CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);`
	if _, err := db.ExecContext(ctx, createIndexSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("sessionstore: create index: %w", err)
	}

	s := &SQLiteStore{db: db, ttl: shared.DefaultSessionTTL, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Load returns the values stored under id unless the session expired.
func (s *SQLiteStore) Load(ctx context.Context, id string) (map[string]any, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT data FROM sessions WHERE id = ? AND expires_at > ?`,
		id, s.now().Unix(),
	)

	var data string
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("sessionstore: scan row: %w", err)
	}

	values := make(map[string]any)
	if err := json.Unmarshal([]byte(data), &values); err != nil {
		return nil, false, fmt.Errorf("sessionstore: unmarshal session %s: %w", id, err)
	}
	return values, true, nil
}

// Save upserts values under id and pushes its expiry ttl into the future.
func (s *SQLiteStore) Save(ctx context.Context, id string, values map[string]any) error {
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("sessionstore: marshal session %s: %w", id, err)
	}

	now := s.now()
	query := `
		INSERT INTO sessions (id, data, expires_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			data       = excluded.data,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, id, string(data), now.Add(s.ttl).Unix(), now.Unix()); err != nil {
		return fmt.Errorf("sessionstore: save session %s: %w", id, err)
	}
	return nil
}

// Delete removes id. Deleting an unknown id is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sessionstore: delete session %s: %w", id, err)
	}
	return nil
}

// PurgeExpired removes expired sessions and returns how many were deleted.
func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, s.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("sessionstore: purge expired: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

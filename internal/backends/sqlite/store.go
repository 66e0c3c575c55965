// Package sqlite is the on-device StateStore, backed by an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"availsync/internal/types"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS availability (
	id              INTEGER PRIMARY KEY CHECK (id = 1),
	is_available    INTEGER NOT NULL,
	last_updated_at INTEGER NOT NULL,
	pending_sync    INTEGER NOT NULL,
	last_confirmed  INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS pending_actions (
	seq         INTEGER PRIMARY KEY,
	id          TEXT NOT NULL UNIQUE,
	kind        TEXT NOT NULL,
	endpoint    TEXT NOT NULL,
	method      TEXT NOT NULL,
	body        TEXT,
	created_at  INTEGER NOT NULL,
	retry_count INTEGER NOT NULL,
	max_retries INTEGER NOT NULL
);`

type StateStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*StateStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite doesn't support multiple writers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return &StateStore{db: db}, nil
}

func (s *StateStore) LoadAvailability(ctx context.Context) (types.AvailabilityRecord, bool, error) {
	var (
		avail, pending, confirmed int
		updated                   int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT is_available, last_updated_at, pending_sync, last_confirmed FROM availability WHERE id = 1`,
	).Scan(&avail, &updated, &pending, &confirmed)
	if errors.Is(err, sql.ErrNoRows) {
		return types.AvailabilityRecord{}, false, nil
	}
	if err != nil {
		return types.AvailabilityRecord{}, false, types.Err(types.ErrStoreAccess, err, "")
	}
	return types.AvailabilityRecord{
		IsAvailable:   avail == 1,
		LastUpdatedAt: time.Unix(0, updated).UTC(),
		PendingSync:   pending == 1,
		LastConfirmed: confirmed == 1,
	}, true, nil
}

// SaveAvailability writes the single availability row in one statement.
func (s *StateStore) SaveAvailability(ctx context.Context, rec types.AvailabilityRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO availability (id, is_available, last_updated_at, pending_sync, last_confirmed) VALUES (1, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   is_available = excluded.is_available,
		   last_updated_at = excluded.last_updated_at,
		   pending_sync = excluded.pending_sync,
		   last_confirmed = excluded.last_confirmed`,
		boolInt(rec.IsAvailable), rec.LastUpdatedAt.UnixNano(), boolInt(rec.PendingSync), boolInt(rec.LastConfirmed),
	)
	if err != nil {
		return types.Err(types.ErrStoreAccess, err, "")
	}
	return nil
}

func (s *StateStore) LoadQueue(ctx context.Context) ([]types.PendingAction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, endpoint, method, body, created_at, retry_count, max_retries
		 FROM pending_actions ORDER BY seq`)
	if err != nil {
		return nil, types.Err(types.ErrStoreAccess, err, "")
	}
	defer rows.Close()

	var out []types.PendingAction
	for rows.Next() {
		var (
			a       types.PendingAction
			kind    string
			body    sql.NullString
			created int64
		)
		if err := rows.Scan(&a.ID, &kind, &a.Endpoint, &a.Method, &body, &created, &a.RetryCount, &a.MaxRetries); err != nil {
			return nil, types.Err(types.ErrStoreAccess, err, "")
		}
		a.Kind = types.ActionKind(kind)
		a.CreatedAt = time.Unix(0, created).UTC()
		if body.Valid {
			b := body.String
			a.Body = &b
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, types.Err(types.ErrStoreAccess, err, "")
	}
	return out, nil
}

// SaveQueue replaces the queue inside one transaction; seq preserves order.
func (s *StateStore) SaveQueue(ctx context.Context, actions []types.PendingAction) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Err(types.ErrStoreAccess, err, "")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM pending_actions`); err != nil {
		return types.Err(types.ErrStoreAccess, err, "")
	}
	for i, a := range actions {
		var body any
		if a.Body != nil {
			body = *a.Body
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO pending_actions (seq, id, kind, endpoint, method, body, created_at, retry_count, max_retries)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			i, a.ID, string(a.Kind), a.Endpoint, a.Method, body, a.CreatedAt.UnixNano(), a.RetryCount, a.MaxRetries,
		)
		if err != nil {
			return types.Err(types.ErrStoreAccess, err, "insert action %s", a.ID)
		}
	}
	if err = tx.Commit(); err != nil {
		return types.Err(types.ErrStoreAccess, err, "")
	}
	return nil
}

func (s *StateStore) Close() error {
	return s.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

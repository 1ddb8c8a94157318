// Package sqlite implements cache.Store on SQLite via the pure-Go
// modernc.org/sqlite driver. Suited to single-machine embedders that
// want the cache to survive restarts without running a server.
//
// The caller owns the *sql.DB lifecycle when using New; Open creates
// and owns its handle, which Close releases.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/nexelab/translate/cache"
)

// Compile-time interface check.
var _ cache.Store = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS translate_cache (
	key        TEXT PRIMARY KEY,
	filename   TEXT NOT NULL,
	size       INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS translate_cache_created_at_idx
	ON translate_cache (created_at DESC);
`

// Store is a SQLite implementation of cache.Store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	owned  bool
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New wraps an existing database handle. The caller owns the handle;
// Close becomes a no-op.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens (creating if needed) the SQLite database at path. Use
// ":memory:" for an in-memory database. The returned Store owns the
// handle and releases it on Close.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("translate/sqlite: open %s: %w", path, err)
	}
	// SQLite serializes writers; a single connection avoids
	// SQLITE_BUSY churn under concurrent publishes.
	db.SetMaxOpenConns(1)

	s := New(db, opts...)
	s.owned = true
	return s, nil
}

// DB returns the underlying database handle for advanced usage.
func (s *Store) DB() *sql.DB { return s.db }

// Migrate creates the cache table if needed.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("translate/sqlite: migrate: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database handle if this Store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// GetEntry retrieves the entry for a cache identity.
func (s *Store) GetEntry(ctx context.Context, key string) (*cache.Entry, error) {
	var (
		e     cache.Entry
		nanos int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT key, filename, size, created_at FROM translate_cache WHERE key = ?`,
		key,
	).Scan(&e.Key, &e.Filename, &e.Size, &nanos)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cache.ErrMiss
		}
		return nil, fmt.Errorf("translate/sqlite: get entry: %w", err)
	}
	e.CreatedAt = time.Unix(0, nanos).UTC()
	return &e, nil
}

// PutEntry records a published translation, replacing any previous
// entry for the same key.
func (s *Store) PutEntry(ctx context.Context, e *cache.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO translate_cache (key, filename, size, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE
		SET filename = excluded.filename,
		    size = excluded.size,
		    created_at = excluded.created_at`,
		e.Key, e.Filename, e.Size, e.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("translate/sqlite: put entry: %w", err)
	}
	return nil
}

// DeleteEntry removes the entry for a cache identity.
func (s *Store) DeleteEntry(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM translate_cache WHERE key = ?`, key,
	); err != nil {
		return fmt.Errorf("translate/sqlite: delete entry: %w", err)
	}
	return nil
}

// ListEntries returns entries ordered by creation time, newest first.
func (s *Store) ListEntries(ctx context.Context, opts cache.ListOpts) ([]*cache.Entry, error) {
	q := `SELECT key, filename, size, created_at FROM translate_cache ORDER BY created_at DESC`
	var args []any
	if opts.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, opts.Limit)
	} else if opts.Offset > 0 {
		// SQLite requires LIMIT when OFFSET is present.
		q += ` LIMIT -1`
	}
	if opts.Offset > 0 {
		q += ` OFFSET ?`
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("translate/sqlite: list entries: %w", err)
	}
	defer rows.Close()

	var entries []*cache.Entry
	for rows.Next() {
		var (
			e     cache.Entry
			nanos int64
		)
		if err := rows.Scan(&e.Key, &e.Filename, &e.Size, &nanos); err != nil {
			return nil, fmt.Errorf("translate/sqlite: scan entry: %w", err)
		}
		e.CreatedAt = time.Unix(0, nanos).UTC()
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("translate/sqlite: list entries: %w", err)
	}
	return entries, nil
}

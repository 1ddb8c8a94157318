// Package bunstore implements cache.Store using the Bun ORM with
// PostgreSQL dialect. Suitable for embedders already carrying a Bun
// stack.
//
// The caller owns the *bun.DB lifecycle — bunstore never closes it.
// Pass the db handle through the constructor:
//
//	import (
//	    "github.com/uptrace/bun"
//	    "github.com/uptrace/bun/dialect/pgdialect"
//	    "github.com/uptrace/bun/driver/pgdriver"
//	    bunstore "github.com/nexelab/translate/cache/bun"
//	)
//
//	sqldb := sql.OpenDB(pgdriver.NewConnector(...))
//	db := bun.NewDB(sqldb, pgdialect.New())
//	store := bunstore.New(db)
//	store.Migrate(ctx)
package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/nexelab/translate/cache"
)

// Compile-time interface check.
var _ cache.Store = (*Store)(nil)

// entryModel is the Bun table mapping for a cache entry.
type entryModel struct {
	bun.BaseModel `bun:"table:translate_cache"`

	Key       string    `bun:"key,pk"`
	Filename  string    `bun:"filename,notnull"`
	Size      int64     `bun:"size,notnull,default:0"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

func toEntryModel(e *cache.Entry) *entryModel {
	return &entryModel{
		Key:       e.Key,
		Filename:  e.Filename,
		Size:      e.Size,
		CreatedAt: e.CreatedAt,
	}
}

func fromEntryModel(m *entryModel) *cache.Entry {
	return &cache.Entry{
		Key:       m.Key,
		Filename:  m.Filename,
		Size:      m.Size,
		CreatedAt: m.CreatedAt,
	}
}

// Store is a Bun ORM implementation of cache.Store using PostgreSQL
// dialect. The caller owns the *bun.DB lifecycle; Store never closes it.
type Store struct {
	db     *bun.DB
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New creates a new Bun cache store.
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewDB opens a Bun database handle for a PostgreSQL DSN. Convenience
// for embedders that do not already carry a *bun.DB.
func NewDB(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// DB returns the underlying *bun.DB for advanced usage.
func (s *Store) DB() *bun.DB { return s.db }

// Migrate creates the cache table if needed.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*entryModel)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("translate/bun: migrate: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the caller owns the db handle.
func (s *Store) Close() error { return nil }

// GetEntry retrieves the entry for a cache identity.
func (s *Store) GetEntry(ctx context.Context, key string) (*cache.Entry, error) {
	m := new(entryModel)
	err := s.db.NewSelect().Model(m).
		Where("key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, cache.ErrMiss
		}
		return nil, fmt.Errorf("translate/bun: get entry: %w", err)
	}
	return fromEntryModel(m), nil
}

// PutEntry records a published translation, replacing any previous
// entry for the same key.
func (s *Store) PutEntry(ctx context.Context, e *cache.Entry) error {
	m := toEntryModel(e)
	_, err := s.db.NewInsert().Model(m).
		On("CONFLICT (key) DO UPDATE").
		Set("filename = EXCLUDED.filename").
		Set("size = EXCLUDED.size").
		Set("created_at = EXCLUDED.created_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("translate/bun: put entry: %w", err)
	}
	return nil
}

// DeleteEntry removes the entry for a cache identity.
func (s *Store) DeleteEntry(ctx context.Context, key string) error {
	_, err := s.db.NewDelete().Model((*entryModel)(nil)).
		Where("key = ?", key).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("translate/bun: delete entry: %w", err)
	}
	return nil
}

// ListEntries returns entries ordered by creation time, newest first.
func (s *Store) ListEntries(ctx context.Context, opts cache.ListOpts) ([]*cache.Entry, error) {
	var models []entryModel
	q := s.db.NewSelect().Model(&models).
		Order("created_at DESC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("translate/bun: list entries: %w", err)
	}

	entries := make([]*cache.Entry, 0, len(models))
	for i := range models {
		entries = append(entries, fromEntryModel(&models[i]))
	}
	return entries, nil
}

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

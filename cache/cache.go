// Package cache defines the translation-cache index. A cache entry maps
// an opaque cache identity (the key derived from the pexe and translator
// versions) to the name of a previously published nexe in the sandboxed
// filesystem, so repeated loads of the same program skip translation
// entirely. Backends: Memory, Redis, Postgres, Bun, SQLite, and Mongo.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by GetEntry when the key has no cached
// translation.
var ErrMiss = errors.New("cache: miss")

// Entry records one published translation.
type Entry struct {
	// Key is the opaque cache identity supplied by the caller.
	Key string `json:"key"`

	// Filename is the name the nexe was renamed to inside the pipeline
	// directory when the entry was published.
	Filename string `json:"filename"`

	// Size is the nexe length in bytes.
	Size int64 `json:"size"`

	// CreatedAt is when the entry was published.
	CreatedAt time.Time `json:"created_at"`
}

// ListOpts controls pagination for List queries.
type ListOpts struct {
	// Limit is the maximum number of entries to return. Zero means no
	// limit.
	Limit int
	// Offset is the number of entries to skip.
	Offset int
}

// Store defines the persistence contract for the cache index.
type Store interface {
	// GetEntry retrieves the entry for a cache identity.
	// Returns ErrMiss when there is none.
	GetEntry(ctx context.Context, key string) (*Entry, error)

	// PutEntry records a published translation, replacing any previous
	// entry for the same key.
	PutEntry(ctx context.Context, e *Entry) error

	// DeleteEntry removes the entry for a cache identity. Removing a
	// missing entry is not an error.
	DeleteEntry(ctx context.Context, key string) error

	// ListEntries returns entries ordered by creation time, newest
	// first.
	ListEntries(ctx context.Context, opts ListOpts) ([]*Entry, error)

	// Migrate runs schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}

// Package memory implements cache.Store in memory.
// Safe for concurrent access. Intended for unit testing, development,
// and single-process embedders that only want intra-session caching.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/nexelab/translate/cache"
)

// Compile-time interface check.
var _ cache.Store = (*Store)(nil)

// Store is a fully in-memory implementation of cache.Store.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*cache.Entry
}

// New returns a new empty Store.
func New() *Store {
	return &Store{entries: make(map[string]*cache.Entry)}
}

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// GetEntry retrieves the entry for a cache identity.
func (m *Store) GetEntry(_ context.Context, key string) (*cache.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, cache.ErrMiss
	}
	cp := *e
	return &cp, nil
}

// PutEntry records a published translation.
func (m *Store) PutEntry(_ context.Context, e *cache.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *e
	m.entries[e.Key] = &cp
	return nil
}

// DeleteEntry removes the entry for a cache identity.
func (m *Store) DeleteEntry(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

// ListEntries returns entries ordered by creation time, newest first.
func (m *Store) ListEntries(_ context.Context, opts cache.ListOpts) ([]*cache.Entry, error) {
	m.mu.RLock()
	all := make([]*cache.Entry, 0, len(m.entries))
	for _, e := range m.entries {
		cp := *e
		all = append(all, &cp)
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(all) {
			return nil, nil
		}
		all = all[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(all) {
		all = all[:opts.Limit]
	}
	return all, nil
}

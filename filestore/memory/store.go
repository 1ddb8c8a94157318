// Package memory implements filestore.Store entirely in memory.
// Safe for concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"io"
	"sync"

	"github.com/nexelab/translate/filestore"
)

// Compile-time interface checks.
var (
	_ filestore.Store = (*Store)(nil)
	_ filestore.Quota = (*Store)(nil)
	_ filestore.File  = (*file)(nil)
)

// Store is a fully in-memory implementation of filestore.Store.
// It also implements filestore.Quota, tracking pending charges per
// file identifier so tests can assert settle-before-close ordering.
type Store struct {
	mu    sync.RWMutex
	dirs  map[string]struct{}
	files map[string]*blob

	quotaMu sync.Mutex
	pending map[string]int64
	settled map[string]int64
}

// blob is the shared backing content of one stored file. Handles hold a
// pointer to it, so a rename (which only rewrites the name key) never
// invalidates open handles.
type blob struct {
	mu   sync.RWMutex
	data []byte
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		dirs:    make(map[string]struct{}),
		files:   make(map[string]*blob),
		pending: make(map[string]int64),
		settled: make(map[string]int64),
	}
}

// ──────────────────────────────────────────────────
// filestore.Store
// ──────────────────────────────────────────────────

// EnsureDir creates dir if it does not already exist.
func (s *Store) EnsureDir(_ context.Context, dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirs[dir] = struct{}{}
	return nil
}

// Create creates or truncates the named file and opens it read-write.
func (s *Store) Create(_ context.Context, name string) (filestore.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := &blob{}
	s.files[name] = b
	return &file{store: s, name: name, blob: b, writable: true}, nil
}

// Open opens the named file read-only.
func (s *Store) Open(_ context.Context, name string) (filestore.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.files[name]
	if !ok {
		return nil, filestore.ErrNotFound
	}
	return &file{store: s, name: name, blob: b}, nil
}

// Rename atomically repoints oldName to newName.
func (s *Store) Rename(_ context.Context, oldName, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.files[oldName]
	if !ok {
		return filestore.ErrNotFound
	}
	if _, taken := s.files[newName]; taken {
		return filestore.ErrExists
	}
	delete(s.files, oldName)
	s.files[newName] = b
	return nil
}

// Delete removes the named file. Open handles keep their blob alive.
func (s *Store) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[name]; !ok {
		return filestore.ErrNotFound
	}
	delete(s.files, name)
	return nil
}

// Stat returns metadata for the named file.
func (s *Store) Stat(_ context.Context, name string) (filestore.Info, error) {
	s.mu.RLock()
	b, ok := s.files[name]
	s.mu.RUnlock()

	if !ok {
		return filestore.Info{}, filestore.ErrNotFound
	}

	b.mu.RLock()
	size := int64(len(b.data))
	b.mu.RUnlock()

	return filestore.Info{Name: name, Size: size}, nil
}

// Exists reports whether the named file is present. Test helper.
func (s *Store) Exists(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.files[name]
	return ok
}

// ──────────────────────────────────────────────────
// filestore.Quota
// ──────────────────────────────────────────────────

// Charge records bytes written under the given file identifier.
func (s *Store) Charge(identifier string, bytes int64) {
	s.quotaMu.Lock()
	defer s.quotaMu.Unlock()
	s.pending[identifier] += bytes
}

// Settle flushes all pending charges for the identifier.
func (s *Store) Settle(_ context.Context, identifier string) error {
	s.quotaMu.Lock()
	defer s.quotaMu.Unlock()
	s.settled[identifier] += s.pending[identifier]
	delete(s.pending, identifier)
	return nil
}

// PendingCharge returns the unsettled byte count for an identifier.
// Test helper.
func (s *Store) PendingCharge(identifier string) int64 {
	s.quotaMu.Lock()
	defer s.quotaMu.Unlock()
	return s.pending[identifier]
}

// SettledCharge returns the settled byte count for an identifier.
// Test helper.
func (s *Store) SettledCharge(identifier string) int64 {
	s.quotaMu.Lock()
	defer s.quotaMu.Unlock()
	return s.settled[identifier]
}

// ──────────────────────────────────────────────────
// file handle
// ──────────────────────────────────────────────────

type file struct {
	store    *Store
	name     string
	blob     *blob
	writable bool

	mu     sync.Mutex
	closed bool
}

// Name returns the logical name the handle was opened under.
func (f *file) Name() string { return f.name }

// ReadAt implements io.ReaderAt.
func (f *file) ReadAt(p []byte, off int64) (int, error) {
	if err := f.check(); err != nil {
		return 0, err
	}

	f.blob.mu.RLock()
	defer f.blob.mu.RUnlock()

	if off >= int64(len(f.blob.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.blob.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt.
func (f *file) WriteAt(p []byte, off int64) (int, error) {
	if err := f.check(); err != nil {
		return 0, err
	}
	if !f.writable {
		return 0, filestore.ErrReadOnly
	}

	f.blob.mu.Lock()
	defer f.blob.mu.Unlock()

	end := off + int64(len(p))
	if end > int64(len(f.blob.data)) {
		grown := make([]byte, end)
		copy(grown, f.blob.data)
		f.blob.data = grown
	}
	copy(f.blob.data[off:end], p)
	return len(p), nil
}

// Close releases the handle. Double close is an error.
func (f *file) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return filestore.ErrClosed
	}
	f.closed = true
	return nil
}

// Dup duplicates the handle with an independent lifetime.
func (f *file) Dup() (filestore.File, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	return &file{store: f.store, name: f.name, blob: f.blob, writable: f.writable}, nil
}

func (f *file) check() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return filestore.ErrClosed
	}
	return nil
}

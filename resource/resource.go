// Package resource tracks the downloaded resources a translation needs:
// the code-generator binary, the linker binary, and the pexe itself.
// The fetch mechanics live behind the Loader collaborator; this package
// resolves names through the manifest and holds the resulting
// descriptors for worker launch.
package resource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nexelab/translate/manifest"
)

// ErrNotLoaded is returned by Get for a resource that was never fetched.
var ErrNotLoaded = errors.New("resource: not loaded")

// Descriptor is an opaque handle to fetched resource bytes.
type Descriptor interface {
	io.ReaderAt
	io.Closer

	// URL returns the location the resource was fetched from.
	URL() string

	// Size returns the resource length in bytes.
	Size() int64
}

// Loader is the download collaborator. Fetch blocks until the resource
// is available or the context is done.
type Loader interface {
	Fetch(ctx context.Context, url string) (Descriptor, error)
}

// Set resolves logical resource names through a manifest and fetches
// them, keeping the descriptors until the owning job is done.
type Set struct {
	loader   Loader
	manifest *manifest.Manifest

	mu   sync.Mutex
	held map[string]Descriptor
}

// NewSet creates an empty Set resolving names against m.
func NewSet(loader Loader, m *manifest.Manifest) *Set {
	return &Set{
		loader:   loader,
		manifest: m,
		held:     make(map[string]Descriptor),
	}
}

// Load resolves and fetches all named resources in parallel. Either all
// descriptors are held afterwards or none are: on any failure the
// already-fetched descriptors are closed and discarded.
func (s *Set) Load(ctx context.Context, names ...string) error {
	g, ctx := errgroup.WithContext(ctx)

	fetched := make([]Descriptor, len(names))
	for i, name := range names {
		g.Go(func() error {
			url, err := s.manifest.Resolve(name)
			if err != nil {
				return err
			}
			d, err := s.loader.Fetch(ctx, url)
			if err != nil {
				return fmt.Errorf("resource: fetch %q: %w", name, err)
			}
			fetched[i] = d
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, d := range fetched {
			if d != nil {
				_ = d.Close()
			}
		}
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, name := range names {
		s.held[name] = fetched[i]
	}
	return nil
}

// Get returns the descriptor for a loaded resource.
func (s *Set) Get(name string) (Descriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.held[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotLoaded, name)
	}
	return d, nil
}

// Close releases every held descriptor.
func (s *Set) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for name, d := range s.held {
		if err := d.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.held, name)
	}
	return firstErr
}

// ──────────────────────────────────────────────────
// In-memory descriptor
// ──────────────────────────────────────────────────

// BytesDescriptor is a Descriptor over an in-memory byte slice. Used by
// tests and by loaders that buffer whole resources.
type BytesDescriptor struct {
	url    string
	reader *bytes.Reader
	size   int64

	mu     sync.Mutex
	closed bool
}

// NewBytesDescriptor wraps data as a Descriptor.
func NewBytesDescriptor(url string, data []byte) *BytesDescriptor {
	return &BytesDescriptor{
		url:    url,
		reader: bytes.NewReader(data),
		size:   int64(len(data)),
	}
}

// ReadAt implements io.ReaderAt.
func (d *BytesDescriptor) ReadAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return 0, errors.New("resource: descriptor closed")
	}
	d.mu.Unlock()
	return d.reader.ReadAt(p, off)
}

// Close implements io.Closer.
func (d *BytesDescriptor) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// URL returns the location the resource was fetched from.
func (d *BytesDescriptor) URL() string { return d.url }

// Size returns the resource length in bytes.
func (d *BytesDescriptor) Size() int64 { return d.size }

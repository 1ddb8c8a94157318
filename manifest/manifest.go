// Package manifest provides the read-only resource manifests used to
// resolve logical names (translator binaries, libraries, objects) to the
// locations they are fetched from.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a manifest has no entry for a name.
var ErrNotFound = errors.New("manifest: resource not found")

// Manifest is an immutable mapping from logical resource name to location.
// It is constructed once before the pipeline starts and never mutated.
type Manifest struct {
	entries map[string]string
}

// New builds a Manifest from the given name→location entries.
// The map is copied; later mutation of the argument has no effect.
func New(entries map[string]string) *Manifest {
	m := &Manifest{entries: make(map[string]string, len(entries))}
	for name, location := range entries {
		m.entries[name] = location
	}
	return m
}

// ParseJSON builds a Manifest from a JSON object of name→location pairs.
func ParseJSON(data []byte) (*Manifest, error) {
	var entries map[string]string
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("manifest: parse: %w", err)
	}
	return New(entries), nil
}

// Resolve returns the location for the given resource name.
// Returns ErrNotFound if the manifest has no entry for it.
func (m *Manifest) Resolve(name string) (string, error) {
	location, ok := m.entries[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return location, nil
}

// Len returns the number of entries in the manifest.
func (m *Manifest) Len() int { return len(m.entries) }

// Resolver resolves names through the program manifest first and, only
// when unresolved there, through the extension-wide manifest.
//
// The second tier exists for linker dynamic-library lookups during the
// metadata migration period and is deprecated; new resources must be
// listed in the program manifest.
type Resolver struct {
	program   *Manifest
	extension *Manifest
}

// NewResolver creates a two-tier resolver. The extension manifest may be
// nil, in which case resolution uses the program manifest only.
func NewResolver(program, extension *Manifest) *Resolver {
	return &Resolver{program: program, extension: extension}
}

// Resolve resolves name against the program manifest, falling back to the
// deprecated extension tier only when the program manifest has no entry.
func (r *Resolver) Resolve(name string) (string, error) {
	location, err := r.program.Resolve(name)
	if err == nil {
		return location, nil
	}
	if r.extension == nil {
		return "", err
	}
	return r.extension.Resolve(name)
}

// Package filestore defines the sandboxed filesystem contract the
// translation pipeline writes its scratch files to. The pipeline only
// ever touches files through this interface; the real backing store
// (a browser-sandboxed filesystem, a chroot, a test fake) is supplied
// by the embedder. Backends: memory (in this module), plus whatever the
// host provides.
package filestore

import (
	"context"
	"errors"
	"io"
)

// Sentinel errors shared by all backends.
var (
	// ErrNotFound is returned when the named file does not exist.
	ErrNotFound = errors.New("filestore: file not found")

	// ErrExists is returned by Rename when the target name is taken.
	ErrExists = errors.New("filestore: file already exists")

	// ErrClosed is returned on any use of a closed file handle.
	ErrClosed = errors.New("filestore: file closed")

	// ErrReadOnly is returned when writing through a read-only handle.
	ErrReadOnly = errors.New("filestore: file is read-only")
)

// Info describes a stored file.
type Info struct {
	Name string
	Size int64
}

// File is an open handle to a stored file. Reads and writes are
// positioned so independent handles never disturb each other's cursor.
type File interface {
	io.ReaderAt
	io.WriterAt
	io.Closer

	// Name returns the logical name the handle was opened under.
	// A rename of the underlying file does not change it.
	Name() string

	// Dup duplicates the handle, the platform fd-duplication step that
	// lets one stage write while a later stage reads the same bytes.
	// The duplicate has an independent lifetime.
	Dup() (File, error)
}

// Store is the sandboxed filesystem collaborator. All operations are
// synchronous; the tempfile layer turns them into loop-posted
// completions.
type Store interface {
	// EnsureDir creates dir if it does not already exist.
	EnsureDir(ctx context.Context, dir string) error

	// Create creates or truncates the named file and opens it
	// read-write.
	Create(ctx context.Context, name string) (File, error)

	// Open opens the named file read-only.
	Open(ctx context.Context, name string) (File, error)

	// Rename atomically repoints oldName to newName.
	Rename(ctx context.Context, oldName, newName string) error

	// Delete removes the named file.
	Delete(ctx context.Context, name string) error

	// Stat returns metadata for the named file.
	Stat(ctx context.Context, name string) (Info, error)
}

// Quota tracks bytes written to sandboxed temporary storage. Charges
// accumulate per file identifier as writes land and must be settled
// before the owning file's close completes.
type Quota interface {
	// Charge records bytes written under the given file identifier.
	Charge(identifier string, bytes int64)

	// Settle flushes all pending charges for the identifier to the
	// quota subsystem. Close is not complete until Settle returns.
	Settle(ctx context.Context, identifier string) error
}

// NopQuota is a Quota that accepts charges and settles instantly.
// Useful when the host imposes no temporary-storage quota.
type NopQuota struct{}

// Charge implements Quota.
func (NopQuota) Charge(string, int64) {}

// Settle implements Quota.
func (NopQuota) Settle(context.Context, string) error { return nil }

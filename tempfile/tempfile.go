// Package tempfile manages the scratch files used between translation
// stages. One stage writes a temp file and a later stage reads the same
// bytes, so each file carries two independently lifecycled capability
// handles: a WriteHandle (code generator → object file, linker → nexe)
// and a ReadHandle (linker ← object file, loader ← nexe).
//
// All operations are asynchronous: they run the blocking FileStore call
// on a goroutine and deliver the completion on the owning loop. A
// TempFile allows at most one outstanding operation at a time and all of
// its state lives on the loop goroutine — construct it and call it from
// there only.
package tempfile

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/nexelab/translate/filestore"
	"github.com/nexelab/translate/id"
	"github.com/nexelab/translate/loop"
)

// Sentinel errors.
var (
	// ErrBusy is reported when an operation is issued while another is
	// still in flight.
	ErrBusy = errors.New("tempfile: operation already in flight")

	// ErrHandleClosed is returned on any use of a logically closed
	// capability handle.
	ErrHandleClosed = errors.New("tempfile: handle closed")

	// ErrHandlesOpen is reported by Delete while either handle is
	// still open.
	ErrHandlesOpen = errors.New("tempfile: handles still open")

	// ErrNotOpen is reported when an operation needs a handle that was
	// never opened.
	ErrNotOpen = errors.New("tempfile: handle not open")
)

// CompletionFunc receives the outcome of an asynchronous operation.
// It is always invoked on the owning loop.
type CompletionFunc func(err error)

// TempFile is one on-disk scratch file with independent write and read
// handles, a random 32-character hex name, and a 16-byte identifier used
// for quota accounting.
type TempFile struct {
	id     id.TempFileID
	store  filestore.Store
	quota  filestore.Quota
	loop   *loop.Loop
	logger *slog.Logger

	dir  string
	name string
	// oldName holds the previous name during a rename until the store
	// confirms, then is discarded.
	oldName    string
	identifier [16]byte

	pending bool
	write   *WriteHandle
	read    *ReadHandle
}

// Option configures a TempFile.
type Option func(*TempFile)

// WithName gives the file an explicit name instead of a random one.
func WithName(name string) Option {
	return func(t *TempFile) { t.name = name }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *TempFile) { t.logger = logger }
}

// New creates a TempFile under dir with a random 32-character hex name.
// Nothing touches the store until OpenWrite or OpenRead.
func New(store filestore.Store, quota filestore.Quota, lp *loop.Loop, dir string, opts ...Option) *TempFile {
	t := &TempFile{
		id:         id.NewTempFileID(),
		store:      store,
		quota:      quota,
		loop:       lp,
		logger:     slog.Default(),
		dir:        dir,
		identifier: uuid.New(),
	}
	t.name = hex.EncodeToString(t.identifier[:])
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ID returns the file's entity identifier ("tmp" prefix). It names the
// file in logs and is distinct from the quota identifier, which the
// store sees.
func (t *TempFile) ID() id.TempFileID { return t.id }

// Name returns the file's current logical name within its directory.
func (t *TempFile) Name() string { return t.name }

// Path returns the store path of the file under its directory.
func (t *TempFile) Path() string { return t.dir + "/" + t.name }

// Identifier returns the hex form of the 16-byte quota identifier.
func (t *TempFile) Identifier() string { return hex.EncodeToString(t.identifier[:]) }

// WriteHandle returns the write capability, or nil before OpenWrite
// completes.
func (t *TempFile) WriteHandle() *WriteHandle { return t.write }

// ReadHandle returns the read capability, or nil before OpenRead
// completes.
func (t *TempFile) ReadHandle() *ReadHandle { return t.read }

// ReleaseReadHandle transfers ownership of the read handle to the
// caller; a later Close will no longer touch it. Used to hand the final
// nexe to the loader.
func (t *TempFile) ReleaseReadHandle() *ReadHandle {
	h := t.read
	t.read = nil
	return h
}

// OpenWrite creates or truncates the backing file and opens the write
// capability. A parallel readable view of the same underlying ref is
// duplicated immediately so position-independent access is available
// once writing completes.
func (t *TempFile) OpenWrite(ctx context.Context, cb CompletionFunc) {
	if !t.begin(cb) {
		return
	}

	path := t.Path()
	go func() {
		f, err := t.store.Create(ctx, path)
		var dup filestore.File
		if err == nil {
			dup, err = f.Dup()
			if err != nil {
				_ = f.Close()
			}
		}
		t.finish(cb, err, func() {
			t.write = &WriteHandle{
				file:       f,
				dup:        dup,
				quota:      t.quota,
				identifier: t.Identifier(),
			}
		})
	}()
}

// OpenRead opens the read capability, independent of the write handle's
// cursor.
func (t *TempFile) OpenRead(ctx context.Context, cb CompletionFunc) {
	if !t.begin(cb) {
		return
	}

	path := t.Path()
	go func() {
		f, err := t.store.Open(ctx, path)
		t.finish(cb, err, func() {
			t.read = &ReadHandle{file: f}
		})
	}()
}

// Close releases both capability handles. Pending quota charges for
// bytes written are settled before the completion fires.
func (t *TempFile) Close(ctx context.Context, cb CompletionFunc) {
	if !t.begin(cb) {
		return
	}

	write, read := t.write, t.read
	identifier := t.Identifier()
	go func() {
		// Quota bookkeeping must settle before close completes.
		err := t.quota.Settle(ctx, identifier)
		if write != nil {
			write.close()
		}
		if read != nil {
			read.close()
		}
		t.finish(cb, err, nil)
	}()
}

// Delete removes the backing file. Only valid once both handles are
// closed (or were never opened).
func (t *TempFile) Delete(ctx context.Context, cb CompletionFunc) {
	if !t.begin(cb) {
		return
	}

	if (t.write != nil && !t.write.Closed()) || (t.read != nil && !t.read.Closed()) {
		t.finish(cb, ErrHandlesOpen, nil)
		return
	}

	path := t.Path()
	go func() {
		err := t.store.Delete(ctx, path)
		t.finish(cb, err, nil)
	}()
}

// Rename atomically repoints the file to newName within its directory.
// The previous name is retained until the store confirms, then
// discarded.
func (t *TempFile) Rename(ctx context.Context, newName string, cb CompletionFunc) {
	if !t.begin(cb) {
		return
	}

	t.oldName = t.name
	oldPath := t.dir + "/" + t.oldName
	newPath := t.dir + "/" + newName
	go func() {
		err := t.store.Rename(ctx, oldPath, newPath)
		t.finish(cb, err, func() {
			t.name = newName
			t.oldName = ""
		})
	}()
}

// begin claims the single outstanding operation slot. On contention the
// callback is completed with ErrBusy and begin reports false.
func (t *TempFile) begin(cb CompletionFunc) bool {
	if t.pending {
		busy := fmt.Errorf("%w: %s", ErrBusy, t.name)
		if postErr := t.loop.Post(func() { cb(busy) }); postErr != nil {
			t.logger.Warn("tempfile completion dropped",
				slog.String("tempfile_id", t.id.String()),
				slog.String("error", postErr.Error()),
			)
		}
		return false
	}
	t.pending = true
	return true
}

// finish posts the operation result back to the loop. apply mutates
// TempFile state and runs on the loop, only when the operation
// succeeded.
func (t *TempFile) finish(cb CompletionFunc, err error, apply func()) {
	postErr := t.loop.Post(func() {
		t.pending = false
		if err == nil && apply != nil {
			apply()
		}
		cb(err)
	})
	if postErr != nil {
		t.logger.Warn("tempfile completion dropped",
			slog.String("tempfile_id", t.id.String()),
			slog.String("name", t.name),
			slog.String("error", postErr.Error()),
		)
	}
}

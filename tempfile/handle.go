package tempfile

import (
	"sync"
	"sync/atomic"

	"github.com/nexelab/translate/filestore"
)

// WriteHandle is the write capability for a TempFile. It is handed to
// exactly one pipeline stage (the code generator for the object file,
// the linker for the nexe). Writes are position-addressed and charge the
// quota identifier as bytes land. After the owning TempFile closes, any
// further use returns ErrHandleClosed.
//
// The handle is safe to use from the translation goroutine while the
// loop owns the rest of the TempFile state.
type WriteHandle struct {
	file       filestore.File
	dup        filestore.File
	quota      filestore.Quota
	identifier string

	mu      sync.Mutex
	closed  bool
	written atomic.Int64
}

// WriteAt implements io.WriterAt.
func (h *WriteHandle) WriteAt(p []byte, off int64) (int, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return 0, ErrHandleClosed
	}
	h.mu.Unlock()

	n, err := h.file.WriteAt(p, off)
	if n > 0 {
		h.quota.Charge(h.identifier, int64(n))
		h.written.Add(int64(n))
	}
	return n, err
}

// ReadAt implements io.ReaderAt through the duplicated view of the same
// underlying ref, so reading back never disturbs the write cursor.
func (h *WriteHandle) ReadAt(p []byte, off int64) (int, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return 0, ErrHandleClosed
	}
	h.mu.Unlock()

	return h.dup.ReadAt(p, off)
}

// BytesWritten returns the total bytes written through this handle.
func (h *WriteHandle) BytesWritten() int64 { return h.written.Load() }

// Closed reports whether the handle has been logically closed.
func (h *WriteHandle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Close releases the write capability. The code generator's write side
// must be closed before the linker starts consuming the object file;
// the translation goroutine calls this between the two stages. Closing
// again (or via the owning TempFile) is a no-op.
func (h *WriteHandle) Close() error {
	h.close()
	return nil
}

// close releases the underlying file and its duplicate. Idempotent.
func (h *WriteHandle) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	if h.file != nil {
		_ = h.file.Close()
	}
	if h.dup != nil {
		_ = h.dup.Close()
	}
}

// ReadHandle is the read capability for a TempFile. It is handed to
// exactly one pipeline stage (the linker for the object file, the final
// loader for the nexe) and is independent of the write handle's cursor.
type ReadHandle struct {
	file filestore.File

	mu     sync.Mutex
	closed bool
}

// ReadAt implements io.ReaderAt.
func (h *ReadHandle) ReadAt(p []byte, off int64) (int, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return 0, ErrHandleClosed
	}
	h.mu.Unlock()

	return h.file.ReadAt(p, off)
}

// Name returns the logical name the handle was opened under.
func (h *ReadHandle) Name() string { return h.file.Name() }

// Closed reports whether the handle has been logically closed.
func (h *ReadHandle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Close releases the handle. Exported because ownership of the final
// nexe read handle transfers to the caller, who closes it after loading.
func (h *ReadHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHandleClosed
	}
	h.closed = true
	return h.file.Close()
}

// close is the idempotent variant used by TempFile.Close.
func (h *ReadHandle) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	_ = h.file.Close()
}

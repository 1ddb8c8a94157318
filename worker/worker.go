// Package worker supervises the two subprocess-like translation units:
// the code generator (bitcode → object file) and the linker (object
// file → executable). Each worker is started from a fetched binary
// descriptor and serves one blocking request/response exchange at a time
// on its own goroutine. A worker never outlives the job that started
// it; the coordinator kills whatever is still running during teardown.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/nexelab/translate/id"
	"github.com/nexelab/translate/manifest"
	"github.com/nexelab/translate/resource"
)

// ErrExited is returned when the worker has died or been killed.
// Concurrent exchanges queue; a second Do call waits rather than fails.
var ErrExited = errors.New("worker: exited")

// Role identifies which translation stage a worker performs.
type Role string

// Worker roles.
const (
	// RoleCodeGen produces an object file from bitcode.
	RoleCodeGen Role = "llc"
	// RoleLink produces an executable from object files.
	RoleLink Role = "ld"
)

// Request carries the descriptors for one translation exchange. The
// coordinator retains ownership of every handle in here; the worker only
// borrows them for the duration of the exchange.
type Request struct {
	// Input is the stage input: the pexe for the code generator, the
	// object file read handle for the linker.
	Input io.ReaderAt

	// InputSize is the input length in bytes, when known.
	InputSize int64

	// Output is the stage output: the object file write handle for the
	// code generator, the nexe write handle for the linker.
	Output io.WriterAt

	// Libraries resolves dynamic-library names during linking. Nil for
	// the code-generator stage.
	Libraries *manifest.Resolver
}

// Program is the role-specific translation routine run inside the
// worker. The real code generator and linker execute behind the
// sandbox; embedders and tests supply Programs.
type Program func(ctx context.Context, req *Request) error

// Launcher turns a fetched translator binary into a running Program.
// The sandbox that restricts the launched unit is the embedder's
// concern.
type Launcher interface {
	Launch(ctx context.Context, role Role, binary resource.Descriptor) (Program, error)
}

// Worker is one supervised translation unit.
type Worker struct {
	id      id.WorkerID
	role    Role
	program Program
	logger  *slog.Logger

	calls  chan *call
	doneCh chan struct{}

	mu      sync.Mutex
	killCh  chan struct{}
	killed  bool
	exitErr error
}

type call struct {
	ctx    context.Context
	req    *Request
	respCh chan error
}

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the worker's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) { w.logger = logger }
}

// Start launches a worker for the given role from a translator binary
// descriptor and begins serving exchanges.
func Start(ctx context.Context, role Role, binary resource.Descriptor, launcher Launcher, opts ...Option) (*Worker, error) {
	w := &Worker{
		id:     id.NewWorkerID(),
		role:   role,
		logger: slog.Default(),
		calls:  make(chan *call),
		doneCh: make(chan struct{}),
		killCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	program, err := launcher.Launch(ctx, role, binary)
	if err != nil {
		return nil, fmt.Errorf("worker: launch %s: %w", role, err)
	}
	w.program = program

	w.logger.Debug("worker started",
		slog.String("worker_id", w.id.String()),
		slog.String("role", string(role)),
		slog.String("binary", binary.URL()),
	)

	go w.serve()
	return w, nil
}

// ID returns the worker's unique identifier.
func (w *Worker) ID() id.WorkerID { return w.id }

// Role returns the worker's translation stage.
func (w *Worker) Role() Role { return w.role }

// Do performs one blocking request/response exchange. It must be called
// from the translation goroutine, never from the completion loop.
// If the worker exits mid-exchange, Do returns ErrExited.
func (w *Worker) Do(ctx context.Context, req *Request) error {
	c := &call{ctx: ctx, req: req, respCh: make(chan error, 1)}

	select {
	case w.calls <- c:
	case <-w.doneCh:
		return w.exitError()
	case <-w.killCh:
		return ErrExited
	case <-ctx.Done():
		return ctx.Err()
	}

	// Kill does not interrupt the program mid-exchange, but it does
	// release the caller so teardown can proceed.
	select {
	case err := <-c.respCh:
		return err
	case <-w.doneCh:
		return w.exitError()
	case <-w.killCh:
		return ErrExited
	}
}

// Kill stops the worker. An in-flight exchange is not interrupted, but
// its caller is released with ErrExited and no further exchange is
// accepted. Kill is idempotent and never blocks.
func (w *Worker) Kill() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.killed {
		return
	}
	w.killed = true
	close(w.killCh)

	w.logger.Debug("worker killed",
		slog.String("worker_id", w.id.String()),
		slog.String("role", string(w.role)),
	)
}

// Done is closed once the worker has exited for any reason.
func (w *Worker) Done() <-chan struct{} { return w.doneCh }

// serve runs exchanges one at a time until killed or the program dies.
func (w *Worker) serve() {
	defer close(w.doneCh)

	for {
		select {
		case c := <-w.calls:
			err, died := w.invoke(c)
			c.respCh <- err
			if died {
				w.setExitError(err)
				return
			}
		case <-w.killCh:
			w.setExitError(ErrExited)
			return
		}
	}
}

// invoke runs the program for one exchange. A panicking program counts
// as a dead worker, not a caller error.
func (w *Worker) invoke(c *call) (err error, died bool) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("worker program panicked",
				slog.String("worker_id", w.id.String()),
				slog.String("role", string(w.role)),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("%w: %s panicked: %v", ErrExited, w.role, r)
			died = true
		}
	}()

	return w.program(c.ctx, c.req), false
}

func (w *Worker) setExitError(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.exitErr == nil {
		w.exitErr = err
	}
}

func (w *Worker) exitError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.exitErr != nil {
		return w.exitErr
	}
	return ErrExited
}

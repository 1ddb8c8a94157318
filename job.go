package translate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nexelab/translate/cache"
	"github.com/nexelab/translate/ext"
	"github.com/nexelab/translate/filestore"
	"github.com/nexelab/translate/id"
	"github.com/nexelab/translate/manifest"
	"github.com/nexelab/translate/middleware"
	"github.com/nexelab/translate/resource"
	"github.com/nexelab/translate/tempfile"
	"github.com/nexelab/translate/worker"
)

// CompletionFunc receives the terminal outcome of a translation job.
// It is invoked exactly once, on the completion loop, with nil on
// success.
type CompletionFunc func(errInfo *ErrorInfo)

// Output is the translated executable handed to the caller by
// ReleaseOutput. The caller owns it and closes it once loaded.
type Output interface {
	io.ReaderAt
	io.Closer

	// Name returns the name the executable is stored under.
	Name() string
}

// Both the final read handle and a reopened cached file serve as Output.
var (
	_ Output = (*tempfile.ReadHandle)(nil)
	_ Output = (filestore.File)(nil)
)

// Job is one translation in flight. All pipeline state is confined to
// the completion loop; the exported methods (Cancel, Err, State,
// ReleaseOutput) are safe from any goroutine.
type Job struct {
	id       id.JobID
	t        *Translator
	url      string
	cacheKey string
	manifest *manifest.Manifest
	libs     *manifest.Resolver
	done     CompletionFunc

	ctx     context.Context
	started time.Time

	// Loop-confined pipeline state.
	resources *resource.Set
	pexe      resource.Descriptor
	objFile   *tempfile.TempFile
	nexeFile  *tempfile.TempFile
	codegen   *worker.Worker
	linker    *worker.Worker
	nexeSize  int64
	finalName string
	failing   bool

	cancelled atomic.Bool

	// Terminal outcome, shared with caller goroutines.
	mu        sync.Mutex
	state     State
	completed bool
	errInfo   *ErrorInfo
	output    Output
	released  bool
}

// Translate starts an asynchronous translation of the program module at
// url. The manifest resolves the translator binaries and any link-time
// library names. cacheKey is the opaque cache identity for this
// translation; empty disables lookup and publish. done fires exactly
// once on the completion loop.
func (t *Translator) Translate(url, cacheKey string, m *manifest.Manifest, done CompletionFunc) *Job {
	j := &Job{
		id:       id.NewJobID(),
		t:        t,
		url:      url,
		cacheKey: cacheKey,
		manifest: m,
		libs:     manifest.NewResolver(m, t.extras),
		done:     done,
		ctx:      context.Background(),
		started:  time.Now(),
	}

	t.logger.Info("translation started",
		slog.String("job_id", j.id.String()),
		slog.String("url", url),
		slog.String("cache_key", cacheKey),
	)
	t.exts.EmitTranslationStarted(j.ctx, j.info())

	if err := t.lp.Post(func() { j.enter(StateLoadTranslatorBinaries) }); err != nil {
		go j.finish(genericError("start translation: %v", err))
	}
	return j
}

// ID returns the job identifier.
func (j *Job) ID() id.JobID { return j.id }

// State returns the job's current pipeline state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Err returns the terminal error. It is nil before completion and on
// success.
func (j *Job) Err() *ErrorInfo {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.completed {
		return nil
	}
	return j.errInfo
}

// Cancel requests cooperative cancellation. It never blocks and never
// interrupts an in-flight worker exchange; the pipeline observes the
// flag at its next suspension point and tears down. Cancelling a
// finished job has no effect.
func (j *Job) Cancel() { j.cancelled.Store(true) }

// ReleaseOutput transfers ownership of the translated executable to the
// caller, at most once, and only after the job finished successfully.
// The caller closes the handle when the executable is loaded.
func (j *Job) ReleaseOutput() (Output, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.completed || j.errInfo != nil || j.output == nil {
		return nil, ErrNoOutput
	}
	if j.released {
		return nil, ErrOutputReleased
	}
	j.released = true
	out := j.output
	j.output = nil
	return out, nil
}

// info is the extension-facing view of the job.
func (j *Job) info() ext.JobInfo {
	var size int64
	if j.pexe != nil {
		size = j.pexe.Size()
	}
	return ext.JobInfo{ID: j.id, URL: j.url, CacheKey: j.cacheKey, InputSize: size}
}

// post schedules fn on the completion loop. A drop can only happen
// during translator shutdown; the job is abandoned then anyway.
func (j *Job) post(fn func()) {
	if err := j.t.lp.Post(fn); err != nil {
		j.t.logger.Error("job completion dropped",
			slog.String("job_id", j.id.String()),
			slog.String("error", err.Error()),
		)
	}
}

// ── State machine ───────────────────────────────────

// enter advances the pipeline to state s and dispatches its work. This
// is the only place state changes, and it only runs on the completion
// loop.
func (j *Job) enter(s State) {
	j.mu.Lock()
	j.state = s
	j.mu.Unlock()

	if !s.Terminal() {
		j.t.logger.Debug("stage entered",
			slog.String("job_id", j.id.String()),
			slog.String("state", s.String()),
		)
		j.t.exts.EmitStageEntered(j.ctx, j.info(), s.String())
	}

	switch s {
	case StateLoadTranslatorBinaries:
		j.loadTranslatorBinaries()
	case StateOpenLocalFileSystem:
		j.openLocalFileSystem()
	case StateEnsureTempDirectory:
		j.ensureTempDirectory()
	case StateCacheLookup:
		j.cacheLookup()
	case StateFetchBitcode:
		j.fetchBitcode()
	case StateOpenObjectForWrite:
		j.openObjectForWrite()
	case StateOpenObjectForRead:
		j.openObjectForRead()
	case StateOpenNexeForWrite:
		j.openNexeForWrite()
	case StatePrepareStreaming:
		j.prepareStreaming()
	case StateRunTranslation:
		j.runTranslation()
	case StateTranslationComplete:
		j.translationComplete()
	case StateCloseObjectFile:
		j.closeObjectFile()
	case StateDeleteObjectFile:
		j.deleteObjectFile()
	case StateCloseNexeFile:
		j.closeNexeFile()
	case StateRenameNexeFile:
		j.renameNexeFile()
	case StateOpenNexeForFinalRead:
		j.openNexeForFinalRead()
	case StateFinished:
		j.finish(nil)
	}
}

// proceed moves to next unless cancellation was requested at this
// suspension point or teardown already started.
func (j *Job) proceed(next State) {
	if j.failing || j.State().Terminal() {
		return
	}
	if j.cancelled.Load() {
		j.fail(cancelledError())
		return
	}
	j.enter(next)
}

// ── Pipeline stages ─────────────────────────────────

func (j *Job) loadTranslatorBinaries() {
	j.resources = resource.NewSet(j.t.loader, j.manifest)
	cfg := j.t.config
	go func() {
		err := j.resources.Load(j.ctx, cfg.CodeGenName, cfg.LinkerName)
		j.post(func() {
			if err != nil {
				j.fail(ioError(CodeFetch, err, "load translator binaries"))
				return
			}
			j.proceed(StateOpenLocalFileSystem)
		})
	}()
}

func (j *Job) openLocalFileSystem() {
	root := j.t.config.Root
	go func() {
		err := j.t.store.EnsureDir(j.ctx, root)
		j.post(func() {
			if err != nil {
				j.fail(ioError(CodeDirCreate, err, "open local file system"))
				return
			}
			j.proceed(StateEnsureTempDirectory)
		})
	}()
}

func (j *Job) ensureTempDirectory() {
	dir := j.t.config.TempDir
	go func() {
		err := j.t.store.EnsureDir(j.ctx, dir)
		j.post(func() {
			if err != nil {
				j.fail(ioError(CodeDirCreate, err, "ensure temp directory"))
				return
			}
			j.proceed(StateCacheLookup)
		})
	}()
}

// cacheLookup asks the cache index for a previously published
// executable. Any lookup problem is a miss, never a failure: a stale
// index entry or unreachable backend just costs a fresh translation.
func (j *Job) cacheLookup() {
	if j.cacheKey == "" || j.t.cache == nil {
		j.proceed(StateFetchBitcode)
		return
	}
	go func() {
		var f filestore.File
		entry, err := j.t.cache.GetEntry(j.ctx, j.cacheKey)
		if err == nil {
			f, err = j.t.store.Open(j.ctx, j.t.config.TempDir+"/"+entry.Filename)
		}
		j.post(func() {
			if j.failing || j.State().Terminal() {
				if f != nil {
					_ = f.Close()
				}
				return
			}
			if err != nil {
				if !errors.Is(err, cache.ErrMiss) {
					j.t.logger.Warn("cache lookup failed, translating",
						slog.String("job_id", j.id.String()),
						slog.String("cache_key", j.cacheKey),
						slog.String("error", err.Error()),
					)
				}
				j.proceed(StateFetchBitcode)
				return
			}
			j.setOutput(f)
			j.t.logger.Info("cache hit",
				slog.String("job_id", j.id.String()),
				slog.String("cache_key", j.cacheKey),
				slog.String("filename", entry.Filename),
			)
			j.t.exts.EmitCacheHit(j.ctx, j.info())
			j.enter(StateFinished)
		})
	}()
}

func (j *Job) fetchBitcode() {
	go func() {
		d, err := j.t.loader.Fetch(j.ctx, j.url)
		j.post(func() {
			if j.failing || j.State().Terminal() {
				if d != nil {
					_ = d.Close()
				}
				return
			}
			if err != nil {
				j.fail(ioError(CodeFetch, err, "fetch bitcode"))
				return
			}
			j.pexe = d
			j.t.exts.EmitProgressReported(j.ctx, j.info(), d.Size(), d.Size())
			j.proceed(StateOpenObjectForWrite)
		})
	}()
}

func (j *Job) openObjectForWrite() {
	j.objFile = tempfile.New(j.t.store, j.t.quota, j.t.lp, j.t.config.TempDir,
		tempfile.WithLogger(j.t.logger))
	j.objFile.OpenWrite(j.ctx, func(err error) {
		if err != nil {
			j.fail(ioError(CodeFileCreate, err, "open object file for write"))
			return
		}
		j.proceed(StateOpenObjectForRead)
	})
}

func (j *Job) openObjectForRead() {
	j.objFile.OpenRead(j.ctx, func(err error) {
		if err != nil {
			j.fail(ioError(CodeFileOpen, err, "open object file for read"))
			return
		}
		j.proceed(StateOpenNexeForWrite)
	})
}

func (j *Job) openNexeForWrite() {
	j.nexeFile = tempfile.New(j.t.store, j.t.quota, j.t.lp, j.t.config.TempDir,
		tempfile.WithLogger(j.t.logger))
	j.nexeFile.OpenWrite(j.ctx, func(err error) {
		if err != nil {
			j.fail(ioError(CodeFileCreate, err, "open nexe file for write"))
			return
		}
		j.proceed(StatePrepareStreaming)
	})
}

// prepareStreaming launches the two workers from the fetched translator
// binaries so the translation goroutine can start exchanging
// immediately.
func (j *Job) prepareStreaming() {
	cfg := j.t.config
	go func() {
		var cg, ld *worker.Worker
		cgBin, err := j.resources.Get(cfg.CodeGenName)
		if err == nil {
			var ldBin resource.Descriptor
			ldBin, err = j.resources.Get(cfg.LinkerName)
			if err == nil {
				cg, err = worker.Start(j.ctx, worker.RoleCodeGen, cgBin, j.t.launcher,
					worker.WithLogger(j.t.logger))
			}
			if err == nil {
				ld, err = worker.Start(j.ctx, worker.RoleLink, ldBin, j.t.launcher,
					worker.WithLogger(j.t.logger))
				if err != nil {
					cg.Kill()
					cg = nil
				}
			}
		}
		j.post(func() {
			if j.failing || j.State().Terminal() {
				if cg != nil {
					cg.Kill()
				}
				if ld != nil {
					ld.Kill()
				}
				return
			}
			if err != nil {
				j.fail(workerError(err, "start translator workers"))
				return
			}
			j.codegen, j.linker = cg, ld
			j.proceed(StateRunTranslation)
		})
	}()
}

// runTranslation hands off to the dedicated translation goroutine for
// the blocking worker exchanges. Everything it needs is captured before
// the goroutine starts; it touches no loop state and posts its outcome
// back.
func (j *Job) runTranslation() {
	objWrite := j.objFile.WriteHandle()
	objRead := j.objFile.ReadHandle()
	nexeWrite := j.nexeFile.WriteHandle()
	pexe := j.pexe
	libs := j.libs
	codegen, linker := j.codegen, j.linker

	go func() {
		err := j.runStages(pexe, objWrite, objRead, nexeWrite, libs, codegen, linker)
		nexeSize := nexeWrite.BytesWritten()
		j.post(func() {
			if j.failing || j.State().Terminal() {
				return
			}
			if err != nil {
				var info *ErrorInfo
				if errors.As(err, &info) {
					j.fail(info)
					return
				}
				j.fail(workerError(err, "run translation"))
				return
			}
			j.nexeSize = nexeSize
			j.t.exts.EmitProgressReported(j.ctx, j.info(), nexeSize, nexeSize)
			j.enter(StateTranslationComplete)
		})
	}()
}

// runStages executes the code-generation and link exchanges in order.
// The object file's write side is closed between them so the linker
// only ever sees finished bytes. Cancellation is polled at each
// suspension point; the flag never interrupts an exchange mid-flight.
func (j *Job) runStages(
	pexe resource.Descriptor,
	objWrite *tempfile.WriteHandle,
	objRead *tempfile.ReadHandle,
	nexeWrite *tempfile.WriteHandle,
	libs *manifest.Resolver,
	codegen, linker *worker.Worker,
) error {
	if j.cancelled.Load() {
		return cancelledError()
	}

	if err := j.stage("codegen", codegen, &worker.Request{
		Input:     pexe,
		InputSize: pexe.Size(),
		Output:    objWrite,
	}); err != nil {
		return workerError(err, "code generation")
	}
	_ = objWrite.Close()

	if j.cancelled.Load() {
		return cancelledError()
	}

	if err := j.stage("link", linker, &worker.Request{
		Input:     objRead,
		InputSize: objWrite.BytesWritten(),
		Output:    nexeWrite,
		Libraries: libs,
	}); err != nil {
		return workerError(err, "link")
	}
	return nil
}

// stage runs one worker exchange through the middleware chain.
func (j *Job) stage(name string, w *worker.Worker, req *worker.Request) error {
	info := middleware.StageInfo{
		JobID:   j.id,
		Stage:   name,
		Timeout: j.t.config.StageTimeout,
	}
	return j.t.stages(j.ctx, info, func(ctx context.Context) error {
		return w.Do(ctx, req)
	})
}

// translationComplete retires the workers; they never outlive their
// exchanges.
func (j *Job) translationComplete() {
	j.codegen.Kill()
	j.linker.Kill()
	j.t.logger.Info("translation complete",
		slog.String("job_id", j.id.String()),
		slog.Int64("nexe_size", j.nexeSize),
		slog.Duration("elapsed", time.Since(j.started)),
	)
	j.enter(StateCloseObjectFile)
}

func (j *Job) closeObjectFile() {
	j.objFile.Close(j.ctx, func(err error) {
		if err != nil {
			j.fail(ioError(CodeFileClose, err, "close object file"))
			return
		}
		j.proceed(StateDeleteObjectFile)
	})
}

func (j *Job) deleteObjectFile() {
	j.objFile.Delete(j.ctx, func(err error) {
		if err != nil {
			j.fail(ioError(CodeFileDelete, err, "delete object file"))
			return
		}
		j.proceed(StateCloseNexeFile)
	})
}

func (j *Job) closeNexeFile() {
	j.nexeFile.Close(j.ctx, func(err error) {
		if err != nil {
			j.fail(ioError(CodeFileClose, err, "close nexe file"))
			return
		}
		j.proceed(StateRenameNexeFile)
	})
}

func (j *Job) renameNexeFile() {
	j.finalName = j.publishedName()
	j.nexeFile.Rename(j.ctx, j.finalName, func(err error) {
		switch {
		case errors.Is(err, filestore.ErrExists):
			j.adoptPublishedNexe()
		case err != nil:
			j.fail(ioError(CodeFileRename, err, "rename nexe file"))
		default:
			j.publishCacheEntry(func() { j.proceed(StateOpenNexeForFinalRead) })
		}
	})
}

// adoptPublishedNexe resolves a lost publish race: a concurrent job
// with the same cache identity renamed its nexe first, so the target
// name is already taken by an identical executable. This translation
// still succeeded; the scratch copy is discarded and the published
// file serves as the output.
func (j *Job) adoptPublishedNexe() {
	j.t.logger.Info("nexe already published by concurrent job",
		slog.String("job_id", j.id.String()),
		slog.String("cache_key", j.cacheKey),
		slog.String("filename", j.finalName),
	)
	j.nexeFile.Delete(j.ctx, func(err error) {
		j.logCleanupError("delete scratch nexe", err)
		j.publishCacheEntry(j.openPublishedNexe)
	})
}

// openPublishedNexe opens the already-published executable as this
// job's output.
func (j *Job) openPublishedNexe() {
	path := j.t.config.TempDir + "/" + j.finalName
	go func() {
		f, err := j.t.store.Open(j.ctx, path)
		j.post(func() {
			if j.failing || j.State().Terminal() {
				if f != nil {
					_ = f.Close()
				}
				return
			}
			if err != nil {
				j.fail(ioError(CodeFileOpen, err, "open published nexe"))
				return
			}
			j.setOutput(f)
			j.enter(StateFinished)
		})
	}()
}

// publishedName derives the name the executable is published under.
// Cache identities map to a stable digest name so later lookups can
// reopen the file; uncached translations keep their scratch name.
func (j *Job) publishedName() string {
	if j.cacheKey == "" {
		return j.nexeFile.Name() + ".nexe"
	}
	sum := sha256.Sum256([]byte(j.cacheKey))
	return hex.EncodeToString(sum[:]) + ".nexe"
}

// publishCacheEntry records the published executable in the cache
// index, then runs next on the loop. The translation already
// succeeded, so an index write failure is logged and the job still
// finishes.
func (j *Job) publishCacheEntry(next func()) {
	if j.cacheKey == "" || j.t.cache == nil {
		next()
		return
	}
	entry := &cache.Entry{
		Key:       j.cacheKey,
		Filename:  j.finalName,
		Size:      j.nexeSize,
		CreatedAt: time.Now().UTC(),
	}
	go func() {
		err := j.t.cache.PutEntry(j.ctx, entry)
		j.post(func() {
			if j.failing || j.State().Terminal() {
				return
			}
			if err != nil {
				j.t.logger.Warn("cache publish failed",
					slog.String("job_id", j.id.String()),
					slog.String("cache_key", j.cacheKey),
					slog.String("error", err.Error()),
				)
			}
			next()
		})
	}()
}

func (j *Job) openNexeForFinalRead() {
	j.nexeFile.OpenRead(j.ctx, func(err error) {
		if err != nil {
			j.fail(ioError(CodeFileOpen, err, "open nexe for final read"))
			return
		}
		j.setOutput(j.nexeFile.ReleaseReadHandle())
		j.enter(StateFinished)
	})
}

func (j *Job) setOutput(out Output) {
	j.mu.Lock()
	j.output = out
	j.mu.Unlock()
}

// ── Failure and teardown ────────────────────────────

// fail records the error and starts the teardown sequence. The first
// error wins; anything that goes wrong during teardown is logged and
// discarded, and the completion callback fires once with the original
// error.
func (j *Job) fail(info *ErrorInfo) {
	if j.failing || j.State().Terminal() {
		return
	}
	j.failing = true

	j.mu.Lock()
	if j.errInfo == nil {
		j.errInfo = info
	}
	j.mu.Unlock()

	j.t.logger.Error("translation failed",
		slog.String("job_id", j.id.String()),
		slog.String("state", j.State().String()),
		slog.String("kind", info.Kind.String()),
		slog.String("error", info.Error()),
	)

	if j.codegen != nil {
		j.codegen.Kill()
	}
	if j.linker != nil {
		j.linker.Kill()
	}
	j.cleanupObject()
}

// cleanupObject closes then deletes the object scratch file before the
// nexe teardown starts.
func (j *Job) cleanupObject() {
	if j.objFile == nil {
		j.cleanupNexe()
		return
	}
	j.objFile.Close(j.ctx, func(err error) {
		j.logCleanupError("close object file", err)
		j.objFile.Delete(j.ctx, func(err error) {
			j.logCleanupError("delete object file", err)
			j.cleanupNexe()
		})
	})
}

func (j *Job) cleanupNexe() {
	if j.nexeFile == nil {
		j.finishFailed()
		return
	}
	j.nexeFile.Close(j.ctx, func(err error) {
		j.logCleanupError("close nexe file", err)
		j.nexeFile.Delete(j.ctx, func(err error) {
			j.logCleanupError("delete nexe file", err)
			j.finishFailed()
		})
	})
}

func (j *Job) logCleanupError(op string, err error) {
	if err == nil {
		return
	}
	j.t.logger.Warn("teardown error ignored",
		slog.String("job_id", j.id.String()),
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
}

func (j *Job) finishFailed() {
	j.mu.Lock()
	info := j.errInfo
	j.mu.Unlock()
	j.finish(info)
}

// finish is the single terminal transition. It fires the completion
// callback exactly once and releases everything the pipeline still
// holds except the output.
func (j *Job) finish(info *ErrorInfo) {
	j.mu.Lock()
	if j.completed {
		j.mu.Unlock()
		j.t.logger.Error("terminal state re-entered",
			slog.String("job_id", j.id.String()),
		)
		return
	}
	j.completed = true
	j.errInfo = info
	if info == nil {
		j.state = StateFinished
	} else {
		j.state = StateFailed
	}
	j.mu.Unlock()

	if j.pexe != nil {
		_ = j.pexe.Close()
	}
	if j.resources != nil {
		_ = j.resources.Close()
	}

	elapsed := time.Since(j.started)
	if info == nil {
		j.t.logger.Info("translation finished",
			slog.String("job_id", j.id.String()),
			slog.Duration("elapsed", elapsed),
		)
		j.t.exts.EmitTranslationCompleted(j.ctx, j.info(), elapsed)
	} else {
		j.t.exts.EmitTranslationFailed(j.ctx, j.info(), info)
	}

	if j.done != nil {
		j.done(info)
	}
}

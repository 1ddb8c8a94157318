package ext

import (
	"context"
	"log/slog"
	"time"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type translationStartedEntry struct {
	name string
	hook TranslationStarted
}

type stageEnteredEntry struct {
	name string
	hook StageEntered
}

type cacheHitEntry struct {
	name string
	hook CacheHit
}

type progressReportedEntry struct {
	name string
	hook ProgressReported
}

type translationCompletedEntry struct {
	name string
	hook TranslationCompleted
}

type translationFailedEntry struct {
	name string
	hook TranslationFailed
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	translationStarted   []translationStartedEntry
	stageEntered         []stageEnteredEntry
	cacheHit             []cacheHitEntry
	progressReported     []progressReportedEntry
	translationCompleted []translationCompletedEntry
	translationFailed    []translationFailedEntry
	shutdown             []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(TranslationStarted); ok {
		r.translationStarted = append(r.translationStarted, translationStartedEntry{name, h})
	}
	if h, ok := e.(StageEntered); ok {
		r.stageEntered = append(r.stageEntered, stageEnteredEntry{name, h})
	}
	if h, ok := e.(CacheHit); ok {
		r.cacheHit = append(r.cacheHit, cacheHitEntry{name, h})
	}
	if h, ok := e.(ProgressReported); ok {
		r.progressReported = append(r.progressReported, progressReportedEntry{name, h})
	}
	if h, ok := e.(TranslationCompleted); ok {
		r.translationCompleted = append(r.translationCompleted, translationCompletedEntry{name, h})
	}
	if h, ok := e.(TranslationFailed); ok {
		r.translationFailed = append(r.translationFailed, translationFailedEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Event emitters
// ──────────────────────────────────────────────────

// EmitTranslationStarted notifies all extensions that implement
// TranslationStarted.
func (r *Registry) EmitTranslationStarted(ctx context.Context, info JobInfo) {
	for _, e := range r.translationStarted {
		if err := e.hook.OnTranslationStarted(ctx, info); err != nil {
			r.logHookError("OnTranslationStarted", e.name, err)
		}
	}
}

// EmitStageEntered notifies all extensions that implement StageEntered.
func (r *Registry) EmitStageEntered(ctx context.Context, info JobInfo, stage string) {
	for _, e := range r.stageEntered {
		if err := e.hook.OnStageEntered(ctx, info, stage); err != nil {
			r.logHookError("OnStageEntered", e.name, err)
		}
	}
}

// EmitCacheHit notifies all extensions that implement CacheHit.
func (r *Registry) EmitCacheHit(ctx context.Context, info JobInfo) {
	for _, e := range r.cacheHit {
		if err := e.hook.OnCacheHit(ctx, info); err != nil {
			r.logHookError("OnCacheHit", e.name, err)
		}
	}
}

// EmitProgressReported notifies all extensions that implement
// ProgressReported.
func (r *Registry) EmitProgressReported(ctx context.Context, info JobInfo, loaded, total int64) {
	for _, e := range r.progressReported {
		if err := e.hook.OnProgressReported(ctx, info, loaded, total); err != nil {
			r.logHookError("OnProgressReported", e.name, err)
		}
	}
}

// EmitTranslationCompleted notifies all extensions that implement
// TranslationCompleted.
func (r *Registry) EmitTranslationCompleted(ctx context.Context, info JobInfo, elapsed time.Duration) {
	for _, e := range r.translationCompleted {
		if err := e.hook.OnTranslationCompleted(ctx, info, elapsed); err != nil {
			r.logHookError("OnTranslationCompleted", e.name, err)
		}
	}
}

// EmitTranslationFailed notifies all extensions that implement
// TranslationFailed.
func (r *Registry) EmitTranslationFailed(ctx context.Context, info JobInfo, jobErr error) {
	for _, e := range r.translationFailed {
		if err := e.hook.OnTranslationFailed(ctx, info, jobErr); err != nil {
			r.logHookError("OnTranslationFailed", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated — they must not block the
// pipeline.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}

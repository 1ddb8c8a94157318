// Package ext defines the extension system for the translator.
// Extensions are notified of lifecycle events (translation started,
// stage entered, cache hit, completed, failed) and can react to them —
// logging, metrics, UI progress, etc.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/nexelab/translate/id"
)

// JobInfo is the extension-facing view of a translation job. It carries
// only identity and sizing; extensions never see pipeline internals.
type JobInfo struct {
	// ID identifies the job.
	ID id.JobID

	// URL is the location the program module was loaded from.
	URL string

	// CacheKey is the opaque cache identity for this translation, empty
	// when caching is disabled.
	CacheKey string

	// InputSize is the program module length in bytes, zero when
	// unknown (streaming input).
	InputSize int64
}

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Translation lifecycle hooks
// ──────────────────────────────────────────────────

// TranslationStarted is called when a translation pipeline begins.
type TranslationStarted interface {
	OnTranslationStarted(ctx context.Context, info JobInfo) error
}

// StageEntered is called each time the pipeline enters a new stage.
type StageEntered interface {
	OnStageEntered(ctx context.Context, info JobInfo, stage string) error
}

// CacheHit is called when a cached translation is found and the
// pipeline short-circuits to opening the cached output.
type CacheHit interface {
	OnCacheHit(ctx context.Context, info JobInfo) error
}

// ProgressReported is called as translation makes measurable progress.
// total is zero when the final size is unknown.
type ProgressReported interface {
	OnProgressReported(ctx context.Context, info JobInfo, loaded, total int64) error
}

// TranslationCompleted is called after a translation finishes
// successfully, whether translated fresh or served from cache.
type TranslationCompleted interface {
	OnTranslationCompleted(ctx context.Context, info JobInfo, elapsed time.Duration) error
}

// TranslationFailed is called when a translation fails terminally,
// including cancellation.
type TranslationFailed interface {
	OnTranslationFailed(ctx context.Context, info JobInfo, err error) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}

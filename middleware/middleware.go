// Package middleware provides composable middleware for pipeline stage
// execution. Middleware wraps stage calls synchronously and can modify
// execution (recover from panics, enforce deadlines, log, add tracing,
// etc.).
package middleware

import (
	"context"
	"time"

	"github.com/nexelab/translate/id"
)

// StageInfo describes the stage about to execute.
type StageInfo struct {
	// JobID identifies the translation job the stage belongs to.
	JobID id.JobID

	// Stage is the pipeline stage name, e.g. "run_translation".
	Stage string

	// Timeout bounds stage execution when non-zero.
	Timeout time.Duration
}

// Handler is the terminal function that executes stage logic.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler with cross-cutting logic.
// It receives the current context, the stage being executed, and the
// next handler to call. Middleware MUST call next to continue the chain
// (unless short-circuiting on error).
type Middleware func(ctx context.Context, info StageInfo, next Handler) error

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, recover, timeout) executes as:
//
//	logging → recover → timeout → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, info StageInfo, next Handler) error {
		// Build the chain from the end backwards.
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, info, prev)
			}
		}
		return h(ctx)
	}
}

package middleware

import (
	"context"
	"log/slog"
)

// Timeout returns middleware that enforces a per-stage execution
// deadline. If the stage has a non-zero Timeout, a context.WithTimeout
// wraps the handler call. When the deadline is exceeded the context is
// cancelled and the handler should return context.DeadlineExceeded.
func Timeout(logger *slog.Logger) Middleware {
	return func(ctx context.Context, info StageInfo, next Handler) error {
		if info.Timeout > 0 {
			logger.Debug("stage timeout set",
				slog.String("stage", info.Stage),
				slog.String("job_id", info.JobID.String()),
				slog.Duration("timeout", info.Timeout),
			)
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, info.Timeout)
			defer cancel()
		}
		return next(ctx)
	}
}

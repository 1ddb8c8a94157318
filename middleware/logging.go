package middleware

import (
	"context"
	"log/slog"
	"time"
)

// Logging returns middleware that logs stage start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, info StageInfo, next Handler) error {
		logger.Debug("stage started",
			slog.String("stage", info.Stage),
			slog.String("job_id", info.JobID.String()),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("stage failed",
				slog.String("stage", info.Stage),
				slog.String("job_id", info.JobID.String()),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Debug("stage completed",
				slog.String("stage", info.Stage),
				slog.String("job_id", info.JobID.String()),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}

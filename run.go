package translate

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nexelab/translate/backoff"
	"github.com/nexelab/translate/manifest"
)

// Run translates synchronously: it starts a job, waits for the terminal
// callback, and returns the released output. Context cancellation
// requests job cancellation and still waits for teardown to finish, so
// no scratch files leak.
func (t *Translator) Run(ctx context.Context, url, cacheKey string, m *manifest.Manifest) (Output, error) {
	errCh := make(chan *ErrorInfo, 1)
	job := t.Translate(url, cacheKey, m, func(info *ErrorInfo) { errCh <- info })

	var info *ErrorInfo
	select {
	case info = <-errCh:
	case <-ctx.Done():
		job.Cancel()
		info = <-errCh
	}
	if info != nil {
		return nil, info
	}
	return job.ReleaseOutput()
}

// RunWithRetry re-runs failed translations with delays taken from
// strategy. attempts counts total tries, not retries. Cancellation is
// terminal and never retried.
func (t *Translator) RunWithRetry(ctx context.Context, url, cacheKey string, m *manifest.Manifest, attempts int, strategy backoff.Strategy) (Output, error) {
	if attempts < 1 {
		attempts = 1
	}
	if strategy == nil {
		strategy = backoff.DefaultStrategy()
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			timer := time.NewTimer(strategy.Delay(attempt - 1))
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
		}

		out, err := t.Run(ctx, url, cacheKey, m)
		if err == nil {
			return out, nil
		}
		lastErr = err

		var info *ErrorInfo
		if errors.As(err, &info) && info.Kind == KindCancelled {
			return nil, err
		}
		t.logger.Warn("translation attempt failed",
			slog.Int("attempt", attempt),
			slog.String("url", url),
			slog.String("error", err.Error()),
		)
	}
	return nil, lastErr
}

// Package ext defines the extension system for the translator.
//
// Extensions are notified of lifecycle events and can react to them —
// recording metrics, driving UI progress bars, writing audit logs, etc.
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *MyExtension) OnTranslationCompleted(ctx context.Context, info ext.JobInfo, elapsed time.Duration) error {
//	    log.Printf("job %s translated in %s", info.ID, elapsed)
//	    return nil
//	}
//
// # Translation Lifecycle Hooks
//
//   - [TranslationStarted] — pipeline began for a program module
//   - [StageEntered] — the pipeline advanced to a new stage
//   - [CacheHit] — a cached translation was found; workers are skipped
//   - [ProgressReported] — measurable translation progress
//   - [TranslationCompleted] — translation finished successfully
//   - [TranslationFailed] — translation failed terminally (including
//     cancellation)
//   - [Shutdown] — the translator is shutting down gracefully
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface.
package ext

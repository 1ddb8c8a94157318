// Package translate coordinates the translation of portable bitcode
// programs into native executables. A Translator drives each job
// through a fixed pipeline: fetch the translator binaries, prepare
// scratch files in a sandboxed file store, run the code-generation and
// link stages on supervised workers, then publish the executable and
// hand a read handle back to the caller.
//
// Translations are cached. When a job carries a cache key and the index
// has a previously published executable for it, the pipeline
// short-circuits straight to opening the cached file.
//
// All pipeline state transitions run serially on a completion loop, so
// job state needs no locking. The blocking worker exchanges run on a
// dedicated goroutine per job and post their results back. Cancellation
// is cooperative: Cancel sets a flag that the pipeline observes at its
// next suspension point, after which the job tears down its scratch
// files and reports a cancellation error.
//
// The completion callback fires exactly once per job, with nil on
// success. On success, ReleaseOutput transfers ownership of the
// executable to the caller, at most once.
package translate

// Package observability provides an OpenTelemetry metrics extension for
// the translator. The MetricsExtension implements lifecycle hooks to
// record system-wide counters for translation starts, completions,
// failures, and cache hits, plus a duration histogram.
//
// For per-stage tracing and metrics around the worker exchanges, see
// the middleware package: middleware.Tracing() and middleware.Metrics().
package observability

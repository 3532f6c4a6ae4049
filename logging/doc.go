// Package logging provides a minimal logging interface and adapters for the
// research pipeline.
//
// The Logger interface defines the standard logging methods (Debug, Info,
// Warn, Error) that the engine and its components use for observability.
// This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//   - ResearchLogger with run/depth context and domain helpers
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	dr := deepresearch.New(generator, func(o *deepresearch.Options) { o.Logger = logger })
//
// The design intentionally keeps the interface minimal to avoid vendor lock-in
// while supporting structured logging where available.
package logging

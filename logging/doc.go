// Package logging provides a minimal logging interface and adapters for sessionmesh.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the manager, handlers and stores use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - ChainLogger with component/session context
//   - LogHandlerCall for recording the outcome of a session operation
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelInfo, Format: "json"})
//	m := sessionmesh.New(func(o *sessionmesh.Options) { o.Logger = logger })
//
// An existing *slog.Logger plugs in through NewSlogAdapter:
//
//	m := sessionmesh.New(func(o *sessionmesh.Options) { o.Logger = logging.NewSlogAdapter(slog.Default()) })
package logging

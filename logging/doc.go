// Package logging provides a minimal logging interface and adapters for the
// review swarm.
//
// The Logger interface defines the structured logging methods (Debug, Info,
// Warn, Error) that the orchestrator, agents and tools use for observability.
// This package includes:
//
//   - Logger interface for dependency injection
//   - ZapAdapter wrapping go.uber.org/zap
//   - SwarmLogger, a level filtered slog logger with fixed attributes
//   - With, ToolCall, ModelCall and RunCompletion helpers usable with any Logger
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	sw, err := swarm.New(cfg, roster, func(o *swarm.Options) { o.Logger = logger })
package logging

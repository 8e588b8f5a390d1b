// Package log provides structured protocol event capture for the client
// runtime.
//
// It is separate from operational logging (slog): components take a Logger
// at construction and default to NoopLogger, so capture is opt-in and no
// global logger registry is involved.
//
// # Basic Usage
//
//	// For development: events to the console via slog or zap
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//	cfg.ProtocolLogger = log.NewZapAdapter(zapLogger)
//
//	// For production: CBOR events in a size-rotated file
//	cfg.ProtocolLogger = log.NewRotatingFileLogger(log.RotationConfig{Path: "/var/log/mqlight/client.mlog"})
//
//	// Both
//	cfg.ProtocolLogger = log.NewMultiLogger(consoleLogger, fileLogger)
//
// # Event Types
//
// Events are captured at three layers:
//   - Transport: bytes written and read on a channel (FrameEvent)
//   - Engine: control messages submitted to a connection (RequestEvent)
//   - Timer: timer scheduling and completion (TimerEvent)
//
// Lifecycle transitions of channels and the shared worker group are
// StateChangeEvents; failures at any layer are ErrorEventData.
//
// # File Format
//
// Log files are a stream of CBOR-encoded events with integer keys. Reader
// iterates them with optional filtering.
package log

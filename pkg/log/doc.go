// Package log provides structured protocol logging for the sensor bridge.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at multiple layers (transport, wire, service).
// It is separate from operational logging (slog); protocol capture provides
// a machine-readable trace of every frame, message and stream transition.
//
// # Basic Usage
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For capture: write to binary file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/sensorbridge/bridge.slog")
//
//	// Both
//	cfg.ProtocolLogger = log.NewMultiLogger(console, file)
//
// # Event Types
//
// Events are captured at multiple layers:
//   - Transport: raw frame bytes (FrameEvent)
//   - Wire: decoded calls, replies and events (MessageEvent)
//   - Service: connection and stream state changes (StateChangeEvent)
//
// Errors at any layer have a dedicated event type.
//
// # File Format
//
// Log files are a plain sequence of CBOR-encoded events. The sensor-log
// tool provides viewing, filtering and statistics.
package log

// Package logging provides structured logging for dsstar sessions.
//
// This package wraps Go's log/slog to provide JSON-formatted logs with
// context propagation, so that a single session's planning, execution and
// verification phases can be filtered after the fact.
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. Child loggers
// created via With* methods share the underlying writer.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/var/log/dsstar", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.Info("iteration completed", "iteration", 3, "success", true)
//
// # Context Propagation
//
//	sessionLogger := logger.WithSession("b7c1...")
//	phaseLogger := sessionLogger.WithPhase("verifying")
//	phaseLogger.Info("verdict", "result", "INSUFFICIENT")
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"verdict","session_id":"b7c1...","phase":"verifying","result":"INSUFFICIENT"}
//
// # Log Rotation
//
// Long-running servers should rotate. Rotation is delegated to lumberjack:
//
//	logger, err := logging.NewLoggerWithRotation(dir, "INFO", logging.RotationConfig{
//	    MaxSizeMB:  10,
//	    MaxBackups: 3,
//	    Compress:   true,
//	})
//
// # Testing
//
// Use [NopLogger] to discard output, or [NewLoggerWithWriter] to capture it.
package logging

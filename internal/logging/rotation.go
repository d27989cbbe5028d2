package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// RotationConfig holds configuration for log rotation.
type RotationConfig struct {
	// MaxSizeMB is the maximum size of a log file in megabytes before rotation.
	MaxSizeMB int
	// MaxBackups is the number of old log files to keep.
	MaxBackups int
	// MaxAgeDays removes backups older than this many days. 0 keeps them forever.
	MaxAgeDays int
	// Compress determines whether rotated log files are gzip compressed.
	Compress bool
}

// DefaultRotationConfig returns a RotationConfig with sensible defaults.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{
		MaxSizeMB:  10,
		MaxBackups: 3,
	}
}

// NewLoggerWithRotation creates a Logger writing to {logDir}/dsstar.log that
// rotates according to cfg. A MaxSizeMB of 0 falls back to NewLogger.
func NewLoggerWithRotation(logDir string, level string, cfg RotationConfig) (*Logger, error) {
	if logDir == "" || cfg.MaxSizeMB <= 0 {
		return NewLogger(logDir, level)
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	writer := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, LogFileName),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}

	l := NewLoggerWithWriter(writer, level)
	l.closer = writer
	return l, nil
}

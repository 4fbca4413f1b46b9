// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer

	// File additionally writes JSON logs to a rotated file when Path is set.
	File FileConfig
}

// FileConfig configures rotated log files.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
		File: FileConfig{
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 14,
			Compress:   true,
		},
	}
}

// Setup configures the global zerolog logger. The returned closer releases
// the log file, if any; it is a no-op otherwise.
func Setup(cfg Config) (zerolog.Logger, io.Closer) {
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out}
	}

	var closer io.Closer = nopCloser{}
	if cfg.File.Path != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		}
		out = zerolog.MultiLevelWriter(out, file)
		closer = file
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger

	return logger, closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// MaskToken renders an API token for logs: its prefix and last four
// characters, e.g. "pk_****3f9a".
func MaskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}

	prefix := ""
	if i := strings.IndexByte(token, '_'); i >= 0 && i < 4 {
		prefix = token[:i+1]
	}
	return prefix + "****" + token[len(token)-4:]
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Request attempts, cache hits and misses
//   - Metric lookups, batch progress
//   - Categories degraded for missing features (not found, metric unavailable)
//
// Info: Normal operation events
//   - Extraction run start and completion
//   - Requests that succeeded after a retry
//   - Metrics listing cached
//
// Warn: Warning conditions that don't prevent operation
//   - 429 backoff and retry attempts
//   - Categories degraded by request failures
//   - Malformed statistics normalised to zero
//   - Cache and quota tracker errors
//
// Error: Error conditions requiring attention
//   - Retries exhausted
//   - Credential rejected (run aborted)
//   - Extractor panics
//
// Context Fields:
//   - component: emitting package (klaviyo-client, resolver, extractor, orchestrator)
//   - account: credential fingerprint (the token itself is never logged)
//   - run_id: extraction run
//   - endpoint, status, attempt, duration
//   - category, reason
//   - waits: backoff chain of a failed request

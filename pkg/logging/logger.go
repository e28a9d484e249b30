// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
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

	// File is an optional path; when set, logs are written to the file
	// in addition to Output. Opened in append mode so a resumed harvest
	// keeps one continuous log.
	File string
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger. When Config.File is set,
// the returned closer owns the log file handle; callers close it on
// shutdown. The closer is nil when no file is configured.
func Setup(cfg Config) (zerolog.Logger, io.Closer, error) {
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	var output io.Writer = cfg.Output
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: cfg.Output}
	}

	var closer io.Closer
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("open log file %s: %w", cfg.File, err)
		}
		closer = f
		output = zerolog.MultiLevelWriter(output, f)
	}

	logger := zerolog.New(output).With().Timestamp().Logger()

	log.Logger = logger

	return logger, closer, nil
}

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

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Individual page fetches (range, page, post count)
//   - Pacer waits and retry backoff
//   - Checkpoint saves
//
// Info: Normal operation events
//   - Harvest start/resume position and target id
//   - Batch advancement
//   - Retry success after transient failure
//   - Terminal success and clean stops
//
// Warn: Warning conditions that don't prevent operation
//   - Transient fetch errors being retried
//   - Rate limit rejections
//   - Retry budget exhaustion (before surfacing)
//
// Error: Error conditions requiring attention
//   - Fatal fetch errors (auth, malformed request, response shape)
//   - Sink write failures
//   - Checkpoint corruption or save failures
//
// Context Fields:
//   - range_start, range_end: id range of the current batch
//   - page: page number within the range
//   - posts: number of posts in a page
//   - last_processed_id: highest committed record id
//   - total_records: cumulative harvested record count
//   - error_class: failure classification (client, server, rate_limit, network, decode)

// Package logging provides structured logging with file output support.
// It uses environment variables for configuration.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
)

// LoggerCloser wraps a logger and provides a Close method for cleanup
type LoggerCloser struct {
	*log.Logger
	closer io.Closer
	path   string
}

// Close closes the underlying writer if it's closeable
func (lc *LoggerCloser) Close() error {
	if lc.closer != nil {
		return lc.closer.Close()
	}
	return nil
}

// Path returns the log file, or "" when logging to stderr.
func (lc *LoggerCloser) Path() string { return lc.path }

// ParseLevel maps a level name to a log level, defaulting to info.
func ParseLevel(s string) log.Level {
	switch s {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// NewLoggerWithWriter creates a new logger with the provided writer
func NewLoggerWithWriter(w io.Writer) *LoggerCloser {
	lg := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	})
	lg.SetLevel(ParseLevel(os.Getenv("STRCLUSTER_LOG_LEVEL")))

	prefix := os.Getenv("STRCLUSTER_LOG_PREFIX")
	if prefix == "" {
		prefix = "strcluster "
	}

	var closer io.Closer
	if c, ok := w.(io.Closer); ok && w != os.Stderr {
		closer = c
	}

	return &LoggerCloser{
		Logger: lg.WithPrefix(prefix),
		closer: closer,
	}
}

// NewLogger creates a new logger based on environment variables
// STRCLUSTER_LOG_LEVEL: debug, info, warn, error (default: info)
// STRCLUSTER_LOG_PREFIX: prefix for log messages (default: "strcluster ")
// STRCLUSTER_LOG_TO_FILE: when set to "1", logs to a timestamped file in dir
// instead of stderr. The TUI owns the terminal, so it sets this.
func NewLogger(dir string) *LoggerCloser {
	if os.Getenv("STRCLUSTER_LOG_TO_FILE") != "1" {
		return NewLoggerWithWriter(os.Stderr)
	}

	timestamp := time.Now().Format("20060102-150405")
	logFile := filepath.Join(dir, fmt.Sprintf("strcluster-%s.log", timestamp))
	if dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}
	f, err := os.OpenFile(logFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		// If file creation fails, fall back to stderr
		return NewLoggerWithWriter(os.Stderr)
	}
	lc := NewLoggerWithWriter(f)
	lc.path = logFile
	return lc
}

// IsDebug returns true if debug logging is enabled
func IsDebug() bool {
	return os.Getenv("STRCLUSTER_LOG_LEVEL") == "debug"
}

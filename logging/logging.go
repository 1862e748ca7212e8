package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

var (
	logFile *os.File
	mu      sync.Mutex
)

// Options configures the process logger
type Options struct {
	Level  string // debug, info, warn, error
	Format string // text or json
	File   string // optional log file, appended to
}

// Setup builds the process logger and installs it as the slog default.
// When a file is configured, output goes to both stderr and the file
func Setup(opts Options) (*slog.Logger, error) {
	mu.Lock()
	defer mu.Unlock()

	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	var out io.Writer = os.Stderr
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		if logFile != nil {
			logFile.Close()
		}
		logFile = f
		out = io.MultiWriter(os.Stderr, f)
	}

	logger := New(out, opts.Format, level)
	slog.SetDefault(logger)

	if logFile != nil {
		logger.Debug("log started", "file", opts.File, "at", time.Now().Format(time.RFC3339))
	}
	return logger, nil
}

// New creates a logger writing to w in the given format
func New(w io.Writer, format string, level slog.Level) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// Close closes the log file opened by Setup, if any
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

// Discard returns a logger that drops everything
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// OrDiscard returns l, or a discarding logger when l is nil
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}

// ParseLevel maps a level name to a slog.Level. Empty means info
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// LogImageProcessed logs the outcome of hashing one project member
func LogImageProcessed(l *slog.Logger, path string, source string, err error) {
	if err != nil {
		l.Warn("image skipped", "path", path, "error", err)
		return
	}
	l.Debug("image processed", "path", path, "source", source)
}

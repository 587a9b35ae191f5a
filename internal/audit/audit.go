// Package audit opens the per-day audit log of a run. The handle is created
// explicitly at run start and closed at run end; nothing here touches the
// process-wide default logger.
package audit

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options tunes the audit log.
type Options struct {
	Level      string // debug, info, warn, error (unknown -> info)
	MaxSizeMB  int    // rotate after this many megabytes (default: 50)
	MaxBackups int    // rotated files kept (default: 7)
	// Console also receives every line; nil means os.Stdout. Use io.Discard to silence it.
	Console io.Writer
	RunID   string
}

// Log is an open audit log.
type Log struct {
	Logger *slog.Logger
	Path   string

	file *lumberjack.Logger
}

// FileName is the log file name for the given invocation day.
func FileName(day time.Time) string {
	return fmt.Sprintf("nifty50_%s.log", day.Format("2006-01-02"))
}

// Open creates dir if needed and opens the log file for day in append mode.
func Open(dir string, day time.Time, opts Options) (*Log, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 50
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = 7
	}
	console := opts.Console
	if console == nil {
		console = os.Stdout
	}

	path := filepath.Join(dir, FileName(day))
	file := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		LocalTime:  true,
	}

	handler := slog.NewTextHandler(io.MultiWriter(file, console), &slog.HandlerOptions{
		Level: ParseLevel(opts.Level),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().Format("2006-01-02 15:04:05"))
			}
			return a
		},
	})
	logger := slog.New(handler)
	if opts.RunID != "" {
		logger = logger.With("run_id", opts.RunID)
	}
	return &Log{Logger: logger, Path: path, file: file}, nil
}

// Close flushes and closes the log file.
func (l *Log) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// ParseLevel converts debug|info|warn|error to a slog.Level. Unknown -> info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

package audit

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestOpen_WritesFileAndConsole(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	var console bytes.Buffer
	day := time.Date(2025, 11, 10, 16, 45, 0, 0, time.UTC)

	l, err := Open(dir, day, Options{Level: "info", Console: &console, RunID: "run-1"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if l.Path != filepath.Join(dir, "nifty50_2025-11-10.log") {
		t.Errorf("Path = %s", l.Path)
	}
	l.Logger.Info("trading date from data", "date", "2025-11-10")
	l.Logger.Debug("hidden")
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(l.Path)
	if err != nil {
		t.Fatal(err)
	}
	for _, out := range []string{string(data), console.String()} {
		if !strings.Contains(out, `msg="trading date from data"`) || !strings.Contains(out, "run_id=run-1") {
			t.Errorf("line missing fields: %q", out)
		}
		if strings.Contains(out, "hidden") {
			t.Errorf("debug line written at info level: %q", out)
		}
	}
}

func TestOpen_AppendsSameDay(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC)
	for _, msg := range []string{"first run", "second run"} {
		l, err := Open(dir, day, Options{Console: io.Discard})
		if err != nil {
			t.Fatal(err)
		}
		l.Logger.Info(msg)
		l.Close()
	}
	data, _ := os.ReadFile(filepath.Join(dir, FileName(day)))
	if !strings.Contains(string(data), "first run") || !strings.Contains(string(data), "second run") {
		t.Errorf("log not appended: %q", data)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

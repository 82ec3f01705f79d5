// Copyright (C) 2026 Proscenium AI (engineering@proscenium.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestLevelString(t *testing.T) {
	cases := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(42), "UNKNOWN"},
	}
	for _, tc := range cases {
		if got := tc.level.String(); got != tc.want {
			t.Errorf("Level(%d).String() = %q, want %q", tc.level, got, tc.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"error", LevelError},
		{"", LevelInfo},
		{"bogus", LevelInfo},
	}
	for _, tc := range cases {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNewZeroConfig(t *testing.T) {
	logger := New(Config{})
	defer logger.Close()

	if logger.slog == nil {
		t.Fatal("expected a usable slog logger")
	}
	logger.Info("smoke")
}

func TestNewWithLogDir(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		LogDir:  dir,
		Service: "stage",
		Quiet:   true,
	})
	logger.Info("file entry", "key", "value")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	name := "stage_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}

	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &record); err != nil {
		t.Fatalf("log file is not JSON: %v", err)
	}
	if record["msg"] != "file entry" {
		t.Errorf("msg = %v, want %q", record["msg"], "file entry")
	}
	if record["service"] != "stage" {
		t.Errorf("service = %v, want %q", record["service"], "stage")
	}
	if record["key"] != "value" {
		t.Errorf("key = %v, want %q", record["key"], "value")
	}
}

func TestNewLogDirDefaultServiceName(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{LogDir: dir, Quiet: true})
	logger.Info("anonymous")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || !strings.HasPrefix(entries[0].Name(), "proscenium_") {
		t.Fatalf("expected one proscenium_*.log file, got %v", entries)
	}
}

func TestNewUnwritableLogDirDegrades(t *testing.T) {
	// A file where the directory should be makes MkdirAll fail; the logger
	// must still work on its other destinations.
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocked")
	if err := os.WriteFile(blocker, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	logger := New(Config{LogDir: blocker, Quiet: true})
	defer logger.Close()
	logger.Info("still alive")

	if logger.file != nil {
		t.Error("expected no file handle when the directory cannot be created")
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Level:    LevelWarn,
		Quiet:    true,
		Exporter: exporter,
	})
	defer logger.Close()

	logger.Debug("dropped")
	logger.Info("dropped too")
	logger.Warn("kept")
	logger.Error("also kept")

	entries := exporter.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 exported entries, got %d", len(entries))
	}
	if entries[0].Level != LevelWarn || entries[1].Level != LevelError {
		t.Errorf("unexpected exported levels: %v, %v", entries[0].Level, entries[1].Level)
	}
}

func TestLoggerExportCarriesAttrs(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Quiet:    true,
		Service:  "test",
		Exporter: exporter,
	})
	defer logger.Close()

	logger.Info("with attrs", "session_id", "abc", "turns", 3)

	entries := exporter.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Service != "test" || entry.Message != "with attrs" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.Attrs["session_id"] != "abc" || entry.Attrs["turns"] != 3 {
		t.Errorf("unexpected attrs: %v", entry.Attrs)
	}
}

func TestLoggerWith(t *testing.T) {
	exporter := NewBufferedExporter()
	parent := New(Config{Quiet: true, Exporter: exporter})
	defer parent.Close()

	child := parent.With("request_id", "r1")
	child.Info("child message")

	if len(exporter.Entries()) != 1 {
		t.Fatal("child logger did not reach the shared exporter")
	}
	if child.file != parent.file {
		t.Error("child must share the parent's file handle")
	}
}

func TestLoggerCloseIdempotentResources(t *testing.T) {
	logger := New(Config{Quiet: true})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close on resourceless logger: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

type failingExporter struct {
	NopExporter
	flushErr error
	closeErr error
}

func (e *failingExporter) Flush(ctx context.Context) error { return e.flushErr }
func (e *failingExporter) Close() error                    { return e.closeErr }

func TestLoggerCloseReportsExporterError(t *testing.T) {
	wantErr := errors.New("flush failed")
	logger := New(Config{
		Quiet:    true,
		Exporter: &failingExporter{flushErr: wantErr},
	})
	err := logger.Close()
	if err == nil || !strings.Contains(err.Error(), "flush failed") {
		t.Fatalf("Close = %v, want wrapped flush error", err)
	}
}

func TestLoggerExportFailureSilent(t *testing.T) {
	logger := New(Config{
		Quiet:    true,
		Exporter: &failingExporter{},
	})
	defer logger.Close()

	// Must not panic or surface anything.
	logger.Info("fire and forget")
}

func TestLoggerConcurrentUse(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Quiet: true, Exporter: exporter})
	defer logger.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				logger.Info("concurrent", "worker", n, "iteration", j)
			}
		}(i)
	}
	wg.Wait()

	if got := len(exporter.Entries()); got != 200 {
		t.Errorf("expected 200 exported entries, got %d", got)
	}
}

func TestMultiHandlerFanout(t *testing.T) {
	var a, b bytes.Buffer
	handler := &multiHandler{handlers: []slog.Handler{
		slog.NewJSONHandler(&a, nil),
		slog.NewJSONHandler(&b, nil),
	}}
	logger := slog.New(handler)
	logger.Info("fan out")

	if !bytes.Contains(a.Bytes(), []byte("fan out")) {
		t.Error("first destination missed the record")
	}
	if !bytes.Contains(b.Bytes(), []byte("fan out")) {
		t.Error("second destination missed the record")
	}
}

func TestMultiHandlerRespectsPerHandlerLevel(t *testing.T) {
	var debugOut, warnOut bytes.Buffer
	handler := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&debugOut, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&warnOut, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}}
	logger := slog.New(handler)
	logger.Info("info only")

	if !bytes.Contains(debugOut.Bytes(), []byte("info only")) {
		t.Error("debug destination should carry info records")
	}
	if warnOut.Len() != 0 {
		t.Error("warn destination must filter info records")
	}
}

func TestMultiHandlerEnabled(t *testing.T) {
	handler := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}),
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}),
	}}
	if !handler.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("Enabled must be true when any destination accepts the level")
	}
	if handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Enabled must be false when every destination rejects the level")
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory in test environment")
	}
	cases := []struct {
		in   string
		want string
	}{
		{"~/logs", filepath.Join(home, "logs")},
		{"/var/log/proscenium", "/var/log/proscenium"},
		{"relative/dir", "relative/dir"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := expandPath(tc.in); got != tc.want {
			t.Errorf("expandPath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestArgsToMap(t *testing.T) {
	t.Run("pairs", func(t *testing.T) {
		m := argsToMap([]any{"a", 1, "b", "two"})
		if m["a"] != 1 || m["b"] != "two" {
			t.Errorf("unexpected map: %v", m)
		}
	})
	t.Run("empty", func(t *testing.T) {
		if m := argsToMap(nil); m != nil {
			t.Errorf("expected nil map, got %v", m)
		}
	})
	t.Run("dangling key", func(t *testing.T) {
		m := argsToMap([]any{"a", 1, "dangling"})
		if m["!BADKEY"] != "dangling" {
			t.Errorf("dangling key not captured: %v", m)
		}
	})
	t.Run("non-string key", func(t *testing.T) {
		m := argsToMap([]any{7, "seven"})
		if m["7"] != "seven" {
			t.Errorf("non-string key not stringified: %v", m)
		}
	})
}

func TestBufferedExporterEntriesIsCopy(t *testing.T) {
	exporter := NewBufferedExporter()
	_ = exporter.Export(context.Background(), LogEntry{Message: "one"})

	entries := exporter.Entries()
	entries[0].Message = "mutated"

	if exporter.Entries()[0].Message != "one" {
		t.Error("Entries must return a copy, not the backing slice")
	}
}

func TestWriterExporter(t *testing.T) {
	var buf bytes.Buffer
	exporter := NewWriterExporter(&buf)
	err := exporter.Export(context.Background(), LogEntry{
		Timestamp: time.Now(),
		Level:     LevelWarn,
		Service:   "stage",
		Message:   "written out",
	})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "WARN") || !strings.Contains(out, "written out") {
		t.Errorf("unexpected output: %q", out)
	}
}

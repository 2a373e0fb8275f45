package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog/log"
)

func TestErrorLogReceivesOnlyWarnings(t *testing.T) {
	dir := t.TempDir()
	errPath := filepath.Join(dir, "error_logs.txt")
	if err := os.WriteFile(errPath, []byte("stale content from a previous run\n"), 0o644); err != nil {
		t.Fatalf("seed error log: %v", err)
	}

	var console bytes.Buffer
	if err := Init(Options{Level: "debug", ErrorLogFile: errPath, Console: &console}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Close()

	log.Info().Msg("processing started")
	log.Warn().Msg("no image files found")
	log.Error().Str("file", "a.png").Msg("request failed")

	data, err := os.ReadFile(errPath)
	if err != nil {
		t.Fatalf("read error log: %v", err)
	}
	got := string(data)

	if strings.Contains(got, "stale content") {
		t.Error("error log must be truncated at init")
	}
	if !strings.HasPrefix(got, "Error Log - ") {
		t.Errorf("missing header, got %q", got)
	}
	if strings.Contains(got, "processing started") {
		t.Error("info lines must not reach the error log")
	}
	if !strings.Contains(got, "[WARNING] no image files found") {
		t.Errorf("missing warning line in %q", got)
	}
	if !strings.Contains(got, "[ERROR] request failed") || !strings.Contains(got, "file=a.png") {
		t.Errorf("missing error line in %q", got)
	}

	if !strings.Contains(console.String(), "processing started") {
		t.Error("console should receive info lines")
	}
}

func TestInitWritesRotatedFile(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "nested", "app.log")

	if err := Init(Options{Level: "info", File: logPath, MaxSizeMB: 1, Console: &bytes.Buffer{}}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Close()

	log.Info().Str("run_id", "r1").Msg("hello")

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"run_id":"r1"`) {
		t.Errorf("expected JSON line in log file, got %q", data)
	}
}

func TestInitInvalidLevelFallsBackToInfo(t *testing.T) {
	var console bytes.Buffer
	if err := Init(Options{Level: "loud", Console: &console}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Close()

	log.Debug().Msg("hidden")
	log.Info().Msg("shown")

	if strings.Contains(console.String(), "hidden") {
		t.Error("debug should be filtered at info level")
	}
	if !strings.Contains(console.String(), "shown") {
		t.Error("info should be written")
	}
}

func TestRule(t *testing.T) {
	if got := Rule('-'); len(got) != 80 || strings.Trim(got, "-") != "" {
		t.Errorf("unexpected rule %q", got)
	}
}

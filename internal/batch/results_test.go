package batch

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestResultsLogLayout(t *testing.T) {
	p := filepath.Join(t.TempDir(), "out", "logs.txt")
	rl, err := CreateResultsLog(p)
	if err != nil {
		t.Fatalf("CreateResultsLog: %v", err)
	}
	defer rl.Close()

	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.Local)
	if err := rl.WriteHeader("run-1", 2, at); err != nil {
		t.Fatal(err)
	}
	task := ImageTask{Path: "/imgs/a.png", Name: "a.png", SizeBytes: 42}
	if err := rl.WriteRecord(1, 2, task, Success("hello")); err != nil {
		t.Fatal(err)
	}

	// records are on disk without Close
	mid, _ := os.ReadFile(p)
	if !strings.Contains(string(mid), "hello\n") {
		t.Fatalf("record not flushed:\n%s", mid)
	}

	if err := rl.WriteRecord(2, 2, ImageTask{Path: "/imgs/b.png", Name: "b.png", SizeBytes: 7}, Failure("boom")); err != nil {
		t.Fatal(err)
	}
	if err := rl.WriteFooter(RunSummary{Total: 2, Success: 1, Failure: 1}); err != nil {
		t.Fatal(err)
	}

	eq := strings.Repeat("=", 80)
	dash := strings.Repeat("-", 80)
	want := eq + "\n" +
		"Batch OCR Results\n" +
		"Generated at: 2025-01-02 03:04:05\n" +
		"Run ID: run-1\n" +
		"Total Images: 2\n" +
		eq + "\n\n" +
		"\n" + dash + "\n" +
		"[1/2] File: a.png\n" +
		"Path: /imgs/a.png\n" +
		"Size: 42 bytes\n" +
		dash + "\n" +
		"hello\n" +
		"\n" + dash + "\n" +
		"[2/2] File: b.png\n" +
		"Path: /imgs/b.png\n" +
		"Size: 7 bytes\n" +
		dash + "\n" +
		"ERROR: boom\n" +
		"\n" + eq + "\n" +
		"Processing Complete\n" +
		"Success: 1/2\n" +
		"Failed: 1/2\n" +
		eq + "\n"

	got, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != want {
		t.Errorf("layout mismatch\n--- got ---\n%s\n--- want ---\n%s", got, want)
	}
}

func TestCreateResultsLogTruncates(t *testing.T) {
	p := filepath.Join(t.TempDir(), "logs.txt")
	if err := os.WriteFile(p, []byte("previous run"), 0o644); err != nil {
		t.Fatal(err)
	}
	rl, err := CreateResultsLog(p)
	if err != nil {
		t.Fatal(err)
	}
	rl.Close()
	got, _ := os.ReadFile(p)
	if len(got) != 0 {
		t.Errorf("expected empty file, got %q", got)
	}
}

// limitedWriter accepts n bytes and then fails.
type limitedWriter struct {
	buf bytes.Buffer
	n   int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if w.buf.Len()+len(p) > w.n {
		return 0, io.ErrShortWrite
	}
	return w.buf.Write(p)
}

func TestResultsLogWriteFailure(t *testing.T) {
	w := &limitedWriter{n: 400}
	rl := newResultsLog(w)
	if err := rl.WriteHeader("", 3, time.Now()); err != nil {
		t.Fatalf("header: %v", err)
	}
	header := w.buf.String()

	err := rl.WriteRecord(1, 3, ImageTask{Name: "a.png", Path: "a.png"}, Success(strings.Repeat("x", 500)))
	if !errors.Is(err, ErrOutputWrite) {
		t.Fatalf("expected ErrOutputWrite, got %v", err)
	}
	if w.buf.String() != header {
		t.Error("a failed record must not leave partial bytes behind")
	}
}

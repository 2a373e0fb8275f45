package batch

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/local/visionbatch/internal/logger"
)

const timeLayout = "2006-01-02 15:04:05"

// ResultsLog is the human-readable results file. Every write is flushed and synced before it
// returns, so whatever is on disk is a prefix of complete records.
type ResultsLog struct {
	path string
	w    *bufio.Writer
	sync func() error
	c    io.Closer
}

// CreateResultsLog truncates (or creates) path.
func CreateResultsLog(path string) (*ResultsLog, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrOutputWrite, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOutputWrite, err)
	}
	return &ResultsLog{path: path, w: bufio.NewWriter(f), sync: f.Sync, c: f}, nil
}

func newResultsLog(w io.Writer) *ResultsLog {
	return &ResultsLog{w: bufio.NewWriter(w), sync: func() error { return nil }}
}

func (l *ResultsLog) Path() string { return l.path }

// WriteHeader starts the file.
func (l *ResultsLog) WriteHeader(runID string, total int, at time.Time) error {
	var b strings.Builder
	b.WriteString(logger.Rule('=') + "\n")
	b.WriteString("Batch OCR Results\n")
	fmt.Fprintf(&b, "Generated at: %s\n", at.Format(timeLayout))
	if runID != "" {
		fmt.Fprintf(&b, "Run ID: %s\n", runID)
	}
	fmt.Fprintf(&b, "Total Images: %d\n", total)
	b.WriteString(logger.Rule('=') + "\n\n")
	return l.commit(b.String())
}

// WriteRecord appends one complete record: section header and outcome together.
func (l *ResultsLog) WriteRecord(idx, total int, t ImageTask, out Outcome) error {
	var b strings.Builder
	b.WriteString("\n" + logger.Rule('-') + "\n")
	fmt.Fprintf(&b, "[%d/%d] File: %s\n", idx, total, t.Name)
	fmt.Fprintf(&b, "Path: %s\n", t.Path)
	fmt.Fprintf(&b, "Size: %d bytes\n", t.SizeBytes)
	b.WriteString(logger.Rule('-') + "\n")
	b.WriteString(out.Body() + "\n")
	return l.commit(b.String())
}

// WriteFooter closes the run with its counts.
func (l *ResultsLog) WriteFooter(s RunSummary) error {
	var b strings.Builder
	b.WriteString("\n" + logger.Rule('=') + "\n")
	b.WriteString("Processing Complete\n")
	fmt.Fprintf(&b, "Success: %d/%d\n", s.Success, s.Total)
	fmt.Fprintf(&b, "Failed: %d/%d\n", s.Failure, s.Total)
	b.WriteString(logger.Rule('=') + "\n")
	return l.commit(b.String())
}

func (l *ResultsLog) commit(s string) error {
	if _, err := l.w.WriteString(s); err != nil {
		return fmt.Errorf("%w: %w", ErrOutputWrite, err)
	}
	if err := l.w.Flush(); err != nil {
		return fmt.Errorf("%w: flush: %w", ErrOutputWrite, err)
	}
	if err := l.sync(); err != nil {
		return fmt.Errorf("%w: sync: %w", ErrOutputWrite, err)
	}
	return nil
}

func (l *ResultsLog) Close() error {
	if l.c == nil {
		return nil
	}
	return l.c.Close()
}

package batch

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrConnectivity = errors.New("api connection test failed")
	ErrDirectory    = errors.New("image folder unavailable")
	ErrNoImages     = errors.New("no image files found")
	ErrOutputWrite  = errors.New("write results log")
	ErrInterrupted  = errors.New("interrupted")
)

// ImageTask is one unit of work. Page is 1-based for PDF page tasks and 0 for plain images.
type ImageTask struct {
	Path      string
	Name      string
	SizeBytes int64
	Page      int
}

// Outcome is either Success(text) or Failure(reason). The zero value is not a valid outcome.
type Outcome struct {
	ok     bool
	text   string
	reason string
}

func Success(text string) Outcome   { return Outcome{ok: true, text: text} }
func Failure(reason string) Outcome { return Outcome{reason: reason} }

func (o Outcome) OK() bool       { return o.ok }
func (o Outcome) Text() string   { return o.text }
func (o Outcome) Reason() string { return o.reason }

// Body is what goes into the results log below the record header.
func (o Outcome) Body() string {
	if o.ok {
		return o.text
	}
	return "ERROR: " + o.reason
}

func (o Outcome) String() string {
	if o.ok {
		return fmt.Sprintf("Success(%d chars)", len(o.text))
	}
	return fmt.Sprintf("Failure(%s)", o.reason)
}

// RunSummary is computed once when the run ends.
type RunSummary struct {
	RunID       string
	Total       int
	Success     int
	Failure     int
	GeneratedAt time.Time
	Aborted     bool
	AbortReason string
}

// State of the batch driver.
type State int

const (
	StateIdle State = iota
	StateConnectivityChecked
	StateEnumerating
	StateProcessing
	StateFinalizing
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnectivityChecked:
		return "connectivity_checked"
	case StateEnumerating:
		return "enumerating"
	case StateProcessing:
		return "processing"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

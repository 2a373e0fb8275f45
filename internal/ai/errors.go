package ai

import (
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned when the per-request deadline passes before a response is read.
var ErrTimeout = errors.New("request timeout")

// TimeoutError records which deadline was hit.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timeout after %s", e.After)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// HTTPError represents a non-200 status from the inference server.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.StatusCode, e.Body)
}

// NetworkError wraps transport-level failures (refused, reset, DNS).
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("request failed: %v", e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// MalformedResponseError is a 200 whose body has no usable choices.
type MalformedResponseError struct {
	Body string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("unexpected response format: %s", e.Body)
}

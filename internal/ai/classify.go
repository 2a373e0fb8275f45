package ai

import (
	"context"
	"errors"
)

// Kind is the request error taxonomy used in results and metrics labels.
type Kind string

const (
	KindNone      Kind = ""
	KindTimeout   Kind = "timeout"
	KindHTTP      Kind = "http_status"
	KindNetwork   Kind = "network"
	KindMalformed Kind = "malformed_response"
	KindCanceled  Kind = "canceled"
	KindOther     Kind = "other"
)

// Classify maps an error returned by a Client to its Kind.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}

	if errors.Is(err, ErrTimeout) {
		return KindTimeout
	}

	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return KindHTTP
	}

	var malformed *MalformedResponseError
	if errors.As(err, &malformed) {
		return KindMalformed
	}

	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return KindNetwork
	}

	return KindOther
}

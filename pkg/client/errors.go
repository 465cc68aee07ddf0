package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Common errors returned by the client.
var (
	// ErrMalformedResponse is returned when a response body does not match
	// the page or array contract.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrRequestBlocked is returned when the rate limit tracker refuses a request.
	ErrRequestBlocked = errors.New("request blocked: upstream rate limit critical")
)

// ErrorKind classifies a failed page fetch.
type ErrorKind string

const (
	// KindNetwork represents transport failures and timeouts.
	KindNetwork ErrorKind = "network"

	// KindServer represents 5xx upstream errors.
	KindServer ErrorKind = "server"

	// KindRateLimited represents upstream throttling (429 or a local block).
	KindRateLimited ErrorKind = "rate_limited"

	// KindClient represents 4xx errors other than throttling.
	KindClient ErrorKind = "client"

	// KindValidation represents a response that does not match the page contract.
	KindValidation ErrorKind = "validation"
)

// Transient reports whether errors of this kind may succeed on retry.
func (k ErrorKind) Transient() bool {
	switch k {
	case KindNetwork, KindServer, KindRateLimited:
		return true
	default:
		// client and validation errors repeat on every attempt
		return false
	}
}

// Error is an upstream error with its classification.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	// RetryAfter is the upstream-requested delay, if any.
	RetryAfter time.Duration
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream %s error (status %d): %s: %v",
			e.Kind, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("upstream %s error (status %d): %s",
		e.Kind, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf classifies any error returned by a transport. Errors that are not
// *Error are treated as network failures.
func KindOf(err error) ErrorKind {
	var upstreamErr *Error
	if errors.As(err, &upstreamErr) {
		return upstreamErr.Kind
	}
	if errors.Is(err, ErrMalformedResponse) {
		return KindValidation
	}
	return KindNetwork
}

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	return KindOf(err).Transient()
}

// RetryAfterOf returns the upstream-requested delay carried by err.
func RetryAfterOf(err error) time.Duration {
	var upstreamErr *Error
	if errors.As(err, &upstreamErr) {
		return upstreamErr.RetryAfter
	}
	return 0
}

// networkError wraps a transport failure, labelling timeouts.
func networkError(err error) *Error {
	msg := "request failed"
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		msg = "request timed out"
	}
	return &Error{Kind: KindNetwork, Message: msg, Err: err}
}

// statusError classifies a non-2xx response.
func statusError(status int, text string, retryAfter time.Duration) *Error {
	e := &Error{StatusCode: status, Message: text}
	switch {
	case status == 429:
		e.Kind = KindRateLimited
		e.RetryAfter = retryAfter
	case status >= 500:
		e.Kind = KindServer
	default:
		e.Kind = KindClient
	}
	return e
}

// Package opserr defines the tagged error kinds returned by query operations,
// the ad-hoc gate and the dispatch loop.
package opserr

import (
	"context"
	"errors"
	"fmt"
)

type Kind string

const (
	NotFound         Kind = "NOT_FOUND"
	InvalidParameter Kind = "INVALID_PARAMETER"
	StoreUnavailable Kind = "STORE_UNAVAILABLE"
	Rejected         Kind = "REJECTED"
	Timeout          Kind = "TIMEOUT"
	HardStop         Kind = "HARD_STOP"
)

// Error is a classified failure. Err, when set, is the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) *Error {
	return New(NotFound, format, args...)
}

func Invalidf(format string, args ...any) *Error {
	return New(InvalidParameter, format, args...)
}

// Unavailable wraps a store failure.
func Unavailable(err error, format string, args ...any) *Error {
	return &Error{Kind: StoreUnavailable, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf classifies err. Unclassified errors are treated as store failures,
// except for context deadlines which map to Timeout.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	return StoreUnavailable
}

// Message returns the caller-facing message for err.
func Message(err error) string {
	var oe *Error
	if errors.As(err, &oe) {
		if oe.Err != nil {
			return fmt.Sprintf("%s: %v", oe.Message, oe.Err)
		}
		return oe.Message
	}
	return err.Error()
}

// Retryable reports whether a single local retry is allowed for err.
func Retryable(err error) bool {
	return KindOf(err) == StoreUnavailable
}

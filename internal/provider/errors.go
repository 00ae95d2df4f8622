package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Class buckets provider failures for retry eligibility. The sync engine
// treats provider errors as opaque values; classification is the only
// thing downstream code is allowed to branch on.
type Class int

const (
	// ClassUnknown is an unclassified failure. Treated as non-retryable.
	ClassUnknown Class = iota
	// ClassNetwork is a connection-level failure. Retryable.
	ClassNetwork
	// ClassTimeout is a deadline or provider timeout. Retryable.
	ClassTimeout
	// ClassRateLimit is a provider throttle. Retryable with longer backoff.
	ClassRateLimit
	// ClassAuth means the access token is invalid or expired. Not
	// retryable; the user must re-link the institution.
	ClassAuth
	// ClassValidation is a malformed request or response. Not retryable.
	ClassValidation
)

// String returns a human-readable representation of the class.
func (c Class) String() string {
	switch c {
	case ClassNetwork:
		return "network"
	case ClassTimeout:
		return "timeout"
	case ClassRateLimit:
		return "rate_limit"
	case ClassAuth:
		return "auth"
	case ClassValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Retryable reports whether errors of this class may be retried.
func (c Class) Retryable() bool {
	switch c {
	case ClassNetwork, ClassTimeout, ClassRateLimit:
		return true
	}
	return false
}

// Error wraps a provider failure with its classification and the operation
// that produced it.
type Error struct {
	Class Class
	Op    string
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Op, e.Class)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Class, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified provider error.
func NewError(class Class, op string, err error) *Error {
	return &Error{Class: class, Op: op, Err: err}
}

// Classify extracts the error class from err.
//
// Classified provider errors report their own class. Context deadline and
// net timeouts map to ClassTimeout, other net errors to ClassNetwork.
// Everything else is ClassUnknown.
func Classify(err error) Class {
	if err == nil {
		return ClassUnknown
	}

	var perr *Error
	if errors.As(err, &perr) {
		return perr.Class
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}

	var nerr net.Error
	if errors.As(err, &nerr) {
		if nerr.Timeout() {
			return ClassTimeout
		}
		return ClassNetwork
	}

	return ClassUnknown
}

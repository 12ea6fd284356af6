package models

import (
	"context"
	"errors"
)

// ErrorType identifies the category of error that occurred.
type ErrorType string

const (
	// External collaborator failed in a way that may succeed on retry.
	ErrTypeTransient ErrorType = "transient_external_failure"

	// Text generation output did not parse into the required shape.
	ErrTypeMalformedResponse ErrorType = "malformed_response"

	// Version-control host refused the operation.
	ErrTypeHostRejection ErrorType = "host_rejection"

	// Step budget reached; a normal termination, not a failure.
	ErrTypeBudgetExhausted ErrorType = "budget_exhausted"

	// Run was cancelled by the caller.
	ErrTypeCancelled ErrorType = "cancelled"

	// Catch-all
	ErrTypeInternal ErrorType = "internal_error"
)

var (
	// ErrTransient marks failures that the collaborator boundary may retry.
	ErrTransient = errors.New("transient external failure")

	// ErrMalformedResponse marks generation output that failed to parse.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrHostRejected marks a permanent refusal by the version-control host.
	ErrHostRejected = errors.New("rejected by host")
)

// Classify maps an error onto the error taxonomy.
func Classify(err error) ErrorType {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrTypeCancelled
	case errors.Is(err, ErrHostRejected):
		return ErrTypeHostRejection
	case errors.Is(err, ErrMalformedResponse):
		return ErrTypeMalformedResponse
	case errors.Is(err, ErrTransient):
		return ErrTypeTransient
	default:
		return ErrTypeInternal
	}
}

// Retryable reports whether err should be retried at a collaborator boundary.
func Retryable(err error) bool {
	return Classify(err) == ErrTypeTransient
}

package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is the parent of every submission-time rejection. A job
	// is never created for a request failing with it.
	ErrValidation = errors.New("validation failed")

	// ErrInputTooLarge is returned when the task input exceeds the configured limit.
	ErrInputTooLarge = fmt.Errorf("%w: input exceeds maximum size", ErrValidation)

	// ErrEmptyInput is returned when the task input is blank.
	ErrEmptyInput = fmt.Errorf("%w: input cannot be empty", ErrValidation)

	// ErrMalformedPayload is returned when the payload cannot be decoded.
	ErrMalformedPayload = fmt.Errorf("%w: malformed payload", ErrValidation)

	// ErrUnknownTaskType is returned for task types without a registered handler.
	ErrUnknownTaskType = fmt.Errorf("%w: unknown task type", ErrValidation)

	// ErrMissingOwner is returned when a request carries no owner identity.
	ErrMissingOwner = fmt.Errorf("%w: owner identity is required", ErrValidation)

	// ErrJobNotFound is returned when a job does not exist or belongs to
	// another owner. Both cases are indistinguishable to callers.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobAlreadyTerminal is returned when a terminal write targets a job
	// that already left the pending state.
	ErrJobAlreadyTerminal = errors.New("job already in terminal state")

	// ErrInvalidTerminalUpdate is returned for updates that would break the
	// result/error exclusivity invariant.
	ErrInvalidTerminalUpdate = errors.New("invalid terminal update")

	// ErrJobInFlight is returned when another worker still holds a pending
	// job's lock after the wait period. The delivery must be requeued.
	ErrJobInFlight = errors.New("job is locked by another worker")

	// ErrEnqueueFailed is returned when the message broker publish fails.
	ErrEnqueueFailed = errors.New("failed to enqueue job")

	// ErrUnauthenticated is returned when no owner identity can be resolved.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrRateLimitExceeded is returned when the submission rate limit is hit.
	ErrRateLimitExceeded = errors.New("rate limit exceeded, try again later")
)

// PermanentError marks an execution failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent tags err as non-retryable. A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err, or anything it wraps, was tagged permanent.
func IsPermanent(err error) bool {
	var perr *PermanentError
	return errors.As(err, &perr)
}

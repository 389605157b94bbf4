package correlation

import "errors"

var (
	// ErrCapacityExceeded is returned by RegisterRequest when the number of
	// pending requests has reached the configured maximum.
	ErrCapacityExceeded = errors.New("correlation: capacity exceeded")

	// ErrRequestNotFound is returned by CorrelateResponse when the id is
	// unknown: the response arrived late, or the caller already cancelled it.
	ErrRequestNotFound = errors.New("correlation: request not found")

	// ErrAlreadyCompleted is returned when a second completion races a
	// first (response vs. timeout vs. cancel) and loses.
	ErrAlreadyCompleted = errors.New("correlation: already completed")

	// ErrCancelled completes a handle whose request was cancelled.
	ErrCancelled = errors.New("correlation: cancelled")

	// ErrTimeout completes a handle whose deadline elapsed before a
	// response arrived.
	ErrTimeout = errors.New("correlation: timeout")

	// ErrShutdown is returned by RegisterRequest once the manager has been
	// shut down, and completes every handle still outstanding at shutdown.
	ErrShutdown = errors.New("correlation: manager shut down")
)

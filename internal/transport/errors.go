package transport

import "errors"

var (
	// ErrClosed is returned by Send (and by Start, once the transport has
	// already reached StateClosed).
	ErrClosed = errors.New("transport: closed")

	// ErrSendTimeout is returned by Send when the underlying writer does
	// not accept the message within the configured write timeout.
	ErrSendTimeout = errors.New("transport: send timeout")
)

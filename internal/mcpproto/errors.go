package mcpproto

import "errors"

var (
	// ErrNotInitialized names the case of a method other than "initialize"
	// or "ping" arriving before the session is Ready. Handle answers that
	// case with a CodeInvalidRequest "session not initialized" response
	// and does not return this error.
	ErrNotInitialized = errors.New("mcpproto: session not initialized")

	// ErrAlreadyInitializing is returned by the initialize handler for an
	// "initialize" request that arrives while the session is still
	// Initialising; Handle reports it as a CodeProviderError response.
	ErrAlreadyInitializing = errors.New("mcpproto: initialize already in progress")

	// ErrSessionClosed is returned by the initialize handler when the
	// session is Closed by the time it runs. Handle checks for a Closed
	// session first and answers any method on one with a
	// CodeInvalidRequest "session closed" response.
	ErrSessionClosed = errors.New("mcpproto: session closed")

	// ErrCapabilityNotNegotiated names the case of a method whose required
	// capability is not in the negotiated set, regardless of whether a
	// provider could otherwise serve it. Handle answers that case with a
	// CodeMethodNotFound "capability not negotiated" response and does
	// not return this error.
	ErrCapabilityNotNegotiated = errors.New("mcpproto: capability not negotiated")

	// ErrMethodNotFound names the case of a method absent from the
	// dispatch table entirely. Handle answers that case with a
	// CodeMethodNotFound "method not found" response and does not return
	// this error.
	ErrMethodNotFound = errors.New("mcpproto: method not found")
)

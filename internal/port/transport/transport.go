// Package transport defines the transport-agnostic contract shared by every
// inbound adapter (stdio, HTTP): the message handler a transport is
// configured with, the per-message context it hands that handler, and the
// lifecycle states a transport moves through.
//
// Generalized from internal/adapter/outbound/mcp.HTTPClient's clientState
// enum (New/Started/Closed) and MessageInterceptor.Intercept, extended with
// the Running/Idle split and the two notification hooks this module's
// transports require.
package transport

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/mcpcore/mcpcore/pkg/jsonrpc"
)

// State is a transport's lifecycle stage.
type State int

const (
	// StateNew is the initial state before Start is called.
	StateNew State = iota
	// StateStarted means Start has returned successfully.
	StateStarted
	// StateRunning means a handler invocation is currently in flight.
	StateRunning
	// StateIdle means the transport is started but no handler invocation
	// is currently in flight.
	StateIdle
	// StateClosing means Close has been called and in-flight work is
	// being drained.
	StateClosing
	// StateClosed is the terminal state.
	StateClosed
)

// String renders the state for logging.
func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateStarted:
		return "started"
	case StateRunning:
		return "running"
	case StateIdle:
		return "idle"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// StdioPayload carries no transport-specific metadata: stdio is a single
// synthetic session per process.
type StdioPayload struct{}

// HTTPPayload carries the per-request metadata an HTTP-backed handler may
// need that a stdio handler never sees.
type HTTPPayload struct {
	Method string
	Path   string
	Header http.Header
	Query  url.Values
}

// Context is the per-message context a transport hands its handler,
// parameterized over the transport-specific payload (StdioPayload or
// HTTPPayload).
type Context[C any] struct {
	SessionID  string
	ReceivedAt time.Time
	RemoteAddr string
	Metadata   map[string]any
	Payload    C
}

// MessageHandler is configured on a transport exactly once before Start.
// It receives every decoded inbound message paired with its Context, and is
// additionally notified of transport errors and of the close event.
// Implementations must be safe to invoke concurrently across sessions;
// invocations for a single session are always sequential.
type MessageHandler[Ctx any] interface {
	// HandleMessage processes one decoded inbound message and returns the
	// message to send back, if any (nil for a notification with no reply).
	HandleMessage(ctx context.Context, msg jsonrpc.Message, mctx Context[Ctx]) (jsonrpc.Message, error)

	// HandleError is invoked when the transport observes an error it
	// cannot itself recover from (decode failure above the handler's
	// ability to skip-and-continue, write failure, etc).
	HandleError(ctx context.Context, err error)

	// HandleClose is invoked exactly once when the transport reaches
	// StateClosed.
	HandleClose(ctx context.Context)
}

// Transport is the lifecycle contract every inbound adapter implements.
// States move New -> Started -> (Running <-> Idle) -> Closing -> Closed.
type Transport interface {
	// Start moves New to Started. Idempotent if already Started; fails if
	// the transport was already Closed.
	Start(ctx context.Context) error

	// Send transmits a message. Legal only in Started/Running/Idle; fails
	// with ErrClosed otherwise, and with ErrSendTimeout if the underlying
	// writer can't accept it within the configured write timeout.
	Send(ctx context.Context, msg jsonrpc.Message) error

	// Close moves any state to Closed, draining or cancelling in-flight
	// work. Safe to call more than once.
	Close() error

	// WaitForCompletion blocks until the transport reaches StateClosed.
	WaitForCompletion(ctx context.Context) error

	// State reports the transport's current lifecycle stage.
	State() State
}

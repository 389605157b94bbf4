// Package mcpproto implements the per-session MCP protocol state machine:
// the initialize handshake, capability negotiation, and the method
// dispatch table that routes resources/tools/prompts/logging calls to the
// provider traits in internal/port/provider.
package mcpproto

import (
	"log/slog"
	"sync"

	"github.com/mcpcore/mcpcore/internal/port/provider"
)

// State is a session's position in the protocol handshake.
type State int

const (
	StateUninitialised State = iota
	StateInitialising
	StateReady
	StateClosed
)

// String renders State for logging.
func (s State) String() string {
	switch s {
	case StateUninitialised:
		return "uninitialised"
	case StateInitialising:
		return "initialising"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Providers bundles the four optional provider traits a Session dispatches
// to. A nil field means that provider was never wired; a method requiring
// it behaves as if the capability were unsupported even if the client and
// server both declared support for the family in the abstract.
type Providers struct {
	Resources provider.ResourceProvider
	Tools     provider.ToolProvider
	Prompts   provider.PromptProvider
	Logging   provider.LoggingHandler
}

// Session tracks one client connection's handshake state, negotiated
// capabilities, and provider bindings. A Session is driven by exactly one
// goroutine at a time per spec.md's per-session in-order delivery
// guarantee; the mutex here guards state visible to concurrent readers
// (e.g. a health check or metrics sweep), not concurrent dispatch.
type Session struct {
	mu sync.Mutex

	state        State
	version      Version
	capabilities Capabilities

	supported  Capabilities
	serverInfo ServerInfo
	providers  Providers
	logger     *slog.Logger
}

// NewSession creates a Session advertising supported as its declared
// capability set and serverInfo in the initialize response.
func NewSession(supported Capabilities, serverInfo ServerInfo, providers Providers, logger *slog.Logger) *Session {
	return &Session{
		state:      StateUninitialised,
		supported:  supported,
		serverInfo: serverInfo,
		providers:  providers,
		logger:     logger,
	}
}

// State returns the session's current handshake state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Capabilities returns the negotiated capability set. Zero value until
// initialize completes.
func (s *Session) Capabilities() Capabilities {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capabilities
}

// Close transitions the session to Closed. Idempotent; safe to call from
// a transport's close path regardless of current state ("Any --
// transport close --> Closed").
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateClosed
}

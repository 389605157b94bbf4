// Package transport provides the lifecycle state machine shared by every
// inbound adapter (stdio, HTTP): New -> Started -> (Running <-> Idle) ->
// Closing -> Closed.
//
// Grounded on internal/adapter/outbound/mcp.HTTPClient's clientState enum
// and its idempotent Start/Close plus wg.Wait()-based drain on close;
// generalized from that single outbound client into a reusable component
// embedded by both inbound adapters, with Running/Idle tracked by an
// in-flight handler-invocation WaitGroup instead of a single started/closed
// bit.
package transport

import (
	"context"
	"sync"

	porttransport "github.com/mcpcore/mcpcore/internal/port/transport"
)

// StateMachine implements the New/Started/Running/Idle/Closing/Closed
// lifecycle. Adapters embed it, call BeginWork/EndWork around each handler
// invocation, and call Start/Close/WaitForCompletion/State directly.
type StateMachine struct {
	mu    sync.Mutex
	state porttransport.State
	wg    sync.WaitGroup

	closeOnce sync.Once
	closed    chan struct{}
}

// NewStateMachine returns a StateMachine in StateNew.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		state:  porttransport.StateNew,
		closed: make(chan struct{}),
	}
}

// Start moves New to Started. Idempotent once Started; fails if Closing or
// Closed.
func (s *StateMachine) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case porttransport.StateNew:
		s.state = porttransport.StateStarted
		return nil
	case porttransport.StateStarted, porttransport.StateRunning, porttransport.StateIdle:
		return nil
	default:
		return ErrClosed
	}
}

// CanSend reports whether the transport is in a state where Send is legal
// (Started, Running, or Idle).
func (s *StateMachine) CanSend() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case porttransport.StateStarted, porttransport.StateRunning, porttransport.StateIdle:
		return true
	default:
		return false
	}
}

// BeginWork records that a handler invocation is starting, transitioning
// Started/Idle to Running. Returns false if the transport is already
// closing or closed, in which case the caller must not invoke the handler.
func (s *StateMachine) BeginWork() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case porttransport.StateStarted, porttransport.StateIdle, porttransport.StateRunning:
		s.state = porttransport.StateRunning
		s.wg.Add(1)
		return true
	default:
		return false
	}
}

// EndWork records that a handler invocation finished. Once no invocation
// remains in flight the state returns to Idle, unless Close has already
// moved it to Closing/Closed.
func (s *StateMachine) EndWork() {
	s.mu.Lock()
	if s.state == porttransport.StateRunning {
		s.state = porttransport.StateIdle
	}
	s.mu.Unlock()
	s.wg.Done()
}

// Close moves the state machine to Closing, blocks until every in-flight
// handler invocation recorded via BeginWork/EndWork has completed, then
// moves to Closed and unblocks WaitForCompletion. Safe to call more than
// once; later calls block until the first completes, then return
// immediately. The read loop itself must still be cancelled by the caller
// — this only drains handler invocations already admitted.
func (s *StateMachine) Close() {
	s.mu.Lock()
	if s.state == porttransport.StateClosing || s.state == porttransport.StateClosed {
		s.mu.Unlock()
		<-s.closed
		return
	}
	s.state = porttransport.StateClosing
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	s.state = porttransport.StateClosed
	s.mu.Unlock()
	s.closeOnce.Do(func() { close(s.closed) })
}

// WaitForCompletion blocks until Close has completed the transition to
// StateClosed, or ctx is done.
func (s *StateMachine) WaitForCompletion(ctx context.Context) error {
	select {
	case <-s.closed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State reports the current lifecycle stage.
func (s *StateMachine) State() porttransport.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

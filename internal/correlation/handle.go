package correlation

import (
	"context"

	"github.com/mcpcore/mcpcore/pkg/jsonrpc"
)

// Outcome is what a pending request resolves to: a response, or an error
// drawn from this package's sentinel set (ErrTimeout, ErrCancelled,
// ErrShutdown) or surfaced from the transport.
type Outcome struct {
	Response *jsonrpc.Response
	Err      error
}

// CompletionHandle is the future-like handle returned by RegisterRequest.
// It resolves exactly once, whether by a matching response, a timeout, an
// explicit cancel, or manager shutdown.
type CompletionHandle struct {
	id  jsonrpc.ID
	mgr *Manager
	ch  <-chan Outcome
}

// ID returns the request id this handle was registered under.
func (h *CompletionHandle) ID() jsonrpc.ID {
	return h.id
}

// Wait blocks until the handle completes or ctx is cancelled. A cancelled
// ctx also cancels the underlying pending request, so the manager does not
// carry it past the caller's own deadline.
func (h *CompletionHandle) Wait(ctx context.Context) (*jsonrpc.Response, error) {
	select {
	case out, ok := <-h.ch:
		if !ok {
			return nil, ErrShutdown
		}
		return out.Response, out.Err
	case <-ctx.Done():
		h.mgr.Cancel(h.id)
		return nil, ctx.Err()
	}
}

// Package engine composes the per-session protocol dispatcher
// (internal/mcpproto) with a chain of cross-cutting middleware — rate
// limiting, tool policy, audit — the same way the reference chains its
// proxy.MessageInterceptor stages, but expressed as plain composable
// HandleFunc wrappers over jsonrpc.Message instead of a named interface,
// so a caller can build exactly the stages it needs (stdio has none of
// them; HTTP has all three).
package engine

import (
	"context"

	"github.com/mcpcore/mcpcore/pkg/jsonrpc"
)

// HandleFunc processes one decoded message and returns the message to
// send back, or nil for a notification that expects no reply.
type HandleFunc func(ctx context.Context, msg jsonrpc.Message) (jsonrpc.Message, error)

// Middleware wraps a HandleFunc with cross-cutting behavior.
type Middleware func(next HandleFunc) HandleFunc

// Chain composes middleware in the order given: the first middleware is
// outermost and runs first. Mirrors the reference HTTP transport's
// "Metrics -> RequestID -> RealIP -> DNSRebinding -> APIKey -> Handler"
// comment, generalized from http.Handler wrapping to HandleFunc wrapping.
func Chain(mws ...Middleware) Middleware {
	return func(final HandleFunc) HandleFunc {
		h := final
		for i := len(mws) - 1; i >= 0; i-- {
			h = mws[i](h)
		}
		return h
	}
}

// requestMetaKey is the context key under which RequestMeta is stored.
type requestMetaKey struct{}

// RequestMeta carries the per-request identity/session facts the
// middleware stages need but that jsonrpc.Message itself does not carry:
// who is calling, over what session, from where. Adapters populate this
// from their auth/session-binding step before calling Engine.Handle.
type RequestMeta struct {
	SessionID    string
	IdentityID   string
	IdentityName string
	Roles        []string
	RemoteAddr   string
}

// WithRequestMeta attaches m to ctx for downstream middleware to read.
func WithRequestMeta(ctx context.Context, m RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, m)
}

// RequestMetaFromContext returns the RequestMeta attached to ctx, or the
// zero value if none was attached.
func RequestMetaFromContext(ctx context.Context) RequestMeta {
	m, _ := ctx.Value(requestMetaKey{}).(RequestMeta)
	return m
}

// Engine is a session's dispatcher together with its configured
// middleware chain.
type Engine struct {
	handle HandleFunc
}

// New builds an Engine that runs mws (outermost first) around final.
func New(final HandleFunc, mws ...Middleware) *Engine {
	return &Engine{handle: Chain(mws...)(final)}
}

// Handle runs msg through the full middleware chain and the underlying
// session dispatcher.
func (e *Engine) Handle(ctx context.Context, msg jsonrpc.Message) (jsonrpc.Message, error) {
	return e.handle(ctx, msg)
}

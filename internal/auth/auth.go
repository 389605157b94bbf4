// Package auth defines the generic authentication strategy contract
// composed by every inbound adapter: a Strategy authenticates a
// transport-specific request shape into an Context carrying
// strategy-specific data, and can be asked to validate a context it
// produced earlier (for session-cached contexts).
//
// Concrete strategies live in oauth2 and apikey.
package auth

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy shared by every strategy. Strategies return one of these
// (wrapped with more specific detail via fmt.Errorf's %w) rather than
// inventing their own sentinel per failure mode.
var (
	ErrMissingCredentials = errors.New("auth: missing credentials")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrUnsupported        = errors.New("auth: unsupported")
	ErrAuthTimeout        = errors.New("auth: timeout")
	ErrAuthConfiguration  = errors.New("auth: configuration")
	ErrAuthInternal       = errors.New("auth: internal error")
)

// Context is the result of a successful authentication, parameterized
// over the strategy-specific data type D (an oauth2 claim set, an API-key
// identity, etc).
type Context[D any] struct {
	Method    string
	Data      D
	Metadata  map[string]any
	CreatedAt time.Time
	ExpiresAt *time.Time
	RequestID string
}

// IsExpired reports whether the context has an expiry and it has passed.
func (c Context[D]) IsExpired(now time.Time) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return now.After(*c.ExpiresAt)
}

// Strategy authenticates a request of type Req into a Context[Data].
// Validate re-checks a context produced earlier (e.g. on every message of
// a long-lived session) without repeating the full authentication work.
type Strategy[Req, Data any] interface {
	Authenticate(ctx context.Context, req Req) (Context[Data], error)
	Validate(authCtx Context[Data]) bool
}

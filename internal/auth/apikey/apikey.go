// Package apikey adapts the domain API-key validator
// (internal/domain/auth.APIKeyService) to the generic auth.Strategy
// contract, adding the pluggable key-source abstraction (bearer header,
// named header, query parameter) spec.md requires but the domain service
// itself never had to care about.
package apikey

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mcpcore/mcpcore/internal/auth"
	domainauth "github.com/mcpcore/mcpcore/internal/domain/auth"
)

// Identity is the strategy-specific data carried in a successful auth
// Context: the resolved identity behind the validated key.
type Identity = domainauth.Identity

// Source names where the request-bound key is read from.
type Source int

const (
	// SourceBearer reads "Authorization: Bearer <key>", case-insensitive.
	SourceBearer Source = iota
	// SourceHeader reads a configurable named header.
	SourceHeader
	// SourceQuery reads a configurable query parameter.
	SourceQuery
)

// Request is the transport-agnostic shape this strategy authenticates:
// whatever headers and query values the adapter extracted from the
// inbound connection (an HTTP request, or a synthetic stdio request with
// Header pre-populated from configuration).
type Request struct {
	Header http.Header
	Query  url.Values
}

// Config selects where the key comes from.
type Config struct {
	Source     Source
	HeaderName string // used when Source == SourceHeader; default "X-API-Key"
	QueryParam string // used when Source == SourceQuery; default "api_key"
}

// Strategy implements auth.Strategy[Request, *Identity].
type Strategy struct {
	svc *domainauth.APIKeyService
	cfg Config
}

// NewStrategy creates a Strategy backed by svc.
func NewStrategy(svc *domainauth.APIKeyService, cfg Config) *Strategy {
	if cfg.HeaderName == "" {
		cfg.HeaderName = "X-API-Key"
	}
	if cfg.QueryParam == "" {
		cfg.QueryParam = "api_key"
	}
	return &Strategy{svc: svc, cfg: cfg}
}

func (s *Strategy) extract(req Request) (string, error) {
	switch s.cfg.Source {
	case SourceHeader:
		v := req.Header.Get(s.cfg.HeaderName)
		if v == "" {
			return "", auth.ErrMissingCredentials
		}
		return v, nil
	case SourceQuery:
		v := req.Query.Get(s.cfg.QueryParam)
		if v == "" {
			return "", auth.ErrMissingCredentials
		}
		return v, nil
	default:
		header := req.Header.Get("Authorization")
		if header == "" {
			return "", auth.ErrMissingCredentials
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", fmt.Errorf("%w: expected bearer token", auth.ErrInvalidCredentials)
		}
		if parts[1] == "" {
			return "", auth.ErrMissingCredentials
		}
		return parts[1], nil
	}
}

// Authenticate extracts a key per the configured Source and validates it
// against the backing store.
func (s *Strategy) Authenticate(ctx context.Context, req Request) (auth.Context[*Identity], error) {
	key, err := s.extract(req)
	if err != nil {
		return auth.Context[*Identity]{}, err
	}

	identity, err := s.svc.Validate(ctx, key)
	if err != nil {
		if errors.Is(err, domainauth.ErrInvalidKey) {
			return auth.Context[*Identity]{}, fmt.Errorf("%w: %v", auth.ErrInvalidCredentials, err)
		}
		return auth.Context[*Identity]{}, fmt.Errorf("%w: %v", auth.ErrAuthInternal, err)
	}

	return auth.Context[*Identity]{
		Method:    "apikey",
		Data:      identity,
		CreatedAt: time.Now(),
	}, nil
}

// Validate reports whether a previously produced context is still usable.
// API-key contexts never expire on their own — revocation is checked at
// Authenticate time against the store — so this only guards against a
// zero-value context slipping through.
func (s *Strategy) Validate(authCtx auth.Context[*Identity]) bool {
	return authCtx.Data != nil
}

var _ auth.Strategy[Request, *Identity] = (*Strategy)(nil)

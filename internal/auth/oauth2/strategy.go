// Package oauth2 implements the OAuth2/JWT authentication strategy: bearer
// extraction, RS256 verification against a JWKS endpoint, and claim
// validation (exp/nbf/aud/iss with configurable clock leeway).
package oauth2

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mcpcore/mcpcore/internal/auth"
)

// Config configures an OAuth2/JWT Strategy.
type Config struct {
	JWKSURL          string
	ExpectedAudience string
	ExpectedIssuer   string
	AllowedAlgorithms []string // default: RS256
	ClockLeeway      time.Duration
	JWKSCacheTTL     time.Duration
}

// Claims is the strategy-specific data carried in a successful auth
// Context: the subset of the token's claims the core cares about.
type Claims struct {
	Subject string
	Scopes  []string
	Expires time.Time
}

// HasScope reports whether claims carries scope, directly or via the
// "mcp:*" wildcard covering scope's namespace (used by ScopeBasedPolicy).
func (c Claims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
		if idx := strings.Index(s, ":*"); idx >= 0 && strings.HasPrefix(scope, s[:idx+1]) {
			return true
		}
	}
	return false
}

// Request is the transport-agnostic shape this strategy authenticates.
type Request struct {
	Header http.Header
}

// Strategy implements auth.Strategy[Request, Claims].
type Strategy struct {
	cfg   Config
	cache *JWKSCache
}

// NewStrategy creates an OAuth2/JWT Strategy backed by a JWKS cache for
// cfg.JWKSURL.
func NewStrategy(cfg Config, hc *http.Client) *Strategy {
	if len(cfg.AllowedAlgorithms) == 0 {
		cfg.AllowedAlgorithms = []string{"RS256"}
	}
	return &Strategy{
		cfg:   cfg,
		cache: NewJWKSCache(cfg.JWKSURL, cfg.JWKSCacheTTL, hc),
	}
}

func extractBearerToken(header http.Header) (string, error) {
	value := header.Get("Authorization")
	if value == "" {
		return "", auth.ErrMissingCredentials
	}
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", fmt.Errorf("%w: expected bearer token", auth.ErrInvalidCredentials)
	}
	if parts[1] == "" {
		return "", auth.ErrMissingCredentials
	}
	return parts[1], nil
}

// Authenticate extracts a bearer token, verifies it against the JWKS, and
// validates exp/nbf/aud/iss.
func (s *Strategy) Authenticate(ctx context.Context, req Request) (auth.Context[Claims], error) {
	raw, err := extractBearerToken(req.Header)
	if err != nil {
		return auth.Context[Claims]{}, err
	}

	token, err := s.parseAndVerify(ctx, raw, false)
	if err != nil {
		return auth.Context[Claims]{}, err
	}

	claims, err := toClaims(token)
	if err != nil {
		return auth.Context[Claims]{}, fmt.Errorf("%w: %v", auth.ErrInvalidCredentials, err)
	}

	expires := claims.Expires
	return auth.Context[Claims]{
		Method:    "oauth2",
		Data:      claims,
		CreatedAt: time.Now(),
		ExpiresAt: &expires,
	}, nil
}

// Validate reports whether a previously produced context has not yet
// expired.
func (s *Strategy) Validate(authCtx auth.Context[Claims]) bool {
	return !authCtx.IsExpired(time.Now())
}

func (s *Strategy) parseAndVerify(ctx context.Context, raw string, retried bool) (*jwt.Token, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(s.cfg.AllowedAlgorithms),
		jwt.WithLeeway(s.cfg.ClockLeeway),
	}
	if s.cfg.ExpectedAudience != "" {
		opts = append(opts, jwt.WithAudience(s.cfg.ExpectedAudience))
	}
	if s.cfg.ExpectedIssuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.ExpectedIssuer))
	}

	token, err := jwt.Parse(raw, s.keyFunc(ctx), opts...)
	if err != nil {
		if !retried && isUnknownKeyErr(err) {
			if refreshErr := s.cache.ForceRefresh(ctx); refreshErr == nil {
				return s.parseAndVerify(ctx, raw, true)
			}
		}
		return nil, fmt.Errorf("%w: %v", auth.ErrInvalidCredentials, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%w: token failed validation", auth.ErrInvalidCredentials)
	}
	return token, nil
}

func (s *Strategy) keyFunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, fmt.Errorf("token header has no kid")
		}
		return s.cache.GetKey(ctx, kid)
	}
}

func isUnknownKeyErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "unknown key id")
}

func toClaims(token *jwt.Token) (Claims, error) {
	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, fmt.Errorf("unexpected claims type %T", token.Claims)
	}

	subject, _ := mapClaims.GetSubject()

	var expires time.Time
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		expires = exp.Time
	}

	var scopes []string
	switch v := mapClaims["scope"].(type) {
	case string:
		scopes = strings.Fields(v)
	}
	if raw, ok := mapClaims["scopes"].([]any); ok {
		for _, item := range raw {
			if s, ok := item.(string); ok {
				scopes = append(scopes, s)
			}
		}
	}

	return Claims{Subject: subject, Scopes: scopes, Expires: expires}, nil
}

var _ auth.Strategy[Request, Claims] = (*Strategy)(nil)

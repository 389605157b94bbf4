package httptransport

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/mcpcore/mcpcore/internal/auth"
	"github.com/mcpcore/mcpcore/internal/auth/apikey"
	"github.com/mcpcore/mcpcore/internal/ctxkey"
)

type requestIDContextKey struct{}

// RequestIDKey is the context key the request ID is stored under.
var RequestIDKey = requestIDContextKey{}

// LoggerKey is the context key the per-request enriched logger is stored
// under, shared with every other adapter via ctxkey so cross-package
// lookups never need to import this package.
var LoggerKey = ctxkey.LoggerKey{}

// RequestIDMiddleware extracts or mints an X-Request-ID, enriches the
// logger with it, and echoes it on the response.
func RequestIDMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}

			enrichedLogger := logger.With("request_id", requestID)

			ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
			ctx = context.WithValue(ctx, LoggerKey, enrichedLogger)

			w.Header().Set("X-Request-ID", requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoggerFromContext returns the enriched logger RequestIDMiddleware stored,
// or slog.Default() if none is present.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// DNSRebindingProtection blocks any request carrying an Origin header not
// in the allowlist. Requests without an Origin header (same-origin,
// non-browser clients) always pass.
func DNSRebindingProtection(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := allowed[origin]; !ok {
				http.Error(w, "Forbidden: origin not allowed", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type identityContextKey struct{}

// identityInfo is what AuthMiddleware stores in context for handlePost's
// authz.Policy check and for building the engine.RequestMeta passed
// downstream to the rate-limit/policy/audit middleware.
type identityInfo struct {
	identity      *apikey.Identity
	authenticated bool
}

// AuthMiddleware authenticates the request's bearer/header/query credential
// via strategy and stashes the result in context. Unlike the reference's
// APIKeyMiddleware, which only stashed the raw token for a later
// interceptor to validate, this authenticates eagerly — but it still never
// rejects the request itself: authorization (which methods an identity may
// call) is a decision for authz.Policy, made once the JSON-RPC method is
// known inside handlePost, never at the HTTP-request layer (see
// internal/authz's package doc on why method authorization never looks at
// the transport).
func AuthMiddleware(strategy auth.Strategy[apikey.Request, *apikey.Identity], logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := apikey.Request{Header: r.Header, Query: r.URL.Query()}
			authCtx, err := strategy.Authenticate(r.Context(), req)

			info := identityInfo{}
			if err == nil {
				info.identity = authCtx.Data
				info.authenticated = true
			} else {
				logger.Debug("request not authenticated", "error", err)
			}

			ctx := context.WithValue(r.Context(), identityContextKey{}, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func identityFromContext(ctx context.Context) (*apikey.Identity, bool) {
	info, _ := ctx.Value(identityContextKey{}).(identityInfo)
	return info.identity, info.authenticated
}

type realIPContextKey struct{}

// RealIPMiddleware extracts the caller's address for rate limiting and
// audit logging: X-Forwarded-For (first hop only, to resist spoofing),
// then X-Real-IP, then r.RemoteAddr.
func RealIPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := extractRealIP(r)
		ctx := context.WithValue(r.Context(), realIPContextKey{}, ip)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func realIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(realIPContextKey{}).(string)
	return ip
}

func extractRealIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			if ip := strings.TrimSpace(ips[0]); ip != "" {
				return ip
			}
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

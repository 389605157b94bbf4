// Package httptransport implements the MCP Streamable HTTP transport
// binding: POST for client->server calls, GET for an SSE stream of
// server-initiated messages, DELETE to terminate a session, OPTIONS for
// CORS preflight.
//
// Grounded on internal/adapter/inbound/http/{transport,handler,
// middleware}.go: the middleware ordering (Metrics -> RequestID -> RealIP
// -> DNSRebinding -> Auth -> Handler), the SSE fan-out idiom, the
// Mcp-Session-Id/MCP-Protocol-Version header contract, CORS handling, and
// the optional admin/gateway catch-all routing are all carried over
// unchanged. What differs is the terminal step: instead of a
// *service.ProxyService piping bytes to an upstream process, each request
// is bound to an internal/mcpproto.Session (looked up or minted by
// Mcp-Session-Id) and dispatched through a shared internal/engine.Engine
// that applies rate-limit/policy/audit middleware before reaching it.
package httptransport

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mcpcore/mcpcore/internal/auth"
	"github.com/mcpcore/mcpcore/internal/auth/apikey"
	"github.com/mcpcore/mcpcore/internal/authz"
	"github.com/mcpcore/mcpcore/internal/domain/session"
	"github.com/mcpcore/mcpcore/internal/engine"
	"github.com/mcpcore/mcpcore/internal/mcpproto"
	"github.com/mcpcore/mcpcore/internal/port/inbound"
)

var _ inbound.ProxyService = (*Transport)(nil)

// Transport is the inbound HTTP adapter for the MCP Streamable HTTP
// transport.
type Transport struct {
	newSession func() *mcpproto.Session
	engine     *engine.Engine
	authStrategy auth.Strategy[apikey.Request, *apikey.Identity]
	policy       authz.Policy[*apikey.Identity]

	server             *http.Server
	addr               string
	allowedOrigins     []string
	certFile           string
	keyFile            string
	sessions           *sessionManager
	logger             *slog.Logger
	extraHandler       http.Handler
	httpGatewayHandler http.Handler
	metrics            *Metrics
	healthChecker      *HealthChecker
	upstreamsHandler   *UpstreamsHandler
}

// Option configures a Transport.
type Option func(*Transport)

// WithAddr sets the listen address. Default "127.0.0.1:8080".
func WithAddr(addr string) Option { return func(t *Transport) { t.addr = addr } }

// WithTLS enables HTTPS with the given certificate and key files.
func WithTLS(certFile, keyFile string) Option {
	return func(t *Transport) { t.certFile, t.keyFile = certFile, keyFile }
}

// WithAllowedOrigins configures DNS-rebinding-protection's allowlist. An
// empty list blocks every request that carries an Origin header at all.
func WithAllowedOrigins(origins []string) Option {
	return func(t *Transport) { t.allowedOrigins = origins }
}

// WithLogger sets the transport's base logger.
func WithLogger(logger *slog.Logger) Option { return func(t *Transport) { t.logger = logger } }

// WithExtraHandler routes /admin/* to h.
func WithExtraHandler(h http.Handler) Option { return func(t *Transport) { t.extraHandler = h } }

// WithHTTPGatewayHandler routes everything not matched by /admin, /health,
// /metrics, /upstreams, /favicon.ico, or /mcp to h, and intercepts CONNECT requests directly (Go's
// ServeMux cannot route CONNECT: its r.URL.Path is empty).
func WithHTTPGatewayHandler(h http.Handler) Option {
	return func(t *Transport) { t.httpGatewayHandler = h }
}

// WithHealthChecker sets the /health handler. Falls back to an always-ok
// handler when unset.
func WithHealthChecker(hc *HealthChecker) Option { return func(t *Transport) { t.healthChecker = hc } }

// WithUpstreamsHandler sets the /upstreams introspection handler. Unset
// means no /upstreams route is registered at all.
func WithUpstreamsHandler(h *UpstreamsHandler) Option {
	return func(t *Transport) { t.upstreamsHandler = h }
}

// WithAuthStrategy sets the credential strategy AuthMiddleware uses to
// authenticate requests. Defaults to a strategy that never authenticates
// anything, which is only safe when paired with a permissive Policy.
func WithAuthStrategy(s auth.Strategy[apikey.Request, *apikey.Identity]) Option {
	return func(t *Transport) { t.authStrategy = s }
}

// WithPolicy sets the authz.Policy method calls are checked against.
// Defaults to authz.NoAuthorizationPolicy (allow everything).
func WithPolicy(p authz.Policy[*apikey.Identity]) Option {
	return func(t *Transport) { t.policy = p }
}

// WithSessionTimeout sets the idle timeout after which a session becomes
// unreachable (spec's "last_seen_at + idle_timeout, whichever comes
// first"). Defaults to session.DefaultTimeout (30m).
func WithSessionTimeout(timeout time.Duration) Option {
	return func(t *Transport) { t.sessions = newSessionManager(timeout) }
}

// New builds a Transport. newSession mints a fresh *mcpproto.Session for
// each "initialize" call with no existing Mcp-Session-Id; mws is the
// cross-cutting middleware chain (rate limit, tool policy, audit) applied
// around every session's dispatch.
func New(newSession func() *mcpproto.Session, mws []engine.Middleware, opts ...Option) *Transport {
	t := &Transport{
		newSession:     newSession,
		engine:         engine.New(mcpDispatcher, mws...),
		authStrategy:   noopAuthStrategy{},
		policy:         authz.NoAuthorizationPolicy[*apikey.Identity]{},
		addr:           "127.0.0.1:8080",
		allowedOrigins: []string{},
		sessions:       newSessionManager(session.DefaultTimeout),
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// noopAuthStrategy never authenticates anything; it is the default when no
// WithAuthStrategy is given, matched against the default permissive policy.
type noopAuthStrategy struct{}

func (noopAuthStrategy) Authenticate(context.Context, apikey.Request) (auth.Context[*apikey.Identity], error) {
	return auth.Context[*apikey.Identity]{}, auth.ErrUnsupported
}
func (noopAuthStrategy) Validate(auth.Context[*apikey.Identity]) bool { return false }

// Start builds the middleware-wrapped mux and serves it until ctx is
// cancelled or the server itself errors.
func (t *Transport) Start(ctx context.Context) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	t.metrics = NewMetrics(reg)
	t.sessions.startSweep(ctx)

	// Middleware order (outermost first): Metrics -> RequestID -> RealIP
	// -> DNSRebinding -> Auth -> Handler.
	handler := mcpHandler(t)
	handler = AuthMiddleware(t.authStrategy, t.logger)(handler)
	handler = DNSRebindingProtection(t.allowedOrigins)(handler)
	handler = RealIPMiddleware(handler)
	handler = RequestIDMiddleware(t.logger)(handler)
	handler = MetricsMiddleware(t.metrics)(handler)

	mux := http.NewServeMux()
	if t.extraHandler != nil {
		mux.Handle("/admin/api/", t.extraHandler)
		mux.Handle("/admin/", t.extraHandler)
		mux.Handle("/admin", t.extraHandler)
	}
	if t.healthChecker != nil {
		mux.Handle("/health", t.healthChecker.Handler())
	} else {
		mux.Handle("/health", healthHandler())
	}
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	if t.upstreamsHandler != nil {
		mux.Handle("/upstreams", t.upstreamsHandler.Handler())
		mux.Handle("/upstreams/", t.upstreamsHandler.Handler())
	}
	mux.Handle("/favicon.ico", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	mux.Handle("/mcp", handler)
	mux.Handle("/mcp/", handler)
	if t.httpGatewayHandler != nil {
		mux.Handle("/", t.httpGatewayHandler)
	} else {
		mux.Handle("/", handler)
	}

	var root http.Handler = mux
	if t.httpGatewayHandler != nil {
		inner := root
		root = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodConnect {
				t.httpGatewayHandler.ServeHTTP(w, r)
				return
			}
			inner.ServeHTTP(w, r)
		})
	}

	t.server = &http.Server{Addr: t.addr, Handler: root}
	if t.certFile != "" && t.keyFile != "" {
		t.server.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if t.certFile != "" && t.keyFile != "" {
			t.logger.Info("starting HTTPS server", "addr", t.addr)
			err = t.server.ListenAndServeTLS(t.certFile, t.keyFile)
		} else {
			t.logger.Info("starting HTTP server", "addr", t.addr)
			err = t.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		t.logger.Info("context cancelled, shutting down HTTP server")
		return t.shutdown()
	case err := <-errCh:
		return err
	}
}

func (t *Transport) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	t.sessions.closeAll()

	if err := t.server.Shutdown(ctx); err != nil {
		t.logger.Error("error during server shutdown", "error", err)
		return err
	}
	t.logger.Info("HTTP server shutdown complete")
	return nil
}

// Close gracefully shuts down the transport. Safe to call even if Start
// never completed server setup.
func (t *Transport) Close() error {
	if t.server == nil {
		return nil
	}
	return t.shutdown()
}

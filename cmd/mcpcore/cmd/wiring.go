package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/mcpcore/mcpcore/internal/adapter/outbound/audit"
	mcpadapter "github.com/mcpcore/mcpcore/internal/adapter/outbound/mcp"
	"github.com/mcpcore/mcpcore/internal/adapter/outbound/memory"
	"github.com/mcpcore/mcpcore/internal/auth"
	"github.com/mcpcore/mcpcore/internal/auth/apikey"
	"github.com/mcpcore/mcpcore/internal/auth/oauth2"
	"github.com/mcpcore/mcpcore/internal/authz"
	"github.com/mcpcore/mcpcore/internal/config"
	domainaudit "github.com/mcpcore/mcpcore/internal/domain/audit"
	domainauth "github.com/mcpcore/mcpcore/internal/domain/auth"
	"github.com/mcpcore/mcpcore/internal/domain/policy"
	"github.com/mcpcore/mcpcore/internal/domain/ratelimit"
	"github.com/mcpcore/mcpcore/internal/domain/upstream"
	"github.com/mcpcore/mcpcore/internal/engine"
	"github.com/mcpcore/mcpcore/internal/mcpproto"
	"github.com/mcpcore/mcpcore/internal/port/outbound"
	"github.com/mcpcore/mcpcore/internal/service"
)

// runtimeDeps bundles everything a transport command needs to serve
// sessions: the provider bundle every mcpproto.Session dispatches to, the
// engine middleware chain applied around it, and (HTTP-only) the
// credential strategy and authorization policy AuthMiddleware checks
// against. newSession mints a fresh *mcpproto.Session per connection
// (stdio has exactly one; HTTP mints one per Mcp-Session-Id).
type runtimeDeps struct {
	newSession func() *mcpproto.Session
	mws        []engine.Middleware

	// rateLimiter is nil when cfg.RateLimit.Enabled is false. Exposed so a
	// transport's health endpoint can report the same limiter's occupancy
	// instead of standing up a second, always-empty one just to probe.
	rateLimiter *memory.MemoryRateLimiter

	// auditService is exposed for the same reason: health checks report its
	// real channel depth instead of a disconnected probe.
	auditService *service.AuditService

	// upstreamStore records the live configuration and connection status of
	// every upstream buildProviders wired up, so the HTTP transport's
	// /upstreams endpoint can report real state instead of echoing cfg back.
	upstreamStore *memory.MemoryUpstreamStore

	httpAuthStrategy auth.Strategy[apikey.Request, *apikey.Identity]
	httpPolicy       authz.Policy[*apikey.Identity]

	// oauth2Strategy is built whenever Auth.OAuth2.Enabled is set, but
	// internal/adapter/httptransport.Transport is fixed to
	// auth.Strategy[apikey.Request, *apikey.Identity] — making it generic
	// over the identity type is future work, so this is kept for that
	// day rather than thrown away once built. See DESIGN.md.
	oauth2Strategy *oauth2.Strategy

	closers []closer
}

type closer interface {
	Close() error
}

func (d *runtimeDeps) closeAll(logger *slog.Logger) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil {
			logger.Warn("error closing resource during shutdown", "error", err)
		}
	}
}

// buildRuntime wires every SPEC_FULL.md component together from cfg: the
// audit backend, rate limiter, auth strategy, CEL policy engine, and
// upstream provider (single client or multi-upstream router), then
// assembles the engine middleware chain and session factory shared by
// every transport.
func buildRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*runtimeDeps, error) {
	deps := &runtimeDeps{}

	auditStore, err := buildAuditService(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}
	deps.closers = append(deps.closers, auditStore)
	deps.auditService = auditStore

	limiter := memory.NewRateLimiterWithConfig(
		parseDurationDefault(cfg.RateLimit.CleanupInterval, 5*time.Minute, "rate_limit.cleanup_interval", logger),
		parseDurationDefault(cfg.RateLimit.MaxTTL, time.Hour, "rate_limit.max_ttl", logger),
	)
	if cfg.RateLimit.Enabled {
		limiter.StartCleanup(ctx)
		deps.rateLimiter = limiter
	}
	rateLimitCfg := ratelimit.RateLimitConfig{
		Rate:   maxInt(cfg.RateLimit.IPRate, cfg.RateLimit.UserRate),
		Burst:  maxInt(cfg.RateLimit.IPRate, cfg.RateLimit.UserRate),
		Period: time.Minute,
	}

	apikeyStrategy, oauth2Strategy := buildAuthStrategies(cfg)
	deps.httpAuthStrategy = apikeyStrategy
	deps.oauth2Strategy = oauth2Strategy

	deps.httpPolicy = buildAuthzPolicy(cfg)

	policyEngine, err := buildPolicyEngine(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("policy: %w", err)
	}

	providers, closers, upstreamStore, err := buildProviders(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("upstream: %w", err)
	}
	deps.closers = append(deps.closers, closers...)
	deps.upstreamStore = upstreamStore

	supported := capabilitiesFor(providers)
	serverInfo := mcpproto.ServerInfo{Name: "mcpcore", Version: Version}

	deps.newSession = func() *mcpproto.Session {
		return mcpproto.NewSession(supported, serverInfo, providers, logger)
	}

	deps.mws = []engine.Middleware{}
	if cfg.RateLimit.Enabled {
		deps.mws = append(deps.mws, engine.RateLimitMiddleware(limiter, rateLimitCfg, logger))
	}
	deps.mws = append(deps.mws,
		engine.ToolPolicyMiddleware(policyEngine, logger),
		engine.AuditMiddleware(auditStore, logger),
	)

	return deps, nil
}

// buildAuditService constructs the configured audit.AuditStore (stdout or
// file-backed) and wraps it in the async-batching service.AuditService,
// which itself satisfies audit.AuditStore — see DESIGN.md's A2 entry for
// why the wrapper, not the raw store, is what engine.AuditMiddleware gets.
func buildAuditService(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*service.AuditService, error) {
	var store domainaudit.AuditStore
	switch {
	case cfg.Audit.Output == "stdout" || cfg.Audit.Output == "":
		store = memory.NewAuditStore(cfg.Audit.BufferSize)
	case strings.HasPrefix(cfg.Audit.Output, "file://"):
		dir := cfg.AuditFile.Dir
		if dir == "" {
			dir = filepath.Dir(strings.TrimPrefix(cfg.Audit.Output, "file://"))
		}
		fileStore, err := audit.NewFileAuditStore(audit.AuditFileConfig{
			Dir:           dir,
			RetentionDays: cfg.AuditFile.RetentionDays,
			MaxFileSizeMB: cfg.AuditFile.MaxFileSizeMB,
			CacheSize:     cfg.AuditFile.CacheSize,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("open audit file store at %s: %w", dir, err)
		}
		store = fileStore
	case strings.HasPrefix(cfg.Audit.Output, "sqlite://"):
		path := strings.TrimPrefix(cfg.Audit.Output, "sqlite://")
		sqliteStore, err := audit.NewSQLiteAuditStore(path)
		if err != nil {
			return nil, fmt.Errorf("open audit sqlite store at %s: %w", path, err)
		}
		store = sqliteStore
	default:
		return nil, fmt.Errorf("unsupported audit output %q (want \"stdout\", \"file://path\", or \"sqlite://path\")", cfg.Audit.Output)
	}

	svc := service.NewAuditService(store, logger,
		service.WithChannelSize(cfg.Audit.ChannelSize),
		service.WithBatchSize(cfg.Audit.BatchSize),
		service.WithFlushInterval(parseDurationDefault(cfg.Audit.FlushInterval, time.Second, "audit.flush_interval", logger)),
		service.WithSendTimeout(parseDurationDefault(cfg.Audit.SendTimeout, 100*time.Millisecond, "audit.send_timeout", logger)),
		service.WithWarningThreshold(cfg.Audit.WarningThreshold),
	)
	svc.Start(ctx)
	return svc, nil
}

// buildAuthStrategies seeds an in-memory API-key store from cfg.Auth and
// builds the apikey.Strategy every transport's AuthMiddleware runs
// against. It also builds the oauth2.Strategy when configured, even
// though nothing currently consumes it — see runtimeDeps.oauth2Strategy.
func buildAuthStrategies(cfg *config.Config) (*apikey.Strategy, *oauth2.Strategy) {
	store := memory.NewAuthStore()
	for _, id := range cfg.Auth.Identities {
		roles := make([]domainauth.Role, len(id.Roles))
		for i, r := range id.Roles {
			roles[i] = domainauth.Role(r)
		}
		store.AddIdentity(&domainauth.Identity{ID: id.ID, Name: id.Name, Roles: roles})
	}
	for _, k := range cfg.Auth.APIKeys {
		store.AddKey(&domainauth.APIKey{Key: k.KeyHash, IdentityID: k.IdentityID})
	}

	keyCfg := apikey.Config{Source: apikey.SourceBearer}
	if cfg.Auth.HeaderName != "" {
		keyCfg = apikey.Config{Source: apikey.SourceHeader, HeaderName: cfg.Auth.HeaderName}
	}
	apikeyStrategy := apikey.NewStrategy(domainauth.NewAPIKeyService(store), keyCfg)

	var oauth2Strategy *oauth2.Strategy
	if cfg.Auth.OAuth2.Enabled {
		oauth2Strategy = oauth2.NewStrategy(oauth2.Config{
			JWKSURL:          cfg.Auth.OAuth2.JWKSURL,
			ExpectedAudience: cfg.Auth.OAuth2.Audience,
			ExpectedIssuer:   cfg.Auth.OAuth2.Issuer,
			JWKSCacheTTL:     15 * time.Minute,
		}, http.DefaultClient)
	}

	return apikeyStrategy, oauth2Strategy
}

// buildAuthzPolicy selects the method-level authz.Policy AuthMiddleware
// checks ahead of dispatch, per cfg.Authz.Policy ("none", "binary", or
// "scope" — SetDefaults fills in "binary" when unset). DevMode always
// forces NoAuthorizationPolicy regardless of the configured value, the
// same permissive override buildPolicyEngine applies to the CEL engine.
func buildAuthzPolicy(cfg *config.Config) authz.Policy[*apikey.Identity] {
	if cfg.DevMode {
		return authz.NoAuthorizationPolicy[*apikey.Identity]{}
	}

	switch cfg.Authz.Policy {
	case "none":
		return authz.NoAuthorizationPolicy[*apikey.Identity]{}
	case "scope":
		rules := make(map[string]authz.ScopeRule, len(cfg.Authz.ScopeMap))
		for method, r := range cfg.Authz.ScopeMap {
			rules[method] = authz.ScopeRule{RequiredScope: r.RequiredScope, Optional: r.Optional}
		}
		return authz.NewScopeBasedPolicy[*apikey.Identity](rules, cfg.Authz.DefaultAllow)
	default:
		return authz.BinaryAuthorizationPolicy[*apikey.Identity]{}
	}
}

// buildPolicyEngine seeds an in-memory CEL policy store from cfg.Policies.
// config.Config documents empty Policies as default-deny, but the kept
// CEL evaluator's own fallback (no matching rule) is default-*allow* —
// an admin-console-friendly default this core has no console for. Rather
// than change the evaluator's documented behavior, an explicit deny-all
// rule is seeded whenever the operator configured no policies at all
// (dev mode seeds its own allow-all via Config.SetDevDefaults instead).
func buildPolicyEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger) (policy.PolicyEngine, error) {
	store := memory.NewPolicyStore()

	policies := cfg.Policies
	if len(policies) == 0 && !cfg.DevMode {
		policies = []config.PolicyConfig{{
			Name: "default-deny",
			Rules: []config.RuleConfig{
				{Name: "deny-all", Condition: "true", Action: "deny"},
			},
		}}
	}

	for i, p := range policies {
		rules := make([]policy.Rule, len(p.Rules))
		for j, r := range p.Rules {
			rules[j] = policy.Rule{
				ID:        fmt.Sprintf("%s/%s", p.Name, r.Name),
				Name:      r.Name,
				Priority:  j,
				ToolMatch: "*",
				Condition: r.Condition,
				Action:    policy.Action(r.Action),
				CreatedAt: time.Now(),
			}
		}
		store.AddPolicy(&policy.Policy{
			ID:       p.Name,
			Name:     p.Name,
			Priority: i,
			Rules:    rules,
			Enabled:  true,
		})
	}

	return service.NewPolicyService(ctx, store, logger)
}

// buildProviders wires the outbound side: a single mcp.Provider when
// exactly one upstream is configured (advertising resources, tools, and
// prompts), or a mcp.Router aggregating cfg.Upstreams (tools only — Router
// implements provider.ToolProvider and has no resource or prompt methods).
// Every upstream it wires, single or routed, is also recorded in the
// returned memory.MemoryUpstreamStore so the HTTP transport's /upstreams
// endpoint has real connection state to report.
func buildProviders(ctx context.Context, cfg *config.Config, logger *slog.Logger) (mcpproto.Providers, []closer, *memory.MemoryUpstreamStore, error) {
	timeout := parseDurationDefault(cfg.Upstream.HTTPTimeout, 30*time.Second, "upstream.http_timeout", logger)
	store := memory.NewUpstreamStore()

	if len(cfg.Upstreams) > 0 {
		router := mcpadapter.NewRouter(logger)
		for _, u := range cfg.Upstreams {
			rec := upstreamRecord(u)
			conn, err := buildUpstreamConn(u)
			if err != nil {
				_ = router.Close()
				return mcpproto.Providers{}, nil, nil, err
			}
			client := mcpadapter.NewClient(conn, timeout, logger)
			if err := router.AddUpstream(ctx, u.Name, client); err != nil {
				_ = router.Close()
				return mcpproto.Providers{}, nil, nil, fmt.Errorf("add upstream %s: %w", u.Name, err)
			}
			rec.Status = upstream.StatusConnected
			rec.ToolCount = router.ToolCount(u.Name)
			_ = store.Add(ctx, rec)
		}
		return mcpproto.Providers{Tools: router}, []closer{router}, store, nil
	}

	rec := upstreamRecord(cfg.Upstream)
	if rec.Name == "" {
		rec.Name, rec.ID = "default", "default"
	}
	conn, err := buildUpstreamConn(cfg.Upstream)
	if err != nil {
		return mcpproto.Providers{}, nil, nil, err
	}
	client := mcpadapter.NewClient(conn, timeout, logger)
	if err := client.Start(ctx); err != nil {
		return mcpproto.Providers{}, nil, nil, fmt.Errorf("start upstream: %w", err)
	}
	rec.Status = upstream.StatusConnected
	_ = store.Add(ctx, rec)
	provider := mcpadapter.NewProvider(client)
	return mcpproto.Providers{
		Resources: provider,
		Tools:     provider,
		Prompts:   provider,
	}, []closer{client}, store, nil
}

// upstreamRecord translates a config.UpstreamConfig into the domain record
// buildProviders tracks in the upstream store, before a connection attempt
// has set its runtime Status.
func upstreamRecord(u config.UpstreamConfig) *upstream.Upstream {
	rec := &upstream.Upstream{
		ID:        u.Name,
		Name:      u.Name,
		Command:   u.Command,
		Args:      u.Args,
		URL:       u.HTTP,
		Enabled:   true,
		Status:    upstream.StatusConnecting,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if u.Command != "" {
		rec.Type = upstream.UpstreamTypeStdio
	} else {
		rec.Type = upstream.UpstreamTypeHTTP
	}
	return rec
}

func buildUpstreamConn(u config.UpstreamConfig) (outbound.MCPClient, error) {
	switch {
	case u.HTTP != "":
		return mcpadapter.NewHTTPClient(u.HTTP), nil
	case u.Command != "":
		return mcpadapter.NewStdioClient(u.Command, u.Args...), nil
	default:
		return nil, fmt.Errorf("upstream %q: either http or command must be set", u.Name)
	}
}

// capabilitiesFor advertises a capability family only when a provider for
// it is actually bound, matching mcpproto's "nil field = absent" contract
// rather than declaring support the runtime can't back.
func capabilitiesFor(p mcpproto.Providers) mcpproto.Capabilities {
	var c mcpproto.Capabilities
	if p.Resources != nil {
		c.Resources = &mcpproto.ResourcesCapability{Subscribe: true}
	}
	if p.Tools != nil {
		c.Tools = &mcpproto.ToolsCapability{}
	}
	if p.Prompts != nil {
		c.Prompts = &mcpproto.PromptsCapability{}
	}
	return c
}

// parseDurationDefault parses s, falling back to def (and logging why)
// when s is empty or malformed.
func parseDurationDefault(s string, def time.Duration, field string, logger *slog.Logger) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		logger.Warn("invalid duration, using default", "field", field, "value", s, "default", def, "error", err)
		return def
	}
	return d
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

package cmd

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/mcpcore/mcpcore/internal/auth/apikey"
	"github.com/mcpcore/mcpcore/internal/config"
	domainauth "github.com/mcpcore/mcpcore/internal/domain/auth"
	"github.com/mcpcore/mcpcore/internal/domain/policy"
	"github.com/mcpcore/mcpcore/internal/mcpproto"
	"github.com/mcpcore/mcpcore/internal/port/provider"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestMaxInt(t *testing.T) {
	cases := []struct{ a, b, want int }{
		{1, 2, 2},
		{5, 3, 5},
		{0, 0, 0},
		{-1, -5, -1},
	}
	for _, c := range cases {
		if got := maxInt(c.a, c.b); got != c.want {
			t.Errorf("maxInt(%d, %d) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestParseDurationDefault(t *testing.T) {
	logger := testLogger()

	if got := parseDurationDefault("", 5*time.Second, "field", logger); got != 5*time.Second {
		t.Errorf("empty string: got %v, want default 5s", got)
	}
	if got := parseDurationDefault("10s", 5*time.Second, "field", logger); got != 10*time.Second {
		t.Errorf("valid duration: got %v, want 10s", got)
	}
	if got := parseDurationDefault("not-a-duration", 5*time.Second, "field", logger); got != 5*time.Second {
		t.Errorf("invalid duration: got %v, want fallback default 5s", got)
	}
}

type fakeToolProvider struct{}

func (fakeToolProvider) ListTools(ctx context.Context) ([]provider.Tool, error) {
	return nil, nil
}
func (fakeToolProvider) CallTool(ctx context.Context, name string, arguments json.RawMessage) ([]provider.Content, error) {
	return nil, nil
}

func TestCapabilitiesFor_NilProvidersYieldNilCapabilities(t *testing.T) {
	c := capabilitiesFor(mcpproto.Providers{})
	if c.Resources != nil || c.Tools != nil || c.Prompts != nil {
		t.Errorf("capabilitiesFor(empty Providers) = %+v, want all nil", c)
	}
}

func TestCapabilitiesFor_ToolsOnly(t *testing.T) {
	c := capabilitiesFor(mcpproto.Providers{Tools: fakeToolProvider{}})
	if c.Tools == nil {
		t.Error("capabilitiesFor with Tools set should advertise ToolsCapability")
	}
	if c.Resources != nil || c.Prompts != nil {
		t.Errorf("capabilitiesFor should leave unwired families nil, got %+v", c)
	}
}

func TestBuildAuthzPolicy_DevModeAlwaysAllows(t *testing.T) {
	cfg := &config.Config{DevMode: true, Authz: config.AuthzConfig{Policy: "scope"}}
	p := buildAuthzPolicy(cfg)
	if !p.Allow("tools/call", &apikey.Identity{}, false) {
		t.Error("dev mode should always allow, regardless of configured Authz.Policy")
	}
}

func TestBuildAuthzPolicy_Binary(t *testing.T) {
	cfg := &config.Config{Authz: config.AuthzConfig{Policy: "binary"}}
	p := buildAuthzPolicy(cfg)
	if p.Allow("tools/call", &apikey.Identity{}, false) {
		t.Error("binary policy should deny unauthenticated requests")
	}
	if !p.Allow("tools/call", &apikey.Identity{}, true) {
		t.Error("binary policy should allow authenticated requests regardless of method")
	}
}

func TestBuildAuthzPolicy_None(t *testing.T) {
	cfg := &config.Config{Authz: config.AuthzConfig{Policy: "none"}}
	p := buildAuthzPolicy(cfg)
	if !p.Allow("anything", &apikey.Identity{}, false) {
		t.Error("none policy should always allow")
	}
}

func TestBuildAuthzPolicy_Scope(t *testing.T) {
	cfg := &config.Config{
		Authz: config.AuthzConfig{
			Policy: "scope",
			ScopeMap: map[string]config.ScopeRuleConfig{
				"tools/call": {RequiredScope: "mcp:tools:call"},
			},
			DefaultAllow: true,
		},
	}
	p := buildAuthzPolicy(cfg)

	admin := &apikey.Identity{Roles: []domainauth.Role{"mcp:*"}}
	if !p.Allow("tools/call", admin, true) {
		t.Error("identity with mcp:* role should satisfy mcp:tools:call via wildcard")
	}

	readOnly := &apikey.Identity{Roles: []domainauth.Role{"read-only"}}
	if p.Allow("tools/call", readOnly, true) {
		t.Error("identity without the required scope should be denied")
	}

	if !p.Allow("resources/list", readOnly, true) {
		t.Error("method absent from ScopeMap should fall back to DefaultAllow=true")
	}
}

func TestBuildPolicyEngine_SeedsDefaultDenyWhenNoPoliciesAndNotDevMode(t *testing.T) {
	cfg := &config.Config{DevMode: false}
	engine, err := buildPolicyEngine(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatalf("buildPolicyEngine() error: %v", err)
	}

	decision, err := engine.Evaluate(context.Background(), policy.EvaluationContext{
		ToolName:    "any_tool",
		RequestTime: time.Now(),
	})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if decision.Allowed {
		t.Error("with no configured policies outside dev mode, expected deny-by-default, got Allowed=true")
	}
}

func TestBuildPolicyEngine_DevModeLeavesNoSyntheticDenyPolicy(t *testing.T) {
	cfg := &config.Config{DevMode: true}
	if _, err := buildPolicyEngine(context.Background(), cfg, testLogger()); err != nil {
		t.Fatalf("buildPolicyEngine() error: %v", err)
	}
	// Dev mode relies on config.Config.SetDevDefaults (called by loadConfig,
	// not buildPolicyEngine) to seed its own allow-all policy; buildPolicyEngine
	// itself must not add a deny-all policy when DevMode is set.
	if len(cfg.Policies) != 0 {
		t.Errorf("buildPolicyEngine must not mutate cfg.Policies, got %+v", cfg.Policies)
	}
}

package authz

import (
	"encoding/json"
	"testing"

	"github.com/mcpcore/mcpcore/pkg/jsonrpc"
)

type fakeClaims struct {
	scopes []string
}

func (c fakeClaims) HasScope(scope string) bool {
	for _, s := range c.scopes {
		if s == scope {
			return true
		}
		if s == "mcp:*" {
			return true
		}
	}
	return false
}

func TestNoAuthorizationPolicy_AlwaysAllows(t *testing.T) {
	p := NoAuthorizationPolicy[struct{}]{}
	if !p.Allow("tools/call", struct{}{}, false) {
		t.Error("expected NoAuthorizationPolicy to allow unauthenticated request")
	}
}

func TestBinaryAuthorizationPolicy(t *testing.T) {
	p := BinaryAuthorizationPolicy[struct{}]{}
	if p.Allow("tools/call", struct{}{}, false) {
		t.Error("expected deny when not authenticated")
	}
	if !p.Allow("tools/call", struct{}{}, true) {
		t.Error("expected allow when authenticated")
	}
}

func TestScopeBasedPolicy_AllowsMatchingScope(t *testing.T) {
	p := NewScopeBasedPolicy[fakeClaims](map[string]ScopeRule{
		"tools/call": {RequiredScope: "mcp:tools"},
	}, false)

	if !p.Allow("tools/call", fakeClaims{scopes: []string{"mcp:tools"}}, true) {
		t.Error("expected allow with matching scope")
	}
}

func TestScopeBasedPolicy_WildcardScope(t *testing.T) {
	p := NewScopeBasedPolicy[fakeClaims](map[string]ScopeRule{
		"tools/call": {RequiredScope: "mcp:tools"},
	}, false)

	if !p.Allow("tools/call", fakeClaims{scopes: []string{"mcp:*"}}, true) {
		t.Error("expected allow with wildcard scope")
	}
}

func TestScopeBasedPolicy_DeniesMissingScope(t *testing.T) {
	p := NewScopeBasedPolicy[fakeClaims](map[string]ScopeRule{
		"tools/call": {RequiredScope: "mcp:tools"},
	}, false)

	if p.Allow("tools/call", fakeClaims{scopes: []string{"mcp:resources"}}, true) {
		t.Error("expected deny without required scope")
	}
}

func TestScopeBasedPolicy_OptionalRuleAllowsUnauthenticated(t *testing.T) {
	p := NewScopeBasedPolicy[fakeClaims](map[string]ScopeRule{
		"health/check": {RequiredScope: "mcp:health", Optional: true},
	}, false)

	if !p.Allow("health/check", fakeClaims{}, false) {
		t.Error("expected optional rule to allow unauthenticated request")
	}
}

func TestScopeBasedPolicy_UnknownMethodFallsBackToDefault(t *testing.T) {
	allowDefault := NewScopeBasedPolicy[fakeClaims](map[string]ScopeRule{}, true)
	if !allowDefault.Allow("unknown/method", fakeClaims{}, true) {
		t.Error("expected default-allow policy to allow unknown method")
	}

	denyDefault := NewScopeBasedPolicy[fakeClaims](map[string]ScopeRule{}, false)
	if denyDefault.Allow("unknown/method", fakeClaims{}, true) {
		t.Error("expected default-deny policy to deny unknown method")
	}
}

func TestMethodExtractor_ExtractsFromRequest(t *testing.T) {
	req := &jsonrpc.Request{ID: jsonrpc.Int64ID(1), Method: "tools/call", Params: json.RawMessage(`{}`)}
	if got := (MethodExtractor{}).Extract(req); got != "tools/call" {
		t.Errorf("Extract() = %q, want tools/call", got)
	}
}

func TestMethodExtractor_EmptyForResponse(t *testing.T) {
	resp := &jsonrpc.Response{ID: jsonrpc.Int64ID(1), Result: json.RawMessage(`{}`)}
	if got := (MethodExtractor{}).Extract(resp); got != "" {
		t.Errorf("Extract() = %q, want empty string", got)
	}
}

// Package authz implements the authorization policies that run after
// authentication and before dispatch: NoAuthorizationPolicy,
// BinaryAuthorizationPolicy, and ScopeBasedPolicy.
//
// The method a policy authorizes against is always the JSON-RPC "method"
// field of the decoded payload, never the transport's path or verb — a
// prior generation of this code made that mistake, so every policy here is
// structurally barred from seeing anything resembling an *http.Request: a
// Policy's Allow only ever receives a method string and an auth context.
package authz

// Policy decides whether an authenticated (or, for NoAuthorizationPolicy,
// unauthenticated) context may invoke method. Generic over the strategy's
// context data type D so a caller never has to box it.
type Policy[D any] interface {
	Allow(method string, data D, authenticated bool) bool
}

// NoAuthorizationPolicy always allows, for development mode. Allow is a
// one-line return with no dependency on data at all, so construction and
// evaluation compile to zero additional runtime work over calling the
// handler directly.
type NoAuthorizationPolicy[D any] struct{}

// Allow always returns true.
func (NoAuthorizationPolicy[D]) Allow(method string, data D, authenticated bool) bool {
	return true
}

// BinaryAuthorizationPolicy allows iff the request authenticated
// successfully; method is ignored.
type BinaryAuthorizationPolicy[D any] struct{}

// Allow returns authenticated unchanged.
func (BinaryAuthorizationPolicy[D]) Allow(method string, data D, authenticated bool) bool {
	return authenticated
}

// ScopeRule configures the required scope for one method.
type ScopeRule struct {
	RequiredScope string
	Optional      bool
}

// ScopeChecker is implemented by a strategy's claim/data type when it can
// report whether it carries a given scope (directly, or via a wildcard
// like "mcp:*" covering the scope's namespace).
type ScopeChecker interface {
	HasScope(scope string) bool
}

// ScopeBasedPolicy allows a method when the context carries its required
// scope (or a covering wildcard). Methods with no configured rule fall
// back to DefaultAllow.
type ScopeBasedPolicy[D ScopeChecker] struct {
	Rules        map[string]ScopeRule
	DefaultAllow bool
}

// NewScopeBasedPolicy creates a policy from a method->rule mapping.
func NewScopeBasedPolicy[D ScopeChecker](rules map[string]ScopeRule, defaultAllow bool) *ScopeBasedPolicy[D] {
	return &ScopeBasedPolicy[D]{Rules: rules, DefaultAllow: defaultAllow}
}

// Allow implements Policy[D].
func (p *ScopeBasedPolicy[D]) Allow(method string, data D, authenticated bool) bool {
	rule, ok := p.Rules[method]
	if !ok {
		return p.DefaultAllow
	}
	if !authenticated {
		return rule.Optional
	}
	if data.HasScope(rule.RequiredScope) {
		return true
	}
	return rule.Optional
}

var (
	_ Policy[struct{}] = NoAuthorizationPolicy[struct{}]{}
	_ Policy[struct{}] = BinaryAuthorizationPolicy[struct{}]{}
)

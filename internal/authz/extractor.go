package authz

import "github.com/mcpcore/mcpcore/pkg/jsonrpc"

// MethodExtractor recovers the method a Policy authorizes against from a
// decoded message. It is the single place this lookup happens: nothing
// else in the authorization path may read a method from anywhere but
// here, so there is exactly one choke point to audit for the "never the
// HTTP path" contract.
type MethodExtractor struct{}

// Extract returns the JSON-RPC method of msg, or "" if msg is a Response
// (responses carry no method and are never authorized — only a session's
// inbound requests/notifications are).
func (MethodExtractor) Extract(msg jsonrpc.Message) string {
	if req, ok := msg.(*jsonrpc.Request); ok {
		return req.Method
	}
	return ""
}

// Command mcpcore runs the MCP runtime core: a JSON-RPC session dispatcher
// sitting between one or more MCP clients and the upstream MCP server(s)
// it fronts, enforcing authentication, authorization, rate limiting, and
// audit logging along the way.
package main

import "github.com/mcpcore/mcpcore/cmd/mcpcore/cmd"

func main() {
	cmd.Execute()
}

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mcpcore/mcpcore/internal/domain/upstream"
	"github.com/mcpcore/mcpcore/internal/port/provider"
)

// Router aggregates tools from multiple connected upstream Clients into one
// provider.ToolProvider, the same "cache owns truth, one winner per name"
// shape internal/domain/upstream.ToolCache was built for — tools/list
// answers from the cache; tools/call looks the owning upstream up in it and
// forwards there. A single-upstream deployment skips this entirely and uses
// Provider directly.
type Router struct {
	cache  *upstream.ToolCache
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewRouter creates an empty Router. Upstreams are added with AddUpstream.
func NewRouter(logger *slog.Logger) *Router {
	return &Router{
		cache:   upstream.NewToolCache(),
		logger:  logger,
		clients: make(map[string]*Client),
	}
}

var _ provider.ToolProvider = (*Router)(nil)

// AddUpstream starts client, registers it under name, and populates the
// tool cache with what it advertises. A name colliding with an
// already-registered tool loses to whichever upstream registered first and
// is recorded in the cache's conflict log rather than silently overwriting.
func (r *Router) AddUpstream(ctx context.Context, name string, client *Client) error {
	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("router: start upstream %s: %w", name, err)
	}

	r.mu.Lock()
	r.clients[name] = client
	r.mu.Unlock()

	return r.RefreshUpstream(ctx, name)
}

// RefreshUpstream re-queries one upstream's tools/list and replaces its
// entries in the cache. Call after a reconnect or on a discovery interval.
func (r *Router) RefreshUpstream(ctx context.Context, name string) error {
	r.mu.RLock()
	client, ok := r.clients[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("router: unknown upstream %s", name)
	}

	tools, err := NewProvider(client).ListTools(ctx)
	if err != nil {
		return fmt.Errorf("router: tools/list on %s: %w", name, err)
	}

	discoveredAt := time.Now()
	discovered := make([]*upstream.DiscoveredTool, 0, len(tools))
	for _, t := range tools {
		if conflict, winner := r.cache.HasConflict(t.Name, name); conflict {
			r.cache.RecordConflict(upstream.ToolConflict{
				ToolName:            t.Name,
				SkippedUpstreamID:   name,
				SkippedUpstreamName: name,
				WinnerUpstreamID:    winner,
				WinnerUpstreamName:  winner,
			})
			r.logger.Warn("tool name conflict, keeping earlier registration",
				"tool", t.Name, "skipped", name, "kept", winner)
			continue
		}
		discovered = append(discovered, &upstream.DiscoveredTool{
			Name:         t.Name,
			Description:  t.Description,
			InputSchema:  t.InputSchema,
			UpstreamID:   name,
			UpstreamName: name,
			DiscoveredAt: discoveredAt,
		})
	}

	r.cache.SetToolsForUpstream(name, discovered)
	return nil
}

// RemoveUpstream closes and forgets an upstream, clearing its tools from
// the cache.
func (r *Router) RemoveUpstream(name string) error {
	r.mu.Lock()
	client, ok := r.clients[name]
	delete(r.clients, name)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	r.cache.RemoveUpstream(name)
	return client.Close()
}

// ToolCount returns how many tools name currently contributes to the cache.
func (r *Router) ToolCount(name string) int {
	return len(r.cache.GetToolsByUpstream(name))
}

// ListTools returns the cached aggregate across all upstreams, sorted by
// name for a deterministic wire order.
func (r *Router) ListTools(ctx context.Context) ([]provider.Tool, error) {
	all := r.cache.GetAllTools()
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })

	tools := make([]provider.Tool, 0, len(all))
	for _, t := range all {
		tools = append(tools, provider.Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	return tools, nil
}

// CallTool resolves name to its owning upstream via the cache and forwards
// the call there.
func (r *Router) CallTool(ctx context.Context, name string, arguments json.RawMessage) ([]provider.Content, error) {
	tool, ok := r.cache.GetTool(name)
	if !ok {
		return nil, fmt.Errorf("router: tool not found: %s", name)
	}

	r.mu.RLock()
	client, ok := r.clients[tool.UpstreamID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("router: upstream not connected: %s", tool.UpstreamID)
	}

	return NewProvider(client).CallTool(ctx, name, arguments)
}

// Close closes every registered upstream connection.
func (r *Router) Close() error {
	r.mu.Lock()
	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.clients = make(map[string]*Client)
	r.mu.Unlock()

	var firstErr error
	for _, c := range clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

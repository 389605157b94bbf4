package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mcpcore/mcpcore/internal/port/provider"
)

// Provider adapts a single upstream Client to the provider.ResourceProvider/
// ToolProvider/PromptProvider contracts internal/mcpproto.Session dispatches
// to: every call is forwarded upstream verbatim and the result reshaped
// into this module's own provider types.
type Provider struct {
	client *Client
}

// NewProvider wraps an already-Start()ed Client.
func NewProvider(client *Client) *Provider {
	return &Provider{client: client}
}

var (
	_ provider.ResourceProvider = (*Provider)(nil)
	_ provider.ToolProvider     = (*Provider)(nil)
	_ provider.PromptProvider   = (*Provider)(nil)
)

func (p *Provider) ListResources(ctx context.Context) ([]provider.Resource, error) {
	raw, err := p.client.Call(ctx, "resources/list", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Resources []provider.Resource `json:"resources"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("mcp provider: decode resources/list: %w", err)
	}
	return out.Resources, nil
}

func (p *Provider) ReadResource(ctx context.Context, uri string) ([]provider.Content, error) {
	raw, err := p.client.Call(ctx, "resources/read", map[string]string{"uri": uri})
	if err != nil {
		return nil, err
	}
	var out struct {
		Contents []provider.Content `json:"contents"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("mcp provider: decode resources/read: %w", err)
	}
	return out.Contents, nil
}

func (p *Provider) Subscribe(ctx context.Context, uri string) error {
	_, err := p.client.Call(ctx, "resources/subscribe", map[string]string{"uri": uri})
	return err
}

func (p *Provider) Unsubscribe(ctx context.Context, uri string) error {
	_, err := p.client.Call(ctx, "resources/unsubscribe", map[string]string{"uri": uri})
	return err
}

func (p *Provider) ListResourceTemplates(ctx context.Context) ([]provider.ResourceTemplate, error) {
	raw, err := p.client.Call(ctx, "resources/templates/list", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		ResourceTemplates []provider.ResourceTemplate `json:"resourceTemplates"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("mcp provider: decode resources/templates/list: %w", err)
	}
	return out.ResourceTemplates, nil
}

func (p *Provider) ListTools(ctx context.Context) ([]provider.Tool, error) {
	raw, err := p.client.Call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Tools []provider.Tool `json:"tools"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("mcp provider: decode tools/list: %w", err)
	}
	return out.Tools, nil
}

func (p *Provider) CallTool(ctx context.Context, name string, arguments json.RawMessage) ([]provider.Content, error) {
	raw, err := p.client.Call(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": arguments,
	})
	if err != nil {
		return nil, err
	}
	var out struct {
		Content []provider.Content `json:"content"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("mcp provider: decode tools/call: %w", err)
	}
	return out.Content, nil
}

func (p *Provider) ListPrompts(ctx context.Context) ([]provider.Prompt, error) {
	raw, err := p.client.Call(ctx, "prompts/list", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Prompts []provider.Prompt `json:"prompts"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("mcp provider: decode prompts/list: %w", err)
	}
	return out.Prompts, nil
}

func (p *Provider) GetPrompt(ctx context.Context, name string, arguments map[string]string) (string, []provider.PromptMessage, error) {
	raw, err := p.client.Call(ctx, "prompts/get", map[string]any{
		"name":      name,
		"arguments": arguments,
	})
	if err != nil {
		return "", nil, err
	}
	var out struct {
		Description string                    `json:"description"`
		Messages    []provider.PromptMessage `json:"messages"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", nil, fmt.Errorf("mcp provider: decode prompts/get: %w", err)
	}
	return out.Description, out.Messages, nil
}

// Package provider declares the thin interfaces a capability provider
// implements to be dispatched to by the protocol layer: ResourceProvider,
// ToolProvider, PromptProvider, LoggingHandler. The implementations in
// this module are the upstream adapters in internal/adapter/outbound/mcp
// (Provider and Router); this package holds only the contract, the same
// "thin interface, external collaborator" shape as outbound.MCPClient.
package provider

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrUnsupportedCapability is returned by a provider method that is
// logically out of scope for that provider instance. The protocol layer
// maps it to a JSON-RPC "method not found" response.
var ErrUnsupportedCapability = errors.New("provider: unsupported capability")

// Resource is a single addressable resource a ResourceProvider exposes.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ResourceTemplate describes a parameterised family of resource URIs.
type ResourceTemplate struct {
	URITemplate string `json:"uriTemplate"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// Content is one piece of returned content: text, a resource reference,
// or binary data, per the content item the method table documents.
type Content struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	URI      string          `json:"uri,omitempty"`
	MimeType string          `json:"mimeType,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// ResourceProvider backs resources/list, resources/read,
// resources/subscribe, resources/unsubscribe, resources/templates/list.
// A provider that does not support subscriptions returns
// ErrUnsupportedCapability from Subscribe/Unsubscribe.
type ResourceProvider interface {
	ListResources(ctx context.Context) ([]Resource, error)
	ReadResource(ctx context.Context, uri string) ([]Content, error)
	Subscribe(ctx context.Context, uri string) error
	Unsubscribe(ctx context.Context, uri string) error
	ListResourceTemplates(ctx context.Context) ([]ResourceTemplate, error)
}

// Tool describes one callable tool. InputSchema is surfaced to clients
// for documentation only; this module never validates arguments against
// it — a provider that cares may do so itself.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ToolProvider backs tools/list and tools/call.
type ToolProvider interface {
	ListTools(ctx context.Context) ([]Tool, error)
	CallTool(ctx context.Context, name string, arguments json.RawMessage) ([]Content, error)
}

// Prompt describes one named prompt template.
type Prompt struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// PromptMessage is one message of a prompt's rendered conversation.
type PromptMessage struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// PromptProvider backs prompts/list and prompts/get.
type PromptProvider interface {
	ListPrompts(ctx context.Context) ([]Prompt, error)
	GetPrompt(ctx context.Context, name string, arguments map[string]string) (description string, messages []PromptMessage, err error)
}

// LoggingHandler backs logging/setLevel.
type LoggingHandler interface {
	SetLoggingLevel(ctx context.Context, level string) error
}

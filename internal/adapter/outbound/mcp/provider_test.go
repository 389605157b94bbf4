package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mcpcore/mcpcore/pkg/jsonrpc"
)

func TestProvider_ListTools(t *testing.T) {
	t.Parallel()

	up := newFakeUpstream(func(method string, params json.RawMessage) (json.RawMessage, *jsonrpc.WireError) {
		if method != "tools/list" {
			t.Fatalf("unexpected method %q", method)
		}
		return json.RawMessage(`{"tools":[{"name":"echo","description":"echoes input"}]}`), nil
	})

	c := NewClient(up, time.Second, discardLogger())
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Close()

	p := NewProvider(c)
	tools, err := p.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "echo" {
		t.Fatalf("ListTools = %+v, want one tool named echo", tools)
	}
}

func TestProvider_CallTool(t *testing.T) {
	t.Parallel()

	up := newFakeUpstream(func(method string, params json.RawMessage) (json.RawMessage, *jsonrpc.WireError) {
		if method != "tools/call" {
			t.Fatalf("unexpected method %q", method)
		}
		return json.RawMessage(`{"content":[{"type":"text","text":"hello"}]}`), nil
	})

	c := NewClient(up, time.Second, discardLogger())
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Close()

	p := NewProvider(c)
	content, err := p.CallTool(context.Background(), "echo", json.RawMessage(`{"text":"hi"}`))
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if len(content) != 1 || content[0].Text != "hello" {
		t.Fatalf("CallTool content = %+v, want one text item", content)
	}
}

func TestProvider_ReadResource(t *testing.T) {
	t.Parallel()

	up := newFakeUpstream(func(method string, params json.RawMessage) (json.RawMessage, *jsonrpc.WireError) {
		if method != "resources/read" {
			t.Fatalf("unexpected method %q", method)
		}
		return json.RawMessage(`{"contents":[{"type":"text","uri":"file:///a","text":"data"}]}`), nil
	})

	c := NewClient(up, time.Second, discardLogger())
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Close()

	p := NewProvider(c)
	contents, err := p.ReadResource(context.Background(), "file:///a")
	if err != nil {
		t.Fatalf("ReadResource: %v", err)
	}
	if len(contents) != 1 || contents[0].URI != "file:///a" {
		t.Fatalf("ReadResource = %+v", contents)
	}
}

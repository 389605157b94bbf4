package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mcpcore/mcpcore/pkg/jsonrpc"
)

func toolsListHandler(names ...string) func(string, json.RawMessage) (json.RawMessage, *jsonrpc.WireError) {
	return func(method string, params json.RawMessage) (json.RawMessage, *jsonrpc.WireError) {
		switch method {
		case "tools/list":
			tools := make([]map[string]string, 0, len(names))
			for _, n := range names {
				tools = append(tools, map[string]string{"name": n, "description": "tool " + n})
			}
			raw, _ := json.Marshal(map[string]any{"tools": tools})
			return raw, nil
		case "tools/call":
			return json.RawMessage(`{"content":[{"type":"text","text":"` + method + `"}]}`), nil
		default:
			return nil, &jsonrpc.WireError{Code: jsonrpc.CodeMethodNotFound, Message: "unsupported"}
		}
	}
}

func TestRouter_AggregatesAcrossUpstreams(t *testing.T) {
	t.Parallel()

	r := NewRouter(discardLogger())
	ctx := context.Background()

	a := newFakeUpstream(toolsListHandler("alpha"))
	b := newFakeUpstream(toolsListHandler("beta"))

	if err := r.AddUpstream(ctx, "a", NewClient(a, time.Second, discardLogger())); err != nil {
		t.Fatalf("AddUpstream a: %v", err)
	}
	if err := r.AddUpstream(ctx, "b", NewClient(b, time.Second, discardLogger())); err != nil {
		t.Fatalf("AddUpstream b: %v", err)
	}
	defer r.Close()

	tools, err := r.ListTools(ctx)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(tools) != 2 {
		t.Fatalf("ListTools returned %d tools, want 2: %+v", len(tools), tools)
	}
	if tools[0].Name != "alpha" || tools[1].Name != "beta" {
		t.Fatalf("ListTools not sorted: %+v", tools)
	}
}

func TestRouter_CallToolRoutesToOwningUpstream(t *testing.T) {
	t.Parallel()

	r := NewRouter(discardLogger())
	ctx := context.Background()

	a := newFakeUpstream(toolsListHandler("alpha"))
	if err := r.AddUpstream(ctx, "a", NewClient(a, time.Second, discardLogger())); err != nil {
		t.Fatalf("AddUpstream: %v", err)
	}
	defer r.Close()

	content, err := r.CallTool(ctx, "alpha", nil)
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if len(content) != 1 || content[0].Text != "tools/call" {
		t.Fatalf("CallTool content = %+v", content)
	}
}

func TestRouter_CallToolUnknownName(t *testing.T) {
	t.Parallel()

	r := NewRouter(discardLogger())
	if _, err := r.CallTool(context.Background(), "missing", nil); err == nil {
		t.Fatal("expected error for unknown tool name")
	}
}

func TestRouter_ConflictingNameKeepsFirstUpstream(t *testing.T) {
	t.Parallel()

	r := NewRouter(discardLogger())
	ctx := context.Background()

	a := newFakeUpstream(toolsListHandler("shared"))
	b := newFakeUpstream(toolsListHandler("shared"))

	if err := r.AddUpstream(ctx, "a", NewClient(a, time.Second, discardLogger())); err != nil {
		t.Fatalf("AddUpstream a: %v", err)
	}
	if err := r.AddUpstream(ctx, "b", NewClient(b, time.Second, discardLogger())); err != nil {
		t.Fatalf("AddUpstream b: %v", err)
	}
	defer r.Close()

	tools, err := r.ListTools(ctx)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(tools) != 1 {
		t.Fatalf("ListTools returned %d tools, want 1 (conflict dropped)", len(tools))
	}

	conflicts := r.cache.GetConflicts()
	if len(conflicts) != 1 {
		t.Fatalf("GetConflicts = %d, want 1", len(conflicts))
	}
	if conflicts[0].WinnerUpstreamID != "a" || conflicts[0].SkippedUpstreamID != "b" {
		t.Fatalf("conflict = %+v, want winner=a skipped=b", conflicts[0])
	}
}

func TestRouter_RemoveUpstream(t *testing.T) {
	t.Parallel()

	r := NewRouter(discardLogger())
	ctx := context.Background()

	a := newFakeUpstream(toolsListHandler("alpha"))
	if err := r.AddUpstream(ctx, "a", NewClient(a, time.Second, discardLogger())); err != nil {
		t.Fatalf("AddUpstream: %v", err)
	}

	if err := r.RemoveUpstream("a"); err != nil {
		t.Fatalf("RemoveUpstream: %v", err)
	}

	tools, err := r.ListTools(ctx)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(tools) != 0 {
		t.Fatalf("ListTools after removal = %+v, want empty", tools)
	}
}

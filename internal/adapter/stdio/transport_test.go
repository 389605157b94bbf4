package stdio

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/mcpcore/mcpcore/internal/engine"
	"github.com/mcpcore/mcpcore/pkg/jsonrpc"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func echoEngine() *engine.Engine {
	return engine.New(func(_ context.Context, msg jsonrpc.Message) (jsonrpc.Message, error) {
		req := msg.(*jsonrpc.Request)
		if !req.IsCall() {
			return nil, nil
		}
		return jsonrpc.NewResponse(req.ID, map[string]any{"echo": req.Method}, nil)
	})
}

func TestTransport_RespondsToEachRequest(t *testing.T) {
	defer goleak.VerifyNone(t)

	in := strings.NewReader(
		`{"jsonrpc":"2.0","id":1,"method":"ping"}` + "\n" +
			`{"jsonrpc":"2.0","id":2,"method":"ping"}` + "\n",
	)
	var out bytes.Buffer

	tr := New(echoEngine(), in, &out, testLogger())
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d response lines, want 2: %q", len(lines), out.String())
	}
	for i, line := range lines {
		var resp struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			t.Fatalf("unmarshal line %d: %v", i, err)
		}
		if resp.ID != int64(i+1) {
			t.Errorf("line %d id = %d, want %d", i, resp.ID, i+1)
		}
	}
}

func TestTransport_NotificationProducesNoOutput(t *testing.T) {
	defer goleak.VerifyNone(t)

	in := strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n")
	var out bytes.Buffer

	tr := New(echoEngine(), in, &out, testLogger())
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("expected no output for a notification, got %q", out.String())
	}
}

func TestTransport_MalformedLineIsSkippedNotFatal(t *testing.T) {
	defer goleak.VerifyNone(t)

	in := strings.NewReader(
		"not json\n" +
			`{"jsonrpc":"2.0","id":1,"method":"ping"}` + "\n",
	)
	var out bytes.Buffer

	tr := New(echoEngine(), in, &out, testLogger())
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), `"id":1`) {
		t.Fatalf("expected the valid line to still be answered, got %q", out.String())
	}
}

func TestTransport_ClosingInputStopsRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	// Start's Scan() loop blocks on the underlying read, so unblocking it
	// requires closing the input stream itself, not just cancelling the
	// context — documented on Transport.Close.
	pr, pw := io.Pipe()
	var out bytes.Buffer

	tr := New(echoEngine(), pr, &out, testLogger())

	done := make(chan error, 1)
	go func() { done <- tr.Start(context.Background()) }()

	if err := pw.Close(); err != nil {
		t.Fatalf("pw.Close: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after input closed")
	}
}

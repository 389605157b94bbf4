// Package stdio implements the MCP transport binding for a single client
// speaking newline-delimited JSON-RPC over os.Stdin/os.Stdout — the shape
// every MCP client uses to launch a local server as a subprocess.
//
// Grounded on internal/adapter/inbound/stdio/transport.go's thin wrapper
// (now driving an internal/engine.Engine instead of a *service.ProxyService)
// and internal/service/proxy_service.go's copyMessages: the bufio.Scanner
// buffer sizing (256KB initial, 1MB max — MCP messages can be large) is
// carried over unchanged, as is the one-message-per-line framing contract.
// Unlike the reference's bidirectional client<->upstream proxy, there is no
// second pipe here: every decoded message goes straight into the engine,
// which owns routing to resources/tools/prompts providers directly.
package stdio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/mcpcore/mcpcore/internal/engine"
	"github.com/mcpcore/mcpcore/internal/port/inbound"
	"github.com/mcpcore/mcpcore/internal/transport"
	"github.com/mcpcore/mcpcore/pkg/jsonrpc"
)

const (
	scanBufInitial = 256 * 1024
	scanBufMax     = 1024 * 1024
)

// Transport reads newline-delimited JSON-RPC messages from in, dispatches
// each through an engine.Engine, and writes the resulting response (if any)
// to out. One Transport serves exactly one client connection — the session
// an engine.Engine wraps is 1:1 with the process's stdio pair.
type Transport struct {
	engine *engine.Engine
	in     io.Reader
	out    io.Writer
	logger *slog.Logger

	sm *transport.StateMachine

	mu sync.Mutex
}

// New builds a stdio Transport. eng is the fully-assembled per-session
// engine (mcpproto.Session.Handle wrapped in whatever middleware the
// caller wants — stdio callers typically pass none, per engine's own doc
// comment distinguishing it from the HTTP transport).
func New(eng *engine.Engine, in io.Reader, out io.Writer, logger *slog.Logger) *Transport {
	return &Transport{
		engine: eng,
		in:     in,
		out:    out,
		logger: logger,
		sm:     transport.NewStateMachine(),
	}
}

// Start reads messages until ctx is cancelled, in reaches EOF, or a write
// fails. It blocks until the read loop exits and all admitted handler
// invocations have drained.
func (t *Transport) Start(ctx context.Context) error {
	if err := t.sm.Start(); err != nil {
		return err
	}
	defer t.sm.Close()

	scanner := bufio.NewScanner(t.in)
	scanner.Buffer(make([]byte, 0, scanBufInitial), scanBufMax)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := append([]byte(nil), scanner.Bytes()...)
		if len(line) == 0 {
			continue
		}
		if !t.sm.BeginWork() {
			return nil
		}
		if err := t.handleLine(ctx, line); err != nil {
			t.sm.EndWork()
			return err
		}
		t.sm.EndWork()
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("stdio: scan: %w", err)
	}
	return nil
}

func (t *Transport) handleLine(ctx context.Context, line []byte) error {
	msg, err := jsonrpc.Decode(line)
	if err != nil {
		t.logger.Error("discarding malformed message", "error", err)
		return nil
	}

	resp, err := t.engine.Handle(ctx, msg)
	if err != nil {
		t.logger.Error("engine handling failed", "error", err)
		return nil
	}
	if resp == nil {
		// Notification: no reply expected.
		return nil
	}

	out, err := jsonrpc.Encode(resp)
	if err != nil {
		return fmt.Errorf("stdio: encode response: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.out.Write(out); err != nil {
		return fmt.Errorf("stdio: write: %w", err)
	}
	if _, err := t.out.Write([]byte("\n")); err != nil {
		return fmt.Errorf("stdio: write newline: %w", err)
	}
	return nil
}

// Close signals the transport to stop accepting new handler invocations
// and waits for in-flight ones to finish. The caller is still responsible
// for unblocking the underlying Scan() call, typically by cancelling the
// context passed to Start or closing the input stream.
func (t *Transport) Close() error {
	t.sm.Close()
	return nil
}

var _ inbound.ProxyService = (*Transport)(nil)

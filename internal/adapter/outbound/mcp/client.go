package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/mcpcore/mcpcore/internal/correlation"
	"github.com/mcpcore/mcpcore/internal/port/outbound"
	"github.com/mcpcore/mcpcore/pkg/jsonrpc"
)

// Client turns a raw outbound.MCPClient connection (stdin/stdout pipes) into
// a request/response API, matching pending requests to their responses via
// an internal/correlation.Manager the same way the inbound transports match
// client requests to this module's own responses.
type Client struct {
	conn    outbound.MCPClient
	corr    *correlation.Manager
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.Mutex
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

// NewClient wraps conn (an *HTTPClient or *StdioClient) with request
// correlation. defaultTimeout bounds Call when the caller's context has no
// deadline of its own.
func NewClient(conn outbound.MCPClient, defaultTimeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		conn:   conn,
		logger: logger,
		corr: correlation.NewManager(correlation.Config{
			MaxPendingRequests: 256,
			DefaultTimeout:     defaultTimeout,
		}, logger),
		timeout: defaultTimeout,
	}
}

// Start launches the underlying connection and begins reading responses.
func (c *Client) Start(ctx context.Context) error {
	stdin, stdout, err := c.conn.Start(ctx)
	if err != nil {
		return fmt.Errorf("mcp client: start: %w", err)
	}
	c.mu.Lock()
	c.stdin, c.stdout = stdin, stdout
	c.mu.Unlock()

	go c.readLoop()
	return nil
}

func (c *Client) readLoop() {
	scanner := bufio.NewScanner(c.stdout)
	scanner.Buffer(make([]byte, 0, scannerInitialBufSize), scannerMaxBufSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		msg, err := jsonrpc.Decode(line)
		if err != nil {
			c.logger.Warn("discarding malformed upstream message", "error", err)
			continue
		}
		resp, ok := msg.(*jsonrpc.Response)
		if !ok {
			// A notification or request from the upstream — this module
			// does not yet accept server-initiated calls from upstreams.
			continue
		}
		if err := c.corr.CorrelateResponse(resp.ID, resp, nil); err != nil {
			c.logger.Debug("unmatched upstream response", "id", resp.ID.String(), "error", err)
		}
	}
}

// Call sends method/params upstream and blocks for the matching response.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id, handle, err := c.corr.RegisterRequest(c.timeout, nil)
	if err != nil {
		return nil, fmt.Errorf("mcp client: register: %w", err)
	}

	req, err := jsonrpc.NewRequest(id, method, params)
	if err != nil {
		c.corr.Cancel(id)
		return nil, fmt.Errorf("mcp client: build request: %w", err)
	}
	encoded, err := jsonrpc.Encode(req)
	if err != nil {
		c.corr.Cancel(id)
		return nil, fmt.Errorf("mcp client: encode request: %w", err)
	}

	c.mu.Lock()
	_, werr := c.stdin.Write(append(encoded, '\n'))
	c.mu.Unlock()
	if werr != nil {
		c.corr.Cancel(id)
		return nil, fmt.Errorf("mcp client: write request: %w", werr)
	}

	resp, err := handle.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("mcp client: %s: %w", method, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("mcp client: %s: upstream error %d: %s", method, resp.Error.Code, resp.Error.Message)
	}
	return resp.Result, nil
}

// Close shuts down the correlation manager and the underlying connection.
func (c *Client) Close() error {
	c.corr.Shutdown()
	return c.conn.Close()
}

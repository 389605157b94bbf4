package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/mcpcore/mcpcore/internal/auth/apikey"
	"github.com/mcpcore/mcpcore/internal/engine"
	"github.com/mcpcore/mcpcore/internal/mcpproto"
	"github.com/mcpcore/mcpcore/pkg/jsonrpc"
)

// MCPProtocolVersion is the protocol version this handler negotiates by
// default (the newest entry of mcpproto.SupportedVersions).
const MCPProtocolVersion = "2025-06-18"

// maxRequestBodySize bounds a single POST body (1 MiB — MCP payloads are
// small JSON-RPC envelopes; anything larger is almost certainly abuse).
const maxRequestBodySize = 1 << 20

// MCPSessionIDHeader identifies the mcpproto.Session a request belongs to.
const MCPSessionIDHeader = "Mcp-Session-Id"

// MCPProtocolVersionHeader echoes the negotiated protocol version.
const MCPProtocolVersionHeader = "MCP-Protocol-Version"

// sessionCtxKey is the context key a request's bound *mcpproto.Session is
// stored under for mcpDispatcher to retrieve.
type sessionCtxKey struct{}

func contextWithSession(ctx context.Context, s *mcpproto.Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey{}, s)
}

func sessionFromContext(ctx context.Context) *mcpproto.Session {
	s, _ := ctx.Value(sessionCtxKey{}).(*mcpproto.Session)
	return s
}

// mcpDispatcher is the engine.Engine's final HandleFunc: every middleware
// runs first, then this pulls the *mcpproto.Session bound to the request
// out of context and hands the message to it. One Engine (and therefore
// one middleware chain) is shared by every session the transport serves;
// only this terminal step varies per request.
func mcpDispatcher(ctx context.Context, msg jsonrpc.Message) (jsonrpc.Message, error) {
	s := sessionFromContext(ctx)
	if s == nil {
		return nil, errors.New("httptransport: no session bound to request context")
	}
	return s.Handle(ctx, msg)
}

// mcpHandler routes by HTTP method. Grounded on the reference's mcpHandler
// (internal/adapter/inbound/http/handler.go), generalized to route into an
// engine.Engine + sessionManager pair instead of a *service.ProxyService.
func mcpHandler(t *Transport) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			t.handlePost(w, r)
		case http.MethodGet:
			t.handleGet(w, r)
		case http.MethodDelete:
			t.handleDelete(w, r)
		case http.MethodOptions:
			handleOptions(w, r)
		default:
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		}
	})
}

func (t *Transport) handlePost(w http.ResponseWriter, r *http.Request) {
	logger := LoggerFromContext(r.Context())

	contentType := r.Header.Get("Content-Type")
	if contentType != "" && contentType != "application/json" {
		writeJSONRPCError(w, nil, jsonrpc.CodeParseError, "Parse error: content type must be application/json")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer func() { _ = r.Body.Close() }()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeJSONRPCError(w, nil, jsonrpc.CodeParseError, "Parse error: request body too large (max 1MB)")
			return
		}
		writeJSONRPCError(w, nil, jsonrpc.CodeParseError, "Parse error: failed to read request body")
		return
	}
	if len(body) == 0 {
		writeJSONRPCError(w, nil, jsonrpc.CodeParseError, "Parse error: empty request body")
		return
	}
	if !json.Valid(body) {
		writeJSONRPCError(w, nil, jsonrpc.CodeParseError, "Parse error: invalid JSON")
		return
	}

	var peek struct {
		JSONRPC string          `json:"jsonrpc"`
		Method  string          `json:"method"`
		ID      json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(body, &peek); err != nil {
		writeJSONRPCError(w, nil, jsonrpc.CodeInvalidRequest, "Invalid Request: request must be a JSON object")
		return
	}
	if peek.JSONRPC != "2.0" {
		writeJSONRPCError(w, nil, jsonrpc.CodeInvalidRequest, `Invalid Request: missing or invalid jsonrpc version (must be "2.0")`)
		return
	}
	if peek.Method == "" {
		writeJSONRPCError(w, nil, jsonrpc.CodeInvalidRequest, "Invalid Request: missing method field")
		return
	}
	isNotification := peek.ID == nil

	identity, authenticated := identityFromContext(r.Context())
	if !t.policy.Allow(peek.Method, identity, authenticated) {
		writeJSONRPCError(w, peek.ID, jsonrpc.CodeUnauthorized, fmt.Sprintf("not authorized to call %q", peek.Method))
		return
	}

	sessionID := r.Header.Get(MCPSessionIDHeader)
	sess, sessionID, ok := t.resolveSession(r.Context(), w, sessionID, peek.Method, identity)
	if !ok {
		return
	}

	msg, err := jsonrpc.Decode(body)
	if err != nil {
		writeJSONRPCError(w, peek.ID, jsonrpc.CodeParseError, "Parse error: "+err.Error())
		return
	}

	meta := engine.RequestMeta{SessionID: sessionID, RemoteAddr: realIPFromContext(r.Context())}
	if identity != nil {
		meta.IdentityID = identity.ID
		meta.IdentityName = identity.Name
		meta.Roles = rolesToStrings(identity.Roles)
	}
	ctx := engine.WithRequestMeta(r.Context(), meta)
	ctx = contextWithSession(ctx, sess)

	resp, err := t.engine.Handle(ctx, msg)
	if err != nil {
		if ctx.Err() != nil {
			return // client disconnected
		}
		logger.Error("engine handling failed", "error", err)
		writeJSONRPCError(w, peek.ID, jsonrpc.CodeInternalError, "Internal error")
		return
	}

	w.Header().Set(MCPProtocolVersionHeader, MCPProtocolVersion)
	w.Header().Set(MCPSessionIDHeader, sessionID)

	if isNotification || resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	out, err := jsonrpc.Encode(resp)
	if err != nil {
		logger.Error("encode response failed", "error", err)
		writeJSONRPCError(w, peek.ID, jsonrpc.CodeInternalError, "Internal error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

// resolveSession binds the request to a session: an "initialize" call with
// no Mcp-Session-Id mints a fresh session (and its session.Session idle-
// timeout record, attributed to identity); any other request must carry
// the header of an existing, unexpired one — touching it extends its idle
// timeout. Returns ok=false after having already written the error
// response.
func (t *Transport) resolveSession(ctx context.Context, w http.ResponseWriter, sessionID, method string, identity *apikey.Identity) (*mcpproto.Session, string, bool) {
	if sessionID != "" {
		sess, found := t.sessions.get(sessionID)
		if !found || !t.sessions.touch(ctx, sessionID) {
			writeJSONRPCError(w, nil, jsonrpc.CodeInvalidRequest, "Invalid Request: unknown Mcp-Session-Id")
			return nil, "", false
		}
		return sess, sessionID, true
	}

	if method != "initialize" {
		writeJSONRPCError(w, nil, jsonrpc.CodeInvalidRequest, "Invalid Request: Mcp-Session-Id header required")
		return nil, "", false
	}

	newID, sess, err := t.sessions.mint(ctx, identity, t.newSession)
	if err != nil {
		writeJSONRPCError(w, nil, jsonrpc.CodeInternalError, "Internal error: failed to mint session id")
		return nil, "", false
	}
	return sess, newID, true
}

func rolesToStrings[R ~string](roles []R) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}

// handleGet opens an SSE stream for server-initiated messages on an
// existing session.
func (t *Transport) handleGet(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	sessionID := r.Header.Get(MCPSessionIDHeader)
	if sessionID == "" {
		http.Error(w, "Mcp-Session-Id header required for SSE", http.StatusBadRequest)
		return
	}
	if _, found := t.sessions.get(sessionID); !found || !t.sessions.touch(r.Context(), sessionID) {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set(MCPProtocolVersionHeader, MCPProtocolVersion)
	w.Header().Set(MCPSessionIDHeader, sessionID)

	msgChan := make(chan []byte, 100)
	t.sessions.registerSSE(sessionID, msgChan)
	defer t.sessions.unregisterSSE(sessionID, msgChan)

	ctx := r.Context()

	_, _ = fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgChan:
			if !ok {
				return
			}
			_, _ = fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func (t *Transport) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(MCPSessionIDHeader)
	if sessionID == "" {
		http.Error(w, "Mcp-Session-Id header required", http.StatusBadRequest)
		return
	}
	if !t.sessions.terminate(sessionID) {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func handleOptions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Mcp-Session-Id, MCP-Protocol-Version")
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.WriteHeader(http.StatusNoContent)
}

type jsonRPCErrorBody struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Error   jsonRPCErrorField `json:"error"`
}

type jsonRPCErrorField struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
}

func writeJSONRPCError(w http.ResponseWriter, id json.RawMessage, code int64, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	_ = json.NewEncoder(w).Encode(jsonRPCErrorBody{
		JSONRPC: "2.0",
		ID:      id,
		Error:   jsonRPCErrorField{Code: code, Message: message},
	})
}

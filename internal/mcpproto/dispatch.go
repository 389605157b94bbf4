package mcpproto

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mcpcore/mcpcore/internal/port/provider"
	"github.com/mcpcore/mcpcore/pkg/jsonrpc"
)

// CodeProviderError is the JSON-RPC error code a provider-raised failure
// is reported under, with the provider's error text as the message and
// no data field. It sits in the same -32000...-32099 implementation-defined
// range as the codes pkg/jsonrpc already reserves, one slot below
// CodeUnauthorized.
const CodeProviderError int64 = -32000

type gate func(Capabilities) bool

func gateResources(c Capabilities) bool          { return c.HasResources() }
func gateResourcesSubscribe(c Capabilities) bool { return c.HasResourceSubscribe() }
func gateTools(c Capabilities) bool              { return c.HasTools() }
func gatePrompts(c Capabilities) bool             { return c.HasPrompts() }
func gateLogging(c Capabilities) bool             { return c.HasLogging() }

type handlerFunc func(ctx context.Context, s *Session, params json.RawMessage) (any, error)

type dispatchEntry struct {
	fn            handlerFunc
	gate          gate
	beforeReadyOK bool
}

// dispatchTable is the method name to entry mapping: "recognised methods"
// per the protocol layer's method table. A method absent here is unknown
// and yields -32601 regardless of session state.
var dispatchTable = map[string]dispatchEntry{
	"initialize": {fn: handleInitialize, beforeReadyOK: true},
	"ping":       {fn: handlePing, beforeReadyOK: true},

	"resources/list":             {fn: handleResourcesList, gate: gateResources},
	"resources/read":             {fn: handleResourcesRead, gate: gateResources},
	"resources/subscribe":        {fn: handleResourcesSubscribe, gate: gateResourcesSubscribe},
	"resources/unsubscribe":      {fn: handleResourcesUnsubscribe, gate: gateResourcesSubscribe},
	"resources/templates/list":   {fn: handleResourceTemplatesList, gate: gateResources},

	"tools/list": {fn: handleToolsList, gate: gateTools},
	"tools/call": {fn: handleToolsCall, gate: gateTools},

	"prompts/list": {fn: handlePromptsList, gate: gatePrompts},
	"prompts/get":  {fn: handlePromptsGet, gate: gatePrompts},

	"logging/setLevel": {fn: handleLoggingSetLevel, gate: gateLogging},
}

// notificationTable holds methods with no ID that the session still acts
// on. Notifications never produce a Response.
var notificationTable = map[string]func(s *Session, params json.RawMessage){
	"notifications/initialized": func(s *Session, _ json.RawMessage) {},
	"initialized":               func(s *Session, _ json.RawMessage) {},
}

// Handle dispatches one inbound message against the session and returns
// the Response to send back, or nil for a notification (which expects no
// reply). msg must be a *jsonrpc.Request; anything else is a programmer
// error in the caller, not a protocol error.
func (s *Session) Handle(ctx context.Context, msg jsonrpc.Message) (jsonrpc.Message, error) {
	req, ok := msg.(*jsonrpc.Request)
	if !ok {
		return nil, fmt.Errorf("mcpproto: Session.Handle expects a *jsonrpc.Request, got %T", msg)
	}

	if !req.IsCall() {
		if fn, ok := notificationTable[req.Method]; ok {
			fn(s, req.Params)
		} else {
			s.logger.Debug("ignoring unrecognised notification", "method", req.Method)
		}
		return nil, nil
	}

	result, rerr := s.dispatch(ctx, req)
	resp, err := jsonrpc.NewResponse(req.ID, result, rerr)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *Session) dispatch(ctx context.Context, req *jsonrpc.Request) (any, error) {
	entry, ok := dispatchTable[req.Method]
	if !ok {
		return nil, jsonrpc.NewError(jsonrpc.CodeMethodNotFound, "method not found", req.Method)
	}

	state := s.State()
	if state == StateClosed {
		return nil, jsonrpc.NewError(jsonrpc.CodeInvalidRequest, "session closed", nil)
	}
	if state != StateReady && !entry.beforeReadyOK {
		return nil, jsonrpc.NewError(jsonrpc.CodeInvalidRequest, "session not initialized", nil)
	}

	if entry.gate != nil && !entry.gate(s.Capabilities()) {
		return nil, jsonrpc.NewError(jsonrpc.CodeMethodNotFound, "capability not negotiated", req.Method)
	}

	result, err := entry.fn(ctx, s, req.Params)
	if err == nil {
		return result, nil
	}

	if errors.Is(err, provider.ErrUnsupportedCapability) {
		return nil, jsonrpc.NewError(jsonrpc.CodeMethodNotFound, "method not found", req.Method)
	}
	var wireErr *jsonrpc.WireError
	if errors.As(err, &wireErr) {
		return nil, err
	}
	return nil, jsonrpc.NewError(CodeProviderError, err.Error(), nil)
}

// --- initialize / ping ---

type initializeParams struct {
	ProtocolVersion string          `json:"protocolVersion"`
	Capabilities    Capabilities    `json:"capabilities"`
	ClientInfo      json.RawMessage `json:"clientInfo,omitempty"`
}

type initializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    Capabilities `json:"capabilities"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
}

func handleInitialize(_ context.Context, s *Session, raw json.RawMessage) (any, error) {
	s.mu.Lock()
	switch s.state {
	case StateClosed:
		s.mu.Unlock()
		return nil, ErrSessionClosed
	case StateInitialising:
		s.mu.Unlock()
		return nil, ErrAlreadyInitializing
	}
	s.state = StateInitialising
	s.mu.Unlock()

	var params initializeParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			s.mu.Lock()
			s.state = StateUninitialised
			s.mu.Unlock()
			return nil, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "invalid initialize params", err.Error())
		}
	}

	version := Negotiate(params.ProtocolVersion)
	negotiated := Intersect(params.Capabilities, s.supported)

	s.mu.Lock()
	s.version = version
	s.capabilities = negotiated
	s.state = StateReady
	s.mu.Unlock()

	return initializeResult{
		ProtocolVersion: string(version),
		Capabilities:    negotiated,
		ServerInfo:      s.serverInfo,
	}, nil
}

func handlePing(_ context.Context, _ *Session, _ json.RawMessage) (any, error) {
	return struct{}{}, nil
}

// --- resources ---

func handleResourcesList(ctx context.Context, s *Session, _ json.RawMessage) (any, error) {
	if s.providers.Resources == nil {
		return nil, provider.ErrUnsupportedCapability
	}
	resources, err := s.providers.Resources.ListResources(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"resources": resources}, nil
}

type resourceURIParams struct {
	URI string `json:"uri"`
}

func handleResourcesRead(ctx context.Context, s *Session, raw json.RawMessage) (any, error) {
	if s.providers.Resources == nil {
		return nil, provider.ErrUnsupportedCapability
	}
	var params resourceURIParams
	if err := json.Unmarshal(raw, &params); err != nil || params.URI == "" {
		return nil, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "invalid resources/read params", nil)
	}
	contents, err := s.providers.Resources.ReadResource(ctx, params.URI)
	if err != nil {
		return nil, err
	}
	return map[string]any{"contents": contents}, nil
}

func handleResourcesSubscribe(ctx context.Context, s *Session, raw json.RawMessage) (any, error) {
	if s.providers.Resources == nil {
		return nil, provider.ErrUnsupportedCapability
	}
	var params resourceURIParams
	if err := json.Unmarshal(raw, &params); err != nil || params.URI == "" {
		return nil, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "invalid resources/subscribe params", nil)
	}
	if err := s.providers.Resources.Subscribe(ctx, params.URI); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

func handleResourcesUnsubscribe(ctx context.Context, s *Session, raw json.RawMessage) (any, error) {
	if s.providers.Resources == nil {
		return nil, provider.ErrUnsupportedCapability
	}
	var params resourceURIParams
	if err := json.Unmarshal(raw, &params); err != nil || params.URI == "" {
		return nil, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "invalid resources/unsubscribe params", nil)
	}
	if err := s.providers.Resources.Unsubscribe(ctx, params.URI); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

func handleResourceTemplatesList(ctx context.Context, s *Session, _ json.RawMessage) (any, error) {
	if s.providers.Resources == nil {
		return nil, provider.ErrUnsupportedCapability
	}
	templates, err := s.providers.Resources.ListResourceTemplates(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"templates": templates}, nil
}

// --- tools ---

func handleToolsList(ctx context.Context, s *Session, _ json.RawMessage) (any, error) {
	if s.providers.Tools == nil {
		return nil, provider.ErrUnsupportedCapability
	}
	tools, err := s.providers.Tools.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"tools": tools}, nil
}

type toolsCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

func handleToolsCall(ctx context.Context, s *Session, raw json.RawMessage) (any, error) {
	if s.providers.Tools == nil {
		return nil, provider.ErrUnsupportedCapability
	}
	var params toolsCallParams
	if err := json.Unmarshal(raw, &params); err != nil || params.Name == "" {
		return nil, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "invalid tools/call params", nil)
	}
	content, err := s.providers.Tools.CallTool(ctx, params.Name, params.Arguments)
	if err != nil {
		return nil, err
	}
	return map[string]any{"content": content}, nil
}

// --- prompts ---

func handlePromptsList(ctx context.Context, s *Session, _ json.RawMessage) (any, error) {
	if s.providers.Prompts == nil {
		return nil, provider.ErrUnsupportedCapability
	}
	prompts, err := s.providers.Prompts.ListPrompts(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"prompts": prompts}, nil
}

type promptsGetParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

func handlePromptsGet(ctx context.Context, s *Session, raw json.RawMessage) (any, error) {
	if s.providers.Prompts == nil {
		return nil, provider.ErrUnsupportedCapability
	}
	var params promptsGetParams
	if err := json.Unmarshal(raw, &params); err != nil || params.Name == "" {
		return nil, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "invalid prompts/get params", nil)
	}
	description, messages, err := s.providers.Prompts.GetPrompt(ctx, params.Name, params.Arguments)
	if err != nil {
		return nil, err
	}
	return map[string]any{"description": description, "messages": messages}, nil
}

// --- logging ---

type loggingSetLevelParams struct {
	Level string `json:"level"`
}

func handleLoggingSetLevel(ctx context.Context, s *Session, raw json.RawMessage) (any, error) {
	if s.providers.Logging == nil {
		return nil, provider.ErrUnsupportedCapability
	}
	var params loggingSetLevelParams
	if err := json.Unmarshal(raw, &params); err != nil || params.Level == "" {
		return nil, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "invalid logging/setLevel params", nil)
	}
	if err := s.providers.Logging.SetLoggingLevel(ctx, params.Level); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

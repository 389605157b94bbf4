package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// wireCombined is the on-the-wire shape shared by requests, notifications,
// and responses. Decode discriminates between them by which of these
// fields is present, never by a synthetic type tag — this matters for
// interop with other MCP implementations, which never emit one either.
type wireCombined struct {
	VersionTag string          `json:"jsonrpc"`
	ID         any             `json:"id,omitempty"`
	Method     string          `json:"method,omitempty"`
	Params     json.RawMessage `json:"params,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      *WireError      `json:"error,omitempty"`
}

const wireVersion = "2.0"

// Encode serializes msg to its wire form.
func Encode(msg Message) ([]byte, error) {
	wire := wireCombined{VersionTag: wireVersion}
	msg.marshal(&wire)
	data, err := json.Marshal(&wire)
	if err != nil {
		return nil, fmt.Errorf("jsonrpc: encode: %w", err)
	}
	return data, nil
}

// Decode parses wire-format bytes into a Request or Response.
//
// A payload with a non-empty "method" is a Request (call or notification
// depending on whether "id" is present). A payload with no "method" must
// carry a valid "id" and is treated as a Response; that ID is the value
// the caller correlates against a pending request.
func Decode(data []byte) (Message, error) {
	var wire wireCombined
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if wire.VersionTag != wireVersion {
		return nil, fmt.Errorf("%w: unsupported jsonrpc version %q", ErrInvalidRequest, wire.VersionTag)
	}

	id, err := MakeID(wire.ID)
	if err != nil {
		return nil, err
	}

	if wire.Method != "" {
		return &Request{ID: id, Method: wire.Method, Params: wire.Params}, nil
	}

	if !id.IsValid() {
		return nil, fmt.Errorf("%w: response with no id", ErrInvalidRequest)
	}
	return &Response{ID: id, Result: wire.Result, Error: wire.Error}, nil
}

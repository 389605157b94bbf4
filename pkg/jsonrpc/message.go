// Package jsonrpc implements the JSON-RPC 2.0 message model used to frame
// every request, response, and notification exchanged with an MCP peer.
// It is transport-agnostic: callers hand it bytes and get back one of the
// closed set of Message implementations, or the other way around.
package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// ID is a request identifier as defined by the JSON-RPC spec: a string, an
// integer, or absent/null. The zero value is the invalid ID (used by
// notifications, which have no ID at all).
type ID struct {
	value any
}

// StringID creates a string-valued request identifier.
func StringID(s string) ID { return ID{value: s} }

// Int64ID creates an integer-valued request identifier.
func Int64ID(i int64) ID { return ID{value: i} }

// IsValid reports whether id carries an actual value. The zero ID is not
// valid and marks a notification.
func (id ID) IsValid() bool { return id.value != nil }

// Raw returns the underlying string, int64, or nil value.
func (id ID) Raw() any { return id.value }

// String renders the ID for logging. It does not round-trip to JSON.
func (id ID) String() string {
	switch v := id.value.(type) {
	case nil:
		return "<none>"
	case string:
		return v
	case int64:
		return fmt.Sprintf("%d", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// MakeID coerces a value decoded from the wire "id" field into an ID. The
// value is assumed to be the result of decoding JSON into interface{}: nil,
// float64, or string. Any other type is a protocol error.
func MakeID(v any) (ID, error) {
	switch v := v.(type) {
	case nil:
		return ID{}, nil
	case float64:
		return Int64ID(int64(v)), nil
	case string:
		return StringID(v), nil
	}
	return ID{}, fmt.Errorf("%w: invalid id type %T", ErrParse, v)
}

// Message is the interface implemented by every JSON-RPC message this
// module knows how to frame: *Request and *Response. The set is closed by
// the unexported marshal method, so no external package can add a third
// implementation that Encode wouldn't know how to handle.
type Message interface {
	marshal(to *wireCombined)
}

// Request is a Message sent to a peer asking it to do something. A Request
// with a valid ID is a call (it expects a Response); a Request with no ID
// is a notification (fire-and-forget).
type Request struct {
	// ID ties a Response back to this Request. Zero value for notifications.
	ID ID
	// Method names the operation to invoke, e.g. "tools/call".
	Method string
	// Params holds the method's arguments, already-encoded JSON.
	Params json.RawMessage
}

// IsCall reports whether this Request expects a Response.
func (r *Request) IsCall() bool { return r.ID.IsValid() }

func (r *Request) marshal(to *wireCombined) {
	to.ID = r.ID.value
	to.Method = r.Method
	to.Params = r.Params
}

// Response is a reply to a call Request, carrying the same ID.
type Response struct {
	// ID of the call this is a response to.
	ID ID
	// Result holds the successful result, already-encoded JSON.
	// Ignored when Error is set.
	Result json.RawMessage
	// Error is set only when the call failed.
	Error *WireError
}

func (r *Response) marshal(to *wireCombined) {
	to.ID = r.ID.value
	to.Result = r.Result
	to.Error = r.Error
}

// NewRequest constructs a call Request for the given id, method and params.
func NewRequest(id ID, method string, params any) (*Request, error) {
	p, err := marshalToRaw(params)
	if err != nil {
		return nil, err
	}
	return &Request{ID: id, Method: method, Params: p}, nil
}

// NewNotification constructs a Request with no ID — a notification.
func NewNotification(method string, params any) (*Request, error) {
	p, err := marshalToRaw(params)
	if err != nil {
		return nil, err
	}
	return &Request{Method: method, Params: p}, nil
}

// NewResponse constructs a Response to id. If rerr is non-nil it is
// converted to a WireError (preserving the code when rerr already wraps
// one) and result is ignored.
func NewResponse(id ID, result any, rerr error) (*Response, error) {
	if rerr != nil {
		return &Response{ID: id, Error: toWireError(rerr)}, nil
	}
	r, err := marshalToRaw(result)
	if err != nil {
		return nil, err
	}
	return &Response{ID: id, Result: r}, nil
}

func marshalToRaw(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("jsonrpc: marshal params/result: %w", err)
	}
	return json.RawMessage(data), nil
}

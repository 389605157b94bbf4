package jsonrpc

import (
	"encoding/json"
	"testing"
)

func TestEncodeDecodeRequest(t *testing.T) {
	params := json.RawMessage(`{"name":"file_read","arguments":{"path":"/tmp/test.txt"}}`)
	req, err := NewRequest(Int64ID(1), "tools/call", nil)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	req.Params = params

	encoded, err := Encode(req)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	decodedReq, ok := decoded.(*Request)
	if !ok {
		t.Fatalf("expected *Request, got %T", decoded)
	}
	if decodedReq.Method != "tools/call" {
		t.Errorf("expected method 'tools/call', got %q", decodedReq.Method)
	}
	if decodedReq.ID.Raw() != int64(1) {
		t.Errorf("expected id 1, got %v", decodedReq.ID.Raw())
	}
}

func TestEncodeDecodeNotification(t *testing.T) {
	req, err := NewNotification("notifications/initialized", nil)
	if err != nil {
		t.Fatalf("NewNotification failed: %v", err)
	}
	if req.IsCall() {
		t.Error("notification should not be a call")
	}

	encoded, err := Encode(req)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	decodedReq, ok := decoded.(*Request)
	if !ok {
		t.Fatalf("expected *Request, got %T", decoded)
	}
	if decodedReq.IsCall() {
		t.Error("decoded notification should not be a call")
	}
}

func TestEncodeDecodeResponse(t *testing.T) {
	result := json.RawMessage(`{"content":"hello world"}`)
	resp, err := NewResponse(Int64ID(1), nil, nil)
	if err != nil {
		t.Fatalf("NewResponse failed: %v", err)
	}
	resp.Result = result

	encoded, err := Encode(resp)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	decodedResp, ok := decoded.(*Response)
	if !ok {
		t.Fatalf("expected *Response, got %T", decoded)
	}
	if decodedResp.Result == nil {
		t.Error("expected result to be set")
	}
	if decodedResp.Error != nil {
		t.Errorf("expected no error, got %v", decodedResp.Error)
	}
}

func TestEncodeDecodeErrorResponse(t *testing.T) {
	resp, err := NewResponse(Int64ID(2), nil, NewError(CodeMethodNotFound, "method not found", nil))
	if err != nil {
		t.Fatalf("NewResponse failed: %v", err)
	}

	encoded, err := Encode(resp)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	decodedResp, ok := decoded.(*Response)
	if !ok {
		t.Fatalf("expected *Response, got %T", decoded)
	}
	if decodedResp.Error == nil {
		t.Fatal("expected error to be set")
	}
	if decodedResp.Error.Code != CodeMethodNotFound {
		t.Errorf("expected code %d, got %d", CodeMethodNotFound, decodedResp.Error.Code)
	}
}

func TestIDPreservesStringVsNumberTag(t *testing.T) {
	// "1" (string) and 1 (number) are distinct request identifiers.
	strID := StringID("1")
	numID := Int64ID(1)

	if strID.Raw() == numID.Raw() {
		t.Error("string id and numeric id must not compare equal via Raw()")
	}

	encodedStr, err := Encode(&Request{ID: strID, Method: "ping"})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decodedStr, err := Decode(encodedStr)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if id := decodedStr.(*Request).ID.Raw(); id != "1" {
		t.Errorf("expected round-tripped string id \"1\", got %v (%T)", id, id)
	}
}

func TestDecodeRejectsResponseWithoutID(t *testing.T) {
	_, err := Decode([]byte(`{"jsonrpc":"2.0","result":{}}`))
	if err == nil {
		t.Fatal("expected error decoding a response with no id")
	}
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	if err == nil {
		t.Fatal("expected error decoding malformed json")
	}
}

func TestMakeIDRejectsInvalidType(t *testing.T) {
	if _, err := MakeID(true); err == nil {
		t.Error("expected error coercing a bool to an ID")
	}
}

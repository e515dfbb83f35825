package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// jsonrpcVersion is the JSON-RPC protocol version used by MCP.
const jsonrpcVersion = "2.0"

// Method names used by the client.
const (
	MethodToolsList = "tools/list"
	MethodToolsCall = "tools/call"
)

// Request is a JSON-RPC 2.0 request message. Params is always encoded,
// as an empty object when there are no parameters.
type Request struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params"`
	ID      int64          `json:"id"`
}

// NewRequest creates a JSON-RPC 2.0 request with the given method and params.
func NewRequest(id int64, method string, params map[string]any) *Request {
	if params == nil {
		params = map[string]any{}
	}
	return &Request{
		JSONRPC: jsonrpcVersion,
		Method:  method,
		Params:  params,
		ID:      id,
	}
}

// Frame is a JSON-RPC message decoded from a single event payload.
// Result and Error hold the raw member values exactly as the server sent
// them; a member that is absent from the frame is nil, while a member
// present with a JSON null value is the literal "null".
type Frame struct {
	ID     int64
	Result json.RawMessage
	Error  json.RawMessage
}

// decodeFrame parses payload as a JSON-RPC message. It reports false for
// anything that is not a JSON object carrying both a "jsonrpc" member and
// a numeric "id": pings, notifications, heartbeats and garbage alike.
func decodeFrame(payload []byte) (*Frame, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, false
	}
	if _, ok := fields["jsonrpc"]; !ok {
		return nil, false
	}

	rawID, ok := fields["id"]
	if !ok || isNull(rawID) {
		return nil, false
	}
	var id float64
	if err := json.Unmarshal(rawID, &id); err != nil {
		return nil, false
	}
	if id != float64(int64(id)) {
		return nil, false
	}

	return &Frame{
		ID:     int64(id),
		Result: fields["result"],
		Error:  fields["error"],
	}, true
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface for RPCError.
func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

package mcp

import (
	"encoding/json"
	"fmt"
)

// TransportError reports that a request could not be carried out at the
// HTTP level: the connection failed, the request timed out, the response
// body could not be read, or the server answered with a non-2xx status.
type TransportError struct {
	URL string

	// StatusCode is the HTTP status for status failures, zero otherwise.
	StatusCode int

	// Body is a bounded prefix of the response body for status failures.
	Body string

	Err error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		if e.Body != "" {
			return fmt.Sprintf("transport: %s returned HTTP %d: %s", e.URL, e.StatusCode, e.Body)
		}
		return fmt.Sprintf("transport: %s returned HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("transport: %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports that the server answered the request with a
// JSON-RPC error. Payload is the "error" member exactly as received.
type ProtocolError struct {
	ID      int64
	Payload json.RawMessage
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("MCP error: %s", e.Payload)
}

// RPCError decodes the payload into the standard JSON-RPC error shape.
// It returns nil when the payload does not have that shape.
func (e *ProtocolError) RPCError() *RPCError {
	var rpcErr RPCError
	if err := json.Unmarshal(e.Payload, &rpcErr); err != nil {
		return nil
	}
	if rpcErr.Code == 0 && rpcErr.Message == "" {
		return nil
	}
	return &rpcErr
}

// NoResponseError reports that the event stream ended without carrying
// a response for the outstanding request.
type NoResponseError struct {
	ID int64
}

func (e *NoResponseError) Error() string {
	return fmt.Sprintf("no valid JSON-RPC response received from server (request id %d)", e.ID)
}

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Client speaks JSON-RPC to a single MCP server through a Session. Each
// call posts one request and waits on that request's own response
// stream; nothing but the request counter survives between calls.
//
// Calls are serialized: a second call blocks until the first has
// returned, so at most one response is ever awaited.
type Client struct {
	session *Session
	logger  *slog.Logger

	mu     sync.Mutex
	nextID int64
}

// NewClient creates a client that sends requests through session.
func NewClient(session *Session, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		session: session,
		logger:  logger.With("mcp_server", session.URL()),
	}
}

// ListTools calls tools/list and returns the raw result. Interpreting it
// (an object with a "tools" member, or a bare list) is up to the caller.
func (c *Client) ListTools(ctx context.Context) (json.RawMessage, error) {
	return c.send(ctx, MethodToolsList, nil)
}

// CallTool invokes a tool by name and returns the raw result. Nil
// arguments are sent as an empty object.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	if args == nil {
		args = map[string]any{}
	}
	return c.send(ctx, MethodToolsCall, map[string]any{
		"name":      name,
		"arguments": args,
	})
}

// LastID returns the id of the most recent request, or zero before the
// first one.
func (c *Client) LastID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextID
}

// send issues one request and waits for its response. Errors are
// returned unwrapped so callers can match *TransportError,
// *ProtocolError and *NoResponseError directly.
func (c *Client) send(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	req := NewRequest(c.nextID, method, params)

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", method, err)
	}

	c.logger.Debug("sending MCP request", "method", method, "id", req.ID)

	stream, err := c.session.Open(ctx, body)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if stream.IsJSON() {
		return c.awaitJSON(stream, req.ID)
	}

	result, err := AwaitResult(stream.Lines(), req.ID, c.logger)
	var noResp *NoResponseError
	if errors.As(err, &noResp) && stream.Err() != nil {
		// The stream was cut short, not closed by the server.
		return nil, stream.Err()
	}
	return result, err
}

// awaitJSON handles servers that answer with a single JSON body rather
// than an event stream.
func (c *Client) awaitJSON(stream *EventStream, id int64) (json.RawMessage, error) {
	data, err := stream.ReadAll()
	if err != nil {
		return nil, err
	}
	result, matched, err := MatchFrame(data, id)
	if !matched {
		c.logger.Log(context.Background(), levelTrace, "JSON body is not the expected response", "body", string(data))
		return nil, &NoResponseError{ID: id}
	}
	return result, err
}

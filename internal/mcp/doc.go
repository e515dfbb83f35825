// Package mcp implements the client side of MCP tool invocation over
// streamable HTTP.
//
// Every request is a single HTTP POST carrying one JSON-RPC 2.0 message.
// The server answers with an event stream in which each "data: " line may
// hold a JSON-RPC message; the client reads that stream until it sees the
// response whose id matches the request, ignoring pings, comments, and
// anything it cannot parse. The only operations are tools/list and
// tools/call. There is no initialize handshake, no session affinity and
// no retry: a failed call surfaces as one of *TransportError,
// *ProtocolError or *NoResponseError and the caller decides what to do.
package mcp

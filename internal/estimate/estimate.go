// Package estimate measures the token cost of an MCP server's tools. It
// lists the server's tools, calls each one, and counts the tokens in
// what comes back.
package estimate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tidwall/gjson"

	"github.com/nugget/mcptok/internal/config"
	"github.com/nugget/mcptok/internal/mcp"
	"github.com/nugget/mcptok/internal/tokenizer"
)

// InitializationTool is the pseudo-tool under which the tools/list
// response itself is counted: it is what a model pays to learn the
// server's tools.
const InitializationTool = "__INITIALIZATION__"

// Caller is the part of the MCP client the estimator drives.
type Caller interface {
	ListTools(ctx context.Context) (json.RawMessage, error)
	CallTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error)
}

// Options controls a single estimation run.
type Options struct {
	// Server identifies the server in the report.
	Server string

	// Inputs lists the tools to call and their arguments, in order. When
	// nil, every tool returned by tools/list is called with no arguments.
	Inputs []config.ToolInput

	// CostPerMillion, when set, prices every count in the report.
	CostPerMillion *float64
}

// Estimator runs estimations against one MCP server.
type Estimator struct {
	caller  Caller
	counter tokenizer.Counter
	logger  *slog.Logger
}

// New creates an Estimator.
func New(caller Caller, counter tokenizer.Counter, logger *slog.Logger) *Estimator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Estimator{caller: caller, counter: counter, logger: logger}
}

// Run lists the server's tools and calls each selected tool in turn. A
// failing tool is recorded in the report and does not stop the run; only
// a failed tools/list is returned as an error. If ctx is cancelled
// between tools, the partial report is returned together with ctx.Err().
func (e *Estimator) Run(ctx context.Context, opts Options) (*Report, error) {
	report := &Report{Server: opts.Server, CostPerMillion: opts.CostPerMillion}

	listing, err := e.caller.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	report.Entries = append(report.Entries, Entry{
		Tool:   InitializationTool,
		Tokens: e.counter.Count(jsonText(listing)),
	})

	var candidates []toolName
	if opts.Inputs != nil {
		for _, in := range opts.Inputs {
			candidates = append(candidates, toolName{name: in.Name, valid: in.Name != "", display: in.Name})
		}
	} else {
		candidates, err = toolNames(listing)
		if err != nil {
			return nil, err
		}
	}
	e.logger.Info("estimating tools", "server", opts.Server, "count", len(candidates))

	args := make(map[string]map[string]any, len(opts.Inputs))
	for _, in := range opts.Inputs {
		args[in.Name] = in.Arguments
	}

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if !c.valid {
			e.logger.Warn("skipping invalid tool name", "value", c.display)
			report.Entries = append(report.Entries, Entry{Tool: c.display, Status: StatusSkipped})
			continue
		}

		result, err := e.caller.CallTool(ctx, c.name, args[c.name])
		if err != nil {
			e.logger.Warn("tool call failed", "tool", c.name, "kind", ErrorKind(err), "error", err)
			report.Entries = append(report.Entries, Entry{
				Tool:    c.name,
				Status:  StatusFailed,
				ErrKind: ErrorKind(err),
				Err:     err,
			})
			continue
		}

		tokens := e.counter.Count(ExtractContent(result))
		e.logger.Debug("tool measured", "tool", c.name, "tokens", tokens)
		report.Entries = append(report.Entries, Entry{Tool: c.name, Tokens: tokens})
	}

	return report, nil
}

// toolName is a candidate tool taken from a tools/list response.
type toolName struct {
	name    string
	valid   bool
	display string
}

// toolNames pulls tool names out of a tools/list result, which is either
// an object with a "tools" array or a bare array. Each element is an
// object with a "name" member or a plain string; anything else becomes
// an invalid candidate so the report can show it was skipped.
func toolNames(listing json.RawMessage) ([]toolName, error) {
	res := gjson.ParseBytes(listing)

	var items gjson.Result
	switch {
	case res.IsObject() && res.Get("tools").IsArray():
		items = res.Get("tools")
	case res.IsArray():
		items = res
	default:
		return nil, fmt.Errorf("unexpected tools/list response format: %s", truncate(jsonText(listing), 200))
	}

	var names []toolName
	for _, item := range items.Array() {
		v := item
		if item.IsObject() {
			v = item.Get("name")
		}
		if v.Type == gjson.String && v.Str != "" {
			names = append(names, toolName{name: v.Str, valid: true, display: v.Str})
			continue
		}
		display := v.Raw
		if !v.Exists() {
			display = "null"
		}
		names = append(names, toolName{display: display})
	}
	return names, nil
}

// ExtractContent returns the text of a tools/call result that gets
// counted: the "content" member if it is truthy, else the "result"
// member if truthy, else the whole result. Strings are used as-is and
// every other value as JSON text.
func ExtractContent(result json.RawMessage) string {
	res := gjson.ParseBytes(result)
	if res.IsObject() {
		for _, key := range []string{"content", "result"} {
			if v := res.Get(key); truthy(v) {
				return render(v)
			}
		}
	}
	return render(res)
}

// truthy treats null, false, 0, "" and empty containers as absent.
func truthy(v gjson.Result) bool {
	switch v.Type {
	case gjson.Null:
		return false
	case gjson.False:
		return false
	case gjson.Number:
		return v.Num != 0
	case gjson.String:
		return v.Str != ""
	case gjson.JSON:
		if v.IsArray() {
			return len(v.Array()) > 0
		}
		return len(v.Map()) > 0
	}
	return v.Exists()
}

func render(v gjson.Result) string {
	if v.Type == gjson.String {
		return v.Str
	}
	return jsonText([]byte(v.Raw))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Error kinds reported for failed tools.
const (
	KindTransport  = "transport"
	KindProtocol   = "protocol"
	KindNoResponse = "no_response"
	KindOther      = "other"
)

// ErrorKind classifies an error returned by a Caller.
func ErrorKind(err error) string {
	var (
		transportErr *mcp.TransportError
		protocolErr  *mcp.ProtocolError
		noRespErr    *mcp.NoResponseError
	)
	switch {
	case errors.As(err, &transportErr):
		return KindTransport
	case errors.As(err, &protocolErr):
		return KindProtocol
	case errors.As(err, &noRespErr):
		return KindNoResponse
	default:
		return KindOther
	}
}

// Cost prices tokens at perMillion per million tokens.
func Cost(tokens int, perMillion float64) float64 {
	return float64(tokens) / 1_000_000 * perMillion
}

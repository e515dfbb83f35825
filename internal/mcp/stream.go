package mcp

import (
	"context"
	"encoding/json"
	"iter"
	"log/slog"
	"strings"
)

// levelTrace matches config.LevelTrace; discarded events are logged at it.
const levelTrace = slog.Level(-8)

// dataPrefix marks an event-stream line that carries a payload.
const dataPrefix = "data: "

// AwaitResult consumes lines until it finds the JSON-RPC response whose
// id equals id, and returns that response's result member verbatim.
//
// Empty lines, comments (":"), lines without the "data: " prefix,
// payloads that are not JSON, JSON that is not a JSON-RPC message and
// responses for other ids are all skipped. The first matching response
// ends consumption: an "error" member becomes a *ProtocolError,
// otherwise the result is returned. If lines runs out first the error is
// a *NoResponseError.
func AwaitResult(lines iter.Seq[string], id int64, logger *slog.Logger) (json.RawMessage, error) {
	if logger == nil {
		logger = slog.Default()
	}

	for line := range lines {
		payload, ok := dataPayload(line)
		if !ok {
			logger.Log(context.Background(), levelTrace, "skipping event line", "line", line)
			continue
		}

		result, matched, err := MatchFrame([]byte(payload), id)
		if !matched {
			logger.Log(context.Background(), levelTrace, "skipping event payload", "payload", payload)
			continue
		}
		return result, err
	}

	return nil, &NoResponseError{ID: id}
}

// MatchFrame checks a single payload against the expected id. matched is
// false when payload is not the response to id, in which case result and
// err are both nil. When matched, exactly one of result and err is set.
func MatchFrame(payload []byte, id int64) (result json.RawMessage, matched bool, err error) {
	frame, ok := decodeFrame(payload)
	if !ok || frame.ID != id {
		return nil, false, nil
	}

	if frame.Error != nil {
		return nil, true, &ProtocolError{ID: id, Payload: frame.Error}
	}
	switch {
	case frame.Result == nil:
		return json.RawMessage("{}"), true, nil
	case isNull(frame.Result):
		return nil, true, &NoResponseError{ID: id}
	}
	return frame.Result, true, nil
}

// dataPayload extracts the payload of a "data: " line. Everything else,
// including comments and blank keep-alive lines, is reported as not a
// payload.
func dataPayload(line string) (string, bool) {
	if line == "" || strings.HasPrefix(line, ":") {
		return "", false
	}
	if !strings.HasPrefix(line, dataPrefix) {
		return "", false
	}
	return line[len(dataPrefix):], true
}

package mcp

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/nugget/mcptok/internal/httpkit"
)

// maxLineSize bounds a single event-stream line. Tool results can be
// large, so this is well above bufio's 64 KiB default.
const maxLineSize = 16 << 20

// SessionConfig configures a Session.
type SessionConfig struct {
	// URL is the MCP server endpoint. Trailing slashes are trimmed.
	URL string

	// Token is an optional bearer token sent on every request.
	Token string

	// Timeout bounds each request, including reading the streamed
	// response. Zero means httpkit.DefaultTimeout.
	Timeout time.Duration

	// Insecure skips TLS certificate verification.
	Insecure bool

	// Logger is the structured logger for transport diagnostics.
	Logger *slog.Logger
}

// Session issues one streaming HTTP POST per call to a fixed endpoint.
// It holds no per-request state.
type Session struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewSession creates a Session for the given config. The underlying
// HTTP client is constructed via httpkit.
func NewSession(cfg SessionConfig) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = httpkit.DefaultTimeout
	}
	opts := []httpkit.ClientOption{
		httpkit.WithTimeout(timeout),
		httpkit.WithBearerToken(cfg.Token),
	}
	if cfg.Insecure {
		opts = append(opts, httpkit.WithTLSInsecureSkipVerify())
	}

	return &Session{
		url:        strings.TrimRight(cfg.URL, "/"),
		httpClient: httpkit.NewClient(opts...),
		logger:     logger,
	}
}

// URL returns the endpoint requests are posted to.
func (s *Session) URL() string {
	return s.url
}

// Open posts body to the endpoint and returns the response as a line
// stream. The caller must Close the stream. Connection failures and
// non-2xx statuses are reported as *TransportError.
func (s *Session) Open(ctx context.Context, body []byte) (*EventStream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{URL: s.url, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{URL: s.url, Err: err}
	}

	if !httpkit.IsSuccess(resp.StatusCode) {
		errBody := httpkit.ReadErrorBody(resp.Body, 4<<10)
		return nil, &TransportError{URL: s.url, StatusCode: resp.StatusCode, Body: strings.TrimSpace(errBody)}
	}

	s.logger.Debug("MCP response stream opened",
		"status", resp.StatusCode,
		"content_type", resp.Header.Get("Content-Type"),
	)

	return newEventStream(s.url, resp.Header.Get("Content-Type"), resp.Body), nil
}

// EventStream is a live HTTP response body consumed line by line.
type EventStream struct {
	url         string
	contentType string
	body        io.ReadCloser
	scanner     *bufio.Scanner
	limit       int64
	err         error
}

func newEventStream(url, contentType string, body io.ReadCloser) *EventStream {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64<<10), maxLineSize)
	sc.Split(scanEventLines)
	return &EventStream{
		url:         url,
		contentType: contentType,
		body:        body,
		scanner:     sc,
		limit:       maxLineSize,
	}
}

// scanEventLines is a bufio.SplitFunc for event streams, where a line
// ends at "\r\n", "\n" or a lone "\r". A "\r" at the end of the buffered
// data waits for the next byte so that a split "\r\n" is not read as two
// line ends.
func scanEventLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		switch {
		case i+1 < len(data) && data[i+1] == '\n':
			return i + 2, data[:i], nil
		case i+1 < len(data) || atEOF:
			return i + 1, data[:i], nil
		}
		return 0, nil, nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// IsJSON reports whether the server answered with a plain JSON body
// instead of an event stream.
func (s *EventStream) IsJSON() bool {
	mt, _, err := mime.ParseMediaType(s.contentType)
	return err == nil && mt == "application/json"
}

// Lines returns the remaining lines of the body, without line
// terminators. The sequence ends when the body is exhausted or a read
// fails; it can only be consumed once. Breaking out of the loop stops
// reading immediately.
func (s *EventStream) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		for s.scanner.Scan() {
			if !yield(s.scanner.Text()) {
				return
			}
		}
		if err := s.scanner.Err(); err != nil {
			s.err = &TransportError{URL: s.url, Err: err}
		}
	}
}

// ReadAll returns the rest of the body. A body larger than the line
// limit is a *TransportError rather than a truncated read.
func (s *EventStream) ReadAll() ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(s.body, s.limit+1))
	if err != nil {
		s.err = &TransportError{URL: s.url, Err: err}
		return nil, s.err
	}
	if int64(len(data)) > s.limit {
		s.err = &TransportError{URL: s.url, Err: fmt.Errorf("response body exceeds %d bytes", s.limit)}
		return nil, s.err
	}
	return data, nil
}

// Err returns the read error that ended the stream, if any. A stream
// that ended because the server closed it cleanly has no error.
func (s *EventStream) Err() error {
	return s.err
}

// Close releases the connection without reading the remainder of the
// body.
func (s *EventStream) Close() error {
	err := s.body.Close()
	if errors.Is(err, http.ErrBodyReadAfterClose) {
		return nil
	}
	return err
}

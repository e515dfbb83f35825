package httpkit

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewClient_DefaultTimeout(t *testing.T) {
	c := NewClient()
	if c.Timeout != DefaultTimeout {
		t.Errorf("expected %v timeout, got %v", DefaultTimeout, c.Timeout)
	}
}

func TestNewClient_CustomTimeout(t *testing.T) {
	c := NewClient(WithTimeout(5 * time.Second))
	if c.Timeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %v", c.Timeout)
	}
}

// echoHeader returns a server that writes back the named request header.
func echoHeader(t *testing.T, name string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.Header.Get(name)))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, c *http.Client, req *http.Request) string {
	t.Helper()
	resp, err := c.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return string(body)
}

func TestNewClient_UserAgent(t *testing.T) {
	srv := echoHeader(t, "User-Agent")

	req, _ := http.NewRequest("GET", srv.URL, nil)
	if got := get(t, NewClient(WithUserAgent("TestBot/1.0")), req); got != "TestBot/1.0" {
		t.Errorf("expected TestBot/1.0, got %q", got)
	}
}

func TestNewClient_DefaultUserAgent(t *testing.T) {
	srv := echoHeader(t, "User-Agent")

	req, _ := http.NewRequest("GET", srv.URL, nil)
	if got := get(t, NewClient(), req); !strings.HasPrefix(got, "mcptok/") {
		t.Errorf("expected mcptok/ prefix, got %q", got)
	}
}

func TestNewClient_WithoutUserAgent(t *testing.T) {
	srv := echoHeader(t, "User-Agent")

	req, _ := http.NewRequest("GET", srv.URL, nil)
	if got := get(t, NewClient(WithoutUserAgent()), req); strings.HasPrefix(got, "mcptok/") {
		t.Errorf("expected no mcptok/ prefix with WithoutUserAgent, got %q", got)
	}
}

func TestNewClient_ExistingUserAgentNotOverwritten(t *testing.T) {
	srv := echoHeader(t, "User-Agent")

	req, _ := http.NewRequest("GET", srv.URL, nil)
	req.Header.Set("User-Agent", "CustomBot/2.0")
	if got := get(t, NewClient(), req); got != "CustomBot/2.0" {
		t.Errorf("expected CustomBot/2.0, got %q", got)
	}
}

func TestNewClient_BearerToken(t *testing.T) {
	srv := echoHeader(t, "Authorization")

	req, _ := http.NewRequest("GET", srv.URL, nil)
	if got := get(t, NewClient(WithBearerToken("s3cret")), req); got != "Bearer s3cret" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer s3cret")
	}

	req, _ = http.NewRequest("GET", srv.URL, nil)
	if got := get(t, NewClient(WithBearerToken("")), req); got != "" {
		t.Errorf("empty token should send no Authorization, got %q", got)
	}
}

func TestNewTransport_HasTimeouts(t *testing.T) {
	tr := NewTransport()
	if tr.TLSHandshakeTimeout != DefaultTLSHandshakeTimeout {
		t.Errorf("TLSHandshakeTimeout: got %v, want %v", tr.TLSHandshakeTimeout, DefaultTLSHandshakeTimeout)
	}
	if tr.ResponseHeaderTimeout != 0 {
		t.Errorf("ResponseHeaderTimeout: got %v, want 0", tr.ResponseHeaderTimeout)
	}
	if tr.IdleConnTimeout != DefaultIdleConnTimeout {
		t.Errorf("IdleConnTimeout: got %v, want %v", tr.IdleConnTimeout, DefaultIdleConnTimeout)
	}
	if tr.MaxIdleConnsPerHost != DefaultMaxIdleConnsPerHost {
		t.Errorf("MaxIdleConnsPerHost: got %d, want %d", tr.MaxIdleConnsPerHost, DefaultMaxIdleConnsPerHost)
	}
}

func TestNewClient_TLSInsecureSkipVerify(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("secure"))
	}))
	defer srv.Close()

	strict := NewClient(WithTimeout(2 * time.Second))
	if _, err := strict.Get(srv.URL); err == nil {
		t.Fatal("expected TLS error with strict client")
	}

	insecure := NewClient(
		WithTimeout(2*time.Second),
		WithTLSInsecureSkipVerify(),
	)
	resp, err := insecure.Get(srv.URL)
	if err != nil {
		t.Fatalf("expected success with insecure client, got: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "secure" {
		t.Errorf("expected 'secure', got %q", body)
	}
}

func TestIsSuccess(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{200, true},
		{202, true},
		{299, true},
		{199, false},
		{301, false},
		{401, false},
		{500, false},
	}
	for _, tt := range tests {
		if got := IsSuccess(tt.code); got != tt.want {
			t.Errorf("IsSuccess(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestDrainAndClose(t *testing.T) {
	rc := io.NopCloser(strings.NewReader("hello world"))
	DrainAndClose(rc, 1024)  // should not panic
	DrainAndClose(nil, 1024) // nil should not panic
}

func TestReadErrorBody(t *testing.T) {
	rc := io.NopCloser(strings.NewReader("error details here"))
	got := ReadErrorBody(rc, 512)
	if got != "error details here" {
		t.Errorf("expected error body, got %q", got)
	}
}

func TestReadErrorBody_Truncated(t *testing.T) {
	rc := io.NopCloser(strings.NewReader(strings.Repeat("x", 1000)))
	got := ReadErrorBody(rc, 10)
	if len(got) != 10 {
		t.Errorf("expected 10 bytes, got %d", len(got))
	}
}

func TestReadErrorBody_Nil(t *testing.T) {
	if got := ReadErrorBody(nil, 512); got != "" {
		t.Errorf("expected empty string for nil, got %q", got)
	}
}

func TestReadErrorBody_Error(t *testing.T) {
	got := ReadErrorBody(io.NopCloser(&failReader{}), 512)
	if !strings.Contains(got, "failed to read") {
		t.Errorf("expected failure message, got %q", got)
	}
}

type failReader struct{}

func (f *failReader) Read([]byte) (int, error) {
	return 0, fmt.Errorf("simulated read error")
}

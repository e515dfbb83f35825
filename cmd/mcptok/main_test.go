package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nugget/mcptok/internal/estimate"
)

// mcpServer is a minimal streamable-HTTP MCP server. tools/list returns
// the configured tool names; tools/call answers from results, or with a
// JSON-RPC error for names in failing.
type mcpServer struct {
	tools   []string
	results map[string]string
	failing map[string]bool

	mu    sync.Mutex
	calls []string
	args  map[string]map[string]any
	auth  []string
}

func (s *mcpServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     int64  `json:"id"`
		Method string `json:"method"`
		Params struct {
			Name      string         `json:"name"`
			Arguments map[string]any `json:"arguments"`
		} `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.auth = append(s.auth, r.Header.Get("Authorization"))
	s.mu.Unlock()

	var frame string
	switch req.Method {
	case "tools/list":
		descs := make([]map[string]string, 0, len(s.tools))
		for _, name := range s.tools {
			descs = append(descs, map[string]string{"name": name, "description": "The " + name + " tool"})
		}
		result, _ := json.Marshal(map[string]any{"tools": descs})
		frame = fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":%s}`, req.ID, result)
	case "tools/call":
		s.mu.Lock()
		s.calls = append(s.calls, req.Params.Name)
		if s.args == nil {
			s.args = make(map[string]map[string]any)
		}
		s.args[req.Params.Name] = req.Params.Arguments
		s.mu.Unlock()

		if s.failing[req.Params.Name] {
			frame = fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"error":{"code":-32000,"message":"tool exploded"}}`, req.ID)
		} else {
			result := s.results[req.Params.Name]
			if result == "" {
				result = `{"content":"ok"}`
			}
			frame = fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":%s}`, req.ID, result)
		}
	default:
		http.Error(w, "unknown method", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	fmt.Fprintf(w, ": keepalive\n\n")
	fmt.Fprintf(w, "event: message\ndata: {\"jsonrpc\":\"2.0\",\"method\":\"notifications/progress\"}\n\n")
	fmt.Fprintf(w, "event: message\ndata: %s\n\n", frame)
}

func (s *mcpServer) recorded() (calls []string, args map[string]map[string]any, auth []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...), s.args, append([]string(nil), s.auth...)
}

func (s *mcpServer) resetAuth() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auth = nil
}

func startServer(t *testing.T, s *mcpServer) string {
	t.Helper()
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return srv.URL + "/mcp"
}

// testEnv isolates a test from the user's settings, token and history.
// It returns the path of an empty settings file.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("MCPTOK_TOKEN", "")

	cfg := filepath.Join(dir, "mcptok.yaml")
	content := "history_db: " + filepath.Join(dir, "history.db") + "\n"
	if err := os.WriteFile(cfg, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func runCmd(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), &stdout, &stderr, args)
	return stdout.String(), stderr.String(), err
}

func TestEstimate_TextReport(t *testing.T) {
	cfg := testEnv(t)
	srv := &mcpServer{
		tools:   []string{"echo", "clock"},
		results: map[string]string{"echo": `{"content":"abcdefgh"}`},
	}
	url := startServer(t, srv)

	out, _, err := runCmd(t, "estimate", url, "--config", cfg, "-e", "heuristic", "-c", "1000000")
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	for _, want := range []string{
		"[INITIALIZATION] tokens = ",
		"[echo] tokens = 2 | cost = $2.000000\n",
		"[clock] tokens = 1 | cost = $1.000000\n",
		"[TOTAL] tokens = ",
		`"server": "` + url + `"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	calls, _, _ := srv.recorded()
	if diff := cmp.Diff([]string{"echo", "clock"}, calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestRoot_EstimatesWithURL(t *testing.T) {
	cfg := testEnv(t)
	url := startServer(t, &mcpServer{tools: []string{"echo"}})

	out, _, err := runCmd(t, url, "--config", cfg, "-e", "heuristic", "-o", "json")
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	var summary estimate.Summary
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if summary.Server != url {
		t.Errorf("server = %q, want %q", summary.Server, url)
	}
	if len(summary.Results) != 2 || summary.Results[0].Tool != estimate.InitializationTool || summary.Results[1].Tool != "echo" {
		t.Errorf("results = %+v", summary.Results)
	}
}

func TestEstimate_ToolFailureKeepsExitStatus(t *testing.T) {
	cfg := testEnv(t)
	url := startServer(t, &mcpServer{
		tools:   []string{"broken", "fine"},
		failing: map[string]bool{"broken": true},
	})

	out, _, err := runCmd(t, "estimate", url, "--config", cfg, "-e", "heuristic")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, `ERROR calling broken: MCP error: {"code":-32000,"message":"tool exploded"}`) {
		t.Errorf("missing error line:\n%s", out)
	}
	if !strings.Contains(out, "[fine] tokens = ") {
		t.Errorf("run stopped after failure:\n%s", out)
	}
}

func TestEstimate_ListFailureFails(t *testing.T) {
	cfg := testEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	out, _, err := runCmd(t, "estimate", srv.URL, "--config", cfg, "-e", "heuristic")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error %q does not mention the status", err)
	}
	if out != "" {
		t.Errorf("unexpected report output:\n%s", out)
	}
}

func TestEstimate_ToolsConfig(t *testing.T) {
	cfg := testEnv(t)
	srv := &mcpServer{tools: []string{"a", "b", "c"}}
	url := startServer(t, srv)

	toolsFile := filepath.Join(t.TempDir(), "tools.json")
	if err := os.WriteFile(toolsFile, []byte(`{"c": {"q": "x"}, "a": null}`), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := runCmd(t, "estimate", url, "--config", cfg, "-e", "heuristic", "-t", toolsFile); err != nil {
		t.Fatalf("run: %v", err)
	}

	calls, args, _ := srv.recorded()
	if diff := cmp.Diff([]string{"c", "a"}, calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]any{"q": "x"}, args["c"]); diff != "" {
		t.Errorf("args for c mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]any{}, args["a"]); diff != "" {
		t.Errorf("args for a mismatch (-want +got):\n%s", diff)
	}
}

func TestEstimate_TokenFromEnvironment(t *testing.T) {
	cfg := testEnv(t)
	t.Setenv("MCPTOK_TOKEN", "env-secret")
	srv := &mcpServer{}
	url := startServer(t, srv)

	if _, _, err := runCmd(t, "estimate", url, "--config", cfg, "-e", "heuristic"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, _, auth := srv.recorded(); len(auth) == 0 || auth[0] != "Bearer env-secret" {
		t.Errorf("Authorization = %v, want Bearer env-secret", auth)
	}

	srv.resetAuth()
	if _, _, err := runCmd(t, "estimate", url, "--config", cfg, "-e", "heuristic", "--token", "flag-secret"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, _, auth := srv.recorded(); len(auth) == 0 || auth[0] != "Bearer flag-secret" {
		t.Errorf("Authorization = %v, want Bearer flag-secret", auth)
	}
}

func TestEstimate_InvalidInvocation(t *testing.T) {
	cfg := testEnv(t)
	url := startServer(t, &mcpServer{tools: []string{"echo"}})

	tests := []struct {
		name string
		args []string
	}{
		{name: "unknown format", args: []string{"estimate", url, "--config", cfg, "-o", "csv"}},
		{name: "unknown encoding", args: []string{"estimate", url, "--config", cfg, "-e", "nope"}},
		{name: "unpriced model", args: []string{"estimate", url, "--config", cfg, "-m", "gpt-9"}},
		{name: "negative cost", args: []string{"estimate", url, "--config", cfg, "-c", "-1"}},
		{name: "missing tools config", args: []string{"estimate", url, "--config", cfg, "-t", "/nonexistent/tools.json"}},
		{name: "missing settings file", args: []string{"estimate", url, "--config", "/nonexistent/mcptok.yaml"}},
		{name: "no server url", args: []string{"estimate", "--config", cfg}},
		{name: "too many args", args: []string{"estimate", url, url, "--config", cfg}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := runCmd(t, tt.args...); err == nil {
				t.Errorf("run(%v) succeeded, want error", tt.args)
			}
		})
	}
}

func TestEstimate_ServerURLFromSettings(t *testing.T) {
	testEnv(t)
	url := startServer(t, &mcpServer{tools: []string{"echo"}})

	cfg := filepath.Join(t.TempDir(), "mcptok.yaml")
	if err := os.WriteFile(cfg, []byte("server_url: "+url+"\nencoding: heuristic\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	out, _, err := runCmd(t, "estimate", "--config", cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "[echo] tokens = ") {
		t.Errorf("output:\n%s", out)
	}
}

func TestEstimate_RecordAndHistory(t *testing.T) {
	cfg := testEnv(t)
	url := startServer(t, &mcpServer{tools: []string{"echo"}})

	for range 2 {
		if _, _, err := runCmd(t, "estimate", url, "--config", cfg, "-e", "heuristic", "--record", "-c", "2"); err != nil {
			t.Fatalf("run: %v", err)
		}
	}

	out, _, err := runCmd(t, "history", "--config", cfg, "-o", "json")
	if err != nil {
		t.Fatalf("history: %v", err)
	}

	var got struct {
		Runs []struct {
			ID       string  `json:"id"`
			Server   string  `json:"server"`
			Encoding string  `json:"encoding"`
			CostUSD  float64 `json:"cost_usd"`
		} `json:"runs"`
		Tools []struct {
			Tool string `json:"tool"`
			Runs int    `json:"runs"`
		} `json:"tools"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("history output is not JSON: %v\n%s", err, out)
	}
	if len(got.Runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(got.Runs))
	}
	if got.Runs[0].Server != url || got.Runs[0].Encoding != "heuristic" || got.Runs[0].CostUSD <= 0 {
		t.Errorf("run = %+v", got.Runs[0])
	}

	tools := make(map[string]int)
	for _, tl := range got.Tools {
		tools[tl.Tool] = tl.Runs
	}
	if diff := cmp.Diff(map[string]int{estimate.InitializationTool: 2, "echo": 2}, tools); diff != "" {
		t.Errorf("tool runs mismatch (-want +got):\n%s", diff)
	}

	out, _, err = runCmd(t, "history", "--config", cfg, "--run", got.Runs[0].ID, "-o", "json")
	if err != nil {
		t.Fatalf("history --run: %v", err)
	}
	var results []struct {
		Tool   string `json:"tool"`
		Tokens int    `json:"tokens"`
	}
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("history --run output is not JSON: %v\n%s", err, out)
	}
	if len(results) != 2 || results[0].Tool != estimate.InitializationTool || results[1].Tool != "echo" || results[1].Tokens <= 0 {
		t.Errorf("run results = %+v", results)
	}

	if _, _, err := runCmd(t, "history", "--config", cfg, "--run", "no-such-run"); err == nil || !strings.Contains(err.Error(), "no-such-run") {
		t.Errorf("history --run unknown: err = %v", err)
	}

	out, _, err = runCmd(t, "history", "--config", cfg, "--server", "http://elsewhere", "-o", "json")
	if err != nil {
		t.Fatalf("history --server: %v", err)
	}
	if !strings.Contains(out, `"runs": []`) {
		t.Errorf("filtered history not empty:\n%s", out)
	}
}

func TestTools_Definitions(t *testing.T) {
	cfg := testEnv(t)
	url := startServer(t, &mcpServer{tools: []string{"a", "much_longer_tool_name"}})

	out, _, err := runCmd(t, "tools", url, "--config", cfg, "-e", "heuristic", "-o", "json")
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	var defs []estimate.Definition
	if err := json.Unmarshal([]byte(out), &defs); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(defs) != 2 || defs[0].Name != "much_longer_tool_name" || defs[0].Tokens <= defs[1].Tokens {
		t.Errorf("definitions = %+v, want largest first", defs)
	}
	if defs[1].Description != "The a tool" {
		t.Errorf("description = %q", defs[1].Description)
	}
}

func TestVersion(t *testing.T) {
	out, _, err := runCmd(t, "version", "-o", "json")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var info map[string]string
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if info["version"] == "" || info["go_version"] == "" {
		t.Errorf("info = %v", info)
	}

	out, _, err = runCmd(t, "version")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.HasPrefix(out, "mcptok ") || !strings.Contains(out, "git_commit:") {
		t.Errorf("text version:\n%s", out)
	}
}

func TestRoot_NoArgsPrintsHelp(t *testing.T) {
	out, _, err := runCmd(t)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "Usage:") || !strings.Contains(out, "estimate") {
		t.Errorf("help output:\n%s", out)
	}
}

func TestRun_UnknownFlag(t *testing.T) {
	if _, _, err := runCmd(t, "estimate", "--bogus"); err == nil {
		t.Error("expected error for unknown flag")
	}
}

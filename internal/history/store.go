// Package history records estimation runs in SQLite so token costs can
// be compared across runs and servers. Records are append-only and
// indexed by timestamp and server.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/nugget/mcptok/internal/estimate"
)

// Run is one recorded estimation.
type Run struct {
	ID          string
	Timestamp   time.Time
	Server      string
	Encoding    string
	TotalTokens int
	CostUSD     float64 // zero when the run was unpriced
	Tools       []ToolResult
}

// ToolResult is one entry of a recorded run. Error is empty for counted
// tools and holds the error kind and message for failed ones.
type ToolResult struct {
	Tool    string
	Tokens  int
	CostUSD float64
	Error   string
}

// ToolStats aggregates one tool's counted results across runs.
type ToolStats struct {
	Tool          string
	Runs          int
	Failures      int
	AverageTokens float64
	MaxTokens     int
}

// timeFormat stores timestamps in UTC with fixed-width fractional
// seconds so that text order is time order.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// Store is an append-only SQLite store for estimation runs. All public
// methods are safe for concurrent use (SQLite serializes writes).
type Store struct {
	db *sql.DB
}

// NewStore opens the history database at dbPath, creating its directory
// and schema on first use.
func NewStore(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id           TEXT PRIMARY KEY,
		timestamp    TEXT NOT NULL,
		server       TEXT NOT NULL,
		encoding     TEXT NOT NULL,
		total_tokens INTEGER NOT NULL,
		cost_usd     REAL NOT NULL
	);
	CREATE TABLE IF NOT EXISTS tool_results (
		run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		tool     TEXT NOT NULL,
		tokens   INTEGER NOT NULL,
		cost_usd REAL NOT NULL,
		error    TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (run_id, position)
	);
	CREATE INDEX IF NOT EXISTS idx_runs_timestamp ON runs(timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_server ON runs(server);
	CREATE INDEX IF NOT EXISTS idx_tool_results_tool ON tool_results(tool);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record persists a run and its tool results in one transaction. If
// run.ID is empty, a UUIDv7 is generated; a zero Timestamp becomes now.
// The stored ID is returned.
func (s *Store) Record(ctx context.Context, run Run) (string, error) {
	if run.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("generate run ID: %w", err)
		}
		run.ID = id.String()
	}
	if run.Timestamp.IsZero() {
		run.Timestamp = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin run insert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, timestamp, server, encoding, total_tokens, cost_usd)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.Timestamp.UTC().Format(timeFormat),
		run.Server,
		run.Encoding,
		run.TotalTokens,
		run.CostUSD,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	for i, tr := range run.Tools {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO tool_results (run_id, position, tool, tokens, cost_usd, error)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			run.ID, i, tr.Tool, tr.Tokens, tr.CostUSD, tr.Error,
		)
		if err != nil {
			return "", fmt.Errorf("insert tool result %q: %w", tr.Tool, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit run: %w", err)
	}
	return run.ID, nil
}

// Recent returns up to limit runs, newest first, optionally restricted
// to one server. Tool results are not loaded.
func (s *Store) Recent(ctx context.Context, server string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, server, encoding, total_tokens, cost_usd
		 FROM runs
		 WHERE ? = '' OR server = ?
		 ORDER BY timestamp DESC, id DESC
		 LIMIT ?`,
		server, server, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var run Run
		var ts string
		if err := rows.Scan(&run.ID, &ts, &run.Server, &run.Encoding, &run.TotalTokens, &run.CostUSD); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Timestamp, err = time.Parse(timeFormat, ts)
		if err != nil {
			return nil, fmt.Errorf("parse run timestamp %q: %w", ts, err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Tools returns the tool results of one run in their recorded order.
func (s *Store) Tools(ctx context.Context, runID string) ([]ToolResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tool, tokens, cost_usd, error
		 FROM tool_results
		 WHERE run_id = ?
		 ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query tool results: %w", err)
	}
	defer rows.Close()

	results := []ToolResult{}
	for rows.Next() {
		var tr ToolResult
		if err := rows.Scan(&tr.Tool, &tr.Tokens, &tr.CostUSD, &tr.Error); err != nil {
			return nil, fmt.Errorf("scan tool result: %w", err)
		}
		results = append(results, tr)
	}
	return results, rows.Err()
}

// ToolSummary aggregates every recorded result per tool, optionally
// restricted to one server. Failed calls count toward Runs and Failures
// but not toward the token figures. Tools are ordered by descending
// average tokens.
func (s *Store) ToolSummary(ctx context.Context, server string) ([]ToolStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.tool,
		        COUNT(*),
		        SUM(CASE WHEN t.error != '' THEN 1 ELSE 0 END),
		        COALESCE(AVG(CASE WHEN t.error = '' THEN t.tokens END), 0),
		        COALESCE(MAX(CASE WHEN t.error = '' THEN t.tokens END), 0)
		 FROM tool_results t
		 JOIN runs r ON r.id = t.run_id
		 WHERE ? = '' OR r.server = ?
		 GROUP BY t.tool
		 ORDER BY 4 DESC, t.tool`,
		server, server,
	)
	if err != nil {
		return nil, fmt.Errorf("query tool summary: %w", err)
	}
	defer rows.Close()

	stats := []ToolStats{}
	for rows.Next() {
		var st ToolStats
		if err := rows.Scan(&st.Tool, &st.Runs, &st.Failures, &st.AverageTokens, &st.MaxTokens); err != nil {
			return nil, fmt.Errorf("scan tool summary: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// FromReport converts an estimation report into a Run. Skipped entries
// are not recorded.
func FromReport(r *estimate.Report, encoding string) Run {
	run := Run{
		Server:      r.Server,
		Encoding:    encoding,
		TotalTokens: r.TotalTokens(),
		CostUSD:     r.Cost(r.TotalTokens()),
	}
	for _, e := range r.Entries {
		switch e.Status {
		case estimate.StatusOK:
			run.Tools = append(run.Tools, ToolResult{Tool: e.Tool, Tokens: e.Tokens, CostUSD: r.Cost(e.Tokens)})
		case estimate.StatusFailed:
			msg := e.ErrKind
			if e.Err != nil {
				msg += ": " + e.Err.Error()
			}
			run.Tools = append(run.Tools, ToolResult{Tool: e.Tool, Error: msg})
		}
	}
	return run
}

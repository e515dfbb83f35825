package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nugget/mcptok/internal/estimate"
	"github.com/nugget/mcptok/internal/history"
)

// grid is a header plus rows of cells, rendered as a bordered table or a
// Markdown table.
type grid struct {
	title   string
	headers []string
	rows    [][]string
}

func (g grid) writeTable(w io.Writer) error {
	if len(g.rows) == 0 {
		_, err := fmt.Fprintf(w, "No %s found.\n", strings.ToLower(g.title))
		return err
	}
	table := newTable(w, g.headers)
	for _, row := range g.rows {
		if err := table.Append(row); err != nil {
			return fmt.Errorf("failed to append row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	return nil
}

func (g grid) markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", g.title)
	if len(g.rows) == 0 {
		b.WriteString("_None._\n")
		return b.String()
	}
	b.WriteString("| " + strings.Join(g.headers, " | ") + " |\n")
	b.WriteString(strings.Repeat("|---", len(g.headers)) + "|\n")
	for _, row := range g.rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = mdEscape(oneLine(c))
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	return b.String()
}

// writeGrids renders one or more grids in a non-JSON format.
func writeGrids(w io.Writer, format Format, grids ...grid) error {
	switch format {
	case FormatText, FormatTable, "":
		for i, g := range grids {
			if i > 0 {
				if _, err := io.WriteString(w, "\n"); err != nil {
					return err
				}
			}
			if err := g.writeTable(w); err != nil {
				return err
			}
		}
		return nil
	case FormatMarkdown, FormatHTML:
		parts := make([]string, len(grids))
		for i, g := range grids {
			parts[i] = g.markdown()
		}
		md := strings.Join(parts, "\n")
		if format == FormatMarkdown {
			_, err := io.WriteString(w, md)
			return err
		}
		page, err := markdownToHTML(md)
		if err != nil {
			return fmt.Errorf("render html: %w", err)
		}
		_, err = io.WriteString(w, page)
		return err
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// WriteDefinitions renders per-tool definition costs, as produced by
// estimate.Estimator.Describe.
func WriteDefinitions(w io.Writer, format Format, defs []estimate.Definition) error {
	if format == FormatJSON {
		return encodeJSON(w, defs)
	}

	g := grid{title: "Tools", headers: []string{"Tool", "Tokens", "Description"}}
	total := 0
	for _, d := range defs {
		total += d.Tokens
		g.rows = append(g.rows, []string{d.Name, strconv.Itoa(d.Tokens), truncateText(oneLine(d.Description), 60)})
	}
	if len(defs) > 0 {
		g.rows = append(g.rows, []string{"TOTAL", strconv.Itoa(total), ""})
	}
	return writeGrids(w, format, g)
}

func truncateText(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// historyJSON is the machine-readable form of WriteHistory.
type historyJSON struct {
	Runs  []runJSON   `json:"runs"`
	Tools []toolsJSON `json:"tools"`
}

type runJSON struct {
	ID          string  `json:"id"`
	Timestamp   string  `json:"timestamp"`
	Server      string  `json:"server"`
	Encoding    string  `json:"encoding"`
	TotalTokens int     `json:"total_tokens"`
	CostUSD     float64 `json:"cost_usd"`
}

type toolsJSON struct {
	Tool          string  `json:"tool"`
	Runs          int     `json:"runs"`
	Failures      int     `json:"failures"`
	AverageTokens float64 `json:"average_tokens"`
	MaxTokens     int     `json:"max_tokens"`
}

// WriteHistory renders recorded runs followed by per-tool aggregates.
func WriteHistory(w io.Writer, format Format, runs []history.Run, stats []history.ToolStats) error {
	if format == FormatJSON {
		out := historyJSON{Runs: []runJSON{}, Tools: []toolsJSON{}}
		for _, r := range runs {
			out.Runs = append(out.Runs, runJSON{
				ID:          r.ID,
				Timestamp:   r.Timestamp.UTC().Format("2006-01-02T15:04:05Z"),
				Server:      r.Server,
				Encoding:    r.Encoding,
				TotalTokens: r.TotalTokens,
				CostUSD:     r.CostUSD,
			})
		}
		for _, s := range stats {
			out.Tools = append(out.Tools, toolsJSON(s))
		}
		return encodeJSON(w, out)
	}

	runGrid := grid{title: "Runs", headers: []string{"ID", "When", "Server", "Encoding", "Tokens", "Cost (USD)"}}
	for _, r := range runs {
		runGrid.rows = append(runGrid.rows, []string{
			r.ID,
			r.Timestamp.Local().Format("2006-01-02 15:04:05"),
			r.Server,
			r.Encoding,
			strconv.Itoa(r.TotalTokens),
			formatCost(r.CostUSD),
		})
	}

	toolGrid := grid{title: "Tools", headers: []string{"Tool", "Runs", "Failures", "Avg tokens", "Max tokens"}}
	for _, s := range stats {
		toolGrid.rows = append(toolGrid.rows, []string{
			s.Tool,
			strconv.Itoa(s.Runs),
			strconv.Itoa(s.Failures),
			strconv.FormatFloat(s.AverageTokens, 'f', 1, 64),
			strconv.Itoa(s.MaxTokens),
		})
	}

	return writeGrids(w, format, runGrid, toolGrid)
}

type toolResultJSON struct {
	Tool    string  `json:"tool"`
	Tokens  int     `json:"tokens"`
	CostUSD float64 `json:"cost_usd"`
	Error   string  `json:"error,omitempty"`
}

// WriteRunTools renders the per-tool results of one recorded run, in the
// order they were measured.
func WriteRunTools(w io.Writer, format Format, results []history.ToolResult) error {
	if format == FormatJSON {
		out := make([]toolResultJSON, 0, len(results))
		for _, r := range results {
			out = append(out, toolResultJSON(r))
		}
		return encodeJSON(w, out)
	}

	g := grid{title: "Tools", headers: []string{"Tool", "Tokens", "Cost (USD)", "Error"}}
	for _, r := range results {
		tokens, cost := strconv.Itoa(r.Tokens), formatCost(r.CostUSD)
		if r.Error != "" {
			tokens, cost = "-", "-"
		}
		g.rows = append(g.rows, []string{r.Tool, tokens, cost, truncateText(oneLine(r.Error), 60)})
	}
	return writeGrids(w, format, g)
}

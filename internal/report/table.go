package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/nugget/mcptok/internal/estimate"
)

// WriteTable renders the report as a bordered table with one row per
// entry and a closing total row.
func WriteTable(w io.Writer, r *estimate.Report) error {
	headers := []string{"Tool", "Tokens", "Status"}
	if r.Priced() {
		headers = []string{"Tool", "Tokens", "Cost (USD)", "Status"}
	}

	table := newTable(w, headers)
	for _, e := range r.Entries {
		if err := table.Append(tableRow(r, e)); err != nil {
			return fmt.Errorf("failed to append row: %w", err)
		}
	}

	total := []string{"TOTAL", strconv.Itoa(r.TotalTokens()), ""}
	if r.Priced() {
		total = []string{"TOTAL", strconv.Itoa(r.TotalTokens()), formatCost(r.Cost(r.TotalTokens())), ""}
	}
	if err := table.Append(total); err != nil {
		return fmt.Errorf("failed to append row: %w", err)
	}

	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	return nil
}

func tableRow(r *estimate.Report, e estimate.Entry) []string {
	tokens := strconv.Itoa(e.Tokens)
	cost := formatCost(r.Cost(e.Tokens))
	status := statusText(e)
	if e.Status != estimate.StatusOK {
		tokens, cost = "-", "-"
	}

	if r.Priced() {
		return []string{e.Tool, tokens, cost, status}
	}
	return []string{e.Tool, tokens, status}
}

func statusText(e estimate.Entry) string {
	switch e.Status {
	case estimate.StatusFailed:
		return "error (" + e.ErrKind + ")"
	case estimate.StatusSkipped:
		return "skipped"
	default:
		return "ok"
	}
}

func formatCost(c float64) string {
	return fmt.Sprintf("$%.6f", c)
}

func newTable(w io.Writer, headers []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.Options(
		tablewriter.WithHeader(headers),
		tablewriter.WithRendition(
			tw.Rendition{
				Borders: tw.Border{
					Left:   tw.State(1),
					Top:    tw.State(1),
					Right:  tw.State(1),
					Bottom: tw.State(1),
				},
			},
		),
		tablewriter.WithAlignment(tw.MakeAlign(len(headers), tw.AlignLeft)),
	)
	return table
}

// Package report renders estimation results for people and machines.
// Every renderer writes to an io.Writer so the CLI can target stdout and
// tests can target a buffer.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nugget/mcptok/internal/estimate"
)

// Format selects a renderer.
type Format string

// Supported formats.
const (
	FormatText     Format = "text"
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// Formats lists every format name accepted by ParseFormat.
func Formats() []string {
	return []string{
		string(FormatText),
		string(FormatTable),
		string(FormatJSON),
		string(FormatMarkdown),
		string(FormatHTML),
	}
}

// ParseFormat converts a case-insensitive name to a Format. An empty
// name selects FormatText; "md" is accepted for FormatMarkdown.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return FormatText, nil
	case "table":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "html":
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("unknown output format %q (valid: %s)", s, strings.Join(Formats(), ", "))
	}
}

// Write renders r in the given format.
func Write(w io.Writer, format Format, r *estimate.Report) error {
	switch format {
	case FormatText, "":
		return WriteText(w, r)
	case FormatTable:
		return WriteTable(w, r)
	case FormatJSON:
		return WriteJSON(w, r)
	case FormatMarkdown:
		return WriteMarkdown(w, r)
	case FormatHTML:
		return WriteHTML(w, r)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// styles holds the text report colors. Colors are resolved against the
// destination writer, so output to a pipe or file is plain text.
type styles struct {
	init    lipgloss.Style
	tool    lipgloss.Style
	failure lipgloss.Style
	skip    lipgloss.Style
	total   lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		init:    r.NewStyle().Foreground(lipgloss.Color("6")),
		tool:    r.NewStyle().Foreground(lipgloss.Color("2")),
		failure: r.NewStyle().Foreground(lipgloss.Color("1")),
		skip:    r.NewStyle().Foreground(lipgloss.Color("3")),
		total:   r.NewStyle().Foreground(lipgloss.Color("5")).Bold(true),
	}
}

// WriteText renders the line-oriented report: the initialization count,
// one line per tool, the total, and finally the JSON summary.
func WriteText(w io.Writer, r *estimate.Report) error {
	st := newStyles(w)
	var b strings.Builder

	for i, e := range r.Entries {
		switch {
		case i == 0 && e.Tool == estimate.InitializationTool:
			b.WriteString(st.init.Render(tokenLine(r, "INITIALIZATION", e.Tokens)) + "\n")
			b.WriteString("---\n")
		case e.Status == estimate.StatusFailed:
			b.WriteString(st.failure.Render(fmt.Sprintf("ERROR calling %s: %v", e.Tool, e.Err)) + "\n")
		case e.Status == estimate.StatusSkipped:
			b.WriteString(st.skip.Render("SKIPPING invalid tool name: "+e.Tool) + "\n")
		default:
			b.WriteString(st.tool.Render(tokenLine(r, e.Tool, e.Tokens)) + "\n")
		}
	}

	b.WriteString("---\n")
	b.WriteString(st.total.Render(tokenLine(r, "TOTAL", r.TotalTokens())) + "\n")

	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}
	return WriteJSON(w, r)
}

func tokenLine(r *estimate.Report, label string, tokens int) string {
	line := fmt.Sprintf("[%s] tokens = %d", label, tokens)
	if r.Priced() {
		line += fmt.Sprintf(" | cost = $%.6f", r.Cost(tokens))
	}
	return line
}

// WriteJSON writes the summary object {server, results} indented by two
// spaces.
func WriteJSON(w io.Writer, r *estimate.Report) error {
	return encodeJSON(w, r.Summary())
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

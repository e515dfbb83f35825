package report

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/nugget/mcptok/internal/estimate"
)

// WriteMarkdown renders the report as a Markdown document with a results
// table, a list of errors when any tool failed and a list of skipped
// names.
func WriteMarkdown(w io.Writer, r *estimate.Report) error {
	_, err := io.WriteString(w, markdown(r))
	return err
}

func markdown(r *estimate.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# MCP token estimate: %s\n\n", mdEscape(r.Server))

	if r.Priced() {
		fmt.Fprintf(&b, "Priced at $%g per million tokens.\n\n", *r.CostPerMillion)
		b.WriteString("| Tool | Tokens | Cost (USD) | Status |\n")
		b.WriteString("|---|---:|---:|---|\n")
	} else {
		b.WriteString("| Tool | Tokens | Status |\n")
		b.WriteString("|---|---:|---|\n")
	}

	for _, e := range r.Entries {
		row := tableRow(r, e)
		for i := range row {
			row[i] = mdEscape(row[i])
		}
		b.WriteString("| " + strings.Join(row, " | ") + " |\n")
	}

	if r.Priced() {
		fmt.Fprintf(&b, "| **TOTAL** | **%d** | **%s** | |\n", r.TotalTokens(), formatCost(r.Cost(r.TotalTokens())))
	} else {
		fmt.Fprintf(&b, "| **TOTAL** | **%d** | |\n", r.TotalTokens())
	}

	if failures := r.Failures(); len(failures) > 0 {
		b.WriteString("\n## Errors\n\n")
		for _, f := range failures {
			fmt.Fprintf(&b, "- `%s` (%s): %s\n", f.Tool, f.ErrKind, mdEscape(oneLine(f.Err.Error())))
		}
	}

	if skipped := r.Skipped(); len(skipped) > 0 {
		b.WriteString("\n## Skipped\n\n")
		for _, s := range skipped {
			fmt.Fprintf(&b, "- `%s`: not a valid tool name\n", s.Tool)
		}
	}
	return b.String()
}

var mdReplacer = strings.NewReplacer("|", `\|`, "<", "&lt;", ">", "&gt;")

func mdEscape(s string) string {
	return mdReplacer.Replace(s)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// WriteHTML renders the Markdown report to a standalone HTML page.
func WriteHTML(w io.Writer, r *estimate.Report) error {
	page, err := markdownToHTML(markdown(r))
	if err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	_, err = io.WriteString(w, page)
	return err
}

// markdownToHTML converts md to an HTML document. Tables need the GFM
// table extension.
func markdownToHTML(md string) (string, error) {
	conv := goldmark.New(goldmark.WithExtensions(extension.Table))

	var buf bytes.Buffer
	if err := conv.Convert([]byte(md), &buf); err != nil {
		return "", err
	}

	html := fmt.Sprintf(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>MCP token estimate</title></head>
<body style="font-family: sans-serif; font-size: 14px; line-height: 1.5;">
%s
</body></html>
`, buf.String())

	return html, nil
}

package formatting

import (
	"fmt"
	"strings"

	"choreo/internal/diagnostics"
	"choreo/internal/ordering"
	textutil "choreo/pkg/strings"

	"github.com/jedib0t/go-pretty/v6/list"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// TableFormatter provides rich table output formatting
type TableFormatter struct {
	options Options
}

// NewTableFormatter creates a new table formatter
func NewTableFormatter(options Options) Formatter {
	return &TableFormatter{
		options: options,
	}
}

// FormatReport renders one row per endpoint followed by a table of findings
func (f *TableFormatter) FormatReport(report *diagnostics.Report) string {
	if report == nil {
		return f.formatEmptyMessage("📋", "No report available")
	}

	var b strings.Builder
	verdict := f.color(text.FgHiGreen, "✅ "+report.Summary())
	if !report.Satisfied {
		verdict = f.color(text.FgHiRed, "❌ "+report.Summary())
	}
	b.WriteString(verdict + "\n")

	t := f.createTable()
	t.AppendHeader(table.Row{
		f.color(text.FgHiCyan, "ENDPOINT"),
		f.color(text.FgHiCyan, "MODE"),
		f.color(text.FgHiCyan, "EXPECTED"),
		f.color(text.FgHiCyan, "RECEIVED"),
		f.color(text.FgHiCyan, "CONSUMED"),
		f.color(text.FgHiCyan, "STATUS"),
	})
	for _, ep := range report.Endpoints {
		if f.options.Quiet && ep.Satisfied() && len(ep.Anomalies) == 0 {
			continue
		}
		t.AppendRow(table.Row{ep.EndpointID, endpointMode(ep), ep.Expected, ep.Received, ep.Consumed, f.status(ep)})
	}
	b.WriteString(t.Render())
	b.WriteString("\n")

	findings := f.findings(report)
	if findings.Length() > 0 {
		b.WriteString(findings.Render())
		b.WriteString("\n")
	}
	return b.String()
}

// findings tabulates anomalies, part-level failures and, unless quiet,
// build-time warnings.
func (f *TableFormatter) findings(report *diagnostics.Report) table.Writer {
	t := f.createTable()
	t.AppendHeader(table.Row{
		f.color(text.FgHiCyan, "KIND"),
		f.color(text.FgHiCyan, "WHERE"),
		f.color(text.FgHiCyan, "INVALIDATING"),
		f.color(text.FgHiCyan, "DETAIL"),
	})
	add := func(e diagnostics.Entry) {
		detail := textutil.Truncate(e.Detail, textutil.DefaultDetailMaxLen)
		t.AppendRow(table.Row{string(e.Kind), entryWhere(e), e.Invalidating, detail})
	}
	for _, ep := range report.Endpoints {
		for _, a := range ep.Anomalies {
			add(a)
		}
	}
	for _, e := range report.Failures {
		add(e)
	}
	if !f.options.Quiet {
		for _, w := range report.Warnings {
			add(w)
		}
	}
	return t
}

// FormatForest renders the forest as a connected tree
func (f *TableFormatter) FormatForest(forest *ordering.Forest) string {
	if forest.Len() == 0 {
		return f.formatEmptyMessage("🌲", "No ordered expectations")
	}

	l := list.NewWriter()
	l.SetStyle(list.StyleConnectedRounded)
	current := 0
	forest.Walk(func(n ordering.Node, depth int) bool {
		for ; current < depth; current++ {
			l.Indent()
		}
		for ; current > depth; current-- {
			l.UnIndent()
		}
		l.AppendItem(nodeLabel(n))
		return true
	})
	return l.Render()
}

// SetOptions updates the formatter options
func (f *TableFormatter) SetOptions(options Options) {
	f.options = options
}

// GetOptions returns the current formatter options
func (f *TableFormatter) GetOptions() Options {
	return f.options
}

// createTable creates a new table with standard styling
func (f *TableFormatter) createTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	return t
}

func (f *TableFormatter) status(ep diagnostics.EndpointReport) string {
	switch {
	case !ep.Valid:
		return f.color(text.FgRed, "INVALID")
	case ep.Pending() > 0:
		return f.color(text.FgYellow, fmt.Sprintf("PENDING %d", ep.Pending()))
	default:
		return f.color(text.FgGreen, "OK")
	}
}

func (f *TableFormatter) color(c text.Color, s string) string {
	if !f.options.Color {
		return s
	}
	return c.Sprint(s)
}

// formatEmptyMessage formats empty result messages
func (f *TableFormatter) formatEmptyMessage(icon, message string) string {
	return fmt.Sprintf("%s %s\n", f.color(text.FgYellow, icon), f.color(text.FgYellow, message))
}

func entryWhere(e diagnostics.Entry) string {
	if e.EndpointID == "" {
		return "-"
	}
	if e.Slot >= 0 {
		return fmt.Sprintf("%s#%d", e.EndpointID, e.Slot+1)
	}
	return e.EndpointID
}

// Package formatting renders assertion reports and ordering forests for the
// CLI in console, table, JSON and YAML form.
package formatting

import (
	"choreo/internal/diagnostics"
	"choreo/internal/ordering"
)

// OutputFormat selects a Formatter implementation.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatTable   OutputFormat = "table"
	FormatJSON    OutputFormat = "json"
	FormatYAML    OutputFormat = "yaml"
)

// Options configures a formatter.
type Options struct {
	Format OutputFormat
	Quiet  bool // hide satisfied endpoints and notes
	Color  bool
}

// Formatter renders what an engine produced for one scenario part.
type Formatter interface {
	FormatReport(report *diagnostics.Report) string
	FormatForest(forest *ordering.Forest) string

	SetOptions(options Options)
	GetOptions() Options
}

// New returns the formatter for options.Format. Unknown formats get the
// console formatter.
func New(options Options) Formatter {
	switch options.Format {
	case FormatTable:
		return NewTableFormatter(options)
	case FormatJSON:
		return NewJSONFormatter(options)
	case FormatYAML:
		return NewYAMLFormatter(options)
	default:
		return NewConsoleFormatter(options)
	}
}

// ParseFormat maps a flag value onto an OutputFormat.
func ParseFormat(s string) OutputFormat {
	switch f := OutputFormat(s); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f
	}
	return FormatConsole
}

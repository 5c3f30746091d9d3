package formatting

import (
	"fmt"
	"strings"

	"choreo/internal/diagnostics"
	"choreo/internal/ordering"
)

// ConsoleFormatter provides simple console output formatting
type ConsoleFormatter struct {
	options Options
}

// NewConsoleFormatter creates a new console formatter
func NewConsoleFormatter(options Options) Formatter {
	return &ConsoleFormatter{
		options: options,
	}
}

// FormatReport renders the report as indented plain text
func (f *ConsoleFormatter) FormatReport(report *diagnostics.Report) string {
	if report == nil {
		return "No report available."
	}

	var output []string
	output = append(output, report.Summary())
	for _, ep := range report.Endpoints {
		if f.options.Quiet && ep.Satisfied() && len(ep.Anomalies) == 0 {
			continue
		}
		status := "ok"
		if !ep.Satisfied() {
			status = "FAILED"
		}
		output = append(output, fmt.Sprintf("  %-20s %-8s expected=%d received=%d consumed=%d %s",
			ep.EndpointID, endpointMode(ep), ep.Expected, ep.Received, ep.Consumed, status))
		for _, a := range ep.Anomalies {
			output = append(output, "    - "+a.String())
		}
	}
	for _, e := range report.Failures {
		output = append(output, "  ! "+e.String())
	}
	if !f.options.Quiet {
		for _, w := range report.Warnings {
			output = append(output, "  ~ "+w.String())
		}
	}
	return strings.Join(output, "\n")
}

// FormatForest renders one indented line per node
func (f *ConsoleFormatter) FormatForest(forest *ordering.Forest) string {
	if forest.Len() == 0 {
		return "No ordered expectations."
	}

	var output []string
	forest.Walk(func(n ordering.Node, depth int) bool {
		output = append(output, strings.Repeat("  ", depth)+"- "+nodeLabel(n))
		return true
	})
	return strings.Join(output, "\n")
}

// SetOptions updates the formatter options
func (f *ConsoleFormatter) SetOptions(options Options) {
	f.options = options
}

// GetOptions returns the current formatter options
func (f *ConsoleFormatter) GetOptions() Options {
	return f.options
}

func endpointMode(ep diagnostics.EndpointReport) string {
	if ep.Lenient {
		return "lenient"
	}
	return ep.OrderingType
}

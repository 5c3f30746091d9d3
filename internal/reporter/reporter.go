// Package reporter implements runner.Reporter for the console, for CI
// pipelines and for programmatic access to results.
package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"choreo/internal/runner"
)

// NewQuietReporter creates a reporter that only outputs failures and the
// final summary
func NewQuietReporter(out io.Writer) runner.Reporter {
	return &quietReporter{out: out}
}

// quietReporter implements minimal output for CI/CD integration
type quietReporter struct {
	out io.Writer
}

func (r *quietReporter) ReportStart(runner.Configuration, int)           {}
func (r *quietReporter) ReportScenarioStart(runner.Case)                 {}
func (r *quietReporter) ReportPartResult(runner.Case, runner.PartResult) {}
func (r *quietReporter) SetParallelMode(bool)                            {}

func (r *quietReporter) ReportScenarioResult(result runner.ScenarioResult) {
	if failedResult(result.Result) {
		fmt.Fprintf(r.out, "%s %s: %s\n", resultSymbol(result.Result), result.Case.Name, result.Error)
	}
}

func (r *quietReporter) ReportSuiteResult(result runner.SuiteResult) {
	if result.Succeeded() {
		fmt.Fprintf(r.out, "✅ All %d scenarios passed (%v)\n", result.TotalScenarios, result.Duration)
	} else {
		fmt.Fprintf(r.out, "❌ %d/%d scenarios failed (%v)\n",
			result.FailedScenarios+result.ErrorScenarios,
			result.TotalScenarios,
			result.Duration)
	}
}

// NewJSONReporter creates a reporter that prints the suite result as JSON
// once everything completed
func NewJSONReporter(out io.Writer) runner.Reporter {
	return &jsonReporter{out: out}
}

type jsonReporter struct {
	out io.Writer
}

func (r *jsonReporter) ReportStart(runner.Configuration, int)           {}
func (r *jsonReporter) ReportScenarioStart(runner.Case)                 {}
func (r *jsonReporter) ReportPartResult(runner.Case, runner.PartResult) {}
func (r *jsonReporter) ReportScenarioResult(runner.ScenarioResult)      {}
func (r *jsonReporter) SetParallelMode(bool)                            {}

func (r *jsonReporter) ReportSuiteResult(result runner.SuiteResult) {
	jsonBytes, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(r.out, `{"error": %q}`+"\n", err.Error())
		return
	}
	fmt.Fprintln(r.out, string(jsonBytes))
}

// Multi fans every call out to each reporter in order
func Multi(reporters ...runner.Reporter) runner.Reporter {
	return multiReporter(reporters)
}

type multiReporter []runner.Reporter

func (m multiReporter) ReportStart(config runner.Configuration, total int) {
	for _, r := range m {
		r.ReportStart(config, total)
	}
}

func (m multiReporter) ReportScenarioStart(c runner.Case) {
	for _, r := range m {
		r.ReportScenarioStart(c)
	}
}

func (m multiReporter) ReportPartResult(c runner.Case, part runner.PartResult) {
	for _, r := range m {
		r.ReportPartResult(c, part)
	}
}

func (m multiReporter) ReportScenarioResult(result runner.ScenarioResult) {
	for _, r := range m {
		r.ReportScenarioResult(result)
	}
}

func (m multiReporter) ReportSuiteResult(result runner.SuiteResult) {
	for _, r := range m {
		r.ReportSuiteResult(result)
	}
}

func (m multiReporter) SetParallelMode(parallel bool) {
	for _, r := range m {
		r.SetParallelMode(parallel)
	}
}

func resultSymbol(result runner.Result) string {
	switch result {
	case runner.ResultPassed:
		return "✅"
	case runner.ResultFailed:
		return "❌"
	case runner.ResultSkipped:
		return "⏭️"
	case runner.ResultError:
		return "💥"
	default:
		return "❓"
	}
}

func failedResult(result runner.Result) bool {
	return result == runner.ResultFailed || result == runner.ResultError
}

func successRate(result runner.SuiteResult) float64 {
	if result.TotalScenarios == 0 {
		return 0
	}
	return float64(result.PassedScenarios) / float64(result.TotalScenarios) * 100
}

// indentText adds indentation to each line of text
func indentText(text string, indent string) string {
	if text == "" {
		return ""
	}
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, line := range lines {
		lines[i] = indent + line
	}
	return strings.Join(lines, "\n")
}

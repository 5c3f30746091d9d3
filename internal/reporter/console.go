package reporter

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"choreo/internal/formatting"
	"choreo/internal/runner"
	textutil "choreo/pkg/strings"
)

// consoleReporter prints human-readable progress
type consoleReporter struct {
	out       io.Writer
	verbose   bool
	debug     bool
	formatter formatting.Formatter

	mu              sync.Mutex
	parallelMode    bool
	scenarioBuffers map[string]*strings.Builder
}

// NewConsoleReporter creates a reporter that prints progress to out. Failing
// parts are rendered through formatter.
func NewConsoleReporter(out io.Writer, verbose, debug bool, formatter formatting.Formatter) runner.Reporter {
	if formatter == nil {
		formatter = formatting.NewTableFormatter(formatting.Options{Format: formatting.FormatTable})
	}
	return &consoleReporter{
		out:             out,
		verbose:         verbose,
		debug:           debug,
		formatter:       formatter,
		scenarioBuffers: make(map[string]*strings.Builder),
	}
}

// SetParallelMode enables or disables parallel output buffering
func (r *consoleReporter) SetParallelMode(parallel bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.parallelMode = parallel
	if parallel {
		r.scenarioBuffers = make(map[string]*strings.Builder)
	}
}

// ReportStart is called when execution begins
func (r *consoleReporter) ReportStart(config runner.Configuration, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintf(r.out, "🧪 Running %d scenario(s)\n", total)
	if r.verbose {
		fmt.Fprintf(r.out, "\n⚙️  Configuration:\n")
		fmt.Fprintf(r.out, "   • Parallel workers: %d\n", max(config.Parallel, 1))
		fmt.Fprintf(r.out, "   • Fail fast: %t\n", config.FailFast)
		fmt.Fprintf(r.out, "   • Timeout: %v\n", config.Timeout)
		fmt.Fprintf(r.out, "   • Poll interval: %v\n", config.PollInterval)
		fmt.Fprintf(r.out, "   • Debug mode: %t\n", r.debug)
		fmt.Fprintf(r.out, "\n")
	}
}

// ReportScenarioStart is called when a scenario begins
func (r *consoleReporter) ReportScenarioStart(c runner.Case) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w := r.writer(c.Name)
	if !r.verbose {
		fmt.Fprintf(w, "🎯 %s... ", c.Name)
		return
	}

	fmt.Fprintf(w, "🎯 Starting scenario: %s", c.Name)
	if c.Category != "" {
		fmt.Fprintf(w, " (%s)", c.Category)
	}
	fmt.Fprintf(w, "\n")
	if c.Spec != nil && c.Spec.Description() != c.Name {
		fmt.Fprintf(w, "   📝 Description: %s\n", c.Spec.Description())
	}
	if len(c.Tags) > 0 {
		fmt.Fprintf(w, "   🏷️  Tags: %s\n", strings.Join(c.Tags, ", "))
	}
	if c.Spec != nil {
		fmt.Fprintf(w, "   📋 Parts: %d\n", c.Spec.PartCount())
	}
	if c.Timeout > 0 {
		fmt.Fprintf(w, "   ⏱️  Timeout: %v\n", c.Timeout)
	}
	if r.debug && c.Spec != nil {
		fmt.Fprintf(w, "   🌲 Ordering:\n%s\n", indentText(r.formatter.FormatForest(c.Spec.Forest()), "      "))
	}
}

// ReportPartResult is called when a part completes
func (r *consoleReporter) ReportPartResult(c runner.Case, part runner.PartResult) {
	if !r.verbose {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	w := r.writer(c.Name)
	fmt.Fprintf(w, "   %s Part %d → %s (%v)\n", resultSymbol(part.Result), part.Index+1, part.Target, part.Duration)
	for _, reply := range part.Replies {
		switch {
		case reply.Error != "":
			fmt.Fprintf(w, "      ❌ Reply %d: %s\n", reply.Index+1, textutil.Truncate(reply.Error, textutil.DefaultReplyMaxLen))
		case reply.Failure != "":
			fmt.Fprintf(w, "      ⚠️  Reply %d failed: %s\n", reply.Index+1, reply.Failure)
		case r.debug:
			fmt.Fprintf(w, "      📤 Reply %d: %d %s\n", reply.Index+1, reply.Status, reply.Body)
		}
	}
	if part.Error != "" {
		fmt.Fprintf(w, "      💥 Error: %s\n", part.Error)
	}
	if part.Report != nil && (part.Result != runner.ResultPassed || r.debug) {
		fmt.Fprintf(w, "%s\n", indentText(r.formatter.FormatReport(part.Report), "      "))
	}
}

// ReportScenarioResult is called when a scenario completes
func (r *consoleReporter) ReportScenarioResult(result runner.ScenarioResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	symbol := resultSymbol(result.Result)
	name := result.Case.Name

	var b strings.Builder
	if buf, ok := r.scenarioBuffers[name]; ok {
		b.WriteString(buf.String())
		delete(r.scenarioBuffers, name)
	} else if r.parallelMode || result.Result == runner.ResultSkipped {
		// skipped scenarios never report a start
		b.WriteString(fmt.Sprintf("🎯 %s... ", name))
	}

	if r.verbose {
		fmt.Fprintf(&b, "%s Scenario completed: %s (%v)\n", symbol, name, result.Duration)
		if result.Error != "" {
			fmt.Fprintf(&b, "   ❌ Scenario Error: %s\n", result.Error)
		}
		b.WriteString("\n")
	} else {
		fmt.Fprintf(&b, "%s (%v)\n", symbol, result.Duration)
		if failedResult(result.Result) {
			r.writeFailure(&b, result)
		}
	}
	fmt.Fprint(r.out, b.String())
}

// writeFailure prints the error and the failing part's report
func (r *consoleReporter) writeFailure(b *strings.Builder, result runner.ScenarioResult) {
	if result.Error != "" {
		fmt.Fprintf(b, "   ❌ %s\n", result.Error)
	}
	for _, part := range result.PartResults {
		if part.Result == runner.ResultFailed && part.Report != nil {
			fmt.Fprintf(b, "%s\n", indentText(r.formatter.FormatReport(part.Report), "   "))
		}
	}
}

// ReportSuiteResult is called when all scenarios complete
func (r *consoleReporter) ReportSuiteResult(result runner.SuiteResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintf(r.out, "\n🏁 Suite Complete\n")
	fmt.Fprintf(r.out, "⏱️  Duration: %v\n", result.Duration)
	fmt.Fprintf(r.out, "📊 Results:\n")
	fmt.Fprintf(r.out, "   ✅ Passed: %d\n", result.PassedScenarios)
	if result.FailedScenarios > 0 {
		fmt.Fprintf(r.out, "   ❌ Failed: %d\n", result.FailedScenarios)
	}
	if result.ErrorScenarios > 0 {
		fmt.Fprintf(r.out, "   💥 Errors: %d\n", result.ErrorScenarios)
	}
	if result.SkippedScenarios > 0 {
		fmt.Fprintf(r.out, "   ⏭️  Skipped: %d\n", result.SkippedScenarios)
	}
	fmt.Fprintf(r.out, "   📈 Total: %d\n", result.TotalScenarios)
	fmt.Fprintf(r.out, "   📏 Success Rate: %.1f%%\n", successRate(result))

	if result.Succeeded() {
		fmt.Fprintf(r.out, "\n🎉 All scenarios passed!\n")
	} else {
		fmt.Fprintf(r.out, "\n💔 Some scenarios failed\n")
	}
}

// writer returns where output for a scenario goes: a buffer in parallel
// mode, the console otherwise. Callers hold r.mu.
func (r *consoleReporter) writer(name string) io.Writer {
	if !r.parallelMode {
		return r.out
	}
	buf, ok := r.scenarioBuffers[name]
	if !ok {
		buf = &strings.Builder{}
		r.scenarioBuffers[name] = buf
	}
	return buf
}

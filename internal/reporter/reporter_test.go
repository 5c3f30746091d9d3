package reporter

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"choreo/internal/diagnostics"
	"choreo/internal/formatting"
	"choreo/internal/runner"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failingPart() runner.PartResult {
	return runner.PartResult{
		Index:  0,
		Target: "checkout",
		Result: runner.ResultFailed,
		Replies: []runner.ReplyResult{
			{Index: 0, Status: 200, Body: "nope", Error: `body "nope" != "ok"`},
		},
		Report: &diagnostics.Report{
			RunID: "run-1",
			Endpoints: []diagnostics.EndpointReport{
				{EndpointID: "inventory", OrderingType: "total", Expected: 1, Valid: true},
			},
		},
	}
}

func suiteOf(results ...runner.ScenarioResult) runner.SuiteResult {
	s := runner.SuiteResult{TotalScenarios: len(results), ScenarioResults: results, Duration: time.Second}
	for _, r := range results {
		switch r.Result {
		case runner.ResultPassed:
			s.PassedScenarios++
		case runner.ResultFailed:
			s.FailedScenarios++
		case runner.ResultSkipped:
			s.SkippedScenarios++
		case runner.ResultError:
			s.ErrorScenarios++
		}
	}
	return s
}

func plainFormatter() formatting.Formatter {
	return formatting.NewConsoleFormatter(formatting.Options{})
}

func TestConsoleReporterSequential(t *testing.T) {
	var out bytes.Buffer
	r := NewConsoleReporter(&out, false, false, plainFormatter())

	passed := runner.ScenarioResult{Case: runner.Case{Name: "happy"}, Result: runner.ResultPassed}
	failed := runner.ScenarioResult{
		Case:        runner.Case{Name: "sad"},
		Result:      runner.ResultFailed,
		Error:       "unsatisfied: 1 of 1 endpoint(s) failing, 0 anomaly(ies) (inventory)",
		PartResults: []runner.PartResult{failingPart()},
	}

	r.ReportStart(runner.Configuration{}, 2)
	r.SetParallelMode(false)
	r.ReportScenarioStart(passed.Case)
	r.ReportScenarioResult(passed)
	r.ReportScenarioStart(failed.Case)
	r.ReportPartResult(failed.Case, failingPart())
	r.ReportScenarioResult(failed)
	r.ReportSuiteResult(suiteOf(passed, failed))

	got := out.String()
	assert.Contains(t, got, "🧪 Running 2 scenario(s)")
	assert.Contains(t, got, "🎯 happy... ✅")
	assert.Contains(t, got, "🎯 sad... ❌")
	assert.Contains(t, got, "(inventory)")
	assert.Contains(t, got, "inventory")
	assert.Contains(t, got, "❌ Failed: 1")
	assert.Contains(t, got, "📏 Success Rate: 50.0%")
	assert.Contains(t, got, "💔 Some scenarios failed")
	assert.NotContains(t, got, "Reply 1", "part details are verbose only")
}

func TestConsoleReporterParallelKeepsLinesTogether(t *testing.T) {
	var out bytes.Buffer
	r := NewConsoleReporter(&out, false, false, plainFormatter())
	r.SetParallelMode(true)

	a := runner.Case{Name: "a"}
	b := runner.Case{Name: "b"}
	r.ReportScenarioStart(a)
	r.ReportScenarioStart(b)
	r.ReportScenarioResult(runner.ScenarioResult{Case: b, Result: runner.ResultPassed})
	r.ReportScenarioResult(runner.ScenarioResult{Case: a, Result: runner.ResultPassed})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "🎯 b... ✅"))
	assert.True(t, strings.HasPrefix(lines[1], "🎯 a... ✅"))
}

func TestConsoleReporterVerbose(t *testing.T) {
	var out bytes.Buffer
	r := NewConsoleReporter(&out, true, false, plainFormatter())

	c := runner.Case{Name: "sad", Category: "checkout", Tags: []string{"smoke"}}
	r.ReportStart(runner.Configuration{Parallel: 2, FailFast: true}, 1)
	r.ReportScenarioStart(c)
	r.ReportPartResult(c, failingPart())
	r.ReportScenarioResult(runner.ScenarioResult{Case: c, Result: runner.ResultFailed, Error: "boom"})

	got := out.String()
	assert.Contains(t, got, "Parallel workers: 2")
	assert.Contains(t, got, "Starting scenario: sad (checkout)")
	assert.Contains(t, got, "Tags: smoke")
	assert.Contains(t, got, "❌ Part 1 → checkout")
	assert.Contains(t, got, `Reply 1: body "nope" != "ok"`)
	assert.Contains(t, got, "Scenario Error: boom")
}

func TestQuietAndJSONReporters(t *testing.T) {
	failed := runner.ScenarioResult{Case: runner.Case{Name: "sad"}, Result: runner.ResultError, Error: "attach failed"}

	var quiet bytes.Buffer
	q := NewQuietReporter(&quiet)
	q.ReportScenarioResult(runner.ScenarioResult{Case: runner.Case{Name: "happy"}, Result: runner.ResultPassed})
	q.ReportScenarioResult(failed)
	q.ReportSuiteResult(suiteOf(failed))
	assert.Equal(t, "💥 sad: attach failed\n❌ 1/1 scenarios failed (1s)\n", quiet.String())

	var jsonOut bytes.Buffer
	j := NewJSONReporter(&jsonOut)
	j.ReportSuiteResult(suiteOf(failed))
	var decoded runner.SuiteResult
	require.NoError(t, json.Unmarshal(jsonOut.Bytes(), &decoded))
	assert.Equal(t, 1, decoded.ErrorScenarios)
	assert.Equal(t, "sad", decoded.ScenarioResults[0].Case.Name)
}

func TestMulti(t *testing.T) {
	var a, b bytes.Buffer
	m := Multi(NewQuietReporter(&a), NewQuietReporter(&b))
	m.ReportSuiteResult(suiteOf())
	assert.Equal(t, a.String(), b.String())
	assert.Contains(t, a.String(), "All 0 scenarios passed")
}

func TestStructuredReporter(t *testing.T) {
	r := NewStructuredReporter()
	r.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }

	empty, err := r.GetResultsAsJSON()
	require.NoError(t, err)
	assert.Contains(t, empty, "no_results")
	_, err = r.WriteReport(t.TempDir())
	assert.Error(t, err)

	c := runner.Case{Name: "sad"}
	r.ReportStart(runner.Configuration{Parallel: 1}, 1)
	r.ReportScenarioStart(c)
	r.ReportPartResult(c, failingPart())

	states := r.GetScenarioStates()
	require.Contains(t, states, "sad")
	assert.Equal(t, "running", states["sad"].Status)
	assert.Len(t, states["sad"].PartResults, 1)

	result := runner.ScenarioResult{Case: c, Result: runner.ResultFailed, PartResults: []runner.PartResult{failingPart()}}
	r.ReportScenarioResult(result)
	assert.Equal(t, "failed", r.GetScenarioStates()["sad"].Status)
	assert.Len(t, r.GetCurrentResults(), 1)
	assert.Len(t, r.GetCurrentSuiteResult().ScenarioResults, 1)

	r.ReportSuiteResult(suiteOf(result))

	dir := filepath.Join(t.TempDir(), "reports")
	path, err := r.WriteReport(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "choreo-report-20260304-050607.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded runner.SuiteResult
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 1, decoded.FailedScenarios)
	require.Len(t, decoded.ScenarioResults, 1)
	assert.Equal(t, "run-1", decoded.ScenarioResults[0].PartResults[0].Report.RunID)
}

package runner

import (
	"time"

	"choreo/internal/diagnostics"
	"choreo/internal/testspec"
)

// Result represents the outcome of a part or scenario
type Result string

const (
	// ResultPassed indicates every expectation was satisfied
	ResultPassed Result = "PASSED"
	// ResultFailed indicates an expectation was not satisfied
	ResultFailed Result = "FAILED"
	// ResultSkipped indicates the scenario was not run
	ResultSkipped Result = "SKIPPED"
	// ResultError indicates the run could not be carried out
	ResultError Result = "ERROR"
)

// Configuration controls how a suite is executed
type Configuration struct {
	Parallel     int           `json:"parallel"`
	FailFast     bool          `json:"fail_fast"`
	Timeout      time.Duration `json:"timeout"`       // Default scenario timeout
	PollInterval time.Duration `json:"poll_interval"` // How often pending slots are checked
	Verbose      bool          `json:"verbose"`
	Debug        bool          `json:"debug"`
}

// Case is one compiled scenario ready to run
type Case struct {
	Name     string                      `json:"name"`
	Category string                      `json:"category,omitempty"`
	Tags     []string                    `json:"tags,omitempty"`
	Skip     bool                        `json:"skip,omitempty"`
	Timeout  time.Duration               `json:"timeout,omitempty"`
	Source   string                      `json:"source,omitempty"`
	Spec     *testspec.TestSpecification `json:"-"`
}

// ReplyResult records the synchronous outcome of one request
type ReplyResult struct {
	Index   int    `json:"index"`
	Status  int    `json:"status,omitempty"`
	Body    string `json:"body,omitempty"`
	Failure string `json:"failure,omitempty"` // Failure reported while sending
	Error   string `json:"error,omitempty"`   // Why validation rejected the reply
}

// PartResult is the outcome of one part of a scenario
type PartResult struct {
	Index       int                 `json:"index"`
	Description string              `json:"description"`
	Target      string              `json:"target"`
	Result      Result              `json:"result"`
	Replies     []ReplyResult       `json:"replies,omitempty"`
	Report      *diagnostics.Report `json:"report,omitempty"`
	Error       string              `json:"error,omitempty"`
	StartTime   time.Time           `json:"start_time"`
	EndTime     time.Time           `json:"end_time"`
	Duration    time.Duration       `json:"duration"`
}

// ScenarioResult aggregates the parts of one scenario
type ScenarioResult struct {
	Case        Case          `json:"scenario"`
	Result      Result        `json:"result"`
	PartResults []PartResult  `json:"parts"`
	Error       string        `json:"error,omitempty"`
	StartTime   time.Time     `json:"start_time"`
	EndTime     time.Time     `json:"end_time"`
	Duration    time.Duration `json:"duration"`
}

// SuiteResult aggregates every scenario of a run
type SuiteResult struct {
	RunID            string           `json:"run_id"`
	StartTime        time.Time        `json:"start_time"`
	EndTime          time.Time        `json:"end_time"`
	Duration         time.Duration    `json:"duration"`
	TotalScenarios   int              `json:"total_scenarios"`
	PassedScenarios  int              `json:"passed_scenarios"`
	FailedScenarios  int              `json:"failed_scenarios"`
	ErrorScenarios   int              `json:"error_scenarios"`
	SkippedScenarios int              `json:"skipped_scenarios"`
	ScenarioResults  []ScenarioResult `json:"scenario_results"`
	Configuration    Configuration    `json:"configuration"`
}

// Succeeded reports whether no scenario failed or errored
func (s *SuiteResult) Succeeded() bool {
	return s.FailedScenarios == 0 && s.ErrorScenarios == 0
}

// Reporter receives progress while a suite runs
type Reporter interface {
	// ReportStart is called when execution begins
	ReportStart(config Configuration, total int)
	// ReportScenarioStart is called when a scenario begins
	ReportScenarioStart(c Case)
	// ReportPartResult is called when a part completes
	ReportPartResult(c Case, part PartResult)
	// ReportScenarioResult is called when a scenario completes
	ReportScenarioResult(result ScenarioResult)
	// ReportSuiteResult is called when all scenarios complete
	ReportSuiteResult(result SuiteResult)
	// SetParallelMode enables or disables parallel output buffering
	SetParallelMode(parallel bool)
}

// Logger is the progress output used while running
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Error(format string, args ...interface{})
	IsDebugEnabled() bool
	IsVerboseEnabled() bool
}

type nopReporter struct{}

func (nopReporter) ReportStart(Configuration, int)      {}
func (nopReporter) ReportScenarioStart(Case)            {}
func (nopReporter) ReportPartResult(Case, PartResult)   {}
func (nopReporter) ReportScenarioResult(ScenarioResult) {}
func (nopReporter) ReportSuiteResult(SuiteResult)       {}
func (nopReporter) SetParallelMode(bool)                {}

package reporter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"choreo/internal/runner"
)

// ScenarioState tracks the state of a running scenario
type ScenarioState struct {
	Case        runner.Case         `json:"scenario"`
	StartTime   time.Time           `json:"start_time"`
	PartResults []runner.PartResult `json:"part_results"`
	Status      string              `json:"status"` // running, completed, failed
}

// StructuredReporter captures results in memory without writing anywhere
// until asked to.
type StructuredReporter struct {
	mu             sync.RWMutex
	config         runner.Configuration
	scenarioStates map[string]*ScenarioState
	suiteResult    *runner.SuiteResult
	currentResults []runner.ScenarioResult
	now            func() time.Time
}

// NewStructuredReporter creates an empty structured reporter
func NewStructuredReporter() *StructuredReporter {
	return &StructuredReporter{
		scenarioStates: make(map[string]*ScenarioState),
		currentResults: make([]runner.ScenarioResult, 0),
		now:            time.Now,
	}
}

// ReportStart is called when execution begins
func (r *StructuredReporter) ReportStart(config runner.Configuration, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.config = config
	r.scenarioStates = make(map[string]*ScenarioState)
	r.currentResults = make([]runner.ScenarioResult, 0)
	r.suiteResult = &runner.SuiteResult{
		StartTime:       r.now(),
		TotalScenarios:  total,
		ScenarioResults: make([]runner.ScenarioResult, 0),
		Configuration:   config,
	}
}

// ReportScenarioStart is called when a scenario begins
func (r *StructuredReporter) ReportScenarioStart(c runner.Case) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.scenarioStates[c.Name] = &ScenarioState{
		Case:        c,
		StartTime:   r.now(),
		PartResults: make([]runner.PartResult, 0),
		Status:      "running",
	}
}

// ReportPartResult is called when a part completes
func (r *StructuredReporter) ReportPartResult(c runner.Case, part runner.PartResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if state, ok := r.scenarioStates[c.Name]; ok {
		state.PartResults = append(state.PartResults, part)
	}
}

// ReportScenarioResult is called when a scenario completes
func (r *StructuredReporter) ReportScenarioResult(result runner.ScenarioResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if state, ok := r.scenarioStates[result.Case.Name]; ok {
		if result.Result == runner.ResultPassed {
			state.Status = "completed"
		} else {
			state.Status = "failed"
		}
	}

	r.currentResults = append(r.currentResults, result)
	if r.suiteResult != nil {
		r.suiteResult.ScenarioResults = append(r.suiteResult.ScenarioResults, result)
	}
}

// ReportSuiteResult is called when all scenarios complete
func (r *StructuredReporter) ReportSuiteResult(result runner.SuiteResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.suiteResult = &result
	for _, state := range r.scenarioStates {
		if state.Status == "running" {
			state.Status = "completed"
		}
	}
}

// SetParallelMode is a no-op; everything is captured for later access
func (r *StructuredReporter) SetParallelMode(bool) {}

// GetCurrentSuiteResult returns a copy of the suite result, nil before the
// first run started
func (r *StructuredReporter) GetCurrentSuiteResult() *runner.SuiteResult {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.suiteResult == nil {
		return nil
	}
	result := *r.suiteResult
	result.ScenarioResults = append([]runner.ScenarioResult(nil), r.suiteResult.ScenarioResults...)
	return &result
}

// GetScenarioStates returns a copy of the state of every started scenario
func (r *StructuredReporter) GetScenarioStates() map[string]*ScenarioState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	states := make(map[string]*ScenarioState, len(r.scenarioStates))
	for name, state := range r.scenarioStates {
		stateCopy := *state
		stateCopy.PartResults = append([]runner.PartResult(nil), state.PartResults...)
		states[name] = &stateCopy
	}
	return states
}

// GetCurrentResults returns the scenario results received so far
func (r *StructuredReporter) GetCurrentResults() []runner.ScenarioResult {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]runner.ScenarioResult(nil), r.currentResults...)
}

// GetResultsAsJSON returns the current suite result as JSON
func (r *StructuredReporter) GetResultsAsJSON() (string, error) {
	result := r.GetCurrentSuiteResult()
	if result == nil {
		return `{"status": "no_results", "message": "No results available"}`, nil
	}

	jsonData, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", err
	}
	return string(jsonData), nil
}

// WriteReport saves the suite result as a timestamped JSON file in dir and
// returns its path.
func (r *StructuredReporter) WriteReport(dir string) (string, error) {
	result := r.GetCurrentSuiteResult()
	if result == nil {
		return "", fmt.Errorf("no results to write")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	jsonData, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report to JSON: %w", err)
	}

	filename := fmt.Sprintf("choreo-report-%s.json", r.now().Format("20060102-150405"))
	fullPath := filepath.Join(dir, filename)
	if err := os.WriteFile(fullPath, jsonData, 0644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}
	return fullPath, nil
}

package scenario

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"choreo/internal/expectation"

	"gopkg.in/yaml.v3"
)

// Logger receives loader progress. The runner's console logger satisfies it.
type Logger interface {
	Debug(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}

// LoadError reports a scenario file that could not be read, parsed or
// validated.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("scenario %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// IsLoadError reports whether err is or wraps a LoadError.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}

// Loader reads scenario files from disk.
type Loader struct {
	logger Logger
}

// NewLoader creates a loader. A nil logger discards progress output.
func NewLoader(logger Logger) *Loader {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Loader{logger: logger}
}

// Load loads a single scenario file or every YAML file below a directory.
// Scenario names must be unique across the result.
func (l *Loader) Load(path string) ([]Scenario, error) {
	l.logger.Debug("📁 Loading scenarios from: %s\n", path)

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("scenario path does not exist: %s", path)
		}
		return nil, fmt.Errorf("failed to stat scenario path: %w", err)
	}

	var scenarios []Scenario
	if info.IsDir() {
		scenarios, err = l.loadDirectory(path)
		if err != nil {
			return nil, err
		}
	} else {
		s, err := l.LoadFile(path)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}

	seen := make(map[string]string, len(scenarios))
	for _, s := range scenarios {
		if other, dup := seen[s.Name]; dup {
			return nil, &LoadError{Path: s.Source, Err: fmt.Errorf("scenario name %q already used by %s", s.Name, other)}
		}
		seen[s.Name] = s.Source
	}

	l.logger.Debug("📋 Loaded %d scenarios\n", len(scenarios))
	for _, s := range scenarios {
		l.logger.Debug("  • %s (%s) - %d part(s)\n", s.Name, s.Category, s.PartCount())
	}
	return scenarios, nil
}

func (l *Loader) loadDirectory(dir string) ([]Scenario, error) {
	var scenarios []Scenario
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isYAMLFile(path) {
			return nil
		}
		l.logger.Debug("📄 Loading scenario file: %s\n", path)

		s, err := l.LoadFile(path)
		if err != nil {
			return err
		}
		scenarios = append(scenarios, s)
		return nil
	})
	if err != nil {
		if IsLoadError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to walk directory %s: %w", dir, err)
	}
	return scenarios, nil
}

// LoadFile loads and validates one scenario file.
func (l *Loader) LoadFile(path string) (Scenario, error) {
	var s Scenario

	content, err := os.ReadFile(path)
	if err != nil {
		return s, &LoadError{Path: path, Err: err}
	}
	if err := yaml.Unmarshal(content, &s); err != nil {
		return s, &LoadError{Path: path, Err: fmt.Errorf("failed to parse YAML: %w", err)}
	}
	s.Source = path
	if err := Validate(s); err != nil {
		return s, &LoadError{Path: path, Err: err}
	}
	return s, nil
}

// Validate checks the structure of a scenario. It does not compile matchers
// or templates; Compile does.
func Validate(s Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("scenario name is required")
	}
	if s.Category == "" {
		return fmt.Errorf("scenario category is required")
	}
	if s.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	i := 0
	for p := &s.Part; p != nil; p = p.Next {
		i++
		if err := validatePart(p); err != nil {
			return fmt.Errorf("part %d: %w", i, err)
		}
	}
	return nil
}

func validatePart(p *Part) error {
	if p.Target == "" {
		return fmt.Errorf("target is required")
	}
	if len(p.Requests) == 0 && len(p.ExpectedResponses) == 0 {
		return fmt.Errorf("at least one request or expected response is required")
	}
	if p.SendInterval < 0 || p.ExecuteDelay < 0 {
		return fmt.Errorf("send_interval and execute_delay cannot be negative")
	}
	for i, r := range p.Requests {
		if r.Repeat < 0 {
			return fmt.Errorf("request %d: repeat cannot be negative", i+1)
		}
		if r.Body != "" && r.JSON != nil {
			return fmt.Errorf("request %d: body and json are mutually exclusive", i+1)
		}
	}
	for i, r := range p.ExpectedResponses {
		if r.Failure && (r.Status != 0 || len(r.Match) > 0) {
			return fmt.Errorf("expected response %d: failure excludes status and match", i+1)
		}
		if err := validateMatchers(r.Match); err != nil {
			return fmt.Errorf("expected response %d: %w", i+1, err)
		}
	}
	for i, e := range p.Expectations {
		if err := validateExpectation(e); err != nil {
			return fmt.Errorf("expectation %d: %w", i+1, err)
		}
	}
	return nil
}

func validateExpectation(e ExpectationConfig) error {
	if e.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if _, err := expectation.ParseOrderingType(e.Ordering); err != nil {
		return err
	}
	if e.Count < 0 {
		return fmt.Errorf("count cannot be negative")
	}
	for i, m := range e.Messages {
		if err := validateMessage(m); err != nil {
			return fmt.Errorf("message %d: %w", i+1, err)
		}
	}
	if e.Repeated != nil {
		if err := validateMessage(*e.Repeated); err != nil {
			return fmt.Errorf("repeated: %w", err)
		}
		for _, r := range e.Repeated.Respond {
			if r.Fail != "" {
				return fmt.Errorf("repeated: fail responders must be declared per message")
			}
		}
	}
	if e.Lenient != nil {
		if err := validateMatchers(e.Lenient.Select); err != nil {
			return fmt.Errorf("lenient: %w", err)
		}
		for i, r := range e.Lenient.Respond {
			if err := validateResponder(r); err != nil {
				return fmt.Errorf("lenient responder %d: %w", i+1, err)
			}
			if r.Fail != "" {
				return fmt.Errorf("lenient responder %d: fail is not supported in lenient mode", i+1)
			}
		}
	}
	if t := e.Timing; t != nil {
		for _, d := range []*time.Duration{t.MinimalWait, t.PerMessageWait, t.Reassertion} {
			if d != nil && *d < 0 {
				return fmt.Errorf("timing values cannot be negative")
			}
		}
	}
	if e.Feeder != nil && e.Feeder.Kind == "" {
		return fmt.Errorf("feeder kind is required")
	}
	return nil
}

func validateMessage(m MessageConfig) error {
	if err := validateMatchers(m.Match); err != nil {
		return err
	}
	fails := 0
	for i, r := range m.Respond {
		if err := validateResponder(r); err != nil {
			return fmt.Errorf("responder %d: %w", i+1, err)
		}
		if r.Fail != "" {
			fails++
		}
	}
	if fails > 0 && len(m.Respond) > 1 {
		return fmt.Errorf("a fail responder cannot be combined with other responders")
	}
	return nil
}

func validateMatchers(ms []MatcherConfig) error {
	for i, m := range ms {
		if n := m.kinds(); n != 1 {
			return fmt.Errorf("matcher %d must set exactly one kind, got %d", i+1, n)
		}
		if m.Header != nil && m.Header.Name == "" {
			return fmt.Errorf("matcher %d: header name is required", i+1)
		}
	}
	return nil
}

func validateResponder(r ResponderConfig) error {
	other := r.Body != "" || r.Status != 0 || len(r.Headers) > 0
	if r.Echo && (other || r.Fail != "") {
		return fmt.Errorf("echo cannot be combined with other fields")
	}
	if r.Fail != "" && other {
		return fmt.Errorf("fail cannot be combined with other fields")
	}
	if !r.Echo && r.Fail == "" && !other {
		return fmt.Errorf("responder is empty")
	}
	return nil
}

func (m MatcherConfig) kinds() int {
	n := 0
	for _, set := range []bool{
		m.JQ != "", m.Expr != "", m.Schema != "", m.SchemaFile != "",
		m.BodyContains != "", m.BodyEquals != "", m.BodyMatches != "",
		m.JSONEquals != "", m.Header != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

// FilterScenarios keeps the scenarios matching every non-empty filter field.
func FilterScenarios(scenarios []Scenario, f Filter) []Scenario {
	var filtered []Scenario
	for _, s := range scenarios {
		if f.Category != "" && s.Category != f.Category {
			continue
		}
		if f.Name != "" && s.Name != f.Name {
			continue
		}
		if f.Tag != "" && !hasTag(s, f.Tag) {
			continue
		}
		filtered = append(filtered, s)
	}
	return filtered
}

func hasTag(s Scenario, tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Categories returns the sorted unique categories.
func Categories(scenarios []Scenario) []string {
	set := make(map[string]bool)
	for _, s := range scenarios {
		set[s.Category] = true
	}
	categories := make([]string, 0, len(set))
	for c := range set {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	return categories
}

func isYAMLFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

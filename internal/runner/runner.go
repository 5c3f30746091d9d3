package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"choreo/internal/clock"
	"choreo/internal/diagnostics"
	"choreo/internal/engine"
	"choreo/internal/message"
	"choreo/internal/metrics"
	"choreo/internal/testspec"
	"choreo/internal/transport"
	"choreo/pkg/logging"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	defaultTimeout      = 5 * time.Minute
	defaultPollInterval = 50 * time.Millisecond
)

// Runner executes compiled scenarios against the system under test. Requests
// go out through the sender; arrivals at mock endpoints come back through
// the feeders of the registry.
type Runner struct {
	registry  *transport.Registry
	sender    transport.Sender
	reporter  Reporter
	logger    Logger
	clock     clock.Clock
	metrics   *metrics.Collector
	observers []engine.Observer
}

// Option configures a Runner
type Option func(*Runner)

// WithReporter sets the progress reporter
func WithReporter(r Reporter) Option {
	return func(rn *Runner) { rn.reporter = r }
}

// WithLogger sets the progress logger
func WithLogger(l Logger) Option {
	return func(rn *Runner) { rn.logger = l }
}

// WithClock replaces the wall clock used for waits
func WithClock(c clock.Clock) Option {
	return func(rn *Runner) { rn.clock = c }
}

// WithMetrics records arrivals, parts and scenarios in m
func WithMetrics(m *metrics.Collector) Option {
	return func(rn *Runner) { rn.metrics = m }
}

// WithObserver adds an arrival observer to every engine the runner creates
func WithObserver(o engine.Observer) Option {
	return func(rn *Runner) { rn.observers = append(rn.observers, o) }
}

// New creates a runner
func New(registry *transport.Registry, sender transport.Sender, opts ...Option) *Runner {
	r := &Runner{
		registry: registry,
		sender:   sender,
		reporter: nopReporter{},
		logger:   NewSilentLogger(false, false),
		clock:    clock.Real{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the cases according to the configuration
func (r *Runner) Run(ctx context.Context, config Configuration, cases []Case) (*SuiteResult, error) {
	if r.registry == nil || r.sender == nil {
		return nil, errors.New("runner needs a transport registry and a sender")
	}

	result := &SuiteResult{
		RunID:           uuid.New().String(),
		StartTime:       time.Now(),
		TotalScenarios:  len(cases),
		ScenarioResults: make([]ScenarioResult, 0, len(cases)),
		Configuration:   config,
	}

	r.reporter.ReportStart(config, len(cases))
	logging.Info("Runner", "Starting run %s with %d scenario(s)", result.RunID, len(cases))

	if config.Parallel <= 1 {
		r.reporter.SetParallelMode(false)
		for _, c := range cases {
			scenarioResult := r.RunCase(ctx, c, config)
			result.ScenarioResults = append(result.ScenarioResults, scenarioResult)
			r.updateCounters(result, scenarioResult)
			r.reporter.ReportScenarioResult(scenarioResult)

			if config.FailFast && failed(scenarioResult.Result) {
				break
			}
			if ctx.Err() != nil {
				break
			}
		}
	} else {
		r.reporter.SetParallelMode(true)
		result.ScenarioResults = r.runParallel(ctx, config, cases, result)
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	r.reporter.ReportSuiteResult(*result)

	return result, ctx.Err()
}

// runParallel runs at most config.Parallel cases at once. After a failure
// with fail-fast set, cases that have not started yet are dropped and the
// ones in flight finish normally.
func (r *Runner) runParallel(ctx context.Context, config Configuration, cases []Case, suite *SuiteResult) []ScenarioResult {
	var (
		g       errgroup.Group
		mu      sync.Mutex
		stopped atomic.Bool
		results = make([]*ScenarioResult, len(cases))
	)
	g.SetLimit(config.Parallel)

	for i, c := range cases {
		if stopped.Load() || ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if stopped.Load() {
				r.logger.Debug("⏭️  Not starting %s after fail-fast\n", c.Name)
				return nil
			}
			res := r.RunCase(ctx, c, config)

			mu.Lock()
			results[i] = &res
			r.updateCounters(suite, res)
			r.reporter.ReportScenarioResult(res)
			mu.Unlock()

			if config.FailFast && failed(res.Result) {
				r.logger.Debug("🛑 Fail-fast triggered by scenario: %s\n", c.Name)
				stopped.Store(true)
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]ScenarioResult, 0, len(cases))
	for _, res := range results {
		if res != nil {
			out = append(out, *res)
		}
	}
	return out
}

// RunCase executes every part of one case in order, stopping at the first
// part that does not pass.
func (r *Runner) RunCase(ctx context.Context, c Case, config Configuration) ScenarioResult {
	result := ScenarioResult{
		Case:      c,
		StartTime: time.Now(),
		Result:    ResultPassed,
	}
	finish := func() ScenarioResult {
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)
		if r.metrics != nil {
			r.metrics.RecordScenario(string(result.Result))
		}
		return result
	}

	if c.Skip {
		result.Result = ResultSkipped
		return finish()
	}
	if c.Spec == nil {
		result.Result = ResultError
		result.Error = "scenario has no compiled specification"
		return finish()
	}

	r.reporter.ReportScenarioStart(c)

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = config.Timeout
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	scenarioCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for i, part := range c.Spec.Parts() {
		partResult := r.RunPart(scenarioCtx, i, part, config)
		result.PartResults = append(result.PartResults, partResult)
		r.reporter.ReportPartResult(c, partResult)

		if partResult.Result != ResultPassed {
			result.Result = partResult.Result
			result.Error = partResult.Error
			if result.Error == "" && partResult.Report != nil {
				result.Error = describeFailure(partResult.Report)
			}
			break
		}
	}

	return finish()
}

// RunPart executes a single part: it attaches a fresh engine to the mock
// endpoints, sends the requests, waits for the asynchronous arrivals and
// asserts the expectations.
func (r *Runner) RunPart(ctx context.Context, index int, spec *testspec.TestSpecification, config Configuration) PartResult {
	result := PartResult{
		Index:       index,
		Description: spec.Description(),
		Target:      spec.TargetEndpointID(),
		StartTime:   time.Now(),
		Result:      ResultPassed,
	}
	fail := func(format string, args ...interface{}) PartResult {
		result.Result = ResultError
		result.Error = fmt.Sprintf(format, args...)
		return r.finishPart(result)
	}

	opts := []engine.Option{engine.WithClock(r.clock)}
	if r.metrics != nil {
		opts = append(opts, engine.WithObserver(r.metrics))
	}
	for _, o := range r.observers {
		opts = append(opts, engine.WithObserver(o))
	}
	eng := engine.New(spec, opts...)

	detach, err := r.registry.AttachAll(spec.Expectations(), eng)
	if err != nil {
		return fail("failed to attach mock endpoints: %v", err)
	}
	defer detach()

	r.logger.Debug("🔗 Part %d: attached %d endpoint(s), run %s\n", index, len(eng.EndpointIDs()), eng.RunID())

	if err := clock.Sleep(ctx, r.clock, spec.ExecuteDelay()); err != nil {
		return fail("interrupted before sending: %v", err)
	}

	for i, gen := range spec.Requests() {
		if i > 0 {
			if err := clock.Sleep(ctx, r.clock, spec.SendInterval()); err != nil {
				return fail("interrupted while sending: %v", err)
			}
		}
		msg, err := gen.Generate(ctx)
		if err != nil {
			return fail("failed to generate request %d: %v", i, err)
		}
		result.Replies = append(result.Replies, r.exchange(ctx, eng, spec, i, msg))
	}

	if err := r.awaitArrivals(ctx, eng, spec.ResultWaitTime(), config.PollInterval); err != nil {
		return r.finishPart(evaluateAsIs(eng, result, "waiting for arrivals", err))
	}

	satisfied, report := eng.AssertSatisfied()
	if satisfied && spec.ReassertionPeriod() > 0 {
		r.logger.Debug("⏳ Part %d: reasserting after %v\n", index, spec.ReassertionPeriod())
		if err := clock.Sleep(ctx, r.clock, spec.ReassertionPeriod()); err != nil {
			return r.finishPart(evaluateAsIs(eng, result, "reasserting", err))
		}
		satisfied, report = eng.AssertSatisfied()
	}

	result.Report = report
	if !satisfied {
		result.Result = ResultFailed
	}
	return r.finishPart(result)
}

// evaluateAsIs asserts a part whose wait was cut short by ctx against
// whatever arrived so far.
func evaluateAsIs(eng *engine.Engine, result PartResult, stage string, err error) PartResult {
	logging.Debug("Runner", "Part %d stopped while %s: %v", result.Index, stage, err)
	satisfied, report := eng.AssertSatisfied()
	result.Report = report
	if !satisfied {
		result.Result = ResultFailed
		result.Error = fmt.Sprintf("%s (stopped while %s: %v)", describeFailure(report), stage, err)
	}
	return result
}

// exchange sends one request and validates the synchronous reply. Any send
// error counts as an observed failure.
func (r *Runner) exchange(ctx context.Context, eng *engine.Engine, spec *testspec.TestSpecification, index int, msg *message.Message) ReplyResult {
	rr := ReplyResult{Index: index}

	reply, sendErr := r.sender.Send(ctx, spec.TargetEndpointID(), msg)
	if reply != nil {
		rr.Status = reply.Status
		rr.Body = reply.BodyString()
	}
	if sendErr != nil {
		rr.Failure = sendErr.Error()
		eng.ObserveFailure(sendErr)
		var fe *transport.FailureError
		if !errors.As(sendErr, &fe) {
			logging.Warn("Runner", "Request %d to %s failed in transport: %v", index, spec.TargetEndpointID(), sendErr)
		}
	}

	if err := spec.ReplyMatcher(index).Validate(reply, sendErr); err != nil {
		rr.Error = err.Error()
		eng.RejectReply(index, err)
		r.logger.Debug("❌ Reply %d rejected: %v\n", index, err)
	}
	return rr
}

func (r *Runner) finishPart(result PartResult) PartResult {
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	if r.metrics != nil {
		r.metrics.RecordPart(result.Result == ResultPassed, result.Duration)
	}
	return result
}

// awaitArrivals polls until every slot is consumed or wait has elapsed
func (r *Runner) awaitArrivals(ctx context.Context, eng *engine.Engine, wait, poll time.Duration) error {
	if poll <= 0 {
		poll = defaultPollInterval
	}
	deadline := r.clock.Now().Add(wait)
	for eng.Pending() > 0 {
		remaining := deadline.Sub(r.clock.Now())
		if remaining <= 0 {
			return nil
		}
		if err := clock.Sleep(ctx, r.clock, min(poll, remaining)); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) updateCounters(suite *SuiteResult, res ScenarioResult) {
	switch res.Result {
	case ResultPassed:
		suite.PassedScenarios++
	case ResultFailed:
		suite.FailedScenarios++
	case ResultSkipped:
		suite.SkippedScenarios++
	case ResultError:
		suite.ErrorScenarios++
	}
}

// describeFailure names the failing endpoints after the report summary
func describeFailure(report *diagnostics.Report) string {
	var failing []string
	for _, ep := range report.Endpoints {
		if !ep.Satisfied() {
			failing = append(failing, ep.EndpointID)
		}
	}
	if len(failing) == 0 {
		return report.Summary()
	}
	return fmt.Sprintf("%s (%s)", report.Summary(), strings.Join(failing, ", "))
}

func failed(r Result) bool {
	return r == ResultFailed || r == ResultError
}

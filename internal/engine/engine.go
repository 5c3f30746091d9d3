package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"choreo/internal/clock"
	"choreo/internal/diagnostics"
	"choreo/internal/expectation"
	"choreo/internal/message"
	"choreo/internal/ordering"
	"choreo/internal/testspec"
	"choreo/pkg/logging"

	"github.com/google/uuid"
)

// ErrUnknownEndpoint is returned for arrivals at an endpoint that has no
// expectation in the running specification part.
var ErrUnknownEndpoint = errors.New("no expectation declared for endpoint")

// Outcome classifies how an arrival was handled.
type Outcome string

const (
	OutcomeConsumed        Outcome = "consumed"
	OutcomeLenient         Outcome = "lenient"
	OutcomeIgnored         Outcome = "ignored"
	OutcomeUnexpected      Outcome = "unexpected"
	OutcomeOutOfOrder      Outcome = "out_of_order"
	OutcomeMismatch        Outcome = "mismatch"
	OutcomeUnknownEndpoint Outcome = "unknown_endpoint"
	OutcomeFailureReply    Outcome = "failure_reply"
	OutcomeResponderFailed Outcome = "responder_failed"
)

// Observer is notified after every arrival. pending is the number of slots
// of the endpoint still waiting for a message.
type Observer interface {
	ObserveArrival(endpointID string, outcome Outcome, pending int)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(endpointID string, outcome Outcome, pending int)

// ObserveArrival calls f.
func (f ObserverFunc) ObserveArrival(endpointID string, outcome Outcome, pending int) {
	f(endpointID, outcome, pending)
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for arrival timestamps.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithDiagnostics sets the collector that receives run-time anomalies.
// By default the specification's own collector is used.
func WithDiagnostics(d *diagnostics.Collector) Option {
	return func(e *Engine) { e.diags = d }
}

// WithObserver adds an arrival observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

// WithRunID sets the identifier reported for this run.
func WithRunID(id string) Option {
	return func(e *Engine) { e.runID = id }
}

// Engine is the match runtime of one specification part. It is safe for
// concurrent use; arrivals at the same endpoint are serialized by that
// endpoint's lock and arrivals at different endpoints never contend.
type Engine struct {
	spec      *testspec.TestSpecification
	tracker   *ordering.Tracker
	endpoints map[string]*endpointState
	order     []string

	clock     clock.Clock
	diags     *diagnostics.Collector
	observers []Observer
	runID     string

	failuresObserved atomic.Int64

	mu       sync.Mutex
	findings []diagnostics.Entry
}

// New creates the run-time state for one specification part.
func New(spec *testspec.TestSpecification, opts ...Option) *Engine {
	e := &Engine{
		spec:      spec,
		tracker:   ordering.NewTracker(spec.Forest()),
		endpoints: make(map[string]*endpointState),
		clock:     clock.Real{},
		diags:     spec.Diagnostics(),
		runID:     uuid.New().String(),
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, def := range spec.Expectations() {
		st := newEndpointState(def, spec.Forest())
		// nodes left behind by a lenient merge have no slot and must not
		// block their successors
		for _, id := range st.orphanedNodes() {
			e.tracker.Consume(id)
		}
		e.endpoints[def.EndpointID()] = st
		e.order = append(e.order, def.EndpointID())
	}
	return e
}

// RunID returns the identifier of this run.
func (e *Engine) RunID() string { return e.runID }

// Specification returns the part this engine runs.
func (e *Engine) Specification() *testspec.TestSpecification { return e.spec }

// Tracker exposes the consumed state of the ordering forest.
func (e *Engine) Tracker() *ordering.Tracker { return e.tracker }

// EndpointIDs returns the endpoints with expectations in declaration order.
func (e *Engine) EndpointIDs() []string { return append([]string(nil), e.order...) }

// Handles reports whether the engine has an expectation for the endpoint.
func (e *Engine) Handles(endpointID string) bool {
	_, ok := e.endpoints[endpointID]
	return ok
}

// OnMessageArrived validates and consumes one message arriving at an
// endpoint and returns the response the endpoint replies with. A non-nil
// error asks the transport to reply with a failure. The engine stamps a
// copy of msg; the caller's message is left untouched.
func (e *Engine) OnMessageArrived(ctx context.Context, endpointID string, msg *message.Message) (*message.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if msg == nil {
		msg = message.New("")
	} else {
		msg = msg.Clone()
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.EndpointID == "" {
		msg.EndpointID = endpointID
	}
	msg.ReceivedAt = e.clock.Now()

	st, ok := e.endpoints[endpointID]
	if !ok {
		entry := e.diags.Record(diagnostics.Entry{
			Kind:       diagnostics.KindUnknownEndpoint,
			EndpointID: endpointID,
			MessageID:  msg.ID,
			Slot:       -1,
			Detail:     "arrival at an endpoint without expectations",
		})
		e.mu.Lock()
		e.findings = append(e.findings, entry)
		e.mu.Unlock()
		e.notify(endpointID, OutcomeUnknownEndpoint, 0)
		return nil, fmt.Errorf("%w: %s", ErrUnknownEndpoint, endpointID)
	}

	st.arrivals.Add(1)

	st.mu.Lock()
	resp, outcome, err := e.handle(st, msg)
	pending := st.pending()
	st.mu.Unlock()

	e.notify(endpointID, outcome, pending)
	return resp, err
}

// handle runs the arrival algorithm. Callers hold st.mu.
func (e *Engine) handle(st *endpointState, msg *message.Message) (*message.Message, Outcome, error) {
	endpointID := st.def.EndpointID()
	resp := message.NewResponse(msg)

	if st.lenient != nil {
		return e.handleLenient(st, msg, resp)
	}

	if st.pending() == 0 {
		e.anomaly(st, msg, -1, diagnostics.KindUnexpected, false,
			"all %d expected message(s) already consumed", st.slots())
		return resp, OutcomeUnexpected, nil
	}

	var slot int
	if st.def.EndpointOrdered() {
		// Declared sequence: the first pending group that accepts the
		// message and whose node is eligible wins.
		var blockedBy ordering.NodeID = ordering.NoNode
		var lastErr error
		slot = -1
		for i := range st.consumed {
			if st.consumed[i] {
				continue
			}
			if err := message.MatchAll(st.matchers[i], msg); err != nil {
				lastErr = err
				continue
			}
			if !e.tracker.Eligible(st.node(i)) {
				if blockedBy == ordering.NoNode {
					blockedBy = st.node(i)
				}
				continue
			}
			slot = i
			break
		}
		if slot < 0 {
			if blockedBy != ordering.NoNode {
				e.anomaly(st, msg, -1, diagnostics.KindOutOfOrder, true,
					"matching slot arrived before %s", e.blockers(blockedBy))
				return resp, OutcomeOutOfOrder, nil
			}
			e.anomaly(st, msg, -1, diagnostics.KindMismatch, true,
				"no pending slot matches: %v", lastErr)
			return resp, OutcomeMismatch, nil
		}
		st.consume(slot, e.tracker)
	} else {
		// Arrival order: the head of the pending set is consumed whether or
		// not the message matches it.
		slot = st.head()
		node := st.node(slot)
		if !e.tracker.Eligible(node) {
			e.anomaly(st, msg, slot, diagnostics.KindOutOfOrder, true,
				"arrived before %s", e.blockers(node))
			return resp, OutcomeOutOfOrder, nil
		}
		st.consume(slot, e.tracker)
		if err := message.MatchAll(st.matchers[slot], msg); err != nil {
			e.anomaly(st, msg, slot, diagnostics.KindMismatch, true, "%v", err)
			return resp, OutcomeMismatch, nil
		}
	}

	logging.Debug("Engine", "Endpoint %s consumed message %s into slot %d", endpointID, msg.ID, slot+1)

	if err := message.RespondAll(st.responders[slot], msg, resp); err != nil {
		return e.responderError(st, msg, slot, err)
	}
	return resp, OutcomeConsumed, nil
}

func (e *Engine) handleLenient(st *endpointState, msg, resp *message.Message) (*message.Message, Outcome, error) {
	if sel := st.lenient.Selector; sel != nil {
		if err := sel.Match(msg); err != nil {
			e.anomaly(st, msg, -1, diagnostics.KindMismatch, false,
				"lenient selector rejected message: %v", err)
			return resp, OutcomeIgnored, nil
		}
	}
	if len(st.lenient.Responders) == 0 {
		return resp, OutcomeLenient, nil
	}
	idx := st.lenientIndex % len(st.lenient.Responders)
	st.lenientIndex++
	if r := st.lenient.Responders[idx]; r != nil {
		if err := r.Respond(msg, resp); err != nil {
			return e.responderError(st, msg, -1, err)
		}
	}
	return resp, OutcomeLenient, nil
}

func (e *Engine) responderError(st *endpointState, msg *message.Message, slot int, err error) (*message.Message, Outcome, error) {
	var planned *expectation.ReplyFailure
	if errors.As(err, &planned) {
		logging.Debug("Engine", "Endpoint %s replies with planned failure: %v", st.def.EndpointID(), planned.Err)
		return nil, OutcomeFailureReply, planned
	}
	e.anomaly(st, msg, slot, diagnostics.KindResponderFailed, true, "%v", err)
	return nil, OutcomeResponderFailed, err
}

// anomaly records a run-time anomaly against the endpoint. Callers hold st.mu.
func (e *Engine) anomaly(st *endpointState, msg *message.Message, slot int, kind diagnostics.Kind, invalidating bool, format string, args ...interface{}) {
	entry := e.diags.Record(diagnostics.Entry{
		Kind:         kind,
		EndpointID:   st.def.EndpointID(),
		MessageID:    msg.ID,
		Slot:         slot,
		Invalidating: invalidating,
		Detail:       fmt.Sprintf(format, args...),
	})
	st.anomalies = append(st.anomalies, entry)
	if invalidating {
		st.valid = false
	}
}

func (e *Engine) blockers(id ordering.NodeID) string {
	nodes := e.tracker.Blockers(id)
	if len(nodes) == 0 {
		return "its predecessors"
	}
	return nodes[0].Label()
}

func (e *Engine) notify(endpointID string, outcome Outcome, pending int) {
	for _, o := range e.observers {
		o.ObserveArrival(endpointID, outcome, pending)
	}
}

// ObserveFailure records that a request of this part completed with a
// failure reply.
func (e *Engine) ObserveFailure(err error) {
	if err == nil {
		return
	}
	e.failuresObserved.Add(1)
	logging.Debug("Engine", "Observed failure reply: %v", err)
}

// FailuresObserved returns the number of failure replies observed.
func (e *Engine) FailuresObserved() int64 { return e.failuresObserved.Load() }

// RejectReply records that synchronous reply index did not pass validation.
// A rejected reply makes the part unsatisfied.
func (e *Engine) RejectReply(index int, err error) {
	entry := e.diags.Record(diagnostics.Entry{
		Kind:         diagnostics.KindReplyRejected,
		EndpointID:   e.spec.TargetEndpointID(),
		Slot:         index,
		Invalidating: true,
		Detail:       err.Error(),
	})
	e.mu.Lock()
	e.findings = append(e.findings, entry)
	e.mu.Unlock()
}

// Pending returns the number of unconsumed slots across every endpoint.
func (e *Engine) Pending() int {
	n := 0
	for _, id := range e.order {
		st := e.endpoints[id]
		st.mu.Lock()
		n += st.pending()
		st.mu.Unlock()
	}
	return n
}

// AssertSatisfied evaluates the part against whatever has arrived so far.
// The part is satisfied when every non-lenient endpoint consumed all of its
// slots, no endpoint was invalidated, no reply was rejected and, when a
// failure is expected, one was observed. The report aggregates every
// anomaly across endpoints.
func (e *Engine) AssertSatisfied() (bool, *diagnostics.Report) {
	report := &diagnostics.Report{
		RunID:       e.runID,
		Description: e.spec.Description(),
		Satisfied:   true,
		Warnings:    e.diags.Warnings(),
	}

	for _, id := range e.order {
		ep := e.endpoints[id].report()
		if p := ep.Pending(); p > 0 {
			ep.Anomalies = append(ep.Anomalies, diagnostics.Entry{
				ID:         uuid.New().String(),
				Time:       e.clock.Now(),
				Severity:   diagnostics.SeverityAnomaly,
				Kind:       diagnostics.KindMissingMessages,
				EndpointID: id,
				Slot:       -1,
				Detail:     fmt.Sprintf("expected %d message(s), consumed %d", ep.Expected, ep.Consumed),
			})
		}
		if !ep.Satisfied() {
			report.Satisfied = false
		}
		report.Endpoints = append(report.Endpoints, ep)
	}

	e.mu.Lock()
	report.Failures = append(report.Failures, e.findings...)
	e.mu.Unlock()
	for _, f := range report.Failures {
		if f.Invalidating {
			report.Satisfied = false
		}
	}

	if e.spec.ExpectsException() && e.failuresObserved.Load() == 0 {
		report.Satisfied = false
		report.Failures = append(report.Failures, diagnostics.Entry{
			ID:       uuid.New().String(),
			Time:     e.clock.Now(),
			Severity: diagnostics.SeverityAnomaly,
			Kind:     diagnostics.KindMissingFailure,
			Slot:     -1,
			Detail:   "a failure reply was expected but none was observed",
		})
	}

	if report.Satisfied {
		logging.Debug("Engine", "Run %s satisfied", e.runID)
	} else {
		logging.Info("Engine", "Run %s unsatisfied: %s", e.runID, report.Summary())
	}
	return report.Satisfied, report
}

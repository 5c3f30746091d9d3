package expectation

import (
	"fmt"
	"strconv"
	"time"

	"choreo/internal/diagnostics"
	"choreo/internal/message"
)

// Builder accumulates the expectation for one endpoint. Builder methods
// return the builder for chaining; validation is deferred to Build.
type Builder struct {
	endpointID      string
	orderingType    OrderingType
	endpointOrdered bool
	declaredCount   int

	matcherGroups      [][]message.Matcher
	responderGroups    [][]message.Responder
	repeatedMatchers   []message.Matcher
	repeatedResponders []message.Responder

	lenient *Lenient
	timing  timing
	feeder  *FeederConfig

	failureFactories []func() error
}

// Declare starts an expectation for endpointID. The optional count declares
// how many messages the endpoint must receive.
func Declare(endpointID string, ordering OrderingType, endpointOrdered bool, count ...int) *Builder {
	b := &Builder{
		endpointID:      endpointID,
		orderingType:    ordering,
		endpointOrdered: endpointOrdered,
	}
	if len(count) > 0 {
		b.declaredCount = count[0]
	}
	return b
}

// Total declares a totally ordered, internally ordered endpoint.
func Total(endpointID string) *Builder {
	return Declare(endpointID, OrderingTotal, true)
}

// Partial declares a partially ordered, internally ordered endpoint.
func Partial(endpointID string) *Builder {
	return Declare(endpointID, OrderingPartial, true)
}

// Unordered declares an endpoint whose messages may arrive at any time
// relative to other endpoints. Each arrival consumes the next pending slot.
func Unordered(endpointID string) *Builder {
	return Declare(endpointID, OrderingNone, false)
}

// EndpointID returns the endpoint this builder describes.
func (b *Builder) EndpointID() string { return b.endpointID }

// Expect overrides the declared message count.
func (b *Builder) Expect(count int) *Builder {
	b.declaredCount = count
	return b
}

// SetEndpointOrdered selects declared-sequence matching (true) or
// arrival-order consumption of the pending head (false).
func (b *Builder) SetEndpointOrdered(ordered bool) *Builder {
	b.endpointOrdered = ordered
	return b
}

// AddMatcherGroup declares the predicates one expected message must satisfy.
func (b *Builder) AddMatcherGroup(matchers ...message.Matcher) *Builder {
	b.matcherGroups = append(b.matcherGroups, append([]message.Matcher(nil), matchers...))
	return b
}

// AddResponderGroup declares the actions producing one response.
func (b *Builder) AddResponderGroup(responders ...message.Responder) *Builder {
	b.responderGroups = append(b.responderGroups, append([]message.Responder(nil), responders...))
	return b
}

// AddRepeatedMatcher adds a matcher applied to every message slot that has
// no explicitly declared matcher group.
func (b *Builder) AddRepeatedMatcher(m message.Matcher) *Builder {
	b.repeatedMatchers = append(b.repeatedMatchers, m)
	return b
}

// AddRepeatedResponder adds a responder applied to every message slot that
// has no explicitly declared responder group.
func (b *Builder) AddRepeatedResponder(r message.Responder) *Builder {
	b.repeatedResponders = append(b.repeatedResponders, r)
	return b
}

// AddFailureResponder declares a response group that fails with the error
// produced by factory. The factory is invoked once during Build to make sure
// it yields an error.
func (b *Builder) AddFailureResponder(factory func() error) *Builder {
	b.failureFactories = append(b.failureFactories, factory)
	return b.AddResponderGroup(failureResponder{factory: factory})
}

// SetLenient switches the endpoint to lenient mode. selector may be nil.
func (b *Builder) SetLenient(selector message.Matcher) *Builder {
	if b.lenient == nil {
		b.lenient = &Lenient{}
	}
	b.lenient.Selector = selector
	return b
}

// SetLenientResponders switches the endpoint to lenient mode and sets the
// responders cycled through for every arrival.
func (b *Builder) SetLenientResponders(responders ...message.Responder) *Builder {
	if b.lenient == nil {
		b.lenient = &Lenient{}
	}
	b.lenient.Responders = append([]message.Responder(nil), responders...)
	return b
}

// SetTiming sets the three timing values explicitly.
func (b *Builder) SetTiming(minimalWait, perMessageWait, reassertionPeriod time.Duration) *Builder {
	return b.SetMinimalWaitTime(minimalWait).
		SetPerMessageWaitTime(perMessageWait).
		SetReassertionPeriod(reassertionPeriod)
}

// SetMinimalWaitTime sets the fixed part of the result wait time.
func (b *Builder) SetMinimalWaitTime(d time.Duration) *Builder {
	b.timing.minimal, b.timing.minimalSet = d, true
	return b
}

// SetPerMessageWaitTime sets the wait time added per expected message.
func (b *Builder) SetPerMessageWaitTime(d time.Duration) *Builder {
	b.timing.perMessage, b.timing.perMessageSet = d, true
	return b
}

// SetReassertionPeriod sets how long to wait before asserting again.
func (b *Builder) SetReassertionPeriod(d time.Duration) *Builder {
	b.timing.reassertion, b.timing.reassertionSet = d, true
	return b
}

// SetFeederConfig sets how messages reach the endpoint.
func (b *Builder) SetFeederConfig(cfg FeederConfig) *Builder {
	c := cfg
	b.feeder = &c
	return b
}

// Build freezes the builder into a Definition. When previous is non-nil it
// must describe the same endpoint, declared earlier in the same test; the
// result then holds previous's messages followed by this builder's.
func (b *Builder) Build(previous *Definition, diags *diagnostics.Collector) (*Definition, error) {
	if b.endpointID == "" {
		return nil, NewConfigError("", "endpoint id is required")
	}
	if b.declaredCount < 0 {
		return nil, NewConfigError(b.endpointID, "expected message count must not be negative, got %d", b.declaredCount)
	}
	for i, factory := range b.failureFactories {
		if factory == nil {
			return nil, NewConfigError(b.endpointID, "failure responder %d has no factory", i+1)
		}
		if factory() == nil {
			return nil, NewConfigError(b.endpointID, "failure responder %d factory returned no error", i+1)
		}
	}

	count := b.declaredCount
	if len(b.matcherGroups) > count {
		count = len(b.matcherGroups)
	}

	matchers := copyGroups(b.matcherGroups)
	responders := copyGroups(b.responderGroups)

	if b.lenient != nil {
		if count > 0 || len(responders) > 0 {
			diags.Warn(b.endpointID, diagnostics.KindLenientOverride,
				"lenient responders replace %d declared message(s)", count)
		}
		matchers, responders, count = nil, nil, 0
	} else {
		matchers = fitGroups(matchers, count, b.repeatedMatchers, b.endpointID, "matcher", diags)
		responders = fitGroups(responders, count, b.repeatedResponders, b.endpointID, "responder", diags)
	}

	def := &Definition{
		endpointID:      b.endpointID,
		orderingType:    b.orderingType,
		endpointOrdered: b.endpointOrdered,
		matchers:        matchers,
		responders:      responders,
		expectedCount:   count,
		lenient:         copyLenient(b.lenient),
		timing:          b.timing,
		feeder:          b.feeder,
		parts:           1,
	}

	if previous == nil {
		return def, nil
	}
	return merge(previous, def, diags)
}

// merge combines an earlier definition with a newly built one.
func merge(previous, current *Definition, diags *diagnostics.Collector) (*Definition, error) {
	var conflicts []Conflict
	if previous.endpointID != current.endpointID {
		conflicts = append(conflicts, Conflict{Field: "endpoint_id", Previous: previous.endpointID, Current: current.endpointID})
	}
	if previous.endpointOrdered != current.endpointOrdered {
		conflicts = append(conflicts, Conflict{
			Field:    "endpoint_ordered",
			Previous: strconv.FormatBool(previous.endpointOrdered),
			Current:  strconv.FormatBool(current.endpointOrdered),
		})
	}
	if previous.orderingType != current.orderingType {
		conflicts = append(conflicts, Conflict{Field: "ordering_type", Previous: previous.orderingType.String(), Current: current.orderingType.String()})
	}
	if previous.lenient != nil && current.lenient != nil {
		conflicts = append(conflicts, Conflict{Field: "lenient", Previous: "set", Current: "set"})
	}
	if previous.feeder != nil && current.feeder != nil {
		conflicts = append(conflicts, Conflict{Field: "feeder", Previous: previous.feeder.Kind, Current: current.feeder.Kind})
	}
	if len(conflicts) > 0 {
		return nil, &ConfigError{
			EndpointID: current.endpointID,
			Reason:     "cannot merge expectation declarations",
			Conflicts:  conflicts,
		}
	}

	merged := &Definition{
		endpointID:      current.endpointID,
		orderingType:    current.orderingType,
		endpointOrdered: current.endpointOrdered,
		timing:          current.timing.inherit(previous.timing),
		feeder:          previous.feeder,
		lenient:         previous.lenient,
		parts:           previous.parts + current.parts,
	}
	if merged.feeder == nil {
		merged.feeder = current.feeder
	}
	if merged.lenient == nil {
		merged.lenient = current.lenient
	}

	if merged.lenient != nil {
		if n := previous.expectedCount + current.expectedCount; n > 0 {
			diags.Warn(current.endpointID, diagnostics.KindLenientOverride,
				"lenient responders replace %d message(s) declared across merged expectations", n)
		}
		return merged, nil
	}

	merged.matchers = append(copyGroups(previous.matchers), current.matchers...)
	merged.responders = append(copyGroups(previous.responders), current.responders...)
	merged.expectedCount = previous.expectedCount + current.expectedCount
	return merged, nil
}

// fitGroups pads groups up to count with the repeated entries and drops any
// excess groups from the tail.
func fitGroups[T any](groups [][]T, count int, repeated []T, endpointID, what string, diags *diagnostics.Collector) [][]T {
	if len(groups) > count {
		diags.Warn(endpointID, diagnostics.KindTruncated,
			"dropping %d %s group(s) beyond the expected message count %d", len(groups)-count, what, count)
		groups = groups[:count]
	}
	for len(groups) < count {
		var pad []T
		if len(repeated) > 0 {
			pad = append([]T(nil), repeated...)
		}
		groups = append(groups, pad)
	}
	return groups
}

func copyGroups[T any](groups [][]T) [][]T {
	if groups == nil {
		return nil
	}
	out := make([][]T, len(groups))
	for i, g := range groups {
		if g != nil {
			out[i] = append([]T(nil), g...)
		}
	}
	return out
}

func copyLenient(l *Lenient) *Lenient {
	if l == nil {
		return nil
	}
	return &Lenient{
		Selector:   l.Selector,
		Responders: append([]message.Responder(nil), l.Responders...),
	}
}

// failureResponder makes the endpoint reply with a caller supplied error.
type failureResponder struct {
	factory func() error
}

func (f failureResponder) Respond(_ *message.Message, _ *message.Message) error {
	if err := f.factory(); err != nil {
		return &ReplyFailure{Err: err}
	}
	return &ReplyFailure{Err: fmt.Errorf("failure responder produced no error")}
}

// ReplyFailure wraps the error a failure responder asked the endpoint to
// reply with, so the engine can tell planned failures from broken responders.
type ReplyFailure struct {
	Err error
}

func (f *ReplyFailure) Error() string { return f.Err.Error() }

// Unwrap returns the planned error.
func (f *ReplyFailure) Unwrap() error { return f.Err }

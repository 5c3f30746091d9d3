package testspec

import (
	"time"

	"choreo/internal/diagnostics"
	"choreo/internal/expectation"
	"choreo/internal/ordering"
)

// TestSpecification is one frozen part of a test. Parts form a singly
// linked chain through NextPart.
type TestSpecification struct {
	description      string
	targetEndpointID string
	requests         []RequestGenerator
	responseMatchers []ReplyMatcher
	expectsException bool
	definitions      map[string]*expectation.Definition
	order            []string
	forest           *ordering.Forest
	sendInterval     time.Duration
	executeDelay     time.Duration
	partCount        int
	nextPart         *TestSpecification
	diags            *diagnostics.Collector
}

// Description returns the human readable test description.
func (s *TestSpecification) Description() string { return s.description }

// TargetEndpointID returns the endpoint requests are sent to.
func (s *TestSpecification) TargetEndpointID() string { return s.targetEndpointID }

// Requests returns the outbound request generators in send order.
func (s *TestSpecification) Requests() []RequestGenerator {
	return append([]RequestGenerator(nil), s.requests...)
}

// ResponseMatchers returns the declared reply validators.
func (s *TestSpecification) ResponseMatchers() []ReplyMatcher {
	return append([]ReplyMatcher(nil), s.responseMatchers...)
}

// ReplyMatcher returns the validator for reply i. Replies past the declared
// validators use the default, which depends on ExpectsException.
func (s *TestSpecification) ReplyMatcher(i int) ReplyMatcher {
	if i >= 0 && i < len(s.responseMatchers) && s.responseMatchers[i] != nil {
		return s.responseMatchers[i]
	}
	if s.expectsException {
		return FailureCaptured()
	}
	return NoFailure()
}

// ExpectsException reports whether this part must observe a failure.
func (s *TestSpecification) ExpectsException() bool { return s.expectsException }

// Expectations returns one definition per endpoint in declaration order.
func (s *TestSpecification) Expectations() []*expectation.Definition {
	out := make([]*expectation.Definition, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.definitions[id])
	}
	return out
}

// Expectation returns the definition for an endpoint.
func (s *TestSpecification) Expectation(endpointID string) (*expectation.Definition, bool) {
	def, ok := s.definitions[endpointID]
	return def, ok
}

// EndpointIDs returns the mocked endpoints in declaration order.
func (s *TestSpecification) EndpointIDs() []string {
	return append([]string(nil), s.order...)
}

// Forest returns the ordering forest of this part.
func (s *TestSpecification) Forest() *ordering.Forest { return s.forest }

// SendInterval returns the pause between consecutive requests.
func (s *TestSpecification) SendInterval() time.Duration { return s.sendInterval }

// ExecuteDelay returns the pause before this part starts sending.
func (s *TestSpecification) ExecuteDelay() time.Duration { return s.executeDelay }

// PartCount returns the number of parts from this one to the end of the chain.
func (s *TestSpecification) PartCount() int { return s.partCount }

// NextPart returns the following part, or nil.
func (s *TestSpecification) NextPart() *TestSpecification { return s.nextPart }

// Parts returns this part followed by every chained part.
func (s *TestSpecification) Parts() []*TestSpecification {
	var out []*TestSpecification
	for p := s; p != nil; p = p.nextPart {
		out = append(out, p)
	}
	return out
}

// Diagnostics returns the collector that received the build-time warnings.
func (s *TestSpecification) Diagnostics() *diagnostics.Collector { return s.diags }

// ResultWaitTime is the longest result wait time among this part's
// expectations, or the default minimal wait when there are none.
func (s *TestSpecification) ResultWaitTime() time.Duration {
	if len(s.definitions) == 0 {
		return expectation.DefaultMinimalWaitTime
	}
	var longest time.Duration
	for _, def := range s.definitions {
		if d := def.ResultWaitTime(); d > longest {
			longest = d
		}
	}
	return longest
}

// ReassertionPeriod is the longest reassertion period among this part's
// expectations.
func (s *TestSpecification) ReassertionPeriod() time.Duration {
	var longest time.Duration
	for _, def := range s.definitions {
		if d := def.ReassertionPeriod(); d > longest {
			longest = d
		}
	}
	return longest
}

// ExpectedMessageCount is the total number of messages every non-lenient
// endpoint of this part must receive.
func (s *TestSpecification) ExpectedMessageCount() int {
	n := 0
	for _, def := range s.definitions {
		n += def.ExpectedMessageCount()
	}
	return n
}

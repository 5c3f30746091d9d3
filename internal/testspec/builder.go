package testspec

import (
	"time"

	"choreo/internal/diagnostics"
	"choreo/internal/expectation"
	"choreo/internal/ordering"
	"choreo/pkg/logging"
)

// Builder accumulates one test specification part and, through
// AddChainedPart, the parts that follow it.
type Builder struct {
	description      string
	targetEndpointID string

	requests         []RequestGenerator
	responseMatchers []ReplyMatcher
	expectsException bool

	definitions map[string]*expectation.Definition
	order       []string
	forest      *ordering.Builder

	sendInterval time.Duration
	executeDelay time.Duration

	next  *Builder
	diags *diagnostics.Collector
	err   error
}

// New starts a specification that sends its requests to targetEndpointID.
func New(description, targetEndpointID string) *Builder {
	return newPart(description, targetEndpointID, diagnostics.NewCollector())
}

func newPart(description, targetEndpointID string, diags *diagnostics.Collector) *Builder {
	return &Builder{
		description:      description,
		targetEndpointID: targetEndpointID,
		definitions:      make(map[string]*expectation.Definition),
		forest:           ordering.NewBuilder(),
		diags:            diags,
	}
}

// WithDiagnostics replaces the collector that receives build-time warnings.
// It must be called before any expectation is added.
func (b *Builder) WithDiagnostics(diags *diagnostics.Collector) *Builder {
	b.diags = diags
	return b
}

// Diagnostics returns the collector of this part. Each chained part has its
// own, so a part's report only carries its own build warnings.
func (b *Builder) Diagnostics() *diagnostics.Collector { return b.diags }

// AddRequest appends an outbound request generator.
func (b *Builder) AddRequest(gen RequestGenerator) *Builder {
	b.requests = append(b.requests, gen)
	return b
}

// AddExpectedResponse appends a validator for the next synchronous reply.
func (b *Builder) AddExpectedResponse(m ReplyMatcher) *Builder {
	b.responseMatchers = append(b.responseMatchers, m)
	return b
}

// ExpectException switches the default reply validation to require a
// captured failure, and makes the final assertion require one as well.
func (b *Builder) ExpectException() *Builder {
	b.expectsException = true
	return b
}

// SetSendInterval sets the pause between consecutive requests.
func (b *Builder) SetSendInterval(d time.Duration) *Builder {
	b.sendInterval = d
	return b
}

// SetExecuteDelay sets the pause before this part starts sending.
func (b *Builder) SetExecuteDelay(d time.Duration) *Builder {
	b.executeDelay = d
	return b
}

// AddExpectation builds eb, merging it with any earlier definition for the
// same endpoint, and extends the ordering forest with the new slots only.
// The first configuration error is kept and returned by Build.
func (b *Builder) AddExpectation(eb *expectation.Builder) *Builder {
	if b.err != nil {
		return b
	}

	id := eb.EndpointID()
	previous := b.definitions[id]
	def, err := eb.Build(previous, b.diags)
	if err != nil {
		logging.Error("Expectation", err, "Rejected expectation for endpoint %s", id)
		b.err = err
		return b
	}

	from := 0
	if previous == nil {
		b.order = append(b.order, id)
	} else {
		from = previous.ExpectedMessageCount()
	}
	b.definitions[id] = def
	b.forest.Append(id, def.OrderingType(), from, def.ExpectedMessageCount())

	logging.Debug("Expectation", "Endpoint %s now expects %d message(s) (%s)",
		id, def.ExpectedMessageCount(), def.OrderingType())
	return b
}

// AddChainedPart starts the part that runs after the last part of this
// chain and sends its requests to endpointID.
func (b *Builder) AddChainedPart(endpointID string) *Builder {
	if b.next != nil {
		return b.next.AddChainedPart(endpointID)
	}
	b.next = newPart(b.description, endpointID, diagnostics.NewCollector())
	return b.next
}

// Build freezes the chain starting at b.
func (b *Builder) Build() (*TestSpecification, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.requests) == 0 && len(b.responseMatchers) == 0 {
		return nil, expectation.NewConfigError(b.targetEndpointID,
			"test part %q declares no requests and no expected responses", b.description)
	}
	if n := len(b.responseMatchers); n > 0 && n < len(b.requests) {
		b.diags.Warn(b.targetEndpointID, diagnostics.KindDefaultResponse,
			"replies %d..%d use the default validation", n+1, len(b.requests))
	}

	spec := &TestSpecification{
		description:      b.description,
		targetEndpointID: b.targetEndpointID,
		requests:         append([]RequestGenerator(nil), b.requests...),
		responseMatchers: append([]ReplyMatcher(nil), b.responseMatchers...),
		expectsException: b.expectsException,
		definitions:      make(map[string]*expectation.Definition, len(b.definitions)),
		order:            append([]string(nil), b.order...),
		forest:           b.forest.Build(),
		sendInterval:     b.sendInterval,
		executeDelay:     b.executeDelay,
		partCount:        1,
		diags:            b.diags,
	}
	for id, def := range b.definitions {
		spec.definitions[id] = def
	}

	if b.next != nil {
		next, err := b.next.Build()
		if err != nil {
			return nil, err
		}
		spec.nextPart = next
		spec.partCount = 1 + next.partCount
	}
	return spec, nil
}

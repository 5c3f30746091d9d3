package expectation

import (
	"time"

	"choreo/internal/message"
)

// Definition is the frozen expectation for one endpoint. It is produced by
// Builder.Build and never changes afterwards; merging creates a new value.
type Definition struct {
	endpointID      string
	orderingType    OrderingType
	endpointOrdered bool
	matchers        [][]message.Matcher
	responders      [][]message.Responder
	expectedCount   int
	lenient         *Lenient
	timing          timing
	feeder          *FeederConfig
	parts           int
}

// EndpointID returns the endpoint identifier.
func (d *Definition) EndpointID() string { return d.endpointID }

// OrderingType returns the cross-endpoint ordering policy.
func (d *Definition) OrderingType() OrderingType { return d.orderingType }

// EndpointOrdered reports whether an arrival is matched against the groups in
// declared sequence (true) or consumes the head of the pending set (false).
func (d *Definition) EndpointOrdered() bool { return d.endpointOrdered }

// ExpectedMessageCount returns the number of messages the endpoint must
// receive. It is zero for lenient endpoints.
func (d *Definition) ExpectedMessageCount() int { return d.expectedCount }

// Matchers returns one matcher group per expected message.
func (d *Definition) Matchers() [][]message.Matcher { return copyGroups(d.matchers) }

// Responders returns one responder group per expected message.
func (d *Definition) Responders() [][]message.Responder { return copyGroups(d.responders) }

// Lenient returns the lenient pair, or nil.
func (d *Definition) Lenient() *Lenient { return copyLenient(d.lenient) }

// IsLenient reports whether the endpoint answers every arrival through its
// lenient responders.
func (d *Definition) IsLenient() bool { return d.lenient != nil }

// MinimalWaitTime returns the fixed part of the result wait time.
func (d *Definition) MinimalWaitTime() time.Duration { return d.timing.minimalWait() }

// PerMessageWaitTime returns the wait time added per expected message.
func (d *Definition) PerMessageWaitTime() time.Duration { return d.timing.perMessageWait() }

// ReassertionPeriod returns how long to wait before asserting a second time.
func (d *Definition) ReassertionPeriod() time.Duration { return d.timing.reassertionPeriod() }

// ResultWaitTime is the upper bound on how long to wait for this endpoint's
// messages before asserting.
func (d *Definition) ResultWaitTime() time.Duration {
	return d.MinimalWaitTime() + d.PerMessageWaitTime()*time.Duration(d.expectedCount)
}

// FeederConfig returns the feeder configuration, or nil.
func (d *Definition) FeederConfig() *FeederConfig {
	if d.feeder == nil {
		return nil
	}
	c := *d.feeder
	if d.feeder.Options != nil {
		c.Options = make(map[string]string, len(d.feeder.Options))
		for k, v := range d.feeder.Options {
			c.Options[k] = v
		}
	}
	return &c
}

// Declarations returns how many builder declarations were merged into d.
func (d *Definition) Declarations() int { return d.parts }

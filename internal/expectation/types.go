package expectation

import (
	"fmt"
	"strings"
	"time"

	"choreo/internal/message"
)

// OrderingType positions an endpoint's messages relative to other endpoints.
type OrderingType int

const (
	// OrderingTotal: the message must arrive in its exact declared position
	OrderingTotal OrderingType = iota
	// OrderingPartial: the message must arrive at or after its declared position
	OrderingPartial
	// OrderingNone: the message may arrive at any time
	OrderingNone
)

// String makes OrderingType satisfy the fmt.Stringer interface.
func (o OrderingType) String() string {
	switch o {
	case OrderingTotal:
		return "total"
	case OrderingPartial:
		return "partial"
	case OrderingNone:
		return "none"
	default:
		return fmt.Sprintf("OrderingType(%d)", int(o))
	}
}

// ParseOrderingType converts a scenario value into an OrderingType.
func ParseOrderingType(s string) (OrderingType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "total", "":
		return OrderingTotal, nil
	case "partial":
		return OrderingPartial, nil
	case "none", "unordered", "any":
		return OrderingNone, nil
	default:
		return OrderingTotal, fmt.Errorf("unknown ordering type %q (valid: total, partial, none)", s)
	}
}

// Default timing policy values.
const (
	DefaultMinimalWaitTime    = 1 * time.Second
	DefaultPerMessageWaitTime = 500 * time.Millisecond
	DefaultReassertionPeriod  = 0 * time.Second
)

// FeederConfig describes how messages physically reach an endpoint. It is
// owned by the transport layer; the engine only carries it.
type FeederConfig struct {
	// Kind selects the transport adapter (memory, http, mcp)
	Kind string `yaml:"kind" json:"kind"`
	// Address is the adapter-specific location (HTTP path, MCP tool name)
	Address string `yaml:"address,omitempty" json:"address,omitempty"`
	// Options carries adapter-specific settings
	Options map[string]string `yaml:"options,omitempty" json:"options,omitempty"`
}

// Lenient is the fallback pair used instead of counted expectations.
type Lenient struct {
	// Selector narrows which arrivals the lenient responders answer; nil accepts all
	Selector message.Matcher
	// Responders are applied round-robin by lenient arrival index
	Responders []message.Responder
}

// timing tracks which values were set explicitly so that merges can honor
// the first explicit declaration in the chain.
type timing struct {
	minimal        time.Duration
	perMessage     time.Duration
	reassertion    time.Duration
	minimalSet     bool
	perMessageSet  bool
	reassertionSet bool
}

// inherit returns t with every value that prev set explicitly taken from prev.
func (t timing) inherit(prev timing) timing {
	out := t
	if prev.minimalSet {
		out.minimal, out.minimalSet = prev.minimal, true
	}
	if prev.perMessageSet {
		out.perMessage, out.perMessageSet = prev.perMessage, true
	}
	if prev.reassertionSet {
		out.reassertion, out.reassertionSet = prev.reassertion, true
	}
	return out
}

func (t timing) minimalWait() time.Duration {
	if t.minimalSet {
		return t.minimal
	}
	return DefaultMinimalWaitTime
}

func (t timing) perMessageWait() time.Duration {
	if t.perMessageSet {
		return t.perMessage
	}
	return DefaultPerMessageWaitTime
}

func (t timing) reassertionPeriod() time.Duration {
	if t.reassertionSet {
		return t.reassertion
	}
	return DefaultReassertionPeriod
}

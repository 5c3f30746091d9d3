package scenario

import (
	"time"

	"choreo/internal/expectation"
)

// Scenario is one YAML test file. The top-level part is inlined; further
// parts hang off Next.
type Scenario struct {
	// Name is the unique identifier for the scenario
	Name string `yaml:"name" json:"name"`
	// Category groups scenarios for filtering
	Category string `yaml:"category" json:"category"`
	// Description provides a human-readable summary
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	// Tags for additional categorization
	Tags []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	// Skip indicates whether this scenario should be skipped
	Skip bool `yaml:"skip,omitempty" json:"skip,omitempty"`
	// Timeout bounds the whole scenario, all parts included
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	// Variables are available to request and responder templates
	Variables map[string]interface{} `yaml:"variables,omitempty" json:"variables,omitempty"`

	Part `yaml:",inline"`

	// Source is the file the scenario was loaded from
	Source string `yaml:"-" json:"source,omitempty"`
}

// Part describes one specification part: what is sent to the target and
// what every stand-in endpoint must receive meanwhile.
type Part struct {
	// Target is the endpoint requests are sent to
	Target string `yaml:"target" json:"target"`
	// Requests are sent in order, SendInterval apart
	Requests []RequestConfig `yaml:"requests,omitempty" json:"requests,omitempty"`
	// ExpectedResponses validate the synchronous replies by position
	ExpectedResponses []ReplyConfig `yaml:"expected_responses,omitempty" json:"expected_responses,omitempty"`
	// ExpectException requires a failure reply
	ExpectException bool `yaml:"expect_exception,omitempty" json:"expect_exception,omitempty"`
	// SendInterval is the pause between consecutive requests
	SendInterval time.Duration `yaml:"send_interval,omitempty" json:"send_interval,omitempty"`
	// ExecuteDelay is the pause before the part starts sending
	ExecuteDelay time.Duration `yaml:"execute_delay,omitempty" json:"execute_delay,omitempty"`
	// Expectations may name the same endpoint more than once; they merge
	Expectations []ExpectationConfig `yaml:"expectations,omitempty" json:"expectations,omitempty"`
	// Next is the part that runs after this one
	Next *Part `yaml:"next,omitempty" json:"next,omitempty"`
}

// PartCount returns the number of parts starting at p.
func (p *Part) PartCount() int {
	n := 0
	for q := p; q != nil; q = q.Next {
		n++
	}
	return n
}

// RequestConfig describes one outbound request.
type RequestConfig struct {
	// Body is sent verbatim after template rendering
	Body string `yaml:"body,omitempty" json:"body,omitempty"`
	// JSON is marshalled into the body when Body is empty
	JSON interface{} `yaml:"json,omitempty" json:"json,omitempty"`
	// Headers are rendered as templates
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	// Repeat sends the request this many times (default 1)
	Repeat int `yaml:"repeat,omitempty" json:"repeat,omitempty"`
}

// ReplyConfig validates one synchronous reply.
type ReplyConfig struct {
	// Failure requires the request to fail
	Failure bool `yaml:"failure,omitempty" json:"failure,omitempty"`
	// Status requires the reply status code
	Status int `yaml:"status,omitempty" json:"status,omitempty"`
	// Match lists matchers the reply must satisfy
	Match []MatcherConfig `yaml:"match,omitempty" json:"match,omitempty"`
}

// ExpectationConfig is one declaration for a stand-in endpoint.
type ExpectationConfig struct {
	// Endpoint is the stand-in endpoint id
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	// Ordering is total (default), partial or none
	Ordering string `yaml:"ordering,omitempty" json:"ordering,omitempty"`
	// EndpointOrdered defaults to false for ordering none, true otherwise
	EndpointOrdered *bool `yaml:"endpoint_ordered,omitempty" json:"endpoint_ordered,omitempty"`
	// Count declares how many messages are expected
	Count int `yaml:"count,omitempty" json:"count,omitempty"`
	// Messages declare one matcher and responder group per message
	Messages []MessageConfig `yaml:"messages,omitempty" json:"messages,omitempty"`
	// Repeated applies to every message without an explicit entry
	Repeated *MessageConfig `yaml:"repeated,omitempty" json:"repeated,omitempty"`
	// Lenient replaces counted expectations with a fallback responder cycle
	Lenient *LenientConfig `yaml:"lenient,omitempty" json:"lenient,omitempty"`
	// Timing overrides the default wait policy
	Timing *TimingConfig `yaml:"timing,omitempty" json:"timing,omitempty"`
	// Feeder selects how messages reach the endpoint
	Feeder *expectation.FeederConfig `yaml:"feeder,omitempty" json:"feeder,omitempty"`
}

// MessageConfig pairs the matchers and responders of one expected message.
type MessageConfig struct {
	Match   []MatcherConfig   `yaml:"match,omitempty" json:"match,omitempty"`
	Respond []ResponderConfig `yaml:"respond,omitempty" json:"respond,omitempty"`
}

// LenientConfig configures lenient mode. Each Respond entry answers one
// arrival; entries are cycled.
type LenientConfig struct {
	Select  []MatcherConfig   `yaml:"select,omitempty" json:"select,omitempty"`
	Respond []ResponderConfig `yaml:"respond,omitempty" json:"respond,omitempty"`
}

// TimingConfig sets the wait policy. Unset fields keep their defaults.
type TimingConfig struct {
	MinimalWait    *time.Duration `yaml:"minimal_wait,omitempty" json:"minimal_wait,omitempty"`
	PerMessageWait *time.Duration `yaml:"per_message_wait,omitempty" json:"per_message_wait,omitempty"`
	Reassertion    *time.Duration `yaml:"reassertion,omitempty" json:"reassertion,omitempty"`
}

// MatcherConfig is a one-of: exactly one field is set.
type MatcherConfig struct {
	JQ           string        `yaml:"jq,omitempty" json:"jq,omitempty"`
	Expr         string        `yaml:"expr,omitempty" json:"expr,omitempty"`
	Schema       string        `yaml:"schema,omitempty" json:"schema,omitempty"`
	SchemaFile   string        `yaml:"schema_file,omitempty" json:"schema_file,omitempty"`
	BodyContains string        `yaml:"body_contains,omitempty" json:"body_contains,omitempty"`
	BodyEquals   string        `yaml:"body_equals,omitempty" json:"body_equals,omitempty"`
	BodyMatches  string        `yaml:"body_matches,omitempty" json:"body_matches,omitempty"`
	JSONEquals   string        `yaml:"json_equals,omitempty" json:"json_equals,omitempty"`
	Header       *HeaderConfig `yaml:"header,omitempty" json:"header,omitempty"`
}

// HeaderConfig checks a header. An empty value only checks presence.
type HeaderConfig struct {
	Name  string `yaml:"name" json:"name"`
	Value string `yaml:"value,omitempty" json:"value,omitempty"`
}

// ResponderConfig describes how to build (part of) a reply. Fail and Echo
// exclude every other field.
type ResponderConfig struct {
	// Body is rendered as a template over the request and scenario variables
	Body string `yaml:"body,omitempty" json:"body,omitempty"`
	// Status sets the reply status code
	Status int `yaml:"status,omitempty" json:"status,omitempty"`
	// Headers are rendered as templates
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	// Echo copies the request into the reply
	Echo bool `yaml:"echo,omitempty" json:"echo,omitempty"`
	// Fail makes the endpoint reply with a failure carrying this reason
	Fail string `yaml:"fail,omitempty" json:"fail,omitempty"`
}

// Filter selects scenarios. Empty fields match everything.
type Filter struct {
	Category string
	Tag      string
	Name     string
}

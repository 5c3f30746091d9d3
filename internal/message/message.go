package message

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Message is a single exchange payload travelling between the caller, the
// endpoint under test and the stand-in endpoints. The engine never interprets
// the body itself; matchers and responders do.
type Message struct {
	// ID correlates a message across logs and diagnostics
	ID string `json:"id,omitempty" yaml:"id,omitempty"`
	// EndpointID is the endpoint the message was sent to or arrived at
	EndpointID string `json:"endpoint_id,omitempty" yaml:"endpoint_id,omitempty"`
	// Headers carries transport-neutral metadata
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	// Body is the raw payload
	Body []byte `json:"body,omitempty" yaml:"body,omitempty"`
	// Status is an optional transport-neutral status code for replies
	Status int `json:"status,omitempty" yaml:"status,omitempty"`
	// ReceivedAt is set by the engine when the message arrives at an endpoint
	ReceivedAt time.Time `json:"received_at,omitempty" yaml:"received_at,omitempty"`
}

// New creates a message with the given body.
func New(body string) *Message {
	return &Message{
		Headers: make(map[string]string),
		Body:    []byte(body),
	}
}

// NewResponse creates an empty reply to req that the responders fill in.
func NewResponse(req *Message) *Message {
	resp := &Message{Headers: make(map[string]string)}
	if req != nil {
		resp.ID = req.ID
		resp.EndpointID = req.EndpointID
	}
	return resp
}

// Header returns a header value using a case-insensitive lookup.
func (m *Message) Header(name string) (string, bool) {
	if m == nil || m.Headers == nil {
		return "", false
	}
	if v, ok := m.Headers[name]; ok {
		return v, true
	}
	for k, v := range m.Headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// SetHeader sets a header, allocating the header map if needed.
func (m *Message) SetHeader(name, value string) {
	if m.Headers == nil {
		m.Headers = make(map[string]string)
	}
	m.Headers[name] = value
}

// BodyString returns the body as a string.
func (m *Message) BodyString() string {
	if m == nil {
		return ""
	}
	return string(m.Body)
}

// DecodeJSON decodes the body as JSON into a generic value.
func (m *Message) DecodeJSON() (interface{}, error) {
	if m == nil || len(m.Body) == 0 {
		return nil, fmt.Errorf("message has no body")
	}
	var v interface{}
	if err := json.Unmarshal(m.Body, &v); err != nil {
		return nil, fmt.Errorf("message body is not valid JSON: %w", err)
	}
	return v, nil
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	if m.Headers != nil {
		c.Headers = make(map[string]string, len(m.Headers))
		for k, v := range m.Headers {
			c.Headers[k] = v
		}
	}
	if m.Body != nil {
		c.Body = append([]byte(nil), m.Body...)
	}
	return &c
}

// Fields exposes the message as a map for expression and template evaluation.
// The decoded JSON body is available under "json" when the body parses.
func (m *Message) Fields() map[string]interface{} {
	fields := map[string]interface{}{
		"id":       m.ID,
		"endpoint": m.EndpointID,
		"headers":  m.Headers,
		"body":     string(m.Body),
		"status":   m.Status,
	}
	if len(m.Body) > 0 {
		var v interface{}
		if err := json.Unmarshal(m.Body, &v); err == nil {
			fields["json"] = v
		}
	}
	return fields
}

package message

import "fmt"

// Matcher is an opaque predicate over a received message. A nil error means
// the message matches; the error describes why it did not.
type Matcher interface {
	Match(msg *Message) error
}

// Responder is an opaque action that fills in the response to a received
// message. Returning an error makes the endpoint reply with a failure.
type Responder interface {
	Respond(req *Message, resp *Message) error
}

// MatcherFunc adapts a function to the Matcher interface.
type MatcherFunc func(msg *Message) error

// Match calls f(msg).
func (f MatcherFunc) Match(msg *Message) error { return f(msg) }

// ResponderFunc adapts a function to the Responder interface.
type ResponderFunc func(req *Message, resp *Message) error

// Respond calls f(req, resp).
func (f ResponderFunc) Respond(req *Message, resp *Message) error { return f(req, resp) }

// Any matches every message.
var Any Matcher = MatcherFunc(func(*Message) error { return nil })

// MatchAll evaluates every matcher of a group and returns the first mismatch.
// An empty group matches anything.
func MatchAll(group []Matcher, msg *Message) error {
	for i, m := range group {
		if m == nil {
			continue
		}
		if err := m.Match(msg); err != nil {
			if len(group) == 1 {
				return err
			}
			return fmt.Errorf("matcher %d: %w", i+1, err)
		}
	}
	return nil
}

// RespondAll applies every responder of a group in order.
func RespondAll(group []Responder, req *Message, resp *Message) error {
	for _, r := range group {
		if r == nil {
			continue
		}
		if err := r.Respond(req, resp); err != nil {
			return err
		}
	}
	return nil
}

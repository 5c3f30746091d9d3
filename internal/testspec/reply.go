package testspec

import (
	"context"
	"errors"
	"fmt"

	"choreo/internal/message"
)

// RequestGenerator produces one outbound message toward the target endpoint.
type RequestGenerator interface {
	Generate(ctx context.Context) (*message.Message, error)
}

// RequestFunc adapts a function to the RequestGenerator interface.
type RequestFunc func(ctx context.Context) (*message.Message, error)

// Generate calls f(ctx).
func (f RequestFunc) Generate(ctx context.Context) (*message.Message, error) { return f(ctx) }

// StaticRequest always sends a copy of msg.
func StaticRequest(msg *message.Message) RequestGenerator {
	return RequestFunc(func(context.Context) (*message.Message, error) {
		return msg.Clone(), nil
	})
}

// ReplyMatcher validates the synchronous outcome of one request: the reply
// message (nil on failure) and the failure captured while sending, if any.
type ReplyMatcher interface {
	Validate(reply *message.Message, failure error) error
}

// ReplyMatcherFunc adapts a function to the ReplyMatcher interface.
type ReplyMatcherFunc func(reply *message.Message, failure error) error

// Validate calls f(reply, failure).
func (f ReplyMatcherFunc) Validate(reply *message.Message, failure error) error { return f(reply, failure) }

// ErrNoFailureCaptured is returned when a failure was expected but the
// request completed normally.
var ErrNoFailureCaptured = errors.New("expected a failure but none was captured")

// NoFailure accepts any reply as long as sending did not fail.
func NoFailure() ReplyMatcher {
	return ReplyMatcherFunc(func(_ *message.Message, failure error) error {
		if failure != nil {
			return fmt.Errorf("unexpected failure: %w", failure)
		}
		return nil
	})
}

// FailureCaptured accepts only an outcome where sending failed.
func FailureCaptured() ReplyMatcher {
	return ReplyMatcherFunc(func(_ *message.Message, failure error) error {
		if failure == nil {
			return ErrNoFailureCaptured
		}
		return nil
	})
}

// Reply requires a successful reply that satisfies every matcher.
func Reply(matchers ...message.Matcher) ReplyMatcher {
	return ReplyMatcherFunc(func(reply *message.Message, failure error) error {
		if failure != nil {
			return fmt.Errorf("unexpected failure: %w", failure)
		}
		if reply == nil {
			return errors.New("no reply received")
		}
		return message.MatchAll(matchers, reply)
	})
}

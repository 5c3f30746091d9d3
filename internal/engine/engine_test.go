package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"choreo/internal/clock"
	"choreo/internal/diagnostics"
	"choreo/internal/expectation"
	"choreo/internal/message"
	"choreo/internal/testspec"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bodyIs(want string) message.Matcher {
	return message.MatcherFunc(func(m *message.Message) error {
		if m.BodyString() != want {
			return fmt.Errorf("body %q != %q", m.BodyString(), want)
		}
		return nil
	})
}

func reply(body string) message.Responder {
	return message.ResponderFunc(func(_ *message.Message, resp *message.Message) error {
		resp.Body = []byte(body)
		return nil
	})
}

func buildSpec(t *testing.T, configure func(b *testspec.Builder)) *testspec.TestSpecification {
	t.Helper()
	b := testspec.New("engine test", "target").
		AddRequest(testspec.StaticRequest(message.New("go")))
	configure(b)
	spec, err := b.Build()
	require.NoError(t, err)
	return spec
}

func arrive(t *testing.T, e *Engine, endpointID, body string) *message.Message {
	t.Helper()
	resp, err := e.OnMessageArrived(context.Background(), endpointID, message.New(body))
	require.NoError(t, err)
	return resp
}

func kinds(entries []diagnostics.Entry) []diagnostics.Kind {
	var out []diagnostics.Kind
	for _, e := range entries {
		out = append(out, e.Kind)
	}
	return out
}

func TestRoundTripConsumption(t *testing.T) {
	spec := buildSpec(t, func(b *testspec.Builder) {
		b.AddExpectation(expectation.Total("orders").
			AddMatcherGroup(bodyIs("one")).
			AddMatcherGroup(bodyIs("two")).
			AddResponderGroup(reply("ack-1")).
			AddResponderGroup(reply("ack-2")))
	})
	e := New(spec)

	assert.Equal(t, "ack-1", arrive(t, e, "orders", "one").BodyString())
	assert.Equal(t, "ack-2", arrive(t, e, "orders", "two").BodyString())
	assert.Equal(t, 0, e.Pending())

	ok, report := e.AssertSatisfied()
	require.True(t, ok, report.String())

	// one extra arrival is recorded but does not invalidate
	extra := arrive(t, e, "orders", "three")
	assert.Empty(t, extra.BodyString())

	ok, report = e.AssertSatisfied()
	assert.True(t, ok)
	ep, _ := report.Endpoint("orders")
	assert.True(t, ep.Valid)
	assert.Equal(t, int64(3), ep.Received)
	assert.Equal(t, []diagnostics.Kind{diagnostics.KindUnexpected}, kinds(ep.Anomalies))
	assert.False(t, ep.Anomalies[0].Invalidating)
}

func TestLenientCycling(t *testing.T) {
	spec := buildSpec(t, func(b *testspec.Builder) {
		b.AddExpectation(expectation.Unordered("catalog").SetLenientResponders(reply("x"), reply("y")))
	})
	e := New(spec)

	var got []string
	for i := 0; i < 3; i++ {
		got = append(got, arrive(t, e, "catalog", "anything").BodyString())
	}
	assert.Equal(t, []string{"x", "y", "x"}, got)

	ok, report := e.AssertSatisfied()
	assert.True(t, ok)
	ep, _ := report.Endpoint("catalog")
	assert.True(t, ep.Lenient)
	assert.Equal(t, int64(3), ep.Received)
}

func TestLenientSelectorMismatchIsNotInvalidating(t *testing.T) {
	spec := buildSpec(t, func(b *testspec.Builder) {
		b.AddExpectation(expectation.Unordered("catalog").
			SetLenient(bodyIs("lookup")).
			SetLenientResponders(reply("found")))
	})
	e := New(spec)

	assert.Equal(t, "found", arrive(t, e, "catalog", "lookup").BodyString())
	assert.Empty(t, arrive(t, e, "catalog", "delete").BodyString())

	ok, report := e.AssertSatisfied()
	assert.True(t, ok)
	assert.Equal(t, 1, report.AnomalyCount())
}

func TestOutOfOrderArrivalInvalidates(t *testing.T) {
	spec := buildSpec(t, func(b *testspec.Builder) {
		b.AddExpectation(expectation.Total("first").Expect(1))
		b.AddExpectation(expectation.Total("second").Expect(1).AddResponderGroup(reply("done")))
	})
	e := New(spec)

	early := arrive(t, e, "second", "x")
	assert.Empty(t, early.BodyString())
	arrive(t, e, "first", "x")
	assert.Equal(t, "done", arrive(t, e, "second", "x").BodyString())

	ok, report := e.AssertSatisfied()
	assert.False(t, ok)
	ep, _ := report.Endpoint("second")
	assert.False(t, ep.Valid)
	assert.Equal(t, 1, ep.Consumed)
	require.Len(t, ep.Anomalies, 1)
	assert.Equal(t, diagnostics.KindOutOfOrder, ep.Anomalies[0].Kind)
	assert.Contains(t, ep.Anomalies[0].Detail, "first#1")
}

func TestPartialSiblingsMayArriveInAnyOrder(t *testing.T) {
	spec := buildSpec(t, func(b *testspec.Builder) {
		b.AddExpectation(expectation.Total("login").Expect(1))
		b.AddExpectation(expectation.Partial("audit").Expect(1))
		b.AddExpectation(expectation.Partial("email").Expect(1))
		b.AddExpectation(expectation.Unordered("metrics").Expect(1))
	})
	e := New(spec)

	arrive(t, e, "metrics", "m")
	arrive(t, e, "login", "l")
	arrive(t, e, "email", "e")
	arrive(t, e, "audit", "a")

	ok, report := e.AssertSatisfied()
	assert.True(t, ok, report.String())
}

func TestPartialBeforeItsPredecessorIsRejected(t *testing.T) {
	spec := buildSpec(t, func(b *testspec.Builder) {
		b.AddExpectation(expectation.Total("login").Expect(1))
		b.AddExpectation(expectation.Partial("audit").Expect(1))
	})
	e := New(spec)

	arrive(t, e, "audit", "a")
	ok, report := e.AssertSatisfied()
	assert.False(t, ok)
	ep, _ := report.Endpoint("audit")
	assert.Equal(t, 0, ep.Consumed)
	assert.Contains(t, kinds(ep.Anomalies), diagnostics.KindOutOfOrder)
}

func TestEndpointOrderedArrivalTakesFirstMatchingSlot(t *testing.T) {
	spec := buildSpec(t, func(b *testspec.Builder) {
		b.AddExpectation(expectation.Declare("ledger", expectation.OrderingNone, true).
			AddMatcherGroup(bodyIs("a")).
			AddMatcherGroup(bodyIs("b")).
			AddResponderGroup(reply("got-a")).
			AddResponderGroup(reply("got-b")))
	})
	e := New(spec)

	assert.Equal(t, "got-b", arrive(t, e, "ledger", "b").BodyString())
	assert.Equal(t, 1, e.Pending())
	assert.Equal(t, "got-a", arrive(t, e, "ledger", "a").BodyString())

	ok, report := e.AssertSatisfied()
	assert.True(t, ok, report.String())
	assert.Zero(t, report.AnomalyCount())
}

func TestEndpointOrderedMismatchConsumesNothing(t *testing.T) {
	spec := buildSpec(t, func(b *testspec.Builder) {
		b.AddExpectation(expectation.Total("orders").
			AddMatcherGroup(bodyIs("x")).
			AddMatcherGroup(bodyIs("y")))
	})
	e := New(spec)

	arrive(t, e, "orders", "z")
	assert.Equal(t, 2, e.Pending())
	arrive(t, e, "orders", "x")
	arrive(t, e, "orders", "y")

	ok, report := e.AssertSatisfied()
	assert.False(t, ok)
	ep, _ := report.Endpoint("orders")
	assert.Equal(t, 2, ep.Consumed)
	assert.False(t, ep.Valid)
	assert.Equal(t, []diagnostics.Kind{diagnostics.KindMismatch}, kinds(ep.Anomalies))
	assert.Equal(t, -1, ep.Anomalies[0].Slot)
}

func TestEndpointOrderedTotalSlotsKeepTheirChain(t *testing.T) {
	spec := buildSpec(t, func(b *testspec.Builder) {
		b.AddExpectation(expectation.Total("orders").
			AddMatcherGroup(bodyIs("x")).
			AddMatcherGroup(bodyIs("y")))
	})
	e := New(spec)

	// y matches the second slot, which waits for the first
	arrive(t, e, "orders", "y")
	assert.Equal(t, 2, e.Pending())

	ok, report := e.AssertSatisfied()
	assert.False(t, ok)
	ep, _ := report.Endpoint("orders")
	assert.Equal(t, []diagnostics.Kind{diagnostics.KindOutOfOrder}, kinds(ep.Anomalies))
	assert.Contains(t, ep.Anomalies[0].Detail, "orders#1")
}

func TestUnorderedEndpointConsumesInArrivalOrder(t *testing.T) {
	spec := buildSpec(t, func(b *testspec.Builder) {
		b.AddExpectation(expectation.Unordered("events").
			AddMatcherGroup(bodyIs("x")).
			AddMatcherGroup(bodyIs("y")).
			AddResponderGroup(reply("got-x")).
			AddResponderGroup(reply("got-y")))
	})
	e := New(spec)

	assert.Equal(t, "got-x", arrive(t, e, "events", "x").BodyString())
	assert.Equal(t, "got-y", arrive(t, e, "events", "y").BodyString())

	ok, report := e.AssertSatisfied()
	assert.True(t, ok, report.String())
}

func TestUnorderedEndpointMismatchConsumesHead(t *testing.T) {
	spec := buildSpec(t, func(b *testspec.Builder) {
		b.AddExpectation(expectation.Unordered("events").
			AddMatcherGroup(bodyIs("x")).
			AddMatcherGroup(bodyIs("y")).
			AddResponderGroup(reply("got-x")).
			AddResponderGroup(reply("got-y")))
	})
	e := New(spec)

	assert.Empty(t, arrive(t, e, "events", "y").BodyString())
	assert.Equal(t, 1, e.Pending())
	assert.Equal(t, "got-y", arrive(t, e, "events", "y").BodyString())
	assert.Equal(t, 0, e.Pending())

	ok, report := e.AssertSatisfied()
	assert.False(t, ok)
	ep, _ := report.Endpoint("events")
	assert.Equal(t, 2, ep.Consumed)
	assert.False(t, ep.Valid)
	assert.Equal(t, []diagnostics.Kind{diagnostics.KindMismatch}, kinds(ep.Anomalies))
	assert.Equal(t, 0, ep.Anomalies[0].Slot)
}

func TestLenientMergeDoesNotBlockLaterEndpoints(t *testing.T) {
	spec := buildSpec(t, func(b *testspec.Builder) {
		b.AddExpectation(expectation.Total("catalog").Expect(1))
		b.AddExpectation(expectation.Total("catalog").SetLenientResponders(reply("listed")))
		b.AddExpectation(expectation.Total("checkout").AddMatcherGroup(bodyIs("go")).AddResponderGroup(reply("done")))
	})
	require.Equal(t, 2, spec.Forest().Len())
	e := New(spec)

	assert.Equal(t, "listed", arrive(t, e, "catalog", "list").BodyString())
	assert.Equal(t, "done", arrive(t, e, "checkout", "go").BodyString())

	ok, report := e.AssertSatisfied()
	assert.True(t, ok, report.String())
	ep, _ := report.Endpoint("checkout")
	assert.Empty(t, ep.Anomalies)
}

func TestArrivalLeavesCallerMessageUntouched(t *testing.T) {
	spec := buildSpec(t, func(b *testspec.Builder) {
		b.AddExpectation(expectation.Unordered("events").Expect(1))
	})
	e := New(spec)

	msg := message.New("x")
	resp, err := e.OnMessageArrived(context.Background(), "events", msg)
	require.NoError(t, err)

	assert.Empty(t, msg.ID)
	assert.Empty(t, msg.EndpointID)
	assert.True(t, msg.ReceivedAt.IsZero())
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "events", resp.EndpointID)
}

func TestMissingMessagesAreReported(t *testing.T) {
	spec := buildSpec(t, func(b *testspec.Builder) {
		b.AddExpectation(expectation.Total("a").Expect(2))
		b.AddExpectation(expectation.Total("b").Expect(1))
	})
	e := New(spec)
	arrive(t, e, "a", "1")

	ok, report := e.AssertSatisfied()
	assert.False(t, ok)
	a, _ := report.Endpoint("a")
	b, _ := report.Endpoint("b")
	assert.Equal(t, 1, a.Pending())
	assert.Equal(t, 1, b.Pending())
	assert.Equal(t, []diagnostics.Kind{diagnostics.KindMissingMessages}, kinds(a.Anomalies))
	assert.Equal(t, "unsatisfied: 2 of 2 endpoint(s) failing, 2 anomaly(ies)", report.Summary())
}

func TestConcurrentArrivals(t *testing.T) {
	const n = 100
	spec := buildSpec(t, func(b *testspec.Builder) {
		b.AddExpectation(expectation.Unordered("burst").Expect(n))
		b.AddExpectation(expectation.Unordered("other").Expect(n))
	})
	e := New(spec)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		for _, ep := range []string{"burst", "other"} {
			wg.Add(1)
			go func(ep string) {
				defer wg.Done()
				_, err := e.OnMessageArrived(context.Background(), ep, message.New("m"))
				assert.NoError(t, err)
			}(ep)
		}
	}
	wg.Wait()

	ok, report := e.AssertSatisfied()
	assert.True(t, ok, report.String())
	ep, _ := report.Endpoint("burst")
	assert.Equal(t, int64(n), ep.Received)
	assert.Equal(t, n, ep.Consumed)
	assert.Equal(t, 0, e.Tracker().Pending())
}

func TestExpectedFailure(t *testing.T) {
	planned := errors.New("payment declined")
	spec := buildSpec(t, func(b *testspec.Builder) {
		b.ExpectException()
		b.AddExpectation(expectation.Total("payments").Expect(1).AddFailureResponder(func() error { return planned }))
	})

	e := New(spec)
	resp, err := e.OnMessageArrived(context.Background(), "payments", message.New("pay"))
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.ErrorIs(t, err, planned)

	ok, report := e.AssertSatisfied()
	assert.False(t, ok)
	assert.Equal(t, []diagnostics.Kind{diagnostics.KindMissingFailure}, kinds(report.Failures))

	e.ObserveFailure(err)
	ok, _ = e.AssertSatisfied()
	assert.True(t, ok)
	assert.Equal(t, int64(1), e.FailuresObserved())
}

func TestBrokenResponderInvalidates(t *testing.T) {
	spec := buildSpec(t, func(b *testspec.Builder) {
		b.AddExpectation(expectation.Total("a").AddResponderGroup(
			message.ResponderFunc(func(*message.Message, *message.Message) error {
				return errors.New("template failed")
			})).Expect(1))
	})
	e := New(spec)

	_, err := e.OnMessageArrived(context.Background(), "a", message.New("x"))
	require.Error(t, err)

	ok, report := e.AssertSatisfied()
	assert.False(t, ok)
	ep, _ := report.Endpoint("a")
	assert.Equal(t, []diagnostics.Kind{diagnostics.KindResponderFailed}, kinds(ep.Anomalies))
}

func TestUnknownEndpoint(t *testing.T) {
	spec := buildSpec(t, func(b *testspec.Builder) {
		b.AddExpectation(expectation.Total("a").Expect(1))
	})
	e := New(spec)

	_, err := e.OnMessageArrived(context.Background(), "ghost", message.New("boo"))
	assert.ErrorIs(t, err, ErrUnknownEndpoint)
	assert.False(t, e.Handles("ghost"))

	arrive(t, e, "a", "x")
	ok, report := e.AssertSatisfied()
	assert.True(t, ok)
	assert.Equal(t, []diagnostics.Kind{diagnostics.KindUnknownEndpoint}, kinds(report.Failures))
}

func TestRejectReply(t *testing.T) {
	spec := buildSpec(t, func(b *testspec.Builder) {})
	e := New(spec)

	ok, _ := e.AssertSatisfied()
	require.True(t, ok)

	e.RejectReply(0, errors.New("status 500"))
	ok, report := e.AssertSatisfied()
	assert.False(t, ok)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "target", report.Failures[0].EndpointID)
}

func TestObserverAndClock(t *testing.T) {
	spec := buildSpec(t, func(b *testspec.Builder) {
		b.AddExpectation(expectation.Total("a").Expect(1))
	})

	fixed := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	var outcomes []Outcome
	e := New(spec,
		WithClock(clock.NewMock(fixed)),
		WithRunID("run-1"),
		WithObserver(ObserverFunc(func(_ string, o Outcome, _ int) { outcomes = append(outcomes, o) })),
	)

	msg := message.New("x")
	_, err := e.OnMessageArrived(context.Background(), "a", msg)
	require.NoError(t, err)
	arrive(t, e, "a", "y")

	assert.Equal(t, fixed, msg.ReceivedAt)
	assert.Equal(t, "a", msg.EndpointID)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, []Outcome{OutcomeConsumed, OutcomeUnexpected}, outcomes)

	_, report := e.AssertSatisfied()
	assert.Equal(t, "run-1", report.RunID)
}

func TestCanceledContext(t *testing.T) {
	spec := buildSpec(t, func(b *testspec.Builder) {
		b.AddExpectation(expectation.Total("a").Expect(1))
	})
	e := New(spec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.OnMessageArrived(ctx, "a", message.New("x"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, e.Pending())
}

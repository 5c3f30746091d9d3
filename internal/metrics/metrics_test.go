package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"choreo/internal/engine"
	"choreo/internal/expectation"
	"choreo/internal/message"
	"choreo/internal/testspec"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveArrival(t *testing.T) {
	c := NewCollector("")

	c.ObserveArrival("inventory", engine.OutcomeConsumed, 1)
	c.ObserveArrival("inventory", engine.OutcomeConsumed, 0)
	c.ObserveArrival("inventory", engine.OutcomeUnexpected, 0)
	c.ObserveArrival("ghost", engine.OutcomeUnknownEndpoint, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.arrivals.WithLabelValues("inventory", "consumed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.arrivals.WithLabelValues("inventory", "unexpected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.arrivals.WithLabelValues("ghost", "unknown_endpoint")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.pending.WithLabelValues("inventory")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.pending), "unknown endpoints get no pending gauge")
}

func TestCollectorAsEngineObserver(t *testing.T) {
	c := NewCollector("test")

	spec, err := testspec.New("metrics", "target").
		AddRequest(testspec.StaticRequest(message.New("go"))).
		AddExpectation(expectation.Total("inventory").Expect(2)).
		Build()
	require.NoError(t, err)

	e := engine.New(spec, engine.WithObserver(c))
	c.SetPending("inventory", e.Pending())
	assert.Equal(t, 2.0, testutil.ToFloat64(c.pending.WithLabelValues("inventory")))

	_, err = e.OnMessageArrived(context.Background(), "inventory", message.New("a"))
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.pending.WithLabelValues("inventory")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.arrivals.WithLabelValues("inventory", "consumed")))
}

func TestRecordResultsAndHandler(t *testing.T) {
	c := NewCollector("")
	c.RecordPart(true, 120*time.Millisecond)
	c.RecordPart(false, time.Second)
	c.RecordScenario("PASSED")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.parts.WithLabelValues("satisfied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.parts.WithLabelValues("unsatisfied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.scenarios.WithLabelValues("PASSED")))

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()
	res, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `choreo_parts_total{result="satisfied"} 1`)
	assert.Contains(t, string(body), "choreo_part_duration_seconds_bucket")
}

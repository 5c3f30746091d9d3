package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"choreo/internal/expectation"
	"choreo/internal/message"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoHandler replies with the upper-cased body, or fails when the body is
// "fail" (planned) or "boom" (unplanned).
func echoHandler(seen *[]string) Handler {
	return HandlerFunc(func(_ context.Context, endpointID string, msg *message.Message) (*message.Message, error) {
		msg.EndpointID = endpointID
		if seen != nil {
			*seen = append(*seen, endpointID+":"+msg.BodyString())
		}
		switch msg.BodyString() {
		case "fail":
			return nil, &expectation.ReplyFailure{Err: errors.New("declined")}
		case "boom":
			return nil, errors.New("responder broke")
		}
		resp := message.NewResponse(msg)
		resp.Body = []byte(strings.ToUpper(msg.BodyString()))
		if v, ok := msg.Header("X-Trace"); ok {
			resp.SetHeader("X-Trace", v)
		}
		resp.Status = http.StatusAccepted
		return resp, nil
	})
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.Send(ctx, "inventory", message.New("x"))
	require.ErrorIs(t, err, ErrNoRoute)

	var seen []string
	detach, err := m.Attach("inventory", expectation.FeederConfig{}, echoHandler(&seen))
	require.NoError(t, err)

	_, err = m.Attach("inventory", expectation.FeederConfig{}, echoHandler(nil))
	assert.Error(t, err)

	sent := message.New("ping")
	resp, err := m.Send(ctx, "inventory", sent)
	require.NoError(t, err)
	assert.Equal(t, "PING", resp.BodyString())
	assert.Empty(t, sent.EndpointID, "the sender's message is not shared with the handler")
	assert.Equal(t, []string{"inventory:ping"}, seen)

	detach()
	assert.Equal(t, 0, m.Endpoints())
	_, err = m.Send(ctx, "inventory", message.New("x"))
	assert.ErrorIs(t, err, ErrNoRoute)
}

func TestRegistry(t *testing.T) {
	mem := NewMemory()
	httpFeeder := NewHTTPFeeder()
	r := NewRegistry(mem, httpFeeder)

	assert.Equal(t, []string{KindHTTP, KindMemory}, r.Kinds())

	f, cfg, err := r.Feeder(nil)
	require.NoError(t, err)
	assert.Equal(t, KindMemory, f.Kind())
	assert.Equal(t, KindMemory, cfg.Kind)

	require.NoError(t, r.SetDefault(KindHTTP))
	f, _, err = r.Feeder(&expectation.FeederConfig{})
	require.NoError(t, err)
	assert.Equal(t, KindHTTP, f.Kind())

	_, _, err = r.Feeder(&expectation.FeederConfig{Kind: "carrier-pigeon"})
	assert.Error(t, err)
	assert.Error(t, r.SetDefault("carrier-pigeon"))
}

func TestRegistryAttachAll(t *testing.T) {
	mem := NewMemory()
	r := NewRegistry(mem)

	build := func(id string, feeder *expectation.FeederConfig) *expectation.Definition {
		eb := expectation.Total(id).Expect(1)
		if feeder != nil {
			eb.SetFeederConfig(*feeder)
		}
		def, err := eb.Build(nil, nil)
		require.NoError(t, err)
		return def
	}

	detach, err := r.AttachAll([]*expectation.Definition{build("a", nil), build("b", nil)}, echoHandler(nil))
	require.NoError(t, err)
	assert.Equal(t, 2, mem.Endpoints())
	detach()
	assert.Equal(t, 0, mem.Endpoints())

	_, err = r.AttachAll([]*expectation.Definition{
		build("a", nil),
		build("b", &expectation.FeederConfig{Kind: "smoke-signal"}),
	}, echoHandler(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint b")
	assert.Equal(t, 0, mem.Endpoints(), "partial attachments are rolled back")
}

func TestHTTPFeederAndSender(t *testing.T) {
	feeder := NewHTTPFeeder()
	srv := httptest.NewServer(feeder)
	defer srv.Close()

	_, err := feeder.Attach("inventory", expectation.FeederConfig{}, echoHandler(nil))
	require.NoError(t, err)
	_, err = feeder.Attach("payments", expectation.FeederConfig{
		Address: "api/pay",
		Options: map[string]string{"failure_status": "402"},
	}, echoHandler(nil))
	require.NoError(t, err)

	_, err = feeder.Attach("other", expectation.FeederConfig{Address: "/inventory"}, echoHandler(nil))
	assert.Error(t, err, "path already taken")
	_, err = feeder.Attach("bad", expectation.FeederConfig{Options: map[string]string{"failure_status": "200"}}, echoHandler(nil))
	assert.Error(t, err)

	sender := NewHTTPSender(srv.Client(), map[string]string{
		"inventory": srv.URL + "/inventory",
		"payments":  srv.URL + "/api/pay",
	})
	ctx := context.Background()

	req := message.New("ping")
	req.SetHeader("X-Trace", "t-1")
	resp, err := sender.Send(ctx, "inventory", req)
	require.NoError(t, err)
	assert.Equal(t, "PING", resp.BodyString())
	assert.Equal(t, http.StatusAccepted, resp.Status)
	trace, _ := resp.Header("X-Trace")
	assert.Equal(t, "t-1", trace)

	_, err = sender.Send(ctx, "payments", message.New("fail"))
	var failure *FailureError
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, http.StatusPaymentRequired, failure.Status)
	assert.Equal(t, "declined", failure.Reason)

	_, err = sender.Send(ctx, "inventory", message.New("boom"))
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, http.StatusInternalServerError, failure.Status)

	_, err = sender.Send(ctx, "nowhere", message.New("x"))
	assert.ErrorIs(t, err, ErrNoRoute)

	res, err := http.Post(srv.URL+"/unknown", "text/plain", strings.NewReader("x"))
	require.NoError(t, err)
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode, string(body))
}

func TestHTTPFeederStartStop(t *testing.T) {
	feeder := NewHTTPFeeder()
	port, err := feeder.Start("127.0.0.1:0")
	require.NoError(t, err)
	assert.NotZero(t, port)
	assert.Equal(t, port, feeder.Port())

	again, err := feeder.Start("127.0.0.1:0")
	require.NoError(t, err)
	assert.Equal(t, port, again)

	require.NoError(t, feeder.Stop(context.Background()))
	require.NoError(t, feeder.Stop(context.Background()))
	assert.NoError(t, feeder.Err())
}

func TestMCPFeederAndSender(t *testing.T) {
	feeder := NewMCPFeeder("choreo-test", "1.0.0")
	srv := httptest.NewServer(feeder)
	defer srv.Close()

	var seen []string
	detach, err := feeder.Attach("inventory", expectation.FeederConfig{Address: "reserve_stock"}, echoHandler(&seen))
	require.NoError(t, err)
	_, err = feeder.Attach("other", expectation.FeederConfig{Address: "reserve_stock"}, echoHandler(nil))
	assert.Error(t, err)

	sender := NewMCPSender(srv.URL+"/mcp", 0)
	defer sender.Close()
	ctx := context.Background()

	req := message.New("ping")
	req.SetHeader("X-Trace", "t-9")
	resp, err := sender.Send(ctx, "reserve_stock", req)
	require.NoError(t, err)
	assert.Equal(t, "PING", resp.BodyString())
	assert.Equal(t, []string{"inventory:ping"}, seen)

	_, err = sender.Send(ctx, "reserve_stock", message.New("fail"))
	var failure *FailureError
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "declined", failure.Reason)

	detach()
	_, err = feeder.Attach("other", expectation.FeederConfig{Address: "reserve_stock"}, echoHandler(nil))
	assert.NoError(t, err, "the tool name is free again after detach")
}

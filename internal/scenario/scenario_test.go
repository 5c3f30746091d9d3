package scenario

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"choreo/internal/engine"
	"choreo/internal/expectation"
	"choreo/internal/message"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadSuite(t *testing.T) []Scenario {
	t.Helper()
	scenarios, err := NewLoader(nil).Load(filepath.Join("testdata", "suite"))
	require.NoError(t, err)
	require.Len(t, scenarios, 2)
	return scenarios
}

func byName(t *testing.T, scenarios []Scenario, name string) Scenario {
	t.Helper()
	for _, s := range scenarios {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("scenario %s not loaded", name)
	return Scenario{}
}

type recordingLogger struct{ lines []string }

func (l *recordingLogger) Debug(format string, args ...interface{}) {
	l.lines = append(l.lines, format)
}

func TestLoadDirectory(t *testing.T) {
	logger := &recordingLogger{}
	scenarios, err := NewLoader(logger).Load(filepath.Join("testdata", "suite"))
	require.NoError(t, err)
	require.Len(t, scenarios, 2)

	checkout := byName(t, scenarios, "checkout-happy-path")
	assert.Equal(t, "checkout", checkout.Category)
	assert.Equal(t, []string{"smoke", "payments"}, checkout.Tags)
	assert.Equal(t, filepath.Join("testdata", "suite", "checkout.yaml"), checkout.Source)
	assert.Equal(t, 1, checkout.PartCount())
	assert.Equal(t, "EUR", checkout.Variables["currency"])
	require.Len(t, checkout.Expectations, 3)
	assert.NotNil(t, checkout.Expectations[2].Lenient)

	refund := byName(t, scenarios, "refund-declined")
	assert.Equal(t, 2, refund.PartCount())
	require.NotNil(t, refund.Next)
	assert.Equal(t, "refunds", refund.Next.Target)
	require.NotNil(t, refund.Next.Expectations[0].Timing)
	assert.Equal(t, 2*time.Second, *refund.Next.Expectations[0].Timing.MinimalWait)
	assert.Equal(t, 250*time.Millisecond, *refund.Next.Expectations[0].Timing.PerMessageWait)

	assert.NotEmpty(t, logger.lines)
	assert.Equal(t, []string{"checkout", "refunds"}, Categories(scenarios))
}

func TestLoadErrors(t *testing.T) {
	_, err := NewLoader(nil).Load(filepath.Join("testdata", "nope"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")

	_, err = NewLoader(nil).Load(filepath.Join("testdata", "broken"))
	require.Error(t, err)
	assert.True(t, IsLoadError(err))
	assert.Contains(t, err.Error(), "target is required")

	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, filepath.Join("testdata", "broken", "missing-target.yaml"), le.Path)

	dir := t.TempDir()
	doc := []byte("name: twin\ncategory: c\ntarget: t\nrequests:\n  - body: x\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), doc, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), doc, 0o644))
	_, err = NewLoader(nil).Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"twin" already used`)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("name: [unterminated"), 0o644))
	_, err = NewLoader(nil).LoadFile(filepath.Join(dir, "a.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestFilterScenarios(t *testing.T) {
	scenarios := loadSuite(t)

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{name: "no filter", filter: Filter{}, want: []string{"checkout-happy-path", "refund-declined"}},
		{name: "category", filter: Filter{Category: "refunds"}, want: []string{"refund-declined"}},
		{name: "tag shared by both", filter: Filter{Tag: "payments"}, want: []string{"checkout-happy-path", "refund-declined"}},
		{name: "tag on one", filter: Filter{Tag: "smoke"}, want: []string{"checkout-happy-path"}},
		{name: "name", filter: Filter{Name: "refund-declined"}, want: []string{"refund-declined"}},
		{name: "no match", filter: Filter{Category: "checkout", Tag: "missing"}, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, s := range FilterScenarios(scenarios, tt.filter) {
				got = append(got, s.Name)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() Scenario {
		return Scenario{
			Name:     "s",
			Category: "c",
			Part: Part{
				Target:   "t",
				Requests: []RequestConfig{{Body: "x"}},
			},
		}
	}
	negative := -time.Second

	tests := []struct {
		name    string
		mutate  func(s *Scenario)
		wantErr string
	}{
		{name: "valid", mutate: func(*Scenario) {}},
		{name: "missing name", mutate: func(s *Scenario) { s.Name = "" }, wantErr: "name is required"},
		{name: "missing category", mutate: func(s *Scenario) { s.Category = "" }, wantErr: "category is required"},
		{name: "nothing to send or check", mutate: func(s *Scenario) { s.Requests = nil }, wantErr: "at least one request"},
		{name: "body and json", mutate: func(s *Scenario) { s.Requests[0].JSON = map[string]interface{}{"a": 1} }, wantErr: "mutually exclusive"},
		{
			name: "unknown ordering",
			mutate: func(s *Scenario) {
				s.Expectations = []ExpectationConfig{{Endpoint: "e", Ordering: "sideways"}}
			},
			wantErr: "unknown ordering type",
		},
		{
			name: "two matcher kinds",
			mutate: func(s *Scenario) {
				s.Expectations = []ExpectationConfig{{Endpoint: "e", Messages: []MessageConfig{{
					Match: []MatcherConfig{{JQ: ".a", BodyContains: "a"}},
				}}}}
			},
			wantErr: "exactly one kind",
		},
		{
			name: "fail with other responders",
			mutate: func(s *Scenario) {
				s.Expectations = []ExpectationConfig{{Endpoint: "e", Messages: []MessageConfig{{
					Respond: []ResponderConfig{{Fail: "no"}, {Body: "x"}},
				}}}}
			},
			wantErr: "cannot be combined",
		},
		{
			name: "empty responder",
			mutate: func(s *Scenario) {
				s.Expectations = []ExpectationConfig{{Endpoint: "e", Messages: []MessageConfig{{
					Respond: []ResponderConfig{{}},
				}}}}
			},
			wantErr: "responder is empty",
		},
		{
			name: "negative timing",
			mutate: func(s *Scenario) {
				s.Expectations = []ExpectationConfig{{Endpoint: "e", Timing: &TimingConfig{MinimalWait: &negative}}}
			},
			wantErr: "cannot be negative",
		},
		{
			name:    "chained part without target",
			mutate:  func(s *Scenario) { s.Next = &Part{Requests: []RequestConfig{{Body: "y"}}} },
			wantErr: "part 2: target is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(&s)
			err := Validate(s)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCompileCheckout(t *testing.T) {
	s := byName(t, loadSuite(t), "checkout-happy-path")
	spec, err := NewCompiler().Compile(s)
	require.NoError(t, err)

	assert.Equal(t, "Checkout reserves stock before charging the card", spec.Description())
	assert.Equal(t, "checkout", spec.TargetEndpointID())
	assert.Equal(t, []string{"inventory", "payments", "audit"}, spec.EndpointIDs())

	audit, ok := spec.Expectation("audit")
	require.True(t, ok)
	assert.True(t, audit.IsLenient())
	assert.Equal(t, expectation.OrderingNone, audit.OrderingType())
	assert.False(t, audit.EndpointOrdered())

	require.Len(t, spec.Requests(), 1)
	ctx := context.Background()
	first, err := spec.Requests()[0].Generate(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"order":"A-0","currency":"EUR"}`, first.BodyString())
	ct, _ := first.Header("Content-Type")
	assert.Equal(t, "application/json", ct)
	tenant, _ := first.Header("X-Tenant")
	assert.Equal(t, "acme", tenant)

	second, err := spec.Requests()[0].Generate(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"order":"A-1","currency":"EUR"}`, second.BodyString())

	e := engine.New(spec)
	resp, err := e.OnMessageArrived(ctx, "inventory", first)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.JSONEq(t, `{"reserved": true, "order": "A-0"}`, resp.BodyString())

	charge := message.New(`{"order":"A-0","currency":"EUR"}`)
	resp, err = e.OnMessageArrived(ctx, "payments", charge)
	require.NoError(t, err)
	assert.JSONEq(t, `{"charged": true}`, resp.BodyString())

	resp, err = e.OnMessageArrived(ctx, "audit", message.New("anything"))
	require.NoError(t, err)
	assert.Equal(t, 204, resp.Status)

	satisfied, report := e.AssertSatisfied()
	assert.True(t, satisfied, report.String())

	reply := message.New(`{"state":"accepted"}`)
	reply.Status = 200
	assert.NoError(t, spec.ReplyMatcher(0).Validate(reply, nil))
	reply.Status = 500
	assert.Error(t, spec.ReplyMatcher(0).Validate(reply, nil))
}

func TestCompileChainedParts(t *testing.T) {
	s := byName(t, loadSuite(t), "refund-declined")
	spec, err := NewCompiler().Compile(s)
	require.NoError(t, err)

	require.Equal(t, 2, spec.PartCount())
	assert.True(t, spec.ExpectsException())

	e := engine.New(spec)
	_, err = e.OnMessageArrived(context.Background(), "payments", message.New("refund A-1"))
	var failure *expectation.ReplyFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "card issuer declined the refund", failure.Error())

	next := spec.NextPart()
	require.NotNil(t, next)
	ledger, ok := next.Expectation("ledger")
	require.True(t, ok)
	assert.Equal(t, 2, ledger.ExpectedMessageCount())
	assert.Equal(t, expectation.OrderingPartial, ledger.OrderingType())
	assert.Equal(t, 2500*time.Millisecond, ledger.ResultWaitTime())

	ne := engine.New(next)
	resp, err := ne.OnMessageArrived(context.Background(), "ledger", message.New("entry 1"))
	require.NoError(t, err)
	assert.Equal(t, "entry 1", resp.BodyString())

	assert.NoError(t, next.ReplyMatcher(0).Validate(message.New("declined\n"), nil))
}

func TestCompileDefaults(t *testing.T) {
	s := byName(t, loadSuite(t), "refund-declined")
	spec, err := NewCompiler(WithDefaults(Defaults{
		MinimalWait:    3 * time.Second,
		PerMessageWait: time.Second,
		Feeder:         &expectation.FeederConfig{Kind: "http"},
	})).Compile(s)
	require.NoError(t, err)

	payments, ok := spec.Expectation("payments")
	require.True(t, ok)
	assert.Equal(t, 3*time.Second, payments.MinimalWaitTime())
	assert.Equal(t, time.Second, payments.PerMessageWaitTime())
	require.NotNil(t, payments.FeederConfig())
	assert.Equal(t, "http", payments.FeederConfig().Kind)

	ledger, ok := spec.NextPart().Expectation("ledger")
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, ledger.MinimalWaitTime())
	assert.Equal(t, 250*time.Millisecond, ledger.PerMessageWaitTime())
}

func TestCompileErrors(t *testing.T) {
	base := func(e ExpectationConfig) Scenario {
		return Scenario{
			Name:     "s",
			Category: "c",
			Part: Part{
				Target:       "t",
				Requests:     []RequestConfig{{Body: "x"}},
				Expectations: []ExpectationConfig{e},
			},
		}
	}

	tests := []struct {
		name    string
		s       Scenario
		wantErr string
	}{
		{
			name: "broken jq",
			s: base(ExpectationConfig{Endpoint: "e", Messages: []MessageConfig{{
				Match: []MatcherConfig{{JQ: ".["}},
			}}}),
			wantErr: "invalid jq query",
		},
		{
			name: "template references unknown variable",
			s: base(ExpectationConfig{Endpoint: "e", Messages: []MessageConfig{{
				Respond: []ResponderConfig{{Body: "{{ .nowhere }}"}},
			}}}),
			wantErr: "missing required variables: nowhere",
		},
		{
			name: "request references unknown variable",
			s: Scenario{Name: "s", Category: "c", Part: Part{
				Target:   "t",
				Requests: []RequestConfig{{Body: "{{ .ghost }}"}},
			}},
			wantErr: "missing required variables: ghost",
		},
		{
			name: "missing schema file",
			s: base(ExpectationConfig{Endpoint: "e", Messages: []MessageConfig{{
				Match: []MatcherConfig{{SchemaFile: "does-not-exist.json"}},
			}}}),
			wantErr: "open schema file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCompiler().Compile(tt.s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

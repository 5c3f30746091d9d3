package scenario

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"choreo/internal/expectation"
	"choreo/internal/matchers"
	"choreo/internal/message"
	"choreo/internal/responders"
	"choreo/internal/template"
	"choreo/internal/testspec"
)

// Defaults fill in what a scenario leaves unset. Zero values leave the
// built-in defaults in place.
type Defaults struct {
	MinimalWait    time.Duration
	PerMessageWait time.Duration
	Reassertion    time.Duration
	Feeder         *expectation.FeederConfig
}

// Compiler turns loaded scenarios into test specifications.
type Compiler struct {
	engine   *template.Engine
	defaults Defaults
}

// CompilerOption configures a Compiler.
type CompilerOption func(*Compiler)

// WithDefaults sets the values applied to endpoints whose declarations do
// not set them.
func WithDefaults(d Defaults) CompilerOption {
	return func(c *Compiler) { c.defaults = d }
}

// WithTemplateEngine shares a template engine (and its cache).
func WithTemplateEngine(e *template.Engine) CompilerOption {
	return func(c *Compiler) { c.engine = e }
}

// NewCompiler creates a compiler.
func NewCompiler(opts ...CompilerOption) *Compiler {
	c := &Compiler{}
	for _, opt := range opts {
		opt(c)
	}
	if c.engine == nil {
		c.engine = template.New()
	}
	return c
}

// Compile builds the specification chain for s. Matchers, schemas and
// templates are compiled here so that broken scenarios fail before anything
// is sent.
func (c *Compiler) Compile(s Scenario) (*testspec.TestSpecification, error) {
	if err := Validate(s); err != nil {
		return nil, err
	}
	description := s.Description
	if description == "" {
		description = s.Name
	}

	cc := compileContext{
		Compiler: c,
		vars:     s.Variables,
		baseDir:  ".",
	}
	if s.Source != "" {
		cc.baseDir = filepath.Dir(s.Source)
	}

	root := testspec.New(description, s.Target)
	if err := cc.part(root, &s.Part); err != nil {
		return nil, fmt.Errorf("part 1: %w", err)
	}
	i := 1
	for p := s.Next; p != nil; p = p.Next {
		i++
		if err := cc.part(root.AddChainedPart(p.Target), p); err != nil {
			return nil, fmt.Errorf("part %d: %w", i, err)
		}
	}
	return root.Build()
}

type compileContext struct {
	*Compiler
	vars    map[string]interface{}
	baseDir string
}

func (cc compileContext) part(b *testspec.Builder, p *Part) error {
	for i, r := range p.Requests {
		gen, err := cc.request(r)
		if err != nil {
			return fmt.Errorf("request %d: %w", i+1, err)
		}
		repeat := r.Repeat
		if repeat == 0 {
			repeat = 1
		}
		for n := 0; n < repeat; n++ {
			b.AddRequest(gen)
		}
	}

	for i, r := range p.ExpectedResponses {
		rm, err := cc.reply(r)
		if err != nil {
			return fmt.Errorf("expected response %d: %w", i+1, err)
		}
		b.AddExpectedResponse(rm)
	}

	if p.ExpectException {
		b.ExpectException()
	}
	b.SetSendInterval(p.SendInterval)
	b.SetExecuteDelay(p.ExecuteDelay)

	builders := make([]*expectation.Builder, 0, len(p.Expectations))
	for i, e := range p.Expectations {
		eb, err := cc.expectation(e)
		if err != nil {
			return fmt.Errorf("expectation %d (%s): %w", i+1, e.Endpoint, err)
		}
		builders = append(builders, eb)
	}
	cc.applyDefaults(p.Expectations, builders)
	for _, eb := range builders {
		b.AddExpectation(eb)
	}
	return nil
}

// applyDefaults sets each configured default on the first declaration of an
// endpoint, and only when no declaration of that endpoint in the part sets
// the value itself. Merging keeps the first explicit value.
func (cc compileContext) applyDefaults(cfgs []ExpectationConfig, builders []*expectation.Builder) {
	type explicit struct {
		first                         int
		minimal, perMessage, reassert bool
		feeder                        bool
	}
	seen := make(map[string]*explicit)
	var order []string
	for i, e := range cfgs {
		x, ok := seen[e.Endpoint]
		if !ok {
			x = &explicit{first: i}
			seen[e.Endpoint] = x
			order = append(order, e.Endpoint)
		}
		if t := e.Timing; t != nil {
			x.minimal = x.minimal || t.MinimalWait != nil
			x.perMessage = x.perMessage || t.PerMessageWait != nil
			x.reassert = x.reassert || t.Reassertion != nil
		}
		x.feeder = x.feeder || e.Feeder != nil
	}

	d := cc.defaults
	for _, id := range order {
		x := seen[id]
		eb := builders[x.first]
		if !x.minimal && d.MinimalWait > 0 {
			eb.SetMinimalWaitTime(d.MinimalWait)
		}
		if !x.perMessage && d.PerMessageWait > 0 {
			eb.SetPerMessageWaitTime(d.PerMessageWait)
		}
		if !x.reassert && d.Reassertion > 0 {
			eb.SetReassertionPeriod(d.Reassertion)
		}
		if !x.feeder && d.Feeder != nil {
			eb.SetFeederConfig(*d.Feeder)
		}
	}
}

func (cc compileContext) expectation(e ExpectationConfig) (*expectation.Builder, error) {
	ordering, err := expectation.ParseOrderingType(e.Ordering)
	if err != nil {
		return nil, err
	}
	endpointOrdered := ordering != expectation.OrderingNone
	if e.EndpointOrdered != nil {
		endpointOrdered = *e.EndpointOrdered
	}

	eb := expectation.Declare(e.Endpoint, ordering, endpointOrdered)
	if e.Count > 0 {
		eb.Expect(e.Count)
	}

	for i, m := range e.Messages {
		group, err := cc.matchers(m.Match)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i+1, err)
		}
		eb.AddMatcherGroup(group...)

		if len(m.Respond) == 1 && m.Respond[0].Fail != "" {
			eb.AddFailureResponder(responders.Failure(m.Respond[0].Fail))
			continue
		}
		rs, err := cc.responders(m.Respond)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i+1, err)
		}
		eb.AddResponderGroup(rs...)
	}

	if e.Repeated != nil {
		group, err := cc.matchers(e.Repeated.Match)
		if err != nil {
			return nil, fmt.Errorf("repeated: %w", err)
		}
		for _, m := range group {
			eb.AddRepeatedMatcher(m)
		}
		rs, err := cc.responders(e.Repeated.Respond)
		if err != nil {
			return nil, fmt.Errorf("repeated: %w", err)
		}
		for _, r := range rs {
			eb.AddRepeatedResponder(r)
		}
	}

	if l := e.Lenient; l != nil {
		selector, err := cc.matchers(l.Select)
		if err != nil {
			return nil, fmt.Errorf("lenient: %w", err)
		}
		var sel message.Matcher
		if len(selector) > 0 {
			sel = allOf(selector)
		}
		eb.SetLenient(sel)

		cycle := make([]message.Responder, 0, len(l.Respond))
		for i, rc := range l.Respond {
			rs, err := cc.responder(rc)
			if err != nil {
				return nil, fmt.Errorf("lenient responder %d: %w", i+1, err)
			}
			cycle = append(cycle, allResponders(rs))
		}
		eb.SetLenientResponders(cycle...)
	}

	if t := e.Timing; t != nil {
		if t.MinimalWait != nil {
			eb.SetMinimalWaitTime(*t.MinimalWait)
		}
		if t.PerMessageWait != nil {
			eb.SetPerMessageWaitTime(*t.PerMessageWait)
		}
		if t.Reassertion != nil {
			eb.SetReassertionPeriod(*t.Reassertion)
		}
	}
	if e.Feeder != nil {
		eb.SetFeederConfig(*e.Feeder)
	}
	return eb, nil
}

func (cc compileContext) matchers(cfgs []MatcherConfig) ([]message.Matcher, error) {
	out := make([]message.Matcher, 0, len(cfgs))
	for i, cfg := range cfgs {
		m, err := cc.matcher(cfg)
		if err != nil {
			return nil, fmt.Errorf("matcher %d: %w", i+1, err)
		}
		out = append(out, m)
	}
	return out, nil
}

func (cc compileContext) matcher(cfg MatcherConfig) (message.Matcher, error) {
	switch {
	case cfg.JQ != "":
		return matchers.JQ(cfg.JQ)
	case cfg.Expr != "":
		return matchers.Expr(cfg.Expr)
	case cfg.Schema != "":
		return matchers.Schema(cfg.Schema)
	case cfg.SchemaFile != "":
		path := cfg.SchemaFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(cc.baseDir, path)
		}
		return matchers.SchemaFile(path)
	case cfg.BodyContains != "":
		return matchers.BodyContains(cfg.BodyContains), nil
	case cfg.BodyEquals != "":
		return matchers.BodyEquals(cfg.BodyEquals), nil
	case cfg.BodyMatches != "":
		return matchers.BodyMatches(cfg.BodyMatches)
	case cfg.JSONEquals != "":
		return matchers.JSONEquals(cfg.JSONEquals)
	case cfg.Header != nil:
		return matchers.Header(cfg.Header.Name, cfg.Header.Value), nil
	default:
		return nil, fmt.Errorf("matcher sets no kind")
	}
}

func (cc compileContext) responders(cfgs []ResponderConfig) ([]message.Responder, error) {
	var out []message.Responder
	for i, cfg := range cfgs {
		rs, err := cc.responder(cfg)
		if err != nil {
			return nil, fmt.Errorf("responder %d: %w", i+1, err)
		}
		out = append(out, rs...)
	}
	return out, nil
}

// responder expands one config entry into the responders it implies, body
// first so that status and headers are applied on top.
func (cc compileContext) responder(cfg ResponderConfig) ([]message.Responder, error) {
	if cfg.Echo {
		return []message.Responder{responders.Echo()}, nil
	}
	if cfg.Fail != "" {
		return nil, fmt.Errorf("fail must be the only responder of a message")
	}

	var out []message.Responder
	templateData := template.MergeContexts(cc.vars, map[string]interface{}{"request": nil})
	if cfg.Body != "" {
		if template.IsTemplate(cfg.Body) {
			if err := cc.engine.ValidateContext(cfg.Body, templateData); err != nil {
				return nil, fmt.Errorf("body: %w", err)
			}
			r, err := responders.Template(cc.engine, cfg.Body, cc.vars)
			if err != nil {
				return nil, err
			}
			out = append(out, r)
		} else {
			out = append(out, responders.Static(cfg.Body))
		}
	}
	if cfg.Status != 0 {
		out = append(out, responders.Status(cfg.Status))
	}
	for name, value := range cfg.Headers {
		if !template.IsTemplate(value) {
			out = append(out, responders.Header(name, value))
			continue
		}
		if err := cc.engine.ValidateContext(value, templateData); err != nil {
			return nil, fmt.Errorf("header %s: %w", name, err)
		}
		r, err := responders.HeaderTemplate(cc.engine, name, value, cc.vars)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (cc compileContext) request(r RequestConfig) (testspec.RequestGenerator, error) {
	probe := template.MergeContexts(cc.vars, map[string]interface{}{"index": 0})
	if err := cc.engine.ValidateContext(r.Body, probe); err != nil {
		return nil, fmt.Errorf("body: %w", err)
	}
	if err := cc.engine.ValidateContext(r.JSON, probe); err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}
	if err := cc.engine.ValidateContext(r.Headers, probe); err != nil {
		return nil, fmt.Errorf("headers: %w", err)
	}
	if template.IsTemplate(r.Body) {
		if err := cc.engine.Compile(r.Body); err != nil {
			return nil, fmt.Errorf("body: %w", err)
		}
	}

	engine, vars := cc.engine, cc.vars
	var sent atomic.Int64
	return testspec.RequestFunc(func(ctx context.Context) (*message.Message, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		index := sent.Add(1) - 1
		data := template.MergeContexts(vars, map[string]interface{}{"index": index})

		var body string
		if r.JSON != nil {
			rendered, err := engine.Replace(r.JSON, data)
			if err != nil {
				return nil, fmt.Errorf("render json: %w", err)
			}
			raw, err := json.Marshal(rendered)
			if err != nil {
				return nil, fmt.Errorf("encode json: %w", err)
			}
			body = string(raw)
		} else {
			rendered, err := engine.Render(r.Body, data)
			if err != nil {
				return nil, err
			}
			body = rendered
		}

		msg := message.New(body)
		if r.JSON != nil {
			msg.SetHeader("Content-Type", "application/json")
		}
		for name, value := range r.Headers {
			rendered, err := engine.Render(value, data)
			if err != nil {
				return nil, fmt.Errorf("header %s: %w", name, err)
			}
			msg.SetHeader(name, rendered)
		}
		return msg, nil
	}), nil
}

func (cc compileContext) reply(r ReplyConfig) (testspec.ReplyMatcher, error) {
	if r.Failure {
		return testspec.FailureCaptured(), nil
	}
	ms, err := cc.matchers(r.Match)
	if err != nil {
		return nil, err
	}
	if r.Status != 0 {
		ms = append(ms, statusIs(r.Status))
	}
	return testspec.Reply(ms...), nil
}

func statusIs(code int) message.Matcher {
	return message.MatcherFunc(func(msg *message.Message) error {
		if msg.Status != code {
			return fmt.Errorf("status %d, want %d", msg.Status, code)
		}
		return nil
	})
}

func allOf(ms []message.Matcher) message.Matcher {
	return message.MatcherFunc(func(msg *message.Message) error {
		return message.MatchAll(ms, msg)
	})
}

func allResponders(rs []message.Responder) message.Responder {
	return message.ResponderFunc(func(req, resp *message.Message) error {
		return message.RespondAll(rs, req, resp)
	})
}

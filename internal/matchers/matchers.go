// Package matchers provides library-backed message matchers: jq queries and
// expr expressions over JSON bodies, JSON schema validation, and plain body
// and header checks.
package matchers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"choreo/internal/message"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/itchyny/gojq"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// JQ returns a matcher that runs a jq query against the decoded JSON body.
// The message matches when the first result is neither false nor null.
func JQ(query string) (message.Matcher, error) {
	parsed, err := gojq.Parse(query)
	if err != nil {
		return nil, fmt.Errorf("invalid jq query %q: %w", query, err)
	}
	code, err := gojq.Compile(parsed)
	if err != nil {
		return nil, fmt.Errorf("failed to compile jq query %q: %w", query, err)
	}

	return message.MatcherFunc(func(msg *message.Message) error {
		body, err := msg.DecodeJSON()
		if err != nil {
			return err
		}
		iter := code.Run(body)
		v, ok := iter.Next()
		if !ok {
			return fmt.Errorf("jq %q produced no result", query)
		}
		if err, isErr := v.(error); isErr {
			return fmt.Errorf("jq %q: %w", query, err)
		}
		if v == nil || v == false {
			return fmt.Errorf("jq %q evaluated to %v", query, v)
		}
		return nil
	}), nil
}

// exprEnv is the shape of the environment expressions are type-checked
// against. It mirrors message.Fields.
func exprEnv(msg *message.Message) map[string]interface{} {
	if msg == nil {
		return map[string]interface{}{
			"id":       "",
			"endpoint": "",
			"headers":  map[string]string{},
			"body":     "",
			"status":   0,
			"json":     nil,
		}
	}
	env := msg.Fields()
	if _, ok := env["json"]; !ok {
		env["json"] = nil
	}
	if env["headers"] == nil {
		env["headers"] = map[string]string{}
	}
	return env
}

// Expr returns a matcher that evaluates a boolean expr-lang expression over
// the message fields (id, endpoint, headers, body, status and json).
func Expr(expression string) (message.Matcher, error) {
	program, err := expr.Compile(expression, expr.Env(exprEnv(nil)), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", expression, err)
	}
	return exprMatcher{expression: expression, program: program}, nil
}

type exprMatcher struct {
	expression string
	program    *vm.Program
}

func (m exprMatcher) Match(msg *message.Message) error {
	out, err := expr.Run(m.program, exprEnv(msg))
	if err != nil {
		return fmt.Errorf("expression %q: %w", m.expression, err)
	}
	if ok, _ := out.(bool); !ok {
		return fmt.Errorf("expression %q is false", m.expression)
	}
	return nil
}

// Schema returns a matcher that validates the JSON body against an inline
// JSON schema document.
func Schema(document string) (message.Matcher, error) {
	const url = "inline://choreo/schema.json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, strings.NewReader(document)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schemaMatcher(schema), nil
}

// SchemaFile returns a matcher that validates the JSON body against the
// schema stored at path.
func SchemaFile(path string) (message.Matcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve schema path: %w", err)
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("open schema file: %w", err)
	}
	defer f.Close()

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(abs, f); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(abs)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schemaMatcher(schema), nil
}

func schemaMatcher(schema *jsonschema.Schema) message.Matcher {
	return message.MatcherFunc(func(msg *message.Message) error {
		var payload any
		if err := json.Unmarshal(msg.Body, &payload); err != nil {
			return fmt.Errorf("message body is not valid JSON: %w", err)
		}
		return schema.Validate(payload)
	})
}

// BodyContains matches bodies containing s.
func BodyContains(s string) message.Matcher {
	return message.MatcherFunc(func(msg *message.Message) error {
		if !bytes.Contains(msg.Body, []byte(s)) {
			return fmt.Errorf("body does not contain %q", s)
		}
		return nil
	})
}

// BodyEquals matches bodies equal to s after trimming surrounding whitespace.
func BodyEquals(s string) message.Matcher {
	want := strings.TrimSpace(s)
	return message.MatcherFunc(func(msg *message.Message) error {
		if got := strings.TrimSpace(msg.BodyString()); got != want {
			return fmt.Errorf("body %q does not equal %q", got, want)
		}
		return nil
	})
}

// JSONEquals matches JSON bodies that are semantically equal to document.
func JSONEquals(document string) (message.Matcher, error) {
	var want interface{}
	if err := json.Unmarshal([]byte(document), &want); err != nil {
		return nil, fmt.Errorf("expected document is not valid JSON: %w", err)
	}
	canonical, _ := json.Marshal(want)
	return message.MatcherFunc(func(msg *message.Message) error {
		got, err := msg.DecodeJSON()
		if err != nil {
			return err
		}
		gotCanonical, _ := json.Marshal(got)
		if !bytes.Equal(gotCanonical, canonical) {
			return fmt.Errorf("body %s does not equal %s", gotCanonical, canonical)
		}
		return nil
	}), nil
}

// Header matches messages carrying the header. An empty value only checks
// presence.
func Header(name, value string) message.Matcher {
	return message.MatcherFunc(func(msg *message.Message) error {
		got, ok := msg.Header(name)
		if !ok {
			return fmt.Errorf("header %s is missing", name)
		}
		if value != "" && got != value {
			return fmt.Errorf("header %s is %q, want %q", name, got, value)
		}
		return nil
	})
}

// BodyMatches matches bodies against a regular expression.
func BodyMatches(pattern string) (message.Matcher, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return message.MatcherFunc(func(msg *message.Message) error {
		if !re.Match(msg.Body) {
			return fmt.Errorf("body does not match %q", pattern)
		}
		return nil
	}), nil
}

// Not inverts a matcher.
func Not(m message.Matcher) message.Matcher {
	return message.MatcherFunc(func(msg *message.Message) error {
		if m.Match(msg) == nil {
			return errors.New("negated matcher matched")
		}
		return nil
	})
}

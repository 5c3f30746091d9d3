package template

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// Engine renders Go templates with the sprig function library. Rendered
// templates are cached by source text.
type Engine struct {
	// Pattern to match top-level variables like {{ .name }}
	variablePattern *regexp.Regexp

	mu    sync.RWMutex
	cache map[string]*template.Template
}

// New creates a new template engine
func New() *Engine {
	return &Engine{
		variablePattern: regexp.MustCompile(`\{\{-?\s*\.([a-zA-Z_][a-zA-Z0-9_]*)`),
		cache:           make(map[string]*template.Template),
	}
}

// IsTemplate reports whether s contains template actions.
func IsTemplate(s string) bool {
	return strings.Contains(s, "{{")
}

// Compile parses a template once so that syntax errors surface at load time.
func (e *Engine) Compile(source string) error {
	_, err := e.parse(source)
	return err
}

// Render executes a template against data. Strings without actions are
// returned unchanged.
func (e *Engine) Render(source string, data map[string]interface{}) (string, error) {
	if !IsTemplate(source) {
		return source, nil
	}
	tmpl, err := e.parse(source)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return buf.String(), nil
}

func (e *Engine) parse(source string) (*template.Template, error) {
	e.mu.RLock()
	tmpl, ok := e.cache[source]
	e.mu.RUnlock()
	if ok {
		return tmpl, nil
	}

	tmpl, err := template.New("choreo").
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=error").
		Parse(source)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}

	e.mu.Lock()
	e.cache[source] = tmpl
	e.mu.Unlock()
	return tmpl, nil
}

// Replace renders every string found in value, descending into maps and
// slices. Other types are returned as-is.
func (e *Engine) Replace(value interface{}, data map[string]interface{}) (interface{}, error) {
	switch v := value.(type) {
	case string:
		return e.Render(v, data)
	case map[string]interface{}:
		return e.replaceMap(v, data)
	case map[string]string:
		out := make(map[string]string, len(v))
		for key, s := range v {
			rendered, err := e.Render(s, data)
			if err != nil {
				return nil, fmt.Errorf("error in key '%s': %w", key, err)
			}
			out[key] = rendered
		}
		return out, nil
	case []interface{}:
		return e.replaceSlice(v, data)
	default:
		return value, nil
	}
}

func (e *Engine) replaceMap(m map[string]interface{}, data map[string]interface{}) (map[string]interface{}, error) {
	result := make(map[string]interface{}, len(m))
	for key, value := range m {
		replaced, err := e.Replace(value, data)
		if err != nil {
			return nil, fmt.Errorf("error in key '%s': %w", key, err)
		}
		result[key] = replaced
	}
	return result, nil
}

func (e *Engine) replaceSlice(s []interface{}, data map[string]interface{}) ([]interface{}, error) {
	result := make([]interface{}, len(s))
	for i, value := range s {
		replaced, err := e.Replace(value, data)
		if err != nil {
			return nil, fmt.Errorf("error at index %d: %w", i, err)
		}
		result[i] = replaced
	}
	return result, nil
}

// ExtractVariables returns the sorted top-level variable names referenced by
// value.
func (e *Engine) ExtractVariables(value interface{}) []string {
	variables := make(map[string]bool)
	e.extractVariablesRecursive(value, variables)

	result := make([]string, 0, len(variables))
	for name := range variables {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

func (e *Engine) extractVariablesRecursive(value interface{}, variables map[string]bool) {
	switch v := value.(type) {
	case string:
		for _, match := range e.variablePattern.FindAllStringSubmatch(v, -1) {
			if len(match) >= 2 {
				variables[match[1]] = true
			}
		}
	case map[string]string:
		for _, val := range v {
			e.extractVariablesRecursive(val, variables)
		}
	case map[string]interface{}:
		for _, val := range v {
			e.extractVariablesRecursive(val, variables)
		}
	case []interface{}:
		for _, val := range v {
			e.extractVariablesRecursive(val, variables)
		}
	}
}

// ValidateContext ensures all referenced top-level variables are present.
func (e *Engine) ValidateContext(value interface{}, data map[string]interface{}) error {
	var missing []string
	for _, name := range e.ExtractVariables(value) {
		if _, exists := data[name]; !exists {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

package config

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// FieldError names one rejected config.yaml key.
type FieldError struct {
	Field  string
	Reason string
}

func (fe FieldError) Error() string {
	return fmt.Sprintf("%s %s", fe.Field, fe.Reason)
}

// ValidationErrors lists every rejected key of a single config.yaml.
type ValidationErrors []FieldError

func (ve ValidationErrors) Error() string {
	parts := make([]string, len(ve))
	for i, fe := range ve {
		parts[i] = fe.Error()
	}
	return fmt.Sprintf("%d invalid setting(s): %s", len(ve), strings.Join(parts, "; "))
}

// Fields returns the rejected keys in the order they were checked.
func (ve ValidationErrors) Fields() []string {
	fields := make([]string, len(ve))
	for i, fe := range ve {
		fields[i] = fe.Field
	}
	return fields
}

type checker struct {
	errs ValidationErrors
}

func (c *checker) reject(field, format string, args ...any) {
	c.errs = append(c.errs, FieldError{Field: field, Reason: fmt.Sprintf(format, args...)})
}

func (c *checker) duration(field string, d time.Duration) {
	if d < 0 {
		c.reject(field, "is negative (%s)", d)
	}
}

func (c *checker) oneOf(field, value string, allowed ...string) {
	if !slices.Contains(allowed, value) {
		c.reject(field, "is %q, want one of %s", value, strings.Join(allowed, "|"))
	}
}

// Validate checks the whole configuration and reports every bad key at once.
func (c ChoreoConfig) Validate() error {
	var ck checker

	ck.duration("timing.minimalWait", c.Timing.MinimalWait)
	ck.duration("timing.perMessageWait", c.Timing.PerMessageWait)
	ck.duration("timing.reassertion", c.Timing.Reassertion)
	ck.duration("runner.timeout", c.Runner.Timeout)
	ck.duration("runner.pollInterval", c.Runner.PollInterval)
	if c.Runner.Parallel < 1 {
		ck.reject("runner.parallel", "is %d, want at least 1", c.Runner.Parallel)
	}

	kinds := []string{TransportMemory, TransportHTTP, TransportMCP}
	ck.oneOf("transport.default", c.Transport.Default, kinds...)
	ck.oneOf("transport.sender", c.Transport.Sender, kinds...)
	if c.Transport.Sender == TransportMCP && c.Transport.MCP.Endpoint == "" {
		ck.reject("transport.mcp.endpoint", "is required when requests are sent over mcp")
	}

	ck.oneOf("report.format", c.Report.Format, "text", "json")
	ck.oneOf("logging.level", strings.ToLower(c.Logging.Level), "debug", "info", "warn", "error")
	ck.oneOf("logging.format", c.Logging.Format, "text", "json")

	if len(ck.errs) > 0 {
		return ck.errs
	}
	return nil
}

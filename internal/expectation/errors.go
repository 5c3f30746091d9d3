package expectation

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConfiguration is matched by every build-time configuration error.
var ErrConfiguration = errors.New("configuration error")

// Conflict names one field that differs between two declarations.
type Conflict struct {
	Field    string `json:"field"`
	Previous string `json:"previous"`
	Current  string `json:"current"`
}

// ConfigError is a fatal build-time error. The test cannot run.
type ConfigError struct {
	EndpointID string     `json:"endpointId"`
	Reason     string     `json:"reason"`
	Conflicts  []Conflict `json:"conflicts,omitempty"`
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	var b strings.Builder
	if e.EndpointID != "" {
		fmt.Fprintf(&b, "configuration error for endpoint %q: %s", e.EndpointID, e.Reason)
	} else {
		fmt.Fprintf(&b, "configuration error: %s", e.Reason)
	}
	for i, c := range e.Conflicts {
		if i == 0 {
			b.WriteString(" (")
		} else {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: previous=%s current=%s", c.Field, c.Previous, c.Current)
		if i == len(e.Conflicts)-1 {
			b.WriteString(")")
		}
	}
	return b.String()
}

// Is lets errors.Is(err, ErrConfiguration) match.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}

// Fields returns the names of the conflicting fields.
func (e *ConfigError) Fields() []string {
	fields := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		fields = append(fields, c.Field)
	}
	return fields
}

// NewConfigError creates a configuration error without field conflicts.
func NewConfigError(endpointID, format string, args ...interface{}) *ConfigError {
	return &ConfigError{EndpointID: endpointID, Reason: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether err is (or wraps) a configuration error.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

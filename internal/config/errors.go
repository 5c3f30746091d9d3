package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ConfigurationError is returned by LoadConfig. ErrorType is one of io,
// parse or validation.
type ConfigurationError struct {
	FilePath    string   `json:"filePath"`
	ErrorType   string   `json:"errorType"`
	Message     string   `json:"message"`
	Line        int      `json:"line,omitempty"` // first offending line of a parse error
	Suggestions []string `json:"suggestions,omitempty"`
}

func (ce ConfigurationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", ce.ErrorType, ce.location(), ce.Message)
}

func (ce ConfigurationError) location() string {
	if ce.Line > 0 {
		return fmt.Sprintf("%s:%d", ce.FilePath, ce.Line)
	}
	return ce.FilePath
}

// DetailedError renders the error with its suggestions for the terminal.
func (ce ConfigurationError) DetailedError() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Configuration Error in %s\n", ce.location())
	fmt.Fprintf(&b, "  %s: %s", ce.ErrorType, ce.Message)
	for _, s := range ce.Suggestions {
		fmt.Fprintf(&b, "\n  - %s", s)
	}
	return b.String()
}

// NewConfigurationError creates a configuration error without line information.
func NewConfigurationError(filePath, errorType, message string, suggestions ...string) ConfigurationError {
	return ConfigurationError{
		FilePath:    filePath,
		ErrorType:   errorType,
		Message:     message,
		Suggestions: suggestions,
	}
}

var yamlLine = regexp.MustCompile(`line (\d+):`)

// newParseError wraps a yaml.v3 decode error and keeps the first line it
// names.
func newParseError(filePath string, err error, suggestions ...string) ConfigurationError {
	ce := NewConfigurationError(filePath, "parse", err.Error(), suggestions...)
	if m := yamlLine.FindStringSubmatch(err.Error()); m != nil {
		ce.Line, _ = strconv.Atoi(m[1])
	}
	return ce
}

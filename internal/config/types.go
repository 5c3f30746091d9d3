package config

import "time"

// ChoreoConfig is the top-level configuration structure for choreo.
type ChoreoConfig struct {
	Timing    TimingConfig    `yaml:"timing"`
	Runner    RunnerConfig    `yaml:"runner"`
	Transport TransportConfig `yaml:"transport"`
	Report    ReportConfig    `yaml:"report"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// TimingConfig holds the wait policy applied to endpoints whose scenario
// does not set one.
type TimingConfig struct {
	MinimalWait    time.Duration `yaml:"minimalWait,omitempty"`    // Minimal wait for asynchronous results
	PerMessageWait time.Duration `yaml:"perMessageWait,omitempty"` // Added per expected message
	Reassertion    time.Duration `yaml:"reassertion,omitempty"`    // Quiet period before the final assertion
}

// RunnerConfig controls scenario execution.
type RunnerConfig struct {
	Parallel     int           `yaml:"parallel,omitempty"`     // Concurrent scenarios (default: 1)
	FailFast     bool          `yaml:"failFast,omitempty"`     // Stop after the first failed scenario
	Timeout      time.Duration `yaml:"timeout,omitempty"`      // Bound on a whole scenario (default: 5m)
	PollInterval time.Duration `yaml:"pollInterval,omitempty"` // How often pending expectations are checked
}

// Transport kinds.
const (
	TransportMemory = "memory"
	TransportHTTP   = "http"
	TransportMCP    = "mcp"
)

// TransportConfig selects and configures the transports.
type TransportConfig struct {
	Default string     `yaml:"default,omitempty"` // Feeder for endpoints without one (default: http)
	Sender  string     `yaml:"sender,omitempty"`  // Transport requests are sent over (default: http)
	HTTP    HTTPConfig `yaml:"http,omitempty"`
	MCP     MCPConfig  `yaml:"mcp,omitempty"`
}

// HTTPConfig configures the HTTP feeder and sender.
type HTTPConfig struct {
	Listen  string            `yaml:"listen,omitempty"`  // Feeder listen address (default: localhost:8095)
	Targets map[string]string `yaml:"targets,omitempty"` // Endpoint id -> URL of the system under test
}

// MCPConfig configures the MCP feeder and sender.
type MCPConfig struct {
	Listen   string `yaml:"listen,omitempty"`   // Feeder listen address (default: localhost:8096)
	Endpoint string `yaml:"endpoint,omitempty"` // MCP server requests are sent to
}

// ReportConfig controls result output.
type ReportConfig struct {
	Format  string `yaml:"format,omitempty"`  // text or json (default: text)
	Path    string `yaml:"path,omitempty"`    // Directory for structured reports
	Verbose bool   `yaml:"verbose,omitempty"` // Print reports of passing scenarios too
}

// LoggingConfig controls diagnostic logging.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`  // debug, info, warn, error (default: info)
	Format string `yaml:"format,omitempty"` // text or json (default: text)
}

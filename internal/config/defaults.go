package config

import (
	"time"

	"choreo/internal/expectation"
)

const (
	// DefaultHTTPListen is where the HTTP feeder serves stand-in endpoints
	DefaultHTTPListen = "localhost:8095"

	// DefaultMCPListen is where the MCP feeder serves stand-in endpoints
	DefaultMCPListen = "localhost:8096"

	// DefaultScenarioTimeout bounds a whole scenario
	DefaultScenarioTimeout = 5 * time.Minute

	// DefaultPollInterval is how often the runner re-checks pending slots
	DefaultPollInterval = 50 * time.Millisecond
)

// GetDefaultConfig returns the default configuration.
func GetDefaultConfig() ChoreoConfig {
	return ChoreoConfig{
		Timing: TimingConfig{
			MinimalWait:    expectation.DefaultMinimalWaitTime,
			PerMessageWait: expectation.DefaultPerMessageWaitTime,
			Reassertion:    expectation.DefaultReassertionPeriod,
		},
		Runner: RunnerConfig{
			Parallel:     1,
			Timeout:      DefaultScenarioTimeout,
			PollInterval: DefaultPollInterval,
		},
		Transport: TransportConfig{
			Default: TransportHTTP,
			Sender:  TransportHTTP,
			HTTP:    HTTPConfig{Listen: DefaultHTTPListen},
			MCP:     MCPConfig{Listen: DefaultMCPListen},
		},
		Report: ReportConfig{
			Format: "text",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

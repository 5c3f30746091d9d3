package config

import (
	"choreo/internal/expectation"
	"choreo/internal/scenario"
)

// ScenarioDefaults converts the configured timing and default transport
// into the values the scenario compiler applies to unset endpoints.
func (c ChoreoConfig) ScenarioDefaults() scenario.Defaults {
	d := scenario.Defaults{
		MinimalWait:    c.Timing.MinimalWait,
		PerMessageWait: c.Timing.PerMessageWait,
		Reassertion:    c.Timing.Reassertion,
	}
	if c.Transport.Default != "" {
		d.Feeder = &expectation.FeederConfig{Kind: c.Transport.Default}
	}
	return d
}

package runner

import (
	"fmt"

	"choreo/internal/scenario"
)

// Compile turns loaded scenarios into runnable cases. Skipped scenarios are
// kept, uncompiled, so they still show up as skipped in results.
func Compile(compiler *scenario.Compiler, scenarios []scenario.Scenario) ([]Case, error) {
	cases := make([]Case, 0, len(scenarios))
	for _, s := range scenarios {
		c := Case{
			Name:     s.Name,
			Category: s.Category,
			Tags:     s.Tags,
			Skip:     s.Skip,
			Timeout:  s.Timeout,
			Source:   s.Source,
		}
		if !s.Skip {
			spec, err := compiler.Compile(s)
			if err != nil {
				return nil, fmt.Errorf("scenario %q: %w", s.Name, err)
			}
			c.Spec = spec
		}
		cases = append(cases, c)
	}
	return cases, nil
}

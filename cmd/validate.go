package cmd

import (
	"errors"
	"fmt"
	"io"

	"choreo/internal/formatting"
	"choreo/internal/scenario"

	"github.com/spf13/cobra"
)

// errInvalidScenarios is returned when at least one scenario does not compile.
var errInvalidScenarios = errors.New("invalid scenarios")

var validateOutput string

var validateCmd = &cobra.Command{
	Use:   "validate <path>",
	Short: "Check scenarios without sending anything",
	Long: `Loads and compiles every scenario at <path> the way 'choreo run' would:
matchers, schemas and templates are compiled and expectations declared more
than once for an endpoint are merged. Nothing is attached or sent.

For every valid scenario the precedence forest of each part is printed. It
shows which expected messages must arrive before which.

Example usage:
  choreo validate scenarios/
  choreo validate scenarios/checkout.yaml --output=table`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		formatter := formatting.New(formatting.Options{
			Format: formatting.ParseFormat(validateOutput),
		})
		compiler := scenario.NewCompiler(scenario.WithDefaults(cfg.ScenarioDefaults()))
		return validateScenarios(cmd.OutOrStdout(), args[0], compiler, formatter)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVarP(&validateOutput, "output", "o", string(formatting.FormatConsole), "Forest output format (console, table, json, yaml)")
}

// validateScenarios compiles every scenario at path and prints its forests.
// All scenarios are checked even after the first invalid one.
func validateScenarios(out io.Writer, path string, compiler *scenario.Compiler, formatter formatting.Formatter) error {
	scenarios, err := scenario.NewLoader(nil).Load(path)
	if err != nil {
		return err
	}

	invalid := 0
	for _, s := range scenarios {
		spec, err := compiler.Compile(s)
		if err != nil {
			invalid++
			fmt.Fprintf(out, "❌ %s: %v\n", s.Name, err)
			continue
		}

		fmt.Fprintf(out, "✅ %s (%d part(s))\n", s.Name, spec.PartCount())
		for i, part := range spec.Parts() {
			fmt.Fprintf(out, "Part %d → %s\n", i+1, part.TargetEndpointID())
			fmt.Fprintln(out, formatter.FormatForest(part.Forest()))
		}
	}

	if invalid > 0 {
		return fmt.Errorf("%d of %d scenarios are invalid: %w", invalid, len(scenarios), errInvalidScenarios)
	}
	return nil
}

package cmd

import (
	"errors"
	"fmt"
	"os"

	"choreo/internal/config"
	"choreo/internal/expectation"
	"choreo/internal/scenario"
	"choreo/pkg/logging"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeUnsatisfied indicates that at least one scenario failed its expectations.
	ExitCodeUnsatisfied = 2
	// ExitCodeConfiguration indicates a broken configuration or scenario file.
	ExitCodeConfiguration = 3
)

var (
	configPath string
	logLevel   string
	logFormat  string
)

// rootCmd represents the base command for the choreo application.
var rootCmd = &cobra.Command{
	Use:   "choreo",
	Short: "Verify how a system talks to its collaborators",
	Long: `choreo drives a system under test with requests and stands in for every
endpoint the system talks to. Each stand-in endpoint declares the messages it
expects, in which order, and how to answer them. After the requests have been
sent choreo asserts that every expectation was met.

Scenarios are YAML files. Run them with 'choreo run', check them without
sending anything with 'choreo validate', or keep the stand-in endpoints of a
scenario up for manual testing with 'choreo serve'.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage:      true,
	PersistentPreRunE: initLogging,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "choreo version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		var ce config.ConfigurationError
		if errors.As(err, &ce) {
			fmt.Fprintln(os.Stderr, ce.DetailedError())
		}
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}

	var unsatisfied *UnsatisfiedError
	if errors.As(err, &unsatisfied) {
		return ExitCodeUnsatisfied
	}

	var configErr config.ConfigurationError
	if errors.As(err, &configErr) {
		return ExitCodeConfiguration
	}
	if scenario.IsLoadError(err) || expectation.IsConfigError(err) || errors.Is(err, errInvalidScenarios) {
		return ExitCodeConfiguration
	}

	return ExitCodeError
}

// UnsatisfiedError is returned when scenarios ran but did not pass.
type UnsatisfiedError struct {
	Failed int
	Errors int
}

func (e *UnsatisfiedError) Error() string {
	return fmt.Sprintf("%d scenario(s) failed, %d errored", e.Failed, e.Errors)
}

// initLogging configures pkg/logging from the persistent flags. Commands
// that load config.yaml re-initialize it when the flags are unset.
func initLogging(cmd *cobra.Command, args []string) error {
	level, err := logging.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	logging.Init(level, logging.Format(logFormat), cmd.ErrOrStderr())
	return nil
}

// loadConfig loads config.yaml from --config-path and applies the logging
// settings of the file unless they were set on the command line.
func loadConfig(cmd *cobra.Command) (config.ChoreoConfig, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = logFormat
	}
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return cfg, err
	}
	logging.Init(level, logging.Format(cfg.Logging.Format), cmd.ErrOrStderr())
	return cfg, nil
}

func init() {
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.PersistentFlags().StringVar(&configPath, "config-path", config.GetDefaultConfigPathOrPanic(), "Configuration directory containing config.yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")
}

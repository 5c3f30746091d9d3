package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"choreo/internal/config"
	"choreo/internal/formatting"
	"choreo/internal/metrics"
	"choreo/internal/reporter"
	"choreo/internal/runner"
	"choreo/internal/scenario"
	"choreo/internal/watch"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
)

// Report output formats accepted by --report-format.
const (
	reportText  = "text"
	reportJSON  = "json"
	reportQuiet = "quiet"
)

// runOptions collects everything a run needs besides the configuration.
type runOptions struct {
	path         string
	category     string
	tag          string
	scenario     string
	parallel     int
	failFast     bool
	timeout      time.Duration
	verbose      bool
	debug        bool
	reportPath   string
	reportFormat string
	watch        bool
}

var runFlags runOptions

// completeScenarioFlag offers the names of the scenarios below the path argument
func completeScenarioFlag(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return nil, cobra.ShellCompDirectiveDefault
	}
	scenarios, err := scenario.NewLoader(nil).Load(args[0])
	if err != nil {
		return []string{}, cobra.ShellCompDirectiveDefault
	}
	var names []string
	for _, s := range scenarios {
		names = append(names, s.Name)
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}

// completeCategoryFlag offers the categories of the scenarios below the path argument
func completeCategoryFlag(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return nil, cobra.ShellCompDirectiveDefault
	}
	scenarios, err := scenario.NewLoader(nil).Load(args[0])
	if err != nil {
		return []string{}, cobra.ShellCompDirectiveDefault
	}
	return scenario.Categories(scenarios), cobra.ShellCompDirectiveNoFileComp
}

var runCmd = &cobra.Command{
	Use:   "run <path>",
	Short: "Run scenarios against the system under test",
	Long: `Runs every scenario found at <path>, a YAML file or a directory searched
recursively. For each part of a scenario choreo attaches the stand-in
endpoints, sends the requests to the target, waits for the expected
messages and asserts that every expectation was met.

Exit codes:
  0  all scenarios passed
  1  choreo itself failed
  2  at least one scenario failed or errored
  3  the configuration or a scenario file is invalid

Example usage:
  choreo run scenarios/                      # Run everything
  choreo run scenarios/ --category=checkout  # Run one category
  choreo run scenarios/ --scenario=refund    # Run one scenario
  choreo run scenarios/ --parallel=4         # Run four scenarios at a time
  choreo run scenarios/ --report=reports/    # Also write a JSON report
  choreo run scenarios/ --watch              # Re-run whenever a file changes`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	flags := runCmd.Flags()
	flags.StringVar(&runFlags.category, "category", "", "Run only scenarios of this category")
	flags.StringVar(&runFlags.tag, "tag", "", "Run only scenarios carrying this tag")
	flags.StringVar(&runFlags.scenario, "scenario", "", "Run a single scenario by name")
	flags.IntVar(&runFlags.parallel, "parallel", 1, "Number of scenarios run concurrently (1-50)")
	flags.BoolVar(&runFlags.failFast, "fail-fast", false, "Stop after the first failed scenario")
	flags.DurationVar(&runFlags.timeout, "timeout", config.DefaultScenarioTimeout, "Timeout of a scenario without its own")
	flags.BoolVar(&runFlags.verbose, "verbose", false, "Print every part and its report")
	flags.BoolVar(&runFlags.debug, "debug", false, "Also print ordering forests and loader progress")
	flags.StringVar(&runFlags.reportPath, "report", "", "Directory to write a JSON report to")
	flags.StringVar(&runFlags.reportFormat, "report-format", reportText, "Console output (text, json, quiet)")
	flags.BoolVar(&runFlags.watch, "watch", false, "Re-run when scenario files change")

	_ = runCmd.RegisterFlagCompletionFunc("scenario", completeScenarioFlag)
	_ = runCmd.RegisterFlagCompletionFunc("category", completeCategoryFlag)
	_ = runCmd.RegisterFlagCompletionFunc("report-format", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{reportText, reportJSON, reportQuiet}, cobra.ShellCompDirectiveNoFileComp
	})

	runCmd.MarkFlagsMutuallyExclusive("scenario", "category")
	runCmd.MarkFlagsMutuallyExclusive("scenario", "tag")

	runCmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if runFlags.parallel < 1 || runFlags.parallel > 50 {
			return fmt.Errorf("parallel workers must be between 1 and 50, got %d", runFlags.parallel)
		}
		switch runFlags.reportFormat {
		case reportText, reportJSON, reportQuiet:
		default:
			return fmt.Errorf("invalid report format '%s', must be one of: text, json, quiet", runFlags.reportFormat)
		}
		return nil
	}
}

// signalContext cancels ctx on SIGINT or SIGTERM.
func signalContext(parent context.Context, out io.Writer) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(out, "\nReceived interrupt signal, stopping gracefully...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context(), cmd.ErrOrStderr())
	defer cancel()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := runFlags
	opts.path = args[0]
	applyRunConfig(cmd, &opts, cfg)

	if opts.watch {
		return watchRun(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg, opts)
	}
	return executeRun(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg, opts)
}

// applyRunConfig fills options the command line left unset from config.yaml.
func applyRunConfig(cmd *cobra.Command, opts *runOptions, cfg config.ChoreoConfig) {
	flags := cmd.Flags()
	if !flags.Changed("parallel") && cfg.Runner.Parallel > 0 {
		opts.parallel = cfg.Runner.Parallel
	}
	if !flags.Changed("fail-fast") {
		opts.failFast = opts.failFast || cfg.Runner.FailFast
	}
	if !flags.Changed("timeout") && cfg.Runner.Timeout > 0 {
		opts.timeout = cfg.Runner.Timeout
	}
	if !flags.Changed("report") && cfg.Report.Path != "" {
		opts.reportPath = cfg.Report.Path
	}
	if !flags.Changed("report-format") && cfg.Report.Format != "" {
		opts.reportFormat = cfg.Report.Format
	}
	if !flags.Changed("verbose") {
		opts.verbose = opts.verbose || cfg.Report.Verbose
	}
}

// newReporter selects the console reporter for the requested format.
func newReporter(out io.Writer, opts runOptions) runner.Reporter {
	switch opts.reportFormat {
	case reportJSON:
		return reporter.NewJSONReporter(out)
	case reportQuiet:
		return reporter.NewQuietReporter(out)
	default:
		formatter := formatting.NewTableFormatter(formatting.Options{Format: formatting.FormatTable, Color: out == os.Stdout})
		return reporter.NewConsoleReporter(out, opts.verbose, opts.debug, formatter)
	}
}

// executeRun loads, compiles and runs the scenarios at opts.path once.
func executeRun(ctx context.Context, out, errOut io.Writer, cfg config.ChoreoConfig, opts runOptions) error {
	logger := runner.NewWriterLogger(out, errOut, opts.verbose, opts.debug)

	scenarios, err := scenario.NewLoader(logger).Load(opts.path)
	if err != nil {
		return fmt.Errorf("failed to load scenarios: %w", err)
	}
	scenarios = scenario.FilterScenarios(scenarios, scenario.Filter{
		Category: opts.category,
		Tag:      opts.tag,
		Name:     opts.scenario,
	})
	if len(scenarios) == 0 {
		fmt.Fprintf(out, "⚠️  No scenarios found in %s\n", opts.path)
		return nil
	}

	compiler := scenario.NewCompiler(scenario.WithDefaults(cfg.ScenarioDefaults()))
	cases, err := runner.Compile(compiler, scenarios)
	if err != nil {
		return err
	}

	collector := metrics.NewCollector("choreo")
	stack, err := newTransportStack(cfg.Transport, GetVersion())
	if err != nil {
		return err
	}
	if networked(cfg.Transport) {
		if err := stack.start(ctx, cfg.Transport, map[string]http.Handler{"/metrics": collector.Handler()}); err != nil {
			_ = stack.close(context.Background())
			return err
		}
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = stack.close(shutdownCtx)
	}()

	structured := reporter.NewStructuredReporter()
	r := runner.New(stack.registry, stack.sender,
		runner.WithReporter(reporter.Multi(newReporter(out, opts), structured)),
		runner.WithLogger(logger),
		runner.WithMetrics(collector),
	)

	runConfig := runner.Configuration{
		Parallel:     opts.parallel,
		FailFast:     opts.failFast,
		Timeout:      opts.timeout,
		PollInterval: cfg.Runner.PollInterval,
		Verbose:      opts.verbose,
		Debug:        opts.debug,
	}

	// The console reporter prints progress itself; the other formats stay
	// silent until the end, so show that something is happening.
	if opts.reportFormat != reportText && out == os.Stdout {
		s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
		s.Suffix = fmt.Sprintf(" Running %d scenario(s)...", len(cases))
		s.Start()
		defer s.Stop()
	}

	result, err := r.Run(ctx, runConfig, cases)
	if err != nil {
		return fmt.Errorf("scenario execution failed: %w", err)
	}

	if opts.reportPath != "" {
		path, err := structured.WriteReport(opts.reportPath)
		if err != nil {
			return err
		}
		fmt.Fprintf(errOut, "📄 Report written to %s\n", path)
	}

	if !result.Succeeded() {
		return &UnsatisfiedError{Failed: result.FailedScenarios, Errors: result.ErrorScenarios}
	}
	return nil
}

// watchRun runs once and again after every burst of scenario changes until
// ctx is cancelled. Failed runs do not end the loop.
func watchRun(ctx context.Context, out, errOut io.Writer, cfg config.ChoreoConfig, opts runOptions) error {
	trigger := make(chan struct{}, 1)
	watcher := watch.New(watch.Config{
		Root: opts.path,
		OnChange: func() {
			select {
			case trigger <- struct{}{}:
			default:
			}
		},
	})
	if err := watcher.Start(); err != nil {
		return fmt.Errorf("failed to watch %s: %w", opts.path, err)
	}
	defer watcher.Stop()

	for {
		if err := executeRun(ctx, out, errOut, cfg, opts); err != nil {
			fmt.Fprintf(errOut, "❌ %v\n", err)
		}
		fmt.Fprintf(out, "👀 Watching %s for changes (Ctrl+C to stop)\n", opts.path)

		select {
		case <-ctx.Done():
			return nil
		case <-trigger:
			fmt.Fprintln(out, "🔄 Change detected, re-running...")
		}
	}
}

package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"choreo/internal/config"
	"choreo/internal/engine"
	"choreo/internal/formatting"
	"choreo/internal/metrics"
	"choreo/internal/scenario"
	"choreo/internal/testspec"
	"choreo/pkg/logging"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	serveScenario string
	servePart     int
	serveHTTP     string
	serveMCP      string
)

var serveCmd = &cobra.Command{
	Use:   "serve <path>",
	Short: "Keep the stand-in endpoints of one scenario part up",
	Long: `Attaches the stand-in endpoints of one scenario part and serves them until
interrupted. Nothing is sent: drive the system under test yourself, then press
Ctrl+C to see whether every expectation was met.

HTTP endpoints are served on --http-listen, MCP endpoints and Prometheus
metrics (/metrics) on --mcp-listen.

Example usage:
  choreo serve scenarios/checkout.yaml
  choreo serve scenarios/ --scenario=refund --part=2`,
	Args: cobra.ExactArgs(1),
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveScenario, "scenario", "", "Scenario to serve (required when <path> holds several)")
	serveCmd.Flags().IntVar(&servePart, "part", 1, "Part of the scenario to serve, starting at 1")
	serveCmd.Flags().StringVar(&serveHTTP, "http-listen", "", "HTTP feeder address (default from config)")
	serveCmd.Flags().StringVar(&serveMCP, "mcp-listen", "", "MCP feeder and metrics address (default from config)")
	_ = serveCmd.RegisterFlagCompletionFunc("scenario", completeScenarioFlag)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context(), cmd.ErrOrStderr())
	defer cancel()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if serveHTTP != "" {
		cfg.Transport.HTTP.Listen = serveHTTP
	}
	if serveMCP != "" {
		cfg.Transport.MCP.Listen = serveMCP
	}

	part, err := selectPart(cfg, args[0], serveScenario, servePart)
	if err != nil {
		return err
	}
	return serveEndpoints(ctx, cmd.OutOrStdout(), cfg, part)
}

// selectPart loads and compiles the named scenario and returns one part.
func selectPart(cfg config.ChoreoConfig, path, name string, index int) (*testspec.TestSpecification, error) {
	scenarios, err := scenario.NewLoader(nil).Load(path)
	if err != nil {
		return nil, err
	}
	if name != "" {
		scenarios = scenario.FilterScenarios(scenarios, scenario.Filter{Name: name})
	}
	switch {
	case len(scenarios) == 0:
		return nil, fmt.Errorf("no scenario named %q in %s", name, path)
	case len(scenarios) > 1:
		return nil, fmt.Errorf("%s holds %d scenarios, select one with --scenario", path, len(scenarios))
	}

	spec, err := scenario.NewCompiler(scenario.WithDefaults(cfg.ScenarioDefaults())).Compile(scenarios[0])
	if err != nil {
		return nil, err
	}
	parts := spec.Parts()
	if index < 1 || index > len(parts) {
		return nil, fmt.Errorf("scenario %s has %d part(s), got --part=%d", scenarios[0].Name, len(parts), index)
	}
	return parts[index-1], nil
}

// serveEndpoints attaches part's endpoints and blocks until ctx is done. The
// final report is printed on the way out.
func serveEndpoints(ctx context.Context, out io.Writer, cfg config.ChoreoConfig, part *testspec.TestSpecification) error {
	collector := metrics.NewCollector("choreo")
	stack, err := newTransportStack(cfg.Transport, GetVersion())
	if err != nil {
		return err
	}

	eng := engine.New(part, engine.WithObserver(collector), engine.WithRunID(uuid.NewString()))
	detach, err := stack.registry.AttachAll(part.Expectations(), eng)
	if err != nil {
		return fmt.Errorf("failed to attach mock endpoints: %w", err)
	}
	defer detach()

	if err := stack.start(ctx, cfg.Transport, map[string]http.Handler{"/metrics": collector.Handler()}); err != nil {
		_ = stack.close(context.Background())
		return err
	}

	ids := part.EndpointIDs()
	sort.Strings(ids)
	fmt.Fprintf(out, "🎯 Serving %d stand-in endpoint(s) for %s (run %s)\n", len(ids), part.Description(), eng.RunID())
	for _, id := range ids {
		def, _ := part.Expectation(id)
		fmt.Fprintf(out, "   • %s (%s, %d message(s))\n", id, def.OrderingType(), def.ExpectedMessageCount())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(stack.wait)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return stack.close(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logging.Error("CLI", err, "stand-in endpoints stopped")
	}

	satisfied, report := eng.AssertSatisfied()
	formatter := formatting.NewTableFormatter(formatting.Options{Format: formatting.FormatTable})
	fmt.Fprintln(out, formatter.FormatReport(report))
	if !satisfied {
		return &UnsatisfiedError{Failed: 1}
	}
	return nil
}

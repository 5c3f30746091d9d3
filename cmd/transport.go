package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"choreo/internal/config"
	"choreo/internal/transport"
	"choreo/pkg/logging"

	"golang.org/x/sync/errgroup"
)

// transportStack owns the feeders, the sender and the listeners of one
// command invocation.
type transportStack struct {
	memory    *transport.Memory
	http      *transport.HTTPFeeder
	mcp       *transport.MCPFeeder
	mcpSender *transport.MCPSender

	registry *transport.Registry
	sender   transport.Sender

	server *http.Server
	cancel context.CancelFunc
	group  *errgroup.Group
}

// networked reports whether any feeder or the sender leaves the process.
func networked(cfg config.TransportConfig) bool {
	return cfg.Default != config.TransportMemory || cfg.Sender != config.TransportMemory
}

// newTransportStack registers every feeder kind and selects the sender.
// Listeners are opened by start.
func newTransportStack(cfg config.TransportConfig, version string) (*transportStack, error) {
	s := &transportStack{
		memory: transport.NewMemory(),
		http:   transport.NewHTTPFeeder(),
		mcp:    transport.NewMCPFeeder("choreo", version),
	}
	s.registry = transport.NewRegistry(s.memory, s.http, s.mcp)
	if cfg.Default != "" {
		if err := s.registry.SetDefault(cfg.Default); err != nil {
			return nil, err
		}
	}

	switch cfg.Sender {
	case config.TransportMemory:
		s.sender = s.memory
	case config.TransportMCP:
		s.mcpSender = transport.NewMCPSender(cfg.MCP.Endpoint, 0)
		s.sender = s.mcpSender
	case config.TransportHTTP, "":
		s.sender = transport.NewHTTPSender(nil, cfg.HTTP.Targets)
	default:
		return nil, fmt.Errorf("unknown sender %q", cfg.Sender)
	}
	return s, nil
}

// start opens the HTTP feeder and serves the MCP feeder, plus extra
// handlers such as /metrics, on the MCP listen address.
func (s *transportStack) start(ctx context.Context, cfg config.TransportConfig, extra map[string]http.Handler) error {
	if cfg.HTTP.Listen != "" {
		if _, err := s.http.Start(cfg.HTTP.Listen); err != nil {
			return err
		}
	}
	if cfg.MCP.Listen == "" {
		return nil
	}

	listener, err := net.Listen("tcp", cfg.MCP.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.MCP.Listen, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/mcp", s.mcp)
	for pattern, h := range extra {
		mux.Handle(pattern, h)
	}
	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	ctx, s.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.server.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	})
	s.group = g

	logging.Info("CLI", "mcp feeder listening on %s", listener.Addr())
	return nil
}

// wait blocks until the listeners stop. It returns the first serve error.
func (s *transportStack) wait() error {
	if s.group == nil {
		return nil
	}
	return s.group.Wait()
}

// close stops every listener and the MCP sender session.
func (s *transportStack) close(ctx context.Context) error {
	var errs []error
	if err := s.http.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if s.cancel != nil {
		s.cancel()
		if err := s.wait(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.mcpSender != nil {
		if err := s.mcpSender.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"choreo/internal/expectation"
	"choreo/internal/message"
	"choreo/pkg/logging"
)

const maxBodyBytes = 10 << 20

type httpRoute struct {
	endpointID    string
	handler       Handler
	failureStatus int
}

// HTTPFeeder serves stand-in endpoints over HTTP, one path per endpoint.
// The path is the feeder address, or "/<endpoint>" when no address is set.
// The "failure_status" option selects the status of planned failures
// (default 500).
type HTTPFeeder struct {
	mu     sync.RWMutex
	routes map[string]httpRoute

	httpServer    *http.Server
	listener      net.Listener
	port          int
	running       bool
	shutdownError error
}

// NewHTTPFeeder creates a feeder. It serves nothing until Start is called,
// but it can be mounted on any server as an http.Handler.
func NewHTTPFeeder() *HTTPFeeder {
	return &HTTPFeeder{routes: make(map[string]httpRoute)}
}

// Kind returns KindHTTP.
func (s *HTTPFeeder) Kind() string { return KindHTTP }

// Attach routes the endpoint's path to h.
func (s *HTTPFeeder) Attach(endpointID string, cfg expectation.FeederConfig, h Handler) (func(), error) {
	path := cfg.Address
	if path == "" {
		path = "/" + endpointID
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	status := http.StatusInternalServerError
	if raw, ok := cfg.Options["failure_status"]; ok {
		code, err := strconv.Atoi(raw)
		if err != nil || code < 400 || code > 599 {
			return nil, fmt.Errorf("invalid failure_status %q", raw)
		}
		status = code
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, taken := s.routes[path]; taken {
		return nil, fmt.Errorf("path %s is already served for endpoint %s", path, existing.endpointID)
	}
	s.routes[path] = httpRoute{endpointID: endpointID, handler: h, failureStatus: status}
	logging.Debug("Transport", "http: endpoint %s served at %s", endpointID, path)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.routes, path)
	}, nil
}

// ServeHTTP hands the request to the handler attached at its path.
func (s *HTTPFeeder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	route, ok := s.routes[r.URL.Path]
	s.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, fmt.Sprintf("read body: %v", err), http.StatusBadRequest)
		return
	}
	msg := message.New(string(body))
	for name := range r.Header {
		msg.SetHeader(name, r.Header.Get(name))
	}

	resp, err := route.handler.OnMessageArrived(r.Context(), route.endpointID, msg)
	if err != nil {
		var planned *expectation.ReplyFailure
		if errors.As(err, &planned) {
			w.Header().Set(FailureHeader, "planned")
			http.Error(w, planned.Err.Error(), route.failureStatus)
			return
		}
		w.Header().Set(FailureHeader, "error")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if resp == nil {
		resp = message.NewResponse(msg)
	}

	for name, value := range resp.Headers {
		w.Header().Set(name, value)
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(resp.Body)
}

// Start listens on addr (":0" picks a free port) and serves in the
// background. It returns the port.
func (s *HTTPFeeder) Start(addr string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return s.port, nil
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port
	s.httpServer = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.mu.Lock()
			s.shutdownError = err
			s.mu.Unlock()
			logging.Error("Transport", err, "http feeder stopped")
		}
	}()

	s.running = true
	logging.Info("Transport", "http feeder listening on port %d", s.port)
	return s.port, nil
}

// Stop gracefully shuts the listener down.
func (s *HTTPFeeder) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	shutdownCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.httpServer.Close()
		logging.Warn("Transport", "force closed http feeder: %v", err)
	}

	s.running = false
	s.httpServer = nil
	return nil
}

// Port returns the listening port, or 0 when not started.
func (s *HTTPFeeder) Port() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.port
}

// Err returns the error that stopped the server, if any.
func (s *HTTPFeeder) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shutdownError
}

// HTTPSender posts requests to target endpoints. Each endpoint id maps to a
// URL; replies with a FailureHeader or a 5xx status are reported as
// failures.
type HTTPSender struct {
	client  *http.Client
	mu      sync.RWMutex
	targets map[string]string
}

// NewHTTPSender creates a sender. A nil client uses a client with a 30s
// timeout.
func NewHTTPSender(client *http.Client, targets map[string]string) *HTTPSender {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	s := &HTTPSender{client: client, targets: make(map[string]string, len(targets))}
	for id, url := range targets {
		s.targets[id] = url
	}
	return s
}

// SetTarget maps endpointID to url.
func (s *HTTPSender) SetTarget(endpointID, url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets[endpointID] = url
}

// Send posts msg to the URL mapped for endpointID.
func (s *HTTPSender) Send(ctx context.Context, endpointID string, msg *message.Message) (*message.Message, error) {
	s.mu.RLock()
	url, ok := s.targets[endpointID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("http: %w %s", ErrNoRoute, endpointID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(msg.Body))
	if err != nil {
		return nil, fmt.Errorf("http: build request: %w", err)
	}
	for name, value := range msg.Headers {
		req.Header.Set(name, value)
	}

	res, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http: send to %s: %w", endpointID, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("http: read reply from %s: %w", endpointID, err)
	}

	if res.Header.Get(FailureHeader) != "" || res.StatusCode >= http.StatusInternalServerError {
		return nil, &FailureError{
			EndpointID: endpointID,
			Status:     res.StatusCode,
			Reason:     strings.TrimSpace(string(body)),
		}
	}

	reply := message.New(string(body))
	reply.EndpointID = endpointID
	reply.Status = res.StatusCode
	for name := range res.Header {
		reply.SetHeader(name, res.Header.Get(name))
	}
	return reply, nil
}

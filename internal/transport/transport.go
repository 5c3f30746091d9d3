// Package transport connects the engine to the outside world. A Sender
// delivers the test's requests to the endpoint under test; a Feeder makes
// stand-in endpoints reachable and hands every arrival to a Handler.
//
// Transports own framing only. Matching, ordering and replies are decided by
// the Handler, normally an *engine.Engine.
//
// Available kinds:
//
//	memory  in-process loopback, used by tests and dry runs
//	http    one URL path per endpoint, HTTP client sender
//	mcp     one MCP tool per endpoint over streamable HTTP
package transport

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"choreo/internal/expectation"
	"choreo/internal/message"
)

// Transport kinds.
const (
	KindMemory = "memory"
	KindHTTP   = "http"
	KindMCP    = "mcp"
)

// FailureHeader marks replies that carry a planned endpoint failure.
const FailureHeader = "X-Choreo-Failure"

// ErrNoRoute is returned when no handler is attached for an endpoint.
var ErrNoRoute = errors.New("no route to endpoint")

// Handler receives arrivals. *engine.Engine satisfies it.
type Handler interface {
	OnMessageArrived(ctx context.Context, endpointID string, msg *message.Message) (*message.Message, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, endpointID string, msg *message.Message) (*message.Message, error)

// OnMessageArrived calls f.
func (f HandlerFunc) OnMessageArrived(ctx context.Context, endpointID string, msg *message.Message) (*message.Message, error) {
	return f(ctx, endpointID, msg)
}

// Sender delivers a request to an endpoint and returns its synchronous reply.
// A non-nil error is the failure the caller observed.
type Sender interface {
	Send(ctx context.Context, endpointID string, msg *message.Message) (*message.Message, error)
}

// Feeder routes arrivals for attached endpoints to their handler. The
// returned detach function removes the route.
type Feeder interface {
	Kind() string
	Attach(endpointID string, cfg expectation.FeederConfig, h Handler) (detach func(), err error)
}

// FailureError is the failure a sender reports when the remote endpoint
// replied with a planned failure or a server error.
type FailureError struct {
	EndpointID string
	Status     int
	Reason     string
}

func (e *FailureError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("endpoint %s failed with status %d: %s", e.EndpointID, e.Status, e.Reason)
	}
	return fmt.Sprintf("endpoint %s failed: %s", e.EndpointID, e.Reason)
}

// Registry selects a feeder by kind. The zero kind resolves to the default.
type Registry struct {
	mu          sync.RWMutex
	feeders     map[string]Feeder
	defaultKind string
}

// NewRegistry creates a registry holding feeders. The first feeder becomes
// the default.
func NewRegistry(feeders ...Feeder) *Registry {
	r := &Registry{feeders: make(map[string]Feeder)}
	for _, f := range feeders {
		r.Register(f)
	}
	return r
}

// Register adds or replaces the feeder for its kind.
func (r *Registry) Register(f Feeder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.feeders[f.Kind()] = f
	if r.defaultKind == "" {
		r.defaultKind = f.Kind()
	}
}

// SetDefault selects the feeder used for definitions without a feeder kind.
func (r *Registry) SetDefault(kind string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.feeders[kind]; !ok {
		return fmt.Errorf("unknown feeder kind %q", kind)
	}
	r.defaultKind = kind
	return nil
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.feeders))
	for k := range r.feeders {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Feeder resolves cfg to a registered feeder.
func (r *Registry) Feeder(cfg *expectation.FeederConfig) (Feeder, expectation.FeederConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var resolved expectation.FeederConfig
	if cfg != nil {
		resolved = *cfg
	}
	if resolved.Kind == "" {
		resolved.Kind = r.defaultKind
	}
	f, ok := r.feeders[resolved.Kind]
	if !ok {
		return nil, resolved, fmt.Errorf("unknown feeder kind %q", resolved.Kind)
	}
	return f, resolved, nil
}

// AttachAll attaches h for every definition, each through the feeder its
// config selects. On error, endpoints attached so far are detached again.
func (r *Registry) AttachAll(defs []*expectation.Definition, h Handler) (detach func(), err error) {
	var detachers []func()
	detachAll := func() {
		for i := len(detachers) - 1; i >= 0; i-- {
			detachers[i]()
		}
	}

	for _, def := range defs {
		f, cfg, err := r.Feeder(def.FeederConfig())
		if err != nil {
			detachAll()
			return nil, fmt.Errorf("endpoint %s: %w", def.EndpointID(), err)
		}
		d, err := f.Attach(def.EndpointID(), cfg, h)
		if err != nil {
			detachAll()
			return nil, fmt.Errorf("endpoint %s: attach %s feeder: %w", def.EndpointID(), f.Kind(), err)
		}
		detachers = append(detachers, d)
	}
	return detachAll, nil
}

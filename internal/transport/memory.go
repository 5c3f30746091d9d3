package transport

import (
	"context"
	"fmt"
	"sync"

	"choreo/internal/expectation"
	"choreo/internal/message"
	"choreo/pkg/logging"
)

// Memory is an in-process loopback. It is both a Sender and a Feeder: the
// endpoint under test registers itself with Register and stand-ins are
// attached by the runner, so a fake system can call its collaborators
// through the same Memory it is reached by.
type Memory struct {
	mu     sync.RWMutex
	routes map[string]Handler
}

// NewMemory creates an empty loopback.
func NewMemory() *Memory {
	return &Memory{routes: make(map[string]Handler)}
}

// Kind returns KindMemory.
func (m *Memory) Kind() string { return KindMemory }

// Register routes endpointID to h until the returned function is called.
func (m *Memory) Register(endpointID string, h Handler) (unregister func()) {
	m.mu.Lock()
	m.routes[endpointID] = h
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.routes[endpointID] == h {
			delete(m.routes, endpointID)
		}
	}
}

// Attach registers h for endpointID. The config carries nothing the
// loopback needs.
func (m *Memory) Attach(endpointID string, _ expectation.FeederConfig, h Handler) (func(), error) {
	m.mu.RLock()
	_, taken := m.routes[endpointID]
	m.mu.RUnlock()
	if taken {
		return nil, fmt.Errorf("endpoint %s is already attached", endpointID)
	}
	logging.Debug("Transport", "memory: attached endpoint %s", endpointID)
	return m.Register(endpointID, h), nil
}

// Send delivers a copy of msg to the handler registered for endpointID.
func (m *Memory) Send(ctx context.Context, endpointID string, msg *message.Message) (*message.Message, error) {
	m.mu.RLock()
	h, ok := m.routes[endpointID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("memory: %w %s", ErrNoRoute, endpointID)
	}
	return h.OnMessageArrived(ctx, endpointID, msg.Clone())
}

// Endpoints returns the number of registered routes.
func (m *Memory) Endpoints() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.routes)
}

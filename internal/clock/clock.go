// Package clock abstracts time so that arrival timestamps and the bounded
// waits of a test run can be controlled in tests.
package clock

import (
	"context"
	"sync"
	"time"
)

// Clock provides the time operations used by the engine and the runner.
type Clock interface {
	// Now returns the current time according to this clock
	Now() time.Time
	// After returns a channel that receives the time once d has elapsed
	After(d time.Duration) <-chan time.Time
}

// Real implements Clock using the actual system time.
type Real struct{}

// Now returns the current time.
func (Real) Now() time.Time { return time.Now() }

// After waits for d on the system clock.
func (Real) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Mock implements Clock with a controllable time value. Waits never block:
// After advances the mock time by d and fires immediately, so a test run
// that would wait seconds completes at once while timestamps still move.
type Mock struct {
	mu      sync.RWMutex
	current time.Time
	waited  time.Duration
}

// NewMock creates a mock clock initialized to t.
// If t is zero, the clock is initialized to the current time.
func NewMock(t time.Time) *Mock {
	if t.IsZero() {
		t = time.Now()
	}
	return &Mock{current: t}
}

// Now returns the current time according to this mock clock.
func (m *Mock) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// After advances the clock by d and returns an already fired channel.
func (m *Mock) After(d time.Duration) <-chan time.Time {
	m.mu.Lock()
	if d > 0 {
		m.current = m.current.Add(d)
		m.waited += d
	}
	now := m.current
	m.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

// Advance moves the clock forward by the given duration.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.current.Add(d)
}

// Set sets the clock to a specific time.
func (m *Mock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = t
}

// Waited returns the total duration requested through After.
func (m *Mock) Waited() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.waited
}

// Sleep waits for d on c, returning early with the context error when ctx
// is done first.
func Sleep(ctx context.Context, c Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.After(d):
		return nil
	}
}

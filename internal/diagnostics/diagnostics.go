package diagnostics

import (
	"fmt"
	"sync"
	"time"

	"choreo/pkg/logging"

	"github.com/google/uuid"
)

// Severity separates build-time warnings from run-time anomalies.
type Severity string

const (
	// SeverityWarning is a non-fatal build-time observation
	SeverityWarning Severity = "warning"
	// SeverityAnomaly is a run-time observation about an arrival
	SeverityAnomaly Severity = "anomaly"
)

// Kind classifies a diagnostics entry.
type Kind string

const (
	// KindLenientOverride: a lenient pair replaced declared expectations
	KindLenientOverride Kind = "lenient_override"
	// KindTruncated: declared groups exceeded the expected message count
	KindTruncated Kind = "truncated"
	// KindDefaultResponse: a default response matcher was substituted
	KindDefaultResponse Kind = "default_response"

	// KindUnexpected: an arrival after every slot was consumed
	KindUnexpected Kind = "unexpected"
	// KindOutOfOrder: an arrival at a node whose predecessors are not satisfied
	KindOutOfOrder Kind = "out_of_order"
	// KindMismatch: the arrival did not satisfy the slot's matchers
	KindMismatch Kind = "mismatch"
	// KindUnknownEndpoint: an arrival at an endpoint without expectations
	KindUnknownEndpoint Kind = "unknown_endpoint"
	// KindResponderFailed: a responder returned an unplanned error
	KindResponderFailed Kind = "responder_failed"
	// KindMissingMessages: fewer arrivals than expected at assertion time
	KindMissingMessages Kind = "missing_messages"
	// KindMissingFailure: a failure reply was expected but never observed
	KindMissingFailure Kind = "missing_failure"
	// KindReplyRejected: a synchronous reply failed validation
	KindReplyRejected Kind = "reply_rejected"
)

// Entry is one recorded observation.
type Entry struct {
	ID         string    `json:"id"`
	Time       time.Time `json:"time"`
	Severity   Severity  `json:"severity"`
	Kind       Kind      `json:"kind"`
	EndpointID string    `json:"endpoint_id,omitempty"`
	MessageID  string    `json:"message_id,omitempty"`
	// Slot is the logical message position, -1 when not applicable
	Slot int `json:"slot"`
	// Invalidating reports whether the entry cleared the endpoint's validity
	Invalidating bool   `json:"invalidating"`
	Detail       string `json:"detail"`
}

// String renders the entry on one line.
func (e Entry) String() string {
	where := e.EndpointID
	if e.Slot >= 0 {
		where = fmt.Sprintf("%s#%d", e.EndpointID, e.Slot+1)
	}
	if where == "" {
		return fmt.Sprintf("[%s] %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Kind, where, e.Detail)
}

// Collector accumulates warnings and anomalies. It is threaded explicitly
// through build and run-time calls so that callers inspect what happened
// instead of scraping logs. A nil *Collector is valid and only logs.
type Collector struct {
	mu      sync.Mutex
	entries []Entry
	now     func() time.Time
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{now: time.Now}
}

// NewCollectorWithClock creates a collector that timestamps entries with now.
func NewCollectorWithClock(now func() time.Time) *Collector {
	if now == nil {
		now = time.Now
	}
	return &Collector{now: now}
}

// Warn records a build-time warning.
func (c *Collector) Warn(endpointID string, kind Kind, format string, args ...interface{}) {
	detail := fmt.Sprintf(format, args...)
	logging.Warn("Diagnostics", "%s: %s", endpointID, detail)
	c.add(Entry{
		Severity:   SeverityWarning,
		Kind:       kind,
		EndpointID: endpointID,
		Slot:       -1,
		Detail:     detail,
	})
}

// Record stores a run-time anomaly and returns it with ID and time filled in.
func (c *Collector) Record(e Entry) Entry {
	if e.Severity == "" {
		e.Severity = SeverityAnomaly
	}
	logging.Debug("Diagnostics", "%s", e.String())
	return c.add(e)
}

func (c *Collector) add(e Entry) Entry {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if c == nil {
		if e.Time.IsZero() {
			e.Time = time.Now()
		}
		return e
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e.Time.IsZero() {
		e.Time = c.now()
	}
	c.entries = append(c.entries, e)
	return e
}

// Entries returns a copy of every recorded entry in recording order.
func (c *Collector) Entries() []Entry {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Warnings returns the build-time warnings.
func (c *Collector) Warnings() []Entry {
	return c.filter(func(e Entry) bool { return e.Severity == SeverityWarning })
}

// Anomalies returns the run-time anomalies.
func (c *Collector) Anomalies() []Entry {
	return c.filter(func(e Entry) bool { return e.Severity == SeverityAnomaly })
}

// ForEndpoint returns every entry recorded for the endpoint.
func (c *Collector) ForEndpoint(endpointID string) []Entry {
	return c.filter(func(e Entry) bool { return e.EndpointID == endpointID })
}

// Len returns the number of recorded entries.
func (c *Collector) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Collector) filter(keep func(Entry) bool) []Entry {
	var out []Entry
	for _, e := range c.Entries() {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

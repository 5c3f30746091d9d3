package diagnostics

import (
	"fmt"
	"strings"
)

// EndpointReport summarizes one endpoint at assertion time.
type EndpointReport struct {
	EndpointID   string  `json:"endpoint_id"`
	OrderingType string  `json:"ordering_type"`
	Lenient      bool    `json:"lenient"`
	Expected     int     `json:"expected"`
	Received     int64   `json:"received"`
	Consumed     int     `json:"consumed"`
	Valid        bool    `json:"valid"`
	Anomalies    []Entry `json:"anomalies,omitempty"`
}

// Pending returns the number of expected messages not yet consumed.
func (r EndpointReport) Pending() int {
	if r.Lenient {
		return 0
	}
	if p := r.Expected - r.Consumed; p > 0 {
		return p
	}
	return 0
}

// Satisfied reports whether this endpoint alone passes.
func (r EndpointReport) Satisfied() bool {
	return r.Valid && r.Pending() == 0
}

// Report is the aggregated verdict of one specification part.
type Report struct {
	RunID       string           `json:"run_id"`
	Description string           `json:"description,omitempty"`
	Satisfied   bool             `json:"satisfied"`
	Endpoints   []EndpointReport `json:"endpoints"`
	// Failures holds specification-level findings not tied to an endpoint
	Failures []Entry `json:"failures,omitempty"`
	Warnings []Entry `json:"warnings,omitempty"`
}

// AnomalyCount counts every anomaly across endpoints and failures.
func (r *Report) AnomalyCount() int {
	n := len(r.Failures)
	for _, ep := range r.Endpoints {
		n += len(ep.Anomalies)
	}
	return n
}

// Endpoint returns the report for the endpoint, if present.
func (r *Report) Endpoint(endpointID string) (EndpointReport, bool) {
	for _, ep := range r.Endpoints {
		if ep.EndpointID == endpointID {
			return ep, true
		}
	}
	return EndpointReport{}, false
}

// Summary returns a single line verdict.
func (r *Report) Summary() string {
	failing := 0
	for _, ep := range r.Endpoints {
		if !ep.Satisfied() {
			failing++
		}
	}
	if r.Satisfied {
		return fmt.Sprintf("satisfied: %d endpoint(s), %d anomaly(ies)", len(r.Endpoints), r.AnomalyCount())
	}
	return fmt.Sprintf("unsatisfied: %d of %d endpoint(s) failing, %d anomaly(ies)", failing, len(r.Endpoints), r.AnomalyCount())
}

// String renders the full report as plain text.
func (r *Report) String() string {
	var b strings.Builder
	b.WriteString(r.Summary())
	b.WriteString("\n")
	for _, ep := range r.Endpoints {
		status := "ok"
		if !ep.Satisfied() {
			status = "FAILED"
		}
		mode := ep.OrderingType
		if ep.Lenient {
			mode = "lenient"
		}
		fmt.Fprintf(&b, "  %s [%s] expected=%d received=%d consumed=%d %s\n",
			ep.EndpointID, mode, ep.Expected, ep.Received, ep.Consumed, status)
		for _, a := range ep.Anomalies {
			fmt.Fprintf(&b, "    - %s\n", a.String())
		}
	}
	for _, f := range r.Failures {
		fmt.Fprintf(&b, "  ! %s\n", f.String())
	}
	return b.String()
}

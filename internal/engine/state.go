package engine

import (
	"sync"
	"sync/atomic"

	"choreo/internal/diagnostics"
	"choreo/internal/expectation"
	"choreo/internal/message"
	"choreo/internal/ordering"
)

// endpointState is the mutable run-time state of one endpoint. Slots are
// never removed; consumption flips a bit in the consumed bitmap.
type endpointState struct {
	mu sync.Mutex

	def        *expectation.Definition
	lenient    *expectation.Lenient
	matchers   [][]message.Matcher
	responders [][]message.Responder
	nodes      []ordering.NodeID

	consumed      []bool
	consumedCount int
	lenientIndex  int
	valid         bool
	anomalies     []diagnostics.Entry

	arrivals atomic.Int64
}

func newEndpointState(def *expectation.Definition, forest *ordering.Forest) *endpointState {
	n := def.ExpectedMessageCount()
	return &endpointState{
		def:        def,
		lenient:    def.Lenient(),
		matchers:   def.Matchers(),
		responders: def.Responders(),
		nodes:      forest.NodesFor(def.EndpointID()),
		consumed:   make([]bool, n),
		valid:      true,
	}
}

// slots returns the number of expected message slots.
func (s *endpointState) slots() int { return len(s.consumed) }

// pending returns the number of unconsumed slots. Callers hold mu.
func (s *endpointState) pending() int { return s.slots() - s.consumedCount }

// head returns the first unconsumed slot, or -1. Callers hold mu.
func (s *endpointState) head() int {
	for i, c := range s.consumed {
		if !c {
			return i
		}
	}
	return -1
}

// node returns the forest node of a slot.
func (s *endpointState) node(slot int) ordering.NodeID {
	if slot < 0 || slot >= len(s.nodes) {
		return ordering.NoNode
	}
	return s.nodes[slot]
}

// orphanedNodes returns the forest nodes of the endpoint that have no slot.
func (s *endpointState) orphanedNodes() []ordering.NodeID {
	if len(s.nodes) <= s.slots() {
		return nil
	}
	return s.nodes[s.slots():]
}

// consume marks a slot consumed in the bitmap and in the tracker.
// Callers hold mu.
func (s *endpointState) consume(slot int, tracker *ordering.Tracker) {
	if s.consumed[slot] {
		return
	}
	s.consumed[slot] = true
	s.consumedCount++
	tracker.Consume(s.node(slot))
}

func (s *endpointState) report() diagnostics.EndpointReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return diagnostics.EndpointReport{
		EndpointID:   s.def.EndpointID(),
		OrderingType: s.def.OrderingType().String(),
		Lenient:      s.lenient != nil,
		Expected:     s.slots(),
		Received:     s.arrivals.Load(),
		Consumed:     s.consumedCount,
		Valid:        s.valid,
		Anomalies:    append([]diagnostics.Entry(nil), s.anomalies...),
	}
}

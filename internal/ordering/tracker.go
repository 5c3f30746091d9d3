package ordering

import (
	"sync/atomic"

	"choreo/internal/expectation"
)

// Tracker holds the run-time consumed state of every forest node. The forest
// itself is shared read-only; each flag is updated atomically.
type Tracker struct {
	forest   *Forest
	consumed []atomic.Bool
}

// NewTracker creates a tracker with every node unconsumed.
func NewTracker(f *Forest) *Tracker {
	return &Tracker{
		forest:   f,
		consumed: make([]atomic.Bool, f.Len()),
	}
}

// Forest returns the tracked forest.
func (t *Tracker) Forest() *Forest { return t.forest }

// Eligible reports whether the node may accept a message now.
func (t *Tracker) Eligible(id NodeID) bool {
	n, ok := t.forest.Node(id)
	if !ok {
		return false
	}
	if n.Ordering == expectation.OrderingNone {
		return true
	}
	for _, a := range t.forest.Ancestors(id) {
		if !t.consumed[a].Load() {
			return false
		}
	}
	return true
}

// Blockers returns the unconsumed ancestors preventing the node from being
// eligible, nearest first.
func (t *Tracker) Blockers(id NodeID) []Node {
	n, ok := t.forest.Node(id)
	if !ok || n.Ordering == expectation.OrderingNone {
		return nil
	}
	var out []Node
	for _, a := range t.forest.Ancestors(id) {
		if !t.consumed[a].Load() {
			node, _ := t.forest.Node(a)
			out = append(out, node)
		}
	}
	return out
}

// Consume marks the node consumed. It returns false when the node was
// already consumed or does not exist.
func (t *Tracker) Consume(id NodeID) bool {
	if id < 0 || int(id) >= len(t.consumed) {
		return false
	}
	return t.consumed[id].CompareAndSwap(false, true)
}

// IsConsumed reports whether the node has been consumed.
func (t *Tracker) IsConsumed(id NodeID) bool {
	if id < 0 || int(id) >= len(t.consumed) {
		return false
	}
	return t.consumed[id].Load()
}

// Pending returns the number of unconsumed nodes.
func (t *Tracker) Pending() int {
	n := 0
	for i := range t.consumed {
		if !t.consumed[i].Load() {
			n++
		}
	}
	return n
}

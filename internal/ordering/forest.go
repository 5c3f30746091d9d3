package ordering

import (
	"fmt"

	"choreo/internal/expectation"
)

// NodeID is the index of a node inside the forest arena.
type NodeID int

// NoNode marks the absence of a node (no parent, no leaf).
const NoNode NodeID = -1

// Node is one message slot of one endpoint.
type Node struct {
	ID         NodeID
	EndpointID string
	// Slot is the zero-based position within the endpoint's expectation
	Slot     int
	Ordering expectation.OrderingType
	Parent   NodeID
	Children []NodeID
}

// IsRoot reports whether the node has no predecessor.
func (n Node) IsRoot() bool { return n.Parent == NoNode }

// Label renders the node as "endpoint#slot" with a one-based slot.
func (n Node) Label() string {
	return fmt.Sprintf("%s#%d", n.EndpointID, n.Slot+1)
}

// Builder grows a forest one expectation declaration at a time. It is not
// safe for concurrent use; forests are built during test authoring.
type Builder struct {
	nodes      []Node
	roots      []NodeID
	leaf       NodeID
	byEndpoint map[string][]NodeID
}

// NewBuilder returns an empty forest builder.
func NewBuilder() *Builder {
	return &Builder{
		leaf:       NoNode,
		byEndpoint: make(map[string][]NodeID),
	}
}

// Append adds one node per slot in [fromSlot, toSlot) for the endpoint.
// Slots already present are never restructured; callers pass only the slots
// a merge added.
func (b *Builder) Append(endpointID string, ordering expectation.OrderingType, fromSlot, toSlot int) []NodeID {
	var added []NodeID
	for slot := fromSlot; slot < toSlot; slot++ {
		id := NodeID(len(b.nodes))
		node := Node{
			ID:         id,
			EndpointID: endpointID,
			Slot:       slot,
			Ordering:   ordering,
			Parent:     NoNode,
		}

		// NONE slots are always fresh roots
		if ordering != expectation.OrderingNone {
			node.Parent = b.leaf
		}

		b.nodes = append(b.nodes, node)
		if node.Parent == NoNode {
			b.roots = append(b.roots, id)
		} else {
			parent := &b.nodes[node.Parent]
			parent.Children = append(parent.Children, id)
		}
		if ordering == expectation.OrderingTotal {
			b.leaf = id
		}
		b.byEndpoint[endpointID] = append(b.byEndpoint[endpointID], id)
		added = append(added, id)
	}
	return added
}

// Len returns the number of nodes appended so far.
func (b *Builder) Len() int { return len(b.nodes) }

// Build returns an immutable snapshot of the forest. The builder may keep
// growing afterwards without affecting the snapshot.
func (b *Builder) Build() *Forest {
	f := &Forest{
		nodes:      make([]Node, len(b.nodes)),
		roots:      append([]NodeID(nil), b.roots...),
		byEndpoint: make(map[string][]NodeID, len(b.byEndpoint)),
	}
	for i, n := range b.nodes {
		n.Children = append([]NodeID(nil), n.Children...)
		f.nodes[i] = n
	}
	for ep, ids := range b.byEndpoint {
		f.byEndpoint[ep] = append([]NodeID(nil), ids...)
	}
	return f
}

// Forest is the frozen precedence structure of one test part.
type Forest struct {
	nodes      []Node
	roots      []NodeID
	byEndpoint map[string][]NodeID
}

// Len returns the number of nodes.
func (f *Forest) Len() int {
	if f == nil {
		return 0
	}
	return len(f.nodes)
}

// Node returns the node with the given id.
func (f *Forest) Node(id NodeID) (Node, bool) {
	if f == nil || id < 0 || int(id) >= len(f.nodes) {
		return Node{}, false
	}
	n := f.nodes[id]
	n.Children = append([]NodeID(nil), n.Children...)
	return n, true
}

// Roots returns the root nodes in declaration order.
func (f *Forest) Roots() []Node {
	if f == nil {
		return nil
	}
	out := make([]Node, 0, len(f.roots))
	for _, id := range f.roots {
		n, _ := f.Node(id)
		out = append(out, n)
	}
	return out
}

// Children returns the direct children of a node in declaration order.
func (f *Forest) Children(id NodeID) []Node {
	n, ok := f.Node(id)
	if !ok {
		return nil
	}
	out := make([]Node, 0, len(n.Children))
	for _, c := range n.Children {
		child, _ := f.Node(c)
		out = append(out, child)
	}
	return out
}

// NodeFor returns the node of an endpoint's slot.
func (f *Forest) NodeFor(endpointID string, slot int) (NodeID, bool) {
	if f == nil {
		return NoNode, false
	}
	ids := f.byEndpoint[endpointID]
	if slot < 0 || slot >= len(ids) {
		return NoNode, false
	}
	return ids[slot], true
}

// NodesFor returns every node of the endpoint in slot order.
func (f *Forest) NodesFor(endpointID string) []NodeID {
	if f == nil {
		return nil
	}
	return append([]NodeID(nil), f.byEndpoint[endpointID]...)
}

// Ancestors returns the path from the node's parent up to its root.
func (f *Forest) Ancestors(id NodeID) []NodeID {
	var path []NodeID
	n, ok := f.Node(id)
	for ok && n.Parent != NoNode {
		path = append(path, n.Parent)
		n, ok = f.Node(n.Parent)
	}
	return path
}

// Walk visits every node depth first, starting at each root in order.
// Returning false from visit skips the node's subtree.
func (f *Forest) Walk(visit func(n Node, depth int) bool) {
	if f == nil {
		return
	}
	var walk func(id NodeID, depth int)
	walk = func(id NodeID, depth int) {
		n, _ := f.Node(id)
		if !visit(n, depth) {
			return
		}
		for _, c := range n.Children {
			walk(c, depth+1)
		}
	}
	for _, r := range f.roots {
		walk(r, 0)
	}
}

package formatting

import (
	"encoding/json"
	"fmt"

	"choreo/internal/ordering"
)

// PrettyJSON indents v as JSON, or prints it with %v when it has no JSON
// form.
func PrettyJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// ForestNode is the serializable form of an ordering node
type ForestNode struct {
	Endpoint string       `json:"endpoint" yaml:"endpoint"`
	Slot     int          `json:"slot" yaml:"slot"` // one-based
	Ordering string       `json:"ordering" yaml:"ordering"`
	Children []ForestNode `json:"children,omitempty" yaml:"children,omitempty"`
}

// ForestTree converts a forest into nested nodes, one tree per root.
func ForestTree(f *ordering.Forest) []ForestNode {
	var build func(n ordering.Node) ForestNode
	build = func(n ordering.Node) ForestNode {
		out := ForestNode{Endpoint: n.EndpointID, Slot: n.Slot + 1, Ordering: n.Ordering.String()}
		for _, c := range f.Children(n.ID) {
			out.Children = append(out.Children, build(c))
		}
		return out
	}

	trees := make([]ForestNode, 0)
	for _, r := range f.Roots() {
		trees = append(trees, build(r))
	}
	return trees
}

// nodeLabel renders a node as "endpoint#slot (ordering)"
func nodeLabel(n ordering.Node) string {
	return fmt.Sprintf("%s (%s)", n.Label(), n.Ordering)
}

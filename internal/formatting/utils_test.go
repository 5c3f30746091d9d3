package formatting

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"choreo/internal/expectation"
	"choreo/internal/ordering"
)

func TestPrettyJSON(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{name: "forest node", input: ForestNode{Endpoint: "a", Slot: 1, Ordering: "total"}, want: "{\n  \"endpoint\": \"a\",\n  \"slot\": 1,\n  \"ordering\": \"total\"\n}"},
		{name: "empty slice", input: []ForestNode{}, want: "[]"},
		{name: "nil", input: nil, want: "null"},
		{name: "unencodable falls back to %v", input: func() {}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PrettyJSON(tt.input)
			if tt.want == "" {
				assert.Contains(t, got, "0x")
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNodeLabel(t *testing.T) {
	n := ordering.Node{EndpointID: "payments", Slot: 0, Ordering: expectation.OrderingTotal}
	assert.Equal(t, "payments#1 (total)", nodeLabel(n))
}

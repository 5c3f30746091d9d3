package ordering

import (
	"sync"
	"testing"

	"choreo/internal/expectation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func labels(nodes []Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Label())
	}
	return out
}

func TestBuilder_ForestShape(t *testing.T) {
	b := NewBuilder()
	b.Append("a", expectation.OrderingTotal, 0, 1)
	b.Append("b", expectation.OrderingPartial, 0, 1)
	b.Append("c", expectation.OrderingTotal, 0, 1)
	b.Append("d", expectation.OrderingNone, 0, 1)
	f := b.Build()

	require.Equal(t, 4, f.Len())
	assert.Equal(t, []string{"a#1", "d#1"}, labels(f.Roots()))

	a, _ := f.NodeFor("a", 0)
	assert.Equal(t, []string{"b#1", "c#1"}, labels(f.Children(a)))

	c, _ := f.NodeFor("c", 0)
	assert.Empty(t, f.Children(c))
	assert.Equal(t, []NodeID{a}, f.Ancestors(c))

	d, _ := f.NodeFor("d", 0)
	dn, _ := f.Node(d)
	assert.True(t, dn.IsRoot())
}

func TestBuilder_PartialSlotsAreSiblings(t *testing.T) {
	b := NewBuilder()
	b.Append("a", expectation.OrderingTotal, 0, 1)
	b.Append("b", expectation.OrderingPartial, 0, 2)
	b.Append("c", expectation.OrderingPartial, 0, 1)
	f := b.Build()

	a, _ := f.NodeFor("a", 0)
	assert.Equal(t, []string{"b#1", "b#2", "c#1"}, labels(f.Children(a)))
}

func TestBuilder_TotalSlotsChain(t *testing.T) {
	b := NewBuilder()
	b.Append("a", expectation.OrderingTotal, 0, 3)
	f := b.Build()

	var depths []int
	f.Walk(func(n Node, depth int) bool {
		depths = append(depths, depth)
		return true
	})
	assert.Equal(t, []int{0, 1, 2}, depths)
}

func TestBuilder_PartialWithoutLeafIsRoot(t *testing.T) {
	b := NewBuilder()
	b.Append("b", expectation.OrderingPartial, 0, 2)
	f := b.Build()

	assert.Equal(t, []string{"b#1", "b#2"}, labels(f.Roots()))
}

func TestBuilder_IncrementalAppendNeverRestructures(t *testing.T) {
	b := NewBuilder()
	b.Append("a", expectation.OrderingTotal, 0, 1)
	first := b.Build()

	b.Append("b", expectation.OrderingTotal, 0, 1)
	// merged declaration for a adds its second slot only
	b.Append("a", expectation.OrderingTotal, 1, 2)
	second := b.Build()

	assert.Equal(t, 1, first.Len())
	assert.Equal(t, 3, second.Len())

	a0, _ := second.NodeFor("a", 0)
	a1, _ := second.NodeFor("a", 1)
	bn, _ := second.NodeFor("b", 0)
	assert.Equal(t, []NodeID{bn, a0}, second.Ancestors(a1))
	assert.Equal(t, []NodeID{a0, a1}, second.NodesFor("a"))
}

func TestTracker_Eligibility(t *testing.T) {
	b := NewBuilder()
	b.Append("a", expectation.OrderingTotal, 0, 1)
	b.Append("b", expectation.OrderingPartial, 0, 1)
	b.Append("c", expectation.OrderingTotal, 0, 1)
	b.Append("d", expectation.OrderingNone, 0, 1)
	f := b.Build()
	tr := NewTracker(f)

	a, _ := f.NodeFor("a", 0)
	bn, _ := f.NodeFor("b", 0)
	c, _ := f.NodeFor("c", 0)
	d, _ := f.NodeFor("d", 0)

	assert.True(t, tr.Eligible(a))
	assert.False(t, tr.Eligible(bn))
	assert.False(t, tr.Eligible(c))
	assert.True(t, tr.Eligible(d))
	assert.Equal(t, []string{"a#1"}, labels(tr.Blockers(c)))

	require.True(t, tr.Consume(a))
	assert.False(t, tr.Consume(a), "second consume must fail")

	assert.True(t, tr.Eligible(bn))
	assert.True(t, tr.Eligible(c))
	assert.Empty(t, tr.Blockers(c))
	assert.Equal(t, 3, tr.Pending())
}

func TestTracker_UnknownNode(t *testing.T) {
	tr := NewTracker(NewBuilder().Build())

	assert.False(t, tr.Eligible(0))
	assert.False(t, tr.Consume(NoNode))
	assert.False(t, tr.IsConsumed(5))
}

func TestTracker_ConcurrentConsume(t *testing.T) {
	b := NewBuilder()
	b.Append("a", expectation.OrderingNone, 0, 1)
	tr := NewTracker(b.Build())

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tr.Consume(0) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

package partition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministic(t *testing.T) {
	nodes := []string{"b:1", "a:1", "c:1"}

	p1 := New(nodes, 2, "a:1")
	p2 := New(nodes, 2, "c:1")

	a1 := p1.For("news", Topic)
	a2 := p2.For("news", Topic)

	assert.Equal(t, a1.Primary, a2.Primary)
	assert.Equal(t, a1.Secondaries, a2.Secondaries)
}

func TestTopicAndQueueDiffer(t *testing.T) {
	nodes := []string{"n1:1", "n2:1", "n3:1", "n4:1"}
	p := New(nodes, 1, "n1:1")

	var sawDifference bool
	for _, name := range []string{"alpha", "beta", "gamma", "delta", "epsilon"} {
		topicAssign := p.For(name, Topic)
		queueAssign := p.For(name, Queue)
		if topicAssign.Primary != queueAssign.Primary {
			sawDifference = true
		}
	}
	assert.True(t, sawDifference, "at least one name should map differently for topic vs queue")
}

func TestReplicationFactorOne(t *testing.T) {
	nodes := []string{"n1:1", "n2:1", "n3:1"}
	p := New(nodes, 1, "n1:1")
	a := p.For("solo", Topic)
	assert.Empty(t, a.Secondaries)
	assert.Len(t, a.AllResponsible(), 1)
}

func TestReplicationFactorCoversAllNodes(t *testing.T) {
	nodes := []string{"n1:1", "n2:1", "n3:1"}
	p := New(nodes, 10, "n1:1") // R >= N clamps to N
	a := p.For("everyone", Topic)
	require.Len(t, a.AllResponsible(), 3)
	assert.True(t, a.IsResponsible())
}

func TestIsPrimaryIsSecondaryExclusiveOrNeither(t *testing.T) {
	nodes := []string{"n1:1", "n2:1", "n3:1", "n4:1", "n5:1"}
	for _, self := range nodes {
		p := New(nodes, 2, self)
		a := p.For("some-topic", Topic)
		if a.IsPrimary {
			assert.False(t, a.IsSecondary)
		}
	}
}

func TestSameInputsSameOutputRegardlessOfInputOrder(t *testing.T) {
	a := New([]string{"z:1", "y:1", "x:1"}, 2, "x:1").For("q1", Queue)
	b := New([]string{"x:1", "y:1", "z:1"}, 2, "x:1").For("q1", Queue)
	assert.Equal(t, a, b)
}

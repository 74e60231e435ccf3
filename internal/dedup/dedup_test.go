package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeenOrRememberBreaksCycle(t *testing.T) {
	s := New()
	assert.False(t, s.SeenOrRemember(Topic, "news", "alice\x00hi"))
	assert.True(t, s.SeenOrRemember(Topic, "news", "alice\x00hi"))
}

func TestSeenOrRememberDistinguishesKindAndPayload(t *testing.T) {
	s := New()
	assert.False(t, s.SeenOrRemember(Topic, "news", "alice\x00hi"))
	assert.False(t, s.SeenOrRemember(Queue, "news", "alice\x00hi"))
	assert.False(t, s.SeenOrRemember(Topic, "news", "alice\x00bye"))
}

func TestNewSizedEvictsOldest(t *testing.T) {
	s := NewSized(2)
	s.SeenOrRemember(Topic, "a", "x")
	s.SeenOrRemember(Topic, "b", "x")
	s.SeenOrRemember(Topic, "c", "x") // evicts "a"

	assert.False(t, s.SeenOrRemember(Topic, "a", "x"), "a should have been evicted and re-recorded")
	assert.True(t, s.SeenOrRemember(Topic, "c", "x"))
}

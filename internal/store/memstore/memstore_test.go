package memstore

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mombroker/mom/internal/store"
)

func TestCreateTopicAlreadyExists(t *testing.T) {
	s := New()
	require.NoError(t, s.CreateTopic("news", "alice"))
	assert.ErrorIs(t, s.CreateTopic("news", "alice"), store.ErrAlreadyExists)
}

func TestAppendTopicMessageNotFound(t *testing.T) {
	s := New()
	assert.ErrorIs(t, s.AppendTopicMessage("nope", "alice", "hi"), store.ErrNotFound)
}

func TestTopicMessagesOrdered(t *testing.T) {
	s := New()
	require.NoError(t, s.CreateTopic("news", "alice"))
	require.NoError(t, s.AppendTopicMessage("news", "alice", "m1"))
	require.NoError(t, s.AppendTopicMessage("news", "alice", "m2"))
	require.NoError(t, s.AppendTopicMessage("news", "alice", "m3"))

	msgs, err := s.ReadTopicMessages("news")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "m1", msgs[0].Content)
	assert.Equal(t, "m2", msgs[1].Content)
	assert.Equal(t, "m3", msgs[2].Content)
}

func TestDeleteTopicIdempotent(t *testing.T) {
	s := New()
	assert.NoError(t, s.DeleteTopic("never-existed"))
	require.NoError(t, s.CreateTopic("t1", "alice"))
	assert.NoError(t, s.DeleteTopic("t1"))
	assert.NoError(t, s.DeleteTopic("t1"))
	_, err := s.GetTopic("t1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// TestQueueAtMostOnce is property P2: under k enqueued messages and
// concurrent consumers, each message is delivered to at most one
// caller and a call past the last message returns nil, nil.
func TestQueueAtMostOnce(t *testing.T) {
	s := New()
	require.NoError(t, s.CreateQueue("work", "alice"))
	for _, c := range []string{"m1", "m2", "m3"} {
		require.NoError(t, s.Enqueue("work", "alice", c))
	}

	const consumers = 6
	var wg sync.WaitGroup
	results := make(chan *store.QueueMessage, consumers)
	for i := 0; i < consumers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg, err := s.PopQueue("work")
			require.NoError(t, err)
			results <- msg
		}()
	}
	wg.Wait()
	close(results)

	var delivered []string
	var empties int
	for msg := range results {
		if msg == nil {
			empties++
			continue
		}
		delivered = append(delivered, msg.Content)
	}

	assert.ElementsMatch(t, []string{"m1", "m2", "m3"}, delivered)
	assert.Equal(t, consumers-3, empties)
}

func TestPopQueueEmpty(t *testing.T) {
	s := New()
	require.NoError(t, s.CreateQueue("empty", "alice"))
	msg, err := s.PopQueue("empty")
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestCreateUserDuplicate(t *testing.T) {
	s := New()
	require.NoError(t, s.CreateUser("alice", "hash"))
	assert.ErrorIs(t, s.CreateUser("alice", "hash2"), store.ErrAlreadyExists)
}

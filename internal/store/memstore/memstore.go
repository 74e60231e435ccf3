// Package memstore is an in-memory store.Store used by tests and by
// local single-process experimentation. It is not durable.
package memstore

import (
	"sort"
	"sync"

	"github.com/mombroker/mom/internal/store"
)

// Store is a mutex-guarded in-memory implementation of store.Store.
type Store struct {
	mu sync.Mutex

	users map[string]*store.User

	topics    map[string]*store.Topic
	topicMsgs map[string][]store.TopicMessage
	topicNext int64

	queues    map[string]*store.Queue
	queueMsgs map[string][]store.QueueMessage
	queueNext int64
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		users:     make(map[string]*store.User),
		topics:    make(map[string]*store.Topic),
		topicMsgs: make(map[string][]store.TopicMessage),
		queues:    make(map[string]*store.Queue),
		queueMsgs: make(map[string][]store.QueueMessage),
	}
}

func (s *Store) CreateUser(username, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return store.ErrAlreadyExists
	}
	s.users[username] = &store.User{Username: username, PasswordHash: passwordHash}
	return nil
}

func (s *Store) GetUser(username string) (*store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) ListUsers() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.users))
	for name := range s.users {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) CreateTopic(name, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.topics[name]; ok {
		return store.ErrAlreadyExists
	}
	s.topics[name] = &store.Topic{Name: name, Owner: owner}
	return nil
}

func (s *Store) DeleteTopic(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.topics, name)
	delete(s.topicMsgs, name)
	return nil
}

func (s *Store) GetTopic(name string) (*store.Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.topics[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *Store) ListTopics() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.topics))
	for name := range s.topics {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) AppendTopicMessage(name, sender, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.topics[name]; !ok {
		return store.ErrNotFound
	}
	s.topicNext++
	s.topicMsgs[name] = append(s.topicMsgs[name], store.TopicMessage{
		ID:        s.topicNext,
		TopicName: name,
		Sender:    sender,
		Content:   content,
	})
	return nil
}

func (s *Store) ReadTopicMessages(name string) ([]store.TopicMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.topics[name]; !ok {
		return nil, store.ErrNotFound
	}
	msgs := s.topicMsgs[name]
	out := make([]store.TopicMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *Store) CreateQueue(name, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.queues[name]; ok {
		return store.ErrAlreadyExists
	}
	s.queues[name] = &store.Queue{Name: name, Owner: owner}
	return nil
}

func (s *Store) DeleteQueue(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.queues, name)
	delete(s.queueMsgs, name)
	return nil
}

func (s *Store) GetQueue(name string) (*store.Queue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *q
	return &cp, nil
}

func (s *Store) ListQueues() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.queues))
	for name := range s.queues {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) Enqueue(name, sender, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.queues[name]; !ok {
		return store.ErrNotFound
	}
	s.queueNext++
	s.queueMsgs[name] = append(s.queueMsgs[name], store.QueueMessage{
		ID:        s.queueNext,
		QueueName: name,
		Sender:    sender,
		Content:   content,
	})
	return nil
}

// PopQueue removes and returns the oldest message. The caller holding
// s.mu for the whole read-modify-write is what makes this atomic under
// concurrent goroutines, mirroring the transactional guarantee sqlstore
// gets from a single SELECT ... FOR UPDATE + DELETE.
func (s *Store) PopQueue(name string) (*store.QueueMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.queues[name]; !ok {
		return nil, store.ErrNotFound
	}
	msgs := s.queueMsgs[name]
	if len(msgs) == 0 {
		return nil, nil
	}
	head := msgs[0]
	s.queueMsgs[name] = msgs[1:]
	return &head, nil
}

func (s *Store) Close() error { return nil }

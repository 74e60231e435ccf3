// Package initsync implements the Initial Sync component of spec.md
// §4.5: on startup, a node asks every configured peer for its topic
// and queue catalogs and creates locally whatever it is missing,
// owned by the synthetic system principal. Message convergence is left
// to subsequent replication; sync only reconciles names.
package initsync

import (
	"errors"
	"sync"

	"github.com/mombroker/mom/internal/authn"
	"github.com/mombroker/mom/internal/logging"
	"github.com/mombroker/mom/internal/replication"
	"github.com/mombroker/mom/internal/store"
)

// Syncer runs the one-shot reconciliation on startup.
type Syncer struct {
	self  string
	peers []string
	store store.Store
	repl  *replication.Client
	log   *logging.Logger
}

// New builds a Syncer. nodes is the full configured node set including
// self; self is excluded automatically.
func New(self string, nodes []string, st store.Store, rc *replication.Client) *Syncer {
	peers := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if n != self {
			peers = append(peers, n)
		}
	}
	return &Syncer{self: self, peers: peers, store: st, repl: rc, log: logging.New("initsync")}
}

// Run contacts every peer, best-effort, and creates any topic/queue
// name this node is missing with owner=system. Each peer is contacted
// concurrently, and each list call to it has a 3 s budget (enforced by
// the replication client), so one unreachable peer cannot stall the others.
func (s *Syncer) Run() {
	var wg sync.WaitGroup
	for _, peer := range s.peers {
		wg.Add(1)
		go func(peer string) {
			defer wg.Done()
			s.syncWithPeer(peer)
		}(peer)
	}
	wg.Wait()
}

func (s *Syncer) syncWithPeer(peer string) {
	remoteTopics, err := s.repl.ListTopics(peer)
	if err != nil {
		s.log.Warnf("initial sync: list topics from %s: %v", peer, err)
	} else {
		s.reconcileTopics(remoteTopics)
	}

	remoteQueues, err := s.repl.ListQueues(peer)
	if err != nil {
		s.log.Warnf("initial sync: list queues from %s: %v", peer, err)
		return
	}
	s.reconcileQueues(remoteQueues)
}

func (s *Syncer) reconcileTopics(remote []string) {
	local, err := s.store.ListTopics()
	if err != nil {
		s.log.Warnf("initial sync: list local topics: %v", err)
		return
	}
	have := toSet(local)
	for _, name := range remote {
		if have[name] {
			continue
		}
		if err := s.store.CreateTopic(name, authn.System); err != nil && !errors.Is(err, store.ErrAlreadyExists) {
			s.log.Warnf("initial sync: create topic %q: %v", name, err)
			continue
		}
		have[name] = true
	}
}

func (s *Syncer) reconcileQueues(remote []string) {
	local, err := s.store.ListQueues()
	if err != nil {
		s.log.Warnf("initial sync: list local queues: %v", err)
		return
	}
	have := toSet(local)
	for _, name := range remote {
		if have[name] {
			continue
		}
		if err := s.store.CreateQueue(name, authn.System); err != nil && !errors.Is(err, store.ErrAlreadyExists) {
			s.log.Warnf("initial sync: create queue %q: %v", name, err)
			continue
		}
		have[name] = true
	}
}

func toSet(names []string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out
}

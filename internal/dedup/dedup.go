// Package dedup implements the replication-loop break named in spec.md
// §9 (REDESIGN FLAGS): a bounded per-node memo of recently applied
// replicated operations, keyed on (kind, name, payload hash), so a
// replicated operation seen twice short-circuits to AlreadyProcessed
// instead of looping between peers forever.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Kind distinguishes the destination type a replicated operation
// targets, since a topic and a queue may share a name.
type Kind int

const (
	Topic Kind = iota
	Queue
)

// Set is a bounded, concurrency-safe memo of seen replicated
// operations. golang-lru's Cache is already mutex-guarded internally.
type Set struct {
	cache *lru.Cache[string, struct{}]
}

// defaultCapacity bounds the memo so it cannot grow without limit, per
// the REDESIGN FLAGS note that the source's unbounded version is a
// defect. Sized generously above any plausible in-flight retry window.
const defaultCapacity = 100_000

// New builds a Set with the default capacity.
func New() *Set {
	return NewSized(defaultCapacity)
}

// NewSized builds a Set bounded to capacity entries.
func NewSized(capacity int) *Set {
	c, err := lru.New[string, struct{}](capacity)
	if err != nil {
		// Only returns an error for capacity <= 0; defaultCapacity is
		// always positive, and NewSized callers pass static values.
		panic(err)
	}
	return &Set{cache: c}
}

func key(kind Kind, name, payload string) string {
	h := sha256.Sum256([]byte(payload))
	return string(rune(kind)) + "\x00" + name + "\x00" + hex.EncodeToString(h[:])
}

// SeenOrRemember reports whether (kind, name, payload) has already been
// recorded. If not, it records it and returns false. ContainsOrAdd does
// the check and insert as one atomic cache operation, so two concurrent
// callers for the same key can never both observe "not seen" — that
// race is exactly what would let a replicated operation loop between
// peers instead of short-circuiting.
func (s *Set) SeenOrRemember(kind Kind, name, payload string) bool {
	k := key(kind, name, payload)
	alreadyPresent, _ := s.cache.ContainsOrAdd(k, struct{}{})
	return alreadyPresent
}

// Package partition implements the cluster's deterministic name-to-node
// assignment. It is a pure function of (name, kind, nodes, R, self): the
// same inputs always produce the same assignment on every node.
package partition

import (
	"crypto/md5"
	"math/big"
	"sort"
)

// Kind distinguishes topics from queues so that a name maps to different
// nodes depending on which kind it names.
type Kind int

const (
	// Topic is the publish/broadcast, retain-all abstraction.
	Topic Kind = iota
	// Queue is the point-to-point, exactly-once-consumption abstraction.
	Queue
)

// Assignment is the result of partitioning a single name.
type Assignment struct {
	Primary     string
	Secondaries []string
	IsPrimary   bool
	IsSecondary bool
}

// AllResponsible returns the primary followed by the secondaries, in
// order — the full replica set for this name.
func (a Assignment) AllResponsible() []string {
	out := make([]string, 0, 1+len(a.Secondaries))
	out = append(out, a.Primary)
	out = append(out, a.Secondaries...)
	return out
}

// IsResponsible reports whether self is primary or secondary for this
// assignment.
func (a Assignment) IsResponsible() bool {
	return a.IsPrimary || a.IsSecondary
}

// Partitioner computes Assignments over a fixed, sorted node set.
type Partitioner struct {
	nodes []string // sorted, immutable for the run
	r     int
	self  string
}

// New builds a Partitioner. nodes need not be pre-sorted; New sorts a
// copy so that every node in the cluster computes over the same order.
// R is clamped to [1, len(nodes)] per spec: R >= N means all nodes are
// responsible for every name.
func New(nodes []string, r int, self string) *Partitioner {
	sorted := make([]string, len(nodes))
	copy(sorted, nodes)
	sort.Strings(sorted)

	if r < 1 {
		r = 1
	}
	if r > len(sorted) {
		r = len(sorted)
	}

	return &Partitioner{nodes: sorted, r: r, self: self}
}

// Nodes returns the sorted node set this Partitioner was built with.
func (p *Partitioner) Nodes() []string {
	out := make([]string, len(p.nodes))
	copy(out, p.nodes)
	return out
}

// For computes the (primary, secondaries) assignment for name under kind.
func (p *Partitioner) For(name string, kind Kind) Assignment {
	n := len(p.nodes)
	if n == 0 {
		return Assignment{}
	}

	h := hash(name)
	if kind == Queue {
		h.Add(h, big.NewInt(1))
	}

	nBig := big.NewInt(int64(n))
	idx := new(big.Int).Mod(h, nBig).Int64()

	primaryIdx := int(idx)
	primary := p.nodes[primaryIdx]

	secondaries := make([]string, 0, p.r-1)
	for i := 1; i < p.r; i++ {
		secIdx := (primaryIdx + i) % n
		secondaries = append(secondaries, p.nodes[secIdx])
	}

	a := Assignment{Primary: primary, Secondaries: secondaries}
	a.IsPrimary = primary == p.self
	for _, s := range secondaries {
		if s == p.self {
			a.IsSecondary = true
			break
		}
	}
	return a
}

// hash computes the 128-bit MD5 digest of name, interpreted as a
// big-endian unsigned integer, as spec.md §4.1 requires.
func hash(name string) *big.Int {
	sum := md5.Sum([]byte(name))
	return new(big.Int).SetBytes(sum[:])
}

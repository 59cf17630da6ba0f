package calibrate

import (
	"sync"

	"blainsmith.com/go/seahash"
	"github.com/grailbio/base/unsafe"
)

// Decision is the keep/drop outcome of one read pair.
type Decision struct {
	// Key is the read name shared by both mates.
	Key  string
	Keep bool
}

const numDecisionShards = 256

type decision struct {
	rank int
	keep bool
}

type decisionShard struct {
	mu sync.Mutex
	m  map[string]decision
}

// Decisions is a thread-safe table of the decisions of every region.
// When a pair is decided by several regions, the decision of the region
// with the lowest rank wins, so the table's contents do not depend on
// the order of the Add calls.
type Decisions struct {
	shards [numDecisionShards]decisionShard
}

// NewDecisions creates an empty table.
func NewDecisions() *Decisions {
	d := &Decisions{}
	for i := range d.shards {
		d.shards[i].m = make(map[string]decision)
	}
	return d
}

func (d *Decisions) shard(key string) *decisionShard {
	h := seahash.Sum64(unsafe.StringToBytes(key))
	return &d.shards[h%numDecisionShards]
}

// Add records the decisions of the region of the given rank.
func (d *Decisions) Add(rank int, decisions []Decision) {
	for _, dec := range decisions {
		s := d.shard(dec.Key)
		s.mu.Lock()
		if old, ok := s.m[dec.Key]; !ok || rank < old.rank {
			s.m[dec.Key] = decision{rank: rank, keep: dec.Keep}
		}
		s.mu.Unlock()
	}
}

// Lookup returns the decision for key.  ok is false if no region decided
// key.
func (d *Decisions) Lookup(key string) (keep, ok bool) {
	s := d.shard(key)
	s.mu.Lock()
	dec, ok := s.m[key]
	s.mu.Unlock()
	return dec.keep, ok
}

// Counts returns the number of decided and kept pairs.  It is exact
// only when no Add is in progress.
func (d *Decisions) Counts() (n, kept int) {
	for i := range d.shards {
		s := &d.shards[i]
		s.mu.Lock()
		n += len(s.m)
		for _, dec := range s.m {
			if dec.keep {
				kept++
			}
		}
		s.mu.Unlock()
	}
	return n, kept
}

package chain

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"

	"markov-go/internal/model/markov"
)

const (
	// NumBuckets is the size of the state hash table (a prime)
	NumBuckets = 4093

	hashMultiplier = 31
	nilIndex       = int32(-1)
)

// State is the model's record for one distinct context
type State struct {
	Context markov.Context // Owned snapshot of the context
	head    int32          // First successor node, nilIndex when empty
	count   int32          // Number of successor entries, duplicates included
	next    int32          // Next state in the same bucket
}

// Len returns the number of successor entries recorded for the state
func (s *State) Len() int {
	return int(s.count)
}

// successor is one entry of a state's successor list
type successor struct {
	token markov.TokenID
	next  int32
}

// contextIndex maps contexts to states. Bucket chains and successor lists
// are linked by indices into contiguous stores.
type contextIndex struct {
	arena   *TokenArena
	buckets [NumBuckets]int32
	states  []State
	succ    []successor
	filter  *bloom.BloomFilter // Every stored context is added; no false negatives

	lookups        atomic.Int64 // lookupOutside calls
	filterRejects  atomic.Int64 // answered by the filter alone
	falsePositives atomic.Int64 // passed by the filter, missed by the chain scan
}

func newContextIndex(arena *TokenArena, expectedContexts uint, falsePositiveRate float64) *contextIndex {
	idx := &contextIndex{
		arena:  arena,
		filter: bloom.NewWithEstimates(expectedContexts, falsePositiveRate),
	}
	for i := range idx.buckets {
		idx.buckets[i] = nilIndex
	}
	return idx
}

// hashContext computes h = h*31 + b over the bytes of all tokens in c,
// reduced modulo NumBuckets
func hashContext(arena *TokenArena, c markov.Context) uint32 {
	var h uint32
	for _, id := range c {
		for _, b := range arena.Bytes(id) {
			h = hashMultiplier*h + uint32(b)
		}
	}
	return h % NumBuckets
}

// contextKey is the bloom filter key for c
func contextKey(c markov.Context) []byte {
	key := make([]byte, 4*markov.Order)
	for i, id := range c {
		binary.LittleEndian.PutUint32(key[4*i:], uint32(id))
	}
	return key
}

// lookup returns the index of the state for c. When the context is missing
// and create is set, a new state with an empty successor list is linked at
// the head of its bucket chain; otherwise nilIndex is returned.
func (idx *contextIndex) lookup(c markov.Context, create bool) int32 {
	h := hashContext(idx.arena, c)
	for i := idx.buckets[h]; i != nilIndex; i = idx.states[i].next {
		if idx.states[i].Context == c {
			return i
		}
	}

	if !create {
		return nilIndex
	}

	i := int32(len(idx.states))
	idx.states = append(idx.states, State{
		Context: c,
		head:    nilIndex,
		next:    idx.buckets[h],
	})
	idx.buckets[h] = i
	idx.filter.Add(contextKey(c))
	return i
}

// lookupOutside is lookup without create for contexts from outside the model, which
// may well be unknown. The filter answers most misses without hashing the
// token bytes or scanning a chain. Safe for concurrent use once frozen.
func (idx *contextIndex) lookupOutside(c markov.Context) int32 {
	idx.lookups.Add(1)
	if !idx.filter.Test(contextKey(c)) {
		idx.filterRejects.Add(1)
		return nilIndex
	}
	i := idx.lookup(c, false)
	if i == nilIndex {
		idx.falsePositives.Add(1)
	}
	return i
}

// addSuccessor records token as a successor of state i
func (idx *contextIndex) addSuccessor(i int32, token markov.TokenID) {
	st := &idx.states[i]
	idx.succ = append(idx.succ, successor{token: token, next: st.head})
	st.head = int32(len(idx.succ) - 1)
	st.count++
}

// successors calls yield for each successor entry of st until yield returns false
func (idx *contextIndex) successors(st *State, yield func(markov.TokenID) bool) {
	for n := st.head; n != nilIndex; n = idx.succ[n].next {
		if !yield(idx.succ[n].token) {
			return
		}
	}
}

// chainLengths returns the number of non-empty buckets and the longest chain
func (idx *contextIndex) chainLengths() (used, longest int) {
	for _, head := range idx.buckets {
		n := 0
		for i := head; i != nilIndex; i = idx.states[i].next {
			n++
		}
		if n > 0 {
			used++
		}
		if n > longest {
			longest = n
		}
	}
	return used, longest
}

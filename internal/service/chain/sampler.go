package chain

import (
	"iter"
	"math/rand/v2"

	"markov-go/internal/model/markov"
)

// RandomSeed asks NewRand for a randomly seeded source
const RandomSeed = -1

// NewRand returns a PCG-backed generator. A seed of RandomSeed draws the
// seed from the runtime's global source; any other value is reproducible.
func NewRand(seed int64) *rand.Rand {
	var sequence uint64
	if seed == RandomSeed {
		sequence = rand.Uint64()
	} else {
		sequence = uint64(seed)
	}
	return rand.New(rand.NewPCG(sequence, sequence^0x9E3779B9))
}

// Sampler draws successors by single-pass reservoir sampling. A Sampler
// owns its random source and must not be shared between goroutines.
type Sampler struct {
	rng *rand.Rand
}

// NewSampler creates a sampler drawing from rng
func NewSampler(rng *rand.Rand) *Sampler {
	if rng == nil {
		rng = NewRand(RandomSeed)
	}
	return &Sampler{rng: rng}
}

// Pick returns one element of seq chosen uniformly at random over its
// entries, so a value occurring n times in m entries is chosen with
// probability n/m. It reports false when seq is empty.
func (s *Sampler) Pick(seq iter.Seq[markov.TokenID]) (markov.TokenID, bool) {
	return reservoir(s.rng, seq)
}

// reservoir keeps the i-th element (1-indexed) with probability 1/i
func reservoir[T any](rng *rand.Rand, seq iter.Seq[T]) (T, bool) {
	var chosen T
	n := 0
	for v := range seq {
		n++
		if rng.IntN(n) == 0 {
			chosen = v
		}
	}
	return chosen, n > 0
}

package chain

import (
	"bytes"
	"errors"
	"io"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"markov-go/internal/model/markov"
)

const sampleText = `It was the best of times, it was the worst of times, it was the age of
wisdom, it was the age of foolishness, it was the epoch of belief, it was the
epoch of incredulity, it was the season of Light, it was the season of Darkness,
it was the spring of hope, it was the winter of despair`

func TestReservoir_FrequencyFidelity(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	entries := []string{"x", "y", "x", "z", "x", "y", "x", "x"} // x:5 y:2 z:1

	const trials = 200000
	counts := make(map[string]int)
	for range trials {
		v, ok := reservoir(rng, slices.Values(entries))
		require.True(t, ok)
		counts[v]++
	}

	assert.InDelta(t, 5.0/8, float64(counts["x"])/trials, 0.01)
	assert.InDelta(t, 2.0/8, float64(counts["y"])/trials, 0.01)
	assert.InDelta(t, 1.0/8, float64(counts["z"])/trials, 0.01)
}

func TestReservoir_EmptyAndSingle(t *testing.T) {
	rng := NewRand(1)

	_, ok := reservoir(rng, slices.Values([]int(nil)))
	assert.False(t, ok)

	for range 100 {
		v, ok := reservoir(rng, slices.Values([]int{42}))
		require.True(t, ok)
		assert.Equal(t, 42, v)
	}
}

func TestSampler_PickFromModel(t *testing.T) {
	m := NewModel(zap.NewNop())
	x, _ := m.Intern("x")
	y, _ := m.Intern("y")
	for _, id := range []markov.TokenID{x, x, x, y} {
		window := markov.BoundaryContext()
		require.NoError(t, m.Observe(&window, id))
	}
	m.Freeze()

	st, ok := m.Find(markov.BoundaryContext())
	require.True(t, ok)

	s := NewSampler(NewRand(3))
	const trials = 100000
	hits := 0
	for range trials {
		id, ok := s.Pick(m.Successors(st))
		require.True(t, ok)
		if id == x {
			hits++
		}
	}
	assert.InDelta(t, 0.75, float64(hits)/trials, 0.01)
}

func TestNewRand_Seeded(t *testing.T) {
	a, b := NewRand(99), NewRand(99)
	for range 10 {
		assert.Equal(t, a.Uint64(), b.Uint64())
	}
	assert.NotNil(t, NewRand(RandomSeed))
}

func TestGenerate_Deterministic(t *testing.T) {
	m := buildModel(t, strings.Fields(sampleText)...)

	first, err := NewSeededGenerator(m, 42).Generate(1000)
	require.NoError(t, err)
	second, err := NewSeededGenerator(m, 42).Generate(1000)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotEmpty(t, first)
	// the walk starts where the text starts
	assert.Equal(t, []string{"It", "was", "the", "best"}, first[:4])
}

func TestGenerate_EmptyModel(t *testing.T) {
	m := buildModel(t)

	tokens, err := NewSeededGenerator(m, 1).Generate(100)
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestGenerate_RepeatedToken(t *testing.T) {
	m := buildModel(t, "a", "a", "a", "a", "a")

	for seed := int64(0); seed < 50; seed++ {
		tokens, err := NewSeededGenerator(m, seed).Generate(100)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(tokens), 4)
		assert.LessOrEqual(t, len(tokens), 100)
		for _, tok := range tokens {
			require.Equal(t, "a", tok)
		}
	}

	tokens, err := NewSeededGenerator(m, 5).Generate(2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "a"}, tokens)
}

func TestGenerate_CapRespected(t *testing.T) {
	// a cycle with no way out except the final transition
	words := strings.Fields(strings.Repeat("w x y z ", 50))
	m := buildModel(t, words...)

	for _, limit := range []int{0, 1, 3, 17, 200} {
		stream, err := NewSeededGenerator(m, 9).Stream(limit)
		require.NoError(t, err)
		n := 0
		for {
			_, err := stream.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			require.NoError(t, err)
			n++
		}
		assert.LessOrEqual(t, n, limit)
		assert.Equal(t, n, stream.Emitted())
	}
}

func TestGenerate_ReproducesDeterministicText(t *testing.T) {
	// every context has a single successor, so the walk replays the input
	words := strings.Fields("one two three four five six seven eight nine ten")
	m := buildModel(t, words...)

	stream, err := NewGenerator(m, nil).Stream(10000)
	require.NoError(t, err)

	var got []string
	for {
		tok, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, tok)
	}
	assert.Equal(t, words, got)
	assert.True(t, stream.EndOfText())

	// the stream stays exhausted
	_, err = stream.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestStream_StopsOnBudget(t *testing.T) {
	m := buildModel(t, "one", "two", "three")

	stream, err := NewSeededGenerator(m, 1).Stream(2)
	require.NoError(t, err)
	for range 2 {
		_, err := stream.Next()
		require.NoError(t, err)
	}
	_, err = stream.Next()
	assert.ErrorIs(t, err, io.EOF)
	assert.False(t, stream.EndOfText())
}

func TestGenerate_ConsistencyFault(t *testing.T) {
	m := NewModel(zap.NewNop())
	x, err := m.Intern("x")
	require.NoError(t, err)
	window := markov.BoundaryContext()
	require.NoError(t, m.Observe(&window, x))
	m.Freeze()

	tokens, err := NewSeededGenerator(m, 1).Generate(10)
	require.ErrorIs(t, err, ErrModelConsistency)
	assert.Contains(t, err.Error(), "<B> <B> <B> x")
	assert.Equal(t, []string{"x"}, tokens)
}

func TestGenerator_Errors(t *testing.T) {
	m := NewModel(zap.NewNop())
	g := NewSeededGenerator(m, 1)

	_, err := g.Stream(10)
	assert.ErrorIs(t, err, ErrModelNotFrozen)

	m.Freeze()
	_, err = g.Stream(-1)
	assert.ErrorIs(t, err, ErrInvalidMaxSteps)

	m.Close()
	_, err = g.Generate(10)
	assert.ErrorIs(t, err, ErrModelClosed)
}

func TestEmit_OneTokenPerLine(t *testing.T) {
	words := strings.Fields("alpha beta gamma delta epsilon")
	m := buildModel(t, words...)

	var buf bytes.Buffer
	n, err := NewSeededGenerator(m, 1).Emit(&buf, 10000)
	require.NoError(t, err)
	assert.Equal(t, len(words), n)
	assert.Equal(t, "alpha\nbeta\ngamma\ndelta\nepsilon\n", buf.String())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestEmit_WriteError(t *testing.T) {
	m := buildModel(t, "alpha", "beta")

	_, err := NewSeededGenerator(m, 1).Emit(failingWriter{}, 10)
	assert.ErrorContains(t, err, "disk full")
}

func drain(t *testing.T, stream *Stream) []string {
	t.Helper()
	var got []string
	for {
		tok, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return got
		}
		require.NoError(t, err)
		got = append(got, tok)
	}
}

func TestStreamFrom_ContinuesContext(t *testing.T) {
	m := buildModel(t, strings.Fields("one two three four five six seven")...)
	g := NewSeededGenerator(m, 1)

	start, err := m.ContextFor([]string{"one", "two", "three", "four"})
	require.NoError(t, err)
	stream, err := g.StreamFrom(start, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"five", "six", "seven"}, drain(t, stream))
	assert.True(t, stream.EndOfText())

	// a short prompt is padded with the boundary token, so it matches the start of text
	start, err = m.ContextFor([]string{"one"})
	require.NoError(t, err)
	stream, err = g.StreamFrom(start, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"two", "three"}, drain(t, stream))
}

func TestStreamFrom_UnknownContext(t *testing.T) {
	m := buildModel(t, strings.Fields("one two three four five six seven")...)

	// [<B> two three four] never occurs: "two" is never the first word
	start, err := m.ContextFor([]string{"two", "three", "four"})
	require.NoError(t, err)
	_, err = NewSeededGenerator(m, 1).StreamFrom(start, 100)
	require.ErrorIs(t, err, ErrUnknownContext)
	assert.Contains(t, err.Error(), "<B> two three four")
	assert.Equal(t, int64(1), m.Stats().OutsideLookups)
}

package chain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"go.uber.org/zap"

	"markov-go/internal/model/markov"
)

// TokenSource supplies tokens in input order. Next returns io.EOF when the
// input is exhausted.
type TokenSource interface {
	Next() (markov.Token, error)
}

// Model is an order-k Markov chain over interned tokens. It is built by one
// goroutine and becomes read-only after Freeze; a frozen model may be shared
// by any number of generators.
type Model struct {
	arena     *TokenArena
	index     *contextIndex
	tokens    int64 // Tokens pulled from sources
	truncated int64 // Tokens the source cut at its length bound
	frozen    bool
	closed    bool
	logger    *zap.Logger
}

type modelOptions struct {
	expectedContexts  uint
	falsePositiveRate float64
}

// ModelOption configures a Model
type ModelOption func(*modelOptions)

// WithFilterEstimate sizes the negative-lookup bloom filter
func WithFilterEstimate(expectedContexts uint, falsePositiveRate float64) ModelOption {
	return func(o *modelOptions) {
		o.expectedContexts = expectedContexts
		o.falsePositiveRate = falsePositiveRate
	}
}

// NewModel creates an empty model
func NewModel(logger *zap.Logger, opts ...ModelOption) *Model {
	options := &modelOptions{
		expectedContexts:  100000,
		falsePositiveRate: 0.01,
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.expectedContexts == 0 {
		options.expectedContexts = 100000
	}
	if options.falsePositiveRate <= 0 || options.falsePositiveRate >= 1 {
		options.falsePositiveRate = 0.01
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	arena := NewTokenArena()
	return &Model{
		arena:  arena,
		index:  newContextIndex(arena, options.expectedContexts, options.falsePositiveRate),
		logger: logger,
	}
}

// Intern stores text in the model's arena and returns its ID
func (m *Model) Intern(text string) (markov.TokenID, error) {
	if err := m.writable(); err != nil {
		return 0, err
	}
	return m.arena.Intern(text), nil
}

// Observe records next as a successor of *window, then advances the window:
// the oldest token is dropped and next becomes the newest. The state keeps
// its own copy of the pre-advance window.
func (m *Model) Observe(window *markov.Context, next markov.TokenID) error {
	if err := m.writable(); err != nil {
		return err
	}
	if int(next) >= m.arena.Len() {
		return fmt.Errorf("chain: token id %d was not interned", next)
	}

	i := m.index.lookup(*window, true)
	m.index.addSuccessor(i, next)
	*window = window.Shift(next)
	return nil
}

// Build trains the model from src and freezes it. The window starts as
// Order boundary tokens; after the last token one transition to the
// boundary token is recorded to mark the end of text.
func (m *Model) Build(ctx context.Context, src TokenSource) error {
	if err := m.writable(); err != nil {
		return err
	}

	window := markov.BoundaryContext()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		tok, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read training input: %w", err)
		}

		m.tokens++
		if tok.Truncated {
			m.truncated++
		}
		if err := m.Observe(&window, m.arena.Intern(tok.Value)); err != nil {
			return err
		}
	}

	if err := m.Observe(&window, markov.Boundary); err != nil {
		return err
	}
	m.Freeze()

	stats := m.Stats()
	m.logger.Info("Built markov chain",
		zap.Int("order", stats.Order),
		zap.Int64("tokens", stats.TokensObserved),
		zap.Int("vocabulary", stats.VocabularySize),
		zap.Int("states", stats.States),
		zap.Int("successors", stats.Successors),
		zap.Int("longest_chain", stats.LongestChain),
	)
	if stats.TruncatedTokens > 0 {
		m.logger.Debug("Input contained over-long tokens",
			zap.Int64("truncated_tokens", stats.TruncatedTokens))
	}
	return nil
}

// Freeze ends the build phase. Later calls to Observe and Intern fail.
func (m *Model) Freeze() {
	m.frozen = true
}

// Frozen reports whether the build phase has ended
func (m *Model) Frozen() bool {
	return m.frozen
}

// Find returns the state for c without creating it
func (m *Model) Find(c markov.Context) (*State, bool) {
	if m.closed {
		return nil, false
	}
	i := m.index.lookup(c, false)
	if i == nilIndex {
		return nil, false
	}
	return &m.index.states[i], true
}

// Known is Find for contexts that did not come from the model's own walk,
// such as a user prompt. Misses are expected and counted in Stats.
func (m *Model) Known(c markov.Context) (*State, bool) {
	if m.closed {
		return nil, false
	}
	i := m.index.lookupOutside(c)
	if i == nilIndex {
		return nil, false
	}
	return &m.index.states[i], true
}

// ContextFor returns the context a walk would be in after emitting words,
// starting from the boundary context. Only the last Order words matter. A
// word never seen in training fails with ErrUnknownContext; whether the
// context itself was observed is checked by Known.
func (m *Model) ContextFor(words []string) (markov.Context, error) {
	window := markov.BoundaryContext()
	for _, w := range words {
		id, ok := m.ID(w)
		if !ok {
			return window, fmt.Errorf("%w: unknown word %q", ErrUnknownContext, w)
		}
		window = window.Shift(id)
	}
	return window, nil
}

// Successors iterates the successor entries of st, duplicates included.
// Iteration order is unspecified.
func (m *Model) Successors(st *State) iter.Seq[markov.TokenID] {
	return func(yield func(markov.TokenID) bool) {
		if m.closed || st == nil {
			return
		}
		m.index.successors(st, yield)
	}
}

// Text returns the text of an interned token
func (m *Model) Text(id markov.TokenID) string {
	return m.arena.Text(id)
}

// ID returns the interned ID of text, if any
func (m *Model) ID(text string) (markov.TokenID, bool) {
	id, ok := m.arena.ids[text]
	return id, ok
}

// States returns the number of distinct contexts
func (m *Model) States() int {
	return len(m.index.states)
}

// Close releases all states and tokens. The model can not be used afterwards.
func (m *Model) Close() {
	if m.closed {
		return
	}
	m.closed = true
	m.frozen = true
	m.arena.Release()
	m.index.states = nil
	m.index.succ = nil
	for i := range m.index.buckets {
		m.index.buckets[i] = nilIndex
	}
}

// Closed reports whether Close has been called
func (m *Model) Closed() bool {
	return m.closed
}

func (m *Model) writable() error {
	if m.closed {
		return ErrModelClosed
	}
	if m.frozen {
		return ErrModelFrozen
	}
	return nil
}

// Stats returns statistics about the model
func (m *Model) Stats() ModelStats {
	used, longest := m.index.chainLengths()
	vocab := m.arena.Len() - 1
	if vocab < 0 {
		vocab = 0
	}
	return ModelStats{
		Order:           markov.Order,
		Buckets:         NumBuckets,
		UsedBuckets:     used,
		LongestChain:    longest,
		States:          len(m.index.states),
		Successors:      len(m.index.succ),
		VocabularySize:  vocab,
		TokensObserved:  m.tokens,
		TruncatedTokens: m.truncated,
		ArenaBytes:      m.arena.Size(),
		Frozen:          m.frozen,
		OutsideLookups:  m.index.lookups.Load(),
		FilterRejects:   m.index.filterRejects.Load(),
		FilterFalseHits: m.index.falsePositives.Load(),
	}
}

// ModelStats contains statistics about a Markov chain model
type ModelStats struct {
	Order           int   `json:"order"`
	Buckets         int   `json:"buckets"`
	UsedBuckets     int   `json:"used_buckets"`
	LongestChain    int   `json:"longest_chain"`
	States          int   `json:"states"`
	Successors      int   `json:"successors"`
	VocabularySize  int   `json:"vocabulary_size"` // Distinct tokens, boundary excluded
	TokensObserved  int64 `json:"tokens_observed"`
	TruncatedTokens int64 `json:"truncated_tokens"`
	ArenaBytes      int   `json:"arena_bytes"`
	Frozen          bool  `json:"frozen"`
	OutsideLookups  int64 `json:"outside_lookups"`   // Outside contexts checked by Known
	FilterRejects   int64 `json:"filter_rejects"`    // Outside lookups the bloom filter rejected outright
	FilterFalseHits int64 `json:"filter_false_hits"` // Outside lookups the filter passed that were still absent
}

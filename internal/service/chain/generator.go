package chain

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"

	"markov-go/internal/model/markov"
)

// Generator walks a frozen model, emitting one token per step
type Generator struct {
	model   *Model
	sampler *Sampler
}

// NewGenerator creates a generator that samples with rng. A nil rng is
// replaced by a randomly seeded source.
func NewGenerator(model *Model, rng *rand.Rand) *Generator {
	return &Generator{
		model:   model,
		sampler: NewSampler(rng),
	}
}

// NewSeededGenerator creates a generator whose output is fully determined by
// the model and seed
func NewSeededGenerator(model *Model, seed int64) *Generator {
	return NewGenerator(model, NewRand(seed))
}

// Stream starts a new walk from the boundary context, bounded to maxSteps
// sampling steps
func (g *Generator) Stream(maxSteps int) (*Stream, error) {
	return g.stream(markov.BoundaryContext(), maxSteps)
}

// StreamFrom starts a walk from start, typically the result of
// Model.ContextFor. An unobserved start fails with ErrUnknownContext.
func (g *Generator) StreamFrom(start markov.Context, maxSteps int) (*Stream, error) {
	stream, err := g.stream(start, maxSteps)
	if err != nil {
		return nil, err
	}
	if _, ok := g.model.Known(start); !ok {
		return nil, fmt.Errorf("%w: [%s]", ErrUnknownContext, start.Render(g.model.Text))
	}
	return stream, nil
}

func (g *Generator) stream(start markov.Context, maxSteps int) (*Stream, error) {
	if maxSteps < 0 {
		return nil, ErrInvalidMaxSteps
	}
	if g.model.Closed() {
		return nil, ErrModelClosed
	}
	if !g.model.Frozen() {
		return nil, ErrModelNotFrozen
	}
	return &Stream{
		model:     g.model,
		sampler:   g.sampler,
		window:    start,
		remaining: maxSteps,
	}, nil
}

// Generate runs one walk and collects its tokens
func (g *Generator) Generate(maxSteps int) ([]string, error) {
	stream, err := g.Stream(maxSteps)
	if err != nil {
		return nil, err
	}

	var tokens []string
	for {
		tok, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return tokens, nil
		}
		if err != nil {
			return tokens, err
		}
		tokens = append(tokens, tok)
	}
}

// Emit runs one walk and writes each token to w on its own line. It returns
// the number of tokens written.
func (g *Generator) Emit(w io.Writer, maxSteps int) (int, error) {
	stream, err := g.Stream(maxSteps)
	if err != nil {
		return 0, err
	}

	bw := bufio.NewWriter(w)
	for {
		tok, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			_ = bw.Flush()
			return stream.Emitted(), err
		}
		if _, err := bw.WriteString(tok); err != nil {
			return stream.Emitted() - 1, fmt.Errorf("failed to write token: %w", err)
		}
		if err := bw.WriteByte('\n'); err != nil {
			return stream.Emitted() - 1, fmt.Errorf("failed to write token: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return stream.Emitted(), fmt.Errorf("failed to flush output: %w", err)
	}
	return stream.Emitted(), nil
}

// Stream is a single generation walk. Consuming it advances its window; a
// new walk needs a new Stream.
type Stream struct {
	model     *Model
	sampler   *Sampler
	window    markov.Context
	remaining int
	emitted   int
	endOfText bool
	done      bool
}

// Next returns the next generated token. It returns io.EOF when the walk
// samples the end-of-text transition or runs out of steps.
func (s *Stream) Next() (string, error) {
	if s.done {
		return "", io.EOF
	}
	if s.remaining == 0 {
		s.done = true
		return "", io.EOF
	}
	s.remaining--

	if s.model.Closed() {
		s.done = true
		return "", ErrModelClosed
	}

	st, ok := s.model.Find(s.window)
	if !ok {
		s.done = true
		return "", fmt.Errorf("%w: [%s]", ErrModelConsistency, s.window.Render(s.model.Text))
	}
	next, ok := s.sampler.Pick(s.model.Successors(st))
	if !ok {
		s.done = true
		return "", fmt.Errorf("%w: no successors for [%s]", ErrModelConsistency, s.window.Render(s.model.Text))
	}

	if next == markov.Boundary {
		s.done = true
		s.endOfText = true
		return "", io.EOF
	}

	s.window = s.window.Shift(next)
	s.emitted++
	return s.model.Text(next), nil
}

// Emitted returns the number of tokens produced so far
func (s *Stream) Emitted() int {
	return s.emitted
}

// EndOfText reports whether the walk stopped on the end-of-text transition
// rather than on the step budget
func (s *Stream) EndOfText() bool {
	return s.endOfText
}

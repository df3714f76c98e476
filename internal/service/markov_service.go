package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"markov-go/internal/config"
	"markov-go/internal/service/chain"
	"markov-go/internal/service/tokenizer"
)

// StopReason explains why a generation run ended
type StopReason string

const (
	StopEndOfText StopReason = "end_of_text"
	StopMaxWords  StopReason = "max_words"
)

// ErrNotTrained is returned when generation is requested before training
var ErrNotTrained = errors.New("service: no trained model")

// trainedModel is a frozen model plus the walks currently reading it. It is
// released only once no walk holds it.
type trainedModel struct {
	model *chain.Model
	walks sync.WaitGroup
}

// retire waits for in-flight walks to finish, then releases the model
func (t *trainedModel) retire() {
	t.walks.Wait()
	t.model.Close()
}

// MarkovService trains one chain model and serves generation requests from it
type MarkovService struct {
	current   *trainedModel
	tokenizer *tokenizer.WhitespaceTokenizer
	cfg       config.GeneratorConfig
	sources   []string
	trainedAt time.Time
	trainTime time.Duration
	logger    *zap.Logger
	mu        sync.RWMutex // Protects model and training metadata
}

// NewMarkovService creates a service using the generator settings in cfg
func NewMarkovService(cfg *config.Config, logger *zap.Logger) (*MarkovService, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	policy, err := tokenizer.ParseOverlongPolicy(cfg.Generator.Overlong)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer: %w", err)
	}

	return &MarkovService{
		tokenizer: tokenizer.NewWhitespaceTokenizer(cfg.Generator.MaxTokenLen, policy),
		cfg:       cfg.Generator,
		logger:    logger,
	}, nil
}

// Train builds the model from the given files in order, or from stdin when
// no files are given. Files are separated by a line break so the last word
// of one file never merges with the first word of the next.
func (s *MarkovService) Train(ctx context.Context, inputs []string, stdin io.Reader) error {
	if len(inputs) == 0 {
		return s.TrainFromReader(ctx, stdin, "stdin")
	}

	readers := make([]io.Reader, 0, 2*len(inputs))
	for _, path := range inputs {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		readers = append(readers, f, strings.NewReader("\n"))
	}
	return s.TrainFromReader(ctx, io.MultiReader(readers...), inputs...)
}

// TrainFromReader builds the model from r, replacing any previous model
func (s *MarkovService) TrainFromReader(ctx context.Context, r io.Reader, sources ...string) error {
	start := time.Now()
	s.logger.Info("Training markov chain",
		zap.Strings("sources", sources),
		zap.Int("max_token_len", s.tokenizer.MaxLen()),
		zap.String("overlong", string(s.tokenizer.Policy())),
	)

	model := chain.NewModel(s.logger)
	if err := model.Build(ctx, s.tokenizer.NewStream(r)); err != nil {
		model.Close()
		return fmt.Errorf("failed to build model: %w", err)
	}

	elapsed := time.Since(start)
	s.mu.Lock()
	old := s.current
	s.current = &trainedModel{model: model}
	s.sources = sources
	s.trainedAt = time.Now()
	s.trainTime = elapsed
	s.mu.Unlock()

	if old != nil {
		old.retire()
	}

	s.logger.Info("Training complete",
		zap.Duration("elapsed", elapsed),
		zap.Int("states", model.States()),
	)
	return nil
}

// GenerateRequest describes one generation run
type GenerateRequest struct {
	MaxWords int    `json:"max_words"`        // 0 selects the configured cap; larger values are clamped to it
	Seed     *int64 `json:"seed,omitempty"`   // nil selects the configured seed; -1 a random one
	Prompt   string `json:"prompt,omitempty"` // Continue after these words instead of from the start of text
}

// GenerateResult is the output of one generation run
type GenerateResult struct {
	RunID      string     `json:"run_id"`
	Seed       int64      `json:"seed"` // Replaying with this seed reproduces Tokens
	Tokens     []string   `json:"tokens"`
	Count      int        `json:"count"`
	StopReason StopReason `json:"stop_reason"`
}

// Generate runs one walk over the trained model. Each call gets its own
// random source, so concurrent calls are safe.
func (s *MarkovService) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	result := &GenerateResult{RunID: uuid.NewString(), Tokens: []string{}}
	_, err := s.run(ctx, req, result, func(tok string) error {
		result.Tokens = append(result.Tokens, tok)
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.Count = len(result.Tokens)
	return result, nil
}

// Emit runs one walk and writes each token to w on its own line
func (s *MarkovService) Emit(ctx context.Context, w io.Writer, req GenerateRequest) (*GenerateResult, error) {
	result := &GenerateResult{RunID: uuid.NewString()}
	n, err := s.run(ctx, req, result, func(tok string) error {
		if _, err := io.WriteString(w, tok+"\n"); err != nil {
			return fmt.Errorf("failed to write token: %w", err)
		}
		return nil
	})
	result.Count = n
	return result, err
}

func (s *MarkovService) run(ctx context.Context, req GenerateRequest, result *GenerateResult, yield func(string) error) (int, error) {
	// registered under the read lock; retire waits for every walk that saw this model
	s.mu.RLock()
	current := s.current
	if current != nil {
		current.walks.Add(1)
	}
	s.mu.RUnlock()
	if current == nil {
		return 0, ErrNotTrained
	}
	defer current.walks.Done()
	model := current.model

	maxWords := s.resolveMaxWords(req.MaxWords)
	seed := s.resolveSeed(req.Seed)
	result.Seed = seed

	stream, err := s.startStream(ctx, chain.NewSeededGenerator(model, seed), model, req.Prompt, maxWords)
	if err != nil {
		return 0, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return stream.Emitted(), err
		}
		tok, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.logger.Error("Generation failed",
				zap.String("run_id", result.RunID),
				zap.Error(err))
			return stream.Emitted(), err
		}
		if err := yield(tok); err != nil {
			return stream.Emitted(), err
		}
	}

	result.StopReason = StopMaxWords
	if stream.EndOfText() {
		result.StopReason = StopEndOfText
	}
	s.logger.Debug("Generated text",
		zap.String("run_id", result.RunID),
		zap.Int64("seed", seed),
		zap.Int("tokens", stream.Emitted()),
		zap.String("stop_reason", string(result.StopReason)),
	)
	return stream.Emitted(), nil
}

// startStream begins at the start of text, or after the prompt's words when
// one is given. Prompts are tokenized like the training input.
func (s *MarkovService) startStream(ctx context.Context, gen *chain.Generator, model *chain.Model, prompt string, maxWords int) (*chain.Stream, error) {
	if strings.TrimSpace(prompt) == "" {
		return gen.Stream(maxWords)
	}

	tokens, err := s.tokenizer.Tokenize(ctx, []byte(prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to tokenize prompt: %w", err)
	}
	words := make([]string, len(tokens))
	for i, tok := range tokens {
		words[i] = tok.Value
	}

	start, err := model.ContextFor(words)
	if err != nil {
		return nil, err
	}
	return gen.StreamFrom(start, maxWords)
}

func (s *MarkovService) resolveMaxWords(n int) int {
	if n <= 0 || n > s.cfg.MaxWords {
		return s.cfg.MaxWords
	}
	return n
}

func (s *MarkovService) resolveSeed(seed *int64) int64 {
	v := s.cfg.GetSeed()
	if seed != nil {
		v = *seed
	}
	if v == chain.RandomSeed {
		// keep it non-negative so it can never collide with RandomSeed
		v = int64(rand.Uint64() >> 1)
	}
	return v
}

// Stats returns statistics about the trained model
func (s *MarkovService) Stats() (*ServiceStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return nil, ErrNotTrained
	}
	return &ServiceStats{
		Model:       s.current.model.Stats(),
		Sources:     s.sources,
		TrainedAt:   s.trainedAt,
		TrainMillis: s.trainTime.Milliseconds(),
		MaxWords:    s.cfg.MaxWords,
		MaxTokenLen: s.tokenizer.MaxLen(),
		Overlong:    string(s.tokenizer.Policy()),
	}, nil
}

// Close releases the trained model after in-flight generation finishes.
// Later calls to Generate return ErrNotTrained.
func (s *MarkovService) Close() {
	s.mu.Lock()
	old := s.current
	s.current = nil
	s.mu.Unlock()

	if old != nil {
		old.retire()
	}
}

// ServiceStats contains statistics about the service and its model
type ServiceStats struct {
	Model       chain.ModelStats `json:"model"`
	Sources     []string         `json:"sources"`
	TrainedAt   time.Time        `json:"trained_at"`
	TrainMillis int64            `json:"train_millis"`
	MaxWords    int              `json:"max_words"`
	MaxTokenLen int              `json:"max_token_len"`
	Overlong    string           `json:"overlong"`
}

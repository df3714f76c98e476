package tokenizer

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"markov-go/internal/model/markov"
)

// DefaultMaxTokenLen is the default bound on token length in bytes
const DefaultMaxTokenLen = 99

// OverlongPolicy decides what happens to words longer than the length bound
type OverlongPolicy string

const (
	// OverlongTruncate keeps the first maxLen bytes and drops the rest of the word
	OverlongTruncate OverlongPolicy = "truncate"
	// OverlongSplit emits the word as consecutive maxLen-byte tokens
	OverlongSplit OverlongPolicy = "split"
)

// ErrInvalidPolicy is returned for unknown overlong policy names
var ErrInvalidPolicy = errors.New("tokenizer: unknown overlong policy")

// ParseOverlongPolicy converts a config or flag value into a policy.
// An empty string selects OverlongTruncate.
func ParseOverlongPolicy(s string) (OverlongPolicy, error) {
	switch OverlongPolicy(s) {
	case "", OverlongTruncate:
		return OverlongTruncate, nil
	case OverlongSplit:
		return OverlongSplit, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
	}
}

// WhitespaceTokenizer splits input on ASCII whitespace into bounded-length tokens
type WhitespaceTokenizer struct {
	maxLen int
	policy OverlongPolicy
}

// NewWhitespaceTokenizer creates a tokenizer with the given length bound and policy
func NewWhitespaceTokenizer(maxLen int, policy OverlongPolicy) *WhitespaceTokenizer {
	if maxLen < 1 {
		maxLen = DefaultMaxTokenLen
	}
	if policy == "" {
		policy = OverlongTruncate
	}
	return &WhitespaceTokenizer{
		maxLen: maxLen,
		policy: policy,
	}
}

// MaxLen returns the token length bound in bytes
func (t *WhitespaceTokenizer) MaxLen() int {
	return t.maxLen
}

// Policy returns the overlong policy
func (t *WhitespaceTokenizer) Policy() OverlongPolicy {
	return t.policy
}

// NewStream returns a stateful token stream over r
func (t *WhitespaceTokenizer) NewStream(r io.Reader) *Stream {
	return &Stream{
		r:      bufio.NewReader(r),
		maxLen: t.maxLen,
		policy: t.policy,
		buf:    make([]byte, 0, t.maxLen),
	}
}

// Tokenize reads every token from source
func (t *WhitespaceTokenizer) Tokenize(ctx context.Context, source []byte) ([]markov.Token, error) {
	stream := t.NewStream(bytes.NewReader(source))
	var tokens []markov.Token
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tok, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return tokens, nil
		}
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
	}
}

// Stream reads tokens from an io.Reader one at a time. Memory use is bounded
// by the length bound no matter how long the input words are.
type Stream struct {
	r      *bufio.Reader
	maxLen int
	policy OverlongPolicy
	buf    []byte
	offset int64
}

// Next returns the next token. It returns io.EOF once the input is exhausted.
func (s *Stream) Next() (markov.Token, error) {
	if err := s.skipSpace(); err != nil {
		return markov.Token{}, err
	}

	start := s.offset
	s.buf = s.buf[:0]
	truncated := false
	for {
		b, err := s.r.ReadByte()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return markov.Token{}, fmt.Errorf("failed to read token: %w", err)
		}
		if isSpace(b) {
			s.offset++
			break
		}
		if len(s.buf) == s.maxLen {
			truncated = true
			if s.policy == OverlongSplit {
				// the rest of the word becomes the next token
				_ = s.r.UnreadByte()
				break
			}
			s.offset++
			continue
		}
		s.buf = append(s.buf, b)
		s.offset++
	}

	return markov.Token{
		Value:     string(s.buf),
		Offset:    start,
		Truncated: truncated,
	}, nil
}

func (s *Stream) skipSpace() error {
	for {
		b, err := s.r.ReadByte()
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		if !isSpace(b) {
			return s.r.UnreadByte()
		}
		s.offset++
	}
}

// isSpace matches the C locale isspace set
func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

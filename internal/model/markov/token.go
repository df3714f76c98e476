package markov

import "strings"

// Order is the number of preceding tokens that select the next-token distribution
const Order = 4

// BoundaryText is the text of the boundary token. Whitespace tokenizers never
// emit it as part of a token, so it can not collide with real input.
const BoundaryText = "\n"

// TokenID identifies an interned token within one model
type TokenID uint32

// Boundary marks both "before the text begins" and "end of text"
const Boundary TokenID = 0

// Token represents a single whitespace-delimited token read from the input
type Token struct {
	Value     string // Token text, at most the tokenizer's length bound
	Offset    int64  // Byte offset of the token's first byte in the input
	Truncated bool   // Whether the input word was longer than the bound
}

// Context is the ordered window of the last Order token IDs
type Context [Order]TokenID

// BoundaryContext returns the initial window: Order copies of Boundary
func BoundaryContext() Context {
	var c Context
	for i := range c {
		c[i] = Boundary
	}
	return c
}

// Shift returns the window advanced by one token: the oldest entry is
// dropped and next becomes the newest.
func (c Context) Shift(next TokenID) Context {
	copy(c[:], c[1:])
	c[Order-1] = next
	return c
}

// Last returns the newest token in the window
func (c Context) Last() TokenID {
	return c[Order-1]
}

// Render joins the window's texts with spaces, using resolve to map IDs to text.
// The boundary token is rendered as "<B>".
func (c Context) Render(resolve func(TokenID) string) string {
	var sb strings.Builder
	for i, id := range c {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if id == Boundary {
			sb.WriteString("<B>")
			continue
		}
		sb.WriteString(resolve(id))
	}
	return sb.String()
}

package chain

import "markov-go/internal/model/markov"

// TokenArena interns token texts. Each distinct text is stored once in a
// shared byte blob and addressed by a dense TokenID. Nothing is released
// until Release, which drops the whole arena at once.
type TokenArena struct {
	ids  map[string]markov.TokenID // text -> ID
	blob []byte                    // concatenated token bytes
	off  []int                     // off[id]..off[id+1] spans token id in blob
}

// NewTokenArena creates an arena holding only the boundary token (ID 0)
func NewTokenArena() *TokenArena {
	a := &TokenArena{
		ids: make(map[string]markov.TokenID),
		off: []int{0},
	}
	a.Intern(markov.BoundaryText)
	return a
}

// Intern returns the ID for text, storing it on first sight
func (a *TokenArena) Intern(text string) markov.TokenID {
	if id, exists := a.ids[text]; exists {
		return id
	}

	id := markov.TokenID(len(a.off) - 1)
	a.blob = append(a.blob, text...)
	a.off = append(a.off, len(a.blob))
	a.ids[text] = id
	return id
}

// Bytes returns the bytes of token id. The slice aliases the arena and must
// not be modified.
func (a *TokenArena) Bytes(id markov.TokenID) []byte {
	if int(id)+1 >= len(a.off) {
		return nil
	}
	return a.blob[a.off[id]:a.off[id+1]:a.off[id+1]]
}

// Text returns the text of token id, or "" for unknown IDs
func (a *TokenArena) Text(id markov.TokenID) string {
	return string(a.Bytes(id))
}

// Len returns the number of interned tokens, boundary included
func (a *TokenArena) Len() int {
	return len(a.off) - 1
}

// Size returns the number of token bytes held by the arena
func (a *TokenArena) Size() int {
	return len(a.blob)
}

// Release drops all token storage
func (a *TokenArena) Release() {
	a.ids = nil
	a.blob = nil
	a.off = []int{0}
}

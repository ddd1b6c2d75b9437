// internal/words/registry.go
//
// Word Registry for the duel service.
// Responsibilities:
//   - Hold the append-only list of target words; a word's ID is its position.
//   - Validate (exactly five A–Z letters) and deduplicate at insertion.
//   - Answer lookups by ID and by word.
//
// The registry is not safe for concurrent use; the duel service serializes
// every call that touches it.

package words

import (
	"errors"
	"strings"
)

// Length is the number of letters in every registry word and guess.
const Length = 5

var (
	ErrInvalidWord = errors.New("wordle does not match requirements")
	ErrWordExists  = errors.New("wordle exists")
)

// Registry is an append-only list of uppercase five-letter words.
type Registry struct {
	words []string
	index map[string]int // word -> ID
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Normalize upper-cases a candidate word and strips surrounding whitespace.
func Normalize(w string) string {
	return strings.ToUpper(strings.TrimSpace(w))
}

// IsValid reports whether w is exactly Length uppercase ASCII letters.
func IsValid(w string) bool {
	if len(w) != Length {
		return false
	}
	for i := 0; i < len(w); i++ {
		if w[i] < 'A' || w[i] > 'Z' {
			return false
		}
	}
	return true
}

// Add normalizes w and appends it, returning the new word's ID.
func (r *Registry) Add(w string) (int, error) {
	w = Normalize(w)
	if !IsValid(w) {
		return -1, ErrInvalidWord
	}
	if r.Exists(w) {
		return -1, ErrWordExists
	}
	id := len(r.words)
	r.words = append(r.words, w)
	r.index[w] = id
	return id, nil
}

// Exists reports whether the normalized form of w is registered.
func (r *Registry) Exists(w string) bool {
	_, ok := r.index[Normalize(w)]
	return ok
}

// Word returns the word registered under id.
func (r *Registry) Word(id int) (string, bool) {
	if id < 0 || id >= len(r.words) {
		return "", false
	}
	return r.words[id], true
}

// Len returns the number of registered words.
func (r *Registry) Len() int { return len(r.words) }

// All returns a copy of the registry in ID order.
func (r *Registry) All() []string {
	return append([]string{}, r.words...)
}

// Reset empties the registry.
func (r *Registry) Reset() {
	r.words = nil
	r.index = make(map[string]int)
}

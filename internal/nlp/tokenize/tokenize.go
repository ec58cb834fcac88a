// Package tokenize implements the preprocessing front of the annotation
// pipeline: cleaning raw text, splitting it into whitespace/punctuation
// tokens with rune-accurate source offsets, detecting sentence boundaries,
// and chunking long documents into bounded-length segments.
//
// Tokenization is a pure function over its input and accounts for every
// character: each input rune lands either inside exactly one token span or in
// an inter-token whitespace gap, never in both and never in neither.
package tokenize

import (
	"strings"
	"unicode"

	"github.com/spanmark/spanmark/internal/domain/document"
	"github.com/spanmark/spanmark/pkg/errors"
)

// DefaultBoundaryRunes are the punctuation runes split off token boundaries.
// Interior punctuation (hyphens, apostrophes, slashes) stays inside tokens,
// so "state-of-the-art" and "O'Brien" survive as single tokens while
// "(California)." becomes four.
const DefaultBoundaryRunes = `.,;:!?()[]{}<>"'«»“”‘’`

// ─────────────────────────────────────────────────────────────────────────────
// Tokenizer
// ─────────────────────────────────────────────────────────────────────────────

// Tokenizer splits text on whitespace and peels boundary punctuation into
// single-rune tokens.
type Tokenizer struct {
	boundary map[rune]bool
}

// Option configures a Tokenizer.
type Option func(*Tokenizer)

// WithBoundaryRunes replaces the default boundary punctuation set.
func WithBoundaryRunes(runes string) Option {
	return func(t *Tokenizer) {
		t.boundary = make(map[rune]bool, len(runes))
		for _, r := range runes {
			t.boundary[r] = true
		}
	}
}

// NewTokenizer creates a Tokenizer with the default boundary rune set.
func NewTokenizer(opts ...Option) *Tokenizer {
	t := &Tokenizer{}
	WithBoundaryRunes(DefaultBoundaryRunes)(t)
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Tokenize splits text into tokens and wraps them in a new Document named
// name. It fails with an input error on empty or whitespace-only text.
func (t *Tokenizer) Tokenize(name, text string) (*document.Document, error) {
	tokens, err := t.Split(text)
	if err != nil {
		return nil, err
	}
	return document.New(name, text, tokens)
}

// Split returns the token sequence for text without constructing a Document.
// Offsets are rune positions into text.
func (t *Tokenizer) Split(text string) ([]document.Token, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New(errors.ErrCodeEmptyInput, "cannot tokenize empty text")
	}

	runes := []rune(text)
	var tokens []document.Token

	segStart := -1
	for i, r := range runes {
		if unicode.IsSpace(r) {
			if segStart >= 0 {
				tokens = t.appendSegment(tokens, runes, segStart, i)
				segStart = -1
			}
			continue
		}
		if segStart < 0 {
			segStart = i
		}
	}
	if segStart >= 0 {
		tokens = t.appendSegment(tokens, runes, segStart, len(runes))
	}

	return tokens, nil
}

// appendSegment emits the tokens of one whitespace-delimited segment
// [lo, hi): leading boundary runes one by one, the interior as a single
// token, then trailing boundary runes one by one.
func (t *Tokenizer) appendSegment(tokens []document.Token, runes []rune, lo, hi int) []document.Token {
	for lo < hi && t.boundary[runes[lo]] {
		tokens = append(tokens, document.Token{
			Text:  string(runes[lo]),
			Start: lo,
			End:   lo + 1,
		})
		lo++
	}

	end := hi
	for end > lo && t.boundary[runes[end-1]] {
		end--
	}

	if end > lo {
		tokens = append(tokens, document.Token{
			Text:  string(runes[lo:end]),
			Start: lo,
			End:   end,
		})
	}

	for i := end; i < hi; i++ {
		tokens = append(tokens, document.Token{
			Text:  string(runes[i]),
			Start: i,
			End:   i + 1,
		})
	}
	return tokens
}

// Tokenize splits text with the default tokenizer configuration.
func Tokenize(name, text string) (*document.Document, error) {
	return NewTokenizer().Tokenize(name, text)
}

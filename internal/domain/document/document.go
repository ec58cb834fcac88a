// Package document implements the Document aggregate of the annotation
// pipeline: an immutable, offset-indexed token sequence over a source text.
// All invariants that concern token geometry (contiguity, ordering, bounds)
// live here; how a text is split into tokens is the concern of the nlp
// packages, and persistence is handled by separate repository adapters.
package document

import (
	"fmt"
	"time"

	"github.com/spanmark/spanmark/pkg/errors"
	"github.com/spanmark/spanmark/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// Token value object
// ─────────────────────────────────────────────────────────────────────────────

// Token is the atomic unit of a Document. Start and End are rune offsets into
// the document text, half-open [Start, End). The token's position in the
// Document's token slice is its index; indices are 0-based and contiguous by
// construction.
type Token struct {
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Width returns the token's span length in runes.
func (t Token) Width() int { return t.End - t.Start }

// ─────────────────────────────────────────────────────────────────────────────
// Document aggregate root
// ─────────────────────────────────────────────────────────────────────────────

// Document is an ordered sequence of tokens over a source text. The token
// sequence is immutable once the Document is constructed; re-tokenizing a text
// produces a new Document with a new identity.
//
// A Document produced by chunking a longer one carries lineage fields that map
// its local token and rune offsets back onto the source Document, so that a
// chunk-local annotation can always be traced to source character positions.
type Document struct {
	common.BaseEntity

	Name   string  `json:"name"`
	Text   string  `json:"text"`
	Tokens []Token `json:"tokens"`

	// ── Chunk lineage (zero values for root documents) ───────────────────────
	SourceID          common.ID `json:"source_id,omitempty"`
	SourceTokenOffset int       `json:"source_token_offset,omitempty"`
	SourceCharOffset  int       `json:"source_char_offset,omitempty"`

	events []common.DomainEvent
}

// ─────────────────────────────────────────────────────────────────────────────
// Factory function
// ─────────────────────────────────────────────────────────────────────────────

// New creates a Document from a source text and its tokenization, enforcing
// the construction invariants:
//   - name and text must be non-empty, and at least one token must be given.
//   - every token span must satisfy 0 <= Start < End <= runeLen(text).
//   - token spans must be strictly increasing and non-overlapping
//     (tokens[i].End <= tokens[i+1].Start).
//   - every token's Text must equal the text slice its span addresses, so no
//     character range is silently claimed by the wrong token.
//
// On success a DocumentImported event is recorded.
func New(name, text string, tokens []Token) (*Document, error) {
	if name == "" {
		return nil, errors.InvalidParam("document name must not be empty")
	}
	if text == "" {
		return nil, errors.InvalidParam("document text must not be empty")
	}
	if len(tokens) == 0 {
		return nil, errors.InvalidParam("document must contain at least one token")
	}

	if err := validateTokens(text, tokens); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	d := &Document{
		BaseEntity: common.BaseEntity{
			ID:        common.NewID(),
			CreatedAt: now,
			UpdatedAt: now,
			Version:   1,
		},
		Name:   name,
		Text:   text,
		Tokens: append([]Token(nil), tokens...),
	}

	d.recordEvent(NewImportedEvent(d))
	return d, nil
}

// validateTokens checks span bounds, ordering, and text fidelity for a token
// sequence over the given text.
func validateTokens(text string, tokens []Token) error {
	runes := []rune(text)

	prevEnd := 0
	for i, tok := range tokens {
		if tok.Start < 0 || tok.End > len(runes) || tok.Start >= tok.End {
			return errors.InvalidParam(
				fmt.Sprintf("token %d has invalid span [%d,%d) over text of %d runes",
					i, tok.Start, tok.End, len(runes)),
			)
		}
		if tok.Start < prevEnd {
			return errors.InvalidParam(
				fmt.Sprintf("token %d span [%d,%d) overlaps or precedes previous token ending at %d",
					i, tok.Start, tok.End, prevEnd),
			)
		}
		if got := string(runes[tok.Start:tok.End]); got != tok.Text {
			return errors.InvalidParam(
				fmt.Sprintf("token %d text %q does not match source slice %q at [%d,%d)",
					i, tok.Text, got, tok.Start, tok.End),
			)
		}
		prevEnd = tok.End
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Accessors
// ─────────────────────────────────────────────────────────────────────────────

// TokenCount returns the number of tokens in the document.
func (d *Document) TokenCount() int { return len(d.Tokens) }

// TokenTexts returns the token surface forms in order.
func (d *Document) TokenTexts() []string {
	out := make([]string, len(d.Tokens))
	for i, t := range d.Tokens {
		out[i] = t.Text
	}
	return out
}

// ValidSpan reports whether [start, end) is a legal token range for this
// document: 0 <= start < end <= len(tokens).
func (d *Document) ValidSpan(start, end int) bool {
	return start >= 0 && start < end && end <= len(d.Tokens)
}

// SpanText returns the source text covered by the token range [start, end),
// including any inter-token separators the range spans.
func (d *Document) SpanText(start, end int) (string, error) {
	if !d.ValidSpan(start, end) {
		return "", errors.New(errors.ErrCodeSpanOutOfBounds,
			fmt.Sprintf("token range [%d,%d) out of bounds for document of %d tokens",
				start, end, len(d.Tokens)),
		)
	}
	runes := []rune(d.Text)
	return string(runes[d.Tokens[start].Start:d.Tokens[end-1].End]), nil
}

// IsChunk reports whether this document was derived by chunking another.
func (d *Document) IsChunk() bool { return d.SourceID != "" }

// SourceCharSpan maps a chunk-local token index to its rune span in the root
// source text. For a root document this is the token's own span.
func (d *Document) SourceCharSpan(i int) (start, end int, err error) {
	if i < 0 || i >= len(d.Tokens) {
		return 0, 0, errors.InvalidParam(
			fmt.Sprintf("token index %d out of bounds for document of %d tokens", i, len(d.Tokens)),
		)
	}
	t := d.Tokens[i]
	return t.Start + d.SourceCharOffset, t.End + d.SourceCharOffset, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Chunk derivation
// ─────────────────────────────────────────────────────────────────────────────

// NewChunk derives a new Document covering the token range [lo, hi) of d.
// The chunk's text is the source slice spanned by those tokens, its token
// offsets are rebased to the chunk text, and its lineage fields compose with
// d's own lineage so chunks of chunks still map back to the root source.
//
// No import event is recorded for a chunk; the chunking pass reports once for
// the whole operation.
func (d *Document) NewChunk(name string, lo, hi int) (*Document, error) {
	if !d.ValidSpan(lo, hi) {
		return nil, errors.InvalidParam(
			fmt.Sprintf("chunk range [%d,%d) out of bounds for document of %d tokens",
				lo, hi, len(d.Tokens)),
		)
	}
	if name == "" {
		return nil, errors.InvalidParam("chunk name must not be empty")
	}

	charLo := d.Tokens[lo].Start
	charHi := d.Tokens[hi-1].End
	runes := []rune(d.Text)

	tokens := make([]Token, hi-lo)
	for i, t := range d.Tokens[lo:hi] {
		tokens[i] = Token{
			Text:  t.Text,
			Start: t.Start - charLo,
			End:   t.End - charLo,
		}
	}

	sourceID := d.ID
	if d.IsChunk() {
		sourceID = d.SourceID
	}

	now := time.Now().UTC()
	return &Document{
		BaseEntity: common.BaseEntity{
			ID:        common.NewID(),
			CreatedAt: now,
			UpdatedAt: now,
			Version:   1,
		},
		Name:              name,
		Text:              string(runes[charLo:charHi]),
		Tokens:            tokens,
		SourceID:          sourceID,
		SourceTokenOffset: d.SourceTokenOffset + lo,
		SourceCharOffset:  d.SourceCharOffset + charLo,
	}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Domain event collection
// ─────────────────────────────────────────────────────────────────────────────

// Events returns the domain events accumulated since the last call and clears
// the internal buffer. Callers publish these after the unit of work commits.
func (d *Document) Events() []common.DomainEvent {
	evts := d.events
	d.events = nil
	return evts
}

func (d *Document) recordEvent(evt common.DomainEvent) {
	d.events = append(d.events, evt)
}

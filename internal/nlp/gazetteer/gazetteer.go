package gazetteer

import (
	"strings"

	"github.com/spanmark/spanmark/internal/nlp/tokenize"
	"github.com/spanmark/spanmark/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Gazetteer
// ─────────────────────────────────────────────────────────────────────────────

// Gazetteer is a dictionary of known surface forms mapped to entity types,
// indexed as a token-level prefix trie. Terms are tokenized with the same
// tokenizer the documents use, so multi-token surfaces like "New York City"
// match token for token.
//
// Registration order matters: when two same-length surfaces compete at the
// same start position, the first-registered entry wins.
type Gazetteer struct {
	tokenizer     *tokenize.Tokenizer
	caseSensitive bool

	root      *trieNode
	termCount int
	nextOrder int
}

// trieNode is one level of the prefix index, keyed by normalized token text.
// entries hold the terms ending at this node, in registration order.
type trieNode struct {
	children map[string]*trieNode
	entries  []trieEntry
}

type trieEntry struct {
	term     string
	typeName string
	order    int
}

// GazetteerOption configures a Gazetteer.
type GazetteerOption func(*Gazetteer)

// WithCaseSensitive disables the default case-insensitive matching.
func WithCaseSensitive(on bool) GazetteerOption {
	return func(g *Gazetteer) { g.caseSensitive = on }
}

// WithTermTokenizer replaces the tokenizer used to split lexicon terms. It
// must match the tokenizer applied to documents or multi-token surfaces will
// never align.
func WithTermTokenizer(t *tokenize.Tokenizer) GazetteerOption {
	return func(g *Gazetteer) { g.tokenizer = t }
}

// New creates an empty Gazetteer.
func New(opts ...GazetteerOption) *Gazetteer {
	g := &Gazetteer{
		tokenizer: tokenize.NewTokenizer(),
		root:      &trieNode{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Add registers a surface form under an entity type. Registering the same
// (surface, type) pair twice is a no-op, so lexicon imports are idempotent.
func (g *Gazetteer) Add(term, typeName string) error {
	term = strings.TrimSpace(term)
	if term == "" {
		return errors.New(errors.ErrCodeEmptyTerm, "gazetteer term must not be empty")
	}
	if typeName == "" {
		return errors.InvalidParam("gazetteer entry requires an entity type")
	}

	tokens, err := g.tokenizer.Split(term)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeEmptyTerm,
			"gazetteer term has no tokens")
	}

	node := g.root
	for _, tok := range tokens {
		key := normalizeToken(tok.Text, g.caseSensitive)
		if node.children == nil {
			node.children = make(map[string]*trieNode)
		}
		child, ok := node.children[key]
		if !ok {
			child = &trieNode{}
			node.children[key] = child
		}
		node = child
	}

	for _, e := range node.entries {
		if e.typeName == typeName {
			return nil
		}
	}

	node.entries = append(node.entries, trieEntry{
		term:     term,
		typeName: typeName,
		order:    g.nextOrder,
	})
	g.nextOrder++
	g.termCount++
	return nil
}

// AddEntries registers a batch of lexicon entries, returning how many were
// newly added.
func (g *Gazetteer) AddEntries(entries []Entry) (int, error) {
	added := 0
	for _, e := range entries {
		before := g.termCount
		if err := g.Add(e.Term, e.Type); err != nil {
			return added, err
		}
		if g.termCount > before {
			added++
		}
	}
	return added, nil
}

// TermCount returns the number of registered (surface, type) pairs.
func (g *Gazetteer) TermCount() int { return g.termCount }

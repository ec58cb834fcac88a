package gazetteer

import (
	"github.com/spanmark/spanmark/internal/domain/annotation"
	"github.com/spanmark/spanmark/internal/domain/document"
)

// Candidate confidence by source: exact dictionary hits are certain, pattern
// rules are heuristic.
const (
	DictionaryConfidence = 1.0
	PatternConfidence    = 0.9
)

// ─────────────────────────────────────────────────────────────────────────────
// Dictionary matching
// ─────────────────────────────────────────────────────────────────────────────

// FindCandidates scans the document for gazetteer mentions and returns
// candidate entities with gazetteer provenance, ordered by start token.
//
// Matching is greedy longest-match-first: at every start token the deepest
// trie hit wins and shorter prefixes of it are not emitted. Matches beginning
// at different positions are all emitted even when they overlap; among
// equal-length hits at one position the first-registered type wins. The scan
// is deterministic: the same document and gazetteer always yield the same
// candidates in the same order.
func (g *Gazetteer) FindCandidates(doc *document.Document) []annotation.Entity {
	if doc == nil || g.termCount == 0 {
		return nil
	}

	keys := make([]string, len(doc.Tokens))
	for i, tok := range doc.Tokens {
		keys[i] = normalizeToken(tok.Text, g.caseSensitive)
	}

	var candidates []annotation.Entity
	for start := range keys {
		node := g.root
		var best *trieEntry
		bestEnd := start

		for j := start; j < len(keys); j++ {
			child, ok := node.children[keys[j]]
			if !ok {
				break
			}
			node = child
			if len(node.entries) > 0 {
				// entries are in registration order; the first wins ties.
				best = &node.entries[0]
				bestEnd = j + 1
			}
		}

		if best != nil {
			candidates = append(candidates, annotation.Entity{
				Type:       best.typeName,
				Start:      start,
				End:        bestEnd,
				Provenance: annotation.ProvenanceGazetteer,
				Confidence: DictionaryConfidence,
			})
		}
	}
	return candidates
}

// ─────────────────────────────────────────────────────────────────────────────
// Matcher: dictionary plus pattern rules
// ─────────────────────────────────────────────────────────────────────────────

// Matcher combines dictionary lookup with per-token pattern rules into one
// candidate stream.
type Matcher struct {
	gaz   *Gazetteer
	rules []PatternRule
}

// NewMatcher creates a Matcher. A nil gazetteer is allowed when only pattern
// rules are wanted.
func NewMatcher(g *Gazetteer, rules ...PatternRule) *Matcher {
	return &Matcher{gaz: g, rules: rules}
}

// FindCandidates returns dictionary and pattern candidates ordered by start
// token; at each position dictionary hits precede rule hits, and rules apply
// in registration order. A pattern hit duplicating a dictionary hit's
// (start, end, type) identity is suppressed.
func (m *Matcher) FindCandidates(doc *document.Document) []annotation.Entity {
	if doc == nil {
		return nil
	}

	byStart := make(map[int]annotation.Entity)
	if m.gaz != nil {
		for _, c := range m.gaz.FindCandidates(doc) {
			byStart[c.Start] = c
		}
	}

	var candidates []annotation.Entity
	seen := make(map[string]bool)

	for i, tok := range doc.Tokens {
		if c, ok := byStart[i]; ok {
			candidates = append(candidates, c)
			seen[c.Key()] = true
		}
		for _, rule := range m.rules {
			if !rule.Matches(tok.Text) {
				continue
			}
			c := annotation.Entity{
				Type:       rule.Type,
				Start:      i,
				End:        i + 1,
				Provenance: annotation.ProvenanceGazetteer,
				Confidence: PatternConfidence,
			}
			if seen[c.Key()] {
				continue
			}
			seen[c.Key()] = true
			candidates = append(candidates, c)
		}
	}
	return candidates
}

// Package gazetteer implements dictionary-driven candidate generation: a
// token-level prefix trie over normalized surface forms, greedy longest-match
// scanning, simple per-token pattern rules, and streaming lexicon readers.
// Candidates are emitted even when they overlap; overlap resolution belongs
// to the merge engine.
package gazetteer

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// typographyFold maps typographic variants onto their plain ASCII forms so
// "O’Brien" in a lexicon matches "O'Brien" in a document. The soft hyphen is
// dropped outright.
var typographyFold = strings.NewReplacer(
	"“", `"`, // left double quote
	"”", `"`, // right double quote
	"‘", "'", // left single quote
	"’", "'", // right single quote
	"–", "-", // en dash
	"—", "-", // em dash
	"­", "", // soft hyphen
)

// normalizeToken canonicalizes one token for trie keys and lookups: Unicode
// compatibility normalization (NFKC), typography folding, and optional case
// folding.
func normalizeToken(s string, caseSensitive bool) string {
	s = norm.NFKC.String(s)
	s = typographyFold.Replace(s)
	if !caseSensitive {
		s = strings.ToLower(s)
	}
	return strings.TrimSpace(s)
}

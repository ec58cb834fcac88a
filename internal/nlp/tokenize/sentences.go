package tokenize

import (
	"strings"

	"github.com/spanmark/spanmark/internal/domain/document"
)

// terminalRunes end a sentence; closerRunes may trail a terminal and still
// belong to the closing sentence ("he said 'go.'").
const (
	terminalRunes = ".!?…"
	closerRunes   = `)]}"'»”’`
)

// isTerminal reports whether the token closes a sentence.
func isTerminal(tok document.Token) bool {
	if tok.Text == "" {
		return false
	}
	last := []rune(tok.Text)
	return strings.ContainsRune(terminalRunes, last[len(last)-1])
}

// isCloser reports whether the token is punctuation that may trail a
// sentence terminal.
func isCloser(tok document.Token) bool {
	r := []rune(tok.Text)
	return len(r) == 1 && strings.ContainsRune(closerRunes, r[0])
}

// Sentences returns the sentence segmentation of a token sequence as
// half-open token ranges [lo, hi) covering every token. A sentence ends at a
// terminal punctuation token, extended over any immediately following closing
// quotes or brackets; trailing material without a terminal forms a final
// sentence of its own.
func Sentences(tokens []document.Token) [][2]int {
	if len(tokens) == 0 {
		return nil
	}

	var ranges [][2]int
	lo := 0
	for i := 0; i < len(tokens); i++ {
		if !isTerminal(tokens[i]) {
			continue
		}
		hi := i + 1
		for hi < len(tokens) && isCloser(tokens[hi]) {
			hi++
		}
		ranges = append(ranges, [2]int{lo, hi})
		i = hi - 1
		lo = hi
	}
	if lo < len(tokens) {
		ranges = append(ranges, [2]int{lo, len(tokens)})
	}
	return ranges
}

// SentenceCount returns the number of sentences in a token sequence.
func SentenceCount(tokens []document.Token) int {
	return len(Sentences(tokens))
}

package tokenize_test

import (
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spanmark/spanmark/internal/domain/document"
	"github.com/spanmark/spanmark/internal/nlp/tokenize"
	"github.com/spanmark/spanmark/pkg/errors"
)

func TestTokenize_WhitespaceSplit(t *testing.T) {
	t.Parallel()

	doc, err := tokenize.Tokenize("john.txt", "John works for Google in California")
	require.NoError(t, err)

	assert.Equal(t, []document.Token{
		{Text: "John", Start: 0, End: 4},
		{Text: "works", Start: 5, End: 10},
		{Text: "for", Start: 11, End: 14},
		{Text: "Google", Start: 15, End: 21},
		{Text: "in", Start: 22, End: 24},
		{Text: "California", Start: 25, End: 35},
	}, doc.Tokens)
}

func TestTokenize_BoundaryPunctuationPeeled(t *testing.T) {
	t.Parallel()

	doc, err := tokenize.Tokenize("d", "He works at Google (California).")
	require.NoError(t, err)

	assert.Equal(t, []document.Token{
		{Text: "He", Start: 0, End: 2},
		{Text: "works", Start: 3, End: 8},
		{Text: "at", Start: 9, End: 11},
		{Text: "Google", Start: 12, End: 18},
		{Text: "(", Start: 19, End: 20},
		{Text: "California", Start: 20, End: 30},
		{Text: ")", Start: 30, End: 31},
		{Text: ".", Start: 31, End: 32},
	}, doc.Tokens)
}

func TestTokenize_InteriorPunctuationKept(t *testing.T) {
	t.Parallel()

	doc, err := tokenize.Tokenize("d", "state-of-the-art O'Brien's U.S. approach")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"state-of-the-art", "O'Brien's", "U.S", ".", "approach",
	}, doc.TokenTexts())
}

func TestTokenize_PunctuationOnlySegment(t *testing.T) {
	t.Parallel()

	doc, err := tokenize.Tokenize("d", "wait ... ok")
	require.NoError(t, err)

	assert.Equal(t, []document.Token{
		{Text: "wait", Start: 0, End: 4},
		{Text: ".", Start: 5, End: 6},
		{Text: ".", Start: 6, End: 7},
		{Text: ".", Start: 7, End: 8},
		{Text: "ok", Start: 9, End: 11},
	}, doc.Tokens)
}

func TestTokenize_EmptyInput(t *testing.T) {
	t.Parallel()

	for _, text := range []string{"", "   ", "\n\t \n"} {
		_, err := tokenize.Tokenize("d", text)
		require.Error(t, err, "text %q", text)
		assert.True(t, errors.IsCode(err, errors.ErrCodeEmptyInput))
		assert.True(t, errors.IsInputError(err))
	}
}

func TestTokenize_RuneOffsets(t *testing.T) {
	t.Parallel()

	doc, err := tokenize.Tokenize("d", "naïve café drinkers")
	require.NoError(t, err)

	assert.Equal(t, []document.Token{
		{Text: "naïve", Start: 0, End: 5},
		{Text: "café", Start: 6, End: 10},
		{Text: "drinkers", Start: 11, End: 19},
	}, doc.Tokens)
}

func TestTokenize_CustomBoundaryRunes(t *testing.T) {
	t.Parallel()

	tk := tokenize.NewTokenizer(tokenize.WithBoundaryRunes("."))
	tokens, err := tk.Split("(ok).")
	require.NoError(t, err)

	assert.Equal(t, []document.Token{
		{Text: "(ok)", Start: 0, End: 4},
		{Text: ".", Start: 4, End: 5},
	}, tokens)
}

// Every input rune must be claimed by exactly one token or by whitespace,
// never both, never neither.
func TestTokenize_CharacterAccounting(t *testing.T) {
	t.Parallel()

	texts := []string{
		"John works for Google in California",
		"He said: 'wait...' (then left).",
		"naïve café, 3.5% growth [sic] — done!",
		"a\nb\t c  d",
	}

	for _, text := range texts {
		tokens, err := tokenize.NewTokenizer().Split(text)
		require.NoError(t, err, "text %q", text)

		runes := []rune(text)
		claimed := make([]int, len(runes))
		for _, tok := range tokens {
			for i := tok.Start; i < tok.End; i++ {
				claimed[i]++
			}
		}

		for i, r := range runes {
			if unicode.IsSpace(r) {
				assert.Zero(t, claimed[i], "whitespace rune %d in %q claimed by a token", i, text)
			} else {
				assert.Equal(t, 1, claimed[i], "rune %d (%q) in %q claimed %d times", i, string(r), text, claimed[i])
			}
		}
	}
}

package document_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spanmark/spanmark/internal/domain/document"
	"github.com/spanmark/spanmark/pkg/errors"
)

// johnDoc builds the canonical six-token example document.
func johnDoc(t *testing.T) *document.Document {
	t.Helper()
	d, err := document.New("john.txt", "John works for Google in California", []document.Token{
		{Text: "John", Start: 0, End: 4},
		{Text: "works", Start: 5, End: 10},
		{Text: "for", Start: 11, End: 14},
		{Text: "Google", Start: 15, End: 21},
		{Text: "in", Start: 22, End: 24},
		{Text: "California", Start: 25, End: 35},
	})
	require.NoError(t, err)
	return d
}

func TestNew_ValidDocument(t *testing.T) {
	t.Parallel()

	d := johnDoc(t)

	assert.NotEmpty(t, d.ID)
	assert.Equal(t, 1, d.Version)
	assert.Equal(t, 6, d.TokenCount())
	assert.Equal(t,
		[]string{"John", "works", "for", "Google", "in", "California"},
		d.TokenTexts(),
	)
	assert.False(t, d.IsChunk())
}

func TestNew_RequiredFieldGuards(t *testing.T) {
	t.Parallel()

	tok := []document.Token{{Text: "x", Start: 0, End: 1}}

	cases := []struct {
		name   string
		docNam string
		text   string
		tokens []document.Token
	}{
		{"empty name", "", "x", tok},
		{"empty text", "d", "", tok},
		{"no tokens", "d", "x", nil},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := document.New(tc.docNam, tc.text, tc.tokens)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
		})
	}
}

func TestNew_TokenInvariants(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		tokens []document.Token
	}{
		{
			"start not before end",
			[]document.Token{{Text: "ab", Start: 2, End: 2}},
		},
		{
			"end beyond text",
			[]document.Token{{Text: "ab cd!", Start: 0, End: 6}},
		},
		{
			"negative start",
			[]document.Token{{Text: "a", Start: -1, End: 1}},
		},
		{
			"overlapping spans",
			[]document.Token{
				{Text: "ab", Start: 0, End: 2},
				{Text: "b", Start: 1, End: 2},
			},
		},
		{
			"decreasing order",
			[]document.Token{
				{Text: "cd", Start: 3, End: 5},
				{Text: "ab", Start: 0, End: 2},
			},
		},
		{
			"text mismatch",
			[]document.Token{{Text: "zz", Start: 0, End: 2}},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := document.New("d", "ab cd", tc.tokens)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.CodeInvalidParam), "got %v", err)
		})
	}
}

func TestNew_RuneOffsets(t *testing.T) {
	t.Parallel()

	// Offsets count runes, not bytes: both accented and currency runes are
	// multi-byte in UTF-8.
	d, err := document.New("euro.txt", "café costs €5", []document.Token{
		{Text: "café", Start: 0, End: 4},
		{Text: "costs", Start: 5, End: 10},
		{Text: "€5", Start: 11, End: 13},
	})
	require.NoError(t, err)

	got, err := d.SpanText(2, 3)
	require.NoError(t, err)
	assert.Equal(t, "€5", got)
}

func TestSpanText(t *testing.T) {
	t.Parallel()

	d := johnDoc(t)

	got, err := d.SpanText(3, 4)
	require.NoError(t, err)
	assert.Equal(t, "Google", got)

	got, err = d.SpanText(0, 2)
	require.NoError(t, err)
	assert.Equal(t, "John works", got)

	_, err = d.SpanText(5, 9)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSpanOutOfBounds))
}

func TestValidSpan(t *testing.T) {
	t.Parallel()

	d := johnDoc(t)

	cases := []struct {
		start, end int
		want       bool
	}{
		{0, 1, true},
		{0, 6, true},
		{5, 6, true},
		{3, 3, false},
		{4, 3, false},
		{-1, 2, false},
		{0, 7, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, d.ValidSpan(tc.start, tc.end),
			"span [%d,%d)", tc.start, tc.end)
	}
}

func TestNewChunk(t *testing.T) {
	t.Parallel()

	d := johnDoc(t)

	chunk, err := d.NewChunk("john.txt#001", 3, 6)
	require.NoError(t, err)

	assert.Equal(t, "Google in California", chunk.Text)
	assert.Equal(t, []document.Token{
		{Text: "Google", Start: 0, End: 6},
		{Text: "in", Start: 7, End: 9},
		{Text: "California", Start: 10, End: 20},
	}, chunk.Tokens)

	assert.True(t, chunk.IsChunk())
	assert.Equal(t, d.ID, chunk.SourceID)
	assert.Equal(t, 3, chunk.SourceTokenOffset)
	assert.Equal(t, 15, chunk.SourceCharOffset)

	start, end, err := chunk.SourceCharSpan(0)
	require.NoError(t, err)
	assert.Equal(t, 15, start)
	assert.Equal(t, 21, end)
}

func TestNewChunk_OfChunkKeepsRootLineage(t *testing.T) {
	t.Parallel()

	d := johnDoc(t)
	mid, err := d.NewChunk("john.txt#001", 3, 6)
	require.NoError(t, err)

	leaf, err := mid.NewChunk("john.txt#001a", 1, 3)
	require.NoError(t, err)

	assert.Equal(t, d.ID, leaf.SourceID, "lineage must point at the root document")
	assert.Equal(t, 4, leaf.SourceTokenOffset)
	assert.Equal(t, 22, leaf.SourceCharOffset)
	assert.Equal(t, "in California", leaf.Text)

	// Token "California" inside the leaf maps back to its root rune span.
	start, end, err := leaf.SourceCharSpan(1)
	require.NoError(t, err)
	assert.Equal(t, 25, start)
	assert.Equal(t, 35, end)
}

func TestNewChunk_Guards(t *testing.T) {
	t.Parallel()

	d := johnDoc(t)

	_, err := d.NewChunk("", 0, 2)
	assert.Error(t, err)

	_, err = d.NewChunk("c", 4, 2)
	assert.Error(t, err)

	_, err = d.NewChunk("c", 0, 7)
	assert.Error(t, err)
}

func TestEvents_DrainOnRead(t *testing.T) {
	t.Parallel()

	d := johnDoc(t)

	evts := d.Events()
	require.Len(t, evts, 1)
	imported, ok := evts[0].(*document.ImportedEvent)
	require.True(t, ok)
	assert.Equal(t, "john.txt", imported.Name)
	assert.Equal(t, 6, imported.TokenCount)
	assert.Equal(t, string(d.ID), imported.AggregateID())

	assert.Empty(t, d.Events(), "second read must return nothing")
}

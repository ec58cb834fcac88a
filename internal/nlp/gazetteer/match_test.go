package gazetteer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spanmark/spanmark/internal/nlp/gazetteer"
)

func yearRule(t *testing.T, typeName string) gazetteer.PatternRule {
	t.Helper()
	rule, err := gazetteer.NewPatternRule("year", typeName, `(19|20)\d{2}`)
	require.NoError(t, err)
	return rule
}

func TestMatcherCombinesDictionaryAndRules(t *testing.T) {
	t.Parallel()

	g := gazetteer.New()
	require.NoError(t, g.Add("Google", "ORGANIZATION"))

	m := gazetteer.NewMatcher(g, yearRule(t, "DATE"))
	candidates := m.FindCandidates(mustTokenize(t, "Google IPO in 2004"))

	require.Len(t, candidates, 2)

	assert.Equal(t, [2]int{0, 1}, spanOf(candidates[0]))
	assert.Equal(t, "ORGANIZATION", candidates[0].Type)
	assert.Equal(t, gazetteer.DictionaryConfidence, candidates[0].Confidence)

	assert.Equal(t, [2]int{3, 4}, spanOf(candidates[1]))
	assert.Equal(t, "DATE", candidates[1].Type)
	assert.Equal(t, gazetteer.PatternConfidence, candidates[1].Confidence)
}

func TestMatcherDictionaryHitSuppressesSamePatternHit(t *testing.T) {
	t.Parallel()

	g := gazetteer.New()
	require.NoError(t, g.Add("2004", "DATE"))

	m := gazetteer.NewMatcher(g, yearRule(t, "DATE"))
	candidates := m.FindCandidates(mustTokenize(t, "in 2004"))

	require.Len(t, candidates, 1, "same (span, type) reported once")
	assert.Equal(t, [2]int{1, 2}, spanOf(candidates[0]))
	assert.Equal(t, gazetteer.DictionaryConfidence, candidates[0].Confidence,
		"the dictionary hit wins over the rule hit")
}

func TestMatcherKeepsRuleHitOfDifferentType(t *testing.T) {
	t.Parallel()

	g := gazetteer.New()
	require.NoError(t, g.Add("2004", "YEAR"))

	m := gazetteer.NewMatcher(g, yearRule(t, "DATE"))
	candidates := m.FindCandidates(mustTokenize(t, "in 2004"))

	require.Len(t, candidates, 2)
	assert.Equal(t, "YEAR", candidates[0].Type)
	assert.Equal(t, "DATE", candidates[1].Type)
	assert.Equal(t, spanOf(candidates[0]), spanOf(candidates[1]))
}

func TestMatcherRulesOnly(t *testing.T) {
	t.Parallel()

	m := gazetteer.NewMatcher(nil, yearRule(t, "DATE"))
	candidates := m.FindCandidates(mustTokenize(t, "born 1999 died 2077"))

	require.Len(t, candidates, 2)
	assert.Equal(t, [2]int{1, 2}, spanOf(candidates[0]))
	assert.Equal(t, [2]int{3, 4}, spanOf(candidates[1]))
	for _, c := range candidates {
		assert.Equal(t, "DATE", c.Type)
	}

	assert.Nil(t, m.FindCandidates(nil))
}

func TestMatcherRulesApplyToWholeTokensOnly(t *testing.T) {
	t.Parallel()

	m := gazetteer.NewMatcher(nil, yearRule(t, "DATE"))

	// "2004-2008" stays one token; the anchored rule does not fire inside it.
	candidates := m.FindCandidates(mustTokenize(t, "the 2004-2008 period"))
	assert.Empty(t, candidates)
}

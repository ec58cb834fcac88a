package gazetteer

import (
	"regexp"

	"github.com/spanmark/spanmark/pkg/errors"
)

// PatternRule tags single tokens whose text matches a regular expression,
// covering mention classes too open-ended for a dictionary (years, catalog
// identifiers, gene symbols). The expression is anchored to the whole token.
type PatternRule struct {
	Name string
	Type string

	re *regexp.Regexp
}

// NewPatternRule compiles a pattern rule. The expression must be a valid
// regular expression; anchoring is applied here, not by the caller.
func NewPatternRule(name, typeName, expr string) (PatternRule, error) {
	if name == "" {
		return PatternRule{}, errors.New(errors.ErrCodeInvalidPatternRule,
			"pattern rule requires a name")
	}
	if typeName == "" {
		return PatternRule{}, errors.Newf(errors.ErrCodeInvalidPatternRule,
			"pattern rule %q requires an entity type", name)
	}
	if expr == "" {
		return PatternRule{}, errors.Newf(errors.ErrCodeInvalidPatternRule,
			"pattern rule %q requires an expression", name)
	}

	re, err := regexp.Compile("^(?:" + expr + ")$")
	if err != nil {
		return PatternRule{}, errors.Wrap(err, errors.ErrCodeInvalidPatternRule,
			"pattern rule "+name)
	}
	return PatternRule{Name: name, Type: typeName, re: re}, nil
}

// Matches reports whether the whole token text matches the rule.
func (r PatternRule) Matches(tokenText string) bool {
	return r.re != nil && r.re.MatchString(tokenText)
}

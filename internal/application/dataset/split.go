package dataset

import (
	"math"
	"math/rand"
	"sort"

	"github.com/spanmark/spanmark/pkg/errors"
)

// Ratios is a train/dev/test split. The three parts must sum to 1.
type Ratios struct {
	Train float64 `json:"train"`
	Dev   float64 `json:"dev"`
	Test  float64 `json:"test"`
}

// DefaultRatios is the conventional 80/10/10 split.
func DefaultRatios() Ratios { return Ratios{Train: 0.8, Dev: 0.1, Test: 0.1} }

// Validate checks that each part is non-negative and the parts sum to 1
// within floating-point tolerance.
func (r Ratios) Validate() error {
	if r.Train < 0 || r.Dev < 0 || r.Test < 0 {
		return errors.New(errors.ErrCodeInvalidSplitRatios, "split ratios must be non-negative")
	}
	if math.Abs(r.Train+r.Dev+r.Test-1.0) > 1e-9 {
		return errors.Newf(errors.ErrCodeInvalidSplitRatios,
			"split ratios must sum to 1, got %.3f", r.Train+r.Dev+r.Test)
	}
	return nil
}

// IsZero reports whether no ratio was given.
func (r Ratios) IsZero() bool { return r.Train == 0 && r.Dev == 0 && r.Test == 0 }

// item is one splittable unit: a document or a dataset record, tagged with
// the stratification label derived from its relation types.
type item struct {
	index int
	label string
}

// assignment holds the split result as index lists into the caller's slice.
type assignment struct {
	train []int
	dev   []int
	test  []int
}

// stratifiedSplit partitions items into train/dev/test, stratifying by label
// so every label's population is split at roughly the requested ratios.
// Shuffling within each label group is driven by the seed alone, so a given
// (items, ratios, seed) triple always produces the same assignment.
//
// Small groups favor training: the train share rounds to nearest, the dev
// share takes what it can from the remainder, and test takes the rest. A
// single-item group therefore lands in train.
func stratifiedSplit(items []item, ratios Ratios, seed int64) assignment {
	groups := make(map[string][]int)
	for _, it := range items {
		groups[it.label] = append(groups[it.label], it.index)
	}

	labels := make([]string, 0, len(groups))
	for label := range groups {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	rng := rand.New(rand.NewSource(seed))
	var out assignment
	for _, label := range labels {
		members := groups[label]
		rng.Shuffle(len(members), func(i, j int) {
			members[i], members[j] = members[j], members[i]
		})

		n := len(members)
		trainN := int(float64(n)*ratios.Train + 0.5)
		if trainN > n {
			trainN = n
		}
		devN := int(float64(n)*ratios.Dev + 0.5)
		if trainN+devN > n {
			devN = n - trainN
		}

		out.train = append(out.train, members[:trainN]...)
		out.dev = append(out.dev, members[trainN:trainN+devN]...)
		out.test = append(out.test, members[trainN+devN:]...)
	}

	sort.Ints(out.train)
	sort.Ints(out.dev)
	sort.Ints(out.test)
	return out
}

// dominantLabel picks the stratification label from a multiset of relation
// types: the most frequent type, ties broken lexicographically, empty when
// the item has no relations.
func dominantLabel(relationTypes []string) string {
	if len(relationTypes) == 0 {
		return ""
	}
	counts := make(map[string]int, len(relationTypes))
	for _, t := range relationTypes {
		counts[t]++
	}
	best := ""
	bestCount := -1
	for t, c := range counts {
		if c > bestCount || (c == bestCount && t < best) {
			best, bestCount = t, c
		}
	}
	return best
}

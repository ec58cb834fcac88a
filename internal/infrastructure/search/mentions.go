package search

import (
	"strings"
	"time"

	"github.com/spanmark/spanmark/internal/domain/annotation"
	"github.com/spanmark/spanmark/internal/domain/document"
	"github.com/spanmark/spanmark/pkg/types/common"
)

// contextRadius is the number of runes kept on each side of a mention's span
// when the surrounding text is longer than the window.
const contextRadius = 60

// BuildMentions projects a document's annotation set into the index records,
// ordered canonically by span. Each mention carries the source text around
// its span and the far endpoints of every relation it participates in.
func BuildMentions(doc *document.Document, set annotation.AnnotationSet) []Mention {
	if doc == nil || len(set.Entities) == 0 {
		return nil
	}

	byID := make(map[common.ID]annotation.Entity, len(set.Entities))
	for _, e := range set.Entities {
		byID[e.ID] = e
	}

	partners := make(map[common.ID][]RelationPartner, len(set.Relations))
	for _, r := range set.Relations {
		head, okHead := byID[r.HeadID]
		tail, okTail := byID[r.TailID]
		if !okHead || !okTail {
			// The store cascades deletes, so a dangling endpoint means the
			// set predates this process; skip rather than index a half link.
			continue
		}
		partners[head.ID] = append(partners[head.ID], RelationPartner{
			Relation:  r.Type,
			Surface:   surfaceOf(doc, tail),
			Type:      tail.Type,
			Direction: "out",
		})
		partners[tail.ID] = append(partners[tail.ID], RelationPartner{
			Relation:  r.Type,
			Surface:   surfaceOf(doc, head),
			Type:      head.Type,
			Direction: "in",
		})
	}

	entities := append([]annotation.Entity(nil), set.Entities...)
	annotation.SortEntities(entities)

	runes := []rune(doc.Text)
	now := time.Now().UTC()
	mentions := make([]Mention, 0, len(entities))
	for _, e := range entities {
		if !doc.ValidSpan(e.Start, e.End) {
			continue
		}
		surface := surfaceOf(doc, e)
		mentions = append(mentions, Mention{
			DocumentID:   string(doc.ID),
			DocumentName: doc.Name,
			EntityID:     string(e.ID),
			Surface:      surface,
			SurfaceNorm:  strings.ToLower(surface),
			Type:         e.Type,
			Start:        e.Start,
			End:          e.End,
			Context:      contextWindow(runes, doc.Tokens[e.Start].Start, doc.Tokens[e.End-1].End),
			Partners:     partners[e.ID],
			IndexedAt:    now,
		})
	}
	return mentions
}

func surfaceOf(doc *document.Document, e annotation.Entity) string {
	text, err := doc.SpanText(e.Start, e.End)
	if err != nil {
		return ""
	}
	return text
}

// contextWindow slices the rune window around [lo, hi), marking truncated
// sides with an ellipsis.
func contextWindow(runes []rune, lo, hi int) string {
	from := lo - contextRadius
	to := hi + contextRadius
	prefix, suffix := "", ""
	if from > 0 {
		prefix = "…"
	} else {
		from = 0
	}
	if to < len(runes) {
		suffix = "…"
	} else {
		to = len(runes)
	}
	return prefix + string(runes[from:to]) + suffix
}

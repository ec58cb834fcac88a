package search

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryIndex is the in-process EntityIndex. It backs tests and single-user
// CLI sessions where running an OpenSearch cluster would be absurd; queries
// behave like the OpenSearch implementation minus relevance scoring.
type MemoryIndex struct {
	mu   sync.RWMutex
	docs map[string][]Mention
}

// NewMemoryIndex returns an empty in-process index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{docs: make(map[string][]Mention)}
}

// ReplaceDocument swaps the document's mentions wholesale.
func (m *MemoryIndex) ReplaceDocument(_ context.Context, documentID string, mentions []Mention) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(mentions) == 0 {
		delete(m.docs, documentID)
		return nil
	}
	m.docs[documentID] = append([]Mention(nil), mentions...)
	return nil
}

// DeleteDocument drops every mention of the document.
func (m *MemoryIndex) DeleteDocument(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, documentID)
	return nil
}

// Search filters mentions by substring and exact type/document, in a
// deterministic order: normalized surface, then document, then span start.
func (m *MemoryIndex) Search(_ context.Context, q Query) (*Result, error) {
	q = q.Normalize()
	needle := strings.ToLower(q.Surface)
	start := time.Now()

	m.mu.RLock()
	var matches []Mention
	for docID, mentions := range m.docs {
		if q.DocumentID != "" && q.DocumentID != docID {
			continue
		}
		for _, mention := range mentions {
			if q.Type != "" && mention.Type != q.Type {
				continue
			}
			if needle != "" && !strings.Contains(mention.SurfaceNorm, needle) {
				continue
			}
			matches = append(matches, mention)
		}
	}
	m.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.SurfaceNorm != b.SurfaceNorm {
			return a.SurfaceNorm < b.SurfaceNorm
		}
		if a.DocumentID != b.DocumentID {
			return a.DocumentID < b.DocumentID
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.EntityID < b.EntityID
	})

	total := int64(len(matches))
	lo := q.Offset
	if lo > len(matches) {
		lo = len(matches)
	}
	hi := lo + q.Limit
	if hi > len(matches) {
		hi = len(matches)
	}

	return &Result{
		Total:    total,
		Mentions: matches[lo:hi],
		TookMs:   time.Since(start).Milliseconds(),
	}, nil
}

// Size returns the number of indexed mentions across all documents.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, mentions := range m.docs {
		n += len(mentions)
	}
	return n
}

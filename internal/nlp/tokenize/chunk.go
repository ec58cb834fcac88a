package tokenize

import (
	"fmt"

	"github.com/spanmark/spanmark/internal/domain/document"
	"github.com/spanmark/spanmark/pkg/errors"
)

// Chunk splits a document into consecutive, non-overlapping segments of at
// most maxTokens tokens each, covering every token of the source. Cuts land
// preferentially on sentence boundaries: whole sentences are packed greedily
// into each chunk, and only a single sentence longer than maxTokens is cut
// mid-sentence (never mid-token).
//
// A document that already fits returns itself unchanged; otherwise each chunk
// is derived with lineage back to the source document.
func Chunk(doc *document.Document, maxTokens int) ([]*document.Document, error) {
	if doc == nil {
		return nil, errors.InvalidParam("chunk requires a document")
	}
	if maxTokens <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidChunkSize,
			"max tokens must be positive, got %d", maxTokens)
	}

	if doc.TokenCount() <= maxTokens {
		return []*document.Document{doc}, nil
	}

	// Cut points between sentences, then subdivide oversized sentences.
	var bounds [][2]int
	for _, sent := range Sentences(doc.Tokens) {
		lo, hi := sent[0], sent[1]
		for hi-lo > maxTokens {
			bounds = append(bounds, [2]int{lo, lo + maxTokens})
			lo += maxTokens
		}
		bounds = append(bounds, [2]int{lo, hi})
	}

	// Pack consecutive sentence ranges into chunks of at most maxTokens.
	var packed [][2]int
	cur := bounds[0]
	for _, b := range bounds[1:] {
		if b[1]-cur[0] <= maxTokens {
			cur[1] = b[1]
			continue
		}
		packed = append(packed, cur)
		cur = b
	}
	packed = append(packed, cur)

	chunks := make([]*document.Document, 0, len(packed))
	for i, p := range packed {
		chunk, err := doc.NewChunk(fmt.Sprintf("%s#%03d", doc.Name, i+1), p[0], p[1])
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

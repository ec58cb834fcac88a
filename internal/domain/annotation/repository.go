package annotation

import (
	"context"

	"github.com/spanmark/spanmark/pkg/types/common"
)

// Repository defines the persistence contract for annotation sets. Sets are
// saved whole: SaveSet replaces a document's annotations in one transaction
// so persisted state never interleaves two merge passes.
type Repository interface {
	SaveSet(ctx context.Context, docID common.ID, set AnnotationSet) error
	LoadSet(ctx context.Context, docID common.ID) (AnnotationSet, error)
	DeleteByDocument(ctx context.Context, docID common.ID) error

	// EntityTypeDistribution counts entities per type label, across all
	// documents when docID is empty.
	EntityTypeDistribution(ctx context.Context, docID common.ID) (map[string]int64, error)
}

package document

import (
	"context"

	"github.com/spanmark/spanmark/pkg/types/common"
)

// Repository defines the persistence contract for documents.
type Repository interface {
	Create(ctx context.Context, d *Document) error
	GetByID(ctx context.Context, id common.ID) (*Document, error)
	GetByName(ctx context.Context, name string) (*Document, error)
	List(ctx context.Context, p common.Pagination) ([]*Document, int64, error)
	ListChunks(ctx context.Context, sourceID common.ID) ([]*Document, error)

	// Delete removes the document. Annotations referencing it are removed in
	// the same transaction by the implementing store.
	Delete(ctx context.Context, id common.ID) error

	Count(ctx context.Context) (int64, error)
}

package training

import (
	"context"

	"github.com/spanmark/spanmark/pkg/types/common"
)

// Repository defines the persistence contract for jobs. Update must be
// optimistic: implementations compare the stored Version and reject stale
// writes so two supervisors never finish the same job twice.
type Repository interface {
	Create(ctx context.Context, j *Job) error
	GetByID(ctx context.Context, id common.ID) (*Job, error)
	Update(ctx context.Context, j *Job) error
	List(ctx context.Context, states []JobState, p common.Pagination) ([]*Job, int64, error)
}

// Package repositories provides the PostgreSQL-backed implementations of the
// document, annotation, and training job repository interfaces. Every method
// takes a context.Context for cancellation and uses parameterised queries
// exclusively.
package repositories

import (
	"github.com/spanmark/spanmark/pkg/types/common"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// normalizePagination clamps page and page size into their valid ranges so a
// zero-valued Pagination still produces a sane query.
func normalizePagination(p common.Pagination) common.Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = defaultPageSize
	}
	if p.PageSize > maxPageSize {
		p.PageSize = maxPageSize
	}
	return p
}

// Package search provides the application-level service for entity mention
// queries. It fronts the mention index with input validation, pagination and
// a short-lived Redis result cache, and owns rebuilds of the index from the
// persisted corpus.
package search

import (
	"context"
	"fmt"
	"time"

	"github.com/spanmark/spanmark/internal/domain/annotation"
	"github.com/spanmark/spanmark/internal/domain/document"
	"github.com/spanmark/spanmark/internal/infrastructure/database/redis"
	"github.com/spanmark/spanmark/internal/infrastructure/monitoring/logging"
	infraSearch "github.com/spanmark/spanmark/internal/infrastructure/search"
	"github.com/spanmark/spanmark/pkg/errors"
	"github.com/spanmark/spanmark/pkg/types/common"
)

const (
	// cacheTTL bounds how stale a cached search page can get. Commits refresh
	// the index immediately; the cache only has to survive repeat queries.
	cacheTTL = 30 * time.Second

	// cachePrefix namespaces search pages so reindexing can drop them all.
	cachePrefix = "search:"

	// reindexPageSize is the document page size used by ReindexAll.
	reindexPageSize = 200

	defaultPageSize = 20
	maxPageSize     = 100
)

// Service defines the interface for entity search operations.
type Service interface {
	Search(ctx context.Context, input *SearchInput) (*ResultDTO, error)
	Reindex(ctx context.Context, documentID string) (*ReindexDTO, error)
	ReindexAll(ctx context.Context) (*ReindexDTO, error)
}

// SearchInput contains the mention query. Empty filter fields do not
// constrain the result.
type SearchInput struct {
	Surface    string `json:"surface,omitempty"`
	Type       string `json:"type,omitempty"`
	DocumentID string `json:"document_id,omitempty"`
	Page       int    `json:"page"`
	PageSize   int    `json:"page_size"`
}

// ResultDTO is one page of matching mentions.
type ResultDTO struct {
	Mentions []infraSearch.Mention `json:"mentions"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"page_size"`
	Total    int64                 `json:"total"`
	TookMs   int64                 `json:"took_ms"`
}

// ReindexDTO reports a finished index rebuild.
type ReindexDTO struct {
	Documents int `json:"documents"`
	Mentions  int `json:"mentions"`
}

// Dependencies bundles what the service needs. Cache is optional.
type Dependencies struct {
	Documents   document.Repository
	Annotations annotation.Repository
	Index       infraSearch.EntityIndex
	Cache       redis.Cache
}

type serviceImpl struct {
	deps   Dependencies
	logger logging.Logger
}

// NewService creates an entity search service.
func NewService(deps Dependencies, logger logging.Logger) Service {
	if deps.Cache == nil {
		deps.Cache = redis.NewNopCache()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &serviceImpl{deps: deps, logger: logger.Named("search-service")}
}

// ─────────────────────────────────────────────────────────────────────────────
// Search
// ─────────────────────────────────────────────────────────────────────────────

func (s *serviceImpl) Search(ctx context.Context, input *SearchInput) (*ResultDTO, error) {
	if input == nil {
		input = &SearchInput{}
	}
	if s.deps.Index == nil {
		return nil, errors.New(errors.ErrCodeServiceUnavailable, "no entity index is configured")
	}

	page, pageSize := input.Page, input.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	query := infraSearch.Query{
		Surface:    input.Surface,
		Type:       input.Type,
		DocumentID: input.DocumentID,
		Offset:     (page - 1) * pageSize,
		Limit:      pageSize,
	}

	var result infraSearch.Result
	key := cacheKey(query)
	err := s.deps.Cache.GetOrSet(ctx, key, &result, cacheTTL,
		func(ctx context.Context) (interface{}, error) {
			return s.deps.Index.Search(ctx, query)
		})
	if err != nil {
		return nil, err
	}

	return &ResultDTO{
		Mentions: result.Mentions,
		Page:     page,
		PageSize: pageSize,
		Total:    result.Total,
		TookMs:   result.TookMs,
	}, nil
}

func cacheKey(q infraSearch.Query) string {
	return fmt.Sprintf("%s%s|%s|%s|%d|%d",
		cachePrefix, q.Surface, q.Type, q.DocumentID, q.Offset, q.Limit)
}

// ─────────────────────────────────────────────────────────────────────────────
// Reindex
// ─────────────────────────────────────────────────────────────────────────────

func (s *serviceImpl) Reindex(ctx context.Context, documentID string) (*ReindexDTO, error) {
	if documentID == "" {
		return nil, errors.InvalidParam("document ID is required")
	}
	if s.deps.Index == nil {
		return nil, errors.New(errors.ErrCodeServiceUnavailable, "no entity index is configured")
	}

	doc, err := s.deps.Documents.GetByID(ctx, common.ID(documentID))
	if err != nil {
		return nil, err
	}
	mentions, err := s.reindexDocument(ctx, doc)
	if err != nil {
		return nil, err
	}
	s.dropCachedPages(ctx)

	s.logger.Info("Reindexed document",
		logging.String("document_id", documentID),
		logging.Int("mentions", mentions))
	return &ReindexDTO{Documents: 1, Mentions: mentions}, nil
}

func (s *serviceImpl) ReindexAll(ctx context.Context) (*ReindexDTO, error) {
	if s.deps.Index == nil {
		return nil, errors.New(errors.ErrCodeServiceUnavailable, "no entity index is configured")
	}

	out := &ReindexDTO{}
	for page := 1; ; page++ {
		docs, _, err := s.deps.Documents.List(ctx, common.Pagination{Page: page, PageSize: reindexPageSize})
		if err != nil {
			return nil, err
		}
		if len(docs) == 0 {
			break
		}
		for _, doc := range docs {
			mentions, err := s.reindexDocument(ctx, doc)
			if err != nil {
				return nil, err
			}
			out.Documents++
			out.Mentions += mentions
		}
		if len(docs) < reindexPageSize {
			break
		}
	}
	s.dropCachedPages(ctx)

	s.logger.Info("Reindexed corpus",
		logging.Int("documents", out.Documents),
		logging.Int("mentions", out.Mentions))
	return out, nil
}

// reindexDocument replaces one document's mentions from its persisted
// annotation set. An empty set still replaces, clearing stale mentions.
func (s *serviceImpl) reindexDocument(ctx context.Context, doc *document.Document) (int, error) {
	set, err := s.deps.Annotations.LoadSet(ctx, doc.ID)
	if err != nil {
		return 0, err
	}
	mentions := infraSearch.BuildMentions(doc, set)
	if err := s.deps.Index.ReplaceDocument(ctx, string(doc.ID), mentions); err != nil {
		return 0, err
	}
	return len(mentions), nil
}

// dropCachedPages invalidates cached search pages after an index rebuild.
// Failure only means stale pages live out their TTL.
func (s *serviceImpl) dropCachedPages(ctx context.Context) {
	if _, err := s.deps.Cache.DeleteByPrefix(ctx, cachePrefix); err != nil {
		s.logger.Warn("Failed to drop cached search pages", logging.Err(err))
	}
}

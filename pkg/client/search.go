package client

import (
	"context"
	"net/url"
	"strconv"
	"time"
)

// ---------------------------------------------------------------------------
// DTOs
// ---------------------------------------------------------------------------

// Mention is an indexed entity occurrence.
type Mention struct {
	DocumentID   string            `json:"document_id"`
	DocumentName string            `json:"document_name,omitempty"`
	EntityID     string            `json:"entity_id"`
	Surface      string            `json:"surface"`
	SurfaceNorm  string            `json:"surface_norm"`
	Type         string            `json:"type"`
	Start        int               `json:"start"`
	End          int               `json:"end"`
	Context      string            `json:"context,omitempty"`
	Partners     []RelationPartner `json:"partners,omitempty"`
	IndexedAt    time.Time         `json:"indexed_at"`
}

// RelationPartner names the other end of a relation a mention takes part in.
type RelationPartner struct {
	Relation  string `json:"relation"`
	Surface   string `json:"surface"`
	Type      string `json:"type"`
	Direction string `json:"direction"`
}

// SearchRequest queries the entity mention index. All filters are optional;
// an empty request matches everything.
type SearchRequest struct {
	Query      string
	Type       string
	DocumentID string
	Page       int
	PageSize   int
}

// SearchResult is one page of matching mentions.
type SearchResult struct {
	Mentions []Mention `json:"mentions"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
	Total    int64     `json:"total"`
	TookMs   int64     `json:"took_ms"`
}

// ReindexResult reports an index rebuild.
type ReindexResult struct {
	Documents int `json:"documents"`
	Mentions  int `json:"mentions"`
}

// ---------------------------------------------------------------------------
// Sub-client
// ---------------------------------------------------------------------------

// SearchClient queries the entity mention index.
type SearchClient struct {
	client *Client
}

// Entities searches indexed entity mentions.
// GET /api/v1/search/entities
func (sc *SearchClient) Entities(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	q := url.Values{}
	if req != nil {
		if req.Query != "" {
			q.Set("q", req.Query)
		}
		if req.Type != "" {
			q.Set("type", req.Type)
		}
		if req.DocumentID != "" {
			q.Set("document_id", req.DocumentID)
		}
		if req.Page > 0 {
			q.Set("page", strconv.Itoa(req.Page))
		}
		if req.PageSize > 0 {
			q.Set("page_size", strconv.Itoa(req.PageSize))
		}
	}
	path := "/api/v1/search/entities"
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var result SearchResult
	if _, err := sc.client.get(ctx, path, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Reindex rebuilds the mention index, for one document when documentID is
// set and for the whole corpus otherwise.
// POST /api/v1/search/reindex
func (sc *SearchClient) Reindex(ctx context.Context, documentID string) (*ReindexResult, error) {
	var body interface{}
	if documentID != "" {
		body = struct {
			DocumentID string `json:"document_id"`
		}{DocumentID: documentID}
	}
	var result ReindexResult
	if err := sc.client.post(ctx, "/api/v1/search/reindex", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

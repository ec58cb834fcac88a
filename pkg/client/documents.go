package client

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// ---------------------------------------------------------------------------
// DTOs
// ---------------------------------------------------------------------------

// Document is the summary representation of an imported document.
type Document struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	TokenCount        int       `json:"token_count"`
	SentenceCount     int       `json:"sentence_count"`
	Chunks            int       `json:"chunks,omitempty"`
	SourceID          string    `json:"source_id,omitempty"`
	SourceTokenOffset int       `json:"source_token_offset,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// DocumentDetail extends Document with the full text, the annotation set,
// and the undo depth.
type DocumentDetail struct {
	Document
	Text      string      `json:"text"`
	Entities  []*Entity   `json:"entities"`
	Relations []*Relation `json:"relations"`
	UndoDepth int         `json:"undo_depth"`
}

// Entity is a typed token span. Start and End are token indices, half-open.
type Entity struct {
	ID         string  `json:"id"`
	DocumentID string  `json:"document_id"`
	Type       string  `json:"type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Surface    string  `json:"surface"`
	Provenance string  `json:"provenance"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Relation is a typed, directed link between two entities of one document.
type Relation struct {
	ID          string `json:"id"`
	DocumentID  string `json:"document_id"`
	Type        string `json:"type"`
	HeadID      string `json:"head_id"`
	TailID      string `json:"tail_id"`
	HeadSurface string `json:"head_surface,omitempty"`
	TailSurface string `json:"tail_surface,omitempty"`
}

// ImportDocumentRequest describes a document import. Clean runs the corpus
// cleaner over the text before tokenizing.
type ImportDocumentRequest struct {
	Name  string `json:"name"`
	Text  string `json:"text"`
	Clean bool   `json:"clean,omitempty"`
}

// ---------------------------------------------------------------------------
// Sub-client
// ---------------------------------------------------------------------------

// DocumentsClient operates on the document collection.
type DocumentsClient struct {
	client *Client
}

// Import cleans, tokenizes, and stores a source text.
// POST /api/v1/documents
func (dc *DocumentsClient) Import(ctx context.Context, req *ImportDocumentRequest) (*Document, error) {
	if req == nil || req.Text == "" {
		return nil, invalidArg("text is required")
	}
	var doc Document
	if err := dc.client.post(ctx, "/api/v1/documents", req, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Get retrieves a document with its annotation set.
// GET /api/v1/documents/{documentID}
func (dc *DocumentsClient) Get(ctx context.Context, documentID string) (*DocumentDetail, error) {
	if documentID == "" {
		return nil, invalidArg("documentID is required")
	}
	var detail DocumentDetail
	if _, err := dc.client.get(ctx, "/api/v1/documents/"+url.PathEscape(documentID), &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// List returns one page of documents, newest first.
// GET /api/v1/documents
func (dc *DocumentsClient) List(ctx context.Context, page, pageSize int) ([]*Document, *Pagination, error) {
	path := fmt.Sprintf("/api/v1/documents?page=%d&page_size=%d", page, pageSize)
	var docs []*Document
	pg, err := dc.client.get(ctx, path, &docs)
	if err != nil {
		return nil, nil, err
	}
	return docs, pg, nil
}

// Chunks returns the chunk documents derived from a source document, in
// source token order.
// GET /api/v1/documents/{documentID}/chunks
func (dc *DocumentsClient) Chunks(ctx context.Context, documentID string) ([]*Document, error) {
	if documentID == "" {
		return nil, invalidArg("documentID is required")
	}
	var chunks []*Document
	if _, err := dc.client.get(ctx, "/api/v1/documents/"+url.PathEscape(documentID)+"/chunks", &chunks); err != nil {
		return nil, err
	}
	return chunks, nil
}

// Delete removes a document together with its annotations and index entries.
// DELETE /api/v1/documents/{documentID}
func (dc *DocumentsClient) Delete(ctx context.Context, documentID string) error {
	if documentID == "" {
		return invalidArg("documentID is required")
	}
	return dc.client.delete(ctx, "/api/v1/documents/"+url.PathEscape(documentID), nil)
}

package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/spanmark/spanmark/internal/config"
	"github.com/spanmark/spanmark/internal/infrastructure/monitoring/logging"
	"github.com/spanmark/spanmark/internal/infrastructure/search"
	"github.com/spanmark/spanmark/pkg/errors"
)

var (
	ErrIndexCreationFailed = errors.New(errors.ErrCodeInternal, "index creation failed")
	ErrBulkIndexFailed     = errors.New(errors.ErrCodeInternal, "bulk index failed")
)

const defaultBulkBatchSize = 500

// EntityIndex is the OpenSearch-backed mention index. One index holds every
// mention; a document's mentions are replaced wholesale on each committed
// annotation pass.
type EntityIndex struct {
	client    *Client
	indexName string
	batchSize int
	logger    logging.Logger
}

var _ search.EntityIndex = (*EntityIndex)(nil)

// NewEntityIndex builds the index adapter. The index name derives from the
// configured prefix: <prefix>-entities.
func NewEntityIndex(client *Client, cfg config.OpenSearchConfig, log logging.Logger) *EntityIndex {
	prefix := cfg.IndexPrefix
	if prefix == "" {
		prefix = config.DefaultIndexPrefix
	}
	batch := cfg.BulkBatchSize
	if batch <= 0 {
		batch = defaultBulkBatchSize
	}
	return &EntityIndex{
		client:    client,
		indexName: prefix + "-entities",
		batchSize: batch,
		logger:    log,
	}
}

// IndexName returns the concrete index this adapter writes to.
func (i *EntityIndex) IndexName() string { return i.indexName }

// EnsureIndex creates the mention index with its mapping if it is missing.
// Creating it explicitly keeps surface_norm a keyword field; dynamic mapping
// would make it text and break substring search.
func (i *EntityIndex) EnsureIndex(ctx context.Context) error {
	existsReq := opensearchapi.IndicesExistsRequest{Index: []string{i.indexName}}
	resp, err := existsReq.Do(ctx, i.client.GetClient())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to check index existence")
	}
	resp.Body.Close()
	if resp.StatusCode == 200 {
		return nil
	}
	if resp.StatusCode != 404 {
		return errors.Newf(errors.ErrCodeInternal, "index existence check returned status %d", resp.StatusCode)
	}

	body, err := json.Marshal(mentionMapping())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal index mapping")
	}

	createReq := opensearchapi.IndicesCreateRequest{
		Index: i.indexName,
		Body:  bytes.NewReader(body),
	}
	createResp, err := createReq.Do(ctx, i.client.GetClient())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create index request")
	}
	defer createResp.Body.Close()

	if createResp.IsError() {
		// A racing creator between the existence check and here is fine.
		if createResp.StatusCode == 400 {
			return nil
		}
		return i.handleErrorResponse(createResp, ErrIndexCreationFailed)
	}

	i.logger.Info("Index created", logging.String("index", i.indexName))
	return nil
}

// ReplaceDocument swaps the document's mentions: the previous pass is deleted
// and the new mentions bulk-indexed. An empty mention list just clears the
// document.
func (i *EntityIndex) ReplaceDocument(ctx context.Context, documentID string, mentions []search.Mention) error {
	if documentID == "" {
		return errors.New(errors.ErrCodeValidation, "document id is required")
	}
	if err := i.EnsureIndex(ctx); err != nil {
		return err
	}
	if err := i.deleteByDocument(ctx, documentID); err != nil {
		return err
	}
	if len(mentions) == 0 {
		return nil
	}

	for start := 0; start < len(mentions); start += i.batchSize {
		end := start + i.batchSize
		if end > len(mentions) {
			end = len(mentions)
		}
		if err := i.bulkIndex(ctx, mentions[start:end]); err != nil {
			return err
		}
	}

	i.logger.Debug("Document mentions indexed",
		logging.String("index", i.indexName),
		logging.String("document_id", documentID),
		logging.Int("mentions", len(mentions)))
	return nil
}

// DeleteDocument removes every mention of the document from the index.
func (i *EntityIndex) DeleteDocument(ctx context.Context, documentID string) error {
	if documentID == "" {
		return errors.New(errors.ErrCodeValidation, "document id is required")
	}
	return i.deleteByDocument(ctx, documentID)
}

func (i *EntityIndex) deleteByDocument(ctx context.Context, documentID string) error {
	body, err := json.Marshal(map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{"document_id": documentID},
		},
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal delete query")
	}

	req := opensearchapi.DeleteByQueryRequest{
		Index:   []string{i.indexName},
		Body:    bytes.NewReader(body),
		Refresh: opensearchapi.BoolPtr(true),
	}
	resp, err := req.Do(ctx, i.client.GetClient())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "delete by query request failed")
	}
	defer resp.Body.Close()

	// A missing index means there is nothing to delete.
	if resp.StatusCode == 404 {
		return nil
	}
	if resp.IsError() {
		return i.handleErrorResponse(resp, errors.New(errors.ErrCodeInternal, "delete by query failed"))
	}
	return nil
}

func (i *EntityIndex) bulkIndex(ctx context.Context, mentions []search.Mention) error {
	var buf bytes.Buffer
	for _, m := range mentions {
		meta, err := json.Marshal(map[string]interface{}{
			"index": map[string]interface{}{"_index": i.indexName, "_id": m.DocID()},
		})
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal bulk action")
		}
		source, err := json.Marshal(m)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal mention")
		}
		buf.Write(meta)
		buf.WriteByte('\n')
		buf.Write(source)
		buf.WriteByte('\n')
	}

	req := opensearchapi.BulkRequest{
		Body: bytes.NewReader(buf.Bytes()),
		// A committed pass must be searchable immediately.
		Refresh: "true",
	}
	resp, err := req.Do(ctx, i.client.GetClient())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "bulk request failed")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return i.handleErrorResponse(resp, ErrBulkIndexFailed)
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&bulkResp); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode bulk response")
	}
	if !bulkResp.Errors {
		return nil
	}

	failed := 0
	firstReason := ""
	for _, item := range bulkResp.Items {
		for _, info := range item {
			if info.Status < 200 || info.Status >= 300 {
				failed++
				if firstReason == "" {
					firstReason = fmt.Sprintf("%s: %s %s", info.ID, info.Error.Type, info.Error.Reason)
				}
			}
		}
	}
	return errors.Newf(errors.ErrCodeInternal,
		"bulk index rejected %d of %d mentions (first: %s)", failed, len(mentions), firstReason)
}

func (i *EntityIndex) handleErrorResponse(resp *opensearchapi.Response, defaultErr error) error {
	bodyBytes, _ := io.ReadAll(resp.Body)
	var errResp struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	if err := json.Unmarshal(bodyBytes, &errResp); err == nil && errResp.Error.Reason != "" {
		return errors.Wrapf(defaultErr, errors.ErrCodeInternal,
			"opensearch error: %s - %s", errResp.Error.Type, errResp.Error.Reason)
	}
	return errors.Wrapf(defaultErr, errors.ErrCodeInternal,
		"opensearch error status: %d", resp.StatusCode)
}

// mentionMapping is the explicit index schema. Replicas default to none: the
// index rebuilds from the database, so losing it costs a reindex, not data.
func mentionMapping() map[string]interface{} {
	return map[string]interface{}{
		"settings": map[string]interface{}{
			"number_of_shards":   1,
			"number_of_replicas": 0,
		},
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"document_id":   map[string]interface{}{"type": "keyword"},
				"document_name": map[string]interface{}{"type": "keyword"},
				"entity_id":     map[string]interface{}{"type": "keyword"},
				"surface":       map[string]interface{}{"type": "text"},
				"surface_norm":  map[string]interface{}{"type": "keyword"},
				"type":          map[string]interface{}{"type": "keyword"},
				"start":         map[string]interface{}{"type": "integer"},
				"end":           map[string]interface{}{"type": "integer"},
				"context":       map[string]interface{}{"type": "text"},
				"partners": map[string]interface{}{
					"properties": map[string]interface{}{
						"relation":  map[string]interface{}{"type": "keyword"},
						"surface":   map[string]interface{}{"type": "keyword"},
						"type":      map[string]interface{}{"type": "keyword"},
						"direction": map[string]interface{}{"type": "keyword"},
					},
				},
				"indexed_at": map[string]interface{}{"type": "date"},
			},
		},
	}
}

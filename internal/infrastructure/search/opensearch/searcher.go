package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/spanmark/spanmark/internal/infrastructure/monitoring/logging"
	"github.com/spanmark/spanmark/internal/infrastructure/search"
	"github.com/spanmark/spanmark/pkg/errors"
)

// Search runs a substring/type query against the mention index. A missing
// index answers like an empty one, so searching before the first committed
// pass is not an error.
func (i *EntityIndex) Search(ctx context.Context, q search.Query) (*search.Result, error) {
	q = q.Normalize()

	body, err := json.Marshal(buildSearchDSL(q))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal search query")
	}

	req := opensearchapi.SearchRequest{
		Index: []string{i.indexName},
		Body:  bytes.NewReader(body),
	}

	start := time.Now()
	resp, err := req.Do(ctx, i.client.GetClient())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "search request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == 404 {
		return &search.Result{Mentions: []search.Mention{}}, nil
	}
	if resp.IsError() {
		return nil, i.handleErrorResponse(resp, errors.New(errors.ErrCodeInternal, "search failed"))
	}

	result, err := parseSearchResponse(resp)
	if err != nil {
		return nil, err
	}

	i.logger.Debug("Entity search executed",
		logging.String("index", i.indexName),
		logging.String("surface", q.Surface),
		logging.String("type", q.Type),
		logging.Int64("hits", result.Total),
		logging.Int64("latency_ms", time.Since(start).Milliseconds()))
	return result, nil
}

// buildSearchDSL translates the query into OpenSearch DSL. Surface matches
// twice: an analyzed match on the surface text for whole-word hits that
// score, and a wildcard over the lowercased keyword for substring hits.
func buildSearchDSL(q search.Query) map[string]interface{} {
	boolQuery := map[string]interface{}{}

	var filters []map[string]interface{}
	if q.Type != "" {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{"type": q.Type},
		})
	}
	if q.DocumentID != "" {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{"document_id": q.DocumentID},
		})
	}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}

	if q.Surface != "" {
		needle := strings.ToLower(q.Surface)
		boolQuery["should"] = []map[string]interface{}{
			{"match": map[string]interface{}{
				"surface": map[string]interface{}{"query": q.Surface},
			}},
			{"wildcard": map[string]interface{}{
				"surface_norm": map[string]interface{}{"value": "*" + needle + "*"},
			}},
		}
		boolQuery["minimum_should_match"] = 1
	}

	var query map[string]interface{}
	if len(boolQuery) == 0 {
		query = map[string]interface{}{"match_all": map[string]interface{}{}}
	} else {
		query = map[string]interface{}{"bool": boolQuery}
	}

	return map[string]interface{}{
		"query": query,
		"from":  q.Offset,
		"size":  q.Limit,
		// Score first, then a total order so pages never shuffle.
		"sort": []map[string]interface{}{
			{"_score": map[string]interface{}{"order": "desc"}},
			{"surface_norm": map[string]interface{}{"order": "asc"}},
			{"document_id": map[string]interface{}{"order": "asc"}},
			{"start": map[string]interface{}{"order": "asc"}},
		},
	}
}

func parseSearchResponse(resp *opensearchapi.Response) (*search.Result, error) {
	var raw struct {
		Took int64 `json:"took"`
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				ID     string          `json:"_id"`
				Source json.RawMessage `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode search response")
	}

	result := &search.Result{
		Total:    raw.Hits.Total.Value,
		Mentions: make([]search.Mention, 0, len(raw.Hits.Hits)),
		TookMs:   raw.Took,
	}
	for _, hit := range raw.Hits.Hits {
		var m search.Mention
		if err := json.Unmarshal(hit.Source, &m); err != nil {
			return nil, errors.Wrapf(err, errors.ErrCodeSerialization,
				"failed to decode mention %s", hit.ID)
		}
		result.Mentions = append(result.Mentions, m)
	}
	return result, nil
}

package opensearch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spanmark/spanmark/internal/config"
	"github.com/spanmark/spanmark/internal/infrastructure/monitoring/logging"
	"github.com/spanmark/spanmark/internal/infrastructure/search"
)

func newTestIndex(t *testing.T, serverURL string, batchSize int) *EntityIndex {
	t.Helper()
	return NewEntityIndex(newBareClient(t, serverURL), config.OpenSearchConfig{
		IndexPrefix:   "spanmark",
		BulkBatchSize: batchSize,
	}, logging.NewNopLogger())
}

func testMentions(n int) []search.Mention {
	out := make([]search.Mention, n)
	for i := range out {
		out[i] = search.Mention{
			DocumentID:  "doc-1",
			EntityID:    string(rune('a' + i)),
			Surface:     "Aspirin",
			SurfaceNorm: "aspirin",
			Type:        "Drug",
			Start:       i,
			End:         i + 1,
		}
	}
	return out
}

const bulkOKResponse = `{"took": 3, "errors": false, "items": [{"index": {"_id": "doc-1:a", "status": 201}}]}`

func TestIndexName_UsesPrefix(t *testing.T) {
	idx := newTestIndex(t, "http://localhost:9200", 0)
	assert.Equal(t, "spanmark-entities", idx.IndexName())
}

func TestEnsureIndex_CreatesWhenMissing(t *testing.T) {
	var createBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodHead:
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPut && strings.Contains(r.URL.Path, "spanmark-entities"):
			body, _ := io.ReadAll(r.Body)
			createBody = string(body)
			w.Write([]byte(`{"acknowledged": true}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer server.Close()

	idx := newTestIndex(t, server.URL, 0)
	require.NoError(t, idx.EnsureIndex(context.Background()))

	assert.Contains(t, createBody, `"surface_norm"`)
	assert.Contains(t, createBody, `"keyword"`)
	assert.Contains(t, createBody, `"partners"`)
}

func TestEnsureIndex_SkipsWhenPresent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	idx := newTestIndex(t, server.URL, 0)
	assert.NoError(t, idx.EnsureIndex(context.Background()))
}

func TestReplaceDocument_DeletesThenIndexes(t *testing.T) {
	var ops []string
	var deleteBody, bulkBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodHead:
			ops = append(ops, "exists")
			w.WriteHeader(http.StatusOK)
		case strings.Contains(r.URL.Path, "_delete_by_query"):
			ops = append(ops, "delete")
			body, _ := io.ReadAll(r.Body)
			deleteBody = string(body)
			assert.Equal(t, "true", r.URL.Query().Get("refresh"))
			w.Write([]byte(`{"deleted": 2}`))
		case strings.Contains(r.URL.Path, "_bulk"):
			ops = append(ops, "bulk")
			body, _ := io.ReadAll(r.Body)
			bulkBody = string(body)
			assert.Equal(t, "true", r.URL.Query().Get("refresh"))
			w.Write([]byte(bulkOKResponse))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer server.Close()

	idx := newTestIndex(t, server.URL, 0)
	err := idx.ReplaceDocument(context.Background(), "doc-1", testMentions(2))
	require.NoError(t, err)

	assert.Equal(t, []string{"exists", "delete", "bulk"}, ops)
	assert.Contains(t, deleteBody, `"document_id":"doc-1"`)

	// NDJSON: one action line and one source line per mention.
	lines := strings.Split(strings.TrimSpace(bulkBody), "\n")
	assert.Len(t, lines, 4)
	assert.Contains(t, lines[0], `"_id":"doc-1:a"`)
	assert.Contains(t, lines[1], `"surface":"Aspirin"`)
}

func TestReplaceDocument_EmptyMentionsOnlyClears(t *testing.T) {
	var bulkCalled bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodHead:
			w.WriteHeader(http.StatusOK)
		case strings.Contains(r.URL.Path, "_delete_by_query"):
			w.Write([]byte(`{"deleted": 5}`))
		case strings.Contains(r.URL.Path, "_bulk"):
			bulkCalled = true
			w.Write([]byte(bulkOKResponse))
		}
	}))
	defer server.Close()

	idx := newTestIndex(t, server.URL, 0)
	require.NoError(t, idx.ReplaceDocument(context.Background(), "doc-1", nil))
	assert.False(t, bulkCalled)
}

func TestReplaceDocument_BatchesBulkRequests(t *testing.T) {
	bulkCalls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodHead:
			w.WriteHeader(http.StatusOK)
		case strings.Contains(r.URL.Path, "_delete_by_query"):
			w.Write([]byte(`{"deleted": 0}`))
		case strings.Contains(r.URL.Path, "_bulk"):
			bulkCalls++
			w.Write([]byte(bulkOKResponse))
		}
	}))
	defer server.Close()

	idx := newTestIndex(t, server.URL, 2)
	require.NoError(t, idx.ReplaceDocument(context.Background(), "doc-1", testMentions(3)))
	assert.Equal(t, 2, bulkCalls)
}

func TestReplaceDocument_BulkRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodHead:
			w.WriteHeader(http.StatusOK)
		case strings.Contains(r.URL.Path, "_delete_by_query"):
			w.Write([]byte(`{"deleted": 0}`))
		case strings.Contains(r.URL.Path, "_bulk"):
			w.Write([]byte(`{
				"took": 3,
				"errors": true,
				"items": [
					{"index": {"_id": "doc-1:a", "status": 201}},
					{"index": {"_id": "doc-1:b", "status": 400, "error": {"type": "mapper_parsing_exception", "reason": "bad field"}}}
				]
			}`))
		}
	}))
	defer server.Close()

	idx := newTestIndex(t, server.URL, 0)
	err := idx.ReplaceDocument(context.Background(), "doc-1", testMentions(2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected 1 of 2")
	assert.Contains(t, err.Error(), "mapper_parsing_exception")
}

func TestReplaceDocument_RequiresDocumentID(t *testing.T) {
	idx := newTestIndex(t, "http://localhost:9200", 0)
	assert.Error(t, idx.ReplaceDocument(context.Background(), "", nil))
}

func TestDeleteDocument_MissingIndexIsNoop(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	idx := newTestIndex(t, server.URL, 0)
	assert.NoError(t, idx.DeleteDocument(context.Background(), "doc-1"))
}

func TestDeleteDocument_PropagatesClusterError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": {"type": "search_phase_execution_exception", "reason": "shard down"}}`))
	}))
	defer server.Close()

	idx := newTestIndex(t, server.URL, 0)
	err := idx.DeleteDocument(context.Background(), "doc-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shard down")
}

package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appsearch "github.com/spanmark/spanmark/internal/application/search"
)

// annotateDoc imports a text and runs a committing auto-annotation pass, so
// its gazetteer mentions land in the search index.
func (f *apiFixture) annotateDoc(t *testing.T, name, text string) string {
	t.Helper()
	doc := f.importDoc(t, name, text)
	rec := f.do(t, http.MethodPost, "/api/v1/documents/"+doc.ID+"/annotate", nil)
	require.Equal(t, http.StatusOK, rec.Code, "annotate failed: %s", rec.Body.String())
	return doc.ID
}

func TestSearchEntities_FindsMentions(t *testing.T) {
	f := newAPIFixture(t)
	docID := f.annotateDoc(t, "fixture.txt", fixtureText)

	rec := f.do(t, http.MethodGet, "/api/v1/search/entities?q=google", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	result := dataAs[appsearch.ResultDTO](t, rec)
	assert.Equal(t, int64(1), result.Total)
	require.Len(t, result.Mentions, 1)
	assert.Equal(t, "Google", result.Mentions[0].Surface)
	assert.Equal(t, "Organization", result.Mentions[0].Type)
	assert.Equal(t, docID, result.Mentions[0].DocumentID)
}

func TestSearchEntities_TypeFilter(t *testing.T) {
	f := newAPIFixture(t)
	f.annotateDoc(t, "fixture.txt", fixtureText)

	rec := f.do(t, http.MethodGet, "/api/v1/search/entities?type=Location", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	result := dataAs[appsearch.ResultDTO](t, rec)
	require.Len(t, result.Mentions, 1)
	assert.Equal(t, "California", result.Mentions[0].Surface)
}

func TestSearchEntities_DocumentScope(t *testing.T) {
	f := newAPIFixture(t)
	f.annotateDoc(t, "first.txt", fixtureText)
	second := f.annotateDoc(t, "second.txt", "Google hired John in Berlin")

	rec := f.do(t, http.MethodGet, "/api/v1/search/entities?document_id="+second, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	result := dataAs[appsearch.ResultDTO](t, rec)
	assert.Equal(t, int64(2), result.Total)
	for _, m := range result.Mentions {
		assert.Equal(t, second, m.DocumentID)
	}
}

func TestSearchEntities_NoMatches(t *testing.T) {
	f := newAPIFixture(t)
	f.annotateDoc(t, "fixture.txt", fixtureText)

	rec := f.do(t, http.MethodGet, "/api/v1/search/entities?q=nonexistent", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	result := dataAs[appsearch.ResultDTO](t, rec)
	assert.Zero(t, result.Total)
	assert.Empty(t, result.Mentions)
}

func TestSearchReindex_SingleDocument(t *testing.T) {
	f := newAPIFixture(t)
	doc := f.seedAnnotatedDoc(t, "seeded.txt")

	rec := f.do(t, http.MethodPost, "/api/v1/search/reindex",
		map[string]string{"document_id": string(doc.ID)})
	require.Equal(t, http.StatusOK, rec.Code)

	dto := dataAs[appsearch.ReindexDTO](t, rec)
	assert.Equal(t, 1, dto.Documents)
	assert.Equal(t, 2, dto.Mentions)

	rec = f.do(t, http.MethodGet, "/api/v1/search/entities?q=john", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	result := dataAs[appsearch.ResultDTO](t, rec)
	assert.Equal(t, int64(1), result.Total)
}

func TestSearchReindex_AllDocuments(t *testing.T) {
	f := newAPIFixture(t)
	f.seedAnnotatedDoc(t, "one.txt")
	f.seedAnnotatedDoc(t, "two.txt")

	rec := f.do(t, http.MethodPost, "/api/v1/search/reindex", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	dto := dataAs[appsearch.ReindexDTO](t, rec)
	assert.Equal(t, 2, dto.Documents)
	assert.Equal(t, 4, dto.Mentions)
}

func TestSearchReindex_UnknownDocument(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/search/reindex",
		map[string]string{"document_id": "no-such-doc"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

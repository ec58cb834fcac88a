package handlers_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spanmark/spanmark/internal/application/annotate"
	"github.com/spanmark/spanmark/pkg/errors"
)

func TestDocumentImport_CreatesDocument(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/documents", annotate.ImportDocumentInput{
		Name: "fixture.txt",
		Text: fixtureText,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)
	assert.NotEmpty(t, env.RequestID)

	doc := dataAs[annotate.DocumentDTO](t, rec)
	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, "fixture.txt", doc.Name)
	assert.Equal(t, 6, doc.TokenCount)
	assert.Equal(t, 1, doc.SentenceCount)
}

func TestDocumentImport_MalformedBody(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.doRaw(t, http.MethodPost, "/api/v1/documents", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errors.ErrCodeBadRequest.String(), errorCode(t, rec))
}

func TestDocumentImport_RequiresText(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/documents", annotate.ImportDocumentInput{Name: "empty.txt"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errors.ErrCodeBadRequest.String(), errorCode(t, rec))
}

func TestDocumentImport_DuplicateNameConflicts(t *testing.T) {
	f := newAPIFixture(t)
	f.importDoc(t, "fixture.txt", fixtureText)

	rec := f.do(t, http.MethodPost, "/api/v1/documents", annotate.ImportDocumentInput{
		Name: "fixture.txt",
		Text: "Entirely different text",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, errors.ErrCodeDocumentAlreadyExists.String(), errorCode(t, rec))
}

func TestDocumentGet_ReturnsDetail(t *testing.T) {
	f := newAPIFixture(t)
	doc := f.importDoc(t, "fixture.txt", fixtureText)

	rec := f.do(t, http.MethodGet, "/api/v1/documents/"+doc.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	detail := dataAs[annotate.DocumentDetailDTO](t, rec)
	assert.Equal(t, doc.ID, detail.ID)
	assert.Equal(t, fixtureText, detail.Text)
	assert.Empty(t, detail.Entities)
	assert.Empty(t, detail.Relations)
	assert.Zero(t, detail.UndoDepth)
}

func TestDocumentGet_NotFound(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/documents/no-such-doc", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, errors.ErrCodeDocumentNotFound.String(), errorCode(t, rec))
}

func TestDocumentList_Paginates(t *testing.T) {
	f := newAPIFixture(t)
	for i := 0; i < 3; i++ {
		f.importDoc(t, fmt.Sprintf("doc-%d.txt", i), fmt.Sprintf("Document number %d here", i))
	}

	rec := f.do(t, http.MethodGet, "/api/v1/documents?page=1&page_size=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 1, env.Pagination.Page)
	assert.Equal(t, 2, env.Pagination.PageSize)
	assert.Equal(t, int64(3), env.Pagination.Total)

	docs := dataAs[[]annotate.DocumentDTO](t, rec)
	require.Len(t, docs, 2)
	// Newest first.
	assert.Equal(t, "doc-2.txt", docs[0].Name)
}

func TestDocumentList_CapsPageSize(t *testing.T) {
	f := newAPIFixture(t)
	f.importDoc(t, "only.txt", fixtureText)

	rec := f.do(t, http.MethodGet, "/api/v1/documents?page_size=500", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 100, env.Pagination.PageSize)
}

func TestDocumentDelete_RemovesDocument(t *testing.T) {
	f := newAPIFixture(t)
	doc := f.importDoc(t, "fixture.txt", fixtureText)

	rec := f.do(t, http.MethodDelete, "/api/v1/documents/"+doc.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/v1/documents/"+doc.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDocumentChunks_EmptyForSmallDocument(t *testing.T) {
	f := newAPIFixture(t)
	doc := f.importDoc(t, "fixture.txt", fixtureText)

	rec := f.do(t, http.MethodGet, "/api/v1/documents/"+doc.ID+"/chunks", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	chunks := dataAs[[]annotate.DocumentDTO](t, rec)
	assert.Empty(t, chunks)
}

func TestDocumentChunks_UnknownDocument(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/documents/no-such-doc/chunks", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

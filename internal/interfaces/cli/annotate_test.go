package cli

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spanmark/spanmark/pkg/client"
)

// ---------------------------------------------------------------------------
// annotate
// ---------------------------------------------------------------------------

func TestAnnotateCommand(t *testing.T) {
	var got map[string]interface{}
	srv := newAPIServer(t, map[string]http.HandlerFunc{
		"POST /api/v1/documents/doc-1/annotate": func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			writeEnvelope(w, http.StatusOK, client.MergeOutcome{
				DocumentID: "doc-1",
				Entities:   5,
				Relations:  2,
				Report:     client.MergeReport{Strict: true, AcceptedEntities: 5, AcceptedRelations: 2},
			})
		},
	})

	stdout, _, err := executeCommand(t, "annotate", "doc-1", "--server", srv.URL, "--no-color")
	require.NoError(t, err)

	assert.Equal(t, false, got["preview"])
	assert.Contains(t, stdout, "Auto-annotation merged for document doc-1")
	assert.Contains(t, stdout, "Entities:  5 total, 5 accepted in this run")
	assert.Contains(t, stdout, "No conflicts.")
}

func TestAnnotateCommandPreviewWithConflicts(t *testing.T) {
	var got map[string]interface{}
	srv := newAPIServer(t, map[string]http.HandlerFunc{
		"POST /api/v1/documents/doc-1/annotate": func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			writeEnvelope(w, http.StatusOK, client.MergeOutcome{
				DocumentID: "doc-1",
				Preview:    true,
				Entities:   3,
				Report: client.MergeReport{
					Strict:           true,
					AcceptedEntities: 2,
					DroppedEntities: []client.DroppedEntity{{
						Entity:       client.Entity{Type: "Person", Start: 4, End: 6, Surface: "Bob Smith"},
						Reason:       "overlap",
						ConflictWith: &client.Entity{Type: "Person", Start: 5, End: 7},
					}},
				},
			})
		},
	})

	stdout, _, err := executeCommand(t, "annotate", "doc-1", "--preview", "--server", srv.URL, "--no-color")
	require.NoError(t, err)

	assert.Equal(t, true, got["preview"])
	assert.Contains(t, stdout, "Auto-annotation preview for document doc-1")
	assert.Contains(t, stdout, "Conflicts:")
	assert.Contains(t, stdout, "Bob Smith")
	assert.Contains(t, stdout, "overlap")
	assert.Contains(t, stdout, "Person [5,7)")
}

// ---------------------------------------------------------------------------
// entity
// ---------------------------------------------------------------------------

func TestEntityAddCommand(t *testing.T) {
	var got map[string]interface{}
	srv := newAPIServer(t, map[string]http.HandlerFunc{
		"POST /api/v1/documents/doc-1/entities": func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			writeEnvelope(w, http.StatusCreated, client.Entity{
				ID: "ent-9", DocumentID: "doc-1", Type: "Person", Start: 0, End: 2, Surface: "Alice Liddell",
			})
		},
	})

	stdout, _, err := executeCommand(t, "entity", "add", "doc-1",
		"--type", "Person", "--start", "0", "--end", "2",
		"--server", srv.URL, "--no-color")
	require.NoError(t, err)

	assert.Equal(t, "Person", got["type"])
	assert.Equal(t, float64(0), got["start"])
	assert.Equal(t, float64(2), got["end"])
	assert.Contains(t, stdout, "ent-9")
	assert.Contains(t, stdout, "Alice Liddell")
}

func TestEntityListCommand(t *testing.T) {
	srv := newAPIServer(t, map[string]http.HandlerFunc{
		"GET /api/v1/documents/doc-1": func(w http.ResponseWriter, r *http.Request) {
			writeEnvelope(w, http.StatusOK, client.DocumentDetail{
				Document: client.Document{ID: "doc-1", Name: "alice"},
				Entities: []*client.Entity{
					{ID: "ent-1", Type: "Person", Start: 0, End: 1, Surface: "Alice", Provenance: "gold"},
					{ID: "ent-2", Type: "Location", Start: 5, End: 6, Surface: "garden", Provenance: "gazetteer"},
				},
			})
		},
	})

	stdout, _, err := executeCommand(t, "entity", "ls", "doc-1", "--server", srv.URL, "--no-color")
	require.NoError(t, err)

	assert.Contains(t, stdout, `Entities of "alice" (2):`)
	assert.Contains(t, stdout, "Person")
	assert.Contains(t, stdout, "[0,1)")
	assert.Contains(t, stdout, "garden")
}

func TestEntityListCommandEmpty(t *testing.T) {
	srv := newAPIServer(t, map[string]http.HandlerFunc{
		"GET /api/v1/documents/doc-1": func(w http.ResponseWriter, r *http.Request) {
			writeEnvelope(w, http.StatusOK, client.DocumentDetail{
				Document: client.Document{ID: "doc-1", Name: "alice"},
			})
		},
	})

	stdout, _, err := executeCommand(t, "entity", "ls", "doc-1", "--server", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, stdout, `Document "alice" has no entities.`)
}

func TestEntityRemoveCommand(t *testing.T) {
	srv := newAPIServer(t, map[string]http.HandlerFunc{
		"DELETE /api/v1/documents/doc-1/entities/ent-1": func(w http.ResponseWriter, r *http.Request) {
			writeEnvelope(w, http.StatusOK, client.EntityRemoval{EntityID: "ent-1", RemovedRelations: 2})
		},
	})

	stdout, _, err := executeCommand(t, "entity", "rm", "doc-1", "ent-1", "--server", srv.URL, "--no-color")
	require.NoError(t, err)
	assert.Contains(t, stdout, "ent-1")
	assert.Contains(t, stdout, "2")
}

// ---------------------------------------------------------------------------
// relation
// ---------------------------------------------------------------------------

func TestRelationAddCommand(t *testing.T) {
	var got map[string]interface{}
	srv := newAPIServer(t, map[string]http.HandlerFunc{
		"POST /api/v1/documents/doc-1/relations": func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			writeEnvelope(w, http.StatusCreated, client.Relation{
				ID: "rel-1", DocumentID: "doc-1", Type: "Works_For",
				HeadID: "ent-1", TailID: "ent-2",
				HeadSurface: "Alice", TailSurface: "Acme",
			})
		},
	})

	stdout, _, err := executeCommand(t, "relation", "add", "doc-1",
		"--type", "Works_For", "--head", "ent-1", "--tail", "ent-2",
		"--server", srv.URL, "--no-color")
	require.NoError(t, err)

	assert.Equal(t, "Works_For", got["type"])
	assert.Equal(t, "ent-1", got["head_id"])
	assert.Equal(t, "ent-2", got["tail_id"])
	assert.Contains(t, stdout, "rel-1")
}

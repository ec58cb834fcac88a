package annotate

import (
	"context"
	"sync"

	"github.com/spanmark/spanmark/internal/domain/annotation"
	"github.com/spanmark/spanmark/internal/domain/document"
	"github.com/spanmark/spanmark/internal/infrastructure/monitoring/logging"
	"github.com/spanmark/spanmark/internal/infrastructure/search"
	"github.com/spanmark/spanmark/pkg/errors"
	"github.com/spanmark/spanmark/pkg/types/common"
)

// undoLimit bounds the per-document snapshot stack. Older states fall off the
// bottom.
const undoLimit = 25

// ─────────────────────────────────────────────────────────────────────────────
// Auto-annotation
// ─────────────────────────────────────────────────────────────────────────────

func (s *serviceImpl) AutoAnnotate(ctx context.Context, input *AutoAnnotateInput) (*MergeOutcomeDTO, error) {
	if input == nil || input.DocumentID == "" {
		return nil, errors.InvalidParam("document id is required")
	}
	if s.deps.Matcher == nil {
		return nil, errors.New(errors.ErrCodeServiceUnavailable, "no gazetteer is loaded")
	}

	doc, err := s.deps.Documents.GetByID(ctx, common.ID(input.DocumentID))
	if err != nil {
		return nil, err
	}
	existing, err := s.deps.Annotations.LoadSet(ctx, doc.ID)
	if err != nil {
		return nil, err
	}

	candidates := s.deps.Matcher.FindCandidates(doc)
	merged, report := annotation.Merge(existing, candidates, annotation.MergePolicy{Strict: s.strict()})

	if !input.Preview {
		// Replace runs the merged set through the store so taxonomy and span
		// validation apply to every lexicon-supplied type.
		store, err := annotation.NewStore(doc, s.deps.Taxonomy,
			annotation.WithStrictMode(s.strict()),
			annotation.WithInitialSet(existing))
		if err != nil {
			return nil, err
		}
		snap := store.Snapshot()
		if err := store.Replace(merged); err != nil {
			return nil, err
		}
		if err := s.deps.Annotations.SaveSet(ctx, doc.ID, store.Set()); err != nil {
			return nil, err
		}
		s.history.push(doc.ID, snap)
		s.reindex(ctx, doc, store.Set())
		s.publishMerged(ctx, doc.ID, store.Set(), report)
		merged = store.Set()
	}

	s.logger.Info("Auto-annotated document",
		logging.String("document_id", string(doc.ID)),
		logging.Int("candidates", len(candidates)),
		logging.Int("entities", len(merged.Entities)),
		logging.Int("dropped_entities", len(report.DroppedEntities)),
		logging.Bool("preview", input.Preview))

	return mergeOutcomeDTO(doc, merged, report, input.Preview), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Manual editing
// ─────────────────────────────────────────────────────────────────────────────

func (s *serviceImpl) AddEntity(ctx context.Context, input *AddEntityInput) (*EntityDTO, error) {
	if input == nil || input.DocumentID == "" {
		return nil, errors.InvalidParam("document id is required")
	}
	var added annotation.Entity
	doc, _, err := s.mutate(ctx, common.ID(input.DocumentID), func(st *annotation.Store) error {
		var err error
		added, err = st.AddEntity(annotation.Entity{
			Type:       input.Type,
			Start:      input.Start,
			End:        input.End,
			Provenance: annotation.ProvenanceManual,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return entityToDTO(doc, added), nil
}

func (s *serviceImpl) UpdateEntity(ctx context.Context, input *UpdateEntityInput) (*EntityDTO, error) {
	if input == nil || input.DocumentID == "" {
		return nil, errors.InvalidParam("document id is required")
	}
	if input.EntityID == "" {
		return nil, errors.InvalidParam("entity id is required")
	}
	var updated annotation.Entity
	doc, _, err := s.mutate(ctx, common.ID(input.DocumentID), func(st *annotation.Store) error {
		var err error
		updated, err = st.UpdateEntity(common.ID(input.EntityID), annotation.Entity{
			Type:  input.Type,
			Start: input.Start,
			End:   input.End,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return entityToDTO(doc, updated), nil
}

func (s *serviceImpl) DeleteEntity(ctx context.Context, documentID, entityID string) (*DeleteEntityDTO, error) {
	if documentID == "" {
		return nil, errors.InvalidParam("document id is required")
	}
	if entityID == "" {
		return nil, errors.InvalidParam("entity id is required")
	}
	removed := 0
	_, _, err := s.mutate(ctx, common.ID(documentID), func(st *annotation.Store) error {
		var err error
		removed, err = st.DeleteEntity(common.ID(entityID))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &DeleteEntityDTO{EntityID: entityID, RemovedRelations: removed}, nil
}

func (s *serviceImpl) AddRelation(ctx context.Context, input *AddRelationInput) (*RelationDTO, error) {
	if input == nil || input.DocumentID == "" {
		return nil, errors.InvalidParam("document id is required")
	}
	var added annotation.Relation
	doc, set, err := s.mutate(ctx, common.ID(input.DocumentID), func(st *annotation.Store) error {
		var err error
		added, err = st.AddRelation(annotation.Relation{
			Type:   input.Type,
			HeadID: common.ID(input.HeadID),
			TailID: common.ID(input.TailID),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return relationToDTO(doc, set, added), nil
}

func (s *serviceImpl) DeleteRelation(ctx context.Context, documentID, relationID string) error {
	if documentID == "" {
		return errors.InvalidParam("document id is required")
	}
	if relationID == "" {
		return errors.InvalidParam("relation id is required")
	}
	_, _, err := s.mutate(ctx, common.ID(documentID), func(st *annotation.Store) error {
		return st.DeleteRelation(common.ID(relationID))
	})
	return err
}

// mutate loads a document and its annotation set, applies one store mutation,
// and persists the result. The pre-mutation snapshot joins the undo stack only
// after the save succeeds, so the stack never holds states the database does
// not.
func (s *serviceImpl) mutate(ctx context.Context, docID common.ID, fn func(st *annotation.Store) error) (*document.Document, annotation.AnnotationSet, error) {
	doc, err := s.deps.Documents.GetByID(ctx, docID)
	if err != nil {
		return nil, annotation.AnnotationSet{}, err
	}
	set, err := s.deps.Annotations.LoadSet(ctx, doc.ID)
	if err != nil {
		return nil, annotation.AnnotationSet{}, err
	}
	store, err := annotation.NewStore(doc, s.deps.Taxonomy,
		annotation.WithStrictMode(s.strict()),
		annotation.WithInitialSet(set))
	if err != nil {
		return nil, annotation.AnnotationSet{}, err
	}

	snap := store.Snapshot()
	if err := fn(store); err != nil {
		return nil, annotation.AnnotationSet{}, err
	}
	if err := s.deps.Annotations.SaveSet(ctx, doc.ID, store.Set()); err != nil {
		return nil, annotation.AnnotationSet{}, err
	}
	s.history.push(doc.ID, snap)
	s.reindex(ctx, doc, store.Set())
	return doc, store.Set(), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Undo
// ─────────────────────────────────────────────────────────────────────────────

func (s *serviceImpl) Undo(ctx context.Context, documentID string) (*DocumentDetailDTO, error) {
	if documentID == "" {
		return nil, errors.InvalidParam("document id is required")
	}
	docID := common.ID(documentID)
	doc, err := s.deps.Documents.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}

	snap, ok := s.history.pop(docID)
	if !ok {
		return nil, errors.Newf(errors.ErrCodeUndoHistoryEmpty,
			"no undo history for document %s", documentID)
	}

	set, err := s.deps.Annotations.LoadSet(ctx, doc.ID)
	if err != nil {
		s.history.push(docID, snap)
		return nil, err
	}
	store, err := annotation.NewStore(doc, s.deps.Taxonomy,
		annotation.WithStrictMode(s.strict()),
		annotation.WithInitialSet(set))
	if err != nil {
		s.history.push(docID, snap)
		return nil, err
	}
	if err := store.Restore(snap); err != nil {
		return nil, err
	}
	if err := s.deps.Annotations.SaveSet(ctx, doc.ID, store.Set()); err != nil {
		// The snapshot goes back on the stack so the undo can be retried.
		s.history.push(docID, snap)
		return nil, err
	}
	s.reindex(ctx, doc, store.Set())

	s.logger.Info("Restored annotation snapshot",
		logging.String("document_id", documentID),
		logging.Int("undo_depth", s.history.depth(docID)))
	return s.detailDTO(doc, store.Set()), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Search index maintenance
// ─────────────────────────────────────────────────────────────────────────────

// reindex replaces the document's mentions in the search index. The index is
// derived state, so failures degrade search freshness instead of failing the
// write.
func (s *serviceImpl) reindex(ctx context.Context, doc *document.Document, set annotation.AnnotationSet) {
	if s.deps.Index == nil {
		return
	}
	mentions := search.BuildMentions(doc, set)
	if err := s.deps.Index.ReplaceDocument(ctx, string(doc.ID), mentions); err != nil {
		s.logger.Warn("Failed to refresh search index",
			logging.String("document_id", string(doc.ID)),
			logging.Err(err))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Undo history
// ─────────────────────────────────────────────────────────────────────────────

// history is the in-process undo store: a bounded stack of pre-mutation
// snapshots per document. Restart clears it; persisted annotation state is
// the source of truth and undo is a session convenience.
type history struct {
	mu     sync.Mutex
	limit  int
	stacks map[common.ID][]annotation.Snapshot
}

func newHistory(limit int) *history {
	return &history{limit: limit, stacks: make(map[common.ID][]annotation.Snapshot)}
}

func (h *history) push(docID common.ID, snap annotation.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	stack := append(h.stacks[docID], snap)
	if len(stack) > h.limit {
		stack = stack[len(stack)-h.limit:]
	}
	h.stacks[docID] = stack
}

func (h *history) pop(docID common.ID) (annotation.Snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	stack := h.stacks[docID]
	if len(stack) == 0 {
		return annotation.Snapshot{}, false
	}
	snap := stack[len(stack)-1]
	h.stacks[docID] = stack[:len(stack)-1]
	return snap, true
}

func (h *history) depth(docID common.ID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.stacks[docID])
}

func (h *history) forget(docID common.ID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.stacks, docID)
}

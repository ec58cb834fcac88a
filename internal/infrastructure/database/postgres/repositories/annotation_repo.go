package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spanmark/spanmark/internal/domain/annotation"
	"github.com/spanmark/spanmark/internal/infrastructure/database/postgres"
	"github.com/spanmark/spanmark/internal/infrastructure/monitoring/logging"
	appErrors "github.com/spanmark/spanmark/pkg/errors"
	"github.com/spanmark/spanmark/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// AnnotationRepository
// ─────────────────────────────────────────────────────────────────────────────

// AnnotationRepository is the PostgreSQL implementation of the annotation
// domain's Repository interface. Annotation sets are replaced wholesale inside
// one transaction, so readers never observe a half-written merge result.
type AnnotationRepository struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewAnnotationRepository constructs a ready-to-use AnnotationRepository.
func NewAnnotationRepository(pool *pgxpool.Pool, log logging.Logger) *AnnotationRepository {
	return &AnnotationRepository{pool: pool, logger: log}
}

// ─────────────────────────────────────────────────────────────────────────────
// SaveSet
// ─────────────────────────────────────────────────────────────────────────────

// SaveSet replaces the document's stored annotations with set. Existing rows
// are deleted and the new entities and relations are batch-inserted in the
// same transaction. Annotations tagged with a different document fail with
// ErrCodeDocumentMismatch before anything is written.
func (r *AnnotationRepository) SaveSet(ctx context.Context, docID common.ID, set annotation.AnnotationSet) error {
	r.logger.Debug("AnnotationRepository.SaveSet",
		logging.String("document_id", string(docID)),
		logging.Int("entities", len(set.Entities)),
		logging.Int("relations", len(set.Relations)),
	)

	if docID == "" {
		return appErrors.New(appErrors.CodeInvalidParam, "document id is required")
	}
	for i := range set.Entities {
		e := &set.Entities[i]
		if e.ID == "" {
			return appErrors.Newf(appErrors.CodeInvalidParam, "entity at index %d has no id", i)
		}
		if e.DocumentID != "" && e.DocumentID != docID {
			return appErrors.New(appErrors.ErrCodeDocumentMismatch, "entity belongs to a different document").
				WithDetail(fmt.Sprintf("entity_id=%s document_id=%s", e.ID, e.DocumentID))
		}
	}
	for i := range set.Relations {
		rel := &set.Relations[i]
		if rel.ID == "" {
			return appErrors.Newf(appErrors.CodeInvalidParam, "relation at index %d has no id", i)
		}
		if rel.DocumentID != "" && rel.DocumentID != docID {
			return appErrors.New(appErrors.ErrCodeDocumentMismatch, "relation belongs to a different document").
				WithDetail(fmt.Sprintf("relation_id=%s document_id=%s", rel.ID, rel.DocumentID))
		}
	}

	return postgres.WithTransaction(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		// Relations go first to satisfy their foreign keys into entities.
		if _, err := tx.Exec(ctx, `DELETE FROM relations WHERE document_id = $1`, docID); err != nil {
			r.logger.Error("AnnotationRepository.SaveSet: delete relations", logging.Err(err))
			return appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to delete existing relations")
		}
		if _, err := tx.Exec(ctx, `DELETE FROM entities WHERE document_id = $1`, docID); err != nil {
			r.logger.Error("AnnotationRepository.SaveSet: delete entities", logging.Err(err))
			return appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to delete existing entities")
		}

		if len(set.Entities) > 0 {
			batch := &pgx.Batch{}
			for _, e := range set.Entities {
				batch.Queue(`
					INSERT INTO entities (id, document_id, type, start_token, end_token, provenance, confidence)
					VALUES ($1,$2,$3,$4,$5,$6,$7)`,
					e.ID, docID, e.Type, e.Start, e.End, string(e.Provenance), e.Confidence,
				)
			}
			if err := r.execBatch(ctx, tx, batch, "entities"); err != nil {
				return err
			}
		}

		if len(set.Relations) > 0 {
			batch := &pgx.Batch{}
			for _, rel := range set.Relations {
				batch.Queue(`
					INSERT INTO relations (id, document_id, type, head_id, tail_id)
					VALUES ($1,$2,$3,$4,$5)`,
					rel.ID, docID, rel.Type, rel.HeadID, rel.TailID,
				)
			}
			if err := r.execBatch(ctx, tx, batch, "relations"); err != nil {
				return err
			}
		}
		return nil
	})
}

// execBatch sends a queued batch over tx and drains every result.
func (r *AnnotationRepository) execBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch, what string) error {
	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			r.logger.Error("AnnotationRepository.execBatch", logging.String("what", what), logging.Err(err))
			return appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to insert "+what)
		}
	}
	if err := br.Close(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to flush "+what+" batch")
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// LoadSet
// ─────────────────────────────────────────────────────────────────────────────

// LoadSet returns the document's stored annotations. Entities come back in
// span order; a document without annotations yields an empty set, not an
// error.
func (r *AnnotationRepository) LoadSet(ctx context.Context, docID common.ID) (annotation.AnnotationSet, error) {
	r.logger.Debug("AnnotationRepository.LoadSet", logging.String("document_id", string(docID)))

	set := annotation.AnnotationSet{
		Entities:  []annotation.Entity{},
		Relations: []annotation.Relation{},
	}

	entities, err := r.loadEntities(ctx, docID)
	if err != nil {
		return set, err
	}
	set.Entities = entities

	relations, err := r.loadRelations(ctx, docID)
	if err != nil {
		return set, err
	}
	set.Relations = relations

	return set, nil
}

func (r *AnnotationRepository) loadEntities(ctx context.Context, docID common.ID) ([]annotation.Entity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, document_id, type, start_token, end_token, provenance, confidence
		FROM entities
		WHERE document_id = $1
		ORDER BY start_token, end_token, type`, docID)
	if err != nil {
		r.logger.Error("AnnotationRepository.loadEntities", logging.Err(err))
		return nil, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to query entities")
	}
	defer rows.Close()

	entities := []annotation.Entity{}
	for rows.Next() {
		var (
			e    annotation.Entity
			prov string
		)
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.Type, &e.Start, &e.End, &prov, &e.Confidence); err != nil {
			r.logger.Error("AnnotationRepository.loadEntities: scan", logging.Err(err))
			return nil, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to scan entity row")
		}
		e.Provenance = annotation.Provenance(prov)
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "row iteration error")
	}
	return entities, nil
}

func (r *AnnotationRepository) loadRelations(ctx context.Context, docID common.ID) ([]annotation.Relation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, document_id, type, head_id, tail_id
		FROM relations
		WHERE document_id = $1
		ORDER BY type, head_id, tail_id`, docID)
	if err != nil {
		r.logger.Error("AnnotationRepository.loadRelations", logging.Err(err))
		return nil, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to query relations")
	}
	defer rows.Close()

	relations := []annotation.Relation{}
	for rows.Next() {
		var rel annotation.Relation
		if err := rows.Scan(&rel.ID, &rel.DocumentID, &rel.Type, &rel.HeadID, &rel.TailID); err != nil {
			r.logger.Error("AnnotationRepository.loadRelations: scan", logging.Err(err))
			return nil, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to scan relation row")
		}
		relations = append(relations, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "row iteration error")
	}
	return relations, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// DeleteByDocument
// ─────────────────────────────────────────────────────────────────────────────

// DeleteByDocument removes every annotation stored for the document. Deleting
// annotations for a document that has none is a no-op.
func (r *AnnotationRepository) DeleteByDocument(ctx context.Context, docID common.ID) error {
	r.logger.Debug("AnnotationRepository.DeleteByDocument", logging.String("document_id", string(docID)))

	return postgres.WithTransaction(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM relations WHERE document_id = $1`, docID); err != nil {
			r.logger.Error("AnnotationRepository.DeleteByDocument: relations", logging.Err(err))
			return appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to delete relations")
		}
		if _, err := tx.Exec(ctx, `DELETE FROM entities WHERE document_id = $1`, docID); err != nil {
			r.logger.Error("AnnotationRepository.DeleteByDocument: entities", logging.Err(err))
			return appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to delete entities")
		}
		return nil
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// EntityTypeDistribution
// ─────────────────────────────────────────────────────────────────────────────

// EntityTypeDistribution counts stored entities per type label. With an empty
// docID the distribution spans every document.
func (r *AnnotationRepository) EntityTypeDistribution(ctx context.Context, docID common.ID) (map[string]int64, error) {
	r.logger.Debug("AnnotationRepository.EntityTypeDistribution", logging.String("document_id", string(docID)))

	var (
		rows pgx.Rows
		err  error
	)
	if docID == "" {
		rows, err = r.pool.Query(ctx,
			`SELECT type, COUNT(*) FROM entities GROUP BY type`)
	} else {
		rows, err = r.pool.Query(ctx,
			`SELECT type, COUNT(*) FROM entities WHERE document_id = $1 GROUP BY type`, docID)
	}
	if err != nil {
		r.logger.Error("AnnotationRepository.EntityTypeDistribution", logging.Err(err))
		return nil, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to query entity type distribution")
	}
	defer rows.Close()

	dist := make(map[string]int64)
	for rows.Next() {
		var (
			typ   string
			count int64
		)
		if err := rows.Scan(&typ, &count); err != nil {
			r.logger.Error("AnnotationRepository.EntityTypeDistribution: scan", logging.Err(err))
			return nil, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to scan distribution row")
		}
		dist[typ] = count
	}
	if err := rows.Err(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "row iteration error")
	}
	return dist, nil
}

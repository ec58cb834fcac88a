package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spanmark/spanmark/internal/domain/document"
	"github.com/spanmark/spanmark/internal/infrastructure/monitoring/logging"
	appErrors "github.com/spanmark/spanmark/pkg/errors"
	"github.com/spanmark/spanmark/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// DocumentRepository
// ─────────────────────────────────────────────────────────────────────────────

// DocumentRepository is the PostgreSQL implementation of the document domain's
// Repository interface. Tokens are stored as a JSONB column; chunk lineage is
// a nullable self-reference with ON DELETE CASCADE, so removing a source
// document removes its chunks and, transitively, their annotations.
type DocumentRepository struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewDocumentRepository constructs a ready-to-use DocumentRepository.
func NewDocumentRepository(pool *pgxpool.Pool, log logging.Logger) *DocumentRepository {
	return &DocumentRepository{pool: pool, logger: log}
}

// ─────────────────────────────────────────────────────────────────────────────
// Create
// ─────────────────────────────────────────────────────────────────────────────

// Create persists a new document. Names are unique; inserting a second
// document with the same name fails with ErrCodeDocumentAlreadyExists.
func (r *DocumentRepository) Create(ctx context.Context, d *document.Document) error {
	r.logger.Debug("DocumentRepository.Create",
		logging.String("document_id", string(d.ID)),
		logging.String("name", d.Name),
	)

	tokens := d.Tokens
	if tokens == nil {
		tokens = []document.Token{}
	}
	tokensJSON, err := json.Marshal(tokens)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrCodeSerialization, "failed to encode document tokens")
	}

	var sourceID interface{}
	if d.SourceID != "" {
		sourceID = string(d.SourceID)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO documents (
			id, name, text, tokens, source_id,
			source_token_offset, source_char_offset,
			created_at, updated_at, version
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		d.ID, d.Name, d.Text, tokensJSON, sourceID,
		d.SourceTokenOffset, d.SourceCharOffset,
		d.CreatedAt, d.UpdatedAt, d.Version,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return appErrors.New(appErrors.ErrCodeDocumentAlreadyExists, "document already exists").
				WithDetail(fmt.Sprintf("name=%s", d.Name))
		}
		r.logger.Error("DocumentRepository.Create", logging.Err(err))
		return appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to insert document")
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// GetByID / GetByName
// ─────────────────────────────────────────────────────────────────────────────

// GetByID loads a document by its primary key.
func (r *DocumentRepository) GetByID(ctx context.Context, id common.ID) (*document.Document, error) {
	r.logger.Debug("DocumentRepository.GetByID", logging.String("id", string(id)))

	d, err := r.scanDocument(r.pool.QueryRow(ctx, `
		SELECT id, name, text, tokens, source_id,
		       source_token_offset, source_char_offset,
		       created_at, updated_at, version
		FROM documents WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, appErrors.New(appErrors.ErrCodeDocumentNotFound, "document not found").
				WithDetail(fmt.Sprintf("id=%s", id))
		}
		return nil, err
	}
	return d, nil
}

// GetByName locates a document by its unique name.
func (r *DocumentRepository) GetByName(ctx context.Context, name string) (*document.Document, error) {
	r.logger.Debug("DocumentRepository.GetByName", logging.String("name", name))

	d, err := r.scanDocument(r.pool.QueryRow(ctx, `
		SELECT id, name, text, tokens, source_id,
		       source_token_offset, source_char_offset,
		       created_at, updated_at, version
		FROM documents WHERE name = $1`, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, appErrors.New(appErrors.ErrCodeDocumentNotFound, "document not found").
				WithDetail(fmt.Sprintf("name=%s", name))
		}
		return nil, err
	}
	return d, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// List / ListChunks
// ─────────────────────────────────────────────────────────────────────────────

// List returns root documents (chunks excluded) ordered newest first, along
// with the total root document count.
func (r *DocumentRepository) List(ctx context.Context, p common.Pagination) ([]*document.Document, int64, error) {
	p = normalizePagination(p)
	r.logger.Debug("DocumentRepository.List",
		logging.Int("page", p.Page),
		logging.Int("page_size", p.PageSize),
	)

	var total int64
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM documents WHERE source_id IS NULL`).Scan(&total); err != nil {
		r.logger.Error("DocumentRepository.List: count", logging.Err(err))
		return nil, 0, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to count documents")
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, name, text, tokens, source_id,
		       source_token_offset, source_char_offset,
		       created_at, updated_at, version
		FROM documents
		WHERE source_id IS NULL
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2`, p.PageSize, p.Offset())
	if err != nil {
		r.logger.Error("DocumentRepository.List: query", logging.Err(err))
		return nil, 0, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to query documents")
	}
	defer rows.Close()

	docs, err := r.scanDocuments(rows)
	if err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

// ListChunks returns the chunks derived from sourceID in token order. A
// document without chunks yields an empty slice.
func (r *DocumentRepository) ListChunks(ctx context.Context, sourceID common.ID) ([]*document.Document, error) {
	r.logger.Debug("DocumentRepository.ListChunks", logging.String("source_id", string(sourceID)))

	rows, err := r.pool.Query(ctx, `
		SELECT id, name, text, tokens, source_id,
		       source_token_offset, source_char_offset,
		       created_at, updated_at, version
		FROM documents
		WHERE source_id = $1
		ORDER BY source_token_offset, id`, sourceID)
	if err != nil {
		r.logger.Error("DocumentRepository.ListChunks", logging.Err(err))
		return nil, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to query chunks")
	}
	defer rows.Close()

	return r.scanDocuments(rows)
}

// ─────────────────────────────────────────────────────────────────────────────
// Delete
// ─────────────────────────────────────────────────────────────────────────────

// Delete removes the document. Entities, relations, and derived chunks go with
// it through the schema's ON DELETE CASCADE constraints.
func (r *DocumentRepository) Delete(ctx context.Context, id common.ID) error {
	r.logger.Debug("DocumentRepository.Delete", logging.String("id", string(id)))

	tag, err := r.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("DocumentRepository.Delete", logging.Err(err))
		return appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to delete document")
	}
	if tag.RowsAffected() == 0 {
		return appErrors.New(appErrors.ErrCodeDocumentNotFound, "document not found").
			WithDetail(fmt.Sprintf("id=%s", id))
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Count
// ─────────────────────────────────────────────────────────────────────────────

// Count returns the number of root documents.
func (r *DocumentRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM documents WHERE source_id IS NULL`).Scan(&total); err != nil {
		r.logger.Error("DocumentRepository.Count", logging.Err(err))
		return 0, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to count documents")
	}
	return total, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Row scanning
// ─────────────────────────────────────────────────────────────────────────────

// scanDocument scans a single row into a Document. pgx.ErrNoRows passes
// through untranslated so callers can attach the lookup key to the not-found
// error.
func (r *DocumentRepository) scanDocument(row pgx.Row) (*document.Document, error) {
	var (
		d          document.Document
		tokensJSON []byte
		sourceID   *string
	)

	err := row.Scan(
		&d.ID, &d.Name, &d.Text, &tokensJSON, &sourceID,
		&d.SourceTokenOffset, &d.SourceCharOffset,
		&d.CreatedAt, &d.UpdatedAt, &d.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		r.logger.Error("scanDocument", logging.Err(err))
		return nil, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to scan document row")
	}

	if sourceID != nil {
		d.SourceID = common.ID(*sourceID)
	}
	if len(tokensJSON) > 0 {
		if err := json.Unmarshal(tokensJSON, &d.Tokens); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrCodeSerialization, "failed to decode document tokens")
		}
	}
	return &d, nil
}

// scanDocuments scans multiple rows into a Document slice.
func (r *DocumentRepository) scanDocuments(rows pgx.Rows) ([]*document.Document, error) {
	var docs []*document.Document
	for rows.Next() {
		var (
			d          document.Document
			tokensJSON []byte
			sourceID   *string
		)

		err := rows.Scan(
			&d.ID, &d.Name, &d.Text, &tokensJSON, &sourceID,
			&d.SourceTokenOffset, &d.SourceCharOffset,
			&d.CreatedAt, &d.UpdatedAt, &d.Version,
		)
		if err != nil {
			r.logger.Error("scanDocuments", logging.Err(err))
			return nil, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to scan document row")
		}

		if sourceID != nil {
			d.SourceID = common.ID(*sourceID)
		}
		if len(tokensJSON) > 0 {
			if err := json.Unmarshal(tokensJSON, &d.Tokens); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrCodeSerialization, "failed to decode document tokens")
			}
		}
		docs = append(docs, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "row iteration error")
	}
	return docs, nil
}

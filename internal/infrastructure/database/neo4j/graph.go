package neo4j

import (
	"context"
	"sort"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/spanmark/spanmark/internal/domain/annotation"
	"github.com/spanmark/spanmark/internal/domain/document"
	"github.com/spanmark/spanmark/internal/infrastructure/monitoring/logging"
	"github.com/spanmark/spanmark/pkg/errors"
	"github.com/spanmark/spanmark/pkg/types/common"
)

// GraphExporter writes committed annotation sets into the property graph.
//
// The model has two node labels. A Mention node stands for every occurrence
// of one surface form with one entity type across the corpus; a Document
// node anchors provenance. MENTIONED_IN edges link mentions to the documents
// they occur in with occurrence counts and token offsets, and RELATES edges
// carry one asserted relation per document, typed by the relation label.
// Re-exporting a document replaces everything it previously asserted.
type GraphExporter struct {
	exec   Executor
	logger logging.Logger
}

// NewGraphExporter returns an exporter running against exec.
func NewGraphExporter(exec Executor, log logging.Logger) *GraphExporter {
	return &GraphExporter{exec: exec, logger: log}
}

// ExportSummary reports what one document contributed to the graph.
type ExportSummary struct {
	Mentions  int `json:"mentions"`
	Relations int `json:"relations"`
}

// GraphStats is a corpus-level snapshot of the exported graph.
type GraphStats struct {
	Documents     int64            `json:"documents"`
	Mentions      int64            `json:"mentions"`
	Relations     int64            `json:"relations"`
	MentionTypes  map[string]int64 `json:"mention_types"`
	RelationTypes map[string]int64 `json:"relation_types"`
}

// EnsureSchema creates the uniqueness constraints and indexes the export
// relies on. Safe to call repeatedly.
func (g *GraphExporter) EnsureSchema(ctx context.Context) error {
	// Schema commands cannot share a transaction with data statements, so
	// each runs in its own write.
	statements := []string{
		`CREATE CONSTRAINT mention_key IF NOT EXISTS FOR (m:Mention) REQUIRE m.key IS UNIQUE`,
		`CREATE CONSTRAINT document_id IF NOT EXISTS FOR (d:Document) REQUIRE d.id IS UNIQUE`,
		`CREATE INDEX mention_type IF NOT EXISTS FOR (m:Mention) ON (m.type)`,
	}
	for _, stmt := range statements {
		stmt := stmt
		_, err := g.exec.ExecuteWrite(ctx, func(tx Transaction) (any, error) {
			_, err := tx.Run(ctx, stmt, nil)
			return nil, err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// ExportDocument replaces the document's contribution to the graph with the
// given annotation set. Mention nodes shared with other documents survive;
// mentions no longer referenced by any document are swept out.
func (g *GraphExporter) ExportDocument(ctx context.Context, doc *document.Document, set annotation.AnnotationSet) (*ExportSummary, error) {
	if doc == nil || doc.ID == "" {
		return nil, errors.New(errors.ErrCodeValidation, "document with an ID is required")
	}

	mentionRows, keys := buildMentionRows(doc, set)
	relationRows := buildRelationRows(set, keys)
	docID, docName := string(doc.ID), doc.Name

	_, err := g.exec.ExecuteWrite(ctx, func(tx Transaction) (any, error) {
		upsert := `
			MERGE (d:Document {id: $id})
			SET d.name = $name, d.exported_at = datetime()
		`
		if _, err := tx.Run(ctx, upsert, map[string]any{"id": docID, "name": docName}); err != nil {
			return nil, err
		}

		clearMentions := `
			MATCH (:Document {id: $id})<-[s:MENTIONED_IN]-() DELETE s
		`
		if _, err := tx.Run(ctx, clearMentions, map[string]any{"id": docID}); err != nil {
			return nil, err
		}

		clearRelations := `
			MATCH ()-[r:RELATES {document_id: $id}]->() DELETE r
		`
		if _, err := tx.Run(ctx, clearRelations, map[string]any{"id": docID}); err != nil {
			return nil, err
		}

		if len(mentionRows) > 0 {
			mergeMentions := `
				MATCH (d:Document {id: $docId})
				UNWIND $batch AS row
				MERGE (m:Mention {key: row.key})
				ON CREATE SET m.surface = row.surface, m.type = row.type, m.created_at = datetime()
				MERGE (m)-[s:MENTIONED_IN]->(d)
				SET s.count = row.count, s.starts = row.starts
			`
			params := map[string]any{"docId": docID, "batch": mentionRows}
			if _, err := tx.Run(ctx, mergeMentions, params); err != nil {
				return nil, err
			}
		}

		if len(relationRows) > 0 {
			mergeRelations := `
				UNWIND $batch AS row
				MATCH (a:Mention {key: row.head_key})
				MATCH (b:Mention {key: row.tail_key})
				MERGE (a)-[r:RELATES {type: row.type, document_id: $docId}]->(b)
				SET r.count = row.count, r.document_name = $docName
			`
			params := map[string]any{"docId": docID, "docName": docName, "batch": relationRows}
			if _, err := tx.Run(ctx, mergeRelations, params); err != nil {
				return nil, err
			}
		}

		if _, err := tx.Run(ctx, sweepOrphans, nil); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	g.logger.Debug("Exported document to graph",
		logging.String("document_id", docID),
		logging.Int("mentions", len(mentionRows)),
		logging.Int("relations", len(relationRows)))

	return &ExportSummary{Mentions: len(mentionRows), Relations: len(relationRows)}, nil
}

// RemoveDocument detaches a document and everything only it asserted.
func (g *GraphExporter) RemoveDocument(ctx context.Context, documentID string) error {
	if documentID == "" {
		return errors.New(errors.ErrCodeValidation, "document ID is required")
	}

	_, err := g.exec.ExecuteWrite(ctx, func(tx Transaction) (any, error) {
		clearRelations := `
			MATCH ()-[r:RELATES {document_id: $id}]->() DELETE r
		`
		if _, err := tx.Run(ctx, clearRelations, map[string]any{"id": documentID}); err != nil {
			return nil, err
		}

		detachDocument := `
			MATCH (d:Document {id: $id}) DETACH DELETE d
		`
		if _, err := tx.Run(ctx, detachDocument, map[string]any{"id": documentID}); err != nil {
			return nil, err
		}

		if _, err := tx.Run(ctx, sweepOrphans, nil); err != nil {
			return nil, err
		}
		return nil, nil
	})
	return err
}

// Stats reads corpus-level counts from the graph.
func (g *GraphExporter) Stats(ctx context.Context) (*GraphStats, error) {
	res, err := g.exec.ExecuteRead(ctx, func(tx Transaction) (any, error) {
		stats := &GraphStats{
			MentionTypes:  map[string]int64{},
			RelationTypes: map[string]int64{},
		}

		countDocs := `
			MATCH (d:Document) RETURN count(d) AS count
		`
		result, err := tx.Run(ctx, countDocs, nil)
		if err != nil {
			return nil, err
		}
		if result.Next(ctx) {
			stats.Documents = asInt64(result.Record(), "count")
		}
		if err := result.Err(); err != nil {
			return nil, err
		}

		mentionTypes := `
			MATCH (m:Mention)
			RETURN m.type AS type, count(m) AS count
			ORDER BY count DESC, type ASC
		`
		result, err = tx.Run(ctx, mentionTypes, nil)
		if err != nil {
			return nil, err
		}
		counts, err := CollectRecords(ctx, result, typeCountMapper)
		if err != nil {
			return nil, err
		}
		for _, tc := range counts {
			stats.MentionTypes[tc.Type] = tc.Count
			stats.Mentions += tc.Count
		}

		relationTypes := `
			MATCH ()-[r:RELATES]->()
			RETURN r.type AS type, count(r) AS count
			ORDER BY count DESC, type ASC
		`
		result, err = tx.Run(ctx, relationTypes, nil)
		if err != nil {
			return nil, err
		}
		counts, err = CollectRecords(ctx, result, typeCountMapper)
		if err != nil {
			return nil, err
		}
		for _, tc := range counts {
			stats.RelationTypes[tc.Type] = tc.Count
			stats.Relations += tc.Count
		}

		return stats, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*GraphStats), nil
}

// sweepOrphans removes mentions no document references anymore. DETACH also
// clears relation edges left dangling by the removal.
const sweepOrphans = `
	MATCH (m:Mention) WHERE NOT (m)-[:MENTIONED_IN]->() DETACH DELETE m
`

type typeCount struct {
	Type  string
	Count int64
}

func typeCountMapper(rec *neo4j.Record) (typeCount, error) {
	tc := typeCount{}
	if v, ok := rec.Get("type"); ok {
		if s, ok := v.(string); ok {
			tc.Type = s
		}
	}
	tc.Count = asInt64(rec, "count")
	return tc, nil
}

func asInt64(rec *neo4j.Record, key string) int64 {
	v, ok := rec.Get(key)
	if !ok {
		return 0
	}
	n, _ := v.(int64)
	return n
}

// mentionKey identifies a mention node. The unit separator keeps surfaces
// containing the join character from colliding.
func mentionKey(surface, entityType string) string {
	return entityType + "\x1f" + surface
}

// buildMentionRows groups the set's entities into one row per (surface, type)
// and maps every usable entity ID to its node key for relation resolution.
func buildMentionRows(doc *document.Document, set annotation.AnnotationSet) ([]map[string]any, map[common.ID]string) {
	rows := map[string]map[string]any{}
	keys := make(map[common.ID]string, len(set.Entities))

	for _, e := range set.Entities {
		if !doc.ValidSpan(e.Start, e.End) {
			continue
		}
		surface, err := doc.SpanText(e.Start, e.End)
		if err != nil {
			continue
		}
		key := mentionKey(surface, e.Type)
		keys[e.ID] = key

		row, ok := rows[key]
		if !ok {
			row = map[string]any{
				"key":     key,
				"surface": surface,
				"type":    e.Type,
				"count":   int64(0),
				"starts":  []any{},
			}
			rows[key] = row
		}
		row["count"] = row["count"].(int64) + 1
		row["starts"] = append(row["starts"].([]any), int64(e.Start))
	}

	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i]["key"].(string) < out[j]["key"].(string)
	})
	return out, keys
}

// buildRelationRows groups relations into one edge row per (head, tail, type).
// Relations touching an entity that produced no mention row are skipped; the
// store guarantees live endpoints, so a miss means the span no longer fits
// the document.
func buildRelationRows(set annotation.AnnotationSet, keys map[common.ID]string) []map[string]any {
	rows := map[string]map[string]any{}

	for _, r := range set.Relations {
		headKey, ok := keys[r.HeadID]
		if !ok {
			continue
		}
		tailKey, ok := keys[r.TailID]
		if !ok {
			continue
		}
		id := headKey + "\x1f" + tailKey + "\x1f" + r.Type
		row, ok := rows[id]
		if !ok {
			row = map[string]any{
				"head_key": headKey,
				"tail_key": tailKey,
				"type":     r.Type,
				"count":    int64(0),
			}
			rows[id] = row
		}
		row["count"] = row["count"].(int64) + 1
	}

	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i]["head_key"].(string) != out[j]["head_key"].(string) {
			return out[i]["head_key"].(string) < out[j]["head_key"].(string)
		}
		if out[i]["tail_key"].(string) != out[j]["tail_key"].(string) {
			return out[i]["tail_key"].(string) < out[j]["tail_key"].(string)
		}
		return out[i]["type"].(string) < out[j]["type"].(string)
	})
	return out
}

// Package dataset implements the dataset application service: versioned
// train/dev/test exports of the annotated corpus, standalone dataset-file
// splitting, raw (unannotated) dataset builds from text corpora, dataset
// imports back into the document and annotation stores, and publication of
// exported versions to object storage under a distributed lock.
//
// Splits are stratified: each document or record is labeled with its most
// frequent relation type and every label's population is divided at the
// requested ratios, so rare relation types appear in all three parts
// whenever their population allows. A fixed seed reproduces a split exactly.
package dataset

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spanmark/spanmark/internal/config"
	"github.com/spanmark/spanmark/internal/domain/annotation"
	"github.com/spanmark/spanmark/internal/domain/document"
	"github.com/spanmark/spanmark/internal/domain/taxonomy"
	"github.com/spanmark/spanmark/internal/infrastructure/database/redis"
	"github.com/spanmark/spanmark/internal/infrastructure/messaging/kafka"
	"github.com/spanmark/spanmark/internal/infrastructure/monitoring/logging"
	"github.com/spanmark/spanmark/internal/infrastructure/storage/minio"
	"github.com/spanmark/spanmark/internal/nlp/tokenize"
	"github.com/spanmark/spanmark/internal/spert"
	"github.com/spanmark/spanmark/pkg/errors"
	"github.com/spanmark/spanmark/pkg/types/common"
)

// Dataset file names inside a version directory.
const (
	TrainFile = "train.json"
	DevFile   = "dev.json"
	TestFile  = "test.json"
	TypesFile = "types.json"
)

// listPageSize is the repository page size used when walking the corpus.
const listPageSize = 200

// ─────────────────────────────────────────────────────────────────────────────
// Service interface
// ─────────────────────────────────────────────────────────────────────────────

// Service exposes the dataset operations.
type Service interface {
	// Export writes a versioned train/dev/test split of the annotated corpus
	// plus the types file into <output_dir>/<version>/. Every file lands
	// atomically.
	Export(ctx context.Context, input *ExportInput) (*ExportDTO, error)

	// SplitFile splits one dataset file into train/dev/test files next to it
	// (or into OutDir), stratified and seeded the same way Export is.
	SplitFile(ctx context.Context, input *SplitFileInput) (*SplitDTO, error)

	// BuildRaw sentence-segments text corpora into an unannotated dataset
	// file for prediction input, dropping sentences shorter than the
	// configured minimum.
	BuildRaw(ctx context.Context, input *BuildRawInput) (*BuildRawDTO, error)

	// Import decodes a dataset file and persists its records as documents
	// with annotation sets. The file class decides the annotations'
	// provenance and must be supplied by the caller.
	Import(ctx context.Context, input *ImportInput) (*ImportDTO, error)

	// Publish uploads an exported version directory to object storage under
	// a per-version distributed lock and emits a dataset.exported event.
	Publish(ctx context.Context, input *PublishInput) (*PublishDTO, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// Inputs and DTOs
// ─────────────────────────────────────────────────────────────────────────────

// ExportInput parameterizes a corpus export. Zero-value ratios and seed fall
// back to the service configuration.
type ExportInput struct {
	Version   string `json:"version"`
	OutputDir string `json:"output_dir,omitempty"`
	Ratios    Ratios `json:"ratios,omitempty"`
	Seed      int64  `json:"seed,omitempty"`
	// IncludeChunks also exports chunk documents. Off by default so a
	// chunked source text is not exported twice.
	IncludeChunks bool `json:"include_chunks,omitempty"`
}

// ExportDTO reports a finished export.
type ExportDTO struct {
	Version   string `json:"version"`
	Dir       string `json:"dir"`
	Seed      int64  `json:"seed"`
	Documents int    `json:"documents"`
	Train     int    `json:"train"`
	Dev       int    `json:"dev"`
	Test      int    `json:"test"`
	Entities  int    `json:"entities"`
	Relations int    `json:"relations"`
}

// SplitFileInput parameterizes a file split.
type SplitFileInput struct {
	Path   string `json:"path"`
	OutDir string `json:"out_dir,omitempty"`
	Ratios Ratios `json:"ratios,omitempty"`
	Seed   int64  `json:"seed,omitempty"`
}

// SplitDTO reports a finished file split.
type SplitDTO struct {
	Dir   string `json:"dir"`
	Seed  int64  `json:"seed"`
	Train int    `json:"train"`
	Dev   int    `json:"dev"`
	Test  int    `json:"test"`
}

// BuildRawInput parameterizes a raw dataset build. MinSentenceTokens of zero
// falls back to the pipeline configuration.
type BuildRawInput struct {
	Paths             []string `json:"paths"`
	OutPath           string   `json:"out_path"`
	MinSentenceTokens int      `json:"min_sentence_tokens,omitempty"`
	Clean             bool     `json:"clean,omitempty"`
}

// BuildRawDTO reports a finished raw build.
type BuildRawDTO struct {
	OutPath   string `json:"out_path"`
	Files     int    `json:"files"`
	Sentences int    `json:"sentences"`
	Dropped   int    `json:"dropped"`
}

// ImportInput parameterizes a dataset import. Class must be a valid file
// class name (gold, prediction, raw); NamePrefix defaults to the file stem.
type ImportInput struct {
	Path       string `json:"path"`
	Class      string `json:"class"`
	NamePrefix string `json:"name_prefix,omitempty"`
}

// ImportDTO reports a finished import.
type ImportDTO struct {
	Class       string   `json:"class"`
	Documents   int      `json:"documents"`
	Entities    int      `json:"entities"`
	Relations   int      `json:"relations"`
	DocumentIDs []string `json:"document_ids"`
}

// PublishInput names the version to publish. Dir defaults to the export
// location for that version.
type PublishInput struct {
	Version string `json:"version"`
	Dir     string `json:"dir,omitempty"`
}

// PublishDTO reports a finished publication.
type PublishDTO struct {
	Version  string `json:"version"`
	Location string `json:"location"`
	Files    int    `json:"files"`
	Bytes    int64  `json:"bytes"`
	Train    int    `json:"train"`
	Dev      int    `json:"dev"`
	Test     int    `json:"test"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Dependencies and construction
// ─────────────────────────────────────────────────────────────────────────────

// ObjectStore uploads a version directory to object storage.
// *minio.DatasetStore satisfies it.
type ObjectStore interface {
	Publish(ctx context.Context, version, dir string) (*minio.PublishResult, error)
}

// Dependencies collects the service's collaborators. Store, Locks, and
// Publisher are optional: a nil Publisher becomes the no-op publisher, nil
// Locks become no-op locks, and a nil Store disables Publish.
type Dependencies struct {
	Documents   document.Repository
	Annotations annotation.Repository
	Taxonomy    *taxonomy.Taxonomy
	Tokenizer   *tokenize.Tokenizer
	Cleaner     *tokenize.Cleaner
	Store       ObjectStore
	Locks       redis.LockFactory
	Publisher   kafka.EventPublisher
	Dataset     config.DatasetConfig
	Pipeline    config.PipelineConfig
}

type serviceImpl struct {
	deps   Dependencies
	logger logging.Logger
}

// NewService creates the dataset application service.
func NewService(deps Dependencies, log logging.Logger) Service {
	if deps.Publisher == nil {
		deps.Publisher = kafka.NewNopPublisher()
	}
	if deps.Locks == nil {
		deps.Locks = redis.NewNopLockFactory()
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &serviceImpl{deps: deps, logger: log}
}

// ─────────────────────────────────────────────────────────────────────────────
// Export
// ─────────────────────────────────────────────────────────────────────────────

func (s *serviceImpl) Export(ctx context.Context, input *ExportInput) (*ExportDTO, error) {
	if input == nil {
		return nil, errors.InvalidParam("export input is required")
	}
	if err := validateVersion(input.Version); err != nil {
		return nil, err
	}
	ratios, err := s.resolveRatios(input.Ratios)
	if err != nil {
		return nil, err
	}
	seed := s.resolveSeed(input.Seed)

	docs, sets, err := s.collectCorpus(ctx, input.IncludeChunks)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, errors.New(errors.ErrCodeEmptyDataset, "no documents to export")
	}

	items := make([]item, len(docs))
	for i, set := range sets {
		items[i] = item{index: i, label: setLabel(set)}
	}
	split := stratifiedSplit(items, ratios, seed)

	outDir := input.OutputDir
	if outDir == "" {
		outDir = s.deps.Dataset.OutputDir
	}
	dir := filepath.Join(outDir, input.Version)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, errors.ErrCodeExportFailed, "create export directory %s", dir)
	}

	entities, relations := 0, 0
	for _, set := range sets {
		entities += len(set.Entities)
		relations += len(set.Relations)
	}

	for _, part := range []struct {
		file    string
		indices []int
	}{
		{TrainFile, split.train},
		{DevFile, split.dev},
		{TestFile, split.test},
	} {
		records, err := encodeSubset(docs, sets, part.indices)
		if err != nil {
			return nil, err
		}
		if err := spert.WriteDatasetFile(filepath.Join(dir, part.file), records); err != nil {
			return nil, err
		}
	}
	if err := s.writeTypesFile(filepath.Join(dir, TypesFile)); err != nil {
		return nil, err
	}

	s.logger.Info("Exported dataset",
		logging.String("version", input.Version),
		logging.String("dir", dir),
		logging.Int("documents", len(docs)),
		logging.Int("train", len(split.train)),
		logging.Int("dev", len(split.dev)),
		logging.Int("test", len(split.test)),
		logging.Int64("seed", seed))

	return &ExportDTO{
		Version:   input.Version,
		Dir:       dir,
		Seed:      seed,
		Documents: len(docs),
		Train:     len(split.train),
		Dev:       len(split.dev),
		Test:      len(split.test),
		Entities:  entities,
		Relations: relations,
	}, nil
}

// collectCorpus walks the document repository and loads each document's
// annotation set.
func (s *serviceImpl) collectCorpus(ctx context.Context, includeChunks bool) ([]*document.Document, []annotation.AnnotationSet, error) {
	var docs []*document.Document
	for page := 1; ; page++ {
		batch, _, err := s.deps.Documents.List(ctx, common.Pagination{Page: page, PageSize: listPageSize})
		if err != nil {
			return nil, nil, err
		}
		for _, d := range batch {
			if !includeChunks && d.IsChunk() {
				continue
			}
			docs = append(docs, d)
		}
		if len(batch) < listPageSize {
			break
		}
	}

	sets := make([]annotation.AnnotationSet, len(docs))
	for i, d := range docs {
		set, err := s.deps.Annotations.LoadSet(ctx, d.ID)
		if err != nil {
			return nil, nil, err
		}
		sets[i] = set
	}
	return docs, sets, nil
}

func encodeSubset(docs []*document.Document, sets []annotation.AnnotationSet, indices []int) ([]spert.Record, error) {
	subDocs := make([]*document.Document, 0, len(indices))
	subSets := make([]annotation.AnnotationSet, 0, len(indices))
	for _, i := range indices {
		subDocs = append(subDocs, docs[i])
		subSets = append(subSets, sets[i])
	}
	return spert.EncodeDataset(subDocs, subSets)
}

// writeTypesFile stages and renames the taxonomy file so readers never see a
// partial write.
func (s *serviceImpl) writeTypesFile(path string) error {
	data, err := s.deps.Taxonomy.Marshal()
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".types-*.json")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExportFailed, "stage types file")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, errors.ErrCodeExportFailed, "write types file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeExportFailed, "close types file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrap(err, errors.ErrCodeExportFailed, "move types file into place")
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// SplitFile
// ─────────────────────────────────────────────────────────────────────────────

func (s *serviceImpl) SplitFile(ctx context.Context, input *SplitFileInput) (*SplitDTO, error) {
	if input == nil || input.Path == "" {
		return nil, errors.InvalidParam("dataset path is required")
	}
	ratios, err := s.resolveRatios(input.Ratios)
	if err != nil {
		return nil, err
	}
	seed := s.resolveSeed(input.Seed)

	records, err := spert.ReadDatasetFile(input.Path)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.New(errors.ErrCodeEmptyDataset, "dataset file has no records")
	}

	items := make([]item, len(records))
	for i, rec := range records {
		items[i] = item{index: i, label: recordLabel(rec)}
	}
	split := stratifiedSplit(items, ratios, seed)

	dir := input.OutDir
	if dir == "" {
		dir = filepath.Dir(input.Path)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, errors.ErrCodeExportFailed, "create split directory %s", dir)
	}

	for _, part := range []struct {
		file    string
		indices []int
	}{
		{TrainFile, split.train},
		{DevFile, split.dev},
		{TestFile, split.test},
	} {
		subset := make([]spert.Record, 0, len(part.indices))
		for _, i := range part.indices {
			subset = append(subset, records[i])
		}
		if err := spert.WriteDatasetFile(filepath.Join(dir, part.file), subset); err != nil {
			return nil, err
		}
	}

	s.logger.Info("Split dataset file",
		logging.String("path", input.Path),
		logging.String("dir", dir),
		logging.Int("train", len(split.train)),
		logging.Int("dev", len(split.dev)),
		logging.Int("test", len(split.test)))

	return &SplitDTO{
		Dir:   dir,
		Seed:  seed,
		Train: len(split.train),
		Dev:   len(split.dev),
		Test:  len(split.test),
	}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// BuildRaw
// ─────────────────────────────────────────────────────────────────────────────

func (s *serviceImpl) BuildRaw(ctx context.Context, input *BuildRawInput) (*BuildRawDTO, error) {
	if input == nil || len(input.Paths) == 0 {
		return nil, errors.InvalidParam("at least one corpus path is required")
	}
	if input.OutPath == "" {
		return nil, errors.InvalidParam("output path is required")
	}
	min := input.MinSentenceTokens
	if min <= 0 {
		min = s.deps.Pipeline.MinSentenceTokens
	}

	var records []spert.Record
	dropped := 0
	for _, path := range input.Paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrCodeBadRequest, "read corpus file %s", path)
		}
		text := string(data)
		if input.Clean && s.deps.Cleaner != nil {
			text, _ = s.deps.Cleaner.Clean(text)
		}
		doc, err := s.deps.Tokenizer.Tokenize(filepath.Base(path), text)
		if err != nil {
			return nil, errors.Wrapf(err, errors.CodeInvalidParam, "tokenize corpus file %s", path)
		}

		texts := doc.TokenTexts()
		for _, sent := range tokenize.Sentences(doc.Tokens) {
			lo, hi := sent[0], sent[1]
			if hi-lo < min {
				dropped++
				continue
			}
			records = append(records, spert.Record{
				Tokens:    texts[lo:hi],
				Entities:  []spert.RecordEntity{},
				Relations: []spert.RecordRelation{},
			})
		}
	}
	if len(records) == 0 {
		return nil, errors.New(errors.ErrCodeEmptyDataset,
			"no sentences survived the minimum-length filter")
	}

	if dir := filepath.Dir(input.OutPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, errors.ErrCodeExportFailed, "create output directory %s", dir)
		}
	}
	if err := spert.WriteDatasetFile(input.OutPath, records); err != nil {
		return nil, err
	}

	s.logger.Info("Built raw dataset",
		logging.String("out", input.OutPath),
		logging.Int("files", len(input.Paths)),
		logging.Int("sentences", len(records)),
		logging.Int("dropped", dropped))

	return &BuildRawDTO{
		OutPath:   input.OutPath,
		Files:     len(input.Paths),
		Sentences: len(records),
		Dropped:   dropped,
	}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Import
// ─────────────────────────────────────────────────────────────────────────────

func (s *serviceImpl) Import(ctx context.Context, input *ImportInput) (*ImportDTO, error) {
	if input == nil || input.Path == "" {
		return nil, errors.InvalidParam("dataset path is required")
	}
	class := spert.FileClass(input.Class)
	if !class.Valid() {
		return nil, errors.Newf(errors.CodeInvalidParam, "unknown file class %q", input.Class)
	}

	records, err := spert.ReadDatasetFile(input.Path)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.New(errors.ErrCodeEmptyDataset, "dataset file has no records")
	}
	if err := spert.ValidateDatasetTypes(records, s.deps.Taxonomy); err != nil {
		return nil, err
	}

	prefix := input.NamePrefix
	if prefix == "" {
		prefix = fileStem(input.Path)
	}

	docs, sets, err := spert.DecodeDataset(prefix, records, class)
	if err != nil {
		return nil, err
	}

	out := &ImportDTO{Class: string(class)}
	for i, doc := range docs {
		if err := s.deps.Documents.Create(ctx, doc); err != nil {
			return nil, err
		}
		if !sets[i].IsEmpty() {
			if err := s.deps.Annotations.SaveSet(ctx, doc.ID, sets[i]); err != nil {
				return nil, err
			}
		}
		out.Documents++
		out.Entities += len(sets[i].Entities)
		out.Relations += len(sets[i].Relations)
		out.DocumentIDs = append(out.DocumentIDs, string(doc.ID))

		// Raw records are prediction input; announcing them drives the
		// auto-annotation worker. Gold and prediction records already carry
		// annotations, so no event is published for them.
		if class == spert.ClassRaw {
			s.publishImported(ctx, doc)
		}
	}

	s.logger.Info("Imported dataset file",
		logging.String("path", input.Path),
		logging.String("class", string(class)),
		logging.Int("documents", out.Documents),
		logging.Int("entities", out.Entities),
		logging.Int("relations", out.Relations))
	return out, nil
}

func (s *serviceImpl) publishImported(ctx context.Context, doc *document.Document) {
	payload := kafka.DocumentImportedPayload{
		DocumentID: string(doc.ID),
		Source:     doc.Name,
		Sentences:  tokenize.SentenceCount(doc.Tokens),
		Tokens:     doc.TokenCount(),
		ImportedAt: time.Now().UTC(),
	}
	if err := s.deps.Publisher.PublishEvent(ctx, kafka.EventDocumentImported, string(doc.ID), payload); err != nil {
		s.logger.Error("Failed to publish document.imported",
			logging.String("document_id", string(doc.ID)), logging.Err(err))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Publish
// ─────────────────────────────────────────────────────────────────────────────

func (s *serviceImpl) Publish(ctx context.Context, input *PublishInput) (*PublishDTO, error) {
	if input == nil {
		return nil, errors.InvalidParam("publish input is required")
	}
	if err := validateVersion(input.Version); err != nil {
		return nil, err
	}
	if s.deps.Store == nil {
		return nil, errors.New(errors.ErrCodeServiceUnavailable, "no dataset store configured")
	}

	dir := input.Dir
	if dir == "" {
		dir = filepath.Join(s.deps.Dataset.OutputDir, input.Version)
	}

	counts := [3]int{}
	for i, file := range []string{TrainFile, DevFile, TestFile} {
		records, err := spert.ReadDatasetFile(filepath.Join(dir, file))
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrCodePublishFailed,
				"version directory %s is missing %s", dir, file)
		}
		counts[i] = len(records)
	}
	if _, err := os.Stat(filepath.Join(dir, TypesFile)); err != nil {
		return nil, errors.Wrapf(err, errors.ErrCodePublishFailed,
			"version directory %s is missing %s", dir, TypesFile)
	}

	// One publisher per version at a time; concurrent callers fail fast
	// instead of racing half-uploaded objects.
	mutex := s.deps.Locks.NewMutex("dataset:publish:" + input.Version)
	if err := mutex.Lock(ctx); err != nil {
		return nil, errors.Wrapf(err, errors.ErrCodeConflict,
			"version %s is being published elsewhere", input.Version)
	}
	defer func() {
		if err := mutex.Unlock(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("Failed to release publish lock",
				logging.String("version", input.Version), logging.Err(err))
		}
	}()

	result, err := s.deps.Store.Publish(ctx, input.Version, dir)
	if err != nil {
		return nil, err
	}

	payload := kafka.DatasetExportedPayload{
		Version:    input.Version,
		Documents:  counts[0] + counts[1] + counts[2],
		Train:      counts[0],
		Dev:        counts[1],
		Test:       counts[2],
		Location:   result.Location,
		ExportedAt: time.Now().UTC(),
	}
	if err := s.deps.Publisher.PublishEvent(ctx, kafka.EventDatasetExported, input.Version, payload); err != nil {
		s.logger.Error("Failed to publish dataset.exported",
			logging.String("version", input.Version), logging.Err(err))
	}

	s.logger.Info("Published dataset",
		logging.String("version", input.Version),
		logging.String("location", result.Location),
		logging.Int("files", result.Files),
		logging.Int64("bytes", result.Bytes))

	return &PublishDTO{
		Version:  input.Version,
		Location: result.Location,
		Files:    result.Files,
		Bytes:    result.Bytes,
		Train:    counts[0],
		Dev:      counts[1],
		Test:     counts[2],
	}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func (s *serviceImpl) resolveRatios(in Ratios) (Ratios, error) {
	r := in
	if r.IsZero() {
		r = Ratios{
			Train: s.deps.Dataset.TrainRatio,
			Dev:   s.deps.Dataset.DevRatio,
			Test:  s.deps.Dataset.TestRatio,
		}
	}
	if r.IsZero() {
		r = DefaultRatios()
	}
	if err := r.Validate(); err != nil {
		return Ratios{}, err
	}
	return r, nil
}

func (s *serviceImpl) resolveSeed(in int64) int64 {
	if in != 0 {
		return in
	}
	if s.deps.Dataset.Seed != 0 {
		return s.deps.Dataset.Seed
	}
	return time.Now().UnixNano()
}

func validateVersion(version string) error {
	if version == "" {
		return errors.InvalidParam("dataset version is required")
	}
	if strings.ContainsAny(version, `/\`) {
		return errors.Newf(errors.CodeInvalidParam,
			"dataset version %q must not contain path separators", version)
	}
	return nil
}

func setLabel(set annotation.AnnotationSet) string {
	types := make([]string, 0, len(set.Relations))
	for _, r := range set.Relations {
		types = append(types, r.Type)
	}
	return dominantLabel(types)
}

func recordLabel(rec spert.Record) string {
	types := make([]string, 0, len(rec.Relations))
	for _, r := range rec.Relations {
		types = append(types, r.Type)
	}
	return dominantLabel(types)
}

func fileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

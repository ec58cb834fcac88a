package client

import "context"

// ---------------------------------------------------------------------------
// DTOs
// ---------------------------------------------------------------------------

// SplitRatios are the train/dev/test proportions. They must sum to 1.
type SplitRatios struct {
	Train float64 `json:"train"`
	Dev   float64 `json:"dev"`
	Test  float64 `json:"test"`
}

// ExportRequest describes a versioned dataset export from the stored corpus.
type ExportRequest struct {
	Version       string      `json:"version"`
	OutputDir     string      `json:"output_dir,omitempty"`
	Ratios        SplitRatios `json:"ratios,omitempty"`
	Seed          int64       `json:"seed,omitempty"`
	IncludeChunks bool        `json:"include_chunks,omitempty"`
}

// ExportResult summarizes a dataset export.
type ExportResult struct {
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

// SplitRequest re-splits an existing records file on the server.
type SplitRequest struct {
	Path   string      `json:"path"`
	OutDir string      `json:"out_dir,omitempty"`
	Ratios SplitRatios `json:"ratios,omitempty"`
	Seed   int64       `json:"seed,omitempty"`
}

// SplitResult summarizes a file split.
type SplitResult struct {
	Dir   string `json:"dir"`
	Seed  int64  `json:"seed"`
	Train int    `json:"train"`
	Dev   int    `json:"dev"`
	Test  int    `json:"test"`
}

// BuildRawRequest segments plain-text corpus files into unannotated records.
type BuildRawRequest struct {
	Paths             []string `json:"paths"`
	OutPath           string   `json:"out_path"`
	MinSentenceTokens int      `json:"min_sentence_tokens,omitempty"`
	Clean             bool     `json:"clean,omitempty"`
}

// BuildRawResult summarizes a raw corpus build.
type BuildRawResult struct {
	OutPath   string `json:"out_path"`
	Files     int    `json:"files"`
	Sentences int    `json:"sentences"`
	Dropped   int    `json:"dropped"`
}

// ImportRequest loads a records file into the stored corpus.
type ImportRequest struct {
	Path       string `json:"path"`
	Class      string `json:"class"`
	NamePrefix string `json:"name_prefix,omitempty"`
}

// ImportResult summarizes a records import.
type ImportResult struct {
	Class       string   `json:"class"`
	Documents   int      `json:"documents"`
	Entities    int      `json:"entities"`
	Relations   int      `json:"relations"`
	DocumentIDs []string `json:"document_ids"`
}

// PublishRequest pushes an exported dataset version to object storage.
type PublishRequest struct {
	Version string `json:"version"`
	Dir     string `json:"dir,omitempty"`
}

// PublishResult summarizes a dataset publication.
type PublishResult struct {
	Version  string `json:"version"`
	Location string `json:"location"`
	Files    int    `json:"files"`
	Bytes    int64  `json:"bytes"`
	Train    int    `json:"train"`
	Dev      int    `json:"dev"`
	Test     int    `json:"test"`
}

// ---------------------------------------------------------------------------
// Sub-client
// ---------------------------------------------------------------------------

// DatasetsClient operates on dataset exports and imports.
type DatasetsClient struct {
	client *Client
}

// Export writes a versioned train/dev/test split of the stored corpus.
// POST /api/v1/datasets/export
func (dc *DatasetsClient) Export(ctx context.Context, req *ExportRequest) (*ExportResult, error) {
	if req == nil || req.Version == "" {
		return nil, invalidArg("version is required")
	}
	var result ExportResult
	if err := dc.client.post(ctx, "/api/v1/datasets/export", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Split re-splits a records file into train/dev/test files.
// POST /api/v1/datasets/split
func (dc *DatasetsClient) Split(ctx context.Context, req *SplitRequest) (*SplitResult, error) {
	if req == nil || req.Path == "" {
		return nil, invalidArg("path is required")
	}
	var result SplitResult
	if err := dc.client.post(ctx, "/api/v1/datasets/split", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// BuildRaw segments corpus files into unannotated records for prediction.
// POST /api/v1/datasets/build-raw
func (dc *DatasetsClient) BuildRaw(ctx context.Context, req *BuildRawRequest) (*BuildRawResult, error) {
	if req == nil || len(req.Paths) == 0 {
		return nil, invalidArg("at least one corpus path is required")
	}
	if req.OutPath == "" {
		return nil, invalidArg("out_path is required")
	}
	var result BuildRawResult
	if err := dc.client.post(ctx, "/api/v1/datasets/build-raw", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Import loads a records file into the stored corpus.
// POST /api/v1/datasets/import
func (dc *DatasetsClient) Import(ctx context.Context, req *ImportRequest) (*ImportResult, error) {
	if req == nil || req.Path == "" {
		return nil, invalidArg("path is required")
	}
	var result ImportResult
	if err := dc.client.post(ctx, "/api/v1/datasets/import", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Publish uploads an exported dataset version to the configured object
// store.
// POST /api/v1/datasets/publish
func (dc *DatasetsClient) Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error) {
	if req == nil || req.Version == "" {
		return nil, invalidArg("version is required")
	}
	var result PublishResult
	if err := dc.client.post(ctx, "/api/v1/datasets/publish", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

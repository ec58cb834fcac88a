package minio

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"golang.org/x/sync/errgroup"

	"github.com/spanmark/spanmark/internal/infrastructure/monitoring/logging"
	"github.com/spanmark/spanmark/pkg/errors"
)

var (
	ErrVersionNotFound  = errors.New(errors.ErrCodeNotFound, "dataset version not found")
	ErrArtifactNotFound = errors.New(errors.ErrCodeNotFound, "dataset artifact not found")
)

// objectPrefix namespaces every dataset object in the bucket.
const objectPrefix = "datasets/"

// publishConcurrency bounds parallel uploads and downloads per call.
const publishConcurrency = 4

// Artifact is one stored file of a dataset version.
type Artifact struct {
	Name         string    `json:"name"`
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ETag         string    `json:"etag"`
	LastModified time.Time `json:"last_modified"`
}

// PublishResult summarizes one published version.
type PublishResult struct {
	Version  string `json:"version"`
	Files    int    `json:"files"`
	Bytes    int64  `json:"bytes"`
	Location string `json:"location"`
}

// DatasetStore uploads and retrieves dataset versions. Objects live under
// datasets/<version>/<file>; the version string doubles as the directory
// name, so it must not contain path separators.
type DatasetStore struct {
	api    API
	bucket string
	expiry time.Duration
	logger logging.Logger
}

// NewDatasetStore builds a store over the connected client.
func NewDatasetStore(client *Client, log logging.Logger) *DatasetStore {
	return &DatasetStore{
		api:    client.api,
		bucket: client.bucket,
		expiry: client.expiry,
		logger: log,
	}
}

// newDatasetStore wires a store directly over an API, for tests.
func newDatasetStore(api API, bucket string, log logging.Logger) *DatasetStore {
	return &DatasetStore{api: api, bucket: bucket, expiry: time.Hour, logger: log}
}

func validateVersion(version string) error {
	if version == "" {
		return errors.New(errors.ErrCodeValidation, "dataset version is required")
	}
	if strings.ContainsAny(version, "/\\") {
		return errors.Newf(errors.ErrCodeValidation, "dataset version %q must not contain path separators", version)
	}
	return nil
}

func versionPrefix(version string) string {
	return objectPrefix + version + "/"
}

func contentTypeFor(name string) string {
	if strings.HasSuffix(name, ".json") {
		return "application/json"
	}
	return "application/octet-stream"
}

// Publish uploads every regular file in dir under the version's prefix.
// Uploads run concurrently; the first failure cancels the rest and the call
// reports an error, leaving a partial prefix the next Publish overwrites.
func (s *DatasetStore) Publish(ctx context.Context, version, dir string) (*PublishResult, error) {
	if err := validateVersion(version); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read export directory")
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return nil, errors.Newf(errors.ErrCodeValidation, "export directory %s holds no files", dir)
	}

	sizes := make([]int64, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(publishConcurrency)
	for i, name := range files {
		i, name := i, name
		g.Go(func() error {
			key := versionPrefix(version) + name
			info, err := s.api.FPutObject(gctx, s.bucket, key, filepath.Join(dir, name), minio.PutObjectOptions{
				ContentType:  contentTypeFor(name),
				UserMetadata: map[string]string{"dataset-version": version},
			})
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to upload "+name)
			}
			sizes[i] = info.Size
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var total int64
	for _, n := range sizes {
		total += n
	}
	res := &PublishResult{
		Version:  version,
		Files:    len(files),
		Bytes:    total,
		Location: s.bucket + "/" + versionPrefix(version),
	}
	s.logger.Info("Published dataset version",
		logging.String("version", version),
		logging.Int("files", res.Files),
		logging.Int64("bytes", res.Bytes))
	return res, nil
}

// Fetch downloads every artifact of a version into destDir, creating it if
// needed. It returns the number of files written.
func (s *DatasetStore) Fetch(ctx context.Context, version, destDir string) (int, error) {
	artifacts, err := s.Artifacts(ctx, version)
	if err != nil {
		return 0, err
	}
	if len(artifacts) == 0 {
		return 0, ErrVersionNotFound
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to create destination directory")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(publishConcurrency)
	for _, a := range artifacts {
		a := a
		g.Go(func() error {
			dest := filepath.Join(destDir, a.Name)
			if err := s.api.FGetObject(gctx, s.bucket, a.Key, dest, minio.GetObjectOptions{}); err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to download "+a.Name)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	s.logger.Info("Fetched dataset version",
		logging.String("version", version),
		logging.Int("files", len(artifacts)))
	return len(artifacts), nil
}

// Artifacts lists the stored files of a version in name order.
func (s *DatasetStore) Artifacts(ctx context.Context, version string) ([]Artifact, error) {
	if err := validateVersion(version); err != nil {
		return nil, err
	}

	prefix := versionPrefix(version)
	var artifacts []Artifact
	for obj := range s.api.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, errors.Wrap(obj.Err, errors.ErrCodeInternal, "failed to list dataset artifacts")
		}
		artifacts = append(artifacts, Artifact{
			Name:         strings.TrimPrefix(obj.Key, prefix),
			Key:          obj.Key,
			Size:         obj.Size,
			ETag:         obj.ETag,
			LastModified: obj.LastModified,
		})
	}
	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Name < artifacts[j].Name })
	return artifacts, nil
}

// Exists reports whether at least one artifact is stored for the version.
func (s *DatasetStore) Exists(ctx context.Context, version string) (bool, error) {
	if err := validateVersion(version); err != nil {
		return false, err
	}
	for obj := range s.api.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: versionPrefix(version), MaxKeys: 1}) {
		if obj.Err != nil {
			return false, errors.Wrap(obj.Err, errors.ErrCodeInternal, "failed to list dataset artifacts")
		}
		return true, nil
	}
	return false, nil
}

// ListVersions returns every published version name, sorted.
func (s *DatasetStore) ListVersions(ctx context.Context) ([]string, error) {
	var versions []string
	// Non-recursive listing surfaces each version directory once.
	for obj := range s.api.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: objectPrefix, Recursive: false}) {
		if obj.Err != nil {
			return nil, errors.Wrap(obj.Err, errors.ErrCodeInternal, "failed to list dataset versions")
		}
		name := strings.TrimPrefix(obj.Key, objectPrefix)
		if trimmed := strings.TrimSuffix(name, "/"); trimmed != name && trimmed != "" {
			versions = append(versions, trimmed)
		}
	}
	sort.Strings(versions)
	return versions, nil
}

// Delete removes every artifact of a version and returns how many went away.
func (s *DatasetStore) Delete(ctx context.Context, version string) (int, error) {
	artifacts, err := s.Artifacts(ctx, version)
	if err != nil {
		return 0, err
	}
	if len(artifacts) == 0 {
		return 0, ErrVersionNotFound
	}

	objectsCh := make(chan minio.ObjectInfo)
	go func() {
		defer close(objectsCh)
		for _, a := range artifacts {
			select {
			case objectsCh <- minio.ObjectInfo{Key: a.Key}:
			case <-ctx.Done():
				return
			}
		}
	}()

	for rmErr := range s.api.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if rmErr.Err != nil {
			return 0, errors.Wrap(rmErr.Err, errors.ErrCodeInternal, "failed to delete "+rmErr.ObjectName)
		}
	}

	s.logger.Info("Deleted dataset version",
		logging.String("version", version),
		logging.Int("files", len(artifacts)))
	return len(artifacts), nil
}

// PresignArtifact returns a time-limited download URL for one artifact.
// A zero expiry falls back to the configured default.
func (s *DatasetStore) PresignArtifact(ctx context.Context, version, name string, expiry time.Duration) (string, error) {
	if err := validateVersion(version); err != nil {
		return "", err
	}
	if expiry <= 0 {
		expiry = s.expiry
	}

	key := versionPrefix(version) + name
	if _, err := s.api.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return "", ErrArtifactNotFound
		}
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to stat dataset artifact")
	}

	u, err := s.api.PresignedGetObject(ctx, s.bucket, key, expiry, nil)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to presign dataset artifact")
	}
	return u.String(), nil
}

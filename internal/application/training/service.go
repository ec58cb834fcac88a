// Package training provides the application-level service for model jobs.
// A job wraps one run of the external training or prediction process: the
// service persists the job record, supervises the process on a background
// goroutine, imports prediction output back into the corpus, and announces
// terminal states. Handlers and the CLI only ever see job records; the
// process itself stays an opaque, cancellable unit.
package training

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/spanmark/spanmark/internal/application/dataset"
	"github.com/spanmark/spanmark/internal/config"
	domainTraining "github.com/spanmark/spanmark/internal/domain/training"
	"github.com/spanmark/spanmark/internal/infrastructure/messaging/kafka"
	"github.com/spanmark/spanmark/internal/infrastructure/monitoring/logging"
	"github.com/spanmark/spanmark/internal/infrastructure/process"
	"github.com/spanmark/spanmark/pkg/errors"
	"github.com/spanmark/spanmark/pkg/types/common"
)

const (
	defaultInterpreter     = "python3"
	defaultPredictionsFile = "predictions.json"
	defaultWaitPoll        = 500 * time.Millisecond

	defaultPageSize = 20
	maxPageSize     = 100
)

// Service defines the interface for job operations. Submit returns as soon
// as the job record is persisted; the process runs in the background. Wait
// blocks until the job reaches a terminal state or ctx is done.
type Service interface {
	Submit(ctx context.Context, input *SubmitInput) (*JobDTO, error)
	Get(ctx context.Context, id string) (*JobDTO, error)
	List(ctx context.Context, input *ListInput) (*JobListDTO, error)
	Cancel(ctx context.Context, id string) (*JobDTO, error)
	Wait(ctx context.Context, id string, poll time.Duration) (*JobDTO, error)

	// Close cancels every job this process is still supervising and blocks
	// until their supervisors have finished writing terminal states.
	Close() error
}

// ProcessRunner executes one external command and reports its outcome.
// *process.Runner satisfies it.
type ProcessRunner interface {
	Run(ctx context.Context, spec process.Spec) (*process.Outcome, error)
}

// DatasetFetcher pulls a published dataset version into a local directory.
// *minio.DatasetStore satisfies it; nil means jobs train on local files only.
type DatasetFetcher interface {
	Fetch(ctx context.Context, version, destDir string) (int, error)
}

// PredictionImporter brings a predictions file back into the corpus.
// dataset.Service satisfies it.
type PredictionImporter interface {
	Import(ctx context.Context, input *dataset.ImportInput) (*dataset.ImportDTO, error)
}

// SubmitInput contains input for submitting a job.
type SubmitInput struct {
	// Kind is "train" or "predict".
	Kind string `json:"kind"`
	// DatasetVersion names a published dataset to fetch into the job's work
	// directory before the process starts. Empty runs against local files.
	DatasetVersion string `json:"dataset_version,omitempty"`
	// ConfigPath overrides the configured model config file.
	ConfigPath string `json:"config_path,omitempty"`
}

// ListInput contains filter and pagination input for listing jobs.
type ListInput struct {
	States   []string `json:"states,omitempty"`
	Page     int      `json:"page"`
	PageSize int      `json:"page_size"`
}

// JobDTO is the wire representation of a job.
type JobDTO struct {
	ID             string     `json:"id"`
	Kind           string     `json:"kind"`
	State          string     `json:"state"`
	DatasetVersion string     `json:"dataset_version,omitempty"`
	ConfigPath     string     `json:"config_path,omitempty"`
	WorkDir        string     `json:"work_dir,omitempty"`
	Error          string     `json:"error,omitempty"`
	ExitCode       *int       `json:"exit_code,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	DurationMs     int64      `json:"duration_ms"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// JobListDTO is one page of jobs.
type JobListDTO struct {
	Jobs     []*JobDTO `json:"jobs"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
	Total    int64     `json:"total"`
}

// Dependencies bundles what the service needs. Runner is required; Fetcher
// and Importer are optional and gate dataset fetching and prediction import.
type Dependencies struct {
	Jobs     domainTraining.Repository
	Runner   ProcessRunner
	Fetcher  DatasetFetcher
	Importer PredictionImporter

	Publisher kafka.EventPublisher
	Training  config.TrainingConfig
}

type serviceImpl struct {
	deps   Dependencies
	logger logging.Logger

	mu      sync.Mutex
	cancels map[common.ID]context.CancelFunc
	wg      sync.WaitGroup
	closed  bool
}

// NewService creates a job service.
func NewService(deps Dependencies, logger logging.Logger) Service {
	if deps.Publisher == nil {
		deps.Publisher = kafka.NewNopPublisher()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &serviceImpl{
		deps:    deps,
		logger:  logger.Named("training-service"),
		cancels: make(map[common.ID]context.CancelFunc),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Submit
// ─────────────────────────────────────────────────────────────────────────────

func (s *serviceImpl) Submit(ctx context.Context, input *SubmitInput) (*JobDTO, error) {
	if input == nil {
		return nil, errors.InvalidParam("submit input is required")
	}
	kind := domainTraining.JobKind(input.Kind)
	if !kind.Valid() {
		return nil, errors.Newf(errors.CodeInvalidParam, "unknown job kind %q", input.Kind)
	}
	if s.deps.Runner == nil || s.deps.Training.Script == "" {
		return nil, errors.New(errors.ErrCodeServiceUnavailable, "no training script is configured")
	}
	if input.DatasetVersion != "" && s.deps.Fetcher == nil {
		return nil, errors.New(errors.ErrCodeServiceUnavailable,
			"dataset storage is not configured; submit without a dataset version")
	}

	configPath := input.ConfigPath
	if configPath == "" {
		configPath = s.deps.Training.ConfigPath
	}

	job, err := domainTraining.NewJob(kind, input.DatasetVersion, configPath)
	if err != nil {
		return nil, err
	}
	job.WorkDir = filepath.Join(s.workRoot(), string(job.ID))

	if err := s.deps.Jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	// Snapshot the DTO before the supervisor starts mutating the job.
	dto := jobToDTO(job)

	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return nil, errors.New(errors.ErrCodeServiceUnavailable, "job service is shutting down")
	}
	s.cancels[job.ID] = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("Job submitted",
		logging.String("job_id", dto.ID),
		logging.String("kind", dto.Kind),
		logging.String("dataset_version", dto.DatasetVersion))
	go s.supervise(runCtx, cancel, job)
	return dto, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Read operations
// ─────────────────────────────────────────────────────────────────────────────

func (s *serviceImpl) Get(ctx context.Context, id string) (*JobDTO, error) {
	if id == "" {
		return nil, errors.InvalidParam("job ID is required")
	}
	job, err := s.deps.Jobs.GetByID(ctx, common.ID(id))
	if err != nil {
		return nil, err
	}
	return jobToDTO(job), nil
}

func (s *serviceImpl) List(ctx context.Context, input *ListInput) (*JobListDTO, error) {
	if input == nil {
		input = &ListInput{}
	}
	states := make([]domainTraining.JobState, 0, len(input.States))
	for _, raw := range input.States {
		state := domainTraining.JobState(raw)
		if !state.Valid() {
			return nil, errors.Newf(errors.CodeInvalidParam, "unknown job state %q", raw)
		}
		states = append(states, state)
	}

	page, pageSize := input.Page, input.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	jobs, total, err := s.deps.Jobs.List(ctx, states, common.Pagination{Page: page, PageSize: pageSize})
	if err != nil {
		return nil, err
	}

	out := &JobListDTO{
		Jobs:     make([]*JobDTO, 0, len(jobs)),
		Page:     page,
		PageSize: pageSize,
		Total:    total,
	}
	for _, job := range jobs {
		out.Jobs = append(out.Jobs, jobToDTO(job))
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Cancel and Wait
// ─────────────────────────────────────────────────────────────────────────────

func (s *serviceImpl) Cancel(ctx context.Context, id string) (*JobDTO, error) {
	if id == "" {
		return nil, errors.InvalidParam("job ID is required")
	}
	jobID := common.ID(id)
	job, err := s.deps.Jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.State.Terminal() {
		return nil, errors.Newf(errors.ErrCodeJobInvalidState,
			"job %s already finished as %s", job.ID, job.State)
	}

	s.mu.Lock()
	cancel, supervised := s.cancels[jobID]
	s.mu.Unlock()

	if supervised {
		// The supervisor owns the terminal transition; killing its context
		// is all a cancel needs to do.
		cancel()
		s.logger.Info("Job cancel requested", logging.String("job_id", id))
		return jobToDTO(job), nil
	}

	// Not supervised by this process: a leftover from a previous run.
	// Transition it directly.
	if err := job.Cancel(); err != nil {
		return nil, err
	}
	if err := s.deps.Jobs.Update(ctx, job); err != nil {
		return nil, err
	}
	s.publishFinished(ctx, job)
	s.logger.Info("Orphaned job canceled", logging.String("job_id", id))
	return jobToDTO(job), nil
}

func (s *serviceImpl) Wait(ctx context.Context, id string, poll time.Duration) (*JobDTO, error) {
	if id == "" {
		return nil, errors.InvalidParam("job ID is required")
	}
	if poll <= 0 {
		poll = defaultWaitPoll
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		job, err := s.deps.Jobs.GetByID(ctx, common.ID(id))
		if err != nil {
			return nil, err
		}
		if job.State.Terminal() {
			return jobToDTO(job), nil
		}
		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), errors.ErrCodeTimeout,
				"gave up waiting for job %s (last state %s)", id, job.State)
		case <-ticker.C:
		}
	}
}

func (s *serviceImpl) Close() error {
	s.mu.Lock()
	s.closed = true
	for _, cancel := range s.cancels {
		cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func (s *serviceImpl) workRoot() string {
	if s.deps.Training.WorkDir != "" {
		return s.deps.Training.WorkDir
	}
	return filepath.Join("var", "jobs")
}

func (s *serviceImpl) predictionsFile() string {
	if s.deps.Training.PredictionsFile != "" {
		return s.deps.Training.PredictionsFile
	}
	return defaultPredictionsFile
}

func (s *serviceImpl) publishFinished(ctx context.Context, job *domainTraining.Job) {
	payload := kafka.JobFinishedPayload{
		JobID: string(job.ID),
		Kind:  string(job.Kind),
		State: string(job.State),
		Error: job.Error,
	}
	if job.StartedAt != nil {
		payload.StartedAt = *job.StartedAt
	}
	if job.FinishedAt != nil {
		payload.FinishedAt = *job.FinishedAt
	}
	if err := s.deps.Publisher.PublishEvent(ctx, kafka.EventJobFinished, string(job.ID), payload); err != nil {
		s.logger.Error("Failed to publish job.finished",
			logging.String("job_id", string(job.ID)), logging.Err(err))
	}
}

func jobToDTO(job *domainTraining.Job) *JobDTO {
	return &JobDTO{
		ID:             string(job.ID),
		Kind:           string(job.Kind),
		State:          string(job.State),
		DatasetVersion: job.DatasetVersion,
		ConfigPath:     job.ConfigPath,
		WorkDir:        job.WorkDir,
		Error:          job.Error,
		ExitCode:       job.ExitCode,
		StartedAt:      job.StartedAt,
		FinishedAt:     job.FinishedAt,
		DurationMs:     job.Duration().Milliseconds(),
		CreatedAt:      job.CreatedAt,
		UpdatedAt:      job.UpdatedAt,
	}
}

func processName(job *domainTraining.Job) string {
	return fmt.Sprintf("%s:%s", job.Kind, shortID(job.ID))
}

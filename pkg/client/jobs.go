package client

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// Job states mirrored from the server.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
	JobCanceled  = "canceled"
)

// Job kinds accepted by Submit.
const (
	JobKindTrain   = "train"
	JobKindPredict = "predict"
)

// ---------------------------------------------------------------------------
// DTOs
// ---------------------------------------------------------------------------

// Job is a training or prediction run.
type Job struct {
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

// Terminal reports whether the job has finished, successfully or not.
func (j *Job) Terminal() bool {
	switch j.State {
	case JobSucceeded, JobFailed, JobCanceled:
		return true
	}
	return false
}

// SubmitJobRequest describes a job submission. Kind is "train" or "predict".
type SubmitJobRequest struct {
	Kind           string `json:"kind"`
	DatasetVersion string `json:"dataset_version,omitempty"`
	ConfigPath     string `json:"config_path,omitempty"`
}

// ListJobsRequest filters and pages the job collection.
type ListJobsRequest struct {
	States   []string
	Page     int
	PageSize int
}

// ---------------------------------------------------------------------------
// Sub-client
// ---------------------------------------------------------------------------

// JobsClient operates on training and prediction jobs.
type JobsClient struct {
	client *Client
}

// Submit enqueues a job. The reply is the pending job record; the run is
// asynchronous.
// POST /api/v1/jobs
func (jc *JobsClient) Submit(ctx context.Context, req *SubmitJobRequest) (*Job, error) {
	if req == nil || req.Kind == "" {
		return nil, invalidArg("job kind is required")
	}
	var job Job
	if err := jc.client.post(ctx, "/api/v1/jobs", req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Get retrieves a job by ID.
// GET /api/v1/jobs/{jobID}
func (jc *JobsClient) Get(ctx context.Context, jobID string) (*Job, error) {
	if jobID == "" {
		return nil, invalidArg("jobID is required")
	}
	var job Job
	if _, err := jc.client.get(ctx, "/api/v1/jobs/"+url.PathEscape(jobID), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// List returns one page of jobs, optionally filtered by state.
// GET /api/v1/jobs
func (jc *JobsClient) List(ctx context.Context, req *ListJobsRequest) ([]*Job, *Pagination, error) {
	q := url.Values{}
	if req != nil {
		for _, state := range req.States {
			q.Add("state", state)
		}
		if req.Page > 0 {
			q.Set("page", fmt.Sprintf("%d", req.Page))
		}
		if req.PageSize > 0 {
			q.Set("page_size", fmt.Sprintf("%d", req.PageSize))
		}
	}
	path := "/api/v1/jobs"
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var jobs []*Job
	pg, err := jc.client.get(ctx, path, &jobs)
	if err != nil {
		return nil, nil, err
	}
	return jobs, pg, nil
}

// Cancel requests a job cancellation and returns the job as it stood when
// the cancellation was accepted.
// POST /api/v1/jobs/{jobID}/cancel
func (jc *JobsClient) Cancel(ctx context.Context, jobID string) (*Job, error) {
	if jobID == "" {
		return nil, invalidArg("jobID is required")
	}
	var job Job
	if err := jc.client.post(ctx, "/api/v1/jobs/"+url.PathEscape(jobID)+"/cancel", nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Wait polls the job until it reaches a terminal state or the context is
// cancelled. A poll interval of zero defaults to two seconds.
func (jc *JobsClient) Wait(ctx context.Context, jobID string, poll time.Duration) (*Job, error) {
	if poll <= 0 {
		poll = 2 * time.Second
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		job, err := jc.Get(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.Terminal() {
			return job, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return job, ctx.Err()
		}
	}
}

package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobs_Submit(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/jobs", r.URL.Path)

		body, _ := io.ReadAll(r.Body)
		var req SubmitJobRequest
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "train", req.Kind)
		assert.Equal(t, "v1", req.DatasetVersion)

		writeEnvelope(w, http.StatusAccepted, Job{ID: "job-1", Kind: "train", State: JobPending})
	})

	job, err := c.Jobs().Submit(context.Background(), &SubmitJobRequest{Kind: "train", DatasetVersion: "v1"})
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, JobPending, job.State)
	assert.False(t, job.Terminal())
}

func TestJobs_SubmitRequiresKind(t *testing.T) {
	c, err := NewClient("http://api.example.com")
	require.NoError(t, err)

	_, err = c.Jobs().Submit(context.Background(), &SubmitJobRequest{})
	assert.Error(t, err)
}

func TestJobs_Get(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/jobs/job-1", r.URL.Path)
		exit := 0
		writeEnvelope(w, http.StatusOK, Job{ID: "job-1", State: JobSucceeded, ExitCode: &exit, DurationMs: 1500})
	})

	job, err := c.Jobs().Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.True(t, job.Terminal())
	require.NotNil(t, job.ExitCode)
	assert.Equal(t, 0, *job.ExitCode)
}

func TestJobs_ListFilters(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, []string{"running", "pending"}, q["state"])
		assert.Equal(t, "2", q.Get("page"))
		assert.Equal(t, "5", q.Get("page_size"))

		writePagedEnvelope(w, http.StatusOK,
			[]*Job{{ID: "job-1", State: JobRunning}},
			&Pagination{Page: 2, PageSize: 5, Total: 11})
	})

	jobs, pg, err := c.Jobs().List(context.Background(), &ListJobsRequest{
		States: []string{"running", "pending"}, Page: 2, PageSize: 5,
	})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, int64(11), pg.Total)
}

func TestJobs_ListNilRequest(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.RawQuery)
		writePagedEnvelope(w, http.StatusOK, []*Job{}, &Pagination{Page: 1, PageSize: 20})
	})

	jobs, _, err := c.Jobs().List(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestJobs_Cancel(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/jobs/job-1/cancel", r.URL.Path)
		writeEnvelope(w, http.StatusOK, Job{ID: "job-1", State: JobCanceled})
	})

	job, err := c.Jobs().Cancel(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, JobCanceled, job.State)
}

func TestJobs_WaitUntilTerminal(t *testing.T) {
	var polls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		state := JobRunning
		if atomic.AddInt32(&polls, 1) >= 3 {
			state = JobSucceeded
		}
		writeEnvelope(w, http.StatusOK, Job{ID: "job-1", State: state})
	})

	job, err := c.Jobs().Wait(context.Background(), "job-1", time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, JobSucceeded, job.State)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&polls), int32(3))
}

func TestJobs_WaitStopsOnContextCancel(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, Job{ID: "job-1", State: JobRunning})
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Jobs().Wait(ctx, "job-1", time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestJobs_GetNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeErrorEnvelope(w, http.StatusNotFound, "JOB_001", "job not found")
	})

	_, err := c.Jobs().Get(context.Background(), "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "JOB_001", apiErr.Code)
}

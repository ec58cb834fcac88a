// Package training defines the training-job aggregate: one run of the
// external model process (training or prediction) tracked from submission to
// a terminal state. The state machine is the contract every executor and
// store must respect; process supervision itself lives in the infrastructure
// layer.
package training

import (
	"fmt"
	"time"

	"github.com/spanmark/spanmark/pkg/errors"
	"github.com/spanmark/spanmark/pkg/types/common"
)

// JobKind selects which entrypoint of the external model process a job runs.
type JobKind string

const (
	KindTrain   JobKind = "train"
	KindPredict JobKind = "predict"
)

// Valid reports whether k is a declared job kind.
func (k JobKind) Valid() bool {
	return k == KindTrain || k == KindPredict
}

// JobState is the lifecycle state of a job.
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateSucceeded JobState = "succeeded"
	StateFailed    JobState = "failed"
	StateCanceled  JobState = "canceled"
)

// Valid reports whether s is a declared job state.
func (s JobState) Valid() bool {
	switch s {
	case StatePending, StateRunning, StateSucceeded, StateFailed, StateCanceled:
		return true
	}
	return false
}

// Terminal reports whether a job in state s can never change state again.
func (s JobState) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCanceled:
		return true
	}
	return false
}

// transitions lists every permitted state change. Anything absent is a
// JOB_002 violation.
var transitions = map[JobState][]JobState{
	StatePending: {StateRunning, StateCanceled},
	StateRunning: {StateSucceeded, StateFailed, StateCanceled},
}

// CanTransition reports whether from → to is a permitted state change.
func CanTransition(from, to JobState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ─────────────────────────────────────────────────────────────────────────────
// Job aggregate
// ─────────────────────────────────────────────────────────────────────────────

// Job tracks a single external-process run. DatasetVersion names the exported
// dataset the run consumes; ConfigPath points at the model configuration file
// handed to the process.
type Job struct {
	common.BaseEntity

	Kind           JobKind  `json:"kind"`
	State          JobState `json:"state"`
	DatasetVersion string   `json:"dataset_version,omitempty"`
	ConfigPath     string   `json:"config_path,omitempty"`
	WorkDir        string   `json:"work_dir,omitempty"`

	// Error holds the failure reason for StateFailed jobs; empty otherwise.
	Error    string `json:"error,omitempty"`
	ExitCode *int   `json:"exit_code,omitempty"`

	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewJob creates a pending job of the given kind.
func NewJob(kind JobKind, datasetVersion, configPath string) (*Job, error) {
	if !kind.Valid() {
		return nil, errors.Newf(errors.CodeInvalidParam, "unknown job kind %q", kind)
	}

	now := time.Now().UTC()
	return &Job{
		BaseEntity: common.BaseEntity{
			ID:        common.NewID(),
			CreatedAt: now,
			UpdatedAt: now,
			Version:   1,
		},
		Kind:           kind,
		State:          StatePending,
		DatasetVersion: datasetVersion,
		ConfigPath:     configPath,
	}, nil
}

// transition moves the job to the target state, stamping UpdatedAt.
func (j *Job) transition(to JobState) error {
	if !CanTransition(j.State, to) {
		return errors.Newf(errors.ErrCodeJobInvalidState,
			"job %s cannot move from %s to %s", j.ID, j.State, to)
	}
	j.State = to
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// Start moves a pending job to running and records the start time.
func (j *Job) Start() error {
	if err := j.transition(StateRunning); err != nil {
		return err
	}
	now := time.Now().UTC()
	j.StartedAt = &now
	return nil
}

// Succeed finishes a running job successfully.
func (j *Job) Succeed() error {
	if err := j.transition(StateSucceeded); err != nil {
		return err
	}
	zero := 0
	j.ExitCode = &zero
	j.finish()
	return nil
}

// Fail finishes a running job with the given exit code and reason.
func (j *Job) Fail(exitCode int, reason string) error {
	if err := j.transition(StateFailed); err != nil {
		return err
	}
	j.ExitCode = &exitCode
	j.Error = reason
	j.finish()
	return nil
}

// Cancel stops a pending or running job.
func (j *Job) Cancel() error {
	if err := j.transition(StateCanceled); err != nil {
		return err
	}
	j.finish()
	return nil
}

func (j *Job) finish() {
	now := time.Now().UTC()
	j.FinishedAt = &now
}

// Duration returns the wall time between start and finish. It is zero until
// the job has started; for a running job it measures up to now.
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	end := time.Now().UTC()
	if j.FinishedAt != nil {
		end = *j.FinishedAt
	}
	return end.Sub(*j.StartedAt)
}

// String renders a compact single-line description for logs and CLI tables.
func (j *Job) String() string {
	return fmt.Sprintf("%s %s [%s]", j.Kind, j.ID, j.State)
}

package training

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spanmark/spanmark/internal/application/dataset"
	domainTraining "github.com/spanmark/spanmark/internal/domain/training"
	"github.com/spanmark/spanmark/internal/infrastructure/monitoring/logging"
	"github.com/spanmark/spanmark/internal/infrastructure/process"
	"github.com/spanmark/spanmark/internal/spert"
	"github.com/spanmark/spanmark/pkg/errors"
	"github.com/spanmark/spanmark/pkg/types/common"
)

// supervise owns one job from start to its terminal state. It is the only
// writer of running/terminal transitions for jobs submitted by this process;
// Cancel just kills ctx and lets the supervisor record the outcome.
func (s *serviceImpl) supervise(ctx context.Context, cancel context.CancelFunc, job *domainTraining.Job) {
	defer s.wg.Done()
	defer s.forget(job.ID)
	defer cancel()

	if s.deps.Training.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, s.deps.Training.Timeout)
		defer cancelTimeout()
	}

	// Canceled before anything ran.
	if ctx.Err() != nil {
		s.transition(job, job.Cancel)
		s.recordTerminal(job)
		s.publishFinished(context.Background(), job)
		return
	}

	if err := job.Start(); err != nil {
		s.logger.Error("Job could not start",
			logging.String("job_id", string(job.ID)), logging.Err(err))
		return
	}
	// The start transition must land even when ctx dies mid-write, otherwise
	// the record and the process disagree about what happened.
	if err := s.deps.Jobs.Update(context.WithoutCancel(ctx), job); err != nil {
		s.logger.Warn("Job start superseded",
			logging.String("job_id", string(job.ID)), logging.Err(err))
		return
	}

	outcome, runErr := s.execute(ctx, job)
	s.finish(ctx, job, outcome, runErr)
}

// execute prepares the work directory, fetches the dataset when one is named,
// and runs the external process.
func (s *serviceImpl) execute(ctx context.Context, job *domainTraining.Job) (*process.Outcome, error) {
	if err := os.MkdirAll(job.WorkDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, errors.ErrCodeJobStartFailed,
			"create work directory %s", job.WorkDir)
	}

	env := []string{"SPANMARK_JOB_ID=" + string(job.ID)}
	if job.DatasetVersion != "" {
		dataDir := filepath.Join(job.WorkDir, "dataset")
		files, err := s.deps.Fetcher.Fetch(ctx, job.DatasetVersion, dataDir)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrCodeJobStartFailed,
				"fetch dataset version %s", job.DatasetVersion)
		}
		s.logger.Info("Fetched dataset for job",
			logging.String("job_id", string(job.ID)),
			logging.String("version", job.DatasetVersion),
			logging.Int("files", files))
		env = append(env, "SPANMARK_DATASET_DIR="+dataDir)
	}

	interpreter := s.deps.Training.Interpreter
	if interpreter == "" {
		interpreter = defaultInterpreter
	}
	args := []string{s.deps.Training.Script, string(job.Kind)}
	if job.ConfigPath != "" {
		args = append(args, "--config", job.ConfigPath)
	}

	return s.deps.Runner.Run(ctx, process.Spec{
		Name:    processName(job),
		Command: interpreter,
		Args:    args,
		Dir:     job.WorkDir,
		Env:     env,
	})
}

// finish maps the process outcome onto a terminal job state, imports
// prediction output when the run produced any, and announces the result.
func (s *serviceImpl) finish(ctx context.Context, job *domainTraining.Job, outcome *process.Outcome, runErr error) {
	switch {
	case runErr == nil:
		if job.Kind == domainTraining.KindPredict {
			if err := s.importPredictions(job); err != nil {
				s.logger.Error("Prediction import failed",
					logging.String("job_id", string(job.ID)), logging.Err(err))
				s.transition(job, func() error {
					return job.Fail(outcomeExit(outcome), fmt.Sprintf("prediction import: %s", err))
				})
				break
			}
		}
		s.transition(job, job.Succeed)

	case ctx.Err() == context.Canceled || errors.IsCode(runErr, errors.ErrCodeJobCanceled):
		s.transition(job, job.Cancel)

	case errors.IsCode(runErr, errors.ErrCodeTimeout):
		s.transition(job, func() error {
			return job.Fail(outcomeExit(outcome),
				fmt.Sprintf("timed out after %s", s.deps.Training.Timeout))
		})

	default:
		if outcome != nil && len(outcome.Tail) > 0 {
			s.logger.Error("Job output tail",
				logging.String("job_id", string(job.ID)),
				logging.String("tail", strings.Join(outcome.Tail, "\n")))
		}
		s.transition(job, func() error {
			return job.Fail(outcomeExit(outcome), runErr.Error())
		})
	}

	s.recordTerminal(job)
	s.publishFinished(context.Background(), job)

	s.logger.Info("Job finished",
		logging.String("job_id", string(job.ID)),
		logging.String("kind", string(job.Kind)),
		logging.String("state", string(job.State)),
		logging.Duration("duration", job.Duration()))
}

// importPredictions feeds the predictions file back through the dataset
// importer so model candidates land in the corpus as prediction-class
// annotations.
func (s *serviceImpl) importPredictions(job *domainTraining.Job) error {
	if s.deps.Importer == nil {
		s.logger.Warn("No importer configured; predictions stay on disk",
			logging.String("job_id", string(job.ID)))
		return nil
	}
	path := filepath.Join(job.WorkDir, s.predictionsFile())
	result, err := s.deps.Importer.Import(context.Background(), &dataset.ImportInput{
		Path:       path,
		Class:      string(spert.ClassPrediction),
		NamePrefix: "predictions-" + shortID(job.ID),
	})
	if err != nil {
		return err
	}
	s.logger.Info("Predictions imported",
		logging.String("job_id", string(job.ID)),
		logging.Int("documents", result.Documents),
		logging.Int("entities", result.Entities),
		logging.Int("relations", result.Relations))
	return nil
}

// transition applies a state change and logs a rejection instead of
// propagating it; by the time finish runs the process is already gone.
func (s *serviceImpl) transition(job *domainTraining.Job, fn func() error) {
	if err := fn(); err != nil {
		s.logger.Error("Job transition rejected",
			logging.String("job_id", string(job.ID)),
			logging.String("state", string(job.State)),
			logging.Err(err))
	}
}

// recordTerminal persists the terminal state. A version conflict means
// another writer got there first, which is fine as long as the job really
// is finished.
func (s *serviceImpl) recordTerminal(job *domainTraining.Job) {
	if err := s.deps.Jobs.Update(context.Background(), job); err != nil {
		if errors.IsCode(err, errors.ErrCodeConflict) {
			s.logger.Warn("Job terminal state superseded",
				logging.String("job_id", string(job.ID)),
				logging.String("state", string(job.State)))
			return
		}
		s.logger.Error("Failed to record job state",
			logging.String("job_id", string(job.ID)), logging.Err(err))
	}
}

func (s *serviceImpl) forget(id common.ID) {
	s.mu.Lock()
	delete(s.cancels, id)
	s.mu.Unlock()
}

func outcomeExit(outcome *process.Outcome) int {
	if outcome == nil {
		return -1
	}
	return outcome.ExitCode
}

func shortID(id common.ID) string {
	s := string(id)
	if len(s) > 8 {
		s = s[:8]
	}
	return s
}

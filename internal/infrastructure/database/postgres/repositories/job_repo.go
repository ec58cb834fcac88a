package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spanmark/spanmark/internal/domain/training"
	"github.com/spanmark/spanmark/internal/infrastructure/monitoring/logging"
	appErrors "github.com/spanmark/spanmark/pkg/errors"
	"github.com/spanmark/spanmark/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// TrainingJobRepository
// ─────────────────────────────────────────────────────────────────────────────

// TrainingJobRepository is the PostgreSQL implementation of the training
// domain's Repository interface. Updates use optimistic locking on the version
// column so two supervisors can never both finish the same job.
type TrainingJobRepository struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewTrainingJobRepository constructs a ready-to-use TrainingJobRepository.
func NewTrainingJobRepository(pool *pgxpool.Pool, log logging.Logger) *TrainingJobRepository {
	return &TrainingJobRepository{pool: pool, logger: log}
}

// ─────────────────────────────────────────────────────────────────────────────
// Create
// ─────────────────────────────────────────────────────────────────────────────

// Create persists a newly submitted job.
func (r *TrainingJobRepository) Create(ctx context.Context, j *training.Job) error {
	r.logger.Debug("TrainingJobRepository.Create",
		logging.String("job_id", string(j.ID)),
		logging.String("kind", string(j.Kind)),
	)

	_, err := r.pool.Exec(ctx, `
		INSERT INTO training_jobs (
			id, kind, state, dataset_version, config_path, work_dir,
			error, exit_code, started_at, finished_at,
			created_at, updated_at, version
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		j.ID, string(j.Kind), string(j.State), j.DatasetVersion, j.ConfigPath, j.WorkDir,
		j.Error, j.ExitCode, j.StartedAt, j.FinishedAt,
		j.CreatedAt, j.UpdatedAt, j.Version,
	)
	if err != nil {
		r.logger.Error("TrainingJobRepository.Create", logging.Err(err))
		return appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to insert training job")
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// GetByID
// ─────────────────────────────────────────────────────────────────────────────

// GetByID loads a job by its primary key.
func (r *TrainingJobRepository) GetByID(ctx context.Context, id common.ID) (*training.Job, error) {
	r.logger.Debug("TrainingJobRepository.GetByID", logging.String("id", string(id)))

	j, err := r.scanJob(r.pool.QueryRow(ctx, `
		SELECT id, kind, state, dataset_version, config_path, work_dir,
		       error, exit_code, started_at, finished_at,
		       created_at, updated_at, version
		FROM training_jobs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, appErrors.New(appErrors.ErrCodeJobNotFound, "training job not found").
				WithDetail(fmt.Sprintf("id=%s", id))
		}
		return nil, err
	}
	return j, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Update — optimistic locking
// ─────────────────────────────────────────────────────────────────────────────

// Update persists a state transition using optimistic locking. Only the
// mutable lifecycle fields are written; kind, dataset version, and paths are
// fixed at submission. A stale version is rejected with ErrCodeConflict.
func (r *TrainingJobRepository) Update(ctx context.Context, j *training.Job) error {
	r.logger.Debug("TrainingJobRepository.Update",
		logging.String("job_id", string(j.ID)),
		logging.String("state", string(j.State)),
		logging.Int("version", j.Version),
	)

	newVersion := j.Version + 1
	now := time.Now().UTC()

	tag, err := r.pool.Exec(ctx, `
		UPDATE training_jobs SET
			state=$1, error=$2, exit_code=$3, started_at=$4, finished_at=$5,
			updated_at=$6, version=$7
		WHERE id=$8 AND version=$9`,
		string(j.State), j.Error, j.ExitCode, j.StartedAt, j.FinishedAt,
		now, newVersion,
		j.ID, j.Version,
	)
	if err != nil {
		r.logger.Error("TrainingJobRepository.Update", logging.Err(err))
		return appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to update training job")
	}
	if tag.RowsAffected() == 0 {
		return appErrors.New(appErrors.ErrCodeConflict, "optimistic lock conflict: job version mismatch").
			WithDetail(fmt.Sprintf("job_id=%s expected_version=%d", j.ID, j.Version))
	}

	j.Version = newVersion
	j.UpdatedAt = now
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// List
// ─────────────────────────────────────────────────────────────────────────────

// List returns jobs newest first, optionally filtered to the given states,
// along with the total matching count.
func (r *TrainingJobRepository) List(ctx context.Context, states []training.JobState, p common.Pagination) ([]*training.Job, int64, error) {
	p = normalizePagination(p)
	r.logger.Debug("TrainingJobRepository.List",
		logging.Int("states", len(states)),
		logging.Int("page", p.Page),
		logging.Int("page_size", p.PageSize),
	)

	var (
		args   []interface{}
		argIdx int
	)
	nextArg := func(v interface{}) string {
		argIdx++
		args = append(args, v)
		return fmt.Sprintf("$%d", argIdx)
	}

	whereClause := ""
	if len(states) > 0 {
		vals := make([]string, len(states))
		for i, s := range states {
			vals[i] = string(s)
		}
		whereClause = fmt.Sprintf(" WHERE state = ANY(%s)", nextArg(vals))
	}

	var total int64
	countSQL := "SELECT COUNT(*) FROM training_jobs" + whereClause
	if err := r.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		r.logger.Error("TrainingJobRepository.List: count", logging.Err(err))
		return nil, 0, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to count training jobs")
	}

	phLimit := nextArg(p.PageSize)
	phOffset := nextArg(p.Offset())

	dataSQL := fmt.Sprintf(`
		SELECT id, kind, state, dataset_version, config_path, work_dir,
		       error, exit_code, started_at, finished_at,
		       created_at, updated_at, version
		FROM training_jobs%s
		ORDER BY created_at DESC, id
		LIMIT %s OFFSET %s`, whereClause, phLimit, phOffset)

	rows, err := r.pool.Query(ctx, dataSQL, args...)
	if err != nil {
		r.logger.Error("TrainingJobRepository.List: query", logging.Err(err))
		return nil, 0, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to query training jobs")
	}
	defer rows.Close()

	jobs, err := r.scanJobs(rows)
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Row scanning
// ─────────────────────────────────────────────────────────────────────────────

// scanJob scans a single row into a Job. pgx.ErrNoRows passes through
// untranslated so callers can attach the lookup key to the not-found error.
func (r *TrainingJobRepository) scanJob(row pgx.Row) (*training.Job, error) {
	var (
		j     training.Job
		kind  string
		state string
	)

	err := row.Scan(
		&j.ID, &kind, &state, &j.DatasetVersion, &j.ConfigPath, &j.WorkDir,
		&j.Error, &j.ExitCode, &j.StartedAt, &j.FinishedAt,
		&j.CreatedAt, &j.UpdatedAt, &j.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		r.logger.Error("scanJob", logging.Err(err))
		return nil, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to scan training job row")
	}

	j.Kind = training.JobKind(kind)
	j.State = training.JobState(state)
	return &j, nil
}

// scanJobs scans multiple rows into a Job slice.
func (r *TrainingJobRepository) scanJobs(rows pgx.Rows) ([]*training.Job, error) {
	var jobs []*training.Job
	for rows.Next() {
		var (
			j     training.Job
			kind  string
			state string
		)

		err := rows.Scan(
			&j.ID, &kind, &state, &j.DatasetVersion, &j.ConfigPath, &j.WorkDir,
			&j.Error, &j.ExitCode, &j.StartedAt, &j.FinishedAt,
			&j.CreatedAt, &j.UpdatedAt, &j.Version,
		)
		if err != nil {
			r.logger.Error("scanJobs", logging.Err(err))
			return nil, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to scan training job row")
		}

		j.Kind = training.JobKind(kind)
		j.State = training.JobState(state)
		jobs = append(jobs, &j)
	}
	if err := rows.Err(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "row iteration error")
	}
	return jobs, nil
}

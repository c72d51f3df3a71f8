package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/docflow/constants"
	"github.com/joseph-ayodele/docflow/internal/common"
	"github.com/joseph-ayodele/docflow/internal/entity"
)

// Outcome carries the bookkeeping written when a job reaches a terminal state.
type Outcome struct {
	ProcessingTimeMS int64
	OutputData       json.RawMessage
	Metadata         map[string]any
}

type JobRepository interface {
	CreateJob(ctx context.Context, job *entity.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status constants.JobStatus, errorMessage *string) error
	// Claim takes a lease on a non-terminal job. claimed is false when the
	// job is terminal or another worker holds an unexpired lease.
	Claim(ctx context.Context, id uuid.UUID, ttl time.Duration) (job *entity.Job, claimed bool, err error)
	// Complete persists result and marks the job completed in one transaction.
	Complete(ctx context.Context, id uuid.UUID, result *entity.ExtractionResult, out Outcome) (*entity.Job, error)
	Fail(ctx context.Context, id uuid.UUID, message string, out Outcome) (*entity.Job, error)
	ListJobs(ctx context.Context, f entity.JobFilter) ([]*entity.Job, int, error)
	// ListStale returns non-terminal jobs without a live lease not touched since before.
	ListStale(ctx context.Context, before time.Time, limit int) ([]*entity.Job, error)
	DeleteJob(ctx context.Context, id uuid.UUID) error
}

type jobRepo struct {
	db      *DB
	results *resultRepo
	log     *slog.Logger
}

func NewJobRepository(db *DB, log *slog.Logger) JobRepository {
	if log == nil {
		log = slog.Default()
	}
	return &jobRepo{db: db, results: &resultRepo{db: db, log: log}, log: log}
}

var jobColumns = []string{
	"id", "client_id", "job_type", "status", "priority", "input_data", "output_data",
	"error_message", "processing_time_ms", "metadata", "lease_until", "attempts",
	"created_at", "updated_at", "completed_at",
}

// execQuerier is satisfied by *sql.DB and *sql.Tx.
type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

var terminalStatuses = []any{string(constants.JobStatusCompleted), string(constants.JobStatusFailed)}

func (r *jobRepo) CreateJob(ctx context.Context, job *entity.Job) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = job.CreatedAt
	input, err := rawJSONArg(job.InputData)
	if err != nil {
		return err
	}
	meta, err := jsonArg(job.Metadata)
	if err != nil {
		return err
	}
	query, args := r.db.builder().Insert(TableJobs).
		Columns("id", "client_id", "job_type", "status", "priority", "input_data", "metadata", "attempts", "created_at", "updated_at").
		Values(job.ID, job.ClientID, string(job.JobType), string(job.Status), job.Priority, input, meta, 0, job.CreatedAt, job.UpdatedAt).
		Query()
	if _, err := r.db.SQL.ExecContext(ctx, query, args...); err != nil {
		r.log.Error("processing_job create failed", "job_id", job.ID, "err", err)
		return fmt.Errorf("%w: create job: %v", common.ErrDatabase, err)
	}
	r.log.Info("processing_job created", "job_id", job.ID, "job_type", job.JobType, "status", job.Status, "client_id", job.ClientID)
	return nil
}

func (r *jobRepo) GetJob(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	return r.getJob(ctx, r.db.SQL, id)
}

func (r *jobRepo) getJob(ctx context.Context, q execQuerier, id uuid.UUID) (*entity.Job, error) {
	b := r.db.builder()
	query, args := b.Select(jobColumns...).From(b.Table(TableJobs)).Where(entsql.EQ("id", id)).Query()
	job, err := scanJob(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NotFoundf("job %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get job: %v", common.ErrDatabase, err)
	}
	return job, nil
}

func (r *jobRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status constants.JobStatus, errorMessage *string) error {
	now := time.Now().UTC()
	u := r.db.builder().Update(TableJobs).
		Set("status", string(status)).
		Set("updated_at", now)
	if status.IsTerminal() {
		u.Set("completed_at", now).SetNull("lease_until")
	}
	if status == constants.JobStatusFailed && errorMessage != nil {
		u.Set("error_message", *errorMessage)
	} else {
		u.SetNull("error_message")
	}
	query, args := u.Where(entsql.And(entsql.EQ("id", id), entsql.NotIn("status", terminalStatuses...))).Query()
	n, err := r.exec(ctx, r.db.SQL, query, args)
	if err != nil {
		r.log.Error("processing_job status update failed", "job_id", id, "status", status, "err", err)
		return err
	}
	if n == 0 {
		return r.noRowsError(ctx, id)
	}
	r.log.Info("processing_job status updated", "job_id", id, "status", status)
	return nil
}

func (r *jobRepo) Claim(ctx context.Context, id uuid.UUID, ttl time.Duration) (*entity.Job, bool, error) {
	now := time.Now().UTC()
	query, args := r.db.builder().Update(TableJobs).
		Set("status", string(constants.JobStatusProcessing)).
		Set("lease_until", now.Add(ttl)).
		Set("updated_at", now).
		Add("attempts", 1).
		Where(entsql.And(
			entsql.EQ("id", id),
			entsql.In("status", string(constants.JobStatusPending), string(constants.JobStatusProcessing)),
			entsql.Or(entsql.IsNull("lease_until"), entsql.LT("lease_until", now)),
		)).
		Query()
	n, err := r.exec(ctx, r.db.SQL, query, args)
	if err != nil {
		r.log.Error("processing_job claim failed", "job_id", id, "err", err)
		return nil, false, err
	}
	job, err := r.GetJob(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if n == 0 {
		r.log.Debug("processing_job not claimable", "job_id", id, "status", job.Status)
		return job, false, nil
	}
	r.log.Info("processing_job claimed", "job_id", id, "attempts", job.Attempts, "lease_until", job.LeaseUntil)
	return job, true, nil
}

func (r *jobRepo) Complete(ctx context.Context, id uuid.UUID, result *entity.ExtractionResult, out Outcome) (*entity.Job, error) {
	tx, err := r.db.SQL.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", common.ErrDatabase, err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	n, err := r.finish(ctx, tx, id, constants.JobStatusCompleted, nil, out, now)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, r.noRowsError(ctx, id, tx)
	}
	result.JobID = id
	if err := r.results.upsert(ctx, tx, result, now); err != nil {
		return nil, err
	}
	job, err := r.getJob(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		r.log.Error("processing_job complete commit failed", "job_id", id, "err", err)
		return nil, fmt.Errorf("%w: commit: %v", common.ErrDatabase, err)
	}
	r.log.Info("processing_job completed", "job_id", id, "validation_status", result.ValidationStatus, "processing_time_ms", out.ProcessingTimeMS)
	return job, nil
}

func (r *jobRepo) Fail(ctx context.Context, id uuid.UUID, message string, out Outcome) (*entity.Job, error) {
	now := time.Now().UTC()
	n, err := r.finish(ctx, r.db.SQL, id, constants.JobStatusFailed, &message, out, now)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, r.noRowsError(ctx, id)
	}
	r.log.Warn("processing_job failed", "job_id", id, "error", message)
	return r.GetJob(ctx, id)
}

func (r *jobRepo) finish(ctx context.Context, q execQuerier, id uuid.UUID, status constants.JobStatus, message *string, out Outcome, now time.Time) (int64, error) {
	output, err := rawJSONArg(out.OutputData)
	if err != nil {
		return 0, err
	}
	u := r.db.builder().Update(TableJobs).
		Set("status", string(status)).
		Set("processing_time_ms", out.ProcessingTimeMS).
		Set("output_data", output).
		Set("updated_at", now).
		Set("completed_at", now).
		SetNull("lease_until")
	if message != nil {
		u.Set("error_message", *message)
	} else {
		u.SetNull("error_message")
	}
	if out.Metadata != nil {
		meta, err := jsonArg(out.Metadata)
		if err != nil {
			return 0, err
		}
		u.Set("metadata", meta)
	}
	query, args := u.Where(entsql.And(entsql.EQ("id", id), entsql.NotIn("status", terminalStatuses...))).Query()
	n, err := r.exec(ctx, q, query, args)
	if err != nil {
		r.log.Error("processing_job finish failed", "job_id", id, "status", status, "err", err)
	}
	return n, err
}

func (r *jobRepo) ListJobs(ctx context.Context, f entity.JobFilter) ([]*entity.Job, int, error) {
	var preds []*entsql.Predicate
	if f.ClientID != "" {
		preds = append(preds, entsql.EQ("client_id", f.ClientID))
	}
	if f.Status != "" {
		preds = append(preds, entsql.EQ("status", string(f.Status)))
	}
	if f.JobType != "" {
		preds = append(preds, entsql.EQ("job_type", string(f.JobType)))
	}
	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	b := r.db.builder()
	count := b.Select().From(b.Table(TableJobs)).Count()
	list := b.Select(jobColumns...).From(b.Table(TableJobs)).
		OrderBy(entsql.Desc("created_at")).
		Limit(limit).
		Offset(max(f.Offset, 0))
	if len(preds) > 0 {
		count.Where(entsql.And(preds...))
		list.Where(entsql.And(preds...))
	}

	var total int
	query, args := count.Query()
	if err := r.db.SQL.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%w: count jobs: %v", common.ErrDatabase, err)
	}
	query, args = list.Query()
	jobs, err := r.queryJobs(ctx, query, args)
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

func (r *jobRepo) ListStale(ctx context.Context, before time.Time, limit int) ([]*entity.Job, error) {
	now := time.Now().UTC()
	b := r.db.builder()
	query, args := b.Select(jobColumns...).From(b.Table(TableJobs)).
		Where(entsql.And(
			entsql.In("status", string(constants.JobStatusPending), string(constants.JobStatusProcessing)),
			entsql.Or(entsql.IsNull("lease_until"), entsql.LT("lease_until", now)),
			entsql.LT("updated_at", before.UTC()),
		)).
		OrderBy(entsql.Desc("priority"), "created_at").
		Limit(limit).
		Query()
	return r.queryJobs(ctx, query, args)
}

func (r *jobRepo) DeleteJob(ctx context.Context, id uuid.UUID) error {
	query, args := r.db.builder().Delete(TableJobs).Where(entsql.EQ("id", id)).Query()
	n, err := r.exec(ctx, r.db.SQL, query, args)
	if err != nil {
		r.log.Error("processing_job delete failed", "job_id", id, "err", err)
		return err
	}
	if n == 0 {
		return common.NotFoundf("job %s not found", id)
	}
	r.log.Info("processing_job deleted", "job_id", id)
	return nil
}

func (r *jobRepo) queryJobs(ctx context.Context, query string, args []any) ([]*entity.Job, error) {
	rows, err := r.db.SQL.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list jobs: %v", common.ErrDatabase, err)
	}
	defer rows.Close()
	var jobs []*entity.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan job: %v", common.ErrDatabase, err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list jobs: %v", common.ErrDatabase, err)
	}
	return jobs, nil
}

func (r *jobRepo) exec(ctx context.Context, q execQuerier, query string, args []any) (int64, error) {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: rows affected: %v", common.ErrDatabase, err)
	}
	return n, nil
}

// noRowsError explains why a guarded update touched nothing.
func (r *jobRepo) noRowsError(ctx context.Context, id uuid.UUID, q ...execQuerier) error {
	var eq execQuerier = r.db.SQL
	if len(q) > 0 {
		eq = q[0]
	}
	job, err := r.getJob(ctx, eq, id)
	if err != nil {
		return err
	}
	return common.NewAppError("JOB_TERMINAL", fmt.Sprintf("job %s is already %s", id, job.Status), common.ErrConflict)
}

func scanJob(s rowScanner) (*entity.Job, error) {
	var (
		job                     entity.Job
		jobType, status         string
		input, output, meta     []byte
		errMsg                  sql.NullString
		procMS                  sql.NullInt64
		leaseUntil, completedAt sql.NullTime
	)
	if err := s.Scan(&job.ID, &job.ClientID, &jobType, &status, &job.Priority, &input, &output,
		&errMsg, &procMS, &meta, &leaseUntil, &job.Attempts,
		&job.CreatedAt, &job.UpdatedAt, &completedAt); err != nil {
		return nil, err
	}
	job.JobType = constants.JobType(jobType)
	job.Status = constants.JobStatus(status)
	job.InputData = nullableRaw(input)
	job.OutputData = nullableRaw(output)
	if errMsg.Valid {
		job.ErrorMessage = &errMsg.String
	}
	if procMS.Valid {
		job.ProcessingTimeMS = &procMS.Int64
	}
	if leaseUntil.Valid {
		t := leaseUntil.Time.UTC()
		job.LeaseUntil = &t
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		job.CompletedAt = &t
	}
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	if err := decodeJSON(meta, &job.Metadata); err != nil {
		return nil, err
	}
	if job.Metadata == nil {
		job.Metadata = map[string]any{}
	}
	return &job, nil
}

// Package pipeline owns the job state machine. It creates jobs, claims
// them, runs the per-type stage and persists the outcome before mirroring
// it into the result cache.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docflow/constants"
	"github.com/joseph-ayodele/docflow/internal/common"
	"github.com/joseph-ayodele/docflow/internal/entity"
	"github.com/joseph-ayodele/docflow/internal/repository"
	"github.com/joseph-ayodele/docflow/internal/resultstore"
	"github.com/joseph-ayodele/docflow/internal/storage"
)

// ErrJobLeased is returned by Execute when another worker holds the job.
var ErrJobLeased = errors.New("job is leased by another worker")

// Scheduler runs a job in the background of this process.
type Scheduler interface {
	Enqueue(ctx context.Context, jobID uuid.UUID) error
}

// Publisher hands a pending job to the message broker.
type Publisher interface {
	Publish(ctx context.Context, job *entity.Job) error
}

type Config struct {
	LeaseTTL      time.Duration // default 10m
	RecoveryGrace time.Duration // default 2m
	RecoveryBatch int           // default 100
}

// Submission is one request to process a document.
type Submission struct {
	ClientID string
	JobType  constants.JobType
	Input    any // entity.InvoiceInput or entity.EmailInput
	Priority int
}

type Orchestrator struct {
	jobs      repository.JobRepository
	store     *resultstore.Store
	docs      storage.DocumentStore
	stages    map[constants.JobType]Stage
	scheduler Scheduler
	publisher Publisher
	cfg       Config
	log       *slog.Logger
}

func New(
	jobs repository.JobRepository,
	store *resultstore.Store,
	docs storage.DocumentStore,
	stages map[constants.JobType]Stage,
	cfg Config,
	log *slog.Logger,
) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 10 * time.Minute
	}
	if cfg.RecoveryGrace <= 0 {
		cfg.RecoveryGrace = 2 * time.Minute
	}
	if cfg.RecoveryBatch <= 0 {
		cfg.RecoveryBatch = 100
	}
	return &Orchestrator{jobs: jobs, store: store, docs: docs, stages: stages, cfg: cfg, log: log}
}

// SetScheduler wires the in-process runner used by Submit and recovery.
// It is separate from New because the runner executes through o.
func (o *Orchestrator) SetScheduler(s Scheduler) { o.scheduler = s }

// SetPublisher wires the broker used by Enqueue.
func (o *Orchestrator) SetPublisher(p Publisher) { o.publisher = p }

// Submit creates the job in processing and schedules it in-process. It
// returns before any extraction work starts. When the runner is full the
// job is left for the recovery sweep.
func (o *Orchestrator) Submit(ctx context.Context, sub Submission) (*entity.JobView, error) {
	if o.scheduler == nil {
		return nil, fmt.Errorf("%w: no background runner configured", common.ErrInternal)
	}
	job, err := o.create(ctx, sub, constants.JobStatusProcessing)
	if err != nil {
		return nil, err
	}
	view := entity.NewJobView(job, nil)
	o.store.Put(ctx, view)

	if err := o.scheduler.Enqueue(ctx, job.ID); err != nil {
		o.log.Warn("pipeline.submit.deferred", "job_id", job.ID, "error", err)
	}
	return view, nil
}

// Enqueue creates the job in pending and publishes it to the broker. A
// publish failure leaves the job pending for the recovery sweep.
func (o *Orchestrator) Enqueue(ctx context.Context, sub Submission) (*entity.JobView, error) {
	if o.publisher == nil {
		return nil, fmt.Errorf("%w: no message broker configured", common.ErrInternal)
	}
	job, err := o.create(ctx, sub, constants.JobStatusPending)
	if err != nil {
		return nil, err
	}
	view := entity.NewJobView(job, nil)
	o.store.Put(ctx, view)

	if err := o.publisher.Publish(ctx, job); err != nil {
		o.log.Warn("pipeline.enqueue.deferred", "job_id", job.ID, "error", err)
	}
	return view, nil
}

func (o *Orchestrator) create(ctx context.Context, sub Submission, status constants.JobStatus) (*entity.Job, error) {
	if _, ok := o.stages[sub.JobType]; !ok {
		return nil, common.InvalidInputf("unsupported job type %q", sub.JobType)
	}
	if err := ValidateInput(sub.JobType, sub.Input); err != nil {
		return nil, err
	}
	input, err := json.Marshal(sub.Input)
	if err != nil {
		return nil, common.InvalidInputf("encode input: %v", err)
	}

	job := entity.NewJob(sub.ClientID, sub.JobType, status, input)
	job.Priority = sub.Priority
	if id := common.RequestIDFromContext(ctx); id != "" {
		job.Metadata["request_id"] = id
	}
	if in, ok := sub.Input.(entity.InvoiceInput); ok {
		job.Metadata["source_filename"] = in.Document.Filename
	}
	if err := o.jobs.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	o.log.Info("pipeline.job.created", "job_id", job.ID, "job_type", job.JobType, "client_id", job.ClientID, "status", job.Status)
	return job, nil
}

// Execute runs the job to a terminal state. A job that is already terminal
// is left untouched and nil is returned. A job leased by another worker
// yields ErrJobLeased. A stage failure fails the job and returns nil; only
// a failure to record the outcome is returned.
func (o *Orchestrator) Execute(ctx context.Context, id uuid.UUID) error {
	job, claimed, err := o.jobs.Claim(ctx, id, o.cfg.LeaseTTL)
	if err != nil {
		return err
	}
	if !claimed {
		if job.Status.IsTerminal() {
			o.log.Info("pipeline.execute.skip", "job_id", id, "status", job.Status)
			return nil
		}
		return ErrJobLeased
	}

	log := o.log.With("job_id", id, "job_type", job.JobType, "attempt", job.Attempts)
	o.store.Put(ctx, entity.NewJobView(job, nil))
	start := time.Now()

	out, runErr := o.runStage(ctx, job)
	elapsed := time.Since(start).Milliseconds()
	if runErr == nil && ctx.Err() != nil {
		runErr = fmt.Errorf("execution aborted: %w", context.Cause(ctx))
	}

	// The outcome is recorded even when ctx has expired, otherwise the job
	// would stay processing under its lease.
	persist := context.WithoutCancel(ctx)

	if runErr == nil {
		done, err := o.complete(persist, job, out, elapsed)
		if err == nil {
			o.store.Put(persist, entity.NewJobView(done, out.Result))
			log.Info("pipeline.execute.ok", "duration_ms", elapsed, "validation_status", out.Result.ValidationStatus)
			return nil
		}
		if errors.Is(err, common.ErrConflict) {
			log.Warn("pipeline.execute.superseded", "error", err)
			o.refresh(persist, id)
			return nil
		}
		runErr = fmt.Errorf("persist result: %w", err)
	}

	var extra map[string]any
	if out != nil {
		extra = out.Metadata
	}
	failed, err := o.jobs.Fail(persist, id, runErr.Error(), repository.Outcome{
		ProcessingTimeMS: elapsed,
		Metadata:         mergeMeta(job.Metadata, extra),
	})
	if err != nil {
		if errors.Is(err, common.ErrConflict) {
			o.refresh(persist, id)
			return nil
		}
		log.Error("pipeline.execute.fail_write", "error", err, "cause", runErr)
		return fmt.Errorf("record failure: %w", err)
	}
	o.store.Put(persist, entity.NewJobView(failed, nil))
	log.Warn("pipeline.execute.failed", "duration_ms", elapsed, "error", runErr)
	return nil
}

func (o *Orchestrator) runStage(ctx context.Context, job *entity.Job) (out *Output, err error) {
	stage, ok := o.stages[job.JobType]
	if !ok {
		return nil, fmt.Errorf("no stage for job type %q", job.JobType)
	}
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("stage panic: %v", r)
		}
	}()
	return stage.Run(ctx, job)
}

func (o *Orchestrator) complete(ctx context.Context, job *entity.Job, out *Output, elapsed int64) (*entity.Job, error) {
	var payload any = out.Result.Email
	if out.Result.Invoice != nil {
		payload = out.Result.Invoice
	}
	output, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode output: %w", err)
	}
	return o.jobs.Complete(ctx, job.ID, out.Result, repository.Outcome{
		ProcessingTimeMS: elapsed,
		OutputData:       output,
		Metadata:         mergeMeta(job.Metadata, out.Metadata),
	})
}

func mergeMeta(base, extra map[string]any) map[string]any {
	m := make(map[string]any, len(base)+len(extra))
	maps.Copy(m, base)
	maps.Copy(m, extra)
	return m
}

func (o *Orchestrator) refresh(ctx context.Context, id uuid.UUID) {
	job, err := o.jobs.GetJob(ctx, id)
	if err != nil {
		o.log.Warn("pipeline.refresh.error", "job_id", id, "error", err)
		return
	}
	o.store.Refresh(ctx, job)
}

// GetStatus returns the job view cache-first. A job owned by another
// client is reported as not found.
func (o *Orchestrator) GetStatus(ctx context.Context, clientID string, id uuid.UUID) (*entity.JobView, error) {
	view, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if clientID != "" && view.ClientID != clientID {
		return nil, common.NotFoundf("job %s not found", id)
	}
	return view, nil
}

// List returns one page of the client's jobs, newest first, and the total
// number of matching jobs.
func (o *Orchestrator) List(ctx context.Context, f entity.JobFilter) ([]*entity.JobView, int, error) {
	jobs, total, err := o.jobs.ListJobs(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	views := make([]*entity.JobView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, entity.NewJobView(j, nil))
	}
	return views, total, nil
}

// Delete removes the job, its result, its cache entry and its stored
// document.
func (o *Orchestrator) Delete(ctx context.Context, clientID string, id uuid.UUID) error {
	job, err := o.jobs.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if clientID != "" && job.ClientID != clientID {
		return common.NotFoundf("job %s not found", id)
	}
	if err := o.jobs.DeleteJob(ctx, id); err != nil {
		return err
	}
	o.store.Invalidate(ctx, id)

	if job.JobType == constants.JobTypeInvoice && o.docs != nil {
		var in entity.InvoiceInput
		if err := json.Unmarshal(job.InputData, &in); err == nil && in.Document.Key != "" {
			if err := o.docs.Delete(ctx, in.Document.Key); err != nil {
				o.log.Warn("pipeline.delete.document", "job_id", id, "key", in.Document.Key, "error", err)
			}
		}
	}
	o.log.Info("pipeline.job.deleted", "job_id", id, "client_id", job.ClientID)
	return nil
}

// RecoverStale reschedules non-terminal jobs that nobody holds and that
// have not moved for the grace period. Pending jobs go back to the broker
// when one is configured.
func (o *Orchestrator) RecoverStale(ctx context.Context) (int, error) {
	stale, err := o.jobs.ListStale(ctx, time.Now().Add(-o.cfg.RecoveryGrace), o.cfg.RecoveryBatch)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, job := range stale {
		var err error
		switch {
		case job.Status == constants.JobStatusPending && o.publisher != nil:
			err = o.publisher.Publish(ctx, job)
		case o.scheduler != nil:
			err = o.scheduler.Enqueue(ctx, job.ID)
		default:
			err = o.Execute(ctx, job.ID)
		}
		if err != nil {
			o.log.Warn("pipeline.recover.error", "job_id", job.ID, "status", job.Status, "error", err)
			continue
		}
		n++
	}
	if n > 0 {
		o.log.Info("pipeline.recover.ok", "rescheduled", n, "stale", len(stale))
	}
	return n, nil
}

// RunRecovery calls RecoverStale every interval until ctx is done.
func (o *Orchestrator) RunRecovery(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := o.RecoverStale(ctx); err != nil {
				o.log.Error("pipeline.recover.failed", "error", err)
			}
		}
	}
}

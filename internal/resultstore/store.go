// Package resultstore serves job status views cache-first, rebuilding them
// from the repositories on a miss.
package resultstore

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docflow/constants"
	"github.com/joseph-ayodele/docflow/internal/cache"
	"github.com/joseph-ayodele/docflow/internal/common"
	"github.com/joseph-ayodele/docflow/internal/entity"
	"github.com/joseph-ayodele/docflow/internal/repository"
)

const DefaultTTL = time.Hour

type Store struct {
	cache   cache.Cache
	jobs    repository.JobRepository
	results repository.ResultRepository
	ttl     time.Duration
	log     *slog.Logger
}

// New builds a Store. A nil cache makes every lookup go to the repositories.
func New(c cache.Cache, jobs repository.JobRepository, results repository.ResultRepository, ttl time.Duration, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{cache: c, jobs: jobs, results: results, ttl: ttl, log: log}
}

// Get returns the view of id. A missing job yields an ErrNotFound AppError.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*entity.JobView, error) {
	if view, ok := s.fromCache(ctx, id); ok {
		return view, nil
	}

	view, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.Put(ctx, view)
	return view, nil
}

// Load rebuilds the view from the repositories without touching the cache.
func (s *Store) Load(ctx context.Context, id uuid.UUID) (*entity.JobView, error) {
	job, err := s.jobs.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.View(ctx, job)
}

// View builds the view of job, loading its result when completed.
func (s *Store) View(ctx context.Context, job *entity.Job) (*entity.JobView, error) {
	var result *entity.ExtractionResult
	if job.Status == constants.JobStatusCompleted {
		res, err := s.results.GetByJobID(ctx, job.JobType, job.ID)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return nil, err
		}
		result = res
	}
	return entity.NewJobView(job, result), nil
}

// Put writes view to the cache. Failures are logged and swallowed.
func (s *Store) Put(ctx context.Context, view *entity.JobView) {
	if s.cache == nil || view == nil {
		return
	}
	data, err := json.Marshal(view)
	if err != nil {
		s.log.Warn("cache.encode.error", "job_id", view.JobID, "error", err)
		return
	}
	if err := s.cache.Set(ctx, cache.JobKey(view.JobID), data, s.ttl); err != nil {
		s.log.Warn("cache.set.error", "job_id", view.JobID, "error", err)
	}
}

// Refresh reloads job from the repositories and writes the view through.
func (s *Store) Refresh(ctx context.Context, job *entity.Job) *entity.JobView {
	view, err := s.View(ctx, job)
	if err != nil {
		s.log.Warn("cache.refresh.error", "job_id", job.ID, "error", err)
		view = entity.NewJobView(job, nil)
	}
	s.Put(ctx, view)
	return view
}

func (s *Store) Invalidate(ctx context.Context, id uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cache.JobKey(id.String())); err != nil {
		s.log.Warn("cache.delete.error", "job_id", id, "error", err)
	}
}

func (s *Store) fromCache(ctx context.Context, id uuid.UUID) (*entity.JobView, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, ok, err := s.cache.Get(ctx, cache.JobKey(id.String()))
	if err != nil {
		s.log.Warn("cache.get.error", "job_id", id, "error", err)
		return nil, false
	}
	if !ok {
		s.log.Debug("cache.miss", "job_id", id)
		return nil, false
	}
	var view entity.JobView
	if err := json.Unmarshal(data, &view); err != nil {
		s.log.Warn("cache.decode.error", "job_id", id, "error", err)
		return nil, false
	}
	return &view, true
}

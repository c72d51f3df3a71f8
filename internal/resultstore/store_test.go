package resultstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/docflow/constants"
	"github.com/joseph-ayodele/docflow/internal/cache"
	"github.com/joseph-ayodele/docflow/internal/common"
	"github.com/joseph-ayodele/docflow/internal/entity"
	"github.com/joseph-ayodele/docflow/internal/repository"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fixture struct {
	store *Store
	jobs  repository.JobRepository
	mr    *miniredis.Miniredis
}

func newFixture(t *testing.T, withCache bool) fixture {
	t.Helper()
	ctx := context.Background()
	db, err := repository.OpenSQLite(ctx, repository.SQLiteMemoryDSN("rs-"+uuid.NewString()), discard)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close(discard) })
	if err := repository.Migrate(ctx, db, discard); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	jobs := repository.NewJobRepository(db, discard)
	results := repository.NewResultRepository(db, discard)

	f := fixture{jobs: jobs}
	var c cache.Cache
	if withCache {
		f.mr = miniredis.RunT(t)
		rc, err := cache.NewRedisCache(ctx, "redis://"+f.mr.Addr(), discard)
		if err != nil {
			t.Fatalf("redis: %v", err)
		}
		c = rc
	}
	f.store = New(c, jobs, results, time.Hour, discard)
	return f
}

func TestGetMissPopulatesCache(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	job := entity.NewJob("c", constants.JobTypeEmail, constants.JobStatusPending, nil)
	if err := f.jobs.CreateJob(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}
	view, err := f.store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if view.Status != constants.JobStatusPending || view.Message != "Job queued for processing" {
		t.Fatalf("view = %+v", view)
	}
	if !f.mr.Exists("job:" + job.ID.String()) {
		t.Fatal("expected cache entry after miss")
	}
	if ttl := f.mr.TTL("job:" + job.ID.String()); ttl != time.Hour {
		t.Fatalf("ttl = %v", ttl)
	}
}

func TestRepositoryIsSourceOfTruthAfterMiss(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	job := entity.NewJob("c", constants.JobTypeEmail, constants.JobStatusProcessing, nil)
	if err := f.jobs.CreateJob(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.store.Get(ctx, job.ID); err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := f.jobs.Fail(ctx, job.ID, "parse error", repository.Outcome{}); err != nil {
		t.Fatalf("fail: %v", err)
	}
	// cache entry evicted, next read falls back to the repository
	f.mr.FlushAll()

	view, err := f.store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if view.Status != constants.JobStatusFailed || view.Error == nil || *view.Error != "parse error" {
		t.Fatalf("view = %+v", view)
	}
}

func TestGetServesCachedView(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	id := uuid.New()
	f.store.Put(ctx, &entity.JobView{JobID: id.String(), Status: constants.JobStatusCompleted, Message: "Job completed successfully"})

	// not in the repository, so a hit can only come from the cache
	view, err := f.store.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if view.Status != constants.JobStatusCompleted {
		t.Fatalf("status = %s", view.Status)
	}
}

func TestGetNotFound(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.store.Get(context.Background(), uuid.New())
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCacheDownDegradesToRepository(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	job := entity.NewJob("c", constants.JobTypeInvoice, constants.JobStatusPending, nil)
	if err := f.jobs.CreateJob(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}
	f.mr.Close()

	view, err := f.store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get with cache down: %v", err)
	}
	if view.JobID != job.ID.String() {
		t.Fatalf("job id = %s", view.JobID)
	}
}

func TestWithoutCache(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	job := entity.NewJob("c", constants.JobTypeEmail, constants.JobStatusPending, nil)
	if err := f.jobs.CreateJob(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.store.Get(ctx, job.ID); err != nil {
		t.Fatalf("get: %v", err)
	}
	f.store.Invalidate(ctx, job.ID)
}

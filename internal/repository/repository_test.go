package repository

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docflow/constants"
	"github.com/joseph-ayodele/docflow/internal/common"
	"github.com/joseph-ayodele/docflow/internal/entity"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := OpenSQLite(ctx, SQLiteMemoryDSN("repo-"+uuid.NewString()), log)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close(log) })
	if err := Migrate(ctx, db, log); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newRepos(t *testing.T) (JobRepository, ResultRepository) {
	db := newTestDB(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewJobRepository(db, log), NewResultRepository(db, log)
}

func ptr[T any](v T) *T { return &v }

func invoiceResult() *entity.ExtractionResult {
	return &entity.ExtractionResult{
		JobType: constants.JobTypeInvoice,
		Invoice: &entity.InvoiceFields{
			InvoiceNumber: ptr("INV-2024-001"),
			InvoiceDate:   ptr("15-03-2024"),
			SellerName:    ptr("Acme BV"),
			SellerKVK:     ptr("12345678"),
			TotalAmount:   ptr(121.0),
			VATAmount:     ptr(21.0),
			VATRate:       ptr(21.0),
			Currency:      "EUR",
			LineItems:     []entity.LineItem{{Description: "Widget", UnitPrice: 50, Quantity: 2, Total: 100}},
		},
		ValidationStatus:   constants.ValidationWarning,
		ValidationMessages: []string{"Missing VAT amount"},
		ConfidenceScores:   map[string]float64{"native": 1, "text_extraction": 1},
		ExtractedText:      "Invoice Number: INV-2024-001",
	}
}

func TestCreateAndGetJob(t *testing.T) {
	jobs, _ := newRepos(t)
	ctx := context.Background()

	input := json.RawMessage(`{"subject":"hi","content":"body"}`)
	job := entity.NewJob("client-a", constants.JobTypeEmail, constants.JobStatusPending, input)
	if err := jobs.CreateJob(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := jobs.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != constants.JobStatusPending || got.JobType != constants.JobTypeEmail {
		t.Fatalf("unexpected job %+v", got)
	}
	if got.ClientID != "client-a" {
		t.Fatalf("client id = %q", got.ClientID)
	}
	var in entity.EmailInput
	if err := json.Unmarshal(got.InputData, &in); err != nil || in.Subject != "hi" {
		t.Fatalf("input data = %s (%v)", got.InputData, err)
	}

	_, err = jobs.GetJob(ctx, uuid.New())
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestClaimLease(t *testing.T) {
	jobs, _ := newRepos(t)
	ctx := context.Background()

	job := entity.NewJob("c", constants.JobTypeEmail, constants.JobStatusPending, nil)
	if err := jobs.CreateJob(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, claimed, err := jobs.Claim(ctx, job.ID, time.Minute)
	if err != nil || !claimed {
		t.Fatalf("first claim: claimed=%v err=%v", claimed, err)
	}
	if got.Status != constants.JobStatusProcessing || got.Attempts != 1 || got.LeaseUntil == nil {
		t.Fatalf("unexpected claimed job %+v", got)
	}

	// live lease blocks a second worker
	_, claimed, err = jobs.Claim(ctx, job.ID, time.Minute)
	if err != nil || claimed {
		t.Fatalf("second claim: claimed=%v err=%v", claimed, err)
	}
}

func TestClaimExpiredLease(t *testing.T) {
	jobs, _ := newRepos(t)
	ctx := context.Background()

	job := entity.NewJob("c", constants.JobTypeEmail, constants.JobStatusPending, nil)
	if err := jobs.CreateJob(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, claimed, err := jobs.Claim(ctx, job.ID, -time.Second); err != nil || !claimed {
		t.Fatalf("claim: claimed=%v err=%v", claimed, err)
	}
	got, claimed, err := jobs.Claim(ctx, job.ID, time.Minute)
	if err != nil || !claimed {
		t.Fatalf("reclaim: claimed=%v err=%v", claimed, err)
	}
	if got.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", got.Attempts)
	}
}

func TestCompletePersistsResult(t *testing.T) {
	jobs, results := newRepos(t)
	ctx := context.Background()

	job := entity.NewJob("c", constants.JobTypeInvoice, constants.JobStatusProcessing, nil)
	if err := jobs.CreateJob(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}
	done, err := jobs.Complete(ctx, job.ID, invoiceResult(), Outcome{ProcessingTimeMS: 42})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != constants.JobStatusCompleted || done.CompletedAt == nil {
		t.Fatalf("unexpected job %+v", done)
	}
	if done.ProcessingTimeMS == nil || *done.ProcessingTimeMS != 42 {
		t.Fatalf("processing time = %v", done.ProcessingTimeMS)
	}

	res, err := results.GetByJobID(ctx, constants.JobTypeInvoice, job.ID)
	if err != nil {
		t.Fatalf("get result: %v", err)
	}
	if res.Invoice.InvoiceNumber == nil || *res.Invoice.InvoiceNumber != "INV-2024-001" {
		t.Fatalf("invoice number = %v", res.Invoice.InvoiceNumber)
	}
	if res.Invoice.BuyerName != nil {
		t.Fatalf("buyer name should stay nil, got %q", *res.Invoice.BuyerName)
	}
	if len(res.Invoice.LineItems) != 1 || res.Invoice.LineItems[0].Total != 100 {
		t.Fatalf("line items = %+v", res.Invoice.LineItems)
	}
	if res.ValidationStatus != constants.ValidationWarning || len(res.ValidationMessages) != 1 {
		t.Fatalf("validation = %s %v", res.ValidationStatus, res.ValidationMessages)
	}
	if res.ConfidenceScores["native"] != 1 {
		t.Fatalf("confidence = %v", res.ConfidenceScores)
	}
}

func TestTerminalJobsAreFrozen(t *testing.T) {
	jobs, _ := newRepos(t)
	ctx := context.Background()

	job := entity.NewJob("c", constants.JobTypeEmail, constants.JobStatusProcessing, nil)
	if err := jobs.CreateJob(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}
	failed, err := jobs.Fail(ctx, job.ID, "boom", Outcome{ProcessingTimeMS: 5})
	if err != nil {
		t.Fatalf("fail: %v", err)
	}
	if failed.ErrorMessage == nil || *failed.ErrorMessage != "boom" {
		t.Fatalf("error message = %v", failed.ErrorMessage)
	}

	err = jobs.UpdateStatus(ctx, job.ID, constants.JobStatusProcessing, nil)
	if !errors.Is(err, common.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, claimed, err := jobs.Claim(ctx, job.ID, time.Minute); err != nil || claimed {
		t.Fatalf("claim on failed job: claimed=%v err=%v", claimed, err)
	}
	if _, err := jobs.Complete(ctx, job.ID, &entity.ExtractionResult{JobType: constants.JobTypeEmail}, Outcome{}); !errors.Is(err, common.ErrConflict) {
		t.Fatalf("expected conflict on complete, got %v", err)
	}
}

func TestListJobsFiltersAndPaginates(t *testing.T) {
	jobs, _ := newRepos(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		j := entity.NewJob("a", constants.JobTypeEmail, constants.JobStatusPending, nil)
		j.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := jobs.CreateJob(ctx, j); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	other := entity.NewJob("b", constants.JobTypeInvoice, constants.JobStatusPending, nil)
	if err := jobs.CreateJob(ctx, other); err != nil {
		t.Fatalf("create: %v", err)
	}

	list, total, err := jobs.ListJobs(ctx, entity.JobFilter{ClientID: "a", Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 5 || len(list) != 2 {
		t.Fatalf("total=%d len=%d", total, len(list))
	}
	if !list[0].CreatedAt.After(list[1].CreatedAt) {
		t.Fatal("expected newest first")
	}

	list, total, err = jobs.ListJobs(ctx, entity.JobFilter{JobType: constants.JobTypeInvoice})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || list[0].ID != other.ID {
		t.Fatalf("unexpected invoice list total=%d", total)
	}
}

func TestDeleteCascadesResult(t *testing.T) {
	jobs, results := newRepos(t)
	ctx := context.Background()

	job := entity.NewJob("c", constants.JobTypeInvoice, constants.JobStatusProcessing, nil)
	if err := jobs.CreateJob(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := jobs.Complete(ctx, job.ID, invoiceResult(), Outcome{}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := jobs.DeleteJob(ctx, job.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := results.GetByJobID(ctx, constants.JobTypeInvoice, job.ID); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected result gone, got %v", err)
	}
	if err := jobs.DeleteJob(ctx, job.ID); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestListStaleSkipsLeasedAndTerminal(t *testing.T) {
	jobs, _ := newRepos(t)
	ctx := context.Background()

	stale := entity.NewJob("c", constants.JobTypeEmail, constants.JobStatusPending, nil)
	leased := entity.NewJob("c", constants.JobTypeEmail, constants.JobStatusPending, nil)
	done := entity.NewJob("c", constants.JobTypeEmail, constants.JobStatusProcessing, nil)
	for _, j := range []*entity.Job{stale, leased, done} {
		if err := jobs.CreateJob(ctx, j); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if _, _, err := jobs.Claim(ctx, leased.ID, time.Hour); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := jobs.Fail(ctx, done.ID, "x", Outcome{}); err != nil {
		t.Fatalf("fail: %v", err)
	}

	list, err := jobs.ListStale(ctx, time.Now().Add(time.Second), 10)
	if err != nil {
		t.Fatalf("list stale: %v", err)
	}
	if len(list) != 1 || list[0].ID != stale.ID {
		t.Fatalf("stale = %d jobs", len(list))
	}
}

func TestUpdateResult(t *testing.T) {
	jobs, results := newRepos(t)
	ctx := context.Background()

	job := entity.NewJob("c", constants.JobTypeEmail, constants.JobStatusProcessing, nil)
	if err := jobs.CreateJob(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}
	res := &entity.ExtractionResult{
		JobID:            job.ID,
		JobType:          constants.JobTypeEmail,
		Email:            &entity.EmailFields{Subject: "Invoice", Intent: "billing_inquiry", EffortEstimate: 15},
		ValidationStatus: constants.ValidationValid,
	}
	if err := results.CreateResult(ctx, res); err != nil {
		t.Fatalf("create result: %v", err)
	}
	res.Email.Intent = "urgent_request"
	if err := results.UpdateResult(ctx, res); err != nil {
		t.Fatalf("update result: %v", err)
	}
	got, err := results.GetByJobID(ctx, constants.JobTypeEmail, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Email.Intent != "urgent_request" || got.Email.EffortEstimate != 15 {
		t.Fatalf("email = %+v", got.Email)
	}

	missing := &entity.ExtractionResult{JobID: uuid.New(), JobType: constants.JobTypeEmail}
	if err := results.UpdateResult(ctx, missing); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListInvoices(t *testing.T) {
	jobs, results := newRepos(t)
	ctx := context.Background()

	job := entity.NewJob("acme", constants.JobTypeInvoice, constants.JobStatusProcessing, nil)
	pending := entity.NewJob("acme", constants.JobTypeInvoice, constants.JobStatusPending, nil)
	for _, j := range []*entity.Job{job, pending} {
		if err := jobs.CreateJob(ctx, j); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if _, err := jobs.Complete(ctx, job.ID, invoiceResult(), Outcome{}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	recs, err := results.ListInvoices(ctx, "acme", 0)
	if err != nil {
		t.Fatalf("list invoices: %v", err)
	}
	if len(recs) != 1 || recs[0].Job.ID != job.ID || recs[0].Result.Invoice == nil {
		t.Fatalf("records = %+v", recs)
	}
	recs, err = results.ListInvoices(ctx, "nobody", 0)
	if err != nil || len(recs) != 0 {
		t.Fatalf("expected none, got %d (%v)", len(recs), err)
	}
}

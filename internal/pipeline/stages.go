package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/docflow/constants"
	"github.com/joseph-ayodele/docflow/internal/entity"
	"github.com/joseph-ayodele/docflow/internal/extract"
	"github.com/joseph-ayodele/docflow/internal/fields"
	"github.com/joseph-ayodele/docflow/internal/storage"
	"github.com/joseph-ayodele/docflow/internal/validate"
)

// Output is what a stage hands back to the orchestrator for persistence.
type Output struct {
	Result   *entity.ExtractionResult
	Metadata map[string]any
}

// Stage turns a claimed job into an extraction result. A returned error
// fails the job; weak or partial extraction is reported through the
// result's validation status instead.
type Stage interface {
	Run(ctx context.Context, job *entity.Job) (*Output, error)
}

// Extractor selects the best text for a local document.
type Extractor interface {
	Run(ctx context.Context, path string) extract.Outcome
}

type InvoiceStage struct {
	Docs      storage.DocumentStore
	Extractor Extractor
	Validator *validate.Validator
	Logger    *slog.Logger
}

func NewInvoiceStage(docs storage.DocumentStore, ex Extractor, v *validate.Validator, logger *slog.Logger) *InvoiceStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &InvoiceStage{Docs: docs, Extractor: ex, Validator: v, Logger: logger}
}

// Run materialises the stored document, extracts text, parses invoice
// fields and validates them.
func (s *InvoiceStage) Run(ctx context.Context, job *entity.Job) (*Output, error) {
	var in entity.InvoiceInput
	if err := json.Unmarshal(job.InputData, &in); err != nil {
		return nil, fmt.Errorf("decode invoice input: %w", err)
	}
	if in.Document.Key == "" {
		return nil, fmt.Errorf("invoice input has no document")
	}

	path, cleanup, err := storage.Materialize(ctx, s.Docs, in.Document.Key)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	defer cleanup()

	out := s.Extractor.Run(ctx, path)
	inv := fields.ParseInvoice(out.Best.Text)
	report := s.Validator.Invoice(inv)

	s.Logger.Debug("pipeline.invoice.extracted",
		"job_id", job.ID,
		"method", out.Best.Method,
		"pages", out.Best.Pages,
		"confidence", out.Best.Confidence,
		"validation_status", report.Status,
	)

	meta := map[string]any{
		"extraction_method": out.Best.Method,
		"page_count":        out.Best.Pages,
		"source_filename":   in.Document.Filename,
	}
	if errs := out.Errors(); len(errs) > 0 {
		meta["extraction_errors"] = errs
	}
	return &Output{
		Result: &entity.ExtractionResult{
			JobID:              job.ID,
			JobType:            constants.JobTypeInvoice,
			Invoice:            inv,
			ValidationStatus:   report.Status,
			ValidationMessages: report.Messages,
			ConfidenceScores:   out.Confidences(),
			ExtractedText:      out.Best.Text,
		},
		Metadata: meta,
	}, nil
}

type EmailStage struct {
	Analyzer  *fields.EmailAnalyzer
	Validator *validate.Validator
	Logger    *slog.Logger
}

func NewEmailStage(a *fields.EmailAnalyzer, v *validate.Validator, logger *slog.Logger) *EmailStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailStage{Analyzer: a, Validator: v, Logger: logger}
}

func (s *EmailStage) Run(ctx context.Context, job *entity.Job) (*Output, error) {
	var in entity.EmailInput
	if err := json.Unmarshal(job.InputData, &in); err != nil {
		return nil, fmt.Errorf("decode email input: %w", err)
	}

	em, conf, entErr := s.Analyzer.Analyze(ctx, in)
	report := s.Validator.Email(em)

	s.Logger.Debug("pipeline.email.analyzed",
		"job_id", job.ID,
		"intent", em.Intent,
		"urgency", em.UrgencyScore,
		"validation_status", report.Status,
	)

	meta := map[string]any{}
	if entErr != nil {
		meta["extraction_errors"] = map[string]string{"entity_extraction": entErr.Error()}
	}
	return &Output{
		Result: &entity.ExtractionResult{
			JobID:              job.ID,
			JobType:            constants.JobTypeEmail,
			Email:              em,
			ValidationStatus:   report.Status,
			ValidationMessages: report.Messages,
			ConfidenceScores:   conf,
		},
		Metadata: meta,
	}, nil
}

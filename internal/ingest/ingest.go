// Package ingest stores local invoice documents and submits a job for each.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docflow/constants"
	"github.com/joseph-ayodele/docflow/internal/common"
	"github.com/joseph-ayodele/docflow/internal/entity"
	"github.com/joseph-ayodele/docflow/internal/pipeline"
	"github.com/joseph-ayodele/docflow/internal/storage"
)

const sniffLen = 3072

// IngestionResult is the per-file ingest outcome.
type IngestionResult struct {
	SourcePath   string
	JobID        string
	Status       constants.JobStatus
	Deduplicated bool
	HashHex      string
	ContentType  string
	UploadedAt   time.Time
	Err          string
}

// DirStats summarizes a directory ingest.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Succeeded    uint32
	Deduplicated uint32
	Failed       uint32
}

// Submitter accepts invoice jobs; *pipeline.Orchestrator satisfies it.
type Submitter interface {
	Submit(ctx context.Context, sub pipeline.Submission) (*entity.JobView, error)
}

// Ingestor copies local files into the document store and submits them.
type Ingestor struct {
	Docs     storage.DocumentStore
	Jobs     Submitter
	ClientID string
	Logger   *slog.Logger

	seen map[string]string // sha256 -> job id, per ingestor
}

func NewIngestor(docs storage.DocumentStore, jobs Submitter, clientID string, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{Docs: docs, Jobs: jobs, ClientID: clientID, Logger: logger, seen: map[string]string{}}
}

// IngestPath stores one file and submits an invoice job for it. A file whose
// content was already ingested by this Ingestor is reported as deduplicated
// and not submitted again.
func (i *Ingestor) IngestPath(ctx context.Context, path string) (IngestionResult, error) {
	out := IngestionResult{SourcePath: path}

	abs, err := filepath.Abs(path)
	if err != nil {
		return out, fmt.Errorf("abs path: %w", err)
	}
	out.SourcePath = abs
	name := filepath.Base(abs)
	if !constants.IsAllowedExt(filepath.Ext(name)) {
		return out, common.InvalidInputf("unsupported or missing extension: %q", filepath.Ext(name))
	}

	f, err := os.Open(abs)
	if err != nil {
		return out, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return out, fmt.Errorf("read: %w", err)
	}
	contentType, err := storage.DetectDocument(head[:n], name)
	if err != nil {
		return out, err
	}
	out.ContentType = contentType

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return out, fmt.Errorf("seek: %w", err)
	}
	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return out, fmt.Errorf("hash: %w", err)
	}
	out.HashHex = hex.EncodeToString(h.Sum(nil))
	if jobID, ok := i.seen[out.HashHex]; ok {
		out.JobID = jobID
		out.Deduplicated = true
		return out, nil
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return out, fmt.Errorf("seek: %w", err)
	}
	key := storage.DocumentKey(uuid.New(), name)
	if err := i.Docs.Put(ctx, key, f, size, contentType); err != nil {
		return out, fmt.Errorf("store %s: %w", name, err)
	}
	out.UploadedAt = time.Now().UTC()

	view, err := i.Jobs.Submit(ctx, pipeline.Submission{
		ClientID: i.ClientID,
		JobType:  constants.JobTypeInvoice,
		Input: entity.InvoiceInput{Document: entity.DocumentRef{
			Key:         key,
			Filename:    name,
			ContentType: contentType,
			Size:        size,
		}},
	})
	if err != nil {
		_ = i.Docs.Delete(ctx, key)
		return out, fmt.Errorf("submit %s: %w", name, err)
	}
	out.JobID = view.JobID
	out.Status = view.Status
	i.seen[out.HashHex] = view.JobID

	i.Logger.Info("ingest.file.submitted", "path", abs, "job_id", view.JobID, "bytes", size)
	return out, nil
}

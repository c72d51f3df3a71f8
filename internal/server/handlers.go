package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/docflow/constants"
	"github.com/joseph-ayodele/docflow/internal/common"
	"github.com/joseph-ayodele/docflow/internal/entity"
	"github.com/joseph-ayodele/docflow/internal/export"
	"github.com/joseph-ayodele/docflow/internal/ocr"
	"github.com/joseph-ayodele/docflow/internal/pipeline"
	"github.com/joseph-ayodele/docflow/internal/storage"
)

const (
	defaultPageSize  = 20
	maxPageSize      = 100
	defaultExportMax = 1000
	maxExportRows    = 10000
)

// JobService is the job surface the HTTP API drives; *pipeline.Orchestrator
// satisfies it.
type JobService interface {
	Submit(ctx context.Context, sub pipeline.Submission) (*entity.JobView, error)
	Enqueue(ctx context.Context, sub pipeline.Submission) (*entity.JobView, error)
	GetStatus(ctx context.Context, clientID string, id uuid.UUID) (*entity.JobView, error)
	List(ctx context.Context, f entity.JobFilter) ([]*entity.JobView, int, error)
	Delete(ctx context.Context, clientID string, id uuid.UUID) error
}

// Exporter renders a client's invoices as a workbook.
type Exporter interface {
	ExportInvoicesXLSX(ctx context.Context, clientID string, limit int) ([]byte, error)
}

type Handler struct {
	jobs      JobService
	docs      storage.DocumentStore
	exporter  Exporter
	health    *Health
	maxUpload int64
	log       *slog.Logger
}

// ListResponse is one page of jobs.
type ListResponse struct {
	Jobs     []*entity.JobView `json:"jobs"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

// SubmitInvoice accepts a multipart upload in the "file" field, stores it
// and creates an invoice job. ?mode=queue routes the job through the broker.
func (h *Handler) SubmitInvoice(c *gin.Context) {
	ctx := c.Request.Context()
	submit, err := h.submitter(c.Query("mode"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+1<<20)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeTooLarge(c, h.maxUpload)
			return
		}
		writeError(c, common.InvalidInputf("multipart field \"file\" is required"))
		return
	}
	if fh.Size > h.maxUpload {
		writeTooLarge(c, h.maxUpload)
		return
	}
	name := filepath.Base(strings.ReplaceAll(fh.Filename, `\`, "/"))
	if !constants.IsAllowedExt(filepath.Ext(name)) {
		writeError(c, common.InvalidInputf("unsupported file type %q: upload a pdf, png or jpeg", filepath.Ext(name)))
		return
	}

	f, err := fh.Open()
	if err != nil {
		writeError(c, fmt.Errorf("open upload: %w", err))
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		writeError(c, fmt.Errorf("read upload: %w", err))
		return
	}
	if len(data) == 0 {
		writeError(c, common.InvalidInputf("uploaded file is empty"))
		return
	}

	contentType, err := storage.DetectDocument(data, name)
	if err != nil {
		writeError(c, err)
		return
	}
	if constants.MapExtToFormat(filepath.Ext(name)) == constants.PDF {
		pages, err := ocr.PageCountReader(bytes.NewReader(data))
		if err != nil || pages == 0 {
			writeError(c, common.InvalidInputf("%s is not a readable PDF document", name))
			return
		}
	}

	priority, err := parseIntDefault(c.PostForm("priority"), 0)
	if err != nil {
		writeError(c, common.InvalidInputf("priority must be an integer"))
		return
	}

	key := storage.DocumentKey(uuid.New(), name)
	if err := h.docs.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		h.log.Error("store upload failed", "key", key, "error", err, "request_id", GetRequestID(c))
		writeError(c, err)
		return
	}

	view, err := submit(ctx, pipeline.Submission{
		ClientID: GetClientID(c),
		JobType:  constants.JobTypeInvoice,
		Priority: priority,
		Input: entity.InvoiceInput{Document: entity.DocumentRef{
			Key:         key,
			Filename:    name,
			ContentType: contentType,
			Size:        int64(len(data)),
		}},
	})
	if err != nil {
		if derr := h.docs.Delete(ctx, key); derr != nil {
			h.log.Warn("remove orphaned upload failed", "key", key, "error", derr)
		}
		h.serverError(c, "submit invoice failed", err)
		return
	}
	c.JSON(http.StatusAccepted, view)
}

// SubmitEmail creates an email analysis job from a JSON body.
func (h *Handler) SubmitEmail(c *gin.Context) {
	submit, err := h.submitter(c.Query("mode"))
	if err != nil {
		writeError(c, err)
		return
	}
	var in entity.EmailInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, common.InvalidInputf("invalid JSON body: %v", err))
		return
	}
	priority, err := parseIntDefault(c.Query("priority"), 0)
	if err != nil {
		writeError(c, common.InvalidInputf("priority must be an integer"))
		return
	}

	view, err := submit(c.Request.Context(), pipeline.Submission{
		ClientID: GetClientID(c),
		JobType:  constants.JobTypeEmail,
		Priority: priority,
		Input:    in,
	})
	if err != nil {
		h.serverError(c, "submit email failed", err)
		return
	}
	c.JSON(http.StatusAccepted, view)
}

func (h *Handler) GetJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, common.InvalidInputf("job id must be a UUID"))
		return
	}
	view, err := h.jobs.GetStatus(c.Request.Context(), GetClientID(c), id)
	if err != nil {
		h.serverError(c, "get job failed", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// ListJobs pages through the caller's jobs, newest first.
func (h *Handler) ListJobs(c *gin.Context) {
	f := entity.JobFilter{ClientID: GetClientID(c)}
	if s := c.Query("status"); s != "" {
		st, ok := constants.ParseJobStatus(s)
		if !ok {
			writeError(c, common.InvalidInputf("unknown status %q", s))
			return
		}
		f.Status = st
	}
	if s := c.Query("job_type"); s != "" {
		jt, ok := constants.ParseJobType(s)
		if !ok {
			writeError(c, common.InvalidInputf("unknown job_type %q", s))
			return
		}
		f.JobType = jt
	}
	page, err := parseIntDefault(c.Query("page"), 1)
	if err != nil || page < 1 {
		writeError(c, common.InvalidInputf("page must be a positive integer"))
		return
	}
	size, err := parseIntDefault(c.Query("page_size"), defaultPageSize)
	if err != nil || size < 1 || size > maxPageSize {
		writeError(c, common.InvalidInputf("page_size must be between 1 and %d", maxPageSize))
		return
	}
	f.Limit = size
	f.Offset = (page - 1) * size

	views, total, err := h.jobs.List(c.Request.Context(), f)
	if err != nil {
		h.serverError(c, "list jobs failed", err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Jobs: views, Total: total, Page: page, PageSize: size})
}

func (h *Handler) DeleteJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, common.InvalidInputf("job id must be a UUID"))
		return
	}
	if err := h.jobs.Delete(c.Request.Context(), GetClientID(c), id); err != nil {
		h.serverError(c, "delete job failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ExportInvoices streams the caller's completed invoices as XLSX.
func (h *Handler) ExportInvoices(c *gin.Context) {
	limit, err := parseIntDefault(c.Query("limit"), defaultExportMax)
	if err != nil || limit < 1 || limit > maxExportRows {
		writeError(c, common.InvalidInputf("limit must be between 1 and %d", maxExportRows))
		return
	}
	data, err := h.exporter.ExportInvoicesXLSX(c.Request.Context(), GetClientID(c), limit)
	if err != nil {
		h.serverError(c, "export invoices failed", err)
		return
	}
	filename := fmt.Sprintf("invoices-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, export.ContentType, data)
}

// Health reports the status of every registered dependency.
func (h *Handler) Health(c *gin.Context) {
	ok, checks := h.health.Check(c.Request.Context())
	status, code := "ok", http.StatusOK
	if !ok {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status": status,
		"checks": checks,
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

type submitFunc func(ctx context.Context, sub pipeline.Submission) (*entity.JobView, error)

func (h *Handler) submitter(mode string) (submitFunc, error) {
	switch strings.ToLower(mode) {
	case "", "direct":
		return h.jobs.Submit, nil
	case "queue":
		return h.jobs.Enqueue, nil
	default:
		return nil, common.InvalidInputf("mode must be direct or queue")
	}
}

// serverError logs unexpected failures before answering.
func (h *Handler) serverError(c *gin.Context, msg string, err error) {
	if common.HTTPStatus(err) >= http.StatusInternalServerError {
		h.log.Error(msg, "error", err, "request_id", GetRequestID(c), "client_id", GetClientID(c))
	}
	writeError(c, err)
}

func writeError(c *gin.Context, err error) {
	c.JSON(common.HTTPStatus(err), gin.H{
		"error":      common.PublicMessage(err),
		"request_id": GetRequestID(c),
	})
}

func abortError(c *gin.Context, err error) {
	c.Abort()
	writeError(c, err)
}

func writeTooLarge(c *gin.Context, limit int64) {
	c.JSON(http.StatusRequestEntityTooLarge, gin.H{
		"error":      fmt.Sprintf("file exceeds the %d byte upload limit", limit),
		"request_id": GetRequestID(c),
	})
}

func parseIntDefault(s string, def int) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

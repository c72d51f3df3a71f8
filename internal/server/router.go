// Package server exposes the job API over HTTP and a health service over
// gRPC.
package server

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/docflow/internal/common"
	"github.com/joseph-ayodele/docflow/internal/storage"
)

const defaultMaxUpload = 20 << 20

// Deps are the collaborators the router wires into its handlers.
type Deps struct {
	Jobs     JobService
	Docs     storage.DocumentStore
	Exporter Exporter
	Limiter  Limiter // nil disables rate limiting
	Health   *Health
	Logger   *slog.Logger
}

// NewRouter builds the gin engine serving /health and /api/v1.
func NewRouter(cfg common.ServerConfig, d Deps) (*gin.Engine, error) {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	keys, err := ParseKeyRing(cfg.APIKeys)
	if err != nil {
		return nil, err
	}
	if keys.Empty() {
		log.Warn("no API keys configured, requests run as the anonymous client")
	}
	corsCfg, err := corsConfig(cfg.CORSOrigins)
	if err != nil {
		return nil, err
	}
	if d.Health == nil {
		d.Health = NewHealth(0, log)
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}

	h := &Handler{
		jobs:      d.Jobs,
		docs:      d.Docs,
		exporter:  d.Exporter,
		health:    d.Health,
		maxUpload: maxUpload,
		log:       log,
	}

	r := gin.New()
	r.MaxMultipartMemory = 8 << 20
	r.Use(RequestID())
	r.Use(RequestLogger(log))
	r.Use(Recovery(log))
	r.Use(cors.New(corsCfg))

	r.GET("/health", h.Health)

	api := r.Group("/api/v1")
	api.Use(APIKeyAuth(keys))
	if d.Limiter != nil {
		api.Use(RateLimit(d.Limiter, cfg.RateLimit, cfg.RateWindow, log))
	}
	{
		api.POST("/invoices", h.SubmitInvoice)
		api.GET("/invoices/export", h.ExportInvoices)
		api.POST("/emails", h.SubmitEmail)
		api.GET("/jobs", h.ListJobs)
		api.GET("/jobs/:id", h.GetJob)
		api.DELETE("/jobs/:id", h.DeleteJob)
	}
	return r, nil
}

func corsConfig(origins []string) (cors.Config, error) {
	cfg := cors.DefaultConfig()
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	cfg.AllowHeaders = append(cfg.AllowHeaders, headerAPIKey, headerRequestID)
	cfg.ExposeHeaders = []string{headerRequestID, "Content-Disposition", "X-RateLimit-Remaining"}
	cfg.MaxAge = 12 * time.Hour
	if err := cfg.Validate(); err != nil {
		return cors.Config{}, fmt.Errorf("cors: %w", err)
	}
	return cfg, nil
}

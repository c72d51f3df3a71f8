package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joseph-ayodele/docflow/constants"
	"github.com/joseph-ayodele/docflow/internal/app"
	"github.com/joseph-ayodele/docflow/internal/common"
)

// runocr runs text extraction on a local document and logs the outcome of
// each strategy. It needs no database or cache.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if len(os.Args) != 2 {
		logger.Error("usage", "cmd", "runocr <path-to-pdf-or-image>")
		os.Exit(2)
	}
	path := os.Args[1]
	if !constants.IsAllowedExt(filepath.Ext(path)) {
		logger.Error("unsupported file type", "path", path)
		os.Exit(2)
	}
	if _, err := os.Stat(path); err != nil {
		logger.Error("cannot read file", "path", path, "error", err)
		os.Exit(2)
	}

	cfg, err := common.LoadConfig()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	engine := app.NewOCREngine(cfg.OCR, logger)
	extractor := app.NewExtractor(engine, cfg.Pipeline.OCRThreshold, logger)

	start := time.Now()
	out := extractor.Run(ctx, path)
	dur := time.Since(start)

	if out.Best.Failed() || out.Best.Text == "" {
		logger.Error("text extraction failed",
			"errors", out.Errors(), "duration_ms", dur.Milliseconds())
		os.Exit(1)
	}

	logger.Info("text extraction OK",
		"method", out.Best.Method,
		"pages", out.Best.Pages,
		"bytes", len(out.Best.Text),
		"confidences", out.Confidences(),
		"duration_ms", dur.Milliseconds(),
	)
}

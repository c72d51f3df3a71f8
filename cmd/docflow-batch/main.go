package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docflow/internal/app"
	"github.com/joseph-ayodele/docflow/internal/common"
	"github.com/joseph-ayodele/docflow/internal/ingest"
)

const batchClient = "local"

func main() {
	var (
		dir     = flag.String("dir", "", "directory of invoices to process (required)")
		out     = flag.String("out", "", "output XLSX path (default: <dir>/../invoices-YYYYMMDD.xlsx)")
		inmem   = flag.Bool("inmem", true, "use in-memory SQLite and Redis instead of the configured services")
		watch   = flag.Bool("watch", false, "keep watching the directory for new files until interrupted")
		timeout = flag.Duration("timeout", 30*time.Minute, "maximum time to wait for processing")
	)
	flag.Parse()

	if *dir == "" {
		printError("--dir is required")
		flag.Usage()
		os.Exit(2)
	}
	info, err := os.Stat(*dir)
	if err != nil || !info.IsDir() {
		printError(fmt.Sprintf("%s is not a directory", *dir))
		os.Exit(2)
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(filepath.Clean(*dir)), "invoices-"+time.Now().Format("20060102")+".xlsx")
	}

	cfg, err := common.LoadConfig()
	if err != nil {
		printError(err.Error())
		os.Exit(1)
	}
	logger := common.NewLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger, app.Options{InMemory: *inmem})
	if err != nil {
		logger.Error("failed to build application", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	pool := a.StartPool()
	ing := ingest.NewIngestor(a.Docs, a.Orchestrator, batchClient, logger)

	results, stats, err := ing.IngestDirectory(ctx, *dir, true)
	if err != nil {
		logger.Error("directory ingestion failed", "error", err)
	}
	logger.Info("ingestion completed",
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"deduplicated", stats.Deduplicated,
		"failed", stats.Failed)

	if *watch {
		results = append(results, watchDir(ctx, ing, *dir, logger)...)
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	pool.Shutdown(drainCtx)

	processed, failures := finish(drainCtx, a, results, logger)

	data, err := a.Exporter.ExportInvoicesXLSX(drainCtx, batchClient, 10000)
	if err != nil {
		logger.Error("failed to export invoices", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		logger.Error("failed to write output", "path", *out, "error", err)
		os.Exit(1)
	}

	logger.Info("batch processing complete",
		"files_ingested", stats.Succeeded,
		"processed", processed,
		"failures", failures,
		"output_file", *out)

	fmt.Printf("Batch processing complete!\n")
	fmt.Printf("- Files ingested: %d\n", len(results))
	fmt.Printf("- Files processed: %d\n", processed)
	fmt.Printf("- Failures: %d\n", failures)
	fmt.Printf("- Output: %s\n", *out)
}

// watchDir ingests files that appear under root until ctx is cancelled.
func watchDir(ctx context.Context, ing *ingest.Ingestor, root string, logger *slog.Logger) []ingest.IngestionResult {
	paths, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:    []string{root},
		Debounce: 500 * time.Millisecond,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("failed to start watcher", "error", err)
		return nil
	}
	logger.Info("watching for new files, press Ctrl+C to export", "dir", root)

	var results []ingest.IngestionResult
	for {
		select {
		case p, ok := <-paths:
			if !ok {
				return results
			}
			r, err := ing.IngestPath(ctx, p)
			if err != nil {
				logger.Warn("ingest.file.failed", "path", p, "error", err)
				continue
			}
			results = append(results, r)
		case err, ok := <-errs:
			if ok && err != nil {
				logger.Warn("watcher error", "error", err)
			}
		case <-ctx.Done():
			return results
		}
	}
}

// finish runs any job the pool could not take inline and counts outcomes.
func finish(ctx context.Context, a *app.App, results []ingest.IngestionResult, logger *slog.Logger) (processed, failures int) {
	seen := map[string]bool{}
	for _, r := range results {
		if r.JobID == "" {
			failures++
			continue
		}
		if seen[r.JobID] {
			continue
		}
		seen[r.JobID] = true

		id, err := uuid.Parse(r.JobID)
		if err != nil {
			failures++
			continue
		}
		view, err := a.Store.Load(ctx, id)
		if err != nil {
			logger.Warn("failed to load job", "job_id", id, "error", err)
			failures++
			continue
		}
		if !view.Status.IsTerminal() {
			if err := a.Orchestrator.Execute(ctx, id); err != nil {
				logger.Warn("failed to execute job", "job_id", id, "error", err)
			}
			if view, err = a.Store.Load(ctx, id); err != nil {
				failures++
				continue
			}
		}
		if view.Status.IsTerminal() && view.Error == nil {
			processed++
		} else {
			failures++
		}
	}
	return processed, failures
}

func printError(msg string) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
}

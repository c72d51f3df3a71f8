// Package app wires configuration into the repositories, cache, document
// store and orchestrator shared by the docflow binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/joseph-ayodele/docflow/constants"
	"github.com/joseph-ayodele/docflow/internal/async"
	"github.com/joseph-ayodele/docflow/internal/cache"
	"github.com/joseph-ayodele/docflow/internal/common"
	"github.com/joseph-ayodele/docflow/internal/export"
	"github.com/joseph-ayodele/docflow/internal/extract"
	"github.com/joseph-ayodele/docflow/internal/fields"
	"github.com/joseph-ayodele/docflow/internal/nlp"
	"github.com/joseph-ayodele/docflow/internal/ocr"
	"github.com/joseph-ayodele/docflow/internal/pipeline"
	"github.com/joseph-ayodele/docflow/internal/queue"
	"github.com/joseph-ayodele/docflow/internal/repository"
	"github.com/joseph-ayodele/docflow/internal/resultstore"
	"github.com/joseph-ayodele/docflow/internal/server"
	"github.com/joseph-ayodele/docflow/internal/storage"
	"github.com/joseph-ayodele/docflow/internal/validate"
)

// Options adjust Build for offline tools.
type Options struct {
	// InMemory replaces the database with in-memory SQLite and Redis with
	// an in-process server.
	InMemory bool
}

type App struct {
	Config       *common.Config
	Log          *slog.Logger
	DB           *repository.DB
	Cache        *cache.RedisCache
	Docs         storage.DocumentStore
	Jobs         repository.JobRepository
	Results      repository.ResultRepository
	Store        *resultstore.Store
	Orchestrator *pipeline.Orchestrator
	Exporter     *export.Service

	shared  *redis.Client // set in in-memory mode
	closers []func()
}

// Build opens every backing service named in cfg and assembles the
// orchestrator. Callers must Close the returned App.
func Build(ctx context.Context, cfg *common.Config, log *slog.Logger, opts Options) (a *App, err error) {
	if log == nil {
		log = slog.Default()
	}
	a = &App{Config: cfg, Log: log}
	defer func() {
		if err != nil {
			a.Close()
			a = nil
		}
	}()

	var memRedis string
	if opts.InMemory {
		cfg.Database.Driver = "sqlite"
		cfg.Database.DSN = repository.SQLiteMemoryDSN("docflow")
		cfg.Database.AutoMigrate = true
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start in-process redis: %w", err)
		}
		a.onClose(mr.Close)
		memRedis = mr.Addr()
		cfg.Redis.URL = "redis://" + memRedis
		cfg.Broker.RedisURL = cfg.Redis.URL
	}

	if a.DB, err = repository.Open(ctx, repository.Config{
		Driver:           cfg.Database.Driver,
		DSN:              cfg.Database.DatabaseDSN(),
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, log); err != nil {
		return nil, err
	}
	a.onClose(func() { a.DB.Close(log) })
	if cfg.Database.AutoMigrate {
		if err := repository.Migrate(ctx, a.DB, log); err != nil {
			return nil, err
		}
	}

	if memRedis != "" {
		a.shared = redis.NewClient(&redis.Options{Addr: memRedis})
		a.Cache = cache.NewFromClient(a.shared, log)
	} else if a.Cache, err = cache.NewRedisCache(ctx, cfg.Redis.URL, log); err != nil {
		return nil, err
	}
	a.onClose(func() { _ = a.Cache.Close() })

	if a.Docs, err = openDocuments(ctx, cfg.Storage, log); err != nil {
		return nil, err
	}

	a.Jobs = repository.NewJobRepository(a.DB, log)
	a.Results = repository.NewResultRepository(a.DB, log)
	a.Store = resultstore.New(a.Cache, a.Jobs, a.Results, cfg.Redis.DefaultTTL, log)
	a.Exporter = export.NewService(a.Results, log)

	stages, err := buildStages(cfg, a.Docs, log)
	if err != nil {
		return nil, err
	}
	a.Orchestrator = pipeline.New(a.Jobs, a.Store, a.Docs, stages, pipeline.Config{
		LeaseTTL:      cfg.Pipeline.LeaseTTL,
		RecoveryGrace: cfg.Pipeline.RecoveryGrace,
	}, log)
	return a, nil
}

func openDocuments(ctx context.Context, cfg common.StorageConfig, log *slog.Logger) (storage.DocumentStore, error) {
	switch cfg.Backend {
	case "minio":
		s, err := storage.NewMinioStore(cfg.Minio, log)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case "", "fs":
		return storage.NewFSStore(cfg.Dir, log)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}

func buildStages(cfg *common.Config, docs storage.DocumentStore, log *slog.Logger) (map[constants.JobType]pipeline.Stage, error) {
	v, err := validate.New(log)
	if err != nil {
		return nil, err
	}
	merger := NewExtractor(NewOCREngine(cfg.OCR, log), cfg.Pipeline.OCRThreshold, log)

	var recognizer nlp.Recognizer = nlp.PatternRecognizer{}
	if cfg.NLP.URL != "" {
		recognizer = nlp.NewHTTPRecognizer(cfg.NLP.URL, cfg.NLP.APIKey, cfg.NLP.Timeout, log)
	} else {
		log.Info("no NLP_URL configured, using pattern entity recognition")
	}

	return map[constants.JobType]pipeline.Stage{
		constants.JobTypeInvoice: pipeline.NewInvoiceStage(docs, merger, v, log),
		constants.JobTypeEmail:   pipeline.NewEmailStage(fields.NewEmailAnalyzer(recognizer, log), v, log),
	}, nil
}

func NewOCREngine(cfg common.OCRConfig, log *slog.Logger) *ocr.Engine {
	return ocr.New(ocr.Config{
		Pdftotext:     cfg.Pdftotext,
		Pdftoppm:      cfg.Pdftoppm,
		Tesseract:     cfg.Tesseract,
		TesseractLang: cfg.TesseractLang,
		DPI:           cfg.DPI,
		MaxPages:      cfg.MaxPages,
		TessdataDir:   cfg.TessdataDir,
	}, log)
}

// NewExtractor runs the native text layer first and falls back to OCR
// below threshold.
func NewExtractor(engine *ocr.Engine, threshold float64, log *slog.Logger) *extract.Merger {
	return extract.NewMerger(
		extract.NewNativeStrategy(engine, log),
		extract.NewOCRStrategy(engine, log),
		threshold,
		log,
	)
}

// StartPool starts the in-process worker pool and makes it the
// orchestrator's scheduler.
func (a *App) StartPool() *async.Pool {
	p := a.Config.Pipeline
	pool := async.NewPool(a.Orchestrator, a.Log,
		async.WithWorkers(p.Workers),
		async.WithQueueSize(p.QueueSize),
		async.WithProcessTimeout(p.ProcessTimeout),
	)
	a.Orchestrator.SetScheduler(pool)
	return pool
}

// ConnectBroker creates the broker producer and makes it the
// orchestrator's publisher. In memory mode it shares the cache connection.
func (a *App) ConnectBroker() (*queue.Producer, error) {
	if a.shared != nil {
		prod := queue.NewProducerFromRedis(a.shared, a.Config.Broker, a.Log)
		a.Orchestrator.SetPublisher(prod)
		return prod, nil
	}
	prod, err := queue.NewProducer(a.Config.Broker, a.Log)
	if err != nil {
		return nil, err
	}
	a.onClose(func() { _ = prod.Close() })
	a.Orchestrator.SetPublisher(prod)
	return prod, nil
}

// NewConsumer builds a broker consumer executing through the orchestrator.
func (a *App) NewConsumer() (*queue.Consumer, error) {
	return queue.NewConsumer(a.Config.Broker, a.Orchestrator, a.Log)
}

// Health registers database and cache probes.
func (a *App) Health() *server.Health {
	h := server.NewHealth(3*time.Second, a.Log)
	h.Register("database", func(ctx context.Context) error {
		return repository.HealthCheck(ctx, a.DB, 0, a.Log)
	})
	h.Register("cache", a.Cache.Ping)
	return h
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

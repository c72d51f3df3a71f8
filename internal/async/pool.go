// Package async runs pipeline executions on a bounded in-process worker
// pool.
package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrQueueFull = errors.New("worker queue full")
	ErrClosed    = errors.New("worker pool is shutting down")
)

// Executor runs one job to completion.
type Executor interface {
	Execute(ctx context.Context, jobID uuid.UUID) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, jobID uuid.UUID) error

func (f ExecutorFunc) Execute(ctx context.Context, jobID uuid.UUID) error { return f(ctx, jobID) }

type Pool struct {
	exec    Executor
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan uuid.UUID
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*Pool)

func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.ch = make(chan uuid.UUID, n)
		}
	}
}

// WithProcessTimeout caps one execution. Without it executions have no
// deadline.
func WithProcessTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func NewPool(exec Executor, logger *slog.Logger, opts ...Option) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		exec:    exec,
		logger:  logger,
		workers: 4,
		ch:      make(chan uuid.UUID, 256),
	}
	for _, o := range opts {
		o(p)
	}
	p.start()
	return p
}

func (p *Pool) start() {
	p.once.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go func(workerID int) {
				defer p.wg.Done()
				p.logger.Debug("worker started", "worker_id", workerID)

				for id := range p.ch {
					p.run(workerID, id)
				}

				p.logger.Debug("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (p *Pool) run(workerID int, id uuid.UUID) {
	ctx, cancel := context.Background(), context.CancelFunc(func() {})
	if p.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
	}
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker panic", "worker_id", workerID, "job_id", id, "panic", r)
		}
	}()

	if err := p.exec.Execute(ctx, id); err != nil {
		p.logger.Error("execution failed", "worker_id", workerID, "job_id", id, "error", err)
		return
	}
	p.logger.Debug("execution finished", "worker_id", workerID, "job_id", id)
}

// Enqueue never blocks. A full buffer returns ErrQueueFull and the caller
// leaves the job for the recovery sweep.
func (p *Pool) Enqueue(_ context.Context, id uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.ch <- id:
		return nil
	default:
		p.logger.Warn("worker queue full", "job_id", id)
		return ErrQueueFull
	}
}

// Shutdown stops accepting work and waits for queued jobs to drain or ctx
// to end.
func (p *Pool) Shutdown(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.ch)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); p.wg.Wait() }()

	select {
	case <-ctx.Done():
		p.logger.Warn("shutdown interrupted by context")
	case <-done:
		p.logger.Info("worker pool drained")
	}
}

package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"

	"github.com/joseph-ayodele/docflow/internal/async"
	"github.com/joseph-ayodele/docflow/internal/common"
)

// Consumer pulls tasks from the broker and executes them. A handler error
// leaves the task for redelivery; success acknowledges it.
type Consumer struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	exec   async.Executor
	log    *slog.Logger
}

func NewConsumer(cfg common.BrokerConfig, exec async.Executor, log *slog.Logger) (*Consumer, error) {
	if log == nil {
		log = slog.Default()
	}
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse broker redis url: %w", err)
	}
	if cfg.QueueName == "" {
		cfg.QueueName = DefaultQueue
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	c := &Consumer{exec: exec, log: log, mux: asynq.NewServeMux()}
	c.server = asynq.NewServer(opt, asynq.Config{
		Concurrency:  cfg.Concurrency,
		Queues:       map[string]int{cfg.QueueName: 1},
		Logger:       asynqLogger{log: log.With("component", "asynq")},
		ErrorHandler: asynq.ErrorHandlerFunc(c.reportError),
	})
	c.mux.HandleFunc(TaskTypeProcess, c.HandleTask)
	return c, nil
}

func (c *Consumer) reportError(ctx context.Context, task *asynq.Task, err error) {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	c.log.Warn("queue.task.error", "type", task.Type(), "retried", retried, "max_retry", maxRetry, "error", err)
}

// HandleTask executes the job named by the task. Malformed tasks and
// unknown jobs are not retried.
func (c *Consumer) HandleTask(ctx context.Context, task *asynq.Task) error {
	msg, id, err := DecodeMessage(task.Payload())
	if err != nil {
		c.log.Error("queue.task.malformed", "error", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	c.log.Debug("queue.task.received", "job_id", id, "job_type", msg.JobType)
	err = c.exec.Execute(ctx, id)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, common.ErrNotFound):
		c.log.Warn("queue.task.orphan", "job_id", id)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	default:
		return err
	}
}

// Start runs the server in the background.
func (c *Consumer) Start() error {
	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	c.log.Info("queue.consumer.started")
	return nil
}

// Run blocks until the process receives a termination signal.
func (c *Consumer) Run() error {
	if err := c.server.Run(c.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown waits for in-flight tasks and stops the server.
func (c *Consumer) Shutdown() {
	c.server.Shutdown()
	c.log.Info("queue.consumer.stopped")
}

type asynqLogger struct {
	log *slog.Logger
}

func (l asynqLogger) Debug(args ...any) { l.log.Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...any)  { l.log.Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...any)  { l.log.Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...any) { l.log.Error(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...any) {
	l.log.Error(fmt.Sprint(args...))
	os.Exit(1)
}

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/joseph-ayodele/docflow/internal/common"
	"github.com/joseph-ayodele/docflow/internal/entity"
)

const DefaultQueue = "document_processing"

// Producer publishes pending jobs to the broker.
type Producer struct {
	client   *asynq.Client
	queue    string
	maxRetry int
	timeout  time.Duration
	log      *slog.Logger
}

func NewProducer(cfg common.BrokerConfig, log *slog.Logger) (*Producer, error) {
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse broker redis url: %w", err)
	}
	return newProducer(asynq.NewClient(opt), cfg, log), nil
}

// NewProducerFromRedis shares an existing go-redis client with the broker.
func NewProducerFromRedis(rdb redis.UniversalClient, cfg common.BrokerConfig, log *slog.Logger) *Producer {
	return newProducer(asynq.NewClientFromRedisClient(rdb), cfg, log)
}

func newProducer(client *asynq.Client, cfg common.BrokerConfig, log *slog.Logger) *Producer {
	if log == nil {
		log = slog.Default()
	}
	if cfg.QueueName == "" {
		cfg.QueueName = DefaultQueue
	}
	if cfg.MaxRetry <= 0 {
		cfg.MaxRetry = 5
	}
	return &Producer{client: client, queue: cfg.QueueName, maxRetry: cfg.MaxRetry, timeout: cfg.TaskTimeout, log: log}
}

// Publish enqueues job under its own id as the task id, so republishing
// a job that is still queued is a no-op.
func (p *Producer) Publish(ctx context.Context, job *entity.Job) error {
	body, err := json.Marshal(NewMessage(job))
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	opts := []asynq.Option{
		asynq.Queue(p.queue),
		asynq.TaskID(job.ID.String()),
		asynq.MaxRetry(p.maxRetry),
	}
	if p.timeout > 0 {
		opts = append(opts, asynq.Timeout(p.timeout))
	}

	info, err := p.client.EnqueueContext(ctx, asynq.NewTask(TaskTypeProcess, body), opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		p.log.Debug("queue.publish.duplicate", "job_id", job.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}
	p.log.Info("queue.publish.ok", "job_id", job.ID, "job_type", job.JobType, "queue", info.Queue)
	return nil
}

func (p *Producer) Close() error {
	return p.client.Close()
}

package conversion

import (
	"context"
	"fmt"

	"clickbridge_backend/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Uploads are retried a bounded number of times before the journal row is
// left failed for the backfill command.
const uploadMaxRetry = 5

// Queue enqueues conversion upload tasks onto the asynq queue.
type Queue struct {
	client *asynq.Client
	queue  string
}

// Enqueuer is the queue surface the orchestrator needs.
type Enqueuer interface {
	EnqueueUpload(ctx context.Context, payload UploadPayload) error
}

// NewQueue creates an enqueue-side asynq client.
func NewQueue(cfg config.SchedulerConfig) (*Queue, error) {
	opt, err := redisClientOpt(cfg.GetRedisURL())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	return &Queue{
		client: asynq.NewClient(opt),
		queue:  queue,
	}, nil
}

func (q *Queue) Close() error {
	if q == nil || q.client == nil {
		return nil
	}
	return q.client.Close()
}

// EnqueueUpload schedules one journaled conversion for upload.
func (q *Queue) EnqueueUpload(ctx context.Context, payload UploadPayload) error {
	if q == nil || q.client == nil {
		return nil
	}

	task, err := NewUploadTask(payload)
	if err != nil {
		return err
	}

	_, err = q.client.EnqueueContext(ctx, task, asynq.Queue(q.queue), asynq.MaxRetry(uploadMaxRetry))
	return err
}

func redisClientOpt(redisURL string) (asynq.RedisClientOpt, error) {
	if redisURL == "" {
		return asynq.RedisClientOpt{}, fmt.Errorf("redis url not configured")
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	}, nil
}

package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DispatchQueueKey is the Redis sorted set holding pending dispatch jobs,
// scored by the time they become ready.
const DispatchQueueKey = "dispatch_queue"

// DispatchJob is one rendered notification waiting to be posted to Zulip.
// Exactly one job is enqueued per accepted webhook request.
type DispatchJob struct {
	IntegrationID      string `json:"integration_id"`
	EventKind          string `json:"event_kind"`
	Resource           string `json:"resource"`
	Action             string `json:"action"`
	Title              string `json:"title,omitempty"`
	Stream             string `json:"stream"`
	Topic              string `json:"topic"`
	Content            string `json:"content"`
	RateLimitPerSecond int    `json:"rate_limit_per_second"`
}

// Queue is the Redis-backed hand-off between the ingestion endpoint and the
// dispatch workers. Jobs survive a process restart.
type Queue struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

func NewQueue(redisClient *redis.Client, logger *slog.Logger) *Queue {
	return &Queue{
		redisClient: redisClient,
		logger:      logger,
	}
}

// Enqueue adds a job ready for immediate dispatch.
func (q *Queue) Enqueue(ctx context.Context, job DispatchJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling dispatch job: %w", err)
	}

	err = q.redisClient.ZAdd(ctx, DispatchQueueKey, redis.Z{
		Score:  float64(time.Now().UnixMicro()),
		Member: string(data),
	}).Err()
	if err != nil {
		return fmt.Errorf("queuing dispatch job: %w", err)
	}

	q.logger.Info("dispatch job queued",
		"integration_id", job.IntegrationID,
		"event_kind", job.EventKind,
		"stream", job.Stream,
	)

	return nil
}

// Depth returns the number of jobs waiting in the queue.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.redisClient.ZCard(ctx, DispatchQueueKey).Result()
}

package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/anagpal/clubhouse-zulip-bridge/internal/engine"
	"github.com/redis/go-redis/v9"
)

// Poller continuously polls the Redis dispatch queue and feeds ready jobs
// to the worker pool. Claiming a job removes it from the queue, so each
// job is dispatched by exactly one worker.
type Poller struct {
	redisClient  *redis.Client
	pool         *Pool
	logger       *slog.Logger
	pollInterval time.Duration
	batchSize    int64
}

// NewPoller creates a poller that pulls from the Redis sorted set.
func NewPoller(redisClient *redis.Client, pool *Pool, logger *slog.Logger) *Poller {
	return &Poller{
		redisClient:  redisClient,
		pool:         pool,
		logger:       logger,
		pollInterval: 100 * time.Millisecond,
		batchSize:    10,
	}
}

// Start begins the polling loop. It runs until the context is cancelled.
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("queue poller started")

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("queue poller stopping")
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// poll fetches a batch of ready jobs and sends them to the workers.
func (p *Poller) poll(ctx context.Context) {
	now := float64(time.Now().UnixMicro())

	results, err := p.redisClient.ZRangeByScoreWithScores(ctx, engine.DispatchQueueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   formatFloat(now),
		Count: p.batchSize,
	}).Result()
	if err != nil {
		p.logger.Error("failed to poll dispatch queue", "error", err)
		return
	}

	for _, z := range results {
		member := z.Member.(string)

		// ZRem claims the job; zero means another poller already took it
		removed, err := p.redisClient.ZRem(ctx, engine.DispatchQueueKey, member).Result()
		if err != nil {
			p.logger.Error("failed to claim job from queue", "error", err)
			continue
		}
		if removed == 0 {
			continue
		}

		var job engine.DispatchJob
		if err := json.Unmarshal([]byte(member), &job); err != nil {
			p.logger.Error("failed to unmarshal dispatch job", "error", err)
			continue
		}

		p.pool.Submit(job)
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

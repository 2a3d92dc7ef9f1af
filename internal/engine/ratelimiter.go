package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter bounds outbound Zulip calls per integration with a sliding
// window over a Redis sorted set. A Lua script keeps the
// clean-count-add sequence atomic across workers.
type RateLimiter struct {
	redisClient *redis.Client
	logger      *slog.Logger
	script      *redis.Script
}

// 1. Drop entries older than the window
// 2. Count what is left
// 3. Under the limit: record this call and return 1 (allowed)
// 4. Otherwise return 0 (denied)
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)

if count < limit then
    redis.call('ZADD', key, now, member)
    redis.call('EXPIRE', key, window / 1000 + 1)
    return 1
else
    return 0
end
`)

func NewRateLimiter(redisClient *redis.Client, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		redisClient: redisClient,
		logger:      logger,
		script:      slidingWindowScript,
	}
}

func rlKey(integrationID string) string {
	return fmt.Sprintf("rl:%s", integrationID)
}

// Allow reports whether a dispatch for this integration fits within its
// per-second limit. A limit of zero means unlimited. Redis failures fail
// open so a broken limiter never blocks notifications.
func (rl *RateLimiter) Allow(ctx context.Context, integrationID string, limit int) bool {
	if limit <= 0 {
		return true
	}

	key := rlKey(integrationID)
	now := time.Now().UnixMilli()
	window := int64(1000) // 1 second, in milliseconds
	member := fmt.Sprintf("%d:%d", now, time.Now().UnixNano()%10000)

	result, err := rl.script.Run(ctx, rl.redisClient, []string{key},
		now, window, limit, member,
	).Int64()
	if err != nil {
		rl.logger.Error("rate limiter script failed", "error", err, "integration_id", integrationID)
		return true
	}

	if result == 0 {
		rl.logger.Debug("rate limited",
			"integration_id", integrationID,
			"limit", limit,
		)
		return false
	}

	return true
}

package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the sliding windows in a Redis sorted set per key, scored
// by event time, so counters are shared across instances.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "authcore:ratelimit:",
	}
}

func (s *RedisStore) Hit(ctx context.Context, key string, now time.Time, windows ...time.Duration) ([]int, time.Time, error) {
	redisKey := s.prefix + key
	maxWindow := maxDuration(windows)
	nowNanos := now.UnixNano()

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, redisKey, redis.Z{
		Score:  float64(nowNanos),
		Member: uuid.New().String(),
	})
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf",
		strconv.FormatInt(now.Add(-maxWindow).UnixNano(), 10))

	countCmds := make([]*redis.IntCmd, len(windows))
	for i, window := range windows {
		countCmds[i] = pipe.ZCount(ctx, redisKey,
			"("+strconv.FormatInt(now.Add(-window).UnixNano(), 10), "+inf")
	}
	oldestCmd := pipe.ZRangeWithScores(ctx, redisKey, 0, 0)
	pipe.PExpire(ctx, redisKey, maxWindow+time.Minute)

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, time.Time{}, fmt.Errorf("rate limit store error: %w", err)
	}

	counts := make([]int, len(windows))
	for i, cmd := range countCmds {
		counts[i] = int(cmd.Val())
	}

	var oldest time.Time
	if entries := oldestCmd.Val(); len(entries) > 0 {
		oldest = time.Unix(0, int64(entries[0].Score))
	}

	return counts, oldest, nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}

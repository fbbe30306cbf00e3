package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/xela07ax/guardplane/internal/infra"
)

// keyExpiryBuffer — запас к TTL ключа, чтобы брошенные ключи самоочищались,
// но живое окно не исчезало из-под ног.
const keyExpiryBuffer = time.Minute

// RedisWindowStore реализует WindowStore на sorted set.
type RedisWindowStore struct {
	rdb *redis.Client
}

func NewRedisWindowStore(rdb *redis.Client) *RedisWindowStore {
	return &RedisWindowStore{rdb: rdb}
}

func (s *RedisWindowStore) Slide(ctx context.Context, key string, now time.Time, window time.Duration, max int) (int64, time.Time, bool, error) {
	rkey := infra.RateLimitKey(key)
	nowMs := now.UnixMilli()
	cutoff := nowMs - window.Milliseconds()

	// Вытеснение + подсчет одним pipeline (один round-trip)
	pipe := s.rdb.Pipeline()
	pipe.ZRemRangeByScore(ctx, rkey, "-inf", strconv.FormatInt(cutoff, 10))
	cardCmd := pipe.ZCard(ctx, rkey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, time.Time{}, false, fmt.Errorf("ratelimit: prune/count: %w", err)
	}

	count := cardCmd.Val()
	if count >= int64(max) {
		// Отказ: достаем старейшего члена для честного resetAt
		oldest, err := s.rdb.ZRangeWithScores(ctx, rkey, 0, 0).Result()
		if err != nil {
			return count, time.Time{}, false, fmt.Errorf("ratelimit: oldest: %w", err)
		}
		var oldestAt time.Time
		if len(oldest) > 0 {
			oldestAt = time.UnixMilli(int64(oldest[0].Score))
		}
		return count, oldestAt, false, nil
	}

	// Допуск: member уникален даже в пределах одной миллисекунды
	member := fmt.Sprintf("%d-%s", nowMs, uuid.New().String())
	pipe = s.rdb.Pipeline()
	pipe.ZAdd(ctx, rkey, redis.Z{Score: float64(nowMs), Member: member})
	pipe.Expire(ctx, rkey, window+keyExpiryBuffer)
	if _, err := pipe.Exec(ctx); err != nil {
		return count, time.Time{}, false, fmt.Errorf("ratelimit: admit: %w", err)
	}

	return count, time.Time{}, true, nil
}

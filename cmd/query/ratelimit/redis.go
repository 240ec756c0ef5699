package ratelimit

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// allowScript 는 슬라이딩 윈도 판정을 원자적으로 수행한다. 만료 항목
// 제거, 카운트, 기록이 한 번에 일어나므로 다중 인스턴스 간 경합이 없다.
const allowScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window_start = tonumber(ARGV[2])
local capacity = tonumber(ARGV[3])
local window_ms = tonumber(ARGV[4])

redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
local count = redis.call('ZCARD', key)

if count < capacity then
	redis.call('ZADD', key, now, now .. ':' .. redis.call('INCR', key .. ':seq'))
	redis.call('PEXPIRE', key, window_ms + 1000)
	redis.call('PEXPIRE', key .. ':seq', window_ms + 1000)
	return {1, capacity - count - 1}
end
return {0, 0}
`

// RedisLimiter 는 Redis sorted set 기반 분산 슬라이딩 윈도 리미터다.
// Redis 장애 시 로컬 리미터로 내려앉아 서비스는 계속 동작한다(인스턴스별
// 한도가 되므로 일시적으로 한도가 느슨해질 수 있다).
type RedisLimiter struct {
	rdb      *redis.Client
	capacity int
	window   time.Duration
	fallback *LocalLimiter
}

func NewRedisLimiter(rdb *redis.Client, capacity int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		rdb:      rdb,
		capacity: capacity,
		window:   window,
		fallback: NewLocalLimiter(capacity, window),
	}
}

func (r *RedisLimiter) Allow(ctx context.Context, sessionID string) Decision {
	now := nowFn()
	windowStart := now.Add(-r.window)

	result, err := r.rdb.Eval(ctx, allowScript, []string{r.redisKey(sessionID)},
		float64(now.UnixMicro())/1e6,
		float64(windowStart.UnixMicro())/1e6,
		r.capacity,
		r.window.Milliseconds(),
	).Result()
	if err != nil {
		return r.fallback.Allow(ctx, sessionID)
	}

	res := result.([]interface{})
	return Decision{
		Allowed:   res[0].(int64) == 1,
		Remaining: int(res[1].(int64)),
		ResetAt:   now.Add(r.window),
	}
}

func (r *RedisLimiter) Occupancy(ctx context.Context, sessionID string) int {
	now := nowFn()
	windowStart := now.Add(-r.window)

	pipe := r.rdb.Pipeline()
	pipe.ZRemRangeByScore(ctx, r.redisKey(sessionID), "-inf", fmt.Sprintf("%f", float64(windowStart.UnixMicro())/1e6))
	countCmd := pipe.ZCard(ctx, r.redisKey(sessionID))
	if _, err := pipe.Exec(ctx); err != nil {
		return r.fallback.Occupancy(ctx, sessionID)
	}
	return int(countCmd.Val())
}

func (r *RedisLimiter) redisKey(sessionID string) string {
	return "lograg:ratelimit:" + sessionID
}

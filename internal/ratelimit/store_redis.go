package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript keeps one sorted set per key, scored by admission time in
// milliseconds. Purge, count and record run atomically on the server.
var slidingWindowScript = redis.NewScript(`
local key    = KEYS[1]
local now    = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit  = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)

if count >= limit then
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  local first = now
  if oldest[2] then first = tonumber(oldest[2]) end
  return {0, count, first}
end

redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, window)
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
return {1, count + 1, tonumber(oldest[2])}
`)

// RedisStore shares the window across service replicas.
type RedisStore struct {
	client redis.Scripter
	now    func() time.Time
}

func NewRedisStore(client redis.Scripter) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func (s *RedisStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	now := s.now()
	member := fmt.Sprintf("%d-%s", now.UnixNano(), uuid.NewString())

	raw, err := slidingWindowScript.Run(ctx, s.client, []string{key},
		now.UnixMilli(), window.Milliseconds(), limit, member,
	).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("redis sliding window: %w", err)
	}
	if len(raw) != 3 {
		return Result{}, fmt.Errorf("redis sliding window: unexpected reply of %d values", len(raw))
	}

	allowed, count, first := raw[0] == 1, int(raw[1]), raw[2]
	res := Result{
		Allowed: allowed,
		Limit:   limit,
		ResetAt: time.UnixMilli(first).Add(window),
	}
	if allowed {
		res.Remaining = limit - count
	}
	return res, nil
}

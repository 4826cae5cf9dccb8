package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// hitScript keeps one sorted set per key, scored by hit time in
// milliseconds. Pruning, counting and recording run atomically.
var hitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
	redis.call('ZADD', key, now, ARGV[4])
	count = count + 1
	allowed = 1
end
redis.call('PEXPIRE', key, window)

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local oldestScore = now
if oldest[2] then
	oldestScore = tonumber(oldest[2])
end
return {allowed, count, oldestScore}
`)

// RedisStore keeps windows in Redis so limits are shared by every instance
type RedisStore struct {
	client redis.Scripter
	prefix string
}

// NewRedisStore creates a store on client. Keys are namespaced under prefix.
func NewRedisStore(client redis.Scripter, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Hit(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (Window, error) {
	res, err := hitScript.Run(ctx, s.client, []string{s.prefix + key},
		now.UnixMilli(),
		window.Milliseconds(),
		limit,
		fmt.Sprintf("%d-%s", now.UnixNano(), uuid.New().String()),
	).Int64Slice()
	if err != nil {
		return Window{}, err
	}
	if len(res) != 3 {
		return Window{}, fmt.Errorf("unexpected rate limit script reply %v", res)
	}

	return Window{
		Allowed: res[0] == 1,
		Count:   int(res[1]),
		Oldest:  time.UnixMilli(res[2]),
	}, nil
}

// Cleanup is a no-op: every key expires with its window
func (s *RedisStore) Cleanup(context.Context, time.Time) error {
	return nil
}

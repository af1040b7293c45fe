package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// consumeScript runs the window update server-side so concurrent instances see one counter.
// The hash expires with its window, redis does the sweeping.
var consumeScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local period = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

local state = redis.call('HMGET', KEYS[1], 'count', 'reset', 'blocked')
local count = tonumber(state[1])
local reset = tonumber(state[2])
local blocked = state[3] == '1'

if count == nil or reset == nil or now >= reset then
	count = 1
	reset = now + period
	blocked = false
elseif not blocked then
	count = count + 1
	if count > limit then
		blocked = true
	end
end

local flag = 0
if blocked then
	flag = 1
end

redis.call('HSET', KEYS[1], 'count', count, 'reset', reset, 'blocked', flag)
redis.call('PEXPIRE', KEYS[1], math.max(reset - now, 1))
return {count, reset, flag}
`)

// RedisStore shares windows between server instances
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: "cadence:rl:"}
}

func (s *RedisStore) Consume(ctx context.Context, key string, rule Rule, now time.Time) (Entry, error) {
	res, err := consumeScript.Run(ctx, s.rdb,
		[]string{s.prefix + rule.Name + ":" + key},
		now.UnixMilli(), rule.Period.Milliseconds(), rule.Limit,
	).Int64Slice()
	if err != nil {
		return Entry{}, fmt.Errorf("redis consume: %w", err)
	}
	if len(res) != 3 {
		return Entry{}, fmt.Errorf("redis consume: unexpected reply %v", res)
	}

	return Entry{
		Count:   res[0],
		ResetAt: time.UnixMilli(res[1]),
		Blocked: res[2] == 1,
	}, nil
}

var _ Store = (*RedisStore)(nil)

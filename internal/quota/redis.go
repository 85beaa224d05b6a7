package quota

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrScript increments a counter and pins its expiry on first use.
// KEYS[1] = counter key
// ARGV[1] = expiry as unix milliseconds
var incrScript = redis.NewScript(`
		local n = redis.call('INCR', KEYS[1])
		if n == 1 then
			redis.call('PEXPIREAT', KEYS[1], ARGV[1])
		end
		return n
`)

// RedisCounter keeps counters in Redis so every replica sees the same
// totals.
type RedisCounter struct {
	rdb *redis.Client
}

func NewRedisCounter(rdb *redis.Client) *RedisCounter {
	return &RedisCounter{rdb: rdb}
}

func (c *RedisCounter) Get(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (c *RedisCounter) Incr(ctx context.Context, key string, expireAt time.Time) (int64, error) {
	return incrScript.Run(ctx, c.rdb, []string{key}, expireAt.UnixMilli()).Int64()
}

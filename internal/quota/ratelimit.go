package quota

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindowScript admits a request if fewer than limit requests were
// admitted under key during the last window.
// KEYS[1] = Redis key
// ARGV[1] = current unix timestamp (nanoseconds)
// ARGV[2] = window size in nanoseconds
// ARGV[3] = limit
// ARGV[4] = unique member for this request
// Returns: 1 if allowed, 0 if rate limited.
var slidingWindowScript = redis.NewScript(`
		local key    = KEYS[1]
		local now    = tonumber(ARGV[1])
		local window = tonumber(ARGV[2])
		local limit  = tonumber(ARGV[3])

		redis.call('ZREMRANGEBYSCORE', key, 0, now - window)

		local count = redis.call('ZCARD', key)
		if count >= limit then
			return 0
		end

		redis.call('ZADD', key, now, ARGV[4])
		redis.call('PEXPIRE', key, math.ceil(window / 1000000))
		return 1
`)

// RPMLimiter bounds how many analyses one user may request per minute.
// It is a burst guard in front of the monthly allowance.
type RPMLimiter struct {
	rdb   *redis.Client
	limit int
	now   func() time.Time
	seq   func() string
}

// NewRPMLimiter returns a limiter admitting limit requests per user per
// minute. seq must return a value unique per call.
func NewRPMLimiter(rdb *redis.Client, limit int, seq func() string) *RPMLimiter {
	return &RPMLimiter{rdb: rdb, limit: limit, now: time.Now, seq: seq}
}

// Allow reports whether userID may make another request now. Redis errors
// admit the request.
func (r *RPMLimiter) Allow(ctx context.Context, userID string) (bool, error) {
	if r == nil || r.limit <= 0 {
		return true, nil
	}

	result, err := slidingWindowScript.Run(ctx, r.rdb,
		[]string{"ratelimit:user:" + userID + ":rpm"},
		r.now().UnixNano(), time.Minute.Nanoseconds(), r.limit, r.seq(),
	).Int()
	if err != nil {
		return true, err
	}
	return result == 1, nil
}

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript prunes, counts and conditionally records in one atomic
// step. KEYS[1] is the log key; ARGV is now (ms), window (ms), max, member.
var slidingWindowScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], 0, tonumber(ARGV[1]) - tonumber(ARGV[2]))
local count = redis.call('ZCARD', KEYS[1])
if count >= tonumber(ARGV[3]) then
  return 0
end
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return 1
`)

// RedisSlidingWindow shares request logs across processes through a Redis
// sorted set per identifier.
type RedisSlidingWindow struct {
	client *redis.Client
	cfg    Config
	prefix string
	now    func() time.Time
}

// NewRedisSlidingWindow returns a limiter storing logs under prefix+id.
func NewRedisSlidingWindow(client *redis.Client, cfg Config, prefix string) *RedisSlidingWindow {
	return &RedisSlidingWindow{client: client, cfg: cfg, prefix: prefix, now: time.Now}
}

// Allow applies the sliding window atomically on the Redis server.
func (r *RedisSlidingWindow) Allow(ctx context.Context, id string) (bool, error) {
	nowMs := r.now().UnixMilli()
	member := fmt.Sprintf("%d-%s", nowMs, uuid.NewString())

	res, err := slidingWindowScript.Run(ctx, r.client,
		[]string{r.prefix + id},
		nowMs, r.cfg.Window.Milliseconds(), r.cfg.MaxRequests, member,
	).Int()
	if err != nil {
		return false, fmt.Errorf("RedisSlidingWindow.Allow: %w", err)
	}
	return res == 1, nil
}

// Connect opens a Redis client and pings it, retrying with exponential
// backoff up to maxRetries times.
func Connect(ctx context.Context, addr, password string, maxRetries int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:            addr,
		Password:        password,
		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
	})

	var err error
	for i := 0; i < max(maxRetries, 1); i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				client.Close()
				return nil, ctx.Err()
			case <-time.After(time.Duration(1<<uint(i)) * time.Second):
			}
		}
		if err = client.Ping(ctx).Err(); err == nil {
			return client, nil
		}
	}

	client.Close()
	return nil, fmt.Errorf("Connect: redis unreachable after %d attempts: %w", max(maxRetries, 1), err)
}

package abuse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript increments the key and starts its expiry on the first hit only, so
// later hits never extend the window. It returns the count and the remaining TTL in ms.
var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

var errUnexpectedReply = errors.New("abuse: unexpected redis reply")

// RedisStore shares fixed-window counters across replicas through Redis.
type RedisStore struct {
	client redis.Scripter
	prefix string
	clock  func() time.Time
}

// RedisStoreConfig describes a RedisStore.
type RedisStoreConfig struct {
	Client redis.Scripter
	Prefix string
	Clock  func() time.Time
}

// NewRedisStore builds a RedisStore on top of an existing client.
func NewRedisStore(cfg RedisStoreConfig) (*RedisStore, error) {
	if cfg.Client == nil {
		return nil, errMissingStore
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "atlacatl:"
	}
	return &RedisStore{client: cfg.Client, prefix: prefix, clock: clock}, nil
}

// Increment implements CounterStore.
func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (Window, error) {
	windowMillis := window.Milliseconds()
	if windowMillis <= 0 {
		windowMillis = 1
	}
	values, err := fixedWindowScript.Run(ctx, s.client, []string{s.prefix + key}, windowMillis).Int64Slice()
	if err != nil {
		return Window{}, fmt.Errorf("abuse: redis increment %s: %w", key, err)
	}
	if len(values) != 2 {
		return Window{}, fmt.Errorf("%w: %v", errUnexpectedReply, values)
	}
	return Window{
		Count:   values[0],
		ResetAt: s.clock().Add(time.Duration(values[1]) * time.Millisecond),
	}, nil
}

// NewRedisClient opens a go-redis client and verifies it with PING.
func NewRedisClient(ctx context.Context, address, password string, database int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         address,
		Password:     password,
		DB:           database,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("abuse: connect redis %s: %w", address, err)
	}
	return client, nil
}

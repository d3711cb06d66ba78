package debounce

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "evoface:debounce:"

// acquireScript compares and sets the last punch time atomically.
// KEYS[1] key, ARGV[1] now (ms), ARGV[2] window (ms), ARGV[3] ttl (ms).
var acquireScript = goredis.NewScript(`
local last = redis.call('GET', KEYS[1])
if last and (tonumber(ARGV[1]) - tonumber(last)) < tonumber(ARGV[2]) then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

// releaseScript deletes the key only while it still holds ARGV[1].
var releaseScript = goredis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisState keeps debounce state in Redis so it survives restarts and is
// shared between processes. Keys expire after the window.
type RedisState struct {
	rdb    *goredis.Client
	logger *zap.Logger
}

// OpenRedis connects to the Redis URL and checks the connection.
func OpenRedis(url string, logger *zap.Logger) (*RedisState, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing REDIS_URL: %w", err)
	}
	rdb := goredis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("redis connected", zap.String("addr", opts.Addr))
	return NewRedisState(rdb, logger), nil
}

// NewRedisState wraps an existing client.
func NewRedisState(rdb *goredis.Client, logger *zap.Logger) *RedisState {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisState{rdb: rdb, logger: logger}
}

// TryAcquire implements State.
func (s *RedisState) TryAcquire(ctx context.Context, employeeID string, now time.Time, window time.Duration) (bool, error) {
	ttl := max(window.Milliseconds(), 1)
	res, err := acquireScript.Run(ctx, s.rdb,
		[]string{keyPrefix + employeeID},
		now.UnixMilli(), window.Milliseconds(), ttl,
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis debounce: %w", err)
	}
	return res == 1, nil
}

// Last implements State.
func (s *RedisState) Last(ctx context.Context, employeeID string) (time.Time, bool, error) {
	v, err := s.rdb.Get(ctx, keyPrefix+employeeID).Result()
	if errors.Is(err, goredis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis debounce: %w", err)
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis debounce: malformed value %q: %w", v, err)
	}
	return time.UnixMilli(ms), true, nil
}

// Release implements State.
func (s *RedisState) Release(ctx context.Context, employeeID string, emittedAt time.Time) error {
	err := releaseScript.Run(ctx, s.rdb,
		[]string{keyPrefix + employeeID},
		strconv.FormatInt(emittedAt.UnixMilli(), 10),
	).Err()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("redis debounce: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisState) Close() error {
	return s.rdb.Close()
}

package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
)

// versionTTL outlives any in-flight read so a bumped version is still
// visible when that read tries to populate.
const versionTTL = 24 * time.Hour

var setIfVersion = redis.NewScript(`
local v = redis.call('GET', KEYS[2])
if not v then v = '0' end
if v ~= ARGV[1] then return 0 end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// RedisBackend stores entries in Redis behind a circuit breaker, so a
// Redis outage costs one fast failure per call instead of a dial timeout.
type RedisBackend struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker[any]
}

func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{
		client: client,
		breaker: gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
			Name:        "availability-cache",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     10 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
		}),
	}
}

func versionKey(key string) string { return key + ":version" }

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	res, err := b.breaker.Execute(func() (any, error) {
		v, err := b.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return v, err
	})
	if err != nil {
		return nil, false, err
	}
	v, ok := res.([]byte)
	return v, ok, nil
}

func (b *RedisBackend) Version(ctx context.Context, key string) (uint64, error) {
	res, err := b.breaker.Execute(func() (any, error) {
		v, err := b.client.Get(ctx, versionKey(key)).Uint64()
		if errors.Is(err, redis.Nil) {
			return uint64(0), nil
		}
		return v, err
	})
	if err != nil {
		return 0, err
	}
	return res.(uint64), nil
}

func (b *RedisBackend) SetIfVersion(ctx context.Context, key string, version uint64, value []byte, ttl time.Duration) (bool, error) {
	res, err := b.breaker.Execute(func() (any, error) {
		return setIfVersion.Run(ctx, b.client,
			[]string{key, versionKey(key)},
			strconv.FormatUint(version, 10), value, ttl.Milliseconds(),
		).Int()
	})
	if err != nil {
		return false, err
	}
	return res.(int) == 1, nil
}

func (b *RedisBackend) Invalidate(ctx context.Context, keys ...string) error {
	_, err := b.breaker.Execute(func() (any, error) {
		return b.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
			for _, key := range keys {
				p.Incr(ctx, versionKey(key))
				p.Expire(ctx, versionKey(key), versionTTL)
				p.Del(ctx, key)
			}
			return nil
		})
	})
	return err
}

func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

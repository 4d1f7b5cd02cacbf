package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/roberjo/AuraStream-sub000/internal/domain"
)

// compareAndSwapScript replaces KEYS[1] only while it still holds ARGV[1].
// ARGV: [1]=expected, [2]=replacement, [3]=ttl in ms (0 = no expiry)
var compareAndSwapScript = goredis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current == false or current ~= ARGV[1] then
	return 0
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ttl)
else
	redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

// Store implements domain.KeyValueStore on plain Redis strings. Keys are namespaced
// with prefix so several stores can share a database.
type Store struct {
	rdb    *goredis.Client
	prefix string
}

var _ domain.KeyValueStore = (*Store)(nil)

func NewStore(rdb *goredis.Client, prefix string) *Store {
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) key(k string) string { return s.prefix + k }

// expiration maps the port's "ttl <= 0 means no expiry" onto go-redis, where 0 does.
func expiration(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	return ttl
}

// pxMillis renders ttl for the compare-and-swap script. A positive ttl never rounds
// down to 0, which the script reads as no expiry.
func pxMillis(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return max(ttl.Milliseconds(), 1)
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return val, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, s.key(key), value, expiration(ttl)).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *Store) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, s.key(key), value, expiration(ttl)).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

func (s *Store) CompareAndSwap(ctx context.Context, key string, old, value []byte, ttl time.Duration) (bool, error) {
	swapped, err := compareAndSwapScript.Run(ctx, s.rdb, []string{s.key(key)},
		old,
		value,
		strconv.FormatInt(pxMillis(ttl), 10),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis compare-and-swap: %w", err)
	}
	return swapped == 1, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

const scanCount = 100

// ScanKeys calls fn for every key starting with prefix, without the store's
// namespace. Keys written during the scan may or may not be visited.
func (s *Store) ScanKeys(ctx context.Context, prefix string, fn func(key string) error) error {
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, s.key(prefix)+"*", scanCount).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		for _, k := range keys {
			if err := fn(strings.TrimPrefix(k, s.prefix)); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"marketbrief/backend-go/internal/config"
)

// Cache stores raw payloads by key with a TTL. A miss and a backend error
// look the same to callers: both mean "fetch live".
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Backend() string
}

const redisKeyPrefix = "marketbrief:"

// RedisCache shares entries between replicas. Keys are namespaced so the
// service can live on a shared Redis.
type RedisCache struct {
	client *redis.Client
	log    zerolog.Logger
}

// NewCache returns a Redis-backed cache when REDIS_URL is set and reachable,
// otherwise the in-process memory cache.
func NewCache(cfg config.Config, log zerolog.Logger) Cache {
	if cfg.RedisURL == "" {
		return NewMemoryCache()
	}
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Warn().Err(err).Msg("invalid REDIS_URL, using memory cache")
		return NewMemoryCache()
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", opt.Addr).Msg("redis unreachable, using memory cache")
		_ = client.Close()
		return NewMemoryCache()
	}
	return &RedisCache{client: client, log: log}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	b, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	switch {
	case err == nil:
		return b, true
	case !errors.Is(err, redis.Nil):
		r.log.Warn().Err(err).Str("key", key).Msg("redis get failed")
	}
	return nil, false
}

func (r *RedisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return r.client.Set(ctx, redisKeyPrefix+key, val, ttl).Err()
}

func (r *RedisCache) Backend() string { return "redis" }

func (r *RedisCache) Close() error { return r.client.Close() }

// MemoryCache is the single-process default. Expired entries are dropped
// lazily on read.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memEntry
	now     func() time.Time
}

type memEntry struct {
	val     []byte
	expires time.Time // zero means no expiry
}

func (e memEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memEntry), now: time.Now}
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if e.expired(m.now()) {
		delete(m.entries, key)
		return nil, false
	}
	return e.val, true
}

func (m *MemoryCache) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	e := memEntry{val: val}
	m.mu.Lock()
	defer m.mu.Unlock()
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

func (m *MemoryCache) Backend() string { return "memory" }

// MarshalCache and UnmarshalCache fix the wire format of cached values.
func MarshalCache(v any) ([]byte, error) {
	return json.Marshal(v)
}

func UnmarshalCache(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

package intercept

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/crucible/logger"
	"github.com/xraph/crucible/pkg/common"
	"github.com/xraph/crucible/pkg/metadata"
	"github.com/xraph/crucible/pkg/metrics"
)

// Store is the cache backend of the caching interceptor.
type Store interface {
	// Get returns the cached value for key and whether it was present.
	Get(ctx context.Context, key string) (any, bool, error)

	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// =============================================================================
// MEMORY STORE
// =============================================================================

type memoryEntry struct {
	value   any
	expires time.Time
}

// MemoryStore is an in-process Store with per-entry TTL. Expired entries
// are dropped lazily on read.
type MemoryStore struct {
	entries map[string]memoryEntry
	mu      sync.RWMutex
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (any, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if !entry.expires.IsZero() && time.Now().After(entry.expires) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expires = time.Now().Add(ttl)
	}

	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	return nil
}

// Len returns the number of entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// =============================================================================
// REDIS STORE
// =============================================================================

// Codec serializes cached values for out-of-process storage.
type Codec interface {
	Encode(value any) ([]byte, error)
	Decode(data []byte) (any, error)
}

type jsonCodec struct{}

func (jsonCodec) Encode(value any) ([]byte, error) { return json.Marshal(value) }

func (jsonCodec) Decode(data []byte) (any, error) {
	var value any
	err := json.Unmarshal(data, &value)
	return value, err
}

// RedisStore is a Store backed by Redis. Values round-trip through the
// codec, JSON by default, so cached results must be serializable and
// consumers must accept the decoded generic form.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	codec  Codec
}

// NewRedisStore creates a Redis-backed store. Keys are namespaced under
// prefix; a nil codec defaults to JSON.
func NewRedisStore(client redis.UniversalClient, prefix string, codec Codec) *RedisStore {
	if codec == nil {
		codec = jsonCodec{}
	}
	return &RedisStore{client: client, prefix: prefix, codec: codec}
}

func (s *RedisStore) key(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}

func (s *RedisStore) Get(ctx context.Context, key string) (any, bool, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	value, err := s.codec.Decode(data)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := s.codec.Encode(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(key), data, ttl).Err()
}

// =============================================================================
// CACHING INTERCEPTOR
// =============================================================================

// CachingConfig configures the caching interceptor.
type CachingConfig struct {
	Store      Store
	DefaultTTL time.Duration
	Priority   int
	Logger     common.Logger
	Metrics    common.Metrics
}

// CachingInterceptor serves repeated invocations of cached components
// from a Store. A hit short-circuits the chain: neither inner
// interceptors nor the real method run. Store failures degrade to a
// miss, never to a failed call.
type CachingInterceptor struct {
	store      Store
	defaultTTL time.Duration
	priority   int
	logger     common.Logger
	metrics    common.Metrics
}

// NewCachingInterceptor creates a caching interceptor. A nil store
// defaults to an in-process memory store.
func NewCachingInterceptor(config CachingConfig) *CachingInterceptor {
	store := config.Store
	if store == nil {
		store = NewMemoryStore()
	}
	l := config.Logger
	if l == nil {
		l = logger.NewNoopLogger()
	}
	m := config.Metrics
	if m == nil {
		m = metrics.NewNoopMetrics()
	}
	ttl := config.DefaultTTL
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &CachingInterceptor{
		store:      store,
		defaultTTL: ttl,
		priority:   config.Priority,
		logger:     l,
		metrics:    m,
	}
}

func (c *CachingInterceptor) Name() string { return "caching" }

func (c *CachingInterceptor) Marker() string { return metadata.Cached.Name }

func (c *CachingInterceptor) Priority() int { return c.priority }

func (c *CachingInterceptor) Invoke(inv *Invocation, proceed Proceed) (any, error) {
	key := cacheKey(inv)

	cached, hit, err := c.store.Get(inv.Context, key)
	if err != nil {
		c.logger.Warn("cache read failed",
			logger.String("component", inv.Component),
			logger.String("key", key),
			logger.Error(err),
		)
	}
	if hit {
		c.metrics.Counter("crucible.intercept.cache_hits",
			common.Label{Name: "component", Value: inv.Component}).Inc()
		return cached, nil
	}
	c.metrics.Counter("crucible.intercept.cache_misses",
		common.Label{Name: "component", Value: inv.Component}).Inc()

	result, err := proceed()
	if err != nil {
		return nil, err
	}

	if err := c.store.Set(inv.Context, key, result, c.ttl(inv)); err != nil {
		c.logger.Warn("cache write failed",
			logger.String("component", inv.Component),
			logger.String("key", key),
			logger.Error(err),
		)
	}
	return result, nil
}

// ttl reads the marker's ttlSeconds argument, falling back to the
// configured default.
func (c *CachingInterceptor) ttl(inv *Invocation) time.Duration {
	args := inv.MarkerArgs(metadata.Cached.Name)
	switch seconds := args["ttlSeconds"].(type) {
	case int:
		return time.Duration(seconds) * time.Second
	case float64:
		return time.Duration(seconds * float64(time.Second))
	}
	return c.defaultTTL
}

func cacheKey(inv *Invocation) string {
	return fmt.Sprintf("%s.%s(%v)", inv.Component, inv.Method, inv.Args)
}

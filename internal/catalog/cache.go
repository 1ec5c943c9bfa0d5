package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"storefront/internal/model"
)

// Cache stores serialized catalog responses.
type Cache interface {
	// Get returns the cached value; ok is false on a miss.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisCache implements Cache on a Redis client.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps an existing Redis client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get implements Cache. redis.Nil is a miss, not an error.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// DefaultCacheTTL is used when CacheConfig.TTL is zero.
const DefaultCacheTTL = 5 * time.Minute

// cacheJitter spreads expirations by up to this fraction of the TTL so keys
// written together do not expire together.
const cacheJitter = 0.1

// CacheConfig configures CachedService.
type CacheConfig struct {
	TTL    time.Duration
	Prefix string // Key prefix, e.g. "storefront:"
}

// CachedService is a read-through cache in front of another Service.
// Not-found search results are cached too. Cache failures are logged and
// fall through to the wrapped service. Concurrent misses for the same key
// share one upstream call.
type CachedService struct {
	next   Service
	cache  Cache
	ttl    time.Duration
	prefix string
	logger *slog.Logger
	group  singleflight.Group
}

// NewCachedService wraps next with cache.
func NewCachedService(next Service, cache Cache, cfg CacheConfig, logger *slog.Logger) *CachedService {
	if cfg.TTL == 0 {
		cfg.TTL = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CachedService{
		next:   next,
		cache:  cache,
		ttl:    cfg.TTL,
		prefix: cfg.Prefix,
		logger: logger,
	}
}

// cacheEntry is the stored form of a catalog response.
type cacheEntry struct {
	Products []model.Product `json:"products"`
	NotFound bool            `json:"not_found,omitempty"`
}

// FetchAll implements Service.
func (s *CachedService) FetchAll(ctx context.Context) ([]model.Product, error) {
	return s.load(ctx, s.prefix+"products:all", s.next.FetchAll)
}

// Search implements Service.
func (s *CachedService) Search(ctx context.Context, query string) ([]model.Product, error) {
	key := s.prefix + "products:search:" + url.QueryEscape(query)
	return s.load(ctx, key, func(ctx context.Context) ([]model.Product, error) {
		return s.next.Search(ctx, query)
	})
}

func (s *CachedService) load(ctx context.Context, key string, fetch func(context.Context) ([]model.Product, error)) ([]model.Product, error) {
	if entry, ok := s.get(ctx, key); ok {
		if entry.NotFound {
			return nil, model.NewNotFoundError("products")
		}
		return entry.Products, nil
	}

	// The shared fetch outlives any one caller; each caller stops waiting
	// when its own context ends.
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		products, err := fetch(shared)
		switch {
		case err == nil:
			s.set(shared, key, cacheEntry{Products: products})
		case model.IsNotFound(err):
			s.set(shared, key, cacheEntry{NotFound: true})
		}
		return products, err
	})

	select {
	case res := <-ch:
		products, _ := res.Val.([]model.Product)
		return products, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *CachedService) get(ctx context.Context, key string) (cacheEntry, bool) {
	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("catalog cache get failed",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return cacheEntry{}, false
	}
	if !ok {
		return cacheEntry{}, false
	}

	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		s.logger.Warn("catalog cache entry corrupt",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return cacheEntry{}, false
	}
	return entry, true
}

func (s *CachedService) set(ctx context.Context, key string, entry cacheEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		s.logger.Warn("catalog cache marshal failed",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return
	}
	if err := s.cache.Set(ctx, key, data, jitter(s.ttl)); err != nil {
		s.logger.Warn("catalog cache set failed",
			slog.String("key", key),
			slog.String("error", err.Error()))
	}
}

// jitter returns d stretched by a random amount in [0, cacheJitter*d).
func jitter(d time.Duration) time.Duration {
	return d + time.Duration(rand.Float64()*cacheJitter*float64(d))
}

// RedisConfig holds connection settings for the catalog cache.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
}

// NewRedisClient connects to Redis and verifies the connection with PING.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/models"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const catalogCacheKey = "catalog:products"

type RedisRepository struct {
	client *redis.Client
	config *config.RedisConfig
}

func NewRedisRepository(cfg *config.RedisConfig) *RedisRepository {
	return &RedisRepository{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
			PoolSize: cfg.PoolSize,
		}),
		config: cfg,
	}
}

func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRepository) Del(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

func (r *RedisRepository) SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, expiration).Err()
}

// GetJSON returns redis.Nil when the key is absent.
func (r *RedisRepository) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := r.client.Get(ctx, key).Result()
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}

// JSONCache is the subset of RedisRepository the catalog cache needs.
type JSONCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// CachedCatalog reads the catalog through a JSON cache. Cache failures are
// logged and fall back to the underlying store; they never fail a request.
//
// A cache fill holds the read lock from the store read until the cache write,
// and a save holds the write lock across the store write and invalidation, so
// a fill that started before a save can never repopulate the old catalog.
type CachedCatalog struct {
	mu     sync.RWMutex
	inner  CatalogStore
	cache  JSONCache
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedCatalog(inner CatalogStore, cache JSONCache, ttl time.Duration, logger *zap.Logger) *CachedCatalog {
	return &CachedCatalog{inner: inner, cache: cache, ttl: ttl, logger: logger}
}

func (c *CachedCatalog) ListProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := c.cache.GetJSON(ctx, catalogCacheKey, &products)
	if err == nil {
		return products, nil
	}
	if !errors.Is(err, redis.Nil) {
		c.logger.Warn("Catalog cache read failed", zap.Error(err))
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	products, err = c.inner.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	if err := c.cache.SetJSON(ctx, catalogCacheKey, products, c.ttl); err != nil {
		c.logger.Warn("Catalog cache write failed", zap.Error(err))
	}
	return products, nil
}

func (c *CachedCatalog) SaveProducts(ctx context.Context, products []models.Product) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.inner.SaveProducts(ctx, products); err != nil {
		return err
	}
	if err := c.cache.Del(ctx, catalogCacheKey); err != nil {
		c.logger.Warn("Catalog cache invalidation failed", zap.Error(err))
	}
	return nil
}

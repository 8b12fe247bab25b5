package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"apotekku/backend/internal/domain"
)

const (
	catalogKey       = "lookup:catalog"
	batchesKeyPrefix = "lookup:batches:"
)

type RedisLookupCache struct {
	client *redis.Client
}

func NewRedisLookupCache(addr string, password string, db int) *RedisLookupCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisLookupCache{client: client}
}

func (c *RedisLookupCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisLookupCache) Close() error {
	return c.client.Close()
}

func (c *RedisLookupCache) GetCatalog(ctx context.Context) ([]domain.CatalogItem, bool, error) {
	var items []domain.CatalogItem
	ok, err := c.get(ctx, catalogKey, &items)
	return items, ok, err
}

func (c *RedisLookupCache) SetCatalog(ctx context.Context, items []domain.CatalogItem, ttl time.Duration) error {
	return c.set(ctx, catalogKey, items, ttl)
}

func (c *RedisLookupCache) GetBatches(ctx context.Context, medicineID string) ([]domain.SupplyBatch, bool, error) {
	var batches []domain.SupplyBatch
	ok, err := c.get(ctx, batchesKeyPrefix+medicineID, &batches)
	return batches, ok, err
}

func (c *RedisLookupCache) SetBatches(ctx context.Context, medicineID string, batches []domain.SupplyBatch, ttl time.Duration) error {
	return c.set(ctx, batchesKeyPrefix+medicineID, batches, ttl)
}

func (c *RedisLookupCache) get(ctx context.Context, key string, out any) (bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisLookupCache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

package redis_repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/deepresearch/tools/web_search/models"
)

// redisSearchCache implements web_search.Cache using Redis
type redisSearchCache struct {
	client *redis.Client
	prefix string
}

func NewRedisSearchCache(client *redis.Client, prefix string) *redisSearchCache {
	return &redisSearchCache{client: client, prefix: prefix}
}

func (r *redisSearchCache) Get(ctx context.Context, key string) ([]models.Result, bool, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var results []models.Result
	if err := json.Unmarshal(val, &results); err != nil {
		return nil, false, err
	}
	return results, true, nil
}

func (r *redisSearchCache) Set(ctx context.Context, key string, results []models.Result, ttl time.Duration) error {
	data, err := json.Marshal(results)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.prefix+key, data, ttl).Err()
}

func (r *redisSearchCache) Close() error {
	return r.client.Close()
}

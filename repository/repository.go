package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/mohammad-safakhou/deepresearch/repository/redis_repository"
	"github.com/mohammad-safakhou/deepresearch/tools/web_search"
)

// SearchCache is a web_search.Cache backed by a closable connection.
type SearchCache interface {
	web_search.Cache
	Close() error
}

type RepoType string

const (
	RepoTypeRedis RepoType = "redis"

	searchKeyPrefix = "deepresearch:"
)

type RedisOptions struct {
	Host     string
	Port     string
	Password string
	DB       int
	Timeout  time.Duration
}

func NewSearchCache(ctx context.Context, t RepoType, opts RedisOptions) (SearchCache, error) {
	switch t {
	case RepoTypeRedis:
		if opts.Port == "" {
			opts.Port = "6379"
		}
		if opts.Timeout <= 0 {
			opts.Timeout = 5 * time.Second
		}
		c, err := redis_repository.Conn(ctx, opts.Host, opts.Port, opts.Password, opts.DB, opts.Timeout)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		return redis_repository.NewRedisSearchCache(c, searchKeyPrefix), nil
	}
	return nil, fmt.Errorf("invalid repository type: %s", t)
}

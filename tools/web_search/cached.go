package web_search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/mohammad-safakhou/deepresearch/tools/web_search/models"
)

// Cache stores search results by key.
type Cache interface {
	Get(ctx context.Context, key string) ([]models.Result, bool, error)
	Set(ctx context.Context, key string, results []models.Result, ttl time.Duration) error
}

// Cached serves identical queries from a cache within TTL. Cache failures
// are logged and fall through to the backend.
type Cached struct {
	backend WebSearcher
	cache   Cache
	ttl     time.Duration
	logger  *log.Logger
}

func NewCached(backend WebSearcher, cache Cache, ttl time.Duration, logger *log.Logger) *Cached {
	if logger == nil {
		logger = log.New(log.Writer(), "[SEARCH] ", log.LstdFlags)
	}
	return &Cached{backend: backend, cache: cache, ttl: ttl, logger: logger}
}

func (c *Cached) Search(ctx context.Context, q models.Query) ([]models.Result, error) {
	key := CacheKey(q)
	if res, ok, err := c.cache.Get(ctx, key); err != nil {
		c.logger.Printf("search cache get: %v", err)
	} else if ok {
		return res, nil
	}
	res, err := c.backend.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(res) > 0 {
		if err := c.cache.Set(ctx, key, res, c.ttl); err != nil {
			c.logger.Printf("search cache set: %v", err)
		}
	}
	return res, nil
}

func (c *Cached) Ping(ctx context.Context) error {
	return Ping(ctx, c.backend)
}

// CacheKey derives a stable key from the normalised query.
func CacheKey(q models.Query) string {
	q.Text = strings.Join(strings.Fields(strings.ToLower(q.Text)), " ")
	q.Language = strings.ToLower(q.Language)
	raw, _ := json.Marshal(q)
	sum := sha256.Sum256(raw)
	return "search:" + hex.EncodeToString(sum[:])
}

package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"salesync/backend/internal/domain"
)

// LocalSummaryCache keeps summaries in process memory. It backs single-instance
// deployments that run without Redis.
type LocalSummaryCache struct {
	mu    sync.Mutex
	gen   int64
	items *gocache.Cache
}

func NewLocalSummaryCache(defaultTTL time.Duration) *LocalSummaryCache {
	return &LocalSummaryCache{items: gocache.New(defaultTTL, 2*defaultTTL)}
}

func localKey(gen int64, filter domain.DateFilter) string {
	return fmt.Sprintf("%d:%s", gen, filter.CacheKey())
}

func (c *LocalSummaryCache) Generation(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen, nil
}

func (c *LocalSummaryCache) Get(_ context.Context, gen int64, filter domain.DateFilter) (*domain.Summary, bool, error) {
	v, ok := c.items.Get(localKey(gen, filter))
	if !ok {
		return nil, false, nil
	}
	summary, ok := v.(domain.Summary)
	if !ok {
		return nil, false, nil
	}
	return &summary, true, nil
}

// Set drops the value when gen is no longer current.
func (c *LocalSummaryCache) Set(_ context.Context, gen int64, filter domain.DateFilter, value *domain.Summary, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return nil
	}
	c.items.Set(localKey(gen, filter), *value, ttl)
	return nil
}

func (c *LocalSummaryCache) Invalidate(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.items.Flush()
	return nil
}

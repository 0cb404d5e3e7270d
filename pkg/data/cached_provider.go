package data

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ducminhle1904/tradecore/pkg/types"
)

// MemoryCache implements DataCache using in-memory storage
type MemoryCache struct {
	cache map[string][]types.Bar
	mutex sync.RWMutex
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{cache: make(map[string][]types.Bar)}
}

// Get returns a copy of the cached bars
func (c *MemoryCache) Get(key string) ([]types.Bar, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	bars, ok := c.cache[key]
	if !ok {
		return nil, false
	}
	return append([]types.Bar(nil), bars...), true
}

// Set stores a copy of bars
func (c *MemoryCache) Set(key string, bars []types.Bar) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.cache[key] = append([]types.Bar(nil), bars...)
}

func (c *MemoryCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.cache = make(map[string][]types.Bar)
}

func (c *MemoryCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.cache)
}

// CachedSource wraps another BarSource, caching results by symbol and range.
// Errors are not cached.
type CachedSource struct {
	source BarSource
	cache  DataCache
}

// NewCachedSource wraps source with an in-memory cache
func NewCachedSource(source BarSource) *CachedSource {
	return NewCachedSourceWithCache(source, NewMemoryCache())
}

// NewCachedSourceWithCache wraps source with cache
func NewCachedSourceWithCache(source BarSource, cache DataCache) *CachedSource {
	return &CachedSource{source: source, cache: cache}
}

func (c *CachedSource) Name() string { return "cached(" + c.source.Name() + ")" }

func (c *CachedSource) BarsFor(ctx context.Context, symbol string, start, end time.Time) ([]types.Bar, error) {
	key := fmt.Sprintf("%s|%d|%d", symbol, start.UnixNano(), end.UnixNano())
	if bars, ok := c.cache.Get(key); ok {
		return bars, nil
	}
	bars, err := c.source.BarsFor(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, bars)
	return bars, nil
}

// Cache exposes the underlying cache
func (c *CachedSource) Cache() DataCache { return c.cache }

package service

import (
	"container/list"
	"sync"

	"github.com/finsight/backend/internal/model"
)

// DefaultCacheSize is the bounded capacity of the forecast cache.
const DefaultCacheSize = 32

// cacheKey identifies one forecast result. LastTxDay is the ordinal day of
// the user's most recent transaction, so any new transaction changes the
// key and invalidates implicitly.
type cacheKey struct {
	UserID    string
	Horizon   int
	Model     string
	LastTxDay int64
}

type cacheEntry struct {
	key    cacheKey
	points []model.ForecastPoint
}

// ForecastCache is a mutex-guarded LRU over computed forecasts. Failed
// computations are never stored.
type ForecastCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	entries  map[cacheKey]*list.Element
}

// NewForecastCache creates a cache with the given capacity; values < 1 fall
// back to DefaultCacheSize.
func NewForecastCache(capacity int) *ForecastCache {
	if capacity < 1 {
		capacity = DefaultCacheSize
	}
	return &ForecastCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[cacheKey]*list.Element),
	}
}

// Get returns the cached forecast for key and marks it recently used.
func (c *ForecastCache) Get(key cacheKey) ([]model.ForecastPoint, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).points, true
}

// Put stores a forecast, evicting the least recently used entry when full.
func (c *ForecastCache) Put(key cacheKey, points []model.ForecastPoint) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).points = points
		c.order.MoveToFront(el)
		return
	}
	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, points: points})
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

// Len reports the number of cached forecasts.
func (c *ForecastCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

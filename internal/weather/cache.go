package weather

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Cache serves the outdoor temperature from memory while it is younger than
// the TTL. Concurrent callers that miss share one fetch.
type Cache struct {
	provider Provider
	ttl      time.Duration
	fallback float64
	now      func() time.Time

	group singleflight.Group

	mu        sync.RWMutex
	value     float64
	fetchedAt time.Time
	hasValue  bool
}

func NewCache(provider Provider, ttl time.Duration, fallback float64) *Cache {
	return &Cache{
		provider: provider,
		ttl:      ttl,
		fallback: fallback,
		now:      time.Now,
	}
}

// CurrentTemperature never fails: on fetch error it returns the last cached
// value, stale or not, and the fallback when nothing was ever fetched.
func (c *Cache) CurrentTemperature(ctx context.Context) (float64, error) {
	c.mu.RLock()
	if c.hasValue && c.now().Sub(c.fetchedAt) < c.ttl {
		v := c.value
		c.mu.RUnlock()
		return v, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do("current", func() (interface{}, error) {
		temp, err := c.provider.Fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.value = temp
		c.fetchedAt = c.now()
		c.hasValue = true
		c.mu.Unlock()
		log.Debug().Float64("outside_temp", temp).Msg("Outdoor temperature refreshed")
		return temp, nil
	})
	if err == nil {
		return v.(float64), nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.hasValue {
		log.Warn().Err(err).Time("fetched_at", c.fetchedAt).Msg("Weather fetch failed, using stale cached temperature")
		return c.value, nil
	}
	log.Warn().Err(err).Float64("fallback", c.fallback).Msg("Weather fetch failed with nothing cached, using fallback temperature")
	return c.fallback, nil
}

// CacheValid reports whether a value exists and is within the TTL.
func (c *Cache) CacheValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hasValue && c.now().Sub(c.fetchedAt) < c.ttl
}

// LastUpdated returns when the cached value was fetched; zero if never.
func (c *Cache) LastUpdated() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fetchedAt
}

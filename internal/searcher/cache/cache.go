// Package cache memoizes facet results in Redis. Keys combine the catalog
// snapshot version with the canonical filter state, so a result can never
// outlive the catalog it was computed from. Redis failures degrade to a
// miss; a circuit breaker stops hammering an unavailable server.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/product-atlas/internal/facet"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/resilience"
)

const keyPrefix = "atlas:facet:"

// Store is the subset of the Redis client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// FacetCache caches facet.Result values per snapshot version and state.
type FacetCache struct {
	store   Store
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a FacetCache over store. m may be nil.
func New(store Store, cfg config.RedisConfig, m *metrics.Metrics) *FacetCache {
	c := &FacetCache{
		store:   store,
		ttl:     cfg.CacheTTL,
		metrics: m,
		logger:  slog.Default().With("component", "facet-cache"),
	}
	c.breaker = resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     15 * time.Second,
		IsFailure:        func(err error) bool { return !pkgredis.IsNilError(err) },
		OnStateChange: func(name string, _, to resilience.State) {
			if m != nil {
				m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
	return c
}

// Get returns the cached result for state under version.
func (c *FacetCache) Get(ctx context.Context, version string, state facet.State) (facet.Result, bool) {
	key := c.buildKey(version, state)
	var data []byte
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.store.Get(ctx, key)
		return err
	})
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Debug("cache get failed", "key", key, "error", err)
		}
		c.recordMiss()
		return facet.Result{}, false
	}
	var result facet.Result
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.recordMiss()
		return facet.Result{}, false
	}
	c.recordHit()
	return result, true
}

// Set stores result for state under version. Failures are logged and
// otherwise ignored.
func (c *FacetCache) Set(ctx context.Context, version string, state facet.State, result facet.Result) {
	key := c.buildKey(version, state)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.store.Set(ctx, key, data, c.ttl)
	})
	if err != nil {
		c.logger.Debug("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result or computes, stores and returns
// it. Concurrent misses for the same key share one computation.
func (c *FacetCache) GetOrCompute(
	ctx context.Context,
	version string,
	state facet.State,
	compute func() facet.Result,
) (facet.Result, bool) {
	if result, ok := c.Get(ctx, version, state); ok {
		return result, true
	}
	key := c.buildKey(version, state)
	val, _, _ := c.group.Do(key, func() (any, error) {
		result := compute()
		c.Set(ctx, version, state, result)
		return result, nil
	})
	return val.(facet.Result), false
}

// Invalidate drops every cached facet result.
func (c *FacetCache) Invalidate(ctx context.Context) error {
	var deleted int64
	err := c.breaker.Execute(func() error {
		var err error
		deleted, err = c.store.FlushByPattern(ctx, keyPrefix+"*")
		return err
	})
	if err != nil {
		return fmt.Errorf("invalidating facet cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

// Stats returns hit and miss counts since start.
func (c *FacetCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// BreakerState reports the state of the Redis circuit breaker.
func (c *FacetCache) BreakerState() resilience.State {
	return c.breaker.GetState()
}

func (c *FacetCache) recordHit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *FacetCache) recordMiss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func (c *FacetCache) buildKey(version string, state facet.State) string {
	hash := sha256.Sum256([]byte(state.Key()))
	return fmt.Sprintf("%s%s:%x", keyPrefix, version, hash[:16])
}

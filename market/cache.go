package market

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"autotrader/infrastructure/logger"
)

// Observer receives cache outcome notifications. Implemented by the metrics
// collector; a nil observer disables reporting.
type Observer interface {
	CacheHit()
	CacheMiss()
	CacheFetchFailure()
}

// CacheConfig bounds the cache behavior.
type CacheConfig struct {
	Freshness    time.Duration // serve cached data without refetch inside this window
	FetchLimit   int           // candles requested per upstream fetch
	FetchTimeout time.Duration // upper bound on one upstream call
	MaxPoints    int           // retained candles per (symbol, interval) key
}

// DefaultCacheConfig mirrors the upstream service defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Freshness:    5 * time.Minute,
		FetchLimit:   100,
		FetchTimeout: 10 * time.Second,
		MaxPoints:    500,
	}
}

type cacheEntry struct {
	candles   []Candle // ordered, newest last
	fetchedAt time.Time
}

// Cache keeps the most recent candle sequence per (symbol, interval) key and
// refreshes from the Source on miss or staleness. A fetch failure degrades to
// the previous cached value; it never surfaces as an error to the cycle.
type Cache struct {
	source   Source
	cfg      CacheConfig
	clock    Clock
	log      *logger.Logger
	observer Observer

	mu      sync.RWMutex
	entries map[string]*cacheEntry
}

// NewCache builds a Cache over source. log may be nil.
func NewCache(source Source, cfg CacheConfig, log *logger.Logger) *Cache {
	if cfg.Freshness <= 0 {
		cfg.Freshness = 5 * time.Minute
	}
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = 100
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.MaxPoints <= 0 {
		cfg.MaxPoints = 500
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Cache{
		source:  source,
		cfg:     cfg,
		clock:   NowUTC,
		log:     log,
		entries: make(map[string]*cacheEntry),
	}
}

// SetClock replaces the clock; tests inject a fake here.
func (c *Cache) SetClock(clock Clock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock = clock
}

// SetObserver attaches an outcome observer.
func (c *Cache) SetObserver(obs Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observer = obs
}

func cacheKey(symbol, interval string) string {
	return symbol + ":" + interval
}

// Latest returns the newest candle for (symbol, interval). The second return
// is false only when nothing is cached and the upstream fetch failed too.
func (c *Cache) Latest(ctx context.Context, symbol, interval string) (Candle, bool) {
	key := cacheKey(symbol, interval)

	c.mu.RLock()
	entry, ok := c.entries[key]
	clock := c.clock
	if ok && clock.Now().Sub(entry.fetchedAt) < c.cfg.Freshness && len(entry.candles) > 0 {
		newest := entry.candles[len(entry.candles)-1]
		c.mu.RUnlock()
		c.observe(func(o Observer) { o.CacheHit() })
		return newest, true
	}
	c.mu.RUnlock()

	c.observe(func(o Observer) { o.CacheMiss() })
	return c.refresh(ctx, key, symbol, interval)
}

// History returns a copy of the cached sequence for (symbol, interval)
// without touching upstream. Strategy providers use it for lookback windows.
func (c *Cache) History(symbol, interval string) []Candle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[cacheKey(symbol, interval)]
	if !ok {
		return nil
	}
	out := make([]Candle, len(entry.candles))
	copy(out, entry.candles)
	return out
}

// refresh performs exactly one bounded upstream fetch, replacing the key's
// sequence on success and falling back to stale data on failure.
func (c *Cache) refresh(ctx context.Context, key, symbol, interval string) (Candle, bool) {
	fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	candles, err := c.source.FetchCandles(fetchCtx, symbol, interval, c.cfg.FetchLimit)
	if err != nil || len(candles) == 0 {
		if err != nil {
			c.log.Warn("market data fetch failed, serving stale data if any",
				zap.String("symbol", symbol),
				zap.String("interval", interval),
				zap.Error(err))
			c.observe(func(o Observer) { o.CacheFetchFailure() })
		}
		c.mu.RLock()
		defer c.mu.RUnlock()
		entry, ok := c.entries[key]
		if !ok || len(entry.candles) == 0 {
			return Candle{}, false
		}
		return entry.candles[len(entry.candles)-1], true
	}

	if len(candles) > c.cfg.MaxPoints {
		candles = candles[len(candles)-c.cfg.MaxPoints:]
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &cacheEntry{candles: candles, fetchedAt: c.clock.Now()}
	return candles[len(candles)-1], true
}

func (c *Cache) observe(fn func(Observer)) {
	c.mu.RLock()
	obs := c.observer
	c.mu.RUnlock()
	if obs != nil {
		fn(obs)
	}
}

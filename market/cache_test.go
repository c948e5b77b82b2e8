package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

// fakeSource records fetches and serves a scripted candle sequence.
type fakeSource struct {
	candles []Candle
	err     error
	calls   int
}

func (f *fakeSource) FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.candles, nil
}

func candleSeq(symbol, interval string, closes ...float64) []Candle {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]Candle, len(closes))
	for i, c := range closes {
		out[i] = Candle{
			Symbol:   symbol,
			Interval: interval,
			Ts:       base.Add(time.Duration(i) * time.Hour),
			Open:     c,
			High:     c,
			Low:      c,
			Close:    c,
			Volume:   1,
		}
	}
	return out
}

func newTestCache(src Source) (*Cache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)}
	c := NewCache(src, DefaultCacheConfig(), nil)
	c.SetClock(clock)
	return c, clock
}

func TestLatestFetchesOnceWithinFreshness(t *testing.T) {
	src := &fakeSource{candles: candleSeq("BTC/USDT", "1h", 100, 101, 102)}
	cache, clock := newTestCache(src)
	ctx := context.Background()

	first, ok := cache.Latest(ctx, "BTC/USDT", "1h")
	require.True(t, ok)
	assert.Equal(t, 102.0, first.Close)
	assert.Equal(t, 1, src.calls)

	// A second read inside the freshness window serves the cached candle.
	clock.Advance(4 * time.Minute)
	second, ok := cache.Latest(ctx, "BTC/USDT", "1h")
	require.True(t, ok)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, src.calls)

	// Past the window the cache refetches.
	clock.Advance(2 * time.Minute)
	src.candles = candleSeq("BTC/USDT", "1h", 103, 104)
	third, ok := cache.Latest(ctx, "BTC/USDT", "1h")
	require.True(t, ok)
	assert.Equal(t, 104.0, third.Close)
	assert.Equal(t, 2, src.calls)
}

func TestLatestServesStaleOnFetchFailure(t *testing.T) {
	src := &fakeSource{candles: candleSeq("BTC/USDT", "1h", 100)}
	cache, clock := newTestCache(src)
	ctx := context.Background()

	first, ok := cache.Latest(ctx, "BTC/USDT", "1h")
	require.True(t, ok)

	// Upstream breaks after the window expires: the stale candle is served.
	clock.Advance(10 * time.Minute)
	src.err = errors.New("upstream down")
	stale, ok := cache.Latest(ctx, "BTC/USDT", "1h")
	require.True(t, ok)
	assert.Equal(t, first, stale)
}

func TestLatestFailsWhenNothingCached(t *testing.T) {
	src := &fakeSource{err: errors.New("upstream down")}
	cache, _ := newTestCache(src)

	_, ok := cache.Latest(context.Background(), "BTC/USDT", "1h")
	assert.False(t, ok)
}

func TestCacheKeysAreIndependent(t *testing.T) {
	src := &fakeSource{candles: candleSeq("BTC/USDT", "1h", 100)}
	cache, _ := newTestCache(src)
	ctx := context.Background()

	_, ok := cache.Latest(ctx, "BTC/USDT", "1h")
	require.True(t, ok)
	require.Equal(t, 1, src.calls)

	// A different interval for the same symbol is a separate key.
	_, ok = cache.Latest(ctx, "BTC/USDT", "5m")
	require.True(t, ok)
	assert.Equal(t, 2, src.calls)

	// And a different symbol again.
	_, ok = cache.Latest(ctx, "ETH/USDT", "1h")
	require.True(t, ok)
	assert.Equal(t, 3, src.calls)
}

func TestHistoryReturnsCopyWithoutFetching(t *testing.T) {
	src := &fakeSource{candles: candleSeq("BTC/USDT", "1h", 100, 101)}
	cache, _ := newTestCache(src)
	ctx := context.Background()

	assert.Nil(t, cache.History("BTC/USDT", "1h"))
	assert.Equal(t, 0, src.calls)

	_, ok := cache.Latest(ctx, "BTC/USDT", "1h")
	require.True(t, ok)

	history := cache.History("BTC/USDT", "1h")
	require.Len(t, history, 2)

	// Mutating the returned slice does not touch the cache.
	history[1].Close = 999
	fresh := cache.History("BTC/USDT", "1h")
	assert.Equal(t, 101.0, fresh[1].Close)
}

func TestMaxPointsBoundsRetention(t *testing.T) {
	closes := make([]float64, 600)
	for i := range closes {
		closes[i] = float64(i)
	}
	src := &fakeSource{candles: candleSeq("BTC/USDT", "1h", closes...)}

	cfg := DefaultCacheConfig()
	cfg.MaxPoints = 500
	cache := NewCache(src, cfg, nil)

	latest, ok := cache.Latest(context.Background(), "BTC/USDT", "1h")
	require.True(t, ok)
	assert.Equal(t, 599.0, latest.Close)

	history := cache.History("BTC/USDT", "1h")
	assert.Len(t, history, 500)
	assert.Equal(t, 100.0, history[0].Close) // oldest 100 dropped
}

func TestIntervalDuration(t *testing.T) {
	testCases := []struct {
		interval string
		want     time.Duration
	}{
		{"1m", time.Minute},
		{"5m", 5 * time.Minute},
		{"15m", 15 * time.Minute},
		{"30m", 30 * time.Minute},
		{"1h", time.Hour},
		{"4h", 4 * time.Hour},
		{"8h", 8 * time.Hour},
		{"1d", 24 * time.Hour},
		{"1w", 7 * 24 * time.Hour},
		{"bogus", time.Hour}, // unknown intervals default to 1h
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, IntervalDuration(tc.interval), tc.interval)
	}
}

package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Source supplies candles on a cache miss. Implementations must honor the
// context deadline; the cache never waits longer than its fetch timeout.
type Source interface {
	FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
}

// HTTPSource pulls candles from a market-data HTTP endpoint returning a JSON
// array of OHLCV rows. It is the boundary client only: exchange semantics
// live behind the remote service. Transport errors and 5xx responses are
// retried up to Retries additional attempts before the fetch fails.
type HTTPSource struct {
	BaseURL    string
	HTTPClient *http.Client
	Retries    int
}

// NewHTTPSource builds a source with a bounded default client and one retry.
func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Retries:    1,
	}
}

type candleRow struct {
	Symbol    string  `json:"symbol"`
	Interval  string  `json:"interval"`
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// FetchCandles requests up to limit candles, oldest first.
func (s *HTTPSource) FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))

	endpoint := s.BaseURL + "/api/v1/candles?" + q.Encode()

	var rows []candleRow
	var lastErr error
	for attempt := 0; attempt <= s.Retries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("build candles request: %w", err)
		}

		var retryable bool
		rows, retryable, lastErr = s.doFetch(req)
		if lastErr == nil {
			break
		}
		if !retryable || ctx.Err() != nil {
			return nil, lastErr
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}

	candles := make([]Candle, 0, len(rows))
	for _, r := range rows {
		candles = append(candles, Candle{
			Symbol:   symbol,
			Interval: interval,
			Ts:       time.UnixMilli(r.Timestamp).UTC(),
			Open:     r.Open,
			High:     r.High,
			Low:      r.Low,
			Close:    r.Close,
			Volume:   r.Volume,
		})
	}
	return candles, nil
}

// doFetch performs one attempt. retryable is true only for transport errors
// and 5xx statuses; client errors and decode failures fail fast.
func (s *HTTPSource) doFetch(req *http.Request) ([]candleRow, bool, error) {
	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("fetch candles: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode >= http.StatusInternalServerError,
			fmt.Errorf("fetch candles: unexpected status %d", resp.StatusCode)
	}

	var rows []candleRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, false, fmt.Errorf("decode candles: %w", err)
	}
	return rows, false, nil
}

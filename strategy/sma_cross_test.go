package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrader/market"
)

func flatHistory(n int, close float64) []market.Candle {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]market.Candle, n)
	for i := range out {
		out[i] = market.Candle{
			Symbol:   "BTC/USDT",
			Interval: "1h",
			Ts:       base.Add(time.Duration(i) * time.Hour),
			Close:    close,
		}
	}
	return out
}

func candleAt(close float64) market.Candle {
	return market.Candle{Symbol: "BTC/USDT", Interval: "1h", Close: close}
}

func TestNewSMACrossParams(t *testing.T) {
	_, err := NewSMACross(Params{"window": 1})
	assert.Error(t, err)
	_, err = NewSMACross(Params{"threshold": 0})
	assert.Error(t, err)
	_, err = NewSMACross(Params{"amount": -5})
	assert.Error(t, err)

	p, err := NewSMACross(nil)
	require.NoError(t, err)
	assert.Equal(t, "sma_cross", p.Name())
}

func TestSMACrossSignals(t *testing.T) {
	p, err := NewSMACross(Params{"window": 5, "threshold": 0.01, "amount": 100})
	require.NoError(t, err)
	ctx := context.Background()
	history := flatHistory(5, 100) // sma = 100

	testCases := []struct {
		name  string
		close float64
		want  Action
	}{
		{"deep under sma buys", 98, ActionBuy},
		{"at buy threshold", 99, ActionBuy},
		{"inside band holds", 99.5, ActionHold},
		{"at sma holds", 100, ActionHold},
		{"at sell threshold", 101, ActionSell},
		{"far over sma sells", 105, ActionSell},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sig, err := p.Evaluate(ctx, candleAt(tc.close), history)
			require.NoError(t, err)
			assert.Equal(t, tc.want, sig.Action)
			if tc.want != ActionHold {
				assert.Equal(t, 100.0, sig.Amount)
				assert.Greater(t, sig.Confidence, 0.0)
				assert.NotEmpty(t, sig.Reason)
			}
		})
	}
}

func TestSMACrossHoldsOnShortHistory(t *testing.T) {
	p, err := NewSMACross(Params{"window": 20})
	require.NoError(t, err)

	sig, err := p.Evaluate(context.Background(), candleAt(50), flatHistory(10, 100))
	require.NoError(t, err)
	assert.Equal(t, ActionHold, sig.Action)
}

func TestRegistry(t *testing.T) {
	assert.Contains(t, Names(), "sma_cross")

	p, err := New("sma_cross", nil)
	require.NoError(t, err)
	assert.Equal(t, "sma_cross", p.Name())

	_, err = New("definitely_not_registered", nil)
	assert.Error(t, err)
}

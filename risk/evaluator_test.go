package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLimits() Limits {
	return Limits{
		MaxPositionSize:       1000,
		MaxDailyLoss:          500,
		MaxOpenPositions:      5,
		MaxPositionsPerSymbol: 2,
	}
}

func TestNewEvaluatorRejectsBadLimits(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Limits)
	}{
		{"zero position size", func(l *Limits) { l.MaxPositionSize = 0 }},
		{"negative daily loss", func(l *Limits) { l.MaxDailyLoss = -1 }},
		{"zero open positions", func(l *Limits) { l.MaxOpenPositions = 0 }},
		{"negative symbol cap", func(l *Limits) { l.MaxPositionsPerSymbol = -1 }},
		{"stop loss out of range", func(l *Limits) { l.StopLossPct = 1.5 }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			limits := testLimits()
			tc.mutate(&limits)
			_, err := NewEvaluator(limits)
			assert.Error(t, err)
		})
	}
}

func TestValidateRules(t *testing.T) {
	ev, err := NewEvaluator(testLimits())
	require.NoError(t, err)

	testCases := []struct {
		name     string
		req      TradeRequest
		open     int
		dailyPnL float64
		wantErr  error
	}{
		{"approved", TradeRequest{"BTC/USDT", 100}, 0, 0, nil},
		{"at size limit", TradeRequest{"BTC/USDT", 1000}, 0, 0, nil},
		{"over size limit", TradeRequest{"BTC/USDT", 1000.01}, 0, 0, ErrPositionSize},
		{"open positions full", TradeRequest{"BTC/USDT", 100}, 5, 0, ErrOpenPositions},
		{"open positions above full", TradeRequest{"BTC/USDT", 100}, 7, 0, ErrOpenPositions},
		{"daily loss breached", TradeRequest{"BTC/USDT", 100}, 0, -500, ErrDailyLoss},
		{"daily loss under limit", TradeRequest{"BTC/USDT", 100}, 0, -499.99, nil},
		{"empty symbol", TradeRequest{"", 100}, 0, 0, ErrMalformed},
		{"zero amount", TradeRequest{"BTC/USDT", 0}, 0, 0, ErrMalformed},
		{"negative amount", TradeRequest{"BTC/USDT", -5}, 0, 0, ErrMalformed},
		{"nan amount", TradeRequest{"BTC/USDT", math.NaN()}, 0, 0, ErrMalformed},
		{"inf amount", TradeRequest{"BTC/USDT", math.Inf(1)}, 0, 0, ErrMalformed},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ev.ValidateDetail(tc.req, tc.open, tc.dailyPnL)
			if tc.wantErr == nil {
				assert.NoError(t, err)
				assert.True(t, ev.Validate(tc.req, tc.open, tc.dailyPnL))
			} else {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.False(t, ev.Validate(tc.req, tc.open, tc.dailyPnL))
			}
		})
	}
}

func TestRuleOrderFirstViolationWins(t *testing.T) {
	ev, err := NewEvaluator(testLimits())
	require.NoError(t, err)

	// Oversized request while positions are also full: size rule fires first.
	err = ev.ValidateDetail(TradeRequest{"BTC/USDT", 5000}, 5, -1000)
	assert.ErrorIs(t, err, ErrPositionSize)

	// Malformed always wins.
	err = ev.ValidateDetail(TradeRequest{"", 5000}, 5, -1000)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestValidateIsPure(t *testing.T) {
	ev, err := NewEvaluator(testLimits())
	require.NoError(t, err)

	req := TradeRequest{"BTC/USDT", 100}
	for i := 0; i < 10; i++ {
		assert.True(t, ev.Validate(req, 1, -10))
	}
	// Rejections do not accumulate state either.
	for i := 0; i < 10; i++ {
		assert.False(t, ev.Validate(TradeRequest{"BTC/USDT", 9999}, 1, -10))
	}
	assert.True(t, ev.Validate(req, 1, -10))
	assert.Equal(t, testLimits(), ev.Limits())
}

func TestValidateSymbolCap(t *testing.T) {
	ev, err := NewEvaluator(testLimits())
	require.NoError(t, err)

	req := TradeRequest{"ETH/USDT", 100}
	assert.NoError(t, ev.ValidateSymbol(req, 3, 1, 0))
	assert.ErrorIs(t, ev.ValidateSymbol(req, 3, 2, 0), ErrSymbolCap)

	// Cap of zero disables the per-symbol rule.
	limits := testLimits()
	limits.MaxPositionsPerSymbol = 0
	require.NoError(t, ev.Reconfigure(limits))
	assert.NoError(t, ev.ValidateSymbol(req, 3, 4, 0))
}

func TestReconfigureSwapsLimits(t *testing.T) {
	ev, err := NewEvaluator(testLimits())
	require.NoError(t, err)

	req := TradeRequest{"BTC/USDT", 800}
	assert.True(t, ev.Validate(req, 0, 0))

	tighter := testLimits()
	tighter.MaxPositionSize = 500
	require.NoError(t, ev.Reconfigure(tighter))
	assert.False(t, ev.Validate(req, 0, 0))

	// Invalid limits are refused and the active snapshot is untouched.
	bad := testLimits()
	bad.MaxOpenPositions = -1
	assert.Error(t, ev.Reconfigure(bad))
	assert.Equal(t, tighter, ev.Limits())
}

package strategy

import (
	"context"
	"fmt"

	"autotrader/market"
)

func init() {
	Register("sma_cross", NewSMACross)
}

// SMACross signals buy when the close moves a threshold above its simple
// moving average and sell when it moves the same threshold below. It is the
// reference provider; production strategies register alongside it.
type SMACross struct {
	window    int
	threshold float64 // fractional distance from the SMA
	amount    float64 // suggested trade size in currency units
}

// NewSMACross builds the provider. Params: window (default 20), threshold
// (default 0.01), amount (default 100).
func NewSMACross(params Params) (Provider, error) {
	s := &SMACross{window: 20, threshold: 0.01, amount: 100}
	if v, ok := params["window"]; ok {
		if v < 2 {
			return nil, fmt.Errorf("sma_cross: window must be >= 2, got %v", v)
		}
		s.window = int(v)
	}
	if v, ok := params["threshold"]; ok {
		if v <= 0 {
			return nil, fmt.Errorf("sma_cross: threshold must be > 0, got %v", v)
		}
		s.threshold = v
	}
	if v, ok := params["amount"]; ok {
		if v <= 0 {
			return nil, fmt.Errorf("sma_cross: amount must be > 0, got %v", v)
		}
		s.amount = v
	}
	return s, nil
}

func (s *SMACross) Name() string { return "sma_cross" }

func (s *SMACross) Evaluate(ctx context.Context, candle market.Candle, history []market.Candle) (Signal, error) {
	if len(history) < s.window {
		return Hold(candle.Symbol), nil
	}

	sum := 0.0
	for _, c := range history[len(history)-s.window:] {
		sum += c.Close
	}
	sma := sum / float64(s.window)
	if sma <= 0 {
		return Hold(candle.Symbol), nil
	}

	distance := (candle.Close - sma) / sma
	signal := Signal{
		Symbol:     candle.Symbol,
		Amount:     s.amount,
		Confidence: clamp(abs(distance)/s.threshold, 0, 1),
	}
	switch {
	case distance <= -s.threshold:
		signal.Action = ActionBuy
		signal.Reason = fmt.Sprintf("close %.2f under sma %.2f", candle.Close, sma)
	case distance >= s.threshold:
		signal.Action = ActionSell
		signal.Reason = fmt.Sprintf("close %.2f over sma %.2f", candle.Close, sma)
	default:
		return Hold(candle.Symbol), nil
	}
	return signal, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

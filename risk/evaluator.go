package risk

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// Limits is the immutable-after-load risk configuration. It is replaced
// wholesale by Reconfigure, never mutated mid-evaluation.
type Limits struct {
	MaxPositionSize       float64 `yaml:"max_position_size"`        // currency units per trade
	MaxDailyLoss          float64 `yaml:"max_daily_loss"`           // currency units
	MaxOpenPositions      int     `yaml:"max_open_positions"`       // concurrent open orders
	MaxPositionsPerSymbol int     `yaml:"max_positions_per_symbol"` // 0 disables the per-symbol cap
	StopLossPct           float64 `yaml:"stop_loss_pct"`
	TakeProfitPct         float64 `yaml:"take_profit_pct"`
}

// Validate checks that the core limits are usable.
func (l Limits) Validate() error {
	if l.MaxPositionSize <= 0 {
		return errors.New("max_position_size must be > 0")
	}
	if l.MaxDailyLoss <= 0 {
		return errors.New("max_daily_loss must be > 0")
	}
	if l.MaxOpenPositions <= 0 {
		return errors.New("max_open_positions must be > 0")
	}
	if l.MaxPositionsPerSymbol < 0 {
		return errors.New("max_positions_per_symbol must be >= 0")
	}
	if l.StopLossPct < 0 || l.StopLossPct >= 1 {
		return errors.New("stop_loss_pct must be in [0, 1)")
	}
	if l.TakeProfitPct < 0 {
		return errors.New("take_profit_pct must be >= 0")
	}
	return nil
}

// TradeRequest is the amount/instrument pair checked before an order exists.
type TradeRequest struct {
	Symbol string
	Amount float64 // currency units
}

// Evaluator decides, synchronously and without side effects, whether a
// proposed trade may proceed. Validation is a pure function of its inputs;
// the only mutable state is the limits snapshot swapped by Reconfigure.
type Evaluator struct {
	mu     sync.RWMutex
	limits Limits
}

// NewEvaluator builds an Evaluator, rejecting unusable limits so a bad risk
// configuration aborts engine startup instead of silently allowing trades.
func NewEvaluator(limits Limits) (*Evaluator, error) {
	if err := limits.Validate(); err != nil {
		return nil, fmt.Errorf("invalid risk limits: %w", err)
	}
	return &Evaluator{limits: limits}, nil
}

// Reconfigure swaps the active limits. Evaluations in flight keep the
// snapshot they took at entry.
func (e *Evaluator) Reconfigure(limits Limits) error {
	if err := limits.Validate(); err != nil {
		return fmt.Errorf("invalid risk limits: %w", err)
	}
	e.mu.Lock()
	e.limits = limits
	e.mu.Unlock()
	return nil
}

// Limits returns the active limits snapshot.
func (e *Evaluator) Limits() Limits {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.limits
}

// Validate applies the rejection rules in order; the first failing rule
// wins. Malformed input rejects rather than erroring: rejection is the safe
// outcome of an ambiguous request.
func (e *Evaluator) Validate(req TradeRequest, openPositions int, dailyPnL float64) bool {
	return e.ValidateDetail(req, openPositions, dailyPnL) == nil
}

// ValidateDetail is Validate returning the first violated rule, for logging
// and the order's rejection reason.
func (e *Evaluator) ValidateDetail(req TradeRequest, openPositions int, dailyPnL float64) error {
	limits := e.Limits()

	if req.Symbol == "" || req.Amount <= 0 || math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) {
		return ErrMalformed
	}
	if req.Amount > limits.MaxPositionSize {
		return fmt.Errorf("%w: %.2f > %.2f", ErrPositionSize, req.Amount, limits.MaxPositionSize)
	}
	if openPositions >= limits.MaxOpenPositions {
		return fmt.Errorf("%w: %d >= %d", ErrOpenPositions, openPositions, limits.MaxOpenPositions)
	}
	if math.Abs(dailyPnL) >= limits.MaxDailyLoss {
		return fmt.Errorf("%w: |%.2f| >= %.2f", ErrDailyLoss, dailyPnL, limits.MaxDailyLoss)
	}
	return nil
}

// ValidateSymbol additionally enforces the per-symbol open position cap.
// symbolPositions is the count of open positions on req.Symbol.
func (e *Evaluator) ValidateSymbol(req TradeRequest, openPositions, symbolPositions int, dailyPnL float64) error {
	if err := e.ValidateDetail(req, openPositions, dailyPnL); err != nil {
		return err
	}
	limits := e.Limits()
	if limits.MaxPositionsPerSymbol > 0 && symbolPositions >= limits.MaxPositionsPerSymbol {
		return fmt.Errorf("%w: %d >= %d", ErrSymbolCap, symbolPositions, limits.MaxPositionsPerSymbol)
	}
	return nil
}

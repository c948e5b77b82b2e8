package order

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Gateway is the opaque remote execution endpoint used in live mode. Wire
// protocol and authentication live behind this boundary.
type Gateway interface {
	PlaceOrder(ctx context.Context, symbol string, side Side, typ Type, amount, price float64) (string, error)
	GetOrderStatus(ctx context.Context, exchangeID string) (GatewayOrderStatus, error)
	CancelOrder(ctx context.Context, exchangeID string) (bool, error)
}

// GatewayOrderStatus is the remote view of an order used by reconciliation.
type GatewayOrderStatus struct {
	Status       Status
	FilledAmount float64
	FilledPrice  float64
}

// PollResult is the outcome of checking one active order for progress.
type PollResult struct {
	Status       Status
	ExchangeID   string
	FilledAmount float64
	FilledPrice  float64
	Fee          float64
	Reason       string
}

// ExecutionStrategy routes trade execution for one trading mode. The engine
// selects an implementation once at start; the order path never branches on
// a mode field. Implementations receive a private copy of the order and must
// not retain it; any state they assign (exchange id, status) comes back
// through PollResult so the tracker can apply it under its lock.
type ExecutionStrategy interface {
	// Place pushes a pending order toward the venue. A nil result means the
	// order rests locally until Poll fills it.
	Place(ctx context.Context, o *Order) (*PollResult, error)
	// Poll reports a status change for an active order; ok is false when
	// nothing changed.
	Poll(ctx context.Context, o *Order) (PollResult, bool, error)
	// CancelRemote withdraws the order at the venue, if it has one.
	CancelRemote(ctx context.Context, o *Order) error
}

// ErrGatewayTimeout marks a gateway call that exceeded its deadline. The
// affected order transitions to rejected and the cycle continues.
var ErrGatewayTimeout = errors.New("gateway timeout")

// LiveExecution forwards orders to the execution gateway with explicit
// timeouts on every remote call.
type LiveExecution struct {
	Gateway Gateway
	Timeout time.Duration
	// Latency, when set, receives the duration of every gateway round trip.
	Latency func(time.Duration)
}

// NewLiveExecution wraps gw with the default 30s call timeout.
func NewLiveExecution(gw Gateway) *LiveExecution {
	return &LiveExecution{Gateway: gw, Timeout: 30 * time.Second}
}

func (l *LiveExecution) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func (l *LiveExecution) observe(started time.Time) {
	if l.Latency != nil {
		l.Latency(time.Since(started))
	}
}

func (l *LiveExecution) Place(ctx context.Context, o *Order) (*PollResult, error) {
	callCtx, cancel := l.callCtx(ctx)
	defer cancel()
	defer l.observe(time.Now())

	exchangeID, err := l.Gateway.PlaceOrder(callCtx, o.Symbol, o.Side, o.Type, o.Amount, o.Price)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", ErrGatewayTimeout, err)
		}
		return nil, err
	}
	return &PollResult{Status: StatusSubmitted, ExchangeID: exchangeID}, nil
}

func (l *LiveExecution) Poll(ctx context.Context, o *Order) (PollResult, bool, error) {
	if o.ExchangeID == "" {
		return PollResult{}, false, nil
	}
	callCtx, cancel := l.callCtx(ctx)
	defer cancel()
	defer l.observe(time.Now())

	remote, err := l.Gateway.GetOrderStatus(callCtx, o.ExchangeID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", ErrGatewayTimeout, err)
		}
		return PollResult{}, false, err
	}
	if remote.Status == o.Status && remote.FilledAmount == o.FilledAmount {
		return PollResult{}, false, nil
	}
	return PollResult{
		Status:       remote.Status,
		FilledAmount: remote.FilledAmount,
		FilledPrice:  remote.FilledPrice,
	}, true, nil
}

func (l *LiveExecution) CancelRemote(ctx context.Context, o *Order) error {
	if o.ExchangeID == "" {
		return nil
	}
	callCtx, cancel := l.callCtx(ctx)
	defer cancel()
	defer l.observe(time.Now())

	ok, err := l.Gateway.CancelOrder(callCtx, o.ExchangeID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", ErrGatewayTimeout, err)
		}
		return err
	}
	if !ok {
		return errors.New("gateway declined cancellation")
	}
	return nil
}

// PriceSource supplies the last traded close used by the simulated fill
// model. The engine adapts the market data cache to this.
type PriceSource interface {
	LastClose(symbol string) (float64, bool)
}

// SimConfig parameterizes the deterministic fill model shared by paper and
// backtest modes.
type SimConfig struct {
	SlippagePct float64 `yaml:"slippage_pct"` // applied to market fills, direction-aware
	FeePct      float64 `yaml:"fee_pct"`      // recorded in order metadata
}

// DefaultSimConfig mirrors the defaults of the simulated venue.
func DefaultSimConfig() SimConfig {
	return SimConfig{SlippagePct: 0.0002, FeePct: 0.0005}
}

// SimExecution synthesizes fills for paper and backtest modes. The model is
// deterministic: market orders fill fully at the last close adjusted by
// slippage (buys up, sells down); limit orders rest until the last close
// crosses the limit and then fill at the limit price.
type SimExecution struct {
	Prices PriceSource
	Config SimConfig
}

// NewSimExecution builds the simulated executor over prices.
func NewSimExecution(prices PriceSource, cfg SimConfig) *SimExecution {
	if cfg.SlippagePct < 0 {
		cfg.SlippagePct = 0
	}
	if cfg.FeePct < 0 {
		cfg.FeePct = 0
	}
	return &SimExecution{Prices: prices, Config: cfg}
}

// Place is a no-op: simulated orders rest locally in pending until the next
// reconciliation pass fills them.
func (s *SimExecution) Place(ctx context.Context, o *Order) (*PollResult, error) {
	return nil, nil
}

func (s *SimExecution) Poll(ctx context.Context, o *Order) (PollResult, bool, error) {
	last, ok := s.Prices.LastClose(o.Symbol)
	if !ok || last <= 0 {
		return PollResult{}, false, nil
	}

	switch o.Type {
	case TypeLimit:
		if o.Price <= 0 {
			return PollResult{}, false, nil
		}
		crossed := (o.Side == SideBuy && last <= o.Price) ||
			(o.Side == SideSell && last >= o.Price)
		if !crossed {
			return PollResult{}, false, nil
		}
		return PollResult{
			Status:       StatusFilled,
			FilledAmount: o.Amount,
			FilledPrice:  o.Price,
			Fee:          o.Amount * s.Config.FeePct,
		}, true, nil
	default:
		// Market and stop kinds fill at last close with slippage.
		price := last
		if o.Side == SideBuy {
			price *= 1 + s.Config.SlippagePct
		} else {
			price *= 1 - s.Config.SlippagePct
		}
		return PollResult{
			Status:       StatusFilled,
			FilledAmount: o.Amount,
			FilledPrice:  price,
			Fee:          o.Amount * s.Config.FeePct,
		}, true, nil
	}
}

// CancelRemote is a no-op: there is no venue to withdraw from.
func (s *SimExecution) CancelRemote(ctx context.Context, o *Order) error {
	return nil
}

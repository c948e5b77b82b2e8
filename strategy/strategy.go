package strategy

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"autotrader/market"
)

// Action is the proposed trade direction.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Signal is a proposed trade produced by a Provider. A hold signal (or a
// provider error) results in no trade for the cycle.
type Signal struct {
	Action     Action
	Symbol     string
	Amount     float64 // suggested size in currency units
	Confidence float64 // 0..1
	Reason     string
}

// Hold is the neutral signal for symbol.
func Hold(symbol string) Signal {
	return Signal{Action: ActionHold, Symbol: symbol, Confidence: 1}
}

// Provider evaluates market data into a trade signal. Implementations are
// black boxes to the engine; evaluation failures are treated as hold.
type Provider interface {
	Name() string
	Evaluate(ctx context.Context, candle market.Candle, history []market.Candle) (Signal, error)
}

// Params is the free-form provider configuration block.
type Params map[string]float64

// Constructor builds a provider from params.
type Constructor func(params Params) (Provider, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Constructor)
)

// Register makes a provider constructor available under name. Called from
// package init functions.
func Register(name string, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = ctor
}

// New builds the named provider; unknown names abort engine startup.
func New(name string, params Params) (Provider, error) {
	registryMu.RLock()
	ctor, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (available: %v)", name, Names())
	}
	return ctor(params)
}

// Names lists the registered providers.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

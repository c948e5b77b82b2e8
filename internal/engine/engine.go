package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"autotrader/infrastructure/logger"
	"autotrader/market"
	"autotrader/metrics"
	"autotrader/order"
	"autotrader/risk"
	"autotrader/strategy"
)

// Mode selects how trade intents are executed.
type Mode string

const (
	ModeLive     Mode = "live"
	ModePaper    Mode = "paper"
	ModeBacktest Mode = "backtest"
)

// State is the engine lifecycle state.
type State int

const (
	StateCreated State = iota
	StateInitializing
	StateRunning
	StatePaused
	StateStopping
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Status is the read-only snapshot handed to external observers. It is
// replaced wholesale on each refresh; callers never see engine internals.
type Status struct {
	State        State
	Mode         Mode
	StartTime    time.Time
	Uptime       time.Duration
	ActiveOrders int
	TotalTrades  int64
	Balance      float64
	DailyPnL     float64
	LastFault    string
}

// Options parameterize one engine start.
type Options struct {
	Mode           Mode
	Strategy       string
	StrategyParams strategy.Params
	Symbol         string
	Interval       string
	CyclePeriod    time.Duration // default 5s
	StopTimeout    time.Duration // default 10s
	InitialBalance float64
}

// Dependencies are the external collaborators injected at construction. No
// module-level singletons: every front end holds the same explicit handle.
type Dependencies struct {
	Source       market.Source      // market data upstream, required
	Gateway      order.Gateway      // execution gateway, required in live mode
	Logger       *logger.Logger     // optional, Nop when nil
	Metrics      *metrics.Collector // optional
	RiskLimits   risk.Limits
	CacheConfig  market.CacheConfig
	SimConfig    order.SimConfig
	NewScheduler SchedulerFactory // optional, ticker when nil
}

// Errors surfaced by the lifecycle API.
var (
	ErrInitialization = errors.New("engine initialization failed")
	ErrInvalidState   = errors.New("invalid engine state for operation")
)

// Engine owns the canonical state machine, bootstraps the risk evaluator,
// order tracker and market data cache, and drives the periodic trading
// cycle. One cycle runs at a time; Stop, Status and CancelOrder are safe to
// call concurrently with it.
type Engine struct {
	deps Dependencies
	log  *logger.Logger

	mu            sync.Mutex
	state         State
	opts          Options
	startTime     time.Time
	totalTrades   int64
	balance       float64
	dailyPnL      float64
	lastFault     string
	stopRequested bool

	evaluator *risk.Evaluator
	tracker   *order.Tracker
	cache     *market.Cache
	provider  strategy.Provider

	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce *sync.Once
}

// New returns an engine handle in the created state.
func New(deps Dependencies) *Engine {
	log := deps.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{
		deps:  deps,
		log:   log,
		state: StateCreated,
	}
}

// Start initializes the dependent components, binds the named strategy and
// begins the cycle. Valid from created (or stopped, for restart). Any
// component construction failure aborts with ErrInitialization and leaves
// the engine stopped.
func (e *Engine) Start(ctx context.Context, opts Options) error {
	e.mu.Lock()
	if e.state != StateCreated && e.state != StateStopped {
		state := e.state
		e.mu.Unlock()
		return fmt.Errorf("%w: cannot start from %s", ErrInvalidState, state)
	}
	e.state = StateInitializing
	e.stopRequested = false
	e.mu.Unlock()

	if opts.CyclePeriod <= 0 {
		opts.CyclePeriod = 5 * time.Second
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 10 * time.Second
	}

	if err := e.initialize(opts); err != nil {
		e.mu.Lock()
		e.state = StateStopped
		e.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrInitialization, err)
	}

	e.mu.Lock()
	if e.stopRequested {
		// Stop arrived mid-initialization: abort, then stop.
		e.state = StateStopped
		e.mu.Unlock()
		e.log.Info("start aborted by stop request during initialization")
		return nil
	}
	e.opts = opts
	e.state = StateRunning
	e.startTime = time.Now().UTC()
	e.totalTrades = 0
	e.balance = opts.InitialBalance
	e.dailyPnL = 0
	e.lastFault = ""
	e.stopChan = make(chan struct{})
	e.doneChan = make(chan struct{})
	e.stopOnce = &sync.Once{}
	done := e.doneChan
	e.mu.Unlock()

	e.publishState()
	e.log.Info("engine started",
		zap.String("mode", string(opts.Mode)),
		zap.String("symbol", opts.Symbol),
		zap.String("strategy", opts.Strategy),
		zap.Duration("cycle_period", opts.CyclePeriod))

	go e.run(ctx, done)
	return nil
}

// initialize constructs the dependent components for opts. No blocking I/O
// happens here; failures are configuration problems and abort startup.
func (e *Engine) initialize(opts Options) error {
	switch opts.Mode {
	case ModeLive, ModePaper, ModeBacktest:
	default:
		return fmt.Errorf("unknown mode %q", opts.Mode)
	}
	if opts.Symbol == "" {
		return errors.New("symbol is required")
	}
	if opts.Interval == "" {
		return errors.New("interval is required")
	}
	if e.deps.Source == nil {
		return errors.New("market data source is required")
	}

	evaluator, err := risk.NewEvaluator(e.deps.RiskLimits)
	if err != nil {
		return err
	}

	cache := market.NewCache(e.deps.Source, e.deps.CacheConfig, e.log)
	if e.deps.Metrics != nil {
		cache.SetObserver(e.deps.Metrics)
	}

	// One execution strategy per mode, selected here and held for the
	// engine's lifetime; the cycle never branches on a mode field.
	var exec order.ExecutionStrategy
	if opts.Mode == ModeLive {
		if e.deps.Gateway == nil {
			return errors.New("execution gateway is required in live mode")
		}
		live := order.NewLiveExecution(e.deps.Gateway)
		if e.deps.Metrics != nil {
			live.Latency = e.deps.Metrics.ObserveGatewayLatency
		}
		exec = live
	} else {
		exec = order.NewSimExecution(
			&cachePrices{cache: cache, interval: opts.Interval},
			e.deps.SimConfig,
		)
	}

	tracker, err := order.NewTracker(exec, order.DefaultTrackerConfig(), e.log)
	if err != nil {
		return err
	}
	if e.deps.Metrics != nil {
		tracker.SetObserver(e.deps.Metrics)
	}
	tracker.SetFillHandler(e.onFill)

	provider, err := strategy.New(opts.Strategy, opts.StrategyParams)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.evaluator = evaluator
	e.cache = cache
	e.tracker = tracker
	e.provider = provider
	e.mu.Unlock()
	return nil
}

// Stop signals the run loop to exit after its current cycle, cancels all
// open orders and ends in stopped. Idempotent: a second call is a no-op.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	switch e.state {
	case StateStopped:
		e.mu.Unlock()
		return nil
	case StateCreated:
		e.state = StateStopped
		e.mu.Unlock()
		e.publishState()
		return nil
	case StateInitializing:
		e.stopRequested = true
		e.mu.Unlock()
		return nil
	case StateStopping:
		done := e.doneChan
		e.mu.Unlock()
		<-done
		return nil
	}
	e.state = StateStopping
	stopOnce := e.stopOnce
	stopChan := e.stopChan
	done := e.doneChan
	timeout := e.opts.StopTimeout
	tracker := e.tracker
	e.mu.Unlock()

	e.publishState()
	e.log.Info("engine stopping")

	stopOnce.Do(func() { close(stopChan) })

	select {
	case <-done:
	case <-time.After(timeout):
		e.log.Warn("timeout waiting for run loop to stop")
	}

	tracker.CancelAll(ctx)

	e.mu.Lock()
	e.state = StateStopped
	e.mu.Unlock()
	e.publishState()
	e.log.Info("engine stopped")
	return nil
}

// Pause suspends signal evaluation and order submission without tearing
// anything down. Cycles keep refreshing status and market data.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateRunning {
		return fmt.Errorf("%w: cannot pause from %s", ErrInvalidState, e.state)
	}
	e.state = StatePaused
	e.log.Info("engine paused")
	return nil
}

// Resume returns a paused engine to running.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StatePaused {
		return fmt.Errorf("%w: cannot resume from %s", ErrInvalidState, e.state)
	}
	e.state = StateRunning
	e.log.Info("engine resumed")
	return nil
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Status returns a defensively-copied snapshot. It never blocks on the
// cycle.
func (e *Engine) Status() Status {
	e.mu.Lock()
	status := Status{
		State:       e.state,
		Mode:        e.opts.Mode,
		StartTime:   e.startTime,
		TotalTrades: e.totalTrades,
		Balance:     e.balance,
		DailyPnL:    e.dailyPnL,
		LastFault:   e.lastFault,
	}
	tracker := e.tracker
	if !e.startTime.IsZero() && e.state != StateStopped {
		status.Uptime = time.Since(e.startTime)
	}
	e.mu.Unlock()

	if tracker != nil {
		status.ActiveOrders = tracker.ActiveCount()
	}
	return status
}

// ListActiveOrders exposes open orders to front ends.
func (e *Engine) ListActiveOrders() []order.Order {
	e.mu.Lock()
	tracker := e.tracker
	e.mu.Unlock()
	if tracker == nil {
		return nil
	}
	return tracker.ActiveOrders()
}

// CancelOrder cancels one order on behalf of a front end. Safe to call
// concurrently with a running cycle.
func (e *Engine) CancelOrder(ctx context.Context, orderID string) bool {
	e.mu.Lock()
	tracker := e.tracker
	e.mu.Unlock()
	if tracker == nil {
		return false
	}
	return tracker.Cancel(ctx, orderID)
}

// ReconfigureRisk hot-swaps the risk limits; wired to the config watcher.
func (e *Engine) ReconfigureRisk(limits risk.Limits) error {
	e.mu.Lock()
	evaluator := e.evaluator
	e.mu.Unlock()
	if evaluator == nil {
		return fmt.Errorf("%w: engine not started", ErrInvalidState)
	}
	if err := evaluator.Reconfigure(limits); err != nil {
		return err
	}
	e.log.Info("risk limits reconfigured",
		zap.Float64("max_position_size", limits.MaxPositionSize),
		zap.Float64("max_daily_loss", limits.MaxDailyLoss),
		zap.Int("max_open_positions", limits.MaxOpenPositions))
	return nil
}

// RecordPnL folds an externally observed P&L delta (e.g. account valuation
// updates in live mode) into the running daily figure.
func (e *Engine) RecordPnL(delta float64) {
	e.mu.Lock()
	e.dailyPnL += delta
	pnl := e.dailyPnL
	e.mu.Unlock()
	if e.deps.Metrics != nil {
		e.deps.Metrics.SetDailyPnL(pnl)
	}
}

// run is the main loop: one cycle per scheduler tick until stop or ctx
// cancellation. A stop request is observed at the next tick boundary.
func (e *Engine) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	factory := e.deps.NewScheduler
	if factory == nil {
		factory = NewTickerScheduler
	}
	sched := factory(e.opts.CyclePeriod)
	defer sched.Stop()

	for {
		select {
		case <-ctx.Done():
			e.log.Info("context done, run loop exiting")
			return
		case <-e.stopChan:
			e.log.Info("stop signal received")
			return
		case <-sched.C():
			e.cycle(ctx)
		}
	}
}

// cycle executes one evaluate-and-act iteration. Every step failure is a
// contained cycle fault: logged, counted, never loop-fatal.
func (e *Engine) cycle(ctx context.Context) {
	started := time.Now()

	e.mu.Lock()
	state := e.state
	opts := e.opts
	cache := e.cache
	tracker := e.tracker
	e.mu.Unlock()

	if state != StateRunning && state != StatePaused {
		return
	}

	// A paused engine suspends the whole trading cycle: no evaluation, no
	// reconciliation, no gateway traffic. Only the status gauges refresh.
	if state == StatePaused {
		e.publishGauges(started)
		return
	}

	candle, ok := cache.Latest(ctx, opts.Symbol, opts.Interval)
	if !ok {
		e.recordFault("market_data", errors.New("no market data available"))
	} else {
		e.evaluateAndSubmit(ctx, candle)
	}

	tracker.Reconcile(ctx)

	e.publishGauges(started)
}

// evaluateAndSubmit runs the strategy, validates the proposal and submits an
// approved trade. Strategy failures are treated as hold.
func (e *Engine) evaluateAndSubmit(ctx context.Context, candle market.Candle) {
	e.mu.Lock()
	provider := e.provider
	evaluator := e.evaluator
	tracker := e.tracker
	cache := e.cache
	opts := e.opts
	dailyPnL := e.dailyPnL
	e.mu.Unlock()

	signal, err := provider.Evaluate(ctx, candle, cache.History(opts.Symbol, opts.Interval))
	if err != nil {
		e.recordFault("signal", err)
		signal = strategy.Hold(opts.Symbol)
	}
	if e.deps.Metrics != nil {
		e.deps.Metrics.SignalEvaluated(string(signal.Action))
	}
	if signal.Action != strategy.ActionBuy && signal.Action != strategy.ActionSell {
		return
	}

	req := risk.TradeRequest{Symbol: signal.Symbol, Amount: signal.Amount}
	verdict := evaluator.ValidateSymbol(req,
		tracker.ActiveCount(),
		tracker.ActiveCountBySymbol(signal.Symbol),
		dailyPnL)
	if verdict != nil {
		// An expected outcome, not an error: the trade is declined.
		e.log.LogRisk("trade_rejected",
			zap.String("symbol", signal.Symbol),
			zap.Float64("amount", signal.Amount),
			zap.String("reason", verdict.Error()))
		if e.deps.Metrics != nil {
			e.deps.Metrics.RiskRejected()
		}
		return
	}

	side := order.SideBuy
	if signal.Action == strategy.ActionSell {
		side = order.SideSell
	}
	submitted, err := tracker.Submit(ctx, signal.Symbol, side, order.TypeMarket, signal.Amount, 0)
	if err != nil {
		e.recordFault("submit", err)
		return
	}
	e.log.Info("trade submitted",
		zap.String("order_id", submitted.ID),
		zap.String("side", string(side)),
		zap.Float64("amount", signal.Amount),
		zap.Float64("confidence", signal.Confidence),
		zap.String("reason", signal.Reason))
}

// onFill updates trade statistics and balance when an order completes.
func (e *Engine) onFill(o order.Order) {
	fee := 0.0
	if raw, ok := o.Metadata["fee"]; ok {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			fee = v
		}
	}

	e.mu.Lock()
	e.totalTrades++
	if o.Side == order.SideBuy {
		e.balance -= o.FilledAmount + fee
	} else {
		e.balance += o.FilledAmount - fee
	}
	e.dailyPnL -= fee
	trades := e.totalTrades
	balance := e.balance
	e.mu.Unlock()

	e.log.LogOrder("filled", o.ID,
		zap.Float64("filled_price", o.FilledPrice),
		zap.Float64("filled_amount", o.FilledAmount),
		zap.Int64("total_trades", trades))
	if e.deps.Metrics != nil {
		e.deps.Metrics.SetBalance(balance)
	}
}

// recordFault logs a cycle fault, remembers it for status consumers and
// counts it.
func (e *Engine) recordFault(step string, err error) {
	e.mu.Lock()
	e.lastFault = fmt.Sprintf("%s: %v", step, err)
	e.mu.Unlock()
	e.log.LogCycle(step, err)
	if e.deps.Metrics != nil {
		e.deps.Metrics.CycleFault(step)
	}
}

func (e *Engine) publishState() {
	if e.deps.Metrics == nil {
		return
	}
	e.mu.Lock()
	state := e.state
	e.mu.Unlock()
	e.deps.Metrics.SetEngineState(int(state))
}

func (e *Engine) publishGauges(cycleStart time.Time) {
	if e.deps.Metrics == nil {
		return
	}
	status := e.Status()
	e.deps.Metrics.CycleCompleted(time.Since(cycleStart))
	e.deps.Metrics.SetActiveOrders(status.ActiveOrders)
	e.deps.Metrics.SetUptime(status.Uptime)
	e.deps.Metrics.SetBalance(status.Balance)
	e.deps.Metrics.SetDailyPnL(status.DailyPnL)
	e.deps.Metrics.SetEngineState(int(status.State))
}

// cachePrices adapts the market data cache to the simulated executor's
// price source. It reads cached history only; reconciliation never triggers
// an upstream fetch.
type cachePrices struct {
	cache    *market.Cache
	interval string
}

func (p *cachePrices) LastClose(symbol string) (float64, bool) {
	history := p.cache.History(symbol, p.interval)
	if len(history) == 0 {
		return 0, false
	}
	return history[len(history)-1].Close, true
}

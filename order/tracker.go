package order

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"autotrader/infrastructure/logger"
)

// Observer receives order lifecycle notifications. Implemented by the
// metrics collector; a nil observer disables reporting.
type Observer interface {
	OrderSubmitted()
	OrderFilled()
	OrderCancelled()
	OrderRejected()
}

// FillHandler is invoked after an order reaches filled (or records a partial
// fill). The engine uses it to update balance and running P&L.
type FillHandler func(o Order)

// ErrMalformedOrder rejects submissions that cannot form a valid order.
var ErrMalformedOrder = errors.New("malformed order request")

// TrackerConfig bounds tracker housekeeping.
type TrackerConfig struct {
	Retention time.Duration // completed orders older than this are pruned
}

// DefaultTrackerConfig keeps completed orders for seven days.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{Retention: 7 * 24 * time.Hour}
}

// Tracker owns the full order lifecycle from submission through terminal
// status. Active and completed orders live in disjoint sets keyed by id; an
// id never returns from completed to active. All state transitions happen
// under one mutex so a cancellation racing a reconciliation lands fully
// before or fully after that order's reconciliation step.
type Tracker struct {
	exec     ExecutionStrategy
	log      *logger.Logger
	cfg      TrackerConfig
	observer Observer
	onFill   FillHandler

	mu        sync.RWMutex
	active    map[string]*Order
	completed map[string]*Order
	lastPrune time.Time
}

// NewTracker builds a Tracker over exec. log may be nil.
func NewTracker(exec ExecutionStrategy, cfg TrackerConfig, log *logger.Logger) (*Tracker, error) {
	if exec == nil {
		return nil, errors.New("execution strategy is required")
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 7 * 24 * time.Hour
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Tracker{
		exec:      exec,
		log:       log,
		cfg:       cfg,
		active:    make(map[string]*Order),
		completed: make(map[string]*Order),
	}, nil
}

// SetObserver attaches a lifecycle observer.
func (t *Tracker) SetObserver(obs Observer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observer = obs
}

// SetFillHandler registers the fill callback.
func (t *Tracker) SetFillHandler(h FillHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onFill = h
}

// Submit constructs a pending order, registers it in the active set and
// pushes it toward the execution strategy. It never errors for a well-formed
// request; execution failures surface as status rejected on the returned
// order.
func (t *Tracker) Submit(ctx context.Context, symbol string, side Side, typ Type, amount, limitPrice float64) (Order, error) {
	if symbol == "" || amount <= 0 {
		return Order{}, fmt.Errorf("%w: symbol=%q amount=%v", ErrMalformedOrder, symbol, amount)
	}
	if typ == TypeLimit && limitPrice <= 0 {
		return Order{}, fmt.Errorf("%w: limit order without price", ErrMalformedOrder)
	}

	o := newOrder(symbol, side, typ, amount, limitPrice)

	t.mu.Lock()
	t.active[o.ID] = o
	t.mu.Unlock()

	t.log.LogOrder("submit", o.ID,
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.String("type", string(typ)),
		zap.Float64("amount", amount))
	t.notify(func(obs Observer) { obs.OrderSubmitted() })

	// Place gets a private copy; the shared order is only touched under the
	// lock, so concurrent readers never observe a half-applied placement.
	view := o.Clone()
	result, err := t.exec.Place(ctx, &view)

	t.mu.Lock()
	if err != nil {
		t.transitionLocked(o, PollResult{Status: StatusRejected, Reason: err.Error()})
	} else if result != nil {
		t.transitionLocked(o, *result)
	}
	// A cancel that landed while the remote place was in flight made the
	// order terminal before the exchange id could be applied. The venue
	// still holds it; withdraw it after releasing the lock.
	orphanID := ""
	if err == nil && result != nil && result.ExchangeID != "" && o.ExchangeID == "" {
		orphanID = result.ExchangeID
	}
	out := o.Clone()
	t.mu.Unlock()

	if orphanID != "" {
		view.ExchangeID = orphanID
		if cerr := t.exec.CancelRemote(ctx, &view); cerr != nil {
			t.log.LogOrder("orphan_cancel_failed", o.ID, zap.Error(cerr))
		}
	}
	return out, nil
}

// Reconcile walks all active orders and applies any progress the execution
// strategy reports. Orders already terminal are untouched. Individual poll
// failures are logged and do not abort the remaining orders.
func (t *Tracker) Reconcile(ctx context.Context) {
	t.mu.RLock()
	snapshot := make([]*Order, 0, len(t.active))
	for _, o := range t.active {
		snapshot = append(snapshot, o)
	}
	t.mu.RUnlock()

	for _, o := range snapshot {
		t.mu.RLock()
		view := o.Clone()
		t.mu.RUnlock()
		if view.Status.IsTerminal() {
			continue
		}

		result, changed, err := t.exec.Poll(ctx, &view)
		if err != nil {
			t.log.LogCycle("reconcile", err, zap.String("order_id", o.ID))
			if errors.Is(err, ErrGatewayTimeout) {
				t.mu.Lock()
				t.transitionLocked(o, PollResult{Status: StatusRejected, Reason: err.Error()})
				t.mu.Unlock()
			}
			continue
		}
		if !changed {
			continue
		}

		t.mu.Lock()
		t.transitionLocked(o, result)
		t.mu.Unlock()
	}

	t.pruneExpired()
}

// Cancel transitions an active order to cancelled. It returns false, without
// error, when the order does not exist or is already terminal.
func (t *Tracker) Cancel(ctx context.Context, orderID string) bool {
	t.mu.RLock()
	o, ok := t.active[orderID]
	var view Order
	if ok {
		view = o.Clone()
	}
	t.mu.RUnlock()
	if !ok || view.Status.IsTerminal() {
		return false
	}

	if err := t.exec.CancelRemote(ctx, &view); err != nil {
		t.log.LogOrder("cancel_failed", orderID, zap.Error(err))
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// A fill may have landed while the remote call was in flight.
	if o, ok = t.active[orderID]; !ok || !CanTransition(o.Status, StatusCancelled) {
		return false
	}
	// The order gained an exchange id after the snapshot, so the venue was
	// never told. Refuse the local cancel; the caller retries against the
	// now-visible exchange id.
	if o.ExchangeID != view.ExchangeID {
		t.log.LogOrder("cancel_stale_snapshot", orderID)
		return false
	}
	t.transitionLocked(o, PollResult{Status: StatusCancelled, Reason: "cancel requested"})
	return true
}

// CancelAll cancels every active order, best effort. Used during engine
// shutdown; per-order failures are logged and skipped.
func (t *Tracker) CancelAll(ctx context.Context) {
	t.mu.RLock()
	ids := make([]string, 0, len(t.active))
	for id := range t.active {
		ids = append(ids, id)
	}
	t.mu.RUnlock()

	for _, id := range ids {
		if !t.Cancel(ctx, id) {
			t.log.LogOrder("cancel_all_skip", id)
		}
	}
}

// Get returns a copy of the order with the given id from either set.
func (t *Tracker) Get(orderID string) (Order, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if o, ok := t.active[orderID]; ok {
		return o.Clone(), true
	}
	if o, ok := t.completed[orderID]; ok {
		return o.Clone(), true
	}
	return Order{}, false
}

// ActiveOrders returns defensive copies of all non-terminal orders.
func (t *Tracker) ActiveOrders() []Order {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Order, 0, len(t.active))
	for _, o := range t.active {
		out = append(out, o.Clone())
	}
	return out
}

// ActiveCount reports the number of open positions; the risk evaluator
// consumes this.
func (t *Tracker) ActiveCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.active)
}

// ActiveCountBySymbol reports open positions on one instrument.
func (t *Tracker) ActiveCountBySymbol(symbol string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, o := range t.active {
		if o.Symbol == symbol {
			n++
		}
	}
	return n
}

// transitionLocked applies result to o, moving it to the completed set when
// the new status is terminal. Illegal transitions are dropped with a log
// line; terminal orders are never mutated. Caller holds t.mu.
func (t *Tracker) transitionLocked(o *Order, result PollResult) {
	if !CanTransition(o.Status, result.Status) {
		if o.Status != result.Status {
			t.log.LogOrder("illegal_transition", o.ID,
				zap.String("from", string(o.Status)),
				zap.String("to", string(result.Status)))
		}
		return
	}

	o.Status = result.Status
	o.UpdatedAt = time.Now().UTC()
	if result.ExchangeID != "" {
		o.ExchangeID = result.ExchangeID
	}
	if result.FilledAmount > 0 {
		o.FilledAmount = result.FilledAmount
	}
	if result.FilledPrice > 0 {
		o.FilledPrice = result.FilledPrice
	}
	if result.Fee > 0 {
		o.Metadata["fee"] = strconv.FormatFloat(result.Fee, 'f', -1, 64)
	}
	if result.Reason != "" {
		o.Reason = result.Reason
	}

	t.log.LogOrder("status_change", o.ID,
		zap.String("status", string(o.Status)),
		zap.Float64("filled_amount", o.FilledAmount),
		zap.Float64("filled_price", o.FilledPrice))

	switch o.Status {
	case StatusFilled:
		t.notifyLocked(func(obs Observer) { obs.OrderFilled() })
		if t.onFill != nil {
			t.onFill(o.Clone())
		}
	case StatusCancelled:
		t.notifyLocked(func(obs Observer) { obs.OrderCancelled() })
	case StatusRejected:
		t.notifyLocked(func(obs Observer) { obs.OrderRejected() })
	}

	if o.Status.IsTerminal() {
		delete(t.active, o.ID)
		t.completed[o.ID] = o
	}
}

// pruneExpired evicts completed orders past the retention window. Runs
// opportunistically from Reconcile, at most once per minute.
func (t *Tracker) pruneExpired() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now().UTC()
	if now.Sub(t.lastPrune) < time.Minute {
		return
	}
	t.lastPrune = now

	cutoff := now.Add(-t.cfg.Retention)
	pruned := 0
	for id, o := range t.completed {
		if o.UpdatedAt.Before(cutoff) {
			delete(t.completed, id)
			pruned++
		}
	}
	if pruned > 0 {
		t.log.Info("pruned completed orders", zap.Int("count", pruned))
	}
}

func (t *Tracker) notify(fn func(Observer)) {
	t.mu.RLock()
	obs := t.observer
	t.mu.RUnlock()
	if obs != nil {
		fn(obs)
	}
}

func (t *Tracker) notifyLocked(fn func(Observer)) {
	if t.observer != nil {
		fn(t.observer)
	}
}

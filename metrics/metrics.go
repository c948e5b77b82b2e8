// Package metrics exposes Prometheus instrumentation for the trading core.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config names the metric namespace.
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig returns the production namespace.
func DefaultConfig() Config {
	return Config{Namespace: "autotrader", Subsystem: "engine"}
}

// Collector owns a private registry so tests can build collectors freely
// without duplicate-registration panics. It implements the order tracker's
// and market cache's observer interfaces.
type Collector struct {
	registry *prometheus.Registry

	// cycle
	cyclesTotal prometheus.Counter
	cycleFaults *prometheus.CounterVec
	cycleTime   prometheus.Histogram

	// signals and risk
	signalsTotal *prometheus.CounterVec
	riskRejects  prometheus.Counter

	// orders
	ordersSubmitted prometheus.Counter
	ordersFilled    prometheus.Counter
	ordersCancelled prometheus.Counter
	ordersRejected  prometheus.Counter
	activeOrders    prometheus.Gauge

	// engine status
	engineState prometheus.Gauge
	balance     prometheus.Gauge
	dailyPnL    prometheus.Gauge
	uptime      prometheus.Gauge

	// market data cache
	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter
	cacheFailures prometheus.Counter

	// gateway
	gatewayLatency prometheus.Histogram
}

// New builds a Collector with all metrics registered.
func New(cfg Config) *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	opts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, Name: name, Help: help}
	}
	gaugeOpts := func(name, help string) prometheus.GaugeOpts {
		return prometheus.GaugeOpts{Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, Name: name, Help: help}
	}

	return &Collector{
		registry: reg,

		cyclesTotal: factory.NewCounter(opts("cycles_total", "Completed engine cycles")),
		cycleFaults: factory.NewCounterVec(opts("cycle_faults_total", "Cycle-level faults by step"), []string{"step"}),
		cycleTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "cycle_duration_seconds", Help: "Wall time of one engine cycle",
			Buckets: prometheus.DefBuckets,
		}),

		signalsTotal: factory.NewCounterVec(opts("signals_total", "Strategy signals by action"), []string{"action"}),
		riskRejects:  factory.NewCounter(opts("risk_rejects_total", "Trades rejected by the risk evaluator")),

		ordersSubmitted: factory.NewCounter(opts("orders_submitted_total", "Orders submitted")),
		ordersFilled:    factory.NewCounter(opts("orders_filled_total", "Orders filled")),
		ordersCancelled: factory.NewCounter(opts("orders_cancelled_total", "Orders cancelled")),
		ordersRejected:  factory.NewCounter(opts("orders_rejected_total", "Orders rejected")),
		activeOrders:    factory.NewGauge(gaugeOpts("active_orders", "Currently open orders")),

		engineState: factory.NewGauge(gaugeOpts("state", "Engine state (0=created .. 5=stopped)")),
		balance:     factory.NewGauge(gaugeOpts("balance", "Account balance in quote currency")),
		dailyPnL:    factory.NewGauge(gaugeOpts("daily_pnl", "Running daily P&L")),
		uptime:      factory.NewGauge(gaugeOpts("uptime_seconds", "Seconds since engine start")),

		cacheHits:     factory.NewCounter(opts("cache_hits_total", "Market data cache hits")),
		cacheMisses:   factory.NewCounter(opts("cache_misses_total", "Market data cache misses")),
		cacheFailures: factory.NewCounter(opts("cache_fetch_failures_total", "Upstream market data fetch failures")),

		gatewayLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "gateway_latency_seconds", Help: "Execution gateway call latency",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Handler serves this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// CycleCompleted records one finished cycle with its duration.
func (c *Collector) CycleCompleted(d time.Duration) {
	c.cyclesTotal.Inc()
	c.cycleTime.Observe(d.Seconds())
}

// CycleFault counts a contained cycle fault for step.
func (c *Collector) CycleFault(step string) {
	c.cycleFaults.WithLabelValues(step).Inc()
}

// SignalEvaluated counts a strategy signal by action.
func (c *Collector) SignalEvaluated(action string) {
	c.signalsTotal.WithLabelValues(action).Inc()
}

// RiskRejected counts a declined trade.
func (c *Collector) RiskRejected() { c.riskRejects.Inc() }

// Order lifecycle observer (order.Observer).
func (c *Collector) OrderSubmitted() { c.ordersSubmitted.Inc() }
func (c *Collector) OrderFilled()    { c.ordersFilled.Inc() }
func (c *Collector) OrderCancelled() { c.ordersCancelled.Inc() }
func (c *Collector) OrderRejected()  { c.ordersRejected.Inc() }

// SetActiveOrders updates the open-order gauge.
func (c *Collector) SetActiveOrders(n int) { c.activeOrders.Set(float64(n)) }

// SetEngineState publishes the state enum value.
func (c *Collector) SetEngineState(state int) { c.engineState.Set(float64(state)) }

// SetBalance publishes the account balance.
func (c *Collector) SetBalance(v float64) { c.balance.Set(v) }

// SetDailyPnL publishes the running daily P&L.
func (c *Collector) SetDailyPnL(v float64) { c.dailyPnL.Set(v) }

// SetUptime publishes seconds since engine start.
func (c *Collector) SetUptime(d time.Duration) { c.uptime.Set(d.Seconds()) }

// Market data cache observer (market.Observer).
func (c *Collector) CacheHit()          { c.cacheHits.Inc() }
func (c *Collector) CacheMiss()         { c.cacheMisses.Inc() }
func (c *Collector) CacheFetchFailure() { c.cacheFailures.Inc() }

// ObserveGatewayLatency records one gateway round trip.
func (c *Collector) ObserveGatewayLatency(d time.Duration) {
	c.gatewayLatency.Observe(d.Seconds())
}

package engine

import "time"

// Scheduler paces the run loop. The ticker lives behind this interface so
// tests drive cycles without wall-clock waits.
type Scheduler interface {
	C() <-chan time.Time
	Stop()
}

// SchedulerFactory builds a Scheduler for the configured cycle period.
type SchedulerFactory func(period time.Duration) Scheduler

type tickerScheduler struct {
	ticker *time.Ticker
}

// NewTickerScheduler is the production factory.
func NewTickerScheduler(period time.Duration) Scheduler {
	return &tickerScheduler{ticker: time.NewTicker(period)}
}

func (t *tickerScheduler) C() <-chan time.Time { return t.ticker.C }
func (t *tickerScheduler) Stop()               { t.ticker.Stop() }

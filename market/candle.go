package market

import "time"

// Candle represents one priced OHLCV data point. Immutable once produced.
type Candle struct {
	Symbol     string
	Interval   string
	Ts         time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
	Indicators map[string]float64
}

package market

import "time"

// intervalMinutes is the fixed interval lookup table. Unrecognized intervals
// fall back to the 1h duration so a bad interval never faults a cycle.
var intervalMinutes = map[string]int{
	"1m":  1,
	"5m":  5,
	"15m": 15,
	"30m": 30,
	"1h":  60,
	"4h":  240,
	"8h":  480,
	"1d":  1440,
	"1w":  10080,
}

// IntervalDuration maps an interval token to its duration.
func IntervalDuration(interval string) time.Duration {
	minutes, ok := intervalMinutes[interval]
	if !ok {
		minutes = intervalMinutes["1h"]
	}
	return time.Duration(minutes) * time.Minute
}

// SupportedIntervals lists the interval tokens the cache understands.
func SupportedIntervals() []string {
	return []string{"1m", "5m", "15m", "30m", "1h", "4h", "8h", "1d", "1w"}
}

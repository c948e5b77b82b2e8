package market

import "time"

// Clock abstracts time so freshness windows are testable.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// NowUTC is the default clock.
var NowUTC Clock = realClock{}

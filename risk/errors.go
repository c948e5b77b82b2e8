package risk

import "errors"

// Rejection reasons, ordered by rule priority. A rejected trade is an
// expected outcome, not a fault: callers branch on these, they never panic.
var (
	ErrMalformed     = errors.New("malformed trade request")
	ErrPositionSize  = errors.New("position size limit exceeded")
	ErrOpenPositions = errors.New("open position limit reached")
	ErrDailyLoss     = errors.New("daily loss limit reached")
	ErrSymbolCap     = errors.New("per-symbol position limit reached")
)

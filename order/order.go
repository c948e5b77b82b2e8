package order

import (
	"time"

	"github.com/google/uuid"
)

// Side is the order direction.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Type is the order kind.
type Type string

const (
	TypeMarket    Type = "market"
	TypeLimit     Type = "limit"
	TypeStop      Type = "stop"
	TypeStopLimit Type = "stop_limit"
)

// Status is the order lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSubmitted Status = "submitted"
	StatusPartial   Status = "partial"
	StatusFilled    Status = "filled"
	StatusCancelled Status = "cancelled"
	StatusRejected  Status = "rejected"
)

// transition is one edge of the status state machine.
type transition struct {
	from Status
	to   Status
}

// legalTransitions encodes the full lifecycle:
// pending → submitted → {filled | partial → filled | cancelled | rejected}.
// Once filled, cancellation is forbidden; terminal states have no edges.
var legalTransitions = map[transition]bool{
	{StatusPending, StatusSubmitted}: true,
	{StatusPending, StatusPartial}:   true,
	{StatusPending, StatusFilled}:    true,
	{StatusPending, StatusCancelled}: true,
	{StatusPending, StatusRejected}:  true,

	{StatusSubmitted, StatusPartial}:   true,
	{StatusSubmitted, StatusFilled}:    true,
	{StatusSubmitted, StatusCancelled}: true,
	{StatusSubmitted, StatusRejected}:  true,

	{StatusPartial, StatusFilled}:    true,
	{StatusPartial, StatusCancelled}: true,
}

// CanTransition reports whether from → to is a legal status change.
func CanTransition(from, to Status) bool {
	return legalTransitions[transition{from, to}]
}

// IsTerminal reports whether no further transition is permitted from s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// Order is created by the engine when a trade is approved and owned by the
// Tracker for its entire lifecycle. Terminal orders are never mutated.
type Order struct {
	ID           string
	Symbol       string
	Side         Side
	Type         Type
	Amount       float64
	Price        float64 // limit price; 0 when not applicable
	StopPrice    float64 // stop trigger; 0 when not applicable
	Status       Status
	FilledAmount float64
	FilledPrice  float64
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ExchangeID   string // execution-gateway id, live mode only
	Reason       string // rejection or cancellation reason
	Metadata     map[string]string
}

// newOrder builds a pending order with a fresh opaque id.
func newOrder(symbol string, side Side, typ Type, amount, price float64) *Order {
	now := time.Now().UTC()
	return &Order{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Side:      side,
		Type:      typ,
		Amount:    amount,
		Price:     price,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  make(map[string]string),
	}
}

// Clone returns a defensive copy safe to hand to external observers.
func (o *Order) Clone() Order {
	dup := *o
	if o.Metadata != nil {
		dup.Metadata = make(map[string]string, len(o.Metadata))
		for k, v := range o.Metadata {
			dup.Metadata[k] = v
		}
	}
	return dup
}

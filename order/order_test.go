package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	testCases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusSubmitted, true},
		{StatusPending, StatusFilled, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusRejected, true},
		{StatusSubmitted, StatusPartial, true},
		{StatusSubmitted, StatusFilled, true},
		{StatusPartial, StatusFilled, true},
		{StatusPartial, StatusCancelled, true},

		{StatusPartial, StatusRejected, false},
		{StatusFilled, StatusCancelled, false},
		{StatusFilled, StatusPending, false},
		{StatusCancelled, StatusSubmitted, false},
		{StatusRejected, StatusFilled, false},
		{StatusSubmitted, StatusPending, false},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to),
			"%s -> %s", tc.from, tc.to)
	}
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusSubmitted.IsTerminal())
	assert.False(t, StatusPartial.IsTerminal())
	assert.True(t, StatusFilled.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusRejected.IsTerminal())
}

func TestNewOrderDefaults(t *testing.T) {
	o := newOrder("BTC/USDT", SideBuy, TypeLimit, 10, 100)
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, 10.0, o.Amount)
	assert.Equal(t, 100.0, o.Price)
	assert.False(t, o.CreatedAt.IsZero())
	assert.NotNil(t, o.Metadata)

	// IDs are unique per order.
	other := newOrder("BTC/USDT", SideBuy, TypeLimit, 10, 100)
	assert.NotEqual(t, o.ID, other.ID)
}

func TestCloneIsolatesMetadata(t *testing.T) {
	o := newOrder("BTC/USDT", SideBuy, TypeMarket, 1, 0)
	o.Metadata["fee"] = "0.1"

	c := o.Clone()
	c.Metadata["fee"] = "9.9"

	assert.Equal(t, "0.1", o.Metadata["fee"])
}

package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrder(qty float64) *Order {
	return &Order{
		OrderID:    "o-1",
		Instrument: Instrument{Symbol: "fed-dec", QuoteAsset: "USDC", GatewayName: "paper"},
		Side:       OrderSideBuy,
		Type:       OrderTypeLimit,
		Quantity:   qty,
		Price:      0.4,
		Status:     OrderStatusPending,
	}
}

// 成交数量永远不超过下单数量
func TestOrderApplyFillClamped(t *testing.T) {
	o := newTestOrder(10)
	assert.Equal(t, 4.0, o.ApplyFill(4))
	assert.Equal(t, 6.0, o.ApplyFill(25))
	assert.Equal(t, 10.0, o.FilledQty)
	assert.Equal(t, 0.0, o.ApplyFill(3), "回退的成交数量不生效")
	assert.LessOrEqual(t, o.FilledQty, o.Quantity)
}

func TestOrderTransitions(t *testing.T) {
	now := time.Now()
	o := newTestOrder(10)
	require.NoError(t, o.Transition(OrderStatusSubmitted, now))
	require.NoError(t, o.Transition(OrderStatusPartiallyFilled, now))
	require.NoError(t, o.Transition(OrderStatusFilled, now))
	assert.Equal(t, o.Quantity, o.FilledQty)

	err := o.Transition(OrderStatusSubmitted, now)
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, OrderStatusFilled, o.Status)

	rejected := newTestOrder(1)
	require.NoError(t, rejected.Transition(OrderStatusRejected, now))
	assert.True(t, rejected.Status.IsTerminal())
	assert.False(t, CanTransition(OrderStatusPending, OrderStatusFilled))
}

func TestOrderNotional(t *testing.T) {
	o := newTestOrder(10)
	assert.InDelta(t, 4.0, o.Notional(), 1e-9)
	o.Price = 0
	assert.InDelta(t, 10.0, o.Notional(), 1e-9)
	assert.Equal(t, "USDC", Instrument{}.Quote())
}

func TestPositionAddFill(t *testing.T) {
	p := Position{}
	p.AddFill(OrderSideBuy, 10, 0.5)
	p.AddFill(OrderSideBuy, 10, 0.7)
	assert.InDelta(t, 20, p.Size, 1e-9)
	assert.InDelta(t, 0.6, p.AvgPrice, 1e-9)

	p.AddFill(OrderSideSell, 5, 0.9)
	assert.InDelta(t, 15, p.Size, 1e-9)
	assert.InDelta(t, 0.6, p.AvgPrice, 1e-9)

	p.AddFill(OrderSideSell, 20, 0.8)
	assert.InDelta(t, -5, p.Size, 1e-9)
	assert.InDelta(t, 0.8, p.AvgPrice, 1e-9)
}

func TestConfidenceOrdering(t *testing.T) {
	assert.True(t, ConfidenceHigh.AtLeast(ConfidenceMedium))
	assert.False(t, ConfidenceLow.AtLeast(ConfidenceMedium))
	c, err := ParseConfidence("medium")
	require.NoError(t, err)
	assert.Equal(t, ConfidenceMedium, c)
	_, err = ParseConfidence("extreme")
	assert.Error(t, err)
}

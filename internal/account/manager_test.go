package account

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/autoexec/internal/domain"
	"github.com/betbot/autoexec/internal/ports"
)

type balanceStore struct {
	ports.NopPersistence
	last map[string]decimal.Decimal
}

func (s *balanceStore) SaveAccountBalance(_ context.Context, id, asset string, b decimal.Decimal) error {
	if s.last == nil {
		s.last = map[string]decimal.Decimal{}
	}
	s.last[id+"/"+asset] = b
	return nil
}

func newManager(t *testing.T, store ports.Persistence) *Manager {
	t.Helper()
	m := NewManager(store)
	acc := domain.NewAccountInfo("main", "paper")
	acc.Balances["USDC"] = decimal.NewFromInt(1000)
	require.NoError(t, m.AddAccount(acc))
	return m
}

func TestGetAccountReturnsCopy(t *testing.T) {
	m := newManager(t, nil)
	acc, err := m.GetAccount("main")
	require.NoError(t, err)
	acc.Balances["USDC"] = decimal.Zero

	again, err := m.GetAccount("main")
	require.NoError(t, err)
	assert.True(t, again.Balance("USDC").Equal(decimal.NewFromInt(1000)))

	_, err = m.GetAccount("nope")
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestApplyFillBuyThenSell(t *testing.T) {
	store := &balanceStore{}
	m := newManager(t, store)
	ctx := context.Background()
	order := &domain.Order{
		OrderID:    "o1",
		Instrument: domain.Instrument{Symbol: "mkt", QuoteAsset: "USDC"},
		Side:       domain.OrderSideBuy,
		Quantity:   100,
		AccountID:  "main",
	}
	require.NoError(t, m.ApplyFill(ctx, order, 100, 0.4))

	acc, _ := m.GetAccount("main")
	assert.True(t, acc.Balance("USDC").Equal(decimal.NewFromInt(960)))
	assert.Equal(t, 100.0, acc.Positions["mkt"].Size)
	assert.InDelta(t, 0.4, acc.Positions["mkt"].AvgPrice, 1e-12)
	assert.True(t, store.last["main/USDC"].Equal(decimal.NewFromInt(960)))

	sell := order.Clone()
	sell.Side = domain.OrderSideSell
	require.NoError(t, m.ApplyFill(ctx, sell, 100, 0.5))
	acc, _ = m.GetAccount("main")
	assert.True(t, acc.Balance("USDC").Equal(decimal.NewFromInt(1010)))
	_, held := acc.Positions["mkt"]
	assert.False(t, held)
}

func TestUpdateBalance(t *testing.T) {
	m := newManager(t, nil)
	b, err := m.UpdateBalance(context.Background(), "main", "USDC", decimal.NewFromInt(-250))
	require.NoError(t, err)
	assert.True(t, b.Equal(decimal.NewFromInt(750)))

	_, err = m.UpdateBalance(context.Background(), "x", "USDC", decimal.NewFromInt(1))
	require.ErrorIs(t, err, ErrAccountNotFound)
}

package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/autoexec/internal/domain"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func testAccount(usdc float64) *domain.AccountInfo {
	acc := domain.NewAccountInfo("main_account", "paper")
	acc.Balances["USDC"] = decimal.NewFromFloat(usdc)
	return acc
}

func testOrder(id, symbol string, side domain.OrderSide, qty, price float64) *domain.Order {
	return &domain.Order{
		OrderID:    id,
		Instrument: domain.Instrument{Symbol: symbol, QuoteAsset: "USDC", GatewayName: "paper"},
		Side:       side,
		Type:       domain.OrderTypeLimit,
		Quantity:   qty,
		Price:      price,
		Status:     domain.OrderStatusPending,
	}
}

func newTestManager(t *testing.T, cfg Config, clock *fakeClock, opts ...Option) *Manager {
	t.Helper()
	opts = append(opts, WithClock(clock.now))
	m, err := NewManager(cfg, opts...)
	require.NoError(t, err)
	return m
}

func TestCheckOrderBalance(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local)}
	m := newTestManager(t, DefaultConfig(), clock)

	assert.True(t, m.CheckOrder(testAccount(100), testOrder("a", "m1", domain.OrderSideBuy, 100, 0.5)))
	v := m.Evaluate(testAccount(10), testOrder("b", "m1", domain.OrderSideBuy, 100, 0.5))
	assert.Equal(t, domain.VerdictRejected, v.Kind)
	assert.Contains(t, v.Reason, "余额不足")

	// 未指定价格时按 1 计
	assert.False(t, m.CheckOrder(testAccount(50), testOrder("c", "m1", domain.OrderSideBuy, 60, 0)))
}

func TestCheckOrderLimits(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local)}
	cfg := DefaultConfig()
	cfg.MaxOrderSize = 100
	cfg.DailyTradeLimit = 150
	cfg.MaxMarketExposure = 120
	m := newTestManager(t, cfg, clock)
	acc := testAccount(10000)

	assert.False(t, m.CheckOrder(acc, testOrder("big", "m1", domain.OrderSideBuy, 300, 0.5)), "单笔超限")

	m.RecordTrade(testOrder("t1", "m1", domain.OrderSideBuy, 160, 0.5), 0.5)
	assert.False(t, m.CheckOrder(acc, testOrder("x", "m1", domain.OrderSideBuy, 100, 0.5)), "市场敞口超限")
	assert.True(t, m.CheckOrder(acc, testOrder("y", "m2", domain.OrderSideBuy, 100, 0.5)))

	m.RecordTrade(testOrder("t2", "m2", domain.OrderSideBuy, 100, 0.5), 0.5)
	v := m.Evaluate(acc, testOrder("z", "m3", domain.OrderSideBuy, 50, 0.5))
	assert.Contains(t, v.Reason, "当日累计")
}

func TestRecordTradeExposureSigned(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local)}
	m := newTestManager(t, DefaultConfig(), clock)

	m.RecordTrade(testOrder("b", "m1", domain.OrderSideBuy, 100, 0.6), 0.6)
	m.RecordTrade(testOrder("s", "m1", domain.OrderSideSell, 50, 0.6), 0.6)
	snap := m.Snapshot()
	assert.True(t, snap.Exposure["m1"].Equal(decimal.NewFromInt(30)), snap.Exposure["m1"].String())
	assert.True(t, snap.DailyNotional.Equal(decimal.NewFromInt(90)))
	assert.Equal(t, 2, snap.LedgerSize)
}

func TestExposureCheckUsesSignedLedger(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local)}
	cfg := DefaultConfig()
	cfg.MaxMarketExposure = 100
	m := newTestManager(t, cfg, clock)
	acc := testAccount(10000)

	// 净卖出 -80 后，再下 150 名义金额：-80+150=70 不超限
	m.RecordTrade(testOrder("s1", "m1", domain.OrderSideSell, 100, 0.8), 0.8)
	assert.True(t, m.CheckOrder(acc, testOrder("b1", "m1", domain.OrderSideBuy, 300, 0.5)))

	m.RecordTrade(testOrder("b2", "m1", domain.OrderSideBuy, 100, 0.8), 0.8)
	assert.False(t, m.CheckOrder(acc, testOrder("b3", "m1", domain.OrderSideBuy, 202, 0.5)))
}

func TestTradeFrequency(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local)}
	cfg := DefaultConfig()
	cfg.MaxTradesPerMinute = 3
	m := newTestManager(t, cfg, clock)
	acc := testAccount(10000)

	for i := 0; i < 3; i++ {
		m.RecordTrade(testOrder("t", "m1", domain.OrderSideBuy, 1, 0.5), 0.5)
		clock.advance(time.Second)
	}
	assert.False(t, m.CheckOrder(acc, testOrder("n", "m2", domain.OrderSideBuy, 1, 0.5)))

	clock.advance(time.Minute)
	assert.True(t, m.CheckOrder(acc, testOrder("n", "m2", domain.OrderSideBuy, 1, 0.5)))
}

func TestDailyResetOnDayBoundary(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 23, 59, 0, 0, time.Local)}
	cfg := DefaultConfig()
	cfg.DailyTradeLimit = 100
	m := newTestManager(t, cfg, clock)
	acc := testAccount(10000)

	m.RecordTrade(testOrder("t1", "m1", domain.OrderSideBuy, 180, 0.5), 0.5)
	assert.False(t, m.CheckOrder(acc, testOrder("x", "m2", domain.OrderSideBuy, 40, 0.5)))

	clock.advance(2 * time.Minute)
	assert.True(t, m.CheckOrder(acc, testOrder("x", "m2", domain.OrderSideBuy, 40, 0.5)))
	assert.True(t, m.Snapshot().DailyNotional.IsZero())
}

// 相同输入与台账状态下结论不变
func TestCheckOrderIdempotent(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local)}
	m := newTestManager(t, DefaultConfig(), clock)
	acc := testAccount(30)
	o := testOrder("a", "m1", domain.OrderSideBuy, 100, 0.5)

	first := m.Evaluate(acc, o)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, m.Evaluate(acc, o))
	}
}

func TestPositionLimit(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local)}
	cfg := DefaultConfig()
	cfg.MaxPositionSize = 100
	m := newTestManager(t, cfg, clock)
	acc := testAccount(1000)
	acc.Positions["m9"] = domain.Position{Instrument: domain.Instrument{Symbol: "m9"}, Size: 400, AvgPrice: 0.5}

	v := m.Evaluate(acc, testOrder("a", "m1", domain.OrderSideBuy, 10, 0.5))
	assert.Contains(t, v.Reason, "总持仓")
}

type staticRef map[string]float64

func (s staticRef) ReferencePrice(order *domain.Order) (float64, bool) {
	p, ok := s[order.Symbol()]
	return p, ok
}

func TestPriceDeviation(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local)}
	m := newTestManager(t, DefaultConfig(), clock, WithReferencePrices(staticRef{"m1": 0.5}))
	acc := testAccount(1000)

	assert.True(t, m.CheckOrder(acc, testOrder("a", "m1", domain.OrderSideBuy, 10, 0.52)))
	assert.False(t, m.CheckOrder(acc, testOrder("b", "m1", domain.OrderSideBuy, 10, 0.7)))
	// 没有参考价时放行
	assert.True(t, m.CheckOrder(acc, testOrder("c", "m2", domain.OrderSideBuy, 10, 0.9)))
}

func TestSetConfigRejectsInvalid(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	m := newTestManager(t, DefaultConfig(), clock)
	bad := DefaultConfig()
	bad.MaxOrderSize = 0
	require.Error(t, m.SetConfig(bad))
	assert.Equal(t, DefaultConfig(), m.Config())

	_, err := NewManager(bad)
	assert.Error(t, err)
}

func TestLedgerCapped(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 1, 0, 0, 0, time.Local)}
	cfg := DefaultConfig()
	cfg.DailyTradeLimit = 1e9
	m := newTestManager(t, cfg, clock)
	for i := 0; i < maxLedgerEntries+25; i++ {
		m.RecordTrade(testOrder("t", "m1", domain.OrderSideBuy, 1, 0.1), 0.1)
	}
	assert.Equal(t, maxLedgerEntries, m.Snapshot().LedgerSize)
}

func TestShouldStopLoss(t *testing.T) {
	m := newTestManager(t, DefaultConfig(), &fakeClock{t: time.Now()})
	pos := domain.Position{Size: 10, AvgPrice: 0.6}
	assert.False(t, m.ShouldStopLoss(pos, 0.58))
	assert.True(t, m.ShouldStopLoss(pos, 0.55))
}

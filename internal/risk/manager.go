package risk

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/autoexec/internal/domain"
)

var riskLog = logrus.WithField("component", "risk_manager")

const (
	maxLedgerEntries = 1000
	frequencyWindow  = time.Minute
)

// TradeRecord 风控台账中的一笔成交
type TradeRecord struct {
	OrderID   string           `json:"order_id"`
	Market    string           `json:"market"`
	Side      domain.OrderSide `json:"side"`
	Quantity  float64          `json:"quantity"`
	Price     float64          `json:"price"`
	Notional  decimal.Decimal  `json:"notional"`
	Timestamp time.Time        `json:"timestamp"`
}

// ReferencePriceProvider 价格偏离检查的参考价来源；拿不到参考价时返回 ok=false，检查放行
type ReferencePriceProvider interface {
	ReferencePrice(order *domain.Order) (price float64, ok bool)
}

// Manager 风控管理器。
//
// CheckOrder 只读台账；RecordTrade 在下单成功后更新当日累计、分市场敞口和台账。
type Manager struct {
	cfg atomic.Pointer[Config]

	mu            sync.Mutex
	dayKey        int // YYYYMMDD
	dailyNotional decimal.Decimal
	exposure      map[string]decimal.Decimal
	ledger        []TradeRecord

	refPrices ReferencePriceProvider
	now       func() time.Time
}

// Option 构造选项
type Option func(*Manager)

// WithReferencePrices 启用价格偏离检查
func WithReferencePrices(p ReferencePriceProvider) Option {
	return func(m *Manager) { m.refPrices = p }
}

// WithClock 替换时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager 创建风控管理器
func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		exposure: make(map[string]decimal.Decimal),
		now:      time.Now,
	}
	m.cfg.Store(&cfg)
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Config 当前生效的配置快照
func (m *Manager) Config() Config {
	return *m.cfg.Load()
}

// SetConfig 热更新限额；非法配置被拒绝且不影响当前配置
func (m *Manager) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.cfg.Store(&cfg)
	riskLog.Infof("风控配置已更新: %+v", cfg)
	return nil
}

// CheckOrder 按顺序执行全部检查，任一失败即返回 false
func (m *Manager) CheckOrder(account *domain.AccountInfo, order *domain.Order) bool {
	return m.Evaluate(account, order).Allowed()
}

// Evaluate 同 CheckOrder，但返回拒绝原因
func (m *Manager) Evaluate(account *domain.AccountInfo, order *domain.Order) domain.Verdict {
	if account == nil || order == nil {
		return domain.Reject("账户或订单为空")
	}
	cfg := m.Config()
	now := m.now()
	notional := decimal.NewFromFloat(order.Notional())
	// 参考价可能走网络，在锁外取
	ref, hasRef := m.referencePrice(cfg, order)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDayIfNeeded(now)

	quote := order.Instrument.Quote()
	if bal := account.Balance(quote); bal.LessThan(notional) {
		return domain.Reject(fmt.Sprintf("%s 余额不足: 需要 %s, 可用 %s", quote, notional.StringFixed(4), bal.StringFixed(4)))
	}

	if notional.GreaterThan(decimal.NewFromFloat(cfg.MaxOrderSize)) {
		return domain.Reject(fmt.Sprintf("单笔名义金额 %s 超过上限 %.2f", notional.StringFixed(4), cfg.MaxOrderSize))
	}

	if daily := m.dailyNotional.Add(notional); daily.GreaterThan(decimal.NewFromFloat(cfg.DailyTradeLimit)) {
		return domain.Reject(fmt.Sprintf("当日累计 %s 超过上限 %.2f", daily.StringFixed(4), cfg.DailyTradeLimit))
	}

	symbol := order.Symbol()
	if exp := m.exposure[symbol].Add(notional); exp.GreaterThan(decimal.NewFromFloat(cfg.MaxMarketExposure)) {
		return domain.Reject(fmt.Sprintf("市场 %s 敞口 %s 超过上限 %.2f", symbol, exp.StringFixed(4), cfg.MaxMarketExposure))
	}

	if n := m.tradesSince(now.Add(-frequencyWindow)); n >= cfg.MaxTradesPerMinute {
		return domain.Reject(fmt.Sprintf("交易频率超限: 最近一分钟 %d 笔", n))
	}

	if v := checkPriceDeviation(cfg, order, ref, hasRef); !v.Allowed() {
		return v
	}

	if total := account.PositionNotional(); total.GreaterThan(decimal.NewFromFloat(cfg.MaxPositionSize)) {
		return domain.Reject(fmt.Sprintf("总持仓名义金额 %s 超过上限 %.2f", total.StringFixed(4), cfg.MaxPositionSize))
	}

	return domain.Accept()
}

func (m *Manager) referencePrice(cfg Config, order *domain.Order) (float64, bool) {
	if m.refPrices == nil || !order.HasPrice() || cfg.MaxPriceDeviation <= 0 {
		return 0, false
	}
	ref, ok := m.refPrices.ReferencePrice(order)
	return ref, ok && ref > 0
}

func checkPriceDeviation(cfg Config, order *domain.Order, ref float64, ok bool) domain.Verdict {
	if !ok {
		return domain.Accept()
	}
	dev := math.Abs(order.Price-ref) / ref
	if dev > cfg.MaxPriceDeviation {
		return domain.Reject(fmt.Sprintf("价格 %.4f 偏离参考价 %.4f 达 %.2f%%", order.Price, ref, dev*100))
	}
	return domain.Accept()
}

// RecordTrade 下单成功后调用，每个订单只调用一次
func (m *Manager) RecordTrade(order *domain.Order, executedPrice float64) {
	if order == nil {
		return
	}
	price := executedPrice
	if price <= 0 {
		price = order.PriceOrOne()
	}
	notional := decimal.NewFromFloat(order.Quantity).Mul(decimal.NewFromFloat(price))
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDayIfNeeded(now)

	m.dailyNotional = m.dailyNotional.Add(notional)
	symbol := order.Symbol()
	if order.Side == domain.OrderSideSell {
		m.exposure[symbol] = m.exposure[symbol].Sub(notional)
	} else {
		m.exposure[symbol] = m.exposure[symbol].Add(notional)
	}

	m.ledger = append(m.ledger, TradeRecord{
		OrderID:   order.OrderID,
		Market:    symbol,
		Side:      order.Side,
		Quantity:  order.Quantity,
		Price:     price,
		Notional:  notional,
		Timestamp: now,
	})
	if over := len(m.ledger) - maxLedgerEntries; over > 0 {
		m.ledger = append(m.ledger[:0:0], m.ledger[over:]...)
	}
}

// Snapshot 台账汇总（只读）
type Snapshot struct {
	DailyNotional decimal.Decimal            `json:"daily_notional"`
	Exposure      map[string]decimal.Decimal `json:"exposure"`
	LedgerSize    int                        `json:"ledger_size"`
	TradesLastMin int                        `json:"trades_last_minute"`
}

// Snapshot 返回当前台账状态
func (m *Manager) Snapshot() Snapshot {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDayIfNeeded(now)
	exp := make(map[string]decimal.Decimal, len(m.exposure))
	for k, v := range m.exposure {
		exp[k] = v
	}
	return Snapshot{
		DailyNotional: m.dailyNotional,
		Exposure:      exp,
		LedgerSize:    len(m.ledger),
		TradesLastMin: m.tradesSince(now.Add(-frequencyWindow)),
	}
}

// ShouldStopLoss 多头持仓的标记价跌破 均价×(1-stop_loss_percent) 时返回 true
func (m *Manager) ShouldStopLoss(pos domain.Position, markPrice float64) bool {
	stop := m.Config().StopLossPercent
	if stop <= 0 || pos.Size <= 0 || pos.AvgPrice <= 0 || markPrice <= 0 {
		return false
	}
	return markPrice < pos.AvgPrice*(1-stop)
}

func (m *Manager) tradesSince(cutoff time.Time) int {
	n := 0
	for i := len(m.ledger) - 1; i >= 0; i-- {
		if !m.ledger[i].Timestamp.After(cutoff) {
			break
		}
		n++
	}
	return n
}

// rollDayIfNeeded 跨自然日后首次使用时清零当日累计（调用方持有 mu）
func (m *Manager) rollDayIfNeeded(now time.Time) {
	key := now.Year()*10000 + int(now.Month())*100 + now.Day()
	if m.dayKey == key {
		return
	}
	if m.dayKey != 0 {
		riskLog.Infof("跨日重置当日累计: %d -> %d (累计 %s)", m.dayKey, key, m.dailyNotional.StringFixed(2))
	}
	m.dayKey = key
	m.dailyNotional = decimal.Zero
}

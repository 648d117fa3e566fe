package account

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/autoexec/internal/domain"
	"github.com/betbot/autoexec/internal/metrics"
	"github.com/betbot/autoexec/internal/ports"
)

var accLog = logrus.WithField("component", "account_manager")

var ErrAccountNotFound = errors.New("account not found")

// Manager 内存账户存储；读取返回深拷贝，余额变化写入持久化（尽力而为）
type Manager struct {
	mu       sync.RWMutex
	accounts map[string]*domain.AccountInfo
	store    ports.Persistence
}

func NewManager(store ports.Persistence) *Manager {
	if store == nil {
		store = ports.NopPersistence{}
	}
	return &Manager{accounts: make(map[string]*domain.AccountInfo), store: store}
}

// AddAccount 添加或替换账户
func (m *Manager) AddAccount(info *domain.AccountInfo) error {
	if info == nil || info.AccountID == "" {
		return fmt.Errorf("account id is required")
	}
	cp := info.Clone()
	m.mu.Lock()
	m.accounts[cp.AccountID] = cp
	m.mu.Unlock()
	accLog.Infof("已添加账户 %s gateway=%s", cp.AccountID, cp.GatewayName)
	return nil
}

// GetAccount 实现 ports.AccountStore
func (m *Manager) GetAccount(accountID string) (*domain.AccountInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acc, ok := m.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	return acc.Clone(), nil
}

// Accounts 所有账户 id
func (m *Manager) Accounts() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.accounts))
	for id := range m.accounts {
		out = append(out, id)
	}
	return out
}

// UpdateBalance 余额加上 delta，返回新余额
func (m *Manager) UpdateBalance(ctx context.Context, accountID, asset string, delta decimal.Decimal) (decimal.Decimal, error) {
	m.mu.Lock()
	acc, ok := m.accounts[accountID]
	if !ok {
		m.mu.Unlock()
		return decimal.Zero, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	next := acc.Balances[asset].Add(delta)
	acc.Balances[asset] = next
	m.mu.Unlock()

	m.persist(ctx, accountID, asset, next)
	return next, nil
}

// ApplyFill 结算一笔成交：买入扣减计价资产并增加持仓，卖出相反
func (m *Manager) ApplyFill(ctx context.Context, order *domain.Order, qty, price float64) error {
	if order == nil || qty <= 0 {
		return nil
	}
	if price <= 0 {
		price = order.PriceOrOne()
	}
	quote := order.Instrument.Quote()
	notional := decimal.NewFromFloat(qty).Mul(decimal.NewFromFloat(price))

	m.mu.Lock()
	acc, ok := m.accounts[order.AccountID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAccountNotFound, order.AccountID)
	}
	if order.Side == domain.OrderSideBuy {
		notional = notional.Neg()
	}
	next := acc.Balances[quote].Add(notional)
	acc.Balances[quote] = next

	sym := order.Symbol()
	pos := acc.Positions[sym]
	pos.Instrument = order.Instrument
	pos.AddFill(order.Side, qty, price)
	if pos.Size == 0 {
		delete(acc.Positions, sym)
	} else {
		acc.Positions[sym] = pos
	}
	m.mu.Unlock()

	accLog.Infof("成交结算: account=%s %s %s qty=%v price=%v %s=%s",
		order.AccountID, order.Side, sym, qty, price, quote, next.StringFixed(4))
	m.persist(ctx, order.AccountID, quote, next)
	return nil
}

func (m *Manager) persist(ctx context.Context, accountID, asset string, balance decimal.Decimal) {
	if err := m.store.SaveAccountBalance(ctx, accountID, asset, balance); err != nil {
		metrics.PersistenceErrors.Add(1)
		accLog.Errorf("保存账户余额失败: account=%s asset=%s err=%v", accountID, asset, err)
	}
}

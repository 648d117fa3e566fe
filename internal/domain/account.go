package domain

import (
	"github.com/shopspring/decimal"
)

// Position 持仓（Size 有符号：多头为正，空头为负）
type Position struct {
	Instrument Instrument
	Size       float64
	AvgPrice   float64
}

// Notional 持仓名义金额（绝对值）
func (p Position) Notional() decimal.Decimal {
	return decimal.NewFromFloat(p.Size).Mul(decimal.NewFromFloat(p.AvgPrice)).Abs()
}

// AddFill 合并一笔成交；同向加仓更新均价，反向减仓保留均价，穿越零点时均价重置为成交价
func (p *Position) AddFill(side OrderSide, qty, price float64) {
	if qty <= 0 {
		return
	}
	signed := qty
	if side == OrderSideSell {
		signed = -qty
	}
	next := p.Size + signed
	switch {
	case p.Size == 0 || (p.Size > 0) == (signed > 0):
		total := p.Size*p.AvgPrice + signed*price
		if next != 0 {
			p.AvgPrice = total / next
		}
	case next == 0:
		p.AvgPrice = 0
	case (next > 0) != (p.Size > 0):
		p.AvgPrice = price
	}
	p.Size = next
}

// AccountInfo 账户信息
type AccountInfo struct {
	AccountID   string
	GatewayName string
	Balances    map[string]decimal.Decimal
	Positions   map[string]Position
}

// NewAccountInfo 创建空账户
func NewAccountInfo(accountID, gateway string) *AccountInfo {
	return &AccountInfo{
		AccountID:   accountID,
		GatewayName: gateway,
		Balances:    make(map[string]decimal.Decimal),
		Positions:   make(map[string]Position),
	}
}

// Balance 资产余额，不存在时为 0
func (a *AccountInfo) Balance(asset string) decimal.Decimal {
	if a == nil || a.Balances == nil {
		return decimal.Zero
	}
	return a.Balances[asset]
}

// PositionNotional 所有持仓的名义金额合计
func (a *AccountInfo) PositionNotional() decimal.Decimal {
	total := decimal.Zero
	if a == nil {
		return total
	}
	for _, p := range a.Positions {
		total = total.Add(p.Notional())
	}
	return total
}

// Clone 深拷贝
func (a *AccountInfo) Clone() *AccountInfo {
	if a == nil {
		return nil
	}
	cp := NewAccountInfo(a.AccountID, a.GatewayName)
	for k, v := range a.Balances {
		cp.Balances[k] = v
	}
	for k, v := range a.Positions {
		cp.Positions[k] = v
	}
	return cp
}

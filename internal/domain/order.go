package domain

import (
	"fmt"
	"time"
)

// OrderSide 订单方向
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// OrderType 订单类型
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

func (t OrderType) Valid() bool {
	return t == OrderTypeMarket || t == OrderTypeLimit
}

// OrderStatus 订单状态
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusSubmitted       OrderStatus = "submitted"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRejected        OrderStatus = "rejected"
	OrderStatusExpired         OrderStatus = "expired"
	OrderStatusError           OrderStatus = "error"
)

// IsTerminal 最终状态不会再被覆盖
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusExpired, OrderStatusError:
		return true
	}
	return false
}

// IsActive 仍需要向交易所同步状态的订单
func (s OrderStatus) IsActive() bool {
	return s == OrderStatusSubmitted || s == OrderStatusPartiallyFilled
}

var allowedTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending: {OrderStatusSubmitted, OrderStatusRejected, OrderStatusError},
	OrderStatusSubmitted: {
		OrderStatusPartiallyFilled, OrderStatusFilled, OrderStatusCancelled,
		OrderStatusExpired, OrderStatusError,
	},
	OrderStatusPartiallyFilled: {
		OrderStatusPartiallyFilled, OrderStatusFilled, OrderStatusCancelled,
		OrderStatusExpired, OrderStatusError,
	},
}

// CanTransition 检查状态迁移是否合法（同状态视为合法的 no-op）
func CanTransition(from, to OrderStatus) bool {
	if from == to {
		return true
	}
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ErrInvalidTransition 非法状态迁移
var ErrInvalidTransition = fmt.Errorf("invalid order status transition")

// Order 订单领域模型
//
// 只允许 ExecutionEngine 和交易所回调修改；同一订单的修改由引擎按订单 ID 串行化。
type Order struct {
	OrderID        string      `json:"order_id"`
	Instrument     Instrument  `json:"instrument"`
	Side           OrderSide   `json:"side"`
	Type           OrderType   `json:"type"`
	Quantity       float64     `json:"quantity"`
	Price          float64     `json:"price,omitempty"`            // 0 表示未指定（市价单）
	Outcome        string      `json:"outcome,omitempty"`          // 多结果市场的结果标签（可选）
	Status         OrderStatus `json:"status"`
	FilledQty      float64     `json:"filled_qty"`
	GatewayOrderID string      `json:"gateway_order_id,omitempty"`
	AccountID      string      `json:"account_id"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// HasPrice 是否指定了价格
func (o *Order) HasPrice() bool {
	return o != nil && o.Price > 0
}

// PriceOrOne 风控口径的价格：未指定价格时按 1 计
func (o *Order) PriceOrOne() float64 {
	if o.HasPrice() {
		return o.Price
	}
	return 1
}

// Notional 名义金额 = quantity × (price or 1)
func (o *Order) Notional() float64 {
	if o == nil {
		return 0
	}
	return o.Quantity * o.PriceOrOne()
}

// Symbol 订单所属标的
func (o *Order) Symbol() string {
	if o == nil {
		return ""
	}
	return o.Instrument.Symbol
}

// Transition 迁移到新状态；非法迁移返回 ErrInvalidTransition 且不修改订单
func (o *Order) Transition(to OrderStatus, now time.Time) error {
	if !CanTransition(o.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}
	o.Status = to
	o.UpdatedAt = now
	if to == OrderStatusFilled {
		o.FilledQty = o.Quantity
	}
	return nil
}

// ApplyFill 设置累计成交数量，超出部分截断到 Quantity
// 返回本次新增的成交数量（不会为负）。
func (o *Order) ApplyFill(filled float64) float64 {
	if filled < 0 {
		filled = 0
	}
	if filled > o.Quantity {
		filled = o.Quantity
	}
	delta := filled - o.FilledQty
	if delta <= 0 {
		return 0
	}
	o.FilledQty = filled
	return delta
}

// Clone 返回订单副本
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	cp := *o
	return &cp
}

// OrderUpdate 交易所推送/轮询得到的订单状态
type OrderUpdate struct {
	GatewayName    string      `json:"gateway_name"`
	GatewayOrderID string      `json:"gateway_order_id"`
	Status         OrderStatus `json:"status"`
	FilledQty      float64     `json:"filled_qty"`
	FillPrice      float64     `json:"fill_price,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
}

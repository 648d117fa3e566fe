package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/autoexec/internal/domain"
)

// AccountStore 账户查询
type AccountStore interface {
	GetAccount(accountID string) (*domain.AccountInfo, error)
}

// EventRecord 宏观事件记录
type EventRecord struct {
	EventID   string         `json:"event_id"`
	EventName string         `json:"event_name"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
	Important bool           `json:"important"`
}

// LargeOrderRecord 大额订单记录
type LargeOrderRecord struct {
	Timestamp   time.Time        `json:"timestamp"`
	OrderID     string           `json:"order_id"`
	Symbol      string           `json:"symbol"`
	Side        domain.OrderSide `json:"side"`
	Quantity    float64          `json:"quantity"`
	Price       float64          `json:"price"`
	AccountID   string           `json:"account_id"`
	GatewayName string           `json:"gateway_name"`
}

// Persistence 尽力而为的持久化落地；调用方只记录失败，不会阻塞决策路径。
type Persistence interface {
	SaveOrder(ctx context.Context, order *domain.Order) error
	SaveEvent(ctx context.Context, rec EventRecord) error
	SaveLargeOrder(ctx context.Context, rec LargeOrderRecord) error
	SaveAccountBalance(ctx context.Context, accountID, asset string, balance decimal.Decimal) error
}

// NopPersistence 丢弃所有写入
type NopPersistence struct{}

func (NopPersistence) SaveOrder(context.Context, *domain.Order) error         { return nil }
func (NopPersistence) SaveEvent(context.Context, EventRecord) error           { return nil }
func (NopPersistence) SaveLargeOrder(context.Context, LargeOrderRecord) error { return nil }
func (NopPersistence) SaveAccountBalance(context.Context, string, string, decimal.Decimal) error {
	return nil
}

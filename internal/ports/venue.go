package ports

import (
	"context"

	"github.com/betbot/autoexec/internal/domain"
)

// VenueAdapter 交易所适配器，按 venue 名称注册到 ExecutionEngine。
type VenueAdapter interface {
	Name() string
	Connect(ctx context.Context) error
	SendOrder(ctx context.Context, order *domain.Order) (venueOrderID string, err error)
	GetOrderStatus(ctx context.Context, venueOrderID string) (domain.OrderUpdate, error)
}

// OrderUpdateHandler 接收交易所推送的订单更新（建议串行投递）。
//
// 定义在中立包里，避免 execution 与 infrastructure 之间的循环依赖。
type OrderUpdateHandler interface {
	OnOrderUpdate(ctx context.Context, update domain.OrderUpdate) error
}

// OrderUpdateSubscriber 支持推送订单更新的适配器
type OrderUpdateSubscriber interface {
	Subscribe(handler OrderUpdateHandler)
}

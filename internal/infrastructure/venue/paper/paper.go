// Package paper 进程内模拟交易所，dry-run 与测试使用
package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/betbot/autoexec/internal/domain"
	"github.com/betbot/autoexec/internal/ports"
)

var paperLog = logrus.WithField("component", "paper_venue")

type paperOrder struct {
	order    domain.Order
	placedAt time.Time
}

// Venue 收单即返回 submitted，经过 FillDelay 后查询状态为 filled
type Venue struct {
	name      string
	fillDelay time.Duration
	now       func() time.Time

	mu     sync.RWMutex
	orders map[string]*paperOrder
}

var _ ports.VenueAdapter = (*Venue)(nil)

func New(name string, fillDelay time.Duration) *Venue {
	if name == "" {
		name = "paper"
	}
	return &Venue{
		name:      name,
		fillDelay: fillDelay,
		now:       time.Now,
		orders:    make(map[string]*paperOrder),
	}
}

func (v *Venue) Name() string { return v.name }

func (v *Venue) Connect(context.Context) error {
	paperLog.Infof("模拟交易所已就绪: name=%s fill_delay=%s", v.name, v.fillDelay)
	return nil
}

func (v *Venue) SendOrder(ctx context.Context, order *domain.Order) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if order == nil {
		return "", fmt.Errorf("paper: nil order")
	}
	id := "paper-" + uuid.NewString()
	v.mu.Lock()
	v.orders[id] = &paperOrder{order: *order, placedAt: v.now()}
	v.mu.Unlock()
	paperLog.Debugf("模拟下单: id=%s order=%s side=%s qty=%.4f", id, order.OrderID, order.Side, order.Quantity)
	return id, nil
}

func (v *Venue) GetOrderStatus(ctx context.Context, venueOrderID string) (domain.OrderUpdate, error) {
	if err := ctx.Err(); err != nil {
		return domain.OrderUpdate{}, err
	}
	v.mu.RLock()
	po, ok := v.orders[venueOrderID]
	v.mu.RUnlock()
	if !ok {
		return domain.OrderUpdate{}, fmt.Errorf("paper: unknown order %s", venueOrderID)
	}
	now := v.now()
	upd := domain.OrderUpdate{
		GatewayName:    v.name,
		GatewayOrderID: venueOrderID,
		Status:         domain.OrderStatusSubmitted,
		Timestamp:      now,
	}
	if now.Sub(po.placedAt) >= v.fillDelay {
		upd.Status = domain.OrderStatusFilled
		upd.FilledQty = po.order.Quantity
		upd.FillPrice = po.order.Price
	}
	return upd, nil
}

// OrderCount 已收到的订单数
func (v *Venue) OrderCount() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.orders)
}

package execution

import (
	"context"
	"fmt"

	"github.com/betbot/autoexec/internal/domain"
	"github.com/betbot/autoexec/internal/metrics"
)

// SyncOrderStatus 向所属交易所查询最新状态并更新本地记录。
//
// 本地没有该订单、适配器不存在或缺少交易所订单号时返回 Found=false，不视为错误；
// 只有交易所查询失败才返回 error。
func (e *Engine) SyncOrderStatus(ctx context.Context, orderID string) (SyncResult, error) {
	e.mu.RLock()
	rec, ok := e.byID[orderID]
	e.mu.RUnlock()
	res := SyncResult{OrderID: orderID}
	if !ok {
		res.Message = "not found"
		return res, nil
	}
	return e.syncRecord(ctx, rec)
}

func (e *Engine) syncRecord(ctx context.Context, rec *orderRecord) (SyncResult, error) {
	unlock := e.gate.lock(rec.order.OrderID)
	venueName := rec.order.Instrument.GatewayName
	gwID := rec.order.GatewayOrderID
	res := SyncResult{OrderID: rec.order.OrderID, GatewayOrderID: gwID, Previous: rec.order.Status}
	unlock()

	venue, ok := e.venues[venueName]
	if !ok || gwID == "" {
		res.Message = "not found"
		return res, nil
	}
	upd, err := venue.GetOrderStatus(ctx, gwID)
	if err != nil {
		execLog.Errorf("同步订单 %s 状态失败: %v", rec.order.OrderID, err)
		res.Found = true
		res.Message = err.Error()
		return res, fmt.Errorf("sync order %s: %w", rec.order.OrderID, err)
	}
	metrics.OrderStatusSyncs.Add(1)
	res.Found = true
	res.Updated = e.applyUpdate(ctx, rec, upd)

	unlock = e.gate.lock(rec.order.OrderID)
	res.Status = rec.order.Status
	res.FilledQty = rec.order.FilledQty
	unlock()
	return res, nil
}

// SyncAllOrders 同步所有 submitted/partially_filled 订单
func (e *Engine) SyncAllOrders(ctx context.Context) SyncSummary {
	recs := e.activeRecords()
	sum := SyncSummary{Total: len(recs), Details: make([]SyncResult, 0, len(recs))}
	for _, rec := range recs {
		if ctx.Err() != nil {
			break
		}
		r, err := e.syncRecord(ctx, rec)
		switch {
		case err != nil:
			sum.Errors++
		case !r.Found:
			sum.NotFound++
		case r.Updated:
			sum.Updated++
		}
		sum.Details = append(sum.Details, r)
	}
	return sum
}

// OnOrderUpdate 实现 ports.OrderUpdateHandler：交易所推送的状态/成交
func (e *Engine) OnOrderUpdate(ctx context.Context, upd domain.OrderUpdate) error {
	e.mu.RLock()
	rec, ok := e.byGateway[gatewayKey(upd.GatewayName, upd.GatewayOrderID)]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrOrderNotFound, upd.GatewayName, upd.GatewayOrderID)
	}
	e.applyUpdate(ctx, rec, upd)
	return nil
}

// applyUpdate 在订单锁内合并状态和成交；返回是否有变化
func (e *Engine) applyUpdate(ctx context.Context, rec *orderRecord, upd domain.OrderUpdate) bool {
	unlock := e.gate.lock(rec.order.OrderID)
	o := rec.order
	if o.Status.IsTerminal() {
		unlock()
		return false
	}
	prevStatus := o.Status

	filled := upd.FilledQty
	if upd.Status == domain.OrderStatusFilled && filled < o.Quantity {
		filled = o.Quantity
	}
	delta := o.ApplyFill(filled)

	next := upd.Status
	if next == "" {
		next = o.Status
	}
	if next == domain.OrderStatusSubmitted && o.FilledQty > 0 {
		next = domain.OrderStatusPartiallyFilled
	}
	now := e.now()
	if err := o.Transition(next, now); err != nil {
		execLog.Warnf("忽略订单 %s 的状态更新: %v", o.OrderID, err)
	} else if delta > 0 {
		o.UpdatedAt = now
	}
	changed := delta > 0 || o.Status != prevStatus
	snap := o.Clone()
	unlock()

	if !changed {
		return false
	}
	execLog.Infof("订单 %s 状态 %s → %s filled=%v/%v", snap.OrderID, prevStatus, snap.Status, snap.FilledQty, snap.Quantity)
	if delta > 0 && e.settler != nil {
		price := upd.FillPrice
		if price <= 0 {
			price = snap.PriceOrOne()
		}
		if err := e.settler.ApplyFill(ctx, snap, delta, price); err != nil {
			execLog.Errorf("订单 %s 成交结算失败: %v", snap.OrderID, err)
		}
	}
	if err := e.store.SaveOrder(ctx, snap); err != nil {
		metrics.PersistenceErrors.Add(1)
		execLog.Errorf("保存订单 %s 失败: %v", snap.OrderID, err)
	}
	return true
}

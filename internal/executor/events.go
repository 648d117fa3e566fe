package executor

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/betbot/autoexec/internal/execution"
	"github.com/betbot/autoexec/internal/metrics"
	"github.com/betbot/autoexec/internal/strategy"
)

// 事件处理状态
const (
	EventDisabled      = "disabled"
	EventNotSubscribed = "not_subscribed"
	EventCooldown      = "cooldown"
	EventProcessed     = "processed"

	OrdersSubmitted = "submitted"
	OrdersNone      = "no_orders"
)

// EventResult 事件处理结果
type EventResult struct {
	EventName      string                 `json:"event_name"`
	Status         string                 `json:"status"`
	Reason         string                 `json:"reason,omitempty"`
	MatchedMarkets []string               `json:"matched_markets,omitempty"`
	OrderStatus    string                 `json:"order_status,omitempty"`
	OrderCount     int                    `json:"order_count"`
	OrderResult    *execution.BatchResult `json:"order_result,omitempty"`
	CooldownUntil  *time.Time             `json:"cooldown_until,omitempty"`
	RecordError    string                 `json:"record_error,omitempty"`
}

// canonicalEvent 事件名统一成小写，订阅、加锁、冷却与记录共用同一个键
func canonicalEvent(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Subscribed 事件是否在订阅列表中；列表为空不订阅任何事件
func (x *Executor) Subscribed(eventName string) bool {
	key := canonicalEvent(eventName)
	if key == "" {
		return false
	}
	for _, s := range x.cfg.Events.SubscribedEvents {
		if canonicalEvent(s) == key {
			return true
		}
	}
	return false
}

func (x *Executor) eventLock(name string) *sync.Mutex {
	v, _ := x.eventLocks.LoadOrStore(name, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// HandleEvent 响应宏观事件：匹配相关市场，按事件配置过滤建议并下单，下单后进入冷却
func (x *Executor) HandleEvent(ctx context.Context, eventName string, data map[string]any) EventResult {
	eventName = canonicalEvent(eventName)
	res := EventResult{EventName: eventName}
	ev := x.cfg.Events
	if !ev.Enabled {
		res.Status, res.Reason = EventDisabled, "事件订阅未启用"
		return res
	}
	if !x.Subscribed(eventName) {
		res.Status, res.Reason = EventNotSubscribed, "事件未订阅"
		return res
	}

	// 同一事件串行处理，保证冷却判断与设置的原子性
	l := x.eventLock(eventName)
	l.Lock()
	defer l.Unlock()

	now := x.now()
	if x.cooldowns.Active(eventName, now) {
		res.Status, res.Reason = EventCooldown, "事件处于冷却期"
		return res
	}
	metrics.EventsHandled.Add(1)

	if x.deps.Recorder != nil {
		if _, err := x.deps.Recorder.RecordEventData(ctx, eventName, now, data); err != nil {
			execLog.Warnf("记录事件失败: event=%s err=%v", eventName, err)
			res.RecordError = err.Error()
		}
	}

	markets := x.Markets()
	if x.deps.Matcher != nil {
		matched, err := x.deps.Matcher.MarketsForEvent(ctx, eventName, markets)
		if err != nil {
			execLog.Warnf("匹配事件市场失败: event=%s err=%v", eventName, err)
			matched = nil
		}
		markets = matched
	}
	res.MatchedMarkets = markets

	var valid []strategy.Recommendation
	for _, m := range markets {
		outcomes, err := x.deps.Recommender.Outcomes(ctx, m)
		if err != nil {
			execLog.Warnf("获取市场结果失败: market=%s err=%v", m, err)
			continue
		}
		if len(outcomes) == 0 {
			outcomes = []string{""}
		}
		for _, o := range outcomes {
			rec := x.deps.Recommender.Recommend(ctx, m, o)
			rec.Size *= ev.OrderSizeMultiplier
			if validRecommendation(rec, ev.MinConfidence) {
				valid = append(valid, rec)
			}
		}
	}
	sortByConfidence(valid)
	if len(valid) > ev.MaxOrdersPerEvent {
		valid = valid[:ev.MaxOrdersPerEvent]
	}

	res.Status = EventProcessed
	res.OrderCount = len(valid)
	if len(valid) == 0 {
		res.OrderStatus = OrdersNone
		execLog.Infof("事件 %s 无可执行订单", eventName)
		return res
	}

	batch := x.submit(ctx, valid, "event_"+safeEventName(eventName), 1.0)
	res.OrderResult = &batch
	res.OrderStatus = OrdersSubmitted

	until := now.Add(ev.CooldownPeriod)
	if ev.CooldownPeriod > 0 {
		x.cooldowns.Set(eventName, until)
		res.CooldownUntil = &until
		x.persistCooldowns()
	}
	execLog.Infof("事件 %s 已处理: orders=%d submitted=%d", eventName, len(valid), batch.Submitted)
	return res
}

func (x *Executor) persistCooldowns() {
	if x.deps.State == nil {
		return
	}
	if err := x.deps.State.SaveCooldowns(context.Background(), x.cooldowns.Snapshot(x.now())); err != nil {
		execLog.Warnf("保存事件冷却失败: %v", err)
	}
}

func safeEventName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}

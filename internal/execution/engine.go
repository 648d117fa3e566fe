package execution

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/autoexec/internal/domain"
	"github.com/betbot/autoexec/internal/events"
	"github.com/betbot/autoexec/internal/largeorder"
	"github.com/betbot/autoexec/internal/liquidity"
	"github.com/betbot/autoexec/internal/metrics"
	"github.com/betbot/autoexec/internal/monitoring"
	"github.com/betbot/autoexec/internal/ports"
	"github.com/betbot/autoexec/internal/risk"
	"github.com/betbot/autoexec/internal/strategy"
)

var execLog = logrus.WithField("component", "execution_engine")

var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrEventRecorderAbsent = errors.New("event recorder not configured")
)

const DefaultMaxOrderHistory = 10000

// Settler 成交结算（账户余额/持仓）
type Settler interface {
	ApplyFill(ctx context.Context, order *domain.Order, qty, price float64) error
}

// SubmissionListener 每次 SubmitOrder 结束后回调；order 为提交后的快照
type SubmissionListener func(ctx context.Context, result SubmissionResult, order domain.Order)

// Config 引擎配置
type Config struct {
	MaxOrderHistory int
	// MaxConsecutiveErrors 连续下单失败熔断阈值，<= 0 只支持手动熔断
	MaxConsecutiveErrors int64
	// BreakerCooldown 自动熔断后多久半开试探，<= 0 只能手动恢复
	BreakerCooldown time.Duration
}

// Deps 引擎依赖；Risk/Liquidity/LargeOrders/Accounts 必填
type Deps struct {
	Venues      map[string]ports.VenueAdapter
	Accounts    ports.AccountStore
	Settler     Settler
	Risk        *risk.Manager
	Liquidity   *liquidity.Analyzer
	LargeOrders *largeorder.Monitor
	Probability *strategy.ProbabilityStrategy
	Events      *events.Recorder
	Alerts      *monitoring.Manager
	Store       ports.Persistence
}

type orderRecord struct {
	order  *domain.Order
	result SubmissionResult
	at     time.Time
}

// Engine 订单提交流水线：校验 → 概率 → 风控 → 流动性 → 大额订单 → 下单 → 记录。
//
// 领域拒绝作为结果返回，不会 panic；交易所适配器的异常在这里被捕获并转成 error 状态。
type Engine struct {
	venues    map[string]ports.VenueAdapter
	accounts  ports.AccountStore
	settler   Settler
	risk      *risk.Manager
	liquidity *liquidity.Analyzer
	large     *largeorder.Monitor
	prob      *strategy.ProbabilityStrategy
	events    *events.Recorder
	alerts    *monitoring.Manager
	store     ports.Persistence
	breaker   *risk.CircuitBreaker
	gate      *orderGate

	listenersMu sync.RWMutex
	listeners   []SubmissionListener

	mu         sync.RWMutex
	maxHistory int
	history    []*orderRecord
	byID       map[string]*orderRecord
	byGateway  map[string]*orderRecord // venue/gateway_order_id

	now func() time.Time
}

func NewEngine(cfg Config, deps Deps) (*Engine, error) {
	if deps.Risk == nil || deps.Liquidity == nil || deps.LargeOrders == nil || deps.Accounts == nil {
		return nil, fmt.Errorf("execution engine: risk, liquidity, large order monitor and account store are required")
	}
	if cfg.MaxOrderHistory <= 0 {
		cfg.MaxOrderHistory = DefaultMaxOrderHistory
	}
	if deps.Probability == nil {
		p, err := strategy.NewProbabilityStrategy(strategy.DefaultMinTotalProbability, strategy.DefaultSafeTotalProbability)
		if err != nil {
			return nil, err
		}
		deps.Probability = p
	}
	if deps.Store == nil {
		deps.Store = ports.NopPersistence{}
	}
	venues := make(map[string]ports.VenueAdapter, len(deps.Venues))
	for name, v := range deps.Venues {
		venues[name] = v
	}
	e := &Engine{
		venues:     venues,
		accounts:   deps.Accounts,
		settler:    deps.Settler,
		risk:       deps.Risk,
		liquidity:  deps.Liquidity,
		large:      deps.LargeOrders,
		prob:       deps.Probability,
		events:     deps.Events,
		alerts:     deps.Alerts,
		store:      deps.Store,
		breaker:    risk.NewCircuitBreaker(cfg.MaxConsecutiveErrors, cfg.BreakerCooldown),
		gate:       newOrderGate(64),
		maxHistory: cfg.MaxOrderHistory,
		byID:       make(map[string]*orderRecord),
		byGateway:  make(map[string]*orderRecord),
		now:        time.Now,
	}
	for name, v := range venues {
		if sub, ok := v.(ports.OrderUpdateSubscriber); ok {
			sub.Subscribe(e)
			execLog.Infof("已订阅 %s 订单推送", name)
		}
	}
	return e, nil
}

// AddListener 注册提交结果监听
func (e *Engine) AddListener(l SubmissionListener) {
	if l == nil {
		return
	}
	e.listenersMu.Lock()
	e.listeners = append(e.listeners, l)
	e.listenersMu.Unlock()
}

// CircuitBreaker 下单熔断器（可手动 Halt/Resume）
func (e *Engine) CircuitBreaker() *risk.CircuitBreaker { return e.breaker }

// SetTradingHalted 手动熔断或恢复下单
func (e *Engine) SetTradingHalted(halted bool) {
	if halted {
		e.breaker.Halt()
		execLog.Warn("下单已手动熔断")
		return
	}
	e.breaker.Resume()
	execLog.Info("下单已恢复")
}

// ConnectVenues 连接全部交易所适配器，返回第一个错误
func (e *Engine) ConnectVenues(ctx context.Context) error {
	var firstErr error
	for name, v := range e.venues {
		if err := v.Connect(ctx); err != nil {
			execLog.Errorf("连接 %s 失败: %v", name, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("connect %s: %w", name, err)
			}
		}
	}
	return firstErr
}

func (e *Engine) validate(order *domain.Order) error {
	switch {
	case order == nil:
		return fmt.Errorf("订单不能为空")
	case order.OrderID == "":
		return fmt.Errorf("订单ID是必需的")
	case order.Instrument.Symbol == "":
		return fmt.Errorf("交易品种是必需的")
	case !order.Side.Valid():
		return fmt.Errorf("订单方向无效: %q", order.Side)
	case !order.Type.Valid():
		return fmt.Errorf("订单类型无效: %q", order.Type)
	case !(order.Quantity > 0) || math.IsInf(order.Quantity, 0):
		return fmt.Errorf("订单数量必须为正数")
	case order.Price < 0 || math.IsNaN(order.Price):
		return fmt.Errorf("订单价格无效")
	case order.Type == domain.OrderTypeLimit && !order.HasPrice():
		return fmt.Errorf("限价单必须指定价格")
	case order.AccountID == "":
		return fmt.Errorf("账户ID是必需的")
	case order.Status != "" && order.Status != domain.OrderStatusPending:
		return fmt.Errorf("订单状态必须为 pending, 当前 %s", order.Status)
	}
	if _, ok := e.venues[order.Instrument.GatewayName]; !ok {
		return fmt.Errorf("网关 %s 不可用", order.Instrument.GatewayName)
	}
	e.mu.RLock()
	_, dup := e.byID[order.OrderID]
	e.mu.RUnlock()
	if dup {
		return fmt.Errorf("订单ID %s 已存在", order.OrderID)
	}
	return nil
}

// SubmitOrder 提交单个订单；probabilities 为空时跳过概率检查
func (e *Engine) SubmitOrder(ctx context.Context, order *domain.Order, probabilities map[string]float64) SubmissionResult {
	res := SubmissionResult{Status: domain.OrderStatusPending, Steps: make([]Step, 0, 6)}
	if order != nil {
		res.OrderID = order.OrderID
	}
	defer e.notify(ctx, &res, order)

	if err := e.validate(order); err != nil {
		e.reject(order, &res, StepValidation, err.Error())
		return res
	}
	if !e.gate.tryEnter(order.OrderID) {
		e.reject(order, &res, StepValidation, fmt.Sprintf("订单 %s 正在提交中", order.OrderID))
		return res
	}
	defer e.gate.leave(order.OrderID)

	now := e.now()
	if order.Status == "" {
		order.Status = domain.OrderStatusPending
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.FilledQty = 0
	res.add(StepValidation, StepSuccess, "订单验证成功")

	if len(probabilities) > 0 {
		pa := e.prob.Analyze(probabilities)
		switch {
		case !pa.CanTrade:
			e.reject(order, &res, StepProbability, pa.Message)
			return res
		case pa.Message != "":
			res.add(StepProbability, StepWarning, pa.Message)
			execLog.Warnf("订单 %s 谨慎执行: %s", order.OrderID, pa.Message)
		default:
			res.add(StepProbability, StepSuccess, fmt.Sprintf("总概率 %.2f", pa.Total))
		}
	}

	if err := e.breaker.AllowTrading(e.now()); err != nil {
		e.reject(order, &res, StepRisk, "下单熔断中: "+err.Error())
		return res
	}
	account, err := e.accounts.GetAccount(order.AccountID)
	if err != nil {
		e.reject(order, &res, StepRisk, fmt.Sprintf("获取账户失败: %v", err))
		return res
	}
	if v := e.risk.Evaluate(account, order); !v.Allowed() {
		e.reject(order, &res, StepRisk, v.Reason)
		e.alerts.Raise(monitoring.LevelWarning, monitoring.TypeRisk,
			fmt.Sprintf("订单 %s 被风控拒绝: %s", order.OrderID, v.Reason),
			map[string]any{"order_id": order.OrderID, "symbol": order.Symbol(), "notional": order.Notional()})
		return res
	}
	res.add(StepRisk, StepSuccess, "")

	la := e.liquidity.AnalyzeLiquidity(order.Symbol(), order.Quantity)
	if la.Rating == domain.ConfidenceLow {
		res.add(StepLiquidity, StepWarning, la.Message)
		execLog.Warnf("%s 流动性较低: %s", order.Symbol(), la.Message)
	} else {
		res.add(StepLiquidity, StepSuccess, la.Message)
	}

	recorded, err := e.large.RecordLargeOrder(ctx, order)
	step := Step{Step: StepLargeOrder, Status: StepSuccess, Recorded: &recorded}
	if err != nil {
		step.Status = StepWarning
		step.Message = err.Error()
		res.Warnings = append(res.Warnings, err.Error())
	}
	res.Steps = append(res.Steps, step)

	e.dispatch(ctx, order, &res)
	return res
}

func (e *Engine) dispatch(ctx context.Context, order *domain.Order, res *SubmissionResult) {
	venue := e.venues[order.Instrument.GatewayName]
	gwID, err := safeSend(ctx, venue, order)
	if err == nil && gwID == "" {
		err = fmt.Errorf("venue returned empty order id")
	}
	now := e.now()
	fields := logrus.Fields{"order_id": order.OrderID, "symbol": order.Symbol(), "venue": venue.Name()}

	if err != nil {
		_ = order.Transition(domain.OrderStatusError, now)
		res.fail(StepExecution, domain.OrderStatusError, err.Error())
		e.breaker.OnError()
		metrics.OrdersErrored.Add(1)
		execLog.WithFields(fields).Errorf("下单失败: %v", err)
		e.alerts.Raise(monitoring.LevelError, monitoring.TypeOrder,
			fmt.Sprintf("提交订单 %s 错误: %v", order.OrderID, err),
			map[string]any{"order_id": order.OrderID, "instrument": order.Symbol(), "quantity": order.Quantity,
				"price": order.Price, "error": err.Error()})
		e.recordHistory(ctx, order, *res, now)
		return
	}

	unlock := e.gate.lock(order.OrderID)
	order.GatewayOrderID = gwID
	_ = order.Transition(domain.OrderStatusSubmitted, now)
	unlock()

	res.Status = domain.OrderStatusSubmitted
	res.Message = "订单提交成功"
	res.GatewayOrderID = gwID
	res.add(StepExecution, StepSuccess, gwID)
	e.breaker.OnSuccess()
	metrics.OrdersSubmitted.Add(1)
	execLog.WithFields(fields).Infof("订单已提交 → %s", gwID)

	// 尚无真实成交价，按报价记录一条零滑点样本
	executed := order.PriceOrOne()
	e.liquidity.AddHistoricalData(order.Symbol(), now, executed, executed, order.Quantity)
	e.risk.RecordTrade(order, executed)
	e.recordHistory(ctx, order, *res, now)
}

// safeSend 调用适配器并把 panic 转为 error
func safeSend(ctx context.Context, venue ports.VenueAdapter, order *domain.Order) (id string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("venue %s panic: %v", venue.Name(), r)
		}
	}()
	return venue.SendOrder(ctx, order)
}

func (e *Engine) reject(order *domain.Order, res *SubmissionResult, step, msg string) {
	if order != nil {
		if order.Status == "" {
			order.Status = domain.OrderStatusPending
		}
		if err := order.Transition(domain.OrderStatusRejected, e.now()); err != nil {
			execLog.Debugf("订单 %s 拒绝时状态迁移失败: %v", order.OrderID, err)
		}
	}
	res.fail(step, domain.OrderStatusRejected, msg)
	metrics.OrdersRejected.Add(1)
	execLog.Warnf("订单 %s 被拒绝 [%s]: %s", res.OrderID, step, msg)
}

func (e *Engine) notify(ctx context.Context, res *SubmissionResult, order *domain.Order) {
	e.listenersMu.RLock()
	ls := append([]SubmissionListener(nil), e.listeners...)
	e.listenersMu.RUnlock()
	if len(ls) == 0 {
		return
	}
	var snap domain.Order
	if order != nil {
		snap = *order
	}
	for _, l := range ls {
		func() {
			defer func() {
				if r := recover(); r != nil {
					execLog.Errorf("submission listener panic: %v", r)
				}
			}()
			l(ctx, *res, snap)
		}()
	}
}

func gatewayKey(venue, id string) string { return venue + "/" + id }

func (e *Engine) recordHistory(ctx context.Context, order *domain.Order, res SubmissionResult, at time.Time) {
	rec := &orderRecord{order: order.Clone(), result: res, at: at}
	e.mu.Lock()
	if len(e.history) >= e.maxHistory {
		old := e.history[0]
		e.history = append(e.history[:0:0], e.history[1:]...)
		if cur, ok := e.byID[old.order.OrderID]; ok && cur == old {
			delete(e.byID, old.order.OrderID)
		}
		if old.order.GatewayOrderID != "" {
			delete(e.byGateway, gatewayKey(old.order.Instrument.GatewayName, old.order.GatewayOrderID))
		}
	}
	e.history = append(e.history, rec)
	e.byID[order.OrderID] = rec
	if order.GatewayOrderID != "" {
		e.byGateway[gatewayKey(order.Instrument.GatewayName, order.GatewayOrderID)] = rec
	}
	e.mu.Unlock()

	if err := e.store.SaveOrder(ctx, rec.order.Clone()); err != nil {
		metrics.PersistenceErrors.Add(1)
		execLog.WithFields(logrus.Fields{"order_id": order.OrderID, "symbol": order.Symbol()}).
			Errorf("保存订单到数据存储失败: %v", err)
	}
}

// SubmitOrdersBatch 按输入顺序逐个提交；单个订单的拒绝或错误不影响其他订单
func (e *Engine) SubmitOrdersBatch(ctx context.Context, reqs []OrderRequest) BatchResult {
	out := BatchResult{Total: len(reqs), Details: make([]SubmissionResult, 0, len(reqs))}
	for _, r := range reqs {
		res := e.SubmitOrder(ctx, r.Order, r.Probabilities)
		out.Details = append(out.Details, res)
		switch res.Status {
		case domain.OrderStatusSubmitted:
			out.Submitted++
		case domain.OrderStatusRejected:
			out.Rejected++
		default:
			out.Errors++
		}
	}
	execLog.Infof("批量提交完成: total=%d submitted=%d rejected=%d errors=%d",
		out.Total, out.Submitted, out.Rejected, out.Errors)
	return out
}

// GetOrderHistory 最近 limit 条（最新在后）；limit <= 0 返回全部
func (e *Engine) GetOrderHistory(limit int) []HistoryEntry {
	e.mu.RLock()
	recs := e.history
	if limit > 0 && len(recs) > limit {
		recs = recs[len(recs)-limit:]
	}
	recs = append([]*orderRecord(nil), recs...)
	e.mu.RUnlock()

	out := make([]HistoryEntry, 0, len(recs))
	for _, r := range recs {
		out = append(out, e.snapshot(r))
	}
	return out
}

// GetOrder 按订单 ID 查询历史
func (e *Engine) GetOrder(orderID string) (HistoryEntry, error) {
	e.mu.RLock()
	r, ok := e.byID[orderID]
	e.mu.RUnlock()
	if !ok {
		return HistoryEntry{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return e.snapshot(r), nil
}

func (e *Engine) snapshot(r *orderRecord) HistoryEntry {
	unlock := e.gate.lock(r.order.OrderID)
	defer unlock()
	return HistoryEntry{Timestamp: r.at, Order: *r.order, Result: r.result}
}

func (e *Engine) activeRecords() []*orderRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []*orderRecord
	for _, r := range e.history {
		if e.byID[r.order.OrderID] != r {
			continue
		}
		unlock := e.gate.lock(r.order.OrderID)
		active := r.order.Status.IsActive()
		unlock()
		if active {
			out = append(out, r)
		}
	}
	return out
}

// EngineStatus 引擎状态
type EngineStatus struct {
	Gateways         []string              `json:"gateways"`
	OrderHistorySize int                   `json:"order_history_size"`
	ActiveOrders     int                   `json:"active_orders"`
	LiquiditySymbols int                   `json:"liquidity_symbols"`
	LargeOrders      largeorder.Statistics `json:"large_orders"`
	Risk             risk.Snapshot         `json:"risk"`
	CircuitBreaker   bool                  `json:"circuit_breaker_open"`
}

func (e *Engine) GetEngineStatus(ctx context.Context) EngineStatus {
	names := make([]string, 0, len(e.venues))
	for n := range e.venues {
		names = append(names, n)
	}
	sort.Strings(names)
	e.mu.RLock()
	size := len(e.history)
	e.mu.RUnlock()
	return EngineStatus{
		Gateways:         names,
		OrderHistorySize: size,
		ActiveOrders:     len(e.activeRecords()),
		LiquiditySymbols: e.liquidity.Symbols(),
		LargeOrders:      e.large.GetStatistics(ctx),
		Risk:             e.risk.Snapshot(),
		CircuitBreaker:   e.breaker.Halted(),
	}
}

// RecordEventData 通过事件记录器记录宏观事件
func (e *Engine) RecordEventData(ctx context.Context, name string, data map[string]any) (ports.EventRecord, error) {
	if e.events == nil {
		return ports.EventRecord{}, ErrEventRecorderAbsent
	}
	return e.events.RecordEventData(ctx, name, e.now(), data)
}

// RecordEventsBatch 批量记录宏观事件
func (e *Engine) RecordEventsBatch(ctx context.Context, evs []events.Event) (events.BatchResult, error) {
	if e.events == nil {
		return events.BatchResult{}, ErrEventRecorderAbsent
	}
	return e.events.RecordEventsBatch(ctx, evs), nil
}

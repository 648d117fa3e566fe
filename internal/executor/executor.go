package executor

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/autoexec/internal/execution"
	"github.com/betbot/autoexec/internal/ports"
	"github.com/betbot/autoexec/internal/strategy"
	"github.com/betbot/autoexec/pkg/sigchan"
)

var execLog = logrus.WithField("component", "strategy_executor")

// ErrStopTimeout 停止等待超时
var ErrStopTimeout = errors.New("executor loop did not stop in time")

const defaultStopTimeout = 10 * time.Second

// Recommender 交易建议来源（strategy.MarketSignal）
type Recommender interface {
	Outcomes(ctx context.Context, marketID string) ([]string, error)
	AllOutcomes(ctx context.Context, marketID string) ([]string, error)
	Recommend(ctx context.Context, marketID, outcome string) strategy.Recommendation
}

// Submitter 批量下单（execution.Engine）
type Submitter interface {
	SubmitOrdersBatch(ctx context.Context, reqs []execution.OrderRequest) execution.BatchResult
}

// EventMatcher 事件到市场的映射
type EventMatcher interface {
	MarketsForEvent(ctx context.Context, eventName string, candidates []string) ([]string, error)
}

// EventRecorder 事件落盘
type EventRecorder interface {
	RecordEventData(ctx context.Context, name string, ts time.Time, data map[string]any) (ports.EventRecord, error)
}

// StateStore 执行器状态持久化（监控市场与事件冷却）
type StateStore interface {
	SaveMarkets(ctx context.Context, markets []string) error
	LoadMarkets(ctx context.Context) ([]string, error)
	SaveCooldowns(ctx context.Context, cooldowns map[string]time.Time) error
	LoadCooldowns(ctx context.Context) (map[string]time.Time, error)
}

// Deps 执行器依赖；Matcher、Recorder、State 可为空
type Deps struct {
	Recommender Recommender
	Submitter   Submitter
	Matcher     EventMatcher
	Recorder    EventRecorder
	State       StateStore
}

// Status 执行器状态
type Status struct {
	Running       bool                 `json:"running"`
	Enabled       bool                 `json:"enabled"`
	CheckInterval string               `json:"check_interval"`
	MinConfidence string               `json:"min_confidence"`
	Markets       []string             `json:"markets"`
	PassCount     int64                `json:"pass_count"`
	LastPassAt    *time.Time           `json:"last_pass_at,omitempty"`
	LastError     string               `json:"last_error,omitempty"`
	Cooldowns     map[string]time.Time `json:"cooldowns"`
}

// Executor 周期性扫描监控市场并下单，同时响应宏观事件
type Executor struct {
	cfg  Config
	deps Deps

	mu      sync.Mutex
	markets []string
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	passMu     sync.Mutex
	passCount  int64
	lastPassAt time.Time
	lastErr    string

	cooldowns  *cooldownTable
	eventLocks sync.Map // event -> *sync.Mutex

	wake        *sigchan.Chan
	tick        time.Duration
	stopTimeout time.Duration
	now         func() time.Time
	seq         uint64
}

func NewExecutor(cfg Config, deps Deps) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Recommender == nil || deps.Submitter == nil {
		return nil, errors.New("executor requires recommender and submitter")
	}
	x := &Executor{
		cfg:         cfg,
		deps:        deps,
		markets:     dedupe(cfg.MonitoredMarkets),
		cooldowns:   newCooldownTable(16),
		wake:        sigchan.New(1),
		tick:        time.Second,
		stopTimeout: defaultStopTimeout,
		now:         time.Now,
	}
	x.restore(context.Background())
	return x, nil
}

func (x *Executor) restore(ctx context.Context) {
	if x.deps.State == nil {
		return
	}
	if saved, err := x.deps.State.LoadMarkets(ctx); err != nil {
		execLog.Warnf("加载监控市场失败: %v", err)
	} else if len(saved) > 0 {
		x.markets = dedupe(saved)
	}
	cds, err := x.deps.State.LoadCooldowns(ctx)
	if err != nil {
		execLog.Warnf("加载事件冷却失败: %v", err)
		return
	}
	now := x.now()
	for k, until := range cds {
		if until.After(now) {
			x.cooldowns.Set(canonicalEvent(k), until)
		}
	}
}

// Start 启动后台循环；未启用或已在运行时只记日志
func (x *Executor) Start(ctx context.Context) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if !x.cfg.Enabled {
		execLog.Info("策略执行器未启用，跳过启动")
		return
	}
	if x.running {
		execLog.Warn("策略执行器已在运行")
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	x.cancel = cancel
	x.done = make(chan struct{})
	x.running = true
	go x.loop(runCtx, x.done)
	execLog.Infof("策略执行器已启动: interval=%s markets=%d", x.cfg.CheckInterval, len(x.markets))
}

// Stop 停止后台循环，最多等待 10 秒
func (x *Executor) Stop() error {
	x.mu.Lock()
	if !x.running {
		x.mu.Unlock()
		execLog.Warn("策略执行器未在运行")
		return nil
	}
	cancel, done := x.cancel, x.done
	x.running = false
	x.cancel = nil
	x.mu.Unlock()

	cancel()
	select {
	case <-done:
		execLog.Info("策略执行器已停止")
		return nil
	case <-time.After(x.stopTimeout):
		execLog.Errorf("策略执行器停止超时 (%s)", x.stopTimeout)
		return ErrStopTimeout
	}
}

// Running 后台循环是否在运行
func (x *Executor) Running() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.running
}

// Trigger 唤醒后台循环立即执行一轮；未消费的唤醒会被合并
func (x *Executor) Trigger() {
	if !x.wake.Emit() {
		execLog.Debug("已有待执行的唤醒，合并")
	}
}

func (x *Executor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(x.tick)
	defer ticker.Stop()
	var elapsed time.Duration
	for {
		select {
		case <-ctx.Done():
			return
		case <-x.wake.C():
			elapsed = 0
			x.safePass(ctx)
		case <-ticker.C:
			elapsed += x.tick
			if elapsed >= x.cfg.CheckInterval {
				elapsed = 0
				// 这一轮会覆盖之前排队的唤醒
				x.wake.Drain()
				x.safePass(ctx)
			}
		}
	}
}

// safePass 单轮异常不会终止循环
func (x *Executor) safePass(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			execLog.Errorf("策略执行 panic: %v", r)
			x.passMu.Lock()
			x.lastErr = "panic during strategy pass"
			x.passMu.Unlock()
		}
	}()
	_, _ = x.RunOnce(ctx)
}

// AddMarket 添加监控市场，返回是否新增
func (x *Executor) AddMarket(marketID string) bool {
	if marketID == "" {
		return false
	}
	x.mu.Lock()
	for _, m := range x.markets {
		if m == marketID {
			x.mu.Unlock()
			return false
		}
	}
	x.markets = append(x.markets, marketID)
	snap := append([]string(nil), x.markets...)
	x.mu.Unlock()
	x.persistMarkets(snap)
	return true
}

// RemoveMarket 移除监控市场，返回是否存在
func (x *Executor) RemoveMarket(marketID string) bool {
	x.mu.Lock()
	idx := -1
	for i, m := range x.markets {
		if m == marketID {
			idx = i
			break
		}
	}
	if idx < 0 {
		x.mu.Unlock()
		return false
	}
	x.markets = append(x.markets[:idx:idx], x.markets[idx+1:]...)
	snap := append([]string(nil), x.markets...)
	x.mu.Unlock()
	x.persistMarkets(snap)
	return true
}

// SetMarkets 整体替换监控市场
func (x *Executor) SetMarkets(markets []string) {
	snap := dedupe(markets)
	x.mu.Lock()
	x.markets = snap
	x.mu.Unlock()
	x.persistMarkets(append([]string(nil), snap...))
}

// Markets 当前监控市场（副本）
func (x *Executor) Markets() []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]string(nil), x.markets...)
}

func (x *Executor) persistMarkets(markets []string) {
	if x.deps.State == nil {
		return
	}
	if err := x.deps.State.SaveMarkets(context.Background(), markets); err != nil {
		execLog.Warnf("保存监控市场失败: %v", err)
	}
}

// GetStatus 执行器状态快照
func (x *Executor) GetStatus() Status {
	st := Status{
		Running:       x.Running(),
		Enabled:       x.cfg.Enabled,
		CheckInterval: x.cfg.CheckInterval.String(),
		MinConfidence: string(x.cfg.MinConfidence),
		Markets:       x.Markets(),
		Cooldowns:     x.cooldowns.Snapshot(x.now()),
	}
	x.passMu.Lock()
	st.PassCount = x.passCount
	if !x.lastPassAt.IsZero() {
		t := x.lastPassAt
		st.LastPassAt = &t
	}
	st.LastError = x.lastErr
	x.passMu.Unlock()
	return st
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// sortByConfidence 按置信度从高到低稳定排序
func sortByConfidence(recs []strategy.Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Confidence.Rank() > recs[j].Confidence.Rank()
	})
}

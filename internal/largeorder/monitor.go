package largeorder

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/autoexec/internal/domain"
	"github.com/betbot/autoexec/internal/metrics"
	"github.com/betbot/autoexec/internal/ports"
	"github.com/betbot/autoexec/pkg/persistence"
	"github.com/betbot/autoexec/pkg/workerpool"
)

var monLog = logrus.WithField("component", "large_order_monitor")

// ErrInvalidThreshold 阈值必须为正数
var ErrInvalidThreshold = fmt.Errorf("large order threshold must be positive")

const filePrefix = "large_order_"

// Config 大额订单监控配置
type Config struct {
	Threshold       float64
	MaxMemoryOrders int
	Workers         int
}

func DefaultConfig() Config {
	return Config{Threshold: 100, MaxMemoryOrders: 1000, Workers: workerpool.DefaultWorkers}
}

// Record 大额订单记录
type Record = ports.LargeOrderRecord

// Monitor 识别并记录大额订单：内存窗口 + 文件日志 + 按 symbol 的文件索引
type Monitor struct {
	threshold atomic.Uint64 // math.Float64bits
	maxMemory int
	workers   int

	journal *persistence.Dir
	store   ports.Persistence

	mu     sync.RWMutex
	memory []Record
	index  map[string][]string // symbol -> 文件名

	seq atomic.Uint64
	now func() time.Time
}

// NewMonitor 创建监控器并从日志目录重建 symbol 索引
func NewMonitor(cfg Config, journal *persistence.Dir, store ports.Persistence) (*Monitor, error) {
	if !(cfg.Threshold > 0) {
		return nil, ErrInvalidThreshold
	}
	if journal == nil {
		return nil, fmt.Errorf("large order journal is required")
	}
	if cfg.MaxMemoryOrders <= 0 {
		cfg.MaxMemoryOrders = DefaultConfig().MaxMemoryOrders
	}
	if cfg.Workers <= 0 {
		cfg.Workers = workerpool.DefaultWorkers
	}
	if store == nil {
		store = ports.NopPersistence{}
	}
	m := &Monitor{
		maxMemory: cfg.MaxMemoryOrders,
		workers:   cfg.Workers,
		journal:   journal,
		store:     store,
		index:     make(map[string][]string),
		now:       time.Now,
	}
	m.storeThreshold(cfg.Threshold)
	if err := m.buildIndex(context.Background()); err != nil {
		monLog.Errorf("构建大额订单索引失败: %v", err)
	}
	return m, nil
}

func (m *Monitor) buildIndex(ctx context.Context) error {
	names, err := m.journal.List(filePrefix)
	if err != nil {
		return err
	}
	recs := m.readFiles(ctx, names)
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range recs {
		if r.Err != nil || r.Value.Symbol == "" {
			continue
		}
		m.index[r.Value.Symbol] = append(m.index[r.Value.Symbol], names[i])
	}
	monLog.Infof("大额订单索引已重建: files=%d symbols=%d", len(names), len(m.index))
	return nil
}

// Threshold 当前阈值
func (m *Monitor) Threshold() float64 {
	return loadFloat(&m.threshold)
}

func (m *Monitor) storeThreshold(v float64) {
	storeFloat(&m.threshold, v)
}

// SetThreshold 非正数被拒绝，阈值保持不变
func (m *Monitor) SetThreshold(v float64) error {
	if !(v > 0) {
		monLog.Warnf("拒绝设置非正阈值: %v", v)
		return ErrInvalidThreshold
	}
	m.storeThreshold(v)
	monLog.Infof("已更新大额订单阈值为 %v", v)
	return nil
}

// CheckLargeOrder quantity >= threshold
func (m *Monitor) CheckLargeOrder(order *domain.Order) bool {
	return order != nil && order.Quantity >= m.Threshold()
}

// RecordLargeOrder 非大额订单返回 (false, nil)；日志写入失败返回 (false, err)
func (m *Monitor) RecordLargeOrder(ctx context.Context, order *domain.Order) (bool, error) {
	if !m.CheckLargeOrder(order) {
		return false, nil
	}
	if order.OrderID == "" {
		monLog.Warn("大额订单缺少 order_id")
	}
	now := m.now()
	rec := Record{
		Timestamp:   now,
		OrderID:     order.OrderID,
		Symbol:      order.Symbol(),
		Side:        order.Side,
		Quantity:    order.Quantity,
		Price:       order.Price,
		AccountID:   order.AccountID,
		GatewayName: order.Instrument.GatewayName,
	}

	name := fmt.Sprintf("%s%s_%03d_%06d_%s.json", filePrefix,
		now.Format("20060102_150405"), now.Nanosecond()/int(time.Millisecond), m.seq.Add(1)%1000000, persistence.SafeName(order.OrderID))
	if err := m.journal.Write(name, rec); err != nil {
		metrics.PersistenceErrors.Add(1)
		monLog.Errorf("写入大额订单日志失败: order=%s err=%v", order.OrderID, err)
		return false, fmt.Errorf("journal large order %s: %w", order.OrderID, err)
	}

	m.mu.Lock()
	if len(m.memory) >= m.maxMemory {
		m.memory = append(m.memory[:0:0], m.memory[len(m.memory)-m.maxMemory+1:]...)
	}
	m.memory = append(m.memory, rec)
	if rec.Symbol != "" {
		m.index[rec.Symbol] = append(m.index[rec.Symbol], name)
	}
	m.mu.Unlock()

	if err := m.store.SaveLargeOrder(ctx, rec); err != nil {
		metrics.PersistenceErrors.Add(1)
		monLog.Errorf("保存大额订单到数据存储失败: order=%s err=%v", order.OrderID, err)
	}
	metrics.LargeOrdersRecorded.Add(1)
	monLog.Infof("已记录大额订单: %s symbol=%s 数量=%v", order.OrderID, rec.Symbol, order.Quantity)
	return true, nil
}

// BatchResult 批量记录结果
type BatchResult struct {
	Total       int      `json:"total"`
	LargeOrders int      `json:"large_orders"`
	Recorded    int      `json:"recorded"`
	Failed      int      `json:"failed"`
	Errors      []string `json:"errors"`
}

// RecordOrdersBatch 过滤出大额订单并用 worker pool 并行记录；单个失败不影响其他订单
func (m *Monitor) RecordOrdersBatch(ctx context.Context, orders []*domain.Order) BatchResult {
	res := BatchResult{Total: len(orders), Errors: []string{}}
	var large []*domain.Order
	for _, o := range orders {
		if m.CheckLargeOrder(o) {
			large = append(large, o)
		}
	}
	res.LargeOrders = len(large)

	out := workerpool.Map(ctx, m.workers, large, m.RecordLargeOrder)
	for _, r := range out {
		switch {
		case r.Err != nil:
			res.Failed++
			res.Errors = append(res.Errors, r.Err.Error())
		case r.Value:
			res.Recorded++
		default:
			res.Failed++
		}
	}
	return res
}

// Recent 内存窗口中最近的 n 条记录（最新在前）
func (m *Monitor) Recent(n int) []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n <= 0 || n > len(m.memory) {
		n = len(m.memory)
	}
	out := make([]Record, 0, n)
	for i := len(m.memory) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.memory[i])
	}
	return out
}

// MemoryCount 内存窗口中的记录数
func (m *Monitor) MemoryCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.memory)
}

func (m *Monitor) readFiles(ctx context.Context, names []string) []workerpool.Result[Record] {
	return workerpool.Map(ctx, m.workers, names, func(_ context.Context, name string) (Record, error) {
		var rec Record
		if err := m.journal.Read(name, &rec); err != nil {
			return rec, fmt.Errorf("read %s: %w", name, err)
		}
		return rec, nil
	})
}

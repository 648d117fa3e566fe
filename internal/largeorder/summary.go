package largeorder

import (
	"context"
	"sort"
	"time"
)

// Summary 时间窗口内的大额订单汇总
type Summary struct {
	TotalLargeOrders int            `json:"total_large_orders"`
	BySymbol         map[string]int `json:"by_symbol"`
	BySide           map[string]int `json:"by_side"`
	ByAccount        map[string]int `json:"by_account"`
	TotalQuantity    float64        `json:"total_quantity"`
	AverageQuantity  float64        `json:"average_quantity"`
	PeriodDays       int            `json:"period_days"`
}

// Statistics 监控器状态
type Statistics struct {
	Threshold      float64   `json:"current_threshold"`
	MemoryCount    int       `json:"memory_orders_count"`
	IndexedSymbols int       `json:"indexed_symbols"`
	TotalFiles     int       `json:"total_files"`
	Summary7d      Summary   `json:"summary_7d"`
	LastUpdated    time.Time `json:"last_updated"`
}

// recentFromJournal 并行读取日志文件，保留窗口内的记录
func (m *Monitor) recentFromJournal(ctx context.Context, names []string, days int) []Record {
	cutoff := m.now().Add(-time.Duration(days) * 24 * time.Hour)
	var out []Record
	for i, r := range m.readFiles(ctx, names) {
		if r.Err != nil {
			monLog.Errorf("读取大额订单文件 %s 失败: %v", names[i], r.Err)
			continue
		}
		if !r.Value.Timestamp.Before(cutoff) {
			out = append(out, r.Value)
		}
	}
	return out
}

// GetLargeOrdersSummary 按 symbol/side/account 汇总最近 days 天的记录
func (m *Monitor) GetLargeOrdersSummary(ctx context.Context, days int) Summary {
	if days <= 0 {
		days = 7
	}
	sum := Summary{
		BySymbol:   map[string]int{},
		BySide:     map[string]int{},
		ByAccount:  map[string]int{},
		PeriodDays: days,
	}
	names, err := m.journal.List(filePrefix)
	if err != nil {
		monLog.Errorf("列出大额订单文件失败: %v", err)
		return sum
	}
	for _, rec := range m.recentFromJournal(ctx, names, days) {
		sum.TotalLargeOrders++
		if rec.Symbol != "" {
			sum.BySymbol[rec.Symbol]++
		}
		if rec.Side != "" {
			sum.BySide[string(rec.Side)]++
		}
		if rec.AccountID != "" {
			sum.ByAccount[rec.AccountID]++
		}
		sum.TotalQuantity += rec.Quantity
	}
	if sum.TotalLargeOrders > 0 {
		sum.AverageQuantity = sum.TotalQuantity / float64(sum.TotalLargeOrders)
	}
	return sum
}

// GetLargeOrdersBySymbol 借助索引只读取该 symbol 的文件，最新在前
func (m *Monitor) GetLargeOrdersBySymbol(ctx context.Context, symbol string, days int) []Record {
	if days <= 0 {
		days = 7
	}
	m.mu.RLock()
	names := append([]string(nil), m.index[symbol]...)
	m.mu.RUnlock()
	if len(names) == 0 {
		return []Record{}
	}
	out := m.recentFromJournal(ctx, names, days)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// GetStatistics 当前阈值、内存/索引规模、文件数以及 7 天汇总
func (m *Monitor) GetStatistics(ctx context.Context) Statistics {
	m.mu.RLock()
	st := Statistics{
		Threshold:      m.Threshold(),
		MemoryCount:    len(m.memory),
		IndexedSymbols: len(m.index),
	}
	m.mu.RUnlock()
	if names, err := m.journal.List(filePrefix); err == nil {
		st.TotalFiles = len(names)
	}
	st.Summary7d = m.GetLargeOrdersSummary(ctx, 7)
	st.LastUpdated = m.now()
	return st
}

package largeorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/autoexec/internal/domain"
	"github.com/betbot/autoexec/internal/ports"
	"github.com/betbot/autoexec/pkg/persistence"
)

type recordingStore struct {
	ports.NopPersistence
	mu   sync.Mutex
	recs []ports.LargeOrderRecord
	fail bool
}

func (s *recordingStore) SaveLargeOrder(_ context.Context, rec ports.LargeOrderRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("db down")
	}
	s.recs = append(s.recs, rec)
	return nil
}

func newOrder(id, symbol string, side domain.OrderSide, qty float64) *domain.Order {
	return &domain.Order{
		OrderID:    id,
		Instrument: domain.Instrument{Symbol: symbol, GatewayName: "paper"},
		Side:       side,
		Type:       domain.OrderTypeMarket,
		Quantity:   qty,
		AccountID:  "main_account",
	}
}

func newTestMonitor(t *testing.T, cfg Config, store ports.Persistence) (*Monitor, *persistence.Dir) {
	t.Helper()
	dir, err := persistence.OpenDir(t.TempDir())
	require.NoError(t, err)
	m, err := NewMonitor(cfg, dir, store)
	require.NoError(t, err)
	return m, dir
}

func TestCheckLargeOrder(t *testing.T) {
	m, _ := newTestMonitor(t, DefaultConfig(), nil)
	assert.True(t, m.CheckLargeOrder(newOrder("a", "m1", domain.OrderSideBuy, 150)))
	assert.True(t, m.CheckLargeOrder(newOrder("b", "m1", domain.OrderSideBuy, 100)))
	assert.False(t, m.CheckLargeOrder(newOrder("c", "m1", domain.OrderSideBuy, 50)))
}

func TestSetThresholdRejectsNonPositive(t *testing.T) {
	m, _ := newTestMonitor(t, DefaultConfig(), nil)
	assert.ErrorIs(t, m.SetThreshold(0), ErrInvalidThreshold)
	assert.ErrorIs(t, m.SetThreshold(-5), ErrInvalidThreshold)
	assert.Equal(t, 100.0, m.Threshold())
	require.NoError(t, m.SetThreshold(20))
	assert.Equal(t, 20.0, m.Threshold())

	_, err := NewMonitor(Config{Threshold: 0}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidThreshold)
}

func TestRecordLargeOrder(t *testing.T) {
	store := &recordingStore{}
	m, dir := newTestMonitor(t, DefaultConfig(), store)
	ctx := context.Background()

	ok, err := m.RecordLargeOrder(ctx, newOrder("small", "m1", domain.OrderSideBuy, 10))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m.RecordLargeOrder(ctx, newOrder("big", "m1", domain.OrderSideBuy, 250))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, m.MemoryCount())
	assert.Len(t, store.recs, 1)

	names, err := dir.List(filePrefix)
	require.NoError(t, err)
	assert.Len(t, names, 1)

	recs := m.GetLargeOrdersBySymbol(ctx, "m1", 7)
	require.Len(t, recs, 1)
	assert.Equal(t, "big", recs[0].OrderID)
	assert.Equal(t, 250.0, recs[0].Quantity)
}

// 数据库写入失败只记录日志，不影响记录结果
func TestRecordLargeOrderStoreFailureIsBestEffort(t *testing.T) {
	m, _ := newTestMonitor(t, DefaultConfig(), &recordingStore{fail: true})
	ok, err := m.RecordLargeOrder(context.Background(), newOrder("big", "m1", domain.OrderSideSell, 300))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryWindowBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxMemoryOrders = 3
	m, _ := newTestMonitor(t, cfg, nil)
	for i := 0; i < 5; i++ {
		_, err := m.RecordLargeOrder(context.Background(), newOrder(fmt.Sprintf("o%d", i), "m1", domain.OrderSideBuy, 100))
		require.NoError(t, err)
	}
	assert.Equal(t, 3, m.MemoryCount())
	recent := m.Recent(10)
	require.Len(t, recent, 3)
	assert.Equal(t, "o4", recent[0].OrderID)
	assert.Equal(t, "o2", recent[2].OrderID)
}

func TestRecordOrdersBatch(t *testing.T) {
	m, _ := newTestMonitor(t, DefaultConfig(), nil)
	orders := []*domain.Order{
		newOrder("a", "m1", domain.OrderSideBuy, 150),
		newOrder("b", "m1", domain.OrderSideSell, 50),
		newOrder("c", "m2", domain.OrderSideBuy, 300),
		newOrder("d", "m3", domain.OrderSideSell, 120),
		nil,
	}
	res := m.RecordOrdersBatch(context.Background(), orders)
	assert.Equal(t, 5, res.Total)
	assert.Equal(t, 3, res.LargeOrders)
	assert.Equal(t, 3, res.Recorded)
	assert.Equal(t, 0, res.Failed)
	assert.Empty(t, res.Errors)
}

func TestSummaryAndStatistics(t *testing.T) {
	m, _ := newTestMonitor(t, DefaultConfig(), nil)
	ctx := context.Background()
	for _, o := range []*domain.Order{
		newOrder("a", "m1", domain.OrderSideBuy, 100),
		newOrder("b", "m1", domain.OrderSideSell, 200),
		newOrder("c", "m2", domain.OrderSideBuy, 300),
	} {
		_, err := m.RecordLargeOrder(ctx, o)
		require.NoError(t, err)
	}

	sum := m.GetLargeOrdersSummary(ctx, 7)
	assert.Equal(t, 3, sum.TotalLargeOrders)
	assert.Equal(t, map[string]int{"m1": 2, "m2": 1}, sum.BySymbol)
	assert.Equal(t, map[string]int{"buy": 2, "sell": 1}, sum.BySide)
	assert.Equal(t, map[string]int{"main_account": 3}, sum.ByAccount)
	assert.InDelta(t, 600, sum.TotalQuantity, 1e-9)
	assert.InDelta(t, 200, sum.AverageQuantity, 1e-9)

	// 时钟前移 8 天后，7 天窗口内没有记录
	m.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }
	assert.Equal(t, 0, m.GetLargeOrdersSummary(ctx, 7).TotalLargeOrders)
	assert.Empty(t, m.GetLargeOrdersBySymbol(ctx, "m1", 7))

	st := m.GetStatistics(ctx)
	assert.Equal(t, 3, st.TotalFiles)
	assert.Equal(t, 2, st.IndexedSymbols)
	assert.Equal(t, 100.0, st.Threshold)
}

// 重启后从日志目录重建 symbol 索引
func TestIndexRebuiltFromJournal(t *testing.T) {
	dir, err := persistence.OpenDir(t.TempDir())
	require.NoError(t, err)
	first, err := NewMonitor(DefaultConfig(), dir, nil)
	require.NoError(t, err)
	ctx := context.Background()
	_, err = first.RecordLargeOrder(ctx, newOrder("a", "m1", domain.OrderSideBuy, 100))
	require.NoError(t, err)
	_, err = first.RecordLargeOrder(ctx, newOrder("b", "m2", domain.OrderSideBuy, 100))
	require.NoError(t, err)

	second, err := NewMonitor(DefaultConfig(), dir, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, second.MemoryCount())
	assert.Len(t, second.GetLargeOrdersBySymbol(ctx, "m2", 7), 1)
}

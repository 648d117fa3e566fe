package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/autoexec/internal/domain"
	"github.com/betbot/autoexec/internal/execution"
	"github.com/betbot/autoexec/internal/executor"
	"github.com/betbot/autoexec/internal/largeorder"
	"github.com/betbot/autoexec/internal/monitoring"
	"github.com/betbot/autoexec/internal/risk"
)

type fakeEngine struct {
	mu        sync.Mutex
	submitted []*domain.Order
	probs     map[string]float64
	batches   int
	halted    bool
}

func (f *fakeEngine) GetEngineStatus(context.Context) execution.EngineStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return execution.EngineStatus{Gateways: []string{"paper"}, CircuitBreaker: f.halted}
}

func (f *fakeEngine) SetTradingHalted(halted bool) {
	f.mu.Lock()
	f.halted = halted
	f.mu.Unlock()
}

func (f *fakeEngine) GetOrderHistory(limit int) []execution.HistoryEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []execution.HistoryEntry{}
	for i := len(f.submitted) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, execution.HistoryEntry{Order: *f.submitted[i]})
	}
	return out
}

func (f *fakeEngine) SubmitOrder(_ context.Context, order *domain.Order, probs map[string]float64) execution.SubmissionResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, order)
	f.probs = probs
	return execution.SubmissionResult{OrderID: order.OrderID, Status: domain.OrderStatusSubmitted}
}

func (f *fakeEngine) SubmitOrdersBatch(ctx context.Context, reqs []execution.OrderRequest) execution.BatchResult {
	f.mu.Lock()
	f.batches++
	f.mu.Unlock()
	res := execution.BatchResult{Total: len(reqs)}
	for _, r := range reqs {
		res.Details = append(res.Details, f.SubmitOrder(ctx, r.Order, r.Probabilities))
		res.Submitted++
	}
	return res
}

func (f *fakeEngine) SyncOrderStatus(_ context.Context, orderID string) (execution.SyncResult, error) {
	if orderID != "o-1" {
		return execution.SyncResult{}, execution.ErrOrderNotFound
	}
	return execution.SyncResult{OrderID: orderID, Found: true, Status: domain.OrderStatusFilled, Updated: true}, nil
}

func (f *fakeEngine) SyncAllOrders(context.Context) execution.SyncSummary {
	return execution.SyncSummary{Total: 1, Updated: 1}
}

type fakeScheduler struct {
	mu       sync.Mutex
	running  bool
	markets  []string
	triggers int
	runs     int
	events   []string
	runErr   error
}

func (f *fakeScheduler) GetStatus() executor.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return executor.Status{Running: f.running, Enabled: true, Markets: append([]string(nil), f.markets...)}
}

func (f *fakeScheduler) Start(context.Context) {
	f.mu.Lock()
	f.running = true
	f.mu.Unlock()
}

func (f *fakeScheduler) Stop() error {
	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
	return nil
}

func (f *fakeScheduler) Trigger() {
	f.mu.Lock()
	f.triggers++
	f.mu.Unlock()
}

func (f *fakeScheduler) RunOnce(context.Context) (executor.PassResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	return executor.PassResult{Markets: len(f.markets)}, f.runErr
}

func (f *fakeScheduler) SetMarkets(markets []string) {
	f.mu.Lock()
	f.markets = markets
	f.mu.Unlock()
}

func (f *fakeScheduler) ExecuteMChooseN(_ context.Context, marketID string, n int) executor.MChooseNResult {
	if n <= 0 {
		return executor.MChooseNResult{Status: executor.MChooseNError, Message: "n must be positive", MarketID: marketID}
	}
	return executor.MChooseNResult{Status: executor.MChooseNSuccess, MarketID: marketID, M: 3, N: n, SelectedCount: n}
}

func (f *fakeScheduler) HandleEvent(_ context.Context, name string, _ map[string]any) executor.EventResult {
	f.mu.Lock()
	f.events = append(f.events, name)
	f.mu.Unlock()
	return executor.EventResult{EventName: name, Status: executor.EventProcessed, OrderStatus: executor.OrdersNone}
}

type fakeLargeOrders struct {
	threshold float64
	days      int
}

func (f *fakeLargeOrders) GetLargeOrdersSummary(_ context.Context, days int) largeorder.Summary {
	f.days = days
	return largeorder.Summary{TotalLargeOrders: 2, PeriodDays: days}
}

func (f *fakeLargeOrders) GetLargeOrdersBySymbol(_ context.Context, symbol string, days int) []largeorder.Record {
	f.days = days
	return []largeorder.Record{{OrderID: "big-1", Symbol: symbol, Quantity: 5000}}
}

func (f *fakeLargeOrders) Threshold() float64 { return f.threshold }

func (f *fakeLargeOrders) SetThreshold(v float64) error {
	if v <= 0 {
		return largeorder.ErrInvalidThreshold
	}
	f.threshold = v
	return nil
}

type fixture struct {
	srv    http.Handler
	engine *fakeEngine
	sched  *fakeScheduler
	large  *fakeLargeOrders
	alerts *monitoring.Manager
	risk   *risk.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	rm, err := risk.NewManager(risk.DefaultConfig())
	require.NoError(t, err)
	f := &fixture{
		engine: &fakeEngine{},
		sched:  &fakeScheduler{},
		large:  &fakeLargeOrders{threshold: 1000},
		alerts: monitoring.NewManager(nil),
		risk:   rm,
	}
	s, err := New(context.Background(), Config{}, Deps{
		Engine:      f.engine,
		Executor:    f.sched,
		LargeOrders: f.large,
		Alerts:      f.alerts,
		Risk:        f.risk,
	})
	require.NoError(t, err)
	f.srv = s.Router()
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestNewRequiresEngine(t *testing.T) {
	_, err := New(context.Background(), Config{}, Deps{})
	require.Error(t, err)
}

func TestHealthAndStatus(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]json.RawMessage](t, rec)
	assert.Contains(t, body, "engine")
	assert.Contains(t, body, "executor")
	assert.Contains(t, body, "alerts")
}

func TestSubmitAndListOrders(t *testing.T) {
	f := newFixture(t)
	order := domain.Order{
		OrderID:    "manual-1",
		Instrument: domain.Instrument{Symbol: "fed-cut", GatewayName: "paper"},
		Side:       domain.OrderSideBuy,
		Type:       domain.OrderTypeMarket,
		Quantity:   10,
		AccountID:  "main_account",
	}
	rec := f.do(t, http.MethodPost, "/api/orders", map[string]any{
		"order":         order,
		"probabilities": map[string]float64{"yes": 60, "no": 30},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[execution.SubmissionResult](t, rec)
	assert.Equal(t, "manual-1", res.OrderID)
	assert.Equal(t, 60.0, f.engine.probs["yes"])

	rec = f.do(t, http.MethodGet, "/api/orders?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Orders []execution.HistoryEntry `json:"orders"`
	}](t, rec)
	require.Len(t, list.Orders, 1)
	assert.Equal(t, "fed-cut", list.Orders[0].Order.Instrument.Symbol)

	rec = f.do(t, http.MethodGet, "/api/orders?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitOrderRejectsBadBody(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/orders", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/orders/batch", map[string]any{"orders": []any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitBatch(t *testing.T) {
	f := newFixture(t)
	mk := func(id string) map[string]any {
		return map[string]any{"order": domain.Order{OrderID: id, Quantity: 1}}
	}
	rec := f.do(t, http.MethodPost, "/api/orders/batch", map[string]any{"orders": []any{mk("a"), mk("b")}})
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[execution.BatchResult](t, rec)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 1, f.engine.batches)
}

func TestSyncOrder(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/orders/o-1/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[execution.SyncResult](t, rec).Updated)

	rec = f.do(t, http.MethodPost, "/api/orders/missing/sync", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/orders/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[execution.SyncSummary](t, rec).Updated)
}

func TestEngineHaltResume(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/engine/halt", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var st execution.EngineStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.True(t, st.CircuitBreaker)

	rec = f.do(t, http.MethodPost, "/api/engine/resume", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.False(t, st.CircuitBreaker)
}

func TestLargeOrderRoutes(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/large-orders/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 7, decode[largeorder.Summary](t, rec).PeriodDays)

	rec = f.do(t, http.MethodGet, "/api/large-orders/fed-cut?days=3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, f.large.days)

	rec = f.do(t, http.MethodPut, "/api/large-orders/threshold", map[string]float64{"threshold": 2500})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2500.0, f.large.threshold)

	rec = f.do(t, http.MethodPut, "/api/large-orders/threshold", map[string]float64{"threshold": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 2500.0, f.large.threshold)
}

func TestExecutorRoutes(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/executor/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[executor.Status](t, rec).Running)

	rec = f.do(t, http.MethodPut, "/api/executor/markets", map[string][]string{"markets": {"m1", "m2"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"m1", "m2"}, decode[executor.Status](t, rec).Markets)

	rec = f.do(t, http.MethodPost, "/api/executor/run", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[executor.PassResult](t, rec).Markets)

	rec = f.do(t, http.MethodPost, "/api/executor/run?async=true", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, f.sched.triggers)
	assert.Equal(t, 1, f.sched.runs)

	rec = f.do(t, http.MethodPost, "/api/executor/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[executor.Status](t, rec).Running)
}

func TestExecutorRunError(t *testing.T) {
	f := newFixture(t)
	f.sched.runErr = errors.New("context canceled")
	rec := f.do(t, http.MethodPost, "/api/executor/run", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMChooseN(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/executor/mchoosen", map[string]any{"market_id": "fed", "n": 2})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[executor.MChooseNResult](t, rec).SelectedCount)

	rec = f.do(t, http.MethodPost, "/api/executor/mchoosen", map[string]any{"market_id": "fed", "n": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEventRoute(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/events/cpi", map[string]any{"actual": 3.1})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, executor.EventProcessed, decode[executor.EventResult](t, rec).Status)

	rec = f.do(t, http.MethodPost, "/api/events/fomc_meeting", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"cpi", "fomc_meeting"}, f.sched.events)
}

func TestAlertRoutes(t *testing.T) {
	f := newFixture(t)
	a := f.alerts.Raise(monitoring.LevelError, monitoring.TypeOrder, "venue down", nil)
	f.alerts.Raise(monitoring.LevelInfo, monitoring.TypeSystem, "started", nil)

	rec := f.do(t, http.MethodGet, "/api/alerts?level=ERROR", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Summary monitoring.Summary `json:"summary"`
		Alerts  []monitoring.Alert `json:"alerts"`
	}](t, rec)
	assert.Equal(t, 2, body.Summary.Open)
	require.Len(t, body.Alerts, 1)
	assert.Equal(t, a.ID, body.Alerts[0].ID)

	rec = f.do(t, http.MethodPost, "/api/alerts/"+a.ID+"/resolve", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/alerts/"+a.ID+"/resolve", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRiskConfigPartialUpdate(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPut, "/api/risk/config", map[string]any{"max_order_size": 250})
	require.Equal(t, http.StatusOK, rec.Code)
	cfg := f.risk.Config()
	assert.Equal(t, 250.0, cfg.MaxOrderSize)
	assert.Equal(t, risk.DefaultConfig().DailyTradeLimit, cfg.DailyTradeLimit)

	rec = f.do(t, http.MethodPut, "/api/risk/config", map[string]any{"max_order_size": -5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 250.0, f.risk.Config().MaxOrderSize)
}

func TestMissingComponentReturns503(t *testing.T) {
	s, err := New(context.Background(), Config{}, Deps{Engine: &fakeEngine{}})
	require.NoError(t, err)
	h := s.Router()
	for _, path := range []string{"/api/executor", "/api/alerts", "/api/large-orders/summary", "/api/risk/config"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/autoexec/internal/domain"
	"github.com/betbot/autoexec/internal/execution"
	"github.com/betbot/autoexec/internal/executor"
)

func newTestServer(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []string
	)
	record := func(r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Method+" "+r.URL.RequestURI())
		mu.Unlock()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"uptime":   "1m0s",
			"engine":   execution.EngineStatus{Gateways: []string{"paper"}, ActiveOrders: 2},
			"executor": executor.Status{Running: true, Markets: []string{"m1"}},
		})
	})
	mux.HandleFunc("/api/orders", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		_ = json.NewEncoder(w).Encode(map[string]any{"orders": []execution.HistoryEntry{{
			Timestamp: time.Now(),
			Order:     domain.Order{OrderID: "auto_1", Instrument: domain.Instrument{Symbol: "fed-cut"}, Side: domain.OrderSideBuy, Quantity: 10},
			Result:    execution.SubmissionResult{OrderID: "auto_1", Status: domain.OrderStatusSubmitted},
		}}})
	})
	mux.HandleFunc("/api/executor/run", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		if r.URL.Query().Get("async") == "true" {
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"triggered":true}`))
			return
		}
		_ = json.NewEncoder(w).Encode(executor.PassResult{Markets: 1, Submitted: 1})
	})
	mux.HandleFunc("/api/events/cpi", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, 3.2, body["actual"])
		_ = json.NewEncoder(w).Encode(executor.EventResult{EventName: "cpi", Status: executor.EventCooldown, Reason: "in cooldown"})
	})
	mux.HandleFunc("/api/engine/resume", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		_ = json.NewEncoder(w).Encode(execution.EngineStatus{Gateways: []string{"paper"}})
	})
	mux.HandleFunc("/api/alerts", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"alerts not configured"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestRunCommands(t *testing.T) {
	srv, seen := newTestServer(t)
	c := newClient(srv.URL, 5*time.Second)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, run(ctx, c, &out, "status", nil))
	assert.Contains(t, out.String(), "paper")

	out.Reset()
	require.NoError(t, run(ctx, c, &out, "orders", []string{"-limit", "5"}))
	assert.Contains(t, out.String(), "fed-cut")

	out.Reset()
	require.NoError(t, run(ctx, c, &out, "run", nil))
	assert.Contains(t, out.String(), "submitted=1")

	out.Reset()
	require.NoError(t, run(ctx, c, &out, "run", []string{"-async"}))

	out.Reset()
	require.NoError(t, run(ctx, c, &out, "event", []string{"cpi", "-data", `{"actual":3.2}`}))
	assert.Contains(t, out.String(), "status=cooldown")

	out.Reset()
	require.NoError(t, run(ctx, c, &out, "resume", nil))
	assert.Contains(t, out.String(), "circuit_breaker_open=false")

	assert.Equal(t, []string{
		"GET /api/status",
		"GET /api/orders?limit=5",
		"POST /api/executor/run",
		"POST /api/executor/run?async=true",
		"POST /api/events/cpi",
		"POST /api/engine/resume",
	}, *seen)
}

func TestRunErrors(t *testing.T) {
	srv, _ := newTestServer(t)
	c := newClient(srv.URL, 5*time.Second)
	ctx := context.Background()
	var out bytes.Buffer

	err := run(ctx, c, &out, "alerts", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alerts not configured")

	assert.Error(t, run(ctx, c, &out, "event", nil))
	assert.Error(t, run(ctx, c, &out, "event", []string{"cpi", "-data", "not-json"}))
	assert.Error(t, run(ctx, c, &out, "bogus", nil))
}

func TestWatchModel(t *testing.T) {
	srv, _ := newTestServer(t)
	c := newClient(srv.URL, 5*time.Second)
	ctx := context.Background()

	m := newWatchModel(ctx, c, time.Second)
	assert.Contains(t, m.View(), "正在连接")

	msg := fetchCmd(ctx, c)()
	snap, ok := msg.(snapshotMsg)
	require.True(t, ok)
	require.NoError(t, snap.err)

	next, _ := m.Update(snap)
	view := next.View()
	assert.Contains(t, view, "paper")
	assert.Contains(t, view, "fed-cut")
	assert.Contains(t, view, "running")
	assert.Contains(t, view, "无未解决告警")

	next, cmd := next.Update(actionMsg{err: assert.AnError})
	require.NotNil(t, cmd)
	assert.Contains(t, next.View(), "操作失败")

	_, cmd = next.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestWatchFetchError(t *testing.T) {
	c := newClient("http://127.0.0.1:1", time.Second)
	msg := fetchCmd(context.Background(), c)()
	snap, ok := msg.(snapshotMsg)
	require.True(t, ok)
	assert.Error(t, snap.err)

	m, _ := newWatchModel(context.Background(), c, 0).Update(snap)
	assert.Contains(t, m.View(), "错误")
}

package polymarket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/autoexec/internal/domain"
)

type recordingHandler struct {
	mu   sync.Mutex
	upds []domain.OrderUpdate
}

func (h *recordingHandler) OnOrderUpdate(_ context.Context, u domain.OrderUpdate) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.upds = append(h.upds, u)
	return nil
}

func (h *recordingHandler) snapshot() []domain.OrderUpdate {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.OrderUpdate(nil), h.upds...)
}

func newRelay(t *testing.T) (*httptest.Server, *orderPayload) {
	t.Helper()
	var got orderPayload
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("/order", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k-1", r.Header.Get("POLY_API_KEY"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		if got.Size > 1000 {
			_ = json.NewEncoder(w).Encode(orderResponse{Success: false, ErrorMsg: "size too large"})
			return
		}
		_ = json.NewEncoder(w).Encode(orderResponse{Success: true, OrderID: "gw-1"})
	})
	mux.HandleFunc("/data/order/gw-1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(orderStatusResponse{
			ID: "gw-1", Status: "LIVE", OriginalSize: "10", SizeMatched: "4", Price: "0.45",
		})
	})
	mux.HandleFunc("/data/order/boom", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &got
}

func testOrder(qty float64) *domain.Order {
	return &domain.Order{
		OrderID:    "auto_1",
		Instrument: domain.Instrument{Symbol: "fed-cut", GatewayName: "polymarket"},
		Side:       domain.OrderSideBuy,
		Type:       domain.OrderTypeLimit,
		Quantity:   qty,
		Price:      0.45,
		Outcome:    "yes",
	}
}

func TestSendOrderAndStatus(t *testing.T) {
	srv, got := newRelay(t)
	v, err := New(Config{BaseURL: srv.URL, Auth: Credentials{APIKey: "k-1"}, RequestsPerSecond: 100})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, v.Connect(ctx))

	id, err := v.SendOrder(ctx, testOrder(10))
	require.NoError(t, err)
	assert.Equal(t, "gw-1", id)
	assert.Equal(t, "BUY", got.Side)
	assert.Equal(t, "GTC", got.OrderType)
	assert.Equal(t, "fed-cut", got.Market)
	assert.InDelta(t, 0.45, got.Price, 1e-9)

	upd, err := v.GetOrderStatus(ctx, "gw-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPartiallyFilled, upd.Status)
	assert.InDelta(t, 4, upd.FilledQty, 1e-9)
	assert.Equal(t, "polymarket", upd.GatewayName)

	_, err = v.GetOrderStatus(ctx, "boom")
	assert.Error(t, err)
}

func TestSendOrderRejected(t *testing.T) {
	srv, _ := newRelay(t)
	v, err := New(Config{BaseURL: srv.URL, Auth: Credentials{APIKey: "k-1"}, RequestsPerSecond: 100})
	require.NoError(t, err)

	_, err = v.SendOrder(context.Background(), testOrder(5000))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "size too large")
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestMapStatus(t *testing.T) {
	assert.Equal(t, domain.OrderStatusFilled, MapStatus("MATCHED", 10, 10))
	assert.Equal(t, domain.OrderStatusCancelled, MapStatus("canceled", 10, 0))
	assert.Equal(t, domain.OrderStatusSubmitted, MapStatus("LIVE", 10, 0))
	assert.Equal(t, domain.OrderStatusFilled, MapStatus("LIVE", 10, 10))
	assert.Equal(t, domain.OrderStatusPartiallyFilled, MapStatus("LIVE", 10, 3))
	assert.Equal(t, domain.OrderStatusSubmitted, MapStatus("SOMETHING", 0, 0))
}

func TestUserStreamDeliversUpdates(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var auth struct {
			Type string   `json:"type"`
			Auth apiCreds `json:"auth"`
		}
		if err := conn.ReadJSON(&auth); err != nil {
			return
		}
		assert.Equal(t, "user", auth.Type)
		assert.Equal(t, "k-1", auth.Auth.Key)
		msgs := `[{"event_type":"order","id":"gw-1","type":"UPDATE","original_size":"10","size_matched":"10","price":"0.45"},` +
			`{"event_type":"trade","id":"t-1"},` +
			`{"event_type":"order","id":"gw-2","type":"CANCELLATION","original_size":"5","size_matched":"0"}]`
		_ = conn.WriteMessage(websocket.TextMessage, []byte(msgs))
		// 保持连接直到客户端关闭
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	h := &recordingHandler{}
	s := newUserStream("ws"+strings.TrimPrefix(srv.URL, "http"), apiCreds{Key: "k-1"}, "polymarket", h)
	go s.Run(context.Background())

	require.Eventually(t, func() bool { return len(h.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)
	upds := h.snapshot()
	assert.Equal(t, "gw-1", upds[0].GatewayOrderID)
	assert.Equal(t, domain.OrderStatusFilled, upds[0].Status)
	assert.InDelta(t, 10, upds[0].FilledQty, 1e-9)
	assert.Equal(t, domain.OrderStatusCancelled, upds[1].Status)

	s.Close()
}

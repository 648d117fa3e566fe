package polymarket

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/betbot/autoexec/internal/domain"
	"github.com/betbot/autoexec/internal/ports"
)

var streamLog = logrus.WithField("component", "user_stream")

// UserStream 用户订单推送：收到订单消息后串行投递给 handler，断线按递增延迟重连
type UserStream struct {
	url     string
	creds   apiCreds
	venue   string
	handler ports.OrderUpdateHandler

	reconnectDelay time.Duration
	maxReconnects  int // 0 表示不限

	mu     sync.Mutex
	closed bool
	cancel context.CancelFunc
	done   chan struct{}
}

func newUserStream(url string, creds apiCreds, venue string, handler ports.OrderUpdateHandler) *UserStream {
	return &UserStream{
		url:            url,
		creds:          creds,
		venue:          venue,
		handler:        handler,
		reconnectDelay: 2 * time.Second,
		done:           make(chan struct{}),
	}
}

// Run 阻塞直到 ctx 取消、Close 或超过最大重连次数
func (s *UserStream) Run(ctx context.Context) {
	defer close(s.done)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.cancel = cancel
	s.mu.Unlock()

	attempt := 0
	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			streamLog.Info("用户订单流已停止")
			return
		}
		attempt++
		if s.maxReconnects > 0 && attempt > s.maxReconnects {
			streamLog.Errorf("用户订单流重连失败：已达到最大重连次数 (%d)", s.maxReconnects)
			return
		}
		delay := s.reconnectDelay * time.Duration(attempt)
		if delay > time.Minute {
			delay = time.Minute
		}
		streamLog.Warnf("用户订单流断开: %v，%s 后重连 (第 %d 次)", err, delay, attempt)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// Close 停止推送流并等待退出
func (s *UserStream) Close() {
	s.mu.Lock()
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-s.done
}

// session 单次连接的生命周期；返回时连接已关闭
func (s *UserStream) session(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	// ctx 取消时关闭连接以打断阻塞读
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()
	defer conn.Close()

	auth := map[string]any{"type": "user", "auth": s.creds}
	if err := conn.WriteJSON(auth); err != nil {
		return err
	}
	streamLog.Info("用户订单流已连接")

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s.dispatch(ctx, raw)
	}
}

type orderMessage struct {
	EventType    string `json:"event_type"`
	ID           string `json:"id"`
	Type         string `json:"type"` // PLACEMENT, UPDATE, CANCELLATION
	Status       string `json:"status"`
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"`
	Price        string `json:"price"`
}

// dispatch 消息可能是单个对象或数组
func (s *UserStream) dispatch(ctx context.Context, raw []byte) {
	raw = []byte(strings.TrimSpace(string(raw)))
	if len(raw) == 0 {
		return
	}
	var msgs []orderMessage
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &msgs); err != nil {
			streamLog.Debugf("忽略无法解析的消息: %v", err)
			return
		}
	} else {
		var m orderMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			streamLog.Debugf("忽略无法解析的消息: %v", err)
			return
		}
		msgs = append(msgs, m)
	}
	for _, m := range msgs {
		upd, ok := s.toUpdate(m)
		if !ok {
			continue
		}
		if err := s.handler.OnOrderUpdate(ctx, upd); err != nil {
			streamLog.Warnf("订单更新处理失败: id=%s err=%v", upd.GatewayOrderID, err)
		}
	}
}

func (s *UserStream) toUpdate(m orderMessage) (domain.OrderUpdate, bool) {
	if !strings.EqualFold(m.EventType, "order") || m.ID == "" {
		return domain.OrderUpdate{}, false
	}
	original, _ := strconv.ParseFloat(m.OriginalSize, 64)
	matched, _ := strconv.ParseFloat(m.SizeMatched, 64)
	price, _ := strconv.ParseFloat(m.Price, 64)

	var status domain.OrderStatus
	switch strings.ToUpper(m.Type) {
	case "CANCELLATION":
		status = domain.OrderStatusCancelled
	case "PLACEMENT", "UPDATE":
		status = MapStatus("LIVE", original, matched)
	default:
		status = MapStatus(m.Status, original, matched)
	}
	return domain.OrderUpdate{
		GatewayName:    s.venue,
		GatewayOrderID: m.ID,
		Status:         status,
		FilledQty:      matched,
		FillPrice:      price,
		Timestamp:      time.Now(),
	}, true
}

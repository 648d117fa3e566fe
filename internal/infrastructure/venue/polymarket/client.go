// Package polymarket REST 下单适配器与用户订单推送流
package polymarket

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/betbot/autoexec/internal/domain"
	"github.com/betbot/autoexec/internal/ports"
)

var venueLog = logrus.WithField("component", "polymarket_venue")

// Config REST 适配器配置
type Config struct {
	Name              string
	BaseURL           string
	WSURL             string // 为空则不订阅用户订单流
	Auth              Credentials
	TokenIDs          map[string]string // TokenKey(market, outcome) -> CLOB token id，签名模式下用于生成交易所订单
	NegRisk           bool
	RequestsPerSecond float64
	Timeout           time.Duration
}

// Venue 直连交易所（L2 签名）或通过签名中继下单，并查询订单状态
type Venue struct {
	cfg     Config
	client  *resty.Client
	limiter *rate.Limiter
	signer  *signer
	now     func() time.Time

	mu      sync.Mutex
	creds   apiCreds
	handler ports.OrderUpdateHandler
	stream  *UserStream
}

var (
	_ ports.VenueAdapter          = (*Venue)(nil)
	_ ports.OrderUpdateSubscriber = (*Venue)(nil)
)

func New(cfg Config) (*Venue, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("polymarket: base_url is required")
	}
	if cfg.Name == "" {
		cfg.Name = "polymarket"
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Accept", "application/json")
	sg, err := newSigner(cfg.Auth)
	if err != nil {
		return nil, err
	}
	// 无签名私钥时只带 API key，由中继完成签名
	if sg == nil && cfg.Auth.APIKey != "" {
		client.SetHeader("POLY_API_KEY", cfg.Auth.APIKey)
	}
	burst := int(cfg.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return &Venue{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
		signer:  sg,
		now:     time.Now,
		creds: apiCreds{
			Key:        cfg.Auth.APIKey,
			Secret:     cfg.Auth.Secret,
			Passphrase: cfg.Auth.Passphrase,
		},
	}, nil
}

// Address 签名钱包地址；未配置私钥时为空
func (v *Venue) Address() string {
	if v.signer == nil {
		return ""
	}
	return v.signer.address.Hex()
}

// signed 为请求附加 L2 头；中继模式下原样返回
func (v *Venue) signed(req *resty.Request, method, path, body string) (*resty.Request, error) {
	if v.signer == nil {
		return req, nil
	}
	v.mu.Lock()
	creds := v.creds
	v.mu.Unlock()
	if creds.Secret == "" {
		return nil, errors.New("polymarket: api credentials not derived, call Connect first")
	}
	headers, err := v.signer.l2Headers(creds, v.now().Unix(), method, path, body)
	if err != nil {
		return nil, err
	}
	return req.SetHeaders(headers), nil
}

func (v *Venue) Name() string { return v.cfg.Name }

// Subscribe 注册订单更新处理器；Connect 时若配置了 WSURL 则启动推送流
func (v *Venue) Subscribe(handler ports.OrderUpdateHandler) {
	v.mu.Lock()
	v.handler = handler
	v.mu.Unlock()
}

// Connect 探活并启动用户订单流
func (v *Venue) Connect(ctx context.Context) error {
	if err := v.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "polymarket: rate limiter")
	}
	resp, err := v.client.R().SetContext(ctx).Get("/")
	if err != nil {
		return errors.Wrap(err, "polymarket: health check")
	}
	if !resp.IsSuccess() {
		return errors.Errorf("polymarket: health check http %d", resp.StatusCode())
	}

	if v.signer != nil {
		v.mu.Lock()
		need := v.creds.Secret == ""
		v.mu.Unlock()
		if need {
			creds, err := v.deriveAPICreds(ctx)
			if err != nil {
				return err
			}
			v.mu.Lock()
			v.creds = creds
			v.mu.Unlock()
			venueLog.Infof("已派生 API 凭证: address=%s", v.signer.address.Hex())
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cfg.WSURL != "" && v.handler != nil && v.stream == nil {
		v.stream = newUserStream(v.cfg.WSURL, v.creds, v.cfg.Name, v.handler)
		go v.stream.Run(ctx)
	}
	venueLog.Infof("已连接: base_url=%s signed=%v stream=%v", v.cfg.BaseURL, v.signer != nil, v.stream != nil)
	return nil
}

type orderPayload struct {
	ClientOrderID string  `json:"client_order_id"`
	Market        string  `json:"market"`
	Outcome       string  `json:"outcome,omitempty"`
	Side          string  `json:"side"`
	OrderType     string  `json:"order_type"`
	Size          float64 `json:"size"`
	Price         float64 `json:"price,omitempty"`

	Order *exchangeOrder `json:"order,omitempty"`
	Owner string         `json:"owner,omitempty"`
}

type orderResponse struct {
	Success  bool   `json:"success"`
	OrderID  string `json:"orderID"`
	ErrorMsg string `json:"errorMsg"`
}

type orderStatusResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"`
	Price        string `json:"price"`
}

func (v *Venue) SendOrder(ctx context.Context, order *domain.Order) (string, error) {
	if order == nil {
		return "", errors.New("polymarket: nil order")
	}
	if err := v.limiter.Wait(ctx); err != nil {
		return "", errors.Wrap(err, "polymarket: rate limiter")
	}
	payload := orderPayload{
		ClientOrderID: order.OrderID,
		Market:        order.Instrument.Symbol,
		Outcome:       order.Outcome,
		Side:          strings.ToUpper(string(order.Side)),
		OrderType:     "FOK",
		Size:          order.Quantity,
	}
	if order.Type == domain.OrderTypeLimit {
		payload.OrderType = "GTC"
		payload.Price = order.Price
	}
	if v.signer != nil {
		if tokenID, ok := v.cfg.TokenIDs[TokenKey(order.Instrument.Symbol, order.Outcome)]; ok {
			eo, err := v.buildExchangeOrder(order, tokenID)
			if err != nil {
				return "", err
			}
			v.mu.Lock()
			payload.Owner = v.creds.Key
			v.mu.Unlock()
			payload.Order = eo
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, "polymarket: encode order")
	}
	req, err := v.signed(v.client.R(), resty.MethodPost, "/order", string(body))
	if err != nil {
		return "", err
	}
	var out orderResponse
	resp, err := req.
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&out).
		Post("/order")
	if err != nil {
		return "", errors.Wrapf(err, "polymarket: send order %s", order.OrderID)
	}
	if !resp.IsSuccess() {
		return "", errors.Errorf("polymarket: send order %s: http %d: %s", order.OrderID, resp.StatusCode(), resp.String())
	}
	if !out.Success || out.OrderID == "" {
		msg := out.ErrorMsg
		if msg == "" {
			msg = "empty order id"
		}
		return "", errors.Errorf("polymarket: order %s rejected: %s", order.OrderID, msg)
	}
	return out.OrderID, nil
}

func (v *Venue) GetOrderStatus(ctx context.Context, venueOrderID string) (domain.OrderUpdate, error) {
	if err := v.limiter.Wait(ctx); err != nil {
		return domain.OrderUpdate{}, errors.Wrap(err, "polymarket: rate limiter")
	}
	path := "/data/order/" + venueOrderID
	req, err := v.signed(v.client.R(), resty.MethodGet, path, "")
	if err != nil {
		return domain.OrderUpdate{}, err
	}
	var out orderStatusResponse
	resp, err := req.
		SetContext(ctx).
		SetResult(&out).
		Get(path)
	if err != nil {
		return domain.OrderUpdate{}, errors.Wrapf(err, "polymarket: get order %s", venueOrderID)
	}
	if !resp.IsSuccess() {
		return domain.OrderUpdate{}, errors.Errorf("polymarket: get order %s: http %d", venueOrderID, resp.StatusCode())
	}
	original, _ := strconv.ParseFloat(out.OriginalSize, 64)
	matched, _ := strconv.ParseFloat(out.SizeMatched, 64)
	price, _ := strconv.ParseFloat(out.Price, 64)
	return domain.OrderUpdate{
		GatewayName:    v.cfg.Name,
		GatewayOrderID: venueOrderID,
		Status:         MapStatus(out.Status, original, matched),
		FilledQty:      matched,
		FillPrice:      price,
		Timestamp:      v.now(),
	}, nil
}

// Close 停止推送流
func (v *Venue) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.stream != nil {
		v.stream.Close()
		v.stream = nil
	}
	return nil
}

// MapStatus 交易所状态 -> 订单状态
func MapStatus(status string, original, matched float64) domain.OrderStatus {
	switch strings.ToUpper(status) {
	case "MATCHED", "FILLED":
		return domain.OrderStatusFilled
	case "CANCELED", "CANCELLED":
		return domain.OrderStatusCancelled
	case "EXPIRED":
		return domain.OrderStatusExpired
	case "REJECTED", "FAILED":
		return domain.OrderStatusRejected
	case "LIVE", "DELAYED", "UNMATCHED", "OPEN":
		if original > 0 && matched >= original {
			return domain.OrderStatusFilled
		}
		if matched > 0 {
			return domain.OrderStatusPartiallyFilled
		}
		return domain.OrderStatusSubmitted
	}
	venueLog.Debugf("未知订单状态 %q，按 submitted 处理", status)
	return domain.OrderStatusSubmitted
}

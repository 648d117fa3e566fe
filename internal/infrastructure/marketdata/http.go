package marketdata

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/betbot/autoexec/internal/ports"
	"github.com/betbot/autoexec/pkg/cache"
)

var mdLog = logrus.WithField("component", "market_data")

// ErrMarketNotFound 市场不存在
var ErrMarketNotFound = stderrors.New("market not found")

// HTTPConfig gamma 风格行情接口配置
type HTTPConfig struct {
	BaseURL           string
	CacheTTL          time.Duration
	RequestsPerSecond float64
	Timeout           time.Duration
	// PriceProbabilities 为 true 时把结果价格（0..1）换算成概率（0..100）
	PriceProbabilities bool
	// Selected 每个市场外部筛选的结果
	Selected map[string][]string
}

// HTTPSource 通过 HTTP 拉取市场与订单簿，结果按 TTL 缓存
type HTTPSource struct {
	cfg     HTTPConfig
	client  *resty.Client
	limiter *rate.Limiter
	markets *cache.InMemoryCache[string, ports.MarketInfo]
	books   *cache.InMemoryCache[string, ports.OrderBook]
}

var _ ports.MarketDataSource = (*HTTPSource)(nil)

func NewHTTPSource(cfg HTTPConfig) (*HTTPSource, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("marketdata: base_url is required")
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	burst := int(cfg.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return &HTTPSource{
		cfg: cfg,
		client: resty.New().
			SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
			SetTimeout(cfg.Timeout).
			SetRetryCount(2).
			SetRetryWaitTime(500 * time.Millisecond).
			SetHeader("Accept", "application/json"),
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
		markets: cache.NewInMemoryCache[string, ports.MarketInfo](cfg.CacheTTL),
		books:   cache.NewInMemoryCache[string, ports.OrderBook](cfg.CacheTTL),
	}, nil
}

// Close 释放缓存清理 goroutine
func (s *HTTPSource) Close() {
	s.markets.Close()
	s.books.Close()
}

type marketResponse struct {
	ID            string          `json:"id"`
	Question      string          `json:"question"`
	Outcomes      json.RawMessage `json:"outcomes"`
	OutcomePrices json.RawMessage `json:"outcomePrices"`
}

type bookResponse struct {
	Bids []levelResponse `json:"bids"`
	Asks []levelResponse `json:"asks"`
}

type levelResponse struct {
	Price json.Number `json:"price"`
	Size  json.Number `json:"size"`
}

func (s *HTTPSource) get(ctx context.Context, path string, query map[string]string, out any) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "marketdata: rate limiter")
	}
	resp, err := s.client.R().SetContext(ctx).SetQueryParams(query).SetResult(out).Get(path)
	if err != nil {
		return errors.Wrapf(err, "marketdata: GET %s", path)
	}
	if resp.StatusCode() == 404 {
		return errors.Wrapf(ErrMarketNotFound, "marketdata: GET %s", path)
	}
	if !resp.IsSuccess() {
		return errors.Errorf("marketdata: GET %s: http %d", path, resp.StatusCode())
	}
	return nil
}

func (s *HTTPSource) GetMarket(ctx context.Context, marketID string) (ports.MarketInfo, error) {
	return s.markets.GetOrLoad(marketID, func() (ports.MarketInfo, error) {
		var mr marketResponse
		if err := s.get(ctx, "/markets/"+marketID, nil, &mr); err != nil {
			return ports.MarketInfo{}, err
		}
		info := ports.MarketInfo{MarketID: marketID, Question: mr.Question}
		info.Outcomes = decodeStringList(mr.Outcomes)
		if s.cfg.PriceProbabilities {
			prices := decodeStringList(mr.OutcomePrices)
			if len(prices) == len(info.Outcomes) && len(prices) > 0 {
				info.Probabilities = make(map[string]float64, len(prices))
				for i, p := range prices {
					if v, err := strconv.ParseFloat(p, 64); err == nil {
						info.Probabilities[info.Outcomes[i]] = v * 100
					}
				}
			}
		}
		return info, nil
	})
}

func (s *HTTPSource) SelectedOutcomes(_ context.Context, marketID string) ([]string, error) {
	return append([]string(nil), s.cfg.Selected[marketID]...), nil
}

func (s *HTTPSource) GetOrderBook(ctx context.Context, marketID, outcome string) (ports.OrderBook, error) {
	return s.books.GetOrLoad(marketID+"|"+outcome, func() (ports.OrderBook, error) {
		var br bookResponse
		q := map[string]string{"market": marketID}
		if outcome != "" {
			q["outcome"] = outcome
		}
		if err := s.get(ctx, "/book", q, &br); err != nil {
			return ports.OrderBook{}, err
		}
		book := ports.OrderBook{MarketID: marketID, Outcome: outcome, Bids: toLevels(br.Bids), Asks: toLevels(br.Asks)}
		// 最优档位在前
		sort.SliceStable(book.Bids, func(i, j int) bool { return book.Bids[i].Price > book.Bids[j].Price })
		sort.SliceStable(book.Asks, func(i, j int) bool { return book.Asks[i].Price < book.Asks[j].Price })
		return book, nil
	})
}

func (s *HTTPSource) MarketsForEvent(ctx context.Context, eventName string, candidates []string) ([]string, error) {
	return matchMarkets(ctx, eventName, candidates, func(ctx context.Context, id string) string {
		info, err := s.GetMarket(ctx, id)
		if err != nil {
			mdLog.Debugf("事件匹配时获取市场失败: market=%s err=%v", id, err)
			return ""
		}
		return info.Question
	}), nil
}

func toLevels(in []levelResponse) []ports.BookLevel {
	out := make([]ports.BookLevel, 0, len(in))
	for _, l := range in {
		p, err1 := l.Price.Float64()
		sz, err2 := l.Size.Float64()
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, ports.BookLevel{Price: p, Size: sz})
	}
	return out
}

// decodeStringList 兼容 ["a","b"] 与 "[\"a\",\"b\"]" 两种编码
func decodeStringList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil
	}
	if err := json.Unmarshal([]byte(encoded), &list); err != nil {
		return nil
	}
	return list
}

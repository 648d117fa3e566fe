package marketdata

import (
	"context"
	"fmt"
	"sync"

	"github.com/betbot/autoexec/internal/ports"
)

// StaticMarket 配置给出的市场
type StaticMarket struct {
	MarketID         string                     `yaml:"market_id" json:"market_id"`
	Question         string                     `yaml:"question" json:"question"`
	Outcomes         []string                   `yaml:"outcomes" json:"outcomes"`
	SelectedOutcomes []string                   `yaml:"selected_outcomes" json:"selected_outcomes,omitempty"`
	Probabilities    map[string]float64         `yaml:"probabilities" json:"probabilities,omitempty"`
	Books            map[string]ports.OrderBook `yaml:"books" json:"books,omitempty"` // outcome -> book
}

// StaticSource 内存市场数据，dry-run 与测试使用
type StaticSource struct {
	mu      sync.RWMutex
	markets map[string]StaticMarket
}

var _ ports.MarketDataSource = (*StaticSource)(nil)

func NewStaticSource(markets []StaticMarket) *StaticSource {
	s := &StaticSource{markets: make(map[string]StaticMarket, len(markets))}
	for _, m := range markets {
		s.SetMarket(m)
	}
	return s
}

// SetMarket 新增或替换市场
func (s *StaticSource) SetMarket(m StaticMarket) {
	s.mu.Lock()
	s.markets[m.MarketID] = m
	s.mu.Unlock()
}

func (s *StaticSource) market(id string) (StaticMarket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.markets[id]
	if !ok {
		return StaticMarket{}, fmt.Errorf("%w: %s", ErrMarketNotFound, id)
	}
	return m, nil
}

func (s *StaticSource) GetMarket(_ context.Context, marketID string) (ports.MarketInfo, error) {
	m, err := s.market(marketID)
	if err != nil {
		return ports.MarketInfo{}, err
	}
	return ports.MarketInfo{
		MarketID:      m.MarketID,
		Question:      m.Question,
		Outcomes:      append([]string(nil), m.Outcomes...),
		Probabilities: copyProbs(m.Probabilities),
	}, nil
}

func (s *StaticSource) SelectedOutcomes(_ context.Context, marketID string) ([]string, error) {
	m, err := s.market(marketID)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), m.SelectedOutcomes...), nil
}

func (s *StaticSource) GetOrderBook(_ context.Context, marketID, outcome string) (ports.OrderBook, error) {
	m, err := s.market(marketID)
	if err != nil {
		return ports.OrderBook{}, err
	}
	b, ok := m.Books[outcome]
	if !ok {
		return ports.OrderBook{}, fmt.Errorf("no order book for %s/%s", marketID, outcome)
	}
	b.MarketID, b.Outcome = marketID, outcome
	return b, nil
}

func (s *StaticSource) MarketsForEvent(ctx context.Context, eventName string, candidates []string) ([]string, error) {
	return matchMarkets(ctx, eventName, candidates, func(_ context.Context, id string) string {
		m, err := s.market(id)
		if err != nil {
			return ""
		}
		return m.Question
	}), nil
}

func copyProbs(in map[string]float64) map[string]float64 {
	if in == nil {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

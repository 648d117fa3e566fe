package strategy

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/betbot/autoexec/internal/domain"
	"github.com/betbot/autoexec/internal/ports"
	"github.com/betbot/autoexec/pkg/marketmath"
)

var stratLog = logrus.WithField("component", "market_strategy")

// SignalConfig 订单簿信号与下单规模
type SignalConfig struct {
	MinPriceDifference float64 `yaml:"min_price_difference" json:"min_price_difference"`
	MaxOrderSize       float64 `yaml:"max_order_size" json:"max_order_size"`
	MaxPositionSize    float64 `yaml:"max_position_size" json:"max_position_size"`
}

func DefaultSignalConfig() SignalConfig {
	return SignalConfig{MinPriceDifference: 0.01, MaxOrderSize: 100, MaxPositionSize: 1000}
}

func (c SignalConfig) Validate() error {
	if c.MinPriceDifference < 0 {
		return fmt.Errorf("min_price_difference must be >= 0")
	}
	if c.MaxOrderSize < 0 || c.MaxPositionSize < 0 {
		return fmt.Errorf("max_order_size and max_position_size must be >= 0")
	}
	return nil
}

// Recommendation 单个 (market, outcome) 的交易建议
type Recommendation struct {
	MarketID   string                 `json:"market_id"`
	Outcome    string                 `json:"outcome,omitempty"`
	Signal     domain.Signal          `json:"signal"`
	Confidence domain.ConfidenceLevel `json:"confidence"`
	Size       float64                `json:"size"`
	Price      float64                `json:"price,omitempty"`
	BestBid    float64                `json:"best_bid"`
	BestAsk    float64                `json:"best_ask"`
	Reason     string                 `json:"reason,omitempty"`
	// Probabilities 市场概率（若有），随订单一起送入执行引擎
	Probabilities map[string]float64 `json:"probabilities,omitempty"`
}

// Actionable 非 HOLD 且数量为正
func (r Recommendation) Actionable() bool {
	return r.Signal != domain.SignalHold && r.Size > 0
}

// Side 买入类信号买入；套利信号在最优买价高于最优卖价时买入，否则卖出。
func (r Recommendation) Side() domain.OrderSide {
	switch {
	case r.Signal.IsBuy():
		return domain.OrderSideBuy
	case r.Signal == domain.SignalArbitrage && r.BestBid > r.BestAsk:
		return domain.OrderSideBuy
	}
	return domain.OrderSideSell
}

// PositionProvider 查询某个市场的当前持仓
type PositionProvider interface {
	Position(marketID string) (domain.Position, bool)
}

// StopLossChecker 止损判定（由风控实现）
type StopLossChecker interface {
	ShouldStopLoss(pos domain.Position, markPrice float64) bool
}

// MarketSignal 基于订单簿和外部概率生成交易建议
type MarketSignal struct {
	cfg       SignalConfig
	data      ports.MarketDataSource
	prob      *ProbabilityStrategy
	positions PositionProvider
	stopLoss  StopLossChecker
}

type MarketSignalOption func(*MarketSignal)

func WithPositions(p PositionProvider) MarketSignalOption {
	return func(s *MarketSignal) { s.positions = p }
}

func WithStopLoss(c StopLossChecker) MarketSignalOption {
	return func(s *MarketSignal) { s.stopLoss = c }
}

func NewMarketSignal(cfg SignalConfig, data ports.MarketDataSource, prob *ProbabilityStrategy, opts ...MarketSignalOption) (*MarketSignal, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("market data source is required")
	}
	s := &MarketSignal{cfg: cfg, data: data, prob: prob}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Outcomes 需要评估的结果：优先外部筛选结果，否则为市场全部结果。
func (s *MarketSignal) Outcomes(ctx context.Context, marketID string) ([]string, error) {
	selected, err := s.data.SelectedOutcomes(ctx, marketID)
	if err != nil {
		return nil, err
	}
	if len(selected) > 0 {
		return selected, nil
	}
	info, err := s.data.GetMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}
	return info.Outcomes, nil
}

// AllOutcomes 市场全部结果（M 选 N 使用）
func (s *MarketSignal) AllOutcomes(ctx context.Context, marketID string) ([]string, error) {
	info, err := s.data.GetMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}
	return info.Outcomes, nil
}

// Recommend 为单个 (market, outcome) 生成建议；数据源失败时返回 HOLD/LOW 并带原因。
func (s *MarketSignal) Recommend(ctx context.Context, marketID, outcome string) Recommendation {
	rec := Recommendation{
		MarketID:   marketID,
		Outcome:    outcome,
		Signal:     domain.SignalHold,
		Confidence: domain.ConfidenceLow,
	}
	info, err := s.data.GetMarket(ctx, marketID)
	if err != nil {
		rec.Reason = fmt.Sprintf("市场分析失败: %v", err)
		return rec
	}
	book, err := s.data.GetOrderBook(ctx, marketID, outcome)
	if err != nil {
		rec.Reason = fmt.Sprintf("获取订单簿失败: %v", err)
		return rec
	}
	ba := AnalyzeOrderBook(book)
	rec.BestBid, rec.BestAsk = ba.BestBid, ba.BestAsk
	if len(info.Probabilities) > 0 {
		rec.Probabilities = info.Probabilities
	}

	pos, hasPos := s.position(marketID)
	if hasPos && pos.Size > 0 && s.stopLoss != nil && ba.BestBid > 0 && s.stopLoss.ShouldStopLoss(pos, ba.BestBid) {
		rec.Signal = domain.SignalSell
		rec.Confidence = domain.ConfidenceHigh
		rec.Size = pos.Size
		rec.Price = ba.BestBid
		rec.Reason = "触发止损"
		return rec
	}

	switch {
	case len(info.Probabilities) > 0 && s.prob != nil:
		pa := s.prob.Analyze(info.Probabilities)
		rec.Signal, rec.Confidence = pa.Signal, pa.Level
		rec.Reason = pa.Message
	case ba.Liquidity == domain.ConfidenceLow:
		rec.Reason = "市场流动性不足"
		return rec
	case ba.Spread > s.cfg.MinPriceDifference:
		rec.Signal, rec.Confidence = domain.SignalArbitrage, domain.ConfidenceHigh
		rec.Reason = fmt.Sprintf("价差过大: %.4f", ba.Spread)
	default:
		rec.Confidence = domain.ConfidenceMedium
		rec.Reason = "价差在合理范围内"
		return rec
	}
	if rec.Signal == domain.SignalHold {
		return rec
	}

	if rec.Side() == domain.OrderSideBuy {
		rec.Price = ba.BestAsk
	} else {
		rec.Price = ba.BestBid
	}
	rec.Size = s.OrderSize(pos.Size, hasPos)
	if p, ok := info.Probabilities[outcome]; ok && rec.Signal.IsBuy() && rec.Price > 0 {
		f := marketmath.KellyFraction(p/100, marketmath.BinaryPayoutRatio(rec.Price))
		rec.Size = math.Min(rec.Size, math.Round(rec.Size*f*100)/100)
	}
	stratLog.Debugf("建议: market=%s outcome=%s signal=%s confidence=%s size=%.2f",
		marketID, outcome, rec.Signal, rec.Confidence, rec.Size)
	return rec
}

// RecommendAll 对给定结果逐个生成建议；outcomes 为空时按单结果市场处理。
func (s *MarketSignal) RecommendAll(ctx context.Context, marketID string, outcomes []string) []Recommendation {
	if len(outcomes) == 0 {
		return []Recommendation{s.Recommend(ctx, marketID, "")}
	}
	out := make([]Recommendation, 0, len(outcomes))
	for _, o := range outcomes {
		out = append(out, s.Recommend(ctx, marketID, o))
	}
	return out
}

// OrderSize min(max_order_size, max_position_size - 当前持仓)，剩余空间 <= 0 时为 0
func (s *MarketSignal) OrderSize(current float64, hasPosition bool) float64 {
	if !hasPosition {
		return math.Min(s.cfg.MaxOrderSize, s.cfg.MaxPositionSize)
	}
	remaining := s.cfg.MaxPositionSize - current
	if remaining <= 0 {
		return 0
	}
	return math.Min(remaining, s.cfg.MaxOrderSize)
}

func (s *MarketSignal) position(marketID string) (domain.Position, bool) {
	if s.positions == nil {
		return domain.Position{}, false
	}
	return s.positions.Position(marketID)
}

// AccountPositions 从账户存储读取持仓
type AccountPositions struct {
	Store     ports.AccountStore
	AccountID string
}

func (a AccountPositions) Position(marketID string) (domain.Position, bool) {
	acc, err := a.Store.GetAccount(a.AccountID)
	if err != nil || acc == nil {
		return domain.Position{}, false
	}
	p, ok := acc.Positions[marketID]
	return p, ok
}

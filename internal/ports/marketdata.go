package ports

import (
	"context"
)

// BookLevel 订单簿档位
type BookLevel struct {
	Price float64 `json:"price" yaml:"price"`
	Size  float64 `json:"size" yaml:"size"`
}

// OrderBook 单个结果的订单簿快照
type OrderBook struct {
	MarketID string      `json:"market_id"`
	Outcome  string      `json:"outcome"`
	Bids     []BookLevel `json:"bids"`
	Asks     []BookLevel `json:"asks"`
}

// MarketInfo 市场元数据
type MarketInfo struct {
	MarketID string   `json:"market_id"`
	Question string   `json:"question"`
	Outcomes []string `json:"outcomes"`
	// Probabilities 外部给出的结果概率（0..100），键为结果标签
	Probabilities map[string]float64 `json:"probabilities,omitempty"`
}

// MarketDataSource 市场与结果数据来源
type MarketDataSource interface {
	GetMarket(ctx context.Context, marketID string) (MarketInfo, error)
	// SelectedOutcomes 外部筛选后需要评估的结果；为空表示评估整个市场
	SelectedOutcomes(ctx context.Context, marketID string) ([]string, error)
	GetOrderBook(ctx context.Context, marketID, outcome string) (OrderBook, error)
	// MarketsForEvent 与事件相关的市场
	MarketsForEvent(ctx context.Context, eventName string, candidates []string) ([]string, error)
}

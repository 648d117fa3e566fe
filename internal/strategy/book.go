package strategy

import (
	"github.com/betbot/autoexec/internal/domain"
	"github.com/betbot/autoexec/internal/ports"
)

// BookAnalysis 订单簿分析结果
type BookAnalysis struct {
	BestBid       float64                `json:"best_bid"`
	BestAsk       float64                `json:"best_ask"`
	Spread        float64                `json:"spread"`
	SpreadPercent float64                `json:"spread_percent"`
	BidDepth      float64                `json:"bid_depth"`
	AskDepth      float64                `json:"ask_depth"`
	TotalDepth    float64                `json:"total_depth"`
	BidCount      int                    `json:"bid_count"`
	AskCount      int                    `json:"ask_count"`
	Liquidity     domain.ConfidenceLevel `json:"liquidity"`
}

// AnalyzeOrderBook 第一档为最优价；价差百分比相对最优买价，深度为全部档位之和。
func AnalyzeOrderBook(book ports.OrderBook) BookAnalysis {
	a := BookAnalysis{BidCount: len(book.Bids), AskCount: len(book.Asks)}
	if len(book.Bids) > 0 && len(book.Asks) > 0 {
		a.BestBid = book.Bids[0].Price
		a.BestAsk = book.Asks[0].Price
		a.Spread = a.BestAsk - a.BestBid
		if a.BestBid > 0 {
			a.SpreadPercent = a.Spread / a.BestBid * 100
		}
	}
	for _, l := range book.Bids {
		a.BidDepth += l.Size
	}
	for _, l := range book.Asks {
		a.AskDepth += l.Size
	}
	a.TotalDepth = a.BidDepth + a.AskDepth

	switch {
	case a.SpreadPercent < 0.1 && a.TotalDepth > 1000:
		a.Liquidity = domain.ConfidenceHigh
	case a.SpreadPercent < 0.5 && a.TotalDepth > 500:
		a.Liquidity = domain.ConfidenceMedium
	default:
		a.Liquidity = domain.ConfidenceLow
	}
	return a
}

package marketdata

import (
	"context"
	"time"

	"github.com/betbot/autoexec/internal/domain"
	"github.com/betbot/autoexec/internal/ports"
)

// QuoteReference 以订单簿可成交价作为风控参考价：买单对最优卖价，卖单对最优买价
type QuoteReference struct {
	src     ports.MarketDataSource
	timeout time.Duration
}

func NewQuoteReference(src ports.MarketDataSource, timeout time.Duration) *QuoteReference {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &QuoteReference{src: src, timeout: timeout}
}

func (q *QuoteReference) ReferencePrice(order *domain.Order) (float64, bool) {
	if order == nil || order.Outcome == "" {
		return 0, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	book, err := q.src.GetOrderBook(ctx, order.Instrument.Symbol, order.Outcome)
	if err != nil {
		mdLog.Debugf("参考价不可用: market=%s outcome=%s err=%v", order.Instrument.Symbol, order.Outcome, err)
		return 0, false
	}
	levels := book.Asks
	if order.Side == domain.OrderSideSell {
		levels = book.Bids
	}
	if len(levels) == 0 || levels[0].Price <= 0 {
		return 0, false
	}
	return levels[0].Price, true
}

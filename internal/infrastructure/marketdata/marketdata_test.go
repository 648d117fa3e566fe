package marketdata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/autoexec/internal/domain"
	"github.com/betbot/autoexec/internal/ports"
)

func staticFixture() *StaticSource {
	return NewStaticSource([]StaticMarket{
		{
			MarketID: "fed-march",
			Question: "Will the Fed cut rates in March?",
			Outcomes: []string{"no_change", "25bps_decrease"},
			Probabilities: map[string]float64{
				"no_change": 60, "25bps_decrease": 38,
			},
			Books: map[string]ports.OrderBook{
				"no_change": {Bids: []ports.BookLevel{{Price: 0.59, Size: 800}}, Asks: []ports.BookLevel{{Price: 0.6, Size: 700}}},
			},
		},
		{MarketID: "inflation-above-3", Question: "Will CPI print above 3%?", Outcomes: []string{"yes", "no"}, SelectedOutcomes: []string{"yes"}},
		{MarketID: "election-2026", Question: "Who wins the election?", Outcomes: []string{"a", "b"}},
	})
}

func TestStaticSource(t *testing.T) {
	s := staticFixture()
	ctx := context.Background()

	info, err := s.GetMarket(ctx, "fed-march")
	require.NoError(t, err)
	assert.Len(t, info.Outcomes, 2)
	assert.Equal(t, 60.0, info.Probabilities["no_change"])

	sel, err := s.SelectedOutcomes(ctx, "inflation-above-3")
	require.NoError(t, err)
	assert.Equal(t, []string{"yes"}, sel)

	book, err := s.GetOrderBook(ctx, "fed-march", "no_change")
	require.NoError(t, err)
	assert.Equal(t, "fed-march", book.MarketID)
	assert.Equal(t, 0.59, book.Bids[0].Price)

	_, err = s.GetOrderBook(ctx, "fed-march", "25bps_decrease")
	assert.Error(t, err)
	_, err = s.GetMarket(ctx, "missing")
	assert.True(t, errors.Is(err, ErrMarketNotFound))
}

func TestMarketsForEvent(t *testing.T) {
	s := staticFixture()
	ctx := context.Background()
	candidates := []string{"fed-march", "inflation-above-3", "election-2026"}

	got, err := s.MarketsForEvent(ctx, "cpi", candidates)
	require.NoError(t, err)
	assert.Equal(t, []string{"inflation-above-3"}, got)

	got, err = s.MarketsForEvent(ctx, "fomc_meeting", candidates)
	require.NoError(t, err)
	assert.Equal(t, []string{"fed-march"}, got)

	got, err = s.MarketsForEvent(ctx, "retail_sales", candidates)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHTTPSource(t *testing.T) {
	var marketHits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/markets/fed-march", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&marketHits, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"fed-march","question":"Fed decision in March?",` +
			`"outcomes":"[\"Yes\",\"No\"]","outcomePrices":"[\"0.62\",\"0.38\"]"}`))
	})
	mux.HandleFunc("/book", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "fed-march", r.URL.Query().Get("market"))
		assert.Equal(t, "Yes", r.URL.Query().Get("outcome"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"bids":[{"price":"0.60","size":"100"},{"price":"0.61","size":"50"}],` +
			`"asks":[{"price":"0.64","size":"30"},{"price":"0.63","size":"80"}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s, err := NewHTTPSource(HTTPConfig{BaseURL: srv.URL, PriceProbabilities: true, RequestsPerSecond: 100})
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	info, err := s.GetMarket(ctx, "fed-march")
	require.NoError(t, err)
	assert.Equal(t, []string{"Yes", "No"}, info.Outcomes)
	assert.InDelta(t, 62, info.Probabilities["Yes"], 1e-9)
	_, err = s.GetMarket(ctx, "fed-march")
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&marketHits))

	book, err := s.GetOrderBook(ctx, "fed-march", "Yes")
	require.NoError(t, err)
	assert.Equal(t, 0.61, book.Bids[0].Price)
	assert.Equal(t, 0.63, book.Asks[0].Price)

	_, err = s.GetMarket(ctx, "missing")
	assert.True(t, errors.Is(err, ErrMarketNotFound))

	got, err := s.MarketsForEvent(ctx, "fomc_meeting", []string{"fed-march", "missing"})
	require.NoError(t, err)
	assert.Equal(t, []string{"fed-march"}, got)
}

func TestDecodeStringList(t *testing.T) {
	assert.Equal(t, []string{"a"}, decodeStringList([]byte(`["a"]`)))
	assert.Equal(t, []string{"a", "b"}, decodeStringList([]byte(`"[\"a\",\"b\"]"`)))
	assert.Nil(t, decodeStringList(nil))
	assert.Nil(t, decodeStringList([]byte(`12`)))
}

func TestQuoteReference(t *testing.T) {
	ref := NewQuoteReference(staticFixture(), 0)
	order := func(side domain.OrderSide, outcome string) *domain.Order {
		return &domain.Order{Instrument: domain.Instrument{Symbol: "fed-march"}, Side: side, Outcome: outcome}
	}

	p, ok := ref.ReferencePrice(order(domain.OrderSideBuy, "no_change"))
	require.True(t, ok)
	assert.InDelta(t, 0.6, p, 1e-9)

	p, ok = ref.ReferencePrice(order(domain.OrderSideSell, "no_change"))
	require.True(t, ok)
	assert.InDelta(t, 0.59, p, 1e-9)

	_, ok = ref.ReferencePrice(order(domain.OrderSideBuy, "25bps_decrease"))
	assert.False(t, ok)
	_, ok = ref.ReferencePrice(order(domain.OrderSideBuy, ""))
	assert.False(t, ok)
	_, ok = ref.ReferencePrice(&domain.Order{Instrument: domain.Instrument{Symbol: "missing"}, Outcome: "yes"})
	assert.False(t, ok)
}

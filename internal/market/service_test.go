package market_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"retireplan/internal/calc"
	"retireplan/internal/core"
	"retireplan/internal/market"
	mockmarket "retireplan/internal/market/mock"
	"retireplan/internal/metrics"
	"retireplan/internal/sheets/memory"
	"retireplan/internal/tables"
)

type fixture struct {
	rates   *mockmarket.MockRateSource
	quotes  *mockmarket.MockQuoteSource
	store   *memory.Store
	metrics *metrics.Metrics
	svc     *market.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := fixture{
		rates:   mockmarket.NewMockRateSource(ctrl),
		quotes:  mockmarket.NewMockQuoteSource(ctrl),
		store:   memory.New(),
		metrics: metrics.New(),
	}
	f.svc = market.NewService(f.rates, f.quotes, f.store, tables.MustLoad(), market.Options{
		Timeout:  time.Second,
		CacheTTL: time.Hour,
		Metrics:  f.metrics,
	})
	return f
}

func TestService_RateLiveThenCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.rates.EXPECT().Rates(gomock.Any(), "ILS").
		Return(map[string]float64{"ILS": 1, "USD": 0.25, "EUR": 0.2}, nil).
		Times(1)

	r := f.svc.Rate(ctx, "usd")
	assert.Equal(t, "USD", r.Currency)
	assert.InDelta(t, 4.0, r.Value, 1e-9)
	assert.Equal(t, calc.SourceLive, r.Source)

	r = f.svc.Rate(ctx, "USD")
	assert.Equal(t, calc.SourceCache, r.Source)

	// One fetch fills the cache for every currency.
	r = f.svc.Rate(ctx, "EUR")
	assert.Equal(t, calc.SourceCache, r.Source)
	assert.InDelta(t, 5.0, r.Value, 1e-9)

	snap, err := f.store.LatestSnapshot(ctx, core.SnapshotRate, "USD")
	require.NoError(t, err)
	assert.InDelta(t, 4.0, snap.Value, 1e-9)
}

func TestService_RateBaseCurrency(t *testing.T) {
	f := newFixture(t)

	r := f.svc.Rate(context.Background(), "ILS")
	assert.Equal(t, 1.0, r.Value)
}

func TestService_RateFallbackChain(t *testing.T) {
	ctx := context.Background()

	t.Run("snapshot", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.store.SaveSnapshot(ctx, core.MarketSnapshot{
			Kind: core.SnapshotRate, Key: "USD", Value: 3.6, Currency: "ILS",
		}))
		f.rates.EXPECT().Rates(gomock.Any(), "ILS").Return(nil, market.ErrRateLimited)

		r := f.svc.Rate(ctx, "USD")
		assert.Equal(t, calc.SourceSnapshot, r.Source)
		assert.Equal(t, 3.6, r.Value)
		count, err := testutil.GatherAndCount(f.metrics.Registry(), "retireplan_market_fallbacks_total")
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("static table", func(t *testing.T) {
		f := newFixture(t)
		f.rates.EXPECT().Rates(gomock.Any(), "ILS").Return(nil, market.ErrUnavailable).Times(2)

		r := f.svc.Rate(ctx, "USD")
		assert.Equal(t, calc.SourceFallback, r.Source)
		assert.Equal(t, 3.70, r.Value)

		r = f.svc.Rate(ctx, "XYZ")
		assert.Equal(t, calc.SourceFallback, r.Source)
		assert.Equal(t, 1.0, r.Value)
	})

	t.Run("currency missing from live response", func(t *testing.T) {
		f := newFixture(t)
		f.rates.EXPECT().Rates(gomock.Any(), "ILS").Return(map[string]float64{"USD": 0.25}, nil)

		r := f.svc.Rate(ctx, "GBP")
		assert.Equal(t, calc.SourceFallback, r.Source)
		assert.Equal(t, 4.70, r.Value)
	})

	t.Run("no sources configured", func(t *testing.T) {
		svc := market.NewService(nil, nil, nil, tables.MustLoad(), market.Options{})
		assert.Equal(t, 4.00, svc.Rate(ctx, "EUR").Value)
		assert.Equal(t, 190.0, svc.Quote(ctx, "AAPL").Price)
	})
}

func TestService_FX(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.rates.EXPECT().Rates(gomock.Any(), "ILS").
		Return(map[string]float64{"USD": 0.25, "EUR": 0.2}, nil)

	fx, source := f.svc.FX(ctx, "USD", "EUR")
	assert.InDelta(t, 0.8, fx, 1e-9)
	assert.Equal(t, calc.SourceCache, source)

	fx, source = f.svc.FX(ctx, "usd", "USD")
	assert.Equal(t, 1.0, fx)
	assert.Equal(t, calc.SourceNone, source)

	assert.InDelta(t, 400.0, f.svc.Convert(ctx, 100, "USD", "ILS"), 1e-9)
}

func TestService_Quote(t *testing.T) {
	ctx := context.Background()

	t.Run("live then cache", func(t *testing.T) {
		f := newFixture(t)
		f.quotes.EXPECT().Quote(gomock.Any(), "MSFT").
			Return(market.Quote{Symbol: "MSFT", Price: 410.5, Currency: "usd"}, nil).
			Times(1)

		p := f.svc.Quote(ctx, "msft")
		assert.Equal(t, calc.SourceLive, p.Source)
		assert.Equal(t, "USD", p.Currency)
		assert.Equal(t, 410.5, p.Price)
		assert.Equal(t, calc.SourceCache, f.svc.Quote(ctx, "MSFT").Source)
	})

	t.Run("invalid live price falls back", func(t *testing.T) {
		f := newFixture(t)
		f.quotes.EXPECT().Quote(gomock.Any(), "AAPL").Return(market.Quote{Symbol: "AAPL", Price: 0}, nil)

		p := f.svc.Quote(ctx, "AAPL")
		assert.Equal(t, calc.SourceFallback, p.Source)
		assert.Equal(t, 190.0, p.Price)
	})

	t.Run("unknown symbol prices at zero", func(t *testing.T) {
		f := newFixture(t)
		f.quotes.EXPECT().Quote(gomock.Any(), "NOPE").Return(market.Quote{}, market.ErrUnavailable)

		p := f.svc.Quote(ctx, "NOPE")
		assert.Equal(t, calc.SourceFallback, p.Source)
		assert.Zero(t, p.Price)
	})
}

func TestService_QuoteCoalescesConcurrentFetches(t *testing.T) {
	f := newFixture(t)
	started := make(chan struct{})
	release := make(chan struct{})
	f.quotes.EXPECT().Quote(gomock.Any(), "AAPL").
		DoAndReturn(func(context.Context, string) (market.Quote, error) {
			close(started)
			<-release
			return market.Quote{Symbol: "AAPL", Price: 201.25, Currency: "USD"}, nil
		}).
		Times(1)

	const callers = 16
	prices := make([]market.Price, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			prices[i] = f.svc.Quote(context.Background(), "AAPL")
		}()
	}

	<-started
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, p := range prices {
		assert.Equal(t, 201.25, p.Price, "caller %d", i)
		assert.Equal(t, "USD", p.Currency, "caller %d", i)
	}
}

func TestService_QuotesKeepOrder(t *testing.T) {
	f := newFixture(t)
	prices := map[string]float64{"AAPL": 200, "MSFT": 400, "NVDA": 130, "META": 550, "WIX": 160}
	f.quotes.EXPECT().Quote(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, symbol string) (market.Quote, error) {
			return market.Quote{Symbol: symbol, Price: prices[symbol], Currency: "USD"}, nil
		}).
		Times(len(prices))

	symbols := []string{"WIX", "AAPL", "META", "MSFT", "NVDA"}
	got := f.svc.Quotes(context.Background(), symbols)
	require.Len(t, got, len(symbols))
	for i, sym := range symbols {
		assert.Equal(t, sym, got[i].Symbol)
		assert.Equal(t, prices[sym], got[i].Price)
	}
}

func TestService_MarketInputs(t *testing.T) {
	ctx := context.Background()

	t.Run("no RSU", func(t *testing.T) {
		f := newFixture(t)
		m := f.svc.MarketInputs(ctx, core.DefaultInputs())
		assert.Equal(t, calc.SourceNone, m.PriceSource)
		assert.Equal(t, 1.0, m.FXRate)
	})

	t.Run("manual price", func(t *testing.T) {
		f := newFixture(t)
		f.rates.EXPECT().Rates(gomock.Any(), "ILS").Return(map[string]float64{"USD": 0.25}, nil)

		in := core.DefaultInputs()
		in.RSUUnits = 100
		in.RSUSymbol = "AAPL"
		in.RSUPrice = 150
		in.RSUCurrency = "USD"
		m := f.svc.MarketInputs(ctx, in)
		assert.Equal(t, calc.SourceManual, m.PriceSource)
		assert.Equal(t, 150.0, m.RSUPrice)
		assert.InDelta(t, 4.0, m.FXRate, 1e-9)
		assert.Equal(t, calc.SourceLive, m.RateSource)
	})

	t.Run("live quote", func(t *testing.T) {
		f := newFixture(t)
		f.quotes.EXPECT().Quote(gomock.Any(), "AAPL").Return(market.Quote{Symbol: "AAPL", Price: 200, Currency: "USD"}, nil)
		f.rates.EXPECT().Rates(gomock.Any(), "ILS").Return(nil, errors.New("offline"))

		in := core.DefaultInputs()
		in.RSUUnits = 100
		in.RSUSymbol = "AAPL"
		m := f.svc.MarketInputs(ctx, in)
		assert.Equal(t, calc.SourceLive, m.PriceSource)
		assert.Equal(t, 200.0, m.RSUPrice)
		assert.Equal(t, 3.70, m.FXRate)
		assert.Equal(t, calc.SourceFallback, m.RateSource)
	})
}

func TestService_Refresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.rates.EXPECT().Rates(gomock.Any(), "ILS").Return(map[string]float64{"USD": 0.25, "EUR": 0.2}, nil)
	f.quotes.EXPECT().Quote(gomock.Any(), "AAPL").Return(market.Quote{Symbol: "AAPL", Price: 205, Currency: "USD"}, nil)
	f.quotes.EXPECT().Quote(gomock.Any(), "MSFT").Return(market.Quote{}, market.ErrRateLimited)

	res, err := f.svc.Refresh(ctx, []string{"USD", "EUR", "ILS", "ZZZ"}, []string{"AAPL", "MSFT"})
	require.ErrorIs(t, err, market.ErrRateLimited)
	assert.Equal(t, market.RefreshResult{Rates: 2, Quotes: 1}, res)

	snap, err := f.store.LatestSnapshot(ctx, core.SnapshotQuote, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 205.0, snap.Value)
	snap, err = f.store.LatestSnapshot(ctx, core.SnapshotRate, "EUR")
	require.NoError(t, err)
	assert.InDelta(t, 5.0, snap.Value, 1e-9)

	_, err = f.store.LatestSnapshot(ctx, core.SnapshotQuote, "MSFT")
	require.ErrorIs(t, err, core.ErrNotFound)
	assert.Equal(t, calc.SourceCache, f.svc.Quote(ctx, "AAPL").Source)
}

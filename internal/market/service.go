package market

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"retireplan/internal/cache"
	"retireplan/internal/calc"
	"retireplan/internal/core"
	"retireplan/internal/log"
	"retireplan/internal/metrics"
	"retireplan/internal/sheets"
	"retireplan/internal/tables"
)

// BaseCurrency is the currency every rate is quoted in.
const BaseCurrency = core.DefaultCurrency

const (
	kindRate  = "rate"
	kindQuote = "quote"

	fetchConcurrency = 4
)

// Rate is the value of one unit of Currency in BaseCurrency.
type Rate struct {
	Currency  string    `json:"currency"`
	Value     float64   `json:"value"`
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetchedAt,omitempty"`
}

type Price struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Currency  string    `json:"currency"`
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetchedAt,omitempty"`
}

type Options struct {
	Timeout   time.Duration
	CacheTTL  time.Duration
	CacheSize int
	Logger    *log.Logger
	Metrics   *metrics.Metrics
}

// Service answers rate and quote lookups from cache, live sources, stored
// snapshots and the static tables, in that order.
type Service struct {
	rates   RateSource
	quotes  QuoteSource
	store   sheets.SnapshotStore
	tables  *tables.Tables
	logger  *log.Logger
	metrics *metrics.Metrics
	timeout time.Duration
	now     func() time.Time

	rateCache  *cache.LRUCache[Rate]
	quoteCache *cache.LRUCache[Price]
	group      singleflight.Group
}

// NewService builds a Service. Any of rates, quotes and store may be nil, in
// which case that step of the chain is skipped.
func NewService(rates RateSource, quotes QuoteSource, store sheets.SnapshotStore, t *tables.Tables, opts Options) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 512
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}

	return &Service{
		rates:      rates,
		quotes:     quotes,
		store:      store,
		tables:     t,
		logger:     logger.WithComponent(log.ComponentMarket),
		metrics:    opts.Metrics,
		timeout:    opts.Timeout,
		now:        time.Now,
		rateCache:  cache.NewLRUCache[Rate](opts.CacheSize, opts.CacheTTL),
		quoteCache: cache.NewLRUCache[Price](opts.CacheSize, opts.CacheTTL),
	}
}

// Caches returns the service caches for periodic expiry sweeps.
func (s *Service) Caches() []cache.Cleaner {
	return []cache.Cleaner{s.rateCache, s.quoteCache}
}

// CacheSize is the number of cached rates and quotes.
func (s *Service) CacheSize() int {
	return s.rateCache.Size() + s.quoteCache.Size()
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Rate returns the BaseCurrency value of one unit of code. It never fails.
func (s *Service) Rate(ctx context.Context, code string) Rate {
	code = normalizeCode(code)
	if code == "" || code == BaseCurrency {
		return Rate{Currency: BaseCurrency, Value: 1, Source: calc.SourceLive, FetchedAt: s.now()}
	}
	if r, ok := s.rateCache.Get(code); ok {
		r.Source = calc.SourceCache
		return r
	}

	live, err := s.liveRates(ctx)
	if err == nil {
		if v, ok := live[code]; ok {
			r := Rate{Currency: code, Value: v, Source: calc.SourceLive, FetchedAt: s.now()}
			s.saveSnapshot(ctx, core.MarketSnapshot{
				Kind: core.SnapshotRate, Key: code, Value: v, Currency: BaseCurrency, FetchedAt: r.FetchedAt,
			})
			return r
		}
		err = fmt.Errorf("%w: no rate for %s", ErrUnavailable, code)
	}
	return s.rateFallback(ctx, code, err)
}

// liveRates fetches every rate once for all concurrent callers and caches the
// result. Values are inverted to BaseCurrency per unit.
func (s *Service) liveRates(ctx context.Context) (map[string]float64, error) {
	if s.rates == nil {
		return nil, fmt.Errorf("%w: no rate source configured", ErrUnavailable)
	}
	v, err, _ := s.group.Do(kindRate+":"+BaseCurrency, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()

		raw, err := s.rates.Rates(fetchCtx, BaseCurrency)
		s.metrics.MarketFetch(kindRate, err)
		if err != nil {
			return nil, err
		}
		out := make(map[string]float64, len(raw))
		now := s.now()
		for code, perBase := range raw {
			if perBase <= 0 || core.Finite(perBase) != perBase {
				continue
			}
			code = normalizeCode(code)
			value := 1 / perBase
			out[code] = value
			s.rateCache.Set(code, Rate{Currency: code, Value: value, Source: calc.SourceLive, FetchedAt: now})
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]float64), nil
}

func (s *Service) rateFallback(ctx context.Context, code string, cause error) Rate {
	if snap, ok := s.snapshot(ctx, core.SnapshotRate, code); ok {
		s.warnFallback(ctx, kindRate, code, calc.SourceSnapshot, cause)
		return Rate{Currency: code, Value: snap.Value, Source: calc.SourceSnapshot, FetchedAt: snap.FetchedAt}
	}
	value, _ := s.tables.FallbackRate(code)
	s.warnFallback(ctx, kindRate, code, calc.SourceFallback, cause)
	return Rate{Currency: code, Value: value, Source: calc.SourceFallback}
}

// Rates looks up every code in order.
func (s *Service) Rates(ctx context.Context, codes []string) []Rate {
	out := make([]Rate, 0, len(codes))
	for _, c := range codes {
		out = append(out, s.Rate(ctx, c))
	}
	return out
}

// FX returns how many units of to one unit of from is worth, and the least
// fresh source used.
func (s *Service) FX(ctx context.Context, from, to string) (float64, string) {
	from, to = normalizeCode(from), normalizeCode(to)
	if from == "" || to == "" || from == to {
		return 1, calc.SourceNone
	}
	rf := s.Rate(ctx, from)
	rt := s.Rate(ctx, to)
	value := core.SafeDiv(rf.Value, rt.Value)
	if value == 0 {
		value = 1
	}
	return value, weakest(rf.Source, rt.Source)
}

// Convert expresses amount of from in to.
func (s *Service) Convert(ctx context.Context, amount float64, from, to string) float64 {
	fx, _ := s.FX(ctx, from, to)
	return amount * fx
}

// Quote returns the last price of symbol. It never fails; an unknown symbol
// with no live price and no snapshot is priced at 0.
func (s *Service) Quote(ctx context.Context, symbol string) Price {
	symbol = normalizeCode(symbol)
	if symbol == "" {
		return Price{Source: calc.SourceNone}
	}
	if p, ok := s.quoteCache.Get(symbol); ok {
		p.Source = calc.SourceCache
		return p
	}

	p, err := s.liveQuote(ctx, symbol)
	if err == nil {
		s.saveSnapshot(ctx, core.MarketSnapshot{
			Kind: core.SnapshotQuote, Key: symbol, Value: p.Price, Currency: p.Currency, FetchedAt: p.FetchedAt,
		})
		return p
	}
	return s.quoteFallback(ctx, symbol, err)
}

func (s *Service) liveQuote(ctx context.Context, symbol string) (Price, error) {
	if s.quotes == nil {
		return Price{}, fmt.Errorf("%w: no quote source configured", ErrUnavailable)
	}
	v, err, _ := s.group.Do(kindQuote+":"+symbol, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()

		q, err := s.quotes.Quote(fetchCtx, symbol)
		s.metrics.MarketFetch(kindQuote, err)
		if err != nil {
			return nil, err
		}
		if q.Price <= 0 || core.Finite(q.Price) != q.Price {
			return nil, fmt.Errorf("%w: invalid price for %s", ErrUnavailable, symbol)
		}
		p := Price{
			Symbol:    symbol,
			Price:     q.Price,
			Currency:  normalizeCode(q.Currency),
			Source:    calc.SourceLive,
			FetchedAt: s.now(),
		}
		if p.Currency == "" {
			p.Currency = "USD"
		}
		s.quoteCache.Set(symbol, p)
		return p, nil
	})
	if err != nil {
		return Price{}, err
	}
	return v.(Price), nil
}

func (s *Service) quoteFallback(ctx context.Context, symbol string, cause error) Price {
	if snap, ok := s.snapshot(ctx, core.SnapshotQuote, symbol); ok {
		s.warnFallback(ctx, kindQuote, symbol, calc.SourceSnapshot, cause)
		return Price{Symbol: symbol, Price: snap.Value, Currency: snap.Currency, Source: calc.SourceSnapshot, FetchedAt: snap.FetchedAt}
	}
	price, _ := s.tables.FallbackQuote(symbol)
	s.warnFallback(ctx, kindQuote, symbol, calc.SourceFallback, cause)
	return Price{Symbol: symbol, Price: price, Currency: "USD", Source: calc.SourceFallback}
}

// Quotes looks up symbols in parallel and returns them in input order.
func (s *Service) Quotes(ctx context.Context, symbols []string) []Price {
	out := make([]Price, len(symbols))
	var g errgroup.Group
	g.SetLimit(fetchConcurrency)
	for i, sym := range symbols {
		g.Go(func() error {
			out[i] = s.Quote(ctx, sym)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// MarketInputs resolves the RSU price and the exchange rate a calculation
// needs. A price typed by the user wins over a live quote.
func (s *Service) MarketInputs(ctx context.Context, in core.Inputs) calc.MarketInputs {
	in = in.Normalize()
	m := calc.MarketInputs{
		RSUCurrency: in.RSUCurrency,
		FXRate:      1,
		PriceSource: calc.SourceNone,
		RateSource:  calc.SourceNone,
	}
	if !in.HasRSU() {
		return m
	}

	if in.RSUPrice > 0 {
		m.RSUPrice = in.RSUPrice
		m.PriceSource = calc.SourceManual
	} else {
		p := s.Quote(ctx, in.RSUSymbol)
		m.RSUPrice = p.Price
		m.PriceSource = p.Source
		if p.Currency != "" {
			m.RSUCurrency = p.Currency
		}
	}
	m.FXRate, m.RateSource = s.FX(ctx, m.RSUCurrency, in.Currency)
	return m
}

// RefreshResult counts what a refresh stored.
type RefreshResult struct {
	Rates  int `json:"rates"`
	Quotes int `json:"quotes"`
}

// Refresh fetches live values for the given currencies and symbols, bypassing
// the cache, and stores them as snapshots. Failures are collected and
// returned together; every value that could be fetched is still stored.
func (s *Service) Refresh(ctx context.Context, currencies, symbols []string) (RefreshResult, error) {
	var (
		res  RefreshResult
		mu   sync.Mutex
		errs []error
	)

	if len(currencies) > 0 {
		if s.rates == nil {
			errs = append(errs, fmt.Errorf("%w: no rate source configured", ErrUnavailable))
		} else {
			fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
			raw, err := s.rates.Rates(fetchCtx, BaseCurrency)
			cancel()
			s.metrics.MarketFetch(kindRate, err)
			if err != nil {
				errs = append(errs, fmt.Errorf("rates: %w", err))
			} else {
				now := s.now()
				for _, code := range currencies {
					code = normalizeCode(code)
					perBase, ok := raw[code]
					if code == BaseCurrency || !ok || perBase <= 0 {
						continue
					}
					value := 1 / perBase
					s.rateCache.Set(code, Rate{Currency: code, Value: value, Source: calc.SourceLive, FetchedAt: now})
					if err := s.storeSnapshot(ctx, core.MarketSnapshot{
						Kind: core.SnapshotRate, Key: code, Value: value, Currency: BaseCurrency, FetchedAt: now,
					}); err != nil {
						errs = append(errs, err)
						continue
					}
					res.Rates++
				}
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for _, sym := range symbols {
		sym = normalizeCode(sym)
		if sym == "" {
			continue
		}
		g.Go(func() error {
			p, err := s.fetchQuote(gctx, sym)
			if err == nil {
				err = s.storeSnapshot(gctx, core.MarketSnapshot{
					Kind: core.SnapshotQuote, Key: sym, Value: p.Price, Currency: p.Currency, FetchedAt: p.FetchedAt,
				})
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("quote %s: %w", sym, err))
				return nil
			}
			res.Quotes++
			return nil
		})
	}
	_ = g.Wait()

	s.logger.InfoContext(ctx, "Market data refreshed",
		"rates", res.Rates,
		"quotes", res.Quotes,
		"failures", len(errs))
	return res, errors.Join(errs...)
}

// fetchQuote always goes to the live source and refreshes the cache.
func (s *Service) fetchQuote(ctx context.Context, symbol string) (Price, error) {
	if s.quotes == nil {
		return Price{}, fmt.Errorf("%w: no quote source configured", ErrUnavailable)
	}
	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	q, err := s.quotes.Quote(fetchCtx, symbol)
	s.metrics.MarketFetch(kindQuote, err)
	if err != nil {
		return Price{}, err
	}
	if q.Price <= 0 || core.Finite(q.Price) != q.Price {
		return Price{}, fmt.Errorf("%w: invalid price for %s", ErrUnavailable, symbol)
	}
	p := Price{Symbol: symbol, Price: q.Price, Currency: normalizeCode(q.Currency), Source: calc.SourceLive, FetchedAt: s.now()}
	if p.Currency == "" {
		p.Currency = "USD"
	}
	s.quoteCache.Set(symbol, p)
	return p, nil
}

func (s *Service) snapshot(ctx context.Context, kind core.SnapshotKind, key string) (core.MarketSnapshot, bool) {
	if s.store == nil {
		return core.MarketSnapshot{}, false
	}
	snap, err := s.store.LatestSnapshot(ctx, kind, key)
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			s.logger.WarnContext(ctx, "Market snapshot lookup failed",
				log.FieldSymbol, key,
				log.FieldError, err.Error())
		}
		return core.MarketSnapshot{}, false
	}
	return snap, snap.Value > 0
}

func (s *Service) storeSnapshot(ctx context.Context, snap core.MarketSnapshot) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.SaveSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("save %s snapshot %s: %w", snap.Kind, snap.Key, err)
	}
	return nil
}

// saveSnapshot is storeSnapshot for lookups, where a failed write only logs.
func (s *Service) saveSnapshot(ctx context.Context, snap core.MarketSnapshot) {
	if err := s.storeSnapshot(ctx, snap); err != nil {
		s.logger.DebugContext(ctx, "Market snapshot not saved", log.FieldError, err.Error())
	}
}

func (s *Service) warnFallback(ctx context.Context, kind, key, source string, cause error) {
	s.metrics.MarketFallback(kind, source)
	fields := log.NewFields().WithMarket(key, source).WithOperation(log.OpFetch)
	if cause != nil {
		fields = fields.WithError(cause)
	}
	s.logger.WarnContext(ctx, "Market data unavailable, using fallback", fields.ToSlice()...)
}

var sourceRank = map[string]int{
	calc.SourceNone:     0,
	calc.SourceManual:   0,
	calc.SourceLive:     1,
	calc.SourceCache:    2,
	calc.SourceSnapshot: 3,
	calc.SourceFallback: 4,
}

// weakest returns the least fresh of two sources.
func weakest(a, b string) string {
	if sourceRank[b] > sourceRank[a] {
		return b
	}
	return a
}

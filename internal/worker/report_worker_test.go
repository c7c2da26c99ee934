package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retireplan/internal/amqp"
	"retireplan/internal/core"
	"retireplan/internal/market"
	"retireplan/internal/sheets/memory"
)

// fakeGenerator completes or fails reports in the store the way
// ReportService.Generate does.
type fakeGenerator struct {
	store *memory.Store
	err   error
	retry bool
	calls []string
}

func (g *fakeGenerator) Generate(ctx context.Context, id string) error {
	g.calls = append(g.calls, id)
	if _, err := g.store.MarkReportProcessing(ctx, id); err != nil {
		if errors.Is(err, core.ErrReportClaimed) {
			return nil
		}
		return err
	}
	if g.err != nil {
		if err := g.store.FailReport(ctx, id, g.err.Error(), g.retry); err != nil {
			return err
		}
		return g.err
	}
	return g.store.CompleteReport(ctx, id, []byte("%PDF"), "")
}

type fakeRefresher struct {
	currencies, symbols []string
	calls               int
}

func (f *fakeRefresher) Refresh(_ context.Context, currencies, symbols []string) (market.RefreshResult, error) {
	f.calls++
	f.currencies = currencies
	f.symbols = symbols
	return market.RefreshResult{Rates: len(currencies), Quotes: len(symbols)}, nil
}

func newReport(t *testing.T, store *memory.Store, id, session string) {
	t.Helper()
	now := time.Now()
	require.NoError(t, store.CreateReport(context.Background(), core.Report{
		ID: id, SessionID: session, Status: core.ReportPending, CreatedAt: now, UpdatedAt: now,
	}))
}

func TestHandleReportRequest_Generates(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	gen := &fakeGenerator{store: store}
	w := NewReportWorker(store, gen, nil, nil, nil)
	newReport(t, store, "r1", "s1")

	require.NoError(t, w.HandleReportRequest(ctx, amqp.NewReportRequest("r1", "s1")))

	r, err := store.GetReport(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, core.ReportReady, r.Status)
	assert.Equal(t, []string{"r1"}, gen.calls)
}

func TestHandleReportRequest_RedeliveryIsHarmless(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	gen := &fakeGenerator{store: store}
	w := NewReportWorker(store, gen, nil, nil, nil)
	newReport(t, store, "r1", "s1")

	require.NoError(t, w.HandleReportRequest(ctx, amqp.NewReportRequest("r1", "s1")))
	require.NoError(t, w.HandleReportRequest(ctx, amqp.NewReportRequest("r1", "s1")))
	assert.Len(t, gen.calls, 1)
}

func TestHandleReportRequest_Dropped(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	gen := &fakeGenerator{store: store}
	w := NewReportWorker(store, gen, nil, nil, nil)
	newReport(t, store, "r1", "s1")

	assert.NoError(t, w.HandleReportRequest(ctx, amqp.NewReportRequest("missing", "s1")))
	assert.NoError(t, w.HandleReportRequest(ctx, amqp.NewReportRequest("r1", "other")))
	assert.Empty(t, gen.calls)
}

func TestHandleReportRequest_RecordedFailureIsAcked(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	gen := &fakeGenerator{store: store, err: errors.New("render failed"), retry: true}
	w := NewReportWorker(store, gen, nil, nil, nil)
	newReport(t, store, "r1", "s1")

	require.NoError(t, w.HandleReportRequest(ctx, amqp.NewReportRequest("r1", "s1")))

	r, err := store.GetReport(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, core.ReportPending, r.Status)
	assert.Equal(t, "render failed", r.Error)
}

type brokenGenerator struct{}

func (brokenGenerator) Generate(context.Context, string) error {
	return errors.New("database is locked")
}

func TestHandleReportRequest_StoreErrorRequeues(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	w := NewReportWorker(store, brokenGenerator{}, nil, nil, nil)
	newReport(t, store, "r1", "s1")
	_, err := store.MarkReportProcessing(ctx, "r1")
	require.NoError(t, err)

	// the report is still processing, so nothing recorded the failure
	assert.Error(t, w.HandleReportRequest(ctx, amqp.NewReportRequest("r1", "s1")))
}

func TestRefreshMarketIfNeeded(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := memory.New()
	ref := &fakeRefresher{}
	w := NewReportWorker(store, nil, store, ref, nil)
	w.now = func() time.Time { return now }

	require.NoError(t, store.SaveSnapshot(ctx, core.MarketSnapshot{
		Kind: core.SnapshotRate, Key: "USD", Value: 3.7, Currency: market.BaseCurrency, FetchedAt: now.Add(-time.Hour),
	}))
	require.NoError(t, store.SaveSnapshot(ctx, core.MarketSnapshot{
		Kind: core.SnapshotRate, Key: "EUR", Value: 4.0, Currency: market.BaseCurrency, FetchedAt: now.Add(-48 * time.Hour),
	}))
	require.NoError(t, store.SaveSnapshot(ctx, core.MarketSnapshot{
		Kind: core.SnapshotQuote, Key: "AAPL", Value: 190, Currency: "USD", FetchedAt: now.Add(-time.Minute),
	}))

	res, err := w.RefreshMarketIfNeeded(ctx, []string{"usd", "EUR", "GBP", market.BaseCurrency}, []string{"AAPL", "msft"}, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"EUR", "GBP"}, ref.currencies)
	assert.Equal(t, []string{"MSFT"}, ref.symbols)
	assert.Equal(t, 2, res.Rates)
	assert.Equal(t, 1, res.Quotes)

	ref.calls = 0
	_, err = w.RefreshMarketIfNeeded(ctx, []string{"USD"}, []string{"AAPL"}, 24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, ref.calls, "fresh snapshots are not refetched")
}

func TestForceRefreshMarket(t *testing.T) {
	ref := &fakeRefresher{}
	w := NewReportWorker(memory.New(), nil, nil, ref, nil)

	_, err := w.ForceRefreshMarket(context.Background(), []string{"USD"}, []string{"AAPL"})
	require.NoError(t, err)
	assert.Equal(t, 1, ref.calls)

	w = NewReportWorker(memory.New(), nil, nil, nil, nil)
	_, err = w.ForceRefreshMarket(context.Background(), nil, nil)
	assert.ErrorIs(t, err, market.ErrUnavailable)
}

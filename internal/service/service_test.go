package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"salesync/backend/internal/cache"
	"salesync/backend/internal/domain"
	"salesync/backend/internal/source"
	"salesync/backend/internal/store"
	"salesync/backend/internal/store/memory"
)

var header = []string{"Product", "Revenue", "Cost", "Profit", "Date", "Condition"}

type staticRows struct {
	rows [][]string
	err  error
}

func (s staticRows) FetchRows(context.Context) ([][]string, error) {
	return s.rows, s.err
}

// tickingClock advances one second per call so created/updated timestamps always differ.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2024, time.February, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

// flakyRepo fails upserts for one product.
type flakyRepo struct {
	*memory.Store
	failProduct string
}

func (r flakyRepo) UpsertSale(ctx context.Context, sale domain.Sale) (domain.UpsertResult, error) {
	if sale.Product == r.failProduct {
		return domain.UpsertResult{}, errors.New("store unavailable")
	}
	return r.Store.UpsertSale(ctx, sale)
}

// countingCache records invalidations.
type countingCache struct {
	cache.SummaryCache
	invalidations int
}

func (c *countingCache) Invalidate(ctx context.Context) error {
	c.invalidations++
	return c.SummaryCache.Invalidate(ctx)
}

// racingRepo runs afterList once, after a listing has been read but before it is returned.
type racingRepo struct {
	*memory.Store
	afterList func()
}

func (r *racingRepo) ListSales(ctx context.Context, filter domain.DateFilter) ([]domain.Sale, error) {
	sales, err := r.Store.ListSales(ctx, filter)
	if hook := r.afterList; hook != nil {
		r.afterList = nil
		hook()
	}
	return sales, err
}

func newTestService(t *testing.T, repo store.Repository, rows source.RowSource) *Service {
	t.Helper()
	return New(repo, rows, cache.NewLocalSummaryCache(time.Minute), zaptest.NewLogger(t), Options{
		ClearConfirmationToken: "wipe-staging-2024",
	})
}

func TestSyncInsertThenUpdateSameKey(t *testing.T) {
	repo := memory.New().WithClock(tickingClock())
	svc := newTestService(t, repo, staticRows{rows: [][]string{
		header,
		{"Jeans", "100,00", "50,00", "50,00", "15/01/2024", "cash"},
		{"Jeans", "120.00", "60.00", "60.00", "15/01/2024", "cash"},
	}})

	result, err := svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 0, result.Skipped)
	assert.Equal(t, 2, result.TotalRows)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, "sync complete: 1 inserted, 1 updated, 0 skipped of 2 rows", result.Message)

	sales, err := repo.ListSales(context.Background(), domain.DateFilter{})
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, "Jeans", sales[0].Product)
	assert.True(t, sales[0].Revenue.Equal(decimal.RequireFromString("120.00")))
	assert.Equal(t, "2024-01-15", sales[0].Date.Format(domain.DateLayout))
}

func TestSyncSkipsInvalidRowsAndContinues(t *testing.T) {
	repo := memory.New()
	svc := newTestService(t, repo, staticRows{rows: [][]string{
		header,
		{"Hat", "10", "5", "5", "32/01/2024", "cash"},
		{"Belt", "10"},
		{"", "10", "5", "5", "01/02/2024"},
		{"Boots", "abc", "5", "5", "01/02/2024"},
		{"Scarf", "20", "5", "15", "02/02/2024"},
	}})

	result, err := svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 4, result.Skipped)
	assert.Equal(t, 5, result.TotalRows)
	assert.Equal(t, 4, result.CountStatus(domain.RowParseFailed))

	failures := result.Failures()
	require.Len(t, failures, 4)
	assert.Equal(t, 2, failures[0].Row)
	assert.Equal(t, "invalid_date", failures[0].Reason)
	assert.Equal(t, "too_few_fields", failures[1].Reason)
	assert.Equal(t, "empty_product", failures[2].Reason)
	assert.Equal(t, "invalid_amount", failures[3].Reason)

	sales, err := repo.ListSales(context.Background(), domain.DateFilter{})
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, "Scarf", sales[0].Product)
}

func TestSyncIsIdempotent(t *testing.T) {
	repo := memory.New().WithClock(tickingClock())
	rows := [][]string{
		header,
		{"Jeans", "100", "50", "50", "15/01/2024", "cash"},
		{"Hat", "35,50", "20", "15,50", "16/01/2024", ""},
		{"Belt", "49,99", "25", "24,99", "17/02/2024", "2x"},
	}
	svc := newTestService(t, repo, staticRows{rows: rows})

	first, err := svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, first.Inserted)
	before, err := svc.Dashboard(context.Background(), domain.DateFilter{})
	require.NoError(t, err)

	second, err := svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 3, second.Updated)
	assert.NotEqual(t, first.RunID, second.RunID)

	sales, err := repo.ListSales(context.Background(), domain.DateFilter{})
	require.NoError(t, err)
	assert.Len(t, sales, 3, "no duplicate keys")

	after, err := svc.Dashboard(context.Background(), domain.DateFilter{})
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSyncCountsStoreFailuresAsSkipped(t *testing.T) {
	repo := flakyRepo{Store: memory.New(), failProduct: "Hat"}
	svc := newTestService(t, repo, staticRows{rows: [][]string{
		header,
		{"Hat", "10", "5", "5", "01/02/2024"},
		{"Jeans", "100", "50", "50", "02/02/2024"},
	}})

	result, err := svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.CountStatus(domain.RowStoreFailed))
	assert.Equal(t, "store unavailable", result.Failures()[0].Reason)
	assert.Equal(t, "2024-02-01", result.Failures()[0].Date)
}

func TestSyncPropagatesFatalErrors(t *testing.T) {
	fetchErr := &source.FetchError{Kind: source.KindEmptyDataset}
	svc := newTestService(t, memory.New(), staticRows{err: fetchErr})

	_, err := svc.Sync(context.Background())
	var got *source.FetchError
	require.True(t, errors.As(err, &got))
	assert.Equal(t, source.KindEmptyDataset, got.Kind)

	svc = newTestService(t, memory.New(), nil)
	_, err = svc.Sync(context.Background())
	assert.ErrorIs(t, err, ErrNoSource)
}

func TestReconcileStopsOnCancelledContext(t *testing.T) {
	repo := memory.New()
	svc := newTestService(t, repo, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := svc.Reconcile(ctx, [][]string{header, {"Jeans", "100", "50", "50", "15/01/2024"}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, result.TotalRows)
	assert.Empty(t, result.Outcomes)
	assert.Contains(t, result.Message, "interrupted")
}

func TestReconcileHeaderOnly(t *testing.T) {
	svc := newTestService(t, memory.New(), nil)
	result, err := svc.Reconcile(context.Background(), [][]string{header})
	require.NoError(t, err)
	assert.Equal(t, 0, result.TotalRows)
	assert.Equal(t, 0, result.Inserted+result.Updated+result.Skipped)
}

func TestDashboardCachesAndInvalidatesOnSync(t *testing.T) {
	repo := memory.New()
	summaries := &countingCache{SummaryCache: cache.NewLocalSummaryCache(time.Minute)}
	rows := &staticRows{rows: [][]string{header, {"Jeans", "100", "60", "40", "15/01/2024", "cash"}}}
	svc := New(repo, rows, summaries, zaptest.NewLogger(t), Options{})

	_, err := svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summaries.invalidations)

	summary, err := svc.Dashboard(context.Background(), domain.DateFilter{})
	require.NoError(t, err)
	assert.True(t, summary.Totals.AverageMargin.Equal(decimal.NewFromInt(40)))

	// a direct store write is invisible until the cache is invalidated
	_, err = repo.UpsertSale(context.Background(), domain.Sale{
		Product: "Hat", Revenue: decimal.NewFromInt(100), Date: time.Date(2024, time.January, 16, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	cached, err := svc.Dashboard(context.Background(), domain.DateFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, cached.Totals.TotalCount)

	rows.rows = append(rows.rows, []string{"Belt", "10", "5", "5", "17/01/2024"})
	_, err = svc.Sync(context.Background())
	require.NoError(t, err)
	fresh, err := svc.Dashboard(context.Background(), domain.DateFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, fresh.Totals.TotalCount)
}

func TestDashboardFiltersByDate(t *testing.T) {
	repo := memory.New()
	svc := newTestService(t, repo, staticRows{rows: [][]string{
		header,
		{"Jeans", "100", "60", "40", "15/01/2024", "cash"},
		{"Hat", "50", "30", "20", "15/02/2024", ""},
	}})
	_, err := svc.Sync(context.Background())
	require.NoError(t, err)

	from := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)
	summary, err := svc.Dashboard(context.Background(), domain.DateFilter{From: &from})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Totals.TotalCount)
	require.Len(t, summary.ByCondition, 1)
	assert.Equal(t, domain.UnknownCondition, summary.ByCondition[0].Condition)
}

func TestRecordSale(t *testing.T) {
	svc := newTestService(t, memory.New(), nil)
	sale := domain.Sale{
		Product: "Jeans",
		Revenue: decimal.NewFromInt(100),
		Cost:    decimal.NewFromInt(60),
		Profit:  decimal.NewFromInt(40),
		Date:    time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC),
	}

	created, err := svc.RecordSale(context.Background(), sale)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	_, err = svc.RecordSale(context.Background(), sale)
	assert.ErrorIs(t, err, store.ErrDuplicateSale)

	_, err = svc.RecordSale(context.Background(), domain.Sale{Product: " "})
	assert.ErrorIs(t, err, store.ErrInvalidSale)
}

func TestClearSalesRequiresConfirmation(t *testing.T) {
	repo := memory.New()
	svc := newTestService(t, repo, staticRows{rows: [][]string{
		header,
		{"Jeans", "100", "60", "40", "15/01/2024", "cash"},
		{"Hat", "50", "30", "20", "15/02/2024", ""},
	}})
	_, err := svc.Sync(context.Background())
	require.NoError(t, err)

	_, err = svc.ClearSales(context.Background(), "")
	assert.ErrorIs(t, err, ErrConfirmationRequired)
	_, err = svc.ClearSales(context.Background(), "yes")
	assert.ErrorIs(t, err, ErrConfirmationRequired)

	deleted, err := svc.ClearSales(context.Background(), "wipe-staging-2024")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	summary, err := svc.Dashboard(context.Background(), domain.DateFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Totals.TotalCount)
}

func TestDashboardDoesNotCacheSummaryReadAcrossSync(t *testing.T) {
	ctx := context.Background()
	repo := &racingRepo{Store: memory.New()}
	rows := &staticRows{rows: [][]string{header, {"Jeans", "100", "60", "40", "15/01/2024", "cash"}}}
	svc := New(repo, rows, cache.NewLocalSummaryCache(time.Minute), zaptest.NewLogger(t), Options{})

	_, err := svc.Sync(ctx)
	require.NoError(t, err)

	// a sync lands while the dashboard is still aggregating the old listing
	repo.afterList = func() {
		rows.rows = append(rows.rows, []string{"Hat", "50", "20", "30", "16/01/2024"})
		_, err := svc.Sync(ctx)
		require.NoError(t, err)
	}
	stale, err := svc.Dashboard(ctx, domain.DateFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, stale.Totals.TotalCount)

	fresh, err := svc.Dashboard(ctx, domain.DateFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.Totals.TotalCount)
}

func TestClearSalesDisabledWithoutToken(t *testing.T) {
	repo := memory.New()
	svc := New(repo, staticRows{rows: [][]string{
		header,
		{"Jeans", "100", "60", "40", "15/01/2024", "cash"},
	}}, nil, zaptest.NewLogger(t), Options{})
	_, err := svc.Sync(context.Background())
	require.NoError(t, err)

	for _, token := range []string{"", "clear-all-sales"} {
		_, err = svc.ClearSales(context.Background(), token)
		assert.ErrorIs(t, err, ErrClearDisabled)
	}

	sales, err := svc.ListSales(context.Background(), domain.DateFilter{})
	require.NoError(t, err)
	assert.Len(t, sales, 1)
}

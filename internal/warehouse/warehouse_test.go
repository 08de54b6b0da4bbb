package warehouse

import (
	"context"
	"math"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"pricestore/internal/model"
	"pricestore/internal/testutil"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func openTestWarehouse(t *testing.T) *Warehouse {
	t.Helper()
	wh, err := Open(filepath.Join(t.TempDir(), "price.db"), nil)
	if err != nil {
		t.Fatalf("Open() returned unexpected error: %v", err)
	}
	t.Cleanup(func() { wh.Close() })
	return wh
}

func TestMerge_TwoPartitions(t *testing.T) {
	wh := openTestWarehouse(t)
	ctx := context.Background()

	store := testutil.NewMemStore()
	store.Seed("AAPL", testutil.Points("AAPL", day("2024-01-02"), 3), time.Now())
	store.Seed("MSFT", testutil.Points("MSFT", day("2024-01-02"), 2), time.Now())

	report, err := wh.Merge(ctx, store)
	if err != nil {
		t.Fatalf("Merge() returned unexpected error: %v", err)
	}

	if report.Merged != 2 || report.RowsInserted != 5 || report.RowsRejected != 0 {
		t.Errorf("report = %+v, want 2 merged, 5 inserted, 0 rejected", report)
	}

	summary, err := wh.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary() returned unexpected error: %v", err)
	}
	if summary.Tickers != 2 || summary.Rows != 5 {
		t.Errorf("summary = %+v, want 2 tickers, 5 rows", summary)
	}
	if summary.MinDate != "2024-01-02" || summary.MaxDate != "2024-01-04" {
		t.Errorf("date range = %s..%s, want 2024-01-02..2024-01-04", summary.MinDate, summary.MaxDate)
	}
}

func TestMerge_Idempotent(t *testing.T) {
	wh := openTestWarehouse(t)
	ctx := context.Background()

	store := testutil.NewMemStore()
	store.Seed("AAPL", testutil.Points("AAPL", day("2024-01-02"), 3), time.Now())
	store.Seed("MSFT", testutil.Points("MSFT", day("2024-01-02"), 2), time.Now())

	for run := 1; run <= 2; run++ {
		report, err := wh.Merge(ctx, store)
		if err != nil {
			t.Fatalf("Merge() run %d returned unexpected error: %v", run, err)
		}
		if report.RowsInserted != 5 {
			t.Errorf("run %d inserted %d rows, want 5", run, report.RowsInserted)
		}

		summary, err := wh.Summary(ctx)
		if err != nil {
			t.Fatalf("Summary() run %d returned unexpected error: %v", run, err)
		}
		if summary.Rows != 5 {
			t.Errorf("run %d: table has %d rows, want 5 (no duplicate accumulation)", run, summary.Rows)
		}
	}
}

func TestMerge_RowCountMatchesPartition(t *testing.T) {
	wh := openTestWarehouse(t)
	ctx := context.Background()

	store := testutil.NewMemStore()
	store.Seed("AAPL", testutil.Points("AAPL", day("2024-01-02"), 7), time.Now())

	if _, err := wh.Merge(ctx, store); err != nil {
		t.Fatalf("Merge() returned unexpected error: %v", err)
	}

	n, err := wh.SymbolRowCount(ctx, "AAPL")
	if err != nil {
		t.Fatalf("SymbolRowCount() returned unexpected error: %v", err)
	}
	points, _ := store.Read("AAPL")
	if n != len(points) {
		t.Errorf("table has %d rows for AAPL, partition has %d", n, len(points))
	}
}

func TestMerge_CorrectedRefetchReplaces(t *testing.T) {
	wh := openTestWarehouse(t)
	ctx := context.Background()

	store := testutil.NewMemStore()
	store.Seed("AAPL", testutil.Points("AAPL", day("2024-01-02"), 5), time.Now())
	if _, err := wh.Merge(ctx, store); err != nil {
		t.Fatalf("Merge() returned unexpected error: %v", err)
	}

	// A corrected re-fetch shrinks the history; stale rows must go.
	store.Seed("AAPL", testutil.Points("AAPL", day("2024-03-01"), 2), time.Now())
	if _, err := wh.Merge(ctx, store); err != nil {
		t.Fatalf("second Merge() returned unexpected error: %v", err)
	}

	n, err := wh.SymbolRowCount(ctx, "AAPL")
	if err != nil {
		t.Fatalf("SymbolRowCount() returned unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("table has %d rows for AAPL after corrected re-fetch, want 2", n)
	}

	points, err := wh.RecentPrices(ctx, "AAPL", 10)
	if err != nil {
		t.Fatalf("RecentPrices() returned unexpected error: %v", err)
	}
	if len(points) != 2 || points[0].Day() != "2024-03-01" {
		t.Errorf("RecentPrices() = %d rows starting %s, want 2 starting 2024-03-01",
			len(points), points[0].Day())
	}
}

func TestMerge_RejectsInvalidRows(t *testing.T) {
	wh := openTestWarehouse(t)
	ctx := context.Background()

	good := testutil.Points("AAPL", day("2024-01-02"), 2)
	bad := []model.PricePoint{
		{Symbol: "AAPL", Open: 1, High: 1, Low: 1, Close: 1, AdjClose: 1, Volume: 1},                           // zero date
		{Symbol: "AAPL", Date: day("2024-01-05"), Close: math.NaN(), Volume: 1},                                // NaN price
		{Symbol: "AAPL", Date: day("2024-01-08"), Open: 1, High: 1, Low: 1, Close: 1, AdjClose: 1, Volume: -5}, // negative volume
	}

	store := testutil.NewMemStore()
	store.Seed("AAPL", append(append([]model.PricePoint{}, good...), bad...), time.Now())

	report, err := wh.Merge(ctx, store)
	if err != nil {
		t.Fatalf("Merge() returned unexpected error: %v", err)
	}

	if report.RowsRejected != 3 {
		t.Errorf("RowsRejected = %d, want 3", report.RowsRejected)
	}
	if report.RowsInserted != 2 {
		t.Errorf("RowsInserted = %d, want 2", report.RowsInserted)
	}
}

func TestMerge_FullyInvalidPartitionIsFailSoft(t *testing.T) {
	wh := openTestWarehouse(t)
	ctx := context.Background()

	store := testutil.NewMemStore()
	store.Seed("GOOD", testutil.Points("GOOD", day("2024-01-02"), 3), time.Now())
	store.Seed("BAD", []model.PricePoint{
		{Symbol: "BAD", Close: math.NaN(), Volume: 1},
	}, time.Now())

	report, err := wh.Merge(ctx, store)
	if err != nil {
		t.Fatalf("Merge() returned unexpected error: %v", err)
	}

	if report.Merged != 1 {
		t.Errorf("Merged = %d, want 1", report.Merged)
	}
	if !reflect.DeepEqual(report.Failed, []string{"BAD"}) {
		t.Errorf("Failed = %v, want [BAD]", report.Failed)
	}

	n, err := wh.SymbolRowCount(ctx, "GOOD")
	if err != nil {
		t.Fatalf("SymbolRowCount() returned unexpected error: %v", err)
	}
	if n != 3 {
		t.Errorf("GOOD has %d rows, want 3 (bad sibling must not abort merge)", n)
	}
}

func TestMerge_DuplicateDatesLastWins(t *testing.T) {
	wh := openTestWarehouse(t)
	ctx := context.Background()

	dup := testutil.Points("AAPL", day("2024-01-02"), 1)[0]
	dup.Close = 999.0

	store := testutil.NewMemStore()
	store.Seed("AAPL", append(testutil.Points("AAPL", day("2024-01-02"), 2), dup), time.Now())

	if _, err := wh.Merge(ctx, store); err != nil {
		t.Fatalf("Merge() returned unexpected error: %v", err)
	}

	n, err := wh.SymbolRowCount(ctx, "AAPL")
	if err != nil {
		t.Fatalf("SymbolRowCount() returned unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("table has %d rows, want 2 (duplicate date collapsed)", n)
	}

	points, err := wh.RecentPrices(ctx, "AAPL", 10)
	if err != nil {
		t.Fatalf("RecentPrices() returned unexpected error: %v", err)
	}
	if points[0].Close != 999.0 {
		t.Errorf("duplicate date kept Close = %v, want last-written 999.0", points[0].Close)
	}
}

func TestRecentPrices(t *testing.T) {
	wh := openTestWarehouse(t)
	ctx := context.Background()

	store := testutil.NewMemStore()
	store.Seed("AAPL", testutil.Points("AAPL", day("2024-01-02"), 10), time.Now())

	if _, err := wh.Merge(ctx, store); err != nil {
		t.Fatalf("Merge() returned unexpected error: %v", err)
	}

	points, err := wh.RecentPrices(ctx, "AAPL", 3)
	if err != nil {
		t.Fatalf("RecentPrices() returned unexpected error: %v", err)
	}

	// Most recent 3 days, returned ascending for display.
	expected := []string{"2024-01-09", "2024-01-10", "2024-01-11"}
	if len(points) != 3 {
		t.Fatalf("RecentPrices() returned %d rows, want 3", len(points))
	}
	for i, d := range expected {
		if points[i].Day() != d {
			t.Errorf("points[%d].Day() = %q, want %q", i, points[i].Day(), d)
		}
	}
}

func TestRecentPrices_UnknownSymbol(t *testing.T) {
	wh := openTestWarehouse(t)

	points, err := wh.RecentPrices(context.Background(), "NOPE", 5)
	if err != nil {
		t.Fatalf("RecentPrices() returned unexpected error: %v", err)
	}
	if len(points) != 0 {
		t.Errorf("RecentPrices() = %d rows for unknown symbol, want 0", len(points))
	}
}

func TestOpen_IdempotentMigrate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "price.db")

	wh, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open() returned unexpected error: %v", err)
	}
	wh.Close()

	// Reopening must not fail on the existing schema.
	wh, err = Open(path, nil)
	if err != nil {
		t.Fatalf("second Open() returned unexpected error: %v", err)
	}
	wh.Close()
}

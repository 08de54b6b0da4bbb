// Package warehouse maintains the consolidated fact_price_daily table:
// the merged, query-ready union of every partition, keyed by
// (ticker, dt). The merge is replace-by-symbol and idempotent, so
// re-running it over unchanged partitions changes nothing.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"pricestore/internal/model"
)

// PartitionReader is the slice of the partition store the merge needs.
type PartitionReader interface {
	List() ([]string, error)
	Read(symbol string) ([]model.PricePoint, error)
}

// Warehouse owns the SQLite database holding the consolidated table.
type Warehouse struct {
	db     *sql.DB
	logger *slog.Logger

	// Serializes merges. Readers run unlocked: replaceSymbol commits
	// each symbol in one transaction, so they never see partial state.
	mu sync.Mutex
}

// MergeReport summarizes one merge run.
type MergeReport struct {
	Partitions   int
	Merged       int
	RowsInserted int
	RowsRejected int
	Failed       []string
}

// Summary holds the table-level statistics shown after a load.
type Summary struct {
	Tickers int
	Rows    int
	MinDate string
	MaxDate string
}

// Open opens (or creates) the warehouse database and runs migrations.
func Open(dbPath string, logger *slog.Logger) (*Warehouse, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so the query facade can read while a merge is running;
	// readers see the table as of the last committed transaction.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	w := &Warehouse{db: db, logger: logger}
	if err := w.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("warehouse opened", "path", dbPath)
	return w, nil
}

func (w *Warehouse) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS fact_price_daily (
			ticker    TEXT NOT NULL,
			dt        TEXT NOT NULL,
			open      REAL,
			high      REAL,
			low       REAL,
			close     REAL,
			adj_close REAL,
			volume    INTEGER,
			PRIMARY KEY (ticker, dt)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_price_dt ON fact_price_daily(dt)`,
	}

	for _, s := range stmts {
		if _, err := w.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// Merge scans every partition and reconciles it into the consolidated
// table. Each partition is loaded in one transaction that first deletes
// all prior rows for the symbol and then inserts the current set, so a
// corrected re-fetch fully replaces stale history and a re-merge is a
// no-op. Unreadable or fully invalid partitions are recorded and
// skipped; only table-level I/O errors abort the load.
func (w *Warehouse) Merge(ctx context.Context, parts PartitionReader) (*MergeReport, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	symbols, err := parts.List()
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}

	report := &MergeReport{Partitions: len(symbols)}

	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		points, err := parts.Read(sym)
		if err != nil {
			w.logger.Warn("skipping unreadable partition", "symbol", sym, "error", err)
			report.Failed = append(report.Failed, sym)
			continue
		}

		valid, rejected := validate(sym, points)
		report.RowsRejected += rejected
		if len(valid) == 0 {
			// Nothing trustworthy to load; leave any previously merged
			// rows for the symbol in place.
			w.logger.Warn("skipping partition with no valid rows", "symbol", sym, "rejected", rejected)
			report.Failed = append(report.Failed, sym)
			continue
		}

		if err := w.replaceSymbol(ctx, sym, valid); err != nil {
			return report, fmt.Errorf("merge %s: %w", sym, err)
		}
		report.Merged++
		report.RowsInserted += len(valid)
	}

	w.logger.Info("merge complete",
		"partitions", report.Partitions,
		"merged", report.Merged,
		"rows", report.RowsInserted,
		"rejected_rows", report.RowsRejected,
		"failed_partitions", len(report.Failed))

	return report, nil
}

// replaceSymbol atomically swaps one symbol's rows. Readers never see
// the intermediate deleted state.
func (w *Warehouse) replaceSymbol(ctx context.Context, symbol string, points []model.PricePoint) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM fact_price_daily WHERE ticker = ?`, symbol); err != nil {
		return fmt.Errorf("delete prior rows: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO fact_price_daily
		(ticker, dt, open, high, low, close, adj_close, volume)
		VALUES (?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, symbol, p.Day(),
			p.Open, p.High, p.Low, p.Close, p.AdjClose, p.Volume); err != nil {
			return fmt.Errorf("insert %s %s: %w", symbol, p.Day(), err)
		}
	}

	return tx.Commit()
}

// validate filters one partition's rows to those the table can key,
// counting rejects. Duplicate dates should not occur in a correct
// partition; last-written wins if they ever do.
func validate(symbol string, points []model.PricePoint) ([]model.PricePoint, int) {
	rejected := 0
	byDay := make(map[string]model.PricePoint, len(points))
	var order []string

	for _, p := range points {
		if symbol == "" || p.Date.IsZero() || !finite(p) || p.Volume < 0 {
			rejected++
			continue
		}
		day := p.Day()
		if _, dup := byDay[day]; !dup {
			order = append(order, day)
		}
		byDay[day] = p
	}

	sort.Strings(order)
	valid := make([]model.PricePoint, 0, len(order))
	for _, day := range order {
		valid = append(valid, byDay[day])
	}
	return valid, rejected
}

func finite(p model.PricePoint) bool {
	for _, v := range []float64{p.Open, p.High, p.Low, p.Close, p.AdjClose} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Summary returns table-level statistics for display after a load.
func (w *Warehouse) Summary(ctx context.Context) (*Summary, error) {
	row := w.db.QueryRowContext(ctx, `SELECT
		COUNT(DISTINCT ticker),
		COUNT(*),
		COALESCE(MIN(dt), ''),
		COALESCE(MAX(dt), '')
		FROM fact_price_daily`)

	s := &Summary{}
	if err := row.Scan(&s.Tickers, &s.Rows, &s.MinDate, &s.MaxDate); err != nil {
		return nil, fmt.Errorf("summary query: %w", err)
	}
	return s, nil
}

// RecentPrices returns the most recent N rows for a symbol, ordered by
// date ascending for display. It reads only the consolidated table.
func (w *Warehouse) RecentPrices(ctx context.Context, symbol string, days int) ([]model.PricePoint, error) {
	rows, err := w.db.QueryContext(ctx, `SELECT ticker, dt, open, high, low, close, adj_close, volume
		FROM fact_price_daily
		WHERE ticker = ?
		ORDER BY dt DESC
		LIMIT ?`, symbol, days)
	if err != nil {
		return nil, fmt.Errorf("query recent prices: %w", err)
	}
	defer rows.Close()

	var points []model.PricePoint
	for rows.Next() {
		var p model.PricePoint
		var day string
		if err := rows.Scan(&p.Symbol, &day, &p.Open, &p.High, &p.Low, &p.Close, &p.AdjClose, &p.Volume); err != nil {
			return nil, fmt.Errorf("scan price row: %w", err)
		}
		p.Date, err = time.Parse("2006-01-02", day)
		if err != nil {
			return nil, fmt.Errorf("bad dt %q for %s: %w", day, symbol, err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price rows: %w", err)
	}

	// Query is newest-first for the LIMIT; flip to ascending for display.
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}

	return points, nil
}

// SymbolRowCount returns the number of consolidated rows for a symbol.
func (w *Warehouse) SymbolRowCount(ctx context.Context, symbol string) (int, error) {
	var n int
	err := w.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM fact_price_daily WHERE ticker = ?`, symbol).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count rows for %s: %w", symbol, err)
	}
	return n, nil
}

// Close closes the underlying database.
func (w *Warehouse) Close() error {
	w.logger.Info("closing warehouse")
	return w.db.Close()
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pricestore/internal/config"
	"pricestore/internal/coordinator"
	"pricestore/internal/partition"
	"pricestore/internal/ratelimit"
	"pricestore/internal/tiingo"
	"pricestore/internal/universe"
	"pricestore/internal/warehouse"
)

func main() {
	fetchOnly := flag.Bool("fetch-only", false, "fetch partitions without loading the warehouse")
	loadOnly := flag.Bool("load-only", false, "load existing partitions without fetching")
	refresh := flag.Bool("refresh", false, "re-fetch symbols even if a partition already exists")
	startDate := flag.String("start-date", "", "history start date (YYYY-MM-DD, overrides config)")
	query := flag.String("query", "", "print recent prices for a ticker after loading")
	days := flag.Int("days", 10, "number of recent rows for -query")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := validateFlags(*fetchOnly, *loadOnly, *query); err != nil {
		log.Fatal(err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *startDate != "" {
		cfg.StartDate = *startDate
	}

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	store, err := partition.NewStore(cfg.DataDir)
	if err != nil {
		log.Fatalf("Failed to open partition store: %v", err)
	}

	if !*loadOnly {
		if err := runFetch(ctx, cfg, store, *refresh, logger); err != nil {
			log.Fatalf("Fetch stage failed: %v", err)
		}
	}

	if !*fetchOnly {
		if err := runLoad(ctx, cfg, store, *query, *days, logger); err != nil {
			log.Fatalf("Load stage failed: %v", err)
		}
	}
}

// validateFlags rejects flag combinations that would silently do less
// than asked.
func validateFlags(fetchOnly, loadOnly bool, query string) error {
	if fetchOnly && loadOnly {
		return fmt.Errorf("-fetch-only and -load-only are mutually exclusive")
	}
	if fetchOnly && query != "" {
		return fmt.Errorf("-query reads the warehouse and cannot run with -fetch-only")
	}
	return nil
}

// runFetch resolves the universe and drives the bounded fetch. It
// returns an error only for configuration-level problems or a run in
// which nothing could be fetched at all; individual symbol failures
// are reported and tolerated.
func runFetch(ctx context.Context, cfg *config.Config, store *partition.Store, refresh bool, logger *slog.Logger) error {
	apiKey, err := cfg.APIKey()
	if err != nil {
		return err
	}

	symbols, err := universe.Resolve(cfg.SymbolFiles, cfg.Symbols)
	if err != nil {
		return err
	}

	limiter := ratelimit.New(cfg.RequestsPerSec, 1)
	client := tiingo.NewClient(apiKey, cfg.TiingoBaseURL, cfg.StartDate, cfg.EndDate, limiter)

	opts := coordinator.Options{
		MaxConcurrent: cfg.MaxConcurrent,
		Refresh:       refresh,
	}
	if cfg.DailyRefresh {
		now := time.Now()
		opts.FreshSince = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	}

	coord := coordinator.New(client, store, symbols, opts, logger)
	report, err := coord.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Println("================================================")
	fmt.Printf("Fetch complete: %d total, %d skipped, %d succeeded, %d failed\n",
		report.Total, len(report.Skipped), len(report.Succeeded), len(report.Failed))
	for _, f := range report.Failed {
		fmt.Printf("  FAILED %s: %v\n", f.Symbol, f.Err)
	}
	fmt.Println("================================================")

	if len(report.Succeeded) == 0 && len(report.Failed) > 0 {
		return fmt.Errorf("all %d attempted fetches failed", len(report.Failed))
	}
	return nil
}

// runLoad merges every partition into the consolidated table, prints
// the summary, and answers an optional read-only query.
func runLoad(ctx context.Context, cfg *config.Config, store *partition.Store, query string, days int, logger *slog.Logger) error {
	wh, err := warehouse.Open(cfg.DBPath, logger)
	if err != nil {
		return err
	}
	defer wh.Close()

	report, err := wh.Merge(ctx, store)
	if err != nil {
		return err
	}

	summary, err := wh.Summary(ctx)
	if err != nil {
		return err
	}

	fmt.Println("================================================")
	fmt.Printf("Merged %d/%d partitions (%d rows inserted, %d rows rejected)\n",
		report.Merged, report.Partitions, report.RowsInserted, report.RowsRejected)
	for _, sym := range report.Failed {
		fmt.Printf("  REJECTED partition %s\n", sym)
	}
	fmt.Printf("Warehouse: %d tickers, %d rows", summary.Tickers, summary.Rows)
	if summary.MinDate != "" {
		fmt.Printf(", %s to %s", summary.MinDate, summary.MaxDate)
	}
	fmt.Println()
	fmt.Println("================================================")

	if report.Partitions > 0 && report.Merged == 0 {
		return fmt.Errorf("merge rejected all %d partitions", report.Partitions)
	}

	if query != "" {
		points, err := wh.RecentPrices(ctx, universe.Normalize(query), days)
		if err != nil {
			return err
		}
		if len(points) == 0 {
			fmt.Printf("No data for %s\n", query)
			return nil
		}
		fmt.Printf("%-10s %-12s %9s %9s %9s %9s %9s %12s\n",
			"ticker", "date", "open", "high", "low", "close", "adj", "volume")
		for _, p := range points {
			fmt.Printf("%-10s %-12s %9.2f %9.2f %9.2f %9.2f %9.2f %12d\n",
				p.Symbol, p.Day(), p.Open, p.High, p.Low, p.Close, p.AdjClose, p.Volume)
		}
	}

	return nil
}

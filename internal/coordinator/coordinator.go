// Package coordinator drives the bounded fetch stage: it fans the
// ticker universe out across the history source under a fixed
// concurrency ceiling, persists each result as a partition, and
// aggregates per-symbol outcomes into a final report.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"pricestore/internal/fetcher"
	"pricestore/internal/model"
)

// PartitionWriter is the slice of the partition store the coordinator
// needs. Declared here so tests can report existence without real files.
type PartitionWriter interface {
	Has(symbol string) bool
	ModTime(symbol string) (time.Time, bool)
	Write(symbol string, points []model.PricePoint) error
	Remove(symbol string) error
}

// Options configures one fetch run.
type Options struct {
	// MaxConcurrent bounds simultaneous in-flight fetches.
	MaxConcurrent int

	// Refresh forces re-fetch even when a partition already exists.
	Refresh bool

	// FreshSince, when non-zero, treats partitions last written before
	// it as stale: they are re-fetched rather than skipped. The zero
	// value means bare existence is enough to skip.
	FreshSince time.Time
}

// Failure names one symbol that could not be fetched and why.
type Failure struct {
	Symbol string
	Err    error
}

// Report is the deterministic final tally of a fetch run. Symbol lists
// follow universe order regardless of completion order.
type Report struct {
	Total     int
	Skipped   []string
	Succeeded []string
	Failed    []Failure
}

// outcome is one symbol's result, sent from a worker to the collector.
type outcome struct {
	symbol string
	rows   int
	err    error
}

// Coordinator manages the concurrent fetch of a symbol universe.
type Coordinator struct {
	source  fetcher.HistorySource
	store   PartitionWriter
	symbols []string
	opts    Options
	logger  *slog.Logger
}

// New creates a Coordinator for one run over the given universe.
func New(source fetcher.HistorySource, store PartitionWriter, symbols []string, opts Options, logger *slog.Logger) *Coordinator {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		source:  source,
		store:   store,
		symbols: symbols,
		opts:    opts,
		logger:  logger,
	}
}

// Run fetches every symbol that needs fetching and writes partitions.
// One symbol's failure never cancels work for its siblings: the whole
// batch completes and failures come back in the report. The returned
// error covers setup problems only.
func (c *Coordinator) Run(ctx context.Context) (*Report, error) {
	if len(c.symbols) == 0 {
		return nil, fmt.Errorf("no symbols to fetch")
	}

	report := &Report{Total: len(c.symbols)}
	results := make(map[string]outcome, len(c.symbols))

	// Skip decisions happen up front, before any network activity.
	var pending []string
	for _, sym := range c.symbols {
		if !c.opts.Refresh && c.alreadyFetched(sym) {
			report.Skipped = append(report.Skipped, sym)
			continue
		}
		pending = append(pending, sym)
	}

	c.logger.Info("starting fetch run",
		"total", report.Total,
		"skipped", len(report.Skipped),
		"pending", len(pending),
		"max_concurrent", c.opts.MaxConcurrent)

	resultChan := make(chan outcome, len(pending))
	sem := make(chan struct{}, c.opts.MaxConcurrent)

	var wg sync.WaitGroup
	for _, sym := range pending {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()

			// Admission gate: at most MaxConcurrent fetches in flight.
			sem <- struct{}{}
			defer func() { <-sem }()

			resultChan <- c.fetchOne(ctx, symbol)
		}(sym)
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	completed := 0
	for res := range resultChan {
		completed++
		results[res.symbol] = res
		if res.err != nil {
			c.logger.Warn("fetch failed",
				"symbol", res.symbol,
				"progress", fmt.Sprintf("%d/%d", completed, len(pending)),
				"transient", fetcher.IsTransient(res.err),
				"error", res.err)
		} else {
			c.logger.Info("fetched",
				"symbol", res.symbol,
				"progress", fmt.Sprintf("%d/%d", completed, len(pending)),
				"rows", res.rows)
		}
	}

	// Rebuild outcome lists in universe order for a deterministic tally.
	for _, sym := range c.symbols {
		res, ok := results[sym]
		if !ok {
			continue
		}
		if res.err != nil {
			report.Failed = append(report.Failed, Failure{Symbol: sym, Err: res.err})
		} else {
			report.Succeeded = append(report.Succeeded, sym)
		}
	}

	return report, nil
}

// fetchOne retrieves and persists a single symbol's history.
func (c *Coordinator) fetchOne(ctx context.Context, symbol string) outcome {
	points, err := c.source.History(ctx, symbol)
	if err != nil {
		return outcome{symbol: symbol, err: err}
	}

	if len(points) == 0 {
		// Valid empty history: the symbol has no data to persist. In
		// refresh mode the stale partition must not outlive the truth.
		if c.opts.Refresh {
			if err := c.store.Remove(symbol); err != nil {
				return outcome{symbol: symbol, err: err}
			}
		}
		return outcome{symbol: symbol, rows: 0}
	}

	if err := c.store.Write(symbol, points); err != nil {
		return outcome{symbol: symbol, err: fmt.Errorf("persist %s: %w", symbol, err)}
	}

	return outcome{symbol: symbol, rows: len(points)}
}

// alreadyFetched reports whether the symbol's partition is present and,
// in daily-update mode, fresh enough to skip.
func (c *Coordinator) alreadyFetched(symbol string) bool {
	if !c.store.Has(symbol) {
		return false
	}
	if c.opts.FreshSince.IsZero() {
		return true
	}
	mt, ok := c.store.ModTime(symbol)
	return ok && !mt.Before(c.opts.FreshSince)
}

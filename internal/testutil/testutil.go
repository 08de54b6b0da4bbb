// Package testutil provides test doubles for the fetch pipeline.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"pricestore/internal/model"
)

// MockSource is a mock implementation of fetcher.HistorySource.
type MockSource struct {
	HistoryFunc func(ctx context.Context, symbol string) ([]model.PricePoint, error)

	mu    sync.Mutex
	calls []string
}

// History implements the HistorySource interface and records the call.
func (m *MockSource) History(ctx context.Context, symbol string) ([]model.PricePoint, error) {
	m.mu.Lock()
	m.calls = append(m.calls, symbol)
	m.mu.Unlock()

	if m.HistoryFunc != nil {
		return m.HistoryFunc(ctx, symbol)
	}
	return nil, nil
}

// Calls returns the symbols fetched so far, in call order.
func (m *MockSource) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// CallCount returns how many fetches were issued.
func (m *MockSource) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// MemStore is an in-memory partition store. It satisfies both the
// coordinator's writer interface and the warehouse's reader interface,
// so pipeline logic can be tested without touching the filesystem.
type MemStore struct {
	// WriteFunc, when set, is consulted before each Write; a non-nil
	// error is returned without storing anything. Tests use it to
	// inject persistence failures.
	WriteFunc func(symbol string, points []model.PricePoint) error

	mu       sync.Mutex
	data     map[string][]model.PricePoint
	modTimes map[string]time.Time
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		data:     make(map[string][]model.PricePoint),
		modTimes: make(map[string]time.Time),
	}
}

// Seed installs a partition directly, bypassing Write's empty check.
func (s *MemStore) Seed(symbol string, points []model.PricePoint, modTime time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[symbol] = points
	s.modTimes[symbol] = modTime
}

// Has reports whether a non-empty partition exists.
func (s *MemStore) Has(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data[symbol]) > 0
}

// ModTime returns the recorded partition write time.
func (s *MemStore) ModTime(symbol string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.modTimes[symbol]
	return t, ok
}

// Write stores a copy of the points for the symbol.
func (s *MemStore) Write(symbol string, points []model.PricePoint) error {
	if s.WriteFunc != nil {
		if err := s.WriteFunc(symbol, points); err != nil {
			return err
		}
	}
	if len(points) == 0 {
		return fmt.Errorf("refusing to write empty partition for %s", symbol)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[symbol] = append([]model.PricePoint(nil), points...)
	s.modTimes[symbol] = time.Now()
	return nil
}

// Read returns the stored points for the symbol.
func (s *MemStore) Read(symbol string) ([]model.PricePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	points, ok := s.data[symbol]
	if !ok {
		return nil, fmt.Errorf("no partition for %s", symbol)
	}
	return append([]model.PricePoint(nil), points...), nil
}

// Remove deletes the symbol's partition if present.
func (s *MemStore) Remove(symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, symbol)
	delete(s.modTimes, symbol)
	return nil
}

// List returns the stored symbols in sorted order.
func (s *MemStore) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	symbols := make([]string, 0, len(s.data))
	for sym := range s.data {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return symbols, nil
}

// Points builds n consecutive daily rows for a symbol starting at the
// given date, with deterministic prices derived from the row index.
func Points(symbol string, start time.Time, n int) []model.PricePoint {
	points := make([]model.PricePoint, n)
	for i := 0; i < n; i++ {
		base := 100.0 + float64(i)
		points[i] = model.PricePoint{
			Symbol:   symbol,
			Date:     start.AddDate(0, 0, i),
			Open:     base,
			High:     base + 1,
			Low:      base - 1,
			Close:    base + 0.5,
			AdjClose: base + 0.25,
			Volume:   int64(1000 * (i + 1)),
		}
	}
	return points
}

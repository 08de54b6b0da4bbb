// Package partition persists one columnar file per symbol. Partitions
// are the unit of fetch tracking: an existing non-empty partition means
// the symbol's history is already on disk.
package partition

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"pricestore/internal/model"
)

// row is the on-disk parquet schema of one partition file. The symbol
// is carried by the file name, not the rows.
type row struct {
	Date     string  `parquet:"dt"`
	Open     float64 `parquet:"open"`
	High     float64 `parquet:"high"`
	Low      float64 `parquet:"low"`
	Close    float64 `parquet:"close"`
	AdjClose float64 `parquet:"adj_close"`
	Volume   int64   `parquet:"volume"`
}

// Store manages per-symbol parquet partitions under one directory.
// Each concurrent fetch task owns exactly one symbol's file, so the
// store itself needs no locking.
type Store struct {
	dir string
}

// NewStore creates the partition directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create partition dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Path returns the partition file path for a symbol. The name is
// derived from the symbol alone so existence checks never open files.
func (s *Store) Path(symbol string) string {
	return filepath.Join(s.dir, strings.ToLower(symbol)+".parquet")
}

// Has reports whether a non-empty partition exists for the symbol.
func (s *Store) Has(symbol string) bool {
	info, err := os.Stat(s.Path(symbol))
	return err == nil && info.Size() > 0
}

// ModTime returns the partition file's modification time, used for
// staleness checks in daily-update mode.
func (s *Store) ModTime(symbol string) (time.Time, bool) {
	info, err := os.Stat(s.Path(symbol))
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

// Write persists the symbol's full history, ordered by date ascending,
// via temp-write and rename so an interrupted run never leaves a
// truncated partition behind. Writing an empty history is an error;
// absence of a file is how "not fetched" is represented.
func (s *Store) Write(symbol string, points []model.PricePoint) error {
	if len(points) == 0 {
		return fmt.Errorf("refusing to write empty partition for %s", symbol)
	}

	sorted := make([]model.PricePoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	rows := make([]row, len(sorted))
	for i, p := range sorted {
		rows[i] = row{
			Date:     p.Day(),
			Open:     p.Open,
			High:     p.High,
			Low:      p.Low,
			Close:    p.Close,
			AdjClose: p.AdjClose,
			Volume:   p.Volume,
		}
	}

	tmp, err := os.CreateTemp(s.dir, strings.ToLower(symbol)+".parquet.tmp")
	if err != nil {
		return fmt.Errorf("create temp partition for %s: %w", symbol, err)
	}
	tmpName := tmp.Name()
	tmp.Close()

	if err := parquet.WriteFile(tmpName, rows); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write partition for %s: %w", symbol, err)
	}

	if err := os.Rename(tmpName, s.Path(symbol)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("commit partition for %s: %w", symbol, err)
	}

	return nil
}

// Read loads the symbol's partition, rows ordered by date ascending.
func (s *Store) Read(symbol string) ([]model.PricePoint, error) {
	rows, err := parquet.ReadFile[row](s.Path(symbol))
	if err != nil {
		return nil, fmt.Errorf("read partition for %s: %w", symbol, err)
	}

	sym := strings.ToUpper(symbol)
	points := make([]model.PricePoint, 0, len(rows))
	for _, r := range rows {
		date, err := time.Parse("2006-01-02", r.Date)
		if err != nil {
			return nil, fmt.Errorf("partition for %s has bad date %q: %w", symbol, r.Date, err)
		}
		points = append(points, model.PricePoint{
			Symbol:   sym,
			Date:     date,
			Open:     r.Open,
			High:     r.High,
			Low:      r.Low,
			Close:    r.Close,
			AdjClose: r.AdjClose,
			Volume:   r.Volume,
		})
	}

	sort.Slice(points, func(i, j int) bool {
		return points[i].Date.Before(points[j].Date)
	})

	return points, nil
}

// Remove deletes a symbol's partition. Missing files are not an error.
func (s *Store) Remove(symbol string) error {
	err := os.Remove(s.Path(symbol))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove partition for %s: %w", symbol, err)
	}
	return nil
}

// List returns the uppercase symbols of every partition in the store,
// sorted for deterministic merge order.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("scan partition dir %s: %w", s.dir, err)
	}

	var symbols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".parquet") {
			continue
		}
		symbols = append(symbols, strings.ToUpper(strings.TrimSuffix(name, ".parquet")))
	}
	sort.Strings(symbols)
	return symbols, nil
}

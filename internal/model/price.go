package model

import "time"

// PricePoint is one daily OHLCV row for a single symbol.
// At most one PricePoint exists per (Symbol, Date) pair; Date carries
// no time-of-day component.
type PricePoint struct {
	Symbol   string
	Date     time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	AdjClose float64
	Volume   int64
}

// Day returns the calendar date in YYYY-MM-DD form, the canonical
// key format used by partitions and the consolidated table.
func (p PricePoint) Day() string {
	return p.Date.Format("2006-01-02")
}

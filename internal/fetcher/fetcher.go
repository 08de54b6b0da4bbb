package fetcher

import (
	"context"

	"pricestore/internal/model"
)

// HistorySource retrieves the complete available daily history for one
// symbol. Implementations return rows ordered by date ascending; an
// empty slice is a valid result (delisted symbol, no data) and is not
// an error. Errors are *FetchError values so callers can distinguish
// transient from permanent failures.
type HistorySource interface {
	History(ctx context.Context, symbol string) ([]model.PricePoint, error)
}

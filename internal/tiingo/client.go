// Package tiingo implements fetcher.HistorySource against the Tiingo
// end-of-day price API.
package tiingo

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"resty.dev/v3"

	"pricestore/internal/fetcher"
	"pricestore/internal/model"
	"pricestore/internal/ratelimit"
)

// priceRow represents one row of the Tiingo daily-prices response.
// The API also returns adjusted OHLC and corporate-action fields; only
// the columns the store keeps are decoded.
type priceRow struct {
	Date     string  `json:"date"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	AdjClose float64 `json:"adjClose"`
	Volume   int64   `json:"volume"`
}

// Client fetches full daily price history from Tiingo.
type Client struct {
	apiKey    string
	startDate string
	endDate   string
	limiter   *ratelimit.Limiter
	client    *resty.Client
}

// NewClient creates a new Tiingo history client. startDate bounds how
// far back history is requested (YYYY-MM-DD); endDate may be empty for
// "through today". limiter may be nil to disable rate limiting.
func NewClient(apiKey, baseURL, startDate, endDate string, limiter *ratelimit.Limiter) *Client {
	httpClient := fetcher.NewHTTPClient(baseURL)

	// Retries re-enter the token bucket, so a backoff burst stays
	// inside the provider's request budget.
	httpClient.AddRetryHooks(func(r *resty.Response, _ error) {
		_ = limiter.Wait(r.Request.Context())
	})

	return &Client{
		apiKey:    apiKey,
		startDate: startDate,
		endDate:   endDate,
		limiter:   limiter,
		client:    httpClient,
	}
}

// History retrieves the complete daily history for one symbol, ordered
// by date ascending. An empty result is valid and not an error.
func (c *Client) History(ctx context.Context, symbol string) ([]model.PricePoint, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fetcher.NewNetworkError(symbol, err)
	}

	params := map[string]string{
		"startDate": c.startDate,
		"token":     c.apiKey,
	}
	if c.endDate != "" {
		params["endDate"] = c.endDate
	}

	var rows []priceRow
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&rows).
		Get(fmt.Sprintf("/tiingo/daily/%s/prices", strings.ToLower(symbol)))

	if err != nil {
		if ctx.Err() != nil {
			return nil, fetcher.NewTimeoutError(symbol, err)
		}
		return nil, fetcher.NewNetworkError(symbol, err)
	}

	if !resp.IsSuccess() {
		return nil, fetcher.ClassifyHTTPError(symbol, resp.StatusCode())
	}

	points := make([]model.PricePoint, 0, len(rows))
	for _, r := range rows {
		p, err := r.toPoint(symbol)
		if err != nil {
			return nil, fetcher.NewValidationError(symbol, err.Error())
		}
		points = append(points, p)
	}

	sort.Slice(points, func(i, j int) bool {
		return points[i].Date.Before(points[j].Date)
	})

	return points, nil
}

// toPoint converts one API row, rejecting rows the store could not key.
func (r priceRow) toPoint(symbol string) (model.PricePoint, error) {
	date, err := parseDate(r.Date)
	if err != nil {
		return model.PricePoint{}, fmt.Errorf("bad date %q: %w", r.Date, err)
	}
	for _, v := range []float64{r.Open, r.High, r.Low, r.Close, r.AdjClose} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return model.PricePoint{}, fmt.Errorf("non-finite price on %s", r.Date)
		}
	}
	if r.Volume < 0 {
		return model.PricePoint{}, fmt.Errorf("negative volume on %s", r.Date)
	}
	return model.PricePoint{
		Symbol:   strings.ToUpper(symbol),
		Date:     date,
		Open:     r.Open,
		High:     r.High,
		Low:      r.Low,
		Close:    r.Close,
		AdjClose: r.AdjClose,
		Volume:   r.Volume,
	}, nil
}

// parseDate handles both timestamp form ("2014-01-03T00:00:00.000Z")
// and bare date form, truncating to the calendar day.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Parse("2006-01-02", s)
}

package collector

import (
	"context"
	"time"

	"KabuScout/internal/model"
)

// Fetcher is the market data provider. Unknown or unavailable symbols yield an
// empty series with a nil error so callers can treat "no data" uniformly.
type Fetcher interface {
	FetchHistory(ctx context.Context, symbol string, lookbackDays int) (model.PriceSeries, error)
	FetchSince(ctx context.Context, symbol string, start time.Time) (model.PriceSeries, error)
	Name() string
}

package adapter

import (
	"context"
	"time"

	"github.com/portfolio-evaluator/internal/types"
)

// PriceProvider is a live price source addressed by its own coin identifiers
type PriceProvider interface {
	// Name identifies the provider and selects the identifier to pass
	Name() types.Provider
	// SpotPrice returns today's price of coinID in currency
	SpotPrice(ctx context.Context, coinID, currency string) (float64, error)
}

// HistoricalPriceProvider can also price an asset on a past calendar date
type HistoricalPriceProvider interface {
	PriceProvider
	PriceOn(ctx context.Context, coinID string, date time.Time, currency string) (float64, error)
}

// SymbolLookup maps an asset (name, abbreviation) pair to a provider identifier
type SymbolLookup interface {
	Provider() types.Provider
	Lookup(name, abbreviation string) (string, bool)
}

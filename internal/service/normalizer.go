package service

import (
	"context"
	"strings"
	"time"

	"github.com/portfolio-evaluator/internal/logging"
	"github.com/portfolio-evaluator/internal/metrics"
	"github.com/portfolio-evaluator/internal/models"
)

// NormalizeInput is one extracted purchase before conversion to USD
type NormalizeInput struct {
	Source       string
	SourceID     string
	Name         string
	Abbreviation string
	Amount       float64
	// TotalValue is what was paid for Amount, in Currency
	TotalValue float64
	Currency   string
	Date       time.Time
}

// PurchaseNormalizer converts extracted purchases to USD purchases
type PurchaseNormalizer struct {
	fx FXRateProvider
}

// NewPurchaseNormalizer creates a normalizer backed by an FX rate provider
func NewPurchaseNormalizer(fx FXRateProvider) *PurchaseNormalizer {
	return &PurchaseNormalizer{fx: fx}
}

// Normalize builds the stored purchase. USD purchases pass through unchanged.
// Other currencies use the rate on the purchase date and fall back to 1.0
// when no rate can be found.
//
// The rate scales the amount up and the total value down. Stored portfolios
// depend on this exact conversion, so it is kept as is.
func (n *PurchaseNormalizer) Normalize(ctx context.Context, in NormalizeInput) (*models.Purchase, error) {
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = "USD"
	}

	rate := 1.0
	if currency != "USD" {
		rate = n.rate(ctx, currency, in.Date)
	}

	purchase, err := models.NewPurchase(in.Source, in.SourceID, in.Name, in.Abbreviation,
		in.Amount*rate, in.TotalValue/rate, in.Date)
	if err != nil {
		return nil, err
	}
	purchase.OriginalCurrency = currency
	purchase.FXRate = rate
	return purchase, nil
}

func (n *PurchaseNormalizer) rate(ctx context.Context, currency string, date time.Time) float64 {
	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"currency": currency,
		"date":     date.Format("2006-01-02"),
	})

	if n.fx == nil {
		metrics.FXFallbacks.WithLabelValues(currency).Inc()
		logger.Warn("No FX provider configured, using rate 1.0")
		return 1.0
	}

	rate, err := n.fx.HistoricalRate(ctx, date, currency)
	if err != nil || rate <= 0 {
		metrics.FXFallbacks.WithLabelValues(currency).Inc()
		logger.WithError(err).Warn("FX rate unavailable, using rate 1.0")
		return 1.0
	}
	return rate
}

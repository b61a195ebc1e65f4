package models

import (
	"fmt"
	"time"
)

// Purchase is one USD normalized acquisition extracted from a post
type Purchase struct {
	ID                   string    `json:"id" db:"id"`
	Source               string    `json:"source" db:"source"`
	SourceID             string    `json:"sourceId" db:"source_id"`
	Name                 string    `json:"name" db:"name"`
	Abbreviation         string    `json:"abbreviation" db:"abbreviation"`
	Amount               float64   `json:"amount" db:"amount"`
	PurchasePricePerUnit float64   `json:"purchasePricePerUnit" db:"purchase_price_per_unit"`
	TotalPurchaseValue   float64   `json:"totalPurchaseValue" db:"total_purchase_value"`
	PurchaseDate         time.Time `json:"purchaseDate" db:"purchase_date"`
	OriginalCurrency     string    `json:"originalCurrency" db:"original_currency"`
	FXRate               float64   `json:"fxRate" db:"fx_rate"`
	CreatedAt            time.Time `json:"createdAt" db:"created_at"`

	// CurrentPrice is resolved for each evaluation and never persisted
	CurrentPrice float64 `json:"currentPrice,omitempty" db:"-"`
}

// NewPurchase creates a purchase deriving the per unit price from the totals
func NewPurchase(source, sourceID, name, abbreviation string, amount, totalPurchaseValue float64, purchaseDate time.Time) (*Purchase, error) {
	if amount == 0 {
		return nil, fmt.Errorf("purchase of %s has zero amount", abbreviation)
	}
	return &Purchase{
		Source:               source,
		SourceID:             sourceID,
		Name:                 CanonicalName(name),
		Abbreviation:         CanonicalAbbreviation(abbreviation),
		Amount:               amount,
		TotalPurchaseValue:   totalPurchaseValue,
		PurchasePricePerUnit: totalPurchaseValue / amount,
		PurchaseDate:         purchaseDate,
		FXRate:               1.0,
		CreatedAt:            time.Now().UTC(),
	}, nil
}

// Key returns the asset the purchase refers to
func (p *Purchase) Key() AssetKey {
	return KeyOf(p.Name, p.Abbreviation)
}

// SetCurrentPrice records the resolved current price per unit
func (p *Purchase) SetCurrentPrice(price float64) {
	p.CurrentPrice = price
}

// CurrentValue is the current price multiplied by the held amount
func (p *Purchase) CurrentValue() float64 {
	return p.CurrentPrice * p.Amount
}

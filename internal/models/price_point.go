package models

import (
	"strings"
	"time"

	"github.com/portfolio-evaluator/internal/types"
)

// PricePoint is the price of an asset for one ISO week bucket.
// At most one exists per (name, abbreviation, iso_week, iso_year).
type PricePoint struct {
	Name         string    `json:"name" db:"name"`
	Abbreviation string    `json:"abbreviation" db:"abbreviation"`
	ISOWeek      int       `json:"isoWeek" db:"iso_week"`
	ISOYear      int       `json:"isoYear" db:"iso_year"`
	Price        float64   `json:"price" db:"price"`
	Currency     string    `json:"currency" db:"currency"`
	Date         time.Time `json:"date" db:"date"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// NewPricePoint builds a price point with lower-cased identity and currency
func NewPricePoint(key AssetKey, week types.ISOWeek, price float64, currency string, date time.Time) *PricePoint {
	return &PricePoint{
		Name:         key.Name,
		Abbreviation: key.Abbreviation,
		ISOWeek:      week.Week,
		ISOYear:      week.Year,
		Price:        price,
		Currency:     strings.ToLower(currency),
		Date:         date,
		UpdatedAt:    time.Now().UTC(),
	}
}

// Bucket returns the ISO week the price belongs to
func (p *PricePoint) Bucket() types.ISOWeek {
	return types.ISOWeek{Year: p.ISOYear, Week: p.ISOWeek}
}

// Key returns the asset the price belongs to
func (p *PricePoint) Key() AssetKey {
	return KeyOf(p.Name, p.Abbreviation)
}

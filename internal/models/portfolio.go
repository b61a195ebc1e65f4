package models

import (
	"time"

	"github.com/portfolio-evaluator/internal/types"
)

// Portfolio is the evaluated aggregate of the purchases of one post.
// There is exactly one per (source, source_id); evaluations update it in place.
type Portfolio struct {
	Source               string     `json:"source" db:"source"`
	SourceID             string     `json:"sourceId" db:"source_id"`
	TotalInvestment      float64    `json:"totalInvestment" db:"total_investment"`
	StartValue           float64    `json:"startValue" db:"start_value"`
	CurrentValue         float64    `json:"currentValue" db:"current_value"`
	ProfitTotal          float64    `json:"profitTotal" db:"profit_total"`
	ProfitPercentage     float64    `json:"profitPercentage" db:"profit_percentage"`
	BTCIStartAmount      float64    `json:"btciStartAmount" db:"btci_start_amount"`
	BTCICurrentValue     float64    `json:"btciCurrentValue" db:"btci_current_value"`
	BTCIProfitTotal      float64    `json:"btciProfitTotal" db:"btci_profit_total"`
	BTCIProfitPercentage float64    `json:"btciProfitPercentage" db:"btci_profit_percentage"`
	CreatedDate          time.Time  `json:"createdDate" db:"created_date"`
	UpdatedDate          *time.Time `json:"updatedDate,omitempty" db:"updated_date"`

	Purchases []*Purchase `json:"purchases,omitempty" db:"-"`
}

// Evaluation holds the metrics computed by one evaluation run
type Evaluation struct {
	TotalInvestment      float64
	CurrentValue         float64
	ProfitTotal          float64
	ProfitPercentage     float64
	BTCIStartAmount      float64
	BTCICurrentValue     float64
	BTCIProfitTotal      float64
	BTCIProfitPercentage float64
	EvaluatedOn          time.Time
}

// NewPortfolio creates an empty, not yet evaluated portfolio
func NewPortfolio(source, sourceID string, createdDate time.Time) *Portfolio {
	return &Portfolio{
		Source:      source,
		SourceID:    sourceID,
		CreatedDate: createdDate,
	}
}

// AddPurchase attaches a purchase for evaluation
func (p *Portfolio) AddPurchase(purchase *Purchase) {
	p.Purchases = append(p.Purchases, purchase)
}

// ApplyEvaluation overwrites the metrics with an evaluation result
func (p *Portfolio) ApplyEvaluation(e Evaluation) {
	p.TotalInvestment = e.TotalInvestment
	p.StartValue = e.TotalInvestment
	p.CurrentValue = e.CurrentValue
	p.ProfitTotal = e.ProfitTotal
	p.ProfitPercentage = e.ProfitPercentage
	p.BTCIStartAmount = e.BTCIStartAmount
	p.BTCICurrentValue = e.BTCICurrentValue
	p.BTCIProfitTotal = e.BTCIProfitTotal
	p.BTCIProfitPercentage = e.BTCIProfitPercentage
	evaluatedOn := e.EvaluatedOn
	p.UpdatedDate = &evaluatedOn
}

// Evaluated reports whether the portfolio has been evaluated at least once
func (p *Portfolio) Evaluated() bool {
	return p.UpdatedDate != nil
}

// CreatedWeek is the ISO week the benchmark start price is taken from
func (p *Portfolio) CreatedWeek() types.ISOWeek {
	return types.ISOWeekOf(p.CreatedDate)
}

// EvaluationSnapshot is one row of evaluation history
type EvaluationSnapshot struct {
	Source               string    `json:"source" ch:"source"`
	SourceID             string    `json:"sourceId" ch:"source_id"`
	EvaluatedAt          time.Time `json:"evaluatedAt" ch:"evaluated_at"`
	TotalInvestment      float64   `json:"totalInvestment" ch:"total_investment"`
	CurrentValue         float64   `json:"currentValue" ch:"current_value"`
	ProfitTotal          float64   `json:"profitTotal" ch:"profit_total"`
	ProfitPercentage     float64   `json:"profitPercentage" ch:"profit_percentage"`
	BTCICurrentValue     float64   `json:"btciCurrentValue" ch:"btci_current_value"`
	BTCIProfitPercentage float64   `json:"btciProfitPercentage" ch:"btci_profit_percentage"`
	BenchmarkPriceStart  float64   `json:"benchmarkPriceStart" ch:"benchmark_price_start"`
	BenchmarkPriceNow    float64   `json:"benchmarkPriceNow" ch:"benchmark_price_now"`
	PurchaseCount        uint32    `json:"purchaseCount" ch:"purchase_count"`
}

// SnapshotOf builds a history row from an evaluated portfolio
func SnapshotOf(p *Portfolio, evaluatedAt time.Time, benchmarkStart, benchmarkNow float64) EvaluationSnapshot {
	return EvaluationSnapshot{
		Source:               p.Source,
		SourceID:             p.SourceID,
		EvaluatedAt:          evaluatedAt,
		TotalInvestment:      p.TotalInvestment,
		CurrentValue:         p.CurrentValue,
		ProfitTotal:          p.ProfitTotal,
		ProfitPercentage:     p.ProfitPercentage,
		BTCICurrentValue:     p.BTCICurrentValue,
		BTCIProfitPercentage: p.BTCIProfitPercentage,
		BenchmarkPriceStart:  benchmarkStart,
		BenchmarkPriceNow:    benchmarkNow,
		PurchaseCount:        uint32(len(p.Purchases)),
	}
}

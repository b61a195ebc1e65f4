package storage

import (
	"context"
	"fmt"

	"github.com/portfolio-evaluator/internal/models"
)

// EvaluationHistoryRepository appends evaluation snapshots to ClickHouse
type EvaluationHistoryRepository struct {
	db *ClickHouseDB
}

// NewEvaluationHistoryRepository creates a new evaluation history repository
func NewEvaluationHistoryRepository(db *ClickHouseDB) *EvaluationHistoryRepository {
	return &EvaluationHistoryRepository{db: db}
}

// Append writes one snapshot
func (r *EvaluationHistoryRepository) Append(ctx context.Context, s models.EvaluationSnapshot) error {
	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO portfolio_evaluations (
			source, source_id, evaluated_at, total_investment, current_value,
			profit_total, profit_percentage, btci_current_value, btci_profit_percentage,
			benchmark_price_start, benchmark_price_now, purchase_count
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	if err := batch.Append(
		s.Source,
		s.SourceID,
		s.EvaluatedAt,
		s.TotalInvestment,
		s.CurrentValue,
		s.ProfitTotal,
		s.ProfitPercentage,
		s.BTCICurrentValue,
		s.BTCIProfitPercentage,
		s.BenchmarkPriceStart,
		s.BenchmarkPriceNow,
		s.PurchaseCount,
	); err != nil {
		_ = batch.Abort()
		return fmt.Errorf("failed to append snapshot: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

// List returns the snapshots of a portfolio, newest first
func (r *EvaluationHistoryRepository) List(ctx context.Context, source, sourceID string, limit int) ([]models.EvaluationSnapshot, error) {
	if limit <= 0 {
		limit = 100
	}

	var snapshots []models.EvaluationSnapshot
	err := r.db.Conn().Select(ctx, &snapshots, `
		SELECT
			source, source_id, evaluated_at, total_investment, current_value,
			profit_total, profit_percentage, btci_current_value, btci_profit_percentage,
			benchmark_price_start, benchmark_price_now, purchase_count
		FROM portfolio_evaluations
		WHERE source = ? AND source_id = ?
		ORDER BY evaluated_at DESC
		LIMIT ?
	`, source, sourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query evaluation history: %w", err)
	}
	return snapshots, nil
}

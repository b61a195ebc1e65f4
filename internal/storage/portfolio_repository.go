package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	apperrors "github.com/portfolio-evaluator/internal/errors"
	"github.com/portfolio-evaluator/internal/models"
)

const portfolioColumns = `source, source_id, total_investment, start_value, current_value, profit_total,
	profit_percentage, btci_start_amount, btci_current_value, btci_profit_total,
	btci_profit_percentage, created_date, updated_date`

// PortfolioRepository handles portfolio persistence. One row exists per
// (source, source_id); evaluations update it in place.
type PortfolioRepository struct {
	db DBTX
}

// NewPortfolioRepository creates a new portfolio repository
func NewPortfolioRepository(db DBTX) *PortfolioRepository {
	return &PortfolioRepository{db: db}
}

// Exists reports whether a portfolio row exists for the post
func (r *PortfolioRepository) Exists(ctx context.Context, source, sourceID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM portfolios WHERE source = $1 AND source_id = $2)
	`, source, sourceID).Scan(&exists)
	if err != nil {
		return false, apperrors.NewDatabaseError("check portfolio", err)
	}
	return exists, nil
}

// InsertIfAbsent creates the empty portfolio row. Reports whether a row was inserted.
func (r *PortfolioRepository) InsertIfAbsent(ctx context.Context, portfolio *models.Portfolio) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO portfolios (`+portfolioColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (source, source_id) DO NOTHING
	`, portfolioArgs(portfolio)...)
	if err != nil {
		return false, apperrors.NewDatabaseError("create portfolio", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Get returns a portfolio without purchases, or a NotFound error
func (r *PortfolioRepository) Get(ctx context.Context, source, sourceID string) (*models.Portfolio, error) {
	var p models.Portfolio
	err := r.db.QueryRow(ctx, `
		SELECT `+portfolioColumns+`
		FROM portfolios
		WHERE source = $1 AND source_id = $2
	`, source, sourceID).Scan(
		&p.Source,
		&p.SourceID,
		&p.TotalInvestment,
		&p.StartValue,
		&p.CurrentValue,
		&p.ProfitTotal,
		&p.ProfitPercentage,
		&p.BTCIStartAmount,
		&p.BTCICurrentValue,
		&p.BTCIProfitTotal,
		&p.BTCIProfitPercentage,
		&p.CreatedDate,
		&p.UpdatedDate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("portfolio", source+"/"+sourceID)
		}
		return nil, apperrors.NewDatabaseError("get portfolio", err)
	}
	return &p, nil
}

// UpdateMetrics overwrites the evaluation metrics of an existing portfolio
func (r *PortfolioRepository) UpdateMetrics(ctx context.Context, portfolio *models.Portfolio) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE portfolios SET
			total_investment = $3,
			start_value = $4,
			current_value = $5,
			profit_total = $6,
			profit_percentage = $7,
			btci_start_amount = $8,
			btci_current_value = $9,
			btci_profit_total = $10,
			btci_profit_percentage = $11,
			updated_date = $12
		WHERE source = $1 AND source_id = $2
	`,
		portfolio.Source,
		portfolio.SourceID,
		portfolio.TotalInvestment,
		portfolio.StartValue,
		portfolio.CurrentValue,
		portfolio.ProfitTotal,
		portfolio.ProfitPercentage,
		portfolio.BTCIStartAmount,
		portfolio.BTCICurrentValue,
		portfolio.BTCIProfitTotal,
		portfolio.BTCIProfitPercentage,
		portfolio.UpdatedDate,
	)
	if err != nil {
		return apperrors.NewDatabaseError("update portfolio", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("portfolio", fmt.Sprintf("%s/%s", portfolio.Source, portfolio.SourceID))
	}
	return nil
}

func portfolioArgs(p *models.Portfolio) []any {
	return []any{
		p.Source,
		p.SourceID,
		p.TotalInvestment,
		p.StartValue,
		p.CurrentValue,
		p.ProfitTotal,
		p.ProfitPercentage,
		p.BTCIStartAmount,
		p.BTCICurrentValue,
		p.BTCIProfitTotal,
		p.BTCIProfitPercentage,
		p.CreatedDate,
		p.UpdatedDate,
	}
}

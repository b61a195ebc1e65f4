package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/portfolio-evaluator/internal/models"
)

// PortfolioRecorder initializes a portfolio and stores its purchases in one transaction
type PortfolioRecorder struct {
	db *PostgresDB
}

// NewPortfolioRecorder creates a new portfolio recorder
func NewPortfolioRecorder(db *PostgresDB) *PortfolioRecorder {
	return &PortfolioRecorder{db: db}
}

// Record writes the post's processing flags, the empty portfolio row and its
// purchases together. When a portfolio already exists for the post only the
// flags are written and false is returned.
func (r *PortfolioRecorder) Record(ctx context.Context, post *models.SourcePost, portfolio *models.Portfolio, purchases []*models.Purchase) (bool, error) {
	inserted := false
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := NewSourcePostRepository(tx).UpdateStatus(ctx, post); err != nil {
			return err
		}

		ok, err := NewPortfolioRepository(tx).InsertIfAbsent(ctx, portfolio)
		if err != nil || !ok {
			return err
		}

		purchaseRepo := NewPurchaseRepository(tx)
		for _, purchase := range purchases {
			if err := purchaseRepo.Create(ctx, purchase); err != nil {
				return err
			}
		}
		inserted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/portfolio-evaluator/internal/errors"
	"github.com/portfolio-evaluator/internal/models"
)

const purchaseColumns = `id, source, source_id, name, abbreviation, amount, purchase_price_per_unit,
	total_purchase_value, purchase_date, original_currency, fx_rate, created_at`

// PurchaseRepository persists normalized purchases. Purchases are immutable once written.
type PurchaseRepository struct {
	db DBTX
}

// NewPurchaseRepository creates a new purchase repository
func NewPurchaseRepository(db DBTX) *PurchaseRepository {
	return &PurchaseRepository{db: db}
}

// Create inserts a purchase, assigning it an id when it has none
func (r *PurchaseRepository) Create(ctx context.Context, purchase *models.Purchase) error {
	if purchase.ID == "" {
		purchase.ID = uuid.New().String()
	}
	if purchase.CreatedAt.IsZero() {
		purchase.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO purchases (`+purchaseColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		purchase.ID,
		purchase.Source,
		purchase.SourceID,
		purchase.Name,
		purchase.Abbreviation,
		purchase.Amount,
		purchase.PurchasePricePerUnit,
		purchase.TotalPurchaseValue,
		purchase.PurchaseDate,
		purchase.OriginalCurrency,
		purchase.FXRate,
		purchase.CreatedAt,
	)
	if err != nil {
		return apperrors.NewDatabaseError("create purchase", err)
	}
	return nil
}

// ListBySource returns the purchases of a post in insertion order
func (r *PurchaseRepository) ListBySource(ctx context.Context, source, sourceID string) ([]*models.Purchase, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+purchaseColumns+`
		FROM purchases
		WHERE source = $1 AND source_id = $2
		ORDER BY created_at ASC, id ASC
	`, source, sourceID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list purchases", err)
	}
	defer rows.Close()

	var purchases []*models.Purchase
	for rows.Next() {
		var p models.Purchase
		if err := rows.Scan(
			&p.ID,
			&p.Source,
			&p.SourceID,
			&p.Name,
			&p.Abbreviation,
			&p.Amount,
			&p.PurchasePricePerUnit,
			&p.TotalPurchaseValue,
			&p.PurchaseDate,
			&p.OriginalCurrency,
			&p.FXRate,
			&p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		purchases = append(purchases, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("list purchases", err)
	}
	return purchases, nil
}

// CountBySource returns how many purchases a post has
func (r *PurchaseRepository) CountBySource(ctx context.Context, source, sourceID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM purchases WHERE source = $1 AND source_id = $2
	`, source, sourceID).Scan(&count)
	if err != nil {
		return 0, apperrors.NewDatabaseError("count purchases", err)
	}
	return count, nil
}

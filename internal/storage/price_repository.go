package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	apperrors "github.com/portfolio-evaluator/internal/errors"
	"github.com/portfolio-evaluator/internal/models"
	"github.com/portfolio-evaluator/internal/types"
)

const pricePointColumns = `name, abbreviation, iso_week, iso_year, price, currency, date, updated_at`

// PriceRepository stores one price per asset per ISO week bucket
type PriceRepository struct {
	db DBTX
}

// NewPriceRepository creates a new price repository
func NewPriceRepository(db DBTX) *PriceRepository {
	return &PriceRepository{db: db}
}

func scanPricePoint(row pgx.Row) (*models.PricePoint, error) {
	var p models.PricePoint
	err := row.Scan(&p.Name, &p.Abbreviation, &p.ISOWeek, &p.ISOYear, &p.Price, &p.Currency, &p.Date, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// IsTracked reports whether any price exists for the asset
func (r *PriceRepository) IsTracked(ctx context.Context, key models.AssetKey) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM price_points WHERE name = $1 AND abbreviation = $2)
	`, key.Name, key.Abbreviation).Scan(&exists)
	if err != nil {
		return false, apperrors.NewDatabaseError("check price tracked", err)
	}
	return exists, nil
}

// Upsert writes the price for (asset, week). A second write for the same
// bucket overwrites price, currency and date.
func (r *PriceRepository) Upsert(ctx context.Context, point *models.PricePoint) error {
	point.UpdatedAt = time.Now().UTC()

	_, err := r.db.Exec(ctx, `
		INSERT INTO price_points (`+pricePointColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (name, abbreviation, iso_week, iso_year)
		DO UPDATE SET
			price = EXCLUDED.price,
			currency = EXCLUDED.currency,
			date = EXCLUDED.date,
			updated_at = EXCLUDED.updated_at
	`,
		point.Name,
		point.Abbreviation,
		point.ISOWeek,
		point.ISOYear,
		point.Price,
		point.Currency,
		point.Date,
		point.UpdatedAt,
	)
	if err != nil {
		return apperrors.NewDatabaseError("upsert price point", err)
	}
	return nil
}

// Get returns the price for (asset, week) or a NotFound error
func (r *PriceRepository) Get(ctx context.Context, key models.AssetKey, week types.ISOWeek) (*models.PricePoint, error) {
	query := `SELECT ` + pricePointColumns + `
		FROM price_points
		WHERE name = $1 AND abbreviation = $2 AND iso_week = $3 AND iso_year = $4`

	point, err := scanPricePoint(r.db.QueryRow(ctx, query, key.Name, key.Abbreviation, week.Week, week.Year))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("price point", fmt.Sprintf("%s %s", key, week))
		}
		return nil, apperrors.NewDatabaseError("get price point", err)
	}
	return point, nil
}

// ListTrackedWeeks returns the set of weeks that already hold a price for the asset
func (r *PriceRepository) ListTrackedWeeks(ctx context.Context, key models.AssetKey) (map[types.ISOWeek]bool, error) {
	rows, err := r.db.Query(ctx, `
		SELECT iso_year, iso_week FROM price_points WHERE name = $1 AND abbreviation = $2
	`, key.Name, key.Abbreviation)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list tracked weeks", err)
	}
	defer rows.Close()

	weeks := make(map[types.ISOWeek]bool)
	for rows.Next() {
		var w types.ISOWeek
		if err := rows.Scan(&w.Year, &w.Week); err != nil {
			return nil, fmt.Errorf("failed to scan tracked week: %w", err)
		}
		weeks[w] = true
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("list tracked weeks", err)
	}
	return weeks, nil
}

// ListForAsset returns the asset's prices, newest bucket first, optionally
// filtered to one ISO year (year 0 means all) and limited
func (r *PriceRepository) ListForAsset(ctx context.Context, key models.AssetKey, year, limit int) ([]*models.PricePoint, error) {
	if limit <= 0 {
		limit = 104
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+pricePointColumns+`
		FROM price_points
		WHERE name = $1 AND abbreviation = $2 AND ($3 = 0 OR iso_year = $3)
		ORDER BY iso_year DESC, iso_week DESC
		LIMIT $4
	`, key.Name, key.Abbreviation, year, limit)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list price points", err)
	}
	defer rows.Close()

	var points []*models.PricePoint
	for rows.Next() {
		point, err := scanPricePoint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan price point: %w", err)
		}
		points = append(points, point)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("list price points", err)
	}
	return points, nil
}

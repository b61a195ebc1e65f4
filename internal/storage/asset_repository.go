package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	apperrors "github.com/portfolio-evaluator/internal/errors"
	"github.com/portfolio-evaluator/internal/models"
)

const assetColumns = `name, abbreviation, coin_gecko_id, coin_market_cap_id, created_at, updated_at`

// AssetRepository handles asset persistence. Assets are keyed case-insensitively
// by (name, abbreviation).
type AssetRepository struct {
	db DBTX
}

// NewAssetRepository creates a new asset repository
func NewAssetRepository(db DBTX) *AssetRepository {
	return &AssetRepository{db: db}
}

func scanAsset(row pgx.Row) (*models.Asset, error) {
	var a models.Asset
	err := row.Scan(&a.Name, &a.Abbreviation, &a.CoinGeckoID, &a.CoinMarketCapID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetByKey returns the asset for (name, abbreviation) or a NotFound error
func (r *AssetRepository) GetByKey(ctx context.Context, key models.AssetKey) (*models.Asset, error) {
	query := `SELECT ` + assetColumns + `
		FROM assets
		WHERE lower(name) = $1 AND lower(abbreviation) = $2`

	asset, err := scanAsset(r.db.QueryRow(ctx, query, key.Name, key.Abbreviation))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("asset", key.String())
		}
		return nil, apperrors.NewDatabaseError("get asset", err)
	}
	return asset, nil
}

// Exists reports whether an asset is tracked
func (r *AssetRepository) Exists(ctx context.Context, key models.AssetKey) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM assets WHERE lower(name) = $1 AND lower(abbreviation) = $2)
	`, key.Name, key.Abbreviation).Scan(&exists)
	if err != nil {
		return false, apperrors.NewDatabaseError("check asset", err)
	}
	return exists, nil
}

// Create inserts an asset unless one with the same key exists. Reports whether a row was inserted.
func (r *AssetRepository) Create(ctx context.Context, asset *models.Asset) (bool, error) {
	now := time.Now().UTC()
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = now
	}
	asset.UpdatedAt = now

	tag, err := r.db.Exec(ctx, `
		INSERT INTO assets (`+assetColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT DO NOTHING
	`,
		asset.Name,
		asset.Abbreviation,
		asset.CoinGeckoID,
		asset.CoinMarketCapID,
		asset.CreatedAt,
		asset.UpdatedAt,
	)
	if err != nil {
		return false, apperrors.NewDatabaseError("create asset", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateIdentifiers fills provider identifiers that are still NULL
func (r *AssetRepository) UpdateIdentifiers(ctx context.Context, asset *models.Asset) error {
	_, err := r.db.Exec(ctx, `
		UPDATE assets SET
			coin_gecko_id = COALESCE(coin_gecko_id, $3),
			coin_market_cap_id = COALESCE(coin_market_cap_id, $4),
			updated_at = $5
		WHERE lower(name) = lower($1) AND lower(abbreviation) = lower($2)
	`,
		asset.Name,
		asset.Abbreviation,
		asset.CoinGeckoID,
		asset.CoinMarketCapID,
		time.Now().UTC(),
	)
	if err != nil {
		return apperrors.NewDatabaseError("update asset identifiers", err)
	}
	return nil
}

// List returns every tracked asset ordered by abbreviation
func (r *AssetRepository) List(ctx context.Context) ([]*models.Asset, error) {
	rows, err := r.db.Query(ctx, `SELECT `+assetColumns+` FROM assets ORDER BY abbreviation, name`)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list assets", err)
	}
	defer rows.Close()

	var assets []*models.Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("list assets", err)
	}
	return assets, nil
}

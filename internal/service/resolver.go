package service

import (
	"context"

	"github.com/portfolio-evaluator/internal/adapter"
	apperrors "github.com/portfolio-evaluator/internal/errors"
	"github.com/portfolio-evaluator/internal/logging"
	"github.com/portfolio-evaluator/internal/models"
	"github.com/portfolio-evaluator/internal/types"
)

// PriceResolver maps (name, abbreviation) to provider coin identifiers.
// The asset store is always consulted before any symbol table.
type PriceResolver struct {
	assets  AssetStore
	symbols []adapter.SymbolLookup
}

// NewPriceResolver creates a resolver over the given provider symbol tables
func NewPriceResolver(assets AssetStore, symbols ...adapter.SymbolLookup) *PriceResolver {
	return &PriceResolver{assets: assets, symbols: symbols}
}

// IsTracked reports whether the asset already exists in the store
func (r *PriceResolver) IsTracked(ctx context.Context, name, abbreviation string) (bool, error) {
	_, err := r.assets.GetByKey(ctx, models.KeyOf(name, abbreviation))
	if err == nil {
		return true, nil
	}
	if apperrors.IsCategory(err, apperrors.CategoryNotFound) {
		return false, nil
	}
	return false, err
}

// Resolve returns the provider identifiers of an asset. A tracked asset is
// answered from the store without consulting the symbol tables. An untracked
// asset is looked up in every symbol table and persisted with whatever
// identifiers were found. AssetNotFound is returned when no table knows it.
func (r *PriceResolver) Resolve(ctx context.Context, name, abbreviation string) (types.ProviderIDs, error) {
	key := models.KeyOf(name, abbreviation)
	asset, err := r.assets.GetByKey(ctx, key)
	if err == nil {
		return asset.ProviderIDs(), nil
	}
	if !apperrors.IsCategory(err, apperrors.CategoryNotFound) {
		return nil, err
	}

	ids := r.lookup(name, abbreviation)
	if len(ids) == 0 {
		return nil, apperrors.NewAssetNotFoundError(name, abbreviation)
	}

	asset = models.NewAsset(name, abbreviation, ids)
	inserted, err := r.assets.Create(ctx, asset)
	if err != nil {
		return nil, err
	}

	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"asset":     key.String(),
		"providers": len(ids),
	})
	if !inserted {
		// created concurrently; the stored row wins
		stored, err := r.assets.GetByKey(ctx, key)
		if err != nil {
			return nil, err
		}
		if stored.BackfillIdentifiers(ids) {
			if err := r.assets.UpdateIdentifiers(ctx, stored); err != nil {
				return nil, err
			}
		}
		logger.Debug("Asset was tracked concurrently")
		return stored.ProviderIDs(), nil
	}

	logger.Info("Tracking new asset")
	return asset.ProviderIDs(), nil
}

func (r *PriceResolver) lookup(name, abbreviation string) types.ProviderIDs {
	ids := types.ProviderIDs{}
	for _, table := range r.symbols {
		if id, ok := table.Lookup(name, abbreviation); ok {
			ids[table.Provider()] = id
		}
	}
	return ids
}

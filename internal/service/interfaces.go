package service

import (
	"context"
	"time"

	"github.com/portfolio-evaluator/internal/adapter"
	"github.com/portfolio-evaluator/internal/models"
	"github.com/portfolio-evaluator/internal/types"
)

// Repository interfaces for dependency injection

// AssetStore persists tracked assets
type AssetStore interface {
	GetByKey(ctx context.Context, key models.AssetKey) (*models.Asset, error)
	Create(ctx context.Context, asset *models.Asset) (bool, error)
	UpdateIdentifiers(ctx context.Context, asset *models.Asset) error
	List(ctx context.Context) ([]*models.Asset, error)
}

// PriceStore holds one price per asset per ISO week
type PriceStore interface {
	IsTracked(ctx context.Context, key models.AssetKey) (bool, error)
	Upsert(ctx context.Context, point *models.PricePoint) error
	Get(ctx context.Context, key models.AssetKey, week types.ISOWeek) (*models.PricePoint, error)
	ListTrackedWeeks(ctx context.Context, key models.AssetKey) (map[types.ISOWeek]bool, error)
}

// SourcePostStore persists fetched posts and their processing flags
type SourcePostStore interface {
	Upsert(ctx context.Context, post *models.SourcePost) error
	Get(ctx context.Context, source, sourceID string) (*models.SourcePost, error)
	UpdateStatus(ctx context.Context, post *models.SourcePost) error
	ListUnprocessed(ctx context.Context, source string, limit int) ([]*models.SourcePost, error)
}

// PortfolioStore persists one portfolio row per post
type PortfolioStore interface {
	Exists(ctx context.Context, source, sourceID string) (bool, error)
	InsertIfAbsent(ctx context.Context, portfolio *models.Portfolio) (bool, error)
	Get(ctx context.Context, source, sourceID string) (*models.Portfolio, error)
	UpdateMetrics(ctx context.Context, portfolio *models.Portfolio) error
}

// PortfolioRecorder atomically stores a portfolio post's flags together with
// its portfolio and purchases. It reports false when the portfolio already
// existed and only the flags were written.
type PortfolioRecorder interface {
	Record(ctx context.Context, post *models.SourcePost, portfolio *models.Portfolio, purchases []*models.Purchase) (bool, error)
}

// PurchaseStore persists normalized purchases
type PurchaseStore interface {
	Create(ctx context.Context, purchase *models.Purchase) error
	ListBySource(ctx context.Context, source, sourceID string) ([]*models.Purchase, error)
}

// EvaluationHistory records every successful evaluation
type EvaluationHistory interface {
	Append(ctx context.Context, snapshot models.EvaluationSnapshot) error
	List(ctx context.Context, source, sourceID string, limit int) ([]models.EvaluationSnapshot, error)
}

// External collaborators

// VisionModel describes images and completes text prompts
type VisionModel interface {
	Describe(ctx context.Context, image []byte, mimeType, prompt string) (string, error)
	Complete(ctx context.Context, prompt string) (string, error)
}

// ImageSource downloads post images
type ImageSource interface {
	Fetch(ctx context.Context, url string) (*adapter.Image, error)
}

// PostSource fetches raw posts from the platform
type PostSource interface {
	FetchPost(ctx context.Context, url string) (*models.SourcePost, error)
	NewPosts(ctx context.Context, community string, limit int) ([]*models.SourcePost, error)
}

// FXRateProvider returns how many USD one unit of base was worth on date
type FXRateProvider interface {
	HistoricalRate(ctx context.Context, date time.Time, base string) (float64, error)
}

// SpotPriceCache is the optional read-through cache used for spot prices
type SpotPriceCache interface {
	GenerateSpotPriceKey(key models.AssetKey, currency string, day time.Time) string
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

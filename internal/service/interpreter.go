package service

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/portfolio-evaluator/internal/errors"
	"github.com/portfolio-evaluator/internal/logging"
	"github.com/portfolio-evaluator/internal/metrics"
	"github.com/portfolio-evaluator/internal/models"
)

// PurchaseRecord is one purchase extracted from an image, before USD normalization
type PurchaseRecord struct {
	Name         string  `json:"name"`
	Abbreviation string  `json:"abbreviation"`
	Amount       float64 `json:"amount"`
	// Price is the total paid for the position in Currency
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
}

// Interpretation is the result of interpreting one image or a whole post
type Interpretation struct {
	IsPortfolio bool             `json:"isPortfolio"`
	Purchases   []PurchaseRecord `json:"purchases"`
}

// PostInterpreter runs the two stage extraction protocol against a vision model
type PostInterpreter struct {
	model  VisionModel
	images ImageSource
}

// NewPostInterpreter creates a post interpreter
func NewPostInterpreter(model VisionModel, images ImageSource) *PostInterpreter {
	return &PostInterpreter{model: model, images: images}
}

// InterpretImage downloads one image and runs both stages on it
func (i *PostInterpreter) InterpretImage(ctx context.Context, imageURL string) (*Interpretation, error) {
	img, err := i.images.Fetch(ctx, imageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}

	description, err := i.model.Describe(ctx, img.Data, img.MimeType, describeImagePrompt)
	if err != nil {
		return nil, fmt.Errorf("description stage failed: %w", err)
	}

	return i.InterpretDescription(ctx, description)
}

// InterpretDescription runs the structuring stage on a stage 1 answer
func (i *PostInterpreter) InterpretDescription(ctx context.Context, description string) (*Interpretation, error) {
	answer, err := i.model.Complete(ctx, structurePrompt(description))
	if err != nil {
		return nil, fmt.Errorf("structuring stage failed: %w", err)
	}

	result, err := ParseModelJSON(answer)
	if err != nil {
		return nil, err
	}

	interpretation := &Interpretation{Purchases: make([]PurchaseRecord, 0, len(result.Purchases))}
	for _, p := range result.Purchases {
		record := PurchaseRecord{
			Name:         strings.TrimSpace(p.Name),
			Abbreviation: strings.TrimSpace(p.Abbreviation),
			Amount:       float64(p.Amount),
			Price:        float64(p.Price),
			Currency:     strings.ToUpper(strings.TrimSpace(p.Currency)),
		}
		if record.Currency == "" {
			record.Currency = "USD"
		}
		if record.Abbreviation == "" || record.Amount <= 0 {
			logging.FromContext(ctx).WithFields(map[string]interface{}{
				"name":         record.Name,
				"abbreviation": record.Abbreviation,
				"amount":       record.Amount,
			}).Debug("Dropping purchase without abbreviation or amount")
			continue
		}
		interpretation.Purchases = append(interpretation.Purchases, record)
	}
	interpretation.IsPortfolio = *result.IsPortfolio && len(interpretation.Purchases) > 0
	if !interpretation.IsPortfolio {
		interpretation.Purchases = nil
	}
	return interpretation, nil
}

// InterpretPost interprets every image of a post. Any failing image aborts
// the whole post and no partial purchases are returned. The post is a
// portfolio when the concatenated purchase list is non-empty.
func (i *PostInterpreter) InterpretPost(ctx context.Context, post *models.SourcePost) (*Interpretation, error) {
	urls := post.ImageURLs()
	logger := logging.FromContext(ctx).WithField("images", len(urls))

	var purchases []PurchaseRecord
	for idx, url := range urls {
		result, err := i.InterpretImage(ctx, url)
		if err != nil {
			metrics.ObserveStage("interpret_image", err)
			logger.WithError(err).WithField("image", idx+1).Warn("Image interpretation failed, aborting post")
			return nil, apperrors.NewExtractionError(post.SourceID, fmt.Errorf("image %d of %d: %w", idx+1, len(urls), err))
		}
		metrics.ObserveStage("interpret_image", nil)
		purchases = append(purchases, result.Purchases...)
	}

	logger.WithField("purchases", len(purchases)).Info("Post interpreted")
	return &Interpretation{
		IsPortfolio: len(purchases) > 0,
		Purchases:   purchases,
	}, nil
}

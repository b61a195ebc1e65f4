package models

import (
	"time"

	"github.com/portfolio-evaluator/internal/types"
)

// SourcePost is a social media post that may describe a portfolio
type SourcePost struct {
	Source            string    `json:"source" db:"source"`
	SourceID          string    `json:"sourceId" db:"source_id"`
	Title             string    `json:"title" db:"title"`
	Author            string    `json:"author" db:"author"`
	Community         string    `json:"community" db:"community"`
	Permalink         string    `json:"permalink" db:"permalink"`
	CreatedUTC        time.Time `json:"createdUtc" db:"created_utc"`
	CreatedDate       time.Time `json:"createdDate" db:"created_date"`
	IsGallery         bool      `json:"isGallery" db:"is_gallery"`
	GalleryImageURLs  []string  `json:"galleryImageUrls" db:"gallery_image_urls"`
	IsDirectImagePost bool      `json:"isDirectImagePost" db:"is_direct_image_post"`
	ImagePostURLs     []string  `json:"imagePostUrls" db:"image_post_urls"`
	Processed         bool      `json:"processed" db:"processed"`
	IsPortfolio       bool      `json:"isPortfolio" db:"is_portfolio"`
	Failed            bool      `json:"failed" db:"failed"`
	FetchedAt         time.Time `json:"fetchedAt" db:"fetched_at"`
	UpdatedAt         time.Time `json:"updatedAt" db:"updated_at"`
}

// ImageURLs returns the images that should be interpreted for the post
func (p *SourcePost) ImageURLs() []string {
	if p.IsGallery {
		return p.GalleryImageURLs
	}
	if p.IsDirectImagePost {
		return p.ImagePostURLs
	}
	return nil
}

// MarkInterpreted records a completed interpretation
func (p *SourcePost) MarkInterpreted(isPortfolio bool) {
	p.Processed = true
	p.IsPortfolio = isPortfolio
	p.Failed = false
	p.UpdatedAt = time.Now().UTC()
}

// MarkFailed records an interpretation that could not determine portfolio-ness
func (p *SourcePost) MarkFailed() {
	p.Processed = true
	p.IsPortfolio = false
	p.Failed = true
	p.UpdatedAt = time.Now().UTC()
}

// State returns the pipeline state implied by the processing flags
func (p *SourcePost) State() types.PipelineState {
	if !p.Processed {
		return types.StateFetched
	}
	return types.StateInterpreted
}

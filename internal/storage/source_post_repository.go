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

const sourcePostColumns = `source, source_id, title, author, community, permalink, created_utc, created_date,
	is_gallery, gallery_image_urls, is_direct_image_post, image_post_urls,
	processed, is_portfolio, failed, fetched_at, updated_at`

// SourcePostRepository persists fetched posts and their processing flags.
// Image URL lists are stored as JSONB arrays.
type SourcePostRepository struct {
	db DBTX
}

// NewSourcePostRepository creates a new source post repository
func NewSourcePostRepository(db DBTX) *SourcePostRepository {
	return &SourcePostRepository{db: db}
}

func scanSourcePost(row pgx.Row) (*models.SourcePost, error) {
	var p models.SourcePost
	err := row.Scan(
		&p.Source,
		&p.SourceID,
		&p.Title,
		&p.Author,
		&p.Community,
		&p.Permalink,
		&p.CreatedUTC,
		&p.CreatedDate,
		&p.IsGallery,
		&p.GalleryImageURLs,
		&p.IsDirectImagePost,
		&p.ImagePostURLs,
		&p.Processed,
		&p.IsPortfolio,
		&p.Failed,
		&p.FetchedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func nonNil(urls []string) []string {
	if urls == nil {
		return []string{}
	}
	return urls
}

// Upsert inserts a fetched post or refreshes its content. Processing flags of
// an existing row are left untouched so a refetch never re-opens extraction.
func (r *SourcePostRepository) Upsert(ctx context.Context, post *models.SourcePost) error {
	now := time.Now().UTC()
	if post.FetchedAt.IsZero() {
		post.FetchedAt = now
	}
	post.UpdatedAt = now

	_, err := r.db.Exec(ctx, `
		INSERT INTO source_posts (`+sourcePostColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (source, source_id)
		DO UPDATE SET
			title = EXCLUDED.title,
			author = EXCLUDED.author,
			community = EXCLUDED.community,
			permalink = EXCLUDED.permalink,
			is_gallery = EXCLUDED.is_gallery,
			gallery_image_urls = EXCLUDED.gallery_image_urls,
			is_direct_image_post = EXCLUDED.is_direct_image_post,
			image_post_urls = EXCLUDED.image_post_urls,
			fetched_at = EXCLUDED.fetched_at,
			updated_at = EXCLUDED.updated_at
	`,
		post.Source,
		post.SourceID,
		post.Title,
		post.Author,
		post.Community,
		post.Permalink,
		post.CreatedUTC,
		post.CreatedDate,
		post.IsGallery,
		nonNil(post.GalleryImageURLs),
		post.IsDirectImagePost,
		nonNil(post.ImagePostURLs),
		post.Processed,
		post.IsPortfolio,
		post.Failed,
		post.FetchedAt,
		post.UpdatedAt,
	)
	if err != nil {
		return apperrors.NewDatabaseError("upsert source post", err)
	}
	return nil
}

// Get returns a post or a NotFound error
func (r *SourcePostRepository) Get(ctx context.Context, source, sourceID string) (*models.SourcePost, error) {
	query := `SELECT ` + sourcePostColumns + ` FROM source_posts WHERE source = $1 AND source_id = $2`

	post, err := scanSourcePost(r.db.QueryRow(ctx, query, source, sourceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("source post", source+"/"+sourceID)
		}
		return nil, apperrors.NewDatabaseError("get source post", err)
	}
	return post, nil
}

// UpdateStatus persists the processing flags of a post
func (r *SourcePostRepository) UpdateStatus(ctx context.Context, post *models.SourcePost) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE source_posts
		SET processed = $3, is_portfolio = $4, failed = $5, updated_at = $6
		WHERE source = $1 AND source_id = $2
	`,
		post.Source,
		post.SourceID,
		post.Processed,
		post.IsPortfolio,
		post.Failed,
		post.UpdatedAt,
	)
	if err != nil {
		return apperrors.NewDatabaseError("update source post status", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("source post", post.Source+"/"+post.SourceID)
	}
	return nil
}

// ListUnprocessed returns posts that have not been interpreted yet, oldest first
func (r *SourcePostRepository) ListUnprocessed(ctx context.Context, source string, limit int) ([]*models.SourcePost, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+sourcePostColumns+`
		FROM source_posts
		WHERE source = $1 AND processed = FALSE
		ORDER BY created_utc ASC
		LIMIT $2
	`, source, limit)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list unprocessed posts", err)
	}
	defer rows.Close()

	var posts []*models.SourcePost
	for rows.Next() {
		post, err := scanSourcePost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source post: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("list unprocessed posts", err)
	}
	return posts, nil
}

// ListPortfolioPosts returns processed posts that hold a portfolio
func (r *SourcePostRepository) ListPortfolioPosts(ctx context.Context, source string, limit int) ([]*models.SourcePost, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+sourcePostColumns+`
		FROM source_posts
		WHERE source = $1 AND processed = TRUE AND is_portfolio = TRUE
		ORDER BY created_utc DESC
		LIMIT $2
	`, source, limit)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list portfolio posts", err)
	}
	defer rows.Close()

	var posts []*models.SourcePost
	for rows.Next() {
		post, err := scanSourcePost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source post: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("list portfolio posts", err)
	}
	return posts, nil
}

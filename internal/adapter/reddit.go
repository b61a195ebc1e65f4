package adapter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/portfolio-evaluator/internal/circuitbreaker"
	"github.com/portfolio-evaluator/internal/config"
	apperrors "github.com/portfolio-evaluator/internal/errors"
	"github.com/portfolio-evaluator/internal/models"
	"github.com/portfolio-evaluator/internal/types"
)

// RedditURLPrefix is the only accepted prefix for post URLs
const RedditURLPrefix = "https://www.reddit.com/"

var postIDPattern = regexp.MustCompile(`/comments/([a-z0-9]+)(?:/|$)`)

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif"}

// RedditClient reads posts from the public reddit JSON endpoints
type RedditClient struct {
	http      *httpClient
	userAgent string
}

// redditThing is the data object of a t3 (link) listing child
type redditThing struct {
	ID            string                       `json:"id"`
	Title         string                       `json:"title"`
	Author        string                       `json:"author"`
	Subreddit     string                       `json:"subreddit"`
	Permalink     string                       `json:"permalink"`
	CreatedUTC    float64                      `json:"created_utc"`
	IsSelf        bool                         `json:"is_self"`
	URL           string                       `json:"url"`
	IsGallery     bool                         `json:"is_gallery"`
	GalleryData   *redditGalleryData           `json:"gallery_data"`
	MediaMetadata map[string]redditMediaObject `json:"media_metadata"`
	Preview       *struct {
		Images []struct {
			Source struct {
				URL string `json:"url"`
			} `json:"source"`
		} `json:"images"`
	} `json:"preview"`
}

type redditGalleryData struct {
	Items []struct {
		MediaID string `json:"media_id"`
	} `json:"items"`
}

type redditMediaObject struct {
	Status string `json:"status"`
	E      string `json:"e"`
	S      struct {
		U string `json:"u"`
	} `json:"s"`
}

type redditListing struct {
	Kind string `json:"kind"`
	Data struct {
		Children []struct {
			Kind string      `json:"kind"`
			Data redditThing `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// NewRedditClient creates a reddit client
func NewRedditClient(cfg config.RedditConfig, breaker *circuitbreaker.CircuitBreaker) *RedditClient {
	return &RedditClient{
		http:      newHTTPClient(string(types.SourceReddit), cfg.ProviderConfig, breaker),
		userAgent: cfg.UserAgent,
	}
}

// ValidatePostURL checks that rawURL is a reddit post URL
func ValidatePostURL(rawURL string) error {
	if !strings.HasPrefix(rawURL, RedditURLPrefix) {
		return apperrors.NewInvalidURLError(rawURL, "must start with "+RedditURLPrefix)
	}
	if _, err := url.Parse(rawURL); err != nil {
		return apperrors.NewInvalidURLError(rawURL, "malformed url")
	}
	if _, err := ResolvePostID(rawURL); err != nil {
		return err
	}
	return nil
}

// ResolvePostID extracts the post id from a reddit post URL
func ResolvePostID(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", apperrors.NewInvalidURLError(rawURL, "malformed url")
	}
	m := postIDPattern.FindStringSubmatch(strings.ToLower(u.Path))
	if m == nil {
		return "", apperrors.NewInvalidURLError(rawURL, "no post id in path")
	}
	return m[1], nil
}

// FetchPost fetches a single post by URL
func (c *RedditClient) FetchPost(ctx context.Context, postURL string) (*models.SourcePost, error) {
	if err := ValidatePostURL(postURL); err != nil {
		return nil, err
	}
	id, _ := ResolvePostID(postURL)
	return c.FetchPostByID(ctx, id)
}

// FetchPostByID fetches a single post by id
func (c *RedditClient) FetchPostByID(ctx context.Context, id string) (*models.SourcePost, error) {
	endpoint := fmt.Sprintf("%s/comments/%s.json?raw_json=1", c.http.baseURL, url.PathEscape(id))

	// the comments endpoint answers with [post listing, comment listing]
	var listings []redditListing
	if err := c.http.doJSON(ctx, c.get(endpoint), &listings); err != nil {
		return nil, err
	}
	if len(listings) == 0 || len(listings[0].Data.Children) == 0 {
		return nil, apperrors.NewNotFoundError("reddit post", id)
	}
	return toSourcePost(&listings[0].Data.Children[0].Data), nil
}

// NewPosts returns the newest posts of a subreddit
func (c *RedditClient) NewPosts(ctx context.Context, subreddit string, limit int) ([]*models.SourcePost, error) {
	subreddit = strings.TrimPrefix(strings.TrimSpace(subreddit), "r/")
	if subreddit == "" {
		return nil, apperrors.NewInvalidParameterError("subreddit", "must not be empty")
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("raw_json", "1")
	endpoint := fmt.Sprintf("%s/r/%s/new.json?%s", c.http.baseURL, url.PathEscape(subreddit), params.Encode())

	var listing redditListing
	if err := c.http.doJSON(ctx, c.get(endpoint), &listing); err != nil {
		return nil, err
	}

	posts := make([]*models.SourcePost, 0, len(listing.Data.Children))
	for i := range listing.Data.Children {
		child := &listing.Data.Children[i]
		if child.Kind != "" && child.Kind != "t3" {
			continue
		}
		posts = append(posts, toSourcePost(&child.Data))
	}
	return posts, nil
}

func (c *RedditClient) get(endpoint string) func(ctx context.Context) (*http.Request, error) {
	return func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}
		return req, nil
	}
}

func toSourcePost(t *redditThing) *models.SourcePost {
	created := time.Unix(int64(t.CreatedUTC), 0).UTC()
	now := time.Now().UTC()

	post := &models.SourcePost{
		Source:      string(types.SourceReddit),
		SourceID:    t.ID,
		Title:       t.Title,
		Author:      t.Author,
		Community:   t.Subreddit,
		CreatedUTC:  created,
		CreatedDate: time.Date(created.Year(), created.Month(), created.Day(), 0, 0, 0, 0, time.UTC),
		FetchedAt:   now,
		UpdatedAt:   now,
	}
	if t.Permalink != "" {
		post.Permalink = strings.TrimSuffix(RedditURLPrefix, "/") + t.Permalink
	}

	if t.IsGallery {
		post.IsGallery = true
		post.GalleryImageURLs = galleryImages(t)
	}

	if !t.IsSelf && t.URL != "" {
		post.IsDirectImagePost = true
		if isImageURL(t.URL) {
			post.ImagePostURLs = []string{t.URL}
		} else if t.Preview != nil && len(t.Preview.Images) > 0 && t.Preview.Images[0].Source.URL != "" {
			post.ImagePostURLs = []string{unescapeAmp(t.Preview.Images[0].Source.URL)}
		}
	}

	return post
}

// galleryImages returns the gallery image URLs in gallery order when the
// order is known, otherwise sorted by media id
func galleryImages(t *redditThing) []string {
	var ids []string
	if t.GalleryData != nil {
		for _, item := range t.GalleryData.Items {
			ids = append(ids, item.MediaID)
		}
	} else {
		for id := range t.MediaMetadata {
			ids = append(ids, id)
		}
		sort.Strings(ids)
	}

	urls := make([]string, 0, len(ids))
	for _, id := range ids {
		media, ok := t.MediaMetadata[id]
		if !ok || media.E != "Image" || media.S.U == "" {
			continue
		}
		urls = append(urls, unescapeAmp(media.S.U))
	}
	return urls
}

func isImageURL(u string) bool {
	if strings.Contains(u, "i.redd.it") {
		return true
	}
	lower := strings.ToLower(u)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func unescapeAmp(s string) string {
	return strings.ReplaceAll(s, "&amp;", "&")
}

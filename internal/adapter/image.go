package adapter

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/portfolio-evaluator/internal/config"
)

// Image is a downloaded image ready to send to the vision model
type Image struct {
	URL      string
	MimeType string
	Data     []byte
}

// ImageFetcher downloads post images
type ImageFetcher struct {
	http     *httpClient
	maxBytes int64
}

// NewImageFetcher creates an image downloader
func NewImageFetcher(cfg config.ImageConfig) *ImageFetcher {
	return &ImageFetcher{
		http: newHTTPClient("image_host", config.ProviderConfig{
			Timeout:           cfg.Timeout,
			RequestsPerSecond: 5,
			Burst:             5,
		}, nil),
		maxBytes: cfg.MaxBytes,
	}
}

// Fetch downloads imageURL and rejects anything that is not an image
func (f *ImageFetcher) Fetch(ctx context.Context, imageURL string) (*Image, error) {
	body, contentType, err := f.http.do(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	})
	if err != nil {
		return nil, err
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		return nil, fmt.Errorf("url %s is not an image (content type %q)", imageURL, contentType)
	}
	if f.maxBytes > 0 && int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("image %s is %d bytes, limit is %d", imageURL, len(body), f.maxBytes)
	}

	return &Image{URL: imageURL, MimeType: mediaType, Data: body}, nil
}

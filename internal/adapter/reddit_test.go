package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/portfolio-evaluator/internal/config"
	apperrors "github.com/portfolio-evaluator/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const galleryPost = `{
	"id": "1abcde",
	"title": "My bags",
	"author": "hodler",
	"subreddit": "CryptoCurrency",
	"permalink": "/r/CryptoCurrency/comments/1abcde/my_bags/",
	"created_utc": 1705314600,
	"is_self": false,
	"url": "https://www.reddit.com/gallery/1abcde",
	"is_gallery": true,
	"gallery_data": {"items": [{"media_id": "zz"}, {"media_id": "aa"}]},
	"media_metadata": {
		"aa": {"status": "valid", "e": "Image", "s": {"u": "https://preview.redd.it/aa.png?width=640&amp;s=1"}},
		"zz": {"status": "valid", "e": "Image", "s": {"u": "https://preview.redd.it/zz.png?width=640&amp;s=2"}},
		"vid": {"status": "valid", "e": "AnimatedImage", "s": {"u": "https://preview.redd.it/v.gif"}}
	}
}`

func TestResolvePostID(t *testing.T) {
	id, err := ResolvePostID("https://www.reddit.com/r/CryptoCurrency/comments/1abcde/my_bags/")
	require.NoError(t, err)
	assert.Equal(t, "1abcde", id)

	id, err = ResolvePostID("https://www.reddit.com/comments/XyZ12")
	require.NoError(t, err)
	assert.Equal(t, "xyz12", id)

	_, err = ResolvePostID("https://www.reddit.com/r/CryptoCurrency/")
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryValidation))
}

func TestValidatePostURL(t *testing.T) {
	assert.NoError(t, ValidatePostURL("https://www.reddit.com/r/a/comments/abc/x/"))
	assert.Error(t, ValidatePostURL("https://old.reddit.com/r/a/comments/abc/x/"))
	assert.Error(t, ValidatePostURL("http://www.reddit.com/r/a/comments/abc/x/"))
	assert.Error(t, ValidatePostURL("https://www.reddit.com/r/a/"))
}

func TestGalleryPostConversion(t *testing.T) {
	var thing redditThing
	require.NoError(t, json.Unmarshal([]byte(galleryPost), &thing))
	post := toSourcePost(&thing)

	assert.Equal(t, "reddit", post.Source)
	assert.Equal(t, "1abcde", post.SourceID)
	assert.Equal(t, "https://www.reddit.com/r/CryptoCurrency/comments/1abcde/my_bags/", post.Permalink)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), post.CreatedDate)
	assert.True(t, post.IsGallery)
	assert.Equal(t, []string{
		"https://preview.redd.it/zz.png?width=640&s=2",
		"https://preview.redd.it/aa.png?width=640&s=1",
	}, post.GalleryImageURLs)
	assert.Equal(t, post.GalleryImageURLs, post.ImageURLs())
}

func TestDirectImagePostConversion(t *testing.T) {
	direct := redditThing{ID: "a1", URL: "https://i.redd.it/abc123", CreatedUTC: 1700000000}
	post := toSourcePost(&direct)
	assert.True(t, post.IsDirectImagePost)
	assert.Equal(t, []string{"https://i.redd.it/abc123"}, post.ImagePostURLs)

	var linked redditThing
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": "b2", "is_self": false, "url": "https://imgur.com/a/xyz",
		"preview": {"images": [{"source": {"url": "https://preview.redd.it/p.jpg?a=1&amp;b=2"}}]}
	}`), &linked))
	post = toSourcePost(&linked)
	assert.Equal(t, []string{"https://preview.redd.it/p.jpg?a=1&b=2"}, post.ImagePostURLs)

	self := redditThing{ID: "c3", IsSelf: true, URL: "https://www.reddit.com/r/x/comments/c3/"}
	post = toSourcePost(&self)
	assert.False(t, post.IsDirectImagePost)
	assert.Empty(t, post.ImageURLs())
}

func TestRedditFetchPostAndNewPosts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "portfolio-evaluator-test", r.Header.Get("User-Agent"))
		switch r.URL.Path {
		case "/comments/1abcde.json":
			_, _ = w.Write([]byte(`[{"kind":"Listing","data":{"children":[{"kind":"t3","data":` + galleryPost + `}]}},{"kind":"Listing","data":{"children":[]}}]`))
		case "/r/CryptoCurrency/new.json":
			assert.Equal(t, "2", r.URL.Query().Get("limit"))
			_, _ = w.Write([]byte(`{"kind":"Listing","data":{"children":[
				{"kind":"t3","data":{"id":"p1","title":"one","is_self":true,"created_utc":1700000000}},
				{"kind":"t3","data":{"id":"p2","title":"two","is_self":false,"url":"https://i.redd.it/x.png","created_utc":1700000100}}
			]}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewRedditClient(config.RedditConfig{
		ProviderConfig: providerConfig(srv.URL),
		UserAgent:      "portfolio-evaluator-test",
	}, nil)
	ctx := context.Background()

	post, err := client.FetchPost(ctx, "https://www.reddit.com/r/CryptoCurrency/comments/1abcde/my_bags/")
	require.NoError(t, err)
	assert.Equal(t, "My bags", post.Title)
	assert.Len(t, post.GalleryImageURLs, 2)

	posts, err := client.NewPosts(ctx, "r/CryptoCurrency", 2)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "p2", posts[1].SourceID)
	assert.True(t, posts[1].IsDirectImagePost)

	_, err = client.FetchPostByID(ctx, "missing")
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryNotFound))
}

package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/portfolio-evaluator/internal/adapter"
	apperrors "github.com/portfolio-evaluator/internal/errors"
	"github.com/portfolio-evaluator/internal/models"
	"github.com/portfolio-evaluator/internal/types"
)

// Map backed stores

type memAssets struct {
	mu      sync.Mutex
	assets  map[models.AssetKey]*models.Asset
	creates int
}

func newMemAssets(assets ...*models.Asset) *memAssets {
	m := &memAssets{assets: make(map[models.AssetKey]*models.Asset)}
	for _, a := range assets {
		m.assets[a.Key()] = a
	}
	return m
}

func (m *memAssets) GetByKey(ctx context.Context, key models.AssetKey) (*models.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assets[key]
	if !ok {
		return nil, apperrors.NewNotFoundError("asset", key.String())
	}
	copied := *a
	return &copied, nil
}

func (m *memAssets) Create(ctx context.Context, asset *models.Asset) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.assets[asset.Key()]; ok {
		return false, nil
	}
	copied := *asset
	m.assets[asset.Key()] = &copied
	m.creates++
	return true, nil
}

func (m *memAssets) UpdateIdentifiers(ctx context.Context, asset *models.Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *asset
	m.assets[asset.Key()] = &copied
	return nil
}

func (m *memAssets) List(ctx context.Context) ([]*models.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Asset, 0, len(m.assets))
	for _, a := range m.assets {
		copied := *a
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type priceKey struct {
	asset models.AssetKey
	week  types.ISOWeek
}

type memPrices struct {
	mu      sync.Mutex
	points  map[priceKey]*models.PricePoint
	upserts int
}

func newMemPrices() *memPrices {
	return &memPrices{points: make(map[priceKey]*models.PricePoint)}
}

func (m *memPrices) put(key models.AssetKey, week types.ISOWeek, price float64) {
	m.points[priceKey{key, week}] = models.NewPricePoint(key, week, price, "usd", week.Monday())
}

func (m *memPrices) IsTracked(ctx context.Context, key models.AssetKey) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.points {
		if k.asset == key {
			return true, nil
		}
	}
	return false, nil
}

func (m *memPrices) Upsert(ctx context.Context, point *models.PricePoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *point
	m.points[priceKey{point.Key(), point.Bucket()}] = &copied
	m.upserts++
	return nil
}

func (m *memPrices) Get(ctx context.Context, key models.AssetKey, week types.ISOWeek) (*models.PricePoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.points[priceKey{key, week}]
	if !ok {
		return nil, apperrors.NewNotFoundError("price point", key.String()+" "+week.String())
	}
	copied := *p
	return &copied, nil
}

func (m *memPrices) ListTrackedWeeks(ctx context.Context, key models.AssetKey) (map[types.ISOWeek]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	weeks := make(map[types.ISOWeek]bool)
	for k := range m.points {
		if k.asset == key {
			weeks[k.week] = true
		}
	}
	return weeks, nil
}

type memPosts struct {
	posts map[string]*models.SourcePost
}

func newMemPosts() *memPosts {
	return &memPosts{posts: make(map[string]*models.SourcePost)}
}

func postKey(source, sourceID string) string {
	return source + "/" + sourceID
}

func (m *memPosts) Upsert(ctx context.Context, post *models.SourcePost) error {
	copied := *post
	if stored, ok := m.posts[postKey(post.Source, post.SourceID)]; ok {
		copied.Processed = stored.Processed
		copied.IsPortfolio = stored.IsPortfolio
		copied.Failed = stored.Failed
	}
	m.posts[postKey(post.Source, post.SourceID)] = &copied
	return nil
}

func (m *memPosts) Get(ctx context.Context, source, sourceID string) (*models.SourcePost, error) {
	p, ok := m.posts[postKey(source, sourceID)]
	if !ok {
		return nil, apperrors.NewNotFoundError("source post", sourceID)
	}
	copied := *p
	return &copied, nil
}

func (m *memPosts) UpdateStatus(ctx context.Context, post *models.SourcePost) error {
	stored, ok := m.posts[postKey(post.Source, post.SourceID)]
	if !ok {
		return apperrors.NewNotFoundError("source post", post.SourceID)
	}
	stored.Processed = post.Processed
	stored.IsPortfolio = post.IsPortfolio
	stored.Failed = post.Failed
	return nil
}

func (m *memPosts) ListUnprocessed(ctx context.Context, source string, limit int) ([]*models.SourcePost, error) {
	var out []*models.SourcePost
	for _, p := range m.posts {
		if p.Source == source && !p.Processed {
			copied := *p
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memPortfolios struct {
	portfolios map[string]*models.Portfolio
	updates    int
}

func newMemPortfolios() *memPortfolios {
	return &memPortfolios{portfolios: make(map[string]*models.Portfolio)}
}

func (m *memPortfolios) Exists(ctx context.Context, source, sourceID string) (bool, error) {
	_, ok := m.portfolios[postKey(source, sourceID)]
	return ok, nil
}

func (m *memPortfolios) InsertIfAbsent(ctx context.Context, p *models.Portfolio) (bool, error) {
	if _, ok := m.portfolios[postKey(p.Source, p.SourceID)]; ok {
		return false, nil
	}
	copied := *p
	copied.Purchases = nil
	m.portfolios[postKey(p.Source, p.SourceID)] = &copied
	return true, nil
}

func (m *memPortfolios) Get(ctx context.Context, source, sourceID string) (*models.Portfolio, error) {
	p, ok := m.portfolios[postKey(source, sourceID)]
	if !ok {
		return nil, apperrors.NewNotFoundError("portfolio", sourceID)
	}
	copied := *p
	return &copied, nil
}

func (m *memPortfolios) UpdateMetrics(ctx context.Context, p *models.Portfolio) error {
	if _, ok := m.portfolios[postKey(p.Source, p.SourceID)]; !ok {
		return apperrors.NewNotFoundError("portfolio", p.SourceID)
	}
	copied := *p
	copied.Purchases = nil
	m.portfolios[postKey(p.Source, p.SourceID)] = &copied
	m.updates++
	return nil
}

type memPurchases struct {
	purchases map[string][]*models.Purchase
}

func newMemPurchases() *memPurchases {
	return &memPurchases{purchases: make(map[string][]*models.Purchase)}
}

func (m *memPurchases) Create(ctx context.Context, p *models.Purchase) error {
	copied := *p
	if copied.ID == "" {
		copied.ID = fmt.Sprintf("purchase-%d", m.count()+1)
	}
	m.purchases[postKey(p.Source, p.SourceID)] = append(m.purchases[postKey(p.Source, p.SourceID)], &copied)
	return nil
}

func (m *memPurchases) ListBySource(ctx context.Context, source, sourceID string) ([]*models.Purchase, error) {
	var out []*models.Purchase
	for _, p := range m.purchases[postKey(source, sourceID)] {
		copied := *p
		out = append(out, &copied)
	}
	return out, nil
}

func (m *memPurchases) count() int {
	n := 0
	for _, list := range m.purchases {
		n += len(list)
	}
	return n
}

// memRecorder records into the map stores the way the transactional recorder
// does. failures makes the next calls fail before anything is written.
type memRecorder struct {
	posts      *memPosts
	portfolios *memPortfolios
	purchases  *memPurchases
	failures   int
	calls      int
}

func (r *memRecorder) Record(ctx context.Context, post *models.SourcePost, p *models.Portfolio, purchases []*models.Purchase) (bool, error) {
	r.calls++
	if r.failures > 0 {
		r.failures--
		return false, apperrors.NewDatabaseError("record portfolio", fmt.Errorf("connection reset"))
	}
	if r.posts != nil {
		if err := r.posts.UpdateStatus(ctx, post); err != nil {
			return false, err
		}
	}
	inserted, err := r.portfolios.InsertIfAbsent(ctx, p)
	if err != nil || !inserted {
		return false, err
	}
	for _, purchase := range purchases {
		if err := r.purchases.Create(ctx, purchase); err != nil {
			return false, err
		}
	}
	return true, nil
}

type memHistory struct {
	snapshots []models.EvaluationSnapshot
}

func (m *memHistory) Append(ctx context.Context, s models.EvaluationSnapshot) error {
	m.snapshots = append(m.snapshots, s)
	return nil
}

func (m *memHistory) List(ctx context.Context, source, sourceID string, limit int) ([]models.EvaluationSnapshot, error) {
	return m.snapshots, nil
}

// External collaborators

type fakeModel struct {
	mu        sync.Mutex
	describe  func(image []byte) (string, error)
	complete  func(prompt string) (string, error)
	describes int
	completes int
}

func (f *fakeModel) Describe(ctx context.Context, image []byte, mimeType, prompt string) (string, error) {
	f.mu.Lock()
	f.describes++
	f.mu.Unlock()
	return f.describe(image)
}

func (f *fakeModel) Complete(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.completes++
	f.mu.Unlock()
	return f.complete(prompt)
}

// echoModel describes an image as its own bytes and structures a description
// by looking it up in answers
func echoModel(answers map[string]string) *fakeModel {
	return &fakeModel{
		describe: func(image []byte) (string, error) {
			return string(image), nil
		},
		complete: func(prompt string) (string, error) {
			for description, answer := range answers {
				if strings.Contains(prompt, description) {
					return answer, nil
				}
			}
			return "", fmt.Errorf("no answer for prompt")
		},
	}
}

type fakeImages struct {
	images map[string]string
	errs   map[string]error
}

func (f *fakeImages) Fetch(ctx context.Context, url string) (*adapter.Image, error) {
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	data, ok := f.images[url]
	if !ok {
		return nil, fmt.Errorf("unknown image %s", url)
	}
	return &adapter.Image{URL: url, MimeType: "image/png", Data: []byte(data)}, nil
}

type fakePostSource struct {
	posts   map[string]*models.SourcePost
	listing map[string][]*models.SourcePost
	fetches int
}

func (f *fakePostSource) FetchPost(ctx context.Context, url string) (*models.SourcePost, error) {
	f.fetches++
	p, ok := f.posts[url]
	if !ok {
		return nil, apperrors.NewNotFoundError("post", url)
	}
	copied := *p
	return &copied, nil
}

func (f *fakePostSource) NewPosts(ctx context.Context, community string, limit int) ([]*models.SourcePost, error) {
	posts, ok := f.listing[community]
	if !ok {
		return nil, apperrors.NewExternalServiceError("reddit", fmt.Errorf("community %s unavailable", community))
	}
	return posts, nil
}

type fakeProvider struct {
	mu         sync.Mutex
	name       types.Provider
	prices     map[string]float64
	historical map[string]float64
	err        error
	calls      int
}

func (f *fakeProvider) Name() types.Provider { return f.name }

func (f *fakeProvider) SpotPrice(ctx context.Context, coinID, currency string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	price, ok := f.prices[coinID]
	if !ok {
		return 0, adapter.ErrNoData
	}
	return price, nil
}

func (f *fakeProvider) PriceOn(ctx context.Context, coinID string, date time.Time, currency string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	price, ok := f.historical[coinID+"@"+date.Format(types.DateLayout)]
	if !ok {
		return 0, adapter.ErrNoData
	}
	return price, nil
}

type fakeSymbols struct {
	provider types.Provider
	ids      map[string]string
	lookups  int
}

func (f *fakeSymbols) Provider() types.Provider { return f.provider }

func (f *fakeSymbols) Lookup(name, abbreviation string) (string, bool) {
	f.lookups++
	id, ok := f.ids[models.KeyOf(name, abbreviation).Abbreviation]
	return id, ok
}

type fakeFX struct {
	rates map[string]float64
	calls int
}

func (f *fakeFX) HistoricalRate(ctx context.Context, date time.Time, base string) (float64, error) {
	f.calls++
	rate, ok := f.rates[base]
	if !ok {
		return 0, apperrors.NewExternalServiceError("frankfurter", adapter.ErrNoData)
	}
	return rate, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

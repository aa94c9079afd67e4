package gallery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	FeaturedLimit   = 6

	// MaxPage keeps the row offset within a 32-bit integer.
	MaxPage = math.MaxInt32 / MaxPageSize

	// DefaultCacheTTL bounds entries that no write invalidated.
	DefaultCacheTTL = time.Minute
)

// Feed serves the approved doodle feed, caching rendered pages.
type Feed struct {
	Logger *slog.Logger
	Store  Store
	Cache  Cache
	TTL    time.Duration
}

// CacheKey composes the cache key of a feed page.
func CacheKey(sort Sort, page, limit int) string {
	return fmt.Sprintf("%s%s:%d:%d", FeedPrefix, sort, page, limit)
}

// List returns one page of approved doodles. Out of range page and limit
// values are clamped.
func (f *Feed) List(ctx context.Context, sort Sort, page, limit int) (Page, error) {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	sort = ParseSort(string(sort))

	key := CacheKey(sort, page, limit)
	cached, ok, err := f.Cache.Get(ctx, key)
	if err != nil {
		return Page{}, fmt.Errorf("cache get: %w", err)
	}
	if ok {
		var p Page
		err := json.Unmarshal(cached, &p)
		if err == nil {
			f.Logger.Debug("Got feed page from cache", "key", key)
			return p, nil
		}
		f.Logger.Warn("Could not decode cached page", "key", key, "error", err.Error())
	}

	offset := (page - 1) * limit
	doodles, total, err := f.Store.ListApproved(ctx, sort, limit, offset)
	if err != nil {
		return Page{}, fmt.Errorf("list approved: %w", err)
	}
	if doodles == nil {
		doodles = []Doodle{}
	}

	p := Page{
		Doodles: doodles,
		Pagination: Pagination{
			Page:    page,
			Limit:   limit,
			Total:   total,
			Pages:   (total + limit - 1) / limit,
			HasMore: offset+limit < total,
		},
	}

	b, err := json.Marshal(p)
	if err != nil {
		return Page{}, fmt.Errorf("encode page: %w", err)
	}
	if err := f.Cache.Set(ctx, key, b, f.ttl()); err != nil {
		f.Logger.Error("Could not cache feed page", "key", key, "error", err.Error())
	}
	return p, nil
}

// Featured returns up to FeaturedLimit featured approved doodles.
func (f *Feed) Featured(ctx context.Context) ([]Doodle, error) {
	doodles, err := f.Store.ListFeatured(ctx, FeaturedLimit)
	if err != nil {
		return nil, fmt.Errorf("list featured: %w", err)
	}
	if doodles == nil {
		doodles = []Doodle{}
	}
	return doodles, nil
}

// Stats aggregates the approved feed.
func (f *Feed) Stats(ctx context.Context) (Stats, error) {
	s, err := f.Store.Stats(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	return s, nil
}

func (f *Feed) ttl() time.Duration {
	if f.TTL > 0 {
		return f.TTL
	}
	return DefaultCacheTTL
}

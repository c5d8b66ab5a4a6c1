package scrape

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/prospector-cli/internal/model"
)

// FetchCache stores fetch results by key.
type FetchCache interface {
	GetCachedFetch(ctx context.Context, key string) (*model.FetchResult, error)
	SetCachedFetch(ctx context.Context, key string, res *model.FetchResult, ttl time.Duration) error
}

// CachedFetcher serves repeated fetches from a FetchCache unless the run
// config bypasses it. Cache failures are logged and fall through.
type CachedFetcher struct {
	next  Fetcher
	cache FetchCache
	ttl   time.Duration
}

// NewCachedFetcher wraps next with cache. Results are kept for ttl.
func NewCachedFetcher(next Fetcher, cache FetchCache, ttl time.Duration) *CachedFetcher {
	return &CachedFetcher{next: next, cache: cache, ttl: ttl}
}

func (c *CachedFetcher) Name() string             { return c.next.Name() }
func (c *CachedFetcher) Supports(url string) bool { return c.next.Supports(url) }

func (c *CachedFetcher) Fetch(ctx context.Context, targetURL string, cfg RunConfig) (*model.FetchResult, error) {
	key := cacheKey(targetURL, cfg)

	if !cfg.BypassCache {
		hit, err := c.cache.GetCachedFetch(ctx, key)
		if err != nil {
			zap.L().Warn("scrape: cache read failed", zap.String("url", targetURL), zap.Error(err))
		} else if hit != nil && hit.Success {
			hit.Source = "cache"
			return hit, nil
		}
	}

	res, err := c.next.Fetch(ctx, targetURL, cfg)
	if err != nil {
		return nil, err
	}
	if res != nil && res.Success && c.ttl > 0 {
		if err := c.cache.SetCachedFetch(ctx, key, res, c.ttl); err != nil {
			zap.L().Warn("scrape: cache write failed", zap.String("url", targetURL), zap.Error(err))
		}
	}
	return res, nil
}

// cacheKey distinguishes fetches of the same URL narrowed by different
// selectors.
func cacheKey(url string, cfg RunConfig) string {
	if cfg.CSSSelector == "" {
		return url
	}
	return url + "#" + cfg.CSSSelector
}

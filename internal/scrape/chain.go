package scrape

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospector-cli/internal/model"
)

// Chain tries fetchers in priority order, returning the first success.
type Chain struct {
	PathMatcher *PathMatcher
	fetchers    []Fetcher
}

// NewChain creates a Chain with the given path matcher and fetchers.
func NewChain(matcher *PathMatcher, fetchers ...Fetcher) *Chain {
	if matcher == nil {
		matcher = NewPathMatcher(nil)
	}
	return &Chain{
		PathMatcher: matcher,
		fetchers:    fetchers,
	}
}

// Name implements Fetcher.
func (c *Chain) Name() string { return "chain" }

// Supports implements Fetcher.
func (c *Chain) Supports(url string) bool { return !c.PathMatcher.IsExcluded(url) }

// Fetch tries each fetcher in order for a single URL. A context error stops
// the chain immediately.
func (c *Chain) Fetch(ctx context.Context, targetURL string, cfg RunConfig) (*model.FetchResult, error) {
	if c.PathMatcher.IsExcluded(targetURL) {
		return nil, eris.Errorf("scrape: url excluded by path matcher: %s", targetURL)
	}

	var lastErr error
	for _, f := range c.fetchers {
		if !f.Supports(targetURL) {
			continue
		}
		result, err := f.Fetch(ctx, targetURL, cfg)
		if err == nil && result != nil && result.Success {
			return result, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, eris.Wrap(ctxErr, "scrape: fetch canceled")
		}
		if err == nil {
			err = eris.Errorf("scrape: %s returned no content", f.Name())
			if result != nil && result.ErrorMessage != "" {
				err = eris.Errorf("scrape: %s: %s", f.Name(), result.ErrorMessage)
			}
		}
		zap.L().Debug("scrape: fetcher failed, trying next",
			zap.String("fetcher", f.Name()),
			zap.String("url", targetURL),
			zap.Error(err),
		)
		lastErr = err
	}
	if lastErr != nil {
		return nil, eris.Wrap(lastErr, "scrape: all fetchers failed")
	}
	return nil, eris.Errorf("scrape: no suitable fetcher for url: %s", targetURL)
}

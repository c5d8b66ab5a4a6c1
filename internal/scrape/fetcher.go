// Package scrape fetches and renders pages for harvesting and enrichment
// through a priority chain of fetchers.
package scrape

import (
	"context"
	"time"

	"github.com/sells-group/prospector-cli/internal/model"
)

// RunConfig carries the per-fetch rendering options.
type RunConfig struct {
	// CSSSelector narrows the returned content to matching elements.
	CSSSelector string
	// WaitFor is a CSS selector that must be present before the page is
	// captured.
	WaitFor string
	// Timeout bounds a single fetch. Zero means the fetcher default.
	Timeout time.Duration
	// BypassCache forces a fresh fetch.
	BypassCache bool
	// SessionID groups fetches that share cookies.
	SessionID string
}

// Fetcher fetches a single URL and returns its rendered content.
type Fetcher interface {
	Fetch(ctx context.Context, url string, cfg RunConfig) (*model.FetchResult, error)
	Name() string
	Supports(url string) bool
}

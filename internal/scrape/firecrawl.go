package scrape

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospector-cli/internal/model"
	"github.com/sells-group/prospector-cli/pkg/firecrawl"
)

// FirecrawlFetcher wraps a Firecrawl client for single-page scrapes.
type FirecrawlFetcher struct {
	client firecrawl.Client
}

// NewFirecrawlFetcher creates a FirecrawlFetcher from a Firecrawl client.
func NewFirecrawlFetcher(client firecrawl.Client) *FirecrawlFetcher {
	return &FirecrawlFetcher{client: client}
}

func (f *FirecrawlFetcher) Name() string { return "firecrawl" }

// Supports returns true. Firecrawl can attempt any URL as a fallback.
func (f *FirecrawlFetcher) Supports(_ string) bool { return true }

// Fetch scrapes a single URL. The CSS selector becomes includeTags so the
// markdown is already narrowed.
func (f *FirecrawlFetcher) Fetch(ctx context.Context, targetURL string, cfg RunConfig) (*model.FetchResult, error) {
	req := firecrawl.ScrapeRequest{
		URL:     targetURL,
		Formats: []string{"markdown", "html"},
	}
	if cfg.CSSSelector != "" {
		req.IncludeTags = []string{cfg.CSSSelector}
	}
	if cfg.WaitFor != "" {
		// Firecrawl waits a fixed delay rather than for a selector.
		req.WaitFor = 2000
	}
	if cfg.Timeout > 0 {
		req.Timeout = int(cfg.Timeout.Milliseconds())
	}
	if cfg.BypassCache {
		fresh := 0
		req.MaxAge = &fresh
	}

	resp, err := f.client.Scrape(ctx, req)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, eris.New("firecrawl: scrape not successful")
	}
	if strings.TrimSpace(resp.Data.Markdown) == "" && strings.TrimSpace(resp.Data.HTML) == "" {
		return nil, eris.New("firecrawl: empty page")
	}

	res := &model.FetchResult{
		URL:        targetURL,
		Success:    true,
		Title:      resp.Data.Title,
		Markdown:   resp.Data.Markdown,
		HTML:       resp.Data.HTML,
		StatusCode: resp.Data.StatusCode,
		Source:     "firecrawl",
	}
	if cfg.CSSSelector != "" {
		res.ExtractedContent = resp.Data.Markdown
	}
	return res, nil
}

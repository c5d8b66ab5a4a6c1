package search

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospector-cli/internal/extract"
	"github.com/sells-group/prospector-cli/internal/schema"
	"github.com/sells-group/prospector-cli/internal/scrape"
)

// resultsPerPage is the SERP page size used for the start offset.
const resultsPerPage = 10

const defaultSERPInstruction = "Extract all search result objects with 'title', 'url', and 'snippet' " +
	"from the following content. Return a JSON array."

// noResultsMarkers are SERP messages shown when a page has no organic
// results.
var noResultsMarkers = []string{
	"No Results Found",
	"did not match any documents",
	"não encontrou nenhum documento",
}

// SERPConfig configures a SERPSource.
type SERPConfig struct {
	// BaseURL is the search endpoint, optionally with query parameters.
	BaseURL string
	// Query is set as the q parameter when non-empty.
	Query       string
	CSSSelector string
	SessionID   string
	Timeout     time.Duration
	BypassCache bool
	Instruction string
}

// SERPSource harvests a search-engine result page: the page is fetched,
// narrowed to the result container and handed to the extractor.
type SERPSource struct {
	cfg       SERPConfig
	fetcher   scrape.Fetcher
	extractor extract.Extractor
}

// NewSERPSource creates a SERPSource.
func NewSERPSource(cfg SERPConfig, fetcher scrape.Fetcher, extractor extract.Extractor) (*SERPSource, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Host == "" {
		return nil, eris.Errorf("search: invalid serp base url %q", cfg.BaseURL)
	}
	if cfg.Query == "" && u.Query().Get("q") == "" {
		return nil, eris.New("search: serp source needs a query")
	}
	if cfg.Instruction == "" {
		cfg.Instruction = defaultSERPInstruction
	}
	return &SERPSource{cfg: cfg, fetcher: fetcher, extractor: extractor}, nil
}

func (s *SERPSource) Name() string { return "serp" }

// PageURL returns the URL of a 1-based result page. Pages after the first
// carry a start offset.
func (s *SERPSource) PageURL(page int) string {
	u, err := url.Parse(s.cfg.BaseURL)
	if err != nil {
		return s.cfg.BaseURL
	}
	q := u.Query()
	if s.cfg.Query != "" {
		q.Set("q", s.cfg.Query)
	}
	if page > 1 {
		q.Set("start", strconv.Itoa((page-1)*resultsPerPage))
	} else {
		q.Del("start")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// FetchPage fetches and extracts one result page.
func (s *SERPSource) FetchPage(ctx context.Context, page int) (*Page, error) {
	pageURL := s.PageURL(page)
	log := zap.L().With(zap.String("url", pageURL), zap.Int("page", page))
	log.Info("search: loading serp page")

	res, err := s.fetcher.Fetch(ctx, pageURL, scrape.RunConfig{
		CSSSelector: s.cfg.CSSSelector,
		Timeout:     s.cfg.Timeout,
		BypassCache: s.cfg.BypassCache,
		SessionID:   s.cfg.SessionID,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "search: fetch page %d", page)
	}

	if hasNoResults(res.HTML, res.Markdown, res.ExtractedContent) {
		log.Info("search: no results marker found")
		return &Page{Number: page, NoResults: true}, nil
	}

	content := res.Content()
	if s.cfg.CSSSelector != "" && res.ExtractedContent == "" {
		return nil, eris.Errorf("search: page %d: selector %q matched nothing", page, s.cfg.CSSSelector)
	}

	payload, err := s.extractor.Extract(ctx, extract.Request{
		URL:         pageURL,
		Content:     content,
		Schema:      schema.Candidates(),
		Instruction: s.cfg.Instruction,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "search: extract page %d", page)
	}

	items := extract.DecodeRecords(payload)
	log.Info("search: extracted results", zap.Int("items", len(items)))
	return &Page{Number: page, Items: items}, nil
}

func hasNoResults(texts ...string) bool {
	for _, t := range texts {
		for _, m := range noResultsMarkers {
			if strings.Contains(t, m) {
				return true
			}
		}
	}
	return false
}

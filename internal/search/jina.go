package search

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospector-cli/pkg/jina"
)

// JinaSource harvests the Jina Search API.
type JinaSource struct {
	client jina.Client
	query  string
	site   string
}

// NewJinaSource creates a JinaSource. A non-empty site restricts results to
// that domain.
func NewJinaSource(client jina.Client, query, site string) (*JinaSource, error) {
	if query == "" {
		return nil, eris.New("search: jina source needs a query")
	}
	return &JinaSource{client: client, query: query, site: site}, nil
}

func (s *JinaSource) Name() string { return "jina" }

// FetchPage runs the search for a 1-based page. An empty response is the
// end of results.
func (s *JinaSource) FetchPage(ctx context.Context, page int) (*Page, error) {
	opts := []jina.SearchOption{jina.WithPage(page)}
	if s.site != "" {
		opts = append(opts, jina.WithSiteFilter(s.site))
	}

	resp, err := s.client.Search(ctx, s.query, opts...)
	if err != nil {
		return nil, eris.Wrapf(err, "search: jina page %d", page)
	}
	if len(resp.Data) == 0 {
		return &Page{Number: page, NoResults: true}, nil
	}

	items := make([]map[string]any, 0, len(resp.Data))
	for _, r := range resp.Data {
		snippet := r.Description
		if snippet == "" {
			snippet = truncateRunes(r.Content, 300)
		}
		items = append(items, candidate(r.Title, r.URL, snippet))
	}
	return &Page{Number: page, Items: items}, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

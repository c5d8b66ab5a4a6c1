package search

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospector-cli/pkg/google"
)

const placesPageSize = 20

// PlacesSource harvests Google Places Text Search. Pages are chained by
// the API's page token, so they must be requested in order.
type PlacesSource struct {
	client google.Client
	query  string
	region string

	next      string
	lastPage  int
	exhausted bool
}

// NewPlacesSource creates a PlacesSource. region is a CLDR region code
// such as "BR"; empty leaves it to the API.
func NewPlacesSource(client google.Client, query, region string) (*PlacesSource, error) {
	if query == "" {
		return nil, eris.New("search: places source needs a query")
	}
	return &PlacesSource{client: client, query: query, region: region}, nil
}

func (s *PlacesSource) Name() string { return "places" }

// FetchPage returns the next page of places. Once the API stops returning a
// page token further pages report NoResults.
func (s *PlacesSource) FetchPage(ctx context.Context, page int) (*Page, error) {
	if page != s.lastPage+1 {
		return nil, eris.Errorf("search: places pages must be sequential (want %d, got %d)", s.lastPage+1, page)
	}
	if s.exhausted {
		s.lastPage = page
		return &Page{Number: page, NoResults: true}, nil
	}

	resp, err := s.client.TextSearch(ctx, google.TextSearchRequest{
		TextQuery:  s.query,
		PageSize:   placesPageSize,
		PageToken:  s.next,
		RegionCode: s.region,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "search: places page %d", page)
	}

	s.lastPage = page
	s.next = resp.NextPageToken
	s.exhausted = resp.NextPageToken == ""

	if len(resp.Places) == 0 {
		return &Page{Number: page, NoResults: true}, nil
	}

	items := make([]map[string]any, 0, len(resp.Places))
	for _, p := range resp.Places {
		// Places without a website still have a Maps listing to enrich.
		link := p.WebsiteURI
		if link == "" {
			link = p.GoogleMapsURI
		}
		items = append(items, candidate(p.DisplayName.Text, link, placeSnippet(p)))
	}
	return &Page{Number: page, Items: items}, nil
}

func placeSnippet(p google.Place) string {
	parts := make([]string, 0, 3)
	if p.PrimaryType != nil && p.PrimaryType.Text != "" {
		parts = append(parts, p.PrimaryType.Text)
	}
	if p.FormattedAddress != "" {
		parts = append(parts, p.FormattedAddress)
	}
	if p.NationalPhoneNumber != "" {
		parts = append(parts, p.NationalPhoneNumber)
	}
	return strings.Join(parts, " · ")
}

// Package google calls the Places API (New) Text Search endpoint.
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospector-cli/internal/resilience"
)

const defaultBaseURL = "https://places.googleapis.com/v1"

// fieldMask is sent as X-Goog-FieldMask; Places bills by requested field.
var fieldMask = strings.Join([]string{
	"places.id",
	"places.displayName",
	"places.formattedAddress",
	"places.websiteUri",
	"places.googleMapsUri",
	"places.nationalPhoneNumber",
	"places.internationalPhoneNumber",
	"places.rating",
	"places.userRatingCount",
	"places.primaryTypeDisplayName",
	"nextPageToken",
}, ",")

// Client runs Text Search queries.
type Client interface {
	TextSearch(ctx context.Context, req TextSearchRequest) (*TextSearchResponse, error)
}

type TextSearchRequest struct {
	TextQuery    string `json:"textQuery"`
	PageSize     int    `json:"pageSize,omitempty"`
	PageToken    string `json:"pageToken,omitempty"`
	LanguageCode string `json:"languageCode,omitempty"`
	RegionCode   string `json:"regionCode,omitempty"`
}

// TextSearchResponse is one result page. An empty NextPageToken means it
// is the last.
type TextSearchResponse struct {
	Places        []Place `json:"places"`
	NextPageToken string  `json:"nextPageToken"`
}

type Place struct {
	ID                       string         `json:"id"`
	DisplayName              LocalizedText  `json:"displayName"`
	FormattedAddress         string         `json:"formattedAddress"`
	WebsiteURI               string         `json:"websiteUri"`
	GoogleMapsURI            string         `json:"googleMapsUri"`
	NationalPhoneNumber      string         `json:"nationalPhoneNumber"`
	InternationalPhoneNumber string         `json:"internationalPhoneNumber"`
	Rating                   float64        `json:"rating"`
	UserRatingCount          int            `json:"userRatingCount"`
	PrimaryType              *LocalizedText `json:"primaryTypeDisplayName,omitempty"`
}

type LocalizedText struct {
	Text         string `json:"text"`
	LanguageCode string `json:"languageCode,omitempty"`
}

type Option func(*httpClient)

func WithBaseURL(u string) Option           { return func(c *httpClient) { c.baseURL = u } }
func WithHTTPClient(hc *http.Client) Option { return func(c *httpClient) { c.http = hc } }
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) { c.retry = cfg }
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	retry   resilience.RetryConfig
}

func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		retry:   resilience.ExponentialRetry(3, 500*time.Millisecond, 4*time.Second, 2, 0.25),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) TextSearch(ctx context.Context, in TextSearchRequest) (*TextSearchResponse, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, eris.Wrap(err, "google: encode request")
	}
	retry := c.retry
	retry.OnRetry = resilience.RetryLogger("google", "text_search")
	return resilience.DoVal(ctx, retry, func(ctx context.Context) (*TextSearchResponse, error) {
		return c.searchText(ctx, payload)
	})
}

func (c *httpClient) searchText(ctx context.Context, payload []byte) (*TextSearchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/places:searchText", bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "google: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "google: do request")
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "google: read body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.StatusError(eris.Errorf("google: status %d: %s", resp.StatusCode, raw), resp.StatusCode)
	}

	out := new(TextSearchResponse)
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, eris.Wrap(err, "google: decode response")
	}
	return out, nil
}

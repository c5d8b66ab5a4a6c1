// Package firecrawl calls the Firecrawl v1 scrape endpoint.
package firecrawl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospector-cli/internal/resilience"
)

const defaultBaseURL = "https://api.firecrawl.dev/v1"

// Client scrapes single pages.
type Client interface {
	Scrape(ctx context.Context, req ScrapeRequest) (*ScrapeResponse, error)
}

// ScrapeRequest is the POST /scrape body. Durations are milliseconds.
type ScrapeRequest struct {
	URL         string   `json:"url"`
	Formats     []string `json:"formats,omitempty"`
	IncludeTags []string `json:"includeTags,omitempty"`
	// WaitFor is a fixed render delay.
	WaitFor int `json:"waitFor,omitempty"`
	Timeout int `json:"timeout,omitempty"`
	// MaxAge bounds the age of a cached result. A pointer so an explicit 0
	// (always fresh) is sent.
	MaxAge *int `json:"maxAge,omitempty"`
}

type ScrapeResponse struct {
	Success bool     `json:"success"`
	Data    PageData `json:"data"`
}

type PageData struct {
	URL        string   `json:"url"`
	Markdown   string   `json:"markdown"`
	HTML       string   `json:"html"`
	Title      string   `json:"title"`
	StatusCode int      `json:"statusCode"`
	Metadata   Metadata `json:"metadata"`
}

// Metadata is where current API versions report title, source URL and
// upstream status.
type Metadata struct {
	Title      string `json:"title"`
	SourceURL  string `json:"sourceURL"`
	StatusCode int    `json:"statusCode"`
}

// promote copies metadata fields into empty top-level fields.
func (d *PageData) promote() {
	if d.Title == "" {
		d.Title = d.Metadata.Title
	}
	if d.URL == "" {
		d.URL = d.Metadata.SourceURL
	}
	if d.StatusCode == 0 {
		d.StatusCode = d.Metadata.StatusCode
	}
}

// APIError is a non-2xx reply from Firecrawl.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("firecrawl: HTTP %d: %s", e.StatusCode, e.Body)
}

type Option func(*httpClient)

func WithBaseURL(u string) Option           { return func(c *httpClient) { c.baseURL = u } }
func WithHTTPClient(hc *http.Client) Option { return func(c *httpClient) { c.http = hc } }

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 90 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Scrape does not retry; the fetch chain fails over to the next fetcher
// instead.
func (c *httpClient) Scrape(ctx context.Context, in ScrapeRequest) (*ScrapeResponse, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, eris.Wrap(err, "firecrawl: encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/scrape", bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "firecrawl: build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "firecrawl: do request")
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "firecrawl: read body")
	}
	if resp.StatusCode/100 != 2 {
		return nil, resilience.StatusError(&APIError{StatusCode: resp.StatusCode, Body: string(raw)}, resp.StatusCode)
	}

	out := new(ScrapeResponse)
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, eris.Wrap(err, "firecrawl: decode response")
	}
	out.Data.promote()
	return out, nil
}

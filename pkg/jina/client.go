// Package jina talks to the Jina AI Reader (r.jina.ai) and Search
// (s.jina.ai) endpoints.
package jina

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospector-cli/internal/resilience"
)

const (
	defaultReaderURL = "https://r.jina.ai"
	defaultSearchURL = "https://s.jina.ai"
)

// Client reads rendered pages and runs web searches.
type Client interface {
	Read(ctx context.Context, targetURL string, opts ...ReadOption) (*ReadResponse, error)
	Search(ctx context.Context, query string, opts ...SearchOption) (*SearchResponse, error)
}

type ReadResponse struct {
	Code int      `json:"code"`
	Data ReadData `json:"data"`
}

type ReadData struct {
	Title   string    `json:"title"`
	URL     string    `json:"url"`
	Content string    `json:"content"`
	HTML    string    `json:"html,omitempty"`
	Usage   ReadUsage `json:"usage"`
}

type ReadUsage struct {
	Tokens int `json:"tokens"`
}

type SearchResponse struct {
	Code int            `json:"code"`
	Data []SearchResult `json:"data"`
}

type SearchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Content     string `json:"content"`
	Description string `json:"description"`
}

// ReadOption sets a Reader request header.
type ReadOption func(http.Header)

// WithTargetSelector limits the returned content to a CSS selector.
func WithTargetSelector(sel string) ReadOption {
	return func(h http.Header) { h.Set("X-Target-Selector", sel) }
}

// WithWaitForSelector holds the capture until sel is rendered.
func WithWaitForSelector(sel string) ReadOption {
	return func(h http.Header) { h.Set("X-Wait-For-Selector", sel) }
}

// WithTimeout bounds the render on the Jina side, in whole seconds.
func WithTimeout(d time.Duration) ReadOption {
	return func(h http.Header) {
		if d > 0 {
			h.Set("X-Timeout", strconv.Itoa(int(d.Seconds())))
		}
	}
}

// WithNoCache bypasses the Reader cache.
func WithNoCache() ReadOption {
	return func(h http.Header) { h.Set("X-No-Cache", "true") }
}

// WithReturnFormat picks "markdown" (the default), "html" or "text".
func WithReturnFormat(format string) ReadOption {
	return func(h http.Header) { h.Set("X-Return-Format", format) }
}

// SearchOption sets a Search query parameter.
type SearchOption func(url.Values)

// WithSiteFilter restricts results to one domain.
func WithSiteFilter(domain string) SearchOption {
	return func(v url.Values) { v.Set("site", domain) }
}

// WithPage requests a 1-based result page; page 1 sends nothing.
func WithPage(page int) SearchOption {
	return func(v url.Values) {
		if page > 1 {
			v.Set("page", strconv.Itoa(page))
		}
	}
}

// Option configures the client.
type Option func(*httpClient)

func WithBaseURL(u string) Option           { return func(c *httpClient) { c.baseURL = u } }
func WithSearchBaseURL(u string) Option     { return func(c *httpClient) { c.searchBaseURL = u } }
func WithHTTPClient(hc *http.Client) Option { return func(c *httpClient) { c.http = hc } }

// WithRetry replaces the policy for network errors and 408, 429 and 5xx.
func WithRetry(cfg resilience.RetryConfig) Option { return func(c *httpClient) { c.retry = cfg } }

type httpClient struct {
	apiKey        string
	baseURL       string
	searchBaseURL string
	http          *http.Client
	retry         resilience.RetryConfig
}

func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:        apiKey,
		baseURL:       defaultReaderURL,
		searchBaseURL: defaultSearchURL,
		http:          &http.Client{Timeout: time.Minute},
		retry:         resilience.ExponentialRetry(3, time.Second, 8*time.Second, 2, 0.25),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Read(ctx context.Context, targetURL string, opts ...ReadOption) (*ReadResponse, error) {
	h := http.Header{}
	h.Set("X-Return-Format", "markdown")
	for _, o := range opts {
		o(h)
	}

	body, status, err := c.get(ctx, "read", c.baseURL+"/"+targetURL, h)
	if err != nil {
		return nil, eris.Wrap(err, "jina: read")
	}
	if status != http.StatusOK {
		return nil, eris.Errorf("jina: read status %d: %s", status, body)
	}

	out := new(ReadResponse)
	if err := json.Unmarshal(body, out); err != nil {
		return nil, eris.Wrap(err, "jina: unmarshal read response")
	}
	return out, nil
}

func (c *httpClient) Search(ctx context.Context, query string, opts ...SearchOption) (*SearchResponse, error) {
	q := url.Values{}
	for _, o := range opts {
		o(q)
	}
	u := c.searchBaseURL + "/" + url.PathEscape(query)
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	body, status, err := c.get(ctx, "search", u, nil)
	if err != nil {
		return nil, eris.Wrap(err, "jina: search")
	}
	switch status {
	case http.StatusOK:
	case http.StatusUnprocessableEntity:
		// No results for the query.
		return &SearchResponse{Code: status}, nil
	default:
		return nil, eris.Errorf("jina: search status %d: %s", status, body)
	}

	out := new(SearchResponse)
	if err := json.Unmarshal(body, out); err != nil {
		return nil, eris.Wrap(err, "jina: unmarshal search response")
	}
	return out, nil
}

// get performs an authenticated GET, retrying transient failures. Other
// statuses come back with their body for the caller to judge.
func (c *httpClient) get(ctx context.Context, op, rawURL string, h http.Header) ([]byte, int, error) {
	type reply struct {
		body   []byte
		status int
	}

	retry := c.retry
	retry.OnRetry = resilience.RetryLogger("jina", op)

	r, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (reply, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return reply{}, eris.Wrap(err, "build request")
		}
		for k, vs := range h {
			req.Header[k] = vs
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return reply{}, err
		}
		defer func() { _ = resp.Body.Close() }()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return reply{}, eris.Wrap(err, "read body")
		}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return reply{}, resilience.StatusError(eris.Errorf("status %d: %s", resp.StatusCode, body), resp.StatusCode)
		}
		return reply{body: body, status: resp.StatusCode}, nil
	})
	return r.body, r.status, err
}

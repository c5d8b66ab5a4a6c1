// Package perplexity calls the Perplexity chat completions endpoint.
package perplexity

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospector-cli/internal/resilience"
)

const (
	defaultBaseURL = "https://api.perplexity.ai"
	defaultModel   = "sonar-pro"
	completionPath = "/chat/completions"
)

// Client performs chat completions.
type Client interface {
	ChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error)
}

type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatCompletionResponse struct {
	ID        string   `json:"id"`
	Model     string   `json:"model"`
	Choices   []Choice `json:"choices"`
	Citations []string `json:"citations,omitempty"`
	Usage     Usage    `json:"usage"`
}

type Choice struct {
	Index   int     `json:"index"`
	Message Message `json:"message"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// FirstContent returns the first choice's text, or "" when there is none.
func (r *ChatCompletionResponse) FirstContent() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// Option configures the client.
type Option func(*client)

func WithBaseURL(u string) Option           { return func(c *client) { c.baseURL = u } }
func WithModel(m string) Option             { return func(c *client) { c.model = m } }
func WithHTTPClient(hc *http.Client) Option { return func(c *client) { c.http = hc } }

// WithRetry replaces the policy applied to 408, 429 and 5xx replies.
func WithRetry(cfg resilience.RetryConfig) Option { return func(c *client) { c.retry = cfg } }

type client struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
	retry   resilience.RetryConfig
}

// NewClient creates a Client authenticated with apiKey. Empty option
// values keep the defaults.
func NewClient(apiKey string, opts ...Option) Client {
	c := &client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		model:   defaultModel,
		http:    &http.Client{Timeout: time.Minute},
		retry:   resilience.ExponentialRetry(3, 500*time.Millisecond, 4*time.Second, 2, 0.25),
	}
	for _, o := range opts {
		o(c)
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.model == "" {
		c.model = defaultModel
	}
	return c
}

func (c *client) ChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	if req.Model == "" {
		req.Model = c.model
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "perplexity: encode request")
	}

	retry := c.retry
	retry.OnRetry = resilience.RetryLogger("perplexity", "chat_completion")
	return resilience.DoVal(ctx, retry, func(ctx context.Context) (*ChatCompletionResponse, error) {
		return c.post(ctx, payload)
	})
}

// post sends one attempt. Non-200 replies carry their status so the retry
// policy can tell transient failures apart.
func (c *client) post(ctx context.Context, payload []byte) (*ChatCompletionResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+completionPath, bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "perplexity: build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "perplexity: do request")
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "perplexity: read body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.StatusError(
			eris.Errorf("perplexity: status %d: %s", resp.StatusCode, raw), resp.StatusCode)
	}

	out := new(ChatCompletionResponse)
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, eris.Wrap(err, "perplexity: decode response")
	}
	return out, nil
}

// Package anthropic is a thin wrapper over anthropic-sdk-go exposing only
// the Messages call used for record extraction and query generation.
package anthropic

import (
	"context"
	"errors"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"

	"github.com/sells-group/prospector-cli/internal/resilience"
)

// statusOverloaded is Anthropic's non-standard "overloaded" status.
const statusOverloaded = 529

// Client sends a single Messages request.
type Client interface {
	CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error)
}

type MessageRequest struct {
	Model       string
	MaxTokens   int64
	System      []SystemBlock
	Messages    []Message
	Temperature *float64
}

// SystemBlock is one system prompt block. A non-nil CacheControl marks it
// as an ephemeral cache breakpoint.
type SystemBlock struct {
	Text         string
	CacheControl *CacheControl
}

// CacheControl sets the breakpoint TTL ("5m" or "1h"); empty uses the API
// default.
type CacheControl struct {
	TTL string
}

// Message is a conversational turn. Any role other than "assistant" is
// sent as "user".
type Message struct {
	Role    string
	Content string
}

type MessageResponse struct {
	ID           string
	Model        string
	Content      []ContentBlock
	StopReason   string
	StopSequence string
	Usage        TokenUsage
}

type ContentBlock struct {
	Type string
	Text string
}

// Text joins the response's text blocks.
func (r *MessageResponse) Text() string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	for _, c := range r.Content {
		if c.Type == "text" {
			b.WriteString(c.Text)
		}
	}
	return b.String()
}

// Option adds an SDK request option.
type Option func() option.RequestOption

// WithBaseURL points the client at another API host.
func WithBaseURL(url string) Option {
	return func() option.RequestOption { return option.WithBaseURL(url) }
}

// WithMaxRetries sets the SDK's own retry budget.
func WithMaxRetries(n int) Option {
	return func() option.RequestOption { return option.WithMaxRetries(n) }
}

type sdkClient struct {
	messages sdk.MessageService
}

func NewClient(apiKey string, opts ...Option) Client {
	reqOpts := make([]option.RequestOption, 0, len(opts)+1)
	reqOpts = append(reqOpts, option.WithAPIKey(apiKey))
	for _, o := range opts {
		reqOpts = append(reqOpts, o())
	}
	c := sdk.NewClient(reqOpts...)
	return &sdkClient{messages: c.Messages}
}

func (c *sdkClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	msg, err := c.messages.New(ctx, req.params())
	if err != nil {
		return nil, eris.Wrap(markTransient(err), "anthropic: create message")
	}
	return convertMessage(msg), nil
}

// markTransient tags retryable API statuses so callers' retry policies
// pick them up.
func markTransient(err error) error {
	var apiErr *sdk.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	if code := apiErr.StatusCode; resilience.IsTransientHTTPStatus(code) || code == statusOverloaded {
		return resilience.NewTransientError(err, code)
	}
	return err
}

func (req MessageRequest) params() sdk.MessageNewParams {
	p := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages:  make([]sdk.MessageParam, 0, len(req.Messages)),
	}
	for _, m := range req.Messages {
		text := sdk.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			p.Messages = append(p.Messages, sdk.NewAssistantMessage(text))
		} else {
			p.Messages = append(p.Messages, sdk.NewUserMessage(text))
		}
	}
	for _, s := range req.System {
		block := sdk.TextBlockParam{Text: s.Text}
		if s.CacheControl != nil {
			block.CacheControl = sdk.NewCacheControlEphemeralParam()
			if s.CacheControl.TTL != "" {
				block.CacheControl.TTL = sdk.CacheControlEphemeralTTL(s.CacheControl.TTL)
			}
		}
		p.System = append(p.System, block)
	}
	if req.Temperature != nil {
		p.Temperature = sdk.Float(*req.Temperature)
	}
	return p
}

func convertMessage(msg *sdk.Message) *MessageResponse {
	out := &MessageResponse{
		ID:           msg.ID,
		Model:        string(msg.Model),
		StopReason:   string(msg.StopReason),
		StopSequence: msg.StopSequence,
		Content:      make([]ContentBlock, 0, len(msg.Content)),
		Usage: TokenUsage{
			InputTokens:              msg.Usage.InputTokens,
			OutputTokens:             msg.Usage.OutputTokens,
			CacheCreationInputTokens: msg.Usage.CacheCreationInputTokens,
			CacheReadInputTokens:     msg.Usage.CacheReadInputTokens,
		},
	}
	for _, b := range msg.Content {
		out.Content = append(out.Content, ContentBlock{Type: b.Type, Text: b.Text})
	}
	return out
}

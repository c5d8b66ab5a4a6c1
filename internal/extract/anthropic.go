package extract

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospector-cli/pkg/anthropic"
)

const systemPrompt = `You extract structured data from web page content.
Respond with JSON only: no prose, no markdown fences.
Use only information present in the content. Leave a field out when the page does not show it.`

// AnthropicExtractor performs schema-guided extraction with Claude and
// accumulates token usage across calls.
type AnthropicExtractor struct {
	client          anthropic.Client
	model           string
	maxTokens       int64
	maxContentChars int

	mu    sync.Mutex
	usage anthropic.TokenUsage
	calls int
}

// NewAnthropicExtractor creates an extractor. Content longer than
// maxContentChars runes is truncated; zero disables the limit.
func NewAnthropicExtractor(client anthropic.Client, model string, maxTokens, maxContentChars int) *AnthropicExtractor {
	return &AnthropicExtractor{
		client:          client,
		model:           model,
		maxTokens:       int64(maxTokens),
		maxContentChars: maxContentChars,
	}
}

// Extract sends the content with the schema and instruction and returns
// the model's reply as a Text payload.
func (e *AnthropicExtractor) Extract(ctx context.Context, req Request) (Payload, error) {
	if strings.TrimSpace(req.Content) == "" {
		return None(), eris.Errorf("extract: empty content for %s", req.URL)
	}

	content := req.Content
	if e.maxContentChars > 0 {
		content = truncate(content, e.maxContentChars)
	}

	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     e.model,
		MaxTokens: e.maxTokens,
		System: []anthropic.SystemBlock{
			{Text: systemPrompt},
			// Instruction and schema are identical for every page of a run.
			{Text: schemaBlock(req), CacheControl: &anthropic.CacheControl{TTL: "5m"}},
		},
		Messages: []anthropic.Message{{
			Role:    "user",
			Content: fmt.Sprintf("Page URL: %s\n\n<content>\n%s\n</content>", req.URL, content),
		}},
	})
	if err != nil {
		return None(), eris.Wrapf(err, "extract: llm call for %s", req.URL)
	}

	e.mu.Lock()
	e.usage = e.usage.Add(resp.Usage)
	e.calls++
	e.mu.Unlock()

	zap.L().Debug("extract: llm reply",
		zap.String("url", req.URL),
		zap.String("stop_reason", resp.StopReason),
		zap.Int64("output_tokens", resp.Usage.OutputTokens),
	)

	return Text(resp.Text()), nil
}

func schemaBlock(req Request) string {
	var sb strings.Builder
	if req.Instruction != "" {
		sb.WriteString(req.Instruction)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Return data matching this JSON schema:\n")
	sb.WriteString(req.Schema.JSONSchemaString())
	return sb.String()
}

// Usage returns the accumulated token usage and number of calls.
func (e *AnthropicExtractor) Usage() (anthropic.TokenUsage, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.usage, e.calls
}

// LogUsage logs accumulated usage and estimated cost.
func (e *AnthropicExtractor) LogUsage(phase string) {
	usage, calls := e.Usage()
	zap.L().Info("extract: usage", zap.String("phase", phase), zap.Int("calls", calls))
	usage.LogCost(e.model, phase)
}

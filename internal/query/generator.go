// Package query turns a free-text audience description into a search
// engine query with an LLM.
package query

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospector-cli/pkg/anthropic"
	"github.com/sells-group/prospector-cli/pkg/perplexity"
)

const systemPrompt = `You generate Google search queries that help a company find leads.
Answer with the query only, on a single line, in this format:
construção civil São Jose dos campos ("@gmail.com" OR "@hotmail.com" OR "@yahoo.com") AND Brazil site:instagram.com`

const userPrefix = "Generate a google search query using this information: "

// ErrEmptyQuery is returned when the model reply has no usable query.
var ErrEmptyQuery = errors.New("query: empty query")

// Generator produces a search query from a description.
type Generator interface {
	Generate(ctx context.Context, description string) (string, error)
}

// AnthropicGenerator generates queries with Claude.
type AnthropicGenerator struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicGenerator creates an AnthropicGenerator.
func NewAnthropicGenerator(client anthropic.Client, model string) *AnthropicGenerator {
	return &AnthropicGenerator{client: client, model: model, maxTokens: 256}
}

func (g *AnthropicGenerator) Generate(ctx context.Context, description string) (string, error) {
	if strings.TrimSpace(description) == "" {
		return "", eris.New("query: empty description")
	}
	resp, err := g.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     g.model,
		MaxTokens: g.maxTokens,
		System:    []anthropic.SystemBlock{{Text: systemPrompt}},
		Messages:  []anthropic.Message{{Role: "user", Content: userPrefix + description}},
	})
	if err != nil {
		return "", eris.Wrap(err, "query: anthropic")
	}
	return finish(resp.Text(), "anthropic")
}

// PerplexityGenerator generates queries with Perplexity chat completions.
type PerplexityGenerator struct {
	client perplexity.Client
	model  string
}

// NewPerplexityGenerator creates a PerplexityGenerator. An empty model
// uses the client default.
func NewPerplexityGenerator(client perplexity.Client, model string) *PerplexityGenerator {
	return &PerplexityGenerator{client: client, model: model}
}

func (g *PerplexityGenerator) Generate(ctx context.Context, description string) (string, error) {
	if strings.TrimSpace(description) == "" {
		return "", eris.New("query: empty description")
	}
	resp, err := g.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Model: g.model,
		Messages: []perplexity.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrefix + description},
		},
	})
	if err != nil {
		return "", eris.Wrap(err, "query: perplexity")
	}
	return finish(resp.FirstContent(), "perplexity")
}

func finish(raw, provider string) (string, error) {
	q := Clean(raw)
	if q == "" {
		zap.L().Warn("query: model returned no query", zap.String("provider", provider), zap.String("reply", raw))
		return "", ErrEmptyQuery
	}
	zap.L().Debug("query: generated", zap.String("provider", provider), zap.String("query", q))
	return q, nil
}

var (
	fenceRe = regexp.MustCompile("(?s)```[a-zA-Z]*\\n?(.*?)```")
	thinkRe = regexp.MustCompile(`(?s)<think>.*?</think>`)
	labelRe = regexp.MustCompile(`(?i)^(search\s+)?query\s*:\s*`)
)

// Clean reduces a model reply to the query line: reasoning blocks and code
// fences are removed, a "Query:" label is dropped, and wrapping quotes or
// backticks are trimmed. Curly quotes inside the query become straight
// quotes so search engines treat them as phrase operators.
func Clean(raw string) string {
	s := thinkRe.ReplaceAllString(raw, "")
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		s = m[1]
	}

	line := ""
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}

	line = labelRe.ReplaceAllString(line, "")
	line = strings.NewReplacer("“", `"`, "”", `"`, "‘", "'", "’", "'").Replace(line)
	line = strings.TrimSpace(strings.Trim(line, "`"))
	if len(line) >= 2 && line[0] == '"' && line[len(line)-1] == '"' && strings.Count(line, `"`) == 2 {
		line = line[1 : len(line)-1]
	}
	return strings.TrimSpace(line)
}

package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestTokenUsage_Add(t *testing.T) {
	var total TokenUsage
	total = total.Add(TokenUsage{InputTokens: 10, OutputTokens: 5, CacheCreationInputTokens: 1})
	total = total.Add(TokenUsage{InputTokens: 1, OutputTokens: 1, CacheReadInputTokens: 3})
	assert.Equal(t, TokenUsage{InputTokens: 11, OutputTokens: 6, CacheCreationInputTokens: 1, CacheReadInputTokens: 3}, total)
}

func TestEstimateCost(t *testing.T) {
	million := TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
	tests := []struct {
		name  string
		usage TokenUsage
		model string
		want  float64
	}{
		{"haiku", million, "claude-haiku-4-5-20251001", 6},
		{"sonnet", million, "claude-sonnet-4-5-20250929", 18},
		// 0.5 + 0.25 cache write + 0.03 cache read + 0.5 output
		{"haiku with cache", TokenUsage{
			InputTokens:              500_000,
			OutputTokens:             100_000,
			CacheCreationInputTokens: 200_000,
			CacheReadInputTokens:     300_000,
		}, "claude-haiku-4-5-20251001", 1.28},
		{"unknown model", million, "gpt-x", 0},
		{"zero usage", TokenUsage{}, "claude-haiku-4-5-20251001", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.usage.EstimateCost(tt.model), 1e-9)
		})
	}
}

func TestLogCost(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	defer zap.ReplaceGlobals(zap.New(core))()

	TokenUsage{InputTokens: 1_000_000}.LogCost("claude-haiku-4-5-20251001", "enrich")

	entries := logs.FilterMessage("anthropic: token usage").All()
	if assert.Len(t, entries, 1) {
		f := entries[0].ContextMap()
		assert.Equal(t, "enrich", f["phase"])
		assert.Equal(t, int64(1_000_000), f["input_tokens"])
		assert.InDelta(t, 1.0, f["cost_usd"], 1e-9)
	}
}

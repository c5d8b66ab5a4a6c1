package anthropic

import "go.uber.org/zap"

// TokenUsage counts tokens billed for one or more calls.
type TokenUsage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

func (u TokenUsage) Add(o TokenUsage) TokenUsage {
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
	u.CacheCreationInputTokens += o.CacheCreationInputTokens
	u.CacheReadInputTokens += o.CacheReadInputTokens
	return u
}

// price is USD per million tokens.
type price struct{ input, output float64 }

// Cache writes bill at 1.25x input and cache reads at 0.1x.
const (
	cacheWriteFactor = 1.25
	cacheReadFactor  = 0.1
)

var prices = map[string]price{
	"claude-haiku-4-5-20251001":  {input: 1, output: 5},
	"claude-sonnet-4-5-20250929": {input: 3, output: 15},
}

// EstimateCost returns the USD cost of u on model, or 0 if the model has
// no known price.
func (u TokenUsage) EstimateCost(model string) float64 {
	p, ok := prices[model]
	if !ok {
		return 0
	}
	input := float64(u.InputTokens) +
		float64(u.CacheCreationInputTokens)*cacheWriteFactor +
		float64(u.CacheReadInputTokens)*cacheReadFactor
	return (input*p.input + float64(u.OutputTokens)*p.output) / 1e6
}

// LogCost logs u and its estimated cost for a pipeline phase.
func (u TokenUsage) LogCost(model, phase string) {
	zap.L().Info("anthropic: token usage",
		zap.String("model", model),
		zap.String("phase", phase),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
		zap.Int64("cache_write_tokens", u.CacheCreationInputTokens),
		zap.Int64("cache_read_tokens", u.CacheReadInputTokens),
		zap.Float64("cost_usd", u.EstimateCost(model)),
	)
}

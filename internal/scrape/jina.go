package scrape

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospector-cli/internal/model"
	"github.com/sells-group/prospector-cli/internal/resilience"
	"github.com/sells-group/prospector-cli/pkg/jina"
)

// JinaFetcher renders pages through Jina Reader behind a circuit breaker.
type JinaFetcher struct {
	client  jina.Client
	breaker *resilience.CircuitBreaker
}

// NewJinaFetcher creates a JinaFetcher. Three consecutive failures open the
// circuit for 60s, causing immediate fallback to the next fetcher.
func NewJinaFetcher(client jina.Client) *JinaFetcher {
	cfg := resilience.TripAfter(3, time.Minute)
	// Request timeouts trip the circuit; a cancelled crawl does not.
	cfg.ShouldTrip = func(err error) bool { return !errors.Is(err, context.Canceled) }
	cfg.OnStateChange = func(from, to resilience.CircuitState) {
		zap.L().Warn("scrape: jina circuit breaker state change",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	return &JinaFetcher{
		client:  client,
		breaker: resilience.NewCircuitBreaker(cfg),
	}
}

func (j *JinaFetcher) Name() string { return "jina" }

// Supports returns true unless the circuit breaker is open.
func (j *JinaFetcher) Supports(_ string) bool {
	return j.breaker.State() != resilience.CircuitOpen
}

// Fetch reads a URL via Jina Reader and validates the response.
func (j *JinaFetcher) Fetch(ctx context.Context, targetURL string, cfg RunConfig) (*model.FetchResult, error) {
	opts := []jina.ReadOption{}
	if cfg.CSSSelector != "" {
		opts = append(opts, jina.WithTargetSelector(cfg.CSSSelector))
	}
	if cfg.WaitFor != "" {
		opts = append(opts, jina.WithWaitForSelector(cfg.WaitFor))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, jina.WithTimeout(cfg.Timeout))
	}
	if cfg.BypassCache {
		opts = append(opts, jina.WithNoCache())
	}

	return resilience.ExecuteVal(ctx, j.breaker, func(ctx context.Context) (*model.FetchResult, error) {
		resp, err := j.client.Read(ctx, targetURL, opts...)
		if err != nil {
			return nil, err
		}
		if needsFallback(resp) {
			return nil, eris.New("jina: response needs fallback")
		}

		res := &model.FetchResult{
			URL:        targetURL,
			Success:    true,
			Title:      resp.Data.Title,
			Markdown:   resp.Data.Content,
			HTML:       resp.Data.HTML,
			StatusCode: resp.Code,
			Source:     "jina",
		}
		if cfg.CSSSelector != "" {
			res.ExtractedContent = resp.Data.Content
		}
		return res, nil
	})
}

// challengeSignatures mark interstitial pages returned instead of content.
var challengeSignatures = []string{
	"checking your browser",
	"enable javascript",
	"please enable cookies",
	"access denied",
	"403 forbidden",
	"just a moment",
	"cloudflare",
	"attention required",
	"login • instagram",
}

// needsFallback reports whether a Jina response lacks usable content.
func needsFallback(resp *jina.ReadResponse) bool {
	if resp == nil {
		return true
	}
	if resp.Code != 0 && resp.Code != 200 {
		return true
	}

	content := strings.TrimSpace(resp.Data.Content)
	if len(content) < 100 {
		return true
	}

	lower := strings.ToLower(content)
	for _, sig := range challengeSignatures {
		if strings.Contains(lower, sig) && len(content) < 1000 {
			return true
		}
	}
	return false
}

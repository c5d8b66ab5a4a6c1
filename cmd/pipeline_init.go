package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospector-cli/internal/config"
	"github.com/sells-group/prospector-cli/internal/extract"
	"github.com/sells-group/prospector-cli/internal/pipeline"
	"github.com/sells-group/prospector-cli/internal/query"
	"github.com/sells-group/prospector-cli/internal/schema"
	"github.com/sells-group/prospector-cli/internal/scrape"
	"github.com/sells-group/prospector-cli/internal/search"
	"github.com/sells-group/prospector-cli/internal/store"
	"github.com/sells-group/prospector-cli/internal/table"
	anthropicpkg "github.com/sells-group/prospector-cli/pkg/anthropic"
	"github.com/sells-group/prospector-cli/pkg/firecrawl"
	"github.com/sells-group/prospector-cli/pkg/google"
	"github.com/sells-group/prospector-cli/pkg/jina"
	"github.com/sells-group/prospector-cli/pkg/perplexity"
)

// crawlEnv holds the store and the assembled pipeline for the crawl command.
type crawlEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Table    *table.Table
	Columns  []string
}

// Close releases resources held by the crawl environment.
func (ce *crawlEnv) Close() {
	if ce.Store != nil {
		_ = ce.Store.Close()
	}
}

// initCrawl validates the configuration and wires the store, fetch chain,
// extractor, harvest source and pipeline. Callers should defer env.Close().
func initCrawl(ctx context.Context, resume bool) (*crawlEnv, error) {
	if err := cfg.Validate("crawl"); err != nil {
		return nil, err
	}

	enrichment, err := enrichSchema(cfg.Enrich)
	if err != nil {
		return nil, err
	}
	candidate := schema.Candidates()

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if n, err := st.DeleteExpiredFetches(ctx); err != nil {
		zap.L().Warn("fetch cache purge failed", zap.Error(err))
	} else if n > 0 {
		zap.L().Debug("purged expired fetch cache entries", zap.Int("count", n))
	}

	fetcher, err := buildFetcher(cfg, st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
	extractor := extract.NewAnthropicExtractor(anthropicClient, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens, cfg.Enrich.MaxContentChars)

	var source search.Source
	if !resume {
		source, err = buildSource(cfg, fetcher, extractor)
		if err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "init harvest source")
		}
	}

	run := scrape.RunConfig{
		CSSSelector: cfg.Enrich.CSSSelector,
		WaitFor:     cfg.Enrich.WaitFor,
		Timeout:     secs(cfg.Enrich.PageTimeoutSecs),
		BypassCache: cfg.Enrich.BypassCache,
		SessionID:   cfg.Enrich.SessionID,
	}
	enricher := pipeline.NewEnricher(fetcher, extractor, enrichment, run, cfg.Enrich.Instruction)

	controller := pipeline.NewController(pipeline.ControllerConfig{
		MaxAttempts:   cfg.Enrich.MaxAttempts,
		Cooldown:      secs(cfg.Enrich.CooldownSecs),
		PolitenessMin: secs(cfg.Enrich.PolitenessMinSecs),
		PolitenessMax: secs(cfg.Enrich.PolitenessMaxSecs),
	})

	tbl := table.New(cfg.Output.Path)
	p := pipeline.New(pipeline.Deps{
		Source:     source,
		Table:      tbl,
		Enrich:     enricher.Enrich,
		Controller: controller,
		Recorder:   st,
		Usage:      extractor,
	}, pipeline.Options{
		MaxPages:     cfg.Search.MaxPages,
		PageInterval: secs(cfg.Search.PageDelaySecs),
		Resume:       resume,
		Candidate:    candidate,
		Enrichment:   enrichment,
		Query:        cfg.Search.Query,
	})

	columns, _ := pipeline.Columns(candidate, enrichment)
	zap.L().Info("crawl initialized",
		zap.String("source", cfg.Search.Source),
		zap.String("schema", enrichment.Name),
		zap.Strings("fetch_order", cfg.Fetch.Order),
		zap.String("output", cfg.Output.Path),
	)

	return &crawlEnv{Store: st, Pipeline: p, Table: tbl, Columns: columns}, nil
}

// enrichSchema resolves the enrichment record shape: a schema file wins
// over a preset name.
func enrichSchema(ec config.EnrichConfig) (schema.Schema, error) {
	var (
		sch schema.Schema
		err error
	)
	if ec.SchemaFile != "" {
		sch, err = schema.LoadFile(ec.SchemaFile)
	} else {
		sch, err = schema.Preset(ec.Preset)
	}
	if err != nil {
		return schema.Schema{}, err
	}
	return sch.WithRegion(ec.DefaultRegion), nil
}

// buildFetcher assembles the fetch chain in fetch.order. Reader APIs
// without a key are left out. A positive cache TTL wraps the chain with
// the store-backed fetch cache.
func buildFetcher(c *config.Config, cache scrape.FetchCache) (scrape.Fetcher, error) {
	var fetchers []scrape.Fetcher
	for _, name := range c.Fetch.Order {
		switch name {
		case "local":
			fetchers = append(fetchers, scrape.NewLocalFetcher(scrape.WithUserAgent(c.Fetch.UserAgent)))
		case "jina":
			if c.Jina.Key == "" {
				zap.L().Debug("jina key not set, skipping jina fetcher")
				continue
			}
			fetchers = append(fetchers, scrape.NewJinaFetcher(newJinaClient(c)))
		case "firecrawl":
			if c.Firecrawl.Key == "" {
				zap.L().Debug("firecrawl key not set, skipping firecrawl fetcher")
				continue
			}
			fetchers = append(fetchers, scrape.NewFirecrawlFetcher(
				firecrawl.NewClient(c.Firecrawl.Key, firecrawl.WithBaseURL(c.Firecrawl.BaseURL))))
		default:
			return nil, eris.Errorf("unknown fetcher %q in fetch.order", name)
		}
	}
	if len(fetchers) == 0 {
		return nil, eris.New("fetch.order yields no usable fetcher")
	}

	var f scrape.Fetcher = scrape.NewChain(scrape.NewPathMatcher(c.Fetch.ExcludePaths), fetchers...)
	if c.Fetch.CacheTTLHours > 0 && cache != nil {
		f = scrape.NewCachedFetcher(f, cache, time.Duration(c.Fetch.CacheTTLHours)*time.Hour)
	}
	return f, nil
}

// buildSource creates the harvest source selected by search.source.
func buildSource(c *config.Config, fetcher scrape.Fetcher, extractor extract.Extractor) (search.Source, error) {
	switch c.Search.Source {
	case "serp":
		return search.NewSERPSource(search.SERPConfig{
			BaseURL:     c.Search.BaseURL,
			Query:       c.Search.Query,
			CSSSelector: c.Search.CSSSelector,
			SessionID:   "search_session",
			Timeout:     secs(c.Enrich.PageTimeoutSecs),
		}, fetcher, extractor)
	case "jina":
		return search.NewJinaSource(newJinaClient(c), c.Search.Query, c.Search.Site)
	case "places":
		client := google.NewClient(c.Google.Key, google.WithBaseURL(c.Google.BaseURL))
		return search.NewPlacesSource(client, c.Search.Query, c.Enrich.DefaultRegion)
	default:
		return nil, eris.Errorf("unknown search source %q", c.Search.Source)
	}
}

// buildGenerator creates the query generator selected by query.provider.
func buildGenerator(c *config.Config) (query.Generator, error) {
	switch c.Query.Provider {
	case "anthropic":
		return query.NewAnthropicGenerator(anthropicpkg.NewClient(c.Anthropic.Key), c.Anthropic.Model), nil
	case "perplexity":
		client := perplexity.NewClient(c.Perplexity.Key,
			perplexity.WithBaseURL(c.Perplexity.BaseURL),
			perplexity.WithModel(c.Perplexity.Model),
		)
		return query.NewPerplexityGenerator(client, c.Perplexity.Model), nil
	default:
		return nil, eris.Errorf("unknown query provider %q", c.Query.Provider)
	}
}

func newJinaClient(c *config.Config) jina.Client {
	opts := []jina.Option{jina.WithBaseURL(c.Jina.BaseURL)}
	if c.Jina.SearchBaseURL != "" {
		opts = append(opts, jina.WithSearchBaseURL(c.Jina.SearchBaseURL))
	}
	return jina.NewClient(c.Jina.Key, opts...)
}

func secs(n int) time.Duration {
	return time.Duration(n) * time.Second
}

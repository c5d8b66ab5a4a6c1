//go:build !integration

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospector-cli/internal/config"
	"github.com/sells-group/prospector-cli/internal/query"
	"github.com/sells-group/prospector-cli/internal/schema"
	"github.com/sells-group/prospector-cli/internal/scrape"
	"github.com/sells-group/prospector-cli/internal/search"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Search: config.SearchConfig{
			Source:      "serp",
			BaseURL:     "https://www.google.com/search?hl=pt-BR",
			Query:       "confeitaria recife site:instagram.com",
			CSSSelector: "div.dURPMd",
			MaxPages:    2,
		},
		Enrich: config.EnrichConfig{
			Preset:            "profile",
			MaxAttempts:       3,
			CooldownSecs:      60,
			PolitenessMinSecs: 10,
			PolitenessMaxSecs: 20,
			WaitFor:           "article",
			PageTimeoutSecs:   30,
			SessionID:         "profile_session",
			BypassCache:       true,
			DefaultRegion:     "BR",
		},
		Output:    config.OutputConfig{Path: filepath.Join(dir, "leads.csv")},
		Fetch:     config.FetchConfig{Order: []string{"local", "jina", "firecrawl"}, CacheTTLHours: 24},
		Anthropic: config.AnthropicConfig{Key: "sk-test", Model: "claude-haiku-4-5-20251001", MaxTokens: 1024},
		Query:     config.QueryConfig{Provider: "anthropic"},
		Store:     config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(dir, "ledger.db")},
	}
}

type nopCache struct{ scrape.FetchCache }

func TestBuildFetcher(t *testing.T) {
	c := testConfig(t)

	f, err := buildFetcher(c, nopCache{})
	require.NoError(t, err)
	assert.IsType(t, &scrape.CachedFetcher{}, f)
	assert.Equal(t, "chain", f.Name())

	c.Fetch.CacheTTLHours = 0
	f, err = buildFetcher(c, nopCache{})
	require.NoError(t, err)
	assert.IsType(t, &scrape.Chain{}, f)

	f, err = buildFetcher(testConfig(t), nil)
	require.NoError(t, err)
	assert.IsType(t, &scrape.Chain{}, f, "no cache without a store")
}

func TestBuildFetcher_ExcludedPaths(t *testing.T) {
	c := testConfig(t)
	c.Fetch.ExcludePaths = []string{"/explore/*"}
	c.Fetch.CacheTTLHours = 0

	f, err := buildFetcher(c, nil)
	require.NoError(t, err)
	assert.False(t, f.Supports("https://www.instagram.com/explore/tags"))
	assert.True(t, f.Supports("https://www.instagram.com/mariadoces/"))
}

func TestBuildFetcher_Errors(t *testing.T) {
	c := testConfig(t)
	c.Fetch.Order = []string{"jina", "firecrawl"}
	_, err := buildFetcher(c, nil)
	assert.ErrorContains(t, err, "no usable fetcher", "reader APIs without keys are skipped")

	c.Fetch.Order = []string{"chrome"}
	_, err = buildFetcher(c, nil)
	assert.ErrorContains(t, err, "unknown fetcher")
}

func TestBuildSource(t *testing.T) {
	c := testConfig(t)
	f, err := buildFetcher(c, nil)
	require.NoError(t, err)

	src, err := buildSource(c, f, nil)
	require.NoError(t, err)
	assert.IsType(t, &search.SERPSource{}, src)

	c.Search.Source = "jina"
	c.Jina.Key = "jina-key"
	src, err = buildSource(c, f, nil)
	require.NoError(t, err)
	assert.Equal(t, "jina", src.Name())

	c.Search.Source = "places"
	c.Google.Key = "g-key"
	src, err = buildSource(c, f, nil)
	require.NoError(t, err)
	assert.Equal(t, "places", src.Name())

	c.Search.Source = "bing"
	_, err = buildSource(c, f, nil)
	assert.ErrorContains(t, err, "unknown search source")
}

func TestBuildSource_SERPNeedsQuery(t *testing.T) {
	c := testConfig(t)
	c.Search.Query = ""
	c.Search.BaseURL = "https://www.google.com/search"

	_, err := buildSource(c, nil, nil)
	assert.Error(t, err)

	c.Search.BaseURL = "https://www.google.com/search?q=bolo"
	_, err = buildSource(c, nil, nil)
	assert.NoError(t, err)
}

func TestBuildGenerator(t *testing.T) {
	c := testConfig(t)
	g, err := buildGenerator(c)
	require.NoError(t, err)
	assert.IsType(t, &query.AnthropicGenerator{}, g)

	c.Query.Provider = "perplexity"
	g, err = buildGenerator(c)
	require.NoError(t, err)
	assert.IsType(t, &query.PerplexityGenerator{}, g)

	c.Query.Provider = "openai"
	_, err = buildGenerator(c)
	assert.Error(t, err)
}

func TestEnrichSchema(t *testing.T) {
	sch, err := enrichSchema(config.EnrichConfig{Preset: "website", DefaultRegion: "BR"})
	require.NoError(t, err)
	assert.Equal(t, "website", sch.Name)
	assert.Equal(t, "BR", sch.Region)

	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: menu\nfields:\n  - name: dishes\n    kind: list\n"), 0o644))
	sch, err = enrichSchema(config.EnrichConfig{Preset: "website", SchemaFile: path})
	require.NoError(t, err)
	assert.Equal(t, "menu", sch.Name)
	assert.Equal(t, []string{schema.IdentifierField, "dishes"}, sch.Names())

	_, err = enrichSchema(config.EnrichConfig{Preset: "nope"})
	assert.Error(t, err)
}

func TestInitCrawl(t *testing.T) {
	cfg = testConfig(t)

	env, err := initCrawl(context.Background(), false)
	require.NoError(t, err)
	defer env.Close()

	assert.Equal(t, cfg.Output.Path, env.Table.Path())
	assert.Equal(t, []string{
		"title", "url", "snippet",
		"profile_url", "username", "bio", "followers", "email", "phone", "location", "category", "website",
	}, env.Columns)
	assert.NotNil(t, env.Pipeline)
}

func TestInitCrawl_ResumeSkipsSource(t *testing.T) {
	cfg = testConfig(t)
	cfg.Search.Query = ""
	cfg.Search.BaseURL = "https://www.google.com/search"

	env, err := initCrawl(context.Background(), true)
	require.NoError(t, err)
	env.Close()
}

func TestInitCrawl_Errors(t *testing.T) {
	cfg = testConfig(t)
	cfg.Anthropic.Key = ""
	_, err := initCrawl(context.Background(), false)
	assert.ErrorContains(t, err, "anthropic.key")
	_, statErr := os.Stat(cfg.Store.DatabaseURL)
	assert.True(t, os.IsNotExist(statErr), "store is not opened for an invalid config")

	cfg = testConfig(t)
	cfg.Search.Query = ""
	cfg.Search.BaseURL = "https://www.google.com/search"
	_, err = initCrawl(context.Background(), false)
	assert.ErrorContains(t, err, "init harvest source")
}

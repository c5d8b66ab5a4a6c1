package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Enrich     EnrichConfig     `yaml:"enrich" mapstructure:"enrich"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Firecrawl  FirecrawlConfig  `yaml:"firecrawl" mapstructure:"firecrawl"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Google     GoogleConfig     `yaml:"google" mapstructure:"google"`
	Query      QueryConfig      `yaml:"query" mapstructure:"query"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// SearchConfig configures the harvest phase.
type SearchConfig struct {
	// Source selects the result source: "serp", "jina" or "places".
	Source        string `yaml:"source" mapstructure:"source"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	Query         string `yaml:"query" mapstructure:"query"`
	CSSSelector   string `yaml:"css_selector" mapstructure:"css_selector"`
	Site          string `yaml:"site" mapstructure:"site"`
	MaxPages      int    `yaml:"max_pages" mapstructure:"max_pages"`
	PageDelaySecs int    `yaml:"page_delay_secs" mapstructure:"page_delay_secs"`
}

// EnrichConfig configures the per-candidate enrichment phase.
type EnrichConfig struct {
	Preset            string `yaml:"preset" mapstructure:"preset"`
	SchemaFile        string `yaml:"schema_file" mapstructure:"schema_file"`
	Instruction       string `yaml:"instruction" mapstructure:"instruction"`
	MaxAttempts       int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	CooldownSecs      int    `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
	PolitenessMinSecs int    `yaml:"politeness_min_secs" mapstructure:"politeness_min_secs"`
	PolitenessMaxSecs int    `yaml:"politeness_max_secs" mapstructure:"politeness_max_secs"`
	WaitFor           string `yaml:"wait_for" mapstructure:"wait_for"`
	CSSSelector       string `yaml:"css_selector" mapstructure:"css_selector"`
	PageTimeoutSecs   int    `yaml:"page_timeout_secs" mapstructure:"page_timeout_secs"`
	SessionID         string `yaml:"session_id" mapstructure:"session_id"`
	BypassCache       bool   `yaml:"bypass_cache" mapstructure:"bypass_cache"`
	DefaultRegion     string `yaml:"default_region" mapstructure:"default_region"`
	MaxContentChars   int    `yaml:"max_content_chars" mapstructure:"max_content_chars"`
}

// OutputConfig configures the produced table.
type OutputConfig struct {
	Path     string `yaml:"path" mapstructure:"path"`
	XLSXPath string `yaml:"xlsx_path" mapstructure:"xlsx_path"`
}

// FetchConfig configures the page fetcher chain.
type FetchConfig struct {
	Order        []string `yaml:"order" mapstructure:"order"`
	UserAgent    string   `yaml:"user_agent" mapstructure:"user_agent"`
	ExcludePaths []string `yaml:"exclude_paths" mapstructure:"exclude_paths"`
	// CacheTTLHours keeps successful fetches in the store. 0 disables the cache.
	CacheTTLHours int `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
}

// JinaConfig holds Jina AI Reader settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// FirecrawlConfig holds Firecrawl API settings.
type FirecrawlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// GoogleConfig holds Google Places API settings.
type GoogleConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// QueryConfig configures search query generation.
type QueryConfig struct {
	Provider string `yaml:"provider" mapstructure:"provider"`
}

// StoreConfig configures the run ledger database.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config.yaml and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PROSPECTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Conventional provider variables, so an existing .env works unchanged.
	for key, env := range map[string]string{
		"anthropic.key":  "ANTHROPIC_API_KEY",
		"jina.key":       "JINA_API_KEY",
		"firecrawl.key":  "FIRECRAWL_API_KEY",
		"perplexity.key": "PERPLEXITY_API_KEY",
		"google.key":     "GOOGLE_API_KEY",
	} {
		prefixed := "PROSPECTOR_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", env)
		}
	}

	// Defaults
	v.SetDefault("search.source", "serp")
	v.SetDefault("search.base_url", "https://www.google.com/search")
	v.SetDefault("search.css_selector", "div.dURPMd")
	v.SetDefault("search.query", "")
	v.SetDefault("search.site", "")
	v.SetDefault("search.max_pages", 1)
	v.SetDefault("search.page_delay_secs", 2)
	v.SetDefault("enrich.preset", "profile")
	v.SetDefault("enrich.schema_file", "")
	v.SetDefault("enrich.instruction", "")
	v.SetDefault("enrich.css_selector", "")
	v.SetDefault("enrich.max_attempts", 3)
	v.SetDefault("enrich.cooldown_secs", 60)
	v.SetDefault("enrich.politeness_min_secs", 10)
	v.SetDefault("enrich.politeness_max_secs", 20)
	v.SetDefault("enrich.wait_for", "article")
	v.SetDefault("enrich.page_timeout_secs", 30)
	v.SetDefault("enrich.session_id", "profile_session")
	v.SetDefault("enrich.bypass_cache", true)
	v.SetDefault("enrich.default_region", "BR")
	v.SetDefault("enrich.max_content_chars", 60000)
	v.SetDefault("output.path", "leads.csv")
	v.SetDefault("output.xlsx_path", "")
	v.SetDefault("fetch.order", []string{"local", "jina", "firecrawl"})
	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	v.SetDefault("fetch.cache_ttl_hours", 24)
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v1")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar")
	v.SetDefault("google.base_url", "https://places.googleapis.com/v1")
	v.SetDefault("query.provider", "anthropic")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "prospector.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the settings a command mode depends on are present.
// Modes: "crawl", "query", "export".
func (c *Config) Validate(mode string) error {
	var missing []string

	switch mode {
	case "crawl":
		if c.Output.Path == "" {
			missing = append(missing, "output.path")
		}
		if c.Enrich.MaxAttempts < 1 {
			return eris.New("config: enrich.max_attempts must be at least 1")
		}
		if c.Enrich.PolitenessMaxSecs < c.Enrich.PolitenessMinSecs {
			return eris.New("config: enrich.politeness_max_secs must be >= politeness_min_secs")
		}
		// Extraction always goes through Claude.
		if c.Anthropic.Key == "" {
			missing = append(missing, "anthropic.key")
		}
		switch c.Search.Source {
		case "serp":
			if c.Search.BaseURL == "" {
				missing = append(missing, "search.base_url")
			}
		case "jina":
			if c.Jina.Key == "" {
				missing = append(missing, "jina.key")
			}
		case "places":
			if c.Google.Key == "" {
				missing = append(missing, "google.key")
			}
		default:
			return eris.Errorf("config: unknown search.source %q", c.Search.Source)
		}
	case "query":
		switch c.Query.Provider {
		case "anthropic":
			if c.Anthropic.Key == "" {
				missing = append(missing, "anthropic.key")
			}
		case "perplexity":
			if c.Perplexity.Key == "" {
				missing = append(missing, "perplexity.key")
			}
		default:
			return eris.Errorf("config: unknown query.provider %q", c.Query.Provider)
		}
	case "export":
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.Errorf("config: missing required settings for %s: %s", mode, strings.Join(missing, ", "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

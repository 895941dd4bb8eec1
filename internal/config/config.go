package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Firecrawl   FirecrawlConfig   `yaml:"firecrawl" mapstructure:"firecrawl"`
	DuckDuckGo  DuckDuckGoConfig  `yaml:"duckduckgo" mapstructure:"duckduckgo"`
	Jina        JinaConfig        `yaml:"jina" mapstructure:"jina"`
	Anthropic   AnthropicConfig   `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI      OpenAIConfig      `yaml:"openai" mapstructure:"openai"`
	Salesforce  SalesforceConfig  `yaml:"salesforce" mapstructure:"salesforce"`
	Apollo      ApolloConfig      `yaml:"apollo" mapstructure:"apollo"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	Search      SearchConfig      `yaml:"search" mapstructure:"search"`
	Scrape      ScrapeConfig      `yaml:"scrape" mapstructure:"scrape"`
	Batch       BatchConfig       `yaml:"batch" mapstructure:"batch"`
	Pricing     PricingConfig     `yaml:"pricing" mapstructure:"pricing"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// CacheConfig configures the sqlite research cache.
type CacheConfig struct {
	Path            string `yaml:"path" mapstructure:"path"`
	SearchTTLDays   int    `yaml:"search_ttl_days" mapstructure:"search_ttl_days"`
	ScrapeTTLDays   int    `yaml:"scrape_ttl_days" mapstructure:"scrape_ttl_days"`
	CompanyTTLDays  int    `yaml:"company_ttl_days" mapstructure:"company_ttl_days"`
	PersonTTLDays   int    `yaml:"person_ttl_days" mapstructure:"person_ttl_days"`
	HotTTLMinutes   int    `yaml:"hot_ttl_minutes" mapstructure:"hot_ttl_minutes"`
	DomainScoreFile string `yaml:"domain_score_file" mapstructure:"domain_score_file"`
}

// SearchTTL returns the search namespace TTL as a duration.
func (c CacheConfig) SearchTTL() time.Duration { return days(c.SearchTTLDays) }

// ScrapeTTL returns the scrape namespace TTL as a duration.
func (c CacheConfig) ScrapeTTL() time.Duration { return days(c.ScrapeTTLDays) }

// CompanyTTL returns the company namespace TTL as a duration.
func (c CacheConfig) CompanyTTL() time.Duration { return days(c.CompanyTTLDays) }

// PersonTTL returns the person namespace TTL as a duration.
func (c CacheConfig) PersonTTL() time.Duration { return days(c.PersonTTLDays) }

func days(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }

// FirecrawlConfig holds Firecrawl API settings. Results per query come from
// search.max_results_per_query, not a provider-level knob.
type FirecrawlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// DuckDuckGoConfig holds free-search fallback settings.
type DuckDuckGoConfig struct {
	BaseURL         string  `yaml:"base_url" mapstructure:"base_url"`
	MinIntervalSecs float64 `yaml:"min_interval_secs" mapstructure:"min_interval_secs"`
}

// JinaConfig holds Jina Reader settings.
type JinaConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AnthropicConfig holds the primary LLM provider settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	Model       string `yaml:"model" mapstructure:"model"`
	MaxTokens   int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// OpenAIConfig holds the secondary LLM provider and Batch API settings.
type OpenAIConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	Model       string `yaml:"model" mapstructure:"model"`
	MaxTokens   int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Username string `yaml:"username" mapstructure:"username"`
	KeyPath  string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL string `yaml:"login_url" mapstructure:"login_url"`
}

// ApolloConfig holds Apollo.io enrichment settings.
type ApolloConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// ConcurrencyConfig sets the four independent pipeline gates.
type ConcurrencyConfig struct {
	Companies int `yaml:"companies" mapstructure:"companies"`
	Searches  int `yaml:"searches" mapstructure:"searches"`
	Scrapes   int `yaml:"scrapes" mapstructure:"scrapes"`
	LLMCalls  int `yaml:"llm_calls" mapstructure:"llm_calls"`
}

// SearchConfig configures query planning and ranking.
type SearchConfig struct {
	MaxResultsPerQuery int `yaml:"max_results_per_query" mapstructure:"max_results_per_query"`
	TopURLs            int `yaml:"top_urls" mapstructure:"top_urls"`
	PersonTopURLs      int `yaml:"person_top_urls" mapstructure:"person_top_urls"`
}

// ScrapeConfig configures content extraction.
type ScrapeConfig struct {
	MinContentChars int `yaml:"min_content_chars" mapstructure:"min_content_chars"`
	MaxPageChars    int `yaml:"max_page_chars" mapstructure:"max_page_chars"`
	TimeoutSecs     int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// BatchConfig configures OpenAI Batch API processing.
type BatchConfig struct {
	PollIntervalSecs int  `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	TimeoutSecs      int  `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Disabled         bool `yaml:"disabled" mapstructure:"disabled"`
}

// PricingConfig holds per-provider pricing rates.
type PricingConfig struct {
	Models    map[string]ModelPricing `yaml:"models" mapstructure:"models"`
	Jina      JinaPricing             `yaml:"jina" mapstructure:"jina"`
	Firecrawl FirecrawlPricing        `yaml:"firecrawl" mapstructure:"firecrawl"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	BatchDiscount float64 `yaml:"batch_discount" mapstructure:"batch_discount"`
}

// JinaPricing holds Jina Reader pricing.
type JinaPricing struct {
	PerMTok float64 `yaml:"per_mtok" mapstructure:"per_mtok"`
}

// FirecrawlPricing holds Firecrawl per-query pricing.
type FirecrawlPricing struct {
	PerSearch float64 `yaml:"per_search" mapstructure:"per_search"`
}

// ServerConfig configures the research API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RESEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)

	v.SetDefault("cache.path", "research_cache.db")
	v.SetDefault("cache.search_ttl_days", 7)
	v.SetDefault("cache.scrape_ttl_days", 7)
	v.SetDefault("cache.company_ttl_days", 90)
	v.SetDefault("cache.person_ttl_days", 90)
	v.SetDefault("cache.hot_ttl_minutes", 30)

	v.SetDefault("concurrency.companies", 3)
	v.SetDefault("concurrency.searches", 3)
	v.SetDefault("concurrency.scrapes", 10)
	v.SetDefault("concurrency.llm_calls", 5)

	v.SetDefault("search.max_results_per_query", 5)
	v.SetDefault("search.top_urls", 8)
	v.SetDefault("search.person_top_urls", 4)

	v.SetDefault("scrape.min_content_chars", 100)
	v.SetDefault("scrape.max_page_chars", 12000)
	v.SetDefault("scrape.timeout_secs", 20)

	v.SetDefault("batch.poll_interval_secs", 30)
	v.SetDefault("batch.timeout_secs", 3600)

	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v2")
	v.SetDefault("duckduckgo.base_url", "https://html.duckduckgo.com")
	v.SetDefault("duckduckgo.min_interval_secs", 2.0)
	v.SetDefault("jina.base_url", "https://r.jina.ai")

	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.timeout_secs", 120)
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 4096)
	v.SetDefault("openai.timeout_secs", 120)

	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("apollo.base_url", "https://api.apollo.io/api/v1")

	v.SetDefault("pricing.jina.per_mtok", 0.02)
	v.SetDefault("pricing.firecrawl.per_search", 0.006)
}

// Validate checks that the fields required for the given mode are present.
// Modes: "research" (run/batch/people), "serve", "cache".
func (c *Config) Validate(mode string) error {
	var problems []string

	checkGates := func() {
		gates := map[string]int{
			"concurrency.companies": c.Concurrency.Companies,
			"concurrency.searches":  c.Concurrency.Searches,
			"concurrency.scrapes":   c.Concurrency.Scrapes,
			"concurrency.llm_calls": c.Concurrency.LLMCalls,
		}
		for name, n := range gates {
			if n < 1 || n > 50 {
				problems = append(problems, name+" must be between 1 and 50")
			}
		}
	}

	switch mode {
	case "research":
		if c.Anthropic.Key == "" && c.OpenAI.Key == "" {
			problems = append(problems, "anthropic.key or openai.key is required")
		}
		checkGates()
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		checkGates()
	case "cache":
		if c.Cache.Path == "" {
			problems = append(problems, "cache.path is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
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

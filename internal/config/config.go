package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/michelcools-creator/gem-radar-bot/internal/cost"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Fetcher    FetcherConfig    `yaml:"fetcher" mapstructure:"fetcher"`
	LLM        LLMConfig        `yaml:"llm" mapstructure:"llm"`
	Discovery  DiscoveryConfig  `yaml:"discovery" mapstructure:"discovery"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Scheduler  SchedulerConfig  `yaml:"scheduler" mapstructure:"scheduler"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// LogConfig configures the global zap logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the trigger server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	CORSOrigins    []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	RunTimeoutSecs int      `yaml:"run_timeout_secs" mapstructure:"run_timeout_secs"`
}

// FetcherConfig configures outbound page fetching.
type FetcherConfig struct {
	TimeoutSecs        int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries         int      `yaml:"max_retries" mapstructure:"max_retries"`
	MaxBodyBytes       int64    `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	UserAgents         []string `yaml:"user_agents" mapstructure:"user_agents"`
	RequestsPerSecond  float64  `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	RespectRobots      bool     `yaml:"respect_robots" mapstructure:"respect_robots"`
	RobotsCacheTTLMins int      `yaml:"robots_cache_ttl_mins" mapstructure:"robots_cache_ttl_mins"`
}

// Timeout returns the per-request timeout.
func (c FetcherConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// LLMConfig configures the language model provider and model selection.
type LLMConfig struct {
	Provider      string  `yaml:"provider" mapstructure:"provider"`
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	DefaultAPIKey string  `yaml:"default_api_key" mapstructure:"default_api_key"`
	DefaultModel  string  `yaml:"default_model" mapstructure:"default_model"`
	PremiumModel  string  `yaml:"premium_model" mapstructure:"premium_model"`
	MaxTokens     int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	DeepMaxTokens int64   `yaml:"deep_max_tokens" mapstructure:"deep_max_tokens"`
	Temperature   float64 `yaml:"temperature" mapstructure:"temperature"`
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	BreakerFails  int     `yaml:"breaker_failures" mapstructure:"breaker_failures"`

	// Pricing overrides the built-in per-model rates used for cost metrics.
	Pricing cost.Rates `yaml:"pricing" mapstructure:"pricing"`
}

// Timeout returns the per-call completion timeout.
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// DiscoveryConfig configures the listings discoverer.
type DiscoveryConfig struct {
	ListingsURL string `yaml:"listings_url" mapstructure:"listings_url"`
	MaxResults  int    `yaml:"max_results" mapstructure:"max_results"`
	MaxAttempts int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	MinHTMLLen  int    `yaml:"min_html_len" mapstructure:"min_html_len"`
}

// PipelineConfig configures batch sizes, pacing and recovery thresholds.
type PipelineConfig struct {
	LinkBatchSize      int `yaml:"link_batch_size" mapstructure:"link_batch_size"`
	FetchBatchSize     int `yaml:"fetch_batch_size" mapstructure:"fetch_batch_size"`
	FactsBatchSize     int `yaml:"facts_batch_size" mapstructure:"facts_batch_size"`
	ScoreBatchSize     int `yaml:"score_batch_size" mapstructure:"score_batch_size"`
	DeepBatchSize      int `yaml:"deep_batch_size" mapstructure:"deep_batch_size"`
	RetryBatchSize     int `yaml:"retry_batch_size" mapstructure:"retry_batch_size"`
	NetworkDelayMs     int `yaml:"network_delay_ms" mapstructure:"network_delay_ms"`
	LinkDelayMs        int `yaml:"link_delay_ms" mapstructure:"link_delay_ms"`
	StuckAfterMins     int `yaml:"stuck_after_mins" mapstructure:"stuck_after_mins"`
	RetryMaxAgeHours   int `yaml:"retry_max_age_hours" mapstructure:"retry_max_age_hours"`
	MaxContentChars    int `yaml:"max_content_chars" mapstructure:"max_content_chars"`
	ExcerptChars       int `yaml:"excerpt_chars" mapstructure:"excerpt_chars"`
	PromptCharsPerPage int `yaml:"prompt_chars_per_page" mapstructure:"prompt_chars_per_page"`
}

// NetworkDelay is the pause after every outbound call within a stage.
func (c PipelineConfig) NetworkDelay() time.Duration {
	return time.Duration(c.NetworkDelayMs) * time.Millisecond
}

// LinkDelay is the pause between detail page fetches.
func (c PipelineConfig) LinkDelay() time.Duration {
	return time.Duration(c.LinkDelayMs) * time.Millisecond
}

// StuckAfter is how long a processing or retry_pending coin may sit idle
// before the sweep resets it.
func (c PipelineConfig) StuckAfter() time.Duration {
	return time.Duration(c.StuckAfterMins) * time.Minute
}

// RetryMaxAge is the coin age after which retry_pending gives up.
func (c PipelineConfig) RetryMaxAge() time.Duration {
	return time.Duration(c.RetryMaxAgeHours) * time.Hour
}

// SchedulerConfig configures periodic runs inside the server.
type SchedulerConfig struct {
	IntervalMins int `yaml:"interval_mins" mapstructure:"interval_mins"`
}

// MonitoringConfig configures webhook alerts on pipeline health.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	StuckThreshold       int     `yaml:"stuck_threshold" mapstructure:"stuck_threshold"`
	AlertCooldownMins    int     `yaml:"alert_cooldown_mins" mapstructure:"alert_cooldown_mins"`
}

// DefaultUserAgents is the rotation pool used when none is configured.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.0.0",
}

// Load reads configuration from .env, config.yaml and the environment.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("GEMRADAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "gemradar.db")
	v.SetDefault("store.max_conns", 5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.run_timeout_secs", 900)
	v.SetDefault("fetcher.timeout_secs", 30)
	v.SetDefault("fetcher.max_retries", 3)
	v.SetDefault("fetcher.max_body_bytes", 5<<20)
	v.SetDefault("fetcher.user_agents", DefaultUserAgents)
	v.SetDefault("fetcher.requests_per_second", 2.0)
	v.SetDefault("fetcher.respect_robots", false)
	v.SetDefault("fetcher.robots_cache_ttl_mins", 60)
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.default_model", "gpt-4o-mini")
	v.SetDefault("llm.premium_model", "gpt-4o")
	v.SetDefault("llm.max_tokens", 4000)
	v.SetDefault("llm.deep_max_tokens", 6000)
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.timeout_secs", 120)
	v.SetDefault("llm.breaker_failures", 3)
	v.SetDefault("discovery.listings_url", "https://www.coingecko.com/en/new-cryptocurrencies")
	v.SetDefault("discovery.max_results", 50)
	v.SetDefault("discovery.max_attempts", 3)
	v.SetDefault("discovery.min_html_len", 5000)
	v.SetDefault("pipeline.link_batch_size", 5)
	v.SetDefault("pipeline.fetch_batch_size", 5)
	v.SetDefault("pipeline.facts_batch_size", 3)
	v.SetDefault("pipeline.score_batch_size", 10)
	v.SetDefault("pipeline.deep_batch_size", 3)
	v.SetDefault("pipeline.retry_batch_size", 10)
	v.SetDefault("pipeline.network_delay_ms", 1500)
	v.SetDefault("pipeline.link_delay_ms", 2000)
	v.SetDefault("pipeline.stuck_after_mins", 60)
	v.SetDefault("pipeline.retry_max_age_hours", 24)
	v.SetDefault("pipeline.max_content_chars", 50000)
	v.SetDefault("pipeline.excerpt_chars", 500)
	v.SetDefault("pipeline.prompt_chars_per_page", 6000)
	v.SetDefault("scheduler.interval_mins", 0)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.stuck_threshold", 20)
	v.SetDefault("monitoring.alert_cooldown_mins", 60)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values that would make the pipeline misbehave.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unsupported store driver %q", c.Store.Driver)
	}
	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return eris.Errorf("config: unsupported llm provider %q", c.LLM.Provider)
	}
	if len(c.Fetcher.UserAgents) == 0 {
		return eris.New("config: fetcher.user_agents must not be empty")
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

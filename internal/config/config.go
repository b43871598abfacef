package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Ollama     OllamaConfig     `yaml:"ollama" mapstructure:"ollama"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Extractor  ExtractorConfig  `yaml:"extractor" mapstructure:"extractor"`
	Validation ValidationConfig `yaml:"validation" mapstructure:"validation"`
	Changes    ChangesConfig    `yaml:"changes" mapstructure:"changes"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Schema     SchemaConfig     `yaml:"schema" mapstructure:"schema"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// OllamaConfig holds local model server settings.
type OllamaConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	Model       string `yaml:"model" mapstructure:"model"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// ExtractorConfig selects and tunes the extraction backend.
type ExtractorConfig struct {
	Backend      string  `yaml:"backend" mapstructure:"backend"`
	Provider     string  `yaml:"provider" mapstructure:"provider"`
	Temperature  float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens    int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	RateLimitRPS float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
}

// ValidationConfig tunes confidence scoring and plausibility checks.
type ValidationConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	MaxFee              float64 `yaml:"max_fee" mapstructure:"max_fee"`
	GraceDays           int     `yaml:"grace_days" mapstructure:"grace_days"`
	MaxFutureYears      int     `yaml:"max_future_years" mapstructure:"max_future_years"`
}

// ChangesConfig tunes change detection.
type ChangesConfig struct {
	CurrencyTolerance float64 `yaml:"currency_tolerance" mapstructure:"currency_tolerance"`
}

// RetryConfig tunes transient-failure retries for model calls.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentSources int `yaml:"max_concurrent_sources" mapstructure:"max_concurrent_sources"`
	ConflictRetries      int `yaml:"conflict_retries" mapstructure:"conflict_retries"`
}

// SchemaConfig points at the extraction schema definition.
type SchemaConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the HTTP API server.
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
	v.SetEnvPrefix("PROGWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "progwatch.db")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("ollama.base_url", "http://localhost:11434")
	v.SetDefault("ollama.model", "llama3.1")
	v.SetDefault("ollama.timeout_secs", 120)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("extractor.backend", "heuristic")
	v.SetDefault("extractor.provider", "ollama")
	v.SetDefault("extractor.temperature", 0.0)
	v.SetDefault("extractor.max_tokens", 1024)
	v.SetDefault("extractor.rate_limit_rps", 2.0)
	v.SetDefault("validation.confidence_threshold", 0.7)
	v.SetDefault("validation.max_fee", 1000000)
	v.SetDefault("validation.grace_days", 365)
	v.SetDefault("validation.max_future_years", 5)
	v.SetDefault("changes.currency_tolerance", 0.005)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("schema.path", "")
	v.SetDefault("batch.max_concurrent_sources", 5)
	v.SetDefault("batch.conflict_retries", 3)
	v.SetDefault("server.port", 8080)
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

// Validate checks the configuration for a given command mode. Shared
// invariants are checked for every mode; mode-specific requirements come on
// top.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			problems = append(problems, "store.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}

	switch c.Extractor.Backend {
	case "heuristic":
	case "model":
		switch c.Extractor.Provider {
		case "ollama":
		case "anthropic":
			if c.Anthropic.Key == "" {
				problems = append(problems, "anthropic.key is required for the anthropic provider")
			}
		default:
			problems = append(problems, fmt.Sprintf("extractor.provider must be ollama or anthropic, got %q", c.Extractor.Provider))
		}
	default:
		problems = append(problems, fmt.Sprintf("extractor.backend must be heuristic or model, got %q", c.Extractor.Backend))
	}

	if c.Validation.ConfidenceThreshold <= 0 || c.Validation.ConfidenceThreshold > 1 {
		problems = append(problems, "validation.confidence_threshold must be in (0, 1]")
	}

	switch mode {
	case "run", "history":
	case "batch":
		if c.Batch.MaxConcurrentSources < 1 || c.Batch.MaxConcurrentSources > 50 {
			problems = append(problems, "batch.max_concurrent_sources must be between 1 and 50")
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be > 0 and <= 65535")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
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

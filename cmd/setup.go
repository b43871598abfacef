package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/progwatch/progwatch-cli/internal/changedetect"
	"github.com/progwatch/progwatch-cli/internal/extractor"
	"github.com/progwatch/progwatch-cli/internal/pipeline"
	"github.com/progwatch/progwatch-cli/internal/resilience"
	"github.com/progwatch/progwatch-cli/internal/schema"
	"github.com/progwatch/progwatch-cli/internal/store"
	"github.com/progwatch/progwatch-cli/internal/validate"
	"github.com/progwatch/progwatch-cli/pkg/claude"
	"github.com/progwatch/progwatch-cli/pkg/ollama"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.Path
		if path == "" {
			path = "progwatch.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initSchema() (*schema.Schema, error) {
	if cfg.Schema.Path == "" {
		return schema.DefaultProgram(), nil
	}
	return schema.Load(cfg.Schema.Path)
}

func retryConfig() resilience.RetryConfig {
	rc := resilience.DefaultRetryConfig()
	if cfg.Retry.MaxAttempts > 0 {
		rc.MaxAttempts = cfg.Retry.MaxAttempts
	}
	if cfg.Retry.InitialBackoffMs > 0 {
		rc.InitialBackoff = time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond
	}
	if cfg.Retry.MaxBackoffMs > 0 {
		rc.MaxBackoff = time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond
	}
	if cfg.Retry.Multiplier > 0 {
		rc.Multiplier = cfg.Retry.Multiplier
	}
	return rc
}

// initExtractor builds the configured extraction backend, optionally
// overridden by a --extractor flag value.
func initExtractor(backend string) (extractor.Extractor, error) {
	if backend == "" {
		backend = cfg.Extractor.Backend
	}

	switch backend {
	case "heuristic":
		return extractor.NewHeuristic(nil), nil
	case "model":
		gen, model, err := initGenerator()
		if err != nil {
			return nil, err
		}
		return extractor.NewModelBacked(gen, extractor.ModelConfig{
			Model:       model,
			Temperature: cfg.Extractor.Temperature,
			MaxTokens:   int64(cfg.Extractor.MaxTokens),
			Retry:       retryConfig(),
		}), nil
	default:
		return nil, eris.Errorf("unsupported extractor backend: %s", backend)
	}
}

func initGenerator() (extractor.Generator, string, error) {
	switch cfg.Extractor.Provider {
	case "ollama", "":
		client := ollama.NewClient(
			ollama.WithBaseURL(cfg.Ollama.BaseURL),
			ollama.WithModel(cfg.Ollama.Model),
			ollama.WithTimeout(time.Duration(cfg.Ollama.TimeoutSecs)*time.Second),
		)
		return extractor.NewOllamaGenerator(client, cfg.Ollama.Model), cfg.Ollama.Model, nil
	case "anthropic":
		if cfg.Anthropic.Key == "" {
			return nil, "", eris.New("anthropic API key is required (PROGWATCH_ANTHROPIC_KEY)")
		}
		client := claude.NewClient(cfg.Anthropic.Key)
		return extractor.NewClaudeGenerator(client, cfg.Anthropic.Model), cfg.Anthropic.Model, nil
	default:
		return nil, "", eris.Errorf("unsupported model provider: %s", cfg.Extractor.Provider)
	}
}

// initRunner assembles the full pipeline. Model-backed extraction gets a
// rate limiter; the heuristic backend runs unthrottled.
func initRunner(st store.Store, ex extractor.Extractor, sch *schema.Schema, backend string) *pipeline.Runner {
	if backend == "" {
		backend = cfg.Extractor.Backend
	}

	scorer := validate.New(validate.Config{
		ConfidenceThreshold: cfg.Validation.ConfidenceThreshold,
		MaxFee:              cfg.Validation.MaxFee,
		GraceDays:           cfg.Validation.GraceDays,
		MaxFutureYears:      cfg.Validation.MaxFutureYears,
	})
	differ := changedetect.New(changedetect.Config{
		CurrencyTolerance: cfg.Changes.CurrencyTolerance,
	})

	opts := []pipeline.Option{
		pipeline.WithConflictRetries(cfg.Batch.ConflictRetries),
	}
	if backend == "model" && cfg.Extractor.RateLimitRPS > 0 {
		opts = append(opts, pipeline.WithRateLimiter(
			rate.NewLimiter(rate.Limit(cfg.Extractor.RateLimitRPS), 1),
		))
	}

	return pipeline.NewRunner(st, ex, scorer, differ, sch, opts...)
}

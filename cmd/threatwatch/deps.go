package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/deusflow/threatwatch/internal/app"
	"github.com/deusflow/threatwatch/internal/cache"
	"github.com/deusflow/threatwatch/internal/classify"
	"github.com/deusflow/threatwatch/internal/config"
	"github.com/deusflow/threatwatch/internal/geocode"
	"github.com/deusflow/threatwatch/internal/httpclient"
	"github.com/deusflow/threatwatch/internal/llm"
	"github.com/deusflow/threatwatch/internal/logger"
	"github.com/deusflow/threatwatch/internal/ratelimit"
	"github.com/deusflow/threatwatch/internal/rss"
	"github.com/deusflow/threatwatch/internal/scraper"
	"github.com/deusflow/threatwatch/internal/sources"
	"github.com/deusflow/threatwatch/internal/storage"
	"github.com/deusflow/threatwatch/internal/summary"
	"github.com/deusflow/threatwatch/internal/telegram"
	"github.com/deusflow/threatwatch/internal/translate"
)

const (
	llmTimeout  = 120 * time.Second
	cachePrefix = "threatwatch:"
)

// llmMode says how a command uses the model.
type llmMode int

const (
	llmNone     llmMode = iota // never calls the model
	llmOptional                // falls back when no key is configured
	llmRequired
)

// runtime bundles what a command needs and releases it on Close.
type runtime struct {
	cfg      *config.Config
	store    storage.Store
	pipeline *app.Pipeline
	closers  []func() error
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			logger.Warn("Close failed", "error", err)
		}
	}
}

func setup(ctx context.Context, mode llmMode) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}
	initLogging(cfg)
	rt := &runtime{cfg: cfg}

	rt.store, err = storage.Open(ctx, cfg.StoreDriver, cfg.DataDir, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	rt.closers = append(rt.closers, rt.store.Close)

	geoCache, err := cache.Open(cfg.GeocodeCacheURL, cachePrefix)
	if err != nil {
		logger.Warn("Geocode cache unavailable, using in-memory cache", "error", err)
		geoCache = cache.NewMemory()
	}
	rt.closers = append(rt.closers, geoCache.Close)

	client := httpclient.New(cfg.RequestTimeout)
	deps := app.Deps{
		Store:      rt.store,
		Geocoder:   geocode.New(client, cfg.NominatimURL, geoCache),
		Summarizer: summary.New(nil),
	}

	var registry *sources.Registry
	if mode == llmRequired {
		registry, err = sources.Load(cfg.SourcesFile)
		if err != nil {
			rt.Close()
			return nil, err
		}
		deps.Fetchers = map[string]app.Fetcher{
			sources.TypeRSS:      rss.NewFetcher(client, cfg.NewArticleAge),
			sources.TypeScrape:   scraper.NewFetcher(client),
			sources.TypeTelegram: telegram.NewFetcher(client, cfg.NewArticleAge),
		}
	}

	if mode != llmNone {
		if err := cfg.RequireLLM(); err != nil {
			if mode == llmRequired {
				rt.Close()
				return nil, err
			}
			logger.Warn("No LLM key configured, using fallback output", "error", err)
		} else {
			pacer := ratelimit.PerMinute(cfg.LLMRPM, 0)
			model, closeFn, err := newLLMClient(ctx, cfg, pacer)
			if err != nil {
				rt.Close()
				return nil, err
			}
			if closeFn != nil {
				rt.closers = append(rt.closers, closeFn)
			}
			deps.Translator = translate.New(model)
			deps.Classifier = classify.New(model, cfg.MaxClassify)
			deps.Summarizer = summary.New(model)
			deps.LLMPacer = pacer
			logger.Info("LLM client ready", "provider", cfg.LLMProvider, "model", cfg.LLMModel, "rpm", cfg.LLMRPM)
		}
	}

	if mode == llmRequired && cfg.EnableMonitoring {
		srv := startMonitoringServer(cfg.MonitoringPort)
		rt.closers = append(rt.closers, func() error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	rt.pipeline = app.New(cfg, registry, deps)
	return rt, nil
}

// newLLMClient builds the provider client. The returned close func may be nil.
func newLLMClient(ctx context.Context, cfg *config.Config, pacer *ratelimit.Pacer) (llm.Client, func() error, error) {
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		c, err := llm.NewGeminiClient(ctx, cfg.LLMAPIKey, cfg.LLMModel, pacer)
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	default:
		httpClient := &http.Client{Timeout: llmTimeout}
		return llm.NewOpenAIClient(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.LLMModel, httpClient, pacer), nil, nil
	}
}

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/choraleia/coach/pkg/coach"
	"github.com/choraleia/coach/pkg/config"
	"github.com/choraleia/coach/pkg/metrics"
	"github.com/choraleia/coach/pkg/search"
	"github.com/choraleia/coach/pkg/service"
	"github.com/choraleia/coach/pkg/utils"
	"github.com/redis/go-redis/v9"
)

const searchTimeout = 30 * time.Second

// core is the turn pipeline shared by the server and the ask command.
type core struct {
	orchestrator *coach.Orchestrator
	redis        *redis.Client
}

func (c *core) Close() {
	if c.redis != nil {
		_ = c.redis.Close()
	}
}

// newCore builds the model client, the search provider and the orchestrator.
func newCore(ctx context.Context, cfg *config.AppConfig, m *metrics.Metrics) (*core, error) {
	logger := utils.GetLogger()

	client, err := service.NewModelService().NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	provider, rdb := newSearchProvider(ctx, cfg, logger)
	orchestrator := coach.NewOrchestrator(client, coach.Options{
		Classifier:       coach.NewClassifier(cfg.Classifier(), client),
		SearchProvider:   provider,
		SearchMaxResults: cfg.SearchMaxResults(),
		Metrics:          m,
	})
	return &core{orchestrator: orchestrator, redis: rdb}, nil
}

// newSearchProvider returns nil when search is disabled. The Redis cache is
// optional; a failed connection only disables caching.
func newSearchProvider(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (search.Provider, *redis.Client) {
	switch cfg.SearchProvider() {
	case "tavily":
	case "none":
		return nil, nil
	default:
		logger.Warn("Unknown search provider, web search disabled", "provider", cfg.SearchProvider())
		return nil, nil
	}

	if cfg.Search.APIKey == "" {
		logger.Warn("TAVILY_API_KEY is not set; searches will report failure")
	}
	var provider search.Provider = search.NewTavilyProvider(cfg.SearchEndpoint(), cfg.Search.APIKey, searchTimeout)

	if cfg.Redis.Addr == "" {
		return provider, nil
	}
	rdb, err := search.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn("Search cache disabled", "error", err)
		return provider, nil
	}
	ttl := time.Duration(cfg.SearchCacheTTLSeconds()) * time.Second
	logger.Info("Search cache enabled", "addr", cfg.Redis.Addr, "ttl", ttl)
	return search.NewCachedProvider(provider, rdb, ttl), rdb
}

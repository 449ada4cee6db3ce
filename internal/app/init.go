package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nulpointcorp/agentreg/internal/auditlog"
	npCache "github.com/nulpointcorp/agentreg/internal/cache"
	"github.com/nulpointcorp/agentreg/internal/config"
	"github.com/nulpointcorp/agentreg/internal/gateway"
	"github.com/nulpointcorp/agentreg/internal/llmclient"
	"github.com/nulpointcorp/agentreg/internal/metrics"
	"github.com/nulpointcorp/agentreg/internal/promptregistry"
	"github.com/nulpointcorp/agentreg/internal/providers"
	"github.com/nulpointcorp/agentreg/internal/providers/mockprovider"
	"github.com/nulpointcorp/agentreg/internal/providers/remote"
	"github.com/nulpointcorp/agentreg/internal/ratelimit"
)

// initInfra establishes optional external connections. Redis is
// required when CACHE_BACKEND=redis or when the distributed RPM guard
// is enabled (RPM_LIMIT > 0); config validation has already insisted
// on REDIS_URL for both.
func (a *App) initInfra(ctx context.Context) error {
	if a.cfg.Cache.Backend == "redis" || a.cfg.RateLimit.RPMLimit > 0 {
		a.log.Info("connecting to redis", slog.String("url", redactURL(a.cfg.Redis.URL)))

		rdb, err := connectRedis(ctx, a.cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		a.rdb = rdb
		a.log.Info("redis connected")
	}

	return nil
}

// initProvider builds the single configured Provider. Config
// validation already rejects any value other than mock/remote.
func (a *App) initProvider(_ context.Context) error {
	a.provider = buildProvider(a.cfg)
	a.log.Info("provider loaded",
		slog.String("provider", a.cfg.LLM.Provider),
		slog.String("model", a.cfg.LLM.Model),
	)
	return nil
}

// buildProvider constructs the single configured Provider, "mock" or
// "remote"; config validation already rejects any other value.
func buildProvider(cfg *config.Config) providers.Provider {
	if cfg.LLM.Provider == "remote" {
		return remote.New("remote", cfg.LLM.Model, cfg.LLM.APIKey, cfg.LLM.BaseURL)
	}
	return mockprovider.New(cfg.LLM.Model)
}

// initServices creates the cache backend, Prompt Registry, Audit Log
// Store, and Prometheus metrics registry.
func (a *App) initServices(ctx context.Context) error {
	switch a.cfg.Cache.Backend {
	case "redis":
		a.log.Info("cache backend: redis")
	case "memory":
		a.memCache = npCache.NewMemoryCache(ctx, a.cfg.Cache.MaxEntries)
		a.log.Info("cache backend: memory (in-process)")
	default:
		return fmt.Errorf("unknown cache backend: %s", a.cfg.Cache.Backend)
	}

	a.prom = metrics.New()
	a.prom.SetBuildInfo(a.version)

	if a.cfg.PromptRegistry.Dir != "" {
		reg, err := promptregistry.Load(a.cfg.PromptRegistry.Dir, a.cfg.PromptRegistry.DefaultVersion)
		if err != nil {
			a.log.Warn("prompt registry not loaded",
				slog.String("dir", a.cfg.PromptRegistry.Dir),
				slog.String("error", err.Error()),
			)
		} else {
			a.prompts = reg
			a.log.Info("prompt registry loaded", slog.Int("versions", len(reg.ListVersions())))
		}
	}

	store, err := auditlog.New(ctx, a.cfg.LogDir, a.log)
	if err != nil {
		return fmt.Errorf("audit log: %w", err)
	}
	a.audit = store

	return nil
}

// initGateway wires together the Gateway with all configured
// subsystems: LLM Client, Rate Limiter, Response Cache, Prompt
// Registry, Pricing Table, Audit Log Store.
func (a *App) initGateway(_ context.Context) error {
	a.client = llmclient.New(a.provider, a.cfg.LLM.Timeout(), a.cfg.LLM.MaxRetries, a.log)

	a.limiter = ratelimit.NewLimiter(a.cfg.RateLimit.QPS, a.cfg.RateLimit.TPM)
	if a.rdb != nil && a.cfg.RateLimit.RPMLimit > 0 {
		a.rpm = ratelimit.NewRPMLimiter(a.rdb, a.cfg.RateLimit.RPMLimit)
		a.log.Info("distributed RPM guard enabled", slog.Int("rpm_limit", a.cfg.RateLimit.RPMLimit))
	}

	var cacheBackend npCache.Cache
	switch a.cfg.Cache.Backend {
	case "redis":
		cacheBackend = npCache.NewExactCacheFromClient(a.rdb)
	case "memory":
		cacheBackend = a.memCache
	}

	var exclusions *npCache.ExclusionList
	if len(a.cfg.Cache.ExcludeExact) > 0 || len(a.cfg.Cache.ExcludePatterns) > 0 {
		el, err := npCache.NewExclusionList(a.cfg.Cache.ExcludeExact, a.cfg.Cache.ExcludePatterns)
		if err != nil {
			return fmt.Errorf("cache exclusions: %w", err)
		}
		exclusions = el
		a.log.Info("cache exclusions loaded", slog.Int("rules", el.Len()))
	}

	respCache := npCache.NewResponseCache(cacheBackend, a.cfg.Cache.TTL(), a.cfg.Cache.Enabled, exclusions)

	a.gw = gateway.New(
		a.client,
		a.provider,
		a.limiter,
		a.rpm,
		respCache,
		a.prompts,
		a.audit,
		defaultPricing,
		a.log,
		a.prom,
	)

	return nil
}

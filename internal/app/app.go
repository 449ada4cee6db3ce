// Package app wires up all subsystems and owns the application lifecycle.
//
// Startup order:
//  1. initInfra     — external connections (Redis, when configured)
//  2. initProvider  — the single configured LLM Provider
//  3. initServices  — cache backend, prompt registry, audit store, metrics
//  4. initGateway   — the Gateway itself, wrapping all of the above
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	npCache "github.com/nulpointcorp/agentreg/internal/cache"
	"github.com/nulpointcorp/agentreg/internal/config"
	"github.com/nulpointcorp/agentreg/internal/gateway"
	"github.com/nulpointcorp/agentreg/internal/llmclient"
	"github.com/nulpointcorp/agentreg/internal/metrics"
	"github.com/nulpointcorp/agentreg/internal/pricing"
	"github.com/nulpointcorp/agentreg/internal/promptregistry"
	"github.com/nulpointcorp/agentreg/internal/auditlog"
	"github.com/nulpointcorp/agentreg/internal/providers"
	"github.com/nulpointcorp/agentreg/internal/ratelimit"
)

// App owns all long-lived resources and exposes Run / Close.
type App struct {
	version string
	cfg     *config.Config
	baseCtx context.Context
	log     *slog.Logger

	// Optional external connections — nil when not configured.
	rdb *redis.Client

	memCache *npCache.MemoryCache
	prom     *metrics.Registry
	prompts  *promptregistry.Registry

	provider providers.Provider
	client   *llmclient.Client
	limiter  *ratelimit.Limiter
	rpm      *ratelimit.RPMLimiter

	audit *auditlog.Store // set by initServices, consumed by initGateway

	gw *gateway.Gateway
}

// New initialises all subsystems and returns a ready-to-run App. All
// resources allocated here are released by Close.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger, version string) (*App, error) {
	if ctx == nil {
		return nil, fmt.Errorf("app: context must not be nil")
	}

	a := &App{cfg: cfg, version: version, baseCtx: ctx, log: log}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"infra", a.initInfra},
		{"provider", a.initProvider},
		{"services", a.initServices},
		{"gateway", a.initGateway},
	}

	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("app: init %s: %w", s.name, err)
		}
	}

	return a, nil
}

// Harness exposes the wired Gateway, Audit Log Store, and Prometheus
// registry to cmd/agentreg's run subcommand, which drives a catalogue
// through the same Gateway the HTTP server uses instead of standing up
// its own copy of the pipeline.
func (a *App) Harness() (*gateway.Gateway, *auditlog.Store, *metrics.Registry) {
	return a.gw, a.audit, a.prom
}

// Run starts the HTTP server and blocks until ctx is cancelled or an error
// occurs. It closes the app gracefully when returning.
func (a *App) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", a.cfg.Port)

	a.log.Info("starting gateway",
		slog.String("version", a.version),
		slog.String("addr", addr),
		slog.String("cache_backend", a.cfg.Cache.Backend),
		slog.String("provider", a.cfg.LLM.Provider),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.Start(addr)
	})

	g.Go(func() error {
		<-gctx.Done()
		a.Close()
		return nil
	})

	return g.Wait()
}

// Close releases all resources in reverse-init order. Safe to call multiple
// times in sequence; it takes no lock, so concurrent calls are not safe.
func (a *App) Close() {
	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			a.log.Error("audit log close error", slog.String("error", err.Error()))
		}
		a.audit = nil
	}
	if a.memCache != nil {
		a.memCache.Close()
		a.memCache = nil
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Error("redis close error", slog.String("error", err.Error()))
		}
		a.rdb = nil
	}
}

// ── Private helpers ──────────────────────────────────────────────────────

// connectRedis parses the URL and verifies connectivity with a PING.
func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return rdb, nil
}

// redactURL replaces the userinfo portion of a URL with "***" for safe logging.
func redactURL(raw string) string {
	for i, c := range raw {
		if c == '@' {
			for j := i - 1; j >= 0; j-- {
				if j+2 < len(raw) && raw[j:j+3] == "://" {
					return raw[:j+3] + "***" + raw[i:]
				}
			}
			return "***" + raw[i:]
		}
	}
	return raw
}

// defaultPricing is the pricing table the Gateway is wired with.
// A custom Table could be injected here if per-deployment rate
// overrides are ever needed.
var defaultPricing = pricing.DefaultTable

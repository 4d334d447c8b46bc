// Package bootstrap wires the auth service, the tiered memory subsystem, the
// persona router, the dispatch core, and the observability collector into a
// running HTTP server (spec §6, §9's "single composition root" note).
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"alex/internal/async"
	"alex/internal/auth/adapters"
	authapp "alex/internal/auth/app"
	"alex/internal/auth/ports"
	deliveryhttp "alex/internal/delivery/server/http"
	"alex/internal/dispatch"
	"alex/internal/memory/facade"
	"alex/internal/memory/knowledge"
	"alex/internal/memory/longterm"
	"alex/internal/memory/midterm"
	"alex/internal/memory/shortterm"
	"alex/internal/observability"
	"alex/internal/persona"
	"alex/internal/plugin"
	runtimeconfig "alex/internal/shared/config"
	sharederrors "alex/internal/shared/errors"
	"alex/internal/shared/logging"
)

// RunServer loads configuration, wires every collaborator, and serves until
// the process receives an interrupt or terminate signal. configPath is read
// both as the layered service config (server/auth/memory/quota/retry/persona)
// and as the observability config (its own top-level `observability:` key),
// so a single file covers both.
func RunServer(configPath string) error {
	cfg, err := runtimeconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	obsCfg, err := observability.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load observability config: %w", err)
	}
	logging.SetMinLevel(logging.ParseLevel(obsCfg.Logging.Level))

	users, identities, sessions, err := buildAuthStores()
	if err != nil {
		return fmt.Errorf("build auth stores: %w", err)
	}
	tokens := adapters.NewJWTTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTokenTTL)
	authSvc := authapp.NewService(users, identities, sessions, tokens, authapp.Config{
		AccessTokenTTL: cfg.Auth.AccessTokenTTL, RefreshTokenTTL: cfg.Auth.RefreshTokenTTL,
	})

	memory := facade.New(
		shortterm.New(cfg.Memory.ShortTermMaxItems, cfg.Memory.ShortTermTTL),
		midterm.New(midterm.NewInMemoryDurable(), cfg.Memory.MidTermTTL, cfg.Memory.MidTermWorkingSetSize, cfg.Memory.HotCacheHorizon),
		longterm.New(),
		knowledge.New(),
	)

	router := persona.NewRouter(
		cfg.Persona.Default,
		[]string{cfg.Persona.Default, cfg.Persona.SearchPersona, cfg.Persona.ExplainPersona},
		cfg.Persona.SearchPersona, cfg.Persona.SearchTokens,
		cfg.Persona.ExplainPersona, cfg.Persona.ExplainTokens,
	)
	handlers := map[string]persona.Handler{
		cfg.Persona.Default:        persona.NewTemplateHandler(cfg.Persona.Default, "You are a helpful, direct assistant.", persona.EchoBackend{}),
		cfg.Persona.SearchPersona:  persona.NewTemplateHandler(cfg.Persona.SearchPersona, "You search for and summarize relevant information.", persona.EchoBackend{}),
		cfg.Persona.ExplainPersona: persona.NewTemplateHandler(cfg.Persona.ExplainPersona, "You explain concepts step by step.", persona.EchoBackend{}),
	}

	registry := prometheus.NewRegistry()
	var metrics dispatch.Metrics = noopMetricsIfDisabled{}
	var collector *observability.Collector
	if obsCfg.Metrics.Enabled {
		collector, err = observability.NewCollector(registry)
		if err != nil {
			return fmt.Errorf("build observability collector: %w", err)
		}
		metrics = collector
	}

	quota := dispatch.NewQuotaManager(func(userID string) int64 {
		user, err := authSvc.GetUser(context.Background(), userID)
		if err != nil {
			return cfg.Quota.DefaultLimit
		}
		if user.QuotaLimit > 0 {
			return user.QuotaLimit
		}
		return cfg.Quota.DefaultLimit
	}, nil)
	limiter := dispatch.NewRateLimiter(dispatch.DefaultRouteLimits())

	core := dispatch.NewCore(
		dispatch.NewSessionMap(), dispatch.NewLockRegistry(), quota, limiter, memory, router, handlers,
		dispatch.Config{
			Retry: sharederrors.RetryConfig{
				MaxAttempts: cfg.Retry.MaxAttempts, BaseDelay: cfg.Retry.BaseDelay, MaxDelay: cfg.Retry.MaxDelay, JitterFactor: 0.25,
			},
			FallbackUtterances: cfg.Persona.FallbackUtterances,
		},
		metrics,
	)

	plugins := plugin.NewHost()

	httpLimiter := dispatch.NewRateLimiter(deliveryhttp.DefaultRouteLimits())
	mux := deliveryhttp.NewRouter(deliveryhttp.Deps{
		Auth: authSvc, Core: core, Memory: memory, Plugins: plugins, Limiter: httpLimiter,
	})

	server := &http.Server{Addr: cfg.Server.Addr, Handler: mux}

	var metricsServer *http.Server
	if obsCfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: fmt.Sprintf(":%d", obsCfg.Metrics.PrometheusPort), Handler: metricsMux}
	}

	migrateCtx, stopMigration := context.WithCancel(context.Background())
	defer stopMigration()
	async.Go(migrationPanicLogger{}, "memory-migration", func() {
		runMigrationLoop(migrateCtx, memory, cfg.Memory.MidTermTTL/30)
	})

	return serve(server, metricsServer, cfg.Server.ShutdownTimeout, collector)
}

// migrationPanicLogger adapts the shared logging package to
// async.PanicLogger for the background migration loop.
type migrationPanicLogger struct{}

func (migrationPanicLogger) Error(format string, args ...any) { logging.MemoryLogger.Error(format, args...) }

// runMigrationLoop periodically forces every buffered session's pending
// short-term turns into a durable mid-term summary (spec §6's
// POST /memory/admin/flush, run here on a timer rather than only on
// operator demand). interval is clamped to a sane floor so a
// misconfigured (or zero) mid-term TTL never produces a busy loop.
func runMigrationLoop(ctx context.Context, memory *facade.Facade, interval time.Duration) {
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if migrated, err := memory.Migrate(ctx); err != nil {
				logging.MemoryLogger.Warn("background migration failed: %s", err)
			} else if migrated > 0 {
				logging.MemoryLogger.Info("background migration moved %d sessions short->mid", migrated)
			}
		}
	}
}

// buildAuthStores picks the Postgres-backed auth stores when ALEX_DATABASE_URL
// is set, falling back to the in-memory stores otherwise — there's no
// dedicated config field for this yet, so the env var is read directly here
// rather than threading a DSN through shared/config.
func buildAuthStores() (ports.UserRepository, ports.IdentityRepository, ports.SessionRepository, error) {
	dsn := os.Getenv("ALEX_DATABASE_URL")
	if dsn == "" {
		u, i, s := adapters.NewMemoryStores()
		return u, i, s, nil
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	u, i, s := adapters.NewPostgresStores(pool)
	return u, i, s, nil
}

// noopMetricsIfDisabled is used when metrics are disabled via configuration,
// so the dispatch core never has to nil-check its Metrics collaborator.
type noopMetricsIfDisabled struct{}

func (noopMetricsIfDisabled) RecordProviderCall(string, time.Duration, error) {}
func (noopMetricsIfDisabled) RecordRetry(string)                             {}
func (noopMetricsIfDisabled) RecordFallback(string)                          {}
func (noopMetricsIfDisabled) RecordMemoryOp(string, error)                   {}
func (noopMetricsIfDisabled) RecordTurn(string)                              {}
func (noopMetricsIfDisabled) RecordSessionStart(string)                      {}
func (noopMetricsIfDisabled) RecordSessionEnd(string, time.Duration)         {}

func serve(server, metricsServer *http.Server, shutdownTimeout time.Duration, collector *observability.Collector) error {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 15 * time.Second
	}

	errCh := make(chan error, 2)
	go func() {
		color.Cyan("alex server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	if metricsServer != nil {
		go func() {
			color.Cyan("alex metrics listening on %s", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		color.Yellow("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	if err := server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}
	if collector != nil {
		if err := collector.Shutdown(ctx); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}
	return shutdownErr
}

// Package app wires the discount API server.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/discount-engine/internal/domain/discount"
	"github.com/xenking/discount-engine/internal/handler"
	"github.com/xenking/discount-engine/internal/storage/cache"
	"github.com/xenking/discount-engine/internal/storage/postgres"
	"github.com/xenking/discount-engine/pkg/health"
	"github.com/xenking/discount-engine/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, cfg.Cache.HealthInterval)

	// Repositories, with caches in front of the hot read paths.
	discountRepo := cache.NewDiscounts(postgres.NewDiscountRepository(pool), cfg.Cache.AutomaticTTL)
	codeStore := postgres.NewCodeRepository(pool)
	redemptionRepo := postgres.NewRedemptionRepository(pool)

	var codeRepo discount.CodeRepository = codeStore
	if cfg.Cache.CodeRefresh > 0 {
		filter := cache.NewCodeFilter(codeStore, cfg.Cache.CodeCapacity, cfg.Cache.CodeFPRate, cfg.Cache.CodeRefresh)
		n, err := filter.Load(ctx, codeStore)
		if err != nil {
			return errors.Wrap(err, "load code filter")
		}
		lg.Info("Code filter loaded", zap.Int("codes", n))
		go refreshCodeFilter(ctx, filter, codeStore, cfg.Cache.CodeRefresh)
		codeRepo = filter
	}

	engine, err := discount.NewEngine(discountRepo, codeRepo, redemptionRepo,
		discount.WithTracerProvider(m.TracerProvider()),
		discount.WithMeterProvider(m.MeterProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create engine")
	}
	h := handler.NewHandler(engine, redemptionRepo)

	r := chi.NewRouter()
	r.Use(
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.LogRequests(),
		httpmiddleware.Recovery(),
	)
	r.Get("/livez", healthSvc.LiveEndpoint)
	r.Get("/readyz", healthSvc.ReadyEndpoint)
	r.Route("/api", func(r chi.Router) {
		r.Use(httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
			Rate:    cfg.RateLimit.Rate,
			Burst:   cfg.RateLimit.Burst,
			IdleTTL: cfg.RateLimit.IdleTTL,
		}))
		h.Mount(r)
	})

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: otelhttp.NewHandler(r, "discount-api",
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	}
	healthSvc.SetReady(true)

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// refreshCodeFilter rebuilds the filter periodically so codes created by
// other processes become visible.
func refreshCodeFilter(ctx context.Context, filter *cache.CodeFilter, lister cache.CodeLister, every time.Duration) {
	lg := zctx.From(ctx)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := filter.Load(ctx, lister)
			if err != nil {
				lg.Warn("Code filter refresh failed", zap.Error(err))
				continue
			}
			lg.Debug("Code filter refreshed", zap.Int("codes", n))
		}
	}
}

package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"ProductStore/internal/config"
	"ProductStore/internal/product"
	"ProductStore/pkg/kit"
)

const service = "products"

func main() {
	cfg, err := config.Load(config.DefaultOptions())
	if err != nil {
		kit.NewLogger(service, "info").Fatal("load config failed", zap.Error(err))
	}

	log := kit.NewLogger(service, cfg.Log.Level)
	defer func() { _ = log.Sync() }()
	log.Info("config loaded", zap.Stringer("config", cfg))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store, cleanup, err := openStore(cfg, log)
	if err != nil {
		log.Fatal("open store failed", zap.Error(err))
	}
	defer cleanup()

	h := product.NewHandler(&product.Server{Store: store, Log: log}, product.HTTPDeps{
		Log:            log,
		Service:        service,
		Registry:       reg,
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsToken:   cfg.Metrics.Token,
		RateLimit: product.RateLimitDeps{
			RPS:            cfg.RateLimit.RPS,
			Burst:          cfg.RateLimit.Burst,
			TrustedProxies: cfg.RateLimit.TrustedProxies,
		},
	})

	opts := kit.ServerOptions{
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		ShutdownTimeout:   cfg.HTTP.ShutdownTimeout,
	}
	if err := kit.RunHTTPServer(cfg.Addr(), h, log, opts); err != nil {
		log.Fatal("http server stopped", zap.Error(err))
	}
}

func openStore(cfg config.Config, log *zap.Logger) (product.Store, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var (
		store   product.Store
		cleanup = func() {}
	)

	if cfg.Database.URL == "" {
		log.Info("using in-memory product store")
		store = product.NewMemStore()
	} else {
		pool, err := product.OpenPostgres(ctx, cfg.Database.URL)
		if err != nil {
			return nil, nil, err
		}
		pg := product.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		log.Info("using postgres product store")
		store, cleanup = pg, pool.Close
	}

	if cfg.Store.Seed {
		seeded, err := product.SeedIfEmpty(ctx, store)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		if seeded {
			log.Info("product store seeded")
		}
	}
	return store, cleanup, nil
}

package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"ProductCatalog/internal/catalog"
	"ProductCatalog/internal/config"
	"ProductCatalog/internal/realtime"
	"ProductCatalog/pkg/kit"
)

func main() {
	cfg := config.Load()

	log := kit.NewLogger(cfg.Service, cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	store, closeStore, err := openStore(cfg.Store)
	if err != nil {
		log.Fatal("open store", zap.Error(err), zap.String("driver", cfg.Store.Driver))
	}
	log.Info("store ready", zap.String("driver", cfg.Store.Driver))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rtMetrics := realtime.NewMetrics(reg)

	hub := realtime.NewHub(log, rtMetrics)
	sinks := realtime.Fanout{hub}
	hooks := []func(context.Context) error{hub.Close}

	if cfg.RabbitMQ.URL != "" {
		pub, err := realtime.NewPublisher(realtime.PublisherConfig{
			URL:      cfg.RabbitMQ.URL,
			Exchange: cfg.RabbitMQ.Exchange,
		}, log, rtMetrics)
		if err != nil {
			log.Fatal("rabbitmq publisher", zap.Error(err))
		}
		sinks = append(sinks, pub)
		hooks = append(hooks, pub.Close)
		log.Info("rabbitmq publisher ready", zap.String("exchange", cfg.RabbitMQ.Exchange))
	}
	hooks = append(hooks, closeStore)

	var limiter *kit.IPRateLimiter
	if cfg.HTTP.RateLimit > 0 {
		limiter = kit.NewIPRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateWindow)
	}

	s := &catalog.Server{
		Store:       store,
		Broadcaster: sinks,
		Log:         log,
	}

	h := catalog.NewHandler(s, catalog.HTTPDeps{
		Log:            log,
		Service:        cfg.Service,
		Registry:       reg,
		MetricsEnabled: cfg.HTTP.MetricsEnabled,
		MetricsToken:   cfg.HTTP.MetricsToken,
		Realtime:       hub,
		RateLimiter:    limiter,
	})

	if err := kit.RunHTTPServer(":"+cfg.HTTP.Port, h, log, hooks...); err != nil {
		log.Fatal("http server stopped", zap.Error(err))
	}
}

func openStore(cfg config.StoreConfig) (catalog.Store, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	switch cfg.Driver {
	case config.DriverFile:
		s, err := catalog.OpenFileStore(cfg.ProductsPath)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil

	case config.DriverMemory:
		return catalog.NewMemStore(), noop, nil

	case config.DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, nil, fmt.Errorf("DATABASE_URL is required for the %s driver", cfg.Driver)
		}
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		db.SetMaxOpenConns(10)
		db.SetConnMaxIdleTime(5 * time.Minute)

		s := catalog.NewPostgresStore(db)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return s, func(context.Context) error { return db.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

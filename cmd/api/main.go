package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dvega/clienthub-backend/api/routes"
	"github.com/dvega/clienthub-backend/internal/analytics"
	"github.com/dvega/clienthub-backend/internal/customers"
	"github.com/dvega/clienthub-backend/internal/events"
	"github.com/dvega/clienthub-backend/internal/gdpr"
	"github.com/dvega/clienthub-backend/pkg/config"
	"github.com/dvega/clienthub-backend/pkg/db"
	"github.com/dvega/clienthub-backend/pkg/logger"
	"github.com/dvega/clienthub-backend/pkg/metrics"
	"github.com/dvega/clienthub-backend/pkg/migrate"
	"github.com/dvega/clienthub-backend/pkg/prediction"
	"github.com/dvega/clienthub-backend/pkg/pubsub"
	"github.com/dvega/clienthub-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	jobMetrics := metrics.NewJobMetrics(registry)

	repo := customers.NewRepository(dbClient.DB())

	customerParams := customers.ServiceParams{
		Repo:   repo,
		Tx:     dbClient,
		Logger: logg,
	}
	gdprParams := gdpr.ServiceParams{
		Repo:   repo,
		Tx:     dbClient,
		Logger: logg,
	}

	if cfg.PubSub.PublishCustomerEvents {
		pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()

		publisher, err := events.NewPublisher(pubsubClient.CustomerEventsPublisher(), logg)
		if err != nil {
			logg.Error(context.Background(), "failed to create event publisher", err)
			os.Exit(1)
		}
		customerParams.Publisher = publisher
		gdprParams.Publisher = publisher
	}

	customerService, err := customers.NewService(customerParams)
	if err != nil {
		logg.Error(context.Background(), "failed to create customer service", err)
		os.Exit(1)
	}

	analyticsParams := analytics.ServiceParams{
		Repo:      repo,
		Tx:        dbClient,
		Logger:    logg,
		Jobs:      jobMetrics,
		BatchSize: cfg.Analytics.SegmentBatchSize,
	}
	if predictor := prediction.New(cfg.Prediction, logg); predictor != nil {
		analyticsParams.Predictor = predictor
	}

	analyticsService, err := analytics.NewService(analyticsParams)
	if err != nil {
		logg.Error(context.Background(), "failed to create analytics service", err)
		os.Exit(1)
	}

	gdprService, err := gdpr.NewService(gdprParams)
	if err != nil {
		logg.Error(context.Background(), "failed to create gdpr service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:    cfg,
			Logger:    logg,
			DB:        dbClient,
			Redis:     redisClient,
			Registry:  registry,
			Customers: customerService,
			Analytics: analyticsService,
			GDPR:      gdprService,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

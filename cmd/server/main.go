package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"cloud.google.com/go/firestore"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/finsight/backend/internal/config"
	"github.com/finsight/backend/internal/handler"
	"github.com/finsight/backend/internal/scheduler"
	"github.com/finsight/backend/internal/service"
	"github.com/finsight/backend/internal/store"
)

func main() {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid config")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, cleanup, err := openStore(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("open store")
	}
	defer cleanup()

	cache := service.NewForecastCache(cfg.Forecast.CacheSize)
	forecaster := service.NewForecaster(st, cache, log)
	insights := service.NewInsightsGenerator(st, log)
	peers := service.NewPeerComparisonService(st, log)

	if cfg.Schedule.Enabled {
		sched := scheduler.New(ctx, st, insights, peers, log)
		if err := sched.Register(cfg.Schedule.InsightsCron, cfg.Schedule.BenchmarkCron); err != nil {
			log.WithError(err).Fatal("register jobs")
		}
		sched.Start()
		defer sched.Stop()
	}

	h := handler.New(st, forecaster, insights, peers, cfg.Forecast.DefaultModel, log)

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.Server.CORSOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "User-Agent", "X-User-ID"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: h2c.NewHandler(c.Handler(h.Router()), &http2.Server{}),
	}

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		srv.Shutdown(context.Background())
	}()

	log.WithField("port", cfg.Server.Port).Info("starting server")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("server failed")
	}
}

func openStore(ctx context.Context, cfg *config.Config, log *logrus.Logger) (store.Store, func(), error) {
	switch cfg.Store.Driver {
	case "memory":
		log.Info("using in-memory store")
		return store.NewMemoryStore(), func() {}, nil
	case "sqlite":
		log.WithField("path", cfg.Store.SQLitePath).Info("using sqlite store")
		st, err := store.NewSQLiteStore(cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { st.Close() }, nil
	case "firestore":
		log.WithField("project", cfg.Store.FirestoreProject).Info("using firestore store")
		client, err := firestore.NewClient(ctx, cfg.Store.FirestoreProject)
		if err != nil {
			return nil, nil, err
		}
		return store.NewFirestoreStore(client), func() { client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

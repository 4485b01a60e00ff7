package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"shotlate/internal/batch"
	"shotlate/internal/domain"
	"shotlate/internal/history"
	"shotlate/internal/http/handlers"
	httpapi "shotlate/internal/http/httpapi"
	"shotlate/internal/imagecodec"
	"shotlate/internal/infra"
	"shotlate/internal/infra/geoip"
	"shotlate/internal/metrics"
	"shotlate/internal/providers/factory"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)
	metrics.Register()

	ctx := context.Background()

	var jobs domain.JobRepository
	dbpool, err := infra.NewDBPool(ctx, cfg)
	switch {
	case errors.Is(err, infra.ErrNoDatabase):
		logger.Info().Msg("api: DATABASE_URL not set; job history disabled")
	case err != nil:
		logger.Fatal().Err(err).Msg("api: failed to connect database")
	default:
		defer dbpool.Close()
		store := history.New(infra.NewSQLRunner(dbpool, logger))
		if err := store.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("api: failed to prepare history schema")
		}
		jobs = store
	}

	registry := factory.NewRegistry(cfg, &logger)
	runner := batch.New(batch.Options{
		Registry:          registry,
		Encoder:           imagecodec.New(imagecodec.Options{MaxDimension: cfg.ImageMaxDimension, Logger: &logger}),
		History:           jobs,
		Logger:            &logger,
		TruncationPolicy:  cfg.TruncationPolicy,
		Concurrency:       cfg.BatchConcurrency,
		ItemTimeout:       cfg.ItemTimeout,
		RequestsPerSecond: cfg.ProviderRPS,
	})

	app := handlers.NewApp(cfg, registry, runner, jobs, &logger)

	countries, err := geoip.Open(cfg.GeoIPDatabasePath)
	if err != nil {
		logger.Warn().Err(err).Msg("api: geoip disabled")
	} else if countries != nil {
		defer countries.Close()
		app.Countries = countries
	}
	router := httpapi.NewRouter(app)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().
			Str("addr", server.Addr()).
			Strs("providers", registry.Names()).
			Str("truncation_policy", cfg.TruncationPolicy).
			Int("concurrency", cfg.BatchConcurrency).
			Msg("api: listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("api: http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: failed to shutdown server")
	}
	logger.Info().Msg("api: server stopped")
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"shortlink-service/analytics"
	"shortlink-service/cache"
	"shortlink-service/config"
	"shortlink-service/db"
	"shortlink-service/geo"
	"shortlink-service/handlers"
	"shortlink-service/middleware"
	"shortlink-service/models"
	"shortlink-service/recorder"
	"shortlink-service/resolver"
	"shortlink-service/workers"
)

func main() {
	// Optional .env for local development.
	_ = godotenv.Load()

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("LOG_PRETTY") != "" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	pgDB, err := db.NewPostgresDB(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to PostgreSQL")
	}
	defer pgDB.Close()
	if err := pgDB.Migrate(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}
	logger.Info().Msg("connected to PostgreSQL")

	// Redis is optional: rate limiting and real-time counters degrade
	// gracefully when it is absent.
	var redisDB *db.RedisDB
	if cfg.RedisURL != "" {
		redisDB, err = db.NewRedisDB(cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("Redis unavailable, continuing without it")
			redisDB = nil
		} else {
			defer redisDB.Close()
			logger.Info().Msg("connected to Redis")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := cache.RealClock{}

	locationCache := cache.New[models.Location](cfg.GeoCacheTTL, cfg.GeoCacheMaxSize, clock)
	reportCache := cache.New[*models.Report](cfg.ReportCacheTTL, 0, clock)
	reportCache.StartSweeper(ctx, cfg.ReportSweepInterval)

	geoResolver := geo.NewResolver(geo.Config{
		BaseURL:    cfg.GeoAPIBaseURL,
		Timeout:    cfg.GeoTimeout,
		Retries:    cfg.GeoRetries,
		RetryDelay: cfg.GeoRetryDelay,
	}, locationCache, logger)

	pool := workers.NewPool(pgDB, workers.Config{
		QueueSize:     cfg.VisitQueueSize,
		Workers:       cfg.VisitWorkers,
		BatchSize:     cfg.VisitBatchSize,
		FlushInterval: cfg.VisitFlushInterval,
	}, logger)
	go pool.Start(ctx)

	var counter recorder.Counter
	if redisDB != nil {
		counter = redisDB
	}
	rec := recorder.New(geoResolver, pool, counter, cfg.BaseURL, clock, logger)

	resolverSvc := resolver.NewService(pgDB, rec, clock, logger)
	aggregator := analytics.NewAggregator(pgDB, pgDB, reportCache, clock, logger)

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logger(logger))

	// Public redirect path. Kept outside the API middleware stack so a
	// redirect stays one DB read on the hot path.
	r.Get("/{slug}", handlers.HandleRedirect(resolverSvc, logger))

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{cfg.FrontendURL},
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
		if redisDB != nil {
			r.Use(middleware.RateLimit(redisDB, cfg.RateLimit, cfg.RateLimitWindow, logger))
		}
		r.Use(middleware.Authenticate([]byte(cfg.JWTSecret)))

		r.Post("/links", handlers.HandleCreateLink(pgDB, cfg.BaseURL, clock, logger))
		r.Post("/verify-password", handlers.HandleVerifyPassword(resolverSvc, logger))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireUser)
			r.Get("/links", handlers.HandleListLinks(pgDB, counterReader(redisDB), logger))
			r.Delete("/links/{id}", handlers.HandleDeleteLink(pgDB, logger))
			r.Get("/analytics", handlers.HandleAnalytics(aggregator, logger))
		})
	})

	r.Get("/health", handlers.HandleHealth())
	r.Get("/ready", handlers.HandleReadiness(pgDB, pingerOrNil(redisDB)))
	r.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")

	// Stop accepting requests first, then let the workers drain.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown error")
	}

	cancel()
	time.Sleep(2 * time.Second)

	logger.Info().Msg("server stopped")
}

// counterReader adapts the optional Redis handle to the handlers interface;
// a nil *RedisDB must become a nil interface, not a typed nil.
func counterReader(redisDB *db.RedisDB) handlers.CounterReader {
	if redisDB == nil {
		return nil
	}
	return redisDB
}

func pingerOrNil(redisDB *db.RedisDB) handlers.Pinger {
	if redisDB == nil {
		return nil
	}
	return redisDB
}

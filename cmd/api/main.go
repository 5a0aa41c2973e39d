package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"terrana/internal/api"
	"terrana/internal/backend"
	"terrana/internal/config"
	"terrana/internal/domain"
	"terrana/internal/events"
	"terrana/internal/logging"
	"terrana/internal/metrics"
	"terrana/internal/payment"
	"terrana/internal/quota"
	"terrana/internal/repository"
	"terrana/internal/session"
	"terrana/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}
	logger := logging.Component(baseLogger, "main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := initAvailabilityStore(ctx, cfg, baseLogger)

	backendLogger := logging.Component(baseLogger, "backend")
	client := backend.NewClient(cfg.Backend, &backendLogger)

	eventBus := events.NewBus()

	quotaLogger := logging.Component(baseLogger, "quota")
	tracker := quota.NewTracker(client, eventBus, cfg.Booking.MaxDaily, &quotaLogger)
	if err := tracker.Refresh(ctx); err != nil {
		logger.Warn().Err(err).Msg("initial quota refresh failed, starting from zero")
	}

	paymentLogger := logging.Component(baseLogger, "payment")
	gateway := payment.NewStripeGateway(cfg.Stripe.SecretKey, &paymentLogger)
	reconciler := payment.NewReconciler(gateway, &paymentLogger)

	engineLogger := logging.Component(baseLogger, "engine")
	engine := session.NewEngine(client, store, tracker, reconciler, eventBus, domain.SystemClock{}, &engineLogger)

	refresherLogger := logging.Component(baseLogger, "refresher")
	refresher := worker.NewRefresher(
		engine,
		tracker,
		cfg.Booking.TerrainIDs,
		time.Duration(cfg.Booking.ForceRefreshMinutes)*time.Minute,
		time.Duration(cfg.Booking.QuotaRefreshMinutes)*time.Minute,
		&refresherLogger,
	)
	go refresher.Start(ctx)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(cfg.Monitoring.PrometheusPort, &logger)
	}

	if !cfg.API.Enabled {
		logger.Info().Msg("HTTP API disabled, running background loops only")
		<-ctx.Done()
		return nil
	}

	apiLogger := logging.Component(baseLogger, "api")
	server := api.NewHTTPServer(cfg.API, engine, cfg.Booking.Currency, &apiLogger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// initAvailabilityStore builds the cache layer: in-memory only, or Redis
// backed by the in-memory store when Redis is configured.
func initAvailabilityStore(ctx context.Context, cfg *config.Config, baseLogger *zerolog.Logger) domain.AvailabilityStore {
	ttl := time.Duration(cfg.Booking.CacheTTLSeconds) * time.Second
	memory := repository.NewMemoryAvailabilityStore(ttl, domain.SystemClock{})

	if !cfg.Redis.Enabled {
		return memory
	}

	storeLogger := logging.Component(baseLogger, "availability-store")
	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		storeLogger.Warn().Err(err).Msg("Redis unavailable at startup, failover store will fall back to memory")
	}

	redisStore := repository.NewRedisAvailabilityStore(client, ttl)
	return repository.NewFailoverAvailabilityStore(redisStore, memory, &storeLogger)
}

func startMetricsServer(port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	logger.Info().Int("port", port).Msg("metrics server listening")
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

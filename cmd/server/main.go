package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/meuev/server/internal/circuitbreaker"
	"github.com/meuev/server/internal/config"
	"github.com/meuev/server/internal/httpserver"
	"github.com/meuev/server/internal/idempotency"
	"github.com/meuev/server/internal/lifecycle"
	"github.com/meuev/server/internal/logger"
	"github.com/meuev/server/internal/metrics"
	"github.com/meuev/server/internal/processor"
	"github.com/meuev/server/internal/reconcile"
	"github.com/meuev/server/internal/records"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	flag.Parse()

	// A missing .env is fine; environment variables may come from anywhere.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Error().Err(err).Msg("config.load_failed")
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Service:     "meuev-payments",
		Environment: cfg.Logging.Environment,
	})

	if !cfg.MercadoPago.Configured() {
		log.Warn().Msg("startup.missing_access_token")
	}

	resources := lifecycle.NewManager()

	store := records.NewMemoryStore()
	resources.Register("record-store", store)

	breakers := circuitbreaker.NewManager(circuitbreaker.FromAppConfig(cfg.CircuitBreaker))
	client := processor.NewMercadoPago(processor.MercadoPagoConfig{
		AccessToken: cfg.MercadoPago.AccessToken,
		BaseURL:     cfg.MercadoPago.BaseURL,
		Timeout:     cfg.MercadoPago.Timeout.Duration,
	}, breakers)

	collector := metrics.New(prometheus.DefaultRegisterer)
	engine := reconcile.NewService(cfg.Checkout, store, client, collector)

	idempotencyStore := idempotency.NewMemoryStore()
	resources.RegisterFunc("idempotency-store", func() error {
		idempotencyStore.Stop()
		return nil
	})

	server := httpserver.New(cfg, engine, idempotencyStore, collector, log)

	log.Info().
		Str("address", cfg.Server.Address).
		Bool("processor_configured", cfg.MercadoPago.Configured()).
		Str("notification_url", cfg.Checkout.NotificationURL()).
		Msg("startup.listening")
	log.Info().
		Strs("routes", []string{
			"POST /checkout/create",
			"POST /payment/pix",
			"POST /payment/card",
			"GET /payment/public-key",
			"GET /payment/status/{paymentID}",
			"GET /checkout/status/{preferenceID}",
			"GET /checkout/verify/{externalRef}",
			"POST /webhook",
		}).
		Msg("startup.routes")

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server.failed")
			_ = resources.Close()
			os.Exit(1)
		}
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutdown.signal")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown.server_failed")
	}
	if err := resources.Close(); err != nil {
		log.Error().Err(err).Msg("shutdown.cleanup_failed")
	}
	log.Info().Msg("shutdown.complete")
}

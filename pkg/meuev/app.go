package meuev

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

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

// App wires the payment components for standalone serving or embedding.
type App struct {
	Config           *config.Config
	Store            records.Store
	Processor        processor.Client
	Engine           *reconcile.Service
	IdempotencyStore *idempotency.MemoryStore

	router           chi.Router
	resourceManager  *lifecycle.Manager
	metricsCollector *metrics.Metrics
}

// Option configures App construction.
type Option func(*options)

type options struct {
	store     records.Store
	processor processor.Client
	router    chi.Router
}

// WithStore sets a custom record store backend.
func WithStore(store records.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithProcessor injects a custom processor client, mainly for tests.
func WithProcessor(client processor.Client) Option {
	return func(o *options) {
		o.processor = client
	}
}

// WithRouter registers routes onto an existing chi.Router.
func WithRouter(router chi.Router) Option {
	return func(o *options) {
		o.router = router
	}
}

// NewApp assembles the payment services.
func NewApp(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("meuev: config required")
	}

	optState := options{}
	for _, opt := range opts {
		opt(&optState)
	}

	app := &App{
		Config:          cfg,
		resourceManager: lifecycle.NewManager(),
	}

	if optState.store != nil {
		app.Store = optState.store
	} else {
		app.Store = records.NewMemoryStore()
		app.resourceManager.Register("record-store", app.Store)
		log.Warn().
			Msg("meuev: defaulting to in-memory record store, state does not survive restarts")
	}

	metricsCollector := metrics.New(prometheus.DefaultRegisterer)
	app.metricsCollector = metricsCollector

	if optState.processor != nil {
		app.Processor = optState.processor
	} else {
		if !cfg.MercadoPago.Configured() {
			log.Warn().
				Msg("meuev: MERCADOPAGO_ACCESS_TOKEN not set, processor calls will fail")
		}
		breakers := circuitbreaker.NewManager(circuitbreaker.FromAppConfig(cfg.CircuitBreaker))
		app.Processor = processor.NewMercadoPago(processor.MercadoPagoConfig{
			AccessToken: cfg.MercadoPago.AccessToken,
			BaseURL:     cfg.MercadoPago.BaseURL,
			Timeout:     cfg.MercadoPago.Timeout.Duration,
		}, breakers)
	}

	app.Engine = reconcile.NewService(cfg.Checkout, app.Store, app.Processor, metricsCollector)

	app.IdempotencyStore = idempotency.NewMemoryStore()
	app.resourceManager.RegisterFunc("idempotency-store", func() error {
		app.IdempotencyStore.Stop()
		return nil
	})

	if optState.router != nil {
		app.router = optState.router
	} else {
		app.router = chi.NewRouter()
	}

	appLogger := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Service:     "meuev-payments",
		Environment: cfg.Logging.Environment,
	})

	httpserver.ConfigureRouter(app.router, cfg, app.Engine, app.IdempotencyStore, metricsCollector, appLogger)

	return app, nil
}

// Router returns the chi router with payment routes registered.
func (a *App) Router() chi.Router {
	return a.router
}

// Handler exposes the router as an http.Handler.
func (a *App) Handler() http.Handler {
	return a.router
}

// Close releases resources owned by the app.
func (a *App) Close() error {
	return a.resourceManager.Close()
}

// NewHandler constructs an App and returns its handler plus a shutdown hook.
func NewHandler(cfg *config.Config, opts ...Option) (http.Handler, func(context.Context) error, error) {
	app, err := NewApp(cfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	shutdown := func(context.Context) error {
		return app.Close()
	}
	return app.Handler(), shutdown, nil
}

// Config is an exported alias of the internal configuration struct for
// embedding use.
type Config = config.Config

// LoadConfig wraps the internal loader for embedding consumers.
func LoadConfig(path string) (*config.Config, error) {
	return config.Load(path)
}

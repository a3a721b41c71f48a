package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	h "github.com/gorilla/handlers"
	"github.com/rs/zerolog"
	"github.com/stanstork/pricesync-api/internal/authz"
	"github.com/stanstork/pricesync-api/internal/config"
	"github.com/stanstork/pricesync-api/internal/export"
	"github.com/stanstork/pricesync-api/internal/handlers"
	"github.com/stanstork/pricesync-api/internal/importer"
	"github.com/stanstork/pricesync-api/internal/metrics"
	"github.com/stanstork/pricesync-api/internal/middleware"
	"github.com/stanstork/pricesync-api/internal/migration"
	"github.com/stanstork/pricesync-api/internal/notification"
	"github.com/stanstork/pricesync-api/internal/repository"
	"github.com/stanstork/pricesync-api/internal/routes"
	"github.com/stanstork/pricesync-api/internal/shopify"
	"github.com/stanstork/pricesync-api/internal/storage"
	"github.com/stanstork/pricesync-api/internal/temporal"
	"github.com/stanstork/pricesync-api/internal/temporal/activities"
	"github.com/stanstork/pricesync-api/internal/usage"
	"github.com/stanstork/pricesync-api/internal/worker"

	_ "github.com/lib/pq" // PostgreSQL driver
	tc "go.temporal.io/sdk/client"
)

type application struct {
	config         *config.Config
	db             *sql.DB
	temporalClient tc.Client
	logger         zerolog.Logger
	metrics        *metrics.Metrics
	shops          *shopify.Factory
	artifacts      *storage.ArtifactStore
	notifications  notification.Service
	ledger         *usage.Ledger
	exports        *export.Service
	imports        *importer.Service
	jobs           repository.JobRecordRepository
}

func main() {
	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.SetFlags(0)
	log.SetOutput(logger)

	// Load configuration.
	cfg := config.Load()

	// Initialize database connection.
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to the database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to ping database")
	}

	// Run database migrations.
	if err := migration.RunMigrations(cfg.DatabaseURL, logger); err != nil {
		logger.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Export artifacts live in a blob bucket.
	artifacts, err := storage.Open(context.Background(), cfg.Storage, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open artifact storage")
	}
	defer artifacts.Close()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.Init("pricesync")
	}

	// Initialize Temporal client.
	temporalClient, err := tc.Dial(tc.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    temporal.NewLogAdapter(logger),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Unable to create Temporal client")
	}
	defer temporalClient.Close()

	// Create the application instance.
	app := &application{
		config:         cfg,
		db:             db,
		temporalClient: temporalClient,
		logger:         logger,
		metrics:        m,
		shops:          shopify.NewFactory(cfg.Shopify, logger),
		artifacts:      artifacts,
	}
	app.initServices()

	// Start the Temporal worker.
	temporalWorker := app.startTemporalWorker(logger)

	// Initialize the HTTP router and middleware.
	router := app.initRouter(temporalWorker, logger)
	loggedRouter := middleware.LoggingMiddleware(app.logger)(router)
	corsHandler := h.CORS(
		h.AllowedOrigins(cfg.CORS.AllowedOrigins),
		h.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		h.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		h.AllowCredentials(),
	)(loggedRouter)
	recovered := h.RecoveryHandler(h.RecoveryLogger(log.Default()), h.PrintRecoveryStack(true))(corsHandler)

	// Start the HTTP server and handle graceful shutdown.
	app.startServer(recovered, temporalWorker, logger)

	logger.Info().Msg("Application terminated.")
}

// initServices builds the repositories and the domain services on top of them.
func (app *application) initServices() {
	jobRepo := repository.NewJobRecordRepository(app.db)
	app.jobs = jobRepo
	usageRepo := repository.NewUsageRepository(app.db)
	subscriptionRepo := repository.NewSubscriptionRepository(app.db)
	notificationRepo := repository.NewNotificationRepository(app.db)

	app.notifications = notification.NewService(notificationRepo, app.logger, notification.NewLogNotifier(app.logger))
	app.ledger = usage.NewLedger(usageRepo, subscriptionRepo, app.metrics, app.logger)

	app.exports = export.NewService(export.Deps{
		Clients: func(tenantID string) (export.CatalogClient, error) {
			client, err := app.shops.For(tenantID)
			if err != nil {
				return nil, err
			}
			return client, nil
		},
		Jobs:      jobRepo,
		Artifacts: app.artifacts,
		Notifier:  app.notifications,
		Bulk:      app.config.Bulk,
		Metrics:   app.metrics,
		Logger:    app.logger,
	})

	app.imports = importer.NewService(importer.Deps{
		Clients: func(tenantID string) (importer.CatalogClient, error) {
			client, err := app.shops.For(tenantID)
			if err != nil {
				return nil, err
			}
			return client, nil
		},
		Ledger:   app.ledger,
		Jobs:     jobRepo,
		Notifier: app.notifications,
		Bulk:     app.config.Bulk,
		PageSize: app.config.Catalog.PageSize,
		Metrics:  app.metrics,
		Logger:   app.logger,
	})
}

// initRouter sets up all HTTP handlers and returns the router.
func (app *application) initRouter(w *worker.Worker, logger zerolog.Logger) http.Handler {
	subscriptions := func(tenantID string) (handlers.SubscriptionLookup, error) {
		client, err := app.shops.For(tenantID)
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	cfg := routes.Router{
		Health:        handlers.HealthCheck(app.db),
		Exports:       handlers.NewExportHandler(app.exports, w, logger),
		Imports:       handlers.NewImportHandler(app.imports, w, logger),
		Usage:         handlers.NewUsageHandler(subscriptions, app.ledger, logger),
		Jobs:          handlers.NewJobHandler(app.jobs, logger),
		Notifications: handlers.NewNotificationHandler(app.notifications, logger),
		Webhooks:      handlers.NewWebhookHandler(app.ledger, logger),
		Session:       authz.SessionMiddleware(app.config.Shopify.APISecret, app.config.Shopify.APIKey, logger),
		Webhook:       authz.WebhookMiddleware(app.config.Shopify.APISecret, logger),
	}
	if app.config.Metrics.Enabled {
		cfg.Metrics = metrics.Handler()
		cfg.MetricsPath = app.config.Metrics.Path
	}
	return routes.NewRouter(cfg)
}

func (app *application) startTemporalWorker(logger zerolog.Logger) *worker.Worker {
	w := worker.NewWorker(app.temporalClient, worker.Config{
		TaskQueue: app.config.Temporal.TaskQueue,
		Bulk:      app.config.Bulk,
		Activities: &activities.Activities{
			Exports: app.exports,
			Imports: app.imports,
		},
	}, logger)

	if err := w.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Unable to start worker")
	}
	return w
}

// startServer launches the HTTP server and handles graceful shutdown.
func (app *application) startServer(handler http.Handler, temporalWorker *worker.Worker, logger zerolog.Logger) {
	server := &http.Server{
		Addr:              ":" + app.config.ServerPort,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for server errors
	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Wait for an interrupt signal or a server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Msgf("Received signal: %s. Shutting down...", sig)
	case err := <-serverErrCh:
		logger.Error().Err(err).Msg("Server error occurred")
	}

	// Gracefully shut down the HTTP server.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server shutdown complete.")
	}

	// Stop the Temporal worker.
	logger.Info().Msg("Stopping Temporal worker...")
	temporalWorker.Stop()
	logger.Info().Msg("Temporal worker stopped.")
}

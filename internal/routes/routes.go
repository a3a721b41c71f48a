package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/stanstork/pricesync-api/internal/handlers"
)

type Middleware = func(http.Handler) http.Handler

// Router collects everything NewRouter mounts. Metrics is optional.
type Router struct {
	Health        http.HandlerFunc
	Exports       *handlers.ExportHandler
	Imports       *handlers.ImportHandler
	Usage         *handlers.UsageHandler
	Jobs          *handlers.JobHandler
	Notifications *handlers.NotificationHandler
	Webhooks      *handlers.WebhookHandler

	Session Middleware
	Webhook Middleware

	Metrics     http.Handler
	MetricsPath string
}

// NewRouter sets up the API routes
func NewRouter(cfg Router) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", cfg.Health).Methods(http.MethodGet)
	if cfg.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.Handle(path, cfg.Metrics).Methods(http.MethodGet)
	}

	// Session-authenticated app endpoints
	api := router.PathPrefix("/api").Subrouter()
	api.Use(cfg.Session)

	api.HandleFunc("/exports", cfg.Exports.Start).Methods(http.MethodPost)
	api.HandleFunc("/exports/{jobID}", cfg.Exports.Status).Methods(http.MethodGet)
	api.HandleFunc("/exports/{jobID}/file", cfg.Exports.File).Methods(http.MethodGet)

	api.HandleFunc("/imports", cfg.Imports.Create).Methods(http.MethodPost)
	api.HandleFunc("/imports/{jobID}", cfg.Imports.Status).Methods(http.MethodGet)
	api.HandleFunc("/imports/{jobID}/failed.xlsx", cfg.Imports.FailedRows).Methods(http.MethodGet)
	api.HandleFunc("/imports/{jobID}/skipped.xlsx", cfg.Imports.SkippedRows).Methods(http.MethodGet)

	api.HandleFunc("/usage", cfg.Usage.Get).Methods(http.MethodGet)
	api.HandleFunc("/jobs", cfg.Jobs.List).Methods(http.MethodGet)

	api.HandleFunc("/notifications", cfg.Notifications.List).Methods(http.MethodGet)
	api.HandleFunc("/notifications/{notificationID}/read", cfg.Notifications.MarkRead).Methods(http.MethodPost)

	// HMAC-verified webhooks
	hooks := router.PathPrefix("/webhooks").Subrouter()
	hooks.Use(cfg.Webhook)
	hooks.HandleFunc("/app/subscriptions_update", cfg.Webhooks.SubscriptionsUpdate).Methods(http.MethodPost)
	hooks.HandleFunc("/privacy", cfg.Webhooks.Privacy).Methods(http.MethodPost)

	return router
}

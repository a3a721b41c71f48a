package routes

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stanstork/pricesync-api/internal/handlers"
	"github.com/stretchr/testify/assert"
)

func deny(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
}

func TestNewRouterGuardsAPIAndWebhooks(t *testing.T) {
	logger := zerolog.Nop()
	router := NewRouter(Router{
		Health:        handlers.HealthCheck(nil),
		Exports:       handlers.NewExportHandler(nil, nil, logger),
		Imports:       handlers.NewImportHandler(nil, nil, logger),
		Usage:         handlers.NewUsageHandler(nil, nil, logger),
		Jobs:          handlers.NewJobHandler(nil, logger),
		Notifications: handlers.NewNotificationHandler(nil, logger),
		Webhooks:      handlers.NewWebhookHandler(nil, logger),
		Session:       deny,
		Webhook:       deny,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		}),
	})

	cases := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodPost, "/api/exports", http.StatusUnauthorized},
		{http.MethodGet, "/api/imports/abc/failed.xlsx", http.StatusUnauthorized},
		{http.MethodGet, "/api/usage", http.StatusUnauthorized},
		{http.MethodPost, "/webhooks/app/subscriptions_update", http.StatusUnauthorized},
		{http.MethodGet, "/api/unknown", http.StatusNotFound},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, tc.status, rec.Code, "%s %s", tc.method, tc.path)
	}
}

package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stanstork/pricesync-api/internal/authz"
	"github.com/stanstork/pricesync-api/internal/models"
)

const subscriptionStatusActive = "ACTIVE"

type WebhookHandler struct {
	ledger UsageLedger
	logger zerolog.Logger
}

func NewWebhookHandler(ledger UsageLedger, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		ledger: ledger,
		logger: logger.With().Str("handler", "webhook").Logger(),
	}
}

type subscriptionUpdatePayload struct {
	AppSubscription *struct {
		AdminGraphQLAPIID string `json:"admin_graphql_api_id"`
		Name              string `json:"name"`
		Status            string `json:"status"`
		CreatedAt         string `json:"created_at"`
	} `json:"app_subscription"`
}

// SubscriptionsUpdate syncs the shop's subscription. Any status other than
// ACTIVE counts as no subscription.
func (h *WebhookHandler) SubscriptionsUpdate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	var payload subscriptionUpdatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid webhook payload", http.StatusBadRequest)
		return
	}
	if payload.AppSubscription == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	sub := payload.AppSubscription
	h.logger.Info().
		Str("tenant", tenantID).
		Str("plan", sub.Name).
		Str("status", sub.Status).
		Msg("subscription update received")

	var active *models.ActiveSubscription
	if strings.EqualFold(sub.Status, subscriptionStatusActive) {
		active = &models.ActiveSubscription{ID: sub.AdminGraphQLAPIID, Name: sub.Name, Status: sub.Status}
		if t, err := time.Parse(time.RFC3339, sub.CreatedAt); err == nil {
			active.CreatedAt = t.UTC()
		}
	}
	if _, err := h.ledger.SyncSubscription(r.Context(), tenantID, active); err != nil {
		h.logger.Error().Err(err).Str("tenant", tenantID).Msg("failed to sync subscription from webhook")
		http.Error(w, "Failed to sync subscription", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Privacy acknowledges the mandatory privacy topics. The app keeps no
// customer data, so there is nothing to export or redact.
func (h *WebhookHandler) Privacy(w http.ResponseWriter, r *http.Request) {
	topic := r.Header.Get(authz.WebhookTopicHeader)
	tenantID, _ := authz.TenantIDFromRequest(r)
	switch topic {
	case "customers/data_request", "customers/redact", "shop/redact":
		h.logger.Info().Str("tenant", tenantID).Str("topic", topic).Msg("privacy webhook handled")
	default:
		h.logger.Warn().Str("tenant", tenantID).Str("topic", topic).Msg("unhandled privacy webhook topic")
	}
	_, _ = w.Write([]byte("OK"))
}

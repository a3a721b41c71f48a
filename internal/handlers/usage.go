package handlers

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/stanstork/pricesync-api/internal/models"
)

type SubscriptionLookup interface {
	ActiveSubscription(ctx context.Context) (*models.ActiveSubscription, error)
}

// SubscriptionSource resolves the catalog API client of a tenant for billing lookups.
type SubscriptionSource func(tenantID string) (SubscriptionLookup, error)

type UsageLedger interface {
	SyncSubscription(ctx context.Context, tenantID string, active *models.ActiveSubscription) (models.SubscriptionInfo, error)
	Stats(ctx context.Context, tenantID, planName string) (models.UsageStats, error)
}

type UsageHandler struct {
	subscriptions SubscriptionSource
	ledger        UsageLedger
	logger        zerolog.Logger
}

func NewUsageHandler(subscriptions SubscriptionSource, ledger UsageLedger, logger zerolog.Logger) *UsageHandler {
	return &UsageHandler{
		subscriptions: subscriptions,
		ledger:        ledger,
		logger:        logger.With().Str("handler", "usage").Logger(),
	}
}

// Get syncs the tenant's subscription and reports usage of the current billing window.
func (h *UsageHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	client, err := h.subscriptions(tenantID)
	if err != nil {
		h.logger.Error().Err(err).Str("tenant", tenantID).Msg("no catalog client for tenant")
		writeError(w, http.StatusBadGateway, "Store is not connected")
		return
	}
	active, err := client.ActiveSubscription(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Str("tenant", tenantID).Msg("failed to look up subscription")
		writeError(w, http.StatusBadGateway, "Failed to look up subscription")
		return
	}
	info, err := h.ledger.SyncSubscription(r.Context(), tenantID, active)
	if err != nil {
		h.logger.Error().Err(err).Str("tenant", tenantID).Msg("failed to sync subscription")
		writeError(w, http.StatusInternalServerError, "Failed to load usage")
		return
	}
	stats, err := h.ledger.Stats(r.Context(), tenantID, info.PlanName)
	if err != nil {
		h.logger.Error().Err(err).Str("tenant", tenantID).Msg("failed to load usage stats")
		writeError(w, http.StatusInternalServerError, "Failed to load usage")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"planName":   info.PlanName,
		"usageStats": stats,
	})
}

package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stanstork/pricesync-api/internal/models"
)

const (
	defaultJobLimit = 20
	maxJobLimit     = 100
)

type JobLister interface {
	ListRecent(ctx context.Context, tenantID string, kinds []models.BulkJobKind, limit int) ([]models.JobRecord, error)
}

// JobHandler lists the tenant's recorded export and import runs.
type JobHandler struct {
	jobs   JobLister
	logger zerolog.Logger
}

func NewJobHandler(jobs JobLister, logger zerolog.Logger) *JobHandler {
	return &JobHandler{
		jobs:   jobs,
		logger: logger.With().Str("handler", "job").Logger(),
	}
}

// List accepts ?kind=export|import (repeatable) and ?limit=.
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	var kinds []models.BulkJobKind
	for _, raw := range r.URL.Query()["kind"] {
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "export", "query":
			kinds = append(kinds, models.BulkJobKindQuery)
		case "import", "mutation":
			kinds = append(kinds, models.BulkJobKindMutation)
		default:
			writeError(w, http.StatusBadRequest, "Unknown job kind: "+raw)
			return
		}
	}

	limit := defaultJobLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = min(parsed, maxJobLimit)
		}
	}

	records, err := h.jobs.ListRecent(r.Context(), tenantID, kinds, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("tenant", tenantID).Msg("failed to list jobs")
		writeError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}
	// Summaries carry whole outcome tables; the per-job endpoints serve them.
	for i := range records {
		records[i].Summary = nil
	}
	if records == nil {
		records = []models.JobRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": records})
}

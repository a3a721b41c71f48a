package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stanstork/pricesync-api/internal/export"
	"github.com/stanstork/pricesync-api/internal/models"
	"github.com/stanstork/pricesync-api/internal/shopify"
	"github.com/stanstork/pricesync-api/internal/spreadsheet"
)

type ExportService interface {
	Start(ctx context.Context, tenantID string) (models.JobRecord, error)
	Poll(ctx context.Context, tenantID, recordID string) (models.JobRecord, models.BulkJob, error)
	Artifact(ctx context.Context, tenantID, recordID string) ([]byte, error)
}

// ExportLauncher hands a started export to the background workflow.
type ExportLauncher interface {
	StartExport(ctx context.Context, tenantID, recordID string) (string, error)
}

type ExportHandler struct {
	service  ExportService
	launcher ExportLauncher
	logger   zerolog.Logger
}

func NewExportHandler(service ExportService, launcher ExportLauncher, logger zerolog.Logger) *ExportHandler {
	return &ExportHandler{
		service:  service,
		launcher: launcher,
		logger:   logger.With().Str("handler", "export").Logger(),
	}
}

type exportStatusResponse struct {
	Success     bool                 `json:"success"`
	JobID       string               `json:"jobId"`
	OperationID string               `json:"operationId,omitempty"`
	Status      models.BulkJobStatus `json:"status"`
	Progress    int64                `json:"progress,omitempty"`
	FileReady   bool                 `json:"fileReady"`
	Error       string               `json:"error,omitempty"`
}

// Start cancels any running query of the tenant, submits the export query and
// starts the workflow that builds the file.
func (h *ExportHandler) Start(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	rec, err := h.service.Start(r.Context(), tenantID)
	if err != nil {
		h.logger.Error().Err(err).Str("tenant", tenantID).Msg("failed to start export")
		var userErrs *shopify.UserErrorsError
		if errors.As(err, &userErrs) {
			writeError(w, http.StatusBadGateway, userErrs.FirstMessage())
			return
		}
		writeError(w, http.StatusBadGateway, "Failed to start export")
		return
	}

	if h.launcher != nil {
		if _, err := h.launcher.StartExport(r.Context(), tenantID, rec.ID); err != nil {
			// The job keeps running remotely; polling still reports it.
			h.logger.Error().Err(err).Str("job_id", rec.ID).Msg("failed to start export workflow")
		}
	}

	writeJSON(w, http.StatusAccepted, exportStatusResponse{
		Success:     true,
		JobID:       rec.ID,
		OperationID: rec.RemoteID,
		Status:      models.BulkJobStatusCreated,
	})
}

// Status polls the remote job once.
func (h *ExportHandler) Status(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	jobID := strings.TrimSpace(mux.Vars(r)["jobID"])

	rec, job, err := h.service.Poll(r.Context(), tenantID, jobID)
	if err != nil {
		if isNotFound(err) || errors.Is(err, export.ErrNotAnExport) {
			writeError(w, http.StatusNotFound, "Export not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to poll export")
		writeError(w, http.StatusBadGateway, "Failed to check export status")
		return
	}

	resp := exportStatusResponse{
		JobID:       rec.ID,
		OperationID: rec.RemoteID,
		Status:      job.Status,
		FileReady:   rec.ArtifactKey != nil,
	}
	switch {
	case job.Status == models.BulkJobStatusCompleted:
		resp.Success = true
	case job.Status == models.BulkJobStatusCreated || job.Status == models.BulkJobStatusRunning:
		resp.Success = true
		resp.Status = models.BulkJobStatusRunning
		resp.Progress = job.ObjectCount
	case job.Status == models.BulkJobStatusFailed && job.Reason != "":
		resp.Error = job.Reason
	default:
		if rec.ErrorMessage != nil {
			resp.Error = *rec.ErrorMessage
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// File serves the built spreadsheet.
func (h *ExportHandler) File(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	jobID := strings.TrimSpace(mux.Vars(r)["jobID"])

	data, err := h.service.Artifact(r.Context(), tenantID, jobID)
	switch {
	case err == nil:
		writeXLSX(w, spreadsheet.ExportFilename, data)
	case errors.Is(err, export.ErrArtifactNotReady):
		writeError(w, http.StatusNotFound, "Export file is not ready")
	case isNotFound(err) || errors.Is(err, export.ErrNotAnExport):
		writeError(w, http.StatusNotFound, "Export not found")
	default:
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to load export file")
		writeError(w, http.StatusInternalServerError, "Failed to load export file")
	}
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stanstork/pricesync-api/internal/importer"
	"github.com/stanstork/pricesync-api/internal/models"
	"github.com/stanstork/pricesync-api/internal/spreadsheet"
)

const (
	maxUploadSize = 10 << 20

	failedFilename  = "failed_updates.xlsx"
	skippedFilename = "skipped_updates.xlsx"
)

type ImportService interface {
	Run(ctx context.Context, tenantID string, upload importer.Upload) (importer.Outcome, error)
	Poll(ctx context.Context, tenantID, recordID string) (importer.Status, error)
	Result(ctx context.Context, tenantID, recordID string) (models.ImportResult, error)
}

// ImportLauncher hands a launched import to the background workflow.
type ImportLauncher interface {
	StartImportAwait(ctx context.Context, tenantID, recordID string) (string, error)
}

type ImportHandler struct {
	service  ImportService
	launcher ImportLauncher
	logger   zerolog.Logger
}

func NewImportHandler(service ImportService, launcher ImportLauncher, logger zerolog.Logger) *ImportHandler {
	return &ImportHandler{
		service:  service,
		launcher: launcher,
		logger:   logger.With().Str("handler", "import").Logger(),
	}
}

// row renders an ImportRow as a JSON object whose keys keep the column order.
type row models.ImportRow

func (r row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, cell := range r.Cells {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(cell.Column)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(cell.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func rows(in []models.ImportRow) []row {
	out := make([]row, len(in))
	for i, r := range in {
		out[i] = row(r)
	}
	return out
}

type importResults struct {
	Total               int      `json:"total"`
	Updated             int      `json:"updated"`
	Skipped             int      `json:"skipped"`
	Failed              int      `json:"failed"`
	Errors              []string `json:"errors"`
	FailedRows          []row    `json:"failedRows"`
	SkippedRows         []row    `json:"skippedRows"`
	BulkOperationID     string   `json:"bulkOperationId,omitempty"`
	ExpectedUpdateCount int      `json:"expectedUpdateCount,omitempty"`
	PriceUpdates        int      `json:"priceUpdates"`
	CompareAtUpdates    int      `json:"compareAtUpdates"`
}

func newImportResults(r models.ImportResult) importResults {
	errs := r.Errors
	if errs == nil {
		errs = []string{}
	}
	return importResults{
		Total:               r.Total,
		Updated:             r.Updated,
		Skipped:             r.Skipped,
		Failed:              r.Failed,
		Errors:              errs,
		FailedRows:          rows(r.FailedRows),
		SkippedRows:         rows(r.SkippedRows),
		BulkOperationID:     r.BulkOperationID,
		ExpectedUpdateCount: r.ExpectedUpdateCount,
		PriceUpdates:        r.PriceUpdates,
		CompareAtUpdates:    r.CompareAtUpdates,
	}
}

type importResponse struct {
	Success bool           `json:"success"`
	JobID   string         `json:"jobId,omitempty"`
	Results *importResults `json:"results,omitempty"`
}

type usageExceededResponse struct {
	Success       bool             `json:"success"`
	UsageExceeded bool             `json:"usageExceeded"`
	Error         string           `json:"error"`
	Type          models.LimitType `json:"type"`
	Limit         int              `json:"limit"`
	Current       int              `json:"current"`
	Attempted     int              `json:"attempted"`
}

type importStatusResponse struct {
	Success  bool                 `json:"success"`
	JobID    string               `json:"jobId"`
	Status   models.BulkJobStatus `json:"status"`
	Progress int64                `json:"progress,omitempty"`
	Error    string               `json:"error,omitempty"`
	Results  *importResults       `json:"results,omitempty"`
}

// Create validates an uploaded sheet against the live catalog, admits it
// against the plan and launches the bulk update.
func (h *ImportHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	upload, err := readUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	outcome, err := h.service.Run(r.Context(), tenantID, upload)
	if err != nil {
		h.logger.Error().Err(err).Str("tenant", tenantID).Str("phase", string(outcome.Phase)).Msg("import failed")
		writeError(w, http.StatusInternalServerError, "Import failed")
		return
	}

	if outcome.Rejection != nil {
		writeJSON(w, http.StatusOK, usageExceededResponse{
			Success:       false,
			UsageExceeded: true,
			Error:         outcome.Rejection.Message,
			Type:          outcome.Rejection.Type,
			Limit:         outcome.Rejection.Limit,
			Current:       outcome.Rejection.Current,
			Attempted:     outcome.Rejection.Attempted,
		})
		return
	}

	resp := importResponse{Success: true}
	results := newImportResults(outcome.Result)
	resp.Results = &results
	if outcome.Record != nil {
		resp.JobID = outcome.Record.ID
	}
	if outcome.Launched() && h.launcher != nil {
		if _, err := h.launcher.StartImportAwait(r.Context(), tenantID, outcome.Record.ID); err != nil {
			// Polling still merges the result without the workflow.
			h.logger.Error().Err(err).Str("job_id", outcome.Record.ID).Msg("failed to start import workflow")
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Status polls a launched import once and merges its result when it completed.
func (h *ImportHandler) Status(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	jobID := strings.TrimSpace(mux.Vars(r)["jobID"])

	st, err := h.service.Poll(r.Context(), tenantID, jobID)
	if err != nil {
		if isNotFound(err) || errors.Is(err, importer.ErrNotAnImport) {
			writeError(w, http.StatusNotFound, "Import not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to poll import")
		writeError(w, http.StatusBadGateway, "Failed to check import status")
		return
	}

	resp := importStatusResponse{JobID: st.Record.ID, Status: st.Record.Status}
	switch {
	case st.Result == nil:
		resp.Success = true
		resp.Status = models.BulkJobStatusRunning
		resp.Progress = st.Job.ObjectCount
	case st.Record.Status == models.BulkJobStatusCompleted:
		resp.Success = true
	}
	if st.Record.ErrorMessage != nil {
		resp.Error = *st.Record.ErrorMessage
	}
	if st.Result != nil {
		results := newImportResults(*st.Result)
		resp.Results = &results
	}
	writeJSON(w, http.StatusOK, resp)
}

// FailedRows serves the failed rows of a recorded run as a spreadsheet.
func (h *ImportHandler) FailedRows(w http.ResponseWriter, r *http.Request) {
	h.outcomeTable(w, r, spreadsheet.FailedSheet, failedFilename, func(res models.ImportResult) []models.ImportRow {
		return res.FailedRows
	})
}

// SkippedRows serves the skipped rows of a recorded run as a spreadsheet.
func (h *ImportHandler) SkippedRows(w http.ResponseWriter, r *http.Request) {
	h.outcomeTable(w, r, spreadsheet.SkippedSheet, skippedFilename, func(res models.ImportResult) []models.ImportRow {
		return res.SkippedRows
	})
}

func (h *ImportHandler) outcomeTable(w http.ResponseWriter, r *http.Request, sheet, filename string, pick func(models.ImportResult) []models.ImportRow) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	jobID := strings.TrimSpace(mux.Vars(r)["jobID"])

	result, err := h.service.Result(r.Context(), tenantID, jobID)
	if err != nil {
		if isNotFound(err) || errors.Is(err, importer.ErrNotAnImport) {
			writeError(w, http.StatusNotFound, "Import not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to load import result")
		writeError(w, http.StatusInternalServerError, "Failed to load import result")
		return
	}

	data, err := spreadsheet.WriteRows(sheet, pick(result))
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Str("sheet", sheet).Msg("failed to render outcome table")
		writeError(w, http.StatusInternalServerError, "Failed to render spreadsheet")
		return
	}
	writeXLSX(w, filename, data)
}

// readUpload accepts a multipart "file" (XLSX or CSV) or a JSON body of
// {headers, rows} where each row is an object keyed by column.
func readUpload(r *http.Request) (importer.Upload, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return readMultipartUpload(r)
	}
	return readJSONUpload(r)
}

func readMultipartUpload(r *http.Request) (importer.Upload, error) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return importer.Upload{}, fmt.Errorf("invalid upload: %w", err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return importer.Upload{}, errors.New("file is required")
	}
	defer file.Close()

	table, err := spreadsheet.Read(header.Filename, file)
	if err != nil {
		return importer.Upload{}, fmt.Errorf("could not read spreadsheet: %w", err)
	}
	return importer.Upload{Columns: table.Headers, Rows: table.Rows}, nil
}

type jsonUpload struct {
	Headers []string                 `json:"headers"`
	Rows    []map[string]interface{} `json:"rows"`
}

func readJSONUpload(r *http.Request) (importer.Upload, error) {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxUploadSize))
	dec.UseNumber()
	var payload jsonUpload
	if err := dec.Decode(&payload); err != nil {
		return importer.Upload{}, errors.New("invalid request payload")
	}
	if len(payload.Headers) == 0 {
		return importer.Upload{}, errors.New("headers are required")
	}

	columns := append([]string{}, payload.Headers...)
	declared := make(map[string]bool, len(columns))
	for _, c := range columns {
		declared[c] = true
	}

	upload := importer.Upload{Rows: make([]models.ImportRow, 0, len(payload.Rows))}
	for _, obj := range payload.Rows {
		var extra []string
		for k := range obj {
			if !declared[k] {
				extra = append(extra, k)
			}
		}
		sort.Strings(extra)
		for _, k := range extra {
			declared[k] = true
			columns = append(columns, k)
		}

		var cells []models.Cell
		for _, c := range columns {
			v, ok := obj[c]
			if !ok {
				continue
			}
			cells = append(cells, models.Cell{Column: c, Value: cellString(v)})
		}
		upload.Rows = append(upload.Rows, models.ImportRow{Cells: cells})
	}
	upload.Columns = columns
	return upload, nil
}

func cellString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

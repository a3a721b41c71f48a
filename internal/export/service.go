package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stanstork/pricesync-api/internal/bulkop"
	"github.com/stanstork/pricesync-api/internal/config"
	"github.com/stanstork/pricesync-api/internal/metrics"
	"github.com/stanstork/pricesync-api/internal/models"
	"github.com/stanstork/pricesync-api/internal/ndjson"
	"github.com/stanstork/pricesync-api/internal/shopify"
	"github.com/stanstork/pricesync-api/internal/spreadsheet"
)

var (
	ErrArtifactNotReady = errors.New("export file is not ready")
	ErrNotAnExport      = errors.New("job is not an export")
)

// CatalogClient is the slice of the catalog API an export needs.
type CatalogClient interface {
	bulkop.QueryRunner
	bulkop.StatusSource
	Download(ctx context.Context, url string) ([]byte, error)
}

// ClientSource resolves the catalog client of a tenant.
type ClientSource func(tenantID string) (CatalogClient, error)

type JobStore interface {
	Create(ctx context.Context, rec models.JobRecord) (models.JobRecord, error)
	Get(ctx context.Context, tenantID, id string) (models.JobRecord, error)
	Update(ctx context.Context, rec models.JobRecord) (models.JobRecord, error)
}

type ArtifactStore interface {
	ExportKey(tenantID, jobID string) string
	PutSpreadsheet(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

type Notifier interface {
	NotifyExportReady(ctx context.Context, tenantID, jobID string, rows int) error
	NotifyExportFailed(ctx context.Context, tenantID, jobID, reason string) error
}

type Deps struct {
	Clients   ClientSource
	Jobs      JobStore
	Artifacts ArtifactStore
	Notifier  Notifier
	Bulk      config.BulkConfig
	Metrics   *metrics.Metrics
	Logger    zerolog.Logger
}

// Service runs catalog exports: start, poll, build the spreadsheet.
type Service struct {
	clients   ClientSource
	jobs      JobStore
	artifacts ArtifactStore
	notifier  Notifier
	bulk      config.BulkConfig
	starter   *bulkop.Starter
	decoder   *ndjson.Decoder
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(d Deps) *Service {
	logger := d.Logger.With().Str("component", "export").Logger()
	return &Service{
		clients:   d.Clients,
		jobs:      d.Jobs,
		artifacts: d.Artifacts,
		notifier:  d.Notifier,
		bulk:      d.Bulk,
		starter:   bulkop.NewStarter(d.Bulk.CancelGrace, d.Metrics, d.Logger),
		decoder:   ndjson.NewDecoder(d.Metrics, d.Logger),
		metrics:   d.Metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// Start clears the tenant's query slot, submits the export query and records it.
func (s *Service) Start(ctx context.Context, tenantID string) (models.JobRecord, error) {
	client, err := s.clients(tenantID)
	if err != nil {
		return models.JobRecord{}, err
	}
	job, err := s.starter.StartQuery(ctx, client, shopify.ProductPricesQuery)
	if err != nil {
		return models.JobRecord{}, fmt.Errorf("start export: %w", err)
	}

	rec, err := s.jobs.Create(ctx, models.JobRecord{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Kind:     models.BulkJobKindQuery,
		RemoteID: job.ID,
		Status:   job.Status,
	})
	if err != nil {
		return models.JobRecord{}, fmt.Errorf("record export job: %w", err)
	}
	s.logger.Info().Str("tenant", tenantID).Str("job_id", rec.ID).Str("remote_id", job.ID).Msg("export started")
	return rec, nil
}

// Poll fetches one status snapshot and stores it on the record.
func (s *Service) Poll(ctx context.Context, tenantID, recordID string) (models.JobRecord, models.BulkJob, error) {
	rec, client, err := s.load(ctx, tenantID, recordID)
	if err != nil {
		return models.JobRecord{}, models.BulkJob{}, err
	}
	job, err := client.PollBulkJob(ctx, rec.RemoteID)
	if err != nil {
		return rec, models.BulkJob{}, err
	}
	s.metrics.IncBulkJobPolls(string(models.BulkJobKindQuery), string(job.Status))

	if rec.CompletedAt == nil && (rec.Status != job.Status || rec.ObjectCount != job.ObjectCount) {
		rec.Status = job.Status
		rec.ObjectCount = job.ObjectCount
		if updated, err := s.jobs.Update(ctx, rec); err == nil {
			rec = updated
		} else {
			s.logger.Warn().Err(err).Str("job_id", rec.ID).Msg("failed to store export status")
		}
	}
	return rec, job, nil
}

// Await polls the export's bulk job until it finishes or the wait budget runs out.
func (s *Service) Await(ctx context.Context, tenantID, recordID string) (models.BulkJob, error) {
	rec, client, err := s.load(ctx, tenantID, recordID)
	if err != nil {
		return models.BulkJob{}, err
	}
	poller := bulkop.NewPoller(client, s.bulk, s.metrics, s.logger)
	return poller.Await(ctx, models.BulkJob{ID: rec.RemoteID, Kind: models.BulkJobKindQuery, Status: rec.Status})
}

// Build downloads the result of a completed job, writes the spreadsheet and
// marks the export ready.
func (s *Service) Build(ctx context.Context, tenantID, recordID string, job models.BulkJob) (models.JobRecord, error) {
	rec, client, err := s.load(ctx, tenantID, recordID)
	if err != nil {
		return models.JobRecord{}, err
	}
	if job.ResultURL == "" {
		return rec, bulkop.ErrJobMissingResult
	}

	raw, err := client.Download(ctx, job.ResultURL)
	if err != nil {
		return rec, fmt.Errorf("download export result: %w", err)
	}
	decoded, err := s.decoder.Decode(bytes.NewReader(raw))
	if err != nil {
		return rec, err
	}
	rows := Transform(decoded.Rows, decoded.Index)

	data, err := spreadsheet.WriteExport(rows)
	if err != nil {
		return rec, err
	}
	key := s.artifacts.ExportKey(tenantID, rec.ID)
	if err := s.artifacts.PutSpreadsheet(ctx, key, data); err != nil {
		return rec, err
	}

	summary, _ := json.Marshal(map[string]int{
		"rows":          len(rows),
		"dropped_lines": decoded.Dropped,
	})
	now := s.now().UTC()
	rec.Status = models.BulkJobStatusCompleted
	rec.ObjectCount = job.ObjectCount
	rec.ArtifactKey = &key
	rec.Summary = summary
	rec.CompletedAt = &now
	rec, err = s.jobs.Update(ctx, rec)
	if err != nil {
		return rec, fmt.Errorf("store export result: %w", err)
	}

	if err := s.notifier.NotifyExportReady(ctx, tenantID, rec.ID, len(rows)); err != nil {
		s.logger.Warn().Err(err).Str("job_id", rec.ID).Msg("failed to publish export notification")
	}
	s.logger.Info().Str("tenant", tenantID).Str("job_id", rec.ID).Int("rows", len(rows)).Int("dropped", decoded.Dropped).Msg("export ready")
	return rec, nil
}

// Fail marks the export failed and tells the tenant why.
func (s *Service) Fail(ctx context.Context, tenantID, recordID string, status models.BulkJobStatus, reason string) error {
	rec, err := s.jobs.Get(ctx, tenantID, recordID)
	if err != nil {
		return err
	}
	if status == "" || !status.Terminal() || status == models.BulkJobStatusCompleted {
		status = models.BulkJobStatusFailed
	}
	now := s.now().UTC()
	rec.Status = status
	rec.ErrorMessage = &reason
	rec.CompletedAt = &now
	if _, err := s.jobs.Update(ctx, rec); err != nil {
		return err
	}
	if err := s.notifier.NotifyExportFailed(ctx, tenantID, rec.ID, reason); err != nil {
		s.logger.Warn().Err(err).Str("job_id", rec.ID).Msg("failed to publish export notification")
	}
	return nil
}

// Run is the synchronous export path: await, then build or fail.
func (s *Service) Run(ctx context.Context, tenantID, recordID string) (models.JobRecord, error) {
	job, err := s.Await(ctx, tenantID, recordID)
	if err != nil {
		if ctx.Err() == nil {
			if failErr := s.Fail(ctx, tenantID, recordID, job.Status, err.Error()); failErr != nil {
				s.logger.Warn().Err(failErr).Str("job_id", recordID).Msg("failed to mark export failed")
			}
		}
		return models.JobRecord{}, err
	}
	rec, err := s.Build(ctx, tenantID, recordID, job)
	if err != nil {
		if failErr := s.Fail(ctx, tenantID, recordID, models.BulkJobStatusFailed, err.Error()); failErr != nil {
			s.logger.Warn().Err(failErr).Str("job_id", recordID).Msg("failed to mark export failed")
		}
		return rec, err
	}
	return rec, nil
}

// Artifact returns the built spreadsheet of an export.
func (s *Service) Artifact(ctx context.Context, tenantID, recordID string) ([]byte, error) {
	rec, err := s.jobs.Get(ctx, tenantID, recordID)
	if err != nil {
		return nil, err
	}
	if rec.Kind != models.BulkJobKindQuery {
		return nil, ErrNotAnExport
	}
	if rec.ArtifactKey == nil {
		return nil, ErrArtifactNotReady
	}
	return s.artifacts.Get(ctx, *rec.ArtifactKey)
}

func (s *Service) load(ctx context.Context, tenantID, recordID string) (models.JobRecord, CatalogClient, error) {
	rec, err := s.jobs.Get(ctx, tenantID, recordID)
	if err != nil {
		return models.JobRecord{}, nil, err
	}
	if rec.Kind != models.BulkJobKindQuery {
		return models.JobRecord{}, nil, ErrNotAnExport
	}
	client, err := s.clients(tenantID)
	if err != nil {
		return models.JobRecord{}, nil, err
	}
	return rec, client, nil
}

// Package importer runs spreadsheet price imports through the phases
// validate, admit, submit and await.
package importer

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
	"github.com/stanstork/pricesync-api/internal/catalog"
	"github.com/stanstork/pricesync-api/internal/config"
	"github.com/stanstork/pricesync-api/internal/metrics"
	"github.com/stanstork/pricesync-api/internal/models"
	"github.com/stanstork/pricesync-api/internal/ndjson"
	"github.com/stanstork/pricesync-api/internal/reconcile"
	"github.com/stanstork/pricesync-api/internal/submit"
	"github.com/stanstork/pricesync-api/internal/usage"
)

type Phase string

const (
	PhaseValidate Phase = "validate"
	PhaseAdmit    Phase = "admit"
	PhaseSubmit   Phase = "submit"
	PhaseAwait    Phase = "await"
)

var ErrNotAnImport = errors.New("job is not an import")

// CatalogClient is the slice of the catalog API an import needs.
type CatalogClient interface {
	catalog.Paginator
	submit.MutationClient
	bulkop.StatusSource
	Download(ctx context.Context, url string) ([]byte, error)
	ActiveSubscription(ctx context.Context) (*models.ActiveSubscription, error)
}

// ClientSource resolves the catalog client of a tenant.
type ClientSource func(tenantID string) (CatalogClient, error)

type Ledger interface {
	SyncSubscription(ctx context.Context, tenantID string, active *models.ActiveSubscription) (models.SubscriptionInfo, error)
	CheckLimit(ctx context.Context, tenantID, planName string, priceCount, compareAtCount int) (models.LimitCheck, error)
	Increment(ctx context.Context, tenantID string, priceCount, compareAtCount int) (models.UsageCounter, error)
}

type JobStore interface {
	Create(ctx context.Context, rec models.JobRecord) (models.JobRecord, error)
	Get(ctx context.Context, tenantID, id string) (models.JobRecord, error)
	Update(ctx context.Context, rec models.JobRecord) (models.JobRecord, error)
}

type Notifier interface {
	NotifyImportCompleted(ctx context.Context, tenantID, jobID string, result models.ImportResult) error
	NotifyImportFailed(ctx context.Context, tenantID, jobID, reason string) error
}

// Upload is a parsed spreadsheet: the declared column order and its rows.
type Upload struct {
	Columns []string
	Rows    []models.ImportRow
}

// Validation is the result of the validate phase.
type Validation struct {
	Reconciliation reconcile.Result
	Result         models.ImportResult
}

// Admission is the result of the admit phase.
type Admission struct {
	PlanName string
	Check    models.LimitCheck
}

// Rejection explains a batch refused at admission.
type Rejection struct {
	models.LimitCheck
	Message string
}

// Outcome is what Run reached. Phase is the last phase entered; Rejection is
// set only when admission refused the batch, Record once the run is stored.
type Outcome struct {
	Phase     Phase
	Result    models.ImportResult
	Rejection *Rejection
	Record    *models.JobRecord
}

// Launched reports whether a bulk mutation job was started.
func (o Outcome) Launched() bool {
	return o.Record != nil && o.Record.RemoteID != ""
}

// Status is one observation of a launched import.
type Status struct {
	Record models.JobRecord
	Job    models.BulkJob
	// Result is the merged result once the run is finished.
	Result *models.ImportResult
}

type Deps struct {
	Clients  ClientSource
	Ledger   Ledger
	Jobs     JobStore
	Notifier Notifier
	Bulk     config.BulkConfig
	PageSize int
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
}

type Service struct {
	clients   ClientSource
	ledger    Ledger
	jobs      JobStore
	notifier  Notifier
	bulk      config.BulkConfig
	builder   *catalog.Builder
	submitter *submit.Submitter
	decoder   *ndjson.Decoder
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(d Deps) *Service {
	return &Service{
		clients:   d.Clients,
		ledger:    d.Ledger,
		jobs:      d.Jobs,
		notifier:  d.Notifier,
		bulk:      d.Bulk,
		builder:   catalog.NewBuilder(d.PageSize, d.Logger),
		submitter: submit.NewSubmitter(d.Metrics, d.Logger),
		decoder:   ndjson.NewDecoder(d.Metrics, d.Logger),
		metrics:   d.Metrics,
		logger:    d.Logger.With().Str("component", "importer").Logger(),
		now:       time.Now,
	}
}

// Run takes an upload through validate, admit and submit. Catalog, plan lookup
// and submission failures are reported in the result; only storage failures
// and a missing tenant client are returned as errors.
func (s *Service) Run(ctx context.Context, tenantID string, upload Upload) (Outcome, error) {
	client, err := s.clients(tenantID)
	if err != nil {
		return Outcome{}, err
	}

	started := s.now()
	validation, err := s.Validate(ctx, client, upload)
	s.observe(PhaseValidate, started)
	if err != nil {
		s.logger.Warn().Err(err).Str("tenant", tenantID).Msg("catalog snapshot failed")
		result := emptyResult(len(upload.Rows))
		result.Errors = append(result.Errors, "Failed to load catalog: "+err.Error())
		return Outcome{Phase: PhaseValidate, Result: result}, nil
	}

	started = s.now()
	admission, err := s.Admit(ctx, tenantID, client, validation)
	s.observe(PhaseAdmit, started)
	var subErr *SubscriptionError
	if errors.As(err, &subErr) {
		s.logger.Warn().Err(err).Str("tenant", tenantID).Msg("subscription lookup failed")
		result := cloneResult(validation.Result)
		result.Errors = append(result.Errors, "Failed to check subscription: "+subErr.Err.Error())
		return Outcome{Phase: PhaseAdmit, Result: result}, nil
	}
	if err != nil {
		return Outcome{Phase: PhaseAdmit, Result: validation.Result}, err
	}
	if !admission.Check.Allowed {
		return Outcome{
			Phase:     PhaseAdmit,
			Result:    validation.Result,
			Rejection: &Rejection{LimitCheck: admission.Check, Message: usage.LimitMessage(admission.Check)},
		}, nil
	}

	started = s.now()
	result, rec, err := s.Submit(ctx, tenantID, client, validation)
	s.observe(PhaseSubmit, started)
	return Outcome{Phase: PhaseSubmit, Result: result, Record: rec}, err
}

// Validate snapshots the live catalog and reconciles the upload against it.
func (s *Service) Validate(ctx context.Context, client catalog.Paginator, upload Upload) (Validation, error) {
	snapshot, err := s.builder.Build(ctx, client)
	if err != nil {
		return Validation{}, err
	}
	rec := reconcile.Reconcile(upload.Rows, upload.Columns, snapshot)
	for _, kind := range []models.OutcomeKind{models.OutcomeUpdated, models.OutcomeSkipped, models.OutcomeFailed} {
		s.metrics.AddReconcileOutcomes(string(kind), rec.Count(kind))
	}
	return Validation{Reconciliation: rec, Result: rec.Summary(len(upload.Rows))}, nil
}

// SubscriptionError is a failed remote plan lookup during admission.
type SubscriptionError struct {
	Err error
}

func (e *SubscriptionError) Error() string { return "load active subscription: " + e.Err.Error() }

func (e *SubscriptionError) Unwrap() error { return e.Err }

// Admit syncs the tenant's subscription and checks the batch against its plan.
func (s *Service) Admit(ctx context.Context, tenantID string, client CatalogClient, v Validation) (Admission, error) {
	active, err := client.ActiveSubscription(ctx)
	if err != nil {
		return Admission{}, &SubscriptionError{Err: err}
	}
	info, err := s.ledger.SyncSubscription(ctx, tenantID, active)
	if err != nil {
		return Admission{}, err
	}
	check, err := s.ledger.CheckLimit(ctx, tenantID, info.PlanName, v.Reconciliation.PriceUpdates, v.Reconciliation.CompareAtUpdates)
	if err != nil {
		return Admission{}, err
	}
	return Admission{PlanName: info.PlanName, Check: check}, nil
}

// Submit launches the bulk mutation for an admitted batch, charges usage once
// the job exists and stores the run. Usage is not refunded if the job later fails.
func (s *Service) Submit(ctx context.Context, tenantID string, client submit.MutationClient, v Validation) (models.ImportResult, *models.JobRecord, error) {
	result := cloneResult(v.Result)
	mutations := v.Reconciliation.Mutations
	if len(mutations) == 0 {
		rec, err := s.record(ctx, tenantID, "", models.BulkJobStatusCompleted, result, true)
		return result, rec, err
	}

	job, err := s.submitter.Submit(ctx, client, mutations)
	var subErr *submit.Error
	if errors.As(err, &subErr) {
		result.Errors = append(result.Errors, subErr.Message)
		rec, err := s.record(ctx, tenantID, "", models.BulkJobStatusCompleted, result, true)
		return result, rec, err
	}
	if err != nil {
		return result, nil, err
	}

	result.BulkOperationID = job.ID
	result.ExpectedUpdateCount = len(mutations)
	if _, err := s.ledger.Increment(ctx, tenantID, v.Reconciliation.PriceUpdates, v.Reconciliation.CompareAtUpdates); err != nil {
		s.logger.Warn().Err(err).Str("tenant", tenantID).Str("job_id", job.ID).Msg("failed to record usage")
	}

	rec, err := s.record(ctx, tenantID, job.ID, job.Status, result, false)
	if err != nil {
		return result, nil, err
	}
	s.logger.Info().
		Str("tenant", tenantID).
		Str("job_id", rec.ID).
		Str("remote_id", job.ID).
		Int("mutations", len(mutations)).
		Msg("import submitted")
	return result, rec, nil
}

func (s *Service) record(ctx context.Context, tenantID, remoteID string, status models.BulkJobStatus, result models.ImportResult, finished bool) (*models.JobRecord, error) {
	summary, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	rec, err := s.jobs.Create(ctx, models.JobRecord{
		ID:                  uuid.NewString(),
		TenantID:            tenantID,
		Kind:                models.BulkJobKindMutation,
		RemoteID:            remoteID,
		Status:              status,
		ExpectedUpdateCount: result.ExpectedUpdateCount,
		Summary:             summary,
	})
	if err != nil {
		return nil, fmt.Errorf("record import: %w", err)
	}
	if finished {
		now := s.now().UTC()
		rec.CompletedAt = &now
		if rec, err = s.jobs.Update(ctx, rec); err != nil {
			return nil, fmt.Errorf("record import: %w", err)
		}
	}
	return &rec, nil
}

// Poll observes a launched import once. A completed job is merged, including
// one that finished without a result file; a job that ended any other way
// marks the import failed.
func (s *Service) Poll(ctx context.Context, tenantID, recordID string) (Status, error) {
	rec, client, err := s.load(ctx, tenantID, recordID)
	if err != nil {
		return Status{}, err
	}
	if rec.CompletedAt != nil {
		return stored(rec)
	}

	job, err := client.PollBulkJob(ctx, rec.RemoteID)
	if err != nil {
		return Status{Record: rec}, err
	}
	s.metrics.IncBulkJobPolls(string(models.BulkJobKindMutation), string(job.Status))

	switch {
	case job.Status == models.BulkJobStatusCompleted:
		return s.merge(ctx, rec, client, job)
	case job.Status == models.BulkJobStatusFailed && job.Reason == models.BulkJobReasonMissingResult:
		return s.merge(ctx, rec, client, completedWithoutResult(job))
	case job.Status.InFlight():
		if rec.Status != job.Status || rec.ObjectCount != job.ObjectCount {
			rec.Status = job.Status
			rec.ObjectCount = job.ObjectCount
			if updated, err := s.jobs.Update(ctx, rec); err == nil {
				rec = updated
			} else {
				s.logger.Warn().Err(err).Str("job_id", rec.ID).Msg("failed to store import status")
			}
		}
		return Status{Record: rec, Job: job}, nil
	}
	return s.fail(ctx, rec, job, (&bulkop.JobError{Job: job}).Error())
}

// Await polls a launched import until it finishes or the wait budget runs out,
// then merges or fails it.
func (s *Service) Await(ctx context.Context, tenantID, recordID string) (Status, error) {
	rec, client, err := s.load(ctx, tenantID, recordID)
	if err != nil {
		return Status{}, err
	}
	if rec.CompletedAt != nil {
		return stored(rec)
	}

	poller := bulkop.NewPoller(client, s.bulk, s.metrics, s.logger)
	job, err := poller.Await(ctx, models.BulkJob{ID: rec.RemoteID, Kind: models.BulkJobKindMutation, Status: rec.Status})
	var jobErr *bulkop.JobError
	switch {
	case err == nil:
	case errors.Is(err, bulkop.ErrJobMissingResult) && errors.As(err, &jobErr):
		job = completedWithoutResult(jobErr.Job)
	case errors.As(err, &jobErr):
		return s.fail(ctx, rec, jobErr.Job, err.Error())
	default:
		return Status{Record: rec}, err
	}
	return s.merge(ctx, rec, client, job)
}

// completedWithoutResult restores a job the client reported as failed only
// because it produced no result file. A mutation job with no user errors
// finishes that way.
func completedWithoutResult(job models.BulkJob) models.BulkJob {
	job.Status = models.BulkJobStatusCompleted
	job.Reason = ""
	return job
}

// merge folds the job's per-line user errors into the stored result. Updated
// becomes the number of queued variant mutations.
func (s *Service) merge(ctx context.Context, rec models.JobRecord, client CatalogClient, job models.BulkJob) (Status, error) {
	result, err := decodeSummary(rec)
	if err != nil {
		return Status{Record: rec, Job: job}, err
	}

	if job.ResultURL != "" {
		raw, err := client.Download(ctx, job.ResultURL)
		if err != nil {
			s.logger.Warn().Err(err).Str("job_id", rec.ID).Msg("failed to download mutation result")
		} else {
			messages, err := s.decoder.MutationErrors(bytes.NewReader(raw))
			if err != nil {
				s.logger.Warn().Err(err).Str("job_id", rec.ID).Msg("failed to read mutation result")
			}
			result.Errors = append(result.Errors, messages...)
		}
	}
	result.Updated = rec.ExpectedUpdateCount

	summary, err := json.Marshal(result)
	if err != nil {
		return Status{Record: rec, Job: job}, err
	}
	now := s.now().UTC()
	rec.Status = models.BulkJobStatusCompleted
	rec.ObjectCount = job.ObjectCount
	rec.Summary = summary
	rec.CompletedAt = &now
	if rec, err = s.jobs.Update(ctx, rec); err != nil {
		return Status{Job: job}, fmt.Errorf("store import result: %w", err)
	}
	s.observe(PhaseAwait, rec.CreatedAt)

	if err := s.notifier.NotifyImportCompleted(ctx, rec.TenantID, rec.ID, result); err != nil {
		s.logger.Warn().Err(err).Str("job_id", rec.ID).Msg("failed to publish import notification")
	}
	s.logger.Info().
		Str("tenant", rec.TenantID).
		Str("job_id", rec.ID).
		Int("updated", result.Updated).
		Int("errors", len(result.Errors)).
		Msg("import completed")
	return Status{Record: rec, Job: job, Result: &result}, nil
}

// Fail marks a launched import failed, e.g. after the wait budget ran out.
func (s *Service) Fail(ctx context.Context, tenantID, recordID, reason string) (Status, error) {
	rec, err := s.jobs.Get(ctx, tenantID, recordID)
	if err != nil {
		return Status{}, err
	}
	if rec.CompletedAt != nil {
		return stored(rec)
	}
	return s.fail(ctx, rec, models.BulkJob{ID: rec.RemoteID, Kind: models.BulkJobKindMutation, Status: models.BulkJobStatusFailed}, reason)
}

func (s *Service) fail(ctx context.Context, rec models.JobRecord, job models.BulkJob, reason string) (Status, error) {
	status := job.Status
	if !status.Terminal() || status == models.BulkJobStatusCompleted {
		status = models.BulkJobStatusFailed
	}
	now := s.now().UTC()
	rec.Status = status
	rec.ObjectCount = job.ObjectCount
	rec.ErrorMessage = &reason
	rec.CompletedAt = &now
	updated, err := s.jobs.Update(ctx, rec)
	if err != nil {
		return Status{Record: rec, Job: job}, fmt.Errorf("store import failure: %w", err)
	}
	if err := s.notifier.NotifyImportFailed(ctx, rec.TenantID, rec.ID, reason); err != nil {
		s.logger.Warn().Err(err).Str("job_id", rec.ID).Msg("failed to publish import notification")
	}
	s.logger.Warn().Str("tenant", rec.TenantID).Str("job_id", rec.ID).Str("status", string(status)).Msg(reason)

	result, err := decodeSummary(updated)
	if err != nil {
		return Status{Record: updated, Job: job}, nil
	}
	return Status{Record: updated, Job: job, Result: &result}, nil
}

// Result returns the stored result of a recorded run, including its failed
// and skipped rows.
func (s *Service) Result(ctx context.Context, tenantID, recordID string) (models.ImportResult, error) {
	rec, err := s.jobs.Get(ctx, tenantID, recordID)
	if err != nil {
		return models.ImportResult{}, err
	}
	if rec.Kind != models.BulkJobKindMutation {
		return models.ImportResult{}, ErrNotAnImport
	}
	return decodeSummary(rec)
}

func (s *Service) load(ctx context.Context, tenantID, recordID string) (models.JobRecord, CatalogClient, error) {
	rec, err := s.jobs.Get(ctx, tenantID, recordID)
	if err != nil {
		return models.JobRecord{}, nil, err
	}
	if rec.Kind != models.BulkJobKindMutation {
		return models.JobRecord{}, nil, ErrNotAnImport
	}
	client, err := s.clients(tenantID)
	if err != nil {
		return models.JobRecord{}, nil, err
	}
	return rec, client, nil
}

func (s *Service) observe(phase Phase, since time.Time) {
	s.metrics.ObserveImportDuration(string(phase), s.now().Sub(since).Seconds())
}

func stored(rec models.JobRecord) (Status, error) {
	result, err := decodeSummary(rec)
	if err != nil {
		return Status{Record: rec}, err
	}
	return Status{
		Record: rec,
		Job:    models.BulkJob{ID: rec.RemoteID, Kind: rec.Kind, Status: rec.Status, ObjectCount: rec.ObjectCount},
		Result: &result,
	}, nil
}

func decodeSummary(rec models.JobRecord) (models.ImportResult, error) {
	result := emptyResult(0)
	if len(rec.Summary) == 0 {
		return result, nil
	}
	if err := json.Unmarshal(rec.Summary, &result); err != nil {
		return result, fmt.Errorf("decode import summary: %w", err)
	}
	return result, nil
}

func emptyResult(total int) models.ImportResult {
	return models.ImportResult{
		Total:       total,
		Errors:      []string{},
		FailedRows:  []models.ImportRow{},
		SkippedRows: []models.ImportRow{},
	}
}

func cloneResult(r models.ImportResult) models.ImportResult {
	r.Errors = append([]string{}, r.Errors...)
	return r
}

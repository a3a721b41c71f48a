package activities

import (
	"context"
	"errors"

	pkgerrors "github.com/pkg/errors"
	"github.com/stanstork/pricesync-api/internal/bulkop"
	"github.com/stanstork/pricesync-api/internal/importer"
	"github.com/stanstork/pricesync-api/internal/models"
	"github.com/stanstork/pricesync-api/internal/temporal"
	"go.temporal.io/sdk/activity"
)

type ExportService interface {
	Await(ctx context.Context, tenantID, recordID string) (models.BulkJob, error)
	Build(ctx context.Context, tenantID, recordID string, job models.BulkJob) (models.JobRecord, error)
	Fail(ctx context.Context, tenantID, recordID string, status models.BulkJobStatus, reason string) error
}

type ImportService interface {
	Await(ctx context.Context, tenantID, recordID string) (importer.Status, error)
	Fail(ctx context.Context, tenantID, recordID, reason string) (importer.Status, error)
}

type Activities struct {
	Exports ExportService
	Imports ImportService
}

func (a *Activities) AwaitExportActivity(ctx context.Context, params temporal.JobParams) (temporal.AwaitResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Awaiting export bulk job", "tenantID", params.TenantID, "recordID", params.RecordID)

	job, err := a.Exports.Await(ctx, params.TenantID, params.RecordID)
	if failed, ok := jobFailure(job, err); ok {
		logger.Warn("Export bulk job did not complete", "recordID", params.RecordID, "reason", failed.Reason)
		return failed, nil
	}
	if err != nil {
		return temporal.AwaitResult{}, pkgerrors.Wrap(err, "failed to await export job")
	}
	return temporal.AwaitResult{Job: job}, nil
}

func (a *Activities) BuildExportActivity(ctx context.Context, params temporal.JobParams, job models.BulkJob) error {
	logger := activity.GetLogger(ctx)
	logger.Info("Building export file", "tenantID", params.TenantID, "recordID", params.RecordID)

	if _, err := a.Exports.Build(ctx, params.TenantID, params.RecordID, job); err != nil {
		return pkgerrors.Wrap(err, "failed to build export file")
	}
	return nil
}

func (a *Activities) FailExportActivity(ctx context.Context, params temporal.JobParams, status models.BulkJobStatus, reason string) error {
	logger := activity.GetLogger(ctx)
	logger.Info("Marking export failed", "tenantID", params.TenantID, "recordID", params.RecordID, "status", status)

	if err := a.Exports.Fail(ctx, params.TenantID, params.RecordID, status, reason); err != nil {
		return pkgerrors.Wrap(err, "failed to mark export failed")
	}
	return nil
}

// AwaitImportActivity polls a launched import and merges its result. The
// import service records job failures itself; only an exhausted budget is
// reported back as Failed.
func (a *Activities) AwaitImportActivity(ctx context.Context, params temporal.JobParams) (temporal.AwaitResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Awaiting import bulk job", "tenantID", params.TenantID, "recordID", params.RecordID)

	status, err := a.Imports.Await(ctx, params.TenantID, params.RecordID)
	if errors.Is(err, bulkop.ErrPollTimeout) {
		return temporal.AwaitResult{Job: status.Job, Failed: true, Reason: err.Error()}, nil
	}
	if err != nil {
		return temporal.AwaitResult{}, pkgerrors.Wrap(err, "failed to await import job")
	}
	res := temporal.AwaitResult{Job: status.Job}
	if status.Record.ErrorMessage != nil {
		res.Reason = *status.Record.ErrorMessage
	}
	return res, nil
}

func (a *Activities) FailImportActivity(ctx context.Context, params temporal.JobParams, reason string) error {
	logger := activity.GetLogger(ctx)
	logger.Info("Marking import failed", "tenantID", params.TenantID, "recordID", params.RecordID)

	if _, err := a.Imports.Fail(ctx, params.TenantID, params.RecordID, reason); err != nil {
		return pkgerrors.Wrap(err, "failed to mark import failed")
	}
	return nil
}

func jobFailure(job models.BulkJob, err error) (temporal.AwaitResult, bool) {
	var jobErr *bulkop.JobError
	switch {
	case err == nil:
		return temporal.AwaitResult{}, false
	case errors.As(err, &jobErr):
		return temporal.AwaitResult{Job: jobErr.Job, Failed: true, Reason: err.Error()}, true
	case errors.Is(err, bulkop.ErrPollTimeout):
		return temporal.AwaitResult{Job: job, Failed: true, Reason: err.Error()}, true
	}
	return temporal.AwaitResult{}, false
}

package workflows

import (
	"fmt"
	"time"

	"github.com/stanstork/pricesync-api/internal/models"
	pricesync "github.com/stanstork/pricesync-api/internal/temporal"
	"github.com/stanstork/pricesync-api/internal/temporal/activities"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const defaultAwaitTimeout = 35 * time.Minute

func shortOptions(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: pricesync.DefaultActivityTimeout,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
	})
}

func awaitOptions(ctx workflow.Context, params pricesync.JobParams) workflow.Context {
	timeout := params.AwaitTimeout
	if timeout <= 0 {
		timeout = defaultAwaitTimeout
	}
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 2},
	})
}

// ExportWorkflow waits for an export's bulk query and builds its spreadsheet.
// A job that fails remotely completes the workflow after the export is marked failed.
func ExportWorkflow(ctx workflow.Context, params pricesync.JobParams) error {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting export workflow", "TenantID", params.TenantID, "RecordID", params.RecordID)

	var a *activities.Activities
	short := shortOptions(ctx)

	var awaited pricesync.AwaitResult
	if err := workflow.ExecuteActivity(awaitOptions(ctx, params), a.AwaitExportActivity, params).Get(ctx, &awaited); err != nil {
		markExportFailed(short, a, params, models.BulkJobStatusFailed, fmt.Sprintf("Failed to await export: %v", err))
		logger.Error("Export await failed.", "error", err)
		return err
	}
	if awaited.Failed {
		markExportFailed(short, a, params, awaited.Job.Status, awaited.Reason)
		logger.Info("Export bulk job failed.", "RecordID", params.RecordID, "Reason", awaited.Reason)
		return nil
	}

	if err := workflow.ExecuteActivity(short, a.BuildExportActivity, params, awaited.Job).Get(short, nil); err != nil {
		markExportFailed(short, a, params, models.BulkJobStatusFailed, fmt.Sprintf("Failed to build export file: %v", err))
		logger.Error("Export build failed.", "error", err)
		return err
	}

	logger.Info("Export workflow completed successfully.", "RecordID", params.RecordID)
	return nil
}

func markExportFailed(ctx workflow.Context, a *activities.Activities, params pricesync.JobParams, status models.BulkJobStatus, reason string) {
	if err := workflow.ExecuteActivity(ctx, a.FailExportActivity, params, status, reason).Get(ctx, nil); err != nil {
		workflow.GetLogger(ctx).Error("Failed to mark export failed.", "error", err)
	}
}

// ImportAwaitWorkflow waits for a launched import's bulk mutation and merges
// its per-line errors into the stored result.
func ImportAwaitWorkflow(ctx workflow.Context, params pricesync.JobParams) error {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting import await workflow", "TenantID", params.TenantID, "RecordID", params.RecordID)

	var a *activities.Activities
	short := shortOptions(ctx)

	var awaited pricesync.AwaitResult
	if err := workflow.ExecuteActivity(awaitOptions(ctx, params), a.AwaitImportActivity, params).Get(ctx, &awaited); err != nil {
		markImportFailed(short, a, params, fmt.Sprintf("Failed to await import: %v", err))
		logger.Error("Import await failed.", "error", err)
		return err
	}
	if awaited.Failed {
		markImportFailed(short, a, params, awaited.Reason)
		logger.Info("Import bulk job did not finish in time.", "RecordID", params.RecordID)
		return nil
	}

	logger.Info("Import await workflow completed.", "RecordID", params.RecordID, "Status", awaited.Job.Status)
	return nil
}

func markImportFailed(ctx workflow.Context, a *activities.Activities, params pricesync.JobParams, reason string) {
	if err := workflow.ExecuteActivity(ctx, a.FailImportActivity, params, reason).Get(ctx, nil); err != nil {
		workflow.GetLogger(ctx).Error("Failed to mark import failed.", "error", err)
	}
}

// Package worker hosts the Temporal worker that drives export and import jobs.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/stanstork/pricesync-api/internal/config"
	"github.com/stanstork/pricesync-api/internal/temporal"
	"github.com/stanstork/pricesync-api/internal/temporal/activities"
	"github.com/stanstork/pricesync-api/internal/temporal/workflows"
	tc "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// awaitSlack is added to the poll budget for the await activities' own timeout.
const awaitSlack = 5 * time.Minute

// Config wires the worker to its task queue and services.
type Config struct {
	TaskQueue  string
	Bulk       config.BulkConfig
	Activities *activities.Activities
}

// Worker owns a Temporal worker and starts the job workflows it runs.
type Worker struct {
	client    tc.Client
	taskQueue string
	bulk      config.BulkConfig
	worker    worker.Worker
	logger    zerolog.Logger
}

func NewWorker(client tc.Client, cfg Config, logger zerolog.Logger) *Worker {
	queue := cfg.TaskQueue
	if queue == "" {
		queue = temporal.TaskQueueName
	}
	w := worker.New(client, queue, worker.Options{})
	w.RegisterWorkflow(workflows.ExportWorkflow)
	w.RegisterWorkflow(workflows.ImportAwaitWorkflow)
	w.RegisterActivity(cfg.Activities)

	return &Worker{
		client:    client,
		taskQueue: queue,
		bulk:      cfg.Bulk,
		worker:    w,
		logger:    logger.With().Str("component", "worker").Logger(),
	}
}

// Start runs the worker in the background.
func (w *Worker) Start() error {
	w.logger.Info().Str("task_queue", w.taskQueue).Msg("starting temporal worker")
	if err := w.worker.Start(); err != nil {
		return fmt.Errorf("start temporal worker: %w", err)
	}
	return nil
}

func (w *Worker) Stop() {
	w.worker.Stop()
	w.logger.Info().Msg("temporal worker stopped")
}

// StartExport starts the workflow that awaits and builds an export.
func (w *Worker) StartExport(ctx context.Context, tenantID, recordID string) (string, error) {
	return w.start(ctx, temporal.ExportWorkflowIDPrefix+recordID, workflows.ExportWorkflow, tenantID, recordID)
}

// StartImportAwait starts the workflow that awaits and merges a launched import.
func (w *Worker) StartImportAwait(ctx context.Context, tenantID, recordID string) (string, error) {
	return w.start(ctx, temporal.ImportWorkflowIDPrefix+recordID, workflows.ImportAwaitWorkflow, tenantID, recordID)
}

func (w *Worker) start(ctx context.Context, workflowID string, workflow interface{}, tenantID, recordID string) (string, error) {
	params := temporal.JobParams{
		TenantID:     tenantID,
		RecordID:     recordID,
		AwaitTimeout: w.bulk.MaxWait + awaitSlack,
	}
	run, err := w.client.ExecuteWorkflow(ctx, tc.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: w.taskQueue,
	}, workflow, params)
	if err != nil {
		return "", fmt.Errorf("start workflow %s: %w", workflowID, err)
	}
	w.logger.Info().
		Str("tenant", tenantID).
		Str("job_id", recordID).
		Str("workflow_id", run.GetID()).
		Str("run_id", run.GetRunID()).
		Msg("workflow started")
	return run.GetID(), nil
}

package temporal

import (
	"time"

	"github.com/stanstork/pricesync-api/internal/models"
)

// TaskQueueName is the default task queue for price sync workflows.
const TaskQueueName = "PRICESYNC"

const (
	ExportWorkflowIDPrefix = "pricesync-export-"
	ImportWorkflowIDPrefix = "pricesync-import-"
)

// DefaultActivityTimeout bounds the short bookkeeping activities.
const DefaultActivityTimeout = 5 * time.Minute

// JobParams identifies the recorded job a workflow drives.
type JobParams struct {
	TenantID string
	RecordID string
	// AwaitTimeout bounds the polling activity; it should exceed the poll budget.
	AwaitTimeout time.Duration
}

// AwaitResult is the outcome of a polling activity. Failed jobs are a result,
// not an activity error, so they are not retried.
type AwaitResult struct {
	Job    models.BulkJob
	Failed bool
	Reason string
}

package models

import (
	"encoding/json"
	"time"
)

type BulkJobKind string

const (
	BulkJobKindQuery    BulkJobKind = "QUERY"
	BulkJobKindMutation BulkJobKind = "MUTATION"
)

type BulkJobStatus string

const (
	BulkJobStatusNone      BulkJobStatus = "NONE"
	BulkJobStatusCreated   BulkJobStatus = "CREATED"
	BulkJobStatusRunning   BulkJobStatus = "RUNNING"
	BulkJobStatusCompleted BulkJobStatus = "COMPLETED"
	BulkJobStatusFailed    BulkJobStatus = "FAILED"
	BulkJobStatusCanceling BulkJobStatus = "CANCELING"
	BulkJobStatusCancelled BulkJobStatus = "CANCELED"
	BulkJobStatusExpired   BulkJobStatus = "EXPIRED"
)

// Terminal reports whether the remote system will no longer change the job.
func (s BulkJobStatus) Terminal() bool {
	switch s {
	case BulkJobStatusCompleted, BulkJobStatusFailed, BulkJobStatusCancelled, BulkJobStatusExpired, BulkJobStatusNone:
		return true
	}
	return false
}

// InFlight reports whether the job still occupies the tenant's bulk slot.
func (s BulkJobStatus) InFlight() bool {
	return s == BulkJobStatusCreated || s == BulkJobStatusRunning || s == BulkJobStatusCanceling
}

// BulkJob is a point-in-time snapshot of a remote bulk operation.
type BulkJob struct {
	ID          string        `json:"id"`
	Kind        BulkJobKind   `json:"kind"`
	Status      BulkJobStatus `json:"status"`
	ObjectCount int64         `json:"object_count"`
	ResultURL   string        `json:"result_url,omitempty"`
	ErrorCode   string        `json:"error_code,omitempty"`
	Reason      string        `json:"reason,omitempty"`
}

// JobRecord is the local bookkeeping row for a bulk job launched on behalf of a tenant.
type JobRecord struct {
	ID                  string          `json:"id" db:"id"`
	TenantID            string          `json:"tenant_id" db:"tenant_id"`
	Kind                BulkJobKind     `json:"kind" db:"kind"`
	RemoteID            string          `json:"remote_id" db:"remote_id"`
	Status              BulkJobStatus   `json:"status" db:"status"`
	ObjectCount         int64           `json:"object_count" db:"object_count"`
	ExpectedUpdateCount int             `json:"expected_update_count" db:"expected_update_count"`
	ArtifactKey         *string         `json:"artifact_key,omitempty" db:"artifact_key"`
	ErrorMessage        *string         `json:"error_message,omitempty" db:"error_message"`
	Summary             json.RawMessage `json:"summary,omitempty" db:"summary"`
	CreatedAt           time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at" db:"updated_at"`
	CompletedAt         *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
}

// BulkJobReasonMissingResult marks a COMPLETED job that produced no result file.
const BulkJobReasonMissingResult = "No URL in completed bulk operation"

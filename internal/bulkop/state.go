package bulkop

import (
	"fmt"

	"github.com/stanstork/pricesync-api/internal/models"
)

// Phase is the local view of a bulk job's lifecycle.
type Phase string

const (
	PhaseAwaitingCreation Phase = "awaiting_creation"
	PhaseRunning          Phase = "running"
	PhaseCompleted        Phase = "completed"
	PhaseFailed           Phase = "failed"
)

func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// PhaseOf maps a remote status onto a phase. A COMPLETED job without a result
// URL cannot be used and counts as failed.
func PhaseOf(job models.BulkJob) Phase {
	switch job.Status {
	case "", models.BulkJobStatusCreated:
		return PhaseAwaitingCreation
	case models.BulkJobStatusRunning, models.BulkJobStatusCanceling:
		return PhaseRunning
	case models.BulkJobStatusCompleted:
		if job.ResultURL == "" {
			return PhaseFailed
		}
		return PhaseCompleted
	default:
		return PhaseFailed
	}
}

// Machine tracks one job through its phases. Snapshots only move it forward.
type Machine struct {
	jobID string
	phase Phase
	last  models.BulkJob
}

func NewMachine(job models.BulkJob) *Machine {
	return &Machine{jobID: job.ID, phase: PhaseOf(job), last: job}
}

func (m *Machine) Phase() Phase {
	return m.phase
}

func (m *Machine) Last() models.BulkJob {
	return m.last
}

// Advance applies a new snapshot and reports whether the phase changed.
func (m *Machine) Advance(job models.BulkJob) (bool, error) {
	if job.ID != "" && m.jobID != "" && job.ID != m.jobID {
		return false, fmt.Errorf("snapshot for job %s applied to job %s", job.ID, m.jobID)
	}
	next := PhaseOf(job)
	if m.phase.Terminal() {
		return false, nil
	}
	if rank(next) < rank(m.phase) {
		return false, nil
	}
	m.last = job
	if next == m.phase {
		return false, nil
	}
	m.phase = next
	return true, nil
}

func rank(p Phase) int {
	switch p {
	case PhaseAwaitingCreation:
		return 0
	case PhaseRunning:
		return 1
	default:
		return 2
	}
}

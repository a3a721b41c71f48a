package bulkop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/stanstork/pricesync-api/internal/config"
	"github.com/stanstork/pricesync-api/internal/metrics"
	"github.com/stanstork/pricesync-api/internal/models"
)

var (
	ErrPollTimeout      = errors.New("bulk job did not finish within the wait budget")
	ErrJobNotFound      = errors.New("bulk job not found")
	ErrJobFailed        = errors.New("bulk job failed")
	ErrJobMissingResult = errors.New("bulk job completed without a result url")
)

const defaultMaxPollErrors = 3

// StatusSource is a single-shot status lookup.
type StatusSource interface {
	PollBulkJob(ctx context.Context, id string) (models.BulkJob, error)
}

// JobError describes a job that reached a failed phase.
type JobError struct {
	Job models.BulkJob
}

func (e *JobError) Error() string {
	msg := fmt.Sprintf("bulk job %s ended with status %s", e.Job.ID, e.Job.Status)
	if e.Job.ErrorCode != "" {
		msg += " (" + e.Job.ErrorCode + ")"
	}
	if e.Job.Reason != "" {
		msg += ": " + e.Job.Reason
	}
	return msg
}

func (e *JobError) Is(target error) bool {
	switch target {
	case ErrJobFailed:
		return true
	case ErrJobNotFound:
		return e.Job.Status == models.BulkJobStatusNone
	case ErrJobMissingResult:
		return e.Job.Reason == models.BulkJobReasonMissingResult
	}
	return false
}

// Poller drives a job to a terminal phase by repeated single-shot polls.
type Poller struct {
	source        StatusSource
	interval      time.Duration
	maxWait       time.Duration
	maxAttempts   int
	maxPollErrors int
	metrics       *metrics.Metrics
	logger        zerolog.Logger
	sleep         func(ctx context.Context, d time.Duration) error
	now           func() time.Time
}

func NewPoller(source StatusSource, cfg config.BulkConfig, m *metrics.Metrics, logger zerolog.Logger) *Poller {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	maxWait := cfg.MaxWait
	if maxWait <= 0 {
		maxWait = 30 * time.Minute
	}
	return &Poller{
		source:        source,
		interval:      interval,
		maxWait:       maxWait,
		maxAttempts:   int(maxWait/interval) + 1,
		maxPollErrors: defaultMaxPollErrors,
		metrics:       m,
		logger:        logger.With().Str("component", "bulkop").Logger(),
		sleep:         sleep,
		now:           time.Now,
	}
}

// Await polls until the job completes or fails, the attempt or time budget
// runs out, or ctx is cancelled. Completed jobs are returned with a nil error;
// failed ones with a *JobError.
func (p *Poller) Await(ctx context.Context, job models.BulkJob) (models.BulkJob, error) {
	machine := NewMachine(job)
	deadline := p.now().Add(p.maxWait)
	consecutiveErrors := 0

	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := p.sleep(ctx, p.interval); err != nil {
				return machine.Last(), err
			}
		}
		if p.now().After(deadline) {
			break
		}

		snapshot, err := p.source.PollBulkJob(ctx, job.ID)
		if err != nil {
			if ctx.Err() != nil {
				return machine.Last(), ctx.Err()
			}
			consecutiveErrors++
			p.logger.Warn().Err(err).Str("job_id", job.ID).Int("attempt", attempt).Msg("bulk job poll failed")
			if consecutiveErrors >= p.maxPollErrors {
				return machine.Last(), fmt.Errorf("poll bulk job %s: %w", job.ID, err)
			}
			continue
		}
		consecutiveErrors = 0
		if snapshot.Kind == "" {
			snapshot.Kind = job.Kind
		}
		p.metrics.IncBulkJobPolls(string(snapshot.Kind), string(snapshot.Status))

		changed, err := machine.Advance(snapshot)
		if err != nil {
			return machine.Last(), err
		}
		if changed {
			p.logger.Info().Str("job_id", job.ID).Str("status", string(snapshot.Status)).Str("phase", string(machine.Phase())).Msg("bulk job phase changed")
		}

		switch machine.Phase() {
		case PhaseCompleted:
			return machine.Last(), nil
		case PhaseFailed:
			failed := machine.Last()
			if failed.Status == models.BulkJobStatusCompleted {
				failed.Status = models.BulkJobStatusFailed
				failed.Reason = models.BulkJobReasonMissingResult
			}
			return failed, &JobError{Job: failed}
		}
	}

	p.logger.Warn().Str("job_id", job.ID).Dur("max_wait", p.maxWait).Msg("gave up waiting for bulk job")
	return machine.Last(), ErrPollTimeout
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

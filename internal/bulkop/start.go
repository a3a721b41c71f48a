package bulkop

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/stanstork/pricesync-api/internal/metrics"
	"github.com/stanstork/pricesync-api/internal/models"
)

// QueryRunner is the slice of the catalog client needed to start a bulk query.
type QueryRunner interface {
	CancelIfActive(ctx context.Context, kind models.BulkJobKind) bool
	RunQuery(ctx context.Context, queryDoc string) (models.BulkJob, error)
}

// Starter submits bulk queries, first clearing the tenant's single query slot.
type Starter struct {
	grace   time.Duration
	metrics *metrics.Metrics
	logger  zerolog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewStarter(grace time.Duration, m *metrics.Metrics, logger zerolog.Logger) *Starter {
	if grace < 0 {
		grace = 0
	}
	return &Starter{
		grace:   grace,
		metrics: m,
		logger:  logger.With().Str("component", "bulkop").Logger(),
		sleep:   sleep,
	}
}

// StartQuery cancels any unfinished query job, waits the grace period when a
// cancel was issued, then submits queryDoc. Concurrent starts for the same
// tenant may still race; the remote API rejects the loser.
func (s *Starter) StartQuery(ctx context.Context, runner QueryRunner, queryDoc string) (models.BulkJob, error) {
	if runner.CancelIfActive(ctx, models.BulkJobKindQuery) && s.grace > 0 {
		s.logger.Debug().Dur("grace", s.grace).Msg("waiting for cancelled bulk query to release")
		if err := s.sleep(ctx, s.grace); err != nil {
			return models.BulkJob{}, err
		}
	}
	job, err := runner.RunQuery(ctx, queryDoc)
	if err != nil {
		return models.BulkJob{}, err
	}
	s.metrics.IncBulkJobsSubmitted(string(models.BulkJobKindQuery))
	return job, nil
}

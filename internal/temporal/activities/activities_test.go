package activities

import (
	"context"
	"errors"
	"testing"

	"github.com/stanstork/pricesync-api/internal/bulkop"
	"github.com/stanstork/pricesync-api/internal/importer"
	"github.com/stanstork/pricesync-api/internal/models"
	"github.com/stanstork/pricesync-api/internal/temporal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"
)

type stubExports struct {
	job      models.BulkJob
	err      error
	built    int
	failures []string
}

func (s *stubExports) Await(ctx context.Context, tenantID, recordID string) (models.BulkJob, error) {
	return s.job, s.err
}

func (s *stubExports) Build(ctx context.Context, tenantID, recordID string, job models.BulkJob) (models.JobRecord, error) {
	s.built++
	return models.JobRecord{ID: recordID}, nil
}

func (s *stubExports) Fail(ctx context.Context, tenantID, recordID string, status models.BulkJobStatus, reason string) error {
	s.failures = append(s.failures, reason)
	return nil
}

type stubImports struct {
	status importer.Status
	err    error
}

func (s *stubImports) Await(ctx context.Context, tenantID, recordID string) (importer.Status, error) {
	return s.status, s.err
}

func (s *stubImports) Fail(ctx context.Context, tenantID, recordID, reason string) (importer.Status, error) {
	return s.status, nil
}

var params = temporal.JobParams{TenantID: "demo.myshopify.com", RecordID: "rec-1"}

func TestAwaitExportActivityReportsJobFailure(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	failed := models.BulkJob{ID: "gid://shopify/BulkOperation/1", Status: models.BulkJobStatusFailed, ErrorCode: "ACCESS_DENIED"}
	a := &Activities{Exports: &stubExports{err: &bulkop.JobError{Job: failed}}}
	env.RegisterActivity(a)

	val, err := env.ExecuteActivity(a.AwaitExportActivity, params)
	require.NoError(t, err)

	var res temporal.AwaitResult
	require.NoError(t, val.Get(&res))
	assert.True(t, res.Failed)
	assert.Equal(t, models.BulkJobStatusFailed, res.Job.Status)
	assert.Contains(t, res.Reason, "ACCESS_DENIED")
}

func TestAwaitExportActivityWrapsTransientErrors(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	a := &Activities{Exports: &stubExports{err: errors.New("connection refused")}}
	env.RegisterActivity(a)

	_, err := env.ExecuteActivity(a.AwaitExportActivity, params)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to await export job")
}

func TestAwaitImportActivityTimeout(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	a := &Activities{Imports: &stubImports{err: bulkop.ErrPollTimeout}}
	env.RegisterActivity(a)

	val, err := env.ExecuteActivity(a.AwaitImportActivity, params)
	require.NoError(t, err)

	var res temporal.AwaitResult
	require.NoError(t, val.Get(&res))
	assert.True(t, res.Failed)
	assert.Equal(t, bulkop.ErrPollTimeout.Error(), res.Reason)
}

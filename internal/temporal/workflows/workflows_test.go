package workflows

import (
	"errors"
	"testing"
	"time"

	"github.com/stanstork/pricesync-api/internal/models"
	pricesync "github.com/stanstork/pricesync-api/internal/temporal"
	"github.com/stanstork/pricesync-api/internal/temporal/activities"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/testsuite"
)

type WorkflowSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite

	env *testsuite.TestWorkflowEnvironment
	a   *activities.Activities
}

func (s *WorkflowSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	s.a = &activities.Activities{}
	s.env.RegisterActivity(s.a)
}

func (s *WorkflowSuite) AfterTest(suiteName, testName string) {
	s.env.AssertExpectations(s.T())
}

var params = pricesync.JobParams{TenantID: "demo.myshopify.com", RecordID: "rec-1", AwaitTimeout: time.Minute}

func (s *WorkflowSuite) TestExportBuildsCompletedJob() {
	job := models.BulkJob{ID: "gid://shopify/BulkOperation/1", Status: models.BulkJobStatusCompleted, ResultURL: "https://result"}
	s.env.OnActivity(s.a.AwaitExportActivity, mock.Anything, params).Return(pricesync.AwaitResult{Job: job}, nil).Once()
	s.env.OnActivity(s.a.BuildExportActivity, mock.Anything, params, job).Return(nil).Once()

	s.env.ExecuteWorkflow(ExportWorkflow, params)

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

func (s *WorkflowSuite) TestExportMarksRemoteFailure() {
	failed := pricesync.AwaitResult{
		Job:    models.BulkJob{ID: "gid://shopify/BulkOperation/1", Status: models.BulkJobStatusExpired},
		Failed: true,
		Reason: "bulk job ended with status EXPIRED",
	}
	s.env.OnActivity(s.a.AwaitExportActivity, mock.Anything, params).Return(failed, nil).Once()
	s.env.OnActivity(s.a.FailExportActivity, mock.Anything, params, models.BulkJobStatusExpired, failed.Reason).Return(nil).Once()

	s.env.ExecuteWorkflow(ExportWorkflow, params)

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

func (s *WorkflowSuite) TestExportBuildErrorFailsExport() {
	job := models.BulkJob{ID: "gid://shopify/BulkOperation/1", Status: models.BulkJobStatusCompleted, ResultURL: "https://result"}
	s.env.OnActivity(s.a.AwaitExportActivity, mock.Anything, params).Return(pricesync.AwaitResult{Job: job}, nil).Once()
	s.env.OnActivity(s.a.BuildExportActivity, mock.Anything, params, job).Return(errors.New("bucket unavailable"))
	s.env.OnActivity(s.a.FailExportActivity, mock.Anything, params, models.BulkJobStatusFailed, mock.AnythingOfType("string")).Return(nil).Once()

	s.env.ExecuteWorkflow(ExportWorkflow, params)

	s.True(s.env.IsWorkflowCompleted())
	s.Error(s.env.GetWorkflowError())
}

func (s *WorkflowSuite) TestImportAwaitCompletes() {
	done := pricesync.AwaitResult{Job: models.BulkJob{ID: "gid://shopify/BulkOperation/7", Status: models.BulkJobStatusCompleted}}
	s.env.OnActivity(s.a.AwaitImportActivity, mock.Anything, params).Return(done, nil).Once()

	s.env.ExecuteWorkflow(ImportAwaitWorkflow, params)

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

func (s *WorkflowSuite) TestImportAwaitTimeoutMarksFailed() {
	timedOut := pricesync.AwaitResult{Failed: true, Reason: "bulk job did not finish within the wait budget"}
	s.env.OnActivity(s.a.AwaitImportActivity, mock.Anything, params).Return(timedOut, nil).Once()
	s.env.OnActivity(s.a.FailImportActivity, mock.Anything, params, timedOut.Reason).Return(nil).Once()

	s.env.ExecuteWorkflow(ImportAwaitWorkflow, params)

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

func TestWorkflowSuite(t *testing.T) {
	suite.Run(t, new(WorkflowSuite))
}

package submit

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stanstork/pricesync-api/internal/models"
	"github.com/stanstork/pricesync-api/internal/shopify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	target    shopify.StagedTarget
	createErr error
	uploadErr error
	runErr    error

	uploaded   []byte
	uploadName string
	runPath    string
	runDoc     string
	calls      []string
}

func (f *fakeClient) CreateStagedUpload(_ context.Context, filename string) (shopify.StagedTarget, error) {
	f.calls = append(f.calls, "create")
	f.uploadName = filename
	return f.target, f.createErr
}

func (f *fakeClient) UploadStaged(_ context.Context, _ shopify.StagedTarget, filename string, payload []byte) error {
	f.calls = append(f.calls, "upload")
	f.uploaded = payload
	return f.uploadErr
}

func (f *fakeClient) RunMutation(_ context.Context, doc, path string) (models.BulkJob, error) {
	f.calls = append(f.calls, "run")
	f.runDoc = doc
	f.runPath = path
	if f.runErr != nil {
		return models.BulkJob{}, f.runErr
	}
	return models.BulkJob{ID: "gid://shopify/BulkOperation/9", Kind: models.BulkJobKindMutation, Status: models.BulkJobStatusCreated}, nil
}

func str(s string) *string { return &s }

func mutations() []models.VariantMutation {
	return []models.VariantMutation{
		{VariantID: "v1", ProductID: "p1", Price: str("10")},
		{VariantID: "v2", ProductID: "p2", CompareAtPrice: models.NullablePrice{Set: true}},
		{VariantID: "v3", ProductID: "p1", Price: str("11.5"), CompareAtPrice: models.NullablePrice{Set: true, Value: str("20")}},
	}
}

func okTarget() shopify.StagedTarget {
	return shopify.StagedTarget{
		URL:        "https://uploads.example/bucket",
		Parameters: []shopify.StagedParameter{{Name: "key", Value: "tmp/1/price_updates.jsonl"}, {Name: "policy", Value: "abc"}},
	}
}

func TestPayloadGroupsByProductInOrder(t *testing.T) {
	payload, err := Payload(mutations())
	require.NoError(t, err)

	lines := strings.Split(string(payload), "\n")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"productId":"p1","variants":[{"id":"v1","price":"10"},{"id":"v3","price":"11.5","compareAtPrice":"20"}]}`, lines[0])
	assert.JSONEq(t, `{"productId":"p2","variants":[{"id":"v2","compareAtPrice":null}]}`, lines[1])
}

func TestSubmitLaunchesMutation(t *testing.T) {
	client := &fakeClient{target: okTarget()}
	s := NewSubmitter(nil, zerolog.Nop())

	job, err := s.Submit(context.Background(), client, mutations())
	require.NoError(t, err)

	assert.Equal(t, "gid://shopify/BulkOperation/9", job.ID)
	assert.Equal(t, []string{"create", "upload", "run"}, client.calls)
	assert.Equal(t, "tmp/1/price_updates.jsonl", client.runPath)
	assert.Equal(t, shopify.VariantsBulkUpdateMutation, client.runDoc)
	assert.True(t, strings.HasSuffix(client.uploadName, ".jsonl"))
	assert.Equal(t, 2, strings.Count(string(client.uploaded), "\n")+1)
}

func TestSubmitNothing(t *testing.T) {
	client := &fakeClient{target: okTarget()}
	_, err := NewSubmitter(nil, zerolog.Nop()).Submit(context.Background(), client, nil)
	assert.ErrorIs(t, err, ErrNothingToSubmit)
	assert.Empty(t, client.calls)
}

func TestSubmitFailureMessages(t *testing.T) {
	cases := []struct {
		name    string
		client  *fakeClient
		stage   Stage
		message string
		calls   int
	}{
		{
			name:    "stage user error",
			client:  &fakeClient{createErr: &shopify.UserErrorsError{Action: "stagedUploadsCreate", Errors: []shopify.UserError{{Message: "Invalid filename"}}}},
			stage:   StageCreateTarget,
			message: "Failed to create upload target: Invalid filename",
			calls:   1,
		},
		{
			name:    "no target",
			client:  &fakeClient{createErr: shopify.ErrNoStagedTarget},
			stage:   StageCreateTarget,
			message: "Failed to get upload target URL",
			calls:   1,
		},
		{
			name:    "no key parameter",
			client:  &fakeClient{target: shopify.StagedTarget{URL: "https://uploads.example"}},
			stage:   StageCreateTarget,
			message: "Failed to get upload target URL",
			calls:   1,
		},
		{
			name:    "upload rejected",
			client:  &fakeClient{target: okTarget(), uploadErr: &shopify.HTTPStatusError{StatusCode: 403, Status: "403 Forbidden"}},
			stage:   StageUpload,
			message: "Upload failed: Forbidden",
			calls:   2,
		},
		{
			name:    "launch user error",
			client:  &fakeClient{target: okTarget(), runErr: &shopify.UserErrorsError{Action: "bulkOperationRunMutation", Errors: []shopify.UserError{{Message: "A bulk mutation operation is already in progress."}}}},
			stage:   StageLaunch,
			message: "Bulk Mutation Error: A bulk mutation operation is already in progress.",
			calls:   3,
		},
		{
			name:    "launch without id",
			client:  &fakeClient{target: okTarget(), runErr: shopify.ErrEmptyBulkOperation},
			stage:   StageLaunch,
			message: "Failed to trigger backend bulk operation (No ID returned)",
			calls:   3,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewSubmitter(nil, zerolog.Nop()).Submit(context.Background(), tc.client, mutations())
			require.Error(t, err)

			var subErr *Error
			require.True(t, errors.As(err, &subErr))
			assert.Equal(t, tc.stage, subErr.Stage)
			assert.Equal(t, tc.message, err.Error())
			assert.Len(t, tc.client.calls, tc.calls)
		})
	}
}

package shopify

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/stanstork/pricesync-api/internal/models"
)

// ProductPricesQuery is the bulk export document: every product with its variants' prices.
const ProductPricesQuery = `
{
	products {
		edges {
			node {
				id
				title
				variants {
					edges {
						node {
							id
							sku
							selectedOptions { name value }
							price
							compareAtPrice
						}
					}
				}
			}
		}
	}
}`

// VariantsBulkUpdateMutation is applied once per staged NDJSON line.
const VariantsBulkUpdateMutation = `
mutation productVariantsBulkUpdate($productId: ID!, $variants: [ProductVariantsBulkInput!]!) {
	productVariantsBulkUpdate(productId: $productId, variants: $variants) {
		productVariants { id }
		userErrors { field message }
	}
}`

var ErrEmptyBulkOperation = errors.New("shopify bulk operation returned empty id")

// RunQuery submits a bulk query job.
func (c *Client) RunQuery(ctx context.Context, queryDoc string) (models.BulkJob, error) {
	query := `
	mutation bulkOperationRunQuery($query: String!) {
		bulkOperationRunQuery(query: $query) {
			bulkOperation { id status }
			userErrors { field message }
		}
	}`

	var data bulkOperationRunQueryData
	if err := c.graphqlRequest(ctx, query, map[string]any{"query": strings.TrimSpace(queryDoc)}, &data); err != nil {
		return models.BulkJob{}, err
	}
	if err := userErrorsToError("bulkOperationRunQuery", data.BulkOperationRunQuery.UserErrors); err != nil {
		return models.BulkJob{}, err
	}
	op := data.BulkOperationRunQuery.BulkOperation
	if op == nil || strings.TrimSpace(op.ID) == "" {
		return models.BulkJob{}, ErrEmptyBulkOperation
	}
	job := toBulkJob(op, models.BulkJobKindQuery)
	c.logger.Info().Str("job_id", job.ID).Str("kind", string(job.Kind)).Msg("bulk query submitted")
	return job, nil
}

// RunMutation launches a bulk mutation over a previously staged NDJSON file.
func (c *Client) RunMutation(ctx context.Context, mutationDoc, stagedPath string) (models.BulkJob, error) {
	if strings.TrimSpace(stagedPath) == "" {
		return models.BulkJob{}, errors.New("shopify staged upload path is required")
	}
	query := `
	mutation bulkOperationRunMutation($mutation: String!, $stagedUploadPath: String!) {
		bulkOperationRunMutation(mutation: $mutation, stagedUploadPath: $stagedUploadPath) {
			bulkOperation { id status }
			userErrors { field message }
		}
	}`

	var data bulkOperationRunMutationData
	err := c.graphqlRequest(ctx, query, map[string]any{
		"mutation":         strings.TrimSpace(mutationDoc),
		"stagedUploadPath": stagedPath,
	}, &data)
	if err != nil {
		return models.BulkJob{}, err
	}
	if err := userErrorsToError("bulkOperationRunMutation", data.BulkOperationRunMutation.UserErrors); err != nil {
		return models.BulkJob{}, err
	}
	op := data.BulkOperationRunMutation.BulkOperation
	if op == nil || strings.TrimSpace(op.ID) == "" {
		return models.BulkJob{}, ErrEmptyBulkOperation
	}
	job := toBulkJob(op, models.BulkJobKindMutation)
	if job.Status == "" {
		job.Status = models.BulkJobStatusCreated
	}
	c.logger.Info().Str("job_id", job.ID).Str("kind", string(job.Kind)).Msg("bulk mutation submitted")
	return job, nil
}

// PollBulkJob fetches a single status snapshot. A job unknown to the shop is
// reported as NONE; a COMPLETED job without a result URL is reported as FAILED.
func (c *Client) PollBulkJob(ctx context.Context, id string) (models.BulkJob, error) {
	query := `
	query bulkOperation($id: ID!) {
		node(id: $id) {
			... on BulkOperation {
				id
				status
				type
				errorCode
				objectCount
				url
			}
		}
	}`

	var data nodeBulkOperationData
	if err := c.graphqlRequest(ctx, query, map[string]any{"id": id}, &data); err != nil {
		return models.BulkJob{}, err
	}
	if data.Node == nil || strings.TrimSpace(data.Node.ID) == "" {
		return models.BulkJob{ID: id, Status: models.BulkJobStatusNone}, nil
	}
	job := toBulkJob(data.Node, kindOf(data.Node.Type))
	if job.Status == models.BulkJobStatusCompleted && strings.TrimSpace(job.ResultURL) == "" {
		job.Status = models.BulkJobStatusFailed
		job.Reason = models.BulkJobReasonMissingResult
	}
	return job, nil
}

// CurrentBulkJob returns the shop's latest job of kind, or a NONE job when there is none.
func (c *Client) CurrentBulkJob(ctx context.Context, kind models.BulkJobKind) (models.BulkJob, error) {
	query := `
	query currentBulkOperation($type: BulkOperationType!) {
		currentBulkOperation(type: $type) {
			id
			status
			type
			errorCode
			objectCount
			url
		}
	}`

	var data currentBulkOperationData
	if err := c.graphqlRequest(ctx, query, map[string]any{"type": string(kind)}, &data); err != nil {
		return models.BulkJob{}, err
	}
	if data.CurrentBulkOperation == nil {
		return models.BulkJob{Kind: kind, Status: models.BulkJobStatusNone}, nil
	}
	return toBulkJob(data.CurrentBulkOperation, kind), nil
}

// CancelBulkJob requests cancellation of a job.
func (c *Client) CancelBulkJob(ctx context.Context, id string) error {
	query := `
	mutation bulkOperationCancel($id: ID!) {
		bulkOperationCancel(id: $id) {
			bulkOperation { id status }
			userErrors { field message }
		}
	}`

	var data bulkOperationCancelData
	if err := c.graphqlRequest(ctx, query, map[string]any{"id": id}, &data); err != nil {
		return err
	}
	return userErrorsToError("bulkOperationCancel", data.BulkOperationCancel.UserErrors)
}

// CancelIfActive cancels the shop's current job of kind unless it is COMPLETED.
// Failures are logged and swallowed; it reports whether a cancel was issued.
func (c *Client) CancelIfActive(ctx context.Context, kind models.BulkJobKind) bool {
	current, err := c.CurrentBulkJob(ctx, kind)
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to check current bulk operation")
		return false
	}
	if current.Status == models.BulkJobStatusNone || current.Status == models.BulkJobStatusCompleted {
		return false
	}
	if err := c.CancelBulkJob(ctx, current.ID); err != nil {
		c.logger.Warn().Err(err).Str("job_id", current.ID).Str("status", string(current.Status)).Msg("failed to cancel existing bulk operation")
		return true
	}
	c.logger.Info().Str("job_id", current.ID).Str("status", string(current.Status)).Msg("cancelled existing bulk operation")
	return true
}

func toBulkJob(op *bulkOperationNode, kind models.BulkJobKind) models.BulkJob {
	job := models.BulkJob{
		ID:        strings.TrimSpace(op.ID),
		Kind:      kind,
		Status:    models.BulkJobStatus(strings.ToUpper(strings.TrimSpace(op.Status))),
		ResultURL: strings.TrimSpace(op.URL),
		ErrorCode: strings.TrimSpace(op.ErrorCode),
	}
	if op.ObjectCount != "" {
		if n, err := strconv.ParseInt(op.ObjectCount, 10, 64); err == nil {
			job.ObjectCount = n
		}
	}
	return job
}

func kindOf(remoteType string) models.BulkJobKind {
	if strings.EqualFold(remoteType, string(models.BulkJobKindMutation)) {
		return models.BulkJobKindMutation
	}
	return models.BulkJobKindQuery
}

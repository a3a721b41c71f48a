// Package submit stages variant mutations and launches the bulk mutation job.
package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stanstork/pricesync-api/internal/metrics"
	"github.com/stanstork/pricesync-api/internal/models"
	"github.com/stanstork/pricesync-api/internal/shopify"
)

type Stage string

const (
	StageEncode       Stage = "encode"
	StageCreateTarget Stage = "create_target"
	StageUpload       Stage = "upload"
	StageLaunch       Stage = "launch"
)

// ErrNothingToSubmit is returned for an empty mutation list.
var ErrNothingToSubmit = errors.New("no variant mutations to submit")

// Error is a batch-level submission failure. Error() is the message shown in
// the import results.
type Error struct {
	Stage   Stage
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// MutationClient is the slice of the catalog client the submitter drives.
type MutationClient interface {
	CreateStagedUpload(ctx context.Context, filename string) (shopify.StagedTarget, error)
	UploadStaged(ctx context.Context, target shopify.StagedTarget, filename string, payload []byte) error
	RunMutation(ctx context.Context, mutationDoc, stagedPath string) (models.BulkJob, error)
}

type Submitter struct {
	metrics *metrics.Metrics
	logger  zerolog.Logger
	newName func() string
}

func NewSubmitter(m *metrics.Metrics, logger zerolog.Logger) *Submitter {
	return &Submitter{
		metrics: m,
		logger:  logger.With().Str("component", "submit").Logger(),
		newName: func() string { return "price_updates-" + uuid.NewString() + ".jsonl" },
	}
}

// Submit groups mutations by product, stages them as NDJSON and launches a
// bulk mutation job. Every failure is returned as *Error.
func (s *Submitter) Submit(ctx context.Context, client MutationClient, mutations []models.VariantMutation) (models.BulkJob, error) {
	if len(mutations) == 0 {
		return models.BulkJob{}, ErrNothingToSubmit
	}
	payload, err := Payload(mutations)
	if err != nil {
		return models.BulkJob{}, s.fail(StageEncode, "Failed to encode price updates: "+err.Error(), err)
	}
	filename := s.newName()

	target, err := client.CreateStagedUpload(ctx, filename)
	if err != nil {
		var userErrs *shopify.UserErrorsError
		switch {
		case errors.As(err, &userErrs):
			return models.BulkJob{}, s.fail(StageCreateTarget, "Failed to create upload target: "+userErrs.FirstMessage(), err)
		case errors.Is(err, shopify.ErrNoStagedTarget):
			return models.BulkJob{}, s.fail(StageCreateTarget, "Failed to get upload target URL", err)
		}
		return models.BulkJob{}, s.fail(StageCreateTarget, "Failed to create upload target: "+err.Error(), err)
	}
	path := target.Path()
	if strings.TrimSpace(path) == "" {
		return models.BulkJob{}, s.fail(StageCreateTarget, "Failed to get upload target URL", shopify.ErrNoStagedTarget)
	}

	if err := client.UploadStaged(ctx, target, filename, payload); err != nil {
		return models.BulkJob{}, s.fail(StageUpload, "Upload failed: "+shopify.UploadStatusText(err), err)
	}

	job, err := client.RunMutation(ctx, shopify.VariantsBulkUpdateMutation, path)
	if err != nil {
		var userErrs *shopify.UserErrorsError
		switch {
		case errors.As(err, &userErrs):
			return models.BulkJob{}, s.fail(StageLaunch, "Bulk Mutation Error: "+userErrs.FirstMessage(), err)
		case errors.Is(err, shopify.ErrEmptyBulkOperation):
			return models.BulkJob{}, s.fail(StageLaunch, "Failed to trigger backend bulk operation (No ID returned)", err)
		}
		return models.BulkJob{}, s.fail(StageLaunch, "Bulk Mutation Error: "+err.Error(), err)
	}

	s.metrics.IncBulkJobsSubmitted(string(models.BulkJobKindMutation))
	s.logger.Info().
		Str("job_id", job.ID).
		Str("key", path).
		Int("variants", len(mutations)).
		Msg("bulk mutation launched")
	return job, nil
}

func (s *Submitter) fail(stage Stage, message string, err error) error {
	s.logger.Warn().Err(err).Str("stage", string(stage)).Msg("bulk submission failed")
	return &Error{Stage: stage, Message: message, Err: err}
}

type productLine struct {
	ProductID string           `json:"productId"`
	Variants  []map[string]any `json:"variants"`
}

// Payload renders one NDJSON line per product, products in first-seen order.
func Payload(mutations []models.VariantMutation) ([]byte, error) {
	var (
		order  []string
		groups = make(map[string][]map[string]any)
	)
	for _, m := range mutations {
		if _, ok := groups[m.ProductID]; !ok {
			order = append(order, m.ProductID)
		}
		groups[m.ProductID] = append(groups[m.ProductID], m.Input())
	}

	var buf bytes.Buffer
	for i, productID := range order {
		line, err := json.Marshal(productLine{ProductID: productID, Variants: groups[productID]})
		if err != nil {
			return nil, fmt.Errorf("encode product %s: %w", productID, err)
		}
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.Write(line)
	}
	return buf.Bytes(), nil
}

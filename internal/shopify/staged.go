package shopify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
)

const (
	StagedUploadFilename = "price_updates.jsonl"
	stagedUploadMimeType = "text/jsonl"
)

// StagedTarget is a write target returned by stagedUploadsCreate.
type StagedTarget struct {
	URL         string
	ResourceURL string
	Parameters  []StagedParameter
}

type StagedParameter struct {
	Name  string
	Value string
}

// Path is the staged upload path referenced by bulkOperationRunMutation: the "key" form parameter.
func (t StagedTarget) Path() string {
	for _, p := range t.Parameters {
		if p.Name == "key" {
			return p.Value
		}
	}
	return ""
}

var ErrNoStagedTarget = errors.New("shopify staged upload returned no target url")

// CreateStagedUpload requests a target for a bulk mutation variables file.
func (c *Client) CreateStagedUpload(ctx context.Context, filename string) (StagedTarget, error) {
	if filename == "" {
		filename = StagedUploadFilename
	}
	query := `
	mutation stagedUploadsCreate($input: [StagedUploadInput!]!) {
		stagedUploadsCreate(input: $input) {
			stagedTargets {
				url
				resourceUrl
				parameters { name value }
			}
			userErrors { field message }
		}
	}`

	variables := map[string]any{
		"input": []map[string]any{{
			"resource":   "BULK_MUTATION_VARIABLES",
			"filename":   filename,
			"mimeType":   stagedUploadMimeType,
			"httpMethod": "POST",
		}},
	}

	var data stagedUploadsCreateData
	if err := c.graphqlRequest(ctx, query, variables, &data); err != nil {
		return StagedTarget{}, err
	}
	if err := userErrorsToError("stagedUploadsCreate", data.StagedUploadsCreate.UserErrors); err != nil {
		return StagedTarget{}, err
	}
	if len(data.StagedUploadsCreate.StagedTargets) == 0 || strings.TrimSpace(data.StagedUploadsCreate.StagedTargets[0].URL) == "" {
		return StagedTarget{}, ErrNoStagedTarget
	}

	raw := data.StagedUploadsCreate.StagedTargets[0]
	target := StagedTarget{URL: raw.URL, ResourceURL: raw.ResourceURL}
	for _, p := range raw.Parameters {
		target.Parameters = append(target.Parameters, StagedParameter{Name: p.Name, Value: p.Value})
	}
	return target, nil
}

// UploadStaged POSTs payload to target as a multipart form: the target's
// parameters in order, then the payload as the "file" part.
func (c *Client) UploadStaged(ctx context.Context, target StagedTarget, filename string, payload []byte) error {
	if filename == "" {
		filename = StagedUploadFilename
	}
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for _, p := range target.Parameters {
		if err := writer.WriteField(p.Name, p.Value); err != nil {
			return err
		}
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := part.Write(payload); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return newHTTPStatusError(resp.StatusCode, resp.Status, respBody)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	c.logger.Debug().Int("bytes", len(payload)).Str("key", target.Path()).Msg("staged upload complete")
	return nil
}

// UploadStatusText is the short status phrase of a failed upload, e.g. "Forbidden".
func UploadStatusText(err error) string {
	var httpErr *HTTPStatusError
	if errors.As(err, &httpErr) {
		if text := http.StatusText(httpErr.StatusCode); text != "" {
			return text
		}
		return httpErr.Status
	}
	return fmt.Sprint(err)
}

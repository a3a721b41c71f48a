package shopify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stanstork/pricesync-api/internal/config"
	"github.com/stanstork/pricesync-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type graphqlHandler func(t *testing.T, query string, variables map[string]any) (int, string)

func newTestClient(t *testing.T, handle graphqlHandler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-token", r.Header.Get("X-Shopify-Access-Token"))
		var req graphQLRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		status, body := handle(t, req.Query, req.Variables)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	c := NewClient("demo.myshopify.com", "test-token", config.ShopifyConfig{APIVersion: "2025-01"}, srv.Client(), zerolog.Nop())
	c.WithEndpoint(srv.URL)
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c, srv
}

func TestGraphQLEndpoint(t *testing.T) {
	c := NewClient("demo.myshopify.com", "tok", config.ShopifyConfig{APIVersion: "2025-01"}, nil, zerolog.Nop())
	assert.Equal(t, "https://demo.myshopify.com/admin/api/2025-01/graphql.json", c.endpoint)
}

func TestRunQueryReturnsCreatedJob(t *testing.T) {
	c, _ := newTestClient(t, func(t *testing.T, query string, vars map[string]any) (int, string) {
		require.Contains(t, query, "bulkOperationRunQuery")
		assert.Contains(t, vars["query"], "compareAtPrice")
		return http.StatusOK, `{"data":{"bulkOperationRunQuery":{"bulkOperation":{"id":"gid://shopify/BulkOperation/1","status":"CREATED"},"userErrors":[]}}}`
	})

	job, err := c.RunQuery(context.Background(), ProductPricesQuery)
	require.NoError(t, err)
	assert.Equal(t, "gid://shopify/BulkOperation/1", job.ID)
	assert.Equal(t, models.BulkJobStatusCreated, job.Status)
	assert.Equal(t, models.BulkJobKindQuery, job.Kind)
}

func TestRunQuerySurfacesUserErrors(t *testing.T) {
	c, _ := newTestClient(t, func(t *testing.T, query string, vars map[string]any) (int, string) {
		return http.StatusOK, `{"data":{"bulkOperationRunQuery":{"bulkOperation":null,"userErrors":[{"field":["query"],"message":"A bulk query operation for this app and shop is already in progress"}]}}}`
	})

	_, err := c.RunQuery(context.Background(), ProductPricesQuery)
	var userErr *UserErrorsError
	require.ErrorAs(t, err, &userErr)
	assert.Equal(t, "A bulk query operation for this app and shop is already in progress", userErr.FirstMessage())
}

func TestPollBulkJob(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus models.BulkJobStatus
		wantCount  int64
		wantReason string
	}{
		{
			name:       "running with progress",
			body:       `{"data":{"node":{"id":"gid://shopify/BulkOperation/1","status":"RUNNING","type":"QUERY","objectCount":"42"}}}`,
			wantStatus: models.BulkJobStatusRunning,
			wantCount:  42,
		},
		{
			name:       "completed with url",
			body:       `{"data":{"node":{"id":"gid://shopify/BulkOperation/1","status":"COMPLETED","type":"QUERY","objectCount":"7","url":"https://storage.example/result.jsonl"}}}`,
			wantStatus: models.BulkJobStatusCompleted,
			wantCount:  7,
		},
		{
			name:       "completed without url",
			body:       `{"data":{"node":{"id":"gid://shopify/BulkOperation/1","status":"COMPLETED","type":"QUERY","objectCount":"0","url":null}}}`,
			wantStatus: models.BulkJobStatusFailed,
			wantReason: models.BulkJobReasonMissingResult,
		},
		{
			name:       "unknown job",
			body:       `{"data":{"node":null}}`,
			wantStatus: models.BulkJobStatusNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(t *testing.T, query string, vars map[string]any) (int, string) {
				assert.Equal(t, "gid://shopify/BulkOperation/1", vars["id"])
				return http.StatusOK, tt.body
			})
			job, err := c.PollBulkJob(context.Background(), "gid://shopify/BulkOperation/1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, job.Status)
			assert.Equal(t, tt.wantCount, job.ObjectCount)
			assert.Equal(t, tt.wantReason, job.Reason)
		})
	}
}

func TestCancelIfActiveSkipsCompletedJob(t *testing.T) {
	var cancels int32
	c, _ := newTestClient(t, func(t *testing.T, query string, vars map[string]any) (int, string) {
		if strings.Contains(query, "bulkOperationCancel") {
			atomic.AddInt32(&cancels, 1)
		}
		return http.StatusOK, `{"data":{"currentBulkOperation":{"id":"gid://shopify/BulkOperation/9","status":"COMPLETED"}}}`
	})

	assert.False(t, c.CancelIfActive(context.Background(), models.BulkJobKindQuery))
	assert.Zero(t, atomic.LoadInt32(&cancels))
}

func TestCancelIfActiveCancelsRunningJob(t *testing.T) {
	var cancelled string
	c, _ := newTestClient(t, func(t *testing.T, query string, vars map[string]any) (int, string) {
		if strings.Contains(query, "bulkOperationCancel") {
			cancelled, _ = vars["id"].(string)
			return http.StatusOK, `{"data":{"bulkOperationCancel":{"bulkOperation":{"id":"gid://shopify/BulkOperation/9","status":"CANCELING"},"userErrors":[]}}}`
		}
		assert.Equal(t, "QUERY", vars["type"])
		return http.StatusOK, `{"data":{"currentBulkOperation":{"id":"gid://shopify/BulkOperation/9","status":"RUNNING"}}}`
	})

	assert.True(t, c.CancelIfActive(context.Background(), models.BulkJobKindQuery))
	assert.Equal(t, "gid://shopify/BulkOperation/9", cancelled)
}

func TestCancelIfActiveSwallowsFailures(t *testing.T) {
	c, _ := newTestClient(t, func(t *testing.T, query string, vars map[string]any) (int, string) {
		return http.StatusBadRequest, `bad request`
	})

	assert.False(t, c.CancelIfActive(context.Background(), models.BulkJobKindQuery))
}

func TestGraphQLRetriesThrottledRequests(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, func(t *testing.T, query string, vars map[string]any) (int, string) {
		n := atomic.AddInt32(&calls, 1)
		switch n {
		case 1:
			return http.StatusTooManyRequests, `{"errors":"Throttled"}`
		case 2:
			return http.StatusOK, `{"errors":[{"message":"Throttled","extensions":{"code":"THROTTLED"}}]}`
		}
		return http.StatusOK, `{"data":{"currentBulkOperation":null}}`
	})

	job, err := c.CurrentBulkJob(context.Background(), models.BulkJobKindMutation)
	require.NoError(t, err)
	assert.Equal(t, models.BulkJobStatusNone, job.Status)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGraphQLDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, func(t *testing.T, query string, vars map[string]any) (int, string) {
		atomic.AddInt32(&calls, 1)
		return http.StatusUnauthorized, `{"errors":"[API] Invalid API key or access token"}`
	})

	_, err := c.CurrentBulkJob(context.Background(), models.BulkJobKindQuery)
	var httpErr *HTTPStatusError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestVariantsPage(t *testing.T) {
	c, _ := newTestClient(t, func(t *testing.T, query string, vars map[string]any) (int, string) {
		assert.EqualValues(t, 250, vars["first"])
		assert.Equal(t, "cursor-1", vars["after"])
		return http.StatusOK, `{"data":{"productVariants":{"nodes":[
			{"id":"gid://shopify/ProductVariant/1","sku":" ABC-1 ","price":"10.00","compareAtPrice":null,"product":{"id":"gid://shopify/Product/1"}},
			{"id":"gid://shopify/ProductVariant/2","sku":null,"price":"5.00","compareAtPrice":"6.00","product":{"id":"gid://shopify/Product/1"}}
		],"pageInfo":{"hasNextPage":true,"endCursor":"cursor-2"}}}}`
	})

	page, err := c.VariantsPage(context.Background(), "cursor-1", 0)
	require.NoError(t, err)
	require.Len(t, page.Variants, 2)
	assert.Equal(t, "ABC-1", page.Variants[0].SKU)
	assert.Equal(t, "gid://shopify/Product/1", page.Variants[0].ProductID)
	assert.Nil(t, page.Variants[0].CompareAtPrice)
	assert.Empty(t, page.Variants[1].SKU)
	require.NotNil(t, page.Variants[1].CompareAtPrice)
	assert.Equal(t, "6.00", *page.Variants[1].CompareAtPrice)
	assert.True(t, page.HasNextPage)
	assert.Equal(t, "cursor-2", page.EndCursor)
}

func TestStagedUploadRoundTrip(t *testing.T) {
	var gotKey, gotFile, gotFilename string
	upload := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotKey = r.FormValue("key")
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		b, _ := io.ReadAll(file)
		gotFile = string(b)
		gotFilename = header.Filename
		w.WriteHeader(http.StatusCreated)
	}))
	defer upload.Close()

	c, _ := newTestClient(t, func(t *testing.T, query string, vars map[string]any) (int, string) {
		input := vars["input"].([]any)[0].(map[string]any)
		assert.Equal(t, "BULK_MUTATION_VARIABLES", input["resource"])
		assert.Equal(t, "text/jsonl", input["mimeType"])
		return http.StatusOK, `{"data":{"stagedUploadsCreate":{"stagedTargets":[{"url":"` + upload.URL + `","resourceUrl":null,"parameters":[{"name":"key","value":"tmp/1/bulk/price_updates.jsonl"},{"name":"policy","value":"p"}]}],"userErrors":[]}}}`
	})

	target, err := c.CreateStagedUpload(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "tmp/1/bulk/price_updates.jsonl", target.Path())

	require.NoError(t, c.UploadStaged(context.Background(), target, "", []byte("{\"productId\":\"p\"}\n")))
	assert.Equal(t, "tmp/1/bulk/price_updates.jsonl", gotKey)
	assert.Equal(t, "{\"productId\":\"p\"}\n", gotFile)
	assert.Equal(t, StagedUploadFilename, gotFilename)
}

func TestUploadStagedReportsStatusText(t *testing.T) {
	upload := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer upload.Close()

	c, _ := newTestClient(t, nil)
	err := c.UploadStaged(context.Background(), StagedTarget{URL: upload.URL}, "", []byte("x"))
	require.Error(t, err)
	assert.Equal(t, "Forbidden", UploadStatusText(err))
}

func TestActiveSubscription(t *testing.T) {
	c, _ := newTestClient(t, func(t *testing.T, query string, vars map[string]any) (int, string) {
		return http.StatusOK, `{"data":{"currentAppInstallation":{"activeSubscriptions":[{"id":"gid://shopify/AppSubscription/5","name":"Growth Plan","status":"ACTIVE","createdAt":"2025-03-01T10:00:00Z"}]}}}`
	})

	sub, err := c.ActiveSubscription(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, "Growth Plan", sub.Name)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), sub.CreatedAt)
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("X-Shopify-Access-Token"))
		_, _ = io.WriteString(w, "{\"id\":\"1\"}\n")
	}))
	defer srv.Close()

	c := NewClient("demo.myshopify.com", "tok", config.ShopifyConfig{}, srv.Client(), zerolog.Nop())
	body, err := c.Download(context.Background(), srv.URL+"/result.jsonl")
	require.NoError(t, err)
	assert.Equal(t, "{\"id\":\"1\"}\n", string(body))
}

func TestFactoryRequiresToken(t *testing.T) {
	f := NewFactory(config.ShopifyConfig{
		APIVersion:   "2025-01",
		AccessTokens: []config.ShopToken{{Shop: "demo.myshopify.com", Token: "tok"}},
	}, zerolog.Nop())

	c, err := f.For("demo.myshopify.com")
	require.NoError(t, err)
	assert.Equal(t, "demo.myshopify.com", c.Shop())

	_, err = f.For("other.myshopify.com")
	assert.ErrorIs(t, err, ErrNoAccessToken)
}

package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stanstork/pricesync-api/internal/config"
)

// Client talks to one shop's Admin GraphQL API.
type Client struct {
	shop       string
	token      string
	apiVersion string
	endpoint   string
	httpClient *http.Client
	logger     zerolog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewClient(shop, token string, cfg config.ShopifyConfig, httpClient *http.Client, logger zerolog.Logger) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	c := &Client{
		shop:       strings.TrimSpace(shop),
		token:      token,
		apiVersion: cfg.APIVersion,
		httpClient: httpClient,
		logger:     logger.With().Str("component", "shopify").Str("tenant", shop).Logger(),
		sleep:      sleepWithContext,
	}
	c.endpoint = c.graphqlEndpoint()
	return c
}

// WithEndpoint points the client at a fixed GraphQL URL instead of the shop's Admin API.
func (c *Client) WithEndpoint(endpoint string) *Client {
	c.endpoint = endpoint
	return c
}

func (c *Client) Shop() string {
	return c.shop
}

func (c *Client) graphqlEndpoint() string {
	domain := c.shop
	if domain == "" {
		return ""
	}
	if !strings.HasPrefix(domain, "http://") && !strings.HasPrefix(domain, "https://") {
		domain = "https://" + domain
	}
	domain = strings.TrimRight(domain, "/")
	return domain + "/admin/api/" + c.apiVersion + "/graphql.json"
}

func (c *Client) graphqlRequest(ctx context.Context, query string, variables map[string]any, out any) error {
	if c.endpoint == "" {
		return errors.New("shopify shop domain is empty")
	}
	payload := graphQLRequest{
		Query:     strings.TrimSpace(query),
		Variables: variables,
	}
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < graphqlRetryMax; attempt++ {
		if attempt > 0 {
			delay := retryDelay(attempt - 1)
			c.logger.Warn().Err(lastErr).Int("attempt", attempt).Dur("delay", delay).Msg("retrying shopify graphql request")
			if err := c.sleep(ctx, delay); err != nil {
				return err
			}
		}
		lastErr = c.doGraphQL(ctx, bodyBytes, out)
		if lastErr == nil || !isRetryable(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("shopify graphql request exhausted retries: %w", lastErr)
}

func (c *Client) doGraphQL(ctx context.Context, body []byte, out any) error {
	raw, err := c.apiRequest(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}

	var resp graphQLResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("decode shopify graphql response: %w", err)
	}
	if len(resp.Errors) > 0 {
		return graphQLErrors(resp.Errors)
	}
	if out == nil {
		return nil
	}
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return errors.New("shopify graphql response missing data")
	}
	return json.Unmarshal(resp.Data, out)
}

func (c *Client) apiRequest(ctx context.Context, method string, endpoint string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newHTTPStatusError(resp.StatusCode, resp.Status, respBody)
	}
	return respBody, nil
}

// Factory builds per-tenant clients from the configured offline tokens.
type Factory struct {
	cfg        config.ShopifyConfig
	httpClient *http.Client
	logger     zerolog.Logger
}

var ErrNoAccessToken = errors.New("no access token configured for shop")

func NewFactory(cfg config.ShopifyConfig, logger zerolog.Logger) *Factory {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Factory{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (f *Factory) For(shop string) (*Client, error) {
	token, ok := f.cfg.TokenFor(shop)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoAccessToken, shop)
	}
	return NewClient(shop, token, f.cfg, f.httpClient, f.logger), nil
}

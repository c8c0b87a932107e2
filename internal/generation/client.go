package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

const (
	routeGenerate       = "/optimizer/generate"
	routeCreateDatabase = "/optimizer/create-database"
	routePopulate       = "/optimizer/populate"
	routeAnalyze        = "/optimizer/analyze"

	webhookTimeout = 10 * time.Second
)

// Models accepted by the generation service.
var Models = []string{"groq", "gemma", "hermes", "mistral"}

func ValidModel(name string) bool {
	for _, m := range Models {
		if m == name {
			return true
		}
	}
	return false
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// RetryConfig bounds retries on transport errors and 5xx responses.
type RetryConfig struct {
	MaxRetries int
	RetryDelay time.Duration
}

// Client talks to the external SQL generation service. It is immutable
// after construction and safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	webhook    *http.Client
	retry      RetryConfig
	logger     *slog.Logger
}

func NewClient(baseURL, apiKey string, logger *slog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		webhook:    &http.Client{Timeout: webhookTimeout},
		retry:      RetryConfig{MaxRetries: 2, RetryDelay: time.Second},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

func WithRetryConfig(cfg RetryConfig) ClientOption {
	return func(c *Client) {
		c.retry = cfg
	}
}

// WithHTTPClient replaces the client used for generation service calls.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// Generate asks for an optimized rewrite of query. The last element of the
// returned list is the optimized query; anything before it is an
// optimization statement (usually CREATE INDEX).
func (c *Client) Generate(ctx context.Context, model, structure, query string) ([]string, error) {
	body := map[string]any{"database_structure": structure, "query": query}
	data, err := c.post(ctx, routeGenerate, model, body, generateSchema)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, malformed(routeGenerate, err)
	}
	stmts, err := generatedStatements(resp.Result)
	if err != nil {
		return nil, malformed(routeGenerate, err)
	}
	if len(stmts) == 0 {
		return nil, malformed(routeGenerate, fmt.Errorf("empty result"))
	}
	return stmts, nil
}

// generatedStatements reads a generate result. A string result is the
// optimized query itself and is used as is.
func generatedStatements(raw json.RawMessage) ([]string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return decodeStatements(raw)
	}
	var query string
	if err := json.Unmarshal(trimmed, &query); err != nil {
		return nil, err
	}
	return clean([]string{query}), nil
}

// CreateDatabase returns the DDL that builds structure.
func (c *Client) CreateDatabase(ctx context.Context, model, structure string) ([]string, error) {
	body := map[string]any{"database_structure": structure}
	data, err := c.post(ctx, routeCreateDatabase, model, body, createDatabaseSchema)
	if err != nil {
		return nil, err
	}
	var resp struct {
		SQL json.RawMessage `json:"sql"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, malformed(routeCreateDatabase, err)
	}
	stmts, err := decodeStatements(resp.SQL)
	if err != nil {
		return nil, malformed(routeCreateDatabase, err)
	}
	return stmts, nil
}

// Populate returns INSERT statements generating rows rows per table.
// creationCommands are sent as one DDL script.
func (c *Client) Populate(ctx context.Context, model string, creationCommands []string, rows int) ([]string, error) {
	body := map[string]any{
		"creation_commands": joinScript(creationCommands),
		"number_insertions": rows,
	}
	data, err := c.post(ctx, routePopulate, model, body, populateSchema)
	if err != nil {
		return nil, err
	}
	stmts, err := decodeStatements(data)
	if err != nil {
		return nil, malformed(routePopulate, err)
	}
	return stmts, nil
}

// Analyze submits a benchmark comparison and returns the service's verdict
// unchanged.
func (c *Client) Analyze(ctx context.Context, model string, payload any) (json.RawMessage, error) {
	data, err := c.post(ctx, routeAnalyze, model, payload, analyzeSchema)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

// PostWebhook delivers payload to target once, without retries.
func (c *Client) PostWebhook(ctx context.Context, target string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.webhook.Do(req)
	if err != nil {
		return &ServiceError{Route: "webhook", Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ServiceError{Route: "webhook", StatusCode: resp.StatusCode, Message: resp.Status}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, route, model string, body []byte) (*http.Request, error) {
	u := c.baseURL + route + "?model_name=" + url.QueryEscape(model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// post sends body to route with retries on transport errors and 5xx, then
// validates the response document against schema.
func (c *Client) post(ctx context.Context, route, model string, body any, schema gojsonschema.JSONLoader) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", route, err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, c.retry.RetryDelay*time.Duration(attempt)); err != nil {
				return nil, &ServiceError{Route: route, Message: "request interrupted", Err: err}
			}
		}

		data, err := c.do(ctx, route, model, raw)
		if err == nil {
			if err := validate(schema, data); err != nil {
				return nil, malformed(route, err)
			}
			return data, nil
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			return nil, err
		}
		c.logger.Warn("generation request failed, retrying", "route", route, "attempt", attempt+1, "error", err)
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, route, model string, raw []byte) ([]byte, error) {
	req, err := c.newRequest(ctx, route, model, raw)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ServiceError{Route: route, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ServiceError{Route: route, StatusCode: resp.StatusCode, Message: "read body: " + err.Error(), Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ServiceError{Route: route, StatusCode: resp.StatusCode, Message: errorMessage(resp.Status, data)}
	}
	return data, nil
}

// retryable reports transport failures (no status) and server errors.
func retryable(err error) bool {
	var se *ServiceError
	if !errors.As(err, &se) {
		return false
	}
	return se.StatusCode == 0 || se.StatusCode >= 500
}

// errorMessage prefers a "detail" or "error" field from a JSON error body.
func errorMessage(status string, body []byte) string {
	var payload struct {
		Detail any    `json:"detail"`
		Error  string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Detail != nil {
			return fmt.Sprint(payload.Detail)
		}
	}
	if len(body) > 0 && len(body) <= 512 {
		return status + ": " + string(bytes.TrimSpace(body))
	}
	return status
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"Mansoor88-6/site-analytics/internal/models"

	"go.uber.org/zap"
)

// APIClient talks to the analytics server on behalf of the tracker and the
// dashboard
type APIClient struct {
	baseURL        string
	dashboardToken string
	userAgent      string
	httpClient     *http.Client
	logger         *zap.Logger
}

// NewAPIClient creates a new API client
func NewAPIClient(baseURL string, timeout time.Duration, logger *zap.Logger) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// SetDashboardToken sets the token sent on read-side requests
func (c *APIClient) SetDashboardToken(token string) {
	c.dashboardToken = token
}

// SetUserAgent overrides the User-Agent header sent with every request
func (c *APIClient) SetUserAgent(userAgent string) {
	c.userAgent = userAgent
}

// BaseURL returns the server root the client was built with
func (c *APIClient) BaseURL() string {
	return c.baseURL
}

// TrackPageView submits a page view or a duration follow-up
func (c *APIClient) TrackPageView(ctx context.Context, req models.TrackPageViewRequest) error {
	return c.post(ctx, "/analytics/track-page-view", req)
}

// TrackInteraction submits an interaction
func (c *APIClient) TrackInteraction(ctx context.Context, req models.TrackInteractionRequest) error {
	return c.post(ctx, "/analytics/track-interaction", req)
}

// Comprehensive fetches the full aggregate
func (c *APIClient) Comprehensive(ctx context.Context, q models.AnalyticsQuery) (*models.AnalyticsAggregate, error) {
	params := url.Values{}
	if q.Period != "" {
		params.Set("period", q.Period)
	}
	if q.StartDate != "" {
		params.Set("startDate", q.StartDate)
	}
	if q.EndDate != "" {
		params.Set("endDate", q.EndDate)
	}

	var agg models.AnalyticsAggregate
	if err := c.get(ctx, "/analytics/comprehensive", params, &agg); err != nil {
		return nil, err
	}
	return &agg, nil
}

// Live fetches the live count and recent activity
func (c *APIClient) Live(ctx context.Context) (*models.LiveSnapshot, error) {
	var snapshot models.LiveSnapshot
	if err := c.get(ctx, "/analytics/live", nil, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// HealthCheck checks if the server is reachable
func (c *APIClient) HealthCheck(ctx context.Context) error {
	return c.get(ctx, "/health", nil, nil)
}

func (c *APIClient) post(ctx context.Context, path string, body any) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, nil)
}

func (c *APIClient) get(ctx context.Context, path string, params url.Values, out any) error {
	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.dashboardToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.dashboardToken)
	}

	return c.do(req, out)
}

func (c *APIClient) do(req *http.Request, out any) error {
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, body)
	}

	c.logger.Debug("Request completed",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status_code", resp.StatusCode),
		zap.Duration("duration", duration),
	)

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func statusError(status int, body []byte) error {
	errMsg := fmt.Sprintf("server returned status %d: %s", status, strings.TrimSpace(string(body)))

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &AuthError{Message: errMsg, StatusCode: status}
	case http.StatusTooManyRequests:
		return &RateLimitError{Message: errMsg, StatusCode: status}
	case http.StatusBadRequest:
		return &BadRequestError{Message: errMsg, StatusCode: status}
	default:
		return &BackendError{Message: errMsg, StatusCode: status}
	}
}

// Error types
type AuthError struct {
	Message    string
	StatusCode int
}

func (e *AuthError) Error() string {
	return e.Message
}

type RateLimitError struct {
	Message    string
	StatusCode int
}

func (e *RateLimitError) Error() string {
	return e.Message
}

type BadRequestError struct {
	Message    string
	StatusCode int
}

func (e *BadRequestError) Error() string {
	return e.Message
}

type BackendError struct {
	Message    string
	StatusCode int
}

func (e *BackendError) Error() string {
	return e.Message
}

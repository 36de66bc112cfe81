package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/paywall-labs/paywall-go/config"
	sdkerrors "github.com/paywall-labs/paywall-go/internal/errors"
	"github.com/paywall-labs/paywall-go/internal/logger"
	"github.com/paywall-labs/paywall-go/internal/metrics"
	"github.com/paywall-labs/paywall-go/internal/models"
)

// Client is the remote catalog/checkout API surface the SDK consumes
type Client interface {
	// CreateUser creates or updates the visitor and returns the full catalog
	// (placements, paywalls, products, payment providers).
	CreateUser(ctx context.Context, userID string, attrs models.CustomerAttributes) (*models.User, error)
	CreateEvents(ctx context.Context, events []models.Event) error
	SetAttribution(ctx context.Context, attribution models.Attribution) error
	CreateCustomer(ctx context.Context, req models.CreateCustomerRequest) (*models.CustomerSession, error)
	CreateSubscription(ctx context.Context, req models.CreateSubscriptionRequest) (*models.Subscription, error)
	// ReportError is fire-and-forget; it never returns an error to the caller.
	ReportError(ctx context.Context, message string)
}

// HTTPClient implements Client over HTTPS JSON
type HTTPClient struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// NewHTTPClient creates a backend client from API config
func NewHTTPClient(cfg config.APIConfig) *HTTPClient {
	return &HTTPClient{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.Key,
		HTTP:    &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *HTTPClient) headers(req *http.Request) {
	req.Header.Set("Authorization", "Api-Key "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")
}

func (c *HTTPClient) post(ctx context.Context, operation, path string, body any, out any) error {
	start := time.Now()
	status := "success"
	defer func() {
		metrics.RecordBackendCall(operation, status, time.Since(start))
	}()

	payload, err := json.Marshal(body)
	if err != nil {
		status = "encode_error"
		return fmt.Errorf("encode %s: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		status = "request_error"
		return fmt.Errorf("build %s request: %w", operation, err)
	}
	c.headers(req)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		status = "network_error"
		return sdkerrors.Backend(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		status = "http_error"
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return sdkerrors.Backend(fmt.Errorf("%s returned %d: %s", operation, resp.StatusCode, snippet))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		status = "decode_error"
		return sdkerrors.Backend(fmt.Errorf("decode %s response: %w", operation, err))
	}
	return nil
}

func (c *HTTPClient) CreateUser(ctx context.Context, userID string, attrs models.CustomerAttributes) (*models.User, error) {
	body := struct {
		ID string `json:"id"`
		models.CustomerAttributes
	}{ID: userID, CustomerAttributes: attrs}

	var user models.User
	if err := c.post(ctx, "create_user", "/v1/users", body, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *HTTPClient) CreateEvents(ctx context.Context, events []models.Event) error {
	body := struct {
		Events []models.Event `json:"events"`
	}{Events: events}
	return c.post(ctx, "create_events", "/v1/events", body, nil)
}

func (c *HTTPClient) SetAttribution(ctx context.Context, attribution models.Attribution) error {
	return c.post(ctx, "set_attribution", "/v1/attribution", attribution, nil)
}

func (c *HTTPClient) CreateCustomer(ctx context.Context, req models.CreateCustomerRequest) (*models.CustomerSession, error) {
	var session models.CustomerSession
	if err := c.post(ctx, "create_customer", "/v1/payment-customers", req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *HTTPClient) CreateSubscription(ctx context.Context, req models.CreateSubscriptionRequest) (*models.Subscription, error) {
	var subscription models.Subscription
	if err := c.post(ctx, "create_subscription", "/v1/subscriptions", req, &subscription); err != nil {
		return nil, err
	}
	return &subscription, nil
}

func (c *HTTPClient) ReportError(ctx context.Context, message string) {
	body := struct {
		Message string `json:"message"`
	}{Message: message}

	if err := c.post(ctx, "report_error", "/v1/errors", body, nil); err != nil {
		logger.Debug("Error report failed", "error", err)
	}
}

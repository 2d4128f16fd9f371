package klarna

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"klarna-checkout-service/config"
	"klarna-checkout-service/internal/models"
	"klarna-checkout-service/internal/util"

	"go.uber.org/zap"
)

// Klarna Checkout v2 endpoints
const (
	LiveBaseURL      = "https://checkout.klarna.com/checkout/orders"
	TestDriveBaseURL = "https://checkout.testdrive.klarna.com/checkout/orders"
)

// ContentType is the aggregated order media type of the v2 API
const ContentType = "application/vnd.klarna.checkout.aggregated-order-v2+json"

// Client talks to the Klarna Checkout order API
type Client struct {
	baseURL    string
	secret     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a client for the configured mode. An explicit base URL
// in cfg overrides the mode's endpoint.
func NewClient(cfg config.KlarnaConfig, logger *zap.Logger) *Client {
	return NewClientWithHTTP(cfg, &http.Client{Timeout: cfg.Timeout}, logger)
}

// NewClientWithHTTP creates a client using httpClient for transport
func NewClientWithHTTP(cfg config.KlarnaConfig, httpClient *http.Client, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    BaseURL(cfg),
		secret:     cfg.SharedSecret,
		httpClient: httpClient,
		logger:     logger,
	}
}

// BaseURL returns the order endpoint for cfg
func BaseURL(cfg config.KlarnaConfig) string {
	if cfg.BaseURL != "" {
		return strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Mode == config.KlarnaModeLive {
		return LiveBaseURL
	}
	return TestDriveBaseURL
}

// Digest computes the Klarna authorization digest for payload
func Digest(payload []byte, secret string) string {
	sum := sha256.Sum256(append(append([]byte{}, payload...), secret...))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Create submits payload and returns the created remote transaction,
// fetched back from the location the API reports.
func (c *Client) Create(ctx context.Context, payload *models.TransactionPayload) (*models.RemoteTransaction, error) {
	ctx, span := util.StartSpan(ctx, "KlarnaClient.Create")
	defer span.End()

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &models.ProviderError{Op: "create", Message: "failed to marshal payload", Err: err}
	}

	resp, raw, err := c.do(ctx, "create", http.MethodPost, c.baseURL, body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusCreated {
		return nil, c.statusError("create", resp.StatusCode, raw)
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return nil, &models.ProviderError{Op: "create", StatusCode: resp.StatusCode, Message: "no location returned", Payload: raw}
	}

	return c.fetchURL(ctx, "create", location)
}

// Fetch retrieves the remote transaction with the given id
func (c *Client) Fetch(ctx context.Context, remoteID string) (*models.RemoteTransaction, error) {
	ctx, span := util.StartSpan(ctx, "KlarnaClient.Fetch")
	defer span.End()

	if remoteID == "" {
		return nil, &models.ProviderError{Op: "fetch", Message: "empty remote id"}
	}
	return c.fetchURL(ctx, "fetch", c.orderURL(remoteID))
}

// Update posts fields to the remote transaction
func (c *Client) Update(ctx context.Context, remoteID string, fields map[string]interface{}) error {
	ctx, span := util.StartSpan(ctx, "KlarnaClient.Update")
	defer span.End()

	if remoteID == "" {
		return &models.ProviderError{Op: "update", Message: "empty remote id"}
	}

	body, err := json.Marshal(fields)
	if err != nil {
		return &models.ProviderError{Op: "update", Message: "failed to marshal update", Err: err}
	}

	resp, raw, err := c.do(ctx, "update", http.MethodPost, c.orderURL(remoteID), body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return c.statusError("update", resp.StatusCode, raw)
	}
	return nil
}

func (c *Client) orderURL(remoteID string) string {
	return c.baseURL + "/" + remoteID
}

func (c *Client) fetchURL(ctx context.Context, op, url string) (*models.RemoteTransaction, error) {
	resp, raw, err := c.do(ctx, op, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(op, resp.StatusCode, raw)
	}

	var tx models.RemoteTransaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, &models.ProviderError{Op: op, StatusCode: resp.StatusCode, Message: "invalid order document", Payload: raw, Err: err}
	}
	if tx.ID == "" {
		return nil, &models.ProviderError{Op: op, StatusCode: resp.StatusCode, Message: "order document has no id", Payload: raw}
	}
	return &tx, nil
}

func (c *Client) do(ctx context.Context, op, method, url string, body []byte) (*http.Response, []byte, error) {
	start := time.Now()
	status := "error"
	defer func() {
		util.ProviderRequestDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, nil, &models.ProviderError{Op: op, Message: "failed to build request", Err: err}
	}
	req.Header.Set("Accept", ContentType)
	req.Header.Set("Authorization", "Klarna "+Digest(body, c.secret))
	if body != nil {
		req.Header.Set("Content-Type", ContentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		util.ProviderErrorsTotal.WithLabelValues(op).Inc()
		c.logger.Error("Klarna request failed",
			zap.String("op", op),
			zap.String("url", url),
			zap.Error(err))
		return nil, nil, &models.ProviderError{Op: op, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	status = strconv.Itoa(resp.StatusCode)
	if err != nil {
		util.ProviderErrorsTotal.WithLabelValues(op).Inc()
		return nil, nil, &models.ProviderError{Op: op, StatusCode: resp.StatusCode, Message: "failed to read response", Err: err}
	}

	return resp, raw, nil
}

type apiError struct {
	HTTPStatusCode    int    `json:"http_status_code"`
	HTTPStatusMessage string `json:"http_status_message"`
	InternalMessage   string `json:"internal_message"`
}

func (c *Client) statusError(op string, statusCode int, raw []byte) error {
	util.ProviderErrorsTotal.WithLabelValues(op).Inc()

	message := http.StatusText(statusCode)
	var apiErr apiError
	if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.InternalMessage != "" {
		message = apiErr.InternalMessage
	} else if err == nil && apiErr.HTTPStatusMessage != "" {
		message = apiErr.HTTPStatusMessage
	}

	c.logger.Error("Klarna API error",
		zap.String("op", op),
		zap.Int("status", statusCode),
		zap.String("message", message),
		zap.ByteString("payload", raw))

	return &models.ProviderError{Op: op, StatusCode: statusCode, Message: message, Payload: raw}
}

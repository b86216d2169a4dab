// Package filterservice talks to the remote filtering service. One call to
// Send is exactly one HTTP exchange; the client never retries or batches.
package filterservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"filter-explorer/internal/logger"
	"filter-explorer/internal/models"
)

// Sentinel causes wrapped inside transport failures.
var (
	ErrNotRunning        = errors.New("filtering service not running")
	ErrConnectionTimeout = errors.New("filtering service connection timeout")
	ErrConnectionFailed  = errors.New("filtering service connection failed")
)

// Maximum size of an error body read for diagnostics.
const maxErrorBodySize = 64 * 1024

// Client sends filter requests to the filtering service.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     logger.Logger
	metrics    *Metrics
}

// Option customizes a Client.
type Option func(*Client)

// WithTimeout sets the per-exchange HTTP timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithLogger(log logger.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.logger = log
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a client posting to endpoint/{filter_key}.
// An empty endpoint selects DefaultEndpoint.
func NewClient(endpoint string, opts ...Option) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{
			Timeout: time.Duration(DefaultTimeout) * time.Second,
		},
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the configured route prefix.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Send posts encodedImage to the route of key and returns the encoded result.
// kernel is included in the body only when the filter consumes it; its value
// is passed through unchecked.
//
// Failures are *models.FilterError values of kind FailureTransport,
// FailureService or FailureMissingResult.
func (c *Client) Send(ctx context.Context, encodedImage string, key models.FilterKey, kernel *models.KernelSize) (string, error) {
	spec, ok := models.LookupFilter(key)
	if !ok {
		return "", models.NewValidationError("filter", string(key), models.ErrUnknownFilter)
	}

	body := FilterRequest{Image: encodedImage}
	if spec.RequiresKernel && kernel != nil {
		k := int(*kernel)
		body.KernelSize = &k
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.endpoint + "/" + string(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("FilterClient", "sending filter request", map[string]interface{}{
		"filter":        string(key),
		"url":           url,
		"payload_bytes": len(payload),
		"kernel_size":   body.KernelSize,
	})

	start := time.Now()
	result, err := c.exchange(req, key)
	elapsed := time.Since(start)

	outcome := outcomeSuccess
	if err != nil {
		var fe *models.FilterError
		if errors.As(err, &fe) {
			outcome = fe.Kind.String()
		} else {
			outcome = "error"
		}
		c.logger.Warning("FilterClient", "filter request failed", map[string]interface{}{
			"filter":     string(key),
			"error":      err.Error(),
			"elapsed_ms": elapsed.Milliseconds(),
		})
	} else {
		c.logger.Debug("FilterClient", "filter request completed", map[string]interface{}{
			"filter":       string(key),
			"result_bytes": len(result),
			"elapsed_ms":   elapsed.Milliseconds(),
		})
	}
	c.metrics.observe(string(key), outcome, elapsed)

	return result, err
}

func (c *Client) exchange(req *http.Request, key models.FilterKey) (string, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &models.FilterError{Kind: models.FailureTransport, Filter: key, Err: c.classifyError(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		fe := &models.FilterError{Kind: models.FailureService, Filter: key, Status: resp.StatusCode}
		if readErr != nil {
			fe.Err = fmt.Errorf("failed to read error body: %w", readErr)
			return "", fe
		}
		var decoded FilterResponse
		if json.Unmarshal(errBody, &decoded) == nil {
			fe.Message = decoded.Error
		}
		return "", fe
	}

	var decoded FilterResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		if isTransportRead(err) {
			return "", &models.FilterError{Kind: models.FailureTransport, Filter: key, Err: c.classifyError(err)}
		}
		return "", &models.FilterError{Kind: models.FailureMissingResult, Filter: key, Status: resp.StatusCode,
			Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	if decoded.FilteredImage == "" {
		return "", &models.FilterError{Kind: models.FailureMissingResult, Filter: key, Status: resp.StatusCode, Message: decoded.Error}
	}

	return decoded.FilteredImage, nil
}

// isTransportRead separates a broken connection from a malformed body.
// A truncated JSON document is a malformed body.
func isTransportRead(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// classifyError converts low-level HTTP errors into transport causes.
func (c *Client) classifyError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrConnectionTimeout, err)
	}

	if errors.Is(err, context.Canceled) {
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrConnectionTimeout, err)
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("%w at %s", ErrNotRunning, c.endpoint)
	}

	return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
}

// Shutdown releases idle keep-alive connections.
func (c *Client) Shutdown() {
	c.httpClient.CloseIdleConnections()
}

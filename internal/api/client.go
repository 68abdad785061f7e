// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api implements the HTTP client for the Lorebook server.
package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Configuration constants for the Lorebook API.
const (
	// DefaultBaseURL is the base URL of a locally running server.
	DefaultBaseURL = "http://localhost:8500"

	// DefaultTimeout is the default timeout for non-streaming requests.
	DefaultTimeout = 60 * time.Second

	// MaxResponseSize is the maximum allowed response body size.
	// SECURITY: Response size limit prevents memory exhaustion attacks.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB limit
)

var (
	// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
	// Shared HTTP client with connection pooling for all non-streaming requests.
	sharedHTTPClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
		Timeout: DefaultTimeout,
	}

	// sharedStreamingClient is used for streaming requests (no timeout, context-controlled).
	sharedStreamingClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
		// No timeout for streaming - controlled via context
	}
)

// apiErrorResponse represents an error response body from the server.
type apiErrorResponse struct {
	Detail string `json:"detail"`
	Error  struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client is a client for communicating with the Lorebook server.
//
// The token is an opaque bearer credential attached to every request. A
// client without a token can still be constructed, but every operation
// fails synchronously with ErrNotConfigured before touching the network.
type Client struct {
	token      string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	streamer   *http.Client
	logger     *zap.Logger
}

// NewClient creates a client for the given server.
func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		token:      strings.TrimSpace(token),
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		timeout:    DefaultTimeout,
		httpClient: sharedHTTPClient,
		streamer:   sharedStreamingClient,
		logger:     zap.NewNop(),
	}
}

// WithBaseURL sets a custom base URL for the API.
func (c *Client) WithBaseURL(url string) *Client {
	c.baseURL = strings.TrimSuffix(url, "/")
	return c
}

// WithTimeout sets the request timeout for non-streaming calls.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.timeout = timeout
	return c
}

// WithLogger sets the logger used for request/response logging.
func (c *Client) WithLogger(logger *zap.Logger) *Client {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// IsConfigured returns true if the client has a bearer token configured.
func (c *Client) IsConfigured() bool {
	return c.token != ""
}

// TokenFingerprint returns a secure fingerprint of the token for logging.
// SECURITY: Never exposes token fragments - use fingerprint instead.
func (c *Client) TokenFingerprint() string {
	if c.token == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(c.token))
	return hex.EncodeToString(h[:4])
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// setHeaders sets the required headers for Lorebook API requests.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "lorebook-cli/0.1.0")
}

// readResponse reads the response body with size limits to prevent memory exhaustion.
func readResponse(resp *http.Response) ([]byte, error) {
	limitedReader := io.LimitReader(resp.Body, MaxResponseSize)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) == MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// handleErrorResponse converts HTTP error responses to appropriate Go errors.
func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	var apiErr apiErrorResponse
	message := ""
	code := ""
	if err := json.Unmarshal(body, &apiErr); err == nil {
		message = apiErr.Error.Message
		code = apiErr.Error.Code
		if message == "" {
			message = apiErr.Detail
		}
	}
	if message == "" {
		message = strings.TrimSpace(string(body))
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrAuthFailed, message)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrConversationNotFound, message)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, message)
	default:
		return &APIError{Code: code, Message: message, Status: statusCode}
	}
}

// doJSON performs one JSON request/response round trip. out may be nil when
// the caller does not need the body. No retries: failures surface to the
// caller, and the user-facing retry mechanism is regeneration.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}

	var bodyReader io.Reader
	if in != nil {
		bodyBytes, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	c.logger.Debug("api request", zap.String("method", method), zap.String("path", path))
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	c.logger.Debug("api response",
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	body, err := readResponse(resp)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.handleErrorResponse(resp.StatusCode, body)
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

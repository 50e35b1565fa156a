// Package network is the HTTP client factory for the platform endpoints. One
// Client is built per configured server (pod, agent, key manager, session
// auth); it applies the endpoint's default headers, proxy, and trust store,
// and stamps the per-task trace id on every outbound request.
package network

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/finos/symphony-bdk-go/config"
	"github.com/finos/symphony-bdk-go/tracing"
)

const defaultRequestTimeout = 60 * time.Second

// Client issues JSON requests against one platform endpoint.
type Client struct {
	baseURL        string
	defaultHeaders map[string]string
	httpClient     *http.Client
	logger         *zap.Logger
}

// Options tunes a Client beyond its server config.
type Options struct {
	// TrustStorePath points to a PEM bundle replacing the system roots.
	TrustStorePath string

	// Timeout bounds each request. Datafeed reads long-poll, so the agent
	// client is built with a generous value. Zero means the default.
	Timeout time.Duration

	// Logger is the zap logger instance.
	Logger *zap.Logger
}

// NewClient builds a client for the given resolved server config.
func NewClient(server config.ServerConfig, opts Options) (*Client, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultRequestTimeout
	}

	transport := &http.Transport{}
	if proxyURL, err := server.Proxy.URL(); err != nil {
		return nil, err
	} else if proxyURL != nil {
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	if opts.TrustStorePath != "" {
		pool, err := loadTrustStore(opts.TrustStorePath)
		if err != nil {
			return nil, err
		}
		transport.TLSClientConfig = &tls.Config{RootCAs: pool}
	}

	return &Client{
		baseURL:        server.BaseURL(),
		defaultHeaders: server.DefaultHeaders,
		httpClient:     &http.Client{Transport: transport, Timeout: opts.Timeout},
		logger:         opts.Logger,
	}, nil
}

// BaseURL returns the endpoint base URL this client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Request describes one call. A nil Body sends no payload; a non-nil Out
// receives the decoded JSON response.
type Request struct {
	Method  string
	Path    string
	Headers map[string]string
	Query   url.Values
	Body    any
	Out     any
}

// Call issues the request and decodes the response. Non-2xx statuses are
// returned as *APIError with the body preserved for diagnostics.
func (c *Client) Call(ctx context.Context, req Request) error {
	var bodyReader io.Reader
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	requestURL := c.baseURL + req.Path
	if len(req.Query) > 0 {
		requestURL += "?" + req.Query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, requestURL, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for name, value := range c.defaultHeaders {
		httpReq.Header.Set(name, value)
	}
	for name, value := range req.Headers {
		httpReq.Header.Set(name, value)
	}
	if traceID := tracing.ID(ctx); traceID != "" {
		httpReq.Header.Set(tracing.HeaderName, traceID)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%s %s: read response: %w", req.Method, req.Path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug(
			"request failed",
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.Int("status", resp.StatusCode),
		)
		return &APIError{
			Status:  resp.StatusCode,
			Message: strings.TrimSpace(errorMessage(payload)),
			Body:    payload,
		}
	}

	if req.Out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, req.Out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", req.Method, req.Path, err)
	}
	return nil
}

// CloseIdleConnections releases pooled connections.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

const maxResponseBytes = 8 * 1024 * 1024

func errorMessage(payload []byte) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	return body.Message
}

func loadTrustStore(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trust store: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("trust store %s contains no certificates", path)
	}
	return pool, nil
}

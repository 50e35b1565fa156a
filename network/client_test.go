package network

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finos/symphony-bdk-go/config"
	"github.com/finos/symphony-bdk-go/tracing"
)

func serverConfigFor(t *testing.T, rawURL string) config.ServerConfig {
	t.Helper()
	parsed, err := url.Parse(rawURL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(parsed.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return config.ServerConfig{Scheme: parsed.Scheme, Host: host, Port: port}
}

func TestCallDecodesJSONResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/login/pubkey/authenticate", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Write([]byte(`{"token":"session-value"}`))
	}))
	defer server.Close()

	client, err := NewClient(serverConfigFor(t, server.URL), Options{})
	require.NoError(t, err)

	var out struct {
		Token string `json:"token"`
	}
	err = client.Call(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/login/pubkey/authenticate",
		Body:   map[string]string{"token": "signed-jwt"},
		Out:    &out,
	})
	require.NoError(t, err)
	assert.Equal(t, "session-value", out.Token)
}

func TestCallReturnsAPIErrorWithBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"expired datafeed"}`))
	}))
	defer server.Close()

	client, err := NewClient(serverConfigFor(t, server.URL), Options{})
	require.NoError(t, err)

	err = client.Call(context.Background(), Request{Method: http.MethodPost, Path: "/read"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "expired datafeed", apiErr.Message)
	assert.Contains(t, string(apiErr.Body), "expired datafeed")
}

func TestCallSetsTraceHeaderFromContext(t *testing.T) {
	var gotTraceID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTraceID = r.Header.Get(tracing.HeaderName)
	}))
	defer server.Close()

	client, err := NewClient(serverConfigFor(t, server.URL), Options{})
	require.NoError(t, err)

	ctx := tracing.With(context.Background(), "trc123")
	require.NoError(t, client.Call(ctx, Request{Method: http.MethodGet, Path: "/"}))
	assert.Equal(t, "trc123", gotTraceID)
}

func TestCallMergesDefaultAndRequestHeaders(t *testing.T) {
	var gotCustom, gotShared string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCustom = r.Header.Get("X-Custom")
		gotShared = r.Header.Get("X-Shared")
	}))
	defer server.Close()

	serverCfg := serverConfigFor(t, server.URL)
	serverCfg.DefaultHeaders = map[string]string{"X-Custom": "default", "X-Shared": "default"}
	client, err := NewClient(serverCfg, Options{})
	require.NoError(t, err)

	err = client.Call(context.Background(), Request{
		Method:  http.MethodGet,
		Path:    "/",
		Headers: map[string]string{"X-Shared": "request"},
	})
	require.NoError(t, err)
	assert.Equal(t, "default", gotCustom)
	// Per-request headers win over endpoint defaults.
	assert.Equal(t, "request", gotShared)
}

func TestCallEncodesQueryParameters(t *testing.T) {
	var gotQuery url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
	}))
	defer server.Close()

	client, err := NewClient(serverConfigFor(t, server.URL), Options{})
	require.NoError(t, err)

	query := url.Values{}
	query.Set("tag", "my tag")
	require.NoError(t, client.Call(context.Background(), Request{Method: http.MethodGet, Path: "/feeds", Query: query}))
	assert.Equal(t, "my tag", gotQuery.Get("tag"))
}

func TestCallToleratesEmptyResponseBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client, err := NewClient(serverConfigFor(t, server.URL), Options{})
	require.NoError(t, err)

	var out struct{}
	assert.NoError(t, client.Call(context.Background(), Request{Method: http.MethodDelete, Path: "/feed", Out: &out}))
}

func TestAPIErrorClassification(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		unauthorized bool
		forbidden    bool
		clientError  bool
		minor        bool
	}{
		{name: "unauthorized", err: &APIError{Status: 401}, unauthorized: true},
		{name: "forbidden", err: &APIError{Status: 403}, forbidden: true},
		{name: "bad request", err: &APIError{Status: 400}, clientError: true},
		{name: "too many requests", err: &APIError{Status: 429}, minor: true},
		{name: "server error", err: &APIError{Status: 502}, minor: true},
		{name: "deadline", err: context.DeadlineExceeded, minor: true},
		{name: "canceled", err: context.Canceled},
		{name: "plain", err: errors.New("boom")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.unauthorized, IsUnauthorized(tc.err))
			assert.Equal(t, tc.forbidden, IsForbidden(tc.err))
			assert.Equal(t, tc.clientError, IsClientError(tc.err))
			assert.Equal(t, tc.minor, IsMinorError(tc.err))
		})
	}
}

func TestIsMinorErrorCoversNetworkFailures(t *testing.T) {
	// A connection to a closed port fails with a *net.OpError.
	client, err := NewClient(config.ServerConfig{Scheme: "http", Host: "127.0.0.1", Port: 1}, Options{
		Timeout: time.Second,
	})
	require.NoError(t, err)

	callErr := client.Call(context.Background(), Request{Method: http.MethodGet, Path: "/"})
	require.Error(t, callErr)
	assert.True(t, IsMinorError(callErr))
}

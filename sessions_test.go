package bdk

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finos/symphony-bdk-go/auth"
	"github.com/finos/symphony-bdk-go/config"
	"github.com/finos/symphony-bdk-go/network"
	"github.com/finos/symphony-bdk-go/retry"
)

// Shared test fixtures for the package.

type fakeSession struct {
	mu        sync.Mutex
	token     string
	refreshes int
}

func (s *fakeSession) SessionToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *fakeSession) KeyManagerToken() string { return "kmt" }

func (s *fakeSession) Refresh(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshes++
	s.token = "refreshed"
	return nil
}

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

func newPodClient(t *testing.T, rawURL string) *network.Client {
	t.Helper()
	client, err := network.NewClient(serverConfigFor(t, rawURL), network.Options{})
	require.NoError(t, err)
	return client
}

func testPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:     5,
		InitialInterval: time.Millisecond,
		Multiplier:      1.5,
		MaxInterval:     5 * time.Millisecond,
	}
}

func TestSessionServiceResolvesAndCachesBotInfo(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		require.Equal(t, "/pod/v2/sessioninfo", r.URL.Path)
		assert.Equal(t, "stale", r.Header.Get(auth.SessionTokenHeader))
		w.Write([]byte(`{"id": 123, "username": "bot-user", "displayName": "My Bot"}`))
	}))
	defer server.Close()

	service := NewSessionService(newPodClient(t, server.URL), &fakeSession{token: "stale"}, testPolicy(), nil)

	info, err := service.BotInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(123), info.UserID)
	assert.Equal(t, "bot-user", info.Username)
	assert.Equal(t, "My Bot", info.DisplayName)

	// Second call hits the cache.
	_, err = service.BotInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestSessionServiceRefreshesExpiredSession(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get(auth.SessionTokenHeader) != "refreshed" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"id": 123, "username": "bot-user", "displayName": "My Bot"}`))
	}))
	defer server.Close()

	session := &fakeSession{token: "expired"}
	service := NewSessionService(newPodClient(t, server.URL), session, testPolicy(), nil)

	// First attempt gets 401, the session is refreshed once, the retry
	// succeeds with the new token.
	info, err := service.BotInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bot-user", info.Username)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, session.refreshes)
}

func TestSessionServicePersistentUnauthorizedIsFatal(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	session := &fakeSession{token: "expired"}
	service := NewSessionService(newPodClient(t, server.URL), session, testPolicy(), nil)

	_, err := service.BotInfo(context.Background())
	require.Error(t, err)
	// One refresh is attempted; a second 401 aborts instead of looping.
	assert.Equal(t, 1, session.refreshes)
	assert.Equal(t, 2, calls)
}

package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finos/symphony-bdk-go/network"
)

func newTestClient(t *testing.T, rawURL string) *network.Client {
	t.Helper()
	client, err := network.NewClient(serverConfigFor(t, rawURL), network.Options{})
	require.NoError(t, err)
	return client
}

func TestBotAuthenticatorRetrievesTokens(t *testing.T) {
	key := generateKey(t)
	var loginJWT string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Token string `json:"token"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		switch r.URL.Path {
		case "/login/pubkey/authenticate":
			loginJWT = body.Token
			w.Write([]byte(`{"token":"session-token"}`))
		case "/relay/pubkey/authenticate":
			w.Write([]byte(`{"token":"km-token"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	authenticator := NewBotAuthenticator(client, client, key, "bot-user", testPolicy(), nil)

	sessionToken, err := authenticator.RetrieveSessionToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "session-token", sessionToken)

	keyManagerToken, err := authenticator.RetrieveKeyManagerToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "km-token", keyManagerToken)

	// The login payload is a JWT signed by the bot's key.
	token, err := jwt.Parse(loginJWT, func(*jwt.Token) (any, error) {
		return &key.PublicKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS512.Alg()}))
	require.NoError(t, err)
	subject, err := token.Claims.GetSubject()
	require.NoError(t, err)
	assert.Equal(t, "bot-user", subject)
}

func TestBotAuthenticatorDoesNotRetry401(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	authenticator := NewBotAuthenticator(client, client, generateKey(t), "bot-user", testPolicy(), nil)

	_, err := authenticator.RetrieveSessionToken(context.Background())
	require.Error(t, err)
	assert.True(t, IsUnauthorizedError(err))
	assert.Equal(t, "Service account is not authorized to authenticate. Check if credentials are valid.", err.Error())
	assert.Equal(t, int32(1), calls.Load())
}

func TestBotAuthenticatorRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"token":"session-token"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	authenticator := NewBotAuthenticator(client, client, generateKey(t), "bot-user", testPolicy(), nil)

	sessionToken, err := authenticator.RetrieveSessionToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "session-token", sessionToken)
	assert.Equal(t, int32(3), calls.Load())
}

func TestBotAuthenticatorExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	authenticator := NewBotAuthenticator(client, client, generateKey(t), "bot-user", testPolicy(), nil)

	_, err := authenticator.RetrieveSessionToken(context.Background())
	require.Error(t, err)
	assert.False(t, IsUnauthorizedError(err))
	assert.Equal(t, int32(3), calls.Load())
}

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func oboTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login/pubkey/app/authenticate":
			w.Write([]byte(`{"token":"app-session-token"}`))
		case "/login/pubkey/app/username/alice/authenticate":
			// The exchange rides on the app's own session token.
			assert.Equal(t, "app-session-token", r.Header.Get(SessionTokenHeader))
			w.Write([]byte(`{"token":"obo-token-alice"}`))
		case "/login/pubkey/app/user/12345/authenticate":
			assert.Equal(t, "app-session-token", r.Header.Get(SessionTokenHeader))
			w.Write([]byte(`{"token":"obo-token-12345"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestOboAuthenticateByUsername(t *testing.T) {
	server := oboTestServer(t)
	defer server.Close()

	authenticator := NewOboAuthenticator(newTestClient(t, server.URL), generateKey(t), "my-app", testPolicy(), nil)

	session, err := authenticator.AuthenticateByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "obo-token-alice", session.SessionToken())
	// OBO sessions never carry a key manager token.
	assert.Empty(t, session.KeyManagerToken())
}

func TestOboAuthenticateByUserID(t *testing.T) {
	server := oboTestServer(t)
	defer server.Close()

	authenticator := NewOboAuthenticator(newTestClient(t, server.URL), generateKey(t), "my-app", testPolicy(), nil)

	session, err := authenticator.AuthenticateByUserID(context.Background(), 12345)
	require.NoError(t, err)
	assert.Equal(t, "obo-token-12345", session.SessionToken())
}

func TestOboAuthenticateUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	authenticator := NewOboAuthenticator(newTestClient(t, server.URL), generateKey(t), "my-app", testPolicy(), nil)

	_, err := authenticator.AuthenticateByUsername(context.Background(), "alice")
	require.Error(t, err)
	assert.True(t, IsUnauthorizedError(err))
}

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBotSessionRefreshUpdatesBothTokens(t *testing.T) {
	var generation atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login/pubkey/authenticate":
			generation.Add(1)
			w.Write([]byte(`{"token":"session-` + string(rune('0'+generation.Load())) + `"}`))
		case "/relay/pubkey/authenticate":
			w.Write([]byte(`{"token":"km-` + string(rune('0'+generation.Load())) + `"}`))
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	session := NewBotSession(NewBotAuthenticator(client, client, generateKey(t), "bot-user", testPolicy(), nil))

	assert.Empty(t, session.SessionToken())
	require.NoError(t, session.Refresh(context.Background()))
	assert.Equal(t, "session-1", session.SessionToken())
	assert.Equal(t, "km-1", session.KeyManagerToken())

	require.NoError(t, session.Refresh(context.Background()))
	assert.Equal(t, "session-2", session.SessionToken())
	assert.Equal(t, "km-2", session.KeyManagerToken())
}

func TestBotSessionCoalescesConcurrentRefreshes(t *testing.T) {
	var loginCalls, relayCalls atomic.Int32
	firstRequest := make(chan struct{})
	var firstOnce sync.Once
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login/pubkey/authenticate":
			loginCalls.Add(1)
			firstOnce.Do(func() { close(firstRequest) })
			<-release
			w.Write([]byte(`{"token":"session-token"}`))
		case "/relay/pubkey/authenticate":
			relayCalls.Add(1)
			w.Write([]byte(`{"token":"km-token"}`))
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	session := NewBotSession(NewBotAuthenticator(client, client, generateKey(t), "bot-user", testPolicy(), nil))

	var wg sync.WaitGroup
	errs := make([]error, 10)
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[0] = session.Refresh(context.Background())
	}()

	// Hold the upstream call open, then pile more refreshes onto the flight.
	<-firstRequest
	for i := 1; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = session.Refresh(context.Background())
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), loginCalls.Load())
	assert.Equal(t, int32(1), relayCalls.Load())
	assert.Equal(t, "session-token", session.SessionToken())
	assert.Equal(t, "km-token", session.KeyManagerToken())
}

func TestAuthHeaders(t *testing.T) {
	session := &stubSession{sessionToken: "st", keyManagerToken: "kmt"}
	assert.Equal(t, map[string]string{
		SessionTokenHeader:    "st",
		KeyManagerTokenHeader: "kmt",
	}, AuthHeaders(session))
}

func TestAuthHeadersOmitsEmptyKeyManagerToken(t *testing.T) {
	obo := &OboSession{}
	headers := AuthHeaders(obo)
	_, present := headers[KeyManagerTokenHeader]
	assert.False(t, present)
}

type stubSession struct {
	sessionToken    string
	keyManagerToken string
}

func (s *stubSession) SessionToken() string          { return s.sessionToken }
func (s *stubSession) KeyManagerToken() string       { return s.keyManagerToken }
func (s *stubSession) Refresh(context.Context) error { return nil }

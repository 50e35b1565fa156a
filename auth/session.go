package auth

import (
	"context"
	"sync"
)

// Header names carried on platform requests. Pod calls need only the session
// token; agent calls need both.
const (
	SessionTokenHeader    = "sessionToken"
	KeyManagerTokenHeader = "keyManagerToken"
)

// Session is the exclusive owner of a (sessionToken, keyManagerToken) pair.
// Tokens are readable by many tasks; Refresh is the only mutation and
// concurrent refreshes coalesce into one upstream call.
type Session interface {
	SessionToken() string
	KeyManagerToken() string
	Refresh(context.Context) error
}

// AuthHeaders returns the token headers for an agent call.
func AuthHeaders(s Session) map[string]string {
	headers := map[string]string{SessionTokenHeader: s.SessionToken()}
	if kmToken := s.KeyManagerToken(); kmToken != "" {
		headers[KeyManagerTokenHeader] = kmToken
	}
	return headers
}

type flight struct {
	done chan struct{}
	err  error
}

// refreshGroup coalesces concurrent refreshes: the first caller performs the
// upstream call, later callers wait on it and observe its outcome.
type refreshGroup struct {
	mu       sync.Mutex
	inflight *flight
}

func (g *refreshGroup) do(ctx context.Context, refresh func(context.Context) error) error {
	g.mu.Lock()
	if current := g.inflight; current != nil {
		g.mu.Unlock()
		select {
		case <-current.done:
			return current.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	current := &flight{done: make(chan struct{})}
	g.inflight = current
	g.mu.Unlock()

	current.err = refresh(ctx)

	g.mu.Lock()
	g.inflight = nil
	g.mu.Unlock()
	close(current.done)
	return current.err
}

// BotSession holds the service account's token pair.
type BotSession struct {
	authenticator *BotAuthenticator

	mu              sync.RWMutex
	sessionToken    string
	keyManagerToken string
	group           refreshGroup
}

// NewBotSession returns an empty session; call Refresh to authenticate.
func NewBotSession(authenticator *BotAuthenticator) *BotSession {
	return &BotSession{authenticator: authenticator}
}

func (s *BotSession) SessionToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionToken
}

func (s *BotSession) KeyManagerToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keyManagerToken
}

// Refresh fetches a new token pair. Both tokens are fetched together; reads
// after a successful Refresh observe the new pair.
func (s *BotSession) Refresh(ctx context.Context) error {
	return s.group.do(ctx, func(ctx context.Context) error {
		sessionToken, err := s.authenticator.RetrieveSessionToken(ctx)
		if err != nil {
			return err
		}
		keyManagerToken, err := s.authenticator.RetrieveKeyManagerToken(ctx)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.sessionToken = sessionToken
		s.keyManagerToken = keyManagerToken
		s.mu.Unlock()
		return nil
	})
}

// OboSession is a user-scoped session minted by an extension app. Its key
// manager token is always empty: on-behalf-of flows cannot call the KM.
type OboSession struct {
	authenticate func(context.Context) (string, error)

	mu           sync.RWMutex
	sessionToken string
	group        refreshGroup
}

func (s *OboSession) SessionToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionToken
}

func (s *OboSession) KeyManagerToken() string { return "" }

func (s *OboSession) Refresh(ctx context.Context) error {
	return s.group.do(ctx, func(ctx context.Context) error {
		sessionToken, err := s.authenticate(ctx)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.sessionToken = sessionToken
		s.mu.Unlock()
		return nil
	})
}

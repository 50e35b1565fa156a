package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/finos/symphony-bdk-go/network"
	"github.com/finos/symphony-bdk-go/retry"
)

const (
	loginPubkeyPath = "/login/pubkey/authenticate"
	relayPubkeyPath = "/relay/pubkey/authenticate"

	unauthorizedReason = "Service account is not authorized to authenticate. Check if credentials are valid."
)

// UnauthorizedError is a 401 from an authentication endpoint after the retry
// schedule has been exhausted.
type UnauthorizedError struct {
	Reason string
	Cause  error
}

func (e *UnauthorizedError) Error() string {
	return e.Reason
}

func (e *UnauthorizedError) Unwrap() error {
	return e.Cause
}

// IsUnauthorizedError reports whether err is a terminal authentication 401.
func IsUnauthorizedError(err error) bool {
	var unauthorized *UnauthorizedError
	return errors.As(err, &unauthorized)
}

type tokenResponse struct {
	Token string `json:"token"`
}

// BotAuthenticator signs login JWTs with the service account's RSA key and
// exchanges them for session and key-manager tokens.
type BotAuthenticator struct {
	login       *network.Client
	keyManager  *network.Client
	privateKey  *rsa.PrivateKey
	username    string
	retryPolicy retry.Policy
	logger      *zap.Logger
}

// NewBotAuthenticator builds an authenticator against the session-auth and
// key-manager endpoints.
func NewBotAuthenticator(
	login *network.Client,
	keyManager *network.Client,
	privateKey *rsa.PrivateKey,
	username string,
	retryPolicy retry.Policy,
	logger *zap.Logger,
) *BotAuthenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BotAuthenticator{
		login:       login,
		keyManager:  keyManager,
		privateKey:  privateKey,
		username:    username,
		retryPolicy: retryPolicy,
		logger:      logger.Named("auth"),
	}
}

// RetrieveSessionToken obtains the pod-scope session token.
func (a *BotAuthenticator) RetrieveSessionToken(ctx context.Context) (string, error) {
	return a.authenticate(ctx, a.login, loginPubkeyPath)
}

// RetrieveKeyManagerToken obtains the key-manager token.
func (a *BotAuthenticator) RetrieveKeyManagerToken(ctx context.Context) (string, error) {
	return a.authenticate(ctx, a.keyManager, relayPubkeyPath)
}

func (a *BotAuthenticator) authenticate(ctx context.Context, client *network.Client, path string) (string, error) {
	var token string
	spec := retry.Spec{Policy: a.retryPolicy, Retryable: retry.AuthenticationPredicate()}
	err := retry.Do(ctx, a.logger, "authenticate "+path, spec, func(ctx context.Context) error {
		// Re-sign per attempt: the JWT is short-lived and a long backoff
		// schedule can outlast it.
		signedJWT, err := CreateSignedJWT(a.privateKey, a.username)
		if err != nil {
			return err
		}
		var resp tokenResponse
		if err := client.Call(ctx, network.Request{
			Method: http.MethodPost,
			Path:   path,
			Body:   map[string]string{"token": signedJWT},
			Out:    &resp,
		}); err != nil {
			return err
		}
		token = resp.Token
		return nil
	})
	if err != nil {
		if network.IsUnauthorized(err) {
			return "", &UnauthorizedError{Reason: unauthorizedReason, Cause: err}
		}
		return "", fmt.Errorf("authenticate %s: %w", path, err)
	}
	a.logger.Debug("authenticated", zap.String("path", path), zap.String("username", a.username))
	return token, nil
}

package auth

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/finos/symphony-bdk-go/network"
	"github.com/finos/symphony-bdk-go/retry"
)

const appPubkeyPath = "/login/pubkey/app/authenticate"

// OboAuthenticator mints user-scoped sessions on behalf of users, using the
// extension app's credential: the app authenticates by signed JWT, then
// exchanges its app session token for a user OBO token.
type OboAuthenticator struct {
	login       *network.Client
	privateKey  *rsa.PrivateKey
	appID       string
	retryPolicy retry.Policy
	logger      *zap.Logger
}

// NewOboAuthenticator builds an OBO authenticator for the configured app.
func NewOboAuthenticator(
	login *network.Client,
	privateKey *rsa.PrivateKey,
	appID string,
	retryPolicy retry.Policy,
	logger *zap.Logger,
) *OboAuthenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OboAuthenticator{
		login:       login,
		privateKey:  privateKey,
		appID:       appID,
		retryPolicy: retryPolicy,
		logger:      logger.Named("obo"),
	}
}

// AuthenticateByUsername returns a refreshed OBO session for the given user.
func (a *OboAuthenticator) AuthenticateByUsername(ctx context.Context, username string) (*OboSession, error) {
	exchangePath := fmt.Sprintf("/login/pubkey/app/username/%s/authenticate", url.PathEscape(username))
	return a.newSession(ctx, exchangePath)
}

// AuthenticateByUserID returns a refreshed OBO session for the given user id.
func (a *OboAuthenticator) AuthenticateByUserID(ctx context.Context, userID int64) (*OboSession, error) {
	exchangePath := fmt.Sprintf("/login/pubkey/app/user/%d/authenticate", userID)
	return a.newSession(ctx, exchangePath)
}

func (a *OboAuthenticator) newSession(ctx context.Context, exchangePath string) (*OboSession, error) {
	session := &OboSession{
		authenticate: func(ctx context.Context) (string, error) {
			return a.exchange(ctx, exchangePath)
		},
	}
	if err := session.Refresh(ctx); err != nil {
		return nil, err
	}
	return session, nil
}

// RetrieveAppSessionToken authenticates the extension app itself.
func (a *OboAuthenticator) RetrieveAppSessionToken(ctx context.Context) (string, error) {
	var token string
	spec := retry.Spec{Policy: a.retryPolicy, Retryable: retry.AuthenticationPredicate()}
	err := retry.Do(ctx, a.logger, "authenticate app", spec, func(ctx context.Context) error {
		signedJWT, err := CreateSignedJWT(a.privateKey, a.appID)
		if err != nil {
			return err
		}
		var resp tokenResponse
		if err := a.login.Call(ctx, network.Request{
			Method: http.MethodPost,
			Path:   appPubkeyPath,
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
		return "", fmt.Errorf("authenticate app: %w", err)
	}
	return token, nil
}

func (a *OboAuthenticator) exchange(ctx context.Context, exchangePath string) (string, error) {
	appSessionToken, err := a.RetrieveAppSessionToken(ctx)
	if err != nil {
		return "", err
	}
	var token string
	spec := retry.Spec{Policy: a.retryPolicy, Retryable: retry.AuthenticationPredicate()}
	err = retry.Do(ctx, a.logger, "obo exchange", spec, func(ctx context.Context) error {
		var resp tokenResponse
		if err := a.login.Call(ctx, network.Request{
			Method:  http.MethodPost,
			Path:    exchangePath,
			Headers: map[string]string{SessionTokenHeader: appSessionToken},
			Out:     &resp,
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
		return "", fmt.Errorf("obo exchange: %w", err)
	}
	return token, nil
}

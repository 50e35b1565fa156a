package auth

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/finos/symphony-bdk-go/network"
	"github.com/finos/symphony-bdk-go/retry"
)

const (
	extensionAppPubkeyPath = "/login/pubkey/app/authenticate/extensionApp"
	podCertPath            = "/pod/v1/podcert"
)

// AppSession is the token pair issued to an extension app, with its
// expiration in epoch milliseconds.
type AppSession struct {
	AppID         string `json:"appId"`
	AppToken      string `json:"appToken"`
	SymphonyToken string `json:"symphonyToken"`
	ExpireAt      int64  `json:"expireAt"`
}

// ExtensionAppAuthenticator authenticates the extension app and validates
// inbound token pairs and JWTs from the app frontend.
type ExtensionAppAuthenticator struct {
	login       *network.Client
	pod         *network.Client
	privateKey  *rsa.PrivateKey
	appID       string
	tokens      TokensRepository
	retryPolicy retry.Policy
	logger      *zap.Logger
}

// NewExtensionAppAuthenticator builds an authenticator persisting token pairs
// in the given repository. A nil repository gets an in-memory one.
func NewExtensionAppAuthenticator(
	login *network.Client,
	pod *network.Client,
	privateKey *rsa.PrivateKey,
	appID string,
	tokens TokensRepository,
	retryPolicy retry.Policy,
	logger *zap.Logger,
) *ExtensionAppAuthenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tokens == nil {
		tokens = NewInMemoryTokensRepository()
	}
	return &ExtensionAppAuthenticator{
		login:       login,
		pod:         pod,
		privateKey:  privateKey,
		appID:       appID,
		tokens:      tokens,
		retryPolicy: retryPolicy,
		logger:      logger.Named("extapp"),
	}
}

// Authenticate exchanges the app-generated appToken for a symphony token and
// records the pair for later validation.
func (a *ExtensionAppAuthenticator) Authenticate(ctx context.Context, appToken string) (*AppSession, error) {
	var session AppSession
	spec := retry.Spec{Policy: a.retryPolicy, Retryable: retry.AuthenticationPredicate()}
	err := retry.Do(ctx, a.logger, "authenticate extension app", spec, func(ctx context.Context) error {
		signedJWT, err := CreateSignedJWT(a.privateKey, a.appID)
		if err != nil {
			return err
		}
		return a.login.Call(ctx, network.Request{
			Method: http.MethodPost,
			Path:   extensionAppPubkeyPath,
			Body:   map[string]string{"appToken": appToken, "authToken": signedJWT},
			Out:    &session,
		})
	})
	if err != nil {
		if network.IsUnauthorized(err) {
			return nil, &UnauthorizedError{Reason: unauthorizedReason, Cause: err}
		}
		return nil, fmt.Errorf("authenticate extension app: %w", err)
	}
	a.tokens.Save(session.AppToken, session.SymphonyToken)
	return &session, nil
}

// ValidateTokens reports whether the pair was issued by Authenticate.
func (a *ExtensionAppAuthenticator) ValidateTokens(appToken string, symphonyToken string) bool {
	stored, ok := a.tokens.Get(appToken)
	return ok && stored == symphonyToken
}

// ValidateJWT verifies a caller-supplied JWT against the pod's published
// certificate and checks that its subject is this app.
func (a *ExtensionAppAuthenticator) ValidateJWT(ctx context.Context, signedJWT string) error {
	certificate, err := a.podCertificate(ctx)
	if err != nil {
		return err
	}
	publicKey, ok := certificate.PublicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("pod certificate does not carry an RSA key")
	}

	token, err := jwt.Parse(signedJWT, func(*jwt.Token) (any, error) {
		return publicKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS512.Alg()}))
	if err != nil {
		return fmt.Errorf("validate jwt: %w", err)
	}
	subject, err := token.Claims.GetSubject()
	if err != nil {
		return fmt.Errorf("validate jwt: %w", err)
	}
	if subject != a.appID {
		return fmt.Errorf("jwt subject %q does not match app id %q", subject, a.appID)
	}
	return nil
}

func (a *ExtensionAppAuthenticator) podCertificate(ctx context.Context) (*x509.Certificate, error) {
	var resp struct {
		Certificate string `json:"certificate"`
	}
	spec := retry.Spec{Policy: a.retryPolicy, Retryable: retry.AuthenticationPredicate()}
	err := retry.Do(ctx, a.logger, "fetch pod certificate", spec, func(ctx context.Context) error {
		return a.pod.Call(ctx, network.Request{Method: http.MethodGet, Path: podCertPath, Out: &resp})
	})
	if err != nil {
		return nil, fmt.Errorf("fetch pod certificate: %w", err)
	}
	block, _ := pem.Decode([]byte(resp.Certificate))
	if block == nil {
		return nil, fmt.Errorf("pod certificate is not valid PEM")
	}
	certificate, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse pod certificate: %w", err)
	}
	return certificate, nil
}

// Package auth produces and refreshes the bearer tokens every outbound call
// carries: the pod-scope session token and the key-manager token, plus the
// on-behalf-of and extension-app variants.
package auth

import (
	"crypto/rsa"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/finos/symphony-bdk-go/config"
)

// Signed login JWTs are short-lived; the platform rejects anything expiring
// more than five minutes out.
const jwtLifetime = 290 * time.Second

// CreateSignedJWT signs a short-lived RS512 login JWT for the given subject.
func CreateSignedJWT(key *rsa.PrivateKey, subject string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS512, jwt.MapClaims{
		"sub": subject,
		"exp": now.Add(jwtLifetime).Unix(),
	})
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, nil
}

// LoadPrivateKey reads the RSA private key described by the config, from
// either the filesystem path or the inline PEM content.
func LoadPrivateKey(cfg config.PrivateKeyConfig) (*rsa.PrivateKey, error) {
	pemBytes := []byte(cfg.Content)
	if cfg.Path != "" {
		var err error
		pemBytes, err = os.ReadFile(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

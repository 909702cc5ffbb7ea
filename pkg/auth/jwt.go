// Package auth issues and verifies the API's bearer tokens.
package auth

import (
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	eherrors "github.com/eventhint/eventhint/pkg/errors"
)

// TokenIssuer creates and verifies HS256 access tokens carrying the user
// id as subject.
type TokenIssuer struct {
	secret []byte
	expiry time.Duration
}

// NewTokenIssuer builds a TokenIssuer from the application secret.
func NewTokenIssuer(secretKey string, expiry time.Duration) (*TokenIssuer, error) {
	if secretKey == "" {
		return nil, fmt.Errorf("secret key is required")
	}
	if expiry <= 0 {
		expiry = 30 * time.Minute
	}
	return &TokenIssuer{secret: []byte(secretKey), expiry: expiry}, nil
}

// Issue creates a signed access token for the given user id.
func (t *TokenIssuer) Issue(userID string) (string, error) {
	now := time.Now()
	tok, err := jwt.NewBuilder().
		Subject(userID).
		IssuedAt(now).
		Expiration(now.Add(t.expiry)).
		Build()
	if err != nil {
		return "", fmt.Errorf("failed to build token: %w", err)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, t.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return string(signed), nil
}

// Verify validates a bearer token and returns the user id it carries.
func (t *TokenIssuer) Verify(token string) (string, error) {
	tok, err := jwt.Parse([]byte(token),
		jwt.WithKey(jwa.HS256, t.secret),
		jwt.WithValidate(true),
	)
	if err != nil {
		return "", eherrors.Wrap(eherrors.KindUnauthorized, "invalid token", err)
	}

	sub := tok.Subject()
	if sub == "" {
		return "", eherrors.E(eherrors.KindUnauthorized, "token has no subject")
	}
	return sub, nil
}

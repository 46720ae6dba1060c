// Package auth resolves the local user's identity from a JWT before any
// subscription is established.
package auth

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("auth: invalid token")

// JWTValidator checks tokens and extracts the subject user id.
type JWTValidator struct {
	pub    *rsa.PublicKey
	secret []byte
	method string
}

// NewValidatorRS256 loads a PEM-encoded RSA public key from path.
func NewValidatorRS256(path string) (*JWTValidator, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, errors.New("auth: failed to decode public key pem")
	}
	pubIfc, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	pub, ok := pubIfc.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("auth: not an rsa public key")
	}
	return &JWTValidator{pub: pub, method: "RS256"}, nil
}

// NewValidatorHS256 uses a shared secret.
func NewValidatorHS256(secret string) (*JWTValidator, error) {
	if secret == "" {
		return nil, errors.New("auth: empty hs256 secret")
	}
	return &JWTValidator{secret: []byte(secret), method: "HS256"}, nil
}

// Validate parses the token and returns the user id from the sub (or
// user_id) claim.
func (v *JWTValidator) Validate(tokenStr string) (string, error) {
	tok, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if v.method == "RS256" {
			return v.pub, nil
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{v.method}))
	if err != nil {
		return "", err
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid {
		return "", ErrInvalidToken
	}
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return sub, nil
	}
	if userID, ok := claims["user_id"].(string); ok && userID != "" {
		return userID, nil
	}
	return "", ErrInvalidToken
}

// TokenIdentity resolves a fixed bearer token against a validator; it backs
// the subscription manager's pre-subscribe identity check.
type TokenIdentity struct {
	Validator *JWTValidator
	Token     string
}

func (t TokenIdentity) Resolve(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return t.Validator.Validate(t.Token)
}

// StaticIdentity is a fixed user id for single-user and test setups.
type StaticIdentity string

func (s StaticIdentity) Resolve(ctx context.Context) (string, error) {
	if s == "" {
		return "", ErrInvalidToken
	}
	return string(s), nil
}

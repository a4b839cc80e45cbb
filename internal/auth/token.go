// Package auth supplies bearer tokens to backend calls and keeps them fresh.
package auth

import (
	"context"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

// TokenSource returns an access token for outgoing requests. An empty token
// with a nil error means requests go out unauthenticated.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed token, e.g. from configuration.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	return strings.TrimSpace(string(t)), nil
}

// Token is an acquired access token with its expiry. A zero Expiry means unknown.
type Token struct {
	Value  string
	Expiry time.Time
}

var jwtAlgorithms = []jose.SignatureAlgorithm{
	jose.RS256, jose.RS384, jose.RS512,
	jose.PS256, jose.PS384, jose.PS512,
	jose.ES256, jose.ES384, jose.ES512,
	jose.HS256, jose.HS384, jose.HS512,
	jose.EdDSA,
}

// Expiry reads the exp claim of a JWT without verifying its signature.
// It returns false for opaque tokens and JWTs without exp.
func Expiry(token string) (time.Time, bool) {
	parsed, err := jwt.ParseSigned(token, jwtAlgorithms)
	if err != nil {
		return time.Time{}, false
	}
	var claims jwt.Claims
	if err := parsed.UnsafeClaimsWithoutVerification(&claims); err != nil {
		return time.Time{}, false
	}
	if claims.Expiry == nil {
		return time.Time{}, false
	}
	return claims.Expiry.Time(), true
}

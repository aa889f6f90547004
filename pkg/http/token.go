package http

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenPair is the refresh endpoint's answer. Refresh is set only when the backend rotates it.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// TokenExpiry reads the exp claim of a JWT without verifying its signature. The client never
// holds the signing key; the backend remains the authority on validity.
func TokenExpiry(token string) (time.Time, bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// expiresWithin reports whether token carries an exp claim that falls within d of now.
func expiresWithin(token string, d time.Duration, now time.Time) bool {
	exp, ok := TokenExpiry(token)
	return ok && now.Add(d).After(exp)
}

// noTokens is the TokenStore of a client built without a session.
type noTokens struct{}

func (noTokens) AccessToken() string  { return "" }
func (noTokens) RefreshToken() string { return "" }

func (noTokens) Clear(context.Context) error { return nil }

func (noTokens) UpdateTokens(context.Context, string, string, string) (bool, error) {
	return false, nil
}

package http

import (
	"context"
	"net/url"
)

// HTTPClient is the surface the auth and feed packages program against.
type HTTPClient interface {
	// Do sends r and decodes a 2xx JSON body into out (which may be nil).
	Do(ctx context.Context, r *Request, out any) error

	Get(ctx context.Context, path string, query url.Values, out any) error
	Post(ctx context.Context, path string, body, out any) error
	Patch(ctx context.Context, path string, body, out any) error
	Delete(ctx context.Context, path string, out any) error

	// RefreshAccessToken exchanges a refresh token for a new access token, bypassing interception.
	RefreshAccessToken(ctx context.Context, refresh string) (TokenPair, error)

	// ResetAuthState returns the interceptor to its initial state after a fresh login.
	ResetAuthState()
}

// TokenStore is where the interceptor reads and writes credentials.
type TokenStore interface {
	AccessToken() string
	RefreshToken() string
	// UpdateTokens stores tokens obtained with previousRefresh, unless the session has moved on
	// since. applied reports whether they were stored.
	UpdateTokens(ctx context.Context, previousRefresh, access, refresh string) (applied bool, err error)
	Clear(ctx context.Context) error
}

// Navigator sends the user back to the login screen after an irrecoverable auth failure.
type Navigator interface {
	RedirectToLogin(ctx context.Context)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context)

func (f NavigatorFunc) RedirectToLogin(ctx context.Context) { f(ctx) }

// Ensure Client implements HTTPClient interface.
var _ HTTPClient = (*Client)(nil)

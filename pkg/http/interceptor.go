package http

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/milan604/feedclient/pkg/apperr"
)

// errSessionChanged means the session was cleared or replaced while a refresh was in flight.
var errSessionChanged = errors.New("session changed during token refresh")

// AuthState is the interceptor's position in its refresh cycle.
type AuthState int32

const (
	StateNormal AuthState = iota
	StateRefreshing
	StateFailed
)

func (s AuthState) String() string {
	switch s {
	case StateNormal:
		return "NORMAL"
	case StateRefreshing:
		return "REFRESHING"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// AuthInterceptor turns a 401 into at most one refresh and one replay of the failed request.
// Concurrent 401s carrying the same refresh token share a single refresh call.
type AuthInterceptor struct {
	c         *Client
	state     atomic.Int32
	group     singleflight.Group
	proactive time.Duration
	now       func() time.Time
	rejected  atomic.Pointer[string] // refused during a proactive refresh
}

func newAuthInterceptor(c *Client) *AuthInterceptor {
	return &AuthInterceptor{c: c, now: time.Now}
}

// State returns the current state.
func (a *AuthInterceptor) State() AuthState { return AuthState(a.state.Load()) }

// Reset returns to NORMAL and forgets any rejected refresh token.
func (a *AuthInterceptor) Reset() {
	a.state.Store(int32(StateNormal))
	a.rejected.Store(nil)
}

// beforeSend refreshes ahead of time when proactive refresh is on and the access token is about
// to expire. A refresh token the backend refuses here is remembered so a following 401 ends the
// session without asking again.
func (a *AuthInterceptor) beforeSend(ctx context.Context) {
	if a.proactive <= 0 {
		return
	}
	access, refresh := a.c.tokens.AccessToken(), a.c.tokens.RefreshToken()
	if access == "" || refresh == "" || !expiresWithin(access, a.proactive, a.now()) {
		return
	}
	if _, err := a.refresh(ctx, refresh); err != nil {
		a.c.logger.DebugFCtx(ctx, "proactive token refresh failed: %v", err)
		if apperr.IsKind(err, apperr.KindAuth) && !errors.Is(err, errSessionChanged) {
			a.rejected.Store(&refresh)
		}
	}
}

func (a *AuthInterceptor) knownRejected(refresh string) bool {
	r := a.rejected.Load()
	return r != nil && *r == refresh
}

// onUnauthorized handles a 401 reply to r. It returns the reply to use, or the error to surface.
func (a *AuthInterceptor) onUnauthorized(ctx context.Context, r *Request, res *response) (*response, error) {
	log := a.c.logger
	replay, ok := r.retry()
	if !ok {
		log.WarnFCtx(ctx, "replayed request to %s was rejected, ending session", res.url)
		a.c.metrics.refresh(RefreshReplay401)
		err := a.c.responseError(ctx, res)
		a.fail(ctx)
		return nil, err
	}

	// Another request may already have refreshed while this one was in flight.
	if current := a.c.tokens.AccessToken(); current != "" && current != res.bearer {
		log.DebugFCtx(ctx, "access token changed while request was in flight, replaying")
		replay.bearer = current
		return a.replay(ctx, replay)
	}

	refresh := a.c.tokens.RefreshToken()
	if refresh == "" {
		log.InfoFCtx(ctx, "received 401 without a refresh token, ending session")
		a.c.metrics.refresh(RefreshNoToken)
		err := a.c.responseError(ctx, res)
		a.fail(ctx)
		return nil, err
	}

	if a.knownRejected(refresh) {
		log.InfoFCtx(ctx, "received 401 and the refresh token was already rejected, ending session")
		a.c.metrics.refresh(RefreshRejected)
		err := a.c.responseError(ctx, res)
		a.fail(ctx)
		return nil, err
	}

	a.state.Store(int32(StateRefreshing))
	log.InfoFCtx(ctx, "received 401, refreshing access token")
	access, err := a.refresh(ctx, refresh)
	if errors.Is(err, errSessionChanged) {
		// Logged out or signed in again meanwhile; the new session is not ours to clear.
		log.InfoFCtx(ctx, "session changed during token refresh, not replaying")
		a.state.Store(int32(StateNormal))
		return nil, err
	}
	if err != nil {
		log.WarnFCtx(ctx, "token refresh failed: %s", apperr.UserMessage(err))
		a.fail(ctx)
		return nil, err
	}
	a.state.Store(int32(StateNormal))

	replay.bearer = access
	return a.replay(ctx, replay)
}

func (a *AuthInterceptor) replay(ctx context.Context, r *Request) (*response, error) {
	res, err := a.c.execute(ctx, r)
	if err != nil {
		return nil, err
	}
	if res.status == 401 {
		return a.onUnauthorized(ctx, r, res)
	}
	return res, nil
}

// refresh performs one shared refresh for the given refresh token and stores the result.
func (a *AuthInterceptor) refresh(ctx context.Context, refresh string) (string, error) {
	v, err, _ := a.group.Do(refresh, func() (any, error) {
		// Detached so one caller's cancellation does not fail the others sharing this call.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.c.timeout)
		defer cancel()

		pair, err := a.c.RefreshAccessToken(rctx, refresh)
		if err != nil {
			a.c.metrics.refresh(RefreshFailed)
			return "", err
		}
		applied, err := a.c.tokens.UpdateTokens(rctx, refresh, pair.Access, pair.Refresh)
		if err != nil {
			a.c.metrics.refresh(RefreshFailed)
			return "", err
		}
		if !applied {
			a.c.metrics.refresh(RefreshDiscarded)
			return "", apperr.New(apperr.ErrorCodeUnauthorized).Wrap(errSessionChanged)
		}
		a.c.metrics.refresh(RefreshSucceeded)
		return pair.Access, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// fail clears the session, enters FAILED and redirects to login.
func (a *AuthInterceptor) fail(ctx context.Context) {
	a.state.Store(int32(StateFailed))
	if err := a.c.tokens.Clear(context.WithoutCancel(ctx)); err != nil {
		a.c.logger.ErrorFCtx(ctx, "clearing session after auth failure: %v", err)
	}
	if a.c.navigator != nil {
		a.c.navigator.RedirectToLogin(ctx)
	}
}

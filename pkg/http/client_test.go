package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/milan604/feedclient/pkg/apperr"
	"github.com/milan604/feedclient/pkg/session"
)

// backend is a minimal API: /posts/ needs the current access token, /account/token/refresh/
// swaps refresh tokens for new access tokens.
type backend struct {
	mu           sync.Mutex
	validAccess  string
	validRefresh string
	nextAccess   string
	rotate       string
	refreshDelay time.Duration
	alwaysReject bool

	postsCalls   atomic.Int32
	refreshCalls atomic.Int32
	seenAuth     []string
}

func (b *backend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/account/token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		b.refreshCalls.Add(1)
		time.Sleep(b.refreshDelay)
		var body struct {
			Refresh string `json:"refresh"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		b.mu.Lock()
		defer b.mu.Unlock()
		if body.Refresh == "" || body.Refresh != b.validRefresh {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"detail":"Token is invalid or expired","code":"token_not_valid"}`)
			return
		}
		b.validAccess = b.nextAccess
		resp := map[string]string{"access": b.nextAccess}
		if b.rotate != "" {
			resp["refresh"] = b.rotate
			b.validRefresh = b.rotate
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/api/posts/", func(w http.ResponseWriter, r *http.Request) {
		b.postsCalls.Add(1)
		auth := r.Header.Get("Authorization")
		b.mu.Lock()
		b.seenAuth = append(b.seenAuth, auth)
		ok := !b.alwaysReject && auth == "Bearer "+b.validAccess
		b.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"detail":"Given token not valid for any token type"}`)
			return
		}
		_, _ = io.WriteString(w, `{"count":1,"results":[{"id":1}]}`)
	})
	mux.HandleFunc("/api/missing/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"detail":"Not found."}`)
	})
	return mux
}

type fixture struct {
	backend   *backend
	server    *httptest.Server
	store     *session.Store
	client    *Client
	redirects atomic.Int32
	metrics   *Metrics
}

func newFixture(t *testing.T, b *backend, opts ...ClientOption) *fixture {
	t.Helper()
	f := &fixture{backend: b}
	f.server = httptest.NewServer(b.handler())
	t.Cleanup(f.server.Close)

	f.store = session.NewStore(session.NewMemoryStorage())
	m, err := NewMetrics(nil)
	require.NoError(t, err)
	f.metrics = m

	base := []ClientOption{
		WithBaseURL(f.server.URL + "/api"),
		WithSession(f.store),
		WithMetrics(m),
		WithLoginRedirect(NavigatorFunc(func(context.Context) { f.redirects.Add(1) })),
	}
	f.client = NewClient(append(base, opts...)...)
	return f
}

func (f *fixture) login(t *testing.T, access, refresh string) {
	t.Helper()
	require.NoError(t, f.store.Save(context.Background(), session.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         &session.User{Username: "a", Name: "a", Email: "a@b.com"},
	}))
}

func TestBearerAttachedWhenTokenPresent(t *testing.T) {
	f := newFixture(t, &backend{validAccess: "A1"})
	f.login(t, "A1", "R1")

	var page struct {
		Count int `json:"count"`
	}
	require.NoError(t, f.client.Get(context.Background(), "/posts/", nil, &page))
	assert.Equal(t, 1, page.Count)
	assert.Equal(t, []string{"Bearer A1"}, f.backend.seenAuth)
}

func TestNoBearerWithoutTokenOrWithSkipAuth(t *testing.T) {
	f := newFixture(t, &backend{validAccess: "A1"})

	err := f.client.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/posts/", SkipAuth: true}, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, apperr.StatusOf(err))
	assert.Equal(t, []string{""}, f.backend.seenAuth)
	assert.Zero(t, f.backend.refreshCalls.Load(), "SkipAuth requests are never intercepted")
	assert.Zero(t, f.redirects.Load())
}

func TestUnauthorizedRefreshesOnceAndReplaysOnce(t *testing.T) {
	f := newFixture(t, &backend{validAccess: "A2", validRefresh: "R1", nextAccess: "A2"})
	f.login(t, "A1", "R1")

	require.NoError(t, f.client.Get(context.Background(), "/posts/", nil, nil))

	assert.Equal(t, int32(1), f.backend.refreshCalls.Load())
	assert.Equal(t, int32(2), f.backend.postsCalls.Load())
	assert.Equal(t, []string{"Bearer A1", "Bearer A2"}, f.backend.seenAuth)
	assert.Equal(t, "A2", f.store.AccessToken())
	assert.Equal(t, "R1", f.store.RefreshToken())
	assert.Equal(t, StateNormal, f.client.State())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.refreshes.WithLabelValues(RefreshSucceeded)))
}

func TestRotatedRefreshTokenIsStored(t *testing.T) {
	f := newFixture(t, &backend{validRefresh: "R1", nextAccess: "A2", rotate: "R2"})
	f.login(t, "A1", "R1")

	require.NoError(t, f.client.Get(context.Background(), "/posts/", nil, nil))
	assert.Equal(t, "R2", f.store.RefreshToken())
}

func TestReplayedUnauthorizedIsPropagatedAndClears(t *testing.T) {
	f := newFixture(t, &backend{validRefresh: "R1", nextAccess: "A2", alwaysReject: true})
	f.login(t, "A1", "R1")

	err := f.client.Get(context.Background(), "/posts/", nil, nil)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindAuth))
	assert.Equal(t, http.StatusUnauthorized, apperr.StatusOf(err))

	assert.Equal(t, int32(1), f.backend.refreshCalls.Load(), "no second refresh")
	assert.Equal(t, int32(2), f.backend.postsCalls.Load())
	assert.Empty(t, f.store.AccessToken())
	assert.Empty(t, f.store.RefreshToken())
	assert.False(t, f.store.IsAuthenticated())
	assert.Equal(t, int32(1), f.redirects.Load())
	assert.Equal(t, StateFailed, f.client.State())
}

func TestUnauthorizedWithoutRefreshTokenClears(t *testing.T) {
	f := newFixture(t, &backend{validAccess: "other"})
	applied, err := f.store.UpdateTokens(context.Background(), "", "A1", "")
	require.NoError(t, err)
	require.True(t, applied)

	err = f.client.Get(context.Background(), "/posts/", nil, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, apperr.StatusOf(err))
	assert.Zero(t, f.backend.refreshCalls.Load())
	assert.Empty(t, f.store.AccessToken())
	assert.Equal(t, int32(1), f.redirects.Load())
	assert.Equal(t, StateFailed, f.client.State())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.refreshes.WithLabelValues(RefreshNoToken)))
}

func TestFailedRefreshClearsAndReturnsRefreshError(t *testing.T) {
	f := newFixture(t, &backend{validRefresh: "something-else"})
	f.login(t, "A1", "R1")

	err := f.client.Get(context.Background(), "/posts/", nil, nil)
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "Token is invalid or expired", appErr.Detail)
	assert.Contains(t, appErr.URL, "/account/token/refresh/")

	assert.Equal(t, int32(1), f.backend.postsCalls.Load(), "no replay after a failed refresh")
	assert.False(t, f.store.IsAuthenticated())
	assert.Empty(t, f.store.RefreshToken())
	_, hasUser := f.store.User()
	assert.False(t, hasUser)
	assert.Equal(t, int32(1), f.redirects.Load())

	f.client.ResetAuthState()
	assert.Equal(t, StateNormal, f.client.State())
}

func TestConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	b := &backend{validRefresh: "R1", nextAccess: "A2", refreshDelay: 100 * time.Millisecond}
	f := newFixture(t, b)
	f.login(t, "A1", "R1")

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.client.Get(context.Background(), "/posts/", nil, nil)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), b.refreshCalls.Load())
	assert.Equal(t, "A2", f.store.AccessToken())
}

func TestProactiveRefresh(t *testing.T) {
	soon, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(10 * time.Second)),
	}).SignedString([]byte("k"))
	require.NoError(t, err)

	b := &backend{validAccess: soon, validRefresh: "R1", nextAccess: "A2"}
	f := newFixture(t, b, WithProactiveRefresh(time.Minute))
	f.login(t, soon, "R1")

	require.NoError(t, f.client.Get(context.Background(), "/posts/", nil, nil))
	assert.Equal(t, int32(1), b.refreshCalls.Load())
	assert.Equal(t, []string{"Bearer A2"}, b.seenAuth)

	exp, ok := TokenExpiry(soon)
	assert.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(10*time.Second), exp, 2*time.Second)
	_, ok = TokenExpiry("not-a-jwt")
	assert.False(t, ok)
}

func TestLogoutDuringRefreshKeepsSessionCleared(t *testing.T) {
	b := &backend{validAccess: "other", validRefresh: "R1", nextAccess: "A2", refreshDelay: 300 * time.Millisecond}
	f := newFixture(t, b)
	f.login(t, "A1", "R1")

	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = f.store.Clear(context.Background())
	}()

	err := f.client.Get(context.Background(), "/posts/", nil, nil)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindAuth))
	assert.Equal(t, int32(1), b.refreshCalls.Load())
	assert.Equal(t, int32(1), b.postsCalls.Load(), "no replay for a logged out session")

	assert.Empty(t, f.store.AccessToken())
	assert.Empty(t, f.store.RefreshToken())
	assert.False(t, f.store.IsAuthenticated())
	assert.Zero(t, f.redirects.Load())
	assert.Equal(t, StateNormal, f.client.State())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.refreshes.WithLabelValues(RefreshDiscarded)))
}

func TestRejectedProactiveRefreshIsNotRepeated(t *testing.T) {
	soon, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(10 * time.Second)),
	}).SignedString([]byte("k"))
	require.NoError(t, err)

	b := &backend{validAccess: "other", validRefresh: "something-else"}
	f := newFixture(t, b, WithProactiveRefresh(time.Minute))
	f.login(t, soon, "R1")

	err = f.client.Get(context.Background(), "/posts/", nil, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, apperr.StatusOf(err))
	assert.Equal(t, int32(1), b.refreshCalls.Load(), "the 401 path reuses the proactive rejection")
	assert.False(t, f.store.IsAuthenticated())
	assert.Equal(t, int32(1), f.redirects.Load())
	assert.Equal(t, StateFailed, f.client.State())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.refreshes.WithLabelValues(RefreshRejected)))
}

func TestErrorNormalisation(t *testing.T) {
	f := newFixture(t, &backend{})

	err := f.client.Get(context.Background(), "/missing/", nil, nil)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	assert.Equal(t, "Not found.", apperr.UserMessage(err))

	f.server.Close()
	err = f.client.Get(context.Background(), "/posts/", nil, nil)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNetwork))
	assert.Equal(t, "Cannot connect to server. Please check your connection.", apperr.UserMessage(err))
}

func TestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithTimeout(50*time.Millisecond))
	err := c.Get(context.Background(), "/slow/", nil, nil)
	assert.True(t, apperr.IsCode(err, apperr.ErrorCodeTimeout), "got %v", err)
}

func TestHeadersAndHooks(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	var hookStatus int
	c := NewClient(
		WithBaseURL(srv.URL+"/api/"),
		WithHeader("X-Client", "feedctl"),
		WithRequestHook(func(r *http.Request) error { r.Header.Set("X-Hook", "1"); return nil }),
		WithResponseHook(func(r *http.Response) error { hookStatus = r.StatusCode; return nil }),
	)
	require.NoError(t, c.Post(context.Background(), "posts/", map[string]string{"a": "b"}, nil))

	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, "application/json", got.Get("Accept"))
	assert.Equal(t, "feedctl", got.Get("X-Client"))
	assert.Equal(t, "1", got.Get("X-Hook"))
	assert.NotEmpty(t, got.Get("X-Request-ID"))
	assert.True(t, strings.HasPrefix(got.Get("User-Agent"), "feedclient/"))
	assert.Equal(t, http.StatusOK, hookStatus)

	failing := NewClient(WithBaseURL(srv.URL), WithRequestHook(func(*http.Request) error { return errors.New("nope") }))
	assert.Error(t, failing.Get(context.Background(), "/", nil, nil))
}

func TestInvalidJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html>`)
	}))
	defer srv.Close()

	var out map[string]any
	err := NewClient(WithBaseURL(srv.URL)).Get(context.Background(), "/", nil, &out)
	assert.True(t, apperr.IsCode(err, apperr.ErrorCodeInvalidResponse))
}

func TestCircuitBreakerOpens(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithCircuitBreaker(2, time.Minute))
	for i := 0; i < 2; i++ {
		err := c.Get(context.Background(), "/", nil, nil)
		assert.Equal(t, http.StatusServiceUnavailable, apperr.StatusOf(err))
	}
	err := c.Get(context.Background(), "/", nil, nil)
	assert.True(t, apperr.IsCode(err, apperr.ErrorCodeServiceUnavailable))
	assert.Zero(t, apperr.StatusOf(err))
	assert.Equal(t, int32(2), hits.Load())
}

func TestRateLimitDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRateLimit(0.01, 1))
	require.NoError(t, c.Get(context.Background(), "/", nil, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.Get(ctx, "/", nil, nil)
	assert.True(t, apperr.IsCode(err, apperr.ErrorCodeRateLimited), "got %v", err)
}

func TestTracingSpans(t *testing.T) {
	var traceparent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceparent = r.Header.Get("traceparent")
	}))
	defer srv.Close()

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	defer tp.Shutdown(context.Background())

	c := NewClient(WithBaseURL(srv.URL), WithTracer(tp.Tracer("test")))
	require.NoError(t, c.Get(context.Background(), "/", nil, nil))

	assert.NotEmpty(t, traceparent)
	require.Len(t, exp.GetSpans(), 1)
	assert.Equal(t, "HTTP GET", exp.GetSpans()[0].Name)
}

func TestRequestRetryIsBounded(t *testing.T) {
	r := &Request{Method: http.MethodGet, Path: "/x", Header: http.Header{"X": {"1"}}}
	replay, ok := r.retry()
	require.True(t, ok)
	assert.Equal(t, 1, replay.Attempt())
	assert.Equal(t, 0, r.Attempt())

	_, ok = replay.retry()
	assert.False(t, ok)
}

func TestRefreshAccessTokenRequiresAccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	_, err := NewClient(WithBaseURL(srv.URL)).RefreshAccessToken(context.Background(), "R1")
	assert.True(t, apperr.IsCode(err, apperr.ErrorCodeInvalidResponse))
}
